package gc

import (
	"context"
	"testing"

	"loxvm/internal/value"
)

// fakeRoots implements RootProvider with a settable slice, standing in
// for the VM's value stack + globals during collection tests.
type fakeRoots struct {
	values []value.Value
}

func (f *fakeRoots) Roots() []value.Value { return f.values }

func TestAllocateWithoutRootsSkipsCollection(t *testing.T) {
	c := New(nil)
	for i := 0; i < 100; i++ {
		c.AllocateString("x", nil)
	}
	if len(c.young) != 100 {
		t.Fatalf("expected 100 tracked objects, got %d", len(c.young))
	}
}

func TestCollectFreesUnreachableObjects(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}

	kept := c.AllocateString("kept", roots)
	roots.values = []value.Value{value.NewObject(kept)}

	c.AllocateString("garbage", roots)

	c.Collect(roots)

	if len(c.young) != 1 {
		t.Fatalf("expected 1 surviving object, got %d", len(c.young))
	}
	if c.young[0] != value.Object(kept) {
		t.Fatalf("wrong object survived collection")
	}
}

func TestCollectClearsMarkBitsAfterSweep(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}
	s := c.AllocateString("kept", roots)
	roots.values = []value.Value{value.NewObject(s)}

	c.Collect(roots)

	for _, obj := range c.young {
		if obj.HeapHeader().Marked {
			t.Fatalf("object still marked after sweep")
		}
	}
}

func TestPromotionAfterTwoSurvivedCycles(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}
	s := c.AllocateString("kept", roots)
	roots.values = []value.Value{value.NewObject(s)}

	c.Collect(roots)
	if s.Age != 1 {
		t.Fatalf("expected age 1 after first cycle, got %d", s.Age)
	}
	for _, obj := range c.young {
		if obj == value.Object(s) {
			goto stillYoung
		}
	}
	t.Fatalf("object unexpectedly promoted after one cycle")
stillYoung:

	c.Collect(roots)
	if s.Age < promotionAge {
		t.Fatalf("expected age >= %d after second cycle, got %d", promotionAge, s.Age)
	}
	found := false
	for _, obj := range c.old {
		if obj == value.Object(s) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected object promoted to old generation")
	}
	for _, obj := range c.young {
		if obj == value.Object(s) {
			t.Fatalf("promoted object still present in young set")
		}
	}
}

func TestReachableGraphSurvivesThroughInstance(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}

	className := c.AllocateString("Box", roots)
	class := c.AllocateClass(className, roots)
	instance := c.AllocateInstance(class, roots)
	fieldValName := c.AllocateString("held", roots)
	instance.Fields["value"] = value.NewObject(fieldValName)

	roots.values = []value.Value{value.NewObject(instance)}

	c.Collect(roots)

	for _, want := range []value.Object{instance, class, className, fieldValName} {
		alive := false
		for _, obj := range c.young {
			if obj == want {
				alive = true
			}
		}
		if !alive {
			t.Fatalf("expected %v reachable through instance graph to survive", want)
		}
	}
}

func TestYoungOnlyCycleDoesNotSweepOldObjects(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}
	s := c.AllocateString("long-lived", roots)
	roots.values = []value.Value{value.NewObject(s)}

	c.Collect(roots)
	c.Collect(roots)
	if len(c.old) != 1 {
		t.Fatalf("expected object promoted into old generation, got %d old objects", len(c.old))
	}

	roots.values = nil
	c.Collect(roots)
	if len(c.old) != 1 {
		t.Fatalf("young-only cycle must not sweep the old generation")
	}
}

func TestStressModeCollectsEveryAllocation(t *testing.T) {
	c := New(nil)
	c.SetStressMode(true)
	roots := &fakeRoots{}

	for i := 0; i < 50; i++ {
		c.AllocateString("churn", roots)
		if len(c.young) > 1 {
			t.Fatalf("stress mode should collect on every allocation, young set grew to %d", len(c.young))
		}
	}
}

func TestGCSoakBoundsLiveBytes(t *testing.T) {
	c := New(nil)
	roots := &fakeRoots{}

	for i := 0; i < 5000; i++ {
		c.AllocateBlock(1, roots)
	}

	stats := c.Stats()
	if stats.BytesYoung > c.thresholdYoung*2 {
		t.Fatalf("live bytes grew unbounded: %d young bytes after 5000 dropped allocations", stats.BytesYoung)
	}
}

type recordingRecorder struct {
	reports []CycleReport
}

func (r *recordingRecorder) RecordCycle(_ context.Context, report CycleReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func TestRecorderReceivesCycleReport(t *testing.T) {
	c := New(nil)
	rec := &recordingRecorder{}
	c.SetRecorder(rec)
	roots := &fakeRoots{}

	c.AllocateString("a", roots)
	c.Collect(roots)

	if len(rec.reports) != 1 {
		t.Fatalf("expected 1 recorded cycle, got %d", len(rec.reports))
	}
	if rec.reports[0].ID == "" {
		t.Fatalf("expected non-empty cycle id")
	}
}
