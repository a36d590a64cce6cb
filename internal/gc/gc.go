// Package gc implements a generational mark-sweep collector: two object
// sets (young and old) partitioned by survival count, a gray worklist
// for tracing, and byte-threshold-driven collection cycles.
package gc

import (
	"context"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"loxvm/internal/value"
)

// RootProvider is implemented by the interpreter. The collector
// enumerates roots by asking it for every currently-live value on the
// stack and in globals.
type RootProvider interface {
	Roots() []value.Value
}

// CycleRecorder is the optional hook used to ship collection telemetry
// to an out-of-process observer (internal/plugin). A nil recorder is a
// silent no-op; the collector behaves identically with or without one.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, report CycleReport) error
}

// CycleReport summarizes one collection cycle for telemetry/logging.
type CycleReport struct {
	ID             string
	CollectedOld   bool
	BytesYoung     uint64
	BytesOld       uint64
	ThresholdYoung uint64
	ThresholdOld   uint64
	Freed          int
	Promoted       int
}

// promotionAge is the age at which a young object survives into the old
// generation.
const promotionAge = 2

// Collector owns every heap object's lifetime.
// All other references into the heap are weak handles.
type Collector struct {
	young []value.Object
	old   []value.Object
	gray  []value.Object

	bytesYoung uint64
	bytesOld   uint64

	thresholdYoung uint64
	thresholdOld   uint64
	growYoung      float64
	growOld        float64

	stress   bool
	log      *slog.Logger
	recorder CycleRecorder
}

// New creates a collector with thresholdYoung=1024, thresholdOld=2048,
// both grow factors 1.
func New(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		thresholdYoung: 1024,
		thresholdOld:   2048,
		growYoung:      1,
		growOld:        1,
		log:            log,
	}
}

// SetStressMode forces a collection cycle on every allocation made with
// a non-nil RootProvider, regardless of threshold — used by the CLI's
// --gc-stress flag. Compile-time allocations (nil roots) still skip
// collection.
func (c *Collector) SetStressMode(on bool) { c.stress = on }

// SetRecorder installs an optional telemetry sink (internal/plugin).
func (c *Collector) SetRecorder(r CycleRecorder) { c.recorder = r }

// Stats is a snapshot of the collector's byte counters and thresholds,
// rendered human-readable via go-humanize for logging and diagnostics.
type Stats struct {
	BytesYoung     uint64
	BytesOld       uint64
	ThresholdYoung uint64
	ThresholdOld   uint64
}

func (s Stats) String() string {
	return "young=" + humanize.Bytes(s.BytesYoung) + "/" + humanize.Bytes(s.ThresholdYoung) +
		" old=" + humanize.Bytes(s.BytesOld) + "/" + humanize.Bytes(s.ThresholdOld)
}

func (c *Collector) Stats() Stats {
	return Stats{
		BytesYoung:     c.bytesYoung,
		BytesOld:       c.bytesOld,
		ThresholdYoung: c.thresholdYoung,
		ThresholdOld:   c.thresholdOld,
	}
}

// track runs the allocation protocol common to every typed entry point:
// check thresholds, possibly collect, add the freshly constructed object
// to the young set with mark clear and age zero, and bump the byte
// counter.
//
// roots is nil for compile-time allocations (constants folded while the
// compiler is still building a chunk); such allocations skip collection
// until interpretation begins, since there is no interpreter
// stack/globals yet to root them against.
func (c *Collector) track(obj value.Object, roots RootProvider) {
	if roots != nil && (c.stress || c.bytesYoung > c.thresholdYoung) {
		c.Collect(roots)
	}
	c.young = append(c.young, obj)
	c.bytesYoung += uint64(obj.Size())
}

func (c *Collector) AllocateString(s string, roots RootProvider) *value.ObjString {
	obj := value.NewObjString(s)
	c.track(obj, roots)
	return obj
}

func (c *Collector) AllocateFunction(name *value.ObjString, fnChunk interface{}, arity int, roots RootProvider) *value.ObjFunction {
	obj := value.NewObjFunction(name, fnChunk, arity)
	c.track(obj, roots)
	return obj
}

func (c *Collector) AllocateClass(name *value.ObjString, roots RootProvider) *value.ObjClass {
	obj := value.NewObjClass(name)
	c.track(obj, roots)
	return obj
}

func (c *Collector) AllocateInstance(class *value.ObjClass, roots RootProvider) *value.ObjInstance {
	obj := value.NewObjInstance(class)
	c.track(obj, roots)
	return obj
}

// AllocateBlock allocates the raw byte block behind an explicit
// ALLOCATE opcode.
func (c *Collector) AllocateBlock(kilobytes int, roots RootProvider) *value.ObjAllocation {
	obj := value.NewObjAllocation(kilobytes)
	c.track(obj, roots)
	return obj
}

// Collect runs one collection cycle.
func (c *Collector) Collect(roots RootProvider) {
	cycleID := uuid.NewString()
	collectOld := c.bytesOld > c.thresholdOld

	c.markRoots(roots, collectOld)
	c.trace(collectOld)
	freed, promoted := c.sweep(collectOld)

	c.thresholdYoung = uint64(float64(c.bytesYoung) * c.growYoung)
	if c.thresholdYoung == 0 {
		c.thresholdYoung = 1024
	}
	if collectOld {
		c.thresholdOld = uint64(float64(c.bytesOld) * c.growOld)
		if c.thresholdOld == 0 {
			c.thresholdOld = 2048
		}
	}

	stats := c.Stats()
	c.log.Debug("gc cycle",
		"id", cycleID,
		"collected_old", collectOld,
		"freed", freed,
		"promoted", promoted,
		"stats", stats.String(),
	)

	if c.recorder != nil {
		report := CycleReport{
			ID:             cycleID,
			CollectedOld:   collectOld,
			BytesYoung:     stats.BytesYoung,
			BytesOld:       stats.BytesOld,
			ThresholdYoung: stats.ThresholdYoung,
			ThresholdOld:   stats.ThresholdOld,
			Freed:          freed,
			Promoted:       promoted,
		}
		if err := c.recorder.RecordCycle(context.Background(), report); err != nil {
			c.log.Warn("gc telemetry record failed", "id", cycleID, "error", err)
		}
	}
}

// markRoots visits every value reachable from the interpreter's value
// stack and globals map.
func (c *Collector) markRoots(roots RootProvider, collectOld bool) {
	if roots == nil {
		return
	}
	for _, v := range roots.Roots() {
		c.markValue(v, collectOld)
	}
}

func (c *Collector) markValue(v value.Value, collectOld bool) {
	if v.Type != value.TypeObject || v.Obj == nil {
		return
	}
	c.markObject(v.Obj, collectOld)
}

// markObject marks an object gray and pushes it onto the worklist,
// applying the young-only scope's rule: when a
// full (young+old) cycle isn't running, edges into already-old objects
// are not followed, since those objects aren't swept this cycle and
// this core has no write barrier to otherwise keep old->young edges
// precise.
func (c *Collector) markObject(obj value.Object, collectOld bool) {
	h := obj.HeapHeader()
	if h.Marked {
		return
	}
	isOld := c.isOld(obj)
	if isOld && !collectOld {
		return
	}
	h.Marked = true
	c.gray = append(c.gray, obj)
}

func (c *Collector) isOld(obj value.Object) bool {
	return slices.ContainsFunc(c.old, func(o value.Object) bool { return o == obj })
}

// trace repeatedly pops a gray object, marks its outgoing references,
// and pushes newly-marked references, until the worklist is empty. When
// tracing completes no gray objects remain: every reachable object is
// black, every unmarked object in scope is unreachable (the tri-color
// invariant).
func (c *Collector) trace(collectOld bool) {
	for len(c.gray) > 0 {
		obj := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		for _, ref := range obj.References() {
			c.markValue(ref, collectOld)
		}
	}
}

// sweep erases the unreachable half of each set in scope and ages the
// reachable half of the young set, promoting survivors that have
// reached promotionAge into the old generation. The young set is a
// three-way split (freed, promoted, survives) with per-object mutation
// at each branch, so it's rebuilt from a fresh backing array by hand;
// the old set is a plain two-way split (freed or survives), which
// slices.DeleteFunc compacts in place.
func (c *Collector) sweep(collectOld bool) (freed, promoted int) {
	survivors := c.young[:0:0]
	for _, obj := range c.young {
		h := obj.HeapHeader()
		if !h.Marked {
			c.bytesYoung -= uint64(obj.Size())
			freed++
			continue
		}
		h.Marked = false
		h.Age++
		if h.Age >= promotionAge {
			c.bytesYoung -= uint64(obj.Size())
			c.bytesOld += uint64(obj.Size())
			c.old = append(c.old, obj)
			promoted++
			continue
		}
		survivors = append(survivors, obj)
	}
	c.young = survivors

	if !collectOld {
		return freed, promoted
	}

	for _, obj := range c.old {
		if h := obj.HeapHeader(); !h.Marked {
			c.bytesOld -= uint64(obj.Size())
			freed++
		}
	}
	c.old = slices.DeleteFunc(c.old, func(obj value.Object) bool {
		return !obj.HeapHeader().Marked
	})
	for _, obj := range c.old {
		obj.HeapHeader().Marked = false
	}

	return freed, promoted
}

// Shutdown frees every remaining object. Go's GC reclaims the memory on
// its own once nothing references these slices; Shutdown exists so the
// final byte counters and a last log line are observable at exit.
func (c *Collector) Shutdown() {
	c.log.Debug("gc shutdown", "live", c.Stats().String())
	c.young = nil
	c.old = nil
	c.gray = nil
	c.bytesYoung = 0
	c.bytesOld = 0
}
