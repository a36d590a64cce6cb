package chunk

import (
	"testing"

	"loxvm/internal/value"
)

func TestWriteAppendsMonotonically(t *testing.T) {
	c := New()
	c.Write(byte(OP_NIL), 1)
	c.Write(byte(OP_RETURN), 1)
	if len(c.Code) != 2 {
		t.Fatalf("expected 2 bytes, got %d", len(c.Code))
	}
}

func TestLineRunLengthEncoding(t *testing.T) {
	c := New()
	c.Write(byte(OP_NIL), 1)
	c.Write(byte(OP_POP), 1)
	c.Write(byte(OP_NIL), 1)
	c.Write(byte(OP_RETURN), 2)

	if got := c.LineAt(0); got != 1 {
		t.Errorf("LineAt(0) = %d, want 1", got)
	}
	if got := c.LineAt(2); got != 1 {
		t.Errorf("LineAt(2) = %d, want 1", got)
	}
	if got := c.LineAt(3); got != 2 {
		t.Errorf("LineAt(3) = %d, want 2", got)
	}
	// run-length encoding must have collapsed the three same-line writes
	// into a single pair plus the line-2 pair.
	if len(c.lines) != 2 {
		t.Errorf("expected 2 RLE runs, got %d", len(c.lines))
	}
}

func TestAddConstant(t *testing.T) {
	c := New()
	idx := c.AddConstant(value.NewNumber(42))
	if idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
	if c.Constants[idx].Number != 42 {
		t.Fatalf("constant not stored correctly")
	}
}

func TestConstantValuesImplementsHolder(t *testing.T) {
	c := New()
	c.AddConstant(value.NewNumber(1))
	var holder value.ConstantHolder = c
	if len(holder.ConstantValues()) != 1 {
		t.Fatalf("expected 1 constant via ConstantHolder")
	}
}
