// Package chunk implements the bytecode container: an ordered byte
// sequence, a <=256-entry constant pool, and a run-length-encoded line
// table.
package chunk

import (
	"fmt"

	"loxvm/internal/value"
)

// OpCode is a single-byte instruction.
type OpCode byte

const (
	OP_CONSTANT OpCode = iota
	OP_NIL
	OP_TRUE
	OP_FALSE
	OP_POP
	OP_NEGATE
	OP_NOT
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_EQUAL
	OP_GREATER
	OP_LESS
	OP_PRINT
	OP_DEFINE_GLOBAL
	OP_GET_GLOBAL
	OP_SET_GLOBAL
	OP_GET_LOCAL
	OP_SET_LOCAL
	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_LOOP
	OP_CLASS
	OP_CALL
	OP_GET_PROPERTY
	OP_SET_PROPERTY
	OP_ALLOCATE
	OP_RETURN
)

var opNames = map[OpCode]string{
	OP_CONSTANT:      "OP_CONSTANT",
	OP_NIL:           "OP_NIL",
	OP_TRUE:          "OP_TRUE",
	OP_FALSE:         "OP_FALSE",
	OP_POP:           "OP_POP",
	OP_NEGATE:        "OP_NEGATE",
	OP_NOT:           "OP_NOT",
	OP_ADD:           "OP_ADD",
	OP_SUBTRACT:      "OP_SUBTRACT",
	OP_MULTIPLY:      "OP_MULTIPLY",
	OP_DIVIDE:        "OP_DIVIDE",
	OP_EQUAL:         "OP_EQUAL",
	OP_GREATER:       "OP_GREATER",
	OP_LESS:          "OP_LESS",
	OP_PRINT:         "OP_PRINT",
	OP_DEFINE_GLOBAL: "OP_DEFINE_GLOBAL",
	OP_GET_GLOBAL:    "OP_GET_GLOBAL",
	OP_SET_GLOBAL:    "OP_SET_GLOBAL",
	OP_GET_LOCAL:     "OP_GET_LOCAL",
	OP_SET_LOCAL:     "OP_SET_LOCAL",
	OP_JUMP:          "OP_JUMP",
	OP_JUMP_IF_FALSE: "OP_JUMP_IF_FALSE",
	OP_LOOP:          "OP_LOOP",
	OP_CLASS:         "OP_CLASS",
	OP_CALL:          "OP_CALL",
	OP_GET_PROPERTY:  "OP_GET_PROPERTY",
	OP_SET_PROPERTY:  "OP_SET_PROPERTY",
	OP_ALLOCATE:      "OP_ALLOCATE",
	OP_RETURN:        "OP_RETURN",
}

func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("OP_%d", op)
}

// MaxConstants is the per-chunk constant-pool limit: a
// single byte operand indexes it.
const MaxConstants = 256

// lineRun is one (line, run-length) pair of the RLE line table.
type lineRun struct {
	line   int
	length int
}

// Chunk holds a function's bytecode, constant pool, and line metadata.
type Chunk struct {
	Code      []byte
	Constants []value.Value
	lines     []lineRun
	FileName  string
}

func New() *Chunk {
	return &Chunk{}
}

// Write appends a byte to the code stream and records its source line.
// Appends are strictly monotonic; a new RLE pair starts whenever the
// line changes, otherwise the current run's length is incremented.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	if len(c.lines) > 0 && c.lines[len(c.lines)-1].line == line {
		c.lines[len(c.lines)-1].length++
		return
	}
	c.lines = append(c.lines, lineRun{line: line, length: 1})
}

// AddConstant appends v to the constant pool and returns its index.
// Callers must check the returned index against MaxConstants
// themselves (the compiler enforces the "256 constants" limit) since
// Chunk itself has no notion of a compile error.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// ConstantValues implements value.ConstantHolder so a *value.ObjFunction
// holding this chunk can be traced by the collector without an import
// cycle back into this package.
func (c *Chunk) ConstantValues() []value.Value {
	return c.Constants
}

// LineAt performs a linear scan over the RLE line table, used only when
// reporting runtime errors.
func (c *Chunk) LineAt(offset int) int {
	remaining := offset
	for _, run := range c.lines {
		if remaining < run.length {
			return run.line
		}
		remaining -= run.length
	}
	if len(c.lines) > 0 {
		return c.lines[len(c.lines)-1].line
	}
	return 0
}

// Disassemble prints a human-readable listing of the chunk, used by the
// CLI's --disassemble flag.
func (c *Chunk) Disassemble(name string) {
	fmt.Printf("== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.disassembleInstruction(offset)
	}
}

func (c *Chunk) disassembleInstruction(offset int) int {
	fmt.Printf("%04d %4d ", offset, c.LineAt(offset))

	op := OpCode(c.Code[offset])
	switch op {
	case OP_CONSTANT, OP_DEFINE_GLOBAL, OP_GET_GLOBAL, OP_SET_GLOBAL,
		OP_CLASS, OP_GET_PROPERTY, OP_SET_PROPERTY:
		return c.constantInstruction(op.String(), offset)
	case OP_GET_LOCAL, OP_SET_LOCAL, OP_CALL:
		return c.byteInstruction(op.String(), offset)
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_LOOP:
		return c.jumpInstruction(op.String(), offset)
	default:
		fmt.Println(op)
		return offset + 1
	}
}

func (c *Chunk) constantInstruction(name string, offset int) int {
	constant := c.Code[offset+1]
	fmt.Printf("%-18s %4d '%s'\n", name, constant, c.Constants[constant])
	return offset + 2
}

func (c *Chunk) byteInstruction(name string, offset int) int {
	slot := c.Code[offset+1]
	fmt.Printf("%-18s %4d\n", name, slot)
	return offset + 2
}

func (c *Chunk) jumpInstruction(name string, offset int) int {
	jump := uint16(c.Code[offset+1])<<8 | uint16(c.Code[offset+2])
	fmt.Printf("%-18s %4d\n", name, jump)
	return offset + 3
}
