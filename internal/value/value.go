// Package value defines the tagged-union runtime Value and the heap
// object variants it can hold.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the tag of a Value: nil, bool, number, or object.
type Type int

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObject
)

// Value is the tagged union every stack slot, global binding, and
// constant-pool entry holds. A value's tag is never observed out of
// sync with its payload.
type Value struct {
	Type   Type
	Bool   bool
	Number float64
	Obj    Object // non-owning handle into the gc-owned heap
}

func Nil() Value                { return Value{Type: TypeNil} }
func NewBool(b bool) Value      { return Value{Type: TypeBool, Bool: b} }
func NewNumber(n float64) Value { return Value{Type: TypeNumber, Number: n} }
func NewObject(o Object) Value  { return Value{Type: TypeObject, Obj: o} }

func (v Value) IsNil() bool    { return v.Type == TypeNil }
func (v Value) IsObject() bool { return v.Type == TypeObject }

// Truthy reports whether v counts as true in a boolean context: nil is
// false, bool is itself, everything else (including the number zero)
// is truthy.
func (v Value) Truthy() bool {
	switch v.Type {
	case TypeNil:
		return false
	case TypeBool:
		return v.Bool
	default:
		return true
	}
}

// Equal compares two values: unequal tags are never equal; strings
// compare by content, other objects by identity.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeNil:
		return true
	case TypeBool:
		return a.Bool == b.Bool
	case TypeNumber:
		return a.Number == b.Number
	case TypeObject:
		as, aIsStr := a.Obj.(*ObjString)
		bs, bIsStr := b.Obj.(*ObjString)
		if aIsStr && bIsStr {
			return as.Chars == bs.Chars
		}
		return a.Obj == b.Obj
	default:
		return false
	}
}

// Kind identifies the heap object variant.
type Kind int

const (
	KindString Kind = iota
	KindFunction
	KindClass
	KindInstance
	KindAllocation
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindAllocation:
		return "allocation"
	default:
		return "unknown"
	}
}

// Header is the small record every heap object carries: kind tag, mark
// bit, and age counter. It is embedded in every concrete
// object type rather than inherited, since Go has no object hierarchy.
type Header struct {
	Kind   Kind
	Marked bool
	Age    int
}

// Object is the polymorphic heap-object interface the collector traces.
// Every concrete variant embeds Header and implements these methods;
// HeapHeader exposes the embedded header for the collector without a
// type switch.
type Object interface {
	HeapHeader() *Header
	// Size estimates the object's footprint in bytes for the
	// collector's byte counters. It need not be exact
	// but must be monotonic and consistent between allocation and sweep.
	Size() int
	// References returns every Value this object points to, for the
	// collector's tracing phase.
	References() []Value
	String() string
}

const baseObjectSize = 32 // fixed per-object overhead shared by every variant

// ObjString is an immutable character sequence.
type ObjString struct {
	Header
	Chars string
}

func NewObjString(s string) *ObjString {
	return &ObjString{Header: Header{Kind: KindString}, Chars: s}
}

func (s *ObjString) HeapHeader() *Header { return &s.Header }
func (s *ObjString) Size() int           { return baseObjectSize + len(s.Chars) }
func (s *ObjString) References() []Value { return nil }
func (s *ObjString) String() string      { return renderString(s.Chars) }
func renderString(raw string) string {
	r := strings.ReplaceAll(raw, `\n`, "\n")
	return strings.ReplaceAll(r, `\t`, "\t")
}

// ObjFunction is {name, chunk, arity}; it owns its chunk. Chunk is kept
// as interface{} rather than *chunk.Chunk to avoid an import cycle
// between internal/value and internal/chunk (chunk.Chunk.Constants is
// []value.Value).
type ObjFunction struct {
	Header
	Name  *ObjString
	Chunk interface{}
	Arity int
}

func NewObjFunction(name *ObjString, chunk interface{}, arity int) *ObjFunction {
	return &ObjFunction{Header: Header{Kind: KindFunction}, Name: name, Chunk: chunk, Arity: arity}
}

func (f *ObjFunction) HeapHeader() *Header { return &f.Header }
func (f *ObjFunction) Size() int           { return baseObjectSize }
func (f *ObjFunction) References() []Value {
	refs := []Value{NewObject(f.Name)}
	if c, ok := f.Chunk.(ConstantHolder); ok {
		refs = append(refs, c.ConstantValues()...)
	}
	return refs
}
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<function script>"
	}
	return fmt.Sprintf("<function %s>", f.Name.Chars)
}

// ConstantHolder is implemented by *chunk.Chunk; it lets value.Object
// trace into a function's constant pool without importing internal/chunk.
type ConstantHolder interface {
	ConstantValues() []Value
}

// ObjClass carries only a name; this core has no method dispatch.
type ObjClass struct {
	Header
	Name *ObjString
}

func NewObjClass(name *ObjString) *ObjClass {
	return &ObjClass{Header: Header{Kind: KindClass}, Name: name}
}

func (c *ObjClass) HeapHeader() *Header { return &c.Header }
func (c *ObjClass) Size() int           { return baseObjectSize }
func (c *ObjClass) References() []Value { return []Value{NewObject(c.Name)} }
func (c *ObjClass) String() string      { return fmt.Sprintf("<class %s>", c.Name.Chars) }

// ObjInstance is {class, field map}.
type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields map[string]Value
}

func NewObjInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{
		Header: Header{Kind: KindInstance},
		Class:  class,
		Fields: make(map[string]Value),
	}
}

func (i *ObjInstance) HeapHeader() *Header { return &i.Header }
func (i *ObjInstance) Size() int {
	return baseObjectSize
}
func (i *ObjInstance) References() []Value {
	refs := make([]Value, 0, len(i.Fields)+1)
	refs = append(refs, NewObject(i.Class))
	for _, v := range i.Fields {
		refs = append(refs, v)
	}
	return refs
}
func (i *ObjInstance) String() string {
	return fmt.Sprintf("<instance of %s>", i.Class.Name.Chars)
}

// ObjAllocation is a raw byte block used for explicit user-triggered
// large allocations and stress-testing the collector.
type ObjAllocation struct {
	Header
	Bytes []byte
}

func NewObjAllocation(kilobytes int) *ObjAllocation {
	if kilobytes < 0 {
		kilobytes = 0
	}
	return &ObjAllocation{
		Header: Header{Kind: KindAllocation},
		Bytes:  make([]byte, kilobytes*1024),
	}
}

func (a *ObjAllocation) HeapHeader() *Header { return &a.Header }
func (a *ObjAllocation) Size() int           { return baseObjectSize + len(a.Bytes) }
func (a *ObjAllocation) References() []Value { return nil }
func (a *ObjAllocation) String() string {
	return fmt.Sprintf("<allocation %dKB>", len(a.Bytes)/1024)
}

// String renders a value's canonical stdout representation.
func (v Value) String() string {
	switch v.Type {
	case TypeNil:
		return "nil"
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeNumber:
		return formatNumber(v.Number)
	case TypeObject:
		if v.Obj == nil {
			return "nil"
		}
		return v.Obj.String()
	default:
		return "unknown"
	}
}

// formatNumber prints integers without a decimal point and falls back
// to Go's default float rendering otherwise.
func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
