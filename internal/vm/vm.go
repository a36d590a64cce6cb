// Package vm implements the stack-based bytecode interpreter: a value
// stack, a push/pop/peek dispatch loop over a chunk's opcodes, and
// runtime error reporting with source line numbers. No closures, no
// call frames, no native-function table, since this core has no
// user-defined functions.
package vm

import (
	"fmt"
	"log/slog"
	"strings"

	"loxvm/internal/chunk"
	"loxvm/internal/gc"
	"loxvm/internal/value"
)

const stackInitialCapacity = 256

// VM interprets one chunk at a time. Because this core has no
// user-defined functions, there is exactly one implicit call frame: the
// top-level chunk. OP_CALL only ever instantiates a class.
type VM struct {
	chunk *chunk.Chunk
	ip    int

	stack []value.Value

	globals map[string]value.Value

	gc  *gc.Collector
	log *slog.Logger
}

func New(collector *gc.Collector, log *slog.Logger) *VM {
	if log == nil {
		log = slog.Default()
	}
	return &VM{
		stack:   make([]value.Value, 0, stackInitialCapacity),
		globals: make(map[string]value.Value),
		gc:      collector,
		log:     log,
	}
}

// Roots implements gc.RootProvider: every value currently reachable
// from the VM's stack or its globals table.
func (vm *VM) Roots() []value.Value {
	roots := make([]value.Value, 0, len(vm.stack)+len(vm.globals))
	roots = append(roots, vm.stack...)
	for _, v := range vm.globals {
		roots = append(roots, v)
	}
	return roots
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// Interpret runs c to completion, starting with an empty stack (globals
// persist across calls, matching a REPL session's behavior of
// accumulating top-level bindings).
func (vm *VM) Interpret(c *chunk.Chunk) error {
	vm.chunk = c
	vm.ip = 0
	vm.stack = vm.stack[:0]
	return vm.run()
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	hi := vm.chunk.Code[vm.ip]
	lo := vm.chunk.Code[vm.ip+1]
	vm.ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant() value.Value {
	return vm.chunk.Constants[vm.readByte()]
}

func (vm *VM) readString() *value.ObjString {
	return vm.readConstant().Obj.(*value.ObjString)
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	line := vm.chunk.LineAt(vm.ip - 1)
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("[%s:%d] %s", vm.chunk.FileName, line, msg)
}

func (vm *VM) run() error {
	for {
		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OP_CONSTANT:
			vm.push(vm.readConstant())

		case chunk.OP_NIL:
			vm.push(value.Nil())
		case chunk.OP_TRUE:
			vm.push(value.NewBool(true))
		case chunk.OP_FALSE:
			vm.push(value.NewBool(false))

		case chunk.OP_POP:
			vm.pop()

		case chunk.OP_GET_LOCAL:
			slot := vm.readByte()
			vm.push(vm.stack[slot])
		case chunk.OP_SET_LOCAL:
			slot := vm.readByte()
			vm.stack[slot] = vm.peek(0)

		case chunk.OP_DEFINE_GLOBAL:
			name := vm.readString()
			vm.globals[name.Chars] = vm.pop()
		case chunk.OP_GET_GLOBAL:
			name := vm.readString()
			v, ok := vm.globals[name.Chars]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OP_SET_GLOBAL:
			name := vm.readString()
			if _, ok := vm.globals[name.Chars]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name.Chars] = vm.peek(0)

		case chunk.OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Equal(a, b)))
		case chunk.OP_GREATER:
			if err := vm.binaryCompare(func(c int) bool { return c > 0 }); err != nil {
				return err
			}
		case chunk.OP_LESS:
			if err := vm.binaryCompare(func(c int) bool { return c < 0 }); err != nil {
				return err
			}

		case chunk.OP_ADD:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OP_SUBTRACT:
			if err := vm.binaryNumber(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.OP_MULTIPLY:
			if err := vm.binaryNumber(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.OP_DIVIDE:
			if vm.peek(0).Type == value.TypeNumber && vm.peek(0).Number == 0 {
				return vm.runtimeError("Division by zero.")
			}
			if err := vm.binaryNumber(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case chunk.OP_NOT:
			vm.push(value.NewBool(!vm.pop().Truthy()))
		case chunk.OP_NEGATE:
			if vm.peek(0).Type != value.TypeNumber {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.NewNumber(-vm.pop().Number))

		case chunk.OP_PRINT:
			fmt.Println(vm.pop().String())

		case chunk.OP_JUMP:
			offset := vm.readShort()
			vm.ip += int(offset)
		case chunk.OP_JUMP_IF_FALSE:
			offset := vm.readShort()
			if !vm.peek(0).Truthy() {
				vm.ip += int(offset)
			}
		case chunk.OP_LOOP:
			offset := vm.readShort()
			vm.ip -= int(offset)

		case chunk.OP_CLASS:
			name := vm.readString()
			vm.push(value.NewObject(vm.gc.AllocateClass(name, vm)))

		case chunk.OP_CALL:
			argCount := int(vm.readByte())
			if err := vm.call(argCount); err != nil {
				return err
			}

		case chunk.OP_GET_PROPERTY:
			name := vm.readString()
			instanceVal := vm.pop()
			instance, ok := instanceVal.Obj.(*value.ObjInstance)
			if !instanceVal.IsObject() || !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			v, ok := instance.Fields[name.Chars]
			if !ok {
				return vm.runtimeError("Undefined property '%s'.", name.Chars)
			}
			vm.push(v)

		case chunk.OP_SET_PROPERTY:
			name := vm.readString()
			v := vm.pop()
			instanceVal := vm.pop()
			instance, ok := instanceVal.Obj.(*value.ObjInstance)
			if !instanceVal.IsObject() || !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			instance.Fields[name.Chars] = v
			vm.push(v)

		case chunk.OP_ALLOCATE:
			if vm.peek(0).Type != value.TypeNumber {
				return vm.runtimeError("Operand must be a number.")
			}
			kilobytes := int(vm.pop().Number)
			vm.push(value.NewObject(vm.gc.AllocateBlock(kilobytes, vm)))

		case chunk.OP_RETURN:
			return nil

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

// call implements OP_CALL. The only callable value is a class, and
// calling it allocates a new instance; there is no
// method dispatch or constructor arity beyond zero.
func (vm *VM) call(argCount int) error {
	callee := vm.peek(argCount)
	class, ok := callee.Obj.(*value.ObjClass)
	if !callee.IsObject() || !ok {
		return vm.runtimeError("Can only call classes.")
	}
	if argCount != 0 {
		return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
	}
	instance := vm.gc.AllocateInstance(class, vm)
	vm.stack[len(vm.stack)-1-argCount] = value.NewObject(instance)
	return nil
}

func (vm *VM) binaryNumber(f func(a, b float64) float64) error {
	if vm.peek(0).Type != value.TypeNumber || vm.peek(1).Type != value.TypeNumber {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop()
	a := vm.pop()
	vm.push(value.NewNumber(f(a.Number, b.Number)))
	return nil
}

// binaryCompare implements GREATER/LESS, defined for numbers (numeric
// order) and strings (lexicographic order). f receives the sign of the
// three-way comparison: negative if a < b, positive if a > b, zero if
// equal.
func (vm *VM) binaryCompare(f func(sign int) bool) error {
	bVal, aVal := vm.peek(0), vm.peek(1)

	if aVal.Type == value.TypeNumber && bVal.Type == value.TypeNumber {
		vm.pop()
		vm.pop()
		vm.push(value.NewBool(f(sign(aVal.Number - bVal.Number))))
		return nil
	}

	aStr, aIsStr := aVal.Obj.(*value.ObjString)
	bStr, bIsStr := bVal.Obj.(*value.ObjString)
	if aVal.IsObject() && bVal.IsObject() && aIsStr && bIsStr {
		vm.pop()
		vm.pop()
		vm.push(value.NewBool(f(strings.Compare(aStr.Chars, bStr.Chars))))
		return nil
	}

	return vm.runtimeError("Operands must be two numbers or two strings.")
}

func sign(n float64) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// add implements the overloaded '+': numeric addition, or string
// concatenation when both operands are strings.
func (vm *VM) add() error {
	bVal, aVal := vm.peek(0), vm.peek(1)

	aStr, aIsStr := aVal.Obj.(*value.ObjString)
	bStr, bIsStr := bVal.Obj.(*value.ObjString)
	if aVal.IsObject() && bVal.IsObject() && aIsStr && bIsStr {
		vm.pop()
		vm.pop()
		concat := vm.gc.AllocateString(aStr.Chars+bStr.Chars, vm)
		vm.push(value.NewObject(concat))
		return nil
	}

	if aVal.Type == value.TypeNumber && bVal.Type == value.TypeNumber {
		vm.pop()
		vm.pop()
		vm.push(value.NewNumber(aVal.Number + bVal.Number))
		return nil
	}

	return vm.runtimeError("Operands must be two numbers or two strings.")
}
