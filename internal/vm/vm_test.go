package vm

import (
	"strings"
	"testing"

	"loxvm/internal/compiler"
	"loxvm/internal/gc"
)

func run(t *testing.T, source string) error {
	t.Helper()
	collector := gc.New(nil)
	c, err := compiler.Compile(source, "<test>", collector)
	if err != nil {
		t.Fatalf("compile error for %q: %v", source, err)
	}
	return New(collector, nil).Interpret(c)
}

func TestArithmeticAndPrecedence(t *testing.T) {
	if err := run(t, `print 2 * (5 + 10) + 1;`); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestGlobalsRoundTrip(t *testing.T) {
	if err := run(t, `var a = 1; a = a + 1; print a;`); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestControlFlowWithLocals(t *testing.T) {
	source := `
	var total = 0;
	for (var i = 0; i < 5; i = i + 1) {
		total = total + i;
	}
	print total;
	`
	if err := run(t, source); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestClassInstantiationAndFields(t *testing.T) {
	source := `
	class Box {}
	var b = Box();
	b.value = 42;
	print b.value;
	`
	if err := run(t, source); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestStringConcatenation(t *testing.T) {
	if err := run(t, `print "foo" + "bar";`); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestDivideByZeroIsARuntimeError(t *testing.T) {
	err := run(t, `print 1 / 0;`)
	if err == nil || !strings.Contains(err.Error(), "Division by zero") {
		t.Fatalf("expected division by zero error, got %v", err)
	}
}

func TestUndefinedVariableIsARuntimeError(t *testing.T) {
	err := run(t, `print nope;`)
	if err == nil || !strings.Contains(err.Error(), "Undefined variable") {
		t.Fatalf("expected undefined variable error, got %v", err)
	}
}

func TestUndefinedPropertyIsARuntimeError(t *testing.T) {
	err := run(t, `class Box {} var b = Box(); print b.missing;`)
	if err == nil || !strings.Contains(err.Error(), "Undefined property") {
		t.Fatalf("expected undefined property error, got %v", err)
	}
}

func TestCallingNonClassIsARuntimeError(t *testing.T) {
	err := run(t, `var x = 1; x();`)
	if err == nil || !strings.Contains(err.Error(), "Can only call classes") {
		t.Fatalf("expected call-target error, got %v", err)
	}
}

func TestStringOrderingIsLexicographic(t *testing.T) {
	if err := run(t, `print "abc" < "abd";`); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestAllocateProducesAllocationObject(t *testing.T) {
	if err := run(t, `print allocate(4);`); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}

func TestAllocateNonNumberIsARuntimeError(t *testing.T) {
	err := run(t, `allocate("four");`)
	if err == nil || !strings.Contains(err.Error(), "Operand must be a number") {
		t.Fatalf("expected operand type error, got %v", err)
	}
}

func TestAddingIncompatibleTypesIsARuntimeError(t *testing.T) {
	err := run(t, `print 1 + "a";`)
	if err == nil || !strings.Contains(err.Error(), "Operands must be") {
		t.Fatalf("expected operand type error, got %v", err)
	}
}

func TestRuntimeErrorIncludesFileAndLine(t *testing.T) {
	err := run(t, "print 1;\nprint 1/0;\n")
	if err == nil || !strings.Contains(err.Error(), "<test>:2") {
		t.Fatalf("expected error to cite file:line, got %v", err)
	}
}

func TestGCSoakKeepsInterpreterCorrect(t *testing.T) {
	var b strings.Builder
	b.WriteString("var total = 0;\n")
	b.WriteString("for (var i = 0; i < 2000; i = i + 1) {\n")
	b.WriteString("  class Scratch {}\n")
	b.WriteString("  var s = Scratch();\n")
	b.WriteString("  s.n = i;\n")
	b.WriteString("  total = total + s.n;\n")
	b.WriteString("}\n")
	b.WriteString("print total;\n")

	collector := gc.New(nil)
	c, err := compiler.Compile(b.String(), "<test>", collector)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := New(collector, nil).Interpret(c); err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
}
