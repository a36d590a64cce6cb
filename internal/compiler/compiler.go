// Package compiler implements a single-pass Pratt compiler: scanning,
// parsing, and bytecode emission are fused into one pass with no
// separate AST or IR.
package compiler

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/slices"

	"loxvm/internal/chunk"
	"loxvm/internal/gc"
	"loxvm/internal/lexer"
	"loxvm/internal/token"
	"loxvm/internal/value"
)

// local tracks one stack-resident variable in the compiler's scope
// stack.
type local struct {
	name  string
	depth int // -1 while the initializer of its own declaration is compiling
}

// loop records the start offset and enclosing local count of a `while`
// loop; whileStatement pushes and pops one, and nothing reads it back.
type loop struct {
	start           int
	enclosingLocals int
}

// Compiler holds all state for one compilation unit. There is exactly
// one per Compile call: this core has no function declarations, so
// compiler instances never nest inside one another.
type Compiler struct {
	lex *lexer.Lexer
	gc  *gc.Collector

	current  token.Token
	previous token.Token

	chunk *chunk.Chunk

	locals     []local
	scopeDepth int
	loops      []*loop

	errors    []string
	panicMode bool
}

// Compile scans and compiles source in one pass, returning the
// top-level chunk ready for the interpreter. Every error encountered is
// collected and reported together; a non-nil error return means the
// chunk must not be run.
func Compile(source, fileName string, collector *gc.Collector) (*chunk.Chunk, error) {
	c := &Compiler{
		lex:   lexer.New(source),
		gc:    collector,
		chunk: chunk.New(),
	}
	c.chunk.FileName = fileName

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.emitByte(byte(chunk.OP_RETURN))

	if len(c.errors) > 0 {
		msg := c.errors[0]
		for _, e := range c.errors[1:] {
			msg += "\n" + e
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return c.chunk, nil
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Literal)
	}
}

func (c *Compiler) check(t token.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t token.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) error(message string)          { c.errorAt(c.previous, message) }

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.errors = append(c.errors, fmt.Sprintf("[line %d] Error: %s", tok.Line, message))
}

// synchronize discards tokens until a likely statement boundary, so one
// compile error doesn't cascade into a wall of spurious ones.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.previous.Type == token.SEMICOLON {
			return
		}
		switch c.current.Type {
		case token.CLASS, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- bytecode emission -------------------------------------------------

func (c *Compiler) emitByte(b byte) { c.chunk.Write(b, c.previous.Line) }

func (c *Compiler) emitBytes(a, b byte) {
	c.emitByte(a)
	c.emitByte(b)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.chunk.AddConstant(v)
	if idx > chunk.MaxConstants-1 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitBytes(byte(chunk.OP_CONSTANT), c.makeConstant(v))
}

// internString allocates a fresh heap ObjString for an identifier/literal
// (equal strings are not deduplicated) and wraps it as a constant-pool
// Value. Compile-time allocations pass a
// nil RootProvider: no interpreter stack exists yet to root against, so
// the collector defers collection until interpretation begins.
func (c *Compiler) internString(s string) value.Value {
	return value.NewObject(c.gc.AllocateString(s, nil))
}

// emitJump writes a two-operand-byte placeholder jump and returns the
// offset to later patch.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk.Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk.Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}
	c.chunk.Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk.Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(byte(chunk.OP_LOOP))
	offset := len(c.chunk.Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- scope / locals -----------------------------------------------------

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitByte(byte(chunk.OP_POP))
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// maxLocals is the per-scope-chain cap on live locals: resolveLocal's
// index is carried in a single operand byte by GET_LOCAL/SET_LOCAL, so
// a 257th local would silently wrap into another slot's index.
const maxLocals = 256

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= maxLocals {
		c.error("Too many local variables in scope.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal finds name in the innermost enclosing scope, searching
// from the most recently declared local outward (shadowing). Uses
// slices.IndexFunc over a reversed view so later declarations win.
func (c *Compiler) resolveLocal(name string) int {
	reversed := make([]local, len(c.locals))
	for i, l := range c.locals {
		reversed[len(c.locals)-1-i] = l
	}
	idx := slices.IndexFunc(reversed, func(l local) bool { return l.name == name })
	if idx == -1 {
		return -1
	}
	original := len(c.locals) - 1 - idx
	if c.locals[original].depth == -1 {
		c.error("Can't read local variable in its own initializer.")
	}
	return original
}

// parseVariable consumes an identifier and returns either a global-name
// constant index (scopeDepth == 0) or 0, which defineVariable ignores,
// if it was declared as a local.
func (c *Compiler) parseVariable(message string) byte {
	c.consume(token.IDENTIFIER, message)
	name := c.previous.Literal

	if c.scopeDepth > 0 {
		c.declareVariable(name)
		return 0
	}
	return c.makeConstant(c.internString(name))
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(chunk.OP_DEFINE_GLOBAL), global)
}

// --- declarations / statements -------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENTIFIER, "Expect class name.")
	name := c.previous.Literal
	nameConstant := c.makeConstant(c.internString(name))

	if c.scopeDepth > 0 {
		c.declareVariable(name)
	}

	c.emitBytes(byte(chunk.OP_CLASS), nameConstant)
	c.defineClassBinding(nameConstant)

	c.consume(token.LBRACE, "Expect '{' before class body.")
	c.consume(token.RBRACE, "Expect '}' after class body.")
}

// defineClassBinding binds the freshly pushed class object to its name,
// reusing defineVariable's global/local split.
func (c *Compiler) defineClassBinding(nameConstant byte) {
	c.defineVariable(nameConstant)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.ASSIGN) {
		c.expression()
	} else {
		c.emitByte(byte(chunk.OP_NIL))
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitByte(byte(chunk.OP_PRINT))
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitByte(byte(chunk.OP_POP))
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OP_JUMP_IF_FALSE)
	c.emitByte(byte(chunk.OP_POP))
	c.statement()

	elseJump := c.emitJump(chunk.OP_JUMP)
	c.patchJump(thenJump)
	c.emitByte(byte(chunk.OP_POP))

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	c.loops = append(c.loops, &loop{start: loopStart, enclosingLocals: len(c.locals)})

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OP_JUMP_IF_FALSE)
	c.emitByte(byte(chunk.OP_POP))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(chunk.OP_POP))
	c.loops = c.loops[:len(c.loops)-1]
}

// forStatement desugars `for (init; cond; incr) body` into the
// equivalent while-loop bytecode.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk.Code)
	exitJump := -1
	if !c.check(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OP_JUMP_IF_FALSE)
		c.emitByte(byte(chunk.OP_POP))
	} else {
		c.advance()
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(chunk.OP_JUMP)
		incrementStart := len(c.chunk.Code)
		c.expression()
		c.emitByte(byte(chunk.OP_POP))
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.advance()
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(byte(chunk.OP_POP))
	}

	c.endScope()
}

// --- expressions (Pratt parsing) -----------------------------------------

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	rule := rules[c.previous.Type]
	if rule.prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := p <= precAssignment
	rule.prefix(c, canAssign)

	for p <= rules[c.current.Type].precedence {
		c.advance()
		infix := rules[c.previous.Type].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.ASSIGN) {
		c.error("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	n, err := strconv.ParseFloat(c.previous.Literal, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.NewNumber(n))
}

func str(c *Compiler, _ bool) {
	c.emitConstant(c.internString(c.previous.Literal))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Type {
	case token.FALSE:
		c.emitByte(byte(chunk.OP_FALSE))
	case token.TRUE:
		c.emitByte(byte(chunk.OP_TRUE))
	case token.NIL:
		c.emitByte(byte(chunk.OP_NIL))
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

// allocate compiles `allocate(<expr>)`: the parenthesized expression
// pushes the requested block size in kilobytes, and OP_ALLOCATE pops it
// and pushes the resulting allocation object.
func allocate(c *Compiler, _ bool) {
	c.consume(token.LPAREN, "Expect '(' after 'allocate'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after allocation size.")
	c.emitByte(byte(chunk.OP_ALLOCATE))
}

func unary(c *Compiler, _ bool) {
	opType := c.previous.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case token.MINUS:
		c.emitByte(byte(chunk.OP_NEGATE))
	case token.BANG:
		c.emitByte(byte(chunk.OP_NOT))
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.previous.Type
	rule := rules[opType]
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case token.PLUS:
		c.emitByte(byte(chunk.OP_ADD))
	case token.MINUS:
		c.emitByte(byte(chunk.OP_SUBTRACT))
	case token.STAR:
		c.emitByte(byte(chunk.OP_MULTIPLY))
	case token.SLASH:
		c.emitByte(byte(chunk.OP_DIVIDE))
	case token.EQUAL_EQUAL:
		c.emitByte(byte(chunk.OP_EQUAL))
	case token.BANG_EQUAL:
		c.emitBytes(byte(chunk.OP_EQUAL), byte(chunk.OP_NOT))
	case token.GREATER:
		c.emitByte(byte(chunk.OP_GREATER))
	case token.GREATER_EQUAL:
		c.emitBytes(byte(chunk.OP_LESS), byte(chunk.OP_NOT))
	case token.LESS:
		c.emitByte(byte(chunk.OP_LESS))
	case token.LESS_EQUAL:
		c.emitBytes(byte(chunk.OP_GREATER), byte(chunk.OP_NOT))
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OP_JUMP_IF_FALSE)
	c.emitByte(byte(chunk.OP_POP))
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OP_JUMP_IF_FALSE)
	endJump := c.emitJump(chunk.OP_JUMP)
	c.patchJump(elseJump)
	c.emitByte(byte(chunk.OP_POP))
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	name := c.previous.Literal
	local := c.resolveLocal(name)

	var getOp, setOp chunk.OpCode
	var arg byte
	if local != -1 {
		getOp, setOp = chunk.OP_GET_LOCAL, chunk.OP_SET_LOCAL
		arg = byte(local)
	} else {
		getOp, setOp = chunk.OP_GET_GLOBAL, chunk.OP_SET_GLOBAL
		arg = c.makeConstant(c.internString(name))
	}

	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitBytes(byte(setOp), arg)
	} else {
		c.emitBytes(byte(getOp), arg)
	}
}

// call compiles a call expression. The only shape this core supports is
// instantiating a class, so OP_CALL always finds a class on top of the
// stack at runtime. The argument list is still parsed so `Box(1, 2)`
// reports a clear arity error rather than a parse error.
func call(c *Compiler, _ bool) {
	argCount := argumentList(c)
	c.emitBytes(byte(chunk.OP_CALL), argCount)
}

func argumentList(c *Compiler) byte {
	count := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	if count > 255 {
		c.error("Can't have more than 255 arguments.")
	}
	return byte(count)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := c.makeConstant(c.internString(c.previous.Literal))

	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitBytes(byte(chunk.OP_SET_PROPERTY), name)
	} else {
		c.emitBytes(byte(chunk.OP_GET_PROPERTY), name)
	}
}
