package compiler

import "loxvm/internal/token"

// precedence orders binding strength low to high. Each binary
// operator's infix rule recurses at precedence+1 for
// left-associativity.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is the static Pratt table: a plain map indexed by token kind
// rather than a pair of registration functions invoked at init time.
var rules = map[token.TokenType]parseRule{
	token.LPAREN:        {grouping, call, precCall},
	token.DOT:           {nil, dot, precCall},
	token.MINUS:         {unary, binary, precTerm},
	token.PLUS:          {nil, binary, precTerm},
	token.SLASH:         {nil, binary, precFactor},
	token.STAR:          {nil, binary, precFactor},
	token.BANG:          {unary, nil, precNone},
	token.BANG_EQUAL:    {nil, binary, precEquality},
	token.ASSIGN:        {nil, nil, precNone},
	token.EQUAL_EQUAL:   {nil, binary, precEquality},
	token.GREATER:       {nil, binary, precComparison},
	token.GREATER_EQUAL: {nil, binary, precComparison},
	token.LESS:          {nil, binary, precComparison},
	token.LESS_EQUAL:    {nil, binary, precComparison},
	token.IDENTIFIER:    {variable, nil, precNone},
	token.STRING:        {str, nil, precNone},
	token.NUMBER:        {number, nil, precNone},
	token.AND:           {nil, and_, precAnd},
	token.OR:            {nil, or_, precOr},
	token.FALSE:         {literal, nil, precNone},
	token.TRUE:          {literal, nil, precNone},
	token.NIL:           {literal, nil, precNone},
	token.ALLOCATE:      {allocate, nil, precNone},
}
