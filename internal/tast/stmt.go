package tast

import (
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
)

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	Span position.Span
	X    Expr
}

func (s *ExprStmt) GetSpan() position.Span { return s.Span }
func (*ExprStmt) stmtNode()                {}

// VarDecl declares and initializes a local.
type VarDecl struct {
	Span   position.Span
	Name   string
	Symbol ids.SymbolId
	Type   ids.TypeId
	Init   Expr // nil for an uninitialized declaration
}

func (s *VarDecl) GetSpan() position.Span { return s.Span }
func (*VarDecl) stmtNode()                {}

// Assign is `lhs = rhs`, where lhs is an Ident, a field-access MethodCall
// result, or an ArrayAccessSet target.
type Assign struct {
	Span position.Span
	LHS  Expr
	RHS  Expr
}

func (s *Assign) GetSpan() position.Span { return s.Span }
func (*Assign) stmtNode()                {}

// ArrayAccessSet is `a[i] = v` (write form), kept distinct from Assign since
// it desugars to `a.set(i, v)` under §4.1 rather than an ordinary store.
type ArrayAccessSet struct {
	Span  position.Span
	Array Expr
	Index Expr
	Value Expr
}

func (s *ArrayAccessSet) GetSpan() position.Span { return s.Span }
func (*ArrayAccessSet) stmtNode()                {}

// If is a statement-form conditional.
type If struct {
	Span position.Span
	Cond Expr
	Then *Block
	Else *Block // nil if absent; may itself contain a single If for else-if chains
}

func (s *If) GetSpan() position.Span { return s.Span }
func (*If) stmtNode()                {}

// While is a pre-tested loop.
type While struct {
	Span position.Span
	Cond Expr
	Body *Block
}

func (s *While) GetSpan() position.Span { return s.Span }
func (*While) stmtNode()                {}

// DoWhile is a post-tested loop.
type DoWhile struct {
	Span position.Span
	Body *Block
	Cond Expr
}

func (s *DoWhile) GetSpan() position.Span { return s.Span }
func (*DoWhile) stmtNode()                {}

// ForIn is `for (x in iterable) body`; the checker has already verified
// `iterable` exposes `hasNext()/next()` or is an array/range.
type ForIn struct {
	Span     position.Span
	VarName  string
	VarSym   ids.SymbolId
	VarType  ids.TypeId
	Iterable Expr
	Body     *Block
}

func (s *ForIn) GetSpan() position.Span { return s.Span }
func (*ForIn) stmtNode()                {}

// Return optionally carries a value.
type Return struct {
	Span  position.Span
	Value Expr // nil for `return;`
}

func (s *Return) GetSpan() position.Span { return s.Span }
func (*Return) stmtNode()                {}

// Break exits the nearest enclosing loop or switch.
type Break struct{ Span position.Span }

func (s *Break) GetSpan() position.Span { return s.Span }
func (*Break) stmtNode()                {}

// Continue jumps to the nearest enclosing loop's update/condition test.
type Continue struct{ Span position.Span }

func (s *Continue) GetSpan() position.Span { return s.Span }
func (*Continue) stmtNode()                {}

// Throw raises an exception value.
type Throw struct {
	Span  position.Span
	Value Expr
}

func (s *Throw) GetSpan() position.Span { return s.Span }
func (*Throw) stmtNode()                {}

// Try runs Body, routing any exception whose value matches CaughtType to
// CatchVar/CatchBody.
type Try struct {
	Span       position.Span
	Body       *Block
	CaughtType ids.TypeId
	CatchVar   string
	CatchSym   ids.SymbolId
	CatchBody  *Block
}

func (s *Try) GetSpan() position.Span { return s.Span }
func (*Try) stmtNode()                {}

// Switch is a pattern-matching switch over Scrutinee.
type Switch struct {
	Span       position.Span
	Scrutinee  Expr
	Arms       []SwitchArm
	Exhaustive bool // the checker's verdict on whether a default/else is required
}

func (s *Switch) GetSpan() position.Span { return s.Span }
func (*Switch) stmtNode()                {}

// SwitchArm is one `case pattern [if guard]: body` arm.
type SwitchArm struct {
	Pattern Pattern
	Guard   Expr // nil if absent
	Body    *Block
}

// PatternKind enumerates the pattern forms of §4.2.3.
type PatternKind int

const (
	PatWildcard PatternKind = iota
	PatLiteral
	PatBind
	PatConstructor
	PatTuple
	PatOr
)

// Pattern is a recursive match pattern.
type Pattern struct {
	Span     position.Span
	Kind     PatternKind
	Literal  *Literal     // PatLiteral
	BindSym  ids.SymbolId // PatBind (and the bound var inside PatConstructor fields)
	BindName string
	Ctor     string    // PatConstructor: enum variant name
	CtorTag  uint32    // PatConstructor: variant discriminant, resolved by the checker
	Sub      []Pattern // PatConstructor fields / PatTuple elements
	Alts     []Pattern // PatOr alternatives
	Type     ids.TypeId
}
