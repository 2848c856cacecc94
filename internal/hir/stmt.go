package hir

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

// VarDecl declares and optionally initializes a local.
type VarDecl struct {
	Span   position.Span
	Name   string
	Symbol ids.SymbolId
	Type   ids.TypeId
	Init   Expr
}

func (s *VarDecl) GetSpan() position.Span { return s.Span }
func (*VarDecl) stmtNode()                {}

// Assign is `lhs = rhs`.
type Assign struct {
	Span position.Span
	LHS  Expr
	RHS  Expr
}

func (s *Assign) GetSpan() position.Span { return s.Span }
func (*Assign) stmtNode()                {}

// ArraySet is `a[i] = v` after the §4.1 @:arrayAccess set-overload
// rewrite collapsed plain writes and abstract set-overloads together.
type ArraySet struct {
	Span  position.Span
	Array Expr
	Index Expr
	Value Expr
}

func (s *ArraySet) GetSpan() position.Span { return s.Span }
func (*ArraySet) stmtNode()                {}

// If is a statement-form conditional. Else is nil if absent; an
// else-if chain is represented by a single If statement inside Else.
type If struct {
	Span position.Span
	Cond Expr
	Then *Block
	Else *Block
}

func (s *If) GetSpan() position.Span { return s.Span }
func (*If) stmtNode()                {}

// While is a pre-tested loop. For-in loops are rewritten into this form
// during HIR lowering (§4.1 item 1): the iterator expression is
// evaluated once into a VarDecl preceding the While, and Cond/Body
// encode the hasNext()/next() protocol.
type While struct {
	Span position.Span
	Cond Expr
	Body *Block
}

func (s *While) GetSpan() position.Span { return s.Span }
func (*While) stmtNode()                {}

// DoWhile is a post-tested loop, kept as its own construct (rather than
// desugared to While) because its CFG shape -- body executes before the
// first condition test -- is a distinct primitive for §4.2.2.
type DoWhile struct {
	Span position.Span
	Body *Block
	Cond Expr
}

func (s *DoWhile) GetSpan() position.Span { return s.Span }
func (*DoWhile) stmtNode()                {}

// Return optionally carries a value.
type Return struct {
	Span  position.Span
	Value Expr
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
// CatchSym/CatchBody (§4.2.2's landing-pad CFG shape).
type Try struct {
	Span       position.Span
	Body       *Block
	CaughtType ids.TypeId
	CatchSym   ids.SymbolId
	CatchBody  *Block
}

func (s *Try) GetSpan() position.Span { return s.Span }
func (*Try) stmtNode()                {}

// Switch is a pattern-matching switch over Scrutinee, preserved
// unlowered into HIR per §4.1 item 5.
type Switch struct {
	Span       position.Span
	Scrutinee  Expr
	Arms       []SwitchArm
	Exhaustive bool
}

func (s *Switch) GetSpan() position.Span { return s.Span }
func (*Switch) stmtNode()                {}

// SwitchArm is one `case pattern [if guard]: body` arm.
type SwitchArm struct {
	Pattern Pattern
	Guard   Expr
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
	Span    position.Span
	Kind    PatternKind
	Literal *Literal
	BindSym ids.SymbolId
	Ctor    string
	CtorTag uint32
	Sub     []Pattern
	Alts    []Pattern
	Type    ids.TypeId
}
