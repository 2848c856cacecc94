package tast

import (
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
)

// Ident references a resolved symbol (local, parameter, or field via
// implicit this).
type Ident struct {
	Span   position.Span
	Name   string
	Symbol ids.SymbolId
	Type   ids.TypeId
}

func (e *Ident) GetSpan() position.Span { return e.Span }
func (e *Ident) ExprType() ids.TypeId   { return e.Type }
func (*Ident) exprNode()                {}

// LiteralKind enumerates constant literal forms.
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitBool
	LitString
	LitNull
)

// Literal is a constant value.
type Literal struct {
	Span   position.Span
	Kind   LiteralKind
	Type   ids.TypeId
	Int    int64
	Float  float64
	Bool   bool
	String string
}

func (e *Literal) GetSpan() position.Span { return e.Span }
func (e *Literal) ExprType() ids.TypeId   { return e.Type }
func (*Literal) exprNode()                {}

// BinOp enumerates source-level binary operators (before abstract
// operator-overload rewriting, §4.1).
type BinOp int

const (
	BAdd BinOp = iota
	BSub
	BMul
	BDiv
	BMod
	BEq
	BNe
	BLt
	BLe
	BGt
	BGe
)

// Binary is a binary expression; Type is the checker's resolved result type
// (which, for an abstract operand, is the abstract's declared method return
// type after the checker resolved @:op overload resolution).
type Binary struct {
	Span position.Span
	Op   BinOp
	LHS  Expr
	RHS  Expr
	Type ids.TypeId
	Meta Meta // carries Meta["op"] = "@:op(A+B)" style tag copied from the resolved abstract method, if any
}

func (e *Binary) GetSpan() position.Span { return e.Span }
func (e *Binary) ExprType() ids.TypeId   { return e.Type }
func (*Binary) exprNode()                {}

// UnOp enumerates source-level unary/increment/decrement operators.
type UnOp int

const (
	UNeg UnOp = iota
	UNot
	UBitNot
	UPreInc
	UPostInc
	UPreDec
	UPostDec
)

// Unary is a unary, increment, or decrement expression.
type Unary struct {
	Span    position.Span
	Op      UnOp
	Operand Expr
	Type    ids.TypeId
}

func (e *Unary) GetSpan() position.Span { return e.Span }
func (e *Unary) ExprType() ids.TypeId   { return e.Type }
func (*Unary) exprNode()                {}

// Call is a call to a free function or a resolved method symbol (the
// checker has already bound Callee to a SymbolId when possible).
type Call struct {
	Span       position.Span
	Callee     ids.SymbolId // InvalidSymbol if CalleeExpr must be used (indirect call)
	CalleeExpr Expr         // non-nil for calls through a closure value
	Args       []Expr
	Type       ids.TypeId
}

func (e *Call) GetSpan() position.Span { return e.Span }
func (e *Call) ExprType() ids.TypeId   { return e.Type }
func (*Call) exprNode()                {}

// MethodCall is `recv.Method(args)`; MethodSym is InvalidSymbol when the
// checker could only resolve the method by name (receiver widened to
// Dynamic -- forcing the §4.1 cross-abstract name search).
type MethodCall struct {
	Span      position.Span
	Receiver  Expr
	Method    string
	MethodSym ids.SymbolId
	Args      []Expr
	Type      ids.TypeId
}

func (e *MethodCall) GetSpan() position.Span { return e.Span }
func (e *MethodCall) ExprType() ids.TypeId   { return e.Type }
func (*MethodCall) exprNode()                {}

// New is a constructor invocation `new T(args)`.
type New struct {
	Span  position.Span
	Class ids.SymbolId
	Args  []Expr
	Type  ids.TypeId
}

func (e *New) GetSpan() position.Span { return e.Span }
func (e *New) ExprType() ids.TypeId   { return e.Type }
func (*New) exprNode()                {}

// ArrayAccess is `a[i]` (read form).
type ArrayAccess struct {
	Span  position.Span
	Array Expr
	Index Expr
	Type  ids.TypeId
}

func (e *ArrayAccess) GetSpan() position.Span { return e.Span }
func (e *ArrayAccess) ExprType() ids.TypeId   { return e.Type }
func (*ArrayAccess) exprNode()                {}

// StringInterp is `"pre${expr}post..."`: Parts alternates literal text and
// embedded expressions, recorded in source order.
type StringInterp struct {
	Span     position.Span
	Literals []string // len(Literals) == len(Exprs)+1
	Exprs    []Expr
	Type     ids.TypeId
}

func (e *StringInterp) GetSpan() position.Span { return e.Span }
func (e *StringInterp) ExprType() ids.TypeId   { return e.Type }
func (*StringInterp) exprNode()                {}

// ArrayComprehension is `[for (x in xs) expr]` with an optional filter
// (`[for (x in xs) if (cond) expr]`).
type ArrayComprehension struct {
	Span     position.Span
	VarName  string
	VarSym   ids.SymbolId
	Iterable Expr
	Filter   Expr // nil if absent
	Elem     Expr
	Type     ids.TypeId
}

func (e *ArrayComprehension) GetSpan() position.Span { return e.Span }
func (e *ArrayComprehension) ExprType() ids.TypeId   { return e.Type }
func (*ArrayComprehension) exprNode()                {}

// IfExpr is a conditional expression with a value (both branches required).
type IfExpr struct {
	Span position.Span
	Cond Expr
	Then Expr
	Else Expr
	Type ids.TypeId
}

func (e *IfExpr) GetSpan() position.Span { return e.Span }
func (e *IfExpr) ExprType() ids.TypeId   { return e.Type }
func (*IfExpr) exprNode()                {}

// Lambda is a closure literal; FreeVars is left for the HIR lowerer to
// compute (§4.2.4) -- the checker does not need to report it.
type Lambda struct {
	Span   position.Span
	Params []Param
	Body   *Block
	Type   ids.TypeId // Function type
}

func (e *Lambda) GetSpan() position.Span { return e.Span }
func (e *Lambda) ExprType() ids.TypeId   { return e.Type }
func (*Lambda) exprNode()                {}

// BlockExpr wraps a Block used in expression position (e.g. the desugared
// body of an array comprehension).
type BlockExpr struct {
	Span position.Span
	Body *Block
	Type ids.TypeId
}

func (e *BlockExpr) GetSpan() position.Span { return e.Span }
func (e *BlockExpr) ExprType() ids.TypeId   { return e.Type }
func (*BlockExpr) exprNode()                {}
