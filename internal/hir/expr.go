package hir

import (
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
)

// Ident references a resolved symbol.
type Ident struct {
	Span   position.Span
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

// BinOp enumerates the arithmetic/comparison operators that survive into
// HIR (abstract @:op overloads have already been rewritten to Call/
// MethodCall by §4.1's operator-overload rewrite).
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

// Binary is a binary expression over two non-abstract operands.
type Binary struct {
	Span position.Span
	Op   BinOp
	LHS  Expr
	RHS  Expr
	Type ids.TypeId
}

func (e *Binary) GetSpan() position.Span { return e.Span }
func (e *Binary) ExprType() ids.TypeId   { return e.Type }
func (*Binary) exprNode()                {}

// UnOp enumerates unary/increment/decrement operators.
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

// Call is a call to a free function, static method, or a closure value
// (CalleeExpr non-nil).
type Call struct {
	Span       position.Span
	Callee     ids.SymbolId
	CalleeExpr Expr
	Args       []Expr
	Type       ids.TypeId
}

func (e *Call) GetSpan() position.Span { return e.Span }
func (e *Call) ExprType() ids.TypeId   { return e.Type }
func (*Call) exprNode()                {}

// MethodCall is `recv.Method(args)` on a non-abstract, non-inlined
// method. Abstract-method calls never reach HIR as a MethodCall -- they
// are either inlined away or become an ordinary call after collapse.
// MethodSym is InvalidSymbol when only the name could be resolved (the
// receiver was widened to Dynamic); HIR→MIR lowering's stdlib mapping
// table (§4.2.7) consults (receiver type, Method) first and otherwise
// calls the function named `<receiver type>.<Method>`; MethodSym is not
// consulted.
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

// New is a constructor invocation `new T(args)`. Per §4.1's
// abstract-constructor collapse, a `new Abstract(v)` never reaches HIR
// as a New -- it is replaced by the Expr for v directly.
type New struct {
	Span  position.Span
	Class ids.SymbolId
	Args  []Expr
	Type  ids.TypeId
}

func (e *New) GetSpan() position.Span { return e.Span }
func (e *New) ExprType() ids.TypeId   { return e.Type }
func (*New) exprNode()                {}

// ArrayGet is `a[i]` after §4.1's @:arrayAccess rewrite collapses plain
// array reads and abstract get-overloads to the same shape. HIR→MIR
// lowering calls the rt_array_get extern when the module declares it and
// otherwise reads the element through GetElementPtr and Load.
type ArrayGet struct {
	Span  position.Span
	Array Expr
	Index Expr
	Type  ids.TypeId
}

func (e *ArrayGet) GetSpan() position.Span { return e.Span }
func (e *ArrayGet) ExprType() ids.TypeId   { return e.Type }
func (*ArrayGet) exprNode()                {}

// Lambda is a closure literal. FreeVars is computed during HIR→MIR
// lowering's capture analysis (§4.2.4), not here: HIR lowering only
// needs to preserve the body verbatim (after the same desugarings
// applied to every other function body).
type Lambda struct {
	Span   position.Span
	Params []Param
	Body   *Block
	Type   ids.TypeId
}

func (e *Lambda) GetSpan() position.Span { return e.Span }
func (e *Lambda) ExprType() ids.TypeId   { return e.Type }
func (*Lambda) exprNode()                {}

// NewArray is an empty array literal `[]`; the stdlib mapping table
// (§4.2.7) resolves it to the runtime's array-allocation extern during
// HIR→MIR lowering.
type NewArray struct {
	Span     position.Span
	ElemType ids.TypeId
	Type     ids.TypeId
}

func (e *NewArray) GetSpan() position.Span { return e.Span }
func (e *NewArray) ExprType() ids.TypeId   { return e.Type }
func (*NewArray) exprNode()                {}

// BlockExpr wraps a statement sequence used in expression position: the
// desugared body of an array comprehension (§4.1 item 4) is the
// canonical producer, binding a temporary, running a loop that mutates
// it, then yielding it as Result.
type BlockExpr struct {
	Span   position.Span
	Stmts  []Stmt
	Result Expr
	Type   ids.TypeId
}

func (e *BlockExpr) GetSpan() position.Span { return e.Span }
func (e *BlockExpr) ExprType() ids.TypeId   { return e.Type }
func (*BlockExpr) exprNode()                {}

// IfExpr is a conditional expression with a value; both branches are
// required.
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

// ErrorExpr is emitted in place of an expression HIR lowering could not
// resolve (§4.1 failure modes): an abstract method call whose target
// could not be found by symbol id or by name. It preserves Type so later
// passes keep type-checking the surrounding expression rather than
// cascading unrelated errors.
type ErrorExpr struct {
	Span    position.Span
	Message string
	Type    ids.TypeId
}

func (e *ErrorExpr) GetSpan() position.Span { return e.Span }
func (e *ErrorExpr) ExprType() ids.TypeId   { return e.Type }
func (*ErrorExpr) exprNode()                {}
