// Package hir implements the desugared tree Component D produces from a
// typed AST (internal/tast): source-level sugar is eliminated, leaving a
// smaller set of constructs for internal/mir's SSA construction to
// consume. HIR keeps the same semantic structure as the typed AST it was
// lowered from (position.Span, ids.TypeId, ids.SymbolId throughout) but
// drops for-in/string-interpolation/array-comprehension sugar,
// inlines abstract methods and operator overloads, and collapses
// single-field abstract constructors, per §4.1.
//
// Pattern-matching switches are the one construct HIR does *not* lower
// further (§4.1 item 5): their patterns survive into HIR unchanged and
// are only turned into nested conditionals during HIR→MIR lowering
// (internal/mir, §4.2.3), since that lowering needs the target CFG
// shape MIR already owns.
package hir

import (
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
)

// Node is the base interface of every HIR node.
type Node interface {
	GetSpan() position.Span
}

// Expr is a HIR expression; every Expr carries its static TypeId.
type Expr interface {
	Node
	ExprType() ids.TypeId
	exprNode()
}

// Stmt is a HIR statement.
type Stmt interface {
	Node
	stmtNode()
}

// Decl is a HIR top-level or member declaration.
type Decl interface {
	Node
	declNode()
}

// File is one lowered source file.
type File struct {
	Span  position.Span
	Name  string
	Decls []Decl
}

func (f *File) GetSpan() position.Span { return f.Span }

// Param is a function parameter.
type Param struct {
	Span   position.Span
	Name   string
	Symbol ids.SymbolId
	Type   ids.TypeId
}

// FuncDecl is a free function, static method, or instance method, its
// body already desugared.
type FuncDecl struct {
	Span       position.Span
	Name       string
	Symbol     ids.SymbolId
	Params     []Param
	ReturnType ids.TypeId
	Body       *Block // nil for extern declarations (§4.3.1)
	IsStatic   bool
	IsExtern   bool
}

func (f *FuncDecl) GetSpan() position.Span { return f.Span }
func (*FuncDecl) declNode()                {}

// FieldDecl is an instance or static field of a class.
type FieldDecl struct {
	Span     position.Span
	Name     string
	Symbol   ids.SymbolId
	Type     ids.TypeId
	IsStatic bool
}

func (f *FieldDecl) GetSpan() position.Span { return f.Span }
func (*FieldDecl) declNode()                {}

// ClassDecl is an ordinary class.
type ClassDecl struct {
	Span       position.Span
	Name       string
	Symbol     ids.SymbolId
	Type       ids.TypeId
	Fields     []*FieldDecl
	Methods    []*FuncDecl
	Super      ids.SymbolId
	Interfaces []ids.SymbolId
}

func (c *ClassDecl) GetSpan() position.Span { return c.Span }
func (*ClassDecl) declNode()                {}

// EnumVariantDecl is one constructor of an enum.
type EnumVariantDecl struct {
	Span   position.Span
	Name   string
	Tag    uint32
	Fields []Param
}

// EnumDecl is an algebraic-data-type enum.
type EnumDecl struct {
	Span     position.Span
	Name     string
	Symbol   ids.SymbolId
	Type     ids.TypeId
	Variants []EnumVariantDecl
}

func (e *EnumDecl) GetSpan() position.Span { return e.Span }
func (*EnumDecl) declNode()                {}

// Block is a sequence of statements.
type Block struct {
	Span  position.Span
	Stmts []Stmt
}

func (b *Block) GetSpan() position.Span { return b.Span }
func (*Block) stmtNode()                {}

// Note: AbstractDecl does not survive into HIR. By the time lowering
// finishes, every abstract method call the source contained has either
// been inlined into its call site (§4.1) or reported as an error; the
// abstract declaration itself contributes nothing further downstream.
