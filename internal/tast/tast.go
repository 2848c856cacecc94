// Package tast defines the typed-AST surface that the type checker (out of
// scope, §1) hands to TAST→HIR lowering (§4.1). Every node already carries a
// resolved ids.TypeId and, where applicable, an ids.SymbolId; the metadata
// bag stands in for Haxe compiler metadata such as @:op, @:arrayAccess,
// @:native, and @:inline.
//
// This package has no parsing logic of its own -- it is the shape a real
// type-checker host constructs values of, modeled on the node-interface
// style of the teacher's ast package (Node/Statement/Expression/Declaration
// marker interfaces plus a position.Span on every node).
package tast

import (
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
)

// Node is the base interface implemented by every typed-AST node.
type Node interface {
	GetSpan() position.Span
}

// Expr is any typed expression node; every Expr carries its static TypeId.
type Expr interface {
	Node
	ExprType() ids.TypeId
	exprNode()
}

// Stmt is any typed statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Decl is any top-level or class-member declaration.
type Decl interface {
	Node
	declNode()
}

// File is one compiled source file's typed AST.
type File struct {
	Span  position.Span
	Name  string
	Decls []Decl
}

func (f *File) GetSpan() position.Span { return f.Span }

// Meta is the compiler-metadata bag attached to declarations and operator
// methods: keys like "op", "arrayAccess", "native", "inline" map to their
// argument text (e.g. Meta{"op": "A+B"}).
type Meta map[string]string

// Param is a function parameter, already resolved to a TypeId and backing
// SymbolId.
type Param struct {
	Span   position.Span
	Name   string
	Symbol ids.SymbolId
	Type   ids.TypeId
}

// FuncDecl is a free function, static method, or instance method.
type FuncDecl struct {
	Span       position.Span
	Name       string
	Symbol     ids.SymbolId
	Params     []Param
	ReturnType ids.TypeId
	Body       *Block // nil for extern declarations
	Meta       Meta
	IsStatic   bool
	IsInline   bool
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

// ClassDecl is an ordinary class: fields in source order, methods in source
// order, and an optional superclass symbol.
type ClassDecl struct {
	Span       position.Span
	Name       string
	Symbol     ids.SymbolId
	Type       ids.TypeId
	Fields     []*FieldDecl
	Methods    []*FuncDecl
	Super      ids.SymbolId // InvalidSymbol if none
	Interfaces []ids.SymbolId
}

func (c *ClassDecl) GetSpan() position.Span { return c.Span }
func (*ClassDecl) declNode()                {}

// EnumVariantDecl is one constructor of an enum.
type EnumVariantDecl struct {
	Span   position.Span
	Name   string
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

// AbstractDecl is a zero-cost abstract wrapping Underlying, carrying its
// inline methods (including @:op/@:arrayAccess-tagged operator overloads).
type AbstractDecl struct {
	Span       position.Span
	Name       string
	Symbol     ids.SymbolId
	Type       ids.TypeId
	Underlying ids.TypeId
	Methods    []*FuncDecl // each may carry Meta["op"] / Meta["arrayAccess"]
}

func (a *AbstractDecl) GetSpan() position.Span { return a.Span }
func (*AbstractDecl) declNode()                {}

// Block is a sequence of statements.
type Block struct {
	Span  position.Span
	Stmts []Stmt
}

func (b *Block) GetSpan() position.Span { return b.Span }
func (*Block) stmtNode()                {}
