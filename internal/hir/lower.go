package hir

import (
	"fmt"

	"github.com/bladec-lang/bladec/internal/diagnostic"
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/position"
	"github.com/bladec-lang/bladec/internal/tast"
)

// Lowerer performs TAST→HIR lowering (Component D, §4.1). One Lowerer is
// built per compilation unit so that abstract-method inlining can search
// every abstract definition regardless of which file declared it.
type Lowerer struct {
	reg       *ids.Registry
	abstracts []*tast.AbstractDecl
	diags     []diagnostic.Diagnostic

	tmpCounter  int
	inlineDepth int
}

// NewLowerer scans every file for abstract declarations up front --
// abstract-method inlining (§4.1) must search all abstracts in the
// compilation unit, not just the one the receiver's static type names,
// because type inference may have widened the receiver to Dynamic.
func NewLowerer(reg *ids.Registry, files []*tast.File) *Lowerer {
	l := &Lowerer{reg: reg}
	for _, f := range files {
		for _, d := range f.Decls {
			if ab, ok := d.(*tast.AbstractDecl); ok {
				l.abstracts = append(l.abstracts, ab)
			}
		}
	}
	return l
}

// Diagnostics returns every diagnostic accumulated across LowerFile calls.
func (l *Lowerer) Diagnostics() []diagnostic.Diagnostic { return l.diags }

func (l *Lowerer) errorf(span position.Span, format string, args ...interface{}) {
	d := diagnostic.NewDiagnostic().
		Error().
		Lowering().
		Code("L0001").
		Title("Lowering error").
		Message(fmt.Sprintf(format, args...)).
		Span(span).
		Build()
	l.diags = append(l.diags, *d)
}

func (l *Lowerer) freshName(prefix string) string {
	l.tmpCounter++
	return fmt.Sprintf("%s$%d", prefix, l.tmpCounter)
}

// LowerFile lowers every declaration of f.
func (l *Lowerer) LowerFile(f *tast.File) *File {
	out := &File{Span: f.Span, Name: f.Name}
	for _, d := range f.Decls {
		if hd := l.lowerDecl(d); hd != nil {
			out.Decls = append(out.Decls, hd)
		}
	}
	return out
}

func (l *Lowerer) lowerDecl(d tast.Decl) Decl {
	switch d := d.(type) {
	case *tast.FuncDecl:
		return l.lowerFunc(d)
	case *tast.ClassDecl:
		cd := &ClassDecl{
			Span:   d.Span,
			Name:   d.Name,
			Symbol: d.Symbol,
			Type:   d.Type,
			Super:  d.Super,
		}
		cd.Interfaces = append(cd.Interfaces, d.Interfaces...)
		for _, fld := range d.Fields {
			cd.Fields = append(cd.Fields, &FieldDecl{
				Span: fld.Span, Name: fld.Name, Symbol: fld.Symbol,
				Type: fld.Type, IsStatic: fld.IsStatic,
			})
		}
		for _, m := range d.Methods {
			cd.Methods = append(cd.Methods, l.lowerFunc(m))
		}
		return cd
	case *tast.EnumDecl:
		ed := &EnumDecl{Span: d.Span, Name: d.Name, Symbol: d.Symbol, Type: d.Type}
		for i, v := range d.Variants {
			variant := EnumVariantDecl{Span: v.Span, Name: v.Name, Tag: uint32(i)}
			for _, p := range v.Fields {
				variant.Fields = append(variant.Fields, Param{Span: p.Span, Name: p.Name, Symbol: p.Symbol, Type: p.Type})
			}
			ed.Variants = append(ed.Variants, variant)
		}
		return ed
	case *tast.AbstractDecl:
		// Abstracts contribute only inlining material; they do not
		// survive as a declaration (see hir.go doc comment).
		return nil
	default:
		return nil
	}
}

func (l *Lowerer) lowerFunc(d *tast.FuncDecl) *FuncDecl {
	fd := &FuncDecl{
		Span: d.Span, Name: d.Name, Symbol: d.Symbol,
		ReturnType: d.ReturnType, IsStatic: d.IsStatic, IsExtern: d.IsExtern,
	}
	for _, p := range d.Params {
		fd.Params = append(fd.Params, Param{Span: p.Span, Name: p.Name, Symbol: p.Symbol, Type: p.Type})
	}
	if d.Body != nil {
		fd.Body = l.lowerBlock(d.Body)
	}
	return fd
}

func (l *Lowerer) lowerBlock(b *tast.Block) *Block {
	out := &Block{Span: b.Span}
	for _, s := range b.Stmts {
		out.Stmts = append(out.Stmts, l.lowerStmt(s)...)
	}
	return out
}

// lowerStmt returns zero or more HIR statements: most tast statements
// lower 1:1, but for-in (§4.1 item 1) expands into an iterator temporary
// declaration, the loop-variable declaration, and a while loop.
func (l *Lowerer) lowerStmt(s tast.Stmt) []Stmt {
	switch s := s.(type) {
	case *tast.ExprStmt:
		return []Stmt{&ExprStmt{Span: s.Span, X: l.lowerExpr(s.X)}}

	case *tast.VarDecl:
		var init Expr
		if s.Init != nil {
			init = l.lowerExpr(s.Init)
		}
		return []Stmt{&VarDecl{Span: s.Span, Name: s.Name, Symbol: s.Symbol, Type: s.Type, Init: init}}

	case *tast.Assign:
		return []Stmt{&Assign{Span: s.Span, LHS: l.lowerExpr(s.LHS), RHS: l.lowerExpr(s.RHS)}}

	case *tast.ArrayAccessSet:
		if h, ok := l.tryArraySetRewrite(s.Array, s.Index, s.Value); ok {
			return []Stmt{h}
		}
		return []Stmt{&ArraySet{Span: s.Span, Array: l.lowerExpr(s.Array), Index: l.lowerExpr(s.Index), Value: l.lowerExpr(s.Value)}}

	case *tast.If:
		hs := &If{Span: s.Span, Cond: l.lowerExpr(s.Cond), Then: l.lowerBlock(s.Then)}
		if s.Else != nil {
			hs.Else = l.lowerBlock(s.Else)
		}
		return []Stmt{hs}

	case *tast.While:
		return []Stmt{&While{Span: s.Span, Cond: l.lowerExpr(s.Cond), Body: l.lowerBlock(s.Body)}}

	case *tast.DoWhile:
		return []Stmt{&DoWhile{Span: s.Span, Body: l.lowerBlock(s.Body), Cond: l.lowerExpr(s.Cond)}}

	case *tast.ForIn:
		return l.lowerForIn(s)

	case *tast.Return:
		var v Expr
		if s.Value != nil {
			v = l.lowerExpr(s.Value)
		}
		return []Stmt{&Return{Span: s.Span, Value: v}}

	case *tast.Break:
		return []Stmt{&Break{Span: s.Span}}

	case *tast.Continue:
		return []Stmt{&Continue{Span: s.Span}}

	case *tast.Throw:
		return []Stmt{&Throw{Span: s.Span, Value: l.lowerExpr(s.Value)}}

	case *tast.Try:
		ht := &Try{Span: s.Span, Body: l.lowerBlock(s.Body), CaughtType: s.CaughtType, CatchSym: s.CatchSym, CatchBody: l.lowerBlock(s.CatchBody)}
		return []Stmt{ht}

	case *tast.Switch:
		hs := &Switch{Span: s.Span, Scrutinee: l.lowerExpr(s.Scrutinee), Exhaustive: s.Exhaustive}
		for _, arm := range s.Arms {
			hs.Arms = append(hs.Arms, SwitchArm{
				Pattern: l.lowerPattern(arm.Pattern),
				Guard:   l.maybeExpr(arm.Guard),
				Body:    l.lowerBlock(arm.Body),
			})
		}
		return []Stmt{hs}

	case *tast.Block:
		return []Stmt{l.lowerBlock(s)}

	default:
		l.errorf(s.GetSpan(), "unsupported statement node %T", s)
		return nil
	}
}

func (l *Lowerer) maybeExpr(e tast.Expr) Expr {
	if e == nil {
		return nil
	}
	return l.lowerExpr(e)
}

func (l *Lowerer) lowerPattern(p tast.Pattern) Pattern {
	out := Pattern{Span: p.Span, Kind: PatternKind(p.Kind), BindSym: p.BindSym, Ctor: p.Ctor, CtorTag: p.CtorTag, Type: p.Type}
	if p.Literal != nil {
		lit := l.lowerExpr(p.Literal).(*Literal)
		out.Literal = lit
	}
	for _, sub := range p.Sub {
		out.Sub = append(out.Sub, l.lowerPattern(sub))
	}
	for _, alt := range p.Alts {
		out.Alts = append(out.Alts, l.lowerPattern(alt))
	}
	return out
}

// lowerForIn implements §4.1 item 1: `for (x in iterable) body` becomes
// `while (iter.hasNext()) { x = iter.next(); body }`, with the iterable
// expression evaluated once into a fresh temporary.
func (l *Lowerer) lowerForIn(s *tast.ForIn) []Stmt {
	span := s.Span
	iterable := l.lowerExpr(s.Iterable)
	iterableType := s.Iterable.ExprType()

	iterName := l.freshName("__iter")
	iterSym := l.reg.DeclareSymbol(ids.SymbolInfo{
		Name:         l.reg.Intern(iterName),
		Kind:         ids.SymVar,
		DeclaredType: iterableType,
	})

	iterDecl := &VarDecl{Span: span, Name: iterName, Symbol: iterSym, Type: iterableType, Init: iterable}

	// The loop variable itself is declared ahead of the while loop: the
	// source for-in owns its binding, so nothing upstream declares it.
	varDecl := &VarDecl{Span: span, Name: s.VarName, Symbol: s.VarSym, Type: s.VarType}

	hasNext := &MethodCall{
		Span:     span,
		Receiver: &Ident{Span: span, Symbol: iterSym, Type: iterableType},
		Method:   "hasNext",
		Type:     l.reg.Primitive(ids.PrimBool),
	}

	next := &MethodCall{
		Span:     span,
		Receiver: &Ident{Span: span, Symbol: iterSym, Type: iterableType},
		Method:   "next",
		Type:     s.VarType,
	}

	body := &Block{Span: s.Body.Span}
	body.Stmts = append(body.Stmts, &Assign{
		Span: span,
		LHS:  &Ident{Span: span, Symbol: s.VarSym, Type: s.VarType},
		RHS:  next,
	})
	inner := l.lowerBlock(s.Body)
	body.Stmts = append(body.Stmts, inner.Stmts...)

	loop := &While{Span: span, Cond: hasNext, Body: body}

	return []Stmt{iterDecl, varDecl, loop}
}
