package hir

import (
	"strings"

	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/tast"
)

var binOpSymbol = map[tast.BinOp]string{
	tast.BAdd: "+", tast.BSub: "-", tast.BMul: "*", tast.BDiv: "/", tast.BMod: "%",
	tast.BEq: "==", tast.BNe: "!=", tast.BLt: "<", tast.BLe: "<=", tast.BGt: ">", tast.BGe: ">=",
}

var binOpKind = map[tast.BinOp]BinOp{
	tast.BAdd: BAdd, tast.BSub: BSub, tast.BMul: BMul, tast.BDiv: BDiv, tast.BMod: BMod,
	tast.BEq: BEq, tast.BNe: BNe, tast.BLt: BLt, tast.BLe: BLe, tast.BGt: BGt, tast.BGe: BGe,
}

var unOpSymbol = map[tast.UnOp]string{
	tast.UNeg: "-", tast.UNot: "!", tast.UBitNot: "~",
	tast.UPreInc: "++", tast.UPostInc: "++", tast.UPreDec: "--", tast.UPostDec: "--",
}

var unOpKind = map[tast.UnOp]UnOp{
	tast.UNeg: UNeg, tast.UNot: UNot, tast.UBitNot: UBitNot,
	tast.UPreInc: UPreInc, tast.UPostInc: UPostInc, tast.UPreDec: UPreDec, tast.UPostDec: UPostDec,
}

// abstractDecl looks up the AbstractDecl backing a KindAbstract TypeId.
func (l *Lowerer) abstractDecl(t ids.TypeId) *tast.AbstractDecl {
	info := l.reg.Type(t)
	if info.Kind != ids.KindAbstract {
		return nil
	}
	for _, ab := range l.abstracts {
		if ab.Symbol == info.Symbol {
			return ab
		}
	}
	return nil
}

// findOpMethod searches ab's methods for one tagged `@:op` with a tag
// containing sym (e.g. "+" matches "A+B").
func findOpMethod(ab *tast.AbstractDecl, sym string) *tast.FuncDecl {
	if ab == nil {
		return nil
	}
	for _, m := range ab.Methods {
		if tag, ok := m.Meta["op"]; ok && strings.Contains(tag, sym) {
			return m
		}
	}
	return nil
}

// findArrayAccessor searches ab's methods for a `@:arrayAccess`-tagged
// get (one parameter) or set (two parameters) accessor.
func findArrayAccessor(ab *tast.AbstractDecl, wantParams int) *tast.FuncDecl {
	if ab == nil {
		return nil
	}
	for _, m := range ab.Methods {
		if _, ok := m.Meta["arrayAccess"]; ok && len(m.Params) == wantParams {
			return m
		}
	}
	return nil
}

// findMethodByName searches every abstract in the unit for a method
// called name, used when the checker could only bind a method by name
// because the receiver was widened to Dynamic (§4.1).
func (l *Lowerer) findMethodByName(name string) (*tast.FuncDecl, *tast.AbstractDecl) {
	for _, ab := range l.abstracts {
		for _, m := range ab.Methods {
			if m.Name == name {
				return m, ab
			}
		}
	}
	return nil, nil
}

// maxInlineDepth bounds recursive abstract-method inlining. A
// well-formed inline method bottoms out once its operands are unwrapped
// to the underlying type; the cap only exists so a degenerate
// self-recursive inline method surfaces as a lowering error instead of
// exhausting the stack.
const maxInlineDepth = 64

// inlineCall substitutes fn's body (`this` -> recv, each param -> the
// matching arg) and recursively re-lowers the result, implementing the
// recursive-inlining and identity-method requirements of §4.1. Inside
// the inlined body, `this` and any abstract-typed parameter take the
// abstract's underlying type -- that is what makes the canonical
// `@:op(A + B) inline function add(r) return this + r` bottom out in a
// single primitive add (P7/P8) instead of re-firing the operator
// rewrite on its own substituted body. Returns (nil, false) when fn's
// body is not a single `return expr` -- the shape every zero-cost
// abstract method in practice has.
func (l *Lowerer) inlineCall(fn *tast.FuncDecl, ab *tast.AbstractDecl, recv tast.Expr, args []tast.Expr) (Expr, bool) {
	if l.inlineDepth >= maxInlineDepth {
		return nil, false
	}
	if fn.Body == nil || len(fn.Body.Stmts) != 1 {
		return nil, false
	}
	ret, ok := fn.Body.Stmts[0].(*tast.Return)
	if !ok || ret.Value == nil {
		return nil, false
	}

	recvSub := recv
	if u, ok := l.underlyingOf(recv.ExprType()); ok {
		recvSub = retypeExpr(recv, u)
	} else if ab != nil && ab.Underlying != ids.InvalidType {
		// The receiver's static type was widened (e.g. to Dynamic); the
		// declaring abstract still knows what `this` unwraps to.
		recvSub = retypeExpr(recv, ab.Underlying)
	}

	params := make(map[ids.SymbolId]tast.Expr, len(fn.Params))
	for i, p := range fn.Params {
		if i < len(args) {
			arg := args[i]
			if u, ok := l.underlyingOf(p.Type); ok {
				arg = retypeExpr(arg, u)
			}
			params[p.Symbol] = arg
		}
	}

	substituted := substExpr(ret.Value, recvSub, params)
	// Recursively lower the substituted tree: it may itself contain
	// further abstract calls or operator rewrites to apply.
	l.inlineDepth++
	h := l.lowerExpr(substituted)
	l.inlineDepth--
	return h, true
}

// underlyingOf resolves an abstract type to its wrapped underlying
// type, consulting the registry first and the declaration scan second
// (fixtures may declare the abstract nominally without populating the
// registry's underlying slot).
func (l *Lowerer) underlyingOf(t ids.TypeId) (ids.TypeId, bool) {
	info := l.reg.Type(t)
	if info.Kind != ids.KindAbstract {
		return ids.InvalidType, false
	}
	if info.Elem != ids.InvalidType {
		return info.Elem, true
	}
	if ab := l.abstractDecl(t); ab != nil && ab.Underlying != ids.InvalidType {
		return ab.Underlying, true
	}
	return ids.InvalidType, false
}

// retypeExpr returns e carrying static type t, cloning the node so the
// original tree is untouched. Used when inlining an abstract's method:
// the wrapped value is the same value, only viewed at its underlying
// type.
func retypeExpr(e tast.Expr, t ids.TypeId) tast.Expr {
	switch e := e.(type) {
	case *tast.Ident:
		c := *e
		c.Type = t
		return &c
	case *tast.Literal:
		c := *e
		c.Type = t
		return &c
	case *tast.Binary:
		c := *e
		c.Type = t
		return &c
	case *tast.Unary:
		c := *e
		c.Type = t
		return &c
	case *tast.Call:
		c := *e
		c.Type = t
		return &c
	case *tast.MethodCall:
		c := *e
		c.Type = t
		return &c
	case *tast.New:
		c := *e
		c.Type = t
		return &c
	case *tast.ArrayAccess:
		c := *e
		c.Type = t
		return &c
	case *tast.IfExpr:
		c := *e
		c.Type = t
		return &c
	default:
		return e
	}
}

// substExpr clones e, replacing every Ident named "this" with recv and
// every Ident bound to a symbol in params with its substituted argument.
func substExpr(e tast.Expr, recv tast.Expr, params map[ids.SymbolId]tast.Expr) tast.Expr {
	switch e := e.(type) {
	case *tast.Ident:
		if e.Name == "this" {
			return recv
		}
		if arg, ok := params[e.Symbol]; ok {
			return arg
		}
		return e
	case *tast.Literal:
		return e
	case *tast.Binary:
		c := *e
		c.LHS = substExpr(e.LHS, recv, params)
		c.RHS = substExpr(e.RHS, recv, params)
		return &c
	case *tast.Unary:
		c := *e
		c.Operand = substExpr(e.Operand, recv, params)
		return &c
	case *tast.Call:
		c := *e
		if e.CalleeExpr != nil {
			c.CalleeExpr = substExpr(e.CalleeExpr, recv, params)
		}
		c.Args = substExprList(e.Args, recv, params)
		return &c
	case *tast.MethodCall:
		c := *e
		c.Receiver = substExpr(e.Receiver, recv, params)
		c.Args = substExprList(e.Args, recv, params)
		return &c
	case *tast.New:
		c := *e
		c.Args = substExprList(e.Args, recv, params)
		return &c
	case *tast.ArrayAccess:
		c := *e
		c.Array = substExpr(e.Array, recv, params)
		c.Index = substExpr(e.Index, recv, params)
		return &c
	case *tast.StringInterp:
		c := *e
		c.Exprs = substExprList(e.Exprs, recv, params)
		return &c
	case *tast.IfExpr:
		c := *e
		c.Cond = substExpr(e.Cond, recv, params)
		c.Then = substExpr(e.Then, recv, params)
		c.Else = substExpr(e.Else, recv, params)
		return &c
	default:
		// Lambdas, comprehensions, and block expressions are not
		// substituted into -- inline method bodies in source Haxe are
		// simple expressions, and a method body containing one of
		// these would already have failed the single-return-statement
		// shape check in inlineCall.
		return e
	}
}

func substExprList(in []tast.Expr, recv tast.Expr, params map[ids.SymbolId]tast.Expr) []tast.Expr {
	if in == nil {
		return nil
	}
	out := make([]tast.Expr, len(in))
	for i, e := range in {
		out[i] = substExpr(e, recv, params)
	}
	return out
}

func (l *Lowerer) lowerExprList(in []tast.Expr) []Expr {
	if in == nil {
		return nil
	}
	out := make([]Expr, len(in))
	for i, e := range in {
		out[i] = l.lowerExpr(e)
	}
	return out
}

func (l *Lowerer) lowerExpr(e tast.Expr) Expr {
	switch e := e.(type) {
	case *tast.Ident:
		return &Ident{Span: e.Span, Symbol: e.Symbol, Type: e.Type}

	case *tast.Literal:
		return &Literal{Span: e.Span, Kind: LiteralKind(e.Kind), Type: e.Type, Int: e.Int, Float: e.Float, Bool: e.Bool, String: e.String}

	case *tast.Binary:
		if h, ok := l.tryOperatorRewrite(e); ok {
			return h
		}
		return &Binary{Span: e.Span, Op: binOpKind[e.Op], LHS: l.lowerExpr(e.LHS), RHS: l.lowerExpr(e.RHS), Type: e.Type}

	case *tast.Unary:
		if h, ok := l.tryUnaryRewrite(e); ok {
			return h
		}
		return &Unary{Span: e.Span, Op: unOpKind[e.Op], Operand: l.lowerExpr(e.Operand), Type: e.Type}

	case *tast.Call:
		c := &Call{Span: e.Span, Callee: e.Callee, Args: l.lowerExprList(e.Args), Type: e.Type}
		if e.CalleeExpr != nil {
			c.CalleeExpr = l.lowerExpr(e.CalleeExpr)
		}
		return c

	case *tast.MethodCall:
		if h, ok := l.tryMethodInline(e); ok {
			return h
		}
		return &MethodCall{Span: e.Span, Receiver: l.lowerExpr(e.Receiver), Method: e.Method, MethodSym: e.MethodSym, Args: l.lowerExprList(e.Args), Type: e.Type}

	case *tast.New:
		if h, ok := l.tryConstructorCollapse(e); ok {
			return h
		}
		return &New{Span: e.Span, Class: e.Class, Args: l.lowerExprList(e.Args), Type: e.Type}

	case *tast.ArrayAccess:
		if h, ok := l.tryArrayAccessRewrite(e); ok {
			return h
		}
		return &ArrayGet{Span: e.Span, Array: l.lowerExpr(e.Array), Index: l.lowerExpr(e.Index), Type: e.Type}

	case *tast.StringInterp:
		return l.lowerStringInterp(e)

	case *tast.ArrayComprehension:
		return l.lowerComprehension(e)

	case *tast.IfExpr:
		return &IfExpr{Span: e.Span, Cond: l.lowerExpr(e.Cond), Then: l.lowerExpr(e.Then), Else: l.lowerExpr(e.Else), Type: e.Type}

	case *tast.Lambda:
		fl := &Lambda{Span: e.Span, Body: l.lowerBlock(e.Body), Type: e.Type}
		for _, p := range e.Params {
			fl.Params = append(fl.Params, Param{Span: p.Span, Name: p.Name, Symbol: p.Symbol, Type: p.Type})
		}
		return fl

	case *tast.BlockExpr:
		inner := l.lowerBlock(e.Body)
		be := &BlockExpr{Span: e.Span, Type: e.Type}
		if n := len(inner.Stmts); n > 0 {
			if last, ok := inner.Stmts[n-1].(*ExprStmt); ok {
				be.Stmts = inner.Stmts[:n-1]
				be.Result = last.X
				return be
			}
		}
		be.Stmts = inner.Stmts
		return be

	default:
		l.errorf(e.GetSpan(), "unsupported expression node %T", e)
		return &ErrorExpr{Span: e.GetSpan(), Message: "unsupported expression", Type: e.ExprType()}
	}
}

// tryOperatorRewrite implements §4.1's operator-overload rewrite for
// binary operators: `a op b` where a's type is abstract and the abstract
// declares `@:op(A op B)` becomes `a.method(b)`, then inlined.
func (l *Lowerer) tryOperatorRewrite(e *tast.Binary) (Expr, bool) {
	sym, known := binOpSymbol[e.Op]
	if !known {
		return nil, false
	}
	ab := l.abstractDecl(e.LHS.ExprType())
	if ab == nil {
		ab = l.abstractDecl(e.RHS.ExprType())
	}
	m := findOpMethod(ab, sym)
	if m == nil {
		return nil, false
	}
	if h, ok := l.inlineCall(m, ab, e.LHS, []tast.Expr{e.RHS}); ok {
		return h, true
	}
	l.errorf(e.Span, "abstract operator method %q could not be inlined", m.Name)
	return &ErrorExpr{Span: e.Span, Message: "operator inlining failed", Type: e.Type}, true
}

// tryUnaryRewrite is the unary-operator analogue of tryOperatorRewrite.
func (l *Lowerer) tryUnaryRewrite(e *tast.Unary) (Expr, bool) {
	sym, known := unOpSymbol[e.Op]
	if !known {
		return nil, false
	}
	ab := l.abstractDecl(e.Operand.ExprType())
	m := findOpMethod(ab, sym)
	if m == nil {
		return nil, false
	}
	if h, ok := l.inlineCall(m, ab, e.Operand, nil); ok {
		return h, true
	}
	l.errorf(e.Span, "abstract operator method %q could not be inlined", m.Name)
	return &ErrorExpr{Span: e.Span, Message: "operator inlining failed", Type: e.Type}, true
}

// tryMethodInline implements the abstract-method-call inlining rule of
// §4.1: locate the method either by its resolved symbol's owner or, when
// the receiver was widened to Dynamic, by searching every abstract's
// methods by name; then substitute and recursively lower.
func (l *Lowerer) tryMethodInline(e *tast.MethodCall) (Expr, bool) {
	ab := l.abstractDecl(e.Receiver.ExprType())
	var m *tast.FuncDecl

	if ab != nil {
		for _, cand := range ab.Methods {
			if cand.Symbol == e.MethodSym || cand.Name == e.Method {
				m = cand
				break
			}
		}
	}
	if m == nil {
		m, ab = l.findMethodByName(e.Method)
	}
	if m == nil || ab == nil {
		// Not an abstract method call at all (ordinary class method or
		// stdlib call) -- handled by the default MethodCall path.
		return nil, false
	}
	if !m.IsInline {
		return nil, false
	}

	h, ok := l.inlineCall(m, ab, e.Receiver, e.Args)
	if !ok {
		l.errorf(e.Span, "abstract method %q on %q could not be found or inlined", e.Method, ab.Name)
		return &ErrorExpr{Span: e.Span, Message: "abstract method lookup failed", Type: e.Type}, true
	}
	return h, true
}

// tryConstructorCollapse implements §4.1's abstract-constructor
// collapse: `new Abstract(v)` where Abstract wraps a single field
// lowers to v directly.
func (l *Lowerer) tryConstructorCollapse(e *tast.New) (Expr, bool) {
	info := l.reg.Symbol(e.Class)
	if info.Kind != ids.SymAbstract {
		return nil, false
	}
	if len(e.Args) != 1 {
		return nil, false
	}
	return l.lowerExpr(e.Args[0]), true
}

// tryArrayAccessRewrite implements §4.1's @:arrayAccess get rewrite:
// `a[i]` on an abstract with a `@:arrayAccess` get-accessor becomes
// `a.get(i)`, then inlined. Ordinary (non-abstract) array reads fall
// through to ArrayGet.
func (l *Lowerer) tryArrayAccessRewrite(e *tast.ArrayAccess) (Expr, bool) {
	ab := l.abstractDecl(e.Array.ExprType())
	m := findArrayAccessor(ab, 1)
	if m == nil {
		return nil, false
	}
	if h, ok := l.inlineCall(m, ab, e.Array, []tast.Expr{e.Index}); ok {
		return h, true
	}
	l.errorf(e.Span, "array-access get accessor could not be inlined")
	return &ErrorExpr{Span: e.Span, Message: "array access inlining failed", Type: e.Type}, true
}

// tryArraySetRewrite is the write-form analogue, called from
// lowerStmt for tast.ArrayAccessSet.
func (l *Lowerer) tryArraySetRewrite(array, index, value tast.Expr) (Stmt, bool) {
	ab := l.abstractDecl(array.ExprType())
	m := findArrayAccessor(ab, 2)
	if m == nil {
		return nil, false
	}
	h, ok := l.inlineCall(m, ab, array, []tast.Expr{index, value})
	if !ok {
		return nil, false
	}
	return &ExprStmt{Span: h.GetSpan(), X: h}, true
}

// lowerStringInterp implements §4.1 item 3: "pre${expr}post" becomes
// left-associated concatenation of the literal segments and each
// embedded expression converted with toString.
func (l *Lowerer) lowerStringInterp(e *tast.StringInterp) Expr {
	stringTy := e.Type
	var acc Expr
	appendPiece := func(p Expr) {
		if acc == nil {
			acc = p
			return
		}
		acc = &Binary{Span: e.Span, Op: BAdd, LHS: acc, RHS: p, Type: stringTy}
	}

	for i, lit := range e.Literals {
		if lit != "" {
			appendPiece(&Literal{Span: e.Span, Kind: LitString, Type: stringTy, String: lit})
		}
		if i < len(e.Exprs) {
			sub := e.Exprs[i]
			piece := l.lowerExpr(sub)
			if l.reg.Type(sub.ExprType()).Kind != ids.KindPrimitive || l.reg.Type(sub.ExprType()).Primitive != ids.PrimString {
				piece = &MethodCall{Span: sub.GetSpan(), Receiver: piece, Method: "toString", Type: stringTy}
			}
			appendPiece(piece)
		}
	}
	if acc == nil {
		return &Literal{Span: e.Span, Kind: LitString, Type: stringTy, String: ""}
	}
	return acc
}

// lowerComprehension implements §4.1 item 4: `[for (x in xs) expr]`
// becomes `{ let tmp = []; for (x in xs) tmp.push(expr); tmp }`, with an
// optional filter wrapping the push in an `if`.
func (l *Lowerer) lowerComprehension(e *tast.ArrayComprehension) Expr {
	arrType := e.Type
	elemType := e.Elem.ExprType()

	tmpName := l.freshName("__comp")
	tmpSym := l.reg.DeclareSymbol(ids.SymbolInfo{Name: l.reg.Intern(tmpName), Kind: ids.SymVar, DeclaredType: arrType})
	tmpDecl := &VarDecl{Span: e.Span, Name: tmpName, Symbol: tmpSym, Type: arrType, Init: &NewArray{Span: e.Span, ElemType: elemType, Type: arrType}}

	iterName := l.freshName("__iter")
	iterSym := l.reg.DeclareSymbol(ids.SymbolInfo{Name: l.reg.Intern(iterName), Kind: ids.SymVar, DeclaredType: e.Iterable.ExprType()})
	iterDecl := &VarDecl{Span: e.Span, Name: iterName, Symbol: iterSym, Type: e.Iterable.ExprType(), Init: l.lowerExpr(e.Iterable)}

	voidTy := l.reg.Primitive(ids.PrimVoid)
	hasNext := &MethodCall{Span: e.Span, Receiver: &Ident{Span: e.Span, Symbol: iterSym, Type: e.Iterable.ExprType()}, Method: "hasNext", Type: l.reg.Primitive(ids.PrimBool)}
	next := &MethodCall{Span: e.Span, Receiver: &Ident{Span: e.Span, Symbol: iterSym, Type: e.Iterable.ExprType()}, Method: "next", Type: elemType}

	push := &ExprStmt{Span: e.Span, X: &MethodCall{
		Span: e.Span, Receiver: &Ident{Span: e.Span, Symbol: tmpSym, Type: arrType},
		Method: "push", Args: []Expr{l.lowerExpr(e.Elem)}, Type: voidTy,
	}}

	var bodyStmts []Stmt
	bodyStmts = append(bodyStmts, &Assign{Span: e.Span, LHS: &Ident{Span: e.Span, Symbol: e.VarSym, Type: elemType}, RHS: next})
	if e.Filter != nil {
		bodyStmts = append(bodyStmts, &If{Span: e.Span, Cond: l.lowerExpr(e.Filter), Then: &Block{Stmts: []Stmt{push}}})
	} else {
		bodyStmts = append(bodyStmts, push)
	}

	loop := &While{Span: e.Span, Cond: hasNext, Body: &Block{Span: e.Span, Stmts: bodyStmts}}

	varDecl := &VarDecl{Span: e.Span, Name: e.VarName, Symbol: e.VarSym, Type: elemType}

	return &BlockExpr{
		Span:   e.Span,
		Stmts:  []Stmt{iterDecl, tmpDecl, varDecl, loop},
		Result: &Ident{Span: e.Span, Symbol: tmpSym, Type: arrType},
		Type:   arrType,
	}
}
