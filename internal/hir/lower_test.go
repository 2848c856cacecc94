package hir

import (
	"strings"
	"testing"

	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/tast"
)

func newTestRegistry() (*ids.Registry, ids.TypeId) {
	reg := ids.NewRegistry()
	return reg, reg.Primitive(ids.PrimInt)
}

func declareVar(reg *ids.Registry, ty ids.TypeId) ids.SymbolId {
	return reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: ty})
}

// --- abstract-method inlining, identity-method zero-cost (§4.1, P7) ---

func TestTryMethodInline_IdentityMethodIsZeroCost(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Meters"), ids.InvalidSymbol, ids.SymAbstract, nil)

	getSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: abSym, DeclaredType: intT})
	getDecl := &tast.FuncDecl{
		Name: "get", Symbol: getSym, ReturnType: intT, IsInline: true,
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Ident{Name: "this", Type: abT}}}},
	}
	abstract := &tast.AbstractDecl{Name: "Meters", Symbol: abSym, Type: abT, Underlying: intT, Methods: []*tast.FuncDecl{getDecl}}

	recvSym := declareVar(reg, abT)
	recv := &tast.Ident{Name: "m", Symbol: recvSym, Type: abT}
	call := &tast.MethodCall{Receiver: recv, Method: "get", MethodSym: getSym, Type: intT}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	got := l.lowerExpr(call)

	id, ok := got.(*Ident)
	if !ok {
		t.Fatalf("identity method did not reduce to a bare identifier: got %T", got)
	}
	if id.Symbol != recvSym {
		t.Fatalf("identity method returned wrong symbol: got %d, want %d", id.Symbol, recvSym)
	}
	if len(l.Diagnostics()) != 0 {
		t.Fatalf("unexpected diagnostics: %v", l.Diagnostics())
	}
}

// --- recursive abstract-method inlining (§4.1) ---
//
// incTwice's body calls this.inc(), which is itself inlined once more when
// the substituted MethodCall is re-lowered. Both methods are ordinary
// (untagged) so the recursion terminates at the final plain-arithmetic
// shape rather than looping back through the same rewrite.
func TestTryMethodInline_RecursiveInlining(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Counter"), ids.InvalidSymbol, ids.SymAbstract, nil)

	incSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: abSym, DeclaredType: abT})
	incDecl := &tast.FuncDecl{
		Name: "inc", Symbol: incSym, ReturnType: abT, IsInline: true,
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Binary{
			Op: tast.BAdd, Type: abT,
			LHS: &tast.Ident{Name: "this", Type: abT},
			RHS: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 1},
		}}}},
	}
	incTwiceSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: abSym, DeclaredType: abT})
	incTwiceDecl := &tast.FuncDecl{
		Name: "incTwice", Symbol: incTwiceSym, ReturnType: abT, IsInline: true,
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.MethodCall{
			Receiver: &tast.Ident{Name: "this", Type: abT}, Method: "inc", MethodSym: incSym, Type: abT,
		}}}},
	}
	abstract := &tast.AbstractDecl{Name: "Counter", Symbol: abSym, Type: abT, Underlying: intT, Methods: []*tast.FuncDecl{incDecl, incTwiceDecl}}

	counterSym := declareVar(reg, abT)
	counter := &tast.Ident{Name: "c", Symbol: counterSym, Type: abT}
	call := &tast.MethodCall{Receiver: counter, Method: "incTwice", MethodSym: incTwiceSym, Type: abT}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	got := l.lowerExpr(call)

	bin, ok := got.(*Binary)
	if !ok {
		t.Fatalf("expected recursive inlining to bottom out at a Binary, got %T", got)
	}
	if bin.Op != BAdd {
		t.Fatalf("got op %v, want BAdd", bin.Op)
	}
	lhs, ok := bin.LHS.(*Ident)
	if !ok || lhs.Symbol != counterSym {
		t.Fatalf("expected LHS to be the original receiver identifier, got %#v", bin.LHS)
	}
	lit, ok := bin.RHS.(*Literal)
	if !ok || lit.Int != 1 {
		t.Fatalf("expected RHS to be the literal 1, got %#v", bin.RHS)
	}
}

// --- @:op operator rewrite, with safe recursive fallthrough ---
//
// The abstract only tags its "+" method with @:op; the method body uses
// "-", so re-lowering the substituted Binary triggers tryOperatorRewrite a
// second time, fails to find a matching @:op method, and falls through to
// a plain Binary instead of recursing into the same rewrite forever.
func TestTryOperatorRewrite_RecursionFallsThroughOnMismatchedOperator(t *testing.T) {
	reg, _ := newTestRegistry()
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Wrapped"), ids.InvalidSymbol, ids.SymAbstract, nil)

	rSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: abT})
	opDecl := &tast.FuncDecl{
		Name: "add", Symbol: reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: abSym, DeclaredType: abT}),
		ReturnType: abT, IsInline: true,
		Meta:   tast.Meta{"op": "A+B"},
		Params: []tast.Param{{Name: "r", Symbol: rSym, Type: abT}},
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Binary{
			Op: tast.BSub, Type: abT,
			LHS: &tast.Ident{Name: "this", Type: abT},
			RHS: &tast.Ident{Name: "r", Symbol: rSym, Type: abT},
		}}}},
	}
	abstract := &tast.AbstractDecl{Name: "Wrapped", Symbol: abSym, Type: abT, Methods: []*tast.FuncDecl{opDecl}}

	aSym := declareVar(reg, abT)
	bSym := declareVar(reg, abT)
	bin := &tast.Binary{Op: tast.BAdd, Type: abT,
		LHS: &tast.Ident{Name: "a", Symbol: aSym, Type: abT},
		RHS: &tast.Ident{Name: "b", Symbol: bSym, Type: abT},
	}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	got := l.lowerExpr(bin)

	hb, ok := got.(*Binary)
	if !ok {
		t.Fatalf("expected a plain Binary after the rewrite failed to find a \"-\" operator method, got %T", got)
	}
	if hb.Op != BSub {
		t.Fatalf("got op %v, want BSub (the method body's own operator)", hb.Op)
	}
	lhs, ok := hb.LHS.(*Ident)
	if !ok || lhs.Symbol != aSym {
		t.Fatalf("expected LHS to be the original left operand, got %#v", hb.LHS)
	}
	rhs, ok := hb.RHS.(*Ident)
	if !ok || rhs.Symbol != bSym {
		t.Fatalf("expected RHS to be the original right operand, got %#v", hb.RHS)
	}
}

// The canonical zero-cost operator overload (§8.3 Scenario 4, P8):
// `@:op(A + B) inline function add(r:Counter):Counter { return this + r; }`.
// The inlined body's own `+` operates on operands unwrapped to the
// abstract's underlying Int, so it lowers as a single primitive add
// instead of re-firing the operator rewrite on itself.
func TestTryOperatorRewrite_MatchingOperatorUnwrapsToPrimitive(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Counter"), ids.InvalidSymbol, ids.SymAbstract, nil)
	reg.PopulateClass(abT, intT)

	rSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: abT})
	addDecl := &tast.FuncDecl{
		Name: "add", Symbol: reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: abSym, DeclaredType: abT}),
		ReturnType: abT, IsInline: true,
		Meta:   tast.Meta{"op": "A+B"},
		Params: []tast.Param{{Name: "r", Symbol: rSym, Type: abT}},
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Binary{
			Op: tast.BAdd, Type: abT,
			LHS: &tast.Ident{Name: "this", Type: abT},
			RHS: &tast.Ident{Name: "r", Symbol: rSym, Type: abT},
		}}}},
	}
	abstract := &tast.AbstractDecl{Name: "Counter", Symbol: abSym, Type: abT, Underlying: intT, Methods: []*tast.FuncDecl{addDecl}}

	aSym := declareVar(reg, abT)
	bSym := declareVar(reg, abT)
	bin := &tast.Binary{Op: tast.BAdd, Type: abT,
		LHS: &tast.Ident{Name: "a", Symbol: aSym, Type: abT},
		RHS: &tast.Ident{Name: "b", Symbol: bSym, Type: abT},
	}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	got := l.lowerExpr(bin)

	if len(l.Diagnostics()) != 0 {
		t.Fatalf("unexpected diagnostics: %v", l.Diagnostics())
	}
	hb, ok := got.(*Binary)
	if !ok {
		t.Fatalf("expected the inlined body to reduce to a single Binary, got %T", got)
	}
	if hb.Op != BAdd {
		t.Fatalf("got op %v, want BAdd", hb.Op)
	}
	lhs, ok := hb.LHS.(*Ident)
	if !ok || lhs.Symbol != aSym {
		t.Fatalf("expected LHS to be the left operand, got %#v", hb.LHS)
	}
	if lhs.Type != intT {
		t.Fatalf("expected `this` unwrapped to the underlying Int, got type %d", lhs.Type)
	}
	rhs, ok := hb.RHS.(*Ident)
	if !ok || rhs.Symbol != bSym {
		t.Fatalf("expected RHS to be the right operand, got %#v", hb.RHS)
	}
	if rhs.Type != intT {
		t.Fatalf("expected the abstract-typed argument unwrapped to Int, got type %d", rhs.Type)
	}
}

// --- @:arrayAccess get/set rewrite ---

func arrayAccessAbstract(reg *ids.Registry, intT ids.TypeId) (ids.TypeId, *tast.AbstractDecl) {
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Vec"), ids.InvalidSymbol, ids.SymAbstract, nil)
	voidT := reg.Primitive(ids.PrimVoid)

	iSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: intT})
	getDecl := &tast.FuncDecl{
		Name: "get", ReturnType: intT,
		Meta:   tast.Meta{"arrayAccess": ""},
		Params: []tast.Param{{Name: "i", Symbol: iSym, Type: intT}},
		Body:   &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Ident{Name: "i", Symbol: iSym, Type: intT}}}},
	}

	i2Sym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: intT})
	vSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: intT})
	setDecl := &tast.FuncDecl{
		Name: "set", ReturnType: voidT,
		Meta:   tast.Meta{"arrayAccess": ""},
		Params: []tast.Param{{Name: "i", Symbol: i2Sym, Type: intT}, {Name: "v", Symbol: vSym, Type: intT}},
		Body:   &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Ident{Name: "v", Symbol: vSym, Type: intT}}}},
	}

	abstract := &tast.AbstractDecl{Name: "Vec", Symbol: abSym, Type: abT, Methods: []*tast.FuncDecl{getDecl, setDecl}}
	return abT, abstract
}

func TestTryArrayAccessRewrite_Get(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abstract := arrayAccessAbstract(reg, intT)

	vecSym := declareVar(reg, abT)
	access := &tast.ArrayAccess{
		Array: &tast.Ident{Name: "vec", Symbol: vecSym, Type: abT},
		Index: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 7},
		Type:  intT,
	}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	got := l.lowerExpr(access)

	lit, ok := got.(*Literal)
	if !ok || lit.Int != 7 {
		t.Fatalf("expected the get-accessor to pass its index straight through, got %#v", got)
	}
}

func TestTryArraySetRewrite_Set(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abstract := arrayAccessAbstract(reg, intT)

	vecSym := declareVar(reg, abT)
	setStmt := &tast.ArrayAccessSet{
		Array: &tast.Ident{Name: "vec", Symbol: vecSym, Type: abT},
		Index: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 2},
		Value: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 99},
	}

	l := NewLowerer(reg, []*tast.File{{Decls: []tast.Decl{abstract}}})
	stmts := l.lowerStmt(setStmt)

	if len(stmts) != 1 {
		t.Fatalf("expected one lowered statement, got %d", len(stmts))
	}
	es, ok := stmts[0].(*ExprStmt)
	if !ok {
		t.Fatalf("expected an ExprStmt wrapping the set-accessor's inlined body, got %T", stmts[0])
	}
	lit, ok := es.X.(*Literal)
	if !ok || lit.Int != 99 {
		t.Fatalf("expected the set-accessor to pass its value straight through, got %#v", es.X)
	}
}

// --- abstract-constructor collapse ---

func TestTryConstructorCollapse_SingleFieldAbstract(t *testing.T) {
	reg, intT := newTestRegistry()
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Id"), ids.InvalidSymbol, ids.SymAbstract, nil)

	newExpr := &tast.New{Class: abSym, Args: []tast.Expr{&tast.Literal{Kind: tast.LitInt, Type: intT, Int: 42}}, Type: abT}

	l := NewLowerer(reg, nil)
	got := l.lowerExpr(newExpr)

	lit, ok := got.(*Literal)
	if !ok || lit.Int != 42 {
		t.Fatalf("expected new Id(42) to collapse to the literal 42, got %#v", got)
	}
}

// --- for-in desugaring (§4.1 item 1) ---

func TestLowerForIn_DesugarsToIteratorProtocolWhile(t *testing.T) {
	reg, intT := newTestRegistry()
	iterableSym := declareVar(reg, intT)
	varSym := declareVar(reg, intT)

	forIn := &tast.ForIn{
		VarName: "x", VarSym: varSym, VarType: intT,
		Iterable: &tast.Ident{Name: "xs", Symbol: iterableSym, Type: intT},
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.ExprStmt{
			X: &tast.Ident{Name: "x", Symbol: varSym, Type: intT},
		}}},
	}

	l := NewLowerer(reg, nil)
	stmts := l.lowerStmt(forIn)

	if len(stmts) != 3 {
		t.Fatalf("expected [iterator VarDecl, loop-var VarDecl, While], got %d statements", len(stmts))
	}
	iterDecl, ok := stmts[0].(*VarDecl)
	if !ok {
		t.Fatalf("expected the first statement to be the iterator VarDecl, got %T", stmts[0])
	}
	if id, ok := iterDecl.Init.(*Ident); !ok || id.Symbol != iterableSym {
		t.Fatalf("expected the iterator to be initialized from the lowered iterable, got %#v", iterDecl.Init)
	}
	varDecl, ok := stmts[1].(*VarDecl)
	if !ok || varDecl.Symbol != varSym {
		t.Fatalf("expected the second statement to declare the loop variable, got %#v", stmts[1])
	}

	loop, ok := stmts[2].(*While)
	if !ok {
		t.Fatalf("expected the third statement to be a While, got %T", stmts[2])
	}
	cond, ok := loop.Cond.(*MethodCall)
	if !ok || cond.Method != "hasNext" {
		t.Fatalf("expected the loop condition to call hasNext(), got %#v", loop.Cond)
	}
	if len(loop.Body.Stmts) != 2 {
		t.Fatalf("expected [next() assign, inner body], got %d statements", len(loop.Body.Stmts))
	}
	assign, ok := loop.Body.Stmts[0].(*Assign)
	if !ok {
		t.Fatalf("expected the loop body to open with the next() assignment, got %T", loop.Body.Stmts[0])
	}
	if lhs, ok := assign.LHS.(*Ident); !ok || lhs.Symbol != varSym {
		t.Fatalf("expected the assignment target to be the loop variable, got %#v", assign.LHS)
	}
	if rhs, ok := assign.RHS.(*MethodCall); !ok || rhs.Method != "next" {
		t.Fatalf("expected the assignment source to call next(), got %#v", assign.RHS)
	}
}

// --- array comprehension desugaring (§4.1 item 4) ---

func TestLowerComprehension_DesugarsToTempArrayLoop(t *testing.T) {
	reg, intT := newTestRegistry()
	arrT := reg.Array(intT)
	iterableSym := declareVar(reg, arrT)
	varSym := declareVar(reg, intT)

	comp := &tast.ArrayComprehension{
		VarName: "x", VarSym: varSym,
		Iterable: &tast.Ident{Name: "xs", Symbol: iterableSym, Type: arrT},
		Elem:     &tast.Ident{Name: "x", Symbol: varSym, Type: intT},
		Type:     arrT,
	}

	l := NewLowerer(reg, nil)
	got := l.lowerExpr(comp)

	be, ok := got.(*BlockExpr)
	if !ok {
		t.Fatalf("expected a BlockExpr, got %T", got)
	}
	if len(be.Stmts) != 4 {
		t.Fatalf("expected [iterDecl, tmpDecl, varDecl, loop], got %d statements", len(be.Stmts))
	}
	iterDecl, ok := be.Stmts[0].(*VarDecl)
	if !ok || !strings.HasPrefix(iterDecl.Name, "__iter") {
		t.Fatalf("expected the first statement to be the iterator temp, got %#v", be.Stmts[0])
	}
	tmpDecl, ok := be.Stmts[1].(*VarDecl)
	if !ok || !strings.HasPrefix(tmpDecl.Name, "__comp") {
		t.Fatalf("expected the second statement to be the result-array temp, got %#v", be.Stmts[1])
	}
	if _, ok := tmpDecl.Init.(*NewArray); !ok {
		t.Fatalf("expected the result-array temp to be initialized from NewArray, got %#v", tmpDecl.Init)
	}
	if vd, ok := be.Stmts[2].(*VarDecl); !ok || vd.Symbol != varSym {
		t.Fatalf("expected the third statement to declare the loop variable, got %#v", be.Stmts[2])
	}
	if _, ok := be.Stmts[3].(*While); !ok {
		t.Fatalf("expected the fourth statement to be the comprehension loop, got %T", be.Stmts[3])
	}
	result, ok := be.Result.(*Ident)
	if !ok || result.Symbol != tmpDecl.Symbol {
		t.Fatalf("expected the block's result to be the result-array temp, got %#v", be.Result)
	}
}

// --- string-interpolation lowering (§4.1 item 3) ---

func TestLowerStringInterp_ConcatenatesWithToStringForNonStringParts(t *testing.T) {
	reg, intT := newTestRegistry()
	stringT := reg.Primitive(ids.PrimString)
	countSym := declareVar(reg, intT)

	interp := &tast.StringInterp{
		Literals: []string{"Count: ", "!"},
		Exprs:    []tast.Expr{&tast.Ident{Name: "n", Symbol: countSym, Type: intT}},
		Type:     stringT,
	}

	l := NewLowerer(reg, nil)
	got := l.lowerExpr(interp)

	outer, ok := got.(*Binary)
	if !ok || outer.Op != BAdd {
		t.Fatalf("expected the outer concatenation to be a Binary(+), got %#v", got)
	}
	trailing, ok := outer.RHS.(*Literal)
	if !ok || trailing.String != "!" {
		t.Fatalf("expected the trailing literal \"!\", got %#v", outer.RHS)
	}

	inner, ok := outer.LHS.(*Binary)
	if !ok || inner.Op != BAdd {
		t.Fatalf("expected a nested Binary(+) on the left, got %#v", outer.LHS)
	}
	leading, ok := inner.LHS.(*Literal)
	if !ok || leading.String != "Count: " {
		t.Fatalf("expected the leading literal \"Count: \", got %#v", inner.LHS)
	}
	wrapped, ok := inner.RHS.(*MethodCall)
	if !ok || wrapped.Method != "toString" {
		t.Fatalf("expected the non-string expression wrapped in toString(), got %#v", inner.RHS)
	}
}
