package pipeline

import (
	"testing"

	"github.com/bladec-lang/bladec/internal/bundle"
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/mir"
	"github.com/bladec-lang/bladec/internal/tast"
)

// noExternsMapper is a StdlibMapper that declares no runtime externs,
// forcing every allocation-site decision in internal/mir's lowering to
// take its stack-allocation fallback instead of a call to rt_malloc.
// That keeps these end-to-end tests runnable: Compile's own
// linkAgainstRuntime has no host rt_malloc address to resolve against
// (§4.9), so any module that actually emits a call to it would fail to
// link.
type noExternsMapper struct{}

func (noExternsMapper) Resolve(string, string) (string, bool) { return "", false }
func (noExternsMapper) Externs() []mir.ExternSig              { return nil }

func countMirOp(instrs []mir.Instr, op mir.Op) int {
	n := 0
	for _, i := range instrs {
		if i.Op == op {
			n++
		}
	}
	return n
}

func allInstrs(fn *mir.Function) []mir.Instr {
	var out []mir.Instr
	for _, b := range fn.BlockOrder() {
		out = append(out, fn.Blocks[b].Instrs...)
	}
	return out
}

// arithmetic builds Scenario 1 (§8.3): `return (10+5)*2 - 4`.
func arithmetic(reg *ids.Registry) *tast.File {
	intT := reg.Primitive(ids.PrimInt)
	fnSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymFunction, DeclaredType: intT})

	lit := func(v int64) tast.Expr { return &tast.Literal{Kind: tast.LitInt, Type: intT, Int: v} }
	sum := &tast.Binary{Op: tast.BAdd, Type: intT, LHS: lit(10), RHS: lit(5)}
	prod := &tast.Binary{Op: tast.BMul, Type: intT, LHS: sum, RHS: lit(2)}
	expr := &tast.Binary{Op: tast.BSub, Type: intT, LHS: prod, RHS: lit(4)}

	fn := &tast.FuncDecl{
		Name: "main", Symbol: fnSym, ReturnType: intT,
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: expr}}},
	}
	return &tast.File{Name: "main.hx", Decls: []tast.Decl{fn}}
}

func TestCompile_ArithmeticEndToEnd(t *testing.T) {
	reg := ids.NewRegistry()
	res, err := Compile([]*tast.File{arithmetic(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}
	defer res.Program.Close()

	fn, ok := res.Program.FunctionPtr("main")
	if !ok {
		t.Fatalf("expected 'main' to be linked")
	}
	if got := res.Program.Invoke0Int64(fn); got != 26 {
		t.Fatalf("got %d, want 26 ((10+5)*2 - 4)", got)
	}
}

// loopSum builds Scenario 2 (§8.3): a while loop summing 0..4, the CFG
// and back-edge shape internal/mir's own lowering tests exercise in
// isolation; this is the same shape driven all the way through codegen.
func loopSum(reg *ids.Registry) *tast.File {
	intT := reg.Primitive(ids.PrimInt)
	boolT := reg.Primitive(ids.PrimBool)
	fnSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymFunction, DeclaredType: intT})
	iSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: intT})
	sumSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: intT})

	iDecl := &tast.VarDecl{Name: "i", Symbol: iSym, Type: intT, Init: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 0}}
	sumDecl := &tast.VarDecl{Name: "sum", Symbol: sumSym, Type: intT, Init: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 0}}

	cond := &tast.Binary{Op: tast.BLt, Type: boolT,
		LHS: &tast.Ident{Name: "i", Symbol: iSym, Type: intT},
		RHS: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 5},
	}
	sumAssign := &tast.Assign{
		LHS: &tast.Ident{Name: "sum", Symbol: sumSym, Type: intT},
		RHS: &tast.Binary{Op: tast.BAdd, Type: intT,
			LHS: &tast.Ident{Name: "sum", Symbol: sumSym, Type: intT},
			RHS: &tast.Ident{Name: "i", Symbol: iSym, Type: intT},
		},
	}
	iAssign := &tast.Assign{
		LHS: &tast.Ident{Name: "i", Symbol: iSym, Type: intT},
		RHS: &tast.Binary{Op: tast.BAdd, Type: intT,
			LHS: &tast.Ident{Name: "i", Symbol: iSym, Type: intT},
			RHS: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 1},
		},
	}
	loop := &tast.While{Cond: cond, Body: &tast.Block{Stmts: []tast.Stmt{sumAssign, iAssign}}}
	ret := &tast.Return{Value: &tast.Ident{Name: "sum", Symbol: sumSym, Type: intT}}

	fn := &tast.FuncDecl{
		Name: "main", Symbol: fnSym, ReturnType: intT,
		Body: &tast.Block{Stmts: []tast.Stmt{iDecl, sumDecl, loop, ret}},
	}
	return &tast.File{Name: "main.hx", Decls: []tast.Decl{fn}}
}

func TestCompile_LoopWithPhiEndToEnd(t *testing.T) {
	reg := ids.NewRegistry()
	res, err := Compile([]*tast.File{loopSum(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}
	defer res.Program.Close()

	// Scenario 2's structural requirement: the loop header carries one
	// phi per loop-carried local -- two here, for i and sum -- each
	// merging the preheader's initial value with the back edge's.
	mainId, ok := res.Module.FunctionByName("main")
	if !ok {
		t.Fatalf("expected a lowered 'main' function in the MIR module")
	}
	mainFn := res.Module.Function(mainId)
	var header *mir.Block
	for _, id := range mainFn.BlockOrder() {
		blk := mainFn.Blocks[id]
		if len(blk.Phis) > 0 && blk.Term.Kind == mir.TermCondBranch {
			header = blk
			break
		}
	}
	if header == nil {
		t.Fatalf("expected a loop header block carrying phi nodes")
	}
	if len(header.Phis) != 2 {
		t.Fatalf("expected exactly two loop-header phis (i and sum), got %d", len(header.Phis))
	}
	for _, phi := range header.Phis {
		if len(phi.Incoming) != 2 {
			t.Fatalf("expected each header phi to merge the preheader and back edge, got %d incoming", len(phi.Incoming))
		}
	}

	fn, ok := res.Program.FunctionPtr("main")
	if !ok {
		t.Fatalf("expected 'main' to be linked")
	}
	if got := res.Program.Invoke0Int64(fn); got != 10 {
		t.Fatalf("got %d, want 10 (0+1+2+3+4)", got)
	}
}

// classFieldDispatch builds Scenario 3 (§8.3): a class with one field and
// one method reading it through the implicit receiver, invoked via the
// qualified-name "ClassName.method" dispatch internal/mir's lowering
// compiles method calls to.
func classFieldDispatch(reg *ids.Registry) *tast.File {
	intT := reg.Primitive(ids.PrimInt)
	classT, classSym := reg.DeclareNominal(ids.KindClass, reg.Intern("Box"), ids.InvalidSymbol, ids.SymClass, nil)

	fieldSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymField, Owner: classSym, DeclaredType: intT})
	field := &tast.FieldDecl{Name: "v", Symbol: fieldSym, Type: intT}

	getSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymMethod, Owner: classSym, DeclaredType: intT})
	getMethod := &tast.FuncDecl{
		Name: "get", Symbol: getSym, ReturnType: intT,
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Ident{Name: "v", Symbol: fieldSym, Type: intT}}}},
	}
	classDecl := &tast.ClassDecl{Name: "Box", Symbol: classSym, Type: classT, Fields: []*tast.FieldDecl{field}, Methods: []*tast.FuncDecl{getMethod}}

	fnSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymFunction, DeclaredType: intT})
	bSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: classT})
	bDecl := &tast.VarDecl{
		Name: "b", Symbol: bSym, Type: classT,
		Init: &tast.New{Class: classSym, Args: []tast.Expr{&tast.Literal{Kind: tast.LitInt, Type: intT, Int: 7}}, Type: classT},
	}
	call := &tast.MethodCall{Receiver: &tast.Ident{Name: "b", Symbol: bSym, Type: classT}, Method: "get", MethodSym: getSym, Type: intT}
	ret := &tast.Return{Value: call}

	fn := &tast.FuncDecl{Name: "main", Symbol: fnSym, ReturnType: intT, Body: &tast.Block{Stmts: []tast.Stmt{bDecl, ret}}}
	return &tast.File{Name: "main.hx", Decls: []tast.Decl{classDecl, fn}}
}

func TestCompile_ClassFieldAndMethodDispatchEndToEnd(t *testing.T) {
	reg := ids.NewRegistry()
	res, err := Compile([]*tast.File{classFieldDispatch(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}
	defer res.Program.Close()

	fn, ok := res.Program.FunctionPtr("main")
	if !ok {
		t.Fatalf("expected 'main' to be linked")
	}
	if got := res.Program.Invoke0Int64(fn); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

// zeroCostAbstractOp builds the literal Scenario 4 source (§8.3):
//
//	abstract Counter(Int) from Int to Int {
//	  @:op(A + B) inline function add(r:Counter):Counter { return this + r; } }
//	class M { static function main():Int {
//	  var a:Counter = 5; var b:Counter = 10; return a + b; } }
//
// The call site's `+` rewrites to the tagged method; inside the inlined
// body, `this` and the Counter-typed argument take the underlying Int,
// so the body's own `+` lowers as one primitive add instead of
// re-firing the rewrite on itself. Both initializers are
// abstract-constructor shapes §4.1's collapse erases before MIR
// lowering ever sees a New, so the whole expression reaches codegen as
// exactly one add with no call and no allocation of any kind -- P7/P8.
func zeroCostAbstractOp(reg *ids.Registry) *tast.File {
	intT := reg.Primitive(ids.PrimInt)
	abT, abSym := reg.DeclareNominal(ids.KindAbstract, reg.Intern("Counter"), ids.InvalidSymbol, ids.SymAbstract, nil)
	reg.PopulateClass(abT, intT)

	rSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: abT})
	add := &tast.FuncDecl{
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
	abstract := &tast.AbstractDecl{Name: "Counter", Symbol: abSym, Type: abT, Underlying: intT, Methods: []*tast.FuncDecl{add}}

	fnSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymFunction, DeclaredType: intT})
	aSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: abT})
	bSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: abT})
	aDecl := &tast.VarDecl{Name: "a", Symbol: aSym, Type: abT,
		Init: &tast.New{Class: abSym, Args: []tast.Expr{&tast.Literal{Kind: tast.LitInt, Type: intT, Int: 5}}, Type: abT}}
	bDecl := &tast.VarDecl{Name: "b", Symbol: bSym, Type: abT,
		Init: &tast.New{Class: abSym, Args: []tast.Expr{&tast.Literal{Kind: tast.LitInt, Type: intT, Int: 10}}, Type: abT}}
	sum := &tast.Binary{Op: tast.BAdd, Type: abT,
		LHS: &tast.Ident{Name: "a", Symbol: aSym, Type: abT},
		RHS: &tast.Ident{Name: "b", Symbol: bSym, Type: abT},
	}
	ret := &tast.Return{Value: sum}

	fn := &tast.FuncDecl{Name: "main", Symbol: fnSym, ReturnType: intT, Body: &tast.Block{Stmts: []tast.Stmt{aDecl, bDecl, ret}}}
	return &tast.File{Name: "main.hx", Decls: []tast.Decl{abstract, fn}}
}

// closureCapture builds Scenario 5 (§8.3): `var x = 10; var addX =
// function(y) return x + y; return addX(32)`. With no rt_malloc extern
// declared, the environment takes its stack fallback, which stays valid
// here because the closure is invoked before main's frame unwinds.
func closureCapture(reg *ids.Registry) *tast.File {
	intT := reg.Primitive(ids.PrimInt)
	fnT := reg.Function([]ids.TypeId{intT}, intT, false)

	mainSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymFunction, DeclaredType: intT})
	xSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: intT})
	ySym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymParam, DeclaredType: intT})
	addXSym := reg.DeclareSymbol(ids.SymbolInfo{Kind: ids.SymVar, DeclaredType: fnT})

	xDecl := &tast.VarDecl{Name: "x", Symbol: xSym, Type: intT, Init: &tast.Literal{Kind: tast.LitInt, Type: intT, Int: 10}}
	lambda := &tast.Lambda{
		Params: []tast.Param{{Name: "y", Symbol: ySym, Type: intT}},
		Body: &tast.Block{Stmts: []tast.Stmt{&tast.Return{Value: &tast.Binary{
			Op: tast.BAdd, Type: intT,
			LHS: &tast.Ident{Name: "x", Symbol: xSym, Type: intT},
			RHS: &tast.Ident{Name: "y", Symbol: ySym, Type: intT},
		}}}},
		Type: fnT,
	}
	addXDecl := &tast.VarDecl{Name: "addX", Symbol: addXSym, Type: fnT, Init: lambda}
	call := &tast.Call{
		CalleeExpr: &tast.Ident{Name: "addX", Symbol: addXSym, Type: fnT},
		Args:       []tast.Expr{&tast.Literal{Kind: tast.LitInt, Type: intT, Int: 32}},
		Type:       intT,
	}
	fn := &tast.FuncDecl{
		Name: "main", Symbol: mainSym, ReturnType: intT,
		Body: &tast.Block{Stmts: []tast.Stmt{xDecl, addXDecl, &tast.Return{Value: call}}},
	}
	return &tast.File{Name: "main.hx", Decls: []tast.Decl{fn}}
}

func TestCompile_ClosureCaptureEndToEnd(t *testing.T) {
	reg := ids.NewRegistry()
	res, err := Compile([]*tast.File{closureCapture(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}

	// The lambda compiles as its own function taking the environment
	// pointer first (§4.2.4); main builds the env and calls through the
	// closure pair.
	var lambdaFn *mir.Function
	for _, f := range res.Module.Functions {
		if len(f.Sig.Params) == 2 && f.Sig.Params[0].Name == "env" {
			lambdaFn = f
		}
	}
	if lambdaFn == nil {
		t.Fatalf("expected a synthesized lambda function with an env parameter")
	}
	mainId, _ := res.Module.FunctionByName("main")
	if countMirOp(allInstrs(res.Module.Function(mainId)), mir.OpMakeClosure) != 1 {
		t.Fatalf("expected main to build exactly one closure value")
	}

	defer res.Program.Close()
	fn, ok := res.Program.FunctionPtr("main")
	if !ok {
		t.Fatalf("expected 'main' to be linked")
	}
	if got := res.Program.Invoke0Int64(fn); got != 42 {
		t.Fatalf("got %d, want 42 (10+32)", got)
	}
}

// TestLoadBundle_SkipsCompilationAndRunsEntry approximates Scenario 6
// for the whole-program path (§4.6.3, P6): modules compiled once are
// packaged into a .rzb, and a fresh load runs codegen only -- no
// lowering -- yet produces the same observable result.
func TestLoadBundle_SkipsCompilationAndRunsEntry(t *testing.T) {
	reg := ids.NewRegistry()
	first, err := Compile([]*tast.File{arithmetic(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	first.Program.Close()

	reg2 := ids.NewRegistry()
	second, err := Compile([]*tast.File{loopSum(reg2)}, Config{ModuleName: "lib", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile lib: %v", err)
	}
	second.Program.Close()

	path := t.TempDir() + "/program.rzb"
	modules := map[string]*mir.Module{"main": first.Module, "lib": second.Module}
	if err := bundle.Write(path, "main", "main", "test", modules); err != nil {
		t.Fatalf("bundle.Write: %v", err)
	}

	res, entry, err := LoadBundle(path, Config{})
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}
	defer res.Program.Close()

	if entry != "main::main" {
		t.Fatalf("entry = %q, want %q", entry, "main::main")
	}
	fn, ok := res.Program.FunctionPtr(entry)
	if !ok {
		t.Fatalf("expected the bundle entry to be linked")
	}
	if got := res.Program.Invoke0Int64(fn); got != 26 {
		t.Fatalf("got %d, want 26 (same result as the fresh compile)", got)
	}
	if lib, ok := res.Program.FunctionPtr("lib::main"); !ok {
		t.Fatalf("expected the second bundled module's function to be linked too")
	} else if got := res.Program.Invoke0Int64(lib); got != 10 {
		t.Fatalf("lib::main = %d, want 10", got)
	}
}

func TestCompile_AbstractZeroCostOperatorEndToEnd(t *testing.T) {
	reg := ids.NewRegistry()
	res, err := Compile([]*tast.File{zeroCostAbstractOp(reg)}, Config{ModuleName: "main", StdlibMappings: noExternsMapper{}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, d := range res.Diagnostics {
		t.Fatalf("unexpected diagnostic: %s", d.Message)
	}

	mainFn, ok := res.Module.FunctionByName("main")
	if !ok {
		t.Fatalf("expected a lowered 'main' function in the MIR module")
	}
	fn := res.Module.Function(mainFn)
	instrs := allInstrs(fn)

	if n := countMirOp(instrs, mir.OpAdd); n != 1 {
		t.Fatalf("expected exactly one add instruction, got %d: %+v", n, instrs)
	}
	if n := countMirOp(instrs, mir.OpCall); n != 0 {
		t.Fatalf("expected zero calls (the operator overload must resolve statically), got %d", n)
	}
	if n := countMirOp(instrs, mir.OpCreateStruct); n != 0 {
		t.Fatalf("expected zero struct allocations (abstract constructors collapse away), got %d", n)
	}

	defer res.Program.Close()
	mainPtr, ok := res.Program.FunctionPtr("main")
	if !ok {
		t.Fatalf("expected 'main' to be linked")
	}
	if got := res.Program.Invoke0Int64(mainPtr); got != 15 {
		t.Fatalf("got %d, want 15 (5+10)", got)
	}
}
