package mir

import (
	"fmt"
	"sort"

	"github.com/bladec-lang/bladec/internal/allocator"
	"github.com/bladec-lang/bladec/internal/diagnostic"
	"github.com/bladec-lang/bladec/internal/hir"
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/layout"
)

// StdlibMapper resolves a (receiver type name, method name) pair to the
// symbol name of a runtime extern, per §4.2.7. internal/abi's Registry
// satisfies this interface; mir does not import internal/abi directly
// to avoid a package cycle (abi's Extern is expressed in terms of
// *mir.MirType), so the pipeline wires the concrete registry in.
type StdlibMapper interface {
	Resolve(receiverTypeName, method string) (symbol string, ok bool)
	Externs() []ExternSig
}

// ExternSig is a runtime-linked function's backend-level signature, the
// subset of internal/abi.Extern that BuildModule needs in order to
// predeclare every extern as a bodyless Function before lowering any
// call site that looks one up by name (§4.3.1).
type ExternSig struct {
	Symbol string
	Params []*MirType
	Ret    *MirType
}

// handlerInfo is one active try/catch scope (§4.2.2's landing-pad CFG
// shape): a Throw lowered while handlers is non-empty writes the caught
// variable and branches to the innermost handler's landing block
// instead of ending the function.
type handlerInfo struct {
	landing  BlockId
	catchSym ids.SymbolId
}

type loopCtx struct {
	continueTarget BlockId
	breakTarget    BlockId
}

// BuildModule lowers a set of HIR files into one MIR module (Component
// E, §4.2): it performs SSA construction, closure-environment synthesis,
// constructor/field layout lowering, type-metadata emission, and stdlib
// intrinsic dispatch. Classes are declared in two phases --mirroring
// ids.Registry's DeclareNominal/PopulateClass discipline-- so that a
// method body may reference its own or a sibling class before every
// class in the compilation unit has been fully walked.
func BuildModule(name string, files []*hir.File, reg *ids.Registry, mapper StdlibMapper) (*Module, []diagnostic.Diagnostic) {
	b := &builder{
		module: NewModule(name),
		reg:    reg,
		mapper: mapper,
	}
	b.tt = NewTypeTranslator(reg, b.module.TypeDefs)

	// Phase 0: predeclare every runtime extern as a bodyless Function so
	// phase 2's FunctionByName lookups (rt_malloc, rt_array_new, ...)
	// resolve regardless of which order declarations appear in.
	if mapper != nil {
		for _, e := range mapper.Externs() {
			sig := Signature{Ret: e.Ret, Conv: ConvExternC}
			for _, p := range e.Params {
				sig.Params = append(sig.Params, Param{Type: p})
			}
			b.module.AddFunction(NewFunction(e.Symbol, sig))
		}
	}

	// Phase 1: declare every class/interface/enum's shape so method
	// bodies compiled in phase 2 can reference any of them.
	for _, f := range files {
		for _, d := range f.Decls {
			b.declareType(d)
		}
	}

	// Phase 2: lower every function body (free functions and methods).
	for _, f := range files {
		for _, d := range f.Decls {
			b.lowerTopDecl(d)
		}
	}

	return b.module, b.diags
}

type builder struct {
	module         *Module
	reg            *ids.Registry
	tt             *TypeTranslator
	mapper         StdlibMapper
	diags          []diagnostic.Diagnostic
	closureCounter int

	layoutCalc    *layout.LayoutCalculator
	structLayouts map[string]*layout.StructLayout
}

// structLayout computes (and memoizes) the field-offset layout of a
// declared class, consulting internal/layout's calculator for the
// struct-packing rules (§4.13): MirType's own Size() deliberately
// collapses every aggregate kind to a pointer-sized slot (types.go), so
// real allocation sizing and field addressing go through here instead.
func (b *builder) structLayout(name string) *layout.StructLayout {
	if b.layoutCalc == nil {
		b.layoutCalc = layout.NewLayoutCalculator()
		b.structLayouts = make(map[string]*layout.StructLayout)
	}
	if l, ok := b.structLayouts[name]; ok {
		return l
	}
	td, ok := b.module.TypeDefs[name]
	if !ok {
		return &layout.StructLayout{Name: name, TotalSize: 8, Alignment: 8}
	}
	// This baseline tier stores every field in a full word slot (the
	// same stride codegen's aggregate loads and stores use), so the
	// calculator is fed word-sized fields and computes the packed
	// offsets and total allocation size from those.
	fields := make([]layout.FieldInfo, len(td.Fields))
	for i, f := range td.Fields {
		fields[i] = layout.FieldInfo{Name: f.Name, Type: f.Type.String(), Size: 8, Alignment: 8}
	}
	l, err := b.layoutCalc.CalculateStructLayout(name, fields)
	if err != nil {
		l = &layout.StructLayout{Name: name, TotalSize: 8, Alignment: 8}
	}
	b.structLayouts[name] = l
	return l
}

// fieldOffset returns the byte offset of a named field within a declared
// class, per the layout the calculator assigned it.
func (b *builder) fieldOffset(structName, field string) int64 {
	for _, f := range b.structLayout(structName).Fields {
		if f.Name == field {
			return f.Offset
		}
	}
	return 0
}

// typeName resolves the receiver-type name the stdlib mapping table is
// keyed by (§4.2.7): primitive kinds map to their Haxe names ("Int",
// "String", ...), array types to "Array", and nominal kinds to their
// declared symbol's name.
func (b *builder) typeName(t ids.TypeId) string {
	info := b.reg.Type(t)
	switch info.Kind {
	case ids.KindPrimitive:
		return info.Primitive.String()
	case ids.KindArray:
		return "Array"
	case ids.KindOptional:
		return b.typeName(info.Elem)
	case ids.KindClass, ids.KindInterface, ids.KindEnum, ids.KindAbstract:
		return b.reg.String(b.reg.Symbol(info.Symbol).Name)
	default:
		return ""
	}
}

func (b *builder) errorf(format string, args ...interface{}) {
	d := diagnostic.NewDiagnostic().
		Error().
		Lowering().
		Code("M0001").
		Title("MIR lowering error").
		Message(fmt.Sprintf(format, args...)).
		Build()
	b.diags = append(b.diags, *d)
}

func (b *builder) declareType(d hir.Decl) {
	switch d := d.(type) {
	case *hir.ClassDecl:
		td := &TypeDef{Kind: TypeDefClass, Name: d.Name}
		for _, fld := range d.Fields {
			if fld.IsStatic {
				continue
			}
			td.Fields = append(td.Fields, ClassField{Name: fld.Name, Type: b.tt.Translate(fld.Type)})
		}
		for _, m := range d.Methods {
			td.Methods = append(td.Methods, ClassMethod{Name: m.Name})
		}
		if d.Super != ids.InvalidSymbol {
			td.Super = b.reg.String(b.reg.Symbol(d.Super).Name)
		}
		for _, iface := range d.Interfaces {
			td.Interfaces = append(td.Interfaces, b.reg.String(b.reg.Symbol(iface).Name))
		}
		b.module.TypeDefs[d.Name] = td

	case *hir.EnumDecl:
		td := &TypeDef{Kind: TypeDefEnum, Name: d.Name}
		for _, v := range d.Variants {
			variant := EnumVariant{Name: v.Name, Tag: v.Tag}
			for _, fld := range v.Fields {
				variant.PayloadFields = append(variant.PayloadFields, b.tt.Translate(fld.Type))
			}
			td.Variants = append(td.Variants, variant)
		}
		b.module.TypeDefs[d.Name] = td
	}
}

func (b *builder) lowerTopDecl(d hir.Decl) {
	switch d := d.(type) {
	case *hir.FuncDecl:
		fn := b.lowerFuncDecl(d, "")
		id := b.module.AddFunction(fn)
		if d.Name == "main" {
			b.module.EntryPoint = id
			b.module.HasEntry = true
		}

	case *hir.ClassDecl:
		td := b.module.TypeDefs[d.Name]
		for i, m := range d.Methods {
			fn := b.lowerFuncDecl(m, d.Name)
			id := b.module.AddFunction(fn)
			td.Methods[i].Func = id
		}
	}
}

// lowerFuncDecl lowers one function or method. receiverType is "" for a
// free function; otherwise the owning class's name, used to synthesize
// the implicit receiver parameter's type.
func (b *builder) lowerFuncDecl(d *hir.FuncDecl, receiverType string) *Function {
	sig := Signature{Ret: b.tt.Translate(d.ReturnType)}
	if sig.Ret.Kind == KStruct {
		sig.UsesSret = true
	}
	if receiverType != "" && !d.IsStatic {
		sig.Params = append(sig.Params, Param{Name: "this", Type: Ptr(Struct(receiverType, nil))})
	}
	for _, p := range d.Params {
		sig.Params = append(sig.Params, Param{Name: p.Name, Type: b.tt.Translate(p.Type)})
	}
	if d.IsExtern {
		sig.Conv = ConvExternC
	}

	name := d.Name
	if receiverType != "" {
		name = receiverType + "." + d.Name
	}
	fn := NewFunction(name, sig)

	if d.Body == nil {
		return fn // extern: no blocks (§4.3.1)
	}

	fb := newFuncBuilder(b, fn)

	entry := fn.NewBlock()
	fn.Entry = entry.ID
	fb.cur = entry
	fb.sealed[entry.ID] = true // the entry block has no predecessors

	pi := 0
	if receiverType != "" && !d.IsStatic {
		fb.declareVar(thisSymbol, sig.Params[0].Type)
		fb.writeVar(thisSymbol, fn.ParamValues[0])
		pi = 1
	}
	for i, p := range d.Params {
		fb.declareVar(p.Symbol, sig.Params[pi+i].Type)
		fb.writeVar(p.Symbol, fn.ParamValues[pi+i])
	}

	fb.lowerBlockStmts(d.Body)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermReturn})
	}
	fb.finish()

	return fn
}

// funcBuilder drives on-the-fly SSA construction for a single function
// body (§4.2.1): source locals are named locations, each assignment
// mints a fresh ValueId, and control-flow joins get phi nodes on
// demand. The sealing discipline is the standard one -- a block's phis
// are not completed until every predecessor is known, so loop headers
// are sealed last, after their back edge exists. Reads reaching an
// unsealed block leave an operandless phi behind (deferred), filled in
// at seal time.
type funcBuilder struct {
	b        *builder
	fn       *Function
	cur      *Block
	termDone map[BlockId]bool
	loops    []loopCtx
	handlers []handlerInfo
	tmp      int

	vars     map[ids.SymbolId]*MirType // every local/param/capture in scope
	defs     map[BlockId]map[ids.SymbolId]ValueId
	sealed   map[BlockId]bool
	preds    map[BlockId][]BlockId
	deferred map[BlockId]map[ids.SymbolId]ValueId // incomplete phis awaiting sealing
}

func newFuncBuilder(b *builder, fn *Function) *funcBuilder {
	return &funcBuilder{
		b:        b,
		fn:       fn,
		termDone: make(map[BlockId]bool),
		vars:     make(map[ids.SymbolId]*MirType),
		defs:     make(map[BlockId]map[ids.SymbolId]ValueId),
		sealed:   make(map[BlockId]bool),
		preds:    make(map[BlockId][]BlockId),
		deferred: make(map[BlockId]map[ids.SymbolId]ValueId),
	}
}

func (fb *funcBuilder) isDone() bool { return fb.termDone[fb.cur.ID] }

func (fb *funcBuilder) setTerm(t Terminator) {
	fb.cur.Term = t
	fb.termDone[fb.cur.ID] = true
	for _, succ := range t.Successors() {
		fb.preds[succ] = append(fb.preds[succ], fb.cur.ID)
	}
}

func (fb *funcBuilder) switchTo(blk *Block) { fb.cur = blk }

// thisSymbol is a sentinel key for the implicit receiver, which has no
// ids.SymbolId of its own at the HIR level.
const thisSymbol = ids.SymbolId(0)

func (fb *funcBuilder) declareVar(sym ids.SymbolId, ty *MirType) {
	fb.vars[sym] = ty
}

func (fb *funcBuilder) blockDefs(id BlockId) map[ids.SymbolId]ValueId {
	m := fb.defs[id]
	if m == nil {
		m = make(map[ids.SymbolId]ValueId)
		fb.defs[id] = m
	}
	return m
}

// writeVar records val as sym's live definition in the current block
// (§4.2.1 item 2).
func (fb *funcBuilder) writeVar(sym ids.SymbolId, val ValueId) {
	fb.blockDefs(fb.cur.ID)[sym] = val
}

// readVar returns sym's live definition at the current point, inserting
// phi nodes at joins and loop headers as needed (§4.2.1 items 3-4).
func (fb *funcBuilder) readVar(sym ids.SymbolId) ValueId {
	return fb.readVarIn(fb.cur.ID, sym)
}

func (fb *funcBuilder) readVarIn(id BlockId, sym ids.SymbolId) ValueId {
	if v, ok := fb.defs[id][sym]; ok {
		return v
	}
	return fb.readVarRecursive(id, sym)
}

func (fb *funcBuilder) readVarRecursive(id BlockId, sym ids.SymbolId) ValueId {
	var v ValueId
	switch {
	case !fb.sealed[id]:
		// Not all predecessors known yet (a loop header mid-lowering):
		// leave an operandless phi and complete it at seal time.
		v = fb.newPhi(id, sym)
		if fb.deferred[id] == nil {
			fb.deferred[id] = make(map[ids.SymbolId]ValueId)
		}
		fb.deferred[id][sym] = v
	case len(fb.preds[id]) == 1:
		v = fb.readVarIn(fb.preds[id][0], sym)
	default:
		// A sealed join: the phi's own definition is recorded before its
		// operands are read, so a read cycle through a loop terminates
		// at the phi instead of recursing forever.
		v = fb.newPhi(id, sym)
		fb.blockDefs(id)[sym] = v
		fb.addPhiOperands(id, sym, v)
	}
	fb.blockDefs(id)[sym] = v
	return v
}

func (fb *funcBuilder) newPhi(id BlockId, sym ids.SymbolId) ValueId {
	ty := fb.vars[sym]
	name := fb.b.reg.String(fb.b.reg.Symbol(sym).Name)
	if name == "" {
		name = "phi"
	}
	dest := fb.fn.NewValue(name, ty, false, AllocRegister)
	blk := fb.fn.Blocks[id]
	blk.Phis = append(blk.Phis, Phi{Dest: dest, Type: ty})
	return dest
}

func (fb *funcBuilder) addPhiOperands(id BlockId, sym ids.SymbolId, dest ValueId) {
	blk := fb.fn.Blocks[id]
	for pi := range blk.Phis {
		if blk.Phis[pi].Dest != dest {
			continue
		}
		for _, p := range fb.preds[id] {
			blk.Phis[pi].Incoming = append(blk.Phis[pi].Incoming, PhiEdge{Pred: p, Value: fb.readVarIn(p, sym)})
		}
		return
	}
}

// seal marks a block's predecessor set complete and fills in every phi
// a read left behind while it was open (§4.2.1 block sealing).
func (fb *funcBuilder) seal(id BlockId) {
	if fb.sealed[id] {
		return
	}
	fb.sealed[id] = true
	pending := fb.deferred[id]
	delete(fb.deferred, id)
	syms := make([]ids.SymbolId, 0, len(pending))
	for sym := range pending {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	for _, sym := range syms {
		fb.addPhiOperands(id, sym, pending[sym])
	}
}

// finish seals any block still open, gives any block that fell off the
// end of lowering an explicit Unreachable terminator, and removes the
// trivial phis demand-driven construction leaves behind (a phi whose
// operands all name one value).
func (fb *funcBuilder) finish() {
	for _, id := range fb.fn.BlockOrder() {
		fb.seal(id)
	}
	for _, id := range fb.fn.BlockOrder() {
		if !fb.termDone[id] {
			fb.fn.Blocks[id].Term = Terminator{Kind: TermUnreachable}
		}
	}
	fb.removeTrivialPhis()
}

func (fb *funcBuilder) removeTrivialPhis() {
	for changed := true; changed; {
		changed = false
		for _, id := range fb.fn.BlockOrder() {
			blk := fb.fn.Blocks[id]
			for pi := 0; pi < len(blk.Phis); pi++ {
				phi := blk.Phis[pi]
				var same ValueId
				trivial := len(phi.Incoming) > 0
				for _, e := range phi.Incoming {
					if e.Value == phi.Dest {
						continue
					}
					if same == InvalidValue {
						same = e.Value
						continue
					}
					if e.Value != same {
						trivial = false
						break
					}
				}
				if !trivial || same == InvalidValue {
					continue
				}
				blk.Phis = append(blk.Phis[:pi], blk.Phis[pi+1:]...)
				fb.replaceValue(phi.Dest, same)
				changed = true
				pi--
			}
		}
	}
}

// replaceValue rewrites every use of old to new across the whole
// function, used when a trivial phi collapses to its single operand.
func (fb *funcBuilder) replaceValue(old, new ValueId) {
	repl := func(v *ValueId) {
		if *v == old {
			*v = new
		}
	}
	for _, id := range fb.fn.BlockOrder() {
		blk := fb.fn.Blocks[id]
		for pi := range blk.Phis {
			for ei := range blk.Phis[pi].Incoming {
				repl(&blk.Phis[pi].Incoming[ei].Value)
			}
		}
		for ii := range blk.Instrs {
			in := &blk.Instrs[ii]
			repl(&in.LHS)
			repl(&in.RHS)
			repl(&in.Src)
			repl(&in.Ptr)
			repl(&in.Value)
			repl(&in.Base)
			repl(&in.Index)
			repl(&in.Agg)
			repl(&in.Union)
			repl(&in.CalleeVal)
			repl(&in.EnvVal)
			repl(&in.Closure)
			for ai := range in.AggFields {
				repl(&in.AggFields[ai])
			}
			for ai := range in.Args {
				repl(&in.Args[ai])
			}
		}
		t := &blk.Term
		repl(&t.Value)
		repl(&t.Cond)
		repl(&t.SwitchValue)
		repl(&t.ExceptionValue)
	}
	delete(fb.fn.Locals, old)
}

func (fb *funcBuilder) newTemp(ty *MirType) ValueId {
	name := fmt.Sprintf("t%d", fb.tmp)
	fb.tmp++
	return fb.fn.NewValue(name, ty, false, AllocRegister)
}

func (fb *funcBuilder) emit(op Op, ty *MirType, fill func(*Instr)) ValueId {
	dest := fb.newTemp(ty)
	instr := Instr{Op: op, Dest: dest, Type: ty}
	if fill != nil {
		fill(&instr)
	}
	fb.cur.Instrs = append(fb.cur.Instrs, instr)
	return dest
}

func (fb *funcBuilder) emitVoid(instr Instr) {
	instr.Dest = InvalidValue
	fb.cur.Instrs = append(fb.cur.Instrs, instr)
}

func (fb *funcBuilder) load(ptr ValueId, ty *MirType) ValueId {
	return fb.emit(OpLoad, ty, func(i *Instr) { i.Ptr = ptr })
}

func (fb *funcBuilder) store(ptr ValueId, val ValueId, ty *MirType) {
	fb.emitVoid(Instr{Op: OpStore, Ptr: ptr, Value: val, Type: ty})
}

// --- statements ---

func (fb *funcBuilder) lowerBlockStmts(blk *hir.Block) {
	for _, s := range blk.Stmts {
		if fb.isDone() {
			return // unreachable code after a terminating statement
		}
		fb.lowerStmt(s)
	}
}

func (fb *funcBuilder) lowerStmt(s hir.Stmt) {
	switch s := s.(type) {
	case *hir.ExprStmt:
		fb.lowerExpr(s.X)

	case *hir.VarDecl:
		ty := fb.b.tt.Translate(s.Type)
		fb.declareVar(s.Symbol, ty)
		if s.Init != nil {
			fb.writeVar(s.Symbol, fb.lowerExpr(s.Init))
		} else {
			// An uninitialized declaration still needs a definition so a
			// read before the first assignment resolves (e.g. the loop
			// variable a for-in desugaring declares ahead of its loop).
			fb.writeVar(s.Symbol, fb.emit(OpUndef, ty, nil))
		}

	case *hir.Assign:
		v := fb.lowerExpr(s.RHS)
		fb.lowerAssignTo(s.LHS, v)

	case *hir.ArraySet:
		fb.lowerArraySet(s)

	case *hir.If:
		fb.lowerIf(s)

	case *hir.While:
		fb.lowerWhile(s)

	case *hir.DoWhile:
		fb.lowerDoWhile(s)

	case *hir.Return:
		if s.Value != nil {
			v := fb.lowerExpr(s.Value)
			fb.setTerm(Terminator{Kind: TermReturn, HasValue: true, Value: v})
		} else {
			fb.setTerm(Terminator{Kind: TermReturn})
		}

	case *hir.Break:
		if len(fb.loops) == 0 {
			fb.b.errorf("break outside of loop")
			return
		}
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: fb.loops[len(fb.loops)-1].breakTarget})

	case *hir.Continue:
		if len(fb.loops) == 0 {
			fb.b.errorf("continue outside of loop")
			return
		}
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: fb.loops[len(fb.loops)-1].continueTarget})

	case *hir.Throw:
		v := fb.lowerExpr(s.Value)
		if len(fb.handlers) > 0 {
			h := fb.handlers[len(fb.handlers)-1]
			if h.catchSym != ids.InvalidSymbol {
				// The landing pad reads the caught variable back through a
				// phi over its throw-site predecessors.
				fb.writeVar(h.catchSym, v)
			}
			fb.setTerm(Terminator{Kind: TermJump, JumpTarget: h.landing})
			return
		}
		fb.setTerm(Terminator{Kind: TermThrow, ExceptionValue: v})

	case *hir.Try:
		fb.lowerTry(s)

	case *hir.Switch:
		fb.lowerSwitch(s)

	case *hir.Block:
		fb.lowerBlockStmts(s)

	default:
		fb.b.errorf("unsupported HIR statement %T", s)
	}
}

func (fb *funcBuilder) lowerAssignTo(lhs hir.Expr, v ValueId) {
	id, ok := lhs.(*hir.Ident)
	if !ok {
		fb.b.errorf("unsupported assignment target %T", lhs)
		return
	}
	if _, ok := fb.vars[id.Symbol]; ok {
		fb.writeVar(id.Symbol, v)
		return
	}
	// Not a local: a field of the implicit receiver, written through
	// `this` at the field's layout offset.
	if thisTy, ok := fb.vars[thisSymbol]; ok {
		ty := fb.b.tt.Translate(id.Type)
		fieldName := fb.b.reg.String(fb.b.reg.Symbol(id.Symbol).Name)
		structTy := thisTy.Elem
		thisVal := fb.readVar(thisSymbol)
		fp := fb.emit(OpPtrAdd, Ptr(ty), func(i *Instr) {
			i.Base = thisVal
			i.OffsetBytes = fb.b.fieldOffset(structTy.StructName, fieldName)
		})
		fb.store(fp, v, ty)
		return
	}
	fb.b.errorf("assignment to unresolved symbol")
}

func (fb *funcBuilder) lowerArraySet(s *hir.ArraySet) {
	arr := fb.lowerExpr(s.Array)
	idx := fb.lowerExpr(s.Index)
	val := fb.lowerExpr(s.Value)
	elemTy := fb.b.tt.Translate(s.Value.ExprType())
	if sym, ok := fb.b.mapper.Resolve("Array", "set"); ok {
		fb.emit(OpCall, Void(), func(i *Instr) {
			i.CalleeKind = CalleeFunction
			if fid, ok := fb.b.module.FunctionByName(sym); ok {
				i.CalleeFn = fid
			}
			i.Args = []ValueId{arr, idx, val}
		})
		return
	}
	elemPtr := fb.emit(OpGetElementPtr, Ptr(elemTy), func(i *Instr) {
		i.Base = arr
		i.Index = idx
		i.ElemType = elemTy
	})
	fb.store(elemPtr, val, elemTy)
}

func (fb *funcBuilder) lowerIf(s *hir.If) {
	thenB := fb.fn.NewBlock()
	elseB := fb.fn.NewBlock()
	contB := fb.fn.NewBlock()

	cond := fb.lowerExpr(s.Cond)
	fb.setTerm(Terminator{Kind: TermCondBranch, Cond: cond, TrueTarget: thenB.ID, FalseTarget: elseB.ID})
	fb.seal(thenB.ID)
	fb.seal(elseB.ID)

	fb.switchTo(thenB)
	fb.lowerBlockStmts(s.Then)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: contB.ID})
	}

	fb.switchTo(elseB)
	if s.Else != nil {
		fb.lowerBlockStmts(s.Else)
	}
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: contB.ID})
	}

	fb.seal(contB.ID)
	fb.switchTo(contB)
}

func (fb *funcBuilder) lowerWhile(s *hir.While) {
	header := fb.fn.NewBlock()
	body := fb.fn.NewBlock()
	exit := fb.fn.NewBlock()

	fb.setTerm(Terminator{Kind: TermJump, JumpTarget: header.ID})

	// The header stays open until the back edge exists: reads in the
	// condition and body leave deferred phis behind, completed when the
	// header is sealed after the body (§4.2.1 item 4).
	fb.switchTo(header)
	cond := fb.lowerExpr(s.Cond)
	fb.setTerm(Terminator{Kind: TermCondBranch, Cond: cond, TrueTarget: body.ID, FalseTarget: exit.ID})
	fb.seal(body.ID)

	fb.loops = append(fb.loops, loopCtx{continueTarget: header.ID, breakTarget: exit.ID})
	fb.switchTo(body)
	fb.lowerBlockStmts(s.Body)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: header.ID})
	}
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.seal(header.ID)
	fb.seal(exit.ID)
	fb.switchTo(exit)
}

func (fb *funcBuilder) lowerDoWhile(s *hir.DoWhile) {
	body := fb.fn.NewBlock()
	cond := fb.fn.NewBlock()
	exit := fb.fn.NewBlock()

	fb.setTerm(Terminator{Kind: TermJump, JumpTarget: body.ID})

	// The body is the loop header here: its second predecessor is the
	// condition block's back edge, so it seals last.
	fb.loops = append(fb.loops, loopCtx{continueTarget: cond.ID, breakTarget: exit.ID})
	fb.switchTo(body)
	fb.lowerBlockStmts(s.Body)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: cond.ID})
	}
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.seal(cond.ID)
	fb.switchTo(cond)
	cv := fb.lowerExpr(s.Cond)
	fb.setTerm(Terminator{Kind: TermCondBranch, Cond: cv, TrueTarget: body.ID, FalseTarget: exit.ID})
	fb.seal(body.ID)
	fb.seal(exit.ID)

	fb.switchTo(exit)
}

// lowerTry implements §4.2.2's landing-pad shape: while handlers is
// non-empty, a Throw reached lexically inside Body assigns the
// exception value to the bound catch symbol and jumps straight to the
// landing block rather than emitting a TermThrow. This models the
// common case (an exception raised by an explicit throw inside the same
// function); exceptions propagating out of a callee do not reach the
// landing block, since Call is not a terminator in this instruction set
// and has no exception edge. A Throw outside any handler lowers to
// TermThrow, which codegen compiles to a trap.
func (fb *funcBuilder) lowerTry(s *hir.Try) {
	landing := fb.fn.NewBlock()
	cont := fb.fn.NewBlock()

	// The caught variable is declared before the protected body; every
	// throw site writes it before jumping to the landing pad, where a
	// phi over the throw-site predecessors reads it back.
	if s.CatchSym != ids.InvalidSymbol {
		fb.declareVar(s.CatchSym, fb.b.tt.Translate(s.CaughtType))
	}

	fb.handlers = append(fb.handlers, handlerInfo{landing: landing.ID, catchSym: s.CatchSym})
	fb.lowerBlockStmts(s.Body)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: cont.ID})
	}
	fb.handlers = fb.handlers[:len(fb.handlers)-1]

	fb.seal(landing.ID) // every throw site in the body is known now
	fb.switchTo(landing)
	fb.lowerBlockStmts(s.CatchBody)
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: cont.ID})
	}

	fb.seal(cont.ID)
	fb.switchTo(cont)
}

// lowerSwitch implements §4.2.3: nested conditionals over the
// scrutinee's tag. Constructor patterns compare ExtractDiscriminant
// against the variant's tag and bind payload fields via
// ExtractUnionValue; literal patterns compare equality; bind and
// wildcard patterns always match.
func (fb *funcBuilder) lowerSwitch(s *hir.Switch) {
	scrutinee := fb.lowerExpr(s.Scrutinee)
	cont := fb.fn.NewBlock()

	for _, arm := range s.Arms {
		armB := fb.fn.NewBlock()
		nextB := fb.fn.NewBlock()
		fb.emitPatternTest(arm.Pattern, scrutinee, armB.ID, nextB.ID)
		fb.seal(armB.ID) // every alternative's branch into the arm is emitted

		fb.switchTo(armB)
		fb.bindPattern(arm.Pattern, scrutinee)
		if arm.Guard != nil {
			guardB := fb.fn.NewBlock()
			g := fb.lowerExpr(arm.Guard)
			fb.setTerm(Terminator{Kind: TermCondBranch, Cond: g, TrueTarget: guardB.ID, FalseTarget: nextB.ID})
			fb.seal(guardB.ID)
			fb.switchTo(guardB)
		}
		fb.lowerBlockStmts(arm.Body)
		if !fb.isDone() {
			fb.setTerm(Terminator{Kind: TermJump, JumpTarget: cont.ID})
		}

		fb.seal(nextB.ID)
		fb.switchTo(nextB)
	}
	if !fb.isDone() {
		fb.setTerm(Terminator{Kind: TermUnreachable}) // exhaustiveness already checked upstream
	}

	fb.seal(cont.ID)
	fb.switchTo(cont)
}

func (fb *funcBuilder) emitPatternTest(p hir.Pattern, scrutinee ValueId, matchTarget, failTarget BlockId) {
	switch p.Kind {
	case hir.PatWildcard, hir.PatBind:
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: matchTarget})

	case hir.PatLiteral:
		lit := fb.lowerExpr(p.Literal)
		eq := fb.emit(OpCmpEq, Bool(), func(i *Instr) { i.LHS = scrutinee; i.RHS = lit })
		fb.setTerm(Terminator{Kind: TermCondBranch, Cond: eq, TrueTarget: matchTarget, FalseTarget: failTarget})

	case hir.PatConstructor:
		tag := fb.emit(OpExtractDiscriminant, I32(), func(i *Instr) { i.Union = scrutinee })
		tagConst := fb.emit(OpConst, I32(), func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = int64(p.CtorTag) })
		eq := fb.emit(OpCmpEq, Bool(), func(i *Instr) { i.LHS = tag; i.RHS = tagConst })
		fb.setTerm(Terminator{Kind: TermCondBranch, Cond: eq, TrueTarget: matchTarget, FalseTarget: failTarget})

	case hir.PatOr:
		for i, alt := range p.Alts {
			altTarget := matchTarget
			nextAlt := failTarget
			if i < len(p.Alts)-1 {
				nextAlt = fb.fn.NewBlock().ID
			}
			fb.emitPatternTest(alt, scrutinee, altTarget, nextAlt)
			if nextAlt != failTarget {
				fb.seal(nextAlt)
				fb.switchTo(fb.fn.Blocks[nextAlt])
			}
		}

	default:
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: matchTarget})
	}
}

func (fb *funcBuilder) bindPattern(p hir.Pattern, scrutinee ValueId) {
	switch p.Kind {
	case hir.PatBind:
		fb.declareVar(p.BindSym, fb.b.tt.Translate(p.Type))
		fb.writeVar(p.BindSym, scrutinee)

	case hir.PatConstructor:
		for i, sub := range p.Sub {
			ty := fb.b.tt.Translate(sub.Type)
			val := fb.emit(OpExtractUnionValue, ty, func(in *Instr) {
				in.Union = scrutinee
				in.FieldIndex = i
			})
			fb.bindPattern(sub, val)
		}
	}
}

// --- expressions ---

func (fb *funcBuilder) lowerExpr(e hir.Expr) ValueId {
	switch e := e.(type) {
	case *hir.Literal:
		return fb.lowerLiteral(e)
	case *hir.Ident:
		return fb.lowerIdent(e)
	case *hir.Binary:
		return fb.lowerBinary(e)
	case *hir.Unary:
		return fb.lowerUnary(e)
	case *hir.Call:
		return fb.lowerCall(e)
	case *hir.MethodCall:
		return fb.lowerMethodCall(e)
	case *hir.New:
		return fb.lowerNew(e)
	case *hir.ArrayGet:
		return fb.lowerArrayGet(e)
	case *hir.Lambda:
		return fb.lowerLambda(e)
	case *hir.NewArray:
		return fb.lowerNewArray(e)
	case *hir.BlockExpr:
		return fb.lowerBlockExpr(e)
	case *hir.IfExpr:
		return fb.lowerIfExpr(e)
	case *hir.ErrorExpr:
		fb.b.errorf("unresolved expression reached MIR lowering: %s", e.Message)
		return fb.emit(OpUndef, fb.b.tt.Translate(e.Type), nil)
	default:
		fb.b.errorf("unsupported HIR expression %T", e)
		return InvalidValue
	}
}

func (fb *funcBuilder) lowerLiteral(e *hir.Literal) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	switch e.Kind {
	case hir.LitInt:
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = e.Int })
	case hir.LitFloat:
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstFloat; i.FloatValue = e.Float })
	case hir.LitBool:
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstBool; i.BoolValue = e.Bool })
	case hir.LitString:
		idx := fb.b.module.Intern(e.String)
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstStringPool; i.StringPool = idx })
	case hir.LitNull:
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstNull })
	default:
		return fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstUnit })
	}
}

func (fb *funcBuilder) lowerIdent(e *hir.Ident) ValueId {
	if _, ok := fb.vars[e.Symbol]; ok {
		return fb.readVar(e.Symbol)
	}
	// Not a local: either a field of the implicit receiver or a
	// zero-arg reference to a global function used as a value.
	if thisTy, ok := fb.vars[thisSymbol]; ok {
		sym := fb.b.reg.Symbol(e.Symbol)
		fieldName := fb.b.reg.String(sym.Name)
		ty := fb.b.tt.Translate(e.Type)
		structTy := thisTy.Elem
		thisVal := fb.readVar(thisSymbol)
		idx := 0
		if td, ok := fb.b.module.TypeDefs[structTy.StructName]; ok {
			for i, f := range td.Fields {
				if f.Name == fieldName {
					idx = i
					break
				}
			}
		}
		return fb.emit(OpExtractField, ty, func(i *Instr) { i.Agg = thisVal; i.FieldIndex = idx })
	}
	if fn, ok := fb.b.module.FunctionByName(fb.b.reg.String(fb.b.reg.Symbol(e.Symbol).Name)); ok {
		return fb.emit(OpFunctionRef, fb.b.tt.Translate(e.Type), func(i *Instr) { i.FuncId = fn })
	}
	fb.b.errorf("unresolved identifier")
	return fb.emit(OpUndef, fb.b.tt.Translate(e.Type), nil)
}

func binOpToMir(op hir.BinOp, operandFloat bool) Op {
	switch op {
	case hir.BAdd:
		if operandFloat {
			return OpFAdd
		}
		return OpAdd
	case hir.BSub:
		if operandFloat {
			return OpFSub
		}
		return OpSub
	case hir.BMul:
		if operandFloat {
			return OpFMul
		}
		return OpMul
	case hir.BDiv:
		if operandFloat {
			return OpFDiv
		}
		return OpDiv
	case hir.BMod:
		return OpMod
	case hir.BEq:
		return OpCmpEq
	case hir.BNe:
		return OpCmpNe
	case hir.BLt:
		if operandFloat {
			return OpCmpLtFloat
		}
		return OpCmpLtSigned
	case hir.BLe:
		if operandFloat {
			return OpCmpLeFloat
		}
		return OpCmpLeSigned
	case hir.BGt:
		if operandFloat {
			return OpCmpGtFloat
		}
		return OpCmpGtSigned
	case hir.BGe:
		if operandFloat {
			return OpCmpGeFloat
		}
		return OpCmpGeSigned
	default:
		return OpAdd
	}
}

func (fb *funcBuilder) lowerBinary(e *hir.Binary) ValueId {
	lv := fb.lowerExpr(e.LHS)
	rv := fb.lowerExpr(e.RHS)
	lty := fb.b.tt.Translate(e.LHS.ExprType())
	resTy := fb.b.tt.Translate(e.Type)
	op := binOpToMir(e.Op, lty.IsFloat())
	return fb.emit(op, resTy, func(i *Instr) { i.LHS = lv; i.RHS = rv })
}

func (fb *funcBuilder) lowerUnary(e *hir.Unary) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	switch e.Op {
	case hir.UNeg:
		v := fb.lowerExpr(e.Operand)
		op := OpNeg
		if ty.IsFloat() {
			op = OpFNeg
		}
		return fb.emit(op, ty, func(i *Instr) { i.Src = v })
	case hir.UNot:
		v := fb.lowerExpr(e.Operand)
		return fb.emit(OpNot, ty, func(i *Instr) { i.Src = v })
	case hir.UBitNot:
		v := fb.lowerExpr(e.Operand)
		return fb.emit(OpBitNot, ty, func(i *Instr) { i.Src = v })
	case hir.UPreInc, hir.UPostInc, hir.UPreDec, hir.UPostDec:
		return fb.lowerIncDec(e)
	default:
		fb.b.errorf("unsupported unary operator")
		return InvalidValue
	}
}

func (fb *funcBuilder) lowerIncDec(e *hir.Unary) ValueId {
	id, ok := e.Operand.(*hir.Ident)
	if !ok {
		fb.b.errorf("increment/decrement target must be a variable")
		return InvalidValue
	}
	if _, ok := fb.vars[id.Symbol]; !ok {
		fb.b.errorf("increment/decrement on unresolved symbol")
		return InvalidValue
	}
	ty := fb.b.tt.Translate(id.Type)
	old := fb.readVar(id.Symbol)
	one := fb.emit(OpConst, ty, func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = 1 })
	op := OpAdd
	if e.Op == hir.UPreDec || e.Op == hir.UPostDec {
		op = OpSub
	}
	updated := fb.emit(op, ty, func(i *Instr) { i.LHS = old; i.RHS = one })
	fb.writeVar(id.Symbol, updated)
	if e.Op == hir.UPreInc || e.Op == hir.UPreDec {
		return updated
	}
	return old
}

func (fb *funcBuilder) lowerArgs(args []hir.Expr) []ValueId {
	out := make([]ValueId, len(args))
	for i, a := range args {
		out[i] = fb.lowerExpr(a)
	}
	return out
}

func (fb *funcBuilder) lowerCall(e *hir.Call) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	args := fb.lowerArgs(e.Args)
	if e.CalleeExpr != nil {
		closure := fb.lowerExpr(e.CalleeExpr)
		fnPtr := fb.emit(OpClosureFunc, Ptr(Any()), func(i *Instr) { i.Closure = closure })
		env := fb.emit(OpClosureEnv, Ptr(Any()), func(i *Instr) { i.Closure = closure })
		return fb.emit(OpIndirectCall, ty, func(i *Instr) {
			i.CalleeKind = CalleeValue
			i.CalleeVal = fnPtr
			i.Args = append([]ValueId{env}, args...)
		})
	}
	name := fb.b.reg.String(fb.b.reg.Symbol(e.Callee).Name)
	fid, ok := fb.b.module.FunctionByName(name)
	if !ok {
		fb.b.errorf("call to unresolved function %q", name)
		return fb.emit(OpUndef, ty, nil)
	}
	return fb.emit(OpCall, ty, func(i *Instr) {
		i.CalleeKind = CalleeFunction
		i.CalleeFn = fid
		i.Args = args
	})
}

func (fb *funcBuilder) lowerMethodCall(e *hir.MethodCall) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	recvTypeName := fb.b.typeName(e.Receiver.ExprType())

	if sym, ok := fb.b.mapper.Resolve(recvTypeName, e.Method); ok {
		if fid, ok := fb.b.module.FunctionByName(sym); ok {
			recv := fb.lowerExpr(e.Receiver)
			args := append([]ValueId{recv}, fb.lowerArgs(e.Args)...)
			return fb.emit(OpCall, ty, func(i *Instr) {
				i.CalleeKind = CalleeFunction
				i.CalleeFn = fid
				i.Args = args
			})
		}
	}

	recv := fb.lowerExpr(e.Receiver)
	args := append([]ValueId{recv}, fb.lowerArgs(e.Args)...)
	qualified := recvTypeName + "." + e.Method
	if fid, ok := fb.b.module.FunctionByName(qualified); ok {
		return fb.emit(OpCall, ty, func(i *Instr) {
			i.CalleeKind = CalleeFunction
			i.CalleeFn = fid
			i.Args = args
		})
	}
	fb.b.errorf("unresolved method call %s.%s", recvTypeName, e.Method)
	return fb.emit(OpUndef, ty, nil)
}

func (fb *funcBuilder) lowerNew(e *hir.New) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	className := fb.b.reg.String(fb.b.reg.Symbol(e.Class).Name)
	td := fb.b.module.TypeDefs[className]

	fields := fb.lowerArgs(e.Args)
	structTy := Struct(className, nil)
	if td != nil {
		fieldTypes := make([]StructField, len(td.Fields))
		for i, f := range td.Fields {
			fieldTypes[i] = StructField{Name: f.Name, Type: f.Type}
		}
		structTy = Struct(className, fieldTypes)
	}

	// A `new` expression's value can always flow to a return or a field
	// store before this function returns (HIR carries no use-chain to
	// prove otherwise at this lowering stage), so the escape oracle is
	// asked conservatively rather than walking the expression's uses.
	if fid, ok := fb.b.module.FunctionByName("rt_malloc"); ok &&
		allocator.DefaultPolicy.Escapes(allocator.SiteConstructor, allocator.EscapeInfo{ReturnedOrStored: true}) {
		lay := fb.b.structLayout(className)
		sizeConst := fb.emit(OpConst, I64(), func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = lay.TotalSize })
		ptr := fb.emit(OpCall, ty, func(i *Instr) {
			i.CalleeKind = CalleeFunction
			i.CalleeFn = fid
			i.Args = []ValueId{sizeConst}
		})
		for i, fv := range fields {
			if i >= len(structTy.Fields) {
				break
			}
			fieldTy := structTy.Fields[i].Type
			fp := fb.emit(OpPtrAdd, Ptr(fieldTy), func(in *Instr) {
				in.Base = ptr
				in.OffsetBytes = lay.Fields[i].Offset
			})
			fb.store(fp, fv, fieldTy)
		}
		return ptr
	}
	agg := fb.emit(OpCreateStruct, structTy, func(i *Instr) { i.AggFields = fields })
	return fb.emit(OpStackAddr, ty, func(i *Instr) { i.Value = agg })
}

func (fb *funcBuilder) lowerArrayGet(e *hir.ArrayGet) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	arr := fb.lowerExpr(e.Array)
	idx := fb.lowerExpr(e.Index)
	if fid, ok := fb.b.module.FunctionByName("rt_array_get"); ok {
		return fb.emit(OpCall, ty, func(i *Instr) {
			i.CalleeKind = CalleeFunction
			i.CalleeFn = fid
			i.Args = []ValueId{arr, idx}
		})
	}
	ptr := fb.emit(OpGetElementPtr, Ptr(ty), func(i *Instr) { i.Base = arr; i.Index = idx; i.ElemType = ty })
	return fb.load(ptr, ty)
}

func (fb *funcBuilder) lowerNewArray(e *hir.NewArray) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	elemTy := fb.b.tt.Translate(e.ElemType)
	zero := fb.emit(OpConst, I64(), func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = 0 })
	elemSize := fb.emit(OpConst, I64(), func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = elemTy.Size() })
	if fid, ok := fb.b.module.FunctionByName("rt_array_new"); ok {
		return fb.emit(OpCall, ty, func(i *Instr) {
			i.CalleeKind = CalleeFunction
			i.CalleeFn = fid
			i.Args = []ValueId{zero, elemSize}
		})
	}
	return fb.emit(OpUndef, ty, nil)
}

// lowerBlockExpr lowers the desugared array-comprehension/block-in-
// expression-position shape (§4.1 item 4): statements run for effect,
// then Result is evaluated and becomes the block's value.
func (fb *funcBuilder) lowerBlockExpr(e *hir.BlockExpr) ValueId {
	for _, s := range e.Stmts {
		if fb.isDone() {
			break
		}
		fb.lowerStmt(s)
	}
	if e.Result == nil {
		return fb.emit(OpConst, fb.b.tt.Translate(e.Type), func(i *Instr) { i.ConstKind = ConstUnit })
	}
	return fb.lowerExpr(e.Result)
}

// lowerIfExpr lowers a value-producing conditional: each branch's value
// flows into a phi at the join, selected by the incoming edge.
func (fb *funcBuilder) lowerIfExpr(e *hir.IfExpr) ValueId {
	ty := fb.b.tt.Translate(e.Type)
	thenB := fb.fn.NewBlock()
	elseB := fb.fn.NewBlock()
	contB := fb.fn.NewBlock()

	cond := fb.lowerExpr(e.Cond)
	fb.setTerm(Terminator{Kind: TermCondBranch, Cond: cond, TrueTarget: thenB.ID, FalseTarget: elseB.ID})
	fb.seal(thenB.ID)
	fb.seal(elseB.ID)

	fb.switchTo(thenB)
	tv := fb.lowerExpr(e.Then)
	thenEnd := fb.cur.ID
	thenLive := !fb.isDone()
	if thenLive {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: contB.ID})
	}

	fb.switchTo(elseB)
	ev := fb.lowerExpr(e.Else)
	elseEnd := fb.cur.ID
	elseLive := !fb.isDone()
	if elseLive {
		fb.setTerm(Terminator{Kind: TermJump, JumpTarget: contB.ID})
	}

	fb.seal(contB.ID)
	fb.switchTo(contB)
	dest := fb.fn.NewValue("ifval", ty, false, AllocRegister)
	phi := Phi{Dest: dest, Type: ty}
	if thenLive {
		phi.Incoming = append(phi.Incoming, PhiEdge{Pred: thenEnd, Value: tv})
	}
	if elseLive {
		phi.Incoming = append(phi.Incoming, PhiEdge{Pred: elseEnd, Value: ev})
	}
	contB.Phis = append(contB.Phis, phi)
	return dest
}

// lowerLambda synthesizes a closure (§4.2.4): free variables captured
// from the enclosing function are copied into a heap-allocated Env
// struct; the lambda body is compiled as an ordinary Function taking the
// env pointer as its first parameter, and the call site receives an
// opaque closure value pairing the function pointer with the env.
func (fb *funcBuilder) lowerLambda(e *hir.Lambda) ValueId {
	captured := freeVariables(e, fb.vars)

	fb.b.closureCounter++
	envName := fmt.Sprintf("Closure$%d", fb.b.closureCounter)
	envFields := make([]StructField, 0, len(captured))

	capturedVals := make([]ValueId, 0, len(captured))
	for _, sym := range captured {
		ty := fb.vars[sym]
		capturedVals = append(capturedVals, fb.readVar(sym))
		envFields = append(envFields, StructField{Name: fmt.Sprintf("cap%d", sym), Type: ty})
	}
	envStructTy := Struct(envName, envFields)

	// A closure value may be returned or stored and invoked long after
	// this frame unwinds, so its environment is never a stack slot
	// (§4.2.4): the escape oracle is consulted rather than hardcoding
	// that rule at every call site that synthesizes an environment. When
	// no allocating runtime is linked, the stack fallback keeps a
	// closure invoked within its creating frame working.
	var envPtr ValueId
	if fid, ok := fb.b.module.FunctionByName("rt_malloc"); ok &&
		allocator.DefaultPolicy.Escapes(allocator.SiteClosureEnv, allocator.EscapeInfo{}) {
		size := int64(len(envFields)) * 8
		sizeConst := fb.emit(OpConst, I64(), func(i *Instr) { i.ConstKind = ConstInt; i.IntValue = size })
		envPtr = fb.emit(OpCall, Ptr(envStructTy), func(i *Instr) {
			i.CalleeKind = CalleeFunction
			i.CalleeFn = fid
			i.Args = []ValueId{sizeConst}
		})
		for i, cv := range capturedVals {
			fieldTy := envFields[i].Type
			fp := fb.emit(OpPtrAdd, Ptr(fieldTy), func(in *Instr) {
				in.Base = envPtr
				in.OffsetBytes = int64(i) * 8
			})
			fb.store(fp, cv, fieldTy)
		}
	} else {
		envVal := fb.emit(OpCreateStruct, envStructTy, func(i *Instr) { i.AggFields = capturedVals })
		envPtr = fb.emit(OpStackAddr, Ptr(envStructTy), func(i *Instr) { i.Value = envVal })
	}

	lamFn := fb.compileLambdaBody(e, captured, envStructTy)
	fid := fb.b.module.AddFunction(lamFn)

	closureTy := fb.b.tt.Translate(e.Type)
	return fb.emit(OpMakeClosure, closureTy, func(i *Instr) { i.FuncId = fid; i.EnvVal = envPtr })
}

func (fb *funcBuilder) compileLambdaBody(e *hir.Lambda, captured []ids.SymbolId, envTy *MirType) *Function {
	sig := Signature{Ret: fb.b.tt.Translate(e.Type)}
	sig.Params = append(sig.Params, Param{Name: "env", Type: Ptr(envTy)})
	for _, p := range e.Params {
		sig.Params = append(sig.Params, Param{Name: p.Name, Type: fb.b.tt.Translate(p.Type)})
	}
	name := fmt.Sprintf("lambda$%d", len(fb.b.module.Functions))
	lamFn := NewFunction(name, sig)

	inner := newFuncBuilder(fb.b, lamFn)
	entry := lamFn.NewBlock()
	lamFn.Entry = entry.ID
	inner.switchTo(entry)
	inner.sealed[entry.ID] = true

	for i, p := range e.Params {
		inner.declareVar(p.Symbol, sig.Params[i+1].Type)
		inner.writeVar(p.Symbol, lamFn.ParamValues[i+1])
	}
	// Each captured variable enters the body as a field read off the env
	// pointer (§4.2.4 item 4), then behaves as an ordinary local.
	envVal := lamFn.ParamValues[0]
	for i, sym := range captured {
		fieldTy := envTy.Fields[i].Type
		fv := inner.emit(OpExtractField, fieldTy, func(in *Instr) { in.Agg = envVal; in.FieldIndex = i })
		inner.declareVar(sym, fieldTy)
		inner.writeVar(sym, fv)
	}

	inner.lowerBlockStmts(e.Body)
	if !inner.isDone() {
		inner.setTerm(Terminator{Kind: TermReturn})
	}
	inner.finish()
	return lamFn
}

// freeVariables collects every Ident inside e's body that resolves to a
// variable declared in the enclosing function's scope and is not one of
// the lambda's own parameters.
func freeVariables(e *hir.Lambda, outer map[ids.SymbolId]*MirType) []ids.SymbolId {
	bound := make(map[ids.SymbolId]bool, len(e.Params))
	for _, p := range e.Params {
		bound[p.Symbol] = true
	}
	seen := make(map[ids.SymbolId]bool)
	var order []ids.SymbolId
	var walkExpr func(hir.Expr)
	var walkStmt func(hir.Stmt)

	record := func(sym ids.SymbolId) {
		if bound[sym] || seen[sym] {
			return
		}
		if _, ok := outer[sym]; !ok {
			return
		}
		seen[sym] = true
		order = append(order, sym)
	}

	walkExpr = func(ex hir.Expr) {
		switch ex := ex.(type) {
		case *hir.Ident:
			record(ex.Symbol)
		case *hir.Binary:
			walkExpr(ex.LHS)
			walkExpr(ex.RHS)
		case *hir.Unary:
			walkExpr(ex.Operand)
		case *hir.Call:
			for _, a := range ex.Args {
				walkExpr(a)
			}
		case *hir.MethodCall:
			walkExpr(ex.Receiver)
			for _, a := range ex.Args {
				walkExpr(a)
			}
		case *hir.New:
			for _, a := range ex.Args {
				walkExpr(a)
			}
		case *hir.ArrayGet:
			walkExpr(ex.Array)
			walkExpr(ex.Index)
		case *hir.IfExpr:
			walkExpr(ex.Cond)
			walkExpr(ex.Then)
			walkExpr(ex.Else)
		case *hir.BlockExpr:
			for _, s := range ex.Stmts {
				walkStmt(s)
			}
			if ex.Result != nil {
				walkExpr(ex.Result)
			}
		}
	}
	walkStmt = func(s hir.Stmt) {
		switch s := s.(type) {
		case *hir.ExprStmt:
			walkExpr(s.X)
		case *hir.VarDecl:
			bound[s.Symbol] = true
			if s.Init != nil {
				walkExpr(s.Init)
			}
		case *hir.Assign:
			walkExpr(s.LHS)
			walkExpr(s.RHS)
		case *hir.If:
			walkExpr(s.Cond)
			for _, st := range s.Then.Stmts {
				walkStmt(st)
			}
			if s.Else != nil {
				for _, st := range s.Else.Stmts {
					walkStmt(st)
				}
			}
		case *hir.While:
			walkExpr(s.Cond)
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *hir.Return:
			if s.Value != nil {
				walkExpr(s.Value)
			}
		}
	}

	for _, s := range e.Body.Stmts {
		walkStmt(s)
	}
	return order
}
