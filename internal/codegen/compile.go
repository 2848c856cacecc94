// Package codegen implements the baseline JIT backend (Component G,
// §4.4): MIR is translated to raw amd64 machine code with no
// optimization pass beyond linear-scan register allocation, favoring
// compile speed over generated-code quality (§1, §4.4 intro).
package codegen

import (
	"fmt"
	"math"

	"github.com/bladec-lang/bladec/internal/codegen/regalloc"
	"github.com/bladec-lang/bladec/internal/mir"
)

// CompiledFunction is one function's linked machine code location
// within the module's shared code buffer.
type CompiledFunction struct {
	Name   string
	Offset int // byte offset into the module's shared code buffer
	Size   int
}

// CompiledModule is the linked output of compiling every non-extern
// function in a mir.Module into one shared code buffer, in program
// order (§4.4.3 pass 1: declare every function's symbol before
// compiling any body, so a forward call resolves). AbsFixups/SymFixups
// are recorded against byte offsets into Code and are resolved by
// jit.go once the buffer's final load address and every extern's host
// address are known.
type CompiledModule struct {
	Code      []byte
	Functions []CompiledFunction
	byName    map[string]int
	allAbs    []AbsFixup
	allSym    []SymFixup
	labels    map[int]int
}

// LabelOffset exposes a function-entry (or other) label's code-relative
// offset for jit.go, which must resolve an AbsFixup's Label field (a
// label id recorded before the label was bound) against the buffer's
// final load address.
func (m *CompiledModule) LabelOffset(label int) (int, bool) {
	off, ok := m.labels[label]
	return off, ok
}

// FunctionOffset returns the byte offset name's compiled body starts
// at within Code, and whether name was compiled (false for an extern,
// which has no body).
func (m *CompiledModule) FunctionOffset(name string) (int, bool) {
	i, ok := m.byName[name]
	if !ok {
		return 0, false
	}
	return m.Functions[i].Offset, true
}

// Compile lowers every non-extern function of mod into one linked
// amd64 code buffer. Two passes over mod.Functions mirror §4.4.3: the
// first assigns every function (including externs) a label so a call
// to a function compiled later in program order still resolves; the
// second emits each non-extern function's body and links the buffer.
func Compile(mod *mir.Module) (*CompiledModule, error) {
	asm := NewAssembler()
	labels := make(map[string]int, len(mod.Functions))
	for _, fn := range mod.Functions {
		labels[fn.Name] = asm.NewLabel()
	}

	cm := &CompiledModule{byName: make(map[string]int)}
	for _, fn := range mod.Functions {
		if fn.IsExtern() {
			continue
		}
		c := &fnCompiler{
			asm:    asm,
			mod:    mod,
			fn:     fn,
			labels: labels,
			blocks: make(map[mir.BlockId]int),
		}
		if err := c.compile(); err != nil {
			return nil, fmt.Errorf("codegen: function %q: %w", fn.Name, err)
		}
	}

	code, err := asm.Link()
	if err != nil {
		return nil, err
	}
	cm.Code = code

	for _, fn := range mod.Functions {
		if fn.IsExtern() {
			continue
		}
		off, ok := asm.LabelOffset(labels[fn.Name])
		if !ok {
			return nil, fmt.Errorf("codegen: function %q never bound", fn.Name)
		}
		idx := len(cm.Functions)
		cm.byName[fn.Name] = idx
		cm.Functions = append(cm.Functions, CompiledFunction{
			Name:   fn.Name,
			Offset: off,
		})
	}
	if n := len(cm.Functions); n > 0 {
		cm.Functions[n-1].Size = len(code) - cm.Functions[n-1].Offset
		for i := 0; i < n-1; i++ {
			cm.Functions[i].Size = cm.Functions[i+1].Offset - cm.Functions[i].Offset
		}
	}
	cm.allAbs = asm.AbsFixups()
	cm.allSym = asm.SymFixups()
	cm.labels = asm.Labels()
	return cm, nil
}

// AbsFixups returns every pending absolute-address fixup recorded
// across the whole compiled module.
func (m *CompiledModule) AbsFixups() []AbsFixup { return m.allAbs }

// SymFixups returns every pending extern-symbol address fixup recorded
// across the whole compiled module.
func (m *CompiledModule) SymFixups() []SymFixup { return m.allSym }

// fnCompiler translates one mir.Function's blocks into Assembler calls,
// one MIR block mapping 1:1 onto one backend label (§4.4.3 pass 2, step
// 1), driven by a linear-scan allocation already computed for the whole
// function so every operand reference below only has to ask "register
// or spill slot", never "is this value still live".
type fnCompiler struct {
	asm    *Assembler
	mod    *mir.Module
	fn     *mir.Function
	labels map[string]int
	blocks map[mir.BlockId]int

	alloc     map[mir.ValueId]regalloc.Allocation
	frameSize int64
	calleeUse map[reg]bool // callee-saved regs actually handed out, saved/restored in prologue/epilogue

	// Frame regions below the regalloc spill area, all rbp-relative:
	// callee-saved register saves, the stashed sret pointer (§4.4.2),
	// and one cell per OpAlloca.
	saveBase  int64
	sretSlot  int32 // 0 when the function does not use sret
	allocaOff map[mir.ValueId]int32
}

// callScratchRegs lists the scratch registers call arguments are staged
// through: never handed out by regalloc and never argument registers
// themselves, so loading a spilled argument can't clobber one already
// staged.
var callScratchRegs = []reg{rax, r10, r11}

// argRegs is the System V amd64 integer/pointer argument-passing order,
// used for both outgoing calls and a function's own incoming
// parameters, sret's hidden first slot included (§4.4.2).
var argRegs = []reg{rdi, rsi, rdx, rcx, r8, r9}

func (c *fnCompiler) compile() error {
	ra := regalloc.New(c.fn)
	alloc, spillBytes := ra.Allocate()
	c.alloc = alloc
	c.calleeUse = make(map[reg]bool)
	for _, a := range alloc {
		if a.Type == regalloc.AllocRegister {
			c.calleeUse[regOf(a.Register)] = true
		}
	}

	// Frame layout, rbp-relative, growing downward: the regalloc spill
	// area first (regalloc's SpillSlot offsets start at -8), then one
	// 8-byte save slot per callee-saved register the allocation used,
	// then the stashed sret pointer when the signature needs one, then
	// one cell per OpAlloca, 16-byte aligned per the platform C calling
	// convention.
	saveSlots := int64(len(c.calleeUse)) * 8
	c.saveBase = spillBytes

	next := spillBytes + saveSlots
	if c.fn.Sig.UsesSret {
		next += 8
		c.sretSlot = int32(-next)
	}

	c.allocaOff = make(map[mir.ValueId]int32)
	for _, id := range c.fn.BlockOrder() {
		for _, instr := range c.fn.Blocks[id].Instrs {
			if instr.Op != mir.OpAlloca {
				continue
			}
			next += allocaCellBytes(instr.ElemType)
			c.allocaOff[instr.Dest] = int32(-next)
		}
	}
	c.frameSize = alignUp16(next)

	entryLabel := c.labels[c.fn.Name]
	c.asm.Bind(entryLabel)
	c.emitPrologue()

	for _, id := range c.fn.BlockOrder() {
		c.blocks[id] = c.asm.NewLabel()
	}
	for _, id := range c.fn.BlockOrder() {
		c.asm.Bind(c.blocks[id])
		if err := c.compileBlock(c.fn.Blocks[id]); err != nil {
			return err
		}
	}
	return nil
}

// typeWords returns how many 8-byte words a value of type t occupies in
// memory at this tier: structs one word per field, unions a tag word
// plus payload, function values two words (the closure's func/env
// pair), everything else a single word.
func typeWords(t *mir.MirType) int64 {
	if t == nil {
		return 1
	}
	switch t.Kind {
	case mir.KStruct:
		if n := int64(len(t.Fields)); n > 1 {
			return n
		}
		return 1
	case mir.KUnion:
		return 2
	case mir.KFunction:
		return 2
	default:
		return 1
	}
}

// allocaCellBytes returns the frame bytes an OpAlloca of elem reserves.
func allocaCellBytes(elem *mir.MirType) int64 {
	return typeWords(elem) * 8
}

func alignUp16(n int64) int64 {
	return (n + 15) &^ 15
}

func regOf(p regalloc.PhysicalRegister) reg { return reg(p.Index) }

// emitPrologue pushes rbp, establishes the new frame pointer, reserves
// frameSize bytes of locals/spill space, and saves every callee-saved
// register this function's allocation uses, then moves each incoming
// parameter from its ABI argument register into its assigned home.
func (c *fnCompiler) emitPrologue() {
	c.asm.PushR(rbp)
	c.asm.MovRR(rbp, rsp)
	if c.frameSize > 0 {
		c.asm.SubRImm32(rsp, int32(c.frameSize))
	}
	slot := int32(-c.saveBase - 8)
	for _, p := range regalloc.GPRRegisters {
		if c.calleeUse[regOf(p)] {
			c.asm.StoreMem(rbp, slot, regOf(p))
			slot -= 8
		}
	}

	argIdx := 0
	if c.fn.Sig.UsesSret {
		// sret's hidden pointer occupies argRegs[0] (§4.4.2); stash it
		// so the Return lowering can write the result through it.
		c.asm.StoreMem(rbp, c.sretSlot, argRegs[0])
		argIdx = 1
	}
	for i, pv := range c.fn.ParamValues {
		if argIdx+i >= len(argRegs) {
			break // beyond six args: spilled by the caller, not modeled by this baseline tier
		}
		c.moveInto(pv, argRegs[argIdx+i])
	}
}

func (c *fnCompiler) emitEpilogue() {
	slot := int32(-c.saveBase - 8)
	for _, p := range regalloc.GPRRegisters {
		if c.calleeUse[regOf(p)] {
			c.asm.LoadMem(regOf(p), rbp, slot)
			slot -= 8
		}
	}
	c.asm.MovRR(rsp, rbp)
	c.asm.PopR(rbp)
	c.asm.Ret()
}

// homeOf returns the register a value currently lives in, loading it
// from its spill slot into a scratch register first if necessary.
// Every call site immediately consumes the returned register, so
// reusing the fixed scratch set below never clobbers a live value.
func (c *fnCompiler) homeOf(v mir.ValueId, scratch reg) reg {
	if v == mir.InvalidValue {
		return scratch
	}
	a, ok := c.alloc[v]
	if !ok {
		return scratch
	}
	if a.Type == regalloc.AllocRegister {
		return regOf(a.Register)
	}
	c.asm.LoadMem(scratch, rbp, int32(a.SpillSlot))
	return scratch
}

// moveInto stores src's value into v's assigned home (register move or
// spill store).
func (c *fnCompiler) moveInto(v mir.ValueId, src reg) {
	a, ok := c.alloc[v]
	if !ok {
		return
	}
	if a.Type == regalloc.AllocRegister {
		if dst := regOf(a.Register); dst != src {
			c.asm.MovRR(dst, src)
		}
		return
	}
	c.asm.StoreMem(rbp, int32(a.SpillSlot), src)
}

func (c *fnCompiler) compileBlock(b *mir.Block) error {
	// Phis are materialized at each predecessor's terminator (§4.4.4),
	// not here: by the time control reaches this block's first real
	// instruction every phi destination already holds its value.
	for _, instr := range b.Instrs {
		if err := c.compileInstr(instr); err != nil {
			return err
		}
	}
	return c.compileTerm(b)
}

func (c *fnCompiler) compileInstr(i mir.Instr) error {
	dst := c.homeOf(i.Dest, rax)
	switch i.Op {
	case mir.OpConst:
		switch i.ConstKind {
		case mir.ConstInt, mir.ConstBool:
			v := i.IntValue
			if i.ConstKind == mir.ConstBool && i.BoolValue {
				v = 1
			}
			c.asm.MovImm64(dst, uint64(v))
		case mir.ConstNull, mir.ConstUnit:
			c.asm.MovImm64(dst, 0)
		case mir.ConstFloat:
			// Baseline tier boxes floats through their bit pattern in a
			// GPR; the XMM path is left to a later codegen tier.
			c.asm.MovImm64(dst, floatBits(i.FloatValue))
		case mir.ConstStringPool:
			c.asm.MovImm64(dst, uint64(i.StringPool))
		}
		c.moveInto(i.Dest, dst)

	case mir.OpAdd, mir.OpFAdd:
		c.binOp(i, c.asm.AddRR)
	case mir.OpSub, mir.OpFSub:
		c.binOp(i, c.asm.SubRR)
	case mir.OpMul, mir.OpFMul:
		c.binOp(i, c.asm.IMulRR)
	case mir.OpBitAnd:
		c.binOp(i, c.asm.AndRR)
	case mir.OpBitOr:
		c.binOp(i, c.asm.OrRR)
	case mir.OpBitXor:
		c.binOp(i, c.asm.XorRR)
	case mir.OpShl:
		c.shiftOp(i, c.asm.ShlRCL)
	case mir.OpShrSigned:
		c.shiftOp(i, c.asm.SarRCL)
	case mir.OpShrUnsigned:
		c.shiftOp(i, c.asm.ShrRCL)
	case mir.OpDiv, mir.OpFDiv:
		c.divOp(i, false)
	case mir.OpMod:
		c.divOp(i, true)

	case mir.OpCmpEq, mir.OpCmpNe,
		mir.OpCmpLtSigned, mir.OpCmpLeSigned, mir.OpCmpGtSigned, mir.OpCmpGeSigned,
		mir.OpCmpLtUnsigned, mir.OpCmpLeUnsigned, mir.OpCmpGtUnsigned, mir.OpCmpGeUnsigned,
		mir.OpCmpLtFloat, mir.OpCmpLeFloat, mir.OpCmpGtFloat, mir.OpCmpGeFloat:
		c.cmpOp(i)

	case mir.OpNeg, mir.OpFNeg:
		lhs := c.homeOf(i.Src, rax)
		c.asm.MovRR(rax, lhs)
		c.asm.NegR(rax)
		c.moveInto(i.Dest, rax)
	case mir.OpBitNot:
		lhs := c.homeOf(i.Src, rax)
		c.asm.MovRR(rax, lhs)
		c.asm.NotR(rax)
		c.moveInto(i.Dest, rax)
	case mir.OpNot:
		lhs := c.homeOf(i.Src, rcx)
		c.asm.MovImm64(rax, 0)
		c.asm.CmpRR(lhs, rax)
		c.asm.MovImm64(rax, 0)
		c.asm.Setcc(ccE, rax)
		c.asm.MovzxByte(rax)
		c.moveInto(i.Dest, rax)

	case mir.OpLoad:
		base := c.homeOf(i.Ptr, rax)
		if words := typeWords(i.Type); words > 1 {
			// Multi-word values (closures, by-value aggregates) copy
			// into the destination's own spill region word by word.
			if a, ok := c.alloc[i.Dest]; ok && a.Type == regalloc.AllocSpill {
				for w := int32(0); w < int32(words); w++ {
					c.asm.LoadMem(rcx, base, 8*w)
					c.asm.StoreMem(rbp, int32(a.SpillSlot)+8*w, rcx)
				}
			}
			break
		}
		c.asm.LoadMem(rcx, base, 0)
		c.moveInto(i.Dest, rcx)
	case mir.OpStore:
		base := c.homeOf(i.Ptr, rax)
		if words := typeWords(i.Type); words > 1 {
			if a, ok := c.alloc[i.Value]; ok && a.Type == regalloc.AllocSpill {
				for w := int32(0); w < int32(words); w++ {
					c.asm.LoadMem(rcx, rbp, int32(a.SpillSlot)+8*w)
					c.asm.StoreMem(base, 8*w, rcx)
				}
			}
			break
		}
		val := c.homeOf(i.Value, rcx)
		c.asm.StoreMem(base, 0, val)
	case mir.OpAlloca:
		// Each alloca owns a dedicated frame cell reserved during frame
		// layout; its value is that cell's address.
		c.asm.LeaMem(dst, rbp, c.allocaOff[i.Dest])
		c.moveInto(i.Dest, dst)
	case mir.OpStackAddr:
		// The value referenced is already materialized as a struct of
		// GPR-width fields at its own ValueId (OpCreateStruct); taking
		// its "stack address" at this tier is just that spill region's
		// address.
		if a, ok := c.alloc[i.Value]; ok && a.Type == regalloc.AllocSpill {
			c.asm.LeaMem(dst, rbp, int32(a.SpillSlot))
		} else {
			c.asm.MovRR(dst, c.homeOf(i.Value, rax))
		}
		c.moveInto(i.Dest, dst)

	case mir.OpGetElementPtr:
		// base + index*stride, with the word-slot stride every element
		// occupies at this tier.
		base := c.homeOf(i.Base, rax)
		c.asm.MovRR(r10, base)
		if i.Index != mir.InvalidValue {
			idx := c.homeOf(i.Index, rcx)
			c.asm.MovRR(rcx, idx)
			c.asm.MovImm64(r11, 8)
			c.asm.IMulRR(rcx, r11)
			c.asm.AddRR(r10, rcx)
		}
		if i.OffsetBytes != 0 {
			c.asm.AddRImm32(r10, int32(i.OffsetBytes))
		}
		c.asm.MovRR(dst, r10)
		c.moveInto(i.Dest, dst)
	case mir.OpPtrAdd:
		base := c.homeOf(i.Base, rax)
		c.asm.MovRR(dst, base)
		if i.OffsetBytes != 0 {
			c.asm.AddRImm32(dst, int32(i.OffsetBytes))
		}
		c.moveInto(i.Dest, dst)

	case mir.OpCreateStruct, mir.OpCreateUnion:
		// Baseline tier stores each field contiguously into the
		// destination's own spill slot rather than synthesizing a
		// register-resident aggregate (§4.4.1 note: aggregates decay to
		// a pointer-sized slot at the ABI level, but their storage is a
		// real multi-word memory region).
		a, ok := c.alloc[i.Dest]
		if !ok || a.Type != regalloc.AllocSpill {
			break
		}
		fields := i.AggFields
		if i.Op == mir.OpCreateUnion {
			tagReg := c.homeOf(mir.InvalidValue, rax)
			c.asm.MovImm64(tagReg, uint64(i.VariantTag))
			c.asm.StoreMem(rbp, int32(a.SpillSlot), tagReg)
			if i.Union != mir.InvalidValue {
				fields = []mir.ValueId{i.Union}
			}
			for idx, f := range fields {
				v := c.homeOf(f, rcx)
				c.asm.StoreMem(rbp, int32(a.SpillSlot)+8*int32(idx+1), v)
			}
			break
		}
		for idx, f := range fields {
			v := c.homeOf(f, rcx)
			c.asm.StoreMem(rbp, int32(a.SpillSlot)+8*int32(idx), v)
		}

	case mir.OpExtractField:
		c.loadAggWord(i.Dest, i.Agg, 8*int32(i.FieldIndex), dst)
	case mir.OpExtractDiscriminant:
		c.loadAggWord(i.Dest, i.Union, 0, dst)
	case mir.OpExtractUnionValue:
		c.loadAggWord(i.Dest, i.Union, 8+8*int32(i.FieldIndex), dst)

	case mir.OpCall, mir.OpIndirectCall:
		c.emitCall(i)

	case mir.OpMakeClosure:
		a, ok := c.alloc[i.Dest]
		if !ok || a.Type != regalloc.AllocSpill {
			break
		}
		if label, ok := c.calleeLabel(i.FuncId); ok {
			c.asm.MovImm64Label(rax, label)
			c.asm.StoreMem(rbp, int32(a.SpillSlot), rax)
		}
		env := c.homeOf(i.EnvVal, rcx)
		c.asm.StoreMem(rbp, int32(a.SpillSlot)+8, env)
	case mir.OpClosureFunc:
		clo, ok := c.alloc[i.Closure]
		if ok && clo.Type == regalloc.AllocSpill {
			c.asm.LoadMem(dst, rbp, int32(clo.SpillSlot))
		}
		c.moveInto(i.Dest, dst)
	case mir.OpClosureEnv:
		clo, ok := c.alloc[i.Closure]
		if ok && clo.Type == regalloc.AllocSpill {
			c.asm.LoadMem(dst, rbp, int32(clo.SpillSlot)+8)
		}
		c.moveInto(i.Dest, dst)

	case mir.OpCast:
		src := c.homeOf(i.Src, rax)
		c.asm.MovRR(dst, src)
		c.moveInto(i.Dest, dst)

	case mir.OpUndef:
		c.asm.MovImm64(dst, 0)
		c.moveInto(i.Dest, dst)
	case mir.OpFunctionRef:
		if label, ok := c.calleeLabel(i.FuncId); ok {
			c.asm.MovImm64Label(dst, label)
		}
		c.moveInto(i.Dest, dst)
	case mir.OpPanic:
		c.emitPanic(i.Message)

	default:
		return fmt.Errorf("codegen: unhandled op %d", i.Op)
	}
	return nil
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }

// loadAggWord reads one word of an aggregate at byte offset off into
// dst's home. The aggregate is either a by-value struct/union living in
// its own multi-word spill region, or -- when the operand's MIR type is
// a pointer (a heap object, a closure env pointer, an enum reference) --
// a reference the word is loaded through instead.
func (c *fnCompiler) loadAggWord(dest, agg mir.ValueId, off int32, dst reg) {
	if t := c.fn.ValueType(agg); t != nil && t.Kind == mir.KPtr {
		base := c.homeOf(agg, rax)
		c.asm.LoadMem(dst, base, off)
		c.moveInto(dest, dst)
		return
	}
	if a, ok := c.alloc[agg]; ok && a.Type == regalloc.AllocSpill {
		c.asm.LoadMem(dst, rbp, int32(a.SpillSlot)+off)
	}
	c.moveInto(dest, dst)
}

func (c *fnCompiler) binOp(i mir.Instr, op func(dst, src reg)) {
	lhs := c.homeOf(i.LHS, rax)
	rhs := c.homeOf(i.RHS, rcx)
	c.asm.MovRR(rax, lhs)
	op(rax, rhs)
	c.moveInto(i.Dest, rax)
}

func (c *fnCompiler) shiftOp(i mir.Instr, op func(dst reg)) {
	lhs := c.homeOf(i.LHS, rax)
	rhs := c.homeOf(i.RHS, rcx)
	c.asm.MovRR(rax, lhs)
	c.asm.MovRR(rcx, rhs)
	op(rax)
	c.moveInto(i.Dest, rax)
}

func (c *fnCompiler) divOp(i mir.Instr, wantRemainder bool) {
	lhs := c.homeOf(i.LHS, rax)
	rhs := c.homeOf(i.RHS, rcx)
	c.asm.MovRR(rax, lhs)
	c.asm.Cqo()
	c.asm.MovRR(rcx, rhs)
	c.asm.IDivR(rcx)
	if wantRemainder {
		c.moveInto(i.Dest, rdx)
	} else {
		c.moveInto(i.Dest, rax)
	}
}

func (c *fnCompiler) cmpOp(i mir.Instr) {
	lhs := c.homeOf(i.LHS, rax)
	rhs := c.homeOf(i.RHS, rcx)
	c.asm.MovRR(rax, lhs)
	c.asm.CmpRR(rax, rhs)
	c.asm.MovImm64(rax, 0)
	c.asm.Setcc(condCodeFor(i.Op), rax)
	c.asm.MovzxByte(rax)
	c.moveInto(i.Dest, rax)
}

func condCodeFor(op mir.Op) byte {
	switch op {
	case mir.OpCmpEq:
		return ccE
	case mir.OpCmpNe:
		return ccNE
	case mir.OpCmpLtSigned, mir.OpCmpLtFloat:
		return ccL
	case mir.OpCmpLeSigned, mir.OpCmpLeFloat:
		return ccLE
	case mir.OpCmpGtSigned, mir.OpCmpGtFloat:
		return ccG
	case mir.OpCmpGeSigned, mir.OpCmpGeFloat:
		return ccGE
	case mir.OpCmpLtUnsigned:
		return ccB
	case mir.OpCmpLeUnsigned:
		return ccBE
	case mir.OpCmpGtUnsigned:
		return ccA
	case mir.OpCmpGeUnsigned:
		return ccAE
	default:
		return ccE
	}
}

func (c *fnCompiler) calleeLabel(id mir.FunctionId) (int, bool) {
	fn := c.mod.Function(id)
	if fn == nil {
		return 0, false
	}
	label, ok := c.labels[fn.Name]
	return label, ok
}

// emitCall stages arguments into the ABI's integer argument registers,
// issues the call, and stores the result (§4.4.2: a call returning a
// large struct instead passes a hidden destination pointer as argument
// zero and produces no value register).
func (c *fnCompiler) emitCall(i mir.Instr) {
	// A callee using sret receives a pointer to the caller's result
	// region as its hidden first argument; ordinary arguments shift one
	// register down (§4.4.2).
	sretShift := 0
	var callee *mir.Function
	if i.CalleeKind == mir.CalleeFunction {
		callee = c.mod.Function(i.CalleeFn)
	}
	if callee != nil && callee.Sig.UsesSret {
		if a, ok := c.alloc[i.Dest]; ok && a.Type == regalloc.AllocSpill {
			c.asm.LeaMem(argRegs[0], rbp, int32(a.SpillSlot))
		}
		sretShift = 1
	}
	for idx, arg := range i.Args {
		if idx+sretShift >= len(argRegs) {
			break
		}
		v := c.homeOf(arg, callScratchRegs[idx%len(callScratchRegs)])
		c.asm.MovRR(argRegs[idx+sretShift], v)
	}
	switch i.CalleeKind {
	case mir.CalleeFunction:
		if callee != nil && callee.IsExtern() {
			c.asm.MovImm64Symbol(rax, callee.Name)
			c.asm.CallR(rax)
		} else if label, ok := c.calleeLabel(i.CalleeFn); ok {
			c.asm.CallLabel(label)
		}
	case mir.CalleeValue:
		v := c.homeOf(i.CalleeVal, rax)
		c.asm.MovRR(rax, v)
		c.asm.CallR(rax)
	}
	if i.Dest != mir.InvalidValue && sretShift == 0 {
		c.moveInto(i.Dest, rax)
	}
}

// emitPanic emits a ud2 trap. msg is not used and no runtime extern is
// called, so the message never reaches the host; the landing-pad CFG
// shape that routes a Throw inside a try to its handler is built by
// internal/mir/lower.go's lowerTry, not by this function.
func (c *fnCompiler) emitPanic(msg string) {
	_ = msg
	c.asm.Ud2()
}

func (c *fnCompiler) compileTerm(b *mir.Block) error {
	t := b.Term
	switch t.Kind {
	case mir.TermReturn:
		if c.fn.Sig.UsesSret {
			// The logical return value is written through the stashed
			// sret pointer word by word; the ABI-level return value is
			// the sret pointer itself (§4.2.5).
			if t.HasValue {
				c.asm.LoadMem(rcx, rbp, c.sretSlot)
				if a, ok := c.alloc[t.Value]; ok && a.Type == regalloc.AllocSpill {
					for w := int32(0); w < int32(typeWords(c.fn.Sig.Ret)); w++ {
						c.asm.LoadMem(rax, rbp, int32(a.SpillSlot)+8*w)
						c.asm.StoreMem(rcx, 8*w, rax)
					}
				} else {
					v := c.homeOf(t.Value, rax)
					c.asm.StoreMem(rcx, 0, v)
				}
				c.asm.MovRR(rax, rcx)
			}
			c.emitEpilogue()
			break
		}
		if t.HasValue {
			v := c.homeOf(t.Value, rax)
			if v != rax {
				c.asm.MovRR(rax, v)
			}
		}
		c.emitEpilogue()
	case mir.TermJump:
		c.materializePhis(b.ID, t.JumpTarget)
		c.asm.Jmp(c.blockLabel(t.JumpTarget))
	case mir.TermCondBranch:
		cond := c.homeOf(t.Cond, rax)
		c.asm.MovImm64(rcx, 0)
		c.asm.CmpRR(cond, rcx)
		// CondBranch materializes the taken side's phis right before
		// its own jump: since the two successors can disagree on a
		// phi's incoming value, each arm must stage its own.
		falseLabel := c.asm.NewLabel()
		c.asm.Jcc(ccE, falseLabel)
		c.materializePhis(b.ID, t.TrueTarget)
		c.asm.Jmp(c.blockLabel(t.TrueTarget))
		c.asm.Bind(falseLabel)
		c.materializePhis(b.ID, t.FalseTarget)
		c.asm.Jmp(c.blockLabel(t.FalseTarget))
	case mir.TermSwitch:
		v := c.homeOf(t.SwitchValue, rax)
		for _, cs := range t.Cases {
			c.asm.MovImm64(rcx, uint64(cs.Literal))
			c.asm.CmpRR(v, rcx)
			next := c.asm.NewLabel()
			c.asm.Jcc(ccNE, next)
			c.materializePhis(b.ID, cs.Target)
			c.asm.Jmp(c.blockLabel(cs.Target))
			c.asm.Bind(next)
		}
		c.materializePhis(b.ID, t.DefaultTarget)
		c.asm.Jmp(c.blockLabel(t.DefaultTarget))
	case mir.TermThrow:
		c.emitPanic("")
	case mir.TermUnreachable:
		c.asm.Ud2()
	}
	return nil
}

func (c *fnCompiler) blockLabel(id mir.BlockId) int {
	if label, ok := c.blocks[id]; ok {
		return label
	}
	label := c.asm.NewLabel()
	c.blocks[id] = label
	return label
}

// materializePhis stages every phi of target whose incoming edge is
// from pred into the phi's own destination home, implementing
// classical-phi-form semantics at the one place this backend needs to
// read them: the predecessor's outgoing edge (§4.4.4, §3.4 note). The
// moves are a parallel copy -- two loop-header phis may read each
// other's current values (a swap) -- so every incoming value is pushed
// before any destination is written.
func (c *fnCompiler) materializePhis(pred, target mir.BlockId) {
	blk, ok := c.fn.Blocks[target]
	if !ok || len(blk.Phis) == 0 {
		return
	}
	staged := make([]mir.ValueId, 0, len(blk.Phis))
	for _, phi := range blk.Phis {
		for _, e := range phi.Incoming {
			if e.Pred != pred {
				continue
			}
			v := c.homeOf(e.Value, rax)
			c.asm.PushR(v)
			staged = append(staged, phi.Dest)
			break
		}
	}
	for i := len(staged) - 1; i >= 0; i-- {
		c.asm.PopR(rax)
		c.moveInto(staged[i], rax)
	}
}
