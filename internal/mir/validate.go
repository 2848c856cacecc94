package mir

import "fmt"

// ValidationError describes one violation found by Validate (§4.3.2).
// Validate collects every violation it finds rather than stopping at
// the first, matching the collect-errors-and-continue discipline used
// throughout the rest of this pipeline.
type ValidationError struct {
	Function string
	Block    BlockId
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s (block %d, function %s)", e.Message, e.Block, e.Function)
}

// Validate runs the five checks of §4.3.2 against every function body in
// m and returns every violation found. A nil/empty result means m is
// well-formed.
func Validate(m *Module) []ValidationError {
	var errs []ValidationError
	for _, fn := range m.Functions {
		if fn.IsExtern() {
			continue
		}
		v := &validator{fn: fn, m: m}
		v.checkCFGIntegrity()
		v.checkSSA()
		v.checkTypeConsistency()
		v.checkReturnAgreement()
		errs = append(errs, v.errs...)
	}
	errs = append(errs, checkExterns(m)...)
	return errs
}

type validator struct {
	fn   *Function
	m    *Module
	errs []ValidationError
}

func (v *validator) fail(block BlockId, format string, args ...interface{}) {
	v.errs = append(v.errs, ValidationError{Function: v.fn.Name, Block: block, Message: fmt.Sprintf(format, args...)})
}

// checkCFGIntegrity verifies every terminator's successors name a real
// block and that every phi's incoming predecessor set matches the
// block's actual predecessor set (pass 3).
func (v *validator) checkCFGIntegrity() {
	preds := v.fn.Predecessors()
	for _, id := range v.fn.BlockOrder() {
		b := v.fn.Blocks[id]
		for _, succ := range b.Term.Successors() {
			if _, ok := v.fn.Blocks[succ]; !ok {
				v.fail(id, "terminator targets non-existent block %d", succ)
			}
		}
		actualPreds := make(map[BlockId]bool, len(preds[id]))
		for _, p := range preds[id] {
			actualPreds[p] = true
		}
		for _, phi := range b.Phis {
			seen := make(map[BlockId]bool, len(phi.Incoming))
			for _, e := range phi.Incoming {
				seen[e.Pred] = true
				if !actualPreds[e.Pred] {
					v.fail(id, "phi for value %d names %d as a predecessor, which does not branch here", phi.Dest, e.Pred)
				}
			}
			for p := range actualPreds {
				if !seen[p] {
					v.fail(id, "phi for value %d is missing an incoming edge from predecessor %d", phi.Dest, p)
				}
			}
		}
	}
	if _, ok := v.fn.Blocks[v.fn.Entry]; !ok {
		v.fail(v.fn.Entry, "function entry block does not exist")
	}
}

// checkSSA verifies pass 1: every value is defined exactly once, and
// every use is dominated by its definition (phi uses are exempted from
// the dominance requirement for the specific predecessor edge they read
// along, per the usual SSA dominance-frontier rule).
func (v *validator) checkSSA() {
	defBlock := make(map[ValueId]BlockId)
	// Parameters are implicit definitions at entry-block entry (§3.2
	// invariant 3); seeding them here means an instruction redefining
	// one is still reported as a duplicate definition below.
	for _, pv := range v.fn.ParamValues {
		defBlock[pv] = v.fn.Entry
	}
	def := func(id BlockId, val ValueId) {
		if val == InvalidValue {
			return
		}
		if prior, ok := defBlock[val]; ok {
			v.fail(id, "value %d defined more than once (also in block %d)", val, prior)
			return
		}
		defBlock[val] = id
	}

	for _, id := range v.fn.BlockOrder() {
		b := v.fn.Blocks[id]
		for _, phi := range b.Phis {
			def(id, phi.Dest)
		}
		for _, instr := range b.Instrs {
			def(id, instr.Dest)
		}
	}

	// Dominance is only meaningful for blocks reachable from entry; a
	// landing pad whose try body never throws, or dead code behind an
	// always-taken branch, is skipped rather than reported against an
	// immediate-dominator tree it is not part of.
	reachable := make(map[BlockId]bool, len(v.fn.Blocks))
	for _, id := range v.fn.reversePostorder() {
		reachable[id] = true
	}

	idom := v.fn.Dominators()
	for _, id := range v.fn.BlockOrder() {
		if !reachable[id] {
			continue
		}
		b := v.fn.Blocks[id]
		for _, instr := range b.Instrs {
			for _, use := range operands(instr) {
				if use == InvalidValue {
					continue
				}
				defAt, ok := defBlock[use]
				if !ok {
					v.fail(id, "use of value %d which is never defined", use)
					continue
				}
				if defAt != id && !Dominates(idom, defAt, id) {
					v.fail(id, "use of value %d is not dominated by its definition in block %d", use, defAt)
				}
			}
		}
		// A phi use is dominated along its own edge: the incoming value's
		// definition must dominate the corresponding predecessor, not the
		// phi's block (§3.2 invariant 2).
		for _, phi := range b.Phis {
			for _, e := range phi.Incoming {
				if e.Value == InvalidValue {
					continue
				}
				defAt, ok := defBlock[e.Value]
				if !ok {
					v.fail(id, "phi for value %d reads value %d which is never defined", phi.Dest, e.Value)
					continue
				}
				if !reachable[e.Pred] {
					continue
				}
				if defAt != e.Pred && !Dominates(idom, defAt, e.Pred) {
					v.fail(id, "phi operand %d is not dominated by its definition along the edge from block %d", e.Value, e.Pred)
				}
			}
		}
	}
}

// operands returns every ValueId an instruction reads, independent of
// which op it is.
func operands(i Instr) []ValueId {
	var ops []ValueId
	add := func(vs ...ValueId) { ops = append(ops, vs...) }
	add(i.LHS, i.RHS, i.Src, i.Ptr, i.Value, i.Base, i.Index, i.Agg, i.Union, i.CalleeVal, i.EnvVal, i.Closure)
	add(i.AggFields...)
	add(i.Args...)
	return ops
}

// checkTypeConsistency verifies pass 2: the two operands of each integer
// and float arithmetic op share one type, and a Store's value type
// matches its pointer's pointee type (a full structural type-checker duplicating
// the typed AST's own checker is out of scope at this tier; this pass
// catches the class of bug HIR→MIR lowering would introduce, not
// front-end type errors which are caught upstream of HIR).
func (v *validator) checkTypeConsistency() {
	for _, id := range v.fn.BlockOrder() {
		b := v.fn.Blocks[id]
		for _, instr := range b.Instrs {
			switch instr.Op {
			case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShrSigned, OpShrUnsigned:
				if !v.fn.ValueType(instr.LHS).Equal(v.fn.ValueType(instr.RHS)) {
					v.fail(id, "binary op operands have mismatched types")
				}
			case OpFAdd, OpFSub, OpFMul, OpFDiv:
				if !v.fn.ValueType(instr.LHS).Equal(v.fn.ValueType(instr.RHS)) {
					v.fail(id, "float binary op operands have mismatched types")
				}
			case OpStore:
				if instr.Ptr != InvalidValue {
					ptrTy := v.fn.ValueType(instr.Ptr)
					if ptrTy != nil && ptrTy.Kind == KPtr && !ptrTy.Elem.Equal(instr.Type) {
						v.fail(id, "store type does not match pointee type")
					}
				}
			}
		}
	}
}

// checkReturnAgreement verifies pass 5: a Return's HasValue flag agrees
// with whether the function's signature declares a non-void result, and
// a function using the sret convention (§4.4.2) returns via the hidden
// out-pointer rather than an ordinary value at the ABI boundary -- MIR
// level Return still carries the logical value, so sret functions are
// exempted from the void/non-void symmetry check below and rely on
// codegen to lower the Return into a store through the sret parameter.
func (v *validator) checkReturnAgreement() {
	wantsValue := v.fn.Sig.Ret != nil && v.fn.Sig.Ret.Kind != KVoid
	for _, id := range v.fn.BlockOrder() {
		b := v.fn.Blocks[id]
		if b.Term.Kind != TermReturn {
			continue
		}
		if v.fn.Sig.UsesSret {
			continue
		}
		if b.Term.HasValue != wantsValue {
			v.fail(id, "return value presence disagrees with function signature")
		}
	}
}

// checkExterns verifies pass 4: every Call names a function the module
// holds and passes as many arguments as that function's signature
// declares, whether the target is an extern or not. IndirectCall is not
// checked.
func checkExterns(m *Module) []ValidationError {
	var errs []ValidationError
	for _, fn := range m.Functions {
		for _, id := range fn.BlockOrder() {
			b := fn.Blocks[id]
			for _, instr := range b.Instrs {
				if instr.Op != OpCall {
					continue
				}
				target := m.Function(instr.CalleeFn)
				if target == nil {
					errs = append(errs, ValidationError{Function: fn.Name, Block: id, Message: "call targets an unknown function id"})
					continue
				}
				if len(instr.Args) != len(target.Sig.Params) {
					errs = append(errs, ValidationError{
						Function: fn.Name, Block: id,
						Message: fmt.Sprintf("call to %s passes %d arguments, expected %d", target.Name, len(instr.Args), len(target.Sig.Params)),
					})
				}
			}
		}
	}
	return errs
}
