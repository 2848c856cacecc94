package mir

// Phi is a phi node: dest receives one of incoming's values depending on
// which predecessor control arrived from (§3.4). Phis are in classical
// form: Incoming is the only record of each predecessor's value, and
// codegen reads it to stage those values at each predecessor's
// terminator. The validator checks the predecessor set against the CFG's
// actual predecessors (§4.3.2 pass 3).
type Phi struct {
	Dest     ValueId
	Type     *MirType
	Incoming []PhiEdge
}

// PhiEdge is one (predecessor, value) pair of a Phi's incoming set.
type PhiEdge struct {
	Pred  BlockId
	Value ValueId
}

// Block is a single-entry, single-exit straight-line sequence: phi nodes,
// then instructions, then exactly one terminator.
type Block struct {
	ID     BlockId
	Phis   []Phi
	Instrs []Instr
	Term   Terminator
}

// Allocation describes where a Local's storage lives.
type Allocation int

const (
	AllocRegister Allocation = iota
	AllocStack
	AllocHeap
)

// Local is the declared storage for a ValueId, carrying enough
// information for both regalloc (Allocation, Type) and debugging (Name).
type Local struct {
	Name       string
	Type       *MirType
	Mutable    bool
	Allocation Allocation
}

// CallingConvention distinguishes the native-ABI entry points from
// ordinary user functions reached only through MIR Call instructions.
type CallingConvention int

const (
	ConvDefault CallingConvention = iota
	ConvExternC
)

// Signature is a function's backend-level signature (§4.4.2).
type Signature struct {
	Params   []Param
	Ret      *MirType
	UsesSret bool
	MayThrow bool
	Conv     CallingConvention
}

// Param is one named, typed parameter.
type Param struct {
	Name string
	Type *MirType
}

// Function owns its blocks, instructions and locals exclusively (§3.6).
// A Function with a nil Blocks map (or zero blocks) is an extern
// declaration (§4.3.1): it has a Signature but no body, and codegen must
// not attempt to generate code for it.
type Function struct {
	Name       string
	Sig        Signature
	Entry      BlockId
	Blocks     map[BlockId]*Block
	blockOrder []BlockId // preserves insertion order for deterministic iteration
	Locals     map[ValueId]*Local

	// ParamValues are the implicit SSA definitions of the function's
	// parameters, one per Sig.Params entry, live-in at entry-block entry
	// (§3.2 invariant 3). NewFunction mints them deterministically as
	// ValueIds 1..len(Params), so a deserialized function reconstructs
	// the same list without the codec carrying it.
	ParamValues []ValueId

	nextValue ValueId
	nextBlock BlockId
}

// NewFunction creates an empty function body ready for SSA construction.
// Value 0 is reserved (InvalidValue); values 1..len(sig.Params) are the
// parameters' implicit definitions, so the first value a body mints is
// len(sig.Params)+1.
func NewFunction(name string, sig Signature) *Function {
	fn := &Function{
		Name:      name,
		Sig:       sig,
		Blocks:    make(map[BlockId]*Block),
		Locals:    make(map[ValueId]*Local),
		nextValue: 1,
	}
	for _, p := range sig.Params {
		fn.ParamValues = append(fn.ParamValues, fn.NewValue(p.Name, p.Type, false, AllocRegister))
	}
	return fn
}

// IsExtern reports whether fn is a declaration with no body (§4.3.1,
// §4.3.2 pass 4).
func (fn *Function) IsExtern() bool {
	return len(fn.Blocks) == 0
}

// NewBlock allocates and registers a fresh block, returning its id. The
// very first call on a fresh Function returns BlockId 0 (EntryBlock);
// callers are responsible for assigning fn.Entry.
func (fn *Function) NewBlock() *Block {
	id := fn.nextBlock
	fn.nextBlock++
	b := &Block{ID: id}
	fn.Blocks[id] = b
	fn.blockOrder = append(fn.blockOrder, id)
	return b
}

// BlockOrder returns block ids in the order they were created, which is
// stable for serialization and matches the order codegen declares
// backend blocks in (§4.4.3 pass 2, step 1).
func (fn *Function) BlockOrder() []BlockId {
	out := make([]BlockId, len(fn.blockOrder))
	copy(out, fn.blockOrder)
	return out
}

// NewValue mints a fresh ValueId and its Local declaration.
func (fn *Function) NewValue(name string, ty *MirType, mutable bool, alloc Allocation) ValueId {
	id := fn.nextValue
	fn.nextValue++
	fn.Locals[id] = &Local{Name: name, Type: ty, Mutable: mutable, Allocation: alloc}
	return id
}

// ValueType returns the declared type of a ValueId.
func (fn *Function) ValueType(v ValueId) *MirType {
	if l, ok := fn.Locals[v]; ok {
		return l.Type
	}
	return nil
}

// Predecessors computes each block's predecessor set from every other
// block's terminator, used by SSA construction (block sealing, §4.2.1)
// and by the validator's CFG-integrity pass.
func (fn *Function) Predecessors() map[BlockId][]BlockId {
	preds := make(map[BlockId][]BlockId, len(fn.Blocks))
	for _, id := range fn.blockOrder {
		preds[id] = nil
	}
	for _, id := range fn.blockOrder {
		b := fn.Blocks[id]
		for _, succ := range b.Term.Successors() {
			preds[succ] = append(preds[succ], id)
		}
	}
	return preds
}

// Dominators computes the immediate dominator of every reachable block
// using the standard iterative data-flow algorithm, used by the
// validator's SSA well-formedness pass (§4.3.2 pass 1) to check that a
// non-phi use is dominated by its definition.
func (fn *Function) Dominators() map[BlockId]BlockId {
	order := fn.reversePostorder()
	idom := make(map[BlockId]BlockId, len(order))
	idom[fn.Entry] = fn.Entry

	preds := fn.Predecessors()
	indexOf := make(map[BlockId]int, len(order))
	for i, id := range order {
		indexOf[id] = i
	}

	changed := true
	for changed {
		changed = false
		for _, id := range order {
			if id == fn.Entry {
				continue
			}
			var newIdom BlockId
			first := true
			for _, p := range preds[id] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if first {
					newIdom = p
					first = false
					continue
				}
				newIdom = intersect(p, newIdom, idom, indexOf)
			}
			if first {
				continue
			}
			if cur, ok := idom[id]; !ok || cur != newIdom {
				idom[id] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func intersect(a, b BlockId, idom map[BlockId]BlockId, index map[BlockId]int) BlockId {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}
		for index[b] > index[a] {
			b = idom[b]
		}
	}
	return a
}

func (fn *Function) reversePostorder() []BlockId {
	visited := make(map[BlockId]bool, len(fn.Blocks))
	var post []BlockId
	var visit func(BlockId)
	visit = func(id BlockId) {
		if visited[id] {
			return
		}
		visited[id] = true
		b, ok := fn.Blocks[id]
		if !ok {
			return
		}
		for _, s := range b.Term.Successors() {
			visit(s)
		}
		post = append(post, id)
	}
	visit(fn.Entry)
	// reverse
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Dominates reports whether block a dominates block b, by walking b's
// immediate-dominator chain.
func Dominates(idom map[BlockId]BlockId, a, b BlockId) bool {
	if a == b {
		return true
	}
	for {
		parent, ok := idom[b]
		if !ok {
			return false
		}
		if parent == b {
			return a == b
		}
		if parent == a {
			return true
		}
		b = parent
	}
}
