package mir

// Op is the opcode of an Instruction or Terminator.
type Op int

const (
	OpConst Op = iota

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShrSigned
	OpShrUnsigned
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	// Comparison
	OpCmpEq
	OpCmpNe
	OpCmpLtSigned
	OpCmpLeSigned
	OpCmpGtSigned
	OpCmpGeSigned
	OpCmpLtUnsigned
	OpCmpLeUnsigned
	OpCmpGtUnsigned
	OpCmpGeUnsigned
	OpCmpLtFloat
	OpCmpLeFloat
	OpCmpGtFloat
	OpCmpGeFloat

	// Unary
	OpNeg
	OpFNeg
	OpNot
	OpBitNot

	// Memory
	OpLoad
	OpStore
	OpAlloca
	OpStackAddr

	// Pointer arithmetic
	OpGetElementPtr
	OpPtrAdd

	// Aggregates
	OpCreateStruct
	OpExtractField
	OpCreateUnion
	OpExtractDiscriminant
	OpExtractUnionValue

	// Calls
	OpCall
	OpIndirectCall

	// Closures
	OpMakeClosure
	OpClosureFunc
	OpClosureEnv

	// Conversion
	OpCast

	// Runtime support
	OpUndef
	OpFunctionRef
	OpPanic
)

// ConstKind distinguishes the payload carried by an OpConst instruction.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstStringPool
	ConstNull
	ConstUnit
)

// CalleeKind distinguishes a direct (FunctionId) call target from an
// indirect one resolved through a ValueId holding a function pointer.
type CalleeKind int

const (
	CalleeFunction CalleeKind = iota
	CalleeValue
)

// Instr is one non-terminator MIR instruction. Not every field is
// meaningful for every Op; see the per-op comment in BuildModule's
// emitters and the table in §3.4.
type Instr struct {
	Op   Op
	Dest ValueId // InvalidValue when the op has no result (Store, Panic)
	Type *MirType

	// OpConst
	ConstKind  ConstKind
	IntValue   int64
	FloatValue float64
	BoolValue  bool
	StringPool uint32

	// BinOp/Cmp/UnOp operands
	LHS ValueId
	RHS ValueId
	Src ValueId

	// Memory / pointer arithmetic
	Ptr         ValueId
	Value       ValueId
	Slot        int
	Base        ValueId
	Index       ValueId
	ElemType    *MirType
	OffsetBytes int64

	// Aggregates
	AggFields  []ValueId
	Agg        ValueId
	FieldIndex int
	VariantTag uint32
	Union      ValueId

	// Calls
	CalleeKind CalleeKind
	CalleeFn   FunctionId
	CalleeVal  ValueId
	Args       []ValueId

	// Closures
	FuncId  FunctionId
	EnvVal  ValueId
	Closure ValueId

	// Conversion
	FromType *MirType
	ToType   *MirType

	// Runtime support
	Message string
}

// TermKind enumerates the block terminator forms of §3.4.
type TermKind int

const (
	TermReturn TermKind = iota
	TermJump
	TermCondBranch
	TermSwitch
	TermThrow
	TermUnreachable
)

// SwitchCase is one arm of a Switch terminator.
type SwitchCase struct {
	Literal int64
	Target  BlockId
}

// Terminator closes a Block. Exactly one terminator kind is active per
// the Kind field. This package uses classical phi form rather than
// branch-argument ("block parameter") form -- the spec permits either
// (§3.4 note) and the validator enforces this one: Jump/CondBranch/
// Switch never carry argument lists, and every Block's Phis list is the
// sole source of incoming values at a join.
type Terminator struct {
	Kind TermKind

	// TermReturn
	HasValue bool
	Value    ValueId

	// TermJump
	JumpTarget BlockId

	// TermCondBranch
	Cond        ValueId
	TrueTarget  BlockId
	FalseTarget BlockId

	// TermSwitch
	SwitchValue   ValueId
	Cases         []SwitchCase
	DefaultTarget BlockId

	// TermThrow
	ExceptionValue ValueId
}

// Successors returns the block targets this terminator may transfer
// control to: the true target before the false one, and a switch's case
// targets in order before its default (used by both the validator's
// CFG-integrity pass and regalloc's liveness pass).
func (t *Terminator) Successors() []BlockId {
	switch t.Kind {
	case TermJump:
		return []BlockId{t.JumpTarget}
	case TermCondBranch:
		return []BlockId{t.TrueTarget, t.FalseTarget}
	case TermSwitch:
		targets := make([]BlockId, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			targets = append(targets, c.Target)
		}
		return append(targets, t.DefaultTarget)
	default:
		return nil
	}
}
