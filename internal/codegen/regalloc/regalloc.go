// Package regalloc implements linear-scan register allocation over MIR
// values, assigning each SSA value defined in a mir.Function either a
// physical amd64 general-purpose register or a stack spill slot.
package regalloc

import (
	"sort"

	"github.com/bladec-lang/bladec/internal/mir"
)

// RegisterClass distinguishes integer/pointer values from floating
// point ones. Only RegClassGPR is actually allocated registers by this
// tier's linear scan; RegClassXMM values always spill, since the
// baseline JIT's floating point support is limited to the stack-slot
// path in internal/codegen/emit_amd64.go.
type RegisterClass int

const (
	RegClassGPR RegisterClass = iota
	RegClassXMM
)

// PhysicalRegister names one amd64 register available to the allocator.
type PhysicalRegister struct {
	Name        string
	Index       int // hardware encoding, 0-15
	CalleeSaved bool
}

// GPRRegisters lists the general-purpose registers the allocator may
// hand out. Every one is callee-saved: rax/rcx/rdx/r10/r11 are left
// unallocated as the emitter's own scratch registers for operand
// staging and call argument setup, and a value kept live in one of
// these survives any Call encountered along the way without the
// allocator having to reason about call-clobbered sets -- the
// function's own prologue/epilogue save and restore whichever of these
// it actually used (§4.12).
var GPRRegisters = []PhysicalRegister{
	{Name: "rbx", Index: 3, CalleeSaved: true},
	{Name: "r12", Index: 12, CalleeSaved: true},
	{Name: "r13", Index: 13, CalleeSaved: true},
	{Name: "r14", Index: 14, CalleeSaved: true},
	{Name: "r15", Index: 15, CalleeSaved: true},
}

// AllocationType distinguishes a register assignment from a spill.
type AllocationType int

const (
	AllocRegister AllocationType = iota
	AllocSpill
)

// Allocation is the final home decided for one MIR value.
type Allocation struct {
	Type      AllocationType
	Register  PhysicalRegister
	SpillSlot int64 // byte offset from rbp, negative
}

// liveInterval is a conservative [Start,End] approximation of a value's
// live range over the function's linear instruction order: Start is its
// definition position, End is the last position it is read at. This
// is not a true live range with holes -- a value live across a loop
// back-edge is treated as live for the whole span it is read in; the
// textbook linear-scan simplification trades allocation quality
// for a CFG-structure-independent single pass.
type liveInterval struct {
	Value mir.ValueId
	Start int
	End   int
	Class RegisterClass

	// SpillWords forces a spill of this many 8-byte words when non-zero:
	// aggregate values (struct/union/closure) occupy a contiguous
	// multi-word frame region rather than a register, since the emitter
	// addresses their fields by offset from the value's slot.
	SpillWords int64
}

// Allocator runs linear-scan allocation for one function.
type Allocator struct {
	fn         *mir.Function
	order      []mir.BlockId
	defPos     map[mir.ValueId]int
	lastUse    map[mir.ValueId]int
	nextSpill  int64
	allocation map[mir.ValueId]Allocation
}

// New creates an allocator for fn.
func New(fn *mir.Function) *Allocator {
	return &Allocator{
		fn:         fn,
		order:      fn.BlockOrder(),
		defPos:     make(map[mir.ValueId]int),
		lastUse:    make(map[mir.ValueId]int),
		nextSpill:  8,
		allocation: make(map[mir.ValueId]Allocation),
	}
}

// Allocate runs the allocator and returns the final value -> home
// mapping, plus the number of spill-slot bytes the caller's frame must
// reserve.
func (a *Allocator) Allocate() (map[mir.ValueId]Allocation, int64) {
	intervals := a.numberAndCollect()
	a.linearScan(intervals)
	return a.allocation, a.nextSpill
}

// numberAndCollect assigns each instruction a position in the
// function's flattened block order and records, per value, the first
// position it is defined at and the last position it is read at.
func (a *Allocator) numberAndCollect() []liveInterval {
	pos := 0
	touch := func(v mir.ValueId, p int) {
		if v == mir.InvalidValue {
			return
		}
		if _, ok := a.defPos[v]; !ok {
			a.defPos[v] = p
		}
		if cur, ok := a.lastUse[v]; !ok || p > cur {
			a.lastUse[v] = p
		}
	}
	classOf := func(v mir.ValueId) RegisterClass {
		if t := a.fn.ValueType(v); t != nil && t.IsFloat() {
			return RegClassXMM
		}
		return RegClassGPR
	}

	var order []mir.ValueId
	aggWords := make(map[mir.ValueId]int64)

	// Parameters are implicit definitions at position 0, live from the
	// function's first instruction (the prologue materializes them
	// before any block body runs).
	for _, pv := range a.fn.ParamValues {
		touch(pv, 0)
		order = append(order, pv)
	}
	pos = 1

	for _, id := range a.order {
		b := a.fn.Blocks[id]
		for _, phi := range b.Phis {
			touch(phi.Dest, pos)
			order = append(order, phi.Dest)
			pos++
		}
		for _, instr := range b.Instrs {
			for _, use := range operandsOf(instr) {
				touch(use, pos)
			}
			if instr.Dest != mir.InvalidValue {
				touch(instr.Dest, pos)
				order = append(order, instr.Dest)
				if w := aggWordsOf(instr); w > 0 {
					aggWords[instr.Dest] = w
				}
			}
			pos++
		}
		for _, use := range termOperands(b.Term) {
			touch(use, pos)
		}
		// Phi traffic happens at this block's outgoing edge (§4.4.4): each
		// successor phi's incoming value is read here, and its destination
		// written here, so both must stay live through this terminator --
		// in particular across a loop back edge, where the phi's own
		// position is far earlier in linear order.
		for _, succ := range b.Term.Successors() {
			sb := a.fn.Blocks[succ]
			if sb == nil {
				continue
			}
			for _, phi := range sb.Phis {
				for _, e := range phi.Incoming {
					if e.Pred != id {
						continue
					}
					touch(e.Value, pos)
					touch(phi.Dest, pos)
				}
			}
		}
		pos++
	}

	intervals := make([]liveInterval, 0, len(order))
	for _, v := range order {
		intervals = append(intervals, liveInterval{
			Value:      v,
			Start:      a.defPos[v],
			End:        a.lastUse[v],
			Class:      classOf(v),
			SpillWords: aggWords[v],
		})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return intervals
}

// aggWordsOf returns the number of contiguous 8-byte frame words an
// instruction's result occupies when it materializes an aggregate, or 0
// for ordinary register-width results. CreateStruct lays out one word
// per field, CreateUnion one tag word plus its payload, MakeClosure the
// (func_ptr, env_ptr) pair.
func aggWordsOf(i mir.Instr) int64 {
	switch i.Op {
	case mir.OpCreateStruct:
		n := int64(len(i.AggFields))
		if n < 1 {
			n = 1
		}
		return n
	case mir.OpCreateUnion:
		return 2 + int64(len(i.AggFields))
	case mir.OpMakeClosure:
		return 2
	case mir.OpLoad:
		// A load of a multi-word value (closure pair, by-value struct)
		// lands in a spill region sized to match.
		if i.Type != nil {
			switch i.Type.Kind {
			case mir.KFunction, mir.KUnion:
				return 2
			case mir.KStruct:
				if n := int64(len(i.Type.Fields)); n > 1 {
					return n
				}
			}
		}
		return 0
	case mir.OpCall, mir.OpIndirectCall:
		// A call returning a struct by value (sret, §4.4.2) needs a
		// frame region for the callee to write the result through.
		if i.Type != nil && i.Type.Kind == mir.KStruct {
			n := int64(len(i.Type.Fields))
			if n < 1 {
				n = 1
			}
			return n
		}
		return 0
	default:
		return 0
	}
}

// linearScan is the textbook Poletto/Sarkar algorithm: intervals are
// processed in start order, active intervals are expired once their end
// precedes the current interval's start, and a free physical register is
// handed to whichever class it belongs to, falling back to a stack slot
// when none remain.
func (a *Allocator) linearScan(intervals []liveInterval) {
	var active []liveInterval
	free := make([]PhysicalRegister, len(GPRRegisters))
	copy(free, GPRRegisters)

	releaseExpired := func(start int) {
		kept := active[:0]
		for _, iv := range active {
			if iv.End < start {
				if alloc, ok := a.allocation[iv.Value]; ok && alloc.Type == AllocRegister {
					free = append(free, alloc.Register)
				}
				continue
			}
			kept = append(kept, iv)
		}
		active = kept
	}

	for _, iv := range intervals {
		releaseExpired(iv.Start)
		if iv.SpillWords == 0 && iv.Class == RegClassGPR && len(free) > 0 {
			reg := free[len(free)-1]
			free = free[:len(free)-1]
			a.allocation[iv.Value] = Allocation{Type: AllocRegister, Register: reg}
			active = append(active, iv)
			continue
		}
		words := iv.SpillWords
		if words < 1 {
			words = 1
		}
		// A multi-word region's slot offset names its lowest-addressed
		// word; field idx lives at SpillSlot + 8*idx.
		slot := a.nextSpill + (words-1)*8
		a.nextSpill += words * 8
		a.allocation[iv.Value] = Allocation{Type: AllocSpill, SpillSlot: -slot}
	}
}

// operandsOf returns every ValueId an instruction reads, mirroring
// internal/mir's own validator pass.
func operandsOf(i mir.Instr) []mir.ValueId {
	var ops []mir.ValueId
	add := func(vs ...mir.ValueId) { ops = append(ops, vs...) }
	add(i.LHS, i.RHS, i.Src, i.Ptr, i.Value, i.Base, i.Index, i.Agg, i.Union, i.CalleeVal, i.EnvVal, i.Closure)
	add(i.AggFields...)
	add(i.Args...)
	return ops
}

func termOperands(t mir.Terminator) []mir.ValueId {
	switch t.Kind {
	case mir.TermReturn:
		if t.HasValue {
			return []mir.ValueId{t.Value}
		}
	case mir.TermCondBranch:
		return []mir.ValueId{t.Cond}
	case mir.TermSwitch:
		return []mir.ValueId{t.SwitchValue}
	case mir.TermThrow:
		return []mir.ValueId{t.ExceptionValue}
	}
	return nil
}
