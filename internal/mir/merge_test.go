package mir

import "testing"

// mergeFixture builds a module whose main calls a local helper and an
// extern, and carries one pooled string, exercising Merge's call-target
// and string-pool rewrites.
func mergeFixture(modName string, strVal string) *Module {
	m := NewModule(modName)

	extern := NewFunction("rt_malloc", Signature{Params: []Param{{Name: "n", Type: I64()}}, Ret: Ptr(U8()), Conv: ConvExternC})
	externId := m.AddFunction(extern)

	helper := NewFunction("helper", Signature{Ret: I64()})
	hb := helper.NewBlock()
	helper.Entry = hb.ID
	hv := helper.NewValue("", I64(), false, AllocRegister)
	hb.Instrs = append(hb.Instrs, Instr{Op: OpConst, Dest: hv, Type: I64(), ConstKind: ConstInt, IntValue: 7})
	hb.Term = Terminator{Kind: TermReturn, HasValue: true, Value: hv}
	helperId := m.AddFunction(helper)

	main := NewFunction("main", Signature{Ret: I64()})
	mb := main.NewBlock()
	main.Entry = mb.ID
	s := main.NewValue("", Ptr(U8()), false, AllocRegister)
	mb.Instrs = append(mb.Instrs, Instr{Op: OpConst, Dest: s, Type: Ptr(U8()), ConstKind: ConstStringPool, StringPool: m.Intern(strVal)})
	size := main.NewValue("", I64(), false, AllocRegister)
	mb.Instrs = append(mb.Instrs, Instr{Op: OpConst, Dest: size, Type: I64(), ConstKind: ConstInt, IntValue: 8})
	p := main.NewValue("", Ptr(U8()), false, AllocRegister)
	mb.Instrs = append(mb.Instrs, Instr{Op: OpCall, Dest: p, Type: Ptr(U8()), CalleeKind: CalleeFunction, CalleeFn: externId, Args: []ValueId{size}})
	v := main.NewValue("", I64(), false, AllocRegister)
	mb.Instrs = append(mb.Instrs, Instr{Op: OpCall, Dest: v, Type: I64(), CalleeKind: CalleeFunction, CalleeFn: helperId})
	mb.Term = Terminator{Kind: TermReturn, HasValue: true, Value: v}
	m.AddFunction(main)

	return m
}

func TestMerge_QualifiesNamesAndDedupsExterns(t *testing.T) {
	a := mergeFixture("a", "alpha")
	b := mergeFixture("b", "beta")

	agg := Merge("bundle", []NamedModule{{Name: "a", Module: a}, {Name: "b", Module: b}})

	for _, name := range []string{"a::main", "a::helper", "b::main", "b::helper"} {
		if _, ok := agg.FunctionByName(name); !ok {
			t.Fatalf("expected qualified function %q in the aggregate", name)
		}
	}
	externCount := 0
	for _, fn := range agg.Functions {
		if fn.Name == "rt_malloc" {
			externCount++
		}
	}
	if externCount != 1 {
		t.Fatalf("expected the shared extern declared once, got %d", externCount)
	}

	if errs := Validate(agg); len(errs) != 0 {
		t.Fatalf("merged module failed validation: %v", errs)
	}

	// Every rewritten call must land on a function whose name matches
	// what the source module called.
	mainId, _ := agg.FunctionByName("b::main")
	mainFn := agg.Function(mainId)
	var calls []string
	for _, instr := range mainFn.Blocks[mainFn.Entry].Instrs {
		if instr.Op == OpCall {
			calls = append(calls, agg.Function(instr.CalleeFn).Name)
		}
	}
	if len(calls) != 2 || calls[0] != "rt_malloc" || calls[1] != "b::helper" {
		t.Fatalf("rewritten call targets = %v, want [rt_malloc b::helper]", calls)
	}

	// String-pool indices follow their strings into the shared pool.
	bMain := agg.Function(mainId)
	strInstr := bMain.Blocks[bMain.Entry].Instrs[0]
	if got := agg.StringPool[strInstr.StringPool]; got != "beta" {
		t.Fatalf("remapped string = %q, want %q", got, "beta")
	}
}
