package codegen

import (
	"testing"

	"github.com/bladec-lang/bladec/internal/mir"
)

func TestLinkAndInvoke_ReturnConstant(t *testing.T) {
	mod := mir.NewModule("demo")
	mod.AddFunction(buildReturnConst("answer", 42))

	cm, err := Compile(mod)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	prog, err := Link(cm, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer prog.Close()

	fn, ok := prog.FunctionPtr("answer")
	if !ok {
		t.Fatalf("expected 'answer' to be linked")
	}

	got := prog.Invoke0Int64(fn)
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestLinkAndInvoke_OneParamFunction(t *testing.T) {
	mod := mir.NewModule("demo")
	mod.AddFunction(buildAdd("inc"))

	cm, err := Compile(mod)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	prog, err := Link(cm, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer prog.Close()

	fn, ok := prog.FunctionPtr("inc")
	if !ok {
		t.Fatalf("expected 'inc' to be linked")
	}
	if got := prog.InvokeInt64Int64(fn, 41); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestLink_UnresolvedSymbolFails(t *testing.T) {
	mod := mir.NewModule("demo")
	extern := mir.NewFunction("rt_missing", mir.Signature{Ret: mir.I64(), Conv: mir.ConvExternC})
	mod.AddFunction(extern)

	fn := mir.NewFunction("caller", mir.Signature{Ret: mir.I64()})
	b := fn.NewBlock()
	fn.Entry = b.ID
	v := fn.NewValue("", mir.I64(), false, mir.AllocRegister)
	b.Instrs = append(b.Instrs, mir.Instr{
		Op: mir.OpCall, Dest: v, Type: mir.I64(),
		CalleeKind: mir.CalleeFunction, CalleeFn: 0,
	})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: v}
	mod.AddFunction(fn)

	cm, err := Compile(mod)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := Link(cm, map[string]uintptr{}); err == nil {
		t.Fatalf("expected Link to fail closed on an unresolved extern symbol")
	}
}

func TestProgram_EmptyModule(t *testing.T) {
	mod := mir.NewModule("empty")
	cm, err := Compile(mod)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	prog, err := Link(cm, nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer prog.Close()
	if _, ok := prog.FunctionPtr("anything"); ok {
		t.Fatalf("expected no functions in an empty module")
	}
}
