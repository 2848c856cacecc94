package mir

import "testing"

func twoBlockAddModule() *Module {
	m := NewModule("codec_demo")
	fn := NewFunction("add", Signature{
		Params: []Param{{Name: "a", Type: I64()}, {Name: "b", Type: I64()}},
		Ret:    I64(),
	})
	entry := fn.NewBlock()
	exit := fn.NewBlock()
	fn.Entry = entry.ID

	a := ValueId(1)
	b := ValueId(2)
	sum := fn.NewValue("", I64(), false, AllocRegister)

	entry.Term = Terminator{Kind: TermJump, JumpTarget: exit.ID}
	exit.Instrs = append(exit.Instrs, Instr{Op: OpAdd, Dest: sum, Type: I64(), LHS: a, RHS: b})
	exit.Term = Terminator{Kind: TermReturn, HasValue: true, Value: sum}

	m.AddFunction(fn)
	m.EntryPoint = 0
	m.HasEntry = true
	return m
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	m := twoBlockAddModule()
	data := Encode(m)
	if len(data) == 0 {
		t.Fatalf("expected non-empty encoding")
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Name != m.Name {
		t.Fatalf("got module name %q, want %q", decoded.Name, m.Name)
	}
	if len(decoded.Functions) != len(m.Functions) {
		t.Fatalf("got %d functions, want %d", len(decoded.Functions), len(m.Functions))
	}
	fn := decoded.Functions[0]
	if fn.Name != "add" {
		t.Fatalf("got function name %q, want %q", fn.Name, "add")
	}
	if len(fn.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(fn.Blocks))
	}
	if errs := Validate(decoded); len(errs) != 0 {
		t.Fatalf("decoded module failed validation: %v", errs)
	}
}

func TestEncodeDecode_EmptyModule(t *testing.T) {
	m := NewModule("empty")
	data := Encode(m)
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Name != "empty" {
		t.Fatalf("got %q, want %q", decoded.Name, "empty")
	}
	if len(decoded.Functions) != 0 {
		t.Fatalf("expected no functions, got %d", len(decoded.Functions))
	}
}

func TestDecode_RejectsTruncatedInput(t *testing.T) {
	m := twoBlockAddModule()
	data := Encode(m)
	if _, err := Decode(data[:len(data)/2]); err == nil {
		t.Fatalf("expected Decode to reject a truncated buffer")
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a mir module")); err == nil {
		t.Fatalf("expected Decode to reject non-MIR input")
	}
}
