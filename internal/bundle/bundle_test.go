package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bladec-lang/bladec/internal/mir"
)

func sampleModule(name string, value int64) *mir.Module {
	m := mir.NewModule(name)
	fn := mir.NewFunction("main", mir.Signature{Ret: mir.I64()})
	b := fn.NewBlock()
	fn.Entry = b.ID
	v := fn.NewValue("", mir.I64(), false, mir.AllocRegister)
	b.Instrs = append(b.Instrs, mir.Instr{Op: mir.OpConst, Dest: v, Type: mir.I64(), ConstKind: mir.ConstInt, IntValue: value})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: v}
	id := m.AddFunction(fn)
	m.EntryPoint = id
	m.HasEntry = true
	return m
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.rzb")

	modules := map[string]*mir.Module{
		"main": sampleModule("main", 1),
		"util": sampleModule("util", 2),
	}

	if err := Write(path, "main", "main", "bladec v0.0.1", modules); err != nil {
		t.Fatalf("Write: %v", err)
	}

	b, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if b.EntryModule() != "main" || b.EntryFunction() != "main" {
		t.Fatalf("entry descriptor mismatch: %+v", b.Entry)
	}
	if b.BuildMeta != "bladec v0.0.1" {
		t.Fatalf("build metadata mismatch: %q", b.BuildMeta)
	}
	for _, name := range []string{"main", "util"} {
		m, ok := b.Module(name)
		if !ok {
			t.Fatalf("expected module %q in bundle", name)
		}
		if m.Name != name {
			t.Fatalf("module %q decoded with wrong name %q", name, m.Name)
		}
	}
}

func TestRead_RejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.rzb")
	if err := os.WriteFile(path, []byte("NOTA BUNDLEAT ALL"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected Read to reject a file with no valid magic")
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read("/nonexistent/path/program.rzb"); err == nil {
		t.Fatalf("expected Read to fail for a missing file")
	}
}
