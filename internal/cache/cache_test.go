package cache

import (
	"path/filepath"
	"testing"

	"github.com/bladec-lang/bladec/internal/mir"
)

func TestInMemoryLRUCache_Basic(t *testing.T) {
	c := NewInMemoryLRUCache(2)
	a1 := Artifact{Files: map[string][]byte{"a": []byte("one")}}
	a2 := Artifact{Files: map[string][]byte{"b": []byte("two")}}
	a3 := Artifact{Files: map[string][]byte{"c": []byte("three")}}
	_ = c.Put("k1", a1)
	_ = c.Put("k2", a2)
	if _, ok, _ := c.Get("k1"); !ok {
		t.Fatalf("expected hit k1")
	}
	_ = c.Put("k3", a3) // should evict k2
	if _, ok, _ := c.Get("k2"); ok {
		t.Fatalf("expected eviction of k2")
	}
}

func sampleModule() *mir.Module {
	m := mir.NewModule("demo")
	fn := mir.NewFunction("main", mir.Signature{Ret: mir.I64()})
	b := fn.NewBlock()
	fn.Entry = b.ID
	v := fn.NewValue("", mir.I64(), false, mir.AllocRegister)
	b.Instrs = append(b.Instrs, mir.Instr{Op: mir.OpConst, Dest: v, Type: mir.I64(), ConstKind: mir.ConstInt, IntValue: 42})
	b.Term = mir.Terminator{Kind: mir.TermReturn, HasValue: true, Value: v}
	id := m.AddFunction(fn)
	m.EntryPoint = id
	m.HasEntry = true
	return m
}

func TestModuleCache_StoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mc, err := NewModuleCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	src := SourceHash([]byte("class Main {}"))
	ver := CompilerVersionHash("v0.0.1")
	mod := sampleModule()

	if err := mc.Store("demo", src, ver, mod); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := mc.Load("demo", src, ver)
	if !ok {
		t.Fatalf("expected cache hit after Store")
	}
	if got.Name != "demo" || len(got.Functions) != 1 || got.Functions[0].Name != "main" {
		t.Fatalf("round-tripped module mismatch: %+v", got)
	}
}

func TestModuleCache_SourceMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	mc, err := NewModuleCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	ver := CompilerVersionHash("v0.0.1")
	if err := mc.Store("demo", SourceHash([]byte("a")), ver, sampleModule()); err != nil {
		t.Fatal(err)
	}

	// A different source hash must never be treated as a hit, even
	// though the compiler-version hash and module name agree (§4.5:
	// any mismatch is a cache miss, never fatal).
	if _, ok := mc.Load("demo", SourceHash([]byte("b")), ver); ok {
		t.Fatalf("expected miss on source hash mismatch")
	}
}

func TestModuleCache_CompilerVersionMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	mc, err := NewModuleCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	src := SourceHash([]byte("a"))
	if err := mc.Store("demo", src, CompilerVersionHash("v1"), sampleModule()); err != nil {
		t.Fatal(err)
	}

	if _, ok := mc.Load("demo", src, CompilerVersionHash("v2")); ok {
		t.Fatalf("expected miss on compiler version mismatch")
	}
}

func TestModuleCache_MissingEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	mc, err := NewModuleCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mc.Load("nope", SourceHash(nil), CompilerVersionHash("v1")); ok {
		t.Fatalf("expected miss for never-stored module")
	}
}
