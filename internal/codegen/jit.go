package codegen

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Program is a linked, mapped-executable compiled module: a
// CompiledModule's shared code buffer relocated against its own final
// load address and every runtime extern's host address, then switched
// from writable to executable (§4.4 intro: generated code is never
// writable and executable at the same time). This is grounded on
// wazero's wazevo engine, whose compiledModule mmaps a RW code segment,
// copies compiled bodies in, resolves relocations, then mprotects it
// RX before handing any address out.
type Program struct {
	mem   []byte // the mmap'd region; kept alive so it is never munmap'd out from under a live function pointer
	base  uintptr
	funcs map[string]uintptr
}

// Link mmaps cm.Code, patches every pending fixup now that the buffer's
// load address is known, and makes it executable. symbols supplies the
// host address of every runtime extern cm.SymFixups references (§4.9);
// Link fails closed if any referenced symbol or internal label is
// missing rather than linking a module with a dangling call.
func Link(cm *CompiledModule, symbols map[string]uintptr) (*Program, error) {
	if len(cm.Code) == 0 {
		return &Program{funcs: map[string]uintptr{}}, nil
	}

	mem, err := unix.Mmap(-1, 0, len(cm.Code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("codegen: mmap executable memory: %w", err)
	}
	copy(mem, cm.Code)
	base := uintptr(unsafe.Pointer(&mem[0]))

	for _, f := range cm.AbsFixups() {
		off, ok := cm.LabelOffset(f.Label)
		if !ok {
			_ = unix.Munmap(mem)
			return nil, fmt.Errorf("codegen: absolute fixup at offset %d references unbound label %d", f.Offset, f.Label)
		}
		patchAbs64(mem, f.Offset, uint64(base)+uint64(off))
	}
	for _, f := range cm.SymFixups() {
		addr, ok := symbols[f.Symbol]
		if !ok {
			_ = unix.Munmap(mem)
			return nil, fmt.Errorf("codegen: unresolved extern symbol %q", f.Symbol)
		}
		patchAbs64(mem, f.Offset, uint64(addr))
	}

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("codegen: mprotect executable: %w", err)
	}

	p := &Program{mem: mem, base: base, funcs: make(map[string]uintptr, len(cm.Functions))}
	for _, fn := range cm.Functions {
		p.funcs[fn.Name] = base + uintptr(fn.Offset)
	}
	return p, nil
}

func patchAbs64(mem []byte, offset int, v uint64) {
	for i := 0; i < 8; i++ {
		mem[offset+i] = byte(v >> (8 * i))
	}
}

// FunctionPtr returns the executable entry address of a compiled
// function, and whether name was found.
func (p *Program) FunctionPtr(name string) (uintptr, bool) {
	addr, ok := p.funcs[name]
	return addr, ok
}

// Invoke0Int64 calls a zero-argument compiled function returning an
// int64 -- the calling shape of Scenario 1/2's top-level entry points.
func (p *Program) Invoke0Int64(fn uintptr) int64 {
	var args [6]int64
	return invokeRaw(fn, &args)
}

// InvokeInt64Int64 calls a one-argument, one-result compiled function.
func (p *Program) InvokeInt64Int64(fn uintptr, a0 int64) int64 {
	args := [6]int64{a0}
	return invokeRaw(fn, &args)
}

// Close releases the executable mapping. No function pointer this
// Program handed out may be called after Close returns.
func (p *Program) Close() error {
	if len(p.mem) == 0 {
		return nil
	}
	return unix.Munmap(p.mem)
}
