// Package abi declares the native runtime entry points every compiled
// module may call (§4.9) and the stdlib mapping table HIR→MIR lowering
// consults before falling back to an ordinary method-table call
// (§4.2.7). It plays the role internal/intrinsics's extern registry
// played for the teacher's C-runtime/syscall surface, narrowed to the
// fixed runtime ABI this compiler targets: allocation, array/string
// primitives, math, and the threading/channel/arc surface.
package abi

import (
	"sort"

	"github.com/bladec-lang/bladec/internal/mir"
)

// Extern describes one native function the runtime links in; codegen
// emits a call through the platform's standard C calling convention for
// every one of these rather than compiling a body.
type Extern struct {
	Symbol  string
	Params  []*mir.MirType
	Ret     *mir.MirType
	MayFail bool // true if the runtime may raise (§4.14), e.g. bounds-checked accessors
}

// Registry is the fixed table of runtime externs a compiled module may
// reference, plus the stdlib mapping table keyed by (receiver
// type name, method name).
type Registry struct {
	externs  map[string]Extern
	mappings map[mappingKey]string
}

type mappingKey struct {
	Receiver string
	Method   string
}

// NewRegistry builds the registry with every runtime extern declared and
// the default stdlib mapping table populated (§4.2.7, §4.9).
func NewRegistry() *Registry {
	r := &Registry{
		externs:  make(map[string]Extern),
		mappings: make(map[mappingKey]string),
	}
	r.registerAllocation()
	r.registerArray()
	r.registerString()
	r.registerMath()
	r.registerConcurrency()
	r.registerMappings()
	return r
}

func (r *Registry) add(e Extern) {
	r.externs[e.Symbol] = e
}

// Lookup returns the extern declaration for symbol, and whether it
// exists.
func (r *Registry) Lookup(symbol string) (Extern, bool) {
	e, ok := r.externs[symbol]
	return e, ok
}

// All returns every registered extern in symbol order, used by the
// pipeline to emit extern declarations into the output module (§4.3.1).
// The order is sorted so repeated compiles assign the same FunctionIds.
func (r *Registry) All() []Extern {
	out := make([]Extern, 0, len(r.externs))
	for _, e := range r.externs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Externs implements mir.StdlibMapper: it hands BuildModule every
// extern's backend signature so each can be predeclared as a bodyless
// Function before any call site resolves it by name.
func (r *Registry) Externs() []mir.ExternSig {
	out := make([]mir.ExternSig, 0, len(r.externs))
	for _, e := range r.All() {
		out = append(out, mir.ExternSig{Symbol: e.Symbol, Params: e.Params, Ret: e.Ret})
	}
	return out
}

// MappingTable exposes the (receiver, method) -> extern symbol lookup
// HIR→MIR lowering consults (§4.2.7) before falling back to the
// receiver's own method table.
type MappingTable interface {
	Resolve(receiverTypeName, method string) (symbol string, ok bool)
}

// Resolve implements MappingTable.
func (r *Registry) Resolve(receiverTypeName, method string) (string, bool) {
	sym, ok := r.mappings[mappingKey{Receiver: receiverTypeName, Method: method}]
	return sym, ok
}

func (r *Registry) mapMethod(receiver, method, symbol string) {
	r.mappings[mappingKey{Receiver: receiver, Method: method}] = symbol
}

func (r *Registry) registerAllocation() {
	ptr := mir.Ptr(mir.U8())
	r.add(Extern{Symbol: "rt_malloc", Params: []*mir.MirType{mir.I64()}, Ret: ptr})
	r.add(Extern{Symbol: "rt_realloc", Params: []*mir.MirType{ptr, mir.I64()}, Ret: ptr})
	r.add(Extern{Symbol: "rt_free", Params: []*mir.MirType{ptr}, Ret: mir.Void()})
}

func (r *Registry) registerArray() {
	ptr := mir.Ptr(mir.Any())
	r.add(Extern{Symbol: "rt_array_new", Params: []*mir.MirType{mir.I64(), mir.I64()}, Ret: ptr})
	r.add(Extern{Symbol: "rt_array_push", Params: []*mir.MirType{ptr, mir.Ptr(mir.Any())}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_array_get", Params: []*mir.MirType{ptr, mir.I64()}, Ret: mir.Ptr(mir.Any()), MayFail: true})
	r.add(Extern{Symbol: "rt_array_set", Params: []*mir.MirType{ptr, mir.I64(), mir.Ptr(mir.Any())}, Ret: mir.Void(), MayFail: true})
	r.add(Extern{Symbol: "rt_array_length", Params: []*mir.MirType{ptr}, Ret: mir.I64()})

	r.mapMethod("Array", "push", "rt_array_push")
	r.mapMethod("Array", "length", "rt_array_length")
	r.mapMethod("Array", "get", "rt_array_get")
	r.mapMethod("Array", "set", "rt_array_set")
}

func (r *Registry) registerString() {
	str := mir.Ptr(mir.U8())
	r.add(Extern{Symbol: "rt_string_concat", Params: []*mir.MirType{str, str}, Ret: str})
	r.add(Extern{Symbol: "rt_string_length", Params: []*mir.MirType{str}, Ret: mir.I64()})
	r.add(Extern{Symbol: "rt_string_from_int", Params: []*mir.MirType{mir.I64()}, Ret: str})
	r.add(Extern{Symbol: "rt_string_from_float", Params: []*mir.MirType{mir.F64()}, Ret: str})
	r.add(Extern{Symbol: "rt_string_eq", Params: []*mir.MirType{str, str}, Ret: mir.Bool()})

	r.mapMethod("String", "length", "rt_string_length")
	r.mapMethod("String", "toString", "rt_string_from_int")
}

func (r *Registry) registerMath() {
	f := mir.F64()
	r.add(Extern{Symbol: "rt_math_sqrt", Params: []*mir.MirType{f}, Ret: f})
	r.add(Extern{Symbol: "rt_math_floor", Params: []*mir.MirType{f}, Ret: f})
	r.add(Extern{Symbol: "rt_math_ceil", Params: []*mir.MirType{f}, Ret: f})
	r.add(Extern{Symbol: "rt_math_pow", Params: []*mir.MirType{f, f}, Ret: f})

	r.mapMethod("Math", "sqrt", "rt_math_sqrt")
	r.mapMethod("Math", "floor", "rt_math_floor")
	r.mapMethod("Math", "ceil", "rt_math_ceil")
	r.mapMethod("Math", "pow", "rt_math_pow")
}

func (r *Registry) registerConcurrency() {
	ptr := mir.Ptr(mir.U8())
	fn := mir.Ptr(mir.U8())
	r.add(Extern{Symbol: "rt_thread_spawn", Params: []*mir.MirType{fn, ptr}, Ret: ptr})
	r.add(Extern{Symbol: "rt_thread_join", Params: []*mir.MirType{ptr}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_mutex_new", Params: nil, Ret: ptr})
	r.add(Extern{Symbol: "rt_mutex_lock", Params: []*mir.MirType{ptr}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_mutex_unlock", Params: []*mir.MirType{ptr}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_channel_new", Params: []*mir.MirType{mir.I64()}, Ret: ptr})
	r.add(Extern{Symbol: "rt_channel_send", Params: []*mir.MirType{ptr, mir.Ptr(mir.Any())}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_channel_recv", Params: []*mir.MirType{ptr}, Ret: mir.Ptr(mir.Any())})
	r.add(Extern{Symbol: "rt_arc_retain", Params: []*mir.MirType{ptr}, Ret: mir.Void()})
	r.add(Extern{Symbol: "rt_arc_release", Params: []*mir.MirType{ptr}, Ret: mir.Void()})

	r.mapMethod("Thread", "spawn", "rt_thread_spawn")
	r.mapMethod("Thread", "join", "rt_thread_join")
	r.mapMethod("Mutex", "lock", "rt_mutex_lock")
	r.mapMethod("Mutex", "unlock", "rt_mutex_unlock")
}

// registerMappings fills in the one cross-cutting mapping that doesn't
// belong to one extern group (array construction via `new
// Array()`, reached from hir.NewArray rather than a MethodCall).
func (r *Registry) registerMappings() {
	r.mapMethod("Array", "new", "rt_array_new")
}
