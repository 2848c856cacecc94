// Package ids implements the compiler's three interned identifier spaces:
// StringId, SymbolId, and TypeId. All three are 32-bit opaque handles into
// append-only tables owned by a single Registry; handles from different
// spaces never compare equal by construction (distinct Go types).
//
// The interning discipline mirrors the teacher's position.SourceMap
// (append-only, offset-addressed file table) and hir.TypeInfo.Equals
// (structural equality over a tree of fields): a TypeId is handed out once
// per distinct structural shape, via a hash-consing map keyed on a
// deterministic string encoding of the TypeKind variant.
package ids

import "fmt"

// StringId is a handle into the string interner.
type StringId uint32

// SymbolId is a handle into the symbol table.
type SymbolId uint32

// TypeId is a handle into the type registry.
type TypeId uint32

// InvalidSymbol is returned when a symbol lookup fails.
const InvalidSymbol SymbolId = 0

// InvalidType marks the absence of a type (e.g. Void has its own TypeId,
// this is reserved for "not yet resolved").
const InvalidType TypeId = 0

// SymbolKind classifies what a SymbolId names.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymParam
	SymField
	SymMethod
	SymClass
	SymInterface
	SymEnum
	SymAbstract
	SymFunction
)

func (k SymbolKind) String() string {
	switch k {
	case SymVar:
		return "var"
	case SymParam:
		return "param"
	case SymField:
		return "field"
	case SymMethod:
		return "method"
	case SymClass:
		return "class"
	case SymInterface:
		return "interface"
	case SymEnum:
		return "enum"
	case SymAbstract:
		return "abstract"
	case SymFunction:
		return "function"
	default:
		return "unknown"
	}
}

// SymbolFlags is a bitset of declaration modifiers.
type SymbolFlags uint8

const (
	FlagStatic SymbolFlags = 1 << iota
	FlagInline
	FlagExtern
	FlagAbstractMember
)

func (f SymbolFlags) Has(flag SymbolFlags) bool { return f&flag != 0 }

// Visibility mirrors Haxe's public/private access modifiers.
type Visibility int

const (
	VisPrivate Visibility = iota
	VisPublic
)

// SymbolInfo is the payload stored for each SymbolId.
type SymbolInfo struct {
	Name         StringId
	Kind         SymbolKind
	Owner        SymbolId // enclosing class/abstract/module symbol, or InvalidSymbol
	DeclaredType TypeId
	Visibility   Visibility
	Flags        SymbolFlags
}

// Registry owns the three interning tables for a single compilation unit.
// It is not safe for concurrent use across goroutines (§5: each pipeline
// instance exclusively owns its registry).
type Registry struct {
	strings    []string
	stringsIdx map[string]StringId

	symbols []SymbolInfo

	types    []TypeInfo
	typesKey map[string]TypeId
}

// NewRegistry creates an empty registry. Index 0 in every table is reserved
// (InvalidSymbol / InvalidType / the empty string), so the first real handle
// minted is always 1.
func NewRegistry() *Registry {
	r := &Registry{
		stringsIdx: make(map[string]StringId),
		typesKey:   make(map[string]TypeId),
	}
	r.strings = append(r.strings, "")
	r.symbols = append(r.symbols, SymbolInfo{})
	r.types = append(r.types, TypeInfo{Kind: KindInvalid})

	return r
}

// Intern returns the StringId for s, minting a new one if s was not seen
// before. Equal strings always resolve to the same handle.
func (r *Registry) Intern(s string) StringId {
	if id, ok := r.stringsIdx[s]; ok {
		return id
	}

	id := StringId(len(r.strings))
	r.strings = append(r.strings, s)
	r.stringsIdx[s] = id

	return id
}

// String resolves a StringId back to its text. Panics on an out-of-range
// handle, which indicates a bug in the producing pass, not user input.
func (r *Registry) String(id StringId) string {
	return r.strings[id]
}

// DeclareSymbol mints a fresh SymbolId. The registry is append-only: handles
// are never recycled within a compilation unit.
func (r *Registry) DeclareSymbol(info SymbolInfo) SymbolId {
	id := SymbolId(len(r.symbols))
	r.symbols = append(r.symbols, info)

	return id
}

// Symbol resolves a SymbolId to its stored info.
func (r *Registry) Symbol(id SymbolId) SymbolInfo {
	return r.symbols[id]
}

// SetSymbolType back-patches the declared type of a symbol once it is known
// (used for the two-phase declare/populate cycle of recursive class fields,
// §9 of the specification).
func (r *Registry) SetSymbolType(id SymbolId, t TypeId) {
	r.symbols[id].DeclaredType = t
}

func (r *Registry) String_(id SymbolId) string { return r.strings[r.symbols[id].Name] }

// Type resolves a TypeId to its TypeInfo.
func (r *Registry) Type(id TypeId) TypeInfo {
	return r.types[id]
}

// internType hash-conses a structural TypeInfo: two calls describing the same
// shape return the same TypeId (§3.1 invariant). Nominal kinds (Class,
// Interface, Enum, Abstract) key on kind, SymbolId and type arguments,
// never on the Elem slot PopulateClass sets, and TypeParameter keys on its
// name and bound; two classes with the same SymbolId are definitionally the
// same type regardless of population state — this is what makes two-phase
// registration (DeclareNominal then PopulateClass) safe for recursive types.
func (r *Registry) internType(info TypeInfo) TypeId {
	key := structuralKey(info)
	if id, ok := r.typesKey[key]; ok {
		return id
	}

	id := TypeId(len(r.types))
	r.types = append(r.types, info)
	r.typesKey[key] = id

	return id
}

// Primitive interns one of the fixed primitive types.
func (r *Registry) Primitive(p PrimitiveKind) TypeId {
	return r.internType(TypeInfo{Kind: KindPrimitive, Primitive: p})
}

// Optional interns Optional(inner).
func (r *Registry) Optional(inner TypeId) TypeId {
	return r.internType(TypeInfo{Kind: KindOptional, Elem: inner})
}

// Array interns Array(elem).
func (r *Registry) Array(elem TypeId) TypeId {
	return r.internType(TypeInfo{Kind: KindArray, Elem: elem})
}

// Function interns a function type.
func (r *Registry) Function(params []TypeId, ret TypeId, mayThrow bool) TypeId {
	return r.internType(TypeInfo{Kind: KindFunction, Params: append([]TypeId(nil), params...), Elem: ret, MayThrow: mayThrow})
}

// Placeholder interns an unresolved named placeholder (used while a generic
// instantiation or forward reference is still being worked out).
func (r *Registry) Placeholder(name StringId) TypeId {
	return r.internType(TypeInfo{Kind: KindPlaceholder, Name: name})
}

// TypeParameter interns a generic type parameter with an optional bound.
func (r *Registry) TypeParameter(name StringId, bound TypeId) TypeId {
	return r.internType(TypeInfo{Kind: KindTypeParameter, Name: name, Elem: bound})
}

// DeclareNominal reserves a TypeId and backing SymbolId for a class,
// interface, enum, or abstract before its body (fields/methods/variants) is
// known. This is the first half of the two-phase construction that makes
// self-referential class fields legal (§9): the returned TypeId can be
// embedded in a field list before PopulateClass is called.
func (r *Registry) DeclareNominal(kind TypeKind, name StringId, owner SymbolId, symKind SymbolKind, typeArgs []TypeId) (TypeId, SymbolId) {
	sym := r.DeclareSymbol(SymbolInfo{Name: name, Kind: symKind, Owner: owner})
	// Nominal types key uniquely on (kind, symbol), so interning never
	// collapses two distinct declarations — each DeclareNominal call mints a
	// fresh TypeId by construction (the key embeds the fresh SymbolId).
	tid := r.internType(TypeInfo{Kind: kind, Symbol: sym, Params: append([]TypeId(nil), typeArgs...)})
	r.SetSymbolType(sym, tid)

	return tid, sym
}

// PopulateClass sets the Elem slot (an abstract's underlying type) of a
// previously declared nominal type; it records no field list.
func (r *Registry) PopulateClass(id TypeId, underlying TypeId) {
	r.types[id].Elem = underlying // Abstract underlying type, when relevant.
}

func structuralKey(t TypeInfo) string {
	switch t.Kind {
	case KindPrimitive:
		return fmt.Sprintf("P%d", t.Primitive)
	case KindOptional:
		return fmt.Sprintf("O%d", t.Elem)
	case KindArray:
		return fmt.Sprintf("A%d", t.Elem)
	case KindFunction:
		return fmt.Sprintf("F%v->%d,throws=%v", t.Params, t.Elem, t.MayThrow)
	case KindClass, KindInterface, KindEnum, KindAbstract:
		return fmt.Sprintf("N%d:%d:%v", t.Kind, t.Symbol, t.Params)
	case KindPlaceholder:
		return fmt.Sprintf("H%d", t.Name)
	case KindTypeParameter:
		return fmt.Sprintf("T%d:%d", t.Name, t.Elem)
	default:
		return "?"
	}
}
