package mir

import "github.com/bladec-lang/bladec/internal/ids"

// TypeTranslator maps ids.TypeId (the checker-level type system) to the
// reduced backend-level MirType of §3.3. Abstracts map to their
// underlying type (zero-cost, per §4.1's abstract lowering having
// already erased the wrapper at the HIR level, this table only needs to
// handle the rare Abstract TypeId that still reaches codegen, e.g. an
// unresolved or never-inlined abstract field type). Generic
// instantiations are monomorphized: each distinct type-argument list
// yields its own cached Struct, keyed by the translator's memo table so
// repeated requests for the same instantiation share one MirType.
type TypeTranslator struct {
	reg  *ids.Registry
	memo map[ids.TypeId]*MirType
	defs map[string]*TypeDef // populated by type-metadata emission, §4.2.6
}

// NewTypeTranslator creates a translator bound to reg. defs is the
// module's type-definition table (§3.5); Translate itself neither reads
// nor writes it.
func NewTypeTranslator(reg *ids.Registry, defs map[string]*TypeDef) *TypeTranslator {
	return &TypeTranslator{reg: reg, memo: make(map[ids.TypeId]*MirType), defs: defs}
}

// Translate converts a checker type to its backend representation,
// memoized per distinct TypeId.
func (tt *TypeTranslator) Translate(t ids.TypeId) *MirType {
	if t == ids.InvalidType {
		return Void()
	}
	if cached, ok := tt.memo[t]; ok {
		return cached
	}

	info := tt.reg.Type(t)
	var mt *MirType

	switch info.Kind {
	case ids.KindPrimitive:
		switch info.Primitive {
		case ids.PrimInt:
			mt = I64()
		case ids.PrimFloat:
			mt = F64()
		case ids.PrimBool:
			mt = Bool()
		case ids.PrimString:
			mt = Ptr(U8()) // string header; layout detail lives in internal/layout
		case ids.PrimVoid:
			mt = Void()
		case ids.PrimDynamic:
			mt = Any()
		default:
			mt = Any()
		}

	case ids.KindOptional:
		// Represented as the underlying type's pointer-sized slot; a
		// null sentinel distinguishes the absent case (no separate
		// discriminant struct -- matches §4.4.1's "pointer-sized
		// integer" rule for anything not a fixed-width scalar).
		inner := tt.Translate(info.Elem)
		if inner.IsInteger() || inner.IsFloat() {
			mt = inner
		} else {
			mt = Ptr(inner)
		}

	case ids.KindArray:
		mt = Ptr(tt.Translate(info.Elem))

	case ids.KindFunction:
		params := make([]*MirType, len(info.Params))
		for i, p := range info.Params {
			params[i] = tt.Translate(p)
		}
		mt = FuncType(params, tt.Translate(info.Elem))

	case ids.KindClass, ids.KindInterface, ids.KindEnum:
		name := tt.reg.String(tt.reg.Symbol(info.Symbol).Name)
		mt = Ptr(Struct(name, nil)) // fields stay nil; type-metadata emission records them in the TypeDef
	case ids.KindAbstract:
		if info.Elem != ids.InvalidType {
			mt = tt.Translate(info.Elem)
		} else {
			mt = Any()
		}

	case ids.KindPlaceholder, ids.KindTypeParameter:
		mt = Any()

	default:
		mt = Any()
	}

	tt.memo[t] = mt
	return mt
}
