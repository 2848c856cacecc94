package ids

// TypeKind enumerates the variants of the distilled spec's TypeId model
// (§3.1). Exactly one of TypeInfo's payload fields is meaningful per kind;
// see the comment on each field below.
type TypeKind int

const (
	KindInvalid TypeKind = iota
	KindPrimitive
	KindOptional
	KindArray
	KindFunction
	KindClass
	KindInterface
	KindEnum
	KindAbstract
	KindPlaceholder
	KindTypeParameter
)

// PrimitiveKind enumerates Primitive(...) payloads.
type PrimitiveKind int

const (
	PrimInt PrimitiveKind = iota
	PrimFloat
	PrimBool
	PrimString
	PrimVoid
	PrimDynamic
)

func (p PrimitiveKind) String() string {
	switch p {
	case PrimInt:
		return "Int"
	case PrimFloat:
		return "Float"
	case PrimBool:
		return "Bool"
	case PrimString:
		return "String"
	case PrimVoid:
		return "Void"
	case PrimDynamic:
		return "Dynamic"
	default:
		return "?"
	}
}

// TypeInfo is the uniqued payload behind a TypeId. Field meaning by Kind:
//
//	Primitive:     Primitive
//	Optional:      Elem (the wrapped type)
//	Array:         Elem (the element type)
//	Function:      Params, Elem (return type), MayThrow
//	Class:         Symbol, Params (type args), Elem (superclass TypeId, optional)
//	Interface:     Symbol
//	Enum:          Symbol
//	Abstract:      Symbol, Elem (underlying type, may be InvalidType before resolution)
//	Placeholder:   Name
//	TypeParameter: Name, Elem (bound, may be InvalidType)
type TypeInfo struct {
	Kind      TypeKind
	Primitive PrimitiveKind
	Elem      TypeId
	Params    []TypeId
	Symbol    SymbolId
	Name      StringId
	MayThrow  bool
}

// IsAbstractWrapping reports whether t is an Abstract type whose underlying
// type has been populated.
func (t TypeInfo) IsAbstractWrapping() bool {
	return t.Kind == KindAbstract && t.Elem != InvalidType
}
