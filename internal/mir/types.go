package mir

import "fmt"

// TypeKind enumerates the backend-level type model of §3.3, a reduced
// system distinct from ids.TypeId used only by MIR and codegen.
type TypeKind int

const (
	KVoid TypeKind = iota
	KI8
	KI16
	KI32
	KI64
	KU8
	KU64
	KF32
	KF64
	KBool
	KPtr
	KStruct
	KArray
	KUnion
	KFunction
	KAny
)

func (k TypeKind) String() string {
	switch k {
	case KVoid:
		return "void"
	case KI8:
		return "i8"
	case KI16:
		return "i16"
	case KI32:
		return "i32"
	case KI64:
		return "i64"
	case KU8:
		return "u8"
	case KU64:
		return "u64"
	case KF32:
		return "f32"
	case KF64:
		return "f64"
	case KBool:
		return "bool"
	case KPtr:
		return "ptr"
	case KStruct:
		return "struct"
	case KArray:
		return "array"
	case KUnion:
		return "union"
	case KFunction:
		return "function"
	case KAny:
		return "any"
	default:
		return "invalid"
	}
}

// StructField is one named, typed member of a Struct MirType.
type StructField struct {
	Name string
	Type *MirType
}

// MirType is the backend-level type model of §3.3. Fields are populated
// according to Kind; see the per-kind constructors below.
type MirType struct {
	Kind TypeKind

	// KPtr
	Elem *MirType

	// KStruct
	StructName string
	Fields     []StructField

	// KArray
	ArrayElem   *MirType
	ArrayLength int

	// KUnion
	Discriminant *MirType
	Variants     []*MirType

	// KFunction
	Params []*MirType
	Ret    *MirType
}

func Void() *MirType          { return &MirType{Kind: KVoid} }
func I8() *MirType            { return &MirType{Kind: KI8} }
func I16() *MirType           { return &MirType{Kind: KI16} }
func I32() *MirType           { return &MirType{Kind: KI32} }
func I64() *MirType           { return &MirType{Kind: KI64} }
func U8() *MirType            { return &MirType{Kind: KU8} }
func U64() *MirType           { return &MirType{Kind: KU64} }
func F32() *MirType           { return &MirType{Kind: KF32} }
func F64() *MirType           { return &MirType{Kind: KF64} }
func Bool() *MirType          { return &MirType{Kind: KBool} }
func Any() *MirType           { return &MirType{Kind: KAny} }
func Ptr(e *MirType) *MirType { return &MirType{Kind: KPtr, Elem: e} }

func Struct(name string, fields []StructField) *MirType {
	return &MirType{Kind: KStruct, StructName: name, Fields: fields}
}

func Array(elem *MirType, length int) *MirType {
	return &MirType{Kind: KArray, ArrayElem: elem, ArrayLength: length}
}

func Union(discriminant *MirType, variants []*MirType) *MirType {
	return &MirType{Kind: KUnion, Discriminant: discriminant, Variants: variants}
}

func FuncType(params []*MirType, ret *MirType) *MirType {
	return &MirType{Kind: KFunction, Params: params, Ret: ret}
}

// IsInteger reports whether t is one of the fixed-width integer kinds.
func (t *MirType) IsInteger() bool {
	switch t.Kind {
	case KI8, KI16, KI32, KI64, KU8, KU64, KBool:
		return true
	default:
		return false
	}
}

// IsUnsigned reports whether t is an unsigned integer kind.
func (t *MirType) IsUnsigned() bool {
	return t.Kind == KU8 || t.Kind == KU64
}

// IsFloat reports whether t is a floating-point kind.
func (t *MirType) IsFloat() bool {
	return t.Kind == KF32 || t.Kind == KF64
}

// Size returns the natural in-memory size of t in bytes, per §4.4.1's
// type-translation rule (aggregate kinds decay to a pointer-sized slot at
// the register/ABI level; their actual storage size is computed
// separately by internal/layout from the module's type definitions).
func (t *MirType) Size() int64 {
	switch t.Kind {
	case KVoid:
		return 0
	case KI8, KU8, KBool:
		return 1
	case KI16:
		return 2
	case KI32, KF32:
		return 4
	case KI64, KU64, KF64:
		return 8
	case KPtr, KStruct, KArray, KUnion, KFunction, KAny:
		return 8
	default:
		return 8
	}
}

// Align returns t's natural alignment in bytes.
func (t *MirType) Align() int64 {
	if t.Size() == 0 {
		return 1
	}
	return t.Size()
}

func (t *MirType) String() string {
	switch t.Kind {
	case KPtr:
		return fmt.Sprintf("ptr<%s>", t.Elem)
	case KStruct:
		return fmt.Sprintf("struct %s", t.StructName)
	case KArray:
		return fmt.Sprintf("[%s; %d]", t.ArrayElem, t.ArrayLength)
	case KUnion:
		return fmt.Sprintf("union<%s>", t.Discriminant)
	case KFunction:
		return fmt.Sprintf("fn(%v) -> %s", t.Params, t.Ret)
	default:
		return t.Kind.String()
	}
}

// Equal reports structural equality between two backend types.
func (t *MirType) Equal(o *MirType) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KPtr:
		return t.Elem.Equal(o.Elem)
	case KStruct:
		if t.StructName != o.StructName || len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	case KArray:
		return t.ArrayLength == o.ArrayLength && t.ArrayElem.Equal(o.ArrayElem)
	case KUnion:
		if !t.Discriminant.Equal(o.Discriminant) || len(t.Variants) != len(o.Variants) {
			return false
		}
		for i := range t.Variants {
			if !t.Variants[i].Equal(o.Variants[i]) {
				return false
			}
		}
		return true
	case KFunction:
		if !t.Ret.Equal(o.Ret) || len(t.Params) != len(o.Params) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
