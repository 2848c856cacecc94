// Package layout computes the in-memory layout of the compiler's
// nominal types: field offsets, padding, and total allocation size for
// class and enum definitions. Field order is part of the ABI (§3.5), so
// the calculator never reorders what it is given; it only inserts
// padding. HIR→MIR lowering consumes the resulting StructLayout for
// heap allocation sizing and field-store offsets, which is what keeps
// two modules compiled against one type definition agreeing on every
// offset.
package layout

import "fmt"

// FieldInfo describes one field handed to the calculator and, after
// CalculateStructLayout, its resolved offset.
type FieldInfo struct {
	Name      string
	Type      string // type name, carried for diagnostics only
	Offset    int64  // assigned by the calculator
	Size      int64
	Alignment int64
}

// PaddingInfo records padding bytes inserted for alignment.
type PaddingInfo struct {
	Offset int64
	Size   int64
	Reason string
}

// StructLayout is the resolved layout of one class (or closure
// environment) definition.
type StructLayout struct {
	Name       string
	Fields     []FieldInfo
	TotalSize  int64
	Alignment  int64
	PaddingMap []PaddingInfo
}

// EnumLayout is the resolved layout of one enum definition: a
// discriminant word followed by the widest variant's payload.
type EnumLayout struct {
	Name             string
	DiscriminantSize int64
	PayloadOffset    int64
	MaxPayloadSize   int64
	TotalSize        int64
	Alignment        int64
}

// LayoutCalculator assigns offsets for a fixed target. The reference
// target is x86-64: 8-byte pointers, 16-byte maximum alignment.
type LayoutCalculator struct {
	TargetPointerSize int64
	MaxAlignment      int64
}

// NewLayoutCalculator creates a calculator for the x86-64 target.
func NewLayoutCalculator() *LayoutCalculator {
	return &LayoutCalculator{TargetPointerSize: 8, MaxAlignment: 16}
}

// CalculateStructLayout lays fields out in declaration order, inserting
// padding before any field whose alignment the running offset violates,
// then padding the total size up to the struct's own alignment.
func (lc *LayoutCalculator) CalculateStructLayout(name string, fields []FieldInfo) (*StructLayout, error) {
	out := &StructLayout{Name: name, Alignment: 1}
	if len(fields) == 0 {
		return out, nil
	}

	offset := int64(0)
	for _, f := range fields {
		if f.Size <= 0 {
			return nil, fmt.Errorf("layout: field %s.%s has invalid size %d", name, f.Name, f.Size)
		}
		if f.Alignment <= 0 {
			f.Alignment = 1
		}
		if !isPowerOfTwo(f.Alignment) {
			return nil, fmt.Errorf("layout: field %s.%s alignment %d is not a power of two", name, f.Name, f.Alignment)
		}
		if f.Alignment > lc.MaxAlignment {
			f.Alignment = lc.MaxAlignment
		}
		if f.Alignment > out.Alignment {
			out.Alignment = f.Alignment
		}

		if aligned := alignUp(offset, f.Alignment); aligned != offset {
			out.PaddingMap = append(out.PaddingMap, PaddingInfo{
				Offset: offset,
				Size:   aligned - offset,
				Reason: "field alignment",
			})
			offset = aligned
		}
		f.Offset = offset
		out.Fields = append(out.Fields, f)
		offset += f.Size
	}

	if aligned := alignUp(offset, out.Alignment); aligned != offset {
		out.PaddingMap = append(out.PaddingMap, PaddingInfo{
			Offset: offset,
			Size:   aligned - offset,
			Reason: "struct alignment",
		})
		offset = aligned
	}
	out.TotalSize = offset
	return out, nil
}

// CalculateEnumLayout lays an enum out as a discriminant word followed
// by space for the widest variant's payload (§3.5: the allocation must
// fit any variant).
func (lc *LayoutCalculator) CalculateEnumLayout(name string, payloadSizes []int64) *EnumLayout {
	out := &EnumLayout{
		Name:             name,
		DiscriminantSize: lc.TargetPointerSize,
		PayloadOffset:    lc.TargetPointerSize,
		Alignment:        lc.TargetPointerSize,
	}
	for _, s := range payloadSizes {
		if s > out.MaxPayloadSize {
			out.MaxPayloadSize = s
		}
	}
	out.TotalSize = alignUp(out.DiscriminantSize+out.MaxPayloadSize, out.Alignment)
	return out
}

// FieldOffset returns the offset of a named field, and whether the
// layout has it.
func (sl *StructLayout) FieldOffset(name string) (int64, bool) {
	for _, f := range sl.Fields {
		if f.Name == name {
			return f.Offset, true
		}
	}
	return 0, false
}

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
