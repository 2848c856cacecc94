package layout

import "testing"

func TestCalculateStructLayout_WordFields(t *testing.T) {
	lc := NewLayoutCalculator()
	l, err := lc.CalculateStructLayout("Box", []FieldInfo{
		{Name: "a", Type: "i64", Size: 8, Alignment: 8},
		{Name: "b", Type: "i64", Size: 8, Alignment: 8},
		{Name: "c", Type: "ptr", Size: 8, Alignment: 8},
	})
	if err != nil {
		t.Fatalf("CalculateStructLayout: %v", err)
	}
	if l.TotalSize != 24 {
		t.Fatalf("total size = %d, want 24", l.TotalSize)
	}
	if l.Alignment != 8 {
		t.Fatalf("alignment = %d, want 8", l.Alignment)
	}
	wantOffsets := []int64{0, 8, 16}
	for i, f := range l.Fields {
		if f.Offset != wantOffsets[i] {
			t.Fatalf("field %s offset = %d, want %d", f.Name, f.Offset, wantOffsets[i])
		}
	}
	if len(l.PaddingMap) != 0 {
		t.Fatalf("expected no padding for uniformly word-sized fields, got %+v", l.PaddingMap)
	}
}

func TestCalculateStructLayout_InsertsPadding(t *testing.T) {
	lc := NewLayoutCalculator()
	l, err := lc.CalculateStructLayout("Mixed", []FieldInfo{
		{Name: "flag", Type: "bool", Size: 1, Alignment: 1},
		{Name: "count", Type: "i64", Size: 8, Alignment: 8},
	})
	if err != nil {
		t.Fatalf("CalculateStructLayout: %v", err)
	}
	if l.Fields[1].Offset != 8 {
		t.Fatalf("count offset = %d, want 8 (7 padding bytes before)", l.Fields[1].Offset)
	}
	if l.TotalSize != 16 {
		t.Fatalf("total size = %d, want 16", l.TotalSize)
	}
	if len(l.PaddingMap) != 1 || l.PaddingMap[0].Size != 7 {
		t.Fatalf("expected one 7-byte padding record, got %+v", l.PaddingMap)
	}
}

func TestCalculateStructLayout_PreservesDeclarationOrder(t *testing.T) {
	// Field order is ABI (§3.5): the calculator must never reorder to
	// reduce padding, even when reordering would shrink the struct.
	lc := NewLayoutCalculator()
	l, err := lc.CalculateStructLayout("NoReorder", []FieldInfo{
		{Name: "x", Type: "i8", Size: 1, Alignment: 1},
		{Name: "y", Type: "i64", Size: 8, Alignment: 8},
		{Name: "z", Type: "i8", Size: 1, Alignment: 1},
	})
	if err != nil {
		t.Fatalf("CalculateStructLayout: %v", err)
	}
	names := []string{"x", "y", "z"}
	for i, f := range l.Fields {
		if f.Name != names[i] {
			t.Fatalf("field %d = %q, want %q", i, f.Name, names[i])
		}
	}
	if l.TotalSize != 24 {
		t.Fatalf("total size = %d, want 24 (1+7pad+8+1+7pad)", l.TotalSize)
	}
}

func TestCalculateStructLayout_EmptyAndInvalid(t *testing.T) {
	lc := NewLayoutCalculator()

	empty, err := lc.CalculateStructLayout("Empty", nil)
	if err != nil {
		t.Fatalf("empty struct: %v", err)
	}
	if empty.TotalSize != 0 {
		t.Fatalf("empty struct size = %d, want 0", empty.TotalSize)
	}

	if _, err := lc.CalculateStructLayout("Bad", []FieldInfo{{Name: "f", Size: 0}}); err == nil {
		t.Fatalf("expected an error for a zero-sized field")
	}
	if _, err := lc.CalculateStructLayout("Bad", []FieldInfo{{Name: "f", Size: 8, Alignment: 3}}); err == nil {
		t.Fatalf("expected an error for a non-power-of-two alignment")
	}
}

func TestFieldOffset(t *testing.T) {
	lc := NewLayoutCalculator()
	l, _ := lc.CalculateStructLayout("Box", []FieldInfo{
		{Name: "a", Size: 8, Alignment: 8},
		{Name: "b", Size: 8, Alignment: 8},
	})
	off, ok := l.FieldOffset("b")
	if !ok || off != 8 {
		t.Fatalf("FieldOffset(b) = (%d, %v), want (8, true)", off, ok)
	}
	if _, ok := l.FieldOffset("missing"); ok {
		t.Fatalf("expected a miss for an unknown field name")
	}
}

func TestCalculateEnumLayout(t *testing.T) {
	lc := NewLayoutCalculator()
	l := lc.CalculateEnumLayout("Option", []int64{8, 0})
	if l.PayloadOffset != 8 {
		t.Fatalf("payload offset = %d, want 8 (after the discriminant word)", l.PayloadOffset)
	}
	if l.TotalSize != 16 {
		t.Fatalf("total size = %d, want 16", l.TotalSize)
	}

	bare := lc.CalculateEnumLayout("Color", []int64{0, 0, 0})
	if bare.TotalSize != 8 {
		t.Fatalf("payload-free enum size = %d, want 8 (discriminant only)", bare.TotalSize)
	}
}
