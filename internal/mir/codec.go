package mir

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

// Encode serializes m into the tagged binary form consumed by
// internal/cache's .blade payload and internal/bundle's .rzb module
// blob (§4.5.2, §4.6.2). The format is a flat sequence of
// length-prefixed records rather than a single recursive struct dump,
// so a reader can skip a record it doesn't understand without knowing
// its shape -- the same self-describing discipline
// internal/cache/cache.go's teacher predecessor used for its manifest
// entries, adapted here to module bytes instead of a JSON manifest.
func Encode(m *Module) []byte {
	var buf bytes.Buffer
	w := &encoder{w: &buf}

	w.string(m.Name)
	w.u8(boolByte(m.HasEntry))
	w.u32(uint32(m.EntryPoint))

	w.u32(uint32(len(m.StringPool)))
	for _, s := range m.StringPool {
		w.string(s)
	}

	// Map iteration order is randomized; the encoding sorts so the same
	// module always serializes to the same bytes.
	w.u32(uint32(len(m.TypeDefs)))
	tdNames := make([]string, 0, len(m.TypeDefs))
	for name := range m.TypeDefs {
		tdNames = append(tdNames, name)
	}
	sort.Strings(tdNames)
	for _, name := range tdNames {
		w.string(name)
		w.encodeTypeDef(m.TypeDefs[name])
	}

	w.u32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		w.string(g.Name)
		w.encodeType(g.Type)
		w.bytes(g.Init)
	}

	w.u32(uint32(len(m.Functions)))
	for _, fn := range m.Functions {
		w.encodeFunction(fn)
	}

	return buf.Bytes()
}

// Decode parses bytes produced by Encode back into a Module. An error
// means the payload is truncated or structurally inconsistent; callers
// (cache, bundle) treat that the same as a cache miss rather than a
// fatal condition.
func Decode(data []byte) (*Module, error) {
	d := &decoder{r: bytes.NewReader(data)}
	m := &Module{TypeDefs: make(map[string]*TypeDef), funcIndex: make(map[string]FunctionId)}

	var err error
	if m.Name, err = d.string(); err != nil {
		return nil, err
	}
	hasEntry, err := d.u8()
	if err != nil {
		return nil, err
	}
	m.HasEntry = hasEntry != 0
	ep, err := d.u32()
	if err != nil {
		return nil, err
	}
	m.EntryPoint = FunctionId(ep)

	poolLen, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < poolLen; i++ {
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		m.StringPool = append(m.StringPool, s)
	}

	tdLen, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < tdLen; i++ {
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		td, err := d.decodeTypeDef()
		if err != nil {
			return nil, err
		}
		m.TypeDefs[name] = td
	}

	gLen, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < gLen; i++ {
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		ty, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		init, err := d.bytes()
		if err != nil {
			return nil, err
		}
		m.Globals = append(m.Globals, Global{Name: name, Type: ty, Init: init})
	}

	fLen, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < fLen; i++ {
		fn, err := d.decodeFunction()
		if err != nil {
			return nil, err
		}
		m.AddFunction(fn)
	}

	return m, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// --- primitive writer/reader ---

type encoder struct{ w *bytes.Buffer }

func (e *encoder) u8(b byte)    { e.w.WriteByte(b) }
func (e *encoder) u32(v uint32) { binary.Write(e.w, binary.LittleEndian, v) }
func (e *encoder) u64(v uint64) { binary.Write(e.w, binary.LittleEndian, v) }
func (e *encoder) i64(v int64)  { binary.Write(e.w, binary.LittleEndian, v) }
func (e *encoder) f64(v float64) {
	binary.Write(e.w, binary.LittleEndian, v)
}
func (e *encoder) string(s string) {
	e.u32(uint32(len(s)))
	e.w.WriteString(s)
}
func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.w.Write(b)
}

type decoder struct{ r *bytes.Reader }

func (d *decoder) u8() (byte, error) { return d.r.ReadByte() }
func (d *decoder) u32() (uint32, error) {
	var v uint32
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}
func (d *decoder) u64() (uint64, error) {
	var v uint64
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}
func (d *decoder) i64() (int64, error) {
	var v int64
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}
func (d *decoder) f64() (float64, error) {
	var v float64
	err := binary.Read(d.r, binary.LittleEndian, &v)
	return v, err
}
func (d *decoder) string() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
func (d *decoder) bytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// --- MirType ---

func (e *encoder) encodeType(t *MirType) {
	if t == nil {
		e.u8(0xFF)
		return
	}
	e.u8(byte(t.Kind))
	switch t.Kind {
	case KPtr:
		e.encodeType(t.Elem)
	case KStruct:
		e.string(t.StructName)
		e.u32(uint32(len(t.Fields)))
		for _, f := range t.Fields {
			e.string(f.Name)
			e.encodeType(f.Type)
		}
	case KArray:
		e.encodeType(t.ArrayElem)
		e.u32(uint32(t.ArrayLength))
	case KUnion:
		e.encodeType(t.Discriminant)
		e.u32(uint32(len(t.Variants)))
		for _, v := range t.Variants {
			e.encodeType(v)
		}
	case KFunction:
		e.u32(uint32(len(t.Params)))
		for _, p := range t.Params {
			e.encodeType(p)
		}
		e.encodeType(t.Ret)
	}
}

func (d *decoder) decodeType() (*MirType, error) {
	k, err := d.u8()
	if err != nil {
		return nil, err
	}
	if k == 0xFF {
		return nil, nil
	}
	t := &MirType{Kind: TypeKind(k)}
	switch t.Kind {
	case KPtr:
		elem, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		t.Elem = elem
	case KStruct:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		t.StructName = name
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			fname, err := d.string()
			if err != nil {
				return nil, err
			}
			fty, err := d.decodeType()
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, StructField{Name: fname, Type: fty})
		}
	case KArray:
		elem, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		t.ArrayElem = elem
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		t.ArrayLength = int(n)
	case KUnion:
		disc, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		t.Discriminant = disc
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			v, err := d.decodeType()
			if err != nil {
				return nil, err
			}
			t.Variants = append(t.Variants, v)
		}
	case KFunction:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			p, err := d.decodeType()
			if err != nil {
				return nil, err
			}
			t.Params = append(t.Params, p)
		}
		ret, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		t.Ret = ret
	}
	return t, nil
}

// --- TypeDef ---

func (e *encoder) encodeTypeDef(td *TypeDef) {
	e.u8(byte(td.Kind))
	e.string(td.Name)
	e.u32(uint32(len(td.Fields)))
	for _, f := range td.Fields {
		e.string(f.Name)
		e.encodeType(f.Type)
	}
	e.u32(uint32(len(td.Methods)))
	for _, m := range td.Methods {
		e.string(m.Name)
		e.u32(uint32(m.Func))
	}
	e.string(td.Super)
	e.u32(uint32(len(td.Interfaces)))
	for _, i := range td.Interfaces {
		e.string(i)
	}
	e.u32(uint32(len(td.IfaceMethods)))
	for _, m := range td.IfaceMethods {
		e.string(m.Name)
		e.encodeSignature(m.Sig)
	}
	e.u32(uint32(len(td.Variants)))
	for _, v := range td.Variants {
		e.string(v.Name)
		e.u32(v.Tag)
		e.u32(uint32(len(v.PayloadFields)))
		for _, p := range v.PayloadFields {
			e.encodeType(p)
		}
	}
}

func (d *decoder) decodeTypeDef() (*TypeDef, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	name, err := d.string()
	if err != nil {
		return nil, err
	}
	td := &TypeDef{Kind: TypeDefKind(kind), Name: name}

	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		fname, _ := d.string()
		fty, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		td.Fields = append(td.Fields, ClassField{Name: fname, Type: fty})
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		mname, _ := d.string()
		fid, err := d.u32()
		if err != nil {
			return nil, err
		}
		td.Methods = append(td.Methods, ClassMethod{Name: mname, Func: FunctionId(fid)})
	}

	td.Super, err = d.string()
	if err != nil {
		return nil, err
	}
	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		iface, _ := d.string()
		td.Interfaces = append(td.Interfaces, iface)
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		mname, _ := d.string()
		sig, err := d.decodeSignature()
		if err != nil {
			return nil, err
		}
		td.IfaceMethods = append(td.IfaceMethods, InterfaceMethod{Name: mname, Sig: sig})
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		vname, _ := d.string()
		tag, err := d.u32()
		if err != nil {
			return nil, err
		}
		pn, err := d.u32()
		if err != nil {
			return nil, err
		}
		var payload []*MirType
		for j := uint32(0); j < pn; j++ {
			p, err := d.decodeType()
			if err != nil {
				return nil, err
			}
			payload = append(payload, p)
		}
		td.Variants = append(td.Variants, EnumVariant{Name: vname, Tag: tag, PayloadFields: payload})
	}

	return td, nil
}

// --- Signature / Function / Block / Instr / Terminator ---

func (e *encoder) encodeSignature(s Signature) {
	e.u32(uint32(len(s.Params)))
	for _, p := range s.Params {
		e.string(p.Name)
		e.encodeType(p.Type)
	}
	e.encodeType(s.Ret)
	e.u8(boolByte(s.UsesSret))
	e.u8(boolByte(s.MayThrow))
	e.u8(byte(s.Conv))
}

func (d *decoder) decodeSignature() (Signature, error) {
	var s Signature
	n, err := d.u32()
	if err != nil {
		return s, err
	}
	for i := uint32(0); i < n; i++ {
		name, _ := d.string()
		ty, err := d.decodeType()
		if err != nil {
			return s, err
		}
		s.Params = append(s.Params, Param{Name: name, Type: ty})
	}
	ret, err := d.decodeType()
	if err != nil {
		return s, err
	}
	s.Ret = ret
	sret, err := d.u8()
	if err != nil {
		return s, err
	}
	s.UsesSret = sret != 0
	mayThrow, err := d.u8()
	if err != nil {
		return s, err
	}
	s.MayThrow = mayThrow != 0
	conv, err := d.u8()
	if err != nil {
		return s, err
	}
	s.Conv = CallingConvention(conv)
	return s, nil
}

func (e *encoder) encodeFunction(fn *Function) {
	e.string(fn.Name)
	e.encodeSignature(fn.Sig)
	e.u32(uint32(fn.Entry))
	e.u8(boolByte(fn.IsExtern()))
	if fn.IsExtern() {
		return
	}

	order := fn.BlockOrder()
	e.u32(uint32(len(order)))
	for _, id := range order {
		b := fn.Blocks[id]
		e.u32(uint32(id))
		e.encodeBlock(b)
	}

	e.u32(uint32(len(fn.Locals)))
	localIds := make([]ValueId, 0, len(fn.Locals))
	for id := range fn.Locals {
		localIds = append(localIds, id)
	}
	sort.Slice(localIds, func(i, j int) bool { return localIds[i] < localIds[j] })
	for _, id := range localIds {
		l := fn.Locals[id]
		e.u32(uint32(id))
		e.string(l.Name)
		e.encodeType(l.Type)
		e.u8(boolByte(l.Mutable))
		e.u8(byte(l.Allocation))
	}
}

func (d *decoder) decodeFunction() (*Function, error) {
	name, err := d.string()
	if err != nil {
		return nil, err
	}
	sig, err := d.decodeSignature()
	if err != nil {
		return nil, err
	}
	fn := NewFunction(name, sig)

	entry, err := d.u32()
	if err != nil {
		return nil, err
	}
	fn.Entry = BlockId(entry)

	isExtern, err := d.u8()
	if err != nil {
		return nil, err
	}
	if isExtern != 0 {
		return fn, nil
	}

	blockCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < blockCount; i++ {
		id, err := d.u32()
		if err != nil {
			return nil, err
		}
		b, err := d.decodeBlock()
		if err != nil {
			return nil, err
		}
		b.ID = BlockId(id)
		fn.Blocks[b.ID] = b
		fn.blockOrder = append(fn.blockOrder, b.ID)
		if uint32(b.ID) >= uint32(fn.nextBlock) {
			fn.nextBlock = b.ID + 1
		}
	}

	localCount, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < localCount; i++ {
		id, err := d.u32()
		if err != nil {
			return nil, err
		}
		name, _ := d.string()
		ty, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		mutable, err := d.u8()
		if err != nil {
			return nil, err
		}
		alloc, err := d.u8()
		if err != nil {
			return nil, err
		}
		vid := ValueId(id)
		fn.Locals[vid] = &Local{Name: name, Type: ty, Mutable: mutable != 0, Allocation: Allocation(alloc)}
		if uint32(vid) >= uint32(fn.nextValue) {
			fn.nextValue = vid + 1
		}
	}

	return fn, nil
}

func (e *encoder) encodeBlock(b *Block) {
	e.u32(uint32(len(b.Phis)))
	for _, p := range b.Phis {
		e.u32(uint32(p.Dest))
		e.encodeType(p.Type)
		e.u32(uint32(len(p.Incoming)))
		for _, in := range p.Incoming {
			e.u32(uint32(in.Pred))
			e.u32(uint32(in.Value))
		}
	}

	e.u32(uint32(len(b.Instrs)))
	for _, instr := range b.Instrs {
		e.encodeInstr(instr)
	}

	e.encodeTerminator(b.Term)
}

func (d *decoder) decodeBlock() (*Block, error) {
	b := &Block{}
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		dest, err := d.u32()
		if err != nil {
			return nil, err
		}
		ty, err := d.decodeType()
		if err != nil {
			return nil, err
		}
		m, err := d.u32()
		if err != nil {
			return nil, err
		}
		phi := Phi{Dest: ValueId(dest), Type: ty}
		for j := uint32(0); j < m; j++ {
			pred, err := d.u32()
			if err != nil {
				return nil, err
			}
			val, err := d.u32()
			if err != nil {
				return nil, err
			}
			phi.Incoming = append(phi.Incoming, PhiEdge{Pred: BlockId(pred), Value: ValueId(val)})
		}
		b.Phis = append(b.Phis, phi)
	}

	n, err = d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		instr, err := d.decodeInstr()
		if err != nil {
			return nil, err
		}
		b.Instrs = append(b.Instrs, instr)
	}

	term, err := d.decodeTerminator()
	if err != nil {
		return nil, err
	}
	b.Term = term
	return b, nil
}

func (e *encoder) encodeInstr(i Instr) {
	e.u8(byte(i.Op))
	e.u32(uint32(i.Dest))
	e.encodeType(i.Type)

	e.u8(byte(i.ConstKind))
	e.i64(i.IntValue)
	e.f64(i.FloatValue)
	e.u8(boolByte(i.BoolValue))
	e.u32(i.StringPool)

	e.u32(uint32(i.LHS))
	e.u32(uint32(i.RHS))
	e.u32(uint32(i.Src))

	e.u32(uint32(i.Ptr))
	e.u32(uint32(i.Value))
	e.u32(uint32(i.Slot))
	e.u32(uint32(i.Base))
	e.u32(uint32(i.Index))
	e.encodeType(i.ElemType)
	e.i64(i.OffsetBytes)

	e.u32(uint32(len(i.AggFields)))
	for _, f := range i.AggFields {
		e.u32(uint32(f))
	}
	e.u32(uint32(i.Agg))
	e.u32(uint32(i.FieldIndex))
	e.u32(i.VariantTag)
	e.u32(uint32(i.Union))

	e.u8(byte(i.CalleeKind))
	e.u32(uint32(i.CalleeFn))
	e.u32(uint32(i.CalleeVal))
	e.u32(uint32(len(i.Args)))
	for _, a := range i.Args {
		e.u32(uint32(a))
	}

	e.u32(uint32(i.FuncId))
	e.u32(uint32(i.EnvVal))
	e.u32(uint32(i.Closure))

	e.encodeType(i.FromType)
	e.encodeType(i.ToType)

	e.string(i.Message)
}

func (d *decoder) decodeInstr() (Instr, error) {
	var i Instr
	op, err := d.u8()
	if err != nil {
		return i, err
	}
	i.Op = Op(op)
	dest, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Dest = ValueId(dest)
	ty, err := d.decodeType()
	if err != nil {
		return i, err
	}
	i.Type = ty

	ck, err := d.u8()
	if err != nil {
		return i, err
	}
	i.ConstKind = ConstKind(ck)
	if i.IntValue, err = d.i64(); err != nil {
		return i, err
	}
	if i.FloatValue, err = d.f64(); err != nil {
		return i, err
	}
	bv, err := d.u8()
	if err != nil {
		return i, err
	}
	i.BoolValue = bv != 0
	if i.StringPool, err = d.u32(); err != nil {
		return i, err
	}

	lhs, err := d.u32()
	if err != nil {
		return i, err
	}
	i.LHS = ValueId(lhs)
	rhs, err := d.u32()
	if err != nil {
		return i, err
	}
	i.RHS = ValueId(rhs)
	src, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Src = ValueId(src)

	ptr, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Ptr = ValueId(ptr)
	val, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Value = ValueId(val)
	slot, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Slot = int(slot)
	base, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Base = ValueId(base)
	index, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Index = ValueId(index)
	elemTy, err := d.decodeType()
	if err != nil {
		return i, err
	}
	i.ElemType = elemTy
	if i.OffsetBytes, err = d.i64(); err != nil {
		return i, err
	}

	n, err := d.u32()
	if err != nil {
		return i, err
	}
	for j := uint32(0); j < n; j++ {
		v, err := d.u32()
		if err != nil {
			return i, err
		}
		i.AggFields = append(i.AggFields, ValueId(v))
	}
	agg, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Agg = ValueId(agg)
	fidx, err := d.u32()
	if err != nil {
		return i, err
	}
	i.FieldIndex = int(fidx)
	if i.VariantTag, err = d.u32(); err != nil {
		return i, err
	}
	union, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Union = ValueId(union)

	calleeKind, err := d.u8()
	if err != nil {
		return i, err
	}
	i.CalleeKind = CalleeKind(calleeKind)
	calleeFn, err := d.u32()
	if err != nil {
		return i, err
	}
	i.CalleeFn = FunctionId(calleeFn)
	calleeVal, err := d.u32()
	if err != nil {
		return i, err
	}
	i.CalleeVal = ValueId(calleeVal)
	argc, err := d.u32()
	if err != nil {
		return i, err
	}
	for j := uint32(0); j < argc; j++ {
		a, err := d.u32()
		if err != nil {
			return i, err
		}
		i.Args = append(i.Args, ValueId(a))
	}

	funcId, err := d.u32()
	if err != nil {
		return i, err
	}
	i.FuncId = FunctionId(funcId)
	envVal, err := d.u32()
	if err != nil {
		return i, err
	}
	i.EnvVal = ValueId(envVal)
	closure, err := d.u32()
	if err != nil {
		return i, err
	}
	i.Closure = ValueId(closure)

	fromTy, err := d.decodeType()
	if err != nil {
		return i, err
	}
	i.FromType = fromTy
	toTy, err := d.decodeType()
	if err != nil {
		return i, err
	}
	i.ToType = toTy

	if i.Message, err = d.string(); err != nil {
		return i, err
	}

	return i, nil
}

func (e *encoder) encodeTerminator(t Terminator) {
	e.u8(byte(t.Kind))
	e.u8(boolByte(t.HasValue))
	e.u32(uint32(t.Value))
	e.u32(uint32(t.JumpTarget))
	e.u32(uint32(t.Cond))
	e.u32(uint32(t.TrueTarget))
	e.u32(uint32(t.FalseTarget))
	e.u32(uint32(t.SwitchValue))
	e.u32(uint32(len(t.Cases)))
	for _, c := range t.Cases {
		e.i64(c.Literal)
		e.u32(uint32(c.Target))
	}
	e.u32(uint32(t.DefaultTarget))
	e.u32(uint32(t.ExceptionValue))
}

func (d *decoder) decodeTerminator() (Terminator, error) {
	var t Terminator
	kind, err := d.u8()
	if err != nil {
		return t, err
	}
	t.Kind = TermKind(kind)
	hv, err := d.u8()
	if err != nil {
		return t, err
	}
	t.HasValue = hv != 0
	val, err := d.u32()
	if err != nil {
		return t, err
	}
	t.Value = ValueId(val)
	jt, err := d.u32()
	if err != nil {
		return t, err
	}
	t.JumpTarget = BlockId(jt)
	cond, err := d.u32()
	if err != nil {
		return t, err
	}
	t.Cond = ValueId(cond)
	tt, err := d.u32()
	if err != nil {
		return t, err
	}
	t.TrueTarget = BlockId(tt)
	ft, err := d.u32()
	if err != nil {
		return t, err
	}
	t.FalseTarget = BlockId(ft)
	sv, err := d.u32()
	if err != nil {
		return t, err
	}
	t.SwitchValue = ValueId(sv)
	n, err := d.u32()
	if err != nil {
		return t, err
	}
	for i := uint32(0); i < n; i++ {
		lit, err := d.i64()
		if err != nil {
			return t, err
		}
		target, err := d.u32()
		if err != nil {
			return t, err
		}
		t.Cases = append(t.Cases, SwitchCase{Literal: lit, Target: BlockId(target)})
	}
	dt, err := d.u32()
	if err != nil {
		return t, err
	}
	t.DefaultTarget = BlockId(dt)
	ev, err := d.u32()
	if err != nil {
		return t, err
	}
	t.ExceptionValue = ValueId(ev)
	return t, nil
}
