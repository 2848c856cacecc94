package mir

// TypeDefKind distinguishes the three nominal MIR type definitions of
// §3.5.
type TypeDefKind int

const (
	TypeDefClass TypeDefKind = iota
	TypeDefInterface
	TypeDefEnum
)

// ClassField is one ordered field of a Class type definition.
type ClassField struct {
	Name string
	Type *MirType
}

// ClassMethod associates a method name with its compiled FunctionId.
type ClassMethod struct {
	Name string
	Func FunctionId
}

// InterfaceMethod is one ordered method of an Interface type definition.
type InterfaceMethod struct {
	Name string
	Sig  Signature
}

// EnumVariant is one ordered constructor of an Enum type definition; its
// Tag is the discriminant value compared against during pattern
// matching (§4.2.3).
type EnumVariant struct {
	Name          string
	Tag           uint32
	PayloadFields []*MirType
}

// TypeDef is the MIR module's record of a class/interface/enum's ABI
// shape (§3.5). Field and method order is part of the ABI: two modules
// compiled against the same TypeDef must agree on it, so lowering always
// appends in source-declaration order (§4.2.6) and this struct never
// reorders what it is given.
type TypeDef struct {
	Kind Kind
	Name string

	// Class
	Fields     []ClassField
	Methods    []ClassMethod
	Super      string // type definition name, "" if none
	Interfaces []string

	// Interface
	IfaceMethods []InterfaceMethod

	// Enum
	Variants []EnumVariant
}

// Kind is an alias kept distinct from TypeKind to avoid confusing a
// TypeDef's own classification with the backend value-type system.
type Kind = TypeDefKind

// Global is a module-level value (string-pool entries, static data).
type Global struct {
	Name string
	Type *MirType
	Init []byte
}

// Module exclusively owns its functions, globals and type definitions
// (§3.6). FunctionId/GlobalId index into Functions/Globals; TypeDefs is
// keyed by the nominal type's name (the same name ids.Registry interned
// for the owning ids.SymbolId).
type Module struct {
	Name       string
	EntryPoint FunctionId
	HasEntry   bool
	Functions  []*Function
	Globals    []Global
	TypeDefs   map[string]*TypeDef
	StringPool []string

	funcIndex map[string]FunctionId
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:      name,
		TypeDefs:  make(map[string]*TypeDef),
		funcIndex: make(map[string]FunctionId),
	}
}

// AddFunction appends fn to the module's function table and returns its
// FunctionId.
func (m *Module) AddFunction(fn *Function) FunctionId {
	id := FunctionId(len(m.Functions))
	m.Functions = append(m.Functions, fn)
	m.funcIndex[fn.Name] = id
	return id
}

// Function returns the function registered under id.
func (m *Module) Function(id FunctionId) *Function {
	if int(id) >= len(m.Functions) {
		return nil
	}
	return m.Functions[id]
}

// FunctionByName looks up a function's id by name, used when resolving
// the bundle's (module_name, function_name) entry descriptor (§4.6.3).
func (m *Module) FunctionByName(name string) (FunctionId, bool) {
	id, ok := m.funcIndex[name]
	return id, ok
}

// Intern adds s to the module's string pool (used by Const instructions
// carrying a ConstStringPool payload) and returns its index, deduping
// identical strings.
func (m *Module) Intern(s string) uint32 {
	for i, existing := range m.StringPool {
		if existing == s {
			return uint32(i)
		}
	}
	m.StringPool = append(m.StringPool, s)
	return uint32(len(m.StringPool) - 1)
}

// AddGlobal appends a global and returns its GlobalId.
func (m *Module) AddGlobal(g Global) GlobalId {
	id := GlobalId(len(m.Globals))
	m.Globals = append(m.Globals, g)
	return id
}

// Global returns the global registered under id, and whether it exists
// (§4.3.1: every GlobalId reference must resolve).
func (m *Module) Global(id GlobalId) (Global, bool) {
	if int(id) >= len(m.Globals) {
		return Global{}, false
	}
	return m.Globals[int(id)], true
}
