package mir

// NamedModule pairs a module with the name its bundle table carried.
type NamedModule struct {
	Name   string
	Module *Module
}

// Merge combines several modules into one aggregate for whole-program
// codegen (§4.6.3 step 2). Non-extern functions are qualified as
// "module::function" so same-named functions in different modules never
// collide in the aggregate's name index; extern declarations dedup by
// symbol. Call targets, closure/function references, string-pool
// indices and type-definition method tables are rewritten into the
// aggregate's own tables. The input modules are consumed: their
// functions are re-homed into the aggregate, not copied.
func Merge(name string, mods []NamedModule) *Module {
	agg := NewModule(name)
	for _, nm := range mods {
		fnMap := make(map[FunctionId]FunctionId, len(nm.Module.Functions))
		strMap := make(map[uint32]uint32, len(nm.Module.StringPool))
		for i, s := range nm.Module.StringPool {
			strMap[uint32(i)] = agg.Intern(s)
		}

		for id, fn := range nm.Module.Functions {
			if fn.IsExtern() {
				if existing, ok := agg.FunctionByName(fn.Name); ok {
					fnMap[FunctionId(id)] = existing
					continue
				}
				fnMap[FunctionId(id)] = agg.AddFunction(fn)
				continue
			}
			fn.Name = nm.Name + "::" + fn.Name
			fnMap[FunctionId(id)] = agg.AddFunction(fn)
		}

		for tdName, td := range nm.Module.TypeDefs {
			if _, ok := agg.TypeDefs[tdName]; ok {
				// Two modules compiled against the same type definition
				// agree on its shape (§3.5); first one in wins.
				continue
			}
			for i := range td.Methods {
				td.Methods[i].Func = fnMap[td.Methods[i].Func]
			}
			agg.TypeDefs[tdName] = td
		}

		for _, g := range nm.Module.Globals {
			agg.AddGlobal(g)
		}

		for oldId := range fnMap {
			fn := nm.Module.Functions[oldId]
			if fn.IsExtern() {
				continue // bodyless: nothing to rewrite
			}
			rewriteFunctionRefs(fn, fnMap, strMap)
		}
	}
	return agg
}

func rewriteFunctionRefs(fn *Function, fnMap map[FunctionId]FunctionId, strMap map[uint32]uint32) {
	for _, id := range fn.BlockOrder() {
		b := fn.Blocks[id]
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			switch instr.Op {
			case OpCall:
				if instr.CalleeKind == CalleeFunction {
					instr.CalleeFn = fnMap[instr.CalleeFn]
				}
			case OpMakeClosure, OpFunctionRef:
				instr.FuncId = fnMap[instr.FuncId]
			case OpConst:
				if instr.ConstKind == ConstStringPool {
					instr.StringPool = strMap[instr.StringPool]
				}
			}
		}
	}
}
