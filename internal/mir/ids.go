// Package mir implements the module's backend-level intermediate
// representation: SSA-form functions built from typed values, blocks and
// instructions, plus the validator and codegen entry points that consume
// them.
//
// MIR sits below hir.File: hir lowering produces source-shaped trees,
// mir lowering (BuildModule) turns each hir.FuncDecl into SSA form with
// explicit ValueId/BlockId handles, following the on-the-fly construction
// discipline of §4.2.1 (new values per definition site, phi nodes at
// joins, block sealing once all predecessors are known).
package mir

// ValueId is a 32-bit SSA virtual register, unique within a Function.
// Every non-terminator instruction defines at most one ValueId.
type ValueId uint32

// InvalidValue marks the absence of a result (e.g. a void Call).
const InvalidValue ValueId = 0

// BlockId is a 32-bit handle, unique within a Function. Block 0 is always
// the entry block.
type BlockId uint32

// EntryBlock is the BlockId of every function's entry block.
const EntryBlock BlockId = 0

// FunctionId indexes a Module's function table.
type FunctionId uint32

// GlobalId indexes a Module's global table.
type GlobalId uint32
