// Package pipeline wires the five lowering/codegen stages (§6.5) into
// one library entry point: TAST in, a linked, executable Program (or
// the diagnostics that kept it from getting there) out. It plays the
// role the teacher's own top-level driver played for its
// lex/parse/typecheck/codegen stages -- collect diagnostics as each
// stage runs, stop at the first fatal one, and return whatever partial
// result was produced so a caller (the CLI, a test harness, an IDE)
// can still report something useful.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/bladec-lang/bladec/internal/abi"
	"github.com/bladec-lang/bladec/internal/bundle"
	"github.com/bladec-lang/bladec/internal/cache"
	"github.com/bladec-lang/bladec/internal/codegen"
	"github.com/bladec-lang/bladec/internal/diagnostic"
	"github.com/bladec-lang/bladec/internal/hir"
	"github.com/bladec-lang/bladec/internal/ids"
	"github.com/bladec-lang/bladec/internal/mir"
	"github.com/bladec-lang/bladec/internal/tast"
)

// Config controls one Compile invocation.
type Config struct {
	// ModuleName identifies the compiled module, used as both the
	// .blade cache key and the MIR module's own Name (§4.5.1).
	ModuleName string

	// CacheDir, if non-empty, enables the persistent per-module cache
	// (§4.5): Compile consults it before running stages D-F and
	// populates it after a successful compile.
	CacheDir string

	// CompilerVersion seeds the cache's compiler-version hash (§4.5.2);
	// bumping it invalidates every existing .blade entry in CacheDir.
	CompilerVersion string

	// SourceHash identifies the exact source text being compiled, used
	// as the cache's other half of its validity check.
	SourceHash cache.Hash

	// EntryModule/EntryFunction name the (module, function) pair a
	// produced .rzb bundle's loader starts execution from (§4.6.3).
	// Both are used only when BundlePath is set; an empty EntryModule
	// defaults to ModuleName.
	EntryModule   string
	EntryFunction string

	// BundlePath, if non-empty, writes a whole-program .rzb bundle
	// (§4.6) containing this module alone, under ModuleName, after a
	// successful compile.
	BundlePath string

	// StdlibMappings overrides the default runtime registry's (receiver,
	// method) -> extern symbol table (§4.2.7). Nil uses abi.NewRegistry().
	StdlibMappings mir.StdlibMapper

	// RuntimeSymbols supplies the host address of each extern symbol the
	// compiled code references (§6.3: symbol resolution is the host's
	// responsibility). An extern that is declared but never called needs
	// no entry; a referenced symbol with no entry fails the link.
	RuntimeSymbols map[string]uintptr
}

// Result is everything one Compile invocation produced.
type Result struct {
	Module      *mir.Module
	Compiled    *codegen.CompiledModule
	Program     *codegen.Program
	FromCache   bool
	Diagnostics []diagnostic.Diagnostic
}

// Compile runs stages D (TAST→HIR) through G (baseline codegen) over
// files, consulting and populating the .blade cache around stages D-F
// when cfg.CacheDir is set (§4.5.3: a cache hit skips lowering and SSA
// construction entirely and goes straight to codegen), and linking the
// result into an executable Program. Error-level diagnostics of the
// recoverable lowering category let both lowering stages run to the end
// (§7: lowering substitutes an error placeholder and continues), but any
// error-level diagnostic stops the run before validation and codegen.
// A failed run returns the diagnostics plus the stage outputs produced
// before the failure: Module once MIR lowering has run, Compiled once
// codegen has succeeded.
func Compile(files []*tast.File, cfg Config) (*Result, error) {
	reg := ids.NewRegistry()
	mapper := cfg.StdlibMappings
	registry := abi.NewRegistry()
	if mapper == nil {
		mapper = registry
	}

	var mc *cache.ModuleCache
	compilerVersion := cache.CompilerVersionHash(cfg.CompilerVersion)
	if cfg.CacheDir != "" {
		var err error
		mc, err = cache.NewModuleCache(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open cache: %w", err)
		}
		if mod, ok := mc.Load(cfg.ModuleName, cfg.SourceHash, compilerVersion); ok {
			cm, err := codegen.Compile(mod)
			if err != nil {
				return nil, fmt.Errorf("pipeline: codegen (cached module): %w", err)
			}
			prog, err := linkAgainstRuntime(cm, cfg.RuntimeSymbols)
			if err != nil {
				return nil, fmt.Errorf("pipeline: link (cached module): %w", err)
			}
			return &Result{Module: mod, Compiled: cm, Program: prog, FromCache: true}, nil
		}
	}

	lowerer := hir.NewLowerer(reg, files)
	hirFiles := make([]*hir.File, 0, len(files))
	for _, f := range files {
		hirFiles = append(hirFiles, lowerer.LowerFile(f))
	}
	diags := lowerer.Diagnostics()
	if hasFatal(diags) {
		return &Result{Diagnostics: diags}, nil
	}

	mod, mirDiags := mir.BuildModule(cfg.ModuleName, hirFiles, reg, mapper)
	diags = append(diags, mirDiags...)
	// Recoverable lowering errors let both lowering stages run to the end
	// so one compile surfaces every error (§7), but a module carrying
	// error placeholders is never handed to codegen.
	if hasErrors(diags) {
		return &Result{Module: mod, Diagnostics: diags}, nil
	}

	if errs := mir.Validate(mod); len(errs) > 0 {
		for _, e := range errs {
			diags = append(diags, *diagnostic.NewDiagnostic().
				Error().Ssa().
				Code("V0001").
				Title("MIR validation error").
				Message(e.Error()).
				Build())
		}
		return &Result{Module: mod, Diagnostics: diags}, nil
	}

	cm, err := codegen.Compile(mod)
	if err != nil {
		diags = append(diags, *diagnostic.NewDiagnostic().
			Error().Codegen().
			Code("G0001").
			Title("Code generation error").
			Message(err.Error()).
			Build())
		return &Result{Module: mod, Diagnostics: diags}, nil
	}

	prog, err := linkAgainstRuntime(cm, cfg.RuntimeSymbols)
	if err != nil {
		diags = append(diags, *diagnostic.NewDiagnostic().
			Error().Codegen().
			Code("G0002").
			Title("Link error").
			Message(err.Error()).
			Build())
		return &Result{Module: mod, Compiled: cm, Diagnostics: diags}, nil
	}

	if mc != nil {
		if err := mc.Store(cfg.ModuleName, cfg.SourceHash, compilerVersion, mod); err != nil {
			diags = append(diags, *diagnostic.NewDiagnostic().
				Warning().Cache().
				Code("C0001").
				Title("Cache write failed").
				Message(err.Error()).
				Build())
		}
	}

	if cfg.BundlePath != "" {
		modules := map[string]*mir.Module{cfg.ModuleName: mod}
		entryFn := cfg.EntryFunction
		entryMod := cfg.EntryModule
		if entryMod == "" {
			entryMod = cfg.ModuleName
		}
		if err := bundle.Write(cfg.BundlePath, entryMod, entryFn, cfg.CompilerVersion, modules); err != nil {
			diags = append(diags, *diagnostic.NewDiagnostic().
				Warning().Cache().
				Code("C0002").
				Title("Bundle write failed").
				Message(err.Error()).
				Build())
		}
	}

	return &Result{Module: mod, Compiled: cm, Program: prog, Diagnostics: diags}, nil
}

// LoadBundle implements the .rzb load procedure (§4.6.3): read the
// bundle, merge every module into one aggregate, resolve the entry
// function, validate, and run codegen. It returns the Result plus the
// aggregate-qualified entry function name ("module::function"), which
// the caller passes to Result.Program.FunctionPtr. Compilation is
// skipped entirely; only codegen runs, which is the format's point.
func LoadBundle(path string, cfg Config) (*Result, string, error) {
	b, err := bundle.Read(path)
	if err != nil {
		return nil, "", err
	}

	names := make([]string, 0, len(b.Modules))
	for name := range b.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	named := make([]mir.NamedModule, 0, len(names))
	for _, name := range names {
		named = append(named, mir.NamedModule{Name: name, Module: b.Modules[name]})
	}
	agg := mir.Merge("bundle", named)

	entry := b.EntryModule() + "::" + b.EntryFunction()
	if _, ok := agg.FunctionByName(entry); !ok {
		return nil, "", fmt.Errorf("pipeline: bundle entry %s.%s not found", b.EntryModule(), b.EntryFunction())
	}

	var diags []diagnostic.Diagnostic
	if errs := mir.Validate(agg); len(errs) > 0 {
		for _, e := range errs {
			diags = append(diags, *diagnostic.NewDiagnostic().
				Error().Ssa().
				Code("V0001").
				Title("MIR validation error").
				Message(e.Error()).
				Build())
		}
		return &Result{Module: agg, Diagnostics: diags}, entry, nil
	}

	cm, err := codegen.Compile(agg)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: codegen (bundle): %w", err)
	}
	prog, err := linkAgainstRuntime(cm, cfg.RuntimeSymbols)
	if err != nil {
		return nil, "", fmt.Errorf("pipeline: link (bundle): %w", err)
	}
	return &Result{Module: agg, Compiled: cm, Program: prog, Diagnostics: diags}, entry, nil
}

// linkAgainstRuntime resolves every SymFixup the compiled module
// carries against the host-supplied symbol table. This package ships no
// runtime of its own (§4.9 declares the externs; §6.3 leaves their
// implementations to the host), so a referenced symbol the caller did
// not register fails the link rather than silently leaving a zeroed
// call target.
func linkAgainstRuntime(cm *codegen.CompiledModule, symbols map[string]uintptr) (*codegen.Program, error) {
	if symbols == nil {
		symbols = map[string]uintptr{}
	}
	return codegen.Link(cm, symbols)
}

// hasFatal reports whether diags contains anything above
// DiagnosticLowering severity (§7: only a lowering-category diagnostic
// allows the pipeline to continue to the next stage).
func hasFatal(diags []diagnostic.Diagnostic) bool {
	for _, d := range diags {
		if d.Level == diagnostic.DiagnosticError && !d.Category.Recoverable() {
			return true
		}
	}
	return false
}

// hasErrors reports whether diags contains any error-level diagnostic,
// recoverable or not.
func hasErrors(diags []diagnostic.Diagnostic) bool {
	for _, d := range diags {
		if d.Level == diagnostic.DiagnosticError {
			return true
		}
	}
	return false
}
