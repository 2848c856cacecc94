// Advanced diagnostic system for the bladec compiler.
// Provides comprehensive error and warning reporting.

package diagnostic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bladec-lang/bladec/internal/position"
)

// DiagnosticLevel represents the severity level of a diagnostic message.
type DiagnosticLevel int

const (
	DiagnosticError DiagnosticLevel = iota
	DiagnosticWarning
	DiagnosticInfo
	DiagnosticHint
)

func (dl DiagnosticLevel) String() string {
	switch dl {
	case DiagnosticError:
		return "error"
	case DiagnosticWarning:
		return "warning"
	case DiagnosticInfo:
		return "info"
	case DiagnosticHint:
		return "hint"
	default:
		return "unknown"
	}
}

// DiagnosticCategory represents the pipeline stage that raised a diagnostic.
// These are the six error kinds of the specification's error taxonomy
// (§7): lowering errors are recoverable (an error-placeholder node is
// substituted and lowering continues); everything from Ssa onward is fatal
// for the enclosing module.
type DiagnosticCategory int

const (
	DiagnosticLowering DiagnosticCategory = iota
	DiagnosticSsa
	DiagnosticTypeMismatch
	DiagnosticCfg
	DiagnosticCodegen
	DiagnosticCache
)

func (dc DiagnosticCategory) String() string {
	switch dc {
	case DiagnosticLowering:
		return "lowering"
	case DiagnosticSsa:
		return "ssa"
	case DiagnosticTypeMismatch:
		return "type-mismatch"
	case DiagnosticCfg:
		return "cfg"
	case DiagnosticCodegen:
		return "codegen"
	case DiagnosticCache:
		return "cache"
	default:
		return "unknown"
	}
}

// Recoverable reports whether a diagnostic of this category allows lowering
// to continue past the offending node (§7 propagation policy). Only
// DiagnosticLowering is recoverable; everything else is fatal for the
// enclosing module.
func (dc DiagnosticCategory) Recoverable() bool {
	return dc == DiagnosticLowering
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Code        string
	Title       string
	Message     string
	Suggestions []Suggestion
	RelatedInfo []RelatedInformation
	Tags        []string
	Span        position.Span
	Level       DiagnosticLevel
	Category    DiagnosticCategory
}

// Suggestion represents a suggested fix for a diagnostic.
type Suggestion struct {
	Title       string
	Description string
	Edits       []TextEdit
}

// TextEdit represents a text replacement.
type TextEdit struct {
	NewText     string
	Description string
	Span        position.Span
}

// RelatedInformation provides additional context for a diagnostic.
type RelatedInformation struct {
	Message string
	Span    position.Span
}

// DiagnosticBuilder helps construct diagnostic messages with fluent API.
type DiagnosticBuilder struct {
	diagnostic *Diagnostic
}

// NewDiagnostic creates a new diagnostic builder.
func NewDiagnostic() *DiagnosticBuilder {
	return &DiagnosticBuilder{
		diagnostic: &Diagnostic{
			Suggestions: make([]Suggestion, 0),
			RelatedInfo: make([]RelatedInformation, 0),
			Tags:        make([]string, 0),
		},
	}
}

func (db *DiagnosticBuilder) Error() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticError

	return db
}

func (db *DiagnosticBuilder) Warning() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticWarning

	return db
}

func (db *DiagnosticBuilder) Info() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticInfo

	return db
}

func (db *DiagnosticBuilder) Hint() *DiagnosticBuilder {
	db.diagnostic.Level = DiagnosticHint

	return db
}

func (db *DiagnosticBuilder) Lowering() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticLowering

	return db
}

func (db *DiagnosticBuilder) Ssa() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticSsa

	return db
}

func (db *DiagnosticBuilder) TypeMismatch() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticTypeMismatch

	return db
}

func (db *DiagnosticBuilder) Cfg() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticCfg

	return db
}

func (db *DiagnosticBuilder) Codegen() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticCodegen

	return db
}

func (db *DiagnosticBuilder) Cache() *DiagnosticBuilder {
	db.diagnostic.Category = DiagnosticCache

	return db
}

func (db *DiagnosticBuilder) Code(code string) *DiagnosticBuilder {
	db.diagnostic.Code = code

	return db
}

func (db *DiagnosticBuilder) Title(title string) *DiagnosticBuilder {
	db.diagnostic.Title = title

	return db
}

func (db *DiagnosticBuilder) Message(message string) *DiagnosticBuilder {
	db.diagnostic.Message = message

	return db
}

func (db *DiagnosticBuilder) Span(span position.Span) *DiagnosticBuilder {
	db.diagnostic.Span = span

	return db
}

func (db *DiagnosticBuilder) Suggest(title, description string, edits ...TextEdit) *DiagnosticBuilder {
	suggestion := Suggestion{
		Title:       title,
		Description: description,
		Edits:       edits,
	}
	db.diagnostic.Suggestions = append(db.diagnostic.Suggestions, suggestion)

	return db
}

func (db *DiagnosticBuilder) Related(span position.Span, message string) *DiagnosticBuilder {
	related := RelatedInformation{
		Span:    span,
		Message: message,
	}
	db.diagnostic.RelatedInfo = append(db.diagnostic.RelatedInfo, related)

	return db
}

func (db *DiagnosticBuilder) Tag(tag string) *DiagnosticBuilder {
	db.diagnostic.Tags = append(db.diagnostic.Tags, tag)

	return db
}

func (db *DiagnosticBuilder) Build() *Diagnostic {
	return db.diagnostic
}

// DiagnosticEngine manages the collection and processing of diagnostics.
type DiagnosticEngine struct {
	diagnostics []Diagnostic
	config      DiagnosticConfig
}

// DiagnosticConfig controls diagnostic behavior.
type DiagnosticConfig struct {
	IgnoreCategories []DiagnosticCategory
	IgnoreCodes      []string
	MaxErrors        int
	WarningsAsErrors bool
	VerboseOutput    bool
	ShowSuggestions  bool
	ShowRelatedInfo  bool
}

// NewDiagnosticEngine creates a new diagnostic engine.
func NewDiagnosticEngine(config DiagnosticConfig) *DiagnosticEngine {
	return &DiagnosticEngine{
		diagnostics: make([]Diagnostic, 0),
		config:      config,
	}
}

// AddDiagnostic adds a diagnostic to the engine.
func (de *DiagnosticEngine) AddDiagnostic(diagnostic *Diagnostic) {
	// Check if diagnostic should be ignored.
	if de.shouldIgnore(diagnostic) {
		return
	}

	// Convert warnings to errors if configured.
	if de.config.WarningsAsErrors && diagnostic.Level == DiagnosticWarning {
		diagnostic.Level = DiagnosticError
	}

	// Drop everything once the error limit and its truncation notice are in.
	if len(de.GetErrors()) > de.config.MaxErrors {
		return
	}

	de.diagnostics = append(de.diagnostics, *diagnostic)

	// Stop adding diagnostics if max errors reached.
	if len(de.GetErrors()) >= de.config.MaxErrors {
		// Add a special diagnostic indicating truncation.
		truncationDiag := NewDiagnostic().
			Error().
			Code("E0001").
			Title("Too many errors").
			Message(fmt.Sprintf("Stopping after %d errors", de.config.MaxErrors)).
			Build()
		de.diagnostics = append(de.diagnostics, *truncationDiag)
	}
}

// shouldIgnore checks if a diagnostic should be ignored based on config.
func (de *DiagnosticEngine) shouldIgnore(diagnostic *Diagnostic) bool {
	// Check ignored categories.
	for _, cat := range de.config.IgnoreCategories {
		if diagnostic.Category == cat {
			return true
		}
	}

	// Check ignored codes.
	for _, code := range de.config.IgnoreCodes {
		if diagnostic.Code == code {
			return true
		}
	}

	return false
}

// GetDiagnostics returns all diagnostics.
func (de *DiagnosticEngine) GetDiagnostics() []Diagnostic {
	return de.diagnostics
}

// GetErrors returns only error-level diagnostics.
func (de *DiagnosticEngine) GetErrors() []Diagnostic {
	errors := make([]Diagnostic, 0)

	for _, diag := range de.diagnostics {
		if diag.Level == DiagnosticError {
			errors = append(errors, diag)
		}
	}

	return errors
}

// GetWarnings returns only warning-level diagnostics.
func (de *DiagnosticEngine) GetWarnings() []Diagnostic {
	warnings := make([]Diagnostic, 0)

	for _, diag := range de.diagnostics {
		if diag.Level == DiagnosticWarning {
			warnings = append(warnings, diag)
		}
	}

	return warnings
}

// HasErrors returns true if there are any errors.
func (de *DiagnosticEngine) HasErrors() bool {
	return len(de.GetErrors()) > 0
}

// Clear removes all diagnostics.
func (de *DiagnosticEngine) Clear() {
	de.diagnostics = de.diagnostics[:0]
}

// SortDiagnostics sorts diagnostics by position and severity.
func (de *DiagnosticEngine) SortDiagnostics() {
	sort.Slice(de.diagnostics, func(i, j int) bool {
		a, b := de.diagnostics[i], de.diagnostics[j]

		// First by file, then by line, then by column.
		if a.Span.Start.Filename != b.Span.Start.Filename {
			return a.Span.Start.Filename < b.Span.Start.Filename
		}

		if a.Span.Start.Line != b.Span.Start.Line {
			return a.Span.Start.Line < b.Span.Start.Line
		}

		if a.Span.Start.Column != b.Span.Start.Column {
			return a.Span.Start.Column < b.Span.Start.Column
		}

		// Then by severity (errors first).
		return a.Level < b.Level
	})
}

// FormatDiagnostics returns a formatted string representation of all diagnostics.
func (de *DiagnosticEngine) FormatDiagnostics() string {
	if len(de.diagnostics) == 0 {
		return ""
	}

	de.SortDiagnostics()

	var result strings.Builder

	for i, diag := range de.diagnostics {
		if i > 0 {
			result.WriteString("\n")
		}

		result.WriteString(de.formatSingleDiagnostic(&diag))
	}

	// Add summary.
	result.WriteString(de.formatSummary())

	return result.String()
}

// formatSingleDiagnostic formats a single diagnostic.
func (de *DiagnosticEngine) formatSingleDiagnostic(diag *Diagnostic) string {
	var result strings.Builder

	// Main diagnostic line.
	result.WriteString(fmt.Sprintf("%s:%d:%d: %s[%s]: %s\n",
		diag.Span.Start.Filename,
		diag.Span.Start.Line,
		diag.Span.Start.Column,
		diag.Level.String(),
		diag.Code,
		diag.Title,
	))

	// Message.
	if diag.Message != "" {
		result.WriteString(fmt.Sprintf("  %s\n", diag.Message))
	}

	// Show suggestions if enabled.
	if de.config.ShowSuggestions && len(diag.Suggestions) > 0 {
		result.WriteString("  Suggestions:\n")

		for _, suggestion := range diag.Suggestions {
			result.WriteString(fmt.Sprintf("    - %s: %s\n", suggestion.Title, suggestion.Description))
		}
	}

	// Show related info if enabled.
	if de.config.ShowRelatedInfo && len(diag.RelatedInfo) > 0 {
		result.WriteString("  Related:\n")

		for _, related := range diag.RelatedInfo {
			result.WriteString(fmt.Sprintf("    %s:%d:%d: %s\n",
				related.Span.Start.Filename,
				related.Span.Start.Line,
				related.Span.Start.Column,
				related.Message,
			))
		}
	}

	return result.String()
}

// formatSummary formats a summary of all diagnostics.
func (de *DiagnosticEngine) formatSummary() string {
	errorCount := len(de.GetErrors())
	warningCount := len(de.GetWarnings())

	if errorCount == 0 && warningCount == 0 {
		return "\nâœ… No issues found."
	}

	var parts []string
	if errorCount > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", errorCount))
	}

	if warningCount > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", warningCount))
	}

	return fmt.Sprintf("\nðŸ“Š Found %s.", strings.Join(parts, ", "))
}

// CommonDiagnostics provides factory functions for the recurring diagnostics
// raised across the lowering/SSA/codegen/cache pipeline stages.
type CommonDiagnostics struct{}

// UnresolvedSymbol creates a diagnostic for a TAST node whose checker-bound
// symbol could not be found during HIR lowering (§4.1). Lowering substitutes
// an error-placeholder node and continues.
func (cd *CommonDiagnostics) UnresolvedSymbol(span position.Span, name string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Lowering().
		Code("L0001").
		Title("Unresolved symbol").
		Message(fmt.Sprintf("symbol '%s' has no binding reaching HIR lowering", name)).
		Span(span).
		Build()
}

// DominanceViolation creates a diagnostic for a MIR value used outside its
// definition's dominance (§4.3.2 pass 1).
func (cd *CommonDiagnostics) DominanceViolation(span position.Span, value string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Ssa().
		Code("S0001").
		Title("Dominance violation").
		Message(fmt.Sprintf("use of %s is not dominated by its definition", value)).
		Span(span).
		Build()
}

// OperandTypeMismatch creates a diagnostic for an instruction whose operand
// types disagree with its declared result type.
func (cd *CommonDiagnostics) OperandTypeMismatch(span position.Span, expected, actual string) *Diagnostic {
	return NewDiagnostic().
		Error().
		TypeMismatch().
		Code("T0001").
		Title("Operand type mismatch").
		Message(fmt.Sprintf("expected type '%s', found '%s'", expected, actual)).
		Span(span).
		Build()
}

// MalformedTerminator creates a diagnostic for a block whose terminator
// references a nonexistent successor or leaves the block unterminated
// (§4.3.2 pass 3).
func (cd *CommonDiagnostics) MalformedTerminator(span position.Span, block string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Cfg().
		Code("C0001").
		Title("Malformed terminator").
		Message(fmt.Sprintf("block %s has no valid terminator or an unresolved successor", block)).
		Span(span).
		Build()
}

// RegisterAllocationFailure creates a diagnostic for a function the backend
// could not allocate registers for even after spilling.
func (cd *CommonDiagnostics) RegisterAllocationFailure(span position.Span, fn string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Codegen().
		Code("G0001").
		Title("Register allocation failed").
		Message(fmt.Sprintf("unable to allocate registers for function '%s'", fn)).
		Span(span).
		Build()
}

// CacheEntryCorrupt creates a diagnostic for a .blade entry that failed its
// header or hash check on load (§4.5.2).
func (cd *CommonDiagnostics) CacheEntryCorrupt(path string) *Diagnostic {
	return NewDiagnostic().
		Error().
		Cache().
		Code("H0001").
		Title("Cache entry corrupt").
		Message(fmt.Sprintf("cache entry at '%s' failed validation, recompiling", path)).
		Build()
}

// Global instance for convenience.
var Common = &CommonDiagnostics{}
