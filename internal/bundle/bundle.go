// Package bundle implements the whole-program .rzb format (§4.6): every
// compiled module a program needs, flattened into one file alongside
// the entry point descriptor, so a deployment step has a single
// artifact to ship instead of one .blade per module. It is built on
// top of internal/cache's tagged, atomic write-then-rename discipline
// (same magic-plus-header-plus-payload shape), widened from a single
// module record to a module table followed by concatenated blobs --
// the teacher's manifest-then-blobs separation, flattened into one
// file instead of a directory of named artifacts.
package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/bladec-lang/bladec/internal/mir"
)

const (
	rzbMagic         = "RZBF"
	rzbFormatVersion = uint32(1)
)

// entryDescriptor names the (module, function) pair execution starts
// from (§4.6.3).
type entryDescriptor struct {
	Module   string
	Function string
}

// moduleEntry is one row of the module table: a named module's
// position within the concatenated blob section.
type moduleEntry struct {
	Name   string
	Offset uint32
	Length uint32
}

// Bundle is a decoded .rzb file's in-memory form.
type Bundle struct {
	Entry     entryDescriptor
	BuildMeta string
	Modules   map[string]*mir.Module
}

// EntryModule and EntryFunction name the (module, function) execution
// starts from.
func (b *Bundle) EntryModule() string   { return b.Entry.Module }
func (b *Bundle) EntryFunction() string { return b.Entry.Function }

// Module looks up one bundled module by name.
func (b *Bundle) Module(name string) (*mir.Module, bool) {
	m, ok := b.Modules[name]
	return m, ok
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", 0, fmt.Errorf("bundle: truncated string length at %d", pos)
	}
	n := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return "", 0, fmt.Errorf("bundle: truncated string body at %d", pos)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

// Write encodes entryModule/entryFunction, buildMeta and every named
// module in modules into dst, following the same atomic
// write-to-temp-then-rename discipline as internal/cache's .blade
// writer (§4.6.4): a crash mid-write never leaves a partial .rzb file
// where a loader could observe it. Module blobs reuse mir.Encode's
// codec unchanged, so a bundled module round-trips through exactly the
// same decoder internal/cache uses for a standalone .blade file.
func Write(dst, entryModule, entryFunction, buildMeta string, modules map[string]*mir.Module) error {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names) // stable table order across repeated writes

	blobs := make([][]byte, len(names))
	entries := make([]moduleEntry, len(names))
	var offset uint32
	for i, name := range names {
		blob := mir.Encode(modules[name])
		blobs[i] = blob
		entries[i] = moduleEntry{Name: name, Offset: offset, Length: uint32(len(blob))}
		offset += uint32(len(blob))
	}

	var buf bytes.Buffer
	buf.WriteString(rzbMagic)
	binary.Write(&buf, binary.LittleEndian, rzbFormatVersion)
	writeString(&buf, entryModule)
	writeString(&buf, entryFunction)
	writeString(&buf, buildMeta)
	binary.Write(&buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		writeString(&buf, e.Name)
		binary.Write(&buf, binary.LittleEndian, e.Offset)
		binary.Write(&buf, binary.LittleEndian, e.Length)
	}
	for _, blob := range blobs {
		buf.Write(blob)
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("bundle: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("bundle: rename %s: %w", tmp, err)
	}
	return nil
}

// Read decodes a .rzb file written by Write. Any structural
// inconsistency (bad magic, unsupported version, a table entry whose
// offset/length run past the blob section, a blob that fails
// mir.Decode) is reported as an error rather than a partial Bundle --
// unlike the per-module cache, a corrupt whole-program bundle has no
// fallback path (recompiling from source is the caller's job, not
// this package's).
func Read(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	if len(data) < 8 || string(data[0:4]) != rzbMagic {
		return nil, fmt.Errorf("bundle: %s is not a valid .rzb file", path)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != rzbFormatVersion {
		return nil, fmt.Errorf("bundle: %s has unsupported format version %d", path, version)
	}

	pos := 8
	entryModule, pos, err := readString(data, pos)
	if err != nil {
		return nil, err
	}
	entryFunction, pos, err := readString(data, pos)
	if err != nil {
		return nil, err
	}
	buildMeta, pos, err := readString(data, pos)
	if err != nil {
		return nil, err
	}
	if pos+4 > len(data) {
		return nil, fmt.Errorf("bundle: truncated module table count")
	}
	count := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4

	entries := make([]moduleEntry, count)
	for i := 0; i < count; i++ {
		name, next, err := readString(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		if pos+8 > len(data) {
			return nil, fmt.Errorf("bundle: truncated module table entry for %q", name)
		}
		off := binary.LittleEndian.Uint32(data[pos : pos+4])
		length := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
		pos += 8
		entries[i] = moduleEntry{Name: name, Offset: off, Length: length}
	}

	blobStart := pos
	modules := make(map[string]*mir.Module, count)
	for _, e := range entries {
		start := blobStart + int(e.Offset)
		end := start + int(e.Length)
		if start < 0 || end > len(data) || start > end {
			return nil, fmt.Errorf("bundle: module %q's blob range is out of bounds", e.Name)
		}
		m, err := mir.Decode(data[start:end])
		if err != nil {
			return nil, fmt.Errorf("bundle: decode module %q: %w", e.Name, err)
		}
		modules[e.Name] = m
	}

	return &Bundle{
		Entry:     entryDescriptor{Module: entryModule, Function: entryFunction},
		BuildMeta: buildMeta,
		Modules:   modules,
	}, nil
}
