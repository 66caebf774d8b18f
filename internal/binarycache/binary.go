// Package binarycache implements the Source/Binary Cache (spec.md §4.2): a
// lazily-scanned, per-script index of compiled functions keyed by source
// line and bytecode address, plus the DAP-facing source/decompiled-source
// lookups built on top of it.
//
// The scan walks vmscript.VM.Namespaces() the way the host VM's PexCache
// walks its loaded containers (original_source PexCache.cpp
// ScanAllScripts/ScanScriptsInContainer): for every non-native function it
// reads SourcePath and the line table, and indexes that function into the
// owning Binary's line and code maps.
package binarycache

import (
	"sort"
	"strings"

	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

// Binary is everything the cache knows about one compiled script: its
// identity, the DAP source descriptor for it, the functions and types
// declared in it, and the two interval indices used to resolve a paused
// program counter back to a named function.
type Binary struct {
	Ref         scriptref.Ref
	Archive     string
	ScriptPath  string // container-relative path, e.g. "scripts/actor.zs"
	Source      dap.Source
	Functions   map[string]vmscript.Function // keyed by lowercased QualifiedName
	Classes     map[string]vmscript.Type      // keyed by lowercased Name
	Structs     map[string]vmscript.Type

	lineMap *lineIndex
	codeMap *codeIndex
}

func newBinary(ref scriptref.Ref, archive, scriptPath string) *Binary {
	qualified := scriptref.Qualify(archive, scriptPath)
	return &Binary{
		Ref:        ref,
		Archive:    archive,
		ScriptPath: scriptPath,
		Source: dap.Source{
			Name:            scriptref.Basename(scriptPath),
			Path:            qualified,
			SourceReference: int(ref),
		},
		Functions: make(map[string]vmscript.Function),
		Classes:   make(map[string]vmscript.Type),
		Structs:   make(map[string]vmscript.Type),
		lineMap:   newLineIndex(),
		codeMap:   newCodeIndex(),
	}
}

// FunctionAtLine resolves a 1-based source line to the function whose line
// range contains it, per the FunctionLineMap (spec.md §4.2).
func (b *Binary) FunctionAtLine(line int) (vmscript.Function, bool) {
	return b.lineMap.lookup(line)
}

// FunctionAtPC resolves a bytecode address to the function whose code range
// contains it, per the FunctionCodeMap (spec.md §4.2).
func (b *Binary) FunctionAtPC(pc vmscript.PC) (vmscript.Function, bool) {
	return b.codeMap.lookup(pc)
}

// index inserts fn into both interval maps. Overlapping ranges are silently
// dropped (first writer wins), matching the mixin/duplicate-declaration
// behavior the host VM's scan tolerates.
func (b *Binary) index(fn vmscript.Function) {
	b.Functions[strings.ToLower(fn.QualifiedName())] = fn
	first, last := fn.LineRange()
	if first != 0 || last != 0 {
		b.lineMap.insert(first, last, fn)
	}
	start, end := fn.CodeRange()
	if end > start {
		b.codeMap.insert(start, end, fn)
	}
}

// lineInterval is one [start,end] inclusive source-line range mapped to the
// function that owns it.
type lineInterval struct {
	start, end int
	fn         vmscript.Function
}

type lineIndex struct {
	entries []lineInterval // sorted by start, non-overlapping
}

func newLineIndex() *lineIndex { return &lineIndex{} }

func (idx *lineIndex) insert(start, end int, fn vmscript.Function) {
	if end < start {
		start, end = end, start
	}
	pos := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].start >= start })
	if pos > 0 && idx.entries[pos-1].end >= start {
		return // overlaps the previous entry: first writer wins
	}
	if pos < len(idx.entries) && idx.entries[pos].start <= end {
		return // overlaps the next entry
	}
	idx.entries = append(idx.entries, lineInterval{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = lineInterval{start: start, end: end, fn: fn}
}

func (idx *lineIndex) lookup(line int) (vmscript.Function, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].end >= line })
	if i < len(idx.entries) && idx.entries[i].start <= line && line <= idx.entries[i].end {
		return idx.entries[i].fn, true
	}
	return nil, false
}

// codeInterval is one half-open [start,end) bytecode range.
type codeInterval struct {
	start, end vmscript.PC
	fn         vmscript.Function
}

type codeIndex struct {
	entries []codeInterval // sorted by start, non-overlapping
}

func newCodeIndex() *codeIndex { return &codeIndex{} }

func (idx *codeIndex) insert(start, end vmscript.PC, fn vmscript.Function) {
	pos := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].start >= start })
	if pos > 0 && idx.entries[pos-1].end > start {
		return
	}
	if pos < len(idx.entries) && idx.entries[pos].start < end {
		return
	}
	idx.entries = append(idx.entries, codeInterval{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = codeInterval{start: start, end: end, fn: fn}
}

func (idx *codeIndex) lookup(pc vmscript.PC) (vmscript.Function, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].end > pc })
	if i < len(idx.entries) && idx.entries[i].start <= pc && pc < idx.entries[i].end {
		return idx.entries[i].fn, true
	}
	return nil, false
}
