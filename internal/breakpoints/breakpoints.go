// Package breakpoints implements the Breakpoint Engine (spec.md §4.1): it
// stores source-line and function breakpoints and answers, on every VM
// instruction, whether execution must halt.
//
// Grounded on original_source/.../BreakpointManager.cpp, with one
// deliberate fix: InvalidateAllBreakpointsForScript there has an inverted
// guard (`if (found) { return; }` — it bails out exactly when there IS
// something to invalidate, and only does the work when there is nothing to
// do) which drops every pending breakpoint-changed event and never clears
// the table it meant to clear. This package implements the fixed behavior:
// emit one BreakpointChanged(verified=false) per record and remove the
// entry when one exists.
//
// is_at_breakpoint here implements spec.md §4.1's simplified algorithm, not
// the host's raw self/invoker/times_seen state machine — the two-stage
// "wait for self, then wait for invoker" dance in GetExecutionIsAtValidBreakpoint
// is native-frame bookkeeping specific to the host's calling convention and
// is out of scope for this spec's VM abstraction.
package breakpoints

import (
	"strings"
	"sync"

	"github.com/glyphlang/glyph-dap/internal/errors"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

// Record is one installed breakpoint (spec.md §3 "BreakpointRecord").
type Record struct {
	ID               int64
	Line             int
	InstructionIndex int
	IsNative         bool
	FunctionName     string // set for function breakpoints, empty otherwise
}

// scriptTable holds every source breakpoint for one ScriptRef.
type scriptTable struct {
	source dap.Source
	byLine map[int]*Record
}

// ChangeEvent mirrors the DAP `breakpoint` event payload (spec.md §4.1
// `clear_all`/`invalidate_for_script` "emits one BreakpointChanged").
type ChangeEvent struct {
	Record   Record
	Source   dap.Source
	Verified bool
}

// Engine is the Breakpoint Engine.
type Engine struct {
	mu                 sync.Mutex
	vm                 vmscript.VM
	cache              scriptResolver
	sourceBreakpoints  map[scriptref.Ref]*scriptTable
	functionBreakpoints map[string]*Record // key: lowercased "Class.Function"
	lastSeen           *Record
	onChange           func(ChangeEvent)
}

// scriptResolver is the subset of binarycache.Cache the engine needs: it
// only needs a ScriptRef from a DAP Source, not the whole Binary.
type scriptResolver interface {
	GetSourceData(qualifiedPath string) (*dap.Source, bool)
}

// New creates an empty Engine. onChange, if non-nil, is invoked for every
// BreakpointChanged the engine emits during clear_all/invalidate_for_script.
func New(vm vmscript.VM, cache scriptResolver, onChange func(ChangeEvent)) *Engine {
	return &Engine{
		vm:                  vm,
		cache:               cache,
		sourceBreakpoints:   make(map[scriptref.Ref]*scriptTable),
		functionBreakpoints: make(map[string]*Record),
		onChange:            onChange,
	}
}

// VerifiedBreakpoint is the per-line/per-name verification result returned
// to the DAP `setBreakpoints`/`setFunctionBreakpoints` handlers.
type VerifiedBreakpoint struct {
	ID       int64
	Line     int
	Verified bool
}

// SetSourceBreakpoints installs one record per requested line for source,
// replacing whatever was previously registered for its ScriptRef.
func (e *Engine) SetSourceBreakpoints(source dap.Source, lines []int) ([]VerifiedBreakpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ref := resolveRef(source, e.cache)
	if ref == 0 {
		return nil, errors.New(errors.NotLoaded, "source %q could not be resolved", source.Path)
	}

	tbl := &scriptTable{source: source, byLine: make(map[int]*Record)}
	out := make([]VerifiedBreakpoint, 0, len(lines))
	for _, line := range lines {
		id := scriptref.BreakpointID(ref, line)
		rec := &Record{ID: id, Line: line}
		tbl.byLine[line] = rec
		out = append(out, VerifiedBreakpoint{ID: id, Line: line, Verified: true})
	}
	e.sourceBreakpoints[ref] = tbl
	return out, nil
}

// SetFunctionBreakpoints replaces the entire function-breakpoint set.
// Each result is ordered to match names; an entry with Verified=false and
// ID=0 means that name failed to resolve (UnknownFunction).
func (e *Engine) SetFunctionBreakpoints(names []string) ([]VerifiedBreakpoint, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.functionBreakpoints = make(map[string]*Record)
	out := make([]VerifiedBreakpoint, 0, len(names))
	var errs []error
	for _, name := range names {
		fn, ok := e.vm.ResolveFunction(name)
		if !ok {
			out = append(out, VerifiedBreakpoint{Verified: false})
			errs = append(errs, errors.New(errors.UnknownFunction, "unknown function %q", name))
			continue
		}
		key := strings.ToLower(name)
		if fn.IsNative() {
			ref := scriptref.Ref(0)
			rec := &Record{ID: scriptref.BreakpointID(ref, 1), Line: 1, IsNative: true, FunctionName: key}
			e.functionBreakpoints[key] = rec
			out = append(out, VerifiedBreakpoint{ID: rec.ID, Line: 1, Verified: true})
			continue
		}
		first, _ := fn.LineRange()
		ref := scriptref.Derive(fn.SourcePath())
		rec := &Record{ID: scriptref.BreakpointID(ref, first), Line: first, FunctionName: key}
		e.functionBreakpoints[key] = rec
		out = append(out, VerifiedBreakpoint{ID: rec.ID, Line: first, Verified: true})
	}
	return out, errs
}

// SetInstructionBreakpoints always fails: instruction-address breakpoints
// are not supported (spec.md §1 Non-goals).
func (e *Engine) SetInstructionBreakpoints() error {
	return errors.New(errors.NotSupported, "instruction breakpoints are not supported")
}

// ClearAll drops every source breakpoint. If emitChanged, one
// BreakpointChanged(verified=false) fires per dropped record first.
func (e *Engine) ClearAll(emitChanged bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitChanged {
		for _, tbl := range e.sourceBreakpoints {
			e.emitInvalidated(tbl)
		}
	}
	e.sourceBreakpoints = make(map[scriptref.Ref]*scriptTable)
	e.lastSeen = nil
}

// InvalidateForScript drops the source breakpoints for one ScriptRef,
// emitting a BreakpointChanged for each first. Fixed relative to the host's
// InvalidateAllBreakpointsForScript (see package doc): this does the work
// when an entry for ref exists, not when it doesn't.
func (e *Engine) InvalidateForScript(ref scriptref.Ref) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tbl, ok := e.sourceBreakpoints[ref]
	if !ok {
		return
	}
	e.emitInvalidated(tbl)
	delete(e.sourceBreakpoints, ref)
	if e.lastSeen != nil {
		if _, stillLive := tbl.byLine[e.lastSeen.Line]; stillLive {
			e.lastSeen = nil
		}
	}
}

func (e *Engine) emitInvalidated(tbl *scriptTable) {
	if e.onChange == nil {
		return
	}
	for _, rec := range tbl.byLine {
		e.onChange(ChangeEvent{Record: *rec, Source: tbl.source, Verified: false})
	}
}

// IsAtBreakpoint is the hot-path predicate (spec.md §4.1 algorithm),
// evaluated against the topmost frame of stack and the current pc.
func (e *Engine) IsAtBreakpoint(frame vmscript.Frame, pc vmscript.PC) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sourceBreakpoints) == 0 && len(e.functionBreakpoints) == 0 {
		e.lastSeen = nil
		return false
	}

	fn := frame.Function()
	if rec, ok := e.functionBreakpoints[strings.ToLower(fn.QualifiedName())]; ok {
		if e.lastSeen == rec {
			return false
		}
		e.lastSeen = rec
		return true
	}

	if fn.IsNative() {
		e.lastSeen = nil
		return false
	}

	ref := scriptref.Derive(fn.SourcePath())
	tbl, ok := e.sourceBreakpoints[ref]
	if !ok {
		e.lastSeen = nil
		return false
	}

	line, ok := fn.PCToLine(pc)
	if !ok {
		e.lastSeen = nil
		return false
	}
	rec, ok := tbl.byLine[line]
	if !ok {
		e.lastSeen = nil
		return false
	}
	if e.lastSeen == rec {
		return false
	}
	e.lastSeen = rec
	return true
}

func resolveRef(source dap.Source, cache scriptResolver) scriptref.Ref {
	if source.SourceReference > 0 {
		return scriptref.Ref(source.SourceReference)
	}
	if cache != nil {
		if data, ok := cache.GetSourceData(source.Path); ok {
			return scriptref.Ref(data.SourceReference)
		}
	}
	archive, relPath := scriptref.Split(source.Path)
	if archive == "" {
		archive = source.Origin
	}
	return scriptref.Derive(scriptref.Qualify(archive, relPath))
}
