package binarycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/glyphlang/glyph-dap/internal/errors"
	"github.com/glyphlang/glyph-dap/internal/logging"
	"github.com/glyphlang/glyph-dap/internal/metrics"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/tracing"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

// FileSystem is the archive/file-system collaborator the cache consumes
// (spec.md §1 "explicitly out of scope"): it locates which archive
// container holds an unqualified path, and reads a script's raw bytes for
// the decompiled-source fallback.
type FileSystem interface {
	// ArchiveFor returns the archive name containing relPath, if any is
	// currently loaded.
	ArchiveFor(relPath string) (archive string, ok bool)
	// ReadScript returns the raw bytes of the script at qualifiedPath
	// ("archive:path").
	ReadScript(qualifiedPath string) ([]byte, error)
}

// Cache is the Source/Binary Cache (spec.md §4.2): a lazily-populated,
// scan-built index from ScriptRef to Binary.
type Cache struct {
	mu       sync.RWMutex
	vm       vmscript.VM
	fs       FileSystem
	log      *logging.Logger
	metrics  *metrics.Metrics
	binaries map[scriptref.Ref]*Binary
	scanned  bool
}

// New creates a cache over vm, using fs to resolve unqualified paths and
// read decompiled-source fallback bytes. m may be nil, in which case scans
// are simply not recorded.
func New(vm vmscript.VM, fs FileSystem, log *logging.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		vm:       vm,
		fs:       fs,
		log:      log,
		metrics:  m,
		binaries: make(map[scriptref.Ref]*Binary),
	}
}

// resolveRef implements the resolution rule from spec.md §4.2: an explicit
// positive sourceReference is authoritative; otherwise hash the lowercased
// "origin:path", re-qualifying an archive-less path via the file system.
func (c *Cache) resolveRef(src dap.Source) scriptref.Ref {
	if src.SourceReference > 0 {
		return scriptref.Ref(src.SourceReference)
	}
	archive, relPath := scriptref.Split(src.Path)
	if archive == "" {
		archive = src.Origin
	}
	if archive == "" && c.fs != nil {
		if found, ok := c.fs.ArchiveFor(relPath); ok {
			archive = found
		}
	}
	return scriptref.Derive(scriptref.Qualify(archive, relPath))
}

// GetScript resolves src to its Binary, scanning the VM on first use.
func (c *Cache) GetScript(src dap.Source) (*Binary, bool) {
	ref := c.resolveRef(src)
	if ref == 0 {
		return nil, false
	}
	c.mu.RLock()
	b, ok := c.binaries[ref]
	c.mu.RUnlock()
	if ok {
		return b, true
	}
	c.ensureScanned()
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok = c.binaries[ref]
	return b, ok
}

// GetScriptByPath is a convenience wrapper for callers that only have a
// qualified or unqualified path string, not a full DAP Source.
func (c *Cache) GetScriptByPath(path string) (*Binary, bool) {
	return c.GetScript(dap.Source{Path: path})
}

// GetSourceData returns the DAP Source descriptor for a qualified path.
func (c *Cache) GetSourceData(qualifiedPath string) (*dap.Source, bool) {
	b, ok := c.GetScriptByPath(qualifiedPath)
	if !ok {
		return nil, false
	}
	src := b.Source
	return &src, true
}

// GetDecompiledSource returns the raw script bytes for src. Per spec.md
// §4.2 the cache does not actually decompile anything: when the client's
// own project tree doesn't have the bytes, this is the fallback the
// `source` DAP request serves instead.
func (c *Cache) GetDecompiledSource(src dap.Source) ([]byte, bool) {
	ref := c.resolveRef(src)
	c.mu.RLock()
	b, ok := c.binaries[ref]
	c.mu.RUnlock()
	if !ok {
		c.ensureScanned()
		c.mu.RLock()
		b, ok = c.binaries[ref]
		c.mu.RUnlock()
		if !ok {
			return nil, false
		}
	}
	if c.fs == nil {
		return nil, false
	}
	data, err := c.fs.ReadScript(scriptref.Qualify(b.Archive, b.ScriptPath))
	if err != nil {
		if c.log != nil {
			c.log.Warn(errors.Format(errors.Wrap(errors.SerializationError, err, "read script %s", b.ScriptPath)))
		}
		return nil, false
	}
	return data, true
}

// GetLoadedSources lists every currently-scanned binary's Source, sorted by
// path for deterministic `loadedSources` responses.
func (c *Cache) GetLoadedSources() []dap.Source {
	c.ensureScanned()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]dap.Source, 0, len(c.binaries))
	for _, b := range c.binaries {
		out = append(out, b.Source)
	}
	sortSources(out)
	return out
}

func sortSources(s []dap.Source) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].Path > s[j].Path; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Clear drops every cached binary, forcing the next lookup to re-scan. Used
// on session reset and by live invalidation (invalidate.go).
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binaries = make(map[scriptref.Ref]*Binary)
	c.scanned = false
}

// ensureScanned performs the one-time (or post-Clear) full scan: the one
// operation in this subsystem expensive enough to be worth observing (spec.md
// §4.2), so it is recorded as a named span/histogram (`cache.scan`).
func (c *Cache) ensureScanned() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanned {
		return
	}
	start := time.Now()
	_ = tracing.WithSpan(context.Background(), "cache.scan", func(context.Context) error {
		c.scan()
		return nil
	})
	if c.metrics != nil {
		c.metrics.RecordScan(time.Since(start))
	}
	c.scanned = true
}

func (c *Cache) scan() {
	for _, ns := range c.vm.Namespaces() {
		classOwner := make(map[string]*Binary)
		for _, fn := range ns.Functions {
			if fn.IsNative() {
				continue
			}
			archive, relPath := scriptref.Split(fn.SourcePath())
			if relPath == "" {
				continue
			}
			ref := scriptref.Derive(fn.SourcePath())
			b, ok := c.binaries[ref]
			if !ok {
				b = newBinary(ref, archive, relPath)
				c.binaries[ref] = b
			}
			b.index(fn)
			if class := className(fn.QualifiedName()); class != "" {
				classOwner[class] = b
			}
		}
		attachTypes(ns.Classes, classOwner, func(b *Binary, key string, t vmscript.Type) { b.Classes[key] = t })
		attachTypes(ns.Structs, classOwner, func(b *Binary, key string, t vmscript.Type) { b.Structs[key] = t })
	}
}

// className extracts the "Class" half of a "Class.Function" qualified name.
func className(qualifiedName string) string {
	if i := strings.IndexByte(qualifiedName, '.'); i > 0 {
		return strings.ToLower(qualifiedName[:i])
	}
	return ""
}

// attachTypes assigns each class/struct Type to the Binary that owns at
// least one of its methods, discovered while indexing functions above.
// Types with no indexed methods (e.g. pure data structs) are left
// unattached; get_script callers needing them can still resolve the Binary
// by path and find the Type listed on its owning namespace.
func attachTypes(types []vmscript.Type, owner map[string]*Binary, set func(*Binary, string, vmscript.Type)) {
	for _, t := range types {
		key := strings.ToLower(t.Name())
		if b, ok := owner[key]; ok {
			set(b, key, t)
		}
	}
}
