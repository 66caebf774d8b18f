package binarycache

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/glyphlang/glyph-dap/internal/metrics"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

type fakeFS struct {
	archives map[string]string // relPath -> archive
	files    map[string][]byte // qualifiedPath -> bytes
}

func (f *fakeFS) ArchiveFor(relPath string) (string, bool) {
	a, ok := f.archives[relPath]
	return a, ok
}

func (f *fakeFS) ReadScript(qualifiedPath string) ([]byte, error) {
	b, ok := f.files[qualifiedPath]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func buildVM() *vmscript.RefVM {
	vm := vmscript.NewRefVM()
	fn := &vmscript.RefFunction{
		Qname:  "Actor.Tick",
		Source: "pk3:scripts/actor.zs",
		Start:  0, End: 100,
		LineTable: []vmscript.PCLine{{PC: 0, Line: 10}, {PC: 50, Line: 11}},
	}
	class := vmscript.NewObjectType("Actor", nil)
	vm.AddNamespace(vmscript.Namespace{
		Name:      "pk3",
		Classes:   []vmscript.Type{class},
		Functions: []vmscript.Function{fn},
	})
	return vm
}

func TestGetScriptByPath(t *testing.T) {
	vm := buildVM()
	fs := &fakeFS{
		files: map[string][]byte{"pk3:scripts/actor.zs": []byte("// actor source\n")},
	}
	c := New(vm, fs, nil, nil)

	b, ok := c.GetScriptByPath("pk3:scripts/actor.zs")
	if !ok {
		t.Fatal("expected binary to resolve")
	}
	if b.ScriptPath != "scripts/actor.zs" {
		t.Fatalf("unexpected script path: %q", b.ScriptPath)
	}
	if fn, ok := b.FunctionAtLine(10); !ok || fn.QualifiedName() != "Actor.Tick" {
		t.Fatalf("expected Actor.Tick at line 10, got %v %v", fn, ok)
	}
	if _, ok := b.FunctionAtLine(999); ok {
		t.Fatal("expected no function at unindexed line")
	}
	if _, ok := b.Classes["actor"]; !ok {
		t.Fatal("expected Actor class attached to owning binary")
	}
}

func TestGetDecompiledSourceFallsBackToFileSystem(t *testing.T) {
	vm := buildVM()
	fs := &fakeFS{
		files: map[string][]byte{"pk3:scripts/actor.zs": []byte("// actor source\n")},
	}
	c := New(vm, fs, nil, nil)

	data, ok := c.GetDecompiledSource(dap.Source{Path: "pk3:scripts/actor.zs"})
	if !ok {
		t.Fatal("expected decompiled source")
	}
	if string(data) != "// actor source\n" {
		t.Fatalf("unexpected bytes: %q", data)
	}
}

func TestResolveRefViaFileSystemArchiveLookup(t *testing.T) {
	vm := buildVM()
	fs := &fakeFS{
		archives: map[string]string{"scripts/actor.zs": "pk3"},
		files:    map[string][]byte{"pk3:scripts/actor.zs": []byte("x")},
	}
	c := New(vm, fs, nil, nil)

	b, ok := c.GetScript(dap.Source{Path: "scripts/actor.zs"})
	if !ok {
		t.Fatal("expected resolution via file-system archive lookup")
	}
	if b.Archive != "pk3" {
		t.Fatalf("expected archive pk3, got %q", b.Archive)
	}
}

func TestGetLoadedSourcesAndClear(t *testing.T) {
	vm := buildVM()
	c := New(vm, &fakeFS{}, nil, nil)

	if len(c.GetLoadedSources()) != 1 {
		t.Fatal("expected one loaded source")
	}
	c.Clear()
	c.mu.RLock()
	scanned := c.scanned
	c.mu.RUnlock()
	if scanned {
		t.Fatal("expected scanned flag reset after Clear")
	}
	if len(c.GetLoadedSources()) != 1 {
		t.Fatal("expected re-scan to rebuild the same loaded sources")
	}
}

// scanObservations returns how many durations h has observed.
func scanObservations(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var pb dto.Metric
	if err := h.Write(&pb); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	return pb.GetHistogram().GetSampleCount()
}

func TestEnsureScannedRecordsCacheScanDuration(t *testing.T) {
	vm := buildVM()
	m := metrics.New()
	c := New(vm, &fakeFS{}, nil, m)

	if got := scanObservations(t, m.CacheScanSeconds); got != 0 {
		t.Fatalf("expected no scan observations before first use, got %d", got)
	}

	c.GetLoadedSources()

	if got := scanObservations(t, m.CacheScanSeconds); got != 1 {
		t.Fatalf("expected one scan observation after the first scan, got %d", got)
	}

	c.Clear()
	c.GetLoadedSources()
	if got := scanObservations(t, m.CacheScanSeconds); got != 2 {
		t.Fatalf("expected a second scan observation after Clear forced a re-scan, got %d", got)
	}
}
