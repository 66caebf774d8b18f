package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if err := s.Upsert(ctx, Row{ScriptRef: 1, Line: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteForScript(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := s.LoadForScript(ctx, 1)
	if err != nil || rows != nil {
		t.Fatalf("expected nil, nil; got %v, %v", rows, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenEmptyPathDisablesPersistence(t *testing.T) {
	s, err := Open(context.Background(), "")
	if err != nil || s != nil {
		t.Fatalf("expected nil, nil; got %v, %v", s, err)
	}
}

func TestUpsertAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "breakpoints.db")
	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	row := Row{ScriptRef: 42, Line: 10, SourcePath: "scripts/main.gs", SourceOrigin: "archive:scripts/main.gs"}
	if err := s.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Upsert again at the same (script_ref, line) to exercise the conflict path.
	row.Line = 10
	row.SourcePath = "scripts/main.gs"
	if err := s.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	rows, err := s.LoadForScript(ctx, 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0] != row {
		t.Fatalf("expected %+v, got %+v", row, rows[0])
	}
}

func TestDeleteForScriptRemovesOnlyThatScript(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "breakpoints.db")
	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Upsert(ctx, Row{ScriptRef: 1, Line: 1, SourcePath: "a.gs", SourceOrigin: "a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, Row{ScriptRef: 2, Line: 1, SourcePath: "b.gs", SourceOrigin: "b"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteForScript(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	rows1, _ := s.LoadForScript(ctx, 1)
	rows2, _ := s.LoadForScript(ctx, 2)
	if len(rows1) != 0 {
		t.Fatalf("expected script 1 cleared, got %d rows", len(rows1))
	}
	if len(rows2) != 1 {
		t.Fatalf("expected script 2 untouched, got %d rows", len(rows2))
	}
}

func TestDeleteAllClearsEverything(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "breakpoints.db")
	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Upsert(ctx, Row{ScriptRef: 1, Line: 1, SourcePath: "a.gs", SourceOrigin: "a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	rows, _ := s.LoadForScript(ctx, 1)
	if len(rows) != 0 {
		t.Fatalf("expected empty store, got %d rows", len(rows))
	}
}
