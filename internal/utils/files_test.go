package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "state.json")
	if err := SafeWriteFile(p, []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SafeWriteFile(p, []byte("two")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("got %q, want %q", b, "two")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSafeWriteFileMissingDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing", "state.json")
	if err := SafeWriteFile(p, []byte("x")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"rows": 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"rows\": 3") {
		t.Fatalf("expected indented output, got %s", b)
	}
	if _, err := PrettyJSON(make(chan int)); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestFindSessionRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "session.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	nested := filepath.Join(root, "exports", "q1")
	if err := EnsureDir(nested); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := FindSessionRoot(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != root {
		t.Fatalf("got %s, want %s", got, root)
	}

	file := filepath.Join(nested, "data.csv")
	if err := os.WriteFile(file, []byte("a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, err := FindSessionRoot(file); err != nil || got != root {
		t.Fatalf("from file: got %s, %v", got, err)
	}
}

func TestFindSessionRootNone(t *testing.T) {
	_, err := FindSessionRoot(t.TempDir())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
