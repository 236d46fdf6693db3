package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antibyte/retrobasic/pkg/basic"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "programs.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	src := "10 FOR I = 1 TO 3\n20 PRINT I;\n30 NEXT I\n"

	saved, err := s.Save("count", src)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Name != "COUNT" {
		t.Errorf("Expected name COUNT, got %s", saved.Name)
	}
	if saved.Checksum != Checksum(saved.Tokens) {
		t.Errorf("Expected checksum of the saved tokens, got %s", saved.Checksum)
	}

	loaded, err := s.Load("Count")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != saved.ID {
		t.Errorf("Expected id %s, got %s", saved.ID, loaded.ID)
	}
	if loaded.Source != src {
		t.Errorf("Expected source %q, got %q", src, loaded.Source)
	}
	if !bytes.Equal(loaded.Tokens, saved.Tokens) {
		t.Errorf("Expected the saved token bytes back")
	}

	var out bytes.Buffer
	b := basic.New(basic.WithConsole(basic.NewStdConsole(nil, &out)))
	if err := b.LoadTokenized(loaded.Tokens); err != nil {
		t.Fatalf("LoadTokenized failed: %v", err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := out.String(); got != " 1 2 3" {
		t.Errorf("Expected %q, got %q", " 1 2 3", got)
	}
}

func TestSaveReplacesKeepsID(t *testing.T) {
	s := openTestStore(t)
	first, err := s.Save("prog", "PRINT 1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Save("PROG", "PRINT 2")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected the row id to survive replacement, got %s and %s", first.ID, second.ID)
	}
	loaded, err := s.Load("prog")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Source != "PRINT 2" {
		t.Errorf("Expected the replaced source, got %q", loaded.Source)
	}
}

func TestSaveRejects(t *testing.T) {
	s := openTestStore(t)
	tests := []struct {
		name   string
		prog   string
		source string
	}{
		{"empty name", "", "PRINT 1"},
		{"bad characters", "a b", "PRINT 1"},
		{"long name", strings.Repeat("x", MaxNameLength+1), "PRINT 1"},
		{"lines out of order", "order", "20 PRINT\n10 PRINT"},
		{"unterminated sub", "sub", "SUB FOO\nPRINT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Save(tt.prog, tt.source); err == nil {
				t.Errorf("Expected Save to fail")
			}
		})
	}
	if list, _ := s.List(); len(list) != 0 {
		t.Errorf("Expected nothing stored, got %d programs", len(list))
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save("good", "PRINT 1"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.db.Exec(`UPDATE programs SET tokens = ? WHERE name = 'GOOD'`, []byte{0x05, 0x00, 0x00}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("good"); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got %v", err)
	}

	// a consistent checksum over an invalid layout is still rejected
	bad := []byte{0x05, 0x00, 0x00}
	if _, err := s.db.Exec(`UPDATE programs SET checksum = ? WHERE name = 'GOOD'`, Checksum(bad)); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load("good")
	if be, ok := basic.AsBASICError(err); !ok || be.Code != "INVALID_PROGRAM" {
		t.Errorf("Expected INVALID_PROGRAM, got %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Save(name, "PRINT \""+name+"\""); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range list {
		names = append(names, p.Name)
		if p.Size == 0 {
			t.Errorf("Expected a token size for %s", p.Name)
		}
	}
	if got := strings.Join(names, ","); got != "ALPHA,MID,ZETA" {
		t.Errorf("Expected ALPHA,MID,ZETA, got %s", got)
	}

	if err := s.Delete("mid"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("mid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.Load("mid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
