package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilterAllows(t *testing.T) {
	f := &filter{enabled: true, level: INFO, areas: map[LogArea]bool{AreaStore: true}}
	tests := []struct {
		name  string
		level Level
		area  LogArea
		want  bool
	}{
		{"enabled area at level", INFO, AreaStore, true},
		{"enabled area above level", ERROR, AreaStore, true},
		{"below level", DEBUG, AreaStore, false},
		{"disabled area", ERROR, AreaConsole, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.allows(tt.level, tt.area); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
	var none *filter
	if none.allows(ERROR, AreaStore) {
		t.Error("Expected a nil filter to drop everything")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DEBUG, "Warning": WARN, "ERROR": ERROR, "bogus": INFO} {
		if got := parseLevel(in); got != want {
			t.Errorf("Expected %s for %q, got %s", want, in, got)
		}
	}
}

func TestWriteGoesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "basic.log")
	f := &filter{enabled: true, level: DEBUG, areas: map[LogArea]bool{AreaStore: true}}
	if err := start(f, path, 1<<20, 2); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	StoreInfo("saved %s", "demo")
	ConsoleInfo("dropped")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "[STORE] saved demo") {
		t.Errorf("Expected the store entry, got %q", got)
	}
	if strings.Contains(got, "dropped") {
		t.Errorf("Expected console entries to be filtered, got %q", got)
	}
	if !strings.Contains(got, "logger_test.go:") {
		t.Errorf("Expected the caller location, got %q", got)
	}
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basic.log")
	r, err := openRotating(path, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"first line\n", "second line\n", "third line\n"} {
		if _, err := r.Write([]byte(s)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	r.Close()

	for name, want := range map[string]string{
		path + ".1": "third line\n",
		path + ".2": "second line\n",
		path:        "",
	} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
			continue
		}
		if string(data) != want {
			t.Errorf("Expected %q in %s, got %q", want, name, data)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("Expected only two backups, got %v", err)
	}
}
