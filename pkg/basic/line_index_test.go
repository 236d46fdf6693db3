package basic

import (
	"testing"
)

// scanLine finds line n by walking every line of the region.
func scanLine(mem []byte, n int, exact bool) (int, bool) {
	found := -1
	lines(mem, 0, func(line int) bool {
		ln := lineNumberOf(mem, line)
		if ln == n || (!exact && ln > n) {
			found = line
			return false
		}
		return true
	})
	return found, found >= 0
}

func TestLineIndexMatchesScan(t *testing.T) {
	src := "5 A=1\n10 B=2\nC=3\n15 D=4\nlabel: E=5\n25 F=6\n35 G=7"
	mem, err := tokenizeSource(src)
	if err != nil {
		t.Fatal(err)
	}
	idx := buildLineIndex(mem, 0)
	if idx.Len() != 5 {
		t.Fatalf("Expected 5 indexed lines, got %d", idx.Len())
	}

	for _, exact := range []bool{true, false} {
		for n := 1; n <= 40; n++ {
			want, ok := scanLine(mem, n, exact)
			got, gotErr := idx.find(n, exact)
			if ok != (gotErr == nil) {
				t.Errorf("line %d exact=%v: Expected found %v, got error %v", n, exact, ok, gotErr)
				continue
			}
			if ok && got != want {
				t.Errorf("line %d exact=%v: Expected offset %d, got %d", n, exact, want, got)
			}
		}
	}
}

func TestLabels(t *testing.T) {
	mem, err := tokenizeSource("10 PRINT\nhere: PRINT\nThere: PRINT")
	if err != nil {
		t.Fatal(err)
	}
	line, err := findLabel(mem, 0, "there")
	if err != nil {
		t.Fatalf("Expected label THERE, got %v", err)
	}
	if got := labelOf(mem, line); got != "THERE" {
		t.Errorf("Expected THERE, got %s", got)
	}
	if _, err := findLabel(mem, 0, "nowhere"); errorCode(err) != "LABEL_NOT_FOUND" {
		t.Errorf("Expected LABEL_NOT_FOUND, got %v", err)
	}
	if got := countLines(mem, 0, line); got != 3 {
		t.Errorf("Expected the label on line 3, got %d", got)
	}
}

func TestListing(t *testing.T) {
	l := NewListing()
	l.Set(30, "PRINT 3")
	l.Set(10, "PRINT 1")
	l.Set(20, "PRINT 2")
	l.Set(10, "PRINT 10")
	l.Set(20, "")

	if l.Len() != 2 {
		t.Errorf("Expected 2 lines, got %d", l.Len())
	}
	expected := "10 PRINT 10\n30 PRINT 3\n"
	if got := l.Source(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Expected an empty listing after Clear")
	}
}
