package basic

import (
	"strconv"
	"strings"

	"github.com/google/btree"
)

// lineEntry maps a line number to the offset of its line marker.
type lineEntry struct {
	Number int
	Offset int
}

func (l lineEntry) Less(than btree.Item) bool {
	return l.Number < (than.(lineEntry)).Number
}

// lineIndex is the line-number index of the main program region.
type lineIndex struct {
	tree *btree.BTree
}

// buildLineIndex indexes every numbered line of the region at start.
func buildLineIndex(mem []byte, start int) *lineIndex {
	idx := &lineIndex{tree: btree.New(4)}
	lines(mem, start, func(line int) bool {
		if n := lineNumberOf(mem, line); n > 0 {
			idx.tree.ReplaceOrInsert(lineEntry{n, line})
		}
		return true
	})
	return idx
}

// find returns the offset of line n. With exact false the next higher line
// is returned when n is missing.
func (idx *lineIndex) find(n int, exact bool) (int, error) {
	found := -1
	idx.tree.AscendGreaterOrEqual(lineEntry{n, 0},
		func(item btree.Item) bool {
			l := item.(lineEntry)
			if l.Number == n || !exact {
				found = l.Offset
			}
			return false
		})
	if found < 0 {
		return 0, newError(ErrCategoryName, "LINE_NOT_FOUND", n)
	}
	return found, nil
}

// Len returns the number of indexed lines.
func (idx *lineIndex) Len() int { return idx.tree.Len() }

// sourceLine is one numbered line held by a Listing.
type sourceLine struct {
	Number int
	Text   string
}

func (l sourceLine) Less(than btree.Item) bool {
	return l.Number < (than.(sourceLine)).Number
}

// Listing holds numbered source lines typed at the immediate prompt, kept in
// line-number order.
type Listing struct {
	tree *btree.BTree
}

// NewListing returns an empty listing.
func NewListing() *Listing {
	return &Listing{tree: btree.New(4)}
}

// Set stores text under line n; empty text deletes the line.
func (l *Listing) Set(n int, text string) {
	if strings.TrimSpace(text) == "" {
		l.tree.Delete(sourceLine{Number: n})
		return
	}
	l.tree.ReplaceOrInsert(sourceLine{n, text})
}

// Clear removes every line.
func (l *Listing) Clear() { l.tree.Clear(false) }

// Len returns the number of lines.
func (l *Listing) Len() int { return l.tree.Len() }

// Source renders the listing as program text, one numbered line per row.
func (l *Listing) Source() string {
	var sb strings.Builder
	l.tree.Ascend(func(item btree.Item) bool {
		line := item.(sourceLine)
		sb.WriteString(strings.TrimSpace(strconv.Itoa(line.Number) + " " + line.Text))
		sb.WriteByte('\n')
		return true
	})
	return sb.String()
}
