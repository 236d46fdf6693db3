package basic

import (
	"strings"
)

// isProgramEnd reports whether p is at the end of a program region.
func isProgramEnd(mem []byte, p int) bool {
	if p >= len(mem) {
		return true
	}
	if mem[p] == 0 {
		return true
	}
	return mem[p] == tokReserved && p+1 < len(mem) && mem[p+1] == tokReserved
}

// skipLineHeader moves past the new-line, line-number and label markers.
func skipLineHeader(mem []byte, p int) int {
	if p < len(mem) && mem[p] == tokNewLine {
		p++
	}
	if p < len(mem) && mem[p] == tokLineNum {
		p += 3
	}
	if p < len(mem) && mem[p] == tokLabel {
		p += 2 + int(mem[p+1])
	}
	return p
}

// nextStatement returns the next executable position at or after the
// boundary p, skipping line headers and empty lines. ok is false at the end
// of the region.
func nextStatement(mem []byte, p int) (int, bool) {
	for {
		if isProgramEnd(mem, p) {
			return p, false
		}
		if mem[p] != tokNewLine {
			return p, true
		}
		q := skipLineHeader(mem, p)
		if q < len(mem) && mem[q] == 0 {
			// empty line
			p = q + 1
			continue
		}
		return q, true
	}
}

// skipStatement returns the position after the zero ending the statement
// that contains p.
func skipStatement(mem []byte, p int) int {
	for p < len(mem) && mem[p] != 0 {
		p++
	}
	return p + 1
}

// statementEnd returns the position of the zero ending the statement at p.
func statementEnd(mem []byte, p int) int {
	return skipStatement(mem, p) - 1
}

// nextLine returns the position of the next line marker (or the region end)
// after the statement at p.
func nextLine(mem []byte, p int) int {
	for {
		p = skipStatement(mem, p)
		if p >= len(mem) || mem[p] == 0 || mem[p] == tokNewLine || mem[p] == tokReserved {
			return p
		}
	}
}

// lines calls fn with the start of every line in the region beginning at
// start until fn returns false.
func lines(mem []byte, start int, fn func(line int) bool) {
	p := start
	for p < len(mem) && mem[p] == tokNewLine {
		if !fn(p) {
			return
		}
		p = nextLine(mem, skipLineHeader(mem, p))
	}
}

// lineNumberOf returns the line number carried by the line at p, 0 if none.
func lineNumberOf(mem []byte, line int) int {
	if line+3 < len(mem) && mem[line] == tokNewLine && mem[line+1] == tokLineNum {
		return int(mem[line+2])<<8 | int(mem[line+3])
	}
	return 0
}

// labelOf returns the label carried by the line at p.
func labelOf(mem []byte, line int) string {
	q := line + 1
	if q < len(mem) && mem[q] == tokLineNum {
		q += 3
	}
	if q+1 < len(mem) && mem[q] == tokLabel {
		return string(mem[q+2 : q+2+int(mem[q+1])])
	}
	return ""
}

// findLabel scans for the line carrying label name.
func findLabel(mem []byte, start int, name string) (int, error) {
	name = strings.ToUpper(name)
	found := -1
	lines(mem, start, func(line int) bool {
		if labelOf(mem, line) == name {
			found = line
			return false
		}
		return true
	})
	if found < 0 {
		return 0, newError(ErrCategoryName, "LABEL_NOT_FOUND", name)
	}
	return found, nil
}

// duplicateLabel returns the first line whose label repeats an earlier one
// in the region at start, or -1.
func duplicateLabel(mem []byte, start int) (int, string) {
	seen := make(map[string]bool)
	dup, name := -1, ""
	lines(mem, start, func(line int) bool {
		l := labelOf(mem, line)
		if l == "" {
			return true
		}
		if seen[l] {
			dup, name = line, l
			return false
		}
		seen[l] = true
		return true
	})
	return dup, name
}

// lineStart returns the start of the line containing p.
func lineStart(mem []byte, start, p int) int {
	found := start
	lines(mem, start, func(line int) bool {
		if line > p {
			return false
		}
		found = line
		return true
	})
	return found
}

// countLines returns the number of lines from start up to and including the
// line that contains target.
func countLines(mem []byte, start, target int) int {
	n := 0
	lines(mem, start, func(line int) bool {
		if line > target {
			return false
		}
		n++
		return true
	})
	return n
}

// validateProgram checks a tokenized region against the stream grammar and
// returns the region length including its terminating zeros.
func validateProgram(mem []byte) (int, error) {
	bad := func(p int) (int, error) {
		return 0, newError(ErrCategorySyntax, "INVALID_PROGRAM", p)
	}
	p := 0
	for {
		if p+1 < len(mem) && ((mem[p] == 0 && mem[p+1] == 0) || (mem[p] == tokReserved && mem[p+1] == tokReserved)) {
			return p + 2, nil
		}
		if p >= len(mem) || mem[p] != tokNewLine {
			return bad(p)
		}
		p++
		if p < len(mem) && mem[p] == tokLineNum {
			if p+2 >= len(mem) {
				return bad(p)
			}
			n := int(mem[p+1])<<8 | int(mem[p+2])
			if n < 1 || n > MaxLineNumber {
				return bad(p)
			}
			p += 3
		}
		if p < len(mem) && mem[p] == tokLabel {
			if p+1 >= len(mem) || p+2+int(mem[p+1]) > len(mem) {
				return bad(p)
			}
			p += 2 + int(mem[p+1])
		}
		// statements
		for {
			empty := true
			for p < len(mem) && mem[p] != 0 {
				c := mem[p]
				if c == tokNewLine || c == tokLineNum || c == tokLabel || c == tokReserved || (c >= tokLast) {
					return bad(p)
				}
				empty = false
				p++
			}
			if p >= len(mem) {
				return bad(p)
			}
			p++ // the statement terminator
			if p >= len(mem) {
				return bad(p)
			}
			if mem[p] == 0 || mem[p] == tokNewLine || mem[p] == tokReserved {
				break
			}
			if empty {
				return bad(p)
			}
		}
		if mem[p] == 0 || mem[p] == tokReserved {
			if p+1 < len(mem) && mem[p+1] == mem[p] {
				return p + 2, nil
			}
			return bad(p)
		}
	}
}
