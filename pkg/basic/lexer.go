package basic

import (
	"strconv"
	"strings"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// Source and program limits.
const (
	MaxLineNumber = 65000
	MaxLineLength = 255
	MaxNameLength = 32
	MaxNumberLen  = 64
	MaxStringLen  = 255
)

// tokenizer holds the state for one source line.
type tokenizer struct {
	src        []byte
	i          int
	out        []byte
	start      bool // next element begins a statement
	stmtBytes  int  // bytes emitted in the current statement
	sep        bool // a statement separator is owed before the next element
	blank      bool // whitespace was skipped since the last element
	lastIsWord bool // last emitted byte is a literal word character
}

// Tokenize converts one source line into its token stream. The result starts
// with the new-line marker and ends in 00 00 00.
func Tokenize(line string, allowLineNumber bool) ([]byte, error) {
	src := cleanLine(line)
	if len(src) > MaxLineLength {
		return nil, newError(ErrCategorySyntax, "LINE_TOO_LONG")
	}
	t := &tokenizer{src: src, out: make([]byte, 0, len(src)+8), start: true}
	t.out = append(t.out, tokNewLine)
	t.skipBlanks()

	if t.i < len(src) && isDigit(src[t.i]) {
		if !allowLineNumber {
			return nil, newError(ErrCategorySyntax, "INVALID_LINE_NUMBER")
		}
		j := t.i
		for j < len(src) && isDigit(src[j]) {
			j++
		}
		n, err := strconv.Atoi(string(src[t.i:j]))
		if err != nil || n < 1 || n > MaxLineNumber {
			return nil, newError(ErrCategorySyntax, "INVALID_LINE_NUMBER")
		}
		t.out = append(t.out, tokLineNum, byte(n>>8), byte(n))
		t.i = j
		t.skipBlanks()
	}

	if err := t.label(); err != nil {
		return nil, err
	}

	for t.i < len(src) {
		if err := t.element(); err != nil {
			return nil, err
		}
	}

	t.out = append(t.out, 0, 0, 0)
	logger.Debug(logger.AreaTokenizer, "tokenized %q into %d bytes", line, len(t.out))
	return t.out, nil
}

// cleanLine drops non-printable bytes and trailing blanks.
func cleanLine(line string) []byte {
	src := make([]byte, 0, len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\t' {
			c = ' '
		}
		if c < 0x20 || c >= 0x7F {
			continue
		}
		src = append(src, c)
	}
	for len(src) > 0 && src[len(src)-1] == ' ' {
		src = src[:len(src)-1]
	}
	return src
}

func (t *tokenizer) skipBlanks() {
	for t.i < len(t.src) && t.src[t.i] == ' ' {
		t.i++
	}
}

// label emits a label marker when the line starts with "name:" and the name
// is not a command.
func (t *tokenizer) label() error {
	if t.i >= len(t.src) || !isNameStart(t.src[t.i]) {
		return nil
	}
	if _, n := matchToken(t.src, t.i, true); n > 0 {
		return nil
	}
	j := t.i
	for j < len(t.src) && isNameChar(t.src[j]) {
		j++
	}
	if j >= len(t.src) || t.src[j] != ':' {
		return nil
	}
	name := strings.ToUpper(string(t.src[t.i:j]))
	if len(name) > MaxNameLength {
		return newError(ErrCategorySyntax, "NAME_TOO_LONG", name)
	}
	t.out = append(t.out, tokLabel, byte(len(name)))
	t.out = append(t.out, name...)
	t.i = j + 1
	t.skipBlanks()
	return nil
}

// flush writes an owed statement separator.
func (t *tokenizer) flush() {
	if t.sep {
		t.out = append(t.out, 0)
		t.sep = false
	}
}

// emitToken appends a token id.
func (t *tokenizer) emitToken(id byte) {
	t.flush()
	t.out = append(t.out, id)
	t.stmtBytes++
	t.blank = false
	t.lastIsWord = false
}

// emitLiteral appends literal bytes, keeping one blank between two words.
func (t *tokenizer) emitLiteral(b []byte) {
	if len(b) == 0 {
		return
	}
	t.flush()
	if t.blank && t.lastIsWord && isWordChar(b[0]) {
		t.out = append(t.out, ' ')
		t.stmtBytes++
	}
	t.out = append(t.out, b...)
	t.stmtBytes += len(b)
	t.blank = false
	t.lastIsWord = isWordChar(b[len(b)-1])
}

// separator ends the current statement unless it is empty. The zero is
// written lazily so a trailing separator leaves no empty statement.
func (t *tokenizer) separator() {
	if t.stmtBytes > 0 {
		t.sep = true
	}
	t.stmtBytes = 0
	t.start = true
	t.blank = false
	t.lastIsWord = false
}

// rest copies the remainder of the line verbatim.
func (t *tokenizer) rest() {
	t.flush()
	t.out = append(t.out, t.src[t.i:]...)
	t.stmtBytes += len(t.src) - t.i
	t.i = len(t.src)
}

// element tokenizes the next element of the line.
func (t *tokenizer) element() error {
	c := t.src[t.i]
	switch {
	case c == ' ':
		t.skipBlanks()
		t.blank = true
		return nil
	case c == ':':
		t.i++
		t.separator()
		return nil
	case c == '\'':
		t.start = false
		t.rest()
		return nil
	case c == '"':
		j := t.i + 1
		for j < len(t.src) && t.src[j] != '"' {
			j++
		}
		if j < len(t.src) {
			j++
		}
		t.start = false
		t.emitLiteral(t.src[t.i:j])
		t.lastIsWord = false
		t.i = j
		return nil
	}

	if t.start {
		t.start = false
		if c == '?' {
			t.emitToken(tokPRINT)
			t.i++
			return nil
		}
		if id, n := matchToken(t.src, t.i, true); n > 0 {
			t.emitToken(id)
			t.i += n
			switch id {
			case tokREM:
				t.skipBlanks()
				t.rest()
			case tokDATA:
				t.skipBlanks()
				t.data()
			case tokELSE:
				t.start = true
			}
			return nil
		}
		if isNameStart(c) && t.impliedLet() {
			t.emitToken(tokLET)
		}
	}

	if isNameStart(c) || strings.IndexByte("^*/\\+-<>=", c) >= 0 {
		if id, n := matchToken(t.src, t.i, false); n > 0 {
			t.i += n
			if id == tokELSE {
				t.separator()
				t.emitToken(tokELSE)
				t.start = true
				return nil
			}
			t.emitToken(id)
			if id == tokTHEN {
				t.start = true
			}
			return nil
		}
	}

	switch {
	case isDigit(c) || (c == '.' && t.i+1 < len(t.src) && isDigit(t.src[t.i+1])):
		return t.number()
	case c == '&' && t.i+1 < len(t.src) && strings.IndexByte("HhOoBb", t.src[t.i+1]) >= 0:
		j := t.i + 2
		for j < len(t.src) && (isDigit(t.src[j]) || isAlpha(t.src[j])) {
			j++
		}
		lit := []byte(strings.ToUpper(string(t.src[t.i:j])))
		t.emitLiteral(lit)
		t.i = j
		return nil
	case isNameStart(c):
		j := t.i
		for j < len(t.src) && isNameChar(t.src[j]) {
			j++
		}
		if j < len(t.src) && isSuffix(t.src[j]) {
			j++
		}
		name := strings.ToUpper(string(t.src[t.i:j]))
		t.emitLiteral([]byte(name))
		t.i = j
		return nil
	}
	t.emitLiteral(t.src[t.i : t.i+1])
	t.i++
	return nil
}

// number copies a numeric literal, upper-casing the exponent marker.
func (t *tokenizer) number() error {
	j := t.i
	for j < len(t.src) && (isDigit(t.src[j]) || t.src[j] == '.') {
		j++
	}
	if j < len(t.src) && (t.src[j] == 'E' || t.src[j] == 'e') {
		k := j + 1
		if k < len(t.src) && (t.src[k] == '+' || t.src[k] == '-') {
			k++
		}
		if k < len(t.src) && isDigit(t.src[k]) {
			for k < len(t.src) && isDigit(t.src[k]) {
				k++
			}
			j = k
		}
	}
	if j-t.i > MaxNumberLen {
		return newError(ErrCategorySyntax, "NUMBER_TOO_LONG")
	}
	lit := []byte(strings.ToUpper(string(t.src[t.i:j])))
	t.emitLiteral(lit)
	t.i = j
	return nil
}

// data copies DATA items verbatim up to a separator outside quotes.
func (t *tokenizer) data() {
	quoted := false
	j := t.i
	for j < len(t.src) {
		if t.src[j] == '"' {
			quoted = !quoted
		} else if t.src[j] == ':' && !quoted {
			break
		}
		j++
	}
	end := j
	for end > t.i && t.src[end-1] == ' ' {
		end--
	}
	t.flush()
	t.out = append(t.out, t.src[t.i:end]...)
	t.stmtBytes += end - t.i
	t.i = j
}

// impliedLet reports whether the statement looks like "name[(...)] = ...".
func (t *tokenizer) impliedLet() bool {
	j := t.i
	for j < len(t.src) && isNameChar(t.src[j]) {
		j++
	}
	if j < len(t.src) && isSuffix(t.src[j]) {
		j++
	}
	for j < len(t.src) && t.src[j] == ' ' {
		j++
	}
	if j < len(t.src) && t.src[j] == '(' {
		depth := 0
		quoted := false
		for ; j < len(t.src); j++ {
			c := t.src[j]
			if c == '"' {
				quoted = !quoted
			}
			if quoted {
				continue
			}
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					j++
					break
				}
			}
		}
		for j < len(t.src) && t.src[j] == ' ' {
			j++
		}
	}
	return j < len(t.src) && t.src[j] == '='
}

// renderer re-creates source text from tokens.
type renderer struct {
	sb      strings.Builder
	pending bool // an alphabetic token wants a blank before the next word
	lastOp  string
}

func (r *renderer) last() byte {
	s := r.sb.String()
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (r *renderer) literal(c byte) {
	if r.pending && c != ' ' {
		r.sb.WriteByte(' ')
	}
	r.pending = false
	r.lastOp = ""
	r.sb.WriteByte(c)
}

func (r *renderer) token(id byte) {
	name := tokenName(id)
	if name == "" || id == tokLET {
		return
	}
	if isAlpha(name[0]) {
		if l := r.last(); r.pending || (l != 0 && l != ' ' && l != '(') {
			r.sb.WriteByte(' ')
		}
		r.sb.WriteString(name)
		r.pending = !strings.HasSuffix(name, "(")
		r.lastOp = ""
		return
	}
	if r.pending {
		r.sb.WriteByte(' ')
	} else if r.lastOp != "" {
		if _, ok := tokenByName(r.lastOp + name); ok {
			r.sb.WriteByte(' ')
		}
	}
	r.pending = false
	r.sb.WriteString(name)
	r.lastOp = name
}

// Detokenize renders one tokenized line back into source text. line must
// start at a new-line marker or at the first statement of a line.
func Detokenize(line []byte) string {
	s, _ := detokenizeLine(line, 0)
	return s
}

// detokenizeLine renders the line at p and returns the position after it.
func detokenizeLine(mem []byte, p int) (string, int) {
	r := &renderer{}
	if p < len(mem) && mem[p] == tokNewLine {
		p++
	}
	if p+2 < len(mem) && mem[p] == tokLineNum {
		r.sb.WriteString(strconv.Itoa(int(mem[p+1])<<8 | int(mem[p+2])))
		r.pending = true
		p += 3
	}
	if p+1 < len(mem) && mem[p] == tokLabel {
		n := int(mem[p+1])
		if r.pending {
			r.sb.WriteByte(' ')
		}
		r.sb.Write(mem[p+2 : p+2+n])
		r.sb.WriteByte(':')
		r.pending = true
		p += 2 + n
	}
	for p < len(mem) {
		c := mem[p]
		if c == 0 {
			if p+1 >= len(mem) || mem[p+1] == 0 || mem[p+1] == tokNewLine || mem[p+1] == tokReserved {
				return r.sb.String(), p + 1
			}
			if mem[p+1] == tokELSE {
				r.pending = true
			} else {
				r.pending = false
				r.sb.WriteByte(':')
			}
			r.lastOp = ""
			p++
			continue
		}
		switch {
		case c >= TokenBase:
			r.token(c)
			if c == tokREM || c == tokDATA {
				r.pending = true
			}
		case c == '"':
			r.literal(c)
			p++
			for p < len(mem) && mem[p] != 0 && mem[p] != '"' {
				r.sb.WriteByte(mem[p])
				p++
			}
			if p < len(mem) && mem[p] == '"' {
				r.sb.WriteByte('"')
			} else {
				continue
			}
		default:
			r.literal(c)
		}
		p++
	}
	return r.sb.String(), p
}
