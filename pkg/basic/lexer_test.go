package basic

import (
	"bytes"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	lit := func(s string) []byte { return []byte(s) }
	cat := func(parts ...interface{}) []byte {
		var out []byte
		for _, p := range parts {
			switch v := p.(type) {
			case byte:
				out = append(out, v)
			case int:
				out = append(out, byte(v))
			case []byte:
				out = append(out, v...)
			}
		}
		return out
	}

	tests := []struct {
		name     string
		line     string
		expected []byte
	}{
		{
			name:     "line number and command",
			line:     "10 print 1",
			expected: cat(tokNewLine, tokLineNum, 0, 10, tokPRINT, lit("1"), 0, 0, 0),
		},
		{
			name:     "implied let and separators",
			line:     "a = 1 :  b=2",
			expected: cat(tokNewLine, tokLET, lit("A"), tokEQ, lit("1"), 0, tokLET, lit("B"), tokEQ, lit("2"), 0, 0, 0),
		},
		{
			name:     "question mark is print",
			line:     "? 1",
			expected: cat(tokNewLine, tokPRINT, lit("1"), 0, 0, 0),
		},
		{
			name: "else starts its own statement",
			line: "IF X THEN PRINT 1 ELSE PRINT 2",
			expected: cat(tokNewLine, tokIF, lit("X"), tokTHEN, tokPRINT, lit("1"), 0,
				tokELSE, tokPRINT, lit("2"), 0, 0, 0),
		},
		{
			name:     "label",
			line:     "start: GOTO start",
			expected: cat(tokNewLine, tokLabel, 5, lit("START"), tokGOTO, lit("START"), 0, 0, 0),
		},
		{
			name:     "remark keeps its text",
			line:     "REM   Hello: World",
			expected: cat(tokNewLine, tokREM, lit("Hello: World"), 0, 0, 0),
		},
		{
			name:     "data keeps quoted separators",
			line:     `DATA 1, "a:b"  : PRINT`,
			expected: cat(tokNewLine, tokDATA, lit(`1, "a:b"`), 0, tokPRINT, 0, 0, 0),
		},
		{
			name:     "strings keep case and blanks",
			line:     `x$ = "Hi  There"`,
			expected: cat(tokNewLine, tokLET, lit("X$"), tokEQ, lit(`"Hi  There"`), 0, 0, 0),
		},
		{
			name:     "one blank between words",
			line:     "PRINT a   MOD   b",
			expected: cat(tokNewLine, tokPRINT, lit("A"), tokMOD, lit("B"), 0, 0, 0),
		},
		{
			name:     "endif without blank",
			line:     "ENDIF",
			expected: cat(tokNewLine, tokENDIF, 0, 0, 0),
		},
		{
			name:     "end if with blanks",
			line:     "END   IF",
			expected: cat(tokNewLine, tokENDIF, 0, 0, 0),
		},
		{
			name:     "command word is literal mid statement",
			line:     "TRACE ON",
			expected: cat(tokNewLine, tokTRACE, lit("ON"), 0, 0, 0),
		},
		{
			name:     "hex literal is upper-cased",
			line:     "PRINT &hff",
			expected: cat(tokNewLine, tokPRINT, lit("&HFF"), 0, 0, 0),
		},
		{
			name:     "comparison operators",
			line:     "PRINT 1<>2, 3>=4",
			expected: cat(tokNewLine, tokPRINT, lit("1"), tokNE, lit("2,3"), tokGE, lit("4"), 0, 0, 0),
		},
		{
			name:     "trailing separator leaves no empty statement",
			line:     "PRINT:",
			expected: cat(tokNewLine, tokPRINT, 0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.line, true)
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Expected % x, got % x", tt.expected, got)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		allowLine bool
		expected  string
	}{
		{"line number zero", "0 PRINT", true, "INVALID_LINE_NUMBER"},
		{"line number too large", "65001 PRINT", true, "INVALID_LINE_NUMBER"},
		{"line number not allowed", "10 PRINT", false, "INVALID_LINE_NUMBER"},
		{"line too long", "PRINT \"" + strings.Repeat("x", MaxLineLength) + "\"", true, "LINE_TOO_LONG"},
		{"label too long", strings.Repeat("L", MaxNameLength+1) + ": PRINT", true, "NAME_TOO_LONG"},
		{"number too long", "PRINT " + strings.Repeat("9", MaxNumberLen+1), true, "NUMBER_TOO_LONG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.line, tt.allowLine)
			if got := errorCode(err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestDetokenizeRoundTrip(t *testing.T) {
	lines := []string{
		"10 PRINT \"Hello\"; A$, B",
		"20 IF X > 1 THEN PRINT \"big\" ELSE PRINT \"small\"",
		"loop1: FOR I = 1 TO 10 STEP 2: NEXT I",
		"DO WHILE A <> 0 AND NOT B: LOOP",
		"SELECT CASE V: CASE IS >= 10: CASE 1 TO 3: END SELECT",
		"DATA 1, \"two\", 3.5",
		"FUNCTION F$(A, BYVAL B$) AS STRING",
		"x = -2 ^ 3 MOD 5 \\ 2 << 1",
		"LINE INPUT \"Name\"; N$",
		"PRINT MM.ERRNO; MM.ERRMSG$; LEFT$(S$, 3)",
		"REM done",
	}
	for _, src := range lines {
		t.Run(src, func(t *testing.T) {
			first, err := Tokenize(src, true)
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			text := Detokenize(first)
			second, err := Tokenize(text, true)
			if err != nil {
				t.Fatalf("re-tokenizing %q failed: %v", text, err)
			}
			if !bytes.Equal(first, second) {
				t.Errorf("Expected a stable round trip through %q\nfirst  % x\nsecond % x", text, first, second)
			}
			if again := Detokenize(second); again != text {
				t.Errorf("Expected %q, got %q", text, again)
			}
		})
	}
}

func TestDetokenize(t *testing.T) {
	tests := []struct {
		line     string
		expected string
	}{
		{"10 print a;b", "10 PRINT A;B"},
		{"x=1:y=2", "X=1:Y=2"},
		{"if a then b=1 else b=2", "IF A THEN B=1 ELSE B=2"},
		{"start:  goto start", "START: GOTO START"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tok, err := Tokenize(tt.line, true)
			if err != nil {
				t.Fatal(err)
			}
			if got := Detokenize(tok); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
