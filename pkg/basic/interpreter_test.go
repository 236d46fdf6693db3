package basic

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// newTestInterpreter returns an interpreter writing to out and reading the
// given console input.
func newTestInterpreter(input string, out *bytes.Buffer, opts ...Option) *Interpreter {
	opts = append([]Option{WithConsole(NewStdConsole(strings.NewReader(input), out)), WithSessionID("test-session")}, opts...)
	return New(opts...)
}

// runProgram loads and runs src, returning everything printed.
func runProgram(t *testing.T, src, input string, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	b := newTestInterpreter(input, &out, opts...)
	if err := b.LoadProgram(src); err != nil {
		return out.String(), err
	}
	err := b.Run(context.Background())
	return out.String(), err
}

// errorCode returns the code of a BASIC error, "" for nil.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := AsBASICError(err); ok {
		return be.Code
	}
	return err.Error()
}

func TestRunPrograms(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		input    string
		expected string
	}{
		{
			name:     "print separators",
			src:      `PRINT 1; -2; "x"` + "\n" + `PRINT "a", "b"` + "\n" + `PRINT "no newline";`,
			expected: " 1-2x\na       b\nno newline",
		},
		{
			name: "nested for runs inner body six times",
			src: `C = 0
FOR I = 1 TO 2
FOR J = 1 TO 3
C = C + 1
NEXT J
NEXT I
PRINT C`,
			expected: " 6\n",
		},
		{
			name: "for with negative step and name list",
			src: `FOR I = 3 TO 1 STEP -1
FOR J = 1 TO 2
PRINT I * 10 + J;
NEXT J, I
PRINT`,
			expected: " 31 32 21 22 11 12\n",
		},
		{
			name: "zero trip for skips its body",
			src: `FOR I = 5 TO 1
PRINT "never"
NEXT I
PRINT "done"`,
			expected: "done\n",
		},
		{
			name: "exit for",
			src: `FOR I = 1 TO 10
IF I = 3 THEN EXIT FOR
NEXT I
PRINT I`,
			expected: " 3\n",
		},
		{
			name: "do and while loops",
			src: `I = 0
DO WHILE I < 3
I = I + 1
LOOP
PRINT I
DO
I = I - 1
LOOP UNTIL I = 0
PRINT I
WHILE I < 2
I = I + 1
WEND
PRINT I`,
			expected: " 3\n 0\n 2\n",
		},
		{
			name: "exit do",
			src: `I = 0
DO
I = I + 1
IF I = 4 THEN EXIT DO
LOOP
PRINT I`,
			expected: " 4\n",
		},
		{
			name: "single line if else",
			src: `X = 2: IF X > 1 THEN PRINT "big" ELSE PRINT "small"
X = 0: IF X > 1 THEN PRINT "big" ELSE PRINT "small"
IF X = 0 THEN PRINT "a": PRINT "b"
IF X = 1 THEN PRINT "c": PRINT "d"
PRINT "end"`,
			expected: "big\nsmall\na\nb\nend\n",
		},
		{
			name: "block if with elseif",
			src: `FOR I = 1 TO 3
IF I = 1 THEN
PRINT "one"
ELSEIF I = 2 THEN
PRINT "two"
ELSE
PRINT "many"
ENDIF
NEXT`,
			expected: "one\ntwo\nmany\n",
		},
		{
			name: "nested block if",
			src: `A = 1: B = 0
IF A = 1 THEN
IF B = 1 THEN
PRINT "inner"
ELSE
PRINT "inner else"
END IF
ELSE
PRINT "outer else"
END IF`,
			expected: "inner else\n",
		},
		{
			name: "select case chooses one clause",
			src: `FOR K = 1 TO 4
READ V
SELECT CASE V
CASE 1 TO 3
PRINT "low"
CASE IS > 10
PRINT "high"
CASE 5, 7
PRINT "odd"
CASE ELSE
PRINT "other"
END SELECT
NEXT K
DATA 2, 11, 7, 4`,
			expected: "low\nhigh\nodd\nother\n",
		},
		{
			name: "select case on strings",
			src: `A$ = "pear"
SELECT CASE A$
CASE "apple"
PRINT 1
CASE "pear", "plum"
PRINT 2
END SELECT`,
			expected: " 2\n",
		},
		{
			name: "gosub and return",
			src: `GOSUB 100
PRINT "back"
END
100 PRINT "sub"
RETURN`,
			expected: "sub\nback\n",
		},
		{
			name: "nested gosubs unwind in order",
			src: `GOSUB 100
PRINT "done"
END
100 GOSUB 200
RETURN
200 GOSUB 300
RETURN
300 PRINT "deep"
RETURN`,
			expected: "deep\ndone\n",
		},
		{
			name: "goto label",
			src: `GOTO there
PRINT "no"
there: PRINT "yes"`,
			expected: "yes\n",
		},
		{
			name: "on goto and gosub",
			src: `10 N = 2
20 ON N GOTO 100, 200
30 PRINT "fell through"
40 END
100 PRINT "first": END
200 ON 1 GOSUB 300
210 PRINT "second"
220 END
300 PRINT "sub"
310 RETURN`,
			expected: "sub\nsecond\n",
		},
		{
			name: "on goto out of range falls through",
			src: `ON 5 GOTO 100
PRINT "through"
END
100 PRINT "no"`,
			expected: "through\n",
		},
		{
			name: "sub by reference and by value",
			src: `A = 1
B = 1
BUMP A, B
PRINT A; B
SUB BUMP(X, BYVAL Y)
X = X + 1
Y = Y + 1
END SUB`,
			expected: " 2 1\n",
		},
		{
			name: "expression argument is passed by value",
			src: `A = 1
BUMP A + 0
PRINT A
BUMP A
PRINT A
SUB BUMP(X)
X = X + 1
END SUB`,
			expected: " 1\n 2\n",
		},
		{
			name: "recursive function",
			src: `PRINT FACT(5)
FUNCTION FACT(N) AS INTEGER
IF N <= 1 THEN
FACT = 1
ELSE
FACT = N * FACT(N - 1)
ENDIF
END FUNCTION`,
			expected: " 120\n",
		},
		{
			name: "string function",
			src: `PRINT GREET$("Ada")
FUNCTION GREET$(WHO$)
GREET$ = "Hello, " + WHO$
END FUNCTION`,
			expected: "Hello, Ada\n",
		},
		{
			name: "exit function keeps the assigned value",
			src: `PRINT F(3)
FUNCTION F(N)
F = N * 2
IF N > 0 THEN EXIT FUNCTION
F = 0
END FUNCTION`,
			expected: " 6\n",
		},
		{
			name: "global visible only without a local shadow",
			src: `G = 5
S
PRINT G
SUB S
PRINT G
LOCAL G
G = 7
PRINT G
END SUB`,
			expected: " 5\n 7\n 5\n",
		},
		{
			name: "array parameter",
			src: `DIM A(3)
FILL A()
PRINT A(0); A(3)
SUB FILL(V())
LOCAL I
FOR I = 0 TO 3
V(I) = I * I
NEXT
END SUB`,
			expected: " 0 9\n",
		},
		{
			name: "static keeps its value between calls",
			src: `COUNTER
COUNTER
COUNTER
PRINT
SUB COUNTER
STATIC N = 10
N = N + 1
PRINT N;
END SUB`,
			expected: " 11 12 13\n",
		},
		{
			name: "call by string name",
			src: `CALL "hello", 3
SUB HELLO(N)
PRINT N
END SUB`,
			expected: " 3\n",
		},
		{
			name: "dim with types and initialisers",
			src: `DIM INTEGER A(2) = (1, 2, 3)
DIM S$ LENGTH 5 = "abc"
DIM F AS FLOAT
F = 1.5
PRINT A(0) + A(1) + A(2); S$; F`,
			expected: " 6abc 1.5\n",
		},
		{
			name: "option base 1",
			src: `OPTION BASE 1
DIM A(3)
A(1) = 5
PRINT A(1)`,
			expected: " 5\n",
		},
		{
			name: "const inc and option default",
			src: `CONST K = 5
X = 1: INC X: INC X, K
S$ = "a": INC S$, "b"
PRINT X; S$
OPTION DEFAULT INTEGER
N = 7 / 2
PRINT N`,
			expected: " 7ab\n 4\n",
		},
		{
			name: "read restore and data",
			src: `10 READ A, B$
20 RESTORE 45
30 READ C, D$
35 PRINT A; B$; C; D$
36 END
40 DATA 9
50 DATA 1, "x,y"`,
			expected: " 91 1x,y\n",
		},
		{
			name: "restore to label",
			src: `READ A
RESTORE second
READ B
PRINT A; B
first: DATA 1
second: DATA 2`,
			expected: " 1 2\n",
		},
		{
			name:     "input with prompt and line input",
			src:      "INPUT \"Name\"; N$\nLINE INPUT L$\nINPUT A, B\nPRINT \"Hi \"; N$; LEN(L$); A + B",
			input:    "Bob\nhello, world\n3, 4\n",
			expected: "Name? ? Hi Bob 12 7\n",
		},
		{
			name:     "input missing fields default to zero",
			src:      "INPUT \"\", A, B$\nPRINT A; \"[\"; B$; \"]\"",
			input:    "5\n",
			expected: " 5[]\n",
		},
		{
			name: "error skip resumes with the next statement",
			src: `OPTION ERROR SKIP 1
X = 1 / 0
PRINT "after"; MM.ERRNO
ON ERROR CLEAR
PRINT MM.ERRNO`,
			expected: "after 4\n 0\n",
		},
		{
			name: "on error ignore",
			src: `ON ERROR IGNORE
X = 1 / 0
Y = UNDEFINED(1)
PRINT "still here"; LEN(MM.ERRMSG$) > 0`,
			expected: "still here 1\n",
		},
		{
			name: "string functions",
			src: `S$ = "Hello World"
PRINT LEFT$(S$, 5); "|"; RIGHT$(S$, 5); "|"; MID$(S$, 7, 3); "|"; UCASE$("abc"); "|"; INSTR(S$, "World")
PRINT STR$(42); "|"; VAL("3.5xyz"); "|"; CHR$(65); ASC("B"); "|"; HEX$(255); "|"; BIN$(5, 8)`,
			expected: "Hello|World|Wor|ABC| 7\n42| 3.5|A 66|FF|00000101\n",
		},
		{
			name: "trace prints line numbers",
			src: `10 TRACE ON
20 PRINT 1
30 TRACE OFF
40 PRINT 2`,
			expected: "[20] 1\n[30] 2\n",
		},
		{
			name: "end stops the program",
			src: `PRINT "a"
END
PRINT "b"`,
			expected: "a\n",
		},
		{
			name: "simple numeric function",
			src: `PRINT F(2)
FUNCTION F(N)
F = N * 2
END FUNCTION`,
			expected: " 4\n",
		},
		{
			name: "on error skip counts failing statements",
			src: `ON ERROR SKIP 2
A = 1 / 0
PRINT "mid"
B = 1 / 0
PRINT "end"`,
			expected: "mid\nend\n",
		},
		{
			name: "on error skip outlasts successful statements",
			src: `ON ERROR SKIP
PRINT "x"
B = 1 / 0
PRINT "y"`,
			expected: "x\ny\n",
		},
		{
			name: "for loop ending at the largest integer",
			src: `FOR I% = 9223372036854775806 TO 9223372036854775807
PRINT I%
NEXT
PRINT "done"`,
			expected: " 9223372036854775806\n 9223372036854775807\ndone\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runProgram(t, tt.src, tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v (output %q)", err, got)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"next without for", "NEXT I", "NEXT_WITHOUT_FOR"},
		{"skip budget used up", "ON ERROR SKIP 1\nA = 1 / 0\nB = 1 / 0", "DIVISION_BY_ZERO"},
		{"array element count overflow", "DIM A(4294967295, 4294967295)\nA(5, 5) = 1", "ARRAY_TOO_LARGE"},
		{"array above the element limit", "DIM A(2000000)", "ARRAY_TOO_LARGE"},
		{"integer add overflow", "A% = 9223372036854775807\nB% = A% + 1", "NUMBER_OUT_OF_RANGE"},
		{"integer subtract overflow", "A% = -9223372036854775807 - 1\nB% = A% - 1", "NUMBER_OUT_OF_RANGE"},
		{"integer multiply overflow", "A% = 4294967296\nB% = A% * A%", "NUMBER_OUT_OF_RANGE"},
		{"integer division overflow", "A% = -9223372036854775807 - 1\nPRINT A% \\ -1", "NUMBER_OUT_OF_RANGE"},
		{"integer negation overflow", "A% = -9223372036854775807 - 1\nPRINT -A%", "NUMBER_OUT_OF_RANGE"},
		{"integer power overflow", "PRINT 2 ^ 64", "NUMBER_OUT_OF_RANGE"},
		{"for without next", "FOR I = 5 TO 1\nPRINT I", "FOR_WITHOUT_NEXT"},
		{"return without gosub", "RETURN", "RETURN_WITHOUT_GOSUB"},
		{"extra return", "GOSUB 100\nRETURN\n100 RETURN", "RETURN_WITHOUT_GOSUB"},
		{"missing line", "GOTO 500", "LINE_NOT_FOUND"},
		{"missing label", "GOSUB nowhere", "LABEL_NOT_FOUND"},
		{"if without endif", "IF 0 THEN\nPRINT 1", "IF_WITHOUT_ENDIF"},
		{"select without end", "SELECT CASE 1\nCASE 2\nPRINT 2", "SELECT_WITHOUT_END"},
		{"loop without do", "LOOP", "LOOP_WITHOUT_DO"},
		{"wend without while", "WEND", "WEND_WITHOUT_WHILE"},
		{"condition on both ends", "DO WHILE 1\nLOOP UNTIL 1", "LOOP_CONDITION_TWICE"},
		{"dim twice", "DIM X\nDIM X", "ALREADY_DECLARED"},
		{"local twice", "T\nSUB T\nLOCAL X\nLOCAL X\nEND SUB", "ALREADY_DECLARED"},
		{"local outside sub", "LOCAL X", "INVALID_HERE"},
		{"index above bound", "DIM A(5)\nA(6) = 1", "INDEX_OUT_OF_BOUNDS"},
		{"index below bound", "DIM A(5)\nPRINT A(-1)", "INDEX_OUT_OF_BOUNDS"},
		{"undeclared array", "B(1) = 2", "ARRAY_NOT_DECLARED"},
		{"wrong dimension count", "DIM A(2, 2)\nA(1) = 0", "DIMENSION_COUNT"},
		{"option explicit", "OPTION EXPLICIT\nZ = 1", "UNKNOWN_VARIABLE"},
		{"base after dim", "DIM A(2)\nOPTION BASE 1", "BASE_AFTER_DIM"},
		{"constant assignment", "CONST K = 1\nK = 2", "CONSTANT_ASSIGN"},
		{"type mismatch", `A = "x"`, "TYPE_MISMATCH"},
		{"string too long", "DIM S$ LENGTH 2\nS$ = \"abc\"", "STRING_TOO_LONG"},
		{"division by zero", "PRINT 1 / 0", "DIVISION_BY_ZERO"},
		{"out of data", "READ A", "OUT_OF_DATA"},
		{"quoted data into number", "READ A\nDATA \"x\"", "EXPECTED_NUMBER"},
		{"too many arguments", "S 1, 2\nSUB S(A)\nEND SUB", "TOO_MANY_ARGUMENTS"},
		{"unknown command", "FOO", "UNKNOWN_COMMAND"},
		{"clear inside sub", "S\nSUB S\nCLEAR\nEND SUB", "INVALID_HERE"},
		{"runaway recursion", "PRINT F(1)\nFUNCTION F(N)\nF = F(N + 1)\nEND FUNCTION", "CALL_DEPTH"},
		{"function falls off its end", "PRINT F(1)\nFUNCTION F(N)\nGOTO 100\nEND FUNCTION\n100 REM", "FUNCTION_NOT_ENDED"},
		{"user error", `ERROR "boom"`, "USER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runProgram(t, tt.src, "")
			if got := errorCode(err); got != tt.expected {
				t.Errorf("Expected %s, got %s (%v)", tt.expected, got, err)
			}
		})
	}
}

func TestErrorLocationAndReport(t *testing.T) {
	_, err := runProgram(t, "10 PRINT 1\n20 X = 1 / 0", "")
	be, ok := AsBASICError(err)
	if !ok {
		t.Fatalf("Expected a BASICError, got %v", err)
	}
	if be.LineNumber != 20 {
		t.Errorf("Expected line 20, got %d", be.LineNumber)
	}
	if be.Category != ErrCategoryBounds || be.Number != 4 {
		t.Errorf("Expected BOUNDS ERROR number 4, got %s %d", be.Category, be.Number)
	}
	if got := be.Error(); got != "BOUNDS ERROR IN LINE 20: Divide by zero" {
		t.Errorf("Unexpected message %q", got)
	}
	if got := be.Report(); got != "[20] 20 X=1/0\nError: Divide by zero" {
		t.Errorf("Unexpected report %q", got)
	}
}

func TestUserErrorNumber(t *testing.T) {
	_, err := runProgram(t, `ERROR "boom", 42`, "")
	be, ok := AsBASICError(err)
	if !ok {
		t.Fatalf("Expected a BASICError, got %v", err)
	}
	if be.Number != 42 || be.Message != "boom" || be.Category != ErrCategoryUser {
		t.Errorf("Expected USER ERROR 42 boom, got %s %d %s", be.Category, be.Number, be.Message)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"duplicate definition", "SUB A\nEND SUB\nSUB A\nEND SUB", "DUPLICATE_DEFINITION"},
		{"sub without end", "SUB A\nPRINT 1", "SUB_WITHOUT_END"},
		{"line order", "20 PRINT 1\n10 PRINT 2", "LINE_ORDER"},
		{"invalid line number", "70000 PRINT 1", "INVALID_LINE_NUMBER"},
		{"duplicate label", "GOTO L\nL: PRINT 1\nEND\nL: PRINT 2", "DUPLICATE_LABEL"},
		{"duplicate label in a sub", "SUB S\nX: PRINT 1\nx: PRINT 2\nEND SUB", "DUPLICATE_LABEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			b := newTestInterpreter("", &out)
			if got := errorCode(b.LoadProgram(tt.src)); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestStaleForEntriesAreReplaced(t *testing.T) {
	// jumping out of a loop and re-entering it more often than the FOR
	// stack can hold must not overflow it
	src := `N = 0
10 FOR I = 1 TO 5
IF I = 2 THEN GOTO 20
NEXT I
20 N = N + 1
IF N < 50 THEN GOTO 10
PRINT N`
	got, err := runProgram(t, src, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != " 50\n" {
		t.Errorf("Expected \" 50\\n\", got %q", got)
	}
}

func TestGosubDepthLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxCallDepth = 1000
	_, err := runProgram(t, "10 GOSUB 10", "", WithLimits(limits))
	if got := errorCode(err); got != "TOO_MANY_GOSUB" {
		t.Errorf("Expected TOO_MANY_GOSUB, got %s", got)
	}

	_, err = runProgram(t, "10 GOSUB 10", "")
	if got := errorCode(err); got != "CALL_DEPTH" {
		t.Errorf("Expected CALL_DEPTH with default limits, got %s", got)
	}
}

func TestArrayElementProductOverflow(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxArrayElements = int(^uint(0) >> 1)
	_, err := runProgram(t, "DIM A(4294967295, 4294967295)", "", WithLimits(limits))
	if got := errorCode(err); got != "ARRAY_TOO_LARGE" {
		t.Errorf("Expected ARRAY_TOO_LARGE, got %s (%v)", got, err)
	}
}

func TestSkippedErrorDropsLocals(t *testing.T) {
	src := `FUNCTION F(A)
LOCAL T
T = A / 0
F = T
END FUNCTION
ON ERROR SKIP 1
X = F(1)
PRINT "ok"`
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.LoadProgram(src); err != nil {
		t.Fatal(err)
	}
	if err := b.execute(0, false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.String() != "ok\n" {
		t.Errorf("Expected ok, got %q", out.String())
	}
	if b.localIndex != 0 {
		t.Errorf("Expected level 0, got %d", b.localIndex)
	}
	if len(b.returnStack) != 0 {
		t.Errorf("Expected empty return stack, got %d entries", len(b.returnStack))
	}
	for _, v := range b.Variables() {
		if v.Level != 0 {
			t.Errorf("Expected no local records, found %s at level %d", v.Name, v.Level)
		}
	}
	if b.errNo != 4 {
		t.Errorf("Expected MM.ERRNO 4, got %d", b.errNo)
	}
}

func TestGosubRestoresLevel(t *testing.T) {
	src := `GOSUB 100
GOSUB 100
PRINT "x"
END
100 GOSUB 200
RETURN
200 RETURN`
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.LoadProgram(src); err != nil {
		t.Fatal(err)
	}
	if err := b.execute(0, false); err != nil && err != errEnd {
		t.Fatalf("Unexpected error: %v", err)
	}
	if b.localIndex != 0 || len(b.returnStack) != 0 {
		t.Errorf("Expected level 0 and empty stack, got %d and %d", b.localIndex, len(b.returnStack))
	}
}

func TestImmediateMode(t *testing.T) {
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	ctx := context.Background()

	if err := b.LoadProgram("10 PRINT \"prog\"; X"); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"X = 41", "INC X", "PRINT X * 2"} {
		if err := b.Execute(ctx, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}
	if err := b.Execute(ctx, "GOTO 10"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != " 84\nprog 42\n" {
		t.Errorf("Expected \" 84\\nprog 42\\n\", got %q", got)
	}

	err := b.Execute(ctx, "PRINT 1 / 0")
	be, ok := AsBASICError(err)
	if !ok || !be.Immediate {
		t.Fatalf("Expected an immediate-mode error, got %v", err)
	}
	if b.LastError() != be {
		t.Errorf("Expected LastError to hold the last error")
	}
	if err := b.Execute(ctx, "10 PRINT"); errorCode(err) != "INVALID_LINE_NUMBER" {
		t.Errorf("Expected INVALID_LINE_NUMBER for a numbered immediate line, got %v", err)
	}
}

func TestStop(t *testing.T) {
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.LoadProgram("10 GOTO 10"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Run(ctx)
	if got := errorCode(err); got != "BREAK" {
		t.Errorf("Expected BREAK, got %s", got)
	}
	if b.IsRunning() {
		t.Errorf("Expected the interpreter to be idle after Run returned")
	}
}

func TestInterrupts(t *testing.T) {
	// the queued interrupt runs before the first statement
	src := `DO WHILE N = 0
LOOP
PRINT "n="; N
END
SUB TICK
N = N + 1
END SUB`
	q := &InterruptQueue{}
	q.Raise("tick")
	got, err := runProgram(t, src, "", WithInterruptSource(q))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "n= 1\n" {
		t.Errorf("Expected \"n= 1\\n\", got %q", got)
	}
}

func TestLibrary(t *testing.T) {
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.LoadLibrary("SUB SHOUT(S$)\nPRINT UCASE$(S$)\nEND SUB"); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadProgram(`SHOUT "hi"`); err != nil {
		t.Fatal(err)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "HI\n" {
		t.Errorf("Expected HI, got %q", out.String())
	}
	if got := len(b.List()); got != 1 {
		t.Errorf("Expected the listing to hold only the main program, got %d lines", got)
	}
}

func TestLoadTokenized(t *testing.T) {
	src := "10 FOR I = 1 TO 3\n20 PRINT I;\n30 NEXT\n40 PRINT"
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.LoadProgram(src); err != nil {
		t.Fatal(err)
	}
	prog := b.Program()

	var out2 bytes.Buffer
	b2 := newTestInterpreter("", &out2)
	if err := b2.LoadTokenized(prog); err != nil {
		t.Fatalf("LoadTokenized failed: %v", err)
	}
	if err := b2.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out2.String() != " 1 2 3\n" {
		t.Errorf("Expected \" 1 2 3\\n\", got %q", out2.String())
	}

	bad := [][]byte{
		{},
		{tokNewLine, 'A'},
		{'A', 0, 0},
		{tokNewLine, tokLineNum, 0, 0, 'A', 0, 0, 0},
		{tokNewLine, 'A', 0, tokLineNum, 0, 0},
	}
	for i, p := range bad {
		if err := b2.LoadTokenized(p); errorCode(err) != "INVALID_PROGRAM" {
			t.Errorf("case %d: Expected INVALID_PROGRAM, got %v", i, err)
		}
	}
}

func TestResolveVariable(t *testing.T) {
	var out bytes.Buffer
	b := newTestInterpreter("", &out)
	if err := b.SetVariable("name$", StringValue([]byte("Ada"))); err != nil {
		t.Fatal(err)
	}
	if err := b.Execute(context.Background(), `PRINT NAME$`); err != nil {
		t.Fatal(err)
	}
	if out.String() != "Ada\n" {
		t.Errorf("Expected Ada, got %q", out.String())
	}
	if _, err := b.ResolveVariable("missing", VarNoFindError); errorCode(err) != "UNKNOWN_VARIABLE" {
		t.Errorf("Expected UNKNOWN_VARIABLE, got %v", err)
	}
	v, err := b.ResolveVariable("missing", VarNoFindNull)
	if err != nil || v != nil {
		t.Errorf("Expected nil without error, got %v %v", v, err)
	}
}

func TestLimitsFromConfigDefaults(t *testing.T) {
	if got := LimitsFromConfig(); got != DefaultLimits() {
		t.Errorf("Expected DefaultLimits without a configuration, got %+v", got)
	}
}
