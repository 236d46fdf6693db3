// Package basic implements a token-stream BASIC runtime: tokenizer, program
// memory, variable table, expression evaluator and the statement engine.
package basic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error definitions for failures outside the BASIC error taxonomy.
var (
	ErrNoProgramLoaded = errors.New("no program loaded")
	ErrProgramRunning  = errors.New("program already running")
	ErrNoConsole       = errors.New("no console attached")
	ErrStreamNotOpen   = errors.New("stream not open")

	// errEnd is returned by END and unwinds every engine invocation.
	errEnd = errors.New("END executed")
	// errUnwind is returned when the unwind sentinel is popped from the return stack.
	errUnwind = errors.New("return to caller")
)

// Error categories.
const (
	ErrCategorySyntax    = "SYNTAX ERROR"
	ErrCategoryType      = "TYPE ERROR"
	ErrCategoryName      = "NAME ERROR"
	ErrCategoryBounds    = "BOUNDS ERROR"
	ErrCategoryStructure = "STRUCTURE ERROR"
	ErrCategoryResource  = "RESOURCE ERROR"
	ErrCategoryUser      = "USER ERROR"
	ErrCategoryBreak     = "BREAK"
)

// categoryNumbers maps a category to the value reported by MM.ERRNO.
var categoryNumbers = map[string]int{
	ErrCategorySyntax:    1,
	ErrCategoryType:      2,
	ErrCategoryName:      3,
	ErrCategoryBounds:    4,
	ErrCategoryStructure: 5,
	ErrCategoryResource:  6,
	ErrCategoryBreak:     7,
	ErrCategoryUser:      16,
}

// FriendlyErrorTexts maps error codes to message templates. In a template
// '$' takes a string argument, '%' a number and '@' a single character.
var FriendlyErrorTexts = map[string]string{
	// syntax
	"SYNTAX_ERROR":        "Syntax error",
	"UNEXPECTED_TEXT":     "Unexpected text: $",
	"UNEXPECTED_TOKEN":    "Unexpected $",
	"EXPECTED_EQUALS":     "Expected =",
	"EXPECTED_TO":         "Expected TO",
	"EXPECTED_THEN":       "Expected THEN",
	"EXPECTED_EXPRESSION": "Expected an expression",
	"EXPECTED_VARIABLE":   "Expected a variable name",
	"MISSING_PARENTHESIS": "Expected closing bracket",
	"INVALID_NAME":        "Invalid name: $",
	"NAME_TOO_LONG":       "Name too long: $",
	"NUMBER_TOO_LONG":     "Number too long",
	"INVALID_NUMBER":      "Invalid number: $",
	"INVALID_LINE_NUMBER": "Invalid line number",
	"LINE_TOO_LONG":       "Line too long",
	"LINE_ORDER":          "Line % is out of order",
	"UNKNOWN_COMMAND":     "Unknown command",
	"INVALID_ARGUMENT":    "Invalid argument",
	"ARGUMENT_COUNT":      "Argument count",
	"INVALID_LABEL":       "Invalid label",
	"DUPLICATE_LABEL":     "Duplicate label $",
	"INVALID_OPTION":      "Invalid OPTION: $",
	"INVALID_PARAMETER":   "Invalid parameter: $",
	"INVALID_TYPE":        "Invalid type",
	"INVALID_PROGRAM":     "Invalid tokenized program at offset %",
	"BASE_AFTER_DIM":      "OPTION BASE must come before arrays are declared",
	"INVALID_HERE":        "$ is not valid here",
	// type
	"TYPE_MISMATCH":         "Type mismatch",
	"EXPECTED_NUMBER":       "Expected a number",
	"EXPECTED_STRING":       "Expected a string",
	"CONFLICTING_TYPE":      "Conflicting type for $",
	"CONSTANT_ASSIGN":       "Cannot change a constant: $",
	"INCOMPATIBLE_OPERATOR": "Incompatible types for $",
	"EXPECTED_ARRAY":        "Expected an array for $",
	// name
	"UNKNOWN_VARIABLE":     "$ is not declared",
	"ALREADY_DECLARED":     "$ already declared",
	"NOT_AN_ARRAY":         "$ is not an array",
	"IS_AN_ARRAY":          "$ is an array",
	"ARRAY_NOT_DECLARED":   "Array $ is not declared",
	"DUPLICATE_DEFINITION": "SUB/FUNCTION $ already defined",
	"NAME_IS_SUB":          "$ is the name of a SUB or FUNCTION",
	"UNKNOWN_SUB":          "Unknown SUB $",
	"LABEL_NOT_FOUND":      "Cannot find label $",
	"LINE_NOT_FOUND":       "Line % does not exist",
	"NO_DEFAULT_TYPE":      "Variable type not specified: $",
	// bounds
	"INDEX_OUT_OF_BOUNDS": "Index out of bounds",
	"DIMENSION_COUNT":     "Array dimensions do not match for $",
	"INVALID_DIMENSION":   "Invalid array dimension",
	"STRING_TOO_LONG":     "String too long",
	"OUT_OF_DATA":         "No DATA to read",
	"NUMBER_OUT_OF_RANGE": "Number out of bounds",
	"DIVISION_BY_ZERO":    "Divide by zero",
	// structure
	"NEXT_WITHOUT_FOR":     "NEXT without FOR",
	"FOR_WITHOUT_NEXT":     "FOR without matching NEXT",
	"LOOP_WITHOUT_DO":      "LOOP without DO",
	"DO_WITHOUT_LOOP":      "DO without matching LOOP",
	"WEND_WITHOUT_WHILE":   "WEND without WHILE",
	"WHILE_WITHOUT_WEND":   "WHILE without matching WEND",
	"IF_WITHOUT_ENDIF":     "IF without matching ENDIF",
	"SELECT_WITHOUT_END":   "SELECT CASE without END SELECT",
	"RETURN_WITHOUT_GOSUB": "RETURN without GOSUB",
	"SUB_WITHOUT_END":      "$ without matching END",
	"FUNCTION_NOT_ENDED":   "FUNCTION $ did not reach END FUNCTION",
	"EXIT_OUTSIDE_LOOP":    "EXIT $ outside of a loop",
	"LOOP_CONDITION_TWICE": "LOOP has a condition already in DO",
	"TOO_MANY_FOR":         "Too many nested FOR loops",
	"TOO_MANY_DO":          "Too many nested DO or WHILE loops",
	"TOO_MANY_GOSUB":       "Too many nested GOSUB",
	"CALL_DEPTH":           "Too many nested SUB/FUNCTION calls",
	"TOO_MANY_ARGUMENTS":   "Too many arguments to $",
	// resource
	"TOO_MANY_VARIABLES":     "Too many variables",
	"OUT_OF_MEMORY":          "Not enough memory",
	"EXPRESSION_TOO_COMPLEX": "Expression is too complex",
	"ARRAY_TOO_LARGE":        "Array too large",
	"STREAM_NOT_OPEN":        "Stream % is not open",
	"INPUT_CLOSED":           "End of input",
	// user / break
	"USER_ERROR": "$",
	"BREAK":      "Break",
}

// BASICError is a structured runtime or load-time error.
type BASICError struct {
	Category   string // error category, e.g. "SYNTAX ERROR"
	Code       string // key into FriendlyErrorTexts
	Message    string // message with substitutions applied
	Number     int    // value reported by MM.ERRNO
	LineNumber int    // BASIC line number, 0 when the line has none
	SourceLine int    // 1-based index of the line inside its region
	Line       string // the failing line, detokenized
	Library    bool   // failing line is in the library region
	Immediate  bool   // failing line was typed in immediate mode
	located    bool
}

// Error implements the error interface.
func (be *BASICError) Error() string {
	switch {
	case be.Library:
		return be.Category + " IN LIBRARY: " + be.Message
	case be.LineNumber > 0:
		return be.Category + " IN LINE " + strconv.Itoa(be.LineNumber) + ": " + be.Message
	default:
		return be.Category + ": " + be.Message
	}
}

// Report renders the failing line above the error message.
func (be *BASICError) Report() string {
	var sb strings.Builder
	switch {
	case be.Library:
		sb.WriteString("[LIBRARY] ")
		sb.WriteString(be.Line)
		sb.WriteByte('\n')
	case be.LineNumber > 0 || be.SourceLine > 0:
		n := be.LineNumber
		if n == 0 {
			n = be.SourceLine
		}
		sb.WriteString("[" + strconv.Itoa(n) + "] ")
		sb.WriteString(be.Line)
		sb.WriteByte('\n')
	}
	sb.WriteString("Error: ")
	sb.WriteString(be.Message)
	return sb.String()
}

// newError builds a BASICError from a code and its template arguments.
func newError(category, code string, args ...interface{}) *BASICError {
	tmpl, ok := FriendlyErrorTexts[code]
	if !ok {
		tmpl = code
	}
	return &BASICError{
		Category: category,
		Code:     code,
		Message:  substitute(tmpl, args...),
		Number:   categoryNumbers[category],
	}
}

// userError is raised by the ERROR command.
func userError(msg string, number int) *BASICError {
	be := newError(ErrCategoryUser, "USER_ERROR", msg)
	if number > 0 {
		be.Number = number
	}
	return be
}

// substitute replaces '$', '%' and '@' placeholders in order.
func substitute(tmpl string, args ...interface{}) string {
	if len(args) == 0 {
		return tmpl
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if (c != '$' && c != '%' && c != '@') || n >= len(args) {
			sb.WriteByte(c)
			continue
		}
		arg := args[n]
		n++
		switch c {
		case '$':
			switch v := arg.(type) {
			case string:
				sb.WriteString(v)
			case []byte:
				sb.Write(v)
			default:
				sb.WriteString(fmt.Sprint(v))
			}
		case '%':
			switch v := arg.(type) {
			case int:
				sb.WriteString(strconv.Itoa(v))
			case int64:
				sb.WriteString(strconv.FormatInt(v, 10))
			case float64:
				sb.WriteString(formatFloat(v))
			default:
				sb.WriteString(fmt.Sprint(v))
			}
		case '@':
			switch v := arg.(type) {
			case byte:
				sb.WriteByte(v)
			case rune:
				sb.WriteRune(v)
			default:
				sb.WriteString(fmt.Sprint(v))
			}
		}
	}
	return sb.String()
}

// AsBASICError extracts a *BASICError from err.
func AsBASICError(err error) (*BASICError, bool) {
	var be *BASICError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// skippable reports whether error skipping may swallow err.
func skippable(err error) bool {
	be, ok := AsBASICError(err)
	return ok && be.Category != ErrCategoryBreak
}
