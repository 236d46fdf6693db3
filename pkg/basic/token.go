package basic

import "strings"

// Structural markers in the token stream.
const (
	TokenBase   = 0x80 // first token id
	tokNewLine  = 0x01 // start of a line
	tokLineNum  = 0x02 // followed by two bytes, big-endian line number
	tokLabel    = 0x03 // followed by a length byte and the label characters
	tokReserved = 0xFF // erased-flash terminator
)

// Token flags.
const (
	TokCommand    = 1 << iota // matched at statement start
	TokKeyword                // non-operator keyword matched mid-statement
	TokOperator               // binary or unary operator
	TokFunction               // built-in function, name includes "("
	TokFuncNoArgs             // built-in function without arguments
	TokNumber                 // returns / accepts a float
	TokInteger                // returns / accepts an integer
	TokString                 // returns / accepts a string
	TokUnary                  // operator used only in prefix position
)

const tokAnyKind = TokNumber | TokInteger | TokString

// Command, keyword, operator and function ids. The order here is the order
// of tokenTable.
const (
	tokLET byte = TokenBase + iota
	tokPRINT
	tokIF
	tokELSEIF
	tokELSE
	tokENDIF
	tokFOR
	tokNEXT
	tokDO
	tokLOOP
	tokWHILE
	tokWEND
	tokEXITFOR
	tokEXITDO
	tokEXITSUB
	tokEXITFUNCTION
	tokGOTO
	tokGOSUB
	tokRETURN
	tokIRETURN
	tokEND
	tokENDSUB
	tokENDFUNCTION
	tokSUB
	tokFUNCTION
	tokSELECTCASE
	tokCASE
	tokCASEELSE
	tokENDSELECT
	tokDIM
	tokLOCAL
	tokSTATIC
	tokCONST
	tokOPTION
	tokON
	tokERROR
	tokREM
	tokDATA
	tokREAD
	tokRESTORE
	tokINPUT
	tokLINEINPUT
	tokCALL
	tokINC
	tokRANDOMIZE
	tokCLEAR
	tokERASE
	tokTRACE

	tokTHEN
	tokTO
	tokSTEP
	tokUNTIL
	tokAS
	tokIS
	tokBYVAL
	tokBYREF
	tokINTEGER
	tokFLOAT
	tokSTRING
	tokLENGTH

	tokPOW
	tokMUL
	tokDIV
	tokIDIV
	tokMOD
	tokADD
	tokSUBTRACT
	tokSHL
	tokSHR
	tokEQ
	tokNE
	tokLT
	tokGT
	tokLE
	tokGE
	tokAND
	tokOR
	tokXOR
	tokNOT

	tokABS
	tokINT
	tokFIX
	tokCINT
	tokSGN
	tokSQR
	tokSIN
	tokCOS
	tokTAN
	tokATN
	tokEXP
	tokLOG
	tokRND
	tokMAX
	tokMIN
	tokLEN
	tokLEFT
	tokRIGHT
	tokMID
	tokCHR
	tokASC
	tokSTR
	tokVAL
	tokHEX
	tokOCT
	tokBIN
	tokINSTR
	tokUCASE
	tokLCASE
	tokSPACE
	tokSTRINGFN

	tokRNDNOARG
	tokTIMER
	tokPI
	tokERRNO
	tokERRMSG

	tokLast
)

type (
	cmdFunc func(b *Interpreter, p int) error
	fnFunc  func(b *Interpreter, p int) (Value, int, error)
	opFunc  func(b *Interpreter, l, r Value) (Value, error)
)

// tokenEntry describes one token id.
type tokenEntry struct {
	Name       string
	Flags      int
	Precedence int
	cmd        cmdFunc
	fn         fnFunc
	op         opFunc
}

const (
	cmdFlags = TokCommand
	kwFlags  = TokKeyword
	numFn    = TokFunction | TokNumber
	intFn    = TokFunction | TokInteger
	strFn    = TokFunction | TokString
	mixedOp  = TokOperator | TokNumber | TokInteger
	intOp    = TokOperator | TokInteger
	cmpOp    = TokOperator | tokAnyKind
)

// Precedence levels, higher binds tighter.
const (
	precOr      = 0
	precAnd     = 1
	precCompare = 2
	precShift   = 3
	precAdd     = 4
	precMul     = 5
	precPow     = 6
)

func idx(id byte) int { return int(id) - TokenBase }

var tokenTable = [tokLast - TokenBase]tokenEntry{
	tokLET - TokenBase:          {Name: "LET", Flags: cmdFlags},
	tokPRINT - TokenBase:        {Name: "PRINT", Flags: cmdFlags},
	tokIF - TokenBase:           {Name: "IF", Flags: cmdFlags},
	tokELSEIF - TokenBase:       {Name: "ELSE IF", Flags: cmdFlags},
	tokELSE - TokenBase:         {Name: "ELSE", Flags: cmdFlags | kwFlags},
	tokENDIF - TokenBase:        {Name: "END IF", Flags: cmdFlags},
	tokFOR - TokenBase:          {Name: "FOR", Flags: cmdFlags},
	tokNEXT - TokenBase:         {Name: "NEXT", Flags: cmdFlags},
	tokDO - TokenBase:           {Name: "DO", Flags: cmdFlags},
	tokLOOP - TokenBase:         {Name: "LOOP", Flags: cmdFlags},
	tokWHILE - TokenBase:        {Name: "WHILE", Flags: cmdFlags | kwFlags},
	tokWEND - TokenBase:         {Name: "WEND", Flags: cmdFlags},
	tokEXITFOR - TokenBase:      {Name: "EXIT FOR", Flags: cmdFlags},
	tokEXITDO - TokenBase:       {Name: "EXIT DO", Flags: cmdFlags},
	tokEXITSUB - TokenBase:      {Name: "EXIT SUB", Flags: cmdFlags},
	tokEXITFUNCTION - TokenBase: {Name: "EXIT FUNCTION", Flags: cmdFlags},
	tokGOTO - TokenBase:         {Name: "GOTO", Flags: cmdFlags | kwFlags},
	tokGOSUB - TokenBase:        {Name: "GOSUB", Flags: cmdFlags | kwFlags},
	tokRETURN - TokenBase:       {Name: "RETURN", Flags: cmdFlags},
	tokIRETURN - TokenBase:      {Name: "IRETURN", Flags: cmdFlags},
	tokEND - TokenBase:          {Name: "END", Flags: cmdFlags},
	tokENDSUB - TokenBase:       {Name: "END SUB", Flags: cmdFlags},
	tokENDFUNCTION - TokenBase:  {Name: "END FUNCTION", Flags: cmdFlags},
	tokSUB - TokenBase:          {Name: "SUB", Flags: cmdFlags},
	tokFUNCTION - TokenBase:     {Name: "FUNCTION", Flags: cmdFlags},
	tokSELECTCASE - TokenBase:   {Name: "SELECT CASE", Flags: cmdFlags},
	tokCASE - TokenBase:         {Name: "CASE", Flags: cmdFlags},
	tokCASEELSE - TokenBase:     {Name: "CASE ELSE", Flags: cmdFlags},
	tokENDSELECT - TokenBase:    {Name: "END SELECT", Flags: cmdFlags},
	tokDIM - TokenBase:          {Name: "DIM", Flags: cmdFlags},
	tokLOCAL - TokenBase:        {Name: "LOCAL", Flags: cmdFlags},
	tokSTATIC - TokenBase:       {Name: "STATIC", Flags: cmdFlags},
	tokCONST - TokenBase:        {Name: "CONST", Flags: cmdFlags},
	tokOPTION - TokenBase:       {Name: "OPTION", Flags: cmdFlags},
	tokON - TokenBase:           {Name: "ON", Flags: cmdFlags},
	tokERROR - TokenBase:        {Name: "ERROR", Flags: cmdFlags | kwFlags},
	tokREM - TokenBase:          {Name: "REM", Flags: cmdFlags},
	tokDATA - TokenBase:         {Name: "DATA", Flags: cmdFlags},
	tokREAD - TokenBase:         {Name: "READ", Flags: cmdFlags},
	tokRESTORE - TokenBase:      {Name: "RESTORE", Flags: cmdFlags},
	tokINPUT - TokenBase:        {Name: "INPUT", Flags: cmdFlags},
	tokLINEINPUT - TokenBase:    {Name: "LINE INPUT", Flags: cmdFlags},
	tokCALL - TokenBase:         {Name: "CALL", Flags: cmdFlags},
	tokINC - TokenBase:          {Name: "INC", Flags: cmdFlags},
	tokRANDOMIZE - TokenBase:    {Name: "RANDOMIZE", Flags: cmdFlags},
	tokCLEAR - TokenBase:        {Name: "CLEAR", Flags: cmdFlags},
	tokERASE - TokenBase:        {Name: "ERASE", Flags: cmdFlags},
	tokTRACE - TokenBase:        {Name: "TRACE", Flags: cmdFlags},

	tokTHEN - TokenBase:    {Name: "THEN", Flags: kwFlags},
	tokTO - TokenBase:      {Name: "TO", Flags: kwFlags},
	tokSTEP - TokenBase:    {Name: "STEP", Flags: kwFlags},
	tokUNTIL - TokenBase:   {Name: "UNTIL", Flags: kwFlags},
	tokAS - TokenBase:      {Name: "AS", Flags: kwFlags},
	tokIS - TokenBase:      {Name: "IS", Flags: kwFlags},
	tokBYVAL - TokenBase:   {Name: "BYVAL", Flags: kwFlags},
	tokBYREF - TokenBase:   {Name: "BYREF", Flags: kwFlags},
	tokINTEGER - TokenBase: {Name: "INTEGER", Flags: kwFlags},
	tokFLOAT - TokenBase:   {Name: "FLOAT", Flags: kwFlags},
	tokSTRING - TokenBase:  {Name: "STRING", Flags: kwFlags},
	tokLENGTH - TokenBase:  {Name: "LENGTH", Flags: kwFlags},

	tokPOW - TokenBase:      {Name: "^", Flags: mixedOp, Precedence: precPow},
	tokMUL - TokenBase:      {Name: "*", Flags: mixedOp, Precedence: precMul},
	tokDIV - TokenBase:      {Name: "/", Flags: TokOperator | TokNumber, Precedence: precMul},
	tokIDIV - TokenBase:     {Name: "\\", Flags: intOp, Precedence: precMul},
	tokMOD - TokenBase:      {Name: "MOD", Flags: intOp, Precedence: precMul},
	tokADD - TokenBase:      {Name: "+", Flags: mixedOp | TokString, Precedence: precAdd},
	tokSUBTRACT - TokenBase: {Name: "-", Flags: mixedOp, Precedence: precAdd},
	tokSHL - TokenBase:      {Name: "<<", Flags: intOp, Precedence: precShift},
	tokSHR - TokenBase:      {Name: ">>", Flags: intOp, Precedence: precShift},
	tokEQ - TokenBase:       {Name: "=", Flags: cmpOp, Precedence: precCompare},
	tokNE - TokenBase:       {Name: "<>", Flags: cmpOp, Precedence: precCompare},
	tokLT - TokenBase:       {Name: "<", Flags: cmpOp, Precedence: precCompare},
	tokGT - TokenBase:       {Name: ">", Flags: cmpOp, Precedence: precCompare},
	tokLE - TokenBase:       {Name: "<=", Flags: cmpOp, Precedence: precCompare},
	tokGE - TokenBase:       {Name: ">=", Flags: cmpOp, Precedence: precCompare},
	tokAND - TokenBase:      {Name: "AND", Flags: intOp, Precedence: precAnd},
	tokOR - TokenBase:       {Name: "OR", Flags: intOp, Precedence: precOr},
	tokXOR - TokenBase:      {Name: "XOR", Flags: intOp, Precedence: precOr},
	tokNOT - TokenBase:      {Name: "NOT", Flags: TokOperator | TokUnary | TokInteger, Precedence: precCompare},

	tokABS - TokenBase:      {Name: "ABS(", Flags: numFn},
	tokINT - TokenBase:      {Name: "INT(", Flags: numFn},
	tokFIX - TokenBase:      {Name: "FIX(", Flags: numFn},
	tokCINT - TokenBase:     {Name: "CINT(", Flags: intFn},
	tokSGN - TokenBase:      {Name: "SGN(", Flags: intFn},
	tokSQR - TokenBase:      {Name: "SQR(", Flags: numFn},
	tokSIN - TokenBase:      {Name: "SIN(", Flags: numFn},
	tokCOS - TokenBase:      {Name: "COS(", Flags: numFn},
	tokTAN - TokenBase:      {Name: "TAN(", Flags: numFn},
	tokATN - TokenBase:      {Name: "ATN(", Flags: numFn},
	tokEXP - TokenBase:      {Name: "EXP(", Flags: numFn},
	tokLOG - TokenBase:      {Name: "LOG(", Flags: numFn},
	tokRND - TokenBase:      {Name: "RND(", Flags: numFn},
	tokMAX - TokenBase:      {Name: "MAX(", Flags: numFn},
	tokMIN - TokenBase:      {Name: "MIN(", Flags: numFn},
	tokLEN - TokenBase:      {Name: "LEN(", Flags: intFn},
	tokLEFT - TokenBase:     {Name: "LEFT$(", Flags: strFn},
	tokRIGHT - TokenBase:    {Name: "RIGHT$(", Flags: strFn},
	tokMID - TokenBase:      {Name: "MID$(", Flags: strFn},
	tokCHR - TokenBase:      {Name: "CHR$(", Flags: strFn},
	tokASC - TokenBase:      {Name: "ASC(", Flags: intFn},
	tokSTR - TokenBase:      {Name: "STR$(", Flags: strFn},
	tokVAL - TokenBase:      {Name: "VAL(", Flags: numFn},
	tokHEX - TokenBase:      {Name: "HEX$(", Flags: strFn},
	tokOCT - TokenBase:      {Name: "OCT$(", Flags: strFn},
	tokBIN - TokenBase:      {Name: "BIN$(", Flags: strFn},
	tokINSTR - TokenBase:    {Name: "INSTR(", Flags: intFn},
	tokUCASE - TokenBase:    {Name: "UCASE$(", Flags: strFn},
	tokLCASE - TokenBase:    {Name: "LCASE$(", Flags: strFn},
	tokSPACE - TokenBase:    {Name: "SPACE$(", Flags: strFn},
	tokSTRINGFN - TokenBase: {Name: "STRING$(", Flags: strFn},

	tokRNDNOARG - TokenBase: {Name: "RND", Flags: TokFuncNoArgs | TokNumber},
	tokTIMER - TokenBase:    {Name: "TIMER", Flags: TokFuncNoArgs | TokNumber},
	tokPI - TokenBase:       {Name: "PI", Flags: TokFuncNoArgs | TokNumber},
	tokERRNO - TokenBase:    {Name: "MM.ERRNO", Flags: TokFuncNoArgs | TokInteger},
	tokERRMSG - TokenBase:   {Name: "MM.ERRMSG$", Flags: TokFuncNoArgs | TokString},
}

// init binds handlers; the handlers refer back to the table so they cannot
// appear in its initializer.
func init() {
	cmds := map[byte]cmdFunc{
		tokLET: (*Interpreter).cmdLet, tokPRINT: (*Interpreter).cmdPrint,
		tokIF: (*Interpreter).cmdIf, tokELSEIF: (*Interpreter).cmdElseIf,
		tokELSE: (*Interpreter).cmdElse, tokENDIF: (*Interpreter).cmdNop,
		tokFOR: (*Interpreter).cmdFor, tokNEXT: (*Interpreter).cmdNext,
		tokDO: (*Interpreter).cmdDo, tokLOOP: (*Interpreter).cmdLoop,
		tokWHILE: (*Interpreter).cmdWhile, tokWEND: (*Interpreter).cmdWend,
		tokEXITFOR: (*Interpreter).cmdExitFor, tokEXITDO: (*Interpreter).cmdExitDo,
		tokEXITSUB: (*Interpreter).cmdEndSub, tokEXITFUNCTION: (*Interpreter).cmdEndSub,
		tokGOTO: (*Interpreter).cmdGoto, tokGOSUB: (*Interpreter).cmdGosub,
		tokRETURN: (*Interpreter).cmdReturn, tokIRETURN: (*Interpreter).cmdReturn,
		tokEND: (*Interpreter).cmdEnd, tokENDSUB: (*Interpreter).cmdEndSub,
		tokENDFUNCTION: (*Interpreter).cmdEndSub, tokSUB: (*Interpreter).cmdSubDefinition,
		tokFUNCTION: (*Interpreter).cmdSubDefinition, tokSELECTCASE: (*Interpreter).cmdSelectCase,
		tokCASE: (*Interpreter).cmdCase, tokCASEELSE: (*Interpreter).cmdCase,
		tokENDSELECT: (*Interpreter).cmdNop, tokDIM: (*Interpreter).cmdDim,
		tokLOCAL: (*Interpreter).cmdLocal, tokSTATIC: (*Interpreter).cmdStatic,
		tokCONST: (*Interpreter).cmdConst, tokOPTION: (*Interpreter).cmdOption,
		tokON: (*Interpreter).cmdOn, tokERROR: (*Interpreter).cmdError,
		tokREM: (*Interpreter).cmdNop, tokDATA: (*Interpreter).cmdNop,
		tokREAD: (*Interpreter).cmdRead, tokRESTORE: (*Interpreter).cmdRestore,
		tokINPUT: (*Interpreter).cmdInput, tokLINEINPUT: (*Interpreter).cmdLineInput,
		tokCALL: (*Interpreter).cmdCall, tokINC: (*Interpreter).cmdInc,
		tokRANDOMIZE: (*Interpreter).cmdRandomize, tokCLEAR: (*Interpreter).cmdClear,
		tokERASE: (*Interpreter).cmdErase, tokTRACE: (*Interpreter).cmdTrace,
	}
	for id, h := range cmds {
		tokenTable[idx(id)].cmd = h
	}
	for id, h := range builtinFunctions {
		tokenTable[idx(id)].fn = h
	}
	for id, h := range operatorFuncs {
		tokenTable[idx(id)].op = h
	}
}

// tokenByID returns the table entry for a token id, nil for literals.
func tokenByID(id byte) *tokenEntry {
	if id < TokenBase || id >= tokLast {
		return nil
	}
	return &tokenTable[idx(id)]
}

// tokenName renders a token id.
func tokenName(id byte) string {
	if e := tokenByID(id); e != nil {
		return e.Name
	}
	return string(rune(id))
}

// tokenByName finds a token id by its exact canonical name.
func tokenByName(name string) (byte, bool) {
	name = strings.ToUpper(name)
	for i := range tokenTable {
		if tokenTable[i].Name == name {
			return byte(TokenBase + i), true
		}
	}
	return 0, false
}

// isKeywordToken reports whether c is a token that may end an expression.
func isKeywordToken(c byte) bool {
	e := tokenByID(c)
	return e != nil && e.Flags&TokKeyword != 0
}

// binaryOperator returns the entry for a binary operator token.
func binaryOperator(c byte) *tokenEntry {
	e := tokenByID(c)
	if e == nil || e.Flags&TokOperator == 0 || e.Flags&TokUnary != 0 {
		return nil
	}
	return e
}

// matchToken finds the longest token matching src at i. commands selects
// command tokens, otherwise keywords, operators and functions are tried.
func matchToken(src []byte, i int, commands bool) (byte, int) {
	var best byte
	bestLen := 0
	for k := range tokenTable {
		e := &tokenTable[k]
		if commands {
			if e.Flags&TokCommand == 0 {
				continue
			}
		} else if e.Flags&(TokKeyword|TokOperator|TokFunction|TokFuncNoArgs) == 0 {
			continue
		}
		if n := matchKeyword(src, i, e.Name); n > bestLen {
			best, bestLen = byte(TokenBase+k), n
		}
	}
	return best, bestLen
}

// matchKeyword returns the number of source bytes matched by kw at i, 0 when
// it does not match. A space in kw matches any run of blanks, including none.
// Keywords ending in a word character must end on a word boundary.
func matchKeyword(src []byte, i int, kw string) int {
	j := i
	for k := 0; k < len(kw); k++ {
		c := kw[k]
		if c == ' ' {
			for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
				j++
			}
			continue
		}
		if j >= len(src) || toUpper(src[j]) != c {
			return 0
		}
		j++
	}
	last := kw[len(kw)-1]
	if isNameChar(last) || last == '$' {
		if j < len(src) && (isNameChar(src[j]) || (last != '$' && isSuffix(src[j]))) {
			return 0
		}
	}
	return j - i
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool     { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }
func isNameStart(c byte) bool { return isAlpha(c) || c == '_' }
func isNameChar(c byte) bool  { return isAlpha(c) || isDigit(c) || c == '_' || c == '.' }
func isSuffix(c byte) bool    { return c == '$' || c == '%' || c == '!' }

// isWordChar reports whether c glues to an adjacent word when rendered.
func isWordChar(c byte) bool { return isNameChar(c) || isSuffix(c) }
