package basic

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
)

// evaluate evaluates the expression at p and coerces the result to want.
// The expression must be followed by the end of the statement, a comma,
// a closing bracket, a semicolon, a comment or a keyword.
func (b *Interpreter) evaluate(p int, want VarType) (Value, int, error) {
	v, q, err := b.doExpr(p, 0)
	if err != nil {
		return Value{}, q, err
	}
	q = b.skipSpace(q)
	switch c := b.mem[q]; {
	case c == 0, c == ',', c == ')', c == ';', c == '\'':
	case isKeywordToken(c):
	default:
		return Value{}, q, newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(q))
	}
	if want != TypeAny {
		if v, err = v.convert(want); err != nil {
			return Value{}, q, err
		}
	}
	return v, q, nil
}

// evalNumber evaluates a numeric expression as a float.
func (b *Interpreter) evalNumber(p int) (float64, int, error) {
	v, q, err := b.evaluate(p, TypeFloat)
	return v.F, q, err
}

// evalInt evaluates a numeric expression as an integer.
func (b *Interpreter) evalInt(p int) (int64, int, error) {
	v, q, err := b.evaluate(p, TypeInt)
	return v.I, q, err
}

// evalString evaluates a string expression.
func (b *Interpreter) evalString(p int) ([]byte, int, error) {
	v, q, err := b.evaluate(p, TypeString)
	return v.S, q, err
}

// evalTruth evaluates a numeric condition.
func (b *Interpreter) evalTruth(p int) (bool, int, error) {
	v, q, err := b.evaluate(p, TypeNumber)
	if err != nil {
		return false, q, err
	}
	t, err := v.Truth()
	return t, q, err
}

// doExpr parses operators of at least minPrec by precedence climbing.
func (b *Interpreter) doExpr(p int, minPrec int) (Value, int, error) {
	b.exprDepth++
	defer func() { b.exprDepth-- }()
	if b.exprDepth > b.limits.MaxExprDepth {
		return Value{}, p, newError(ErrCategoryResource, "EXPRESSION_TOO_COMPLEX")
	}
	lhs, p, err := b.getValue(p)
	if err != nil {
		return Value{}, p, err
	}
	for {
		q := b.skipSpace(p)
		op := binaryOperator(b.mem[q])
		if op == nil || op.Precedence < minPrec {
			return lhs, p, nil
		}
		id := b.mem[q]
		rhs, r, err := b.doExpr(q+1, op.Precedence+1)
		if err != nil {
			return Value{}, r, err
		}
		if lhs, err = b.applyOp(id, lhs, rhs); err != nil {
			return Value{}, r, err
		}
		p = r
	}
}

// getValue parses one operand.
func (b *Interpreter) getValue(p int) (Value, int, error) {
	p = b.skipSpace(p)
	c := b.mem[p]
	switch {
	case c == tokNOT:
		v, q, err := b.doExpr(p+1, precCompare)
		if err != nil {
			return Value{}, q, err
		}
		t, err := v.Truth()
		if err != nil {
			return Value{}, q, newError(ErrCategoryType, "INCOMPATIBLE_OPERATOR", "NOT")
		}
		return boolValue(!t), q, nil
	case c == tokSUBTRACT:
		v, q, err := b.getValue(p + 1)
		if err != nil {
			return Value{}, q, err
		}
		switch v.Type {
		case TypeInt:
			if v.I == math.MinInt64 {
				return Value{}, q, errOverflow()
			}
			return IntValue(-v.I), q, nil
		case TypeFloat:
			return FloatValue(-v.F), q, nil
		}
		return Value{}, q, newError(ErrCategoryType, "INCOMPATIBLE_OPERATOR", "-")
	case c == tokADD:
		v, q, err := b.getValue(p + 1)
		if err == nil && v.Type == TypeString {
			err = newError(ErrCategoryType, "INCOMPATIBLE_OPERATOR", "+")
		}
		return v, q, err
	case c == '(':
		b.exprDepth++
		v, q, err := b.doExpr(p+1, 0)
		b.exprDepth--
		if err != nil {
			return Value{}, q, err
		}
		q = b.skipSpace(q)
		if b.mem[q] != ')' {
			return Value{}, q, newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
		}
		return v, q + 1, nil
	case c >= TokenBase:
		e := tokenByID(c)
		if e != nil && e.fn != nil && e.Flags&(TokFunction|TokFuncNoArgs) != 0 {
			return e.fn(b, p+1)
		}
		return Value{}, p, newError(ErrCategorySyntax, "UNEXPECTED_TOKEN", tokenName(c))
	case c == '"':
		q := p + 1
		for b.mem[q] != 0 && b.mem[q] != '"' {
			q++
		}
		v, err := b.tempString(b.mem[p+1 : q])
		if b.mem[q] == '"' {
			q++
		}
		return v, q, err
	case c == '&':
		return b.radixLiteral(p)
	case isDigit(c) || c == '.':
		return b.numberLiteral(p)
	case isNameStart(c):
		return b.nameValue(p)
	}
	return Value{}, p, newError(ErrCategorySyntax, "EXPECTED_EXPRESSION")
}

// numberLiteral parses a decimal literal. A '.' or exponent makes it a float.
func (b *Interpreter) numberLiteral(p int) (Value, int, error) {
	q := p
	isFloat := false
	for isDigit(b.mem[q]) || b.mem[q] == '.' {
		if b.mem[q] == '.' {
			isFloat = true
		}
		q++
	}
	if b.mem[q] == 'E' {
		k := q + 1
		if b.mem[k] == '+' || b.mem[k] == '-' {
			k++
		}
		if isDigit(b.mem[k]) {
			for isDigit(b.mem[k]) {
				k++
			}
			q, isFloat = k, true
		}
	}
	lit := string(b.mem[p:q])
	if len(lit) > MaxNumberLen {
		return Value{}, q, newError(ErrCategorySyntax, "NUMBER_TOO_LONG")
	}
	if !isFloat {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return IntValue(i), q, nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Value{}, q, newError(ErrCategorySyntax, "INVALID_NUMBER", lit)
	}
	return FloatValue(f), q, nil
}

// radixLiteral parses &H, &O and &B literals.
func (b *Interpreter) radixLiteral(p int) (Value, int, error) {
	base := 0
	switch b.mem[p+1] {
	case 'H':
		base = 16
	case 'O':
		base = 8
	case 'B':
		base = 2
	default:
		return Value{}, p, newError(ErrCategorySyntax, "INVALID_NUMBER", "&")
	}
	q := p + 2
	for isDigit(b.mem[q]) || isAlpha(b.mem[q]) {
		q++
	}
	lit := string(b.mem[p+2 : q])
	u, err := strconv.ParseUint(lit, base, 64)
	if err != nil {
		return Value{}, q, newError(ErrCategorySyntax, "INVALID_NUMBER", string(b.mem[p:q]))
	}
	return IntValue(int64(u)), q, nil
}

// nameValue resolves a user FUNCTION call or a variable.
func (b *Interpreter) nameValue(p int) (Value, int, error) {
	name, suffix, q, err := b.parseName(p)
	if err != nil {
		return Value{}, q, err
	}
	if def := b.findDef(name); def != nil {
		// inside the function body a bare name is the return slot
		bare := b.mem[q] != '('
		if !(bare && b.returnSlot(name) != nil) {
			if !def.IsFunc {
				return Value{}, q, newError(ErrCategoryName, "NAME_IS_SUB", name)
			}
			if suffix != 0 && suffix != def.Type.Kind() {
				return Value{}, q, newError(ErrCategoryType, "CONFLICTING_TYPE", name)
			}
			return b.callFunction(def, q)
		}
	}
	ref, q, err := b.parseVarRef(p)
	if err != nil {
		return Value{}, q, err
	}
	s, err := b.resolveSlot(ref, VarFind)
	if err != nil {
		return Value{}, q, err
	}
	if ref.empty {
		return Value{}, q, newError(ErrCategorySyntax, "INVALID_ARGUMENT")
	}
	v, err := b.loadValue(s)
	return v, q, err
}

// returnSlot returns the FUNCTION return record for name at this level.
func (b *Interpreter) returnSlot(name string) *Variable {
	local, _ := b.lookupVar(name)
	if local != nil && local.Type&TypeFunRet != 0 {
		return local
	}
	return nil
}

// applyOp applies binary operator id after coercing the operands.
func (b *Interpreter) applyOp(id byte, l, r Value) (Value, error) {
	e := tokenByID(id)
	if l.Type == TypeString || r.Type == TypeString {
		if l.Type != r.Type {
			return Value{}, newError(ErrCategoryType, "TYPE_MISMATCH")
		}
		if e.Flags&TokString == 0 {
			return Value{}, newError(ErrCategoryType, "INCOMPATIBLE_OPERATOR", e.Name)
		}
		return e.op(b, l, r)
	}
	acceptsFloat, acceptsInt := e.Flags&TokNumber != 0, e.Flags&TokInteger != 0
	var err error
	switch {
	case acceptsFloat && acceptsInt:
		if l.Type != r.Type {
			l, r = FloatValue(numFloat(l)), FloatValue(numFloat(r))
		}
	case acceptsFloat:
		l, r = FloatValue(numFloat(l)), FloatValue(numFloat(r))
	case acceptsInt:
		if l, err = l.convert(TypeInt); err != nil {
			return Value{}, err
		}
		if r, err = r.convert(TypeInt); err != nil {
			return Value{}, err
		}
	}
	return e.op(b, l, r)
}

// errOverflow reports an integer result outside the 64-bit range.
func errOverflow() error {
	return newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
}

func intResult(n int64, ok bool) (Value, error) {
	if !ok {
		return Value{}, errOverflow()
	}
	return IntValue(n), nil
}

func addInt(a, b int64) (int64, bool) {
	s := a + b
	return s, !((b > 0 && s < a) || (b < 0 && s > a))
}

func subInt(a, b int64) (int64, bool) {
	s := a - b
	return s, !((b < 0 && s < a) || (b > 0 && s > a))
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	return c, c/b == a
}

// numFloat widens a numeric value.
func numFloat(v Value) float64 {
	if v.Type == TypeInt {
		return float64(v.I)
	}
	return v.F
}

// operatorFuncs holds the binary operator implementations.
var operatorFuncs = map[byte]opFunc{
	tokPOW: func(b *Interpreter, l, r Value) (Value, error) {
		if l.Type == TypeInt && r.I >= 0 {
			res, base, exp := int64(1), l.I, r.I
			ok := true
			for exp > 0 && ok {
				if exp&1 == 1 {
					res, ok = mulInt(res, base)
				}
				if exp >>= 1; exp > 0 && ok {
					base, ok = mulInt(base, base)
				}
			}
			if !ok {
				return Value{}, errOverflow()
			}
			return IntValue(res), nil
		}
		lf, _ := l.Float()
		rf, _ := r.Float()
		return FloatValue(math.Pow(lf, rf)), nil
	},
	tokMUL: func(b *Interpreter, l, r Value) (Value, error) {
		if l.Type == TypeInt {
			return intResult(mulInt(l.I, r.I))
		}
		return FloatValue(l.F * r.F), nil
	},
	tokDIV: func(b *Interpreter, l, r Value) (Value, error) {
		if r.F == 0 {
			return Value{}, newError(ErrCategoryBounds, "DIVISION_BY_ZERO")
		}
		return FloatValue(l.F / r.F), nil
	},
	tokIDIV: func(b *Interpreter, l, r Value) (Value, error) {
		if r.I == 0 {
			return Value{}, newError(ErrCategoryBounds, "DIVISION_BY_ZERO")
		}
		if l.I == math.MinInt64 && r.I == -1 {
			return Value{}, errOverflow()
		}
		return IntValue(l.I / r.I), nil
	},
	tokMOD: func(b *Interpreter, l, r Value) (Value, error) {
		if r.I == 0 {
			return Value{}, newError(ErrCategoryBounds, "DIVISION_BY_ZERO")
		}
		return IntValue(l.I % r.I), nil
	},
	tokADD: func(b *Interpreter, l, r Value) (Value, error) {
		switch l.Type {
		case TypeString:
			return b.tempString(l.S, r.S)
		case TypeInt:
			return intResult(addInt(l.I, r.I))
		}
		return FloatValue(l.F + r.F), nil
	},
	tokSUBTRACT: func(b *Interpreter, l, r Value) (Value, error) {
		if l.Type == TypeInt {
			return intResult(subInt(l.I, r.I))
		}
		return FloatValue(l.F - r.F), nil
	},
	tokSHL: func(b *Interpreter, l, r Value) (Value, error) { return IntValue(l.I << uint64(r.I&63)), nil },
	tokSHR: func(b *Interpreter, l, r Value) (Value, error) { return IntValue(l.I >> uint64(r.I&63)), nil },
	tokAND: func(b *Interpreter, l, r Value) (Value, error) { return IntValue(l.I & r.I), nil },
	tokOR:  func(b *Interpreter, l, r Value) (Value, error) { return IntValue(l.I | r.I), nil },
	tokXOR: func(b *Interpreter, l, r Value) (Value, error) { return IntValue(l.I ^ r.I), nil },
	tokEQ:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) == 0), nil },
	tokNE:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) != 0), nil },
	tokLT:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) < 0), nil },
	tokGT:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) > 0), nil },
	tokLE:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) <= 0), nil },
	tokGE:  func(b *Interpreter, l, r Value) (Value, error) { return boolValue(compare(l, r) >= 0), nil },
}

// compare orders two values of the same kind.
func compare(l, r Value) int {
	switch l.Type {
	case TypeString:
		return bytes.Compare(l.S, r.S)
	case TypeInt:
		switch {
		case l.I < r.I:
			return -1
		case l.I > r.I:
			return 1
		}
		return 0
	}
	switch {
	case l.F < r.F:
		return -1
	case l.F > r.F:
		return 1
	}
	return 0
}

// splitArgs splits the text between p and end on top-level commas,
// honouring brackets and quotes. It returns the start of each argument and
// the position after the last one.
func (b *Interpreter) splitArgs(p, end int) [][2]int {
	var args [][2]int
	depth := 0
	quoted := false
	start := p
	for q := p; q < end; q++ {
		c := b.mem[q]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(' || (c >= TokenBase && strings.HasSuffix(tokenName(c), "(")):
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			args = append(args, [2]int{start, q})
			start = q + 1
		}
	}
	return append(args, [2]int{start, end})
}

// matchParen returns the position of the ')' closing the bracket opened
// before p.
func (b *Interpreter) matchParen(p int) (int, error) {
	depth := 1
	quoted := false
	for q := p; b.mem[q] != 0; q++ {
		c := b.mem[q]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(' || (c >= TokenBase && strings.HasSuffix(tokenName(c), "(")):
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return q, nil
			}
		}
	}
	return 0, newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
}

// isBlank reports whether mem[p:end] holds only blanks.
func (b *Interpreter) isBlank(p, end int) bool {
	for ; p < end; p++ {
		if b.mem[p] != ' ' {
			return false
		}
	}
	return true
}
