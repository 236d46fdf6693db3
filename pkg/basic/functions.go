package basic

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"
)

// funcArgs evaluates a built-in function's arguments up to the closing
// bracket and checks their count.
func (b *Interpreter) funcArgs(p int, min, max int) ([]Value, int, error) {
	var args []Value
	q := b.skipSpace(p)
	if b.mem[q] == ')' {
		q++
	} else {
		for {
			v, r, err := b.evaluate(q, TypeAny)
			if err != nil {
				return nil, r, err
			}
			args = append(args, v)
			if b.mem[r] == ',' {
				q = r + 1
				continue
			}
			if b.mem[r] != ')' {
				return nil, r, newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
			}
			q = r + 1
			break
		}
	}
	if len(args) < min || len(args) > max {
		return nil, q, newError(ErrCategorySyntax, "ARGUMENT_COUNT")
	}
	return args, q, nil
}

// numFunc adapts a float function of one argument.
func numFunc(f func(float64) (float64, error)) fnFunc {
	return func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		x, err := args[0].Float()
		if err != nil {
			return Value{}, q, err
		}
		r, err := f(x)
		if err != nil {
			return Value{}, q, err
		}
		return FloatValue(r), q, nil
	}
}

// strArg returns argument i as a string.
func strArg(args []Value, i int) ([]byte, error) { return args[i].Bytes() }

// intArg returns argument i as an integer.
func intArg(args []Value, i int) (int, error) {
	n, err := args[i].Int()
	return int(n), err
}

func argRange(n, lo, hi int) error {
	if n < lo || n > hi {
		return newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
	}
	return nil
}

func plain(f func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) { return f(x), nil }
}

// builtinFunctions holds the built-in function implementations.
var builtinFunctions = map[byte]fnFunc{
	tokABS: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		switch args[0].Type {
		case TypeInt:
			if args[0].I < 0 {
				return IntValue(-args[0].I), q, nil
			}
			return args[0], q, nil
		case TypeFloat:
			return FloatValue(math.Abs(args[0].F)), q, nil
		}
		return Value{}, q, newError(ErrCategoryType, "EXPECTED_NUMBER")
	},
	tokINT: numFunc(plain(math.Floor)),
	tokFIX: numFunc(plain(math.Trunc)),
	tokCINT: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		n, err := args[0].Int()
		return IntValue(n), q, err
	},
	tokSGN: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		x, err := args[0].Float()
		switch {
		case err != nil:
			return Value{}, q, err
		case x > 0:
			return IntValue(1), q, nil
		case x < 0:
			return IntValue(-1), q, nil
		}
		return IntValue(0), q, nil
	},
	tokSQR: numFunc(func(x float64) (float64, error) {
		if x < 0 {
			return 0, newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
		}
		return math.Sqrt(x), nil
	}),
	tokSIN: numFunc(plain(math.Sin)),
	tokCOS: numFunc(plain(math.Cos)),
	tokTAN: numFunc(plain(math.Tan)),
	tokATN: numFunc(plain(math.Atan)),
	tokEXP: numFunc(plain(math.Exp)),
	tokLOG: numFunc(func(x float64) (float64, error) {
		if x <= 0 {
			return 0, newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
		}
		return math.Log(x), nil
	}),
	tokRND: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 0, 1)
		if err != nil {
			return Value{}, q, err
		}
		if len(args) == 1 {
			x, err := args[0].Float()
			if err != nil {
				return Value{}, q, err
			}
			if x == 0 {
				return FloatValue(b.lastRnd), q, nil
			}
			if x < 0 {
				b.rng.Seed(int64(x))
			}
		}
		b.lastRnd = b.rng.Float64()
		return FloatValue(b.lastRnd), q, nil
	},
	tokMAX: minMax(1),
	tokMIN: minMax(-1),
	tokLEN: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		return IntValue(int64(len(s))), q, err
	},
	tokLEFT: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 2, 2)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		n, err := intArg(args, 1)
		if err == nil {
			err = argRange(n, 0, MaxStringLen)
		}
		if err != nil {
			return Value{}, q, err
		}
		return StringValue(s[:min(n, len(s))]), q, nil
	},
	tokRIGHT: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 2, 2)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		n, err := intArg(args, 1)
		if err == nil {
			err = argRange(n, 0, MaxStringLen)
		}
		if err != nil {
			return Value{}, q, err
		}
		return StringValue(s[len(s)-min(n, len(s)):]), q, nil
	},
	tokMID: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 2, 3)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		start, err := intArg(args, 1)
		if err == nil {
			err = argRange(start, 1, MaxStringLen)
		}
		if err != nil {
			return Value{}, q, err
		}
		n := MaxStringLen
		if len(args) == 3 {
			if n, err = intArg(args, 2); err == nil {
				err = argRange(n, 0, MaxStringLen)
			}
			if err != nil {
				return Value{}, q, err
			}
		}
		if start > len(s) {
			return StringValue(nil), q, nil
		}
		s = s[start-1:]
		return StringValue(s[:min(n, len(s))]), q, nil
	},
	tokCHR: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		n, err := intArg(args, 0)
		if err == nil {
			err = argRange(n, 0, 255)
		}
		if err != nil {
			return Value{}, q, err
		}
		v, err := b.tempString([]byte{byte(n)})
		return v, q, err
	},
	tokASC: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil || len(s) == 0 {
			return IntValue(0), q, err
		}
		return IntValue(int64(s[0])), q, nil
	},
	tokSTR: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		if args[0].Type == TypeString {
			return Value{}, q, newError(ErrCategoryType, "EXPECTED_NUMBER")
		}
		v, err := b.tempString([]byte(args[0].String()))
		return v, q, err
	},
	tokVAL: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		return parseNumber(strings.TrimSpace(string(s))), q, nil
	},
	tokHEX: radixFunc(16),
	tokOCT: radixFunc(8),
	tokBIN: radixFunc(2),
	tokINSTR: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 2, 3)
		if err != nil {
			return Value{}, q, err
		}
		start := 1
		if len(args) == 3 {
			if start, err = intArg(args, 0); err == nil {
				err = argRange(start, 1, MaxStringLen)
			}
			if err != nil {
				return Value{}, q, err
			}
			args = args[1:]
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		find, err := strArg(args, 1)
		if err != nil {
			return Value{}, q, err
		}
		if start > len(s) {
			return IntValue(0), q, nil
		}
		i := bytes.Index(s[start-1:], find)
		if i < 0 {
			return IntValue(0), q, nil
		}
		return IntValue(int64(i + start)), q, nil
	},
	tokUCASE: caseFunc(bytes.ToUpper),
	tokLCASE: caseFunc(bytes.ToLower),
	tokSPACE: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		n, err := intArg(args, 0)
		if err == nil {
			err = argRange(n, 0, MaxStringLen)
		}
		if err != nil {
			return Value{}, q, err
		}
		v, err := b.tempString(bytes.Repeat([]byte{' '}, n))
		return v, q, err
	},
	tokSTRINGFN: func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 2, 2)
		if err != nil {
			return Value{}, q, err
		}
		n, err := intArg(args, 0)
		if err == nil {
			err = argRange(n, 0, MaxStringLen)
		}
		if err != nil {
			return Value{}, q, err
		}
		var c byte
		if args[1].Type == TypeString {
			if len(args[1].S) == 0 {
				return Value{}, q, newError(ErrCategorySyntax, "INVALID_ARGUMENT")
			}
			c = args[1].S[0]
		} else {
			code, err := intArg(args, 1)
			if err == nil {
				err = argRange(code, 0, 255)
			}
			if err != nil {
				return Value{}, q, err
			}
			c = byte(code)
		}
		v, err := b.tempString(bytes.Repeat([]byte{c}, n))
		return v, q, err
	},

	tokRNDNOARG: func(b *Interpreter, p int) (Value, int, error) {
		b.lastRnd = b.rng.Float64()
		return FloatValue(b.lastRnd), p, nil
	},
	tokTIMER: func(b *Interpreter, p int) (Value, int, error) {
		return FloatValue(float64(time.Since(b.started).Microseconds()) / 1000), p, nil
	},
	tokPI: func(b *Interpreter, p int) (Value, int, error) {
		return FloatValue(math.Pi), p, nil
	},
	tokERRNO: func(b *Interpreter, p int) (Value, int, error) {
		return IntValue(int64(b.errNo)), p, nil
	},
	tokERRMSG: func(b *Interpreter, p int) (Value, int, error) {
		v, err := b.tempString([]byte(b.errMsg))
		return v, p, err
	},
}

// minMax builds MAX( (sign 1) and MIN( (sign -1).
func minMax(sign int) fnFunc {
	return func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 255)
		if err != nil {
			return Value{}, q, err
		}
		best := math.NaN()
		for _, a := range args {
			x, err := a.Float()
			if err != nil {
				return Value{}, q, err
			}
			if math.IsNaN(best) || (sign > 0 && x > best) || (sign < 0 && x < best) {
				best = x
			}
		}
		return FloatValue(best), q, nil
	}
}

// radixFunc builds HEX$(, OCT$( and BIN$( with an optional minimum width.
func radixFunc(base int) fnFunc {
	return func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 2)
		if err != nil {
			return Value{}, q, err
		}
		n, err := args[0].Int()
		if err != nil {
			return Value{}, q, err
		}
		s := strings.ToUpper(strconv.FormatUint(uint64(n), base))
		if len(args) == 2 {
			width, err := intArg(args, 1)
			if err == nil {
				err = argRange(width, 0, 64)
			}
			if err != nil {
				return Value{}, q, err
			}
			if len(s) < width {
				s = strings.Repeat("0", width-len(s)) + s
			}
		}
		v, err := b.tempString([]byte(s))
		return v, q, err
	}
}

// caseFunc builds UCASE$( and LCASE$(.
func caseFunc(f func([]byte) []byte) fnFunc {
	return func(b *Interpreter, p int) (Value, int, error) {
		args, q, err := b.funcArgs(p, 1, 1)
		if err != nil {
			return Value{}, q, err
		}
		s, err := strArg(args, 0)
		if err != nil {
			return Value{}, q, err
		}
		v, err := b.tempString(f(s))
		return v, q, err
	}
}

// parseNumber converts text the way VAL and READ do: the longest numeric
// prefix, 0 when there is none.
func parseNumber(s string) Value {
	if len(s) > 2 && s[0] == '&' {
		base := map[byte]int{'H': 16, 'O': 8, 'B': 2}[toUpper(s[1])]
		if base != 0 {
			if u, err := strconv.ParseUint(s[2:], base, 64); err == nil {
				return IntValue(int64(u))
			}
		}
		return IntValue(0)
	}
	end := 0
	for end < len(s) && (isDigit(s[end]) || s[end] == '.' || ((s[end] == '-' || s[end] == '+') && end == 0)) {
		end++
	}
	if end < len(s) && (s[end] == 'E' || s[end] == 'e') {
		k := end + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			end = k
		}
	}
	lit := s[:end]
	if !strings.ContainsAny(lit, ".Ee") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return IntValue(i)
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return IntValue(0)
	}
	return FloatValue(f)
}
