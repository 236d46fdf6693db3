package basic

import (
	"math"
	"strconv"
	"strings"
)

// VarType is the type bitmask of values and variables.
type VarType uint16

// Value kinds and variable modifiers.
const (
	TypeFloat VarType = 1 << iota
	TypeInt
	TypeString
	TypePtr     // storage aliases another variable
	TypeConst   // read only after creation
	TypeImplied // type came from OPTION DEFAULT
	TypeFunRet  // FUNCTION return slot

	TypeNone   VarType = 0
	TypeNumber         = TypeFloat | TypeInt
	TypeAny            = TypeNumber | TypeString
)

// Kind strips the modifier bits.
func (t VarType) Kind() VarType { return t & TypeAny }

func (t VarType) String() string {
	switch t.Kind() {
	case TypeFloat:
		return "FLOAT"
	case TypeInt:
		return "INTEGER"
	case TypeString:
		return "STRING"
	}
	return "NONE"
}

// typeFromSuffix maps a name suffix to its type.
func typeFromSuffix(c byte) VarType {
	switch c {
	case '$':
		return TypeString
	case '%':
		return TypeInt
	case '!':
		return TypeFloat
	}
	return TypeNone
}

// Value is an evaluated BASIC value.
type Value struct {
	Type VarType
	F    float64
	I    int64
	S    []byte
}

func FloatValue(f float64) Value { return Value{Type: TypeFloat, F: f} }
func IntValue(i int64) Value     { return Value{Type: TypeInt, I: i} }
func StringValue(s []byte) Value { return Value{Type: TypeString, S: s} }
func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// IsString reports whether v holds a string.
func (v Value) IsString() bool { return v.Type == TypeString }

// Float returns v as a float.
func (v Value) Float() (float64, error) {
	switch v.Type {
	case TypeFloat:
		return v.F, nil
	case TypeInt:
		return float64(v.I), nil
	}
	return 0, newError(ErrCategoryType, "EXPECTED_NUMBER")
}

// Int returns v as an integer, rounding floats to nearest.
func (v Value) Int() (int64, error) {
	switch v.Type {
	case TypeInt:
		return v.I, nil
	case TypeFloat:
		return roundToInt(v.F)
	}
	return 0, newError(ErrCategoryType, "EXPECTED_NUMBER")
}

// Bytes returns v as a string.
func (v Value) Bytes() ([]byte, error) {
	if v.Type != TypeString {
		return nil, newError(ErrCategoryType, "EXPECTED_STRING")
	}
	return v.S, nil
}

// Truth reports whether a numeric value is non-zero.
func (v Value) Truth() (bool, error) {
	switch v.Type {
	case TypeInt:
		return v.I != 0, nil
	case TypeFloat:
		return v.F != 0, nil
	}
	return false, newError(ErrCategoryType, "EXPECTED_NUMBER")
}

// convert coerces v to the kind want. A numeric want accepts both kinds.
func (v Value) convert(want VarType) (Value, error) {
	switch want.Kind() {
	case TypeFloat:
		f, err := v.Float()
		return FloatValue(f), err
	case TypeInt:
		i, err := v.Int()
		return IntValue(i), err
	case TypeString:
		if v.Type != TypeString {
			return v, newError(ErrCategoryType, "EXPECTED_STRING")
		}
	case TypeNumber:
		if v.Type == TypeString {
			return v, newError(ErrCategoryType, "EXPECTED_NUMBER")
		}
	}
	return v, nil
}

// String renders v the way STR$ does.
func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.I, 10)
	case TypeFloat:
		return formatFloat(v.F)
	case TypeString:
		return string(v.S)
	}
	return ""
}

// roundToInt rounds half away from zero, rejecting values outside int64.
func roundToInt(f float64) (int64, error) {
	if math.IsNaN(f) || f >= 9.223372036854775e18 || f <= -9.223372036854775e18 {
		return 0, newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
	}
	return int64(math.Round(f)), nil
}

// formatFloat prints a float with up to 10 significant digits.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', 10, 64)
	if strings.ContainsAny(s, "e") {
		mant, exp, _ := strings.Cut(s, "e")
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		return mant + "E" + exp
	}
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// scratch is the per-statement temporary string arena.
type scratch struct {
	buf []byte
	top int
}

func newScratch(size int) scratch {
	return scratch{buf: make([]byte, size)}
}

// alloc returns n bytes of temporary storage.
func (s *scratch) alloc(n int) ([]byte, error) {
	if s.top+n > len(s.buf) {
		return nil, newError(ErrCategoryResource, "OUT_OF_MEMORY")
	}
	b := s.buf[s.top : s.top+n : s.top+n]
	s.top += n
	return b, nil
}

// tempString copies parts into one scratch string.
func (b *Interpreter) tempString(parts ...[]byte) (Value, error) {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if n > MaxStringLen {
		return Value{}, newError(ErrCategoryBounds, "STRING_TOO_LONG")
	}
	buf, err := b.scratch.alloc(n)
	if err != nil {
		return Value{}, err
	}
	k := 0
	for _, p := range parts {
		k += copy(buf[k:], p)
	}
	return StringValue(buf), nil
}
