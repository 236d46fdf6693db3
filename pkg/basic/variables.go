package basic

import (
	"strings"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// VarAction selects how findVar treats a name.
type VarAction int

// Variable resolution actions.
const (
	VarFind        VarAction = 0         // find or implicitly create
	VarNoFindError VarAction = 1 << iota // missing name is an error
	VarNoFindNull                        // missing name returns nil
	VarDim                               // declare a global
	VarLocal                             // declare a local at the current level
	VarEmptyOK                           // "name" may refer to a whole array
	VarImplied                           // type may come from OPTION DEFAULT
	VarFunRet                            // declare a FUNCTION return slot
	VarConst                             // declare a constant
)

// MaxDims is the maximum number of array dimensions.
const MaxDims = 5

// Variable is one record of the variable table.
type Variable struct {
	Name  string
	Type  VarType
	Level int
	Dims  [MaxDims]int // Dims[0] == 0 for scalars
	Size  int          // string capacity per element

	base int
	seq  uint64

	f   float64
	i   int64
	str []byte // length-prefixed scalar string

	fa []float64
	ia []int64
	sa []byte // string elements, stride Size+1

	ref    *Variable // TypePtr target
	refIdx int       // element of ref, -1 for the whole array
}

// IsArray reports whether v has dimensions.
func (v *Variable) IsArray() bool { return v.Dims[0] != 0 }

// dimCount returns the number of dimensions.
func (v *Variable) dimCount() int {
	n := 0
	for n < MaxDims && v.Dims[n] != 0 {
		n++
	}
	return n
}

// elements returns the number of array elements.
func (v *Variable) elements() int {
	n := 1
	for k := 0; k < v.dimCount(); k++ {
		n *= v.Dims[k] + 1 - v.base
	}
	return n
}

// offset converts subscripts into a row-major element index.
func (v *Variable) offset(subs []int) (int, error) {
	if len(subs) != v.dimCount() {
		return 0, newError(ErrCategoryBounds, "DIMENSION_COUNT", v.Name)
	}
	idx := 0
	for k, s := range subs {
		if s < v.base || s > v.Dims[k] {
			return 0, newError(ErrCategoryBounds, "INDEX_OUT_OF_BOUNDS")
		}
		idx = idx*(v.Dims[k]+1-v.base) + s - v.base
	}
	return idx, nil
}

// target follows a PTR record to the storage it aliases.
func (v *Variable) target(idx int) (*Variable, int) {
	if v.Type&TypePtr == 0 {
		return v, idx
	}
	if v.refIdx >= 0 {
		return v.ref, v.refIdx
	}
	return v.ref, idx
}

// load reads element idx. String results alias the variable storage.
func (v *Variable) load(idx int) Value {
	t, k := v.target(idx)
	switch t.Type.Kind() {
	case TypeFloat:
		if t.IsArray() {
			return FloatValue(t.fa[k])
		}
		return FloatValue(t.f)
	case TypeInt:
		if t.IsArray() {
			return IntValue(t.ia[k])
		}
		return IntValue(t.i)
	case TypeString:
		buf := t.str
		if t.IsArray() {
			buf = t.sa[k*(t.Size+1) : (k+1)*(t.Size+1)]
		}
		return StringValue(buf[1 : 1+int(buf[0])])
	}
	return Value{}
}

// store writes element idx, coercing numbers to the variable's kind.
func (v *Variable) store(idx int, val Value) error {
	t, k := v.target(idx)
	switch t.Type.Kind() {
	case TypeFloat:
		f, err := val.Float()
		if err != nil {
			return newError(ErrCategoryType, "TYPE_MISMATCH")
		}
		if t.IsArray() {
			t.fa[k] = f
		} else {
			t.f = f
		}
	case TypeInt:
		if val.Type == TypeString {
			return newError(ErrCategoryType, "TYPE_MISMATCH")
		}
		i, err := val.Int()
		if err != nil {
			return err
		}
		if t.IsArray() {
			t.ia[k] = i
		} else {
			t.i = i
		}
	case TypeString:
		if val.Type != TypeString {
			return newError(ErrCategoryType, "TYPE_MISMATCH")
		}
		if len(val.S) > t.Size {
			return newError(ErrCategoryBounds, "STRING_TOO_LONG")
		}
		buf := t.str
		if t.IsArray() {
			buf = t.sa[k*(t.Size+1) : (k+1)*(t.Size+1)]
		}
		copy(buf[1:], val.S)
		buf[0] = byte(len(val.S))
	}
	return nil
}

// Value returns a copy of a scalar variable's value.
func (v *Variable) Value() Value {
	val := v.load(0)
	if val.Type == TypeString {
		val.S = append([]byte(nil), val.S...)
	}
	return val
}

// Element returns a copy of an array element.
func (v *Variable) Element(subs ...int) (Value, error) {
	k, err := v.offset(subs)
	if err != nil {
		return Value{}, err
	}
	val := v.load(k)
	if val.Type == TypeString {
		val.S = append([]byte(nil), val.S...)
	}
	return val, nil
}

// Set assigns a scalar variable.
func (v *Variable) Set(val Value) error {
	if t, _ := v.target(0); t.Type&TypeConst != 0 {
		return newError(ErrCategoryType, "CONSTANT_ASSIGN", v.Name)
	}
	return v.store(0, val)
}

// slot is a resolved storage location.
type slot struct {
	v   *Variable
	idx int
}

func (s slot) load() Value { return s.v.load(s.idx) }

func (s slot) store(val Value) error {
	if s.v.Type&TypeConst != 0 {
		return newError(ErrCategoryType, "CONSTANT_ASSIGN", s.v.Name)
	}
	return s.v.store(s.idx, val)
}

// varRef is a parsed variable reference.
type varRef struct {
	name   string
	suffix VarType
	paren  bool  // followed by a subscript list
	empty  bool  // "name()"
	subs   []int // evaluated subscripts
}

// parseName reads a name and its optional type suffix at p.
func (b *Interpreter) parseName(p int) (string, VarType, int, error) {
	p = b.skipSpace(p)
	if p >= len(b.mem) || !isNameStart(b.mem[p]) {
		return "", 0, p, newError(ErrCategorySyntax, "EXPECTED_VARIABLE")
	}
	q := p
	for q < len(b.mem) && isNameChar(b.mem[q]) {
		q++
	}
	name := string(b.mem[p:q])
	var suffix VarType
	if q < len(b.mem) && isSuffix(b.mem[q]) {
		suffix = typeFromSuffix(b.mem[q])
		q++
	}
	if len(name) > MaxNameLength {
		return "", 0, q, newError(ErrCategorySyntax, "NAME_TOO_LONG", name)
	}
	return name, suffix, q, nil
}

// parseVarRef reads "name[suffix][(subscripts)]" and evaluates subscripts.
func (b *Interpreter) parseVarRef(p int) (varRef, int, error) {
	var ref varRef
	var err error
	ref.name, ref.suffix, p, err = b.parseName(p)
	if err != nil {
		return ref, p, err
	}
	if p >= len(b.mem) || b.mem[p] != '(' {
		return ref, p, nil
	}
	ref.paren = true
	q := b.skipSpace(p + 1)
	if b.mem[q] == ')' {
		ref.empty = true
		return ref, q + 1, nil
	}
	p = q
	for {
		v, q, err := b.evaluate(p, TypeInt)
		if err != nil {
			return ref, q, err
		}
		ref.subs = append(ref.subs, int(v.I))
		if len(ref.subs) > MaxDims {
			return ref, q, newError(ErrCategoryBounds, "INVALID_DIMENSION")
		}
		q = b.skipSpace(q)
		if b.mem[q] == ',' {
			p = q + 1
			continue
		}
		if b.mem[q] != ')' {
			return ref, q, newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
		}
		return ref, q + 1, nil
	}
}

// lookupVar returns the local record at the current level and the global
// record for name.
func (b *Interpreter) lookupVar(name string) (local, global *Variable) {
	for _, v := range b.vars {
		if v == nil || v.Name != name {
			continue
		}
		if v.Level == 0 {
			global = v
		} else if v.Level == b.localIndex {
			local = v
		}
	}
	return local, global
}

// newType resolves the type of a new record.
func (b *Interpreter) newType(name string, suffix, declType VarType) (VarType, error) {
	switch {
	case suffix != 0 && declType != 0 && suffix != declType:
		return 0, newError(ErrCategoryType, "CONFLICTING_TYPE", name)
	case suffix != 0:
		return suffix, nil
	case declType != 0:
		return declType, nil
	case b.defaultType != 0:
		return b.defaultType | TypeImplied, nil
	}
	return 0, newError(ErrCategoryName, "NO_DEFAULT_TYPE", name)
}

// findVar resolves a reference, creating or declaring records as action
// allows. dims and size apply only to declarations.
func (b *Interpreter) findVar(ref varRef, action VarAction, declType VarType, size int) (*Variable, error) {
	local, global := b.lookupVar(ref.name)

	if action&(VarLocal|VarFunRet|VarDim) != 0 {
		level := 0
		existing := global
		if action&(VarLocal|VarFunRet) != 0 {
			level, existing = b.localIndex, local
			if level == 0 {
				existing = global
			}
		}
		if existing != nil {
			return nil, newError(ErrCategoryName, "ALREADY_DECLARED", ref.name)
		}
		if action&VarFunRet == 0 && b.findDef(ref.name) != nil {
			return nil, newError(ErrCategoryName, "NAME_IS_SUB", ref.name)
		}
		typ, err := b.newType(ref.name, ref.suffix, declType)
		if err != nil {
			return nil, err
		}
		if action&VarFunRet != 0 {
			typ |= TypeFunRet
		}
		return b.createVar(ref.name, typ, level, ref.subs, size)
	}

	found := local
	if found == nil {
		found = global
	}
	if found != nil {
		if ref.suffix != 0 && found.Type.Kind() != ref.suffix {
			return nil, newError(ErrCategoryType, "CONFLICTING_TYPE", ref.name)
		}
		if ref.paren && !found.IsArray() {
			return nil, newError(ErrCategoryName, "NOT_AN_ARRAY", ref.name)
		}
		if !ref.paren && found.IsArray() && action&VarEmptyOK == 0 {
			return nil, newError(ErrCategoryName, "IS_AN_ARRAY", ref.name)
		}
		return found, nil
	}

	switch {
	case action&VarNoFindNull != 0:
		return nil, nil
	case action&VarNoFindError != 0:
		return nil, newError(ErrCategoryName, "UNKNOWN_VARIABLE", ref.name)
	case ref.paren:
		return nil, newError(ErrCategoryName, "ARRAY_NOT_DECLARED", ref.name)
	case b.optionExplicit:
		return nil, newError(ErrCategoryName, "UNKNOWN_VARIABLE", ref.name)
	case b.findDef(ref.name) != nil:
		return nil, newError(ErrCategoryName, "NAME_IS_SUB", ref.name)
	}
	typ, err := b.newType(ref.name, ref.suffix, 0)
	if err != nil {
		return nil, err
	}
	return b.createVar(ref.name, typ, 0, nil, 0)
}

// createVar allocates and registers a zero-initialised record. Nothing is
// registered when a limit refuses the allocation.
func (b *Interpreter) createVar(name string, typ VarType, level int, dims []int, size int) (*Variable, error) {
	if b.varCount >= b.limits.MaxVariables {
		return nil, newError(ErrCategoryResource, "TOO_MANY_VARIABLES")
	}
	v := &Variable{Name: name, Type: typ, Level: level, base: b.optionBase}
	if typ.Kind() == TypeString {
		v.Size = MaxStringLen
		if size > 0 {
			if size > MaxStringLen {
				return nil, newError(ErrCategoryBounds, "STRING_TOO_LONG")
			}
			v.Size = size
		}
	}
	if len(dims) > MaxDims {
		return nil, newError(ErrCategoryBounds, "INVALID_DIMENSION")
	}
	for k, d := range dims {
		if d < 1 || d < b.optionBase {
			return nil, newError(ErrCategoryBounds, "INVALID_DIMENSION")
		}
		v.Dims[k] = d
	}
	if v.IsArray() {
		n, err := b.checkedElements(v)
		if err != nil {
			return nil, err
		}
		switch typ.Kind() {
		case TypeFloat:
			v.fa = make([]float64, n)
		case TypeInt:
			v.ia = make([]int64, n)
		case TypeString:
			if n > int(^uint(0)>>1)/(v.Size+1) {
				return nil, newError(ErrCategoryResource, "ARRAY_TOO_LARGE")
			}
			v.sa = make([]byte, n*(v.Size+1))
		}
	} else if typ.Kind() == TypeString {
		v.str = make([]byte, v.Size+1)
	}
	b.register(v)
	logger.Debug(logger.AreaVariables, "created %s %s level %d dims %v", v.Type, name, level, dims)
	return v, nil
}

// checkedElements is elements with every product held below the array limit.
func (b *Interpreter) checkedElements(v *Variable) (int, error) {
	n := 1
	for k := 0; k < v.dimCount(); k++ {
		span := v.Dims[k] + 1 - v.base
		if span < 1 || span > b.limits.MaxArrayElements/n {
			return 0, newError(ErrCategoryResource, "ARRAY_TOO_LARGE")
		}
		n *= span
	}
	return n, nil
}

// register places v in the lowest free slot of the table.
func (b *Interpreter) register(v *Variable) {
	b.varSeq++
	v.seq = b.varSeq
	b.varCount++
	for i, old := range b.vars {
		if old == nil {
			b.vars[i] = v
			return
		}
	}
	b.vars = append(b.vars, v)
}

// newPtr registers a record at the current level aliasing target.
func (b *Interpreter) newPtr(name string, target *Variable, refIdx int) (*Variable, error) {
	if b.varCount >= b.limits.MaxVariables {
		return nil, newError(ErrCategoryResource, "TOO_MANY_VARIABLES")
	}
	v := &Variable{
		Name:   name,
		Type:   target.Type.Kind() | TypePtr,
		Level:  b.localIndex,
		Size:   target.Size,
		base:   target.base,
		ref:    target,
		refIdx: refIdx,
	}
	if refIdx < 0 {
		v.Dims = target.Dims
	}
	b.register(v)
	return v, nil
}

// removeVar drops one record.
func (b *Interpreter) removeVar(v *Variable) {
	for i, old := range b.vars {
		if old == v {
			b.vars[i] = nil
			b.varCount--
			return
		}
	}
}

// clearVars reclaims every record at or above level; level 0 clears all.
func (b *Interpreter) clearVars(level int) {
	for i, v := range b.vars {
		if v != nil && v.Level >= level {
			b.vars[i] = nil
			b.varCount--
		}
	}
	if level == 0 {
		b.vars = b.vars[:0]
		b.varCount = 0
	}
}

// rollbackVars removes local records created after seq.
func (b *Interpreter) rollbackVars(seq uint64) {
	for i, v := range b.vars {
		if v != nil && v.Level > 0 && v.seq > seq {
			b.vars[i] = nil
			b.varCount--
		}
	}
}

// arraysExist reports whether any array has been declared.
func (b *Interpreter) arraysExist() bool {
	for _, v := range b.vars {
		if v != nil && v.IsArray() && v.Type&TypePtr == 0 {
			return true
		}
	}
	return false
}

// resolveSlot resolves a reference to a storage location.
func (b *Interpreter) resolveSlot(ref varRef, action VarAction) (slot, error) {
	v, err := b.findVar(ref, action, 0, 0)
	if err != nil || v == nil {
		return slot{}, err
	}
	idx := 0
	if ref.paren && !ref.empty {
		if idx, err = v.offset(ref.subs); err != nil {
			return slot{}, err
		}
	}
	t, k := v.target(idx)
	return slot{t, k}, nil
}

// loadValue reads a slot, copying strings into the scratch arena.
func (b *Interpreter) loadValue(s slot) (Value, error) {
	val := s.load()
	if val.Type == TypeString {
		return b.tempString(val.S)
	}
	return val, nil
}

// ResolveVariable finds (or, per action, creates) the variable called name.
// name may carry a type suffix.
func (b *Interpreter) ResolveVariable(name string, action VarAction) (*Variable, error) {
	ref := varRef{name: strings.ToUpper(name)}
	if n := len(ref.name); n > 0 && isSuffix(ref.name[n-1]) {
		ref.suffix = typeFromSuffix(ref.name[n-1])
		ref.name = ref.name[:n-1]
	}
	if ref.name == "" || !isNameStart(ref.name[0]) {
		return nil, newError(ErrCategorySyntax, "INVALID_NAME", name)
	}
	if len(ref.name) > MaxNameLength {
		return nil, newError(ErrCategorySyntax, "NAME_TOO_LONG", name)
	}
	return b.findVar(ref, action|VarEmptyOK, 0, 0)
}

// SetVariable assigns a scalar variable, creating it when needed.
func (b *Interpreter) SetVariable(name string, val Value) error {
	v, err := b.ResolveVariable(name, VarFind)
	if err != nil {
		return err
	}
	return v.Set(val)
}

// VariableInfo is a printable snapshot of one record.
type VariableInfo struct {
	Name  string
	Type  string
	Level int
	Dims  []int `json:",omitempty"`
	Value string
}

// Variables returns a snapshot of the variable table.
func (b *Interpreter) Variables() []VariableInfo {
	var out []VariableInfo
	for _, v := range b.vars {
		if v == nil {
			continue
		}
		info := VariableInfo{Name: v.Name, Type: v.Type.String(), Level: v.Level}
		if v.IsArray() {
			info.Dims = append(info.Dims, v.Dims[:v.dimCount()]...)
			info.Value = "(" + strings.Repeat(",", v.dimCount()-1) + ")"
		} else {
			info.Value = v.load(0).String()
		}
		out = append(out, info)
	}
	return out
}
