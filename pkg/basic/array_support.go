package basic

// declItem is one parsed entry of a DIM, LOCAL or STATIC list.
type declItem struct {
	ref  varRef
	typ  VarType // declared type, 0 when only the suffix or default applies
	size int     // LENGTH of string elements
}

// parseDeclItem reads "name[suffix][(extents)] [AS type] [LENGTH n]".
// common is a type given once for the whole list.
func (b *Interpreter) parseDeclItem(p int, common VarType) (declItem, int, error) {
	var d declItem
	ref, q, err := b.parseVarRef(p)
	if err != nil {
		return d, q, err
	}
	if ref.empty {
		return d, q, newError(ErrCategoryBounds, "INVALID_DIMENSION")
	}
	d.ref, d.typ = ref, common
	if q = b.skipSpace(q); b.mem[q] == tokAS {
		t, r, err := b.typeKeyword(q + 1)
		if err != nil {
			return d, r, err
		}
		if common != 0 && t != common {
			return d, r, newError(ErrCategoryType, "CONFLICTING_TYPE", ref.name)
		}
		d.typ, q = t, r
	}
	if q = b.skipSpace(q); b.mem[q] == tokLENGTH {
		// stop before a comparison so "LENGTH 5 = ..." leaves the initialiser
		v, r, err := b.doExpr(q+1, precCompare+1)
		if err == nil {
			v, err = v.convert(TypeInt)
		}
		if err != nil {
			return d, r, err
		}
		if n := v.I; n < 1 || n > MaxStringLen {
			return d, r, newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
		}
		d.size, q = int(v.I), r
	}
	return d, q, nil
}

// declareList runs fn for each item of a declaration list at p. fn returns
// the record to initialise, nil to evaluate and discard an initialiser.
func (b *Interpreter) declareList(p int, fn func(d declItem) (*Variable, error)) error {
	q := b.skipSpace(p)
	var common VarType
	if t, r, err := b.typeKeyword(q); err == nil {
		common, q = t, r
	}
	for {
		d, r, err := b.parseDeclItem(q, common)
		if err != nil {
			return err
		}
		v, err := fn(d)
		if err != nil {
			return err
		}
		if r = b.skipSpace(r); b.mem[r] == tokEQ {
			if r, err = b.initialize(v, r+1); err != nil {
				return err
			}
		}
		if r = b.skipSpace(r); b.mem[r] != ',' {
			return b.checkEnd(r)
		}
		q = r + 1
	}
}

// initialize evaluates "expr" for a scalar or "(expr, ...)" for an array
// and stores the values into v when v is not nil.
func (b *Interpreter) initialize(v *Variable, p int) (int, error) {
	if v == nil || !v.IsArray() {
		val, q, err := b.evaluate(p, TypeAny)
		if err != nil || v == nil {
			return q, err
		}
		return q, v.store(0, val)
	}
	q, err := b.expectByte(p, '(')
	if err != nil {
		return q, err
	}
	n := v.elements()
	for k := 0; ; k++ {
		val, r, err := b.evaluate(q, TypeAny)
		if err != nil {
			return r, err
		}
		if k >= n {
			return r, newError(ErrCategorySyntax, "ARGUMENT_COUNT")
		}
		if err := v.store(k, val); err != nil {
			return r, err
		}
		r = b.skipSpace(r)
		if b.mem[r] == ')' {
			if k != n-1 {
				return r, newError(ErrCategorySyntax, "ARGUMENT_COUNT")
			}
			return r + 1, nil
		}
		if b.mem[r] != ',' {
			return r, newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
		}
		q = r + 1
	}
}

// expectByte consumes the literal c at p.
func (b *Interpreter) expectByte(p int, c byte) (int, error) {
	p = b.skipSpace(p)
	if b.mem[p] != c {
		return p, newError(ErrCategorySyntax, "SYNTAX_ERROR")
	}
	return p + 1, nil
}

// cmdDim implements DIM. Records are always global.
func (b *Interpreter) cmdDim(p int) error {
	return b.declareList(p, func(d declItem) (*Variable, error) {
		return b.findVar(d.ref, VarDim, d.typ, d.size)
	})
}

// cmdErase implements ERASE name [, name ...].
func (b *Interpreter) cmdErase(p int) error {
	for {
		name, suffix, q, err := b.parseName(p)
		if err != nil {
			return err
		}
		if r := b.skipSpace(q); b.mem[r] == '(' {
			if r = b.skipSpace(r + 1); b.mem[r] != ')' {
				return newError(ErrCategorySyntax, "MISSING_PARENTHESIS")
			}
			q = r + 1
		}
		v, err := b.findVar(varRef{name: name, suffix: suffix}, VarNoFindError|VarEmptyOK, 0, 0)
		if err != nil {
			return err
		}
		if !v.IsArray() {
			return newError(ErrCategoryName, "NOT_AN_ARRAY", name)
		}
		b.removeVar(v)
		if q = b.skipSpace(q); b.mem[q] != ',' {
			return b.checkEnd(q)
		}
		p = q + 1
	}
}
