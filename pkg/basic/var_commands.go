package basic

import (
	"strings"
)

// cmdLet assigns a value to a variable or array element.
func (b *Interpreter) cmdLet(p int) error {
	ref, q, err := b.parseVarRef(p)
	if err != nil {
		return err
	}
	if ref.empty {
		return newError(ErrCategorySyntax, "INVALID_ARGUMENT")
	}
	s, err := b.resolveSlot(ref, VarFind)
	if err != nil {
		return err
	}
	if q, err = b.expect(q, tokEQ, "EXPECTED_EQUALS"); err != nil {
		return err
	}
	v, q, err := b.evaluate(q, TypeAny)
	if err != nil {
		return err
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	return s.store(v)
}

// cmdLocal implements LOCAL, valid only inside a SUB, FUNCTION or GOSUB.
func (b *Interpreter) cmdLocal(p int) error {
	if b.localIndex == 0 {
		return newError(ErrCategoryStructure, "INVALID_HERE", "LOCAL")
	}
	return b.declareList(p, func(d declItem) (*Variable, error) {
		return b.findVar(d.ref, VarLocal, d.typ, d.size)
	})
}

// currentProc returns the name of the innermost active SUB or FUNCTION.
func (b *Interpreter) currentProc() string {
	for i := len(b.returnStack) - 1; i >= 0; i-- {
		if b.returnStack[i].proc != "" {
			return b.returnStack[i].proc
		}
	}
	return ""
}

// cmdStatic implements STATIC. Each name is a local alias of a global
// record private to the procedure, created and initialised only once.
func (b *Interpreter) cmdStatic(p int) error {
	proc := b.currentProc()
	if proc == "" || b.localIndex == 0 {
		return newError(ErrCategoryStructure, "INVALID_HERE", "STATIC")
	}
	return b.declareList(p, func(d declItem) (*Variable, error) {
		if local, _ := b.lookupVar(d.ref.name); local != nil {
			if local.Type&TypePtr == 0 {
				return nil, newError(ErrCategoryName, "ALREADY_DECLARED", d.ref.name)
			}
			return nil, nil
		}
		hidden := proc + "@" + d.ref.name
		_, g := b.lookupVar(hidden)
		var created *Variable
		if g == nil {
			typ, err := b.newType(d.ref.name, d.ref.suffix, d.typ)
			if err != nil {
				return nil, err
			}
			if g, err = b.createVar(hidden, typ, 0, d.ref.subs, d.size); err != nil {
				return nil, err
			}
			created = g
		}
		idx := 0
		if g.IsArray() {
			idx = -1
		}
		if _, err := b.newPtr(d.ref.name, g, idx); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// cmdConst implements CONST name = value [, name = value].
func (b *Interpreter) cmdConst(p int) error {
	action := VarDim
	if b.localIndex > 0 {
		action = VarLocal
	}
	for {
		name, suffix, q, err := b.parseName(p)
		if err != nil {
			return err
		}
		if q, err = b.expect(q, tokEQ, "EXPECTED_EQUALS"); err != nil {
			return err
		}
		val, q, err := b.evaluate(q, TypeAny)
		if err != nil {
			return err
		}
		declType := VarType(0)
		if suffix == 0 {
			declType = val.Type
		}
		v, err := b.findVar(varRef{name: name, suffix: suffix}, action, declType, 0)
		if err != nil {
			return err
		}
		if err := v.store(0, val); err != nil {
			return err
		}
		v.Type = (v.Type &^ TypeImplied) | TypeConst
		if q = b.skipSpace(q); b.mem[q] != ',' {
			return b.checkEnd(q)
		}
		p = q + 1
	}
}

// cmdInc implements INC var [, amount]. Strings are appended to.
func (b *Interpreter) cmdInc(p int) error {
	ref, q, err := b.parseVarRef(p)
	if err != nil {
		return err
	}
	s, err := b.resolveSlot(ref, VarFind)
	if err != nil {
		return err
	}
	cur := s.load()
	amount := IntValue(1)
	if q = b.skipSpace(q); b.mem[q] == ',' {
		if amount, q, err = b.evaluate(q+1, TypeAny); err != nil {
			return err
		}
	} else if cur.Type == TypeString {
		return newError(ErrCategorySyntax, "ARGUMENT_COUNT")
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	sum, err := b.applyOp(tokADD, cur, amount)
	if err != nil {
		return err
	}
	return s.store(sum)
}

// cmdOption implements OPTION BASE, EXPLICIT, DEFAULT and ERROR.
func (b *Interpreter) cmdOption(p int) error {
	if q := b.skipSpace(p); b.mem[q] == tokERROR {
		return b.errorMode(q + 1)
	}
	word, q := b.word(p)
	switch word {
	case "BASE":
		n, r, err := b.evalInt(q)
		if err != nil {
			return err
		}
		if n != 0 && n != 1 {
			return newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
		}
		if int(n) != b.optionBase && b.arraysExist() {
			return newError(ErrCategoryStructure, "BASE_AFTER_DIM")
		}
		b.optionBase = int(n)
		q = r
	case "EXPLICIT":
		b.optionExplicit = true
	case "DEFAULT":
		if t, r, err := b.typeKeyword(q); err == nil {
			b.defaultType, q = t, r
			break
		}
		w, r := b.word(q)
		if w != "NONE" {
			return newError(ErrCategorySyntax, "INVALID_OPTION", strings.TrimSpace("DEFAULT "+w))
		}
		b.defaultType, q = 0, r
	default:
		return newError(ErrCategorySyntax, "INVALID_OPTION", word)
	}
	return b.checkEnd(q)
}

// dataItem is one value of a DATA statement.
type dataItem struct {
	text   string
	quoted bool
}

// dataItems splits the raw text of the DATA statement at s.
func (b *Interpreter) dataItems(s int) []dataItem {
	raw := string(b.mem[s+1 : statementEnd(b.mem, s)])
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return splitItems(raw)
}

// splitItems splits a comma separated list. Quotes protect commas and are
// removed; unquoted items are trimmed.
func splitItems(raw string) []dataItem {
	var items []dataItem
	var cur strings.Builder
	quoted, wasQuoted := false, false
	flush := func() {
		text := cur.String()
		if !wasQuoted {
			text = strings.TrimSpace(text)
		}
		items = append(items, dataItem{text: text, quoted: wasQuoted})
		cur.Reset()
		wasQuoted = false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			if !quoted && !wasQuoted && strings.TrimSpace(cur.String()) == "" {
				cur.Reset()
			}
			quoted = !quoted
			wasQuoted = true
		case c == ',' && !quoted:
			flush()
		case quoted:
			cur.WriteByte(c)
		case wasQuoted && c == ' ':
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return items
}

// nextData returns the next DATA item of the main program.
func (b *Interpreter) nextData() (dataItem, error) {
	for {
		from := b.dataFrom
		if b.dataPos >= 0 {
			items := b.dataItems(b.dataPos)
			if b.dataItem < len(items) {
				b.dataItem++
				return items[b.dataItem-1], nil
			}
			from = skipStatement(b.mem, b.dataPos)
		}
		found := -1
		if from < b.progEnd {
			b.scanStatements(from, func(s int) bool {
				if b.mem[s] == tokDATA {
					found = s
					return true
				}
				return false
			})
		}
		if found < 0 {
			return dataItem{}, newError(ErrCategoryResource, "OUT_OF_DATA")
		}
		b.dataPos, b.dataItem = found, 0
	}
}

// cmdRead implements READ var [, var ...].
func (b *Interpreter) cmdRead(p int) error {
	for {
		ref, q, err := b.parseVarRef(p)
		if err != nil {
			return err
		}
		s, err := b.resolveSlot(ref, VarFind)
		if err != nil {
			return err
		}
		item, err := b.nextData()
		if err != nil {
			return err
		}
		var val Value
		switch {
		case s.v.Type.Kind() == TypeString:
			val = StringValue([]byte(item.text))
		case item.quoted:
			return newError(ErrCategoryType, "EXPECTED_NUMBER")
		default:
			val = parseNumber(item.text)
		}
		if err := s.store(val); err != nil {
			return err
		}
		if q = b.skipSpace(q); b.mem[q] != ',' {
			return b.checkEnd(q)
		}
		p = q + 1
	}
}

// cmdRestore implements RESTORE [line | label].
func (b *Interpreter) cmdRestore(p int) error {
	b.dataPos, b.dataItem, b.dataFrom = -1, 0, 0
	if b.atEnd(p) {
		return nil
	}
	q := b.skipSpace(p)
	if isDigit(b.mem[q]) {
		n, r, err := b.evalInt(q)
		if err != nil {
			return err
		}
		if n < 1 || n > MaxLineNumber {
			return newError(ErrCategorySyntax, "INVALID_LINE_NUMBER")
		}
		// a missing line restores to the next one that exists
		if b.dataFrom, err = b.index.find(int(n), false); err != nil {
			return err
		}
		return b.checkEnd(r)
	}
	line, r, err := b.parseTarget(q)
	if err != nil {
		return err
	}
	b.dataFrom = line
	return b.checkEnd(r)
}
