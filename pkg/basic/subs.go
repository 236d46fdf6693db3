package basic

import (
	"errors"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// procDef is a SUB or FUNCTION found when the program was loaded.
type procDef struct {
	Name   string
	IsFunc bool
	Type   VarType // FUNCTION result kind
	Pos    int     // the SUB/FUNCTION statement
	Body   int     // first statement of the body
	Params []param
}

// param is one formal parameter.
type param struct {
	Name  string
	Type  VarType
	Array bool
	ByVal bool
}

// buildDefinitions indexes every SUB and FUNCTION of the program and library
// regions.
func (b *Interpreter) buildDefinitions() error {
	b.defs = b.defs[:0]
	for _, start := range []int{0, b.libStart} {
		if start == b.libStart && b.libEnd <= b.libStart {
			continue
		}
		if line, name := duplicateLabel(b.mem, start); line >= 0 {
			return b.locate(newError(ErrCategoryName, "DUPLICATE_LABEL", name), skipLineHeader(b.mem, line))
		}
		p := start
		for {
			s, ok := nextStatement(b.mem, p)
			if !ok {
				break
			}
			p = skipStatement(b.mem, s)
			c := b.mem[s]
			if c != tokSUB && c != tokFUNCTION {
				continue
			}
			def, err := b.parseDefinition(s)
			if err != nil {
				return b.locate(err, s)
			}
			if b.findDef(def.Name) != nil {
				return b.locate(newError(ErrCategoryName, "DUPLICATE_DEFINITION", def.Name), s)
			}
			if err := b.checkDefinitionEnd(def); err != nil {
				return b.locate(err, s)
			}
			b.defs = append(b.defs, def)
		}
	}
	return nil
}

// parseDefinition reads "SUB name [(params)]" or
// "FUNCTION name[suffix] [(params)] [AS type]".
func (b *Interpreter) parseDefinition(s int) (*procDef, error) {
	def := &procDef{IsFunc: b.mem[s] == tokFUNCTION, Pos: s, Body: skipStatement(b.mem, s)}
	name, suffix, q, err := b.parseName(s + 1)
	if err != nil {
		return nil, err
	}
	if !def.IsFunc && suffix != 0 {
		return nil, newError(ErrCategorySyntax, "INVALID_NAME", name)
	}
	def.Name = name
	q = b.skipSpace(q)
	if b.mem[q] == '(' {
		end, err := b.matchParen(q + 1)
		if err != nil {
			return nil, err
		}
		if !b.isBlank(q+1, end) {
			for _, a := range b.splitArgs(q+1, end) {
				prm, err := b.parseParam(a[0], a[1])
				if err != nil {
					return nil, err
				}
				for _, other := range def.Params {
					if other.Name == prm.Name {
						return nil, newError(ErrCategoryName, "ALREADY_DECLARED", prm.Name)
					}
				}
				def.Params = append(def.Params, prm)
			}
		}
		q = end + 1
	}
	var declared VarType
	if q = b.skipSpace(q); b.mem[q] == tokAS {
		if declared, q, err = b.typeKeyword(q + 1); err != nil {
			return nil, err
		}
	}
	if !b.atEnd(q) {
		return nil, newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(q))
	}
	if def.IsFunc {
		switch {
		case suffix != 0 && declared != 0 && suffix != declared:
			return nil, newError(ErrCategoryType, "CONFLICTING_TYPE", name)
		case suffix != 0:
			def.Type = suffix
		case declared != 0:
			def.Type = declared
		default:
			def.Type = b.limits.DefaultType
			if def.Type == 0 {
				def.Type = TypeFloat
			}
		}
	}
	return def, nil
}

// parseParam reads "[BYVAL|BYREF] name[suffix][()] [AS type]".
func (b *Interpreter) parseParam(p, end int) (param, error) {
	var prm param
	p = b.skipSpace(p)
	switch b.mem[p] {
	case tokBYVAL:
		prm.ByVal = true
		p++
	case tokBYREF:
		p++
	}
	name, suffix, q, err := b.parseName(p)
	if err != nil {
		return prm, err
	}
	prm.Name = name
	if b.mem[q] == '(' {
		if r := b.skipSpace(q + 1); b.mem[r] != ')' {
			return prm, newError(ErrCategorySyntax, "INVALID_PARAMETER", name)
		} else {
			q = r + 1
		}
		prm.Array = true
	}
	var declared VarType
	if q = b.skipSpace(q); q < end && b.mem[q] == tokAS {
		if declared, q, err = b.typeKeyword(q + 1); err != nil {
			return prm, err
		}
	}
	if q = b.skipSpace(q); q != end {
		return prm, newError(ErrCategorySyntax, "INVALID_PARAMETER", name)
	}
	switch {
	case suffix != 0 && declared != 0 && suffix != declared:
		return prm, newError(ErrCategoryType, "CONFLICTING_TYPE", name)
	case suffix != 0:
		prm.Type = suffix
	default:
		prm.Type = declared
	}
	return prm, nil
}

// typeKeyword reads INTEGER, FLOAT or STRING.
func (b *Interpreter) typeKeyword(p int) (VarType, int, error) {
	p = b.skipSpace(p)
	switch b.mem[p] {
	case tokINTEGER:
		return TypeInt, p + 1, nil
	case tokFLOAT:
		return TypeFloat, p + 1, nil
	case tokSTRING:
		return TypeString, p + 1, nil
	}
	return 0, p, newError(ErrCategorySyntax, "INVALID_TYPE")
}

// checkDefinitionEnd requires the matching END SUB or END FUNCTION before
// the next definition.
func (b *Interpreter) checkDefinitionEnd(def *procDef) error {
	want := byte(tokENDSUB)
	if def.IsFunc {
		want = tokENDFUNCTION
	}
	p := def.Body
	for {
		s, ok := nextStatement(b.mem, p)
		if !ok {
			break
		}
		switch b.mem[s] {
		case want:
			return nil
		case tokSUB, tokFUNCTION:
			return newError(ErrCategoryStructure, "SUB_WITHOUT_END", def.Name)
		}
		p = skipStatement(b.mem, s)
	}
	return newError(ErrCategoryStructure, "SUB_WITHOUT_END", def.Name)
}

// findDef returns the SUB or FUNCTION called name.
func (b *Interpreter) findDef(name string) *procDef {
	for _, d := range b.defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// binding is an evaluated argument waiting for the callee's scope.
type binding struct {
	prm   param
	ref   slot
	byRef bool
	val   Value
	set   bool
}

// bindArgs evaluates the call-site arguments in mem[p:end] in the caller's
// scope.
func (b *Interpreter) bindArgs(def *procDef, p, end int) ([]binding, error) {
	var args [][2]int
	if !b.isBlank(p, end) {
		args = b.splitArgs(p, end)
	}
	if len(args) > len(def.Params) {
		return nil, newError(ErrCategorySyntax, "TOO_MANY_ARGUMENTS", def.Name)
	}
	out := make([]binding, len(def.Params))
	for i, prm := range def.Params {
		out[i].prm = prm
		if out[i].prm.Type == 0 {
			out[i].prm.Type = b.defaultType.Kind()
			if out[i].prm.Type == 0 {
				return nil, newError(ErrCategoryName, "NO_DEFAULT_TYPE", prm.Name)
			}
		}
		if i >= len(args) || b.isBlank(args[i][0], args[i][1]) {
			continue
		}
		if err := b.bindArg(&out[i], args[i][0], args[i][1]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// bindArg binds one argument: a bare variable of the parameter's kind is
// passed by reference, anything else by value.
func (b *Interpreter) bindArg(bd *binding, p, end int) error {
	kind := bd.prm.Type.Kind()
	if bd.prm.Array {
		ref, q, err := b.parseVarRef(p)
		if err != nil || !ref.empty || b.skipSpace(q) != end {
			return newError(ErrCategoryType, "EXPECTED_ARRAY", bd.prm.Name)
		}
		v, err := b.findVar(ref, VarNoFindError|VarEmptyOK, 0, 0)
		if err != nil {
			return err
		}
		if !v.IsArray() || v.Type.Kind() != kind {
			return newError(ErrCategoryType, "EXPECTED_ARRAY", bd.prm.Name)
		}
		t, _ := v.target(-1)
		bd.ref, bd.byRef, bd.set = slot{t, -1}, true, true
		return nil
	}
	if !bd.prm.ByVal && isNameStart(b.mem[b.skipSpace(p)]) && b.bareVariable(p, end) {
		ref, _, err := b.parseVarRef(p)
		if err != nil {
			return err
		}
		s, err := b.resolveSlot(ref, VarFind)
		if err != nil {
			return err
		}
		if s.v.Type.Kind() == kind && !ref.empty {
			bd.ref, bd.byRef, bd.set = s, true, true
			return nil
		}
	}
	v, q, err := b.evaluate(p, TypeAny)
	if err != nil {
		return err
	}
	if b.skipSpace(q) != end {
		return newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(q))
	}
	if v, err = v.convert(kind); err != nil {
		return newError(ErrCategoryType, "TYPE_MISMATCH")
	}
	bd.val, bd.set = v, true
	return nil
}

// argsEnd returns the end of a statement's argument text, stopping at a
// trailing comment.
func (b *Interpreter) argsEnd(p int) int {
	quoted := false
	for q := p; ; q++ {
		switch c := b.mem[q]; {
		case c == 0:
			return q
		case c == '"':
			quoted = !quoted
		case c == '\'' && !quoted:
			return q
		}
	}
}

// bareVariable reports whether mem[p:end] is exactly one variable reference
// and not a call of a user FUNCTION.
func (b *Interpreter) bareVariable(p, end int) bool {
	name, _, q, err := b.parseName(p)
	if err != nil {
		return false
	}
	if b.findDef(name) != nil {
		return false
	}
	if b.mem[q] == '(' {
		r, err := b.matchParen(q + 1)
		if err != nil {
			return false
		}
		q = r + 1
	}
	return b.skipSpace(q) == end
}

// enterScope opens a new local level and creates the parameter records.
func (b *Interpreter) enterScope(def *procDef, args []binding) error {
	if b.localIndex >= b.limits.MaxCallDepth {
		return newError(ErrCategoryStructure, "CALL_DEPTH")
	}
	b.localIndex++
	for _, a := range args {
		if a.prm.Array && !a.set {
			continue
		}
		var err error
		if a.byRef {
			_, err = b.newPtr(a.prm.Name, a.ref.v, a.ref.idx)
		} else {
			var v *Variable
			if v, err = b.createVar(a.prm.Name, a.prm.Type.Kind(), b.localIndex, nil, 0); err == nil && a.set {
				err = v.store(0, a.val)
			}
		}
		if err != nil {
			b.clearVars(b.localIndex)
			b.localIndex--
			return err
		}
	}
	return nil
}

// callSub binds the arguments in mem[p:] and transfers control to the body.
func (b *Interpreter) callSub(def *procDef, p int) error {
	if def.IsFunc {
		return newError(ErrCategoryName, "UNKNOWN_SUB", def.Name)
	}
	p = b.skipSpace(p)
	end := b.argsEnd(p)
	// an optional bracket around the whole argument list
	if b.mem[p] == '(' {
		if r, err := b.matchParen(p + 1); err == nil && b.skipSpace(r+1) == end {
			p, end = p+1, r
		}
	}
	args, err := b.bindArgs(def, p, end)
	if err != nil {
		return err
	}
	level := b.localIndex
	if err := b.enterScope(def, args); err != nil {
		return err
	}
	b.returnStack = append(b.returnStack, returnEntry{resume: b.nextStmt, caller: b.curStmt, level: level, proc: def.Name})
	b.nextStmt = def.Body
	logger.Debug(logger.AreaExecution, "[%s] CALL %s level %d", b.sessionID, def.Name, b.localIndex)
	return nil
}

// callFunction invokes a user FUNCTION whose name ends before p and returns
// its result in the scratch arena.
func (b *Interpreter) callFunction(def *procDef, p int) (Value, int, error) {
	after, argStart, argEnd := p, p, p
	if b.mem[p] == '(' {
		end, err := b.matchParen(p + 1)
		if err != nil {
			return Value{}, p, err
		}
		argStart, argEnd, after = p+1, end, end+1
	}
	args, err := b.bindArgs(def, argStart, argEnd)
	if err != nil {
		return Value{}, after, err
	}
	level := b.localIndex
	if err := b.enterScope(def, args); err != nil {
		return Value{}, after, err
	}
	ret, err := b.findVar(varRef{name: def.Name}, VarFunRet, def.Type, 0)
	if err != nil {
		b.clearVars(b.localIndex)
		b.localIndex = level
		return Value{}, after, err
	}
	cur, next := b.curStmt, b.nextStmt
	b.returnStack = append(b.returnStack, returnEntry{resume: unwindSentinel, caller: cur, level: level, proc: def.Name})
	err = b.execute(def.Body, true)
	b.curStmt, b.nextStmt = cur, next
	if !errors.Is(err, errUnwind) {
		return Value{}, after, err
	}
	v := ret.load(0)
	if v.Type == TypeString {
		if v, err = b.tempString(v.S); err != nil {
			return Value{}, after, err
		}
	}
	return v, after, nil
}

// runInterrupt invokes an interrupt target, a SUB name or a label, as a
// nested invocation of the engine.
func (b *Interpreter) runInterrupt(target string) error {
	start := -1
	proc := ""
	if def := b.findDef(target); def != nil && !def.IsFunc {
		start, proc = def.Body, def.Name
	} else {
		line, err := findLabel(b.mem, 0, target)
		if err != nil {
			return err
		}
		start = line
	}
	level := b.localIndex
	if b.localIndex >= b.limits.MaxCallDepth {
		return newError(ErrCategoryStructure, "CALL_DEPTH")
	}
	logger.Debug(logger.AreaExecution, "[%s] interrupt %s", b.sessionID, target)
	b.inInterrupt = true
	defer func() { b.inInterrupt = false }()
	b.localIndex++
	cur, next := b.curStmt, b.nextStmt
	b.returnStack = append(b.returnStack, returnEntry{resume: unwindSentinel, caller: cur, level: level, proc: proc})
	err := b.execute(start, true)
	b.curStmt, b.nextStmt = cur, next
	if !errors.Is(err, errUnwind) {
		return err
	}
	return nil
}

// popFrame pops the top return frame, reclaiming its locals and any loops
// opened inside it.
func (b *Interpreter) popFrame() returnEntry {
	e := b.returnStack[len(b.returnStack)-1]
	b.returnStack = b.returnStack[:len(b.returnStack)-1]
	if b.localIndex > e.level {
		b.clearVars(e.level + 1)
	}
	b.localIndex = e.level
	b.pruneLoops(e.level)
	return e
}

// pruneLoops drops loop entries owned by levels above level.
func (b *Interpreter) pruneLoops(level int) {
	n := len(b.forStack)
	for n > 0 && b.forStack[n-1].level > level {
		n--
	}
	b.forStack = b.forStack[:n]
	n = len(b.doStack)
	for n > 0 && b.doStack[n-1].level > level {
		n--
	}
	b.doStack = b.doStack[:n]
}

// resume continues after a popped frame.
func (b *Interpreter) resume(e returnEntry) error {
	if e.resume == unwindSentinel {
		return errUnwind
	}
	b.nextStmt = e.resume
	return nil
}

// cmdEndSub implements END SUB, END FUNCTION, EXIT SUB and EXIT FUNCTION.
func (b *Interpreter) cmdEndSub(p int) error {
	for len(b.returnStack) > 0 {
		e := b.popFrame()
		if e.proc != "" {
			logger.Debug(logger.AreaExecution, "[%s] return from %s", b.sessionID, e.proc)
			return b.resume(e)
		}
	}
	return newError(ErrCategoryStructure, "INVALID_HERE", tokenName(b.mem[p-1]))
}

// cmdSubDefinition skips a definition met in the normal flow.
func (b *Interpreter) cmdSubDefinition(p int) error {
	want := byte(tokENDSUB)
	if b.mem[p-1] == tokFUNCTION {
		want = tokENDFUNCTION
	}
	q := skipStatement(b.mem, p)
	for {
		s, ok := nextStatement(b.mem, q)
		if !ok {
			return newError(ErrCategoryStructure, "SUB_WITHOUT_END", tokenName(b.mem[p-1]))
		}
		q = skipStatement(b.mem, s)
		if b.mem[s] == want {
			b.nextStmt = q
			return nil
		}
	}
}

// cmdCall implements CALL name$ [, args].
func (b *Interpreter) cmdCall(p int) error {
	name, q, err := b.evalString(p)
	if err != nil {
		return err
	}
	def := b.findDef(string(upper(name)))
	if def == nil {
		return newError(ErrCategoryName, "UNKNOWN_SUB", string(name))
	}
	if q = b.skipSpace(q); b.mem[q] == ',' {
		q++
	} else if !b.atEnd(q) {
		return newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(q))
	}
	return b.callSub(def, q)
}

// upper returns an upper-cased copy of s.
func upper(s []byte) []byte {
	out := make([]byte, len(s))
	for i, c := range s {
		out[i] = toUpper(c)
	}
	return out
}
