package basic

import (
	"strconv"
)

// cmdNop implements statements that do nothing when executed: REM, DATA,
// END IF and END SELECT.
func (b *Interpreter) cmdNop(p int) error { return nil }

// blockIf reports whether the IF statement at s is the multi-line form,
// that is THEN is followed only by a comment or nothing.
func (b *Interpreter) blockIf(s int) bool {
	if multi, ok := b.lineCache[s]; ok {
		return multi
	}
	multi := false
	quoted := false
	end := statementEnd(b.mem, s)
	for q := s + 1; q < end; q++ {
		c := b.mem[q]
		if c == '"' {
			quoted = !quoted
		}
		if !quoted && c == tokTHEN {
			multi = b.atEnd(q + 1)
			break
		}
	}
	b.lineCache[s] = multi
	return multi
}

// scanStatements calls fn for each statement from the boundary p until fn
// returns true. It reports false when the region ends first.
func (b *Interpreter) scanStatements(p int, fn func(s int) bool) bool {
	for {
		s, ok := nextStatement(b.mem, p)
		if !ok {
			return false
		}
		if fn(s) {
			return true
		}
		p = skipStatement(b.mem, s)
	}
}

// findIfBranch finds the next ELSE IF, ELSE or END IF of the block IF whose
// body starts at p.
func (b *Interpreter) findIfBranch(p int, endOnly bool) (int, error) {
	depth := 0
	found := -1
	ok := b.scanStatements(p, func(s int) bool {
		switch b.mem[s] {
		case tokIF:
			if b.blockIf(s) {
				depth++
			}
		case tokENDIF:
			if depth == 0 {
				found = s
				return true
			}
			depth--
		case tokELSEIF:
			if depth == 0 && !endOnly {
				found = s
				return true
			}
		case tokELSE:
			if depth == 0 && !endOnly && b.atEnd(s+1) {
				found = s
				return true
			}
		}
		return false
	})
	if !ok {
		return 0, newError(ErrCategoryStructure, "IF_WITHOUT_ENDIF")
	}
	return found, nil
}

// condition evaluates "expr THEN" or "expr GOTO". It returns the position
// of the THEN part.
func (b *Interpreter) condition(p int) (bool, int, error) {
	cond, q, err := b.evalTruth(p)
	if err != nil {
		return false, q, err
	}
	q = b.skipSpace(q)
	switch b.mem[q] {
	case tokTHEN:
		return cond, q + 1, nil
	case tokGOTO:
		return cond, q, nil
	}
	return false, q, newError(ErrCategorySyntax, "EXPECTED_THEN")
}

// cmdIf implements both IF forms.
func (b *Interpreter) cmdIf(p int) error {
	cond, q, err := b.condition(p)
	if err != nil {
		return err
	}
	if b.atEnd(q) {
		if cond {
			return nil
		}
		return b.nextBranch(b.nextStmt)
	}
	if cond {
		return b.thenPart(q)
	}
	// single line: look for a matching ELSE on the same line
	depth := b.countIfs(q, statementEnd(b.mem, q))
	s := b.nextStmt
	for s < len(b.mem) && b.mem[s] != 0 && b.mem[s] != tokNewLine && b.mem[s] != tokReserved {
		if b.mem[s] == tokELSE {
			if depth == 0 {
				return b.thenPart(s + 1)
			}
			depth--
		}
		depth += b.countIfs(s, statementEnd(b.mem, s))
		s = skipStatement(b.mem, s)
	}
	b.nextStmt = s
	return nil
}

// countIfs counts IF tokens in mem[p:end] outside quotes.
func (b *Interpreter) countIfs(p, end int) int {
	n := 0
	quoted := false
	for ; p < end; p++ {
		if b.mem[p] == '"' {
			quoted = !quoted
		} else if !quoted && b.mem[p] == tokIF {
			n++
		}
	}
	return n
}

// nextBranch continues a block IF whose current branch was not taken.
func (b *Interpreter) nextBranch(p int) error {
	for {
		s, err := b.findIfBranch(p, false)
		if err != nil {
			return err
		}
		p = skipStatement(b.mem, s)
		if b.mem[s] != tokELSEIF {
			b.nextStmt = p
			return nil
		}
		cond, q, err := b.condition(s + 1)
		if err != nil {
			return err
		}
		if err := b.checkEnd(q); err != nil {
			return err
		}
		if cond {
			b.nextStmt = p
			return nil
		}
	}
}

// thenPart continues with the statement after THEN or ELSE. A bare line
// number is an implied GOTO.
func (b *Interpreter) thenPart(q int) error {
	q = b.skipSpace(q)
	if isDigit(b.mem[q]) {
		return b.cmdGoto(q)
	}
	if b.atEnd(q) {
		b.nextStmt = nextLine(b.mem, q)
		return nil
	}
	b.nextStmt = q
	return nil
}

// cmdElse ends the taken branch of an IF.
func (b *Interpreter) cmdElse(p int) error {
	if !b.atEnd(p) {
		b.nextStmt = nextLine(b.mem, p)
		return nil
	}
	return b.skipToEndIf()
}

// cmdElseIf ends the taken branch of a block IF.
func (b *Interpreter) cmdElseIf(p int) error { return b.skipToEndIf() }

func (b *Interpreter) skipToEndIf() error {
	s, err := b.findIfBranch(b.nextStmt, true)
	if err != nil {
		return err
	}
	b.nextStmt = skipStatement(b.mem, s)
	return nil
}

// parseTarget reads a line number or label and returns its line position.
func (b *Interpreter) parseTarget(p int) (int, int, error) {
	p = b.skipSpace(p)
	if isDigit(b.mem[p]) {
		q := p
		for isDigit(b.mem[q]) {
			q++
		}
		n, err := strconv.Atoi(string(b.mem[p:q]))
		if err != nil || n < 1 || n > MaxLineNumber {
			return 0, q, newError(ErrCategorySyntax, "INVALID_LINE_NUMBER")
		}
		line, err := b.index.find(n, true)
		return line, q, err
	}
	name, _, q, err := b.parseName(p)
	if err != nil {
		return 0, q, newError(ErrCategorySyntax, "INVALID_LABEL")
	}
	line, err := findLabel(b.mem, 0, name)
	if err != nil && b.libEnd > b.libStart {
		if l, lerr := findLabel(b.mem, b.libStart, name); lerr == nil {
			return l, q, nil
		}
	}
	return line, q, err
}

// cmdGoto implements GOTO.
func (b *Interpreter) cmdGoto(p int) error {
	line, q, err := b.parseTarget(p)
	if err != nil {
		return err
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	b.nextStmt = line
	return nil
}

// cmdGosub implements GOSUB.
func (b *Interpreter) cmdGosub(p int) error {
	line, q, err := b.parseTarget(p)
	if err != nil {
		return err
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	return b.gosub(line)
}

// gosub pushes a return frame and jumps to line. The subroutine runs one
// local level deeper.
func (b *Interpreter) gosub(line int) error {
	if len(b.returnStack) >= b.limits.MaxGosubDepth {
		return newError(ErrCategoryStructure, "TOO_MANY_GOSUB")
	}
	if b.localIndex >= b.limits.MaxCallDepth {
		return newError(ErrCategoryStructure, "CALL_DEPTH")
	}
	b.returnStack = append(b.returnStack, returnEntry{resume: b.nextStmt, caller: b.curStmt, level: b.localIndex})
	b.localIndex++
	b.nextStmt = line
	return nil
}

// cmdReturn implements RETURN and IRETURN.
func (b *Interpreter) cmdReturn(p int) error {
	if err := b.checkEnd(p); err != nil {
		return err
	}
	n := len(b.returnStack)
	if n == 0 || b.returnStack[n-1].proc != "" {
		return newError(ErrCategoryStructure, "RETURN_WITHOUT_GOSUB")
	}
	return b.resume(b.popFrame())
}

// cmdOn implements ON ERROR and ON n GOTO/GOSUB.
func (b *Interpreter) cmdOn(p int) error {
	if q := b.skipSpace(p); b.mem[q] == tokERROR {
		return b.errorMode(q + 1)
	}
	n, q, err := b.evalInt(p)
	if err != nil {
		return err
	}
	q = b.skipSpace(q)
	kind := b.mem[q]
	if kind != tokGOTO && kind != tokGOSUB {
		return newError(ErrCategorySyntax, "SYNTAX_ERROR")
	}
	if n < 0 {
		return newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
	}
	targets := b.splitArgs(q+1, b.argsEnd(q+1))
	if n == 0 || n > int64(len(targets)) {
		return nil
	}
	line, r, err := b.parseTarget(targets[n-1][0])
	if err != nil {
		return err
	}
	if b.skipSpace(r) != targets[n-1][1] {
		return newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(r))
	}
	if kind == tokGOSUB {
		return b.gosub(line)
	}
	b.nextStmt = line
	return nil
}

// errorMode implements the SKIP, IGNORE, ABORT and CLEAR modes shared by
// ON ERROR and OPTION ERROR.
func (b *Interpreter) errorMode(p int) error {
	word, q := b.word(p)
	switch word {
	case "SKIP":
		n := int64(1)
		if !b.atEnd(q) {
			var err error
			if n, q, err = b.evalInt(q); err != nil {
				return err
			}
			if n < 0 {
				return newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
			}
		}
		b.errSkip = int(n)
	case "IGNORE":
		b.errSkip = -1
	case "ABORT":
		b.errSkip = 0
	case "CLEAR":
		b.errNo, b.errMsg = 0, ""
	default:
		return newError(ErrCategorySyntax, "INVALID_OPTION", word)
	}
	return b.checkEnd(q)
}

// word reads an upper-case literal word such as an OPTION name.
func (b *Interpreter) word(p int) (string, int) {
	p = b.skipSpace(p)
	q := p
	for isNameChar(b.mem[q]) {
		q++
	}
	return string(b.mem[p:q]), q
}

// cmdFor implements FOR var = start TO limit [STEP step].
func (b *Interpreter) cmdFor(p int) error {
	ref, q, err := b.parseVarRef(p)
	if err != nil {
		return err
	}
	s, err := b.resolveSlot(ref, VarFind)
	if err != nil {
		return err
	}
	kind := s.v.Type.Kind()
	if kind == TypeString {
		return newError(ErrCategoryType, "EXPECTED_NUMBER")
	}
	if q, err = b.expect(q, tokEQ, "EXPECTED_EQUALS"); err != nil {
		return err
	}
	start, q, err := b.evaluate(q, TypeNumber)
	if err != nil {
		return err
	}
	if q, err = b.expect(q, tokTO, "EXPECTED_TO"); err != nil {
		return err
	}
	limit, q, err := b.evaluate(q, kind)
	if err != nil {
		return err
	}
	step := IntValue(1)
	if kind == TypeFloat {
		step = FloatValue(1)
	}
	if q = b.skipSpace(q); b.mem[q] == tokSTEP {
		if step, q, err = b.evaluate(q+1, kind); err != nil {
			return err
		}
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	if err := s.store(start); err != nil {
		return err
	}

	// a loop re-entered after a jump replaces its stale entry
	for i := range b.forStack {
		if b.forStack[i].slot == s && b.forStack[i].level == b.localIndex {
			b.forStack = b.forStack[:i]
			break
		}
	}
	if len(b.forStack) >= b.limits.MaxForLoops {
		return newError(ErrCategoryStructure, "TOO_MANY_FOR")
	}
	if !forContinues(s.load(), limit, step) {
		after, err := b.skipFor(b.nextStmt)
		if err != nil {
			return err
		}
		b.nextStmt = after
		return nil
	}
	b.forStack = append(b.forStack, forEntry{
		slot:  s,
		name:  ref.name,
		kind:  kind,
		level: b.localIndex,
		pos:   p - 1,
		body:  b.nextStmt,
		limit: limit,
		step:  step,
	})
	return nil
}

// forContinues tests the loop variable against the limit in the direction
// of the step.
func forContinues(v, limit, step Value) bool {
	if v.Type == TypeInt {
		if step.I >= 0 {
			return v.I <= limit.I
		}
		return v.I >= limit.I
	}
	if step.F >= 0 {
		return v.F <= limit.F
	}
	return v.F >= limit.F
}

// skipFor returns the boundary after the NEXT matching a FOR whose body
// starts at p.
func (b *Interpreter) skipFor(p int) (int, error) {
	depth := 1
	after := -1
	ok := b.scanStatements(p, func(s int) bool {
		switch b.mem[s] {
		case tokFOR:
			depth++
		case tokNEXT:
			n := 1
			if !b.atEnd(s + 1) {
				n = len(b.splitArgs(s+1, statementEnd(b.mem, s)))
			}
			if depth -= n; depth <= 0 {
				after = skipStatement(b.mem, s)
				return true
			}
		}
		return false
	})
	if !ok {
		return 0, newError(ErrCategoryStructure, "FOR_WITHOUT_NEXT")
	}
	return after, nil
}

// innermostFor returns the index of the innermost FOR at the current level.
func (b *Interpreter) innermostFor() int {
	for i := len(b.forStack) - 1; i >= 0; i-- {
		if b.forStack[i].level == b.localIndex {
			return i
		}
		if b.forStack[i].level < b.localIndex {
			break
		}
	}
	return -1
}

// cmdNext implements NEXT [var [, var ...]].
func (b *Interpreter) cmdNext(p int) error {
	if b.atEnd(p) {
		i := b.innermostFor()
		if i < 0 {
			return newError(ErrCategoryStructure, "NEXT_WITHOUT_FOR")
		}
		b.stepLoop(i)
		return nil
	}
	for {
		ref, q, err := b.parseVarRef(p)
		if err != nil {
			return err
		}
		s, err := b.resolveSlot(ref, VarNoFindError)
		if err != nil {
			// an undeclared name cannot be a live loop variable
			if be, ok := AsBASICError(err); ok && be.Code == "UNKNOWN_VARIABLE" {
				return newError(ErrCategoryStructure, "NEXT_WITHOUT_FOR")
			}
			return err
		}
		i := len(b.forStack) - 1
		for ; i >= 0; i-- {
			if b.forStack[i].slot == s && b.forStack[i].level == b.localIndex {
				break
			}
		}
		if i < 0 {
			return newError(ErrCategoryStructure, "NEXT_WITHOUT_FOR")
		}
		b.forStack = b.forStack[:i+1]
		if b.stepLoop(i) {
			return nil
		}
		q = b.skipSpace(q)
		if b.mem[q] != ',' {
			return b.checkEnd(q)
		}
		p = q + 1
	}
}

// stepLoop advances loop i. It reports whether the loop continues; a
// finished loop is popped.
func (b *Interpreter) stepLoop(i int) bool {
	e := &b.forStack[i]
	v := e.slot.load()
	if e.kind == TypeInt {
		n, ok := addInt(v.I, e.step.I)
		if !ok {
			// the next value lies beyond any int64 limit
			b.forStack = b.forStack[:i]
			return false
		}
		v = IntValue(n)
	} else {
		v = FloatValue(v.F + e.step.F)
	}
	_ = e.slot.v.store(e.slot.idx, v)
	if forContinues(v, e.limit, e.step) {
		b.nextStmt = e.body
		return true
	}
	b.forStack = b.forStack[:i]
	return false
}

// cmdExitFor implements EXIT FOR.
func (b *Interpreter) cmdExitFor(p int) error {
	i := b.innermostFor()
	if i < 0 {
		return newError(ErrCategoryStructure, "EXIT_OUTSIDE_LOOP", "FOR")
	}
	body := b.forStack[i].body
	b.forStack = b.forStack[:i]
	after, err := b.skipFor(body)
	if err != nil {
		return err
	}
	b.nextStmt = after
	return nil
}

// loopCondition reads an optional WHILE or UNTIL clause.
func (b *Interpreter) loopCondition(p int) (cond int, until bool, err error) {
	q := b.skipSpace(p)
	switch b.mem[q] {
	case tokWHILE:
		return q + 1, false, nil
	case tokUNTIL:
		return q + 1, true, nil
	}
	return -1, false, b.checkEnd(q)
}

// testCondition evaluates a loop condition; until inverts it.
func (b *Interpreter) testCondition(cond int, until bool) (bool, error) {
	t, q, err := b.evalTruth(cond)
	if err != nil {
		return false, err
	}
	if err := b.checkEnd(q); err != nil {
		return false, err
	}
	return t != until, nil
}

// cmdDo implements DO [WHILE|UNTIL cond].
func (b *Interpreter) cmdDo(p int) error {
	cond, until, err := b.loopCondition(p)
	if err != nil {
		return err
	}
	return b.enterLoop(p-1, cond, until, false)
}

// cmdWhile implements WHILE cond.
func (b *Interpreter) cmdWhile(p int) error {
	return b.enterLoop(p-1, p, false, true)
}

// enterLoop pushes a DO or WHILE entry, or skips the loop when its entry
// condition already fails.
func (b *Interpreter) enterLoop(pos, cond int, until, wend bool) error {
	for i := range b.doStack {
		if b.doStack[i].pos == pos && b.doStack[i].level == b.localIndex {
			b.doStack = b.doStack[:i]
			break
		}
	}
	if len(b.doStack) >= b.limits.MaxDoLoops {
		return newError(ErrCategoryStructure, "TOO_MANY_DO")
	}
	if cond >= 0 {
		ok, err := b.testCondition(cond, until)
		if err != nil {
			return err
		}
		if !ok {
			after, err := b.skipDo(b.nextStmt, wend)
			if err != nil {
				return err
			}
			b.nextStmt = after
			return nil
		}
	}
	b.doStack = append(b.doStack, doEntry{pos: pos, body: b.nextStmt, cond: cond, until: until, level: b.localIndex, wend: wend})
	return nil
}

// skipDo returns the boundary after the LOOP or WEND closing a loop whose
// body starts at p.
func (b *Interpreter) skipDo(p int, wend bool) (int, error) {
	depth := 1
	after := -1
	ok := b.scanStatements(p, func(s int) bool {
		switch b.mem[s] {
		case tokDO, tokWHILE:
			depth++
		case tokLOOP, tokWEND:
			if depth--; depth == 0 {
				after = skipStatement(b.mem, s)
				return true
			}
		}
		return false
	})
	if !ok {
		if wend {
			return 0, newError(ErrCategoryStructure, "WHILE_WITHOUT_WEND")
		}
		return 0, newError(ErrCategoryStructure, "DO_WITHOUT_LOOP")
	}
	return after, nil
}

// innermostDo returns the index of the innermost loop of the given kind at
// the current level.
func (b *Interpreter) innermostDo(wend bool) int {
	for i := len(b.doStack) - 1; i >= 0; i-- {
		e := b.doStack[i]
		if e.level < b.localIndex {
			break
		}
		if e.level == b.localIndex && e.wend == wend {
			return i
		}
	}
	return -1
}

// cmdLoop implements LOOP [WHILE|UNTIL cond].
func (b *Interpreter) cmdLoop(p int) error {
	i := b.innermostDo(false)
	if i < 0 {
		return newError(ErrCategoryStructure, "LOOP_WITHOUT_DO")
	}
	b.doStack = b.doStack[:i+1]
	e := b.doStack[i]
	cond, until, err := b.loopCondition(p)
	if err != nil {
		return err
	}
	if cond >= 0 && e.cond >= 0 {
		return newError(ErrCategoryStructure, "LOOP_CONDITION_TWICE")
	}
	if cond < 0 {
		cond, until = e.cond, e.until
	}
	again := true
	if cond >= 0 {
		if again, err = b.testCondition(cond, until); err != nil {
			return err
		}
	}
	if again {
		b.nextStmt = e.body
		return nil
	}
	b.doStack = b.doStack[:i]
	return nil
}

// cmdWend implements WEND.
func (b *Interpreter) cmdWend(p int) error {
	if err := b.checkEnd(p); err != nil {
		return err
	}
	i := b.innermostDo(true)
	if i < 0 {
		return newError(ErrCategoryStructure, "WEND_WITHOUT_WHILE")
	}
	b.doStack = b.doStack[:i+1]
	e := b.doStack[i]
	again, err := b.testCondition(e.cond, false)
	if err != nil {
		return err
	}
	if again {
		b.nextStmt = e.body
		return nil
	}
	b.doStack = b.doStack[:i]
	return nil
}

// cmdExitDo implements EXIT DO.
func (b *Interpreter) cmdExitDo(p int) error {
	i := b.innermostDo(false)
	if i < 0 {
		return newError(ErrCategoryStructure, "EXIT_OUTSIDE_LOOP", "DO")
	}
	body := b.doStack[i].body
	b.doStack = b.doStack[:i]
	after, err := b.skipDo(body, false)
	if err != nil {
		return err
	}
	b.nextStmt = after
	return nil
}

// cmdSelectCase evaluates the selector once and continues after the first
// matching CASE, after CASE ELSE, or after END SELECT.
func (b *Interpreter) cmdSelectCase(p int) error {
	sel, q, err := b.evaluate(p, TypeAny)
	if err != nil {
		return err
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	if sel.Type == TypeString {
		sel.S = append([]byte(nil), sel.S...)
	}
	depth := 0
	var caseErr error
	ok := b.scanStatements(b.nextStmt, func(s int) bool {
		switch b.mem[s] {
		case tokSELECTCASE:
			depth++
		case tokENDSELECT:
			if depth == 0 {
				b.nextStmt = skipStatement(b.mem, s)
				return true
			}
			depth--
		case tokCASEELSE:
			if depth == 0 {
				b.nextStmt = skipStatement(b.mem, s)
				return true
			}
		case tokCASE:
			if depth > 0 {
				return false
			}
			match, err := b.caseMatches(s+1, sel)
			if err != nil {
				caseErr = err
				return true
			}
			if match {
				b.nextStmt = skipStatement(b.mem, s)
				return true
			}
		}
		return false
	})
	if caseErr != nil {
		return caseErr
	}
	if !ok {
		return newError(ErrCategoryStructure, "SELECT_WITHOUT_END")
	}
	return nil
}

// caseMatches tests the CASE clause list at p against sel.
func (b *Interpreter) caseMatches(p int, sel Value) (bool, error) {
	for {
		q := b.skipSpace(p)
		op := byte(tokEQ)
		explicit := false
		if b.mem[q] == tokIS {
			q = b.skipSpace(q + 1)
			explicit = true
		}
		switch b.mem[q] {
		case tokEQ, tokNE, tokLT, tokGT, tokLE, tokGE:
			op, explicit = b.mem[q], true
			q++
		default:
			if explicit {
				return false, newError(ErrCategorySyntax, "SYNTAX_ERROR")
			}
		}
		v, q, err := b.evaluate(q, TypeAny)
		if err != nil {
			return false, err
		}
		var match Value
		if q = b.skipSpace(q); !explicit && b.mem[q] == tokTO {
			hi, r, err := b.evaluate(q+1, TypeAny)
			if err != nil {
				return false, err
			}
			q = r
			lo, err := b.applyOp(tokGE, sel, v)
			if err != nil {
				return false, err
			}
			if match, err = b.applyOp(tokLE, sel, hi); err != nil {
				return false, err
			}
			match.I &= lo.I
		} else if match, err = b.applyOp(op, sel, v); err != nil {
			return false, err
		}
		if match.I != 0 {
			return true, nil
		}
		if q = b.skipSpace(q); b.mem[q] != ',' {
			return false, b.checkEnd(q)
		}
		p = q + 1
	}
}

// cmdCase ends the body of the CASE clause that was taken.
func (b *Interpreter) cmdCase(p int) error {
	depth := 0
	ok := b.scanStatements(b.nextStmt, func(s int) bool {
		switch b.mem[s] {
		case tokSELECTCASE:
			depth++
		case tokENDSELECT:
			if depth == 0 {
				b.nextStmt = skipStatement(b.mem, s)
				return true
			}
			depth--
		}
		return false
	})
	if !ok {
		return newError(ErrCategoryStructure, "SELECT_WITHOUT_END")
	}
	return nil
}
