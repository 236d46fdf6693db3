package basic

import (
	"errors"
	"strconv"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// execute runs statements starting at the boundary p until the end of the
// region, END, or the unwind sentinel is popped. nested marks an invocation
// made on behalf of a FUNCTION call or an interrupt.
func (b *Interpreter) execute(p int, nested bool) error {
	base := b.scratch.top
	for {
		s, ok := nextStatement(b.mem, p)
		if !ok {
			if nested {
				name := ""
				if n := len(b.returnStack); n > 0 {
					name = b.returnStack[n-1].proc
				}
				return b.locate(newError(ErrCategoryStructure, "FUNCTION_NOT_ENDED", name), b.curStmt)
			}
			return nil
		}
		b.curStmt = s
		after := skipStatement(b.mem, s)
		b.nextStmt = after

		if err := b.poll(); err != nil {
			return b.locate(err, s)
		}
		if b.trace {
			b.traceStatement(s)
		}

		seq, level := b.varSeq, b.localIndex
		nRet, nFor, nDo := len(b.returnStack), len(b.forStack), len(b.doStack)

		err := b.dispatch(s)
		b.scratch.top = base
		if err == nil {
			p = b.nextStmt
			continue
		}
		if errors.Is(err, errUnwind) || errors.Is(err, errEnd) {
			return err
		}
		be := b.locate(err, s)
		b.recordError(be)
		if b.errSkip == 0 || !skippable(be) {
			return be
		}
		if b.errSkip > 0 {
			b.errSkip--
		}
		// resume with the next statement, undoing the failed statement's frames
		logger.Info(logger.AreaExecution, "[%s] skipped error: %s", b.sessionID, be.Error())
		b.rollbackVars(seq)
		if b.localIndex > level {
			b.clearVars(level + 1)
		}
		b.localIndex = level
		b.returnStack = b.returnStack[:min(nRet, len(b.returnStack))]
		b.forStack = b.forStack[:min(nFor, len(b.forStack))]
		b.doStack = b.doStack[:min(nDo, len(b.doStack))]
		b.exprDepth = 0
		p = after
	}
}

// dispatch runs the statement at s.
func (b *Interpreter) dispatch(s int) error {
	c := b.mem[s]
	switch {
	case c >= TokenBase:
		e := tokenByID(c)
		if e == nil || e.Flags&TokCommand == 0 || e.cmd == nil {
			return newError(ErrCategorySyntax, "UNKNOWN_COMMAND")
		}
		return e.cmd(b, s+1)
	case c == '\'':
		return nil
	case isNameStart(c):
		name, _, q, err := b.parseName(s)
		if err != nil {
			return err
		}
		def := b.findDef(name)
		if def == nil || def.IsFunc {
			return newError(ErrCategorySyntax, "UNKNOWN_COMMAND")
		}
		return b.callSub(def, q)
	}
	return newError(ErrCategorySyntax, "UNKNOWN_COMMAND")
}

// poll checks for cancellation and pending interrupts.
func (b *Interpreter) poll() error {
	if b.ctx != nil {
		if err := b.ctx.Err(); err != nil {
			return newError(ErrCategoryBreak, "BREAK")
		}
	}
	if b.interrupt == nil || b.inInterrupt {
		return nil
	}
	target, ok := b.interrupt.Pending()
	if !ok {
		return nil
	}
	return b.runInterrupt(target)
}

// traceStatement prints the line number of each newly entered line.
func (b *Interpreter) traceStatement(s int) {
	if s >= b.libStart && b.libEnd > b.libStart {
		return
	}
	ls := lineStart(b.mem, b.regionStart(s), s)
	if ls == b.traceLine {
		return
	}
	b.traceLine = ls
	n := lineNumberOf(b.mem, ls)
	if n == 0 {
		n = countLines(b.mem, b.regionStart(s), s)
	}
	_ = b.writeString(0, "["+strconv.Itoa(n)+"]")
	logger.Debug(logger.AreaExecution, "[%s] trace line %d", b.sessionID, n)
}

// checkEnd requires the statement to end at p.
func (b *Interpreter) checkEnd(p int) error {
	p = b.skipSpace(p)
	if b.mem[p] == 0 || b.mem[p] == '\'' {
		return nil
	}
	return newError(ErrCategorySyntax, "UNEXPECTED_TEXT", b.renderFrom(p))
}

// atEnd reports whether only blanks or a comment remain at p.
func (b *Interpreter) atEnd(p int) bool {
	p = b.skipSpace(p)
	return b.mem[p] == 0 || b.mem[p] == '\''
}

// renderFrom renders the rest of the statement at p for messages.
func (b *Interpreter) renderFrom(p int) string {
	end := statementEnd(b.mem, p)
	r := &renderer{}
	for _, c := range b.mem[p:end] {
		if c >= TokenBase {
			r.token(c)
		} else {
			r.literal(c)
		}
	}
	return r.sb.String()
}

// skipSpace skips literal blanks.
func (b *Interpreter) skipSpace(p int) int {
	for p < len(b.mem) && b.mem[p] == ' ' {
		p++
	}
	return p
}

// expect consumes token id at p.
func (b *Interpreter) expect(p int, id byte, code string) (int, error) {
	p = b.skipSpace(p)
	if b.mem[p] != id {
		return p, newError(ErrCategorySyntax, code)
	}
	return p + 1, nil
}
