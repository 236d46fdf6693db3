package basic

import (
	"time"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// cmdEnd stops the program.
func (b *Interpreter) cmdEnd(p int) error {
	if err := b.checkEnd(p); err != nil {
		return err
	}
	logger.Debug(logger.AreaExecution, "[%s] END", b.sessionID)
	return errEnd
}

// cmdClear deletes all variables. It is refused inside a SUB, FUNCTION or
// GOSUB because the active frames own local records.
func (b *Interpreter) cmdClear(p int) error {
	if err := b.checkEnd(p); err != nil {
		return err
	}
	if b.localIndex > 0 {
		return newError(ErrCategoryStructure, "INVALID_HERE", "CLEAR")
	}
	b.clearVars(0)
	b.forStack = b.forStack[:0]
	return nil
}

// cmdTrace implements TRACE ON | OFF.
func (b *Interpreter) cmdTrace(p int) error {
	w, q := b.word(p)
	switch w {
	case "ON":
		b.trace, b.traceLine = true, -1
	case "OFF":
		b.trace = false
	default:
		return newError(ErrCategorySyntax, "SYNTAX_ERROR")
	}
	return b.checkEnd(q)
}

// cmdRandomize reseeds RND, from the clock when no seed is given.
func (b *Interpreter) cmdRandomize(p int) error {
	seed := time.Now().UnixNano()
	q := p
	if !b.atEnd(p) {
		n, r, err := b.evalInt(p)
		if err != nil {
			return err
		}
		seed, q = n, r
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	b.rng.Seed(seed)
	return nil
}

// cmdError raises a user error: ERROR ["message" [, number]].
func (b *Interpreter) cmdError(p int) error {
	msg, number := "Error", 0
	q := p
	if !b.atEnd(p) {
		s, r, err := b.evalString(p)
		if err != nil {
			return err
		}
		msg, q = string(s), b.skipSpace(r)
		if b.mem[q] == ',' {
			n, r, err := b.evalInt(q + 1)
			if err != nil {
				return err
			}
			number, q = int(n), r
		}
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	return userError(msg, number)
}
