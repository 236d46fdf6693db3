package basic

import (
	"strings"
)

// printZone is the width of the PRINT comma zones.
const printZone = 8

// streamPrefix reads an optional "#n," stream selector.
func (b *Interpreter) streamPrefix(p int) (int, int, error) {
	q := b.skipSpace(p)
	if b.mem[q] != '#' {
		return 0, q, nil
	}
	n, r, err := b.evalInt(q + 1)
	if err != nil {
		return 0, r, err
	}
	if n < 0 || n > 255 {
		return 0, r, newError(ErrCategoryBounds, "NUMBER_OUT_OF_RANGE")
	}
	if r = b.skipSpace(r); b.mem[r] == ',' {
		r++
	}
	return int(n), r, nil
}

// formatPrint renders a value for PRINT. Non-negative numbers get a
// leading space where the sign would be.
func formatPrint(v Value) string {
	switch {
	case v.Type == TypeString:
		return string(v.S)
	case v.Type == TypeInt && v.I >= 0, v.Type == TypeFloat && v.F >= 0:
		return " " + v.String()
	}
	return v.String()
}

// cmdPrint implements PRINT [#n,] [item {; | ,} ...].
func (b *Interpreter) cmdPrint(p int) error {
	stream, q, err := b.streamPrefix(p)
	if err != nil {
		return err
	}
	newline := true
	for !b.atEnd(q) {
		q = b.skipSpace(q)
		switch b.mem[q] {
		case ';':
			newline = false
			q++
			continue
		case ',':
			pad := printZone - b.column[stream]%printZone
			if err := b.writeString(stream, strings.Repeat(" ", pad)); err != nil {
				return err
			}
			newline = false
			q++
			continue
		}
		v, r, err := b.evaluate(q, TypeAny)
		if err != nil {
			return err
		}
		if err := b.writeString(stream, formatPrint(v)); err != nil {
			return err
		}
		newline = true
		q = r
	}
	if newline {
		return b.writeString(stream, "\n")
	}
	return nil
}

// inputPrompt reads an optional "prompt" followed by ';' or ','. It returns
// the text to show before reading.
func (b *Interpreter) inputPrompt(p int, question bool) (string, int, error) {
	q := b.skipSpace(p)
	if b.mem[q] != '"' {
		if question {
			return "? ", q, nil
		}
		return "", q, nil
	}
	v, r, err := b.evaluate(q, TypeString)
	if err != nil {
		return "", r, err
	}
	prompt := string(v.S)
	r = b.skipSpace(r)
	switch b.mem[r] {
	case ';':
		if question {
			prompt += "? "
		}
	case ',':
	default:
		return "", r, newError(ErrCategorySyntax, "SYNTAX_ERROR")
	}
	return prompt, r + 1, nil
}

// promptLine shows prompt on the console stream and reads one line.
func (b *Interpreter) promptLine(stream int, prompt string) ([]byte, error) {
	if stream == 0 && prompt != "" {
		if err := b.writeString(0, prompt); err != nil {
			return nil, err
		}
	}
	return b.readLine(stream)
}

// cmdInput implements INPUT [#n,] ["prompt" {; | ,}] var [, var ...].
// Missing fields leave zero or empty values.
func (b *Interpreter) cmdInput(p int) error {
	stream, q, err := b.streamPrefix(p)
	if err != nil {
		return err
	}
	prompt, q, err := b.inputPrompt(q, stream == 0)
	if err != nil {
		return err
	}
	var targets []slot
	for {
		ref, r, err := b.parseVarRef(q)
		if err != nil {
			return err
		}
		s, err := b.resolveSlot(ref, VarFind)
		if err != nil {
			return err
		}
		targets = append(targets, s)
		if r = b.skipSpace(r); b.mem[r] != ',' {
			if err := b.checkEnd(r); err != nil {
				return err
			}
			break
		}
		q = r + 1
	}
	line, err := b.promptLine(stream, prompt)
	if err != nil {
		return err
	}
	fields := splitItems(string(line))
	for k, s := range targets {
		var item dataItem
		if k < len(fields) {
			item = fields[k]
		}
		var val Value
		if s.v.Type.Kind() == TypeString {
			val = StringValue([]byte(item.text))
		} else {
			val = parseNumber(item.text)
		}
		if err := s.store(val); err != nil {
			return err
		}
	}
	return nil
}

// cmdLineInput implements LINE INPUT [#n,] ["prompt" {; | ,}] var$.
func (b *Interpreter) cmdLineInput(p int) error {
	stream, q, err := b.streamPrefix(p)
	if err != nil {
		return err
	}
	prompt, q, err := b.inputPrompt(q, false)
	if err != nil {
		return err
	}
	ref, q, err := b.parseVarRef(q)
	if err != nil {
		return err
	}
	s, err := b.resolveSlot(ref, VarFind)
	if err != nil {
		return err
	}
	if s.v.Type.Kind() != TypeString {
		return newError(ErrCategoryType, "EXPECTED_STRING")
	}
	if err := b.checkEnd(q); err != nil {
		return err
	}
	line, err := b.promptLine(stream, prompt)
	if err != nil {
		return err
	}
	return s.store(StringValue(line))
}
