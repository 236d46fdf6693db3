package main

import (
	"bufio"
	"errors"
	"io"

	"github.com/antibyte/retrobasic/pkg/basic"

	"github.com/peterh/liner"
)

// lineConsole is the interactive basic.Console. Output up to the next
// newline is held back so INPUT can hand it to liner as the prompt.
type lineConsole struct {
	ln      *liner.State
	out     *bufio.Writer
	partial []byte
	abort   func()
}

func newLineConsole(ln *liner.State, w io.Writer) *lineConsole {
	return &lineConsole{ln: ln, out: bufio.NewWriter(w)}
}

// WriteChar implements basic.Console.
func (c *lineConsole) WriteChar(stream int, ch byte) error {
	if stream != 0 {
		return basic.ErrStreamNotOpen
	}
	if ch != '\n' {
		c.partial = append(c.partial, ch)
		return nil
	}
	c.out.Write(c.partial)
	c.partial = c.partial[:0]
	c.out.WriteByte('\n')
	return c.out.Flush()
}

// ReadLine implements basic.Console. Ctrl-C aborts the running command.
func (c *lineConsole) ReadLine(stream int) ([]byte, error) {
	if stream != 0 {
		return nil, basic.ErrStreamNotOpen
	}
	if err := c.out.Flush(); err != nil {
		return nil, err
	}
	prompt := string(c.partial)
	c.partial = c.partial[:0]
	line, err := c.ln.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) && c.abort != nil {
		c.abort()
	}
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// flush writes output left without a trailing newline.
func (c *lineConsole) flush() {
	if len(c.partial) > 0 {
		c.out.Write(c.partial)
		c.partial = c.partial[:0]
		c.out.WriteByte('\n')
	}
	c.out.Flush()
}
