package basic

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Console is the character I/O device used by PRINT and INPUT. Stream 0 is
// the console; other streams are host defined.
type Console interface {
	ReadLine(stream int) ([]byte, error)
	WriteChar(stream int, c byte) error
}

// InterruptSource is polled once per statement. Pending returns the SUB name
// or label to invoke.
type InterruptSource interface {
	Pending() (target string, ok bool)
}

// StdConsole is a Console on an io.Reader and io.Writer serving stream 0.
type StdConsole struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	buf [1]byte
}

// NewStdConsole wraps r and w.
func NewStdConsole(r io.Reader, w io.Writer) *StdConsole {
	c := &StdConsole{out: w}
	if r != nil {
		c.in = bufio.NewReader(r)
	}
	return c
}

// ReadLine reads one line without its terminator.
func (c *StdConsole) ReadLine(stream int) ([]byte, error) {
	if stream != 0 {
		return nil, ErrStreamNotOpen
	}
	if c.in == nil {
		return nil, io.EOF
	}
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// WriteChar writes one byte.
func (c *StdConsole) WriteChar(stream int, ch byte) error {
	if stream != 0 {
		return ErrStreamNotOpen
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[0] = ch
	_, err := c.out.Write(c.buf[:])
	return err
}

// InterruptQueue is an InterruptSource fed by the host.
type InterruptQueue struct {
	mu      sync.Mutex
	pending []string
}

// Raise queues target for invocation at the next statement boundary.
func (q *InterruptQueue) Raise(target string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, strings.ToUpper(target))
}

// Pending implements InterruptSource.
func (q *InterruptQueue) Pending() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}

// writeString sends s to a stream, tracking the output column.
func (b *Interpreter) writeString(stream int, s string) error {
	if b.console == nil {
		return ErrNoConsole
	}
	for i := 0; i < len(s); i++ {
		if err := b.console.WriteChar(stream, s[i]); err != nil {
			return b.streamError(stream, err)
		}
		if s[i] == '\n' || s[i] == '\r' {
			b.column[stream] = 0
		} else {
			b.column[stream]++
		}
	}
	return nil
}

// readLine reads one line from a stream.
func (b *Interpreter) readLine(stream int) ([]byte, error) {
	if b.console == nil {
		return nil, ErrNoConsole
	}
	line, err := b.console.ReadLine(stream)
	if err != nil {
		return nil, b.streamError(stream, err)
	}
	b.column[stream] = 0
	return line, nil
}

func (b *Interpreter) streamError(stream int, err error) error {
	if b.ctx != nil && b.ctx.Err() != nil {
		return newError(ErrCategoryBreak, "BREAK")
	}
	switch {
	case err == ErrStreamNotOpen:
		return newError(ErrCategoryResource, "STREAM_NOT_OPEN", stream)
	case err == io.EOF:
		return newError(ErrCategoryResource, "INPUT_CLOSED")
	}
	return err
}
