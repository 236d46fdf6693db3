package terminal

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"
)

// outputChunk is the most output buffered before a TEXT frame is sent.
const outputChunk = 512

var (
	errInputTimeout   = errors.New("input timed out")
	errInputCancelled = errors.New("input cancelled")
)

// wsConsole is the basic.Console of one connection. Output is sent as TEXT
// frames at each newline; ReadLine waits for the next INPUT frame.
type wsConsole struct {
	client  *Client
	timeout time.Duration

	mu  sync.Mutex
	buf []byte

	input  chan string
	cancel chan struct{}
}

func newWSConsole(client *Client, timeout time.Duration) *wsConsole {
	return &wsConsole{
		client:  client,
		timeout: timeout,
		input:   make(chan string, 16),
		cancel:  make(chan struct{}, 1),
	}
}

// WriteChar implements basic.Console.
func (c *wsConsole) WriteChar(stream int, ch byte) error {
	if stream != 0 {
		return basic.ErrStreamNotOpen
	}
	c.mu.Lock()
	c.buf = append(c.buf, ch)
	full := ch == '\n' || len(c.buf) >= outputChunk
	c.mu.Unlock()
	if full {
		return c.flush()
	}
	return nil
}

// ReadLine implements basic.Console.
func (c *wsConsole) ReadLine(stream int) ([]byte, error) {
	if stream != 0 {
		return nil, basic.ErrStreamNotOpen
	}
	if err := c.flush(); err != nil {
		return nil, err
	}
	if err := c.client.sendMessage(shared.Message{
		Type:         shared.MessageTypeInputControl,
		InputEnabled: shared.Bool(true),
	}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case line := <-c.input:
		return []byte(line), nil
	case <-c.cancel:
		return nil, errInputCancelled
	case <-c.client.ctx.Done():
		return nil, io.EOF
	case <-timer.C:
		logger.ConsoleWarn("[%s] input timed out after %v", c.client.sessionID, c.timeout)
		return nil, errInputTimeout
	}
}

// flush sends buffered output as one TEXT frame.
func (c *wsConsole) flush() error {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return nil
	}
	text := string(c.buf)
	c.buf = c.buf[:0]
	c.mu.Unlock()
	return c.client.sendMessage(shared.Message{
		Type:      shared.MessageTypeText,
		Content:   text,
		NoNewline: true,
	})
}

// deliver queues a line for ReadLine. Lines beyond the queue are dropped.
func (c *wsConsole) deliver(line string) {
	select {
	case c.input <- line:
	default:
		logger.ConsoleWarn("[%s] input queue full, line dropped", c.client.sessionID)
	}
}

// interruptInput wakes a pending ReadLine.
func (c *wsConsole) interruptInput() {
	select {
	case c.cancel <- struct{}{}:
	default:
	}
}

// drain discards input and cancellations left over when a command ends.
func (c *wsConsole) drain() {
	for {
		select {
		case <-c.input:
		case <-c.cancel:
		default:
			return
		}
	}
}
