package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/gorilla/websocket"
)

// WebSocket settings from the [Console] section.

func getWriteWait() time.Duration {
	return configuration.GetDuration("Console", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Console", "pong_timeout", 60*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Console", "max_message_size_kb", 16) * 1024)
}

func getInputTimeout() time.Duration {
	return configuration.GetDuration("Console", "input_timeout", 10*time.Minute)
}

// getMaxRunTime bounds one command; zero disables the limit.
func getMaxRunTime() time.Duration {
	return configuration.GetDuration("Console", "max_run_time", 30*time.Minute)
}

const sendBuffer = 256

var errClientGone = errors.New("client disconnected")

// Client is one console connection with its own interpreter.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	handler   *Handler
	ipAddress string
	sessionID string

	shell      *basic.Shell
	console    *wsConsole
	interrupts *basic.InterruptQueue
	busy       atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	shutdown  chan struct{}
	closeOnce sync.Once
}

// sendMessage queues msg for the write pump.
func (c *Client) sendMessage(msg shared.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.shutdown:
		return errClientGone
	case <-time.After(getWriteWait()):
		logger.ConsoleWarn("send timeout for session %s, closing", c.sessionID)
		go c.handler.cleanupClient(c)
		return errClientGone
	}
}

func (c *Client) sendPrompt() {
	c.sendMessage(shared.Message{
		Type:         shared.MessageTypePrompt,
		PromptSymbol: "> ",
		InputEnabled: shared.Bool(true),
	})
}

// reportError sends err as an ERROR frame.
func (c *Client) reportError(err error) {
	msg := shared.Message{Type: shared.MessageTypeError, Content: err.Error()}
	if be, ok := basic.AsBASICError(err); ok {
		msg.Content = be.Report()
		msg.ErrorNumber = be.Number
		msg.LineNumber = be.LineNumber
		msg.Category = be.Category
	}
	c.sendMessage(msg)
}

// handleMessage dispatches one validated client frame.
func (c *Client) handleMessage(msg *shared.Message) {
	switch msg.Type {
	case shared.MessageTypeBreak:
		if c.busy.Load() {
			c.shell.Interpreter().Stop()
			c.console.interruptInput()
		}
	case shared.MessageTypeInterrupt:
		c.interrupts.Raise(msg.Content)
	case shared.MessageTypeInput:
		if c.busy.Load() {
			c.console.deliver(msg.Content)
			return
		}
		c.busy.Store(true)
		go c.runCommand(msg.Content)
	}
}

// runCommand runs one prompt line to completion.
func (c *Client) runCommand(line string) {
	defer c.busy.Store(false)

	ctx := c.ctx
	if limit := getMaxRunTime(); limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}
	quit, err := c.shell.Handle(ctx, line)
	c.console.flush()
	c.console.drain()
	if err != nil {
		logger.ConsoleDebug("[%s] %v", c.sessionID, err)
		c.reportError(err)
	}
	if quit {
		c.sendMessage(shared.Message{Type: shared.MessageTypeText, Content: "Bye"})
		c.handler.cleanupClient(c)
		return
	}
	c.sendPrompt()
}

// readPump reads client frames until the connection fails.
func (c *Client) readPump() {
	defer c.handler.cleanupClient(c)

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.ConsoleWarn("unexpected close for session %s: %v", c.sessionID, err)
			} else {
				logger.ConsoleDebug("connection closed for session %s: %v", c.sessionID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handler.clients.CheckRateLimit(c.ipAddress); err != nil {
			c.reportError(err)
			continue
		}
		msg, err := c.handler.validator.Decode(data)
		if err != nil {
			logger.ConsoleWarn("rejected frame from %s: %v", c.ipAddress, err)
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump writes queued frames and pings until shutdown.
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.ConsoleDebug("write failed for session %s: %v", c.sessionID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.ConsoleDebug("ping failed for session %s: %v", c.sessionID, err)
				return
			}
		case <-c.shutdown:
			c.flushPending()
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flushPending writes frames still queued at shutdown.
func (c *Client) flushPending() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
