package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/shared"
)

var (
	ErrFrameTooLarge    = errors.New("frame too large")
	ErrFrameType        = errors.New("frame type not accepted from clients")
	ErrFrameContent     = errors.New("frame content too long")
	ErrFrameControlChar = errors.New("control character in input")
)

// FrameValidator decodes and checks frames sent by clients.
type FrameValidator struct {
	MaxFrameSize  int
	MaxContentLen int
}

// NewFrameValidator limits frames to maxFrameSize bytes and input to one
// BASIC line.
func NewFrameValidator(maxFrameSize int) *FrameValidator {
	return &FrameValidator{
		MaxFrameSize:  maxFrameSize,
		MaxContentLen: basic.MaxLineLength,
	}
}

// Decode parses data as a shared.Message and rejects frames a client may
// not send.
func (v *FrameValidator) Decode(data []byte) (*shared.Message, error) {
	if len(data) > v.MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var msg shared.Message
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return nil, errors.New("invalid JSON: trailing data")
	}

	switch msg.Type {
	case shared.MessageTypeInput:
		if len(msg.Content) > v.MaxContentLen {
			return nil, ErrFrameContent
		}
		for i := 0; i < len(msg.Content); i++ {
			if c := msg.Content[i]; (c < ' ' && c != '\t') || c == 0x7f {
				return nil, ErrFrameControlChar
			}
		}
	case shared.MessageTypeInterrupt:
		if len(msg.Content) == 0 || len(msg.Content) > basic.MaxNameLength {
			return nil, ErrFrameContent
		}
	case shared.MessageTypeBreak, shared.MessageTypeKeepalive:
	default:
		return nil, ErrFrameType
	}
	return &msg, nil
}
