package shared

// MessageType identifies a WebSocket console frame.
type MessageType int

// Frame types. Values below 32 keep the numbering of the browser console
// protocol; the BASIC-specific frames follow.
const (
	MessageTypeText         MessageType = 0  // output text, server to client
	MessageTypeClear        MessageType = 1  // clear screen
	MessageTypeBeep         MessageType = 2  // beep
	MessageTypeMode         MessageType = 7  // mode change ("basic")
	MessageTypeSession      MessageType = 8  // session ID announcement
	MessageTypeInputControl MessageType = 9  // program is waiting for a line
	MessageTypePrompt       MessageType = 12 // immediate mode prompt
	MessageTypeInput        MessageType = 14 // a line typed by the user, client to server
	MessageTypeBreak        MessageType = 32 // stop the running program, client to server
	MessageTypeInterrupt    MessageType = 33 // raise an interrupt, Content names the SUB or label
	MessageTypeError        MessageType = 34 // BASIC error report, server to client
	MessageTypeKeepalive    MessageType = 35 // ignored by the server
)

// Message is one JSON frame on the console WebSocket.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	// For TEXT: the client must not add a line break.
	NoNewline bool `json:"noNewline"`

	// For SESSION
	SessionID string `json:"sessionId,omitempty"`

	// For INPUT_CONTROL and PROMPT
	InputEnabled *bool  `json:"inputEnabled,omitempty"`
	PromptSymbol string `json:"promptSymbol,omitempty"`

	// For MODE
	Mode string `json:"mode,omitempty"`

	// For ERROR
	ErrorNumber int    `json:"errorNumber,omitempty"`
	LineNumber  int    `json:"lineNumber,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Bool returns a pointer to v for the optional boolean fields.
func Bool(v bool) *bool { return &v }
