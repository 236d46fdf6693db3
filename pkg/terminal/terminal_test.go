package terminal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/gorilla/websocket"
)

func startServer(t *testing.T, requireToken bool) (*Handler, string) {
	t.Helper()
	h := NewHandler(nil)
	h.requireToken = requireToken
	server := httptest.NewServer(h.Routes())
	t.Cleanup(server.Close)
	return h, "ws" + strings.TrimPrefix(server.URL, "http") + "/console"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil collects frames up to and including the first of type want.
func readUntil(t *testing.T, conn *websocket.Conn, want shared.MessageType) []shared.Message {
	t.Helper()
	var msgs []shared.Message
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg shared.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Expected a frame of type %d, got error %v after %+v", want, err, msgs)
		}
		msgs = append(msgs, msg)
		if msg.Type == want {
			return msgs
		}
	}
}

func textOf(msgs []shared.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if m.Type == shared.MessageTypeText {
			sb.WriteString(m.Content)
		}
	}
	return sb.String()
}

func send(t *testing.T, conn *websocket.Conn, typ shared.MessageType, content string) {
	t.Helper()
	if err := conn.WriteJSON(shared.Message{Type: typ, Content: content}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestConsoleSession(t *testing.T) {
	h, url := startServer(t, false)
	conn := dial(t, url)

	greeting := readUntil(t, conn, shared.MessageTypePrompt)
	if greeting[0].Type != shared.MessageTypeSession || greeting[0].SessionID == "" {
		t.Errorf("Expected a session frame first, got %+v", greeting[0])
	}
	if got := textOf(greeting); got != Banner {
		t.Errorf("Expected banner %q, got %q", Banner, got)
	}
	if h.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", h.ClientCount())
	}

	send(t, conn, shared.MessageTypeInput, "PRINT 1 + 1")
	if got := textOf(readUntil(t, conn, shared.MessageTypePrompt)); got != " 2\n" {
		t.Errorf("Expected %q, got %q", " 2\n", got)
	}

	for _, line := range []string{"10 A = 20", "20 PRINT A + 1"} {
		send(t, conn, shared.MessageTypeInput, line)
		readUntil(t, conn, shared.MessageTypePrompt)
	}
	send(t, conn, shared.MessageTypeInput, "RUN")
	if got := textOf(readUntil(t, conn, shared.MessageTypePrompt)); got != " 21\n" {
		t.Errorf("Expected %q, got %q", " 21\n", got)
	}
}

func TestConsoleInput(t *testing.T) {
	_, url := startServer(t, false)
	conn := dial(t, url)
	readUntil(t, conn, shared.MessageTypePrompt)

	for _, line := range []string{`10 INPUT "N"; N`, "20 PRINT N * 2"} {
		send(t, conn, shared.MessageTypeInput, line)
		readUntil(t, conn, shared.MessageTypePrompt)
	}
	send(t, conn, shared.MessageTypeInput, "RUN")
	msgs := readUntil(t, conn, shared.MessageTypeInputControl)
	if got := textOf(msgs); got != "N? " {
		t.Errorf("Expected the prompt %q before input, got %q", "N? ", got)
	}

	send(t, conn, shared.MessageTypeInput, "21")
	if got := textOf(readUntil(t, conn, shared.MessageTypePrompt)); got != " 42\n" {
		t.Errorf("Expected %q, got %q", " 42\n", got)
	}
}

func TestConsoleErrorFrame(t *testing.T) {
	_, url := startServer(t, false)
	conn := dial(t, url)
	readUntil(t, conn, shared.MessageTypePrompt)

	send(t, conn, shared.MessageTypeInput, "PRINT 1 / 0")
	msgs := readUntil(t, conn, shared.MessageTypeError)
	last := msgs[len(msgs)-1]
	if last.Category != "BOUNDS ERROR" || last.ErrorNumber != 4 {
		t.Errorf("Expected a BOUNDS ERROR frame with number 4, got %+v", last)
	}
	if !strings.Contains(last.Content, "Divide by zero") {
		t.Errorf("Expected the error text in the report, got %q", last.Content)
	}
	readUntil(t, conn, shared.MessageTypePrompt)
}

func TestConsoleBreak(t *testing.T) {
	_, url := startServer(t, false)
	conn := dial(t, url)
	readUntil(t, conn, shared.MessageTypePrompt)

	send(t, conn, shared.MessageTypeInput, "10 GOTO 10")
	readUntil(t, conn, shared.MessageTypePrompt)
	send(t, conn, shared.MessageTypeInput, "RUN")
	time.Sleep(50 * time.Millisecond)
	send(t, conn, shared.MessageTypeBreak, "")

	msgs := readUntil(t, conn, shared.MessageTypeError)
	if last := msgs[len(msgs)-1]; last.Category != "BREAK" {
		t.Errorf("Expected BREAK, got %+v", last)
	}
	readUntil(t, conn, shared.MessageTypePrompt)
}

func TestConsoleBye(t *testing.T) {
	h, url := startServer(t, false)
	conn := dial(t, url)
	readUntil(t, conn, shared.MessageTypePrompt)

	send(t, conn, shared.MessageTypeInput, "BYE")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("Expected a normal close, got %v", err)
			}
			break
		}
	}
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Errorf("Expected the session to be removed, got %d clients", h.ClientCount())
	}
}

func TestConsoleRequiresToken(t *testing.T) {
	_, url := startServer(t, true)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected the dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %v", resp)
	}

	token, err := auth.GenerateConsoleToken("token-session")
	if err != nil {
		t.Fatal(err)
	}
	conn := dial(t, url+"?token="+token)
	msgs := readUntil(t, conn, shared.MessageTypeSession)
	if got := msgs[len(msgs)-1].SessionID; got != "token-session" {
		t.Errorf("Expected session token-session, got %s", got)
	}

	// the same session cannot be opened twice
	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409 for a second connection, got %v", resp)
	}
}
