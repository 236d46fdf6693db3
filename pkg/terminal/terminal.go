// Package terminal serves the BASIC console over WebSocket. Every
// connection gets its own interpreter and immediate-mode shell; frames are
// JSON encoded shared.Message values.
package terminal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/antibyte/retrobasic/pkg/auth"
	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/gorilla/websocket"
)

// Banner is the first text a new connection receives.
const Banner = "RetroBASIC ready"

// Handler accepts console connections.
type Handler struct {
	upgrader     websocket.Upgrader
	clients      *ClientManager
	validator    *FrameValidator
	store        basic.ProgramStore
	limits       basic.Limits
	requireToken bool
}

// NewHandler creates a handler configured from the [Console] and
// [Interpreter] sections. store backs SAVE, LOAD and FILES and may be nil.
func NewHandler(store basic.ProgramStore) *Handler {
	h := &Handler{
		clients: NewClientManager(
			configuration.GetInt("Console", "max_clients", 100),
			configuration.GetInt("Console", "max_messages_per_min", 200),
		),
		validator:    NewFrameValidator(int(getMaxMessageSize())),
		store:        store,
		limits:       basic.LimitsFromConfig(),
		requireToken: configuration.GetBool("Console", "require_token", true),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
	return h
}

// checkOrigin admits clients without an Origin header (non-browser
// clients) and browsers from allowed_origins; "*" admits every origin.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := configuration.GetString("Console", "allowed_origins", "")
	for _, a := range strings.Split(allowed, ",") {
		if a = strings.TrimSpace(a); a == "*" || a == origin {
			return true
		}
	}
	logger.ConsoleWarn("WebSocket request from disallowed origin rejected: %s", origin)
	return false
}

// Routes returns the mux of the console server.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/console", h.HandleWebSocket)
	mux.HandleFunc("/api/auth/login", auth.HandleLogin)
	mux.HandleFunc("/api/auth/validate", auth.HandleTokenValidation)
	mux.HandleFunc("/api/auth/logout", auth.HandleLogout)
	return mux
}

// Run prunes stale rate limit entries until ctx ends.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients.Clients() {
				h.cleanupClient(c)
			}
			return
		case <-ticker.C:
			h.clients.pruneRateLimits()
		}
	}
}

// ClientCount returns the number of open consoles.
func (h *Handler) ClientCount() int { return h.clients.GetClientCount() }

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}

// HandleWebSocket upgrades the request and starts a console session. With
// require_token set the session ID comes from a valid console token.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ipAddress := clientIP(r)

	var sessionID string
	if h.requireToken {
		tokenString, err := auth.ExtractTokenFromRequest(r)
		if err != nil {
			logger.ConsoleWarn("console request without token from %s", ipAddress)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ValidateConsoleToken(tokenString)
		if err != nil {
			logger.ConsoleWarn("invalid console token from %s: %v", ipAddress, err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		sessionID = claims.SessionID
	} else {
		sessionID = auth.NewSessionID()
	}

	if h.clients.HasClient(sessionID) {
		http.Error(w, "Session already connected", http.StatusConflict)
		return
	}
	if h.clients.GetClientCount() >= h.clients.maxClients {
		logger.ConsoleWarn("client limit reached, rejecting %s", ipAddress)
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ConsoleError("WebSocket upgrade failed for %s: %v", ipAddress, err)
		return
	}

	client := h.newClient(conn, ipAddress, sessionID)
	if err := h.clients.AddClient(sessionID, client); err != nil {
		logger.ConsoleWarn("rejecting %s: %v", ipAddress, err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	logger.ConsoleInfo("console session %s opened from %s (%d clients)", sessionID, ipAddress, h.clients.GetClientCount())

	go client.writePump()
	go client.readPump()

	client.sendMessage(shared.Message{Type: shared.MessageTypeSession, SessionID: sessionID})
	client.sendMessage(shared.Message{Type: shared.MessageTypeMode, Mode: "basic"})
	client.sendMessage(shared.Message{Type: shared.MessageTypeText, Content: Banner})
	client.sendPrompt()
}

func (h *Handler) newClient(conn *websocket.Conn, ipAddress, sessionID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		handler:    h,
		ipAddress:  ipAddress,
		sessionID:  sessionID,
		interrupts: &basic.InterruptQueue{},
		ctx:        ctx,
		cancel:     cancel,
		shutdown:   make(chan struct{}),
	}
	client.console = newWSConsole(client, getInputTimeout())
	b := basic.New(
		basic.WithConsole(client.console),
		basic.WithLimits(h.limits),
		basic.WithSessionID(sessionID),
		basic.WithInterruptSource(client.interrupts),
	)
	client.shell = basic.NewShell(b, h.store)
	return client
}

// cleanupClient ends a session: the running program sees BREAK, pending
// input fails and the write pump closes the connection.
func (h *Handler) cleanupClient(client *Client) {
	client.closeOnce.Do(func() {
		client.cancel()
		client.shell.Interpreter().Stop()
		close(client.shutdown)
		h.clients.RemoveClient(client.sessionID, client)
		logger.ConsoleInfo("console session %s closed", client.sessionID)
	})
}
