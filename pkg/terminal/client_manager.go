package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// RateLimitInfo counts frames per IP in the current minute.
type RateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// ClientManager tracks connected clients by session ID and rate limits
// frames per IP address.
type ClientManager struct {
	clients      map[string]*Client // sessionID -> Client
	rateLimits   map[string]*RateLimitInfo
	maxClients   int
	maxPerMinute int
	mu           sync.RWMutex
}

// NewClientManager creates a manager admitting at most maxClients
// connections and maxPerMinute frames per IP and minute.
func NewClientManager(maxClients, maxPerMinute int) *ClientManager {
	return &ClientManager{
		clients:      make(map[string]*Client),
		rateLimits:   make(map[string]*RateLimitInfo),
		maxClients:   maxClients,
		maxPerMinute: maxPerMinute,
	}
}

// AddClient registers client under its session ID. A session can only be
// open once.
func (cm *ClientManager) AddClient(sessionID string, client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[sessionID]; exists {
		return fmt.Errorf("session %s is already connected", sessionID)
	}
	if len(cm.clients) >= cm.maxClients {
		return fmt.Errorf("client limit of %d reached", cm.maxClients)
	}
	cm.clients[sessionID] = client
	logger.ConsoleDebug("client added for session %s", sessionID)
	return nil
}

// RemoveClient forgets the client of sessionID if it is still client.
func (cm *ClientManager) RemoveClient(sessionID string, client *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.clients[sessionID] == client {
		delete(cm.clients, sessionID)
		logger.ConsoleDebug("client removed for session %s", sessionID)
	}
}

// GetClientCount returns the number of connected clients.
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// HasClient reports whether sessionID is connected.
func (cm *ClientManager) HasClient(sessionID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.clients[sessionID]
	return exists
}

// Clients returns a snapshot of the connected clients.
func (cm *ClientManager) Clients() []*Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		out = append(out, c)
	}
	return out
}

// CheckRateLimit counts one frame from ipAddress.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	rateLimit, exists := cm.rateLimits[ipAddress]
	if !exists {
		rateLimit = &RateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = rateLimit
	}
	if now.Sub(rateLimit.lastReset) > time.Minute {
		rateLimit.requests = 0
		rateLimit.lastReset = now
	}
	rateLimit.requests++
	if rateLimit.requests > cm.maxPerMinute {
		if rateLimit.requests == cm.maxPerMinute+1 {
			logger.ConsoleWarn("rate limit exceeded for IP %s", ipAddress)
		}
		return fmt.Errorf("rate limit exceeded: too many requests from %s", ipAddress)
	}
	return nil
}

// pruneRateLimits drops entries idle for more than a minute.
func (cm *ClientManager) pruneRateLimits() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for ip, info := range cm.rateLimits {
		if time.Since(info.lastReset) > time.Minute {
			delete(cm.rateLimits, ip)
		}
	}
}
