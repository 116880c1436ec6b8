package models

import (
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/types"
)

var (
	notifyHubMu sync.RWMutex
	notifyHub   *Hub
)

// Hub holds WebSocket connections and broadcasts notifications to all clients.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*sync.Mutex // per connection write lock
}

// NewHub creates a new notify hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = &sync.Mutex{}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends the notification as JSON to all registered connections.
func (h *Hub) Broadcast(notification *types.Notification) {
	if h == nil || notification == nil {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Warnf("[Notify] Failed to encode %s notification: %v", notification.Type, err)
		return
	}

	h.mu.RLock()
	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	targets := make([]target, 0, len(h.conns))
	for c, mu := range h.conns {
		targets = append(targets, target{c, mu})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.mu.Lock()
		if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			tool.DefaultLogger.Debugf("[Notify] Write to %s failed: %v", t.conn.RemoteAddr(), err)
		}
		t.mu.Unlock()
	}
}

// SetNotifyHub sets the hub upload lifecycle events are broadcast to.
func SetNotifyHub(h *Hub) {
	notifyHubMu.Lock()
	defer notifyHubMu.Unlock()
	notifyHub = h
}

// GetNotifyHub returns the notify WebSocket hub, or nil if not set.
func GetNotifyHub() *Hub {
	notifyHubMu.RLock()
	defer notifyHubMu.RUnlock()
	return notifyHub
}
