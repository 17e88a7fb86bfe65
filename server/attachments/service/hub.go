package service

import (
	"sync"

	"github.com/gorilla/websocket"

	commonlog "attach_server/server/common/log"
)

// WSClient is one websocket subscriber watching a single owner record's
// attachments.
type WSClient struct {
	OwnerType string
	OwnerID   string
	Conn      *websocket.Conn
	mu        sync.Mutex
}

func (c *WSClient) WriteJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Conn.WriteJSON(v); err != nil {
		commonlog.Debugf("hub write to %s/%s: %v", c.OwnerType, c.OwnerID, err)
	}
}

// Hub fans attachment events out to the websocket subscribers of each owner
// record.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[string]map[*WSClient]struct{}{}}
}

func ownerKey(ownerType, ownerID string) string {
	return ownerType + ":" + ownerID
}

func (h *Hub) Register(client *WSClient) {
	key := ownerKey(client.OwnerType, client.OwnerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[key]; !ok {
		h.clients[key] = map[*WSClient]struct{}{}
	}
	h.clients[key][client] = struct{}{}
}

func (h *Hub) Unregister(client *WSClient) {
	key := ownerKey(client.OwnerType, client.OwnerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[key]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.clients, key)
		}
	}
	_ = client.Conn.Close()
}

func (h *Hub) Broadcast(ownerType, ownerID string, payload any) {
	key := ownerKey(ownerType, ownerID)
	h.mu.RLock()
	subs := make([]*WSClient, 0, len(h.clients[key]))
	for client := range h.clients[key] {
		subs = append(subs, client)
	}
	h.mu.RUnlock()

	for _, client := range subs {
		client.WriteJSON(payload)
	}
}
