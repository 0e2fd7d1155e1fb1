package hub

import (
	"sync"

	"github.com/harborchat/relay/pkg/log"
)

// Hub tracks live websocket clients and their pump lifecycles. Room
// membership, presence, and message state belong to the relay core; the
// hub only knows which transports exist.
type Hub struct {
	clients      map[string]*Client
	register     chan *Client
	unregister   chan *Client
	mu           sync.RWMutex
	onDisconnect func(clientID string)
	done         chan struct{}
	stopOnce     sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnDisconnect sets the callback fired after a client is removed. Set it
// before Run starts.
func (h *Hub) OnDisconnect(fn func(clientID string)) {
	h.onDisconnect = fn
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client.ID]
			if ok {
				delete(h.clients, client.ID)
				client.Close()
			}
			h.mu.Unlock()
			if ok {
				if h.onDisconnect != nil {
					h.onDisconnect(client.ID)
				}
				l := log.L()
				l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client connection and stops Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		client.Conn.Close()
		delete(h.clients, id)
	}
}
