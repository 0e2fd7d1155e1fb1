package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborchat/relay/internal/config"
	"github.com/harborchat/relay/pkg/log"
)

// Client is one websocket session. It owns the connection's read and
// write pumps; all relay state for the session lives in the relay core,
// keyed by the client ID.
//
// The Send channel is never closed. Teardown is signalled through done
// instead: the relay's event loop may still fan frames out to a client
// whose unregister it has not processed yet, and a send on a closed
// channel there would panic the loop.
type Client struct {
	ID        string
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	config    config.WebSocketConfig
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		config: cfg,
	}
}

// Close signals the write pump to exit and marks the send queue dead.
// Safe to call from any goroutine, more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ReadPump reads frames from the websocket and passes them to handler.
// It unregisters the client from the hub when the connection drops.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump flushes queued frames to the websocket and keeps the
// connection alive with pings. Suspension happens only here, never on
// the relay's event loop.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals v and queues it for delivery. The enqueue never
// blocks: when the client's buffer is full the frame is dropped, which
// keeps one slow consumer from stalling fan-out to everyone else. Frames
// for a closed client are dropped the same way.
func (c *Client) SendMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return nil
	default:
	}

	select {
	case c.Send <- data:
	default:
		l := log.L()
		l.Debug().Str(log.FieldConnID, c.ID).Msg("send buffer full, frame dropped")
	}
	return nil
}
