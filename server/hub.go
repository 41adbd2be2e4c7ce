package server

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// hub is the central event loop for the chat channel. Every frame a
// client sends is broadcast to all connected clients, the sender
// included — that echo is what puts the sender's own message into
// their rendered log.
type hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	log        *zap.Logger
}

// wsClient is one chat connection. Reads and writes run on separate
// goroutines so a slow reader cannot block the broadcast loop.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newHub(log *zap.Logger) *hub {
	return &hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("chat client connected", zap.String("id", client.id))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
				h.log.Debug("chat client disconnected", zap.String("id", client.id))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Back-pressure: drop clients that stopped draining.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *hub) stop() {
	close(h.done)
}

func (c *wsClient) readPump(h *hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case h.broadcast <- message:
		case <-h.done:
			return
		}
	}
}

func (c *wsClient) writePump(writeTimeout time.Duration) {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
