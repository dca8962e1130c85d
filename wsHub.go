package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Hub struct {
	logger     *logrus.Entry
	clients    map[*Client]bool
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	onConnect  func() interface{}
}

func NewHub() (*Hub, error) {
	logger, err := CreateLogger("ws")
	if err != nil {
		return nil, err
	}

	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}, err
}

// SetOnConnect installs the snapshot sent to every freshly connected client,
// typically the current queue contents. Must be called before Run starts.
func (h *Hub) SetOnConnect(snapshot func() interface{}) {
	h.onConnect = snapshot
}

// Run owns the client map, all membership changes and fan-out go through
// its channels.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("Client registered:", client.conn.RemoteAddr())

			if h.onConnect != nil {
				client.queue(h.onConnect())
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("Client unregistered:", client.conn.RemoteAddr())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.queue(message) {
					h.logger.Debug("Dropping stalled client:", client.conn.RemoteAddr())
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
}

// BroadcastMessage never blocks the caller. Messages are dropped when
// nobody is draining the broadcast channel.
func (h *Hub) BroadcastMessage(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
	}
}

func (h *Hub) HandleConnections(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(err)
		c.String(http.StatusInternalServerError, "Failed to upgrade to WebSocket")
		return
	}

	client := NewClient(h, conn)
	h.register <- client

	go client.writePump()
	go client.readPump()
}
