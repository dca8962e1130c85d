package main

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second   // Time allowed to write a message to the peer
	pongWait   = 30 * time.Second   // Time allowed to read the next pong message from the peer
	pingPeriod = (pongWait * 9) / 10 // Ping period must be less than pongWait
	sendBuffer = 16                 // Queued updates per client before it counts as stalled
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan interface{}
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan interface{}, sendBuffer),
	}
}

// queue hands a message to the client's write pump. It reports false when
// the client buffer is full, which the hub treats as a stalled connection.
func (c *Client) queue(message interface{}) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// readPump discards inbound frames, we only push updates. It still has to
// run so pong handlers fire and a dropped peer is noticed.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes queued updates and keepalive pings onto the
// connection. The hub closes the send channel to stop it.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
