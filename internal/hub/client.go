package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ezchat-cam/coordinator/pkg/log"
)

// WSConfig holds websocket keepalive configuration.
type WSConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Client bridges one websocket connection to a hub subscription. It is the
// degrade path for browsers that cannot hold an SSE stream; both transports
// carry the same event feed.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	sub  *Subscriber
	cfg  WSConfig
}

// NewClient wraps an upgraded connection subscribed to room.
func NewClient(conn *websocket.Conn, h *Hub, room string, cfg WSConfig) *Client {
	return &Client{
		conn: conn,
		hub:  h,
		sub:  h.Subscribe(room, 64),
		cfg:  cfg,
	}
}

// inbound is the only message shape clients send: heartbeats.
type inbound struct {
	Type   string `json:"type"`
	IsLive bool   `json:"is_live"`
}

// ReadPump consumes client frames until the connection drops, invoking
// onHeartbeat for each ping. It unsubscribes on exit so the hub never grows
// an abandoned subscriber.
func (c *Client) ReadPump(onHeartbeat func(isLive bool)) {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(message, &in); err != nil {
			continue
		}
		if in.Type == "ping" && onHeartbeat != nil {
			onHeartbeat(in.IsLive)
		}
	}
}

// WritePump forwards subscribed events to the connection and keeps it alive
// with protocol pings. It exits when the subscription closes or a write
// fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
