package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ezchat-cam/coordinator/internal/auth"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser origin is the fronting site; token auth already gates the
	// upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket carries the same event feed as the SSE stream for clients that
// cannot hold an EventSource. Inbound frames are presence heartbeats.
func (h *Handler) WebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Query("room")
	if room == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	username := auth.GetUsername(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(conn, h.hub, room, h.wsCfg)

	go client.WritePump()
	client.ReadPump(func(isLive bool) {
		if err := h.coordinator.Touch(ctx, room, username, isLive); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("presence touch from websocket failed")
		}
	})
}
