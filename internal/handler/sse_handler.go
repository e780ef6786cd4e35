package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

// Events streams the room's event feed over Server-Sent Events. The stream
// opens with a synthetic ready frame so clients can distinguish an
// established subscription from a connection still being set up; every
// subsequent frame carries one coordination event under its event name.
func (h *Handler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	if room == "" {
		c.Status(400)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(room, 64)
	defer h.hub.Unsubscribe(sub)

	c.SSEvent(domain.EventReady, gin.H{"room": room})
	c.Writer.Flush()

	l.Debug().Str(log.FieldRoom, room).Msg("event stream opened")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			c.SSEvent(ev.Name, ev.Data())
			c.Writer.Flush()
		}
	}
}
