package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ezchat-cam/coordinator/internal/auth"
	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/internal/lease"
	"github.com/ezchat-cam/coordinator/internal/service"
	"github.com/ezchat-cam/coordinator/pkg/log"
	"github.com/ezchat-cam/coordinator/pkg/response"
)

// Handler handles HTTP requests for the coordination API, including the SSE
// and WebSocket event streams.
type Handler struct {
	coordinator service.Coordinator
	tokens      *auth.Manager
	hub         *hub.Hub
	wsCfg       hub.WSConfig
}

// NewHandler creates a new HTTP handler.
func NewHandler(coordinator service.Coordinator, tokens *auth.Manager, h *hub.Hub, wsCfg hub.WSConfig) *Handler {
	return &Handler{
		coordinator: coordinator,
		tokens:      tokens,
		hub:         h,
		wsCfg:       wsCfg,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/token", h.MintToken)
		api.GET("/directory", h.Directory)

		rooms := api.Group("/rooms/:room", auth.RequireAuth(h.tokens))
		{
			rooms.GET("/presence", h.Presence)
			rooms.POST("/join", h.Join)
			rooms.POST("/heartbeat", h.Heartbeat)
			rooms.POST("/leave", h.Leave)
			rooms.POST("/chat-lock", h.AcquireChatLock)
			rooms.PUT("/chat-lock", h.RefreshChatLock)
			rooms.DELETE("/chat-lock", h.ReleaseChatLock)
			rooms.GET("/broadcast", h.SlotSnapshot)
			rooms.POST("/broadcast", h.RequestSlot)
			rooms.DELETE("/broadcast", h.ReleaseSlot)
			rooms.GET("/messages", h.History)
			rooms.POST("/messages", h.Send)
			rooms.GET("/events", h.Events)
			rooms.PUT("/profile", h.UpdateProfile)
		}
	}

	r.GET("/ws", auth.RequireAuth(h.tokens), h.WebSocket)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// MintToken issues a session token for a username. The service trusts the
// fronting site to have authenticated the user; this endpoint only binds the
// identity into a signed token.
func (h *Handler) MintToken(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, expiresAt, err := h.tokens.Mint(req.Username)
	if err != nil {
		response.BadRequest(c, "invalid username")
		return
	}

	response.Success(c, gin.H{"token": token, "expires_at": expiresAt})
}

// Directory returns one page of the room directory.
func (h *Handler) Directory(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	result, err := h.coordinator.Directory(ctx, page)
	if err != nil {
		l.Error().Err(err).Msg("failed to build directory")
		response.InternalError(c, "failed to build directory")
		return
	}

	response.Success(c, result)
}

// Presence lists the room's non-stale occupants.
func (h *Handler) Presence(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	order := domain.OrderRecency
	if c.Query("order") == string(domain.OrderAlpha) {
		order = domain.OrderAlpha
	}

	entries, err := h.coordinator.Presence(ctx, room, order)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to list presence")
		response.InternalError(c, "failed to list presence")
		return
	}

	response.Success(c, gin.H{"entries": entries, "count": len(entries)})
}

// Join acquires the room occupancy lease for the caller.
func (h *Handler) Join(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	grant, err := h.coordinator.Join(ctx, room, username)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to join room")
		response.BadGateway(c, "coordination store unavailable")
		return
	}
	if !grant.Granted {
		response.Denied(c, "ROOM_OCCUPIED", "room is held by another session", grant)
		return
	}

	response.Success(c, grant)
}

// Heartbeat refreshes presence and, optionally, the occupancy lease.
func (h *Handler) Heartbeat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	var req struct {
		IsLive  bool `json:"is_live"`
		Holding bool `json:"holding"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	grant, err := h.coordinator.Heartbeat(ctx, room, username, req.IsLive, req.Holding)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("heartbeat failed")
		response.InternalError(c, "heartbeat failed")
		return
	}
	if !grant.Granted {
		response.Denied(c, "LEASE_LOST", "occupancy lease was taken by another session", grant)
		return
	}

	response.Success(c, grant)
}

// Leave releases the caller's occupancy lease and broadcast slot.
func (h *Handler) Leave(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	if err := h.coordinator.Leave(ctx, room, username); err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to leave room")
		response.InternalError(c, "failed to leave room")
		return
	}

	response.Success(c, gin.H{"left": true})
}

// AcquireChatLock takes the caller's per-tab chat lock.
func (h *Handler) AcquireChatLock(c *gin.Context) {
	h.chatLock(c, h.coordinator.AcquireChatLock)
}

// RefreshChatLock extends the caller's per-tab chat lock.
func (h *Handler) RefreshChatLock(c *gin.Context) {
	h.chatLock(c, h.coordinator.RefreshChatLock)
}

func (h *Handler) chatLock(c *gin.Context, op func(ctx context.Context, room, username, tabID string) (lease.Grant, error)) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	var req struct {
		TabID string `json:"tab_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	grant, err := op(ctx, room, username, req.TabID)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("chat lock operation failed")
		response.InternalError(c, "chat lock operation failed")
		return
	}
	if !grant.Granted {
		response.Denied(c, "CHAT_LOCK_HELD", "another tab holds the chat lock", grant)
		return
	}

	response.Success(c, grant)
}

// ReleaseChatLock releases the caller's per-tab chat lock. The tab id rides
// in the query string because DELETE bodies are unreliable through proxies.
func (h *Handler) ReleaseChatLock(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)
	tabID := c.Query("tab_id")
	if tabID == "" {
		response.BadRequest(c, "tab_id is required")
		return
	}

	if err := h.coordinator.ReleaseChatLock(ctx, room, username, tabID); err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to release chat lock")
		response.InternalError(c, "failed to release chat lock")
		return
	}

	response.Success(c, gin.H{"released": true})
}

// RequestSlot admits the caller as a broadcaster unless the room is full.
func (h *Handler) RequestSlot(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	granted, snap, err := h.coordinator.RequestSlot(ctx, room, username)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to request broadcast slot")
		response.BadGateway(c, "coordination store unavailable")
		return
	}
	if !granted {
		response.Denied(c, "ROOM_FULL", "broadcaster capacity reached", snap)
		return
	}

	response.Success(c, snap)
}

// ReleaseSlot removes the caller's broadcast slot.
func (h *Handler) ReleaseSlot(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	if err := h.coordinator.ReleaseSlot(ctx, room, username); err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to release broadcast slot")
		response.InternalError(c, "failed to release broadcast slot")
		return
	}

	response.Success(c, gin.H{"released": true})
}

// SlotSnapshot reports the room's broadcast slot usage.
func (h *Handler) SlotSnapshot(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")

	snap, err := h.coordinator.SlotSnapshot(ctx, room)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to read slot snapshot")
		response.InternalError(c, "failed to read slot snapshot")
		return
	}

	response.Success(c, snap)
}

// Send persists a chat message and fans it out to subscribers.
func (h *Handler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	var req struct {
		Text     string `json:"text" binding:"required"`
		ClientID string `json:"client_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.coordinator.Send(ctx, room, username, req.Text, req.ClientID)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to send message")
		response.BadGateway(c, "coordination store unavailable")
		return
	}

	response.Success(c, msg)
}

// History returns the room's retained messages, oldest first.
func (h *Handler) History(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.coordinator.History(ctx, room, limit)
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to load history")
		response.InternalError(c, "failed to load history")
		return
	}

	response.Success(c, gin.H{"messages": messages, "count": len(messages)})
}

// UpdateProfile upserts the caller's room metadata.
func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	room := c.Param("room")
	username := auth.GetUsername(c)

	var req struct {
		Description string `json:"description"`
		AvatarRef   string `json:"avatar_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	profile, err := h.coordinator.UpdateProfile(ctx, room, username, req.Description, req.AvatarRef)
	if err != nil {
		if errors.Is(err, service.ErrNotRoomOwner) {
			response.Forbidden(c, err.Error())
			return
		}
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to update profile")
		response.InternalError(c, "failed to update profile")
		return
	}

	response.Success(c, profile)
}
