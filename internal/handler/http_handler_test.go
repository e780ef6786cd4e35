package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezchat-cam/coordinator/internal/auth"
	"github.com/ezchat-cam/coordinator/internal/handler"
	"github.com/ezchat-cam/coordinator/internal/hub"
	"github.com/ezchat-cam/coordinator/internal/repository"
	"github.com/ezchat-cam/coordinator/internal/service"
	"github.com/ezchat-cam/coordinator/internal/store"
)

type testServer struct {
	router *gin.Engine
	tokens *auth.Manager
	hub    *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	h := hub.New()
	coordinator := service.NewCoordinator(st, repository.NewMemoryProfileRepository(), h, service.Config{
		PresenceTTL:   30 * time.Second,
		RoomLeaseTTL:  2 * time.Minute,
		ChatLockTTL:   15 * time.Second,
		SlotCapacity:  2,
		ChatRetention: 200,
		MaxMessageLen: 500,
		PageSize:      20,
		PromotedCap:   5,
		InstanceID:    "test",
	})
	tokens := auth.NewManager("test-secret", time.Hour, "coordinator")

	router := gin.New()
	handler.NewHandler(coordinator, tokens, h, hub.WSConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}).RegisterRoutes(router)

	return &testServer{router: router, tokens: tokens, hub: h}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) mustToken(t *testing.T, username string) string {
	t.Helper()
	token, _, err := s.tokens.Mint(username)
	require.NoError(t, err)
	return token
}

func TestTokenEndpointMintsValidToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/token", "", `{"username":"Alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)

	claims, err := s.tokens.Validate(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestRoomRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/rooms/lobby/presence", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/rooms/lobby/presence", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/rooms/lobby/presence", s.mustToken(t, "alice"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJoinConflictMapsTo409(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/join", s.mustToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/rooms/lobby/join", s.mustToken(t, "bob"), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROOM_OCCUPIED")
	assert.Contains(t, rec.Body.String(), "alice", "the denial names the current holder")
}

func TestBroadcastFullRoomMapsTo409(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/broadcast", s.mustToken(t, fmt.Sprintf("cam%d", i)), "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/broadcast", s.mustToken(t, "late"), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROOM_FULL")
}

func TestChatLockLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.mustToken(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/chat-lock", token, `{"tab_id":"tab-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second tab of the same user conflicts.
	rec = s.do(t, http.MethodPost, "/api/v1/rooms/lobby/chat-lock", token, `{"tab_id":"tab-2"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CHAT_LOCK_HELD")

	rec = s.do(t, http.MethodPut, "/api/v1/rooms/lobby/chat-lock", token, `{"tab_id":"tab-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/rooms/lobby/chat-lock?tab_id=tab-1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/rooms/lobby/chat-lock", token, `{"tab_id":"tab-2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendValidationMapsTo400(t *testing.T) {
	s := newTestServer(t)
	token := s.mustToken(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/messages", token, `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("x", 501)
	rec = s.do(t, http.MethodPost, "/api/v1/rooms/lobby/messages", token, `{"text":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAndHistoryRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token := s.mustToken(t, "alice")

	rec := s.do(t, http.MethodPost, "/api/v1/rooms/lobby/messages", token, `{"text":"hello","client_id":"c1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/rooms/lobby/messages", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hello"`)
	assert.Contains(t, rec.Body.String(), `"c1"`)
	assert.Contains(t, rec.Body.String(), `"alice"`, "the sender identity comes from the token, not the payload")
}

func TestProfileUpdateByNonOwnerForbidden(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/rooms/alice/profile", s.mustToken(t, "bob"), `{"description":"mine now"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/rooms/alice/profile", s.mustToken(t, "alice"), `{"description":"welcome"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirectoryIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/directory?page=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_pages":1`)
}

// TestEventStreamOpensWithReadyFrame issues an events request whose context
// is already cancelled: the handler must still emit the synthetic ready frame
// before noticing the disconnect.
func TestEventStreamOpensWithReadyFrame(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/lobby/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+s.mustToken(t, "alice"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event:ready")

	// The subscription must not leak after the stream closes.
	assert.Zero(t, s.hub.SubscriberCount("lobby"))
}
