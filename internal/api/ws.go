package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fretcoach/coach-server/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// wsError is sent in place of a ChatResponse when a frame fails.
type wsError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

// CoachSocket serves chat over a websocket. Each text frame is a ChatRequest
// and is answered with one ChatResponse or wsError frame.
type CoachSocket struct {
	chat           *ChatHandler
	allowedOrigins []string
}

// NewCoachSocket creates a websocket chat endpoint backed by chat.
func NewCoachSocket(chat *ChatHandler, allowedOrigins []string) *CoachSocket {
	return &CoachSocket{chat: chat, allowedOrigins: allowedOrigins}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (s *CoachSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	logger := s.chat.logger.With("user_id", userID, "ip", identity.IPFromRequest(r))
	logger.Info("Coach WebSocket connection request")

	if !s.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(s.chat.maxBody)

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				logger.Debug("WebSocket closed by client")
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			if err := s.write(ctx, ws, wsError{Error: "expected a text frame", Status: http.StatusBadRequest}); err != nil {
				return
			}
			continue
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := s.write(ctx, ws, wsError{Error: "invalid chat request", Status: http.StatusBadRequest}); err != nil {
				return
			}
			continue
		}

		resp, apiErr := s.chat.turn(ctx, req)
		var out interface{} = resp
		if apiErr != nil {
			out = wsError{Error: apiErr.message, Status: apiErr.status}
		}
		if err := s.write(ctx, ws, out); err != nil {
			logger.Warn("WebSocket write error", "error", err)
			return
		}
	}
}

func (s *CoachSocket) write(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

func (s *CoachSocket) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}
