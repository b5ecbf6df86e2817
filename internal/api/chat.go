package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fretcoach/coach-server/internal/coach"
	"github.com/fretcoach/coach-server/internal/completion"
	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Coach answers chat turns and saves pending plans.
type Coach interface {
	HandleTurn(ctx context.Context, t coach.Turn) (*coach.TurnResult, error)
	ConfirmAndSave(ctx context.Context, planID, userID string) (coach.SaveOutcome, error)
}

// ChatRequest is the body of POST /api/chat and of each websocket frame.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
	UserID   string           `json:"user_id,omitempty"`
	ThreadID string           `json:"thread_id,omitempty"`
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	Success        bool                 `json:"success"`
	Message        domain.Message       `json:"message"`
	ChartData      *domain.ChartData    `json:"chartData"`
	PlanSaved      bool                 `json:"planSaved"`
	HasPendingPlan bool                 `json:"hasPendingPlan"`
	SessionContext coach.SessionContext `json:"sessionContext"`
	ThreadID       string               `json:"thread_id,omitempty"`
}

// SavePlanRequest is the body of POST /api/save-plan.
type SavePlanRequest struct {
	PlanID string `json:"plan_id"`
	UserID string `json:"user_id,omitempty"`
}

// ChatHandler serves the coach chat endpoints.
type ChatHandler struct {
	coach   Coach
	limiter *UserLimiter
	maxBody int64
	logger  *slog.Logger
}

// NewChatHandler creates a chat handler. A nil limiter disables rate limiting.
func NewChatHandler(c Coach, limiter *UserLimiter, maxBody int64, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBodySize
	}
	return &ChatHandler{coach: c, limiter: limiter, maxBody: maxBody, logger: logger}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/save-plan", h.SavePlan)
	})
}

// apiError is a failed request with the status it maps to.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

// turn runs one chat request and maps failures onto HTTP statuses.
func (h *ChatHandler) turn(ctx context.Context, req ChatRequest) (*ChatResponse, *apiError) {
	userID := identity.ResolveUserID(ctx, req.UserID)
	threadID := identity.ResolveThreadID(ctx, req.ThreadID)

	if !h.limiter.Allow(userID) {
		return nil, &apiError{http.StatusTooManyRequests, "too many chat requests, slow down"}
	}

	res, err := h.coach.HandleTurn(ctx, coach.Turn{ThreadID: threadID, UserID: userID, Messages: req.Messages})
	if err != nil {
		h.logger.Error("Chat failed", "user_id", userID, "thread_id", threadID, "error", err)
		switch {
		case errors.Is(err, coach.ErrStoreUnavailable):
			return nil, &apiError{http.StatusServiceUnavailable, "practice data is unavailable"}
		case completion.IsRateLimited(err):
			return nil, &apiError{http.StatusTooManyRequests, "the coach is busy, try again shortly"}
		case errors.Is(err, coach.ErrCompletionUnavailable):
			return nil, &apiError{http.StatusBadGateway, "the coach could not generate a reply"}
		default:
			return nil, &apiError{http.StatusInternalServerError, "chat failed"}
		}
	}

	return &ChatResponse{
		Success:        true,
		Message:        res.Reply,
		ChartData:      res.Chart,
		PlanSaved:      res.PlanSaved,
		HasPendingPlan: res.HasPendingPlan,
		SessionContext: res.Context,
		ThreadID:       res.ThreadID,
	}, nil
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, apiErr := h.turn(r.Context(), req)
	if apiErr != nil {
		Error(w, apiErr.status, apiErr.message)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// SavePlan handles POST /api/save-plan.
func (h *ChatHandler) SavePlan(w http.ResponseWriter, r *http.Request) {
	var req SavePlanRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		Error(w, http.StatusBadRequest, "plan_id is required")
		return
	}
	userID := identity.ResolveUserID(r.Context(), req.UserID)

	outcome, err := h.coach.ConfirmAndSave(r.Context(), planID, userID)
	switch outcome {
	case coach.SaveOK:
		JSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Practice plan saved!",
		})
	case coach.SaveNotFound:
		Error(w, http.StatusNotFound, "Practice plan not found or expired")
	default:
		h.logger.Error("Save plan failed", "plan_id", planID, "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to save practice plan")
	}
}
