package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/identity"
	"github.com/fretcoach/coach-server/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultSessionLimit = 10
	maxSessionLimit     = 50
)

// SessionRepository is the storage used by the session endpoints.
type SessionRepository interface {
	store.SessionStore
	InsertSession(ctx context.Context, session *domain.PracticeSession) error
	GetPlan(ctx context.Context, planID string) (*store.SavedPlan, error)
}

// SessionsHandler serves practice session history and saved plans.
type SessionsHandler struct {
	repo    SessionRepository
	maxBody int64
	now     func() time.Time
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(repo SessionRepository, maxBody int64) *SessionsHandler {
	return &SessionsHandler{repo: repo, maxBody: maxBody, now: time.Now}
}

// RegisterRoutes registers session and plan routes.
func (h *SessionsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Get("/plans/{planID}", h.GetPlan)
	})
}

type dateRangeJSON struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", v)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ListSessions handles GET /api/sessions.
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	userID := identity.UserIDFromContext(ctx)

	limit := defaultSessionLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSessionLimit {
			Error(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSessionLimit))
			return
		}
		limit = n
	}

	includeAggregates := true
	if v := q.Get("include_aggregates"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			Error(w, http.StatusBadRequest, "include_aggregates must be a boolean")
			return
		}
		includeAggregates = b
	}

	var dr store.DateRange
	startRaw, endRaw := q.Get("start_date"), q.Get("end_date")
	if startRaw != "" {
		t, err := parseDate(startRaw)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		dr.Start = t
	}
	if endRaw != "" {
		t, err := parseDate(endRaw)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		dr.End = t
	}

	sessions, err := h.repo.ListSessions(ctx, userID, dr, limit)
	if err != nil {
		slog.Error("Failed to fetch sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.PracticeSession{}
	}

	var aggregates *domain.Aggregates
	if includeAggregates {
		aggregates, err = h.repo.Aggregates(ctx, userID, dr)
		if err != nil {
			slog.Error("Failed to fetch session aggregates", "user_id", userID, "error", err)
			Error(w, http.StatusInternalServerError, "Failed to fetch sessions")
			return
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"sessions":   sessions,
		"aggregates": aggregates,
		"dateRange": dateRangeJSON{
			Start: optionalString(startRaw),
			End:   optionalString(endRaw),
		},
	})
}

// GetSession handles GET /api/sessions/{sessionID}.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to fetch session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": sess})
}

func validateSession(s *domain.PracticeSession) error {
	scores := map[string]float64{
		"pitch_accuracy":   s.PitchAccuracy,
		"scale_conformity": s.ScaleConformity,
		"timing_stability": s.TimingStability,
	}
	for name, v := range scores {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if s.DurationSeconds < 0 {
		return errors.New("duration_seconds cannot be negative")
	}
	if s.EndTimestamp != nil && s.EndTimestamp.Before(s.StartTimestamp) {
		return errors.New("end_timestamp is before start_timestamp")
	}
	return nil
}

// CreateSession handles POST /api/sessions.
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var sess domain.PracticeSession
	if err := decodeJSON(w, r, h.maxBody, &sess); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(sess.SessionID) == "" {
		sess.SessionID = uuid.NewString()
	}
	sess.UserID = identity.ResolveUserID(r.Context(), sess.UserID)
	if sess.StartTimestamp.IsZero() {
		sess.StartTimestamp = h.now().UTC()
	}
	if err := validateSession(&sess); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.InsertSession(r.Context(), &sess); err != nil {
		slog.Error("Failed to record session", "session_id", sess.SessionID, "user_id", sess.UserID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to record session")
		return
	}
	slog.Info("Practice session recorded", "session_id", sess.SessionID, "user_id", sess.UserID)
	JSON(w, http.StatusCreated, map[string]interface{}{"success": true, "session": sess})
}

// GetPlan handles GET /api/plans/{planID}.
func (h *SessionsHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	saved, err := h.repo.GetPlan(r.Context(), planID)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "Practice plan not found")
		return
	}
	if err != nil {
		slog.Error("Failed to fetch practice plan", "plan_id", planID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to fetch practice plan")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"practice_id":         saved.PlanID,
		"user_id":             saved.UserID,
		"practice_plan":       saved.Plan,
		"executed_session_id": saved.ExecutedSessionID,
		"created_at":          saved.CreatedAt,
	})
}
