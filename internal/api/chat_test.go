package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fretcoach/coach-server/internal/coach"
	"github.com/fretcoach/coach-server/internal/completion"
	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/identity"
	"github.com/go-chi/chi/v5"
)

type fakeCoach struct {
	turnErr  error
	lastTurn coach.Turn

	saveOutcome coach.SaveOutcome
	saveErr     error
	savedPlanID string
	savedUserID string
}

func (f *fakeCoach) HandleTurn(_ context.Context, t coach.Turn) (*coach.TurnResult, error) {
	f.lastTurn = t
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	thread := t.ThreadID
	if thread == "" {
		thread = coach.DefaultThreadID(t.UserID)
	}
	return &coach.TurnResult{
		ThreadID: thread,
		Reply:    domain.Message{Role: domain.RoleAssistant, Content: "Nice work!"},
		Chart: &domain.ChartData{
			Type:   domain.ChartPracticePlan,
			Data:   domain.DisplayPlan{FocusArea: "Pitch Accuracy", CurrentScore: 62},
			PlanID: "plan-1",
		},
		HasPendingPlan: true,
		Context:        coach.SessionContext{TotalSessions: 4, WeakestArea: domain.AreaPitch},
	}, nil
}

func (f *fakeCoach) ConfirmAndSave(_ context.Context, planID, userID string) (coach.SaveOutcome, error) {
	f.savedPlanID = planID
	f.savedUserID = userID
	return f.saveOutcome, f.saveErr
}

func newChatRouter(c Coach, limiter *UserLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(identity.Middleware(""))
	NewChatHandler(c, limiter, 0, nil).RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestChatSuccess(t *testing.T) {
	fc := &fakeCoach{}
	rr := postJSON(t, newChatRouter(fc, nil), "/api/chat",
		`{"messages":[{"role":"user","content":"suggest a plan"}],"user_id":"alice"}`, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["success"] != true || got["hasPendingPlan"] != true || got["planSaved"] != false {
		t.Fatalf("unexpected flags: %v", got)
	}
	msg := got["message"].(map[string]interface{})
	if msg["role"] != "assistant" || msg["content"] != "Nice work!" {
		t.Fatalf("unexpected message: %v", msg)
	}
	chart := got["chartData"].(map[string]interface{})
	if chart["type"] != "practice_plan" || chart["plan_id"] != "plan-1" {
		t.Fatalf("unexpected chart: %v", chart)
	}
	sc := got["sessionContext"].(map[string]interface{})
	if sc["total_sessions"] != float64(4) || sc["weakest_area"] != "pitch" {
		t.Fatalf("unexpected session context: %v", sc)
	}
	if fc.lastTurn.UserID != "alice" || fc.lastTurn.ThreadID != "" {
		t.Fatalf("unexpected turn identity %+v", fc.lastTurn)
	}
	if len(fc.lastTurn.Messages) != 1 || fc.lastTurn.Messages[0].Content != "suggest a plan" {
		t.Fatalf("unexpected messages %+v", fc.lastTurn.Messages)
	}
}

func TestChatUsesHeaderIdentity(t *testing.T) {
	fc := &fakeCoach{}
	rr := postJSON(t, newChatRouter(fc, nil), "/api/chat", `{"messages":[]}`, map[string]string{
		identity.UserHeaderName:   "bob",
		identity.ThreadHeaderName: "thread-9",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if fc.lastTurn.UserID != "bob" || fc.lastTurn.ThreadID != "thread-9" {
		t.Fatalf("unexpected turn identity %+v", fc.lastTurn)
	}
}

func TestChatDefaultsUser(t *testing.T) {
	fc := &fakeCoach{}
	postJSON(t, newChatRouter(fc, nil), "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	if fc.lastTurn.UserID != identity.DefaultUserID {
		t.Fatalf("expected default user, got %q", fc.lastTurn.UserID)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"store", fmt.Errorf("%w: no table", coach.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"completion", fmt.Errorf("%w: down", coach.ErrCompletionUnavailable), http.StatusBadGateway},
		{"rate limited", fmt.Errorf("%w: %w", coach.ErrCompletionUnavailable, completion.ErrRateLimited), http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, newChatRouter(&fakeCoach{turnErr: tc.err}, nil), "/api/chat", `{"messages":[]}`, nil)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestChatInvalidBody(t *testing.T) {
	rr := postJSON(t, newChatRouter(&fakeCoach{}, nil), "/api/chat", `{"messages":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestChatRateLimited(t *testing.T) {
	h := newChatRouter(&fakeCoach{}, NewUserLimiter(0.001, 1))
	if rr := postJSON(t, h, "/api/chat", `{"messages":[]}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rr.Code)
	}
	if rr := postJSON(t, h, "/api/chat", `{"messages":[]}`, nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	if rr := postJSON(t, h, "/api/chat", `{"messages":[],"user_id":"other"}`, nil); rr.Code != http.StatusOK {
		t.Fatalf("other user: expected 200, got %d", rr.Code)
	}
}

func TestSavePlan(t *testing.T) {
	cases := []struct {
		name    string
		outcome coach.SaveOutcome
		err     error
		want    int
	}{
		{"ok", coach.SaveOK, nil, http.StatusOK},
		{"not found", coach.SaveNotFound, coach.ErrPlanNotFound, http.StatusNotFound},
		{"persist failure", coach.SavePersistFailure, coach.ErrPersistFailure, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCoach{saveOutcome: tc.outcome, saveErr: tc.err}
			rr := postJSON(t, newChatRouter(fc, nil), "/api/save-plan", `{"plan_id":"plan-1","user_id":"alice"}`, nil)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if fc.savedPlanID != "plan-1" || fc.savedUserID != "alice" {
				t.Fatalf("unexpected save args %q/%q", fc.savedPlanID, fc.savedUserID)
			}
		})
	}
}

func TestSavePlanNotFoundMessage(t *testing.T) {
	fc := &fakeCoach{saveOutcome: coach.SaveNotFound, saveErr: coach.ErrPlanNotFound}
	rr := postJSON(t, newChatRouter(fc, nil), "/api/save-plan", `{"plan_id":"gone"}`, nil)

	var got map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["error"] != "Practice plan not found or expired" {
		t.Fatalf("unexpected error %q", got["error"])
	}
	if fc.savedUserID != identity.DefaultUserID {
		t.Fatalf("expected default user, got %q", fc.savedUserID)
	}
}

func TestSavePlanRequiresPlanID(t *testing.T) {
	fc := &fakeCoach{}
	rr := postJSON(t, newChatRouter(fc, nil), "/api/save-plan", `{"plan_id":"  "}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if fc.savedPlanID != "" {
		t.Fatal("coach must not be called without a plan id")
	}
}
