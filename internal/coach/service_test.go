package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fretcoach/coach-server/internal/completion"
	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/plan"
	"github.com/fretcoach/coach-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	agg      domain.Aggregates
	sessions []domain.PracticeSession // newest first
	scales   []domain.ScaleStat
	err      error
}

func (f *fakeSessions) Aggregates(context.Context, string, store.DateRange) (*domain.Aggregates, error) {
	if f.err != nil {
		return nil, f.err
	}
	agg := f.agg
	return &agg, nil
}

func (f *fakeSessions) RecentSessions(_ context.Context, _ string, limit int) ([]domain.PracticeSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.sessions) {
		limit = len(f.sessions)
	}
	return f.sessions[:limit], nil
}

func (f *fakeSessions) ScaleBreakdown(context.Context, string) ([]domain.ScaleStat, error) {
	return f.scales, f.err
}

func (f *fakeSessions) ListSessions(ctx context.Context, userID string, _ store.DateRange, limit int) ([]domain.PracticeSession, error) {
	return f.RecentSessions(ctx, userID, limit)
}

func (f *fakeSessions) GetSession(context.Context, string) (*domain.PracticeSession, error) {
	return nil, store.ErrNotFound
}

type savedPlan struct {
	planID string
	userID string
	plan   domain.StoredPlan
}

type fakePersister struct {
	mu    sync.Mutex
	fail  bool
	saved []savedPlan
}

func (f *fakePersister) SavePlan(_ context.Context, planID, userID string, p domain.StoredPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("database is locked")
	}
	for _, s := range f.saved {
		if s.planID == planID {
			return nil
		}
	}
	f.saved = append(f.saved, savedPlan{planID: planID, userID: userID, plan: p})
	return nil
}

func (f *fakePersister) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakePersister) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	last  completion.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type harness struct {
	svc       *Service
	sessions  *fakeSessions
	persister *fakePersister
	completer *fakeCompleter
	registry  *plan.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	h := &harness{
		sessions: &fakeSessions{
			agg: domain.Aggregates{
				TotalSessions:      3,
				AvgPitchAccuracy:   0.625,
				AvgScaleConformity: 0.9,
				AvgTimingStability: 0.75,
			},
			sessions: []domain.PracticeSession{
				{SessionID: "s3", StartTimestamp: start.Add(48 * time.Hour), PitchAccuracy: 0.7, ScaleConformity: 0.9, TimingStability: 0.8, ScaleChosen: "A Minor"},
				{SessionID: "s2", StartTimestamp: start.Add(24 * time.Hour), PitchAccuracy: 0.6, ScaleConformity: 0.9, TimingStability: 0.7, ScaleChosen: "A Minor"},
				{SessionID: "s1", StartTimestamp: start, PitchAccuracy: 0.55, ScaleConformity: 0.9, TimingStability: 0.75, ScaleChosen: "E Minor"},
			},
			scales: []domain.ScaleStat{{ScaleName: "A Minor", ScaleType: "natural", Count: 2, AvgPitch: 0.65}},
		},
		persister: &fakePersister{},
		completer: &fakeCompleter{reply: "Keep it up!"},
		registry:  plan.NewRegistry(),
	}
	n := 0
	gen := plan.NewGenerator(h.registry, plan.WithIDSource(func() string {
		n++
		return fmt.Sprintf("plan-%d", n)
	}))
	svc, err := New(Deps{
		Sessions:  h.sessions,
		Plans:     h.persister,
		Completer: h.completer,
		Registry:  h.registry,
		Generator: gen,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func userTurn(thread, text string) Turn {
	return Turn{ThreadID: thread, UserID: "u1", Messages: []domain.Message{{Role: domain.RoleUser, Content: text}}}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHandleTurn_Defaults(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.HandleTurn(context.Background(), Turn{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}}})
	require.NoError(t, err)

	assert.Equal(t, "chat-default_user", res.ThreadID)
	assert.Equal(t, "Keep it up!", res.Reply.Content)
	assert.Equal(t, domain.RoleAssistant, res.Reply.Role)
	assert.Nil(t, res.Chart)
	assert.False(t, res.PlanSaved)
	assert.False(t, res.HasPendingPlan)
	assert.Equal(t, SessionContext{TotalSessions: 3, WeakestArea: domain.AreaPitch}, res.Context)
	assert.Equal(t, "chat-default_user", h.completer.last.ThreadID)
}

func TestHandleTurn_PromptCarriesContextAndHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandleTurn(context.Background(), Turn{
		ThreadID: "t1",
		UserID:   "u1",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: "bot", Content: "hello there"},
			{Role: domain.RoleUser, Content: "thanks"},
		},
	})
	require.NoError(t, err)

	msgs := h.completer.last.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "**Average pitch accuracy**: 62%")
	assert.Contains(t, msgs[0].Content, "**Weakest area**: pitch")
	assert.Contains(t, msgs[0].Content, "- 03/03: A Minor (Pitch: 70%, Scale: 90%, Timing: 80%)")
	assert.NotContains(t, msgs[0].Content, "pending practice plan")
	assert.Equal(t, domain.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "thanks", msgs[3].Content)
}

func TestHandleTurn_EmptyHistoryPrompt(t *testing.T) {
	h := newHarness(t)
	h.sessions.agg = domain.Aggregates{}
	h.sessions.sessions = nil
	h.sessions.scales = nil

	res, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "compare my latest session"))
	require.NoError(t, err)
	assert.Nil(t, res.Chart)
	assert.Equal(t, "Keep it up!", res.Reply.Content)

	system := h.completer.last.Messages[0].Content
	assert.Contains(t, system, "No sessions recorded yet")
	assert.Contains(t, system, "**Scales practiced**: None yet")
}

func TestHandleTurn_ProgressChart(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "Show me my progress"))
	require.NoError(t, err)
	require.NotNil(t, res.Chart)

	assert.Equal(t, domain.ChartPerformanceTrend, res.Chart.Type)
	assert.Equal(t, "all", res.Chart.Metric)
	points, ok := res.Chart.Data.([]domain.TrendPoint)
	require.True(t, ok)
	require.Len(t, points, 3)
	assert.Equal(t, domain.TrendPoint{Session: 1, Date: "03/01", PitchAccuracy: 55, ScaleConformity: 90, TimingStability: 75, Scale: "E Minor"}, points[0])
	assert.Equal(t, 3, points[2].Session)
	assert.True(t, strings.HasSuffix(res.Reply.Content, annotationTrend))
}

func TestHandleTurn_ComparisonChart(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "compare my latest with my average"))
	require.NoError(t, err)
	require.NotNil(t, res.Chart)

	assert.Equal(t, domain.ChartComparison, res.Chart.Type)
	assert.Equal(t, domain.Comparison{
		Latest:  domain.ScoreSet{Pitch: 70, Scale: 90, Timing: 80},
		Average: domain.ScoreSet{Pitch: 62, Scale: 90, Timing: 75},
	}, res.Chart.Data)
	assert.True(t, strings.HasSuffix(res.Reply.Content, annotationComparison))
}

func TestHandleTurn_PlanGenerated(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "what should I practice? maybe E minor"))
	require.NoError(t, err)
	require.NotNil(t, res.Chart)

	assert.Equal(t, domain.ChartPracticePlan, res.Chart.Type)
	assert.Equal(t, "plan-1", res.Chart.PlanID)
	display, ok := res.Chart.Data.(domain.DisplayPlan)
	require.True(t, ok)
	assert.Equal(t, "Pitch Accuracy", display.FocusArea)
	assert.Equal(t, 62, display.CurrentScore)
	assert.Equal(t, "E Minor", display.SuggestedScale)
	assert.True(t, res.HasPendingPlan)
	assert.True(t, strings.HasSuffix(res.Reply.Content, annotationPlan))
	assert.Equal(t, 0, h.persister.count())
}

func TestHandleTurn_ConfirmSavesPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "give me a practice plan"))
	require.NoError(t, err)

	res, err := h.svc.HandleTurn(ctx, userTurn("t1", "sounds good"))
	require.NoError(t, err)

	assert.True(t, res.PlanSaved)
	assert.False(t, res.HasPendingPlan)
	assert.Nil(t, res.Chart)
	assert.True(t, strings.HasSuffix(res.Reply.Content, annotationSaved))
	require.Equal(t, 1, h.persister.count())
	assert.Equal(t, "plan-1", h.persister.saved[0].planID)
	assert.Equal(t, "u1", h.persister.saved[0].userID)
	assert.Equal(t, domain.AreaPitch, h.persister.saved[0].plan.FocusArea)
}

func TestHandleTurn_ConfirmWithPlanKeywordDoesNotRegenerate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "recommend something"))
	require.NoError(t, err)

	res, err := h.svc.HandleTurn(ctx, userTurn("t1", "yes, save the plan"))
	require.NoError(t, err)

	assert.True(t, res.PlanSaved)
	assert.Nil(t, res.Chart)
	assert.False(t, res.HasPendingPlan)
	assert.Equal(t, 0, h.registry.Len())
}

func TestHandleTurn_PendingInstructionInPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	_, err = h.svc.HandleTurn(ctx, userTurn("t1", "why pitch?"))
	require.NoError(t, err)
	assert.Contains(t, h.completer.last.Messages[0].Content, "There is a pending practice plan")
}

func TestHandleTurn_ConfirmWithoutPendingPlan(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "ok great"))
	require.NoError(t, err)
	assert.False(t, res.PlanSaved)
	assert.Equal(t, 0, h.persister.count())
}

func TestHandleTurn_NewPlanOverwritesPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)
	res, err := h.svc.HandleTurn(ctx, userTurn("t1", "another practice plan please"))
	require.NoError(t, err)

	assert.Equal(t, "plan-2", res.Chart.PlanID)
	assert.Equal(t, 1, h.registry.Len())
	p, ok := h.registry.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "plan-2", p.PlanID)

	outcome, err := h.svc.ConfirmAndSave(ctx, "plan-1", "u1")
	assert.Equal(t, SaveNotFound, outcome)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestHandleTurn_PersistFailureKeepsPlanPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	h.persister.setFail(true)
	res, err := h.svc.HandleTurn(ctx, userTurn("t1", "yes"))
	require.NoError(t, err)
	assert.False(t, res.PlanSaved)
	assert.True(t, res.HasPendingPlan)
	assert.NotContains(t, res.Reply.Content, annotationSaved)

	h.persister.setFail(false)
	res, err = h.svc.HandleTurn(ctx, userTurn("t1", "yes"))
	require.NoError(t, err)
	assert.True(t, res.PlanSaved)
	assert.Equal(t, 1, h.persister.count())
}

func TestHandleTurn_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.sessions.err = errors.New("no such table")

	_, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "hello"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestHandleTurn_CompletionFailureRegistersNoPlan(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("upstream down")

	_, err := h.svc.HandleTurn(context.Background(), userTurn("t1", "suggest a plan"))
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.False(t, h.registry.Has("t1"))
}

func TestHandleTurn_CompletionFailureKeepsEarlierSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	h.completer.err = errors.New("upstream down")
	_, err = h.svc.HandleTurn(ctx, userTurn("t1", "confirm"))
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.Equal(t, 1, h.persister.count())
	assert.False(t, h.registry.Has("t1"))
}

func TestConfirmAndSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	outcome, err := h.svc.ConfirmAndSave(ctx, "plan-1", "button-user")
	require.NoError(t, err)
	assert.Equal(t, SaveOK, outcome)
	assert.False(t, h.registry.Has("t1"))
	require.Equal(t, 1, h.persister.count())
	assert.Equal(t, "button-user", h.persister.saved[0].userID)

	outcome, err = h.svc.ConfirmAndSave(ctx, "plan-1", "button-user")
	assert.Equal(t, SaveNotFound, outcome)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestConfirmAndSave_PersistFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	h.persister.setFail(true)
	outcome, err := h.svc.ConfirmAndSave(ctx, "plan-1", "u1")
	assert.Equal(t, SavePersistFailure, outcome)
	assert.ErrorIs(t, err, ErrPersistFailure)
	assert.True(t, h.registry.Has("t1"))
}

func TestConfirmAndSave_RacesWithChatConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.HandleTurn(ctx, userTurn("t1", "suggest a plan"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = h.svc.ConfirmAndSave(ctx, "plan-1", "u1")
	}()
	go func() {
		defer wg.Done()
		_, _ = h.svc.HandleTurn(ctx, userTurn("t1", "save it"))
	}()
	wg.Wait()

	assert.Equal(t, 1, h.persister.count())
	assert.False(t, h.registry.Has("t1"))
}

func TestSaveOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", SaveOK.String())
	assert.Equal(t, "not_found", SaveNotFound.String())
	assert.Equal(t, "persist_failure", SavePersistFailure.String())
}
