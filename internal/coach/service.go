// Package coach runs the practice coach conversation: it answers chat turns
// with the user's practice context, attaches charts and practice plans, and
// saves a pending plan when the user confirms it.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fretcoach/coach-server/internal/completion"
	"github.com/fretcoach/coach-server/internal/convlog"
	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/identity"
	"github.com/fretcoach/coach-server/internal/intent"
	"github.com/fretcoach/coach-server/internal/metrics"
	"github.com/fretcoach/coach-server/internal/plan"
	"github.com/fretcoach/coach-server/internal/store"
)

var zeroRange store.DateRange

// Deps holds the collaborators of a Service. Sessions, Plans, Completer and
// Registry are required.
type Deps struct {
	Sessions  store.SessionStore
	Plans     store.PlanPersister
	Completer completion.Completer
	Registry  *plan.Registry
	Generator *plan.Generator
	Metrics   *metrics.Metrics
	ConvLog   convlog.Logger
	Logger    *slog.Logger
}

// Service handles chat turns and plan confirmations.
type Service struct {
	sessions  store.SessionStore
	plans     store.PlanPersister
	completer completion.Completer
	registry  *plan.Registry
	generator *plan.Generator
	metrics   *metrics.Metrics
	convlog   convlog.Logger
	logger    *slog.Logger
}

// New creates a Service.
func New(d Deps) (*Service, error) {
	if d.Sessions == nil || d.Plans == nil || d.Completer == nil || d.Registry == nil {
		return nil, errors.New("coach: sessions, plans, completer and registry are required")
	}
	if d.Generator == nil {
		d.Generator = plan.NewGenerator(d.Registry)
	}
	if d.ConvLog == nil {
		d.ConvLog = convlog.Noop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		sessions:  d.Sessions,
		plans:     d.Plans,
		completer: d.Completer,
		registry:  d.Registry,
		generator: d.Generator,
		metrics:   d.Metrics,
		convlog:   d.ConvLog,
		logger:    d.Logger,
	}, nil
}

// Turn is one chat request: the full message history of a thread.
type Turn struct {
	ThreadID string
	UserID   string
	Messages []domain.Message
}

// SessionContext summarizes the snapshot a reply was built from.
type SessionContext struct {
	TotalSessions int         `json:"total_sessions"`
	WeakestArea   domain.Area `json:"weakest_area"`
}

// TurnResult is the reply to a Turn.
type TurnResult struct {
	ThreadID       string
	Reply          domain.Message
	Chart          *domain.ChartData
	PlanSaved      bool
	HasPendingPlan bool
	Context        SessionContext
}

// DefaultThreadID is the thread used when a request names none.
func DefaultThreadID(userID string) string {
	return "chat-" + userID
}

// HandleTurn answers the last message of a turn.
func (s *Service) HandleTurn(ctx context.Context, t Turn) (*TurnResult, error) {
	if t.UserID == "" {
		t.UserID = identity.DefaultUserID
	}
	if t.ThreadID == "" {
		t.ThreadID = DefaultThreadID(t.UserID)
	}
	log := s.logger.With("user_id", t.UserID, "thread_id", t.ThreadID)

	snap, err := s.loadSnapshot(ctx, t.UserID)
	if err != nil {
		s.metrics.TurnFailed("store")
		return nil, err
	}

	last := ""
	if n := len(t.Messages); n > 0 {
		last = t.Messages[n-1].Content
	}
	s.convlog.Log(convlog.Event{
		UserID:    t.UserID,
		ThreadID:  t.ThreadID,
		Channel:   "chat",
		EventType: convlog.EventUserMessage,
		Content:   last,
	})

	planSaved, hasPending := s.confirmPending(ctx, log, t.ThreadID, last)

	kind := intent.Classify(last)
	if kind == intent.Plan && planSaved {
		kind = intent.None
	}
	s.metrics.TurnHandled(string(kind))

	var chart *domain.ChartData
	switch kind {
	case intent.Progress:
		chart, err = s.trendChart(ctx, t.UserID)
	case intent.Comparison:
		chart, err = s.comparisonChart(ctx, t.UserID, snap)
	}
	if err != nil {
		s.metrics.TurnFailed("store")
		return nil, err
	}

	msgs := buildMessages(systemPrompt(snap, hasPending), t.Messages)
	reply, err := s.completer.Complete(ctx, completion.Request{ThreadID: t.ThreadID, Messages: msgs})
	if err != nil {
		s.metrics.TurnFailed("completion")
		return nil, fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}

	if kind == intent.Plan {
		chart = s.registerPlan(log, snap, t, last)
	}

	reply = annotate(reply, chart, planSaved)
	s.convlog.Log(convlog.Event{
		UserID:    t.UserID,
		ThreadID:  t.ThreadID,
		Channel:   "chat",
		EventType: convlog.EventAssistantReply,
		Content:   reply,
		Intent:    string(kind),
	})

	return &TurnResult{
		ThreadID:       t.ThreadID,
		Reply:          domain.Message{Role: domain.RoleAssistant, Content: reply},
		Chart:          chart,
		PlanSaved:      planSaved,
		HasPendingPlan: s.registry.Has(t.ThreadID),
		Context: SessionContext{
			TotalSessions: snap.TotalSessions,
			WeakestArea:   snap.WeakestArea,
		},
	}, nil
}

// confirmPending saves the thread's pending plan when msg confirms it. It
// reports whether a plan was saved and whether one is still pending.
// Persistence failures leave the plan pending.
func (s *Service) confirmPending(ctx context.Context, log *slog.Logger, threadID, msg string) (saved, pending bool) {
	unlock := s.registry.Lock(threadID)
	defer unlock()

	p, ok := s.registry.Get(threadID)
	if ok && intent.IsConfirmation(msg) {
		if err := s.plans.SavePlan(ctx, p.PlanID, p.UserID, p.Storage); err != nil {
			log.Warn("Failed to save confirmed practice plan", "plan_id", p.PlanID, "error", err)
			s.metrics.PersistFailed()
			s.logPlanEvent(p, convlog.EventPlanSaveFailed)
		} else {
			s.registry.RemoveIf(threadID, p.PlanID)
			saved = true
			log.Info("Practice plan saved from chat", "plan_id", p.PlanID)
			s.metrics.PlanSaved(metrics.SaveViaChat)
			s.metrics.SetPendingPlans(s.registry.Len())
			s.logPlanEvent(p, convlog.EventPlanSaved)
		}
	}
	return saved, s.registry.Has(threadID)
}

// registerPlan generates a plan for the thread, replacing any pending one.
func (s *Service) registerPlan(log *slog.Logger, snap domain.PracticeSnapshot, t Turn, msg string) *domain.ChartData {
	name, scaleType := intent.ExtractScale(msg)

	unlock := s.registry.Lock(t.ThreadID)
	p, display := s.generator.Generate(snap, domain.Scale{Name: name, Type: scaleType}, t.ThreadID, t.UserID)
	unlock()

	log.Info("Practice plan generated", "plan_id", p.PlanID, "focus_area", p.Storage.FocusArea)
	s.metrics.PlanGenerated()
	s.metrics.SetPendingPlans(s.registry.Len())
	s.logPlanEvent(p, convlog.EventPlanGenerated)

	return &domain.ChartData{Type: domain.ChartPracticePlan, Data: display, PlanID: p.PlanID}
}

// SaveOutcome is the result of a direct plan save.
type SaveOutcome int

const (
	SaveOK SaveOutcome = iota
	SaveNotFound
	SavePersistFailure
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveOK:
		return "ok"
	case SaveNotFound:
		return "not_found"
	case SavePersistFailure:
		return "persist_failure"
	default:
		return fmt.Sprintf("SaveOutcome(%d)", int(o))
	}
}

// ConfirmAndSave persists the pending plan with planID on behalf of userID,
// whichever thread it is pending in. The returned error wraps ErrPlanNotFound
// or ErrPersistFailure and matches the outcome.
func (s *Service) ConfirmAndSave(ctx context.Context, planID, userID string) (SaveOutcome, error) {
	if userID == "" {
		userID = identity.DefaultUserID
	}
	threadID, _, ok := s.registry.FindByPlanID(planID)
	if !ok {
		return SaveNotFound, ErrPlanNotFound
	}

	unlock := s.registry.Lock(threadID)
	defer unlock()

	// A chat confirmation or a newer plan may have replaced it while unlocked.
	p, ok := s.registry.Get(threadID)
	if !ok || p.PlanID != planID {
		return SaveNotFound, ErrPlanNotFound
	}

	if err := s.plans.SavePlan(ctx, p.PlanID, userID, p.Storage); err != nil {
		s.logger.Warn("Failed to save practice plan",
			"plan_id", planID,
			"user_id", userID,
			"thread_id", threadID,
			"error", err,
		)
		s.metrics.PersistFailed()
		s.logPlanEvent(p, convlog.EventPlanSaveFailed)
		return SavePersistFailure, fmt.Errorf("%w: %v", ErrPersistFailure, err)
	}

	s.registry.RemoveIf(threadID, planID)
	s.logger.Info("Practice plan saved", "plan_id", planID, "user_id", userID, "thread_id", threadID)
	s.metrics.PlanSaved(metrics.SaveViaButton)
	s.metrics.SetPendingPlans(s.registry.Len())
	s.logPlanEvent(p, convlog.EventPlanSaved)
	return SaveOK, nil
}

func (s *Service) logPlanEvent(p *domain.PendingPlan, eventType string) {
	s.convlog.Log(convlog.Event{
		UserID:    p.UserID,
		ThreadID:  p.ThreadID,
		Channel:   "plan",
		EventType: eventType,
		PlanID:    p.PlanID,
	})
}
