// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fretcoach/coach-server/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DateRange bounds session queries. A zero Start or End leaves that side open;
// End is inclusive of the whole day it falls on.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SessionStore reads a user's practice sessions.
type SessionStore interface {
	// Aggregates returns totals and averages over the user's sessions in r.
	Aggregates(ctx context.Context, userID string, r DateRange) (*domain.Aggregates, error)

	// RecentSessions returns up to limit sessions, newest first.
	RecentSessions(ctx context.Context, userID string, limit int) ([]domain.PracticeSession, error)

	// ScaleBreakdown returns per-scale averages ordered by session count.
	ScaleBreakdown(ctx context.Context, userID string) ([]domain.ScaleStat, error)

	// ListSessions returns up to limit sessions in r, newest first.
	ListSessions(ctx context.Context, userID string, r DateRange, limit int) ([]domain.PracticeSession, error)

	// GetSession returns a single session or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*domain.PracticeSession, error)
}

// PlanPersister durably stores confirmed practice plans.
// SavePlan is idempotent per plan ID: repeating it never writes a second row.
type PlanPersister interface {
	SavePlan(ctx context.Context, planID, userID string, plan domain.StoredPlan) error
}

// SavedPlan is a persisted practice plan row.
type SavedPlan struct {
	PlanID            string
	UserID            string
	Plan              domain.StoredPlan
	ExecutedSessionID string
	CreatedAt         time.Time
}

// Repository is the full storage surface used by the server.
type Repository interface {
	SessionStore
	PlanPersister

	// InsertSession records a finished practice session.
	InsertSession(ctx context.Context, session *domain.PracticeSession) error

	// GetPlan returns a saved plan or ErrNotFound.
	GetPlan(ctx context.Context, planID string) (*SavedPlan, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
