// Package plan generates practice plans and tracks the ones awaiting confirmation.
package plan

import (
	"sync"
	"time"

	"github.com/fretcoach/coach-server/internal/domain"
)

// Registry maps conversation thread IDs to at most one pending plan.
//
// The registry lives in process memory only. Callers that must observe and
// act on a thread's entry atomically hold the thread lock from Lock.
type Registry struct {
	mu    sync.Mutex
	plans map[string]*domain.PendingPlan

	locksMu sync.Mutex
	locks   map[string]*threadLock

	maxPending int
	ttl        time.Duration
	now        func() time.Time
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxPending bounds the number of pending plans; the oldest is evicted
// when the bound is exceeded. Zero means unbounded.
func WithMaxPending(n int) RegistryOption {
	return func(r *Registry) { r.maxPending = n }
}

// WithTTL expires pending plans older than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plans: make(map[string]*domain.PendingPlan),
		locks: make(map[string]*threadLock),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock acquires the per-thread lock and returns its release function.
func (r *Registry) Lock(threadID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[threadID]
	if !ok {
		l = &threadLock{}
		r.locks[threadID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, threadID)
		}
		r.locksMu.Unlock()
	}
}

func (r *Registry) expired(p *domain.PendingPlan) bool {
	return r.ttl > 0 && r.now().Sub(p.CreatedAt) > r.ttl
}

// Get returns a copy of the thread's pending plan.
func (r *Registry) Get(threadID string) (*domain.PendingPlan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[threadID]
	if !ok {
		return nil, false
	}
	if r.expired(p) {
		delete(r.plans, threadID)
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Has reports whether the thread has a pending plan.
func (r *Registry) Has(threadID string) bool {
	_, ok := r.Get(threadID)
	return ok
}

// Put stores plan for the thread, replacing any previous entry.
// It returns the number of other plans evicted to respect the capacity bound.
func (r *Registry) Put(threadID string, plan *domain.PendingPlan) int {
	cp := *plan
	cp.ThreadID = threadID

	r.mu.Lock()
	defer r.mu.Unlock()

	r.plans[threadID] = &cp
	if r.maxPending <= 0 {
		return 0
	}

	evicted := 0
	for len(r.plans) > r.maxPending {
		oldest := ""
		var oldestAt time.Time
		for id, p := range r.plans {
			if id == threadID {
				continue
			}
			if oldest == "" || p.CreatedAt.Before(oldestAt) {
				oldest, oldestAt = id, p.CreatedAt
			}
		}
		if oldest == "" {
			break
		}
		delete(r.plans, oldest)
		evicted++
	}
	return evicted
}

// Remove deletes the thread's pending plan, reporting whether one existed.
func (r *Registry) Remove(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.plans[threadID]
	delete(r.plans, threadID)
	return ok
}

// RemoveIf deletes the thread's pending plan only if it still has planID.
func (r *Registry) RemoveIf(threadID, planID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[threadID]
	if !ok || p.PlanID != planID {
		return false
	}
	delete(r.plans, threadID)
	return true
}

// FindByPlanID scans pending plans for planID.
func (r *Registry) FindByPlanID(planID string) (string, *domain.PendingPlan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for threadID, p := range r.plans {
		if p.PlanID != planID {
			continue
		}
		if r.expired(p) {
			delete(r.plans, threadID)
			return "", nil, false
		}
		cp := *p
		return threadID, &cp, true
	}
	return "", nil, false
}

// Len returns the number of pending plans, expired ones included until swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

// Sweep removes expired plans and returns how many were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for threadID, p := range r.plans {
		if r.expired(p) {
			delete(r.plans, threadID)
			removed++
		}
	}
	return removed
}
