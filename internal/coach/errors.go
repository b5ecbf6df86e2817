package coach

import "errors"

var (
	// ErrStoreUnavailable is returned when the practice snapshot cannot be loaded.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrCompletionUnavailable is returned when no reply could be generated.
	ErrCompletionUnavailable = errors.New("completion service unavailable")

	// ErrPersistFailure is returned when a confirmed plan could not be written.
	ErrPersistFailure = errors.New("failed to persist practice plan")

	// ErrPlanNotFound is returned when no pending plan carries the requested id.
	ErrPlanNotFound = errors.New("practice plan not found or expired")
)
