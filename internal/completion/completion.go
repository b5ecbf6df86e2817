// Package completion provides text completion over role-tagged messages.
package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fretcoach/coach-server/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrRateLimited marks a provider refusing work because of quota or rate limits.
var ErrRateLimited = errors.New("completion rate limited")

// Request is an ordered list of messages for one completion.
type Request struct {
	ThreadID string
	Messages []domain.Message
}

// Completer generates assistant text for a message sequence.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// IsRateLimited reports whether err indicates quota exhaustion.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "RATE LIMIT")
}

// Fallback tries the primary completer and, when it is rate limited, the
// secondary one. Other primary errors are returned as is.
type Fallback struct {
	primary    Completer
	secondary  Completer
	logger     *slog.Logger
	onFallback func()
}

// NewFallback wraps primary with a rate-limit fallback to secondary.
// onFallback, if non-nil, is called each time the secondary is used.
func NewFallback(primary, secondary Completer, logger *slog.Logger, onFallback func()) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary:    primary,
		secondary:  secondary,
		logger:     logger,
		onFallback: onFallback,
	}
}

// Complete implements Completer.
func (f *Fallback) Complete(ctx context.Context, req Request) (string, error) {
	text, err := f.primary.Complete(ctx, req)
	if err == nil || f.secondary == nil || !IsRateLimited(err) {
		return text, err
	}

	f.logger.Info("Primary completion rate limited, falling back", "thread_id", req.ThreadID, "error", err)
	if f.onFallback != nil {
		f.onFallback()
	}
	return f.secondary.Complete(ctx, req)
}

// Func adapts a function to the Completer interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete implements Completer.
func (fn Func) Complete(ctx context.Context, req Request) (string, error) {
	return fn(ctx, req)
}

var (
	_ Completer = (*Fallback)(nil)
	_ Completer = Func(nil)
	_ Completer = (*GrpcClient)(nil)
)
