// Package convlog records coach conversations as newline-delimited JSON,
// one file per user and thread.
package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event types.
const (
	EventUserMessage    = "chat_user_message"
	EventAssistantReply = "chat_assistant_reply"
	EventPlanGenerated  = "plan_generated"
	EventPlanSaved      = "plan_saved"
	EventPlanSaveFailed = "plan_save_failed"
)

// Logger records conversation events.
type Logger interface {
	Log(event Event)
	Close() error
}

// Event is one logged conversation entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	Channel   string    `json:"channel,omitempty"`
	EventType string    `json:"event_type"`
	Content   string    `json:"content,omitempty"`
	PlanID    string    `json:"plan_id,omitempty"`
	Intent    string    `json:"intent,omitempty"`
}

// Config controls the file logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// New returns a file logger for cfg, or a no-op logger when disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewFileLogger(cfg, logger)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event)    {}
func (Noop) Close() error { return nil }

// FileLogger writes events asynchronously to Dir/<user>/<thread>.ndjson.
// When the queue is full new events are dropped.
type FileLogger struct {
	dir    string
	events chan Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewFileLogger creates the log directory and starts the writer goroutine.
func NewFileLogger(cfg Config, logger *slog.Logger) (*FileLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &FileLogger{
		dir:    cfg.Dir,
		events: make(chan Event, cfg.QueueSize),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log queues an event without blocking.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.events <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"user_id", event.UserID,
			"thread_id", event.ThreadID,
			"event_type", event.EventType,
		)
	}
}

// Close flushes queued events and stops the writer.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	for event := range l.events {
		if err := l.write(event); err != nil {
			l.logger.Warn("Failed to write conversation log",
				"user_id", event.UserID,
				"thread_id", event.ThreadID,
				"error", err,
			)
		}
	}
}

func (l *FileLogger) write(event Event) error {
	userDir := filepath.Join(l.dir, safeName(event.UserID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(userDir, safeName(event.ThreadID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// safeName maps an identifier onto a single path element.
func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}
