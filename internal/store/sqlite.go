package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fretcoach/coach-server/internal/domain"
	"github.com/fretcoach/coach-server/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries    = 3
	writeRetryDelay = 50 * time.Millisecond

	// executedSessionPlaceholder marks plans created from chat rather than
	// from a desktop session.
	executedSessionPlaceholder = "N/A - Generated from Web Practice Coach"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if dbPath == ":memory:" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_timestamp INTEGER NOT NULL,
		end_timestamp INTEGER,
		pitch_accuracy REAL NOT NULL DEFAULT 0,
		scale_conformity REAL NOT NULL DEFAULT 0,
		timing_stability REAL NOT NULL DEFAULT 0,
		scale_chosen TEXT NOT NULL DEFAULT '',
		scale_type TEXT NOT NULL DEFAULT '',
		sensitivity REAL NOT NULL DEFAULT 0.5,
		strictness REAL NOT NULL DEFAULT 0.5,
		total_notes_played INTEGER NOT NULL DEFAULT 0,
		correct_notes_played INTEGER NOT NULL DEFAULT 0,
		bad_notes_played INTEGER NOT NULL DEFAULT 0,
		total_inscale_notes INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		ambient_light_option INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON sessions(user_id, start_timestamp DESC);

	CREATE TABLE IF NOT EXISTS ai_practice_plans (
		practice_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		practice_plan TEXT NOT NULL,
		executed_session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_user ON ai_practice_plans(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func rangeFilter(r DateRange) (string, []any) {
	var (
		clause strings.Builder
		args   []any
	)
	if !r.Start.IsZero() {
		clause.WriteString(" AND start_timestamp >= ?")
		args = append(args, r.Start.Unix())
	}
	if !r.End.IsZero() {
		y, m, d := r.End.Date()
		nextDay := time.Date(y, m, d, 0, 0, 0, 0, r.End.Location()).AddDate(0, 0, 1)
		clause.WriteString(" AND start_timestamp < ?")
		args = append(args, nextDay.Unix())
	}
	return clause.String(), args
}

// Aggregates returns totals and averages over the user's sessions in r.
func (s *SQLiteStore) Aggregates(ctx context.Context, userID string, r DateRange) (*domain.Aggregates, error) {
	filter, filterArgs := rangeFilter(r)
	args := append([]any{userID}, filterArgs...)

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(duration_seconds), 0),
		       COALESCE(AVG(pitch_accuracy), 0),
		       COALESCE(AVG(scale_conformity), 0),
		       COALESCE(AVG(timing_stability), 0),
		       COALESCE(SUM(total_notes_played), 0),
		       COALESCE(SUM(correct_notes_played), 0)
		FROM sessions WHERE user_id = ?` + filter

	var agg domain.Aggregates
	var totalSessions, totalNotes, totalCorrect int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&totalSessions, &agg.TotalPracticeTime,
		&agg.AvgPitchAccuracy, &agg.AvgScaleConformity, &agg.AvgTimingStability,
		&totalNotes, &totalCorrect,
	)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	agg.TotalSessions = int(totalSessions)
	agg.TotalNotes = int(totalNotes)
	agg.TotalCorrect = int(totalCorrect)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT scale_chosen FROM sessions WHERE user_id = ? AND scale_chosen != ''`+filter+` ORDER BY scale_chosen`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query practiced scales: %w", err)
	}
	defer closeRows(rows, "practiced scales")

	agg.ScalesPracticed = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan practiced scale: %w", err)
		}
		agg.ScalesPracticed = append(agg.ScalesPracticed, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate practiced scales: %w", err)
	}

	return &agg, nil
}

const sessionColumns = `session_id, user_id, start_timestamp, end_timestamp,
	pitch_accuracy, scale_conformity, timing_stability,
	scale_chosen, scale_type, sensitivity, strictness,
	total_notes_played, correct_notes_played, bad_notes_played,
	total_inscale_notes, duration_seconds, ambient_light_option`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.PracticeSession, error) {
	var sess domain.PracticeSession
	var start int64
	var end sql.NullInt64

	if err := row.Scan(
		&sess.SessionID, &sess.UserID, &start, &end,
		&sess.PitchAccuracy, &sess.ScaleConformity, &sess.TimingStability,
		&sess.ScaleChosen, &sess.ScaleType, &sess.Sensitivity, &sess.Strictness,
		&sess.TotalNotesPlayed, &sess.CorrectNotesPlayed, &sess.BadNotesPlayed,
		&sess.TotalInscaleNotes, &sess.DurationSeconds, &sess.AmbientLightOption,
	); err != nil {
		return nil, err
	}

	sess.StartTimestamp = time.Unix(start, 0).UTC()
	if end.Valid {
		ts := time.Unix(end.Int64, 0).UTC()
		sess.EndTimestamp = &ts
	}
	return &sess, nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *SQLiteStore) RecentSessions(ctx context.Context, userID string, limit int) ([]domain.PracticeSession, error) {
	return s.ListSessions(ctx, userID, DateRange{}, limit)
}

// ListSessions returns up to limit sessions in r, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string, r DateRange, limit int) ([]domain.PracticeSession, error) {
	filter, filterArgs := rangeFilter(r)
	args := append([]any{userID}, filterArgs...)
	args = append(args, limit)

	query := `SELECT ` + sessionColumns + `
		FROM sessions WHERE user_id = ?` + filter + `
		ORDER BY start_timestamp DESC, session_id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	sessions := []domain.PracticeSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns a single session or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.PracticeSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// ScaleBreakdown returns per-scale averages ordered by session count.
func (s *SQLiteStore) ScaleBreakdown(ctx context.Context, userID string) ([]domain.ScaleStat, error) {
	query := `
		SELECT scale_chosen, scale_type, COUNT(*) AS count,
		       AVG(pitch_accuracy), AVG(scale_conformity), AVG(timing_stability)
		FROM sessions WHERE user_id = ?
		GROUP BY scale_chosen, scale_type
		ORDER BY count DESC, scale_chosen ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query scale breakdown: %w", err)
	}
	defer closeRows(rows, "scale breakdown")

	stats := []domain.ScaleStat{}
	for rows.Next() {
		var st domain.ScaleStat
		var count int64
		if err := rows.Scan(&st.ScaleName, &st.ScaleType, &count, &st.AvgPitch, &st.AvgScale, &st.AvgTiming); err != nil {
			return nil, fmt.Errorf("scan scale breakdown row: %w", err)
		}
		st.Count = int(count)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scale breakdown: %w", err)
	}
	return stats, nil
}

// InsertSession records a finished practice session.
func (s *SQLiteStore) InsertSession(ctx context.Context, sess *domain.PracticeSession) error {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var end any
	if sess.EndTimestamp != nil {
		end = sess.EndTimestamp.Unix()
	}

	return shared.RetryOnConflict(ctx, writeRetries, writeRetryDelay, "insert_session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.SessionID, sess.UserID, sess.StartTimestamp.Unix(), end,
			sess.PitchAccuracy, sess.ScaleConformity, sess.TimingStability,
			sess.ScaleChosen, sess.ScaleType, sess.Sensitivity, sess.Strictness,
			sess.TotalNotesPlayed, sess.CorrectNotesPlayed, sess.BadNotesPlayed,
			sess.TotalInscaleNotes, sess.DurationSeconds, sess.AmbientLightOption,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// SavePlan stores a confirmed plan. A repeated call with the same plan ID
// leaves the first row in place.
func (s *SQLiteStore) SavePlan(ctx context.Context, planID, userID string, plan domain.StoredPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	query := `
		INSERT INTO ai_practice_plans (practice_id, user_id, practice_plan, executed_session_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(practice_id) DO NOTHING`

	return shared.RetryOnConflict(ctx, writeRetries, writeRetryDelay, "save_plan", func() error {
		result, err := s.db.ExecContext(ctx, query, planID, userID, string(payload), executedSessionPlaceholder, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("insert practice plan: %w", err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			slog.Info("Practice plan already saved", "plan_id", planID, "user_id", userID)
		}
		return nil
	})
}

// GetPlan returns a saved plan or ErrNotFound.
func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*SavedPlan, error) {
	query := `
		SELECT practice_id, user_id, practice_plan, executed_session_id, created_at
		FROM ai_practice_plans WHERE practice_id = ?`

	var saved SavedPlan
	var payload string
	var executed sql.NullString
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, planID).Scan(&saved.PlanID, &saved.UserID, &payload, &executed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan practice plan: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &saved.Plan); err != nil {
		return nil, fmt.Errorf("decode practice plan: %w", err)
	}
	saved.ExecutedSessionID = executed.String
	saved.CreatedAt = time.Unix(createdAt, 0)
	return &saved, nil
}

// CountPlans returns the number of saved plans for a user.
func (s *SQLiteStore) CountPlans(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_practice_plans WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count practice plans: %w", err)
	}
	return n, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
