package coach

import (
	"context"
	"fmt"

	"github.com/fretcoach/coach-server/internal/domain"
)

const (
	snapshotRecentLimit = 10
	trendSessionLimit   = 20
	trendDateLayout     = "01/02"
	trendMetricAll      = "all"
)

// loadSnapshot reads a fresh practice snapshot for the user.
func (s *Service) loadSnapshot(ctx context.Context, userID string) (domain.PracticeSnapshot, error) {
	agg, err := s.sessions.Aggregates(ctx, userID, zeroRange)
	if err != nil {
		return domain.PracticeSnapshot{}, fmt.Errorf("%w: aggregates: %v", ErrStoreUnavailable, err)
	}
	recent, err := s.sessions.RecentSessions(ctx, userID, snapshotRecentLimit)
	if err != nil {
		return domain.PracticeSnapshot{}, fmt.Errorf("%w: recent sessions: %v", ErrStoreUnavailable, err)
	}
	scales, err := s.sessions.ScaleBreakdown(ctx, userID)
	if err != nil {
		return domain.PracticeSnapshot{}, fmt.Errorf("%w: scale breakdown: %v", ErrStoreUnavailable, err)
	}
	return domain.NewSnapshot(*agg, recent, scales), nil
}

// trendChart plots the user's last sessions in chronological order.
func (s *Service) trendChart(ctx context.Context, userID string) (*domain.ChartData, error) {
	sessions, err := s.sessions.RecentSessions(ctx, userID, trendSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: trend sessions: %v", ErrStoreUnavailable, err)
	}

	points := make([]domain.TrendPoint, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		sess := sessions[i]
		date := ""
		if !sess.StartTimestamp.IsZero() {
			date = sess.StartTimestamp.Format(trendDateLayout)
		}
		points = append(points, domain.TrendPoint{
			Session:         len(points) + 1,
			Date:            date,
			PitchAccuracy:   domain.Percent(sess.PitchAccuracy),
			ScaleConformity: domain.Percent(sess.ScaleConformity),
			TimingStability: domain.Percent(sess.TimingStability),
			Scale:           sess.ScaleChosen,
		})
	}
	return &domain.ChartData{Type: domain.ChartPerformanceTrend, Data: points, Metric: trendMetricAll}, nil
}

// comparisonChart contrasts the latest session with the snapshot averages.
// It returns nil when the user has no sessions.
func (s *Service) comparisonChart(ctx context.Context, userID string, snap domain.PracticeSnapshot) (*domain.ChartData, error) {
	latest, err := s.sessions.RecentSessions(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: latest session: %v", ErrStoreUnavailable, err)
	}
	if len(latest) == 0 {
		return nil, nil
	}
	l := latest[0]
	return &domain.ChartData{
		Type: domain.ChartComparison,
		Data: domain.Comparison{
			Latest: domain.ScoreSet{
				Pitch:  domain.Percent(l.PitchAccuracy),
				Scale:  domain.Percent(l.ScaleConformity),
				Timing: domain.Percent(l.TimingStability),
			},
			Average: domain.ScoreSet{
				Pitch:  domain.Percent(snap.AvgPitchAccuracy),
				Scale:  domain.Percent(snap.AvgScaleConformity),
				Timing: domain.Percent(snap.AvgTimingStability),
			},
		},
	}, nil
}
