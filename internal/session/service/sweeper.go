package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/platform/metrics"
)

// InactiveDeleter removes sessions that ended before a cutoff.
type InactiveDeleter interface {
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes sessions that expired or were revoked more than retention ago.
type Sweeper struct {
	sessions  InactiveDeleter
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewSweeper returns a Sweeper. A negative retention is treated as zero.
func NewSweeper(sessions InactiveDeleter, retention time.Duration, log zerolog.Logger) *Sweeper {
	if retention < 0 {
		retention = 0
	}
	return &Sweeper{
		sessions:  sessions,
		retention: retention,
		log:       log.With().Str("component", "session_sweeper").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep removes inactive sessions and returns how many were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteInactive(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	metrics.SweepRemoved.WithLabelValues("sessions").Add(float64(n))
	if n > 0 {
		s.log.Info().Int64("removed", n).Msg("inactive sessions swept")
	}
	return n, nil
}
