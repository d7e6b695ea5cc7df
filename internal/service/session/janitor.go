package session

import (
	"context"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/log"
)

const defaultSweepInterval = time.Hour

// Janitor trims terminal sessions older than the retention window. The
// pipeline itself never deletes history; this is the only pruning path and
// it is off unless a retention is configured.
type Janitor struct {
	repo      core.SessionRepository
	retention time.Duration
	Interval  time.Duration
}

func NewJanitor(repo core.SessionRepository, retention time.Duration) *Janitor {
	return &Janitor{
		repo:      repo,
		retention: retention,
		Interval:  defaultSweepInterval,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}

	logger := log.FromCtx(ctx)
	logger.Info().Dur("retention", j.retention).Msg("starting session janitor")

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-j.retention)
			n, err := j.repo.DeleteTerminalBefore(ctx, cutoff)
			if err != nil {
				logger.Error().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("trimmed", n).Msg("old sessions removed")
			}
		}
	}
}

func (j *Janitor) Shutdown(ctx context.Context) error {
	return nil
}
