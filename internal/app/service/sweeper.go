package service

import (
	"context"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/repository"
	infraprom "github.com/gatekeylabs/gatekey/internal/infra/prometheus"
	"go.uber.org/zap"
)

// StatusSweeper periodically flips active links whose expiration has passed
// to inactive, so time-based transitions land even when nobody attempts the
// link. It only ever moves status toward inactive and touches no counters,
// which is why it needs no coordination with the grant path: a link a
// concurrent grant just exhausted is already inactive and the sweep's WHERE
// clause skips it.
type StatusSweeper struct {
	logger   *zap.Logger
	links    repository.LinkRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewStatusSweeper creates a sweeper running at the given interval.
func NewStatusSweeper(logger *zap.Logger, links repository.LinkRepository, interval time.Duration) *StatusSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatusSweeper{
		logger:   logger,
		links:    links,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *StatusSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *StatusSweeper) Stop() {
	close(s.stopChan)
}

func (s *StatusSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background(), time.Now().UTC())
		case <-s.stopChan:
			s.logger.Info("status sweeper stopped")
			return
		}
	}
}

// Sweep runs one pass. Idempotent: a second pass over unchanged links
// affects zero rows.
func (s *StatusSweeper) Sweep(ctx context.Context, now time.Time) {
	affected, err := s.links.ExpireDue(ctx, now)
	if err != nil {
		s.logger.Error("failed to expire due links", zap.Error(err))
		return
	}

	if affected > 0 {
		infraprom.SweepTransitions.Add(float64(affected))
		s.logger.Info("links set to inactive (expired)",
			zap.Int64("count", affected),
			zap.Time("as_of", now),
		)
	}
}
