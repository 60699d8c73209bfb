package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"go.uber.org/zap"
)

const defaultRefreshInterval = time.Hour

// DayRefresher periodically re-derives the persisted day counts of open
// batches. An open batch's "days so far" moves with the calendar, so the
// stored value goes stale without any write to the record itself.
type DayRefresher struct {
	batches  repository.BatchRepository
	cache    BatchCache
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewDayRefresher(
	batches repository.BatchRepository,
	cache BatchCache,
	interval time.Duration,
	logger *zap.Logger,
) (*DayRefresher, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DayRefresher{
		batches:  batches,
		cache:    cache,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (s *DayRefresher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial pass so stale counts do not wait for the first ticker edge.
	if err := s.refreshOpen(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("day refresh initial pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.refreshOpen(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("day refresh pass failed", zap.Error(err))
			}
		}
	}
}

func (s *DayRefresher) refreshOpen(ctx context.Context) error {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list batches for day refresh: %w", err)
	}

	refreshed := 0
	for i := range batches {
		b := &batches[i]
		if b.Closed() || b.StartDate == nil {
			continue
		}

		days := domain.DaysBetween(b.StartDate, nil, s.now())

		fields := map[string]any{}
		if !intPtrEqual(days, b.Days) {
			fields["days"] = days
		}
		if b.Type == domain.TypeBase && !intPtrEqual(days, b.TotalTime) {
			fields["total_time"] = days
		}
		if len(fields) == 0 {
			continue
		}

		if err := s.batches.Update(ctx, b.ID, fields); err != nil {
			s.logger.Error("failed to refresh day count",
				zap.String("batchId", b.ID),
				zap.Error(err),
			)
			continue
		}
		refreshed++

		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, b.ID); err != nil {
				s.logger.Warn("batch cache invalidation failed",
					zap.String("batchId", b.ID),
					zap.Error(err),
				)
			}
		}
	}

	if refreshed > 0 {
		s.logger.Info("refreshed day counts", zap.Int("batches", refreshed))
	}
	return nil
}
