package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/observability"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"go.uber.org/zap"
)

// BatchCache is a read cache for batch lookups, invalidated on every write.
type BatchCache interface {
	GetList(ctx context.Context) ([]domain.Batch, bool, error)
	SetList(ctx context.Context, batches []domain.Batch) error
	GetBatch(ctx context.Context, id string) (*domain.Batch, bool, error)
	SetBatch(ctx context.Context, b *domain.Batch) error
	Invalidate(ctx context.Context, ids ...string) error
}

// BatchPatch is a partial update. Nil pointer fields are left untouched.
// SetStartDate and SetEndDate distinguish clearing a date from leaving it as
// is when the corresponding date pointer is nil.
type BatchPatch struct {
	Type          *domain.BatchType
	SetStartDate  bool
	StartDate     *time.Time
	SetEndDate    bool
	EndDate       *time.Time
	Days          *int
	OriginBatchID *string
	Temperature   *int
	Comment       *string
	Result        *string
	Production    *string
	TotalTime     *int
	FinalStatus   *domain.FinalStatus
}

func (p BatchPatch) fields() map[string]any {
	fields := map[string]any{}
	if p.Type != nil {
		fields["type"] = *p.Type
	}
	if p.SetStartDate {
		fields["start_date"] = p.StartDate
	}
	if p.SetEndDate {
		fields["end_date"] = p.EndDate
	}
	if p.Days != nil {
		fields["days"] = *p.Days
	}
	if p.OriginBatchID != nil {
		fields["origin_batch_id"] = *p.OriginBatchID
	}
	if p.Temperature != nil {
		fields["temperature"] = *p.Temperature
	}
	if p.Comment != nil {
		fields["comment"] = *p.Comment
	}
	if p.Result != nil {
		fields["result"] = *p.Result
	}
	if p.Production != nil {
		fields["production"] = *p.Production
	}
	if p.TotalTime != nil {
		fields["total_time"] = *p.TotalTime
	}
	if p.FinalStatus != nil {
		fields["final_status"] = *p.FinalStatus
	}
	return fields
}

func (p BatchPatch) touchesDates() bool {
	return p.SetStartDate || p.SetEndDate || p.OriginBatchID != nil
}

type BatchService struct {
	batches repository.BatchRepository
	cache   BatchCache
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewBatchService(
	batches repository.BatchRepository,
	cache BatchCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*BatchService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches: batches,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Create inserts a new batch. Days is always derived server side from the
// date range; a BASE batch additionally persists its day count as TotalTime,
// matching how closed BASE batches report total time later.
func (s *BatchService) Create(ctx context.Context, b *domain.Batch) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil {
		return nil, fmt.Errorf("%w: batch is required", domain.ErrValidation)
	}

	b.ID = strings.TrimSpace(b.ID)
	if err := b.Validate(); err != nil {
		return nil, err
	}

	b.Days = domain.DaysBetween(b.StartDate, b.EndDate, s.now())
	if b.Type == domain.TypeBase {
		b.TotalTime = b.Days
	}

	if err := s.batches.Create(ctx, b); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: batch %q already exists", domain.ErrConflict, b.ID)
		}
		return nil, err
	}

	s.metrics.IncBatchCreated(b.Type.String())
	s.invalidate(ctx, b.ID)
	return b, nil
}

func (s *BatchService) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	if s.cache != nil {
		cached, hit, err := s.cache.GetBatch(ctx, id)
		if err != nil {
			s.logger.Warn("batch cache read failed", zap.String("batchId", id), zap.Error(err))
		} else if hit {
			s.metrics.IncCacheHit("batch")
			return cached, nil
		} else {
			s.metrics.IncCacheMiss("batch")
		}
	}

	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBatch(ctx, batch); err != nil {
			s.logger.Warn("batch cache write failed", zap.String("batchId", id), zap.Error(err))
		}
	}
	return batch, nil
}

// GetWithOrigin loads a batch and, when it carries an origin reference, the
// origin batch through a fresh lookup. An unresolvable origin is not an
// error; the caller falls back to the batch's own figures.
func (s *BatchService) GetWithOrigin(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error) {
	batch, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if batch.OriginBatchID == nil || strings.TrimSpace(*batch.OriginBatchID) == "" {
		return batch, nil, nil
	}

	origin, err := s.GetByID(ctx, *batch.OriginBatchID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("origin batch lookup failed",
				zap.String("batchId", batch.ID),
				zap.String("originBatchId", *batch.OriginBatchID),
				zap.Error(err),
			)
		}
		return batch, nil, nil
	}
	return batch, origin, nil
}

func (s *BatchService) List(ctx context.Context) ([]domain.Batch, error) {
	if s.cache != nil {
		cached, hit, err := s.cache.GetList(ctx)
		if err != nil {
			s.logger.Warn("batch list cache read failed", zap.Error(err))
		} else if hit {
			s.metrics.IncCacheHit("list")
			return cached, nil
		} else {
			s.metrics.IncCacheMiss("list")
		}
	}

	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetList(ctx, batches); err != nil {
			s.logger.Warn("batch list cache write failed", zap.Error(err))
		}
	}
	return batches, nil
}

// Update applies a partial update. When the patch touches the date range or
// the origin reference, the persisted day counts are recomputed afterwards:
// stored days/total_time are treated as a cache of the date arithmetic.
func (s *BatchService) Update(ctx context.Context, id string, patch BatchPatch) (*domain.Batch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	fields := patch.fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}

	if err := s.batches.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	updated, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.touchesDates() {
		if refreshed, err := s.refreshDayCounts(ctx, updated); err != nil {
			s.logger.Warn("day count refresh failed", zap.String("batchId", id), zap.Error(err))
		} else if refreshed {
			s.invalidate(ctx, id)
			return s.batches.GetByID(ctx, id)
		}
	}

	return updated, nil
}

func (s *BatchService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	if err := s.batches.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// refreshDayCounts re-derives the persisted days (and, for BASE batches,
// total_time) from the batch's current date range. Reports whether a write
// was issued.
func (s *BatchService) refreshDayCounts(ctx context.Context, b *domain.Batch) (bool, error) {
	days := domain.DaysBetween(b.StartDate, b.EndDate, s.now())

	fields := map[string]any{}
	if !intPtrEqual(days, b.Days) {
		fields["days"] = days
	}
	if b.Type == domain.TypeBase && !intPtrEqual(days, b.TotalTime) {
		fields["total_time"] = days
	}
	if len(fields) == 0 {
		return false, nil
	}

	if err := s.batches.Update(ctx, b.ID, fields); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BatchService) invalidate(ctx context.Context, ids ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		observability.WithContextLogger(s.logger, ctx).Warn("batch cache invalidation failed", zap.Error(err))
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
