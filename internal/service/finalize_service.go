package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/observability"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"go.uber.org/zap"
)

// Finalization step names, in commit order.
const (
	StepUpdateOriginal = "update_original"
	StepCreateFinal    = "create_final_batch"
	StepCreateBottle1  = "create_bottle_1"
	StepCreateBottle2  = "create_bottle_2"
)

// FinalizeInput carries the three form sections of the finalization
// workflow. FinalID may be left empty to accept the derived successor id.
type FinalizeInput struct {
	OriginalID          string
	OriginalResult      string
	OriginalFinalStatus string

	FinalID        string
	FinalStartDate string
	FinalComment   string

	Bottle1Comment    string
	Bottle1Production string

	Bottle2Comment    string
	Bottle2Production string
}

// FinalizeResult reports the identifiers written on success.
type FinalizeResult struct {
	OriginalID string
	FinalID    string
	Bottle1ID  string
	Bottle2ID  string // empty when no second bottle was recorded
}

// PartialSequenceError reports a finalization write failure whose completed
// predecessor writes could not all be rolled back. The caller must reconcile
// the listed steps manually.
type PartialSequenceError struct {
	Step      string   // step whose write failed
	Committed []string // steps whose writes remain committed
	Err       error
}

func (e *PartialSequenceError) Error() string {
	return fmt.Sprintf("finalization failed at %s with steps %s still committed: %v",
		e.Step, strings.Join(e.Committed, ", "), e.Err)
}

func (e *PartialSequenceError) Unwrap() error { return e.Err }

// FinalizeService closes a BASE batch and creates its successor BASE batch
// plus one or two FINAL bottle records, as four strictly sequential writes.
// Each completed write registers an undo action; when a later write fails,
// the undos run in reverse so the original batch is not left closed without
// its successor records.
type FinalizeService struct {
	batches repository.BatchRepository
	cache   BatchCache
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewFinalizeService(
	batches repository.BatchRepository,
	cache BatchCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*FinalizeService, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FinalizeService{
		batches: batches,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

type finalizePlan struct {
	original    *domain.Batch
	finalID     string
	startDate   time.Time
	result      string
	finalStatus domain.FinalStatus

	finalComment string

	bottle1Comment    string
	bottle1Production string

	hasBottle2        bool
	bottle2Comment    *string
	bottle2Production *string
}

func (s *FinalizeService) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	plan, err := s.validate(input)
	if err != nil {
		s.metrics.IncFinalization("rejected")
		return nil, err
	}

	plan.original, err = s.batches.GetByID(ctx, strings.TrimSpace(input.OriginalID))
	if err != nil {
		return nil, err
	}

	result, err := s.commit(ctx, plan)
	if err != nil {
		s.metrics.IncFinalization("failed")
		return nil, err
	}

	s.metrics.IncFinalization("completed")
	s.invalidate(ctx, result.OriginalID, result.FinalID, result.Bottle1ID, result.Bottle2ID)
	return result, nil
}

// validate checks all three sections before any write is issued and resolves
// derived values. The returned field keys match the finalization form.
func (s *FinalizeService) validate(input FinalizeInput) (*finalizePlan, error) {
	errs := domain.FieldErrors{}
	plan := &finalizePlan{}

	originalID := strings.TrimSpace(input.OriginalID)
	if originalID == "" {
		errs["originalId"] = "original batch id is required"
	}

	// Section 1: original batch closing information.
	plan.result = strings.TrimSpace(input.OriginalResult)
	if plan.result == "" {
		errs["originalResult"] = "result is required"
	}
	if status, err := domain.ParseFinalStatusFromString(input.OriginalFinalStatus); err != nil {
		errs["originalFinalStatus"] = "final status must be one of OK, KO, LOOK"
	} else {
		plan.finalStatus = status
	}

	// Section 2: successor BASE batch.
	plan.finalID = strings.TrimSpace(input.FinalID)
	if plan.finalID == "" && originalID != "" {
		plan.finalID = domain.DeriveFinalID(originalID)
	}
	if plan.finalID == "" {
		errs["finalId"] = "final batch id is required"
	}
	if start, err := time.Parse(domain.DateFormat, strings.TrimSpace(input.FinalStartDate)); err != nil {
		errs["finalStartDate"] = "start date is required"
	} else {
		plan.startDate = start
	}
	plan.finalComment = strings.TrimSpace(input.FinalComment)
	if plan.finalComment == "" {
		errs["finalComment"] = "comment is required"
	}

	// Section 3: bottle 1 (required).
	plan.bottle1Comment = strings.TrimSpace(input.Bottle1Comment)
	if plan.bottle1Comment == "" {
		errs["bottle1Comment"] = "comment is required"
	}
	if raw := strings.TrimSpace(input.Bottle1Production); raw == "" {
		errs["bottle1Production"] = "production is required"
	} else if value, err := strconv.ParseFloat(raw, 64); err != nil || value <= 0 {
		errs["bottle1Production"] = "production must be a positive number"
	} else {
		plan.bottle1Production = strconv.FormatFloat(value, 'f', -1, 64)
	}

	// Section 4: bottle 2 (optional as a whole).
	bottle2Comment := strings.TrimSpace(input.Bottle2Comment)
	if raw := strings.TrimSpace(input.Bottle2Production); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err != nil || value < 0 {
			errs["bottle2Production"] = "production must be a number >= 0 or empty"
		} else {
			formatted := strconv.FormatFloat(value, 'f', -1, 64)
			plan.bottle2Production = &formatted
		}
	}
	if bottle2Comment != "" {
		plan.bottle2Comment = &bottle2Comment
	}
	plan.hasBottle2 = plan.bottle2Comment != nil || plan.bottle2Production != nil

	if len(errs) > 0 {
		return nil, errs
	}
	return plan, nil
}

// commit runs the four-write sequence. Writes are strictly ordered and each
// is awaited before the next; on failure the undos of completed steps run in
// reverse order.
func (s *FinalizeService) commit(ctx context.Context, plan *finalizePlan) (*FinalizeResult, error) {
	originalID := plan.original.ID

	type undo struct {
		step string
		fn   func(context.Context) error
	}
	var undos []undo

	log := observability.WithContextLogger(s.logger, ctx)

	rollback := func(step string, cause error) error {
		committed := make([]string, 0, len(undos))
		for i := len(undos) - 1; i >= 0; i-- {
			if err := undos[i].fn(ctx); err != nil {
				log.Error("finalization rollback failed",
					zap.String("step", undos[i].step),
					zap.Error(err),
				)
				committed = append(committed, undos[i].step)
			}
		}
		if len(committed) > 0 {
			return &PartialSequenceError{Step: step, Committed: committed, Err: cause}
		}
		return fmt.Errorf("finalization failed at %s: %w", step, cause)
	}

	// Step 1: close the original batch.
	prev := map[string]any{
		"end_date":     plan.original.EndDate,
		"result":       plan.original.Result,
		"final_status": plan.original.FinalStatus,
	}
	err := s.batches.Update(ctx, originalID, map[string]any{
		"end_date":     plan.startDate,
		"result":       plan.result,
		"final_status": plan.finalStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("finalization failed at %s: %w", StepUpdateOriginal, err)
	}
	undos = append(undos, undo{StepUpdateOriginal, func(ctx context.Context) error {
		return s.batches.Update(ctx, originalID, prev)
	}})

	// Step 2: create the successor BASE batch.
	successor := s.newBatch(plan.finalID, domain.TypeBase, plan.startDate, originalID, &plan.finalComment)
	successor.Temperature = intValue(0)
	successor.Production = strValue("")
	if err := s.batches.Create(ctx, successor); err != nil {
		return nil, rollback(StepCreateFinal, err)
	}
	undos = append(undos, undo{StepCreateFinal, func(ctx context.Context) error {
		return s.batches.Delete(ctx, successor.ID)
	}})

	// Step 3: create bottle 1.
	bottle1 := s.newBatch(originalID+"01", domain.TypeFinal, plan.startDate, originalID, &plan.bottle1Comment)
	bottle1.Production = &plan.bottle1Production
	if err := s.batches.Create(ctx, bottle1); err != nil {
		return nil, rollback(StepCreateBottle1, err)
	}
	undos = append(undos, undo{StepCreateBottle1, func(ctx context.Context) error {
		return s.batches.Delete(ctx, bottle1.ID)
	}})

	result := &FinalizeResult{
		OriginalID: originalID,
		FinalID:    successor.ID,
		Bottle1ID:  bottle1.ID,
	}

	// Step 4: create bottle 2 when any of its section was filled in.
	if plan.hasBottle2 {
		bottle2 := s.newBatch(originalID+"02", domain.TypeFinal, plan.startDate, originalID, plan.bottle2Comment)
		bottle2.Production = plan.bottle2Production
		if err := s.batches.Create(ctx, bottle2); err != nil {
			return nil, rollback(StepCreateBottle2, err)
		}
		result.Bottle2ID = bottle2.ID
	}

	return result, nil
}

func (s *FinalizeService) newBatch(id string, t domain.BatchType, start time.Time, originID string, comment *string) *domain.Batch {
	b := &domain.Batch{
		ID:            id,
		Type:          t,
		StartDate:     &start,
		OriginBatchID: &originID,
		Comment:       comment,
	}
	b.Days = domain.DaysBetween(b.StartDate, nil, s.now())
	if t == domain.TypeBase {
		b.TotalTime = b.Days
	}
	return b
}

func (s *FinalizeService) invalidate(ctx context.Context, ids ...string) {
	if s.cache == nil {
		return
	}
	present := ids[:0]
	for _, id := range ids {
		if id != "" {
			present = append(present, id)
		}
	}
	if err := s.cache.Invalidate(ctx, present...); err != nil {
		s.logger.Warn("batch cache invalidation failed", zap.Error(err))
	}
}

func intValue(v int) *int { return &v }

func strValue(v string) *string { return &v }
