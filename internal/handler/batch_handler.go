package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
)

type BatchService interface {
	Create(ctx context.Context, b *domain.Batch) (*domain.Batch, error)
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	GetWithOrigin(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error)
	List(ctx context.Context) ([]domain.Batch, error)
	Update(ctx context.Context, id string, patch service.BatchPatch) (*domain.Batch, error)
	Delete(ctx context.Context, id string) error
}

type FinalizeService interface {
	Finalize(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error)
}

type BatchHandler struct {
	batches   BatchService
	finalizer FinalizeService
}

func NewBatchHandler(batches BatchService, finalizer FinalizeService) (*BatchHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if finalizer == nil {
		return nil, fmt.Errorf("finalize service is required")
	}
	return &BatchHandler{batches: batches, finalizer: finalizer}, nil
}

func RegisterBatchRoutes(router fiber.Router, batches BatchService, finalizer FinalizeService) error {
	h, err := NewBatchHandler(batches, finalizer)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/batches", h.ListBatches)
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:id", h.GetBatch)
	v1.Put("/batches/:id", h.UpdateBatch)
	v1.Delete("/batches/:id", h.DeleteBatch)
	v1.Post("/batches/:id/finalize", h.FinalizeBatch)

	return nil
}

type createBatchRequest struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	StartDate     *string `json:"startDate"`
	EndDate       *string `json:"endDate"`
	Temperature   *int    `json:"temperature"`
	OriginBatchID *string `json:"originBatchId"`
	Comment       *string `json:"comment"`
	Result        *string `json:"result"`
	Production    *string `json:"production"`
	TotalTime     *int    `json:"totalTime"`
	FinalStatus   *string `json:"finalStatus"`
}

// updateBatchRequest distinguishes absent fields from explicit clears. A
// date sent as an empty string clears the column; an absent date leaves it
// untouched.
type updateBatchRequest struct {
	Type          *string `json:"type"`
	StartDate     *string `json:"startDate"`
	EndDate       *string `json:"endDate"`
	Temperature   *int    `json:"temperature"`
	OriginBatchID *string `json:"originBatchId"`
	Comment       *string `json:"comment"`
	Result        *string `json:"result"`
	Production    *string `json:"production"`
	TotalTime     *int    `json:"totalTime"`
	FinalStatus   *string `json:"finalStatus"`
}

type finalizeBatchRequest struct {
	OriginalResult      string `json:"originalResult"`
	OriginalFinalStatus string `json:"originalFinalStatus"`

	FinalID        string `json:"finalId"`
	FinalStartDate string `json:"finalStartDate"`
	FinalComment   string `json:"finalComment"`

	Bottle1Comment    string `json:"bottle1Comment"`
	Bottle1Production string `json:"bottle1Production"`

	Bottle2Comment    string `json:"bottle2Comment"`
	Bottle2Production string `json:"bottle2Production"`
}

type batchResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	StartDate     *string `json:"startDate"`
	EndDate       *string `json:"endDate"`
	Days          *int    `json:"days"`
	Temperature   *int    `json:"temperature"`
	OriginBatchID *string `json:"originBatchId,omitempty"`
	Comment       *string `json:"comment,omitempty"`
	Result        *string `json:"result,omitempty"`
	Production    *string `json:"production,omitempty"`
	TotalTime     *int    `json:"totalTime,omitempty"`
	FinalStatus   *string `json:"finalStatus,omitempty"`
	Open          bool    `json:"open"`
}

type getBatchResponse struct {
	batchResponse
	OriginBatch *batchResponse `json:"originBatch,omitempty"`
}

type finalizeBatchResponse struct {
	OriginalID string `json:"originalId"`
	FinalID    string `json:"finalId"`
	Bottle1ID  string `json:"bottle1Id"`
	Bottle2ID  string `json:"bottle2Id,omitempty"`
}

func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	batches, err := h.batches.List(c.Context())
	if err != nil {
		return err
	}

	responses := make([]batchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, toBatchResponse(&batches[i]))
	}
	return c.Status(fiber.StatusOK).JSON(responses)
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, origin, err := h.batches.GetWithOrigin(c.Context(), id)
	if err != nil {
		return err
	}

	resp := getBatchResponse{batchResponse: toBatchResponse(batch)}
	if origin != nil {
		originResp := toBatchResponse(origin)
		resp.OriginBatch = &originResp
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := requestToDomainBatch(req)
	if err != nil {
		return err
	}

	created, err := h.batches.Create(c.Context(), batch)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(created))
}

func (h *BatchHandler) UpdateBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req updateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	patch, err := requestToBatchPatch(req)
	if err != nil {
		return err
	}

	updated, err := h.batches.Update(c.Context(), id, patch)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(updated))
}

func (h *BatchHandler) DeleteBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.batches.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *BatchHandler) FinalizeBatch(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req finalizeBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.finalizer.Finalize(c.Context(), service.FinalizeInput{
		OriginalID:          id,
		OriginalResult:      req.OriginalResult,
		OriginalFinalStatus: req.OriginalFinalStatus,
		FinalID:             req.FinalID,
		FinalStartDate:      req.FinalStartDate,
		FinalComment:        req.FinalComment,
		Bottle1Comment:      req.Bottle1Comment,
		Bottle1Production:   req.Bottle1Production,
		Bottle2Comment:      req.Bottle2Comment,
		Bottle2Production:   req.Bottle2Production,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(finalizeBatchResponse{
		OriginalID: result.OriginalID,
		FinalID:    result.FinalID,
		Bottle1ID:  result.Bottle1ID,
		Bottle2ID:  result.Bottle2ID,
	})
}

func requestToDomainBatch(req createBatchRequest) (*domain.Batch, error) {
	batchType, err := domain.ParseBatchTypeFromString(req.Type)
	if err != nil {
		return nil, err
	}

	startDate, err := parseDateField(req.StartDate, "startDate")
	if err != nil {
		return nil, err
	}
	endDate, err := parseDateField(req.EndDate, "endDate")
	if err != nil {
		return nil, err
	}

	b := &domain.Batch{
		ID:            strings.TrimSpace(req.ID),
		Type:          batchType,
		StartDate:     startDate,
		EndDate:       endDate,
		Temperature:   req.Temperature,
		OriginBatchID: req.OriginBatchID,
		Comment:       req.Comment,
		Result:        req.Result,
		Production:    req.Production,
		TotalTime:     req.TotalTime,
	}

	if req.FinalStatus != nil && strings.TrimSpace(*req.FinalStatus) != "" {
		status, err := domain.ParseFinalStatusFromString(*req.FinalStatus)
		if err != nil {
			return nil, err
		}
		b.FinalStatus = &status
	}

	return b, nil
}

func requestToBatchPatch(req updateBatchRequest) (service.BatchPatch, error) {
	var patch service.BatchPatch

	if req.Type != nil {
		batchType, err := domain.ParseBatchTypeFromString(*req.Type)
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.Type = &batchType
	}

	if req.StartDate != nil {
		date, err := parseDateField(req.StartDate, "startDate")
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.SetStartDate = true
		patch.StartDate = date
	}
	if req.EndDate != nil {
		date, err := parseDateField(req.EndDate, "endDate")
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.SetEndDate = true
		patch.EndDate = date
	}

	patch.Temperature = req.Temperature
	patch.OriginBatchID = req.OriginBatchID
	patch.Comment = req.Comment
	patch.Result = req.Result
	patch.Production = req.Production
	patch.TotalTime = req.TotalTime

	if req.FinalStatus != nil {
		status, err := domain.ParseFinalStatusFromString(*req.FinalStatus)
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.FinalStatus = &status
	}

	return patch, nil
}

// parseDateField treats nil and empty as "no date".
func parseDateField(value *string, field string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(domain.DateFormat, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be formatted as %s", domain.ErrValidation, field, domain.DateFormat)
	}
	return &t, nil
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	resp := batchResponse{
		ID:            b.ID,
		Type:          b.Type.String(),
		StartDate:     formatDate(b.StartDate),
		EndDate:       formatDate(b.EndDate),
		Days:          b.Days,
		Temperature:   b.Temperature,
		OriginBatchID: b.OriginBatchID,
		Comment:       b.Comment,
		Result:        b.Result,
		Production:    b.Production,
		TotalTime:     b.TotalTime,
		Open:          !b.Closed(),
	}
	if b.FinalStatus != nil {
		status := b.FinalStatus.String()
		resp.FinalStatus = &status
	}
	return resp
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(domain.DateFormat)
	return &formatted
}
