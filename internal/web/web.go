package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
	"github.com/dpin8449/KOMBUCHAS/internal/view"
)

//go:embed templates/*.html
var templatesFS embed.FS

type BatchService interface {
	Create(ctx context.Context, b *domain.Batch) (*domain.Batch, error)
	GetWithOrigin(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error)
	List(ctx context.Context) ([]domain.Batch, error)
	Update(ctx context.Context, id string, patch service.BatchPatch) (*domain.Batch, error)
	Delete(ctx context.Context, id string) error
}

type FinalizeService interface {
	Finalize(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error)
}

// Handler renders the server-side batch pages. Forms post urlencoded bodies
// back to these routes and redirect on success.
type Handler struct {
	batches   BatchService
	finalizer FinalizeService
	templates *template.Template
	now       func() time.Time
}

func NewHandler(batches BatchService, finalizer FinalizeService) (*Handler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if finalizer == nil {
		return nil, fmt.Errorf("finalize service is required")
	}

	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{
		batches:   batches,
		finalizer: finalizer,
		templates: templates,
		now:       time.Now,
	}, nil
}

func RegisterRoutes(router fiber.Router, batches BatchService, finalizer FinalizeService) error {
	h, err := NewHandler(batches, finalizer)
	if err != nil {
		return err
	}

	router.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/batches", fiber.StatusFound)
	})
	router.Get("/batches", h.ListPage)
	router.Get("/batches/new", h.NewPage)
	router.Post("/batches", h.CreateForm)
	router.Get("/batches/:id", h.DetailPage)
	router.Get("/batches/:id/edit", h.EditPage)
	router.Post("/batches/:id", h.UpdateForm)
	router.Post("/batches/:id/delete", h.DeleteForm)
	router.Get("/batches/:id/finalize", h.FinalizePage)
	router.Post("/batches/:id/finalize", h.FinalizeForm)

	return nil
}

type listPageData struct {
	Batches []view.BatchView
}

type detailPageData struct {
	Batch  view.BatchView
	Origin *view.BatchView
}

type formPageData struct {
	Editing bool
	Batch   formValues
	Errors  domain.FieldErrors
}

type formValues struct {
	ID          string
	Type        string
	StartDate   string
	EndDate     string
	Temperature string
	Origin      string
	Comment     string
	Result      string
	Production  string
	FinalStatus string
}

type finalizePageData struct {
	OriginalID     string
	Original       view.BatchView
	DerivedFinalID string
	Today          string
	Errors         domain.FieldErrors
}

func (h *Handler) ListPage(c *fiber.Ctx) error {
	batches, err := h.batches.List(c.Context())
	if err != nil {
		return err
	}

	return h.render(c, "list.html", listPageData{
		Batches: view.ProjectAll(batches, h.now()),
	})
}

func (h *Handler) DetailPage(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, origin, err := h.batches.GetWithOrigin(c.Context(), id)
	if err != nil {
		return err
	}

	data := detailPageData{Batch: view.Project(batch, origin, h.now())}
	if origin != nil {
		originView := view.Project(origin, nil, h.now())
		data.Origin = &originView
	}
	return h.render(c, "detail.html", data)
}

func (h *Handler) NewPage(c *fiber.Ctx) error {
	return h.render(c, "form.html", formPageData{
		Batch: formValues{Type: domain.TypeBase.String()},
	})
}

func (h *Handler) EditPage(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, _, err := h.batches.GetWithOrigin(c.Context(), id)
	if err != nil {
		return err
	}

	return h.render(c, "form.html", formPageData{
		Editing: true,
		Batch:   batchToFormValues(batch),
	})
}

func (h *Handler) CreateForm(c *fiber.Ctx) error {
	values := readFormValues(c)

	batch, err := formToDomainBatch(values)
	if err == nil {
		_, err = h.batches.Create(c.Context(), batch)
	}
	if err != nil {
		if fieldErrs, ok := asFieldErrors(err); ok {
			return h.render(c, "form.html", formPageData{Batch: values, Errors: fieldErrs})
		}
		return err
	}

	return c.Redirect("/batches/"+batch.ID, fiber.StatusSeeOther)
}

func (h *Handler) UpdateForm(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	values := readFormValues(c)
	values.ID = id

	patch, err := formToBatchPatch(values)
	if err == nil {
		_, err = h.batches.Update(c.Context(), id, patch)
	}
	if err != nil {
		if fieldErrs, ok := asFieldErrors(err); ok {
			return h.render(c, "form.html", formPageData{Editing: true, Batch: values, Errors: fieldErrs})
		}
		return err
	}

	return c.Redirect("/batches/"+id, fiber.StatusSeeOther)
}

func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.batches.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.Redirect("/batches", fiber.StatusSeeOther)
}

func (h *Handler) FinalizePage(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	batch, origin, err := h.batches.GetWithOrigin(c.Context(), id)
	if err != nil {
		return err
	}

	return h.render(c, "finalize.html", finalizePageData{
		OriginalID:     id,
		Original:       view.Project(batch, origin, h.now()),
		DerivedFinalID: domain.DeriveFinalID(id),
		Today:          h.now().Format(domain.DateFormat),
	})
}

func (h *Handler) FinalizeForm(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	result, err := h.finalizer.Finalize(c.Context(), service.FinalizeInput{
		OriginalID:          id,
		OriginalResult:      c.FormValue("originalResult"),
		OriginalFinalStatus: c.FormValue("originalFinalStatus"),
		FinalID:             c.FormValue("finalId"),
		FinalStartDate:      c.FormValue("finalStartDate"),
		FinalComment:        c.FormValue("finalComment"),
		Bottle1Comment:      c.FormValue("bottle1Comment"),
		Bottle1Production:   c.FormValue("bottle1Production"),
		Bottle2Comment:      c.FormValue("bottle2Comment"),
		Bottle2Production:   c.FormValue("bottle2Production"),
	})
	if err != nil {
		if fieldErrs, ok := asFieldErrors(err); ok {
			batch, origin, lookupErr := h.batches.GetWithOrigin(c.Context(), id)
			if lookupErr != nil {
				return lookupErr
			}
			return h.render(c, "finalize.html", finalizePageData{
				OriginalID:     id,
				Original:       view.Project(batch, origin, h.now()),
				DerivedFinalID: domain.DeriveFinalID(id),
				Today:          h.now().Format(domain.DateFormat),
				Errors:         fieldErrs,
			})
		}
		return err
	}

	return c.Redirect("/batches/"+result.FinalID, fiber.StatusSeeOther)
}

func (h *Handler) render(c *fiber.Ctx, name string, data any) error {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func readFormValues(c *fiber.Ctx) formValues {
	return formValues{
		ID:          strings.TrimSpace(c.FormValue("id")),
		Type:        c.FormValue("type"),
		StartDate:   c.FormValue("startDate"),
		EndDate:     c.FormValue("endDate"),
		Temperature: c.FormValue("temperature"),
		Origin:      c.FormValue("originBatchId"),
		Comment:     c.FormValue("comment"),
		Result:      c.FormValue("result"),
		Production:  c.FormValue("production"),
		FinalStatus: c.FormValue("finalStatus"),
	}
}

func formToDomainBatch(values formValues) (*domain.Batch, error) {
	batchType, err := domain.ParseBatchTypeFromString(values.Type)
	if err != nil {
		return nil, err
	}

	b := &domain.Batch{ID: values.ID, Type: batchType}

	if b.StartDate, err = parseFormDate(values.StartDate, "startDate"); err != nil {
		return nil, err
	}
	if b.EndDate, err = parseFormDate(values.EndDate, "endDate"); err != nil {
		return nil, err
	}
	if b.Temperature, err = parseFormInt(values.Temperature, "temperature"); err != nil {
		return nil, err
	}

	b.OriginBatchID = optionalString(values.Origin)
	b.Comment = optionalString(values.Comment)
	b.Result = optionalString(values.Result)
	b.Production = optionalString(values.Production)

	if trimmed := strings.TrimSpace(values.FinalStatus); trimmed != "" {
		status, err := domain.ParseFinalStatusFromString(trimmed)
		if err != nil {
			return nil, err
		}
		b.FinalStatus = &status
	}

	return b, nil
}

// formToBatchPatch maps every form field into the patch. A form always
// submits all inputs, so empty means clear rather than untouched.
func formToBatchPatch(values formValues) (service.BatchPatch, error) {
	var patch service.BatchPatch

	if trimmed := strings.TrimSpace(values.Type); trimmed != "" {
		batchType, err := domain.ParseBatchTypeFromString(trimmed)
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.Type = &batchType
	}

	startDate, err := parseFormDate(values.StartDate, "startDate")
	if err != nil {
		return service.BatchPatch{}, err
	}
	patch.SetStartDate = true
	patch.StartDate = startDate

	endDate, err := parseFormDate(values.EndDate, "endDate")
	if err != nil {
		return service.BatchPatch{}, err
	}
	patch.SetEndDate = true
	patch.EndDate = endDate

	if patch.Temperature, err = parseFormInt(values.Temperature, "temperature"); err != nil {
		return service.BatchPatch{}, err
	}

	empty := ""
	assign := func(raw string) *string {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			return &trimmed
		}
		return &empty
	}
	patch.OriginBatchID = assign(values.Origin)
	patch.Comment = assign(values.Comment)
	patch.Result = assign(values.Result)
	patch.Production = assign(values.Production)

	if trimmed := strings.TrimSpace(values.FinalStatus); trimmed != "" {
		status, err := domain.ParseFinalStatusFromString(trimmed)
		if err != nil {
			return service.BatchPatch{}, err
		}
		patch.FinalStatus = &status
	}

	return patch, nil
}

func batchToFormValues(b *domain.Batch) formValues {
	values := formValues{
		ID:   b.ID,
		Type: b.Type.String(),
	}
	if b.StartDate != nil {
		values.StartDate = b.StartDate.Format(domain.DateFormat)
	}
	if b.EndDate != nil {
		values.EndDate = b.EndDate.Format(domain.DateFormat)
	}
	if b.Temperature != nil {
		values.Temperature = fmt.Sprintf("%d", *b.Temperature)
	}
	if b.OriginBatchID != nil {
		values.Origin = *b.OriginBatchID
	}
	if b.Comment != nil {
		values.Comment = *b.Comment
	}
	if b.Result != nil {
		values.Result = *b.Result
	}
	if b.Production != nil {
		values.Production = *b.Production
	}
	if b.FinalStatus != nil {
		values.FinalStatus = b.FinalStatus.String()
	}
	return values
}

func parseFormDate(raw string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(domain.DateFormat, trimmed)
	if err != nil {
		return nil, domain.FieldErrors{field: "must be a valid date"}
	}
	return &t, nil
}

func parseFormInt(raw string, field string) (*int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var value int
	if _, err := fmt.Sscanf(trimmed, "%d", &value); err != nil {
		return nil, domain.FieldErrors{field: "must be a whole number"}
	}
	return &value, nil
}

func optionalString(raw string) *string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return &trimmed
	}
	return nil
}

func asFieldErrors(err error) (domain.FieldErrors, bool) {
	var fieldErrs domain.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	return nil, false
}
