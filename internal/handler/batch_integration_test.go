package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
	"github.com/dpin8449/KOMBUCHAS/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestBatchIntegration_CreateBatch(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		createFn: func(ctx context.Context, b *domain.Batch) (*domain.Batch, error) {
			if err := b.Validate(); err != nil {
				return nil, err
			}
			days := 9
			b.Days = &days
			if b.Type == domain.TypeBase {
				b.TotalTime = &days
			}
			return b, nil
		},
	}

	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	validBody := `{"id":"11B2","type":"BASE","startDate":"2024-01-01","endDate":"2024-01-10","temperature":21}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches", validBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "11B2" {
		t.Fatalf("id = %v, want 11B2", created["id"])
	}
	if created["startDate"] != "2024-01-01" {
		t.Fatalf("startDate = %v, want 2024-01-01", created["startDate"])
	}
	if created["days"] != float64(9) {
		t.Fatalf("days = %v, want 9", created["days"])
	}
	if created["totalTime"] != float64(9) {
		t.Fatalf("totalTime = %v, want 9", created["totalTime"])
	}
	if created["open"] != false {
		t.Fatalf("open = %v, want false for a closed range", created["open"])
	}

	invalidTypeBody := `{"id":"11B2","type":"BOTTLE"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches", invalidTypeBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown type", resp.StatusCode)
	}

	badDateBody := `{"id":"11B2","type":"BASE","startDate":"01/05/2024"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches", badDateBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed date", resp.StatusCode)
	}
}

func TestBatchIntegration_CreateValidationCarriesFieldDetail(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		createFn: func(ctx context.Context, b *domain.Batch) (*domain.Batch, error) {
			return nil, b.Validate()
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches", `{"id":"","type":"BASE"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if _, ok := parsed.Fields["id"]; !ok {
		t.Fatalf("fields = %v, want detail for id", parsed.Fields)
	}
}

func TestBatchIntegration_CreateConflict(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		createFn: func(ctx context.Context, b *domain.Batch) (*domain.Batch, error) {
			return nil, domain.ErrConflict
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches", `{"id":"11B2","type":"BASE"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestBatchIntegration_ListBatches(t *testing.T) {
	t.Parallel()

	open := domain.Batch{ID: "12B2", Type: domain.TypeBase}
	closed := domain.Batch{ID: "11B2", Type: domain.TypeBase}
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	closed.EndDate = &end

	svc := &stubBatchService{
		listFn: func(ctx context.Context) ([]domain.Batch, error) {
			return []domain.Batch{open, closed}, nil
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/batches", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed []map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("len = %d, want 2", len(parsed))
	}
	if parsed[0]["id"] != "12B2" || parsed[0]["open"] != true {
		t.Fatalf("first item = %v, want open 12B2", parsed[0])
	}
	if parsed[1]["endDate"] != "2024-01-10" {
		t.Fatalf("second item endDate = %v, want 2024-01-10", parsed[1]["endDate"])
	}
}

func TestBatchIntegration_GetBatchWithOrigin(t *testing.T) {
	t.Parallel()

	originID := "11B2"
	svc := &stubBatchService{
		getWithOriginFn: func(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error) {
			if id != "11B201" {
				return nil, nil, domain.ErrNotFound
			}
			bottle := &domain.Batch{ID: "11B201", Type: domain.TypeFinal, OriginBatchID: &originID}
			origin := &domain.Batch{ID: originID, Type: domain.TypeBase}
			return bottle, origin, nil
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/batches/11B201", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["id"] != "11B201" {
		t.Fatalf("id = %v, want 11B201", parsed["id"])
	}
	originBatch, ok := parsed["originBatch"].(map[string]any)
	if !ok {
		t.Fatalf("originBatch missing in %v", parsed)
	}
	if originBatch["id"] != "11B2" {
		t.Fatalf("origin id = %v, want 11B2", originBatch["id"])
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/batches/unknown", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown id", resp.StatusCode)
	}
}

func TestBatchIntegration_UpdateBatchDateSemantics(t *testing.T) {
	t.Parallel()

	var captured service.BatchPatch
	svc := &stubBatchService{
		updateFn: func(ctx context.Context, id string, patch service.BatchPatch) (*domain.Batch, error) {
			captured = patch
			return &domain.Batch{ID: id, Type: domain.TypeBase}, nil
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	// An empty endDate clears the column and reopens the batch.
	resp, body := performRequest(t, app, http.MethodPut, "/v1/batches/11B2", `{"endDate":"","comment":"reopened"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if !captured.SetEndDate || captured.EndDate != nil {
		t.Fatalf("patch = %+v, want explicit end date clear", captured)
	}
	if captured.SetStartDate {
		t.Fatal("absent startDate must not be touched")
	}
	if captured.Comment == nil || *captured.Comment != "reopened" {
		t.Fatalf("comment = %v, want reopened", captured.Comment)
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/v1/batches/11B2", `{"endDate":"2024-01-10"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !captured.SetEndDate || captured.EndDate == nil || !captured.EndDate.Equal(want) {
		t.Fatalf("patch = %+v, want end date set to 2024-01-10", captured)
	}
}

func TestBatchIntegration_DeleteBatch(t *testing.T) {
	t.Parallel()

	deletes := 0
	svc := &stubBatchService{
		deleteFn: func(ctx context.Context, id string) error {
			deletes++
			return nil
		},
	}
	app := newBatchTestApp(t, svc, &stubFinalizeService{})

	for i := 0; i < 2; i++ {
		resp, _ := performRequest(t, app, http.MethodDelete, "/v1/batches/11B2", "")
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("status = %d, want 204 on attempt %d", resp.StatusCode, i+1)
		}
	}
	if deletes != 2 {
		t.Fatalf("deletes = %d, want 2", deletes)
	}
}

func TestBatchIntegration_FinalizeBatch(t *testing.T) {
	t.Parallel()

	finalizer := &stubFinalizeService{
		finalizeFn: func(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error) {
			if input.OriginalID != "11B2" {
				t.Fatalf("original id = %q, want path id 11B2", input.OriginalID)
			}
			if input.Bottle1Production != "12.5" {
				t.Fatalf("bottle 1 production = %q, want 12.5", input.Bottle1Production)
			}
			return &service.FinalizeResult{
				OriginalID: "11B2",
				FinalID:    "12B2",
				Bottle1ID:  "11B201",
			}, nil
		},
	}
	app := newBatchTestApp(t, &stubBatchService{}, finalizer)

	reqBody := `{
		"originalResult":"good fermentation",
		"originalFinalStatus":"OK",
		"finalStartDate":"2024-01-10",
		"finalComment":"second generation",
		"bottle1Comment":"plain",
		"bottle1Production":"12.5"
	}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches/11B2/finalize", reqBody)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["finalId"] != "12B2" || parsed["bottle1Id"] != "11B201" {
		t.Fatalf("response = %v, want finalId 12B2 and bottle1Id 11B201", parsed)
	}
	if _, exists := parsed["bottle2Id"]; exists {
		t.Fatal("bottle2Id should be omitted when no second bottle was created")
	}
}

func TestBatchIntegration_FinalizeValidationFailure(t *testing.T) {
	t.Parallel()

	finalizer := &stubFinalizeService{
		finalizeFn: func(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error) {
			return nil, domain.FieldErrors{"originalResult": "result is required"}
		},
	}
	app := newBatchTestApp(t, &stubBatchService{}, finalizer)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches/11B2/finalize", `{}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Fields["originalResult"] == "" {
		t.Fatalf("fields = %v, want originalResult detail", parsed.Fields)
	}
}

func TestBatchIntegration_FinalizePartialFailure(t *testing.T) {
	t.Parallel()

	finalizer := &stubFinalizeService{
		finalizeFn: func(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error) {
			return nil, &service.PartialSequenceError{
				Step:      service.StepCreateBottle1,
				Committed: []string{service.StepCreateFinal},
				Err:       errors.New("insert rejected"),
			}
		},
	}
	app := newBatchTestApp(t, &stubBatchService{}, finalizer)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/batches/11B2/finalize", `{}`)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		FailedStep     string   `json:"failedStep"`
		CommittedSteps []string `json:"committedSteps"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.FailedStep != service.StepCreateBottle1 {
		t.Fatalf("failedStep = %q, want %s", parsed.FailedStep, service.StepCreateBottle1)
	}
	if len(parsed.CommittedSteps) != 1 || parsed.CommittedSteps[0] != service.StepCreateFinal {
		t.Fatalf("committedSteps = %v, want [%s]", parsed.CommittedSteps, service.StepCreateFinal)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez ok", func(t *testing.T) {
		t.Parallel()

		app := fiber.New()
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(nil))

		resp, _ := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz ok", func(t *testing.T) {
		t.Parallel()

		app := fiber.New()
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(nil))

		resp, _ := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("readyz redis down", func(t *testing.T) {
		t.Parallel()

		app := fiber.New()
		RegisterHealthRoutes(app, sql.OpenDB(stubConnector{}), newStubRedisClient(errors.New("redis down")))

		resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503, body=%s", resp.StatusCode, string(body))
		}
	})
}

type stubBatchService struct {
	createFn        func(ctx context.Context, b *domain.Batch) (*domain.Batch, error)
	getByIDFn       func(ctx context.Context, id string) (*domain.Batch, error)
	getWithOriginFn func(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error)
	listFn          func(ctx context.Context) ([]domain.Batch, error)
	updateFn        func(ctx context.Context, id string, patch service.BatchPatch) (*domain.Batch, error)
	deleteFn        func(ctx context.Context, id string) error
}

func (s *stubBatchService) Create(ctx context.Context, b *domain.Batch) (*domain.Batch, error) {
	if s.createFn != nil {
		return s.createFn(ctx, b)
	}
	return nil, errors.New("not implemented")
}

func (s *stubBatchService) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubBatchService) GetWithOrigin(ctx context.Context, id string) (*domain.Batch, *domain.Batch, error) {
	if s.getWithOriginFn != nil {
		return s.getWithOriginFn(ctx, id)
	}
	return nil, nil, domain.ErrNotFound
}

func (s *stubBatchService) List(ctx context.Context) ([]domain.Batch, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubBatchService) Update(ctx context.Context, id string, patch service.BatchPatch) (*domain.Batch, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, patch)
	}
	return nil, domain.ErrNotFound
}

func (s *stubBatchService) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

type stubFinalizeService struct {
	finalizeFn func(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error)
}

func (s *stubFinalizeService) Finalize(ctx context.Context, input service.FinalizeInput) (*service.FinalizeResult, error) {
	if s.finalizeFn != nil {
		return s.finalizeFn(ctx, input)
	}
	return nil, errors.New("not implemented")
}

func newBatchTestApp(t *testing.T, svc BatchService, finalizer FinalizeService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterBatchRoutes(app, svc, finalizer); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") {
			if h.pingErr != nil {
				cmd.SetErr(h.pingErr)
				return h.pingErr
			}
			cmd.SetErr(nil)
			return nil
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
