package seed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/repository"
	"go.uber.org/zap"
)

// csvDateFormat is the day-first layout used by the source spreadsheet.
const csvDateFormat = "2/1/2006"

// Result counts the outcome of a seed run.
type Result struct {
	Inserted int
	Skipped  int // already present, insert ignored
	Invalid  int // rows that could not be mapped to a batch
}

// Loader imports batches from the legacy spreadsheet export: a
// semicolon-delimited CSV with one row per batch. Inserts ignore conflicts so
// reruns are idempotent.
type Loader struct {
	batches repository.BatchRepository
	logger  *zap.Logger
}

func NewLoader(batches repository.BatchRepository, logger *zap.Logger) (*Loader, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{batches: batches, logger: logger}, nil
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	if _, ok := columns["LOTE"]; !ok {
		return nil, fmt.Errorf("csv header is missing the LOTE column")
	}

	result := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return result, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		row := rowReader{columns: columns, record: record}
		batch, err := rowToBatch(row)
		if err != nil {
			l.logger.Warn("skipping unmappable seed row",
				zap.Int("line", line),
				zap.Error(err),
			)
			result.Invalid++
			continue
		}

		inserted, err := l.batches.CreateIgnoreConflict(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("failed to insert batch %q: %w", batch.ID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	l.logger.Info("seed run finished",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("invalid", result.Invalid),
	)
	return result, nil
}

type rowReader struct {
	columns map[string]int
	record  []string
}

func (r rowReader) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

// rowToBatch maps one spreadsheet row. BASE batches take their dates and day
// count from the F1 columns, FINAL batches from the F2 columns.
func rowToBatch(row rowReader) (*domain.Batch, error) {
	id := row.get("LOTE")
	if id == "" {
		return nil, fmt.Errorf("row has no batch id")
	}

	batchType, err := domain.ParseBatchTypeFromString(row.get("TIPO"))
	if err != nil {
		return nil, err
	}

	startColumn, endColumn, daysColumn := "F1_INICIO", "F1_FIN", "F1_DIAS"
	if batchType == domain.TypeFinal {
		startColumn, endColumn, daysColumn = "F2_INICIO", "F2_FIN", "F2_DIAS"
	}

	b := &domain.Batch{
		ID:            id,
		Type:          batchType,
		Days:          parseOptionalInt(row.get(daysColumn)),
		OriginBatchID: parseOptionalString(row.get("LOTE_ORIGEN")),
		Temperature:   parseOptionalInt(row.get("TEMPERATURA")),
		Comment:       parseOptionalString(row.get("COMENTARIO")),
		Result:        parseOptionalString(row.get("RESULTADO")),
		Production:    parseOptionalString(row.get("PRODUCCION")),
		TotalTime:     parseOptionalInt(row.get("TIEMPO_TOTAL")),
	}

	if b.StartDate, err = parseOptionalDate(row.get(startColumn)); err != nil {
		return nil, fmt.Errorf("bad %s: %w", startColumn, err)
	}
	if b.EndDate, err = parseOptionalDate(row.get(endColumn)); err != nil {
		return nil, fmt.Errorf("bad %s: %w", endColumn, err)
	}

	if raw := row.get("FIN"); raw != "" {
		status, err := domain.ParseFinalStatusFromString(raw)
		if err != nil {
			return nil, err
		}
		b.FinalStatus = &status
	}

	return b, nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(csvDateFormat, raw)
	if err != nil {
		return nil, fmt.Errorf("%q is not a DD/MM/YYYY date", raw)
	}
	return &t, nil
}

func parseOptionalInt(raw string) *int {
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &value
}

func parseOptionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
