package view

import (
	"strconv"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
)

// DisplayDateFormat is the human-facing date layout, distinct from the
// ISO wire format.
const DisplayDateFormat = "02-01-2006"

// Placeholder stands in for absent values in rendered output.
const Placeholder = "—"

// BatchView is a display-ready projection of a batch. Day counts are derived
// live from the date range instead of trusting the persisted columns, so an
// open batch shows its current elapsed days.
type BatchView struct {
	ID            string
	Type          string
	StartDate     string
	EndDate       string
	Days          string
	Temperature   string
	OriginBatchID string
	Comment       string
	Result        string
	Production    string
	TotalTime     string
	FinalStatus   string
	Open          bool
}

// Project builds the view of a batch. origin may be nil; when the batch
// carries an origin reference the caller resolves it beforehand so total
// time can span the origin chain.
func Project(b *domain.Batch, origin *domain.Batch, now time.Time) BatchView {
	if b == nil {
		return BatchView{}
	}

	v := BatchView{
		ID:            b.ID,
		Type:          b.Type.String(),
		StartDate:     formatDate(b.StartDate),
		EndDate:       formatDate(b.EndDate),
		Days:          formatInt(domain.DaysBetween(b.StartDate, b.EndDate, now)),
		Temperature:   formatInt(b.Temperature),
		OriginBatchID: formatString(b.OriginBatchID),
		Comment:       formatString(b.Comment),
		Result:        formatString(b.Result),
		Production:    formatString(b.Production),
		TotalTime:     formatInt(domain.TotalDays(b, origin, now)),
		Open:          !b.Closed(),
	}
	if b.FinalStatus != nil {
		v.FinalStatus = b.FinalStatus.String()
	} else {
		v.FinalStatus = Placeholder
	}
	return v
}

// ProjectAll projects every batch without origin resolution. Order is
// preserved.
func ProjectAll(batches []domain.Batch, now time.Time) []BatchView {
	views := make([]BatchView, 0, len(batches))
	for i := range batches {
		views = append(views, Project(&batches[i], nil, now))
	}
	return views
}

func formatDate(t *time.Time) string {
	if t == nil {
		return Placeholder
	}
	return t.Format(DisplayDateFormat)
}

func formatInt(v *int) string {
	if v == nil {
		return Placeholder
	}
	return strconv.Itoa(*v)
}

func formatString(s *string) string {
	if s == nil || *s == "" {
		return Placeholder
	}
	return *s
}
