package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchType represents the lifecycle stage of a batch.
type BatchType string

const (
	TypeBase  BatchType = "BASE"
	TypeFinal BatchType = "FINAL"
)

func (t BatchType) String() string { return string(t) }

func (t BatchType) IsValid() bool {
	switch t {
	case TypeBase, TypeFinal:
		return true
	}
	return false
}

func ParseBatchTypeFromString(s string) (BatchType, error) {
	t := BatchType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid batch type %q", ErrValidation, s)
	}
	return t, nil
}

// FinalStatus represents the closing verdict of a batch.
type FinalStatus string

const (
	StatusOK   FinalStatus = "OK"
	StatusKO   FinalStatus = "KO"
	StatusLook FinalStatus = "LOOK"
)

func (s FinalStatus) String() string { return string(s) }

func (s FinalStatus) IsValid() bool {
	switch s {
	case StatusOK, StatusKO, StatusLook:
		return true
	}
	return false
}

func ParseFinalStatusFromString(s string) (FinalStatus, error) {
	fs := FinalStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !fs.IsValid() {
		return "", fmt.Errorf("%w: invalid final status %q", ErrValidation, s)
	}
	return fs, nil
}

// DateFormat is the wire and storage format for batch dates.
const DateFormat = "2006-01-02"

// Batch is the core domain entity: one production run, either a BASE
// fermentation or a FINAL bottled record. A nil EndDate means the batch is
// still open.
type Batch struct {
	ID            string
	Type          BatchType
	StartDate     *time.Time
	EndDate       *time.Time
	Days          *int
	OriginBatchID *string
	Temperature   *int
	Comment       *string
	Result        *string
	Production    *string
	TotalTime     *int
	FinalStatus   *FinalStatus
}

// Closed reports whether the batch has an end date set.
func (b *Batch) Closed() bool {
	return b != nil && b.EndDate != nil
}

func (b *Batch) Validate() error {
	errs := FieldErrors{}

	if strings.TrimSpace(b.ID) == "" {
		errs["id"] = "id is required"
	}
	if !b.Type.IsValid() {
		errs["type"] = fmt.Sprintf("invalid batch type %q", b.Type)
	}
	if b.FinalStatus != nil && !b.FinalStatus.IsValid() {
		errs["final_status"] = fmt.Sprintf("invalid final status %q", *b.FinalStatus)
	}
	if b.StartDate != nil && b.EndDate != nil && b.EndDate.Before(*b.StartDate) {
		errs["end_date"] = "end date must not be before start date"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
