package domain

import (
	"math"
	"time"
)

// DaysBetween computes the elapsed calendar days between two dates, rounded.
// A nil start yields nil (undefined duration). A nil end means the batch is
// still open and now is used instead, giving a "days so far" count. Negative
// results are possible when end precedes start and are deliberately not
// clamped.
func DaysBetween(start, end *time.Time, now time.Time) *int {
	if start == nil {
		return nil
	}

	effectiveEnd := now
	if end != nil {
		effectiveEnd = *end
	}

	days := int(math.Round(effectiveEnd.Sub(*start).Hours() / 24))
	return &days
}

// TotalDays computes the cumulative day count across the origin chain.
//
// For a BASE batch this is its own day count, or the persisted TotalTime once
// the batch is closed. For a FINAL batch it is its own day count plus the
// origin batch's day count; when the origin cannot be resolved the FINAL
// batch's own count stands alone. Nil only when no component is available.
func TotalDays(b *Batch, origin *Batch, now time.Time) *int {
	if b == nil {
		return nil
	}

	if b.Type == TypeBase {
		if b.Closed() && b.TotalTime != nil {
			return b.TotalTime
		}
		return DaysBetween(b.StartDate, b.EndDate, now)
	}

	own := DaysBetween(b.StartDate, b.EndDate, now)
	var originDays *int
	if origin != nil {
		originDays = DaysBetween(origin.StartDate, origin.EndDate, now)
	}

	switch {
	case own != nil && originDays != nil:
		total := *own + *originDays
		return &total
	case own != nil:
		return own
	case originDays != nil:
		return originDays
	default:
		return nil
	}
}
