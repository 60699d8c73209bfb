package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

var finalIDPattern = regexp.MustCompile(`^(\d{2})(.{2,})$`)

// DeriveFinalID maps a batch identifier to the identifier of its successor
// batch. Identifiers are expected to start with a two-digit numeric prefix
// followed by at least two more characters; the prefix is incremented by one
// modulo 100 and the rest is kept, so "11B2" becomes "12B2" and "99XY" wraps
// to "00XY". Identifiers that do not match get a "-F" suffix instead,
// producing a clearly synthetic, non-colliding id.
//
// The result is advisory only: callers may override it before submission.
func DeriveFinalID(originalID string) string {
	m := finalIDPattern.FindStringSubmatch(originalID)
	if m == nil {
		return originalID + "-F"
	}

	prefix, err := strconv.Atoi(m[1])
	if err != nil {
		return originalID + "-F"
	}

	return fmt.Sprintf("%02d%s", (prefix+1)%100, m[2])
}
