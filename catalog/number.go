package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// FirstNumber is the start of the run sequence, used for an empty catalogue
// and as the degraded fallback when the maximum cannot be determined.
const FirstNumber = "00000001"

// numberWidth keeps zero-padded numbers sorting identically as strings and
// as integers.
const numberWidth = 8

func FormatNumber(n int64) string {
	return fmt.Sprintf("%0*d", numberWidth, n)
}

func ParseNumber(s string) (int64, error) {
	if len(s) != numberWidth {
		return 0, fmt.Errorf("run number %q: want %d digits", s, numberWidth)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("run number %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("run number %q: negative", s)
	}
	return n, nil
}

// NextNumber allocates the next run number by reading the catalogue-wide
// maximum and incrementing it. There is no reservation or locking, so two
// concurrent callers can receive the same number; both of their saves will
// still succeed. A catalogue fault degrades to FirstNumber with degraded
// set, so numbering trouble can never block a save.
func NextNumber(ctx context.Context, store Store) (number string, degraded bool) {
	maxNumber, err := store.MaxNumber(ctx)
	if errors.Is(err, ErrNotFound) {
		return FirstNumber, false
	}
	if err != nil {
		return FirstNumber, true
	}
	n, err := ParseNumber(maxNumber)
	if err != nil {
		return FirstNumber, true
	}
	return FormatNumber(n + 1), false
}
