package entity

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// At most 15 hex digits, so the offset always fits a non-negative int64.
var cursorPattern = regexp.MustCompile(`^[0-9a-fA-F]{1,15}$`)

// EncodeCursor returns the opaque continuation token for offset.
func EncodeCursor(offset int64) string {
	return strconv.FormatInt(offset, 16)
}

// DecodeCursor parses a token produced by EncodeCursor. The empty token is
// offset zero. Cursors come back from clients and are validated before use.
func DecodeCursor(next string) (int64, error) {
	if next == "" {
		return 0, nil
	}
	if !cursorPattern.MatchString(next) {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidCursor, next)
	}
	n, err := strconv.ParseInt(next, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidCursor, next)
	}
	return n, nil
}
