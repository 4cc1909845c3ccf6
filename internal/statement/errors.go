package statement

import (
	"errors"
	"strings"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// VersionConflictMessage is raised by the entity table trigger when an update
// does not advance the version by exactly one.
const VersionConflictMessage = "entity version conflict"

// conflictMarkers are the substrings backends use to report uniqueness and
// version conflicts.
var conflictMarkers = []string{
	VersionConflictMessage,
	"duplicate key value violates unique constraint",
	"UNIQUE constraint failed",
}

// IsConflictMessage reports whether msg carries a known conflict marker.
func IsConflictMessage(msg string) bool {
	for _, m := range conflictMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// TranslateError maps a backend error onto the engine taxonomy: conflicts
// become *types.ConflictError, context errors pass through, everything else
// wraps types.ErrDatabase.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	var ce *types.ConflictError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, types.ErrDatabase),
		errors.Is(err, types.ErrTransactionNotFound),
		errors.Is(err, types.ErrConfiguration):
		return err
	case IsConflictMessage(err.Error()):
		return &types.ConflictError{Err: err}
	default:
		return types.DatabaseError(err)
	}
}
