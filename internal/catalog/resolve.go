package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/google/uuid"
)

// MinShortIDLength is the shortest prefix accepted in place of a full ID.
const MinShortIDLength = 6

// ResolveProjectID expands a short ID prefix to a full project ID.
// A full UUID, in any form uuid.Parse accepts, is checked for existence
// and returned in canonical form.
func ResolveProjectID(ctx context.Context, board *blackboard.Client, shortID string) (string, error) {
	if u, err := uuid.Parse(shortID); err == nil {
		id := u.String()
		if _, err := board.GetProject(ctx, id); err != nil {
			if blackboard.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify project existence: %w", err)
		}
		return id, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := board.ScanProjects(ctx, strings.ToLower(shortID))
	if err != nil {
		return "", fmt.Errorf("failed to search for project: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no project matched.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no project found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several projects share the prefix.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d projects", e.ShortID, len(e.Matches))
}

// Candidates lists up to ten matches, then a count of the rest.
func (e *AmbiguousError) Candidates() []string {
	const shown = 10
	if len(e.Matches) <= shown {
		return append([]string(nil), e.Matches...)
	}
	out := append([]string(nil), e.Matches[:shown]...)
	return append(out, fmt.Sprintf("...and %d more", len(e.Matches)-shown))
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguous reports whether err is an AmbiguousError.
func IsAmbiguous(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}
