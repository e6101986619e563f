package identity

import "fmt"

// MinShortIDLength is the minimum prefix length the status surface accepts
// for DELETE/logs lookups, balancing usability against collision risk.
const MinShortIDLength = 6

// Resolve matches a short ID or name prefix supplied to the HTTP surface
// (e.g. DELETE /api/v1/workers/{id}) against the candidate worker
// identifiers the controller currently knows about (the worker names of
// its runtime containers; container IDs are not among them). Exactly one
// match is required.
func Resolve(shortID string, candidates []string) (string, error) {
	if len(shortID) < MinShortIDLength {
		// A full worker name may legitimately be shorter than the
		// minimum prefix length; allow an exact match through first.
		for _, c := range candidates {
			if c == shortID {
				return c, nil
			}
		}
		return "", fmt.Errorf("id must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	var matches []string
	for _, c := range candidates {
		if c == shortID || hasIDPrefix(c, shortID) {
			matches = append(matches, c)
		}
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

func hasIDPrefix(candidate, prefix string) bool {
	if len(prefix) > len(candidate) {
		return false
	}
	return candidate[:len(prefix)] == prefix
}

// NotFoundError indicates no candidate matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no worker found matching %q", e.ShortID)
}

// AmbiguousError indicates multiple candidates matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous id %q matches %d workers", e.ShortID, len(e.Matches))
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguous reports whether err is an AmbiguousError.
func IsAmbiguous(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
