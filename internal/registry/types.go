// Package registry implements the Registry Adapter of spec.md §4.1: the
// controller's only point of contact with the remote workflow-hosting
// service. Every call retries transient failures with backoff and times
// out at 30 s, per spec.md §4.1's semantics.
package registry

import "time"

// RegistryWorker is the Registry Adapter's view of a registration
// (spec.md §3's RegistryWorker type).
type RegistryWorker struct {
	ID     int64
	Name   string
	Status string // "online" or "offline"
	Busy   bool
	Labels []string
}

// RegistrationToken is a short-lived credential a fresh worker uses to
// register itself with the remote service.
type RegistrationToken struct {
	Token     string
	ExpiresAt time.Time
}

// PendingWork is the result of list_pending_work: counts of queued and
// in-progress workflow units. Queued is nil when the adapter cannot
// cheaply report it at the configured scope (spec.md §4.1, org scope).
type PendingWork struct {
	Queued     *int
	InProgress int
}

// ErrorClass names the category of failure a registry call produced, so
// callers can decide whether to retry, alarm, or abort (spec.md §7).
type ErrorClass string

const (
	ErrorClassAuth      ErrorClass = "auth"
	ErrorClassRateLimit ErrorClass = "rate_limit"
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassNotFound  ErrorClass = "not_found"
)

// Error wraps a registry failure with its class, so callers can use
// errors.As to branch on it without parsing strings.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
