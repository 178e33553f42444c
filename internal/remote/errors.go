package remote

import "errors"

// Error taxonomy for remote operations. Backends wrap these sentinels so
// callers can classify with errors.Is without knowing the transport.
var (
	// ErrNotAuthenticated means no local user id is available. Fatal for
	// any chat operation; surfaced immediately, never retried.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPermissionDenied means the backend rejected the operation or
	// revoked a subscription. For subscriptions this surfaces as a
	// Cancelled stream event and is treated as eviction, not empty data.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means the referenced chat or profile is absent. Callers
	// resolve it with fallback display values, never a crash.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRecord means a fetched record failed to decode into the
	// expected shape. The record is skipped and logged; the surrounding
	// batch continues.
	ErrMalformedRecord = errors.New("malformed record")
)
