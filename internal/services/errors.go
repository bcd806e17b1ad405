package services

import "errors"

// Domain error kinds. Handlers map these to transport status codes;
// raw storage/provider error text never reaches the caller.
var (
	// ErrNotFound covers both absent resources and resources owned by
	// another principal, so existence is never leaked.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable means the persistence backend failed; the
	// request made no partial commit.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrProviderUnavailable means the AI backend failed after retry.
	// Writes made before the completion call stay committed.
	ErrProviderUnavailable = errors.New("ai provider unavailable")

	// ErrValidation covers malformed or out-of-range request input.
	ErrValidation = errors.New("validation error")
)

// ErrorKind returns the machine-readable kind for a domain error, or
// "internal" for anything unclassified.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
