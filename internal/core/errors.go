package core

import "errors"

var (
	// ErrValidation: bad input the user can correct.
	ErrValidation = errors.New("validation error")
	// ErrEmptyFeed: there is nothing to reply to yet.
	ErrEmptyFeed = errors.New("feed is empty")
	// ErrAlreadyGenerating: a reply for this client is still outstanding.
	ErrAlreadyGenerating = errors.New("a reply is already being generated")
	// ErrStoreUnavailable: the message store could not be reached.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrGenerationFailed: the generation service failed or returned nothing.
	ErrGenerationFailed = errors.New("generation failed")
)

// Kind names the error's place in the taxonomy for clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEmptyFeed):
		return "empty_feed"
	case errors.Is(err, ErrAlreadyGenerating):
		return "already_generating"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// Retryable reports whether a user-initiated retry may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrGenerationFailed)
}
