package feed

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrUnknownSourceKind = errors.New("unknown source kind")
	ErrDocumentTooLarge  = errors.New("document too large")
)

// FetchError describes a failed fetch: a transport error or timeout
// (StatusCode 0) or a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("source unreachable: HTTP %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("source unreachable: %v for %s", e.Cause, e.URL)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrSourceUnreachable
}

func (e *FetchError) Unwrap() error { return e.Cause }
