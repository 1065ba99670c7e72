package llm

import (
	"errors"
	"fmt"
)

// ProviderError classifies a failed provider call. Transient errors
// (throttling, overload, network) are retried; permanent ones
// (auth, bad request) fail the poem immediately.
type ProviderError struct {
	Model      string
	StatusCode int // 0 when the request never got an HTTP response
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s error (status %d): %v", e.Model, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Model, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient provider error
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
