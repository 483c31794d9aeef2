package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ProviderError reports a failed provider call. Provider and Model
// identify the backend that misbehaved; Status and Temporary feed the
// transient check used to print retry hints.
type ProviderError struct {
	Provider  string
	Model     string
	Status    int
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	target := e.Provider
	if e.Model != "" {
		target = e.Provider + "/" + e.Model
	}
	if e.Err != nil {
		if target == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", target, e.Err)
	}
	return fmt.Sprintf("%s: status %d", target, e.Status)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether a failed call is worth retrying against
// the same model. Rate limits, 5xx responses, and network timeouts
// count as transient; a canceled context or a provider 4xx does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Temporary {
			return true
		}
		if provErr.Status == 429 || (provErr.Status >= 500 && provErr.Status <= 599) {
			return true
		}
	}
	return false
}
