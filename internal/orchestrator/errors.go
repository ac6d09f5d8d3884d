package orchestrator

import (
	"fmt"
	"strings"
)

// ProviderFailure records why one provider in the fallback chain gave up.
type ProviderFailure struct {
	Provider  string
	Retryable bool   // flag of the last error seen from this provider
	Context   string // message of the last error
	Attempts  int
	Err       error
}

func (f ProviderFailure) String() string {
	kind := "permanent"
	if f.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s (%s, %d attempt(s)): %s", f.Provider, kind, f.Attempts, f.Context)
}

// ExhaustedError is the terminal failure when every provider in priority
// order was tried without success. errors.As reaches each provider's
// *resilience.ProviderError through Unwrap.
type ExhaustedError struct {
	RequestID string
	Failures  []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "orchestrator: all providers exhausted: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Providers returns the names of the failed providers in the order tried.
func (e *ExhaustedError) Providers() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Provider
	}
	return names
}
