package orchestrator

import "time"

// State is a step in the lifecycle of one extraction request.
type State int

const (
	StatePending State = iota
	StateSelectingProvider
	StateInvoking
	StateRetry
	StateExhausted
	StateMapping
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StatePending:           "PENDING",
	StateSelectingProvider: "SELECTING_PROVIDER",
	StateInvoking:          "INVOKING",
	StateRetry:             "RETRY",
	StateExhausted:         "EXHAUSTED",
	StateMapping:           "MAPPING",
	StateDone:              "DONE",
	StateFailed:            "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use; calls happen on the request's goroutine.
type Observer interface {
	// StateChanged is called on every state transition.
	StateChanged(requestID string, provider string, state State)
	// AttemptFinished is called after every provider invocation; err is nil on success.
	AttemptFinished(provider string, attempt int, elapsed time.Duration, err error)
	// RequestFinished is called once per request with its terminal state.
	// provider is empty when no provider succeeded.
	RequestFinished(provider string, state State, elapsed time.Duration, costUSD float64)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, string, State)                    {}
func (nopObserver) AttemptFinished(string, int, time.Duration, error)     {}
func (nopObserver) RequestFinished(string, State, time.Duration, float64) {}
