package router

import (
	"errors"
	"fmt"
	"strings"

	"inferd/internal/backend"
)

// BusyError rejects a load/switch/unload while another load holds the
// critical section. Callers map it to 429.
type BusyError struct{ Op string }

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s rejected: another load is in progress", e.Op)
}

// IsBusy reports whether err is a busy rejection.
func IsBusy(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}

// NoModelError means an operation needed a live session and none exists.
type NoModelError struct{}

func (e *NoModelError) Error() string { return "no model loaded" }

// IsNoModel reports whether err means no live session.
func IsNoModel(err error) bool {
	var e *NoModelError
	return errors.As(err, &e)
}

// NotFoundError means the requested model path does not exist.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("model not found: %s", e.Path) }

// IsNotFound reports whether err is a missing model path.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// UnknownBackendError means a switch named a backend that is not registered.
type UnknownBackendError struct{ Name string }

func (e *UnknownBackendError) Error() string { return fmt.Sprintf("unknown backend %q", e.Name) }

// IsUnknownBackend reports whether err names an unregistered backend.
func IsUnknownBackend(err error) bool {
	var e *UnknownBackendError
	return errors.As(err, &e)
}

// Attempt is one failed backend try inside an exhausted chain.
type Attempt struct {
	Backend string       `json:"backend"`
	Kind    backend.Kind `json:"kind"`
	Reason  string       `json:"reason"`
}

// ExhaustedError aggregates every attempt of a failed fallback walk. Zero
// attempts means no backend was available to try at all.
type ExhaustedError struct {
	Attempts []Attempt
	Hints    []string
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no backends available"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%s): %s", a.Backend, a.Kind, a.Reason)
	}
	return fmt.Sprintf("all %d attempted backends failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// IsExhausted reports whether err is a spent fallback chain.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// hintsForAttempts derives deduplicated remediation hints from the failure
// kinds collected during the walk.
func hintsForAttempts(attempts []Attempt) []string {
	seen := make(map[string]bool, len(attempts))
	var hints []string
	for _, a := range attempts {
		h := a.Kind.Hint(a.Backend)
		if h != "" && !seen[h] {
			seen[h] = true
			hints = append(hints, h)
		}
	}
	return hints
}
