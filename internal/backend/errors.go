package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind buckets backend failures so the router can record, rank and explain
// them uniformly. Every error leaving a backend is reclassified into exactly
// one kind.
type Kind string

const (
	KindAvailability  Kind = "availability"
	KindHardware      Kind = "hardware"
	KindMemory        Kind = "memory"
	KindConfiguration Kind = "configuration"
	KindTimeout       Kind = "timeout"
)

// Hint suggests a remediation for the kind, surfaced in exhausted-fallback
// responses.
func (k Kind) Hint(backend string) string {
	switch k {
	case KindAvailability:
		return fmt.Sprintf("backend %q is not installed or not built on this host", backend)
	case KindHardware:
		return fmt.Sprintf("backend %q hit a GPU or driver fault; check driver installation or force cpu", backend)
	case KindMemory:
		return "model does not fit in memory; try a smaller quantization or reduce gpu_layers"
	case KindConfiguration:
		return "load configuration was rejected; review context_size, gpu_layers and custom args"
	case KindTimeout:
		return "load or generation timed out; raise the attempt timeout or pick a smaller model"
	default:
		return ""
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError classifies err and tags it with the backend name. Already
// classified errors keep their kind; the backend tag is filled in if missing.
func WrapError(backend string, err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		if be.Backend == "" {
			be.Backend = backend
		}
		return be
	}
	return &Error{Kind: Classify(err), Backend: backend, Err: err}
}

// KindOf extracts the kind from a classified error, or classifies on the fly.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return Classify(err)
}

func IsUnavailable(err error) bool   { return KindOf(err) == KindAvailability }
func IsHardwareError(err error) bool { return KindOf(err) == KindHardware }
func IsMemoryError(err error) bool   { return KindOf(err) == KindMemory }
func IsConfigError(err error) bool   { return KindOf(err) == KindConfiguration }
func IsTimeout(err error) bool       { return KindOf(err) == KindTimeout }

// Classify maps an arbitrary error onto the taxonomy by message inspection.
// The buckets are matched most-specific first; anything unrecognized reads as
// an availability problem so the hint points at the backend installation.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "out of memory", "oom", "failed to allocate", "cannot allocate", "insufficient memory", "not enough memory", "mmap failed"):
		return KindMemory
	case containsAny(msg, "cuda", "rocm", "hip error", "vulkan", "metal", "driver", "gpu device", "device lost"):
		return KindHardware
	case containsAny(msg, "timed out", "timeout", "deadline exceeded", "not ready in time"):
		return KindTimeout
	case containsAny(msg, "invalid", "unsupported", "unknown flag", "bad value", "must be"):
		return KindConfiguration
	case containsAny(msg, "executable file not found", "no such file", "not built", "unavailable", "not installed", "connection refused", "permission denied"):
		return KindAvailability
	default:
		return KindAvailability
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
