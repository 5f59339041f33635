package batch

import (
	"errors"
	"fmt"
)

// QueueFullError rejects a submission once the pending queue is at capacity.
// Callers map it to 429.
type QueueFullError struct{ Limit int }

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue full: %d requests pending", e.Limit)
}

// IsQueueFull reports whether err is a capacity rejection.
func IsQueueFull(err error) bool {
	var e *QueueFullError
	return errors.As(err, &e)
}

// UnknownRequestError means the id was never submitted, already fetched or
// already evicted.
type UnknownRequestError struct{ ID string }

func (e *UnknownRequestError) Error() string { return fmt.Sprintf("unknown request %s", e.ID) }

// IsUnknownRequest reports whether err is a missing request id.
func IsUnknownRequest(err error) bool {
	var e *UnknownRequestError
	return errors.As(err, &e)
}

// WaitTimeoutError means GetResult gave up before the request finished. The
// request itself keeps running.
type WaitTimeoutError struct{ ID string }

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("request %s not finished within wait window", e.ID)
}

// IsWaitTimeout reports whether err is a result-wait timeout.
func IsWaitTimeout(err error) bool {
	var e *WaitTimeoutError
	return errors.As(err, &e)
}

// CanceledError is the terminal result error of a canceled request.
type CanceledError struct{ ID string }

func (e *CanceledError) Error() string { return fmt.Sprintf("request %s canceled", e.ID) }

// IsCanceled reports whether err marks a canceled request.
func IsCanceled(err error) bool {
	var e *CanceledError
	return errors.As(err, &e)
}

// ClosedError rejects operations on a shut-down processor; pending requests
// fail with it too.
type ClosedError struct{}

func (e *ClosedError) Error() string { return "batch processor closed" }

// IsClosed reports whether err is a shutdown rejection.
func IsClosed(err error) bool {
	var e *ClosedError
	return errors.As(err, &e)
}
