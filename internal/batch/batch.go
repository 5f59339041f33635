// Package batch queues generation requests and dispatches them in priority
// batches against the live session. Requests wait in a heap ordered by
// priority, then submission time; a batch forms when it is full or the
// oldest waiter has been queued past the formation window, whichever comes
// first. Batch members run concurrently and fail independently.
package batch

import (
	"context"
	"time"

	"inferd/internal/backend"
)

// State is the lifecycle position of one request. Every request moves
// through it exactly once: pending to dispatched to completed or failed, or
// pending to canceled.
type State string

const (
	StatePending    State = "pending"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCanceled   State = "canceled"
)

// Request is one queued generation.
type Request struct {
	ID          string                   `json:"id"`
	Prompt      string                   `json:"prompt"`
	Config      backend.GenerationConfig `json:"config"`
	Priority    int                      `json:"priority"`
	SubmittedAt time.Time                `json:"submitted_at"`
	// Deadline bounds the request's own generation; zero means no bound
	// beyond the processor's shutdown.
	Deadline time.Time `json:"deadline,omitempty"`
}

// Result is the terminal outcome of a request. Err is set for failed and
// canceled requests.
type Result struct {
	ID          string    `json:"id"`
	Text        string    `json:"text,omitempty"`
	Err         error     `json:"-"`
	CompletedAt time.Time `json:"completed_at"`
}

// Generator produces one completion. The router satisfies this.
type Generator interface {
	Generate(ctx context.Context, prompt string, gen backend.GenerationConfig) (string, error)
}

// Config tunes the processor. Zero fields get the served defaults.
type Config struct {
	// MaxBatchSize caps how many requests one batch may carry.
	MaxBatchSize int
	// MaxWait is the formation window: an undersized batch dispatches once
	// its oldest member has waited this long.
	MaxWait time.Duration
	// QueueCap bounds pending requests; submissions beyond it are rejected.
	QueueCap int
	// MemPerRequestMB is the footprint assumed per in-flight request when
	// shrinking batches under memory pressure. Zero disables shrinking.
	MemPerRequestMB int
	// RequestTimeout is the default per-request deadline stamped at submit.
	RequestTimeout time.Duration
	// ResultTTL is how long unfetched results are retained.
	ResultTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 8
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 200 * time.Millisecond
	}
	if c.QueueCap <= 0 {
		c.QueueCap = 128
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = 5 * time.Minute
	}
	return c
}

// Deps are the processor's collaborators.
type Deps struct {
	// Generator runs completions; required.
	Generator Generator
	// FreeMemMB reports currently available memory for dynamic batch
	// sizing. Nil or non-positive readings disable the shrink.
	FreeMemMB func() int
}
