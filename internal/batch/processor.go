package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"inferd/internal/backend"
)

// tracked is the per-request record; done closes exactly once when the
// request reaches a terminal state.
type tracked struct {
	req  Request
	done chan struct{}

	mu     sync.Mutex
	state  State
	result *Result
}

func (t *tracked) terminate(state State, res *Result) {
	t.state = state
	t.result = res
	close(t.done)
	requestsTotal.WithLabelValues(string(state)).Inc()
}

// Processor is the batching scheduler. Construction starts the dispatch and
// sweep loops; Close stops them.
type Processor struct {
	cfg     Config
	gen     Generator
	freeMem func() int
	log     zerolog.Logger

	requests *xsync.MapOf[string, *tracked]
	q        queue

	kick   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	outstanding atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New builds a Processor and starts its loops.
func New(cfg Config, deps Deps, log zerolog.Logger) *Processor {
	p := &Processor{
		cfg:      cfg.withDefaults(),
		gen:      deps.Generator,
		freeMem:  deps.FreeMemMB,
		log:      log.With().Str("component", "batch").Logger(),
		requests: xsync.NewMapOf[string, *tracked](),
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	p.wg.Add(2)
	go p.loop()
	go p.sweep()
	return p
}

// Submit queues a generation with the default per-request deadline.
func (p *Processor) Submit(prompt string, gen backend.GenerationConfig, priority int) (string, error) {
	var deadline time.Time
	if p.cfg.RequestTimeout > 0 {
		deadline = time.Now().Add(p.cfg.RequestTimeout)
	}
	return p.submit(prompt, gen, priority, deadline)
}

// SubmitWithDeadline queues a generation that must finish by deadline.
func (p *Processor) SubmitWithDeadline(prompt string, gen backend.GenerationConfig, priority int, deadline time.Time) (string, error) {
	return p.submit(prompt, gen, priority, deadline)
}

func (p *Processor) submit(prompt string, gen backend.GenerationConfig, priority int, deadline time.Time) (string, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "", &ClosedError{}
	}

	id := uuid.NewString()
	now := time.Now()
	t := &tracked{
		req: Request{
			ID:          id,
			Prompt:      prompt,
			Config:      gen,
			Priority:    priority,
			SubmittedAt: now,
			Deadline:    deadline,
		},
		done:  make(chan struct{}),
		state: StatePending,
	}
	p.requests.Store(id, t)
	if !p.q.push(id, priority, now, p.cfg.QueueCap) {
		p.requests.Delete(id)
		return "", &QueueFullError{Limit: p.cfg.QueueCap}
	}
	queueDepth.Set(float64(p.q.len()))

	select {
	case p.kick <- struct{}{}:
	default:
	}
	return id, nil
}

// Cancel marks a pending request canceled. Dispatched requests run to
// completion; canceling them returns false.
func (p *Processor) Cancel(id string) bool {
	t, ok := p.requests.Load(id)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.terminate(StateCanceled, &Result{ID: id, Err: &CanceledError{ID: id}, CompletedAt: time.Now()})
	return true
}

// GetResult waits for the request to finish and returns its result, removing
// it from the store. timeout bounds the wait; non-positive means wait until
// ctx is done.
func (p *Processor) GetResult(ctx context.Context, id string, timeout time.Duration) (*Result, error) {
	t, ok := p.requests.Load(id)
	if !ok {
		return nil, &UnknownRequestError{ID: id}
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-t.done:
		p.requests.Delete(id)
		t.mu.Lock()
		res := t.result
		t.mu.Unlock()
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer:
		return nil, &WaitTimeoutError{ID: id}
	}
}

// Status reports the lifecycle state of a request still in the store.
func (p *Processor) Status(id string) (State, bool) {
	t, ok := p.requests.Load(id)
	if !ok {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}

// Depth returns the number of pending requests.
func (p *Processor) Depth() int { return p.q.len() }

// Outstanding returns the number of dispatched, unfinished requests.
func (p *Processor) Outstanding() int { return int(p.outstanding.Load()) }

// DynamicBatchSize shrinks the configured batch size under memory pressure:
// in-flight work reserves MemPerRequestMB each and the next batch only gets
// what fits in the remainder. Unknown readings leave the size alone.
func (p *Processor) DynamicBatchSize(freeMemMB, outstanding int) int {
	limit := p.cfg.MaxBatchSize
	if freeMemMB <= 0 || p.cfg.MemPerRequestMB <= 0 {
		return limit
	}
	fits := (freeMemMB - outstanding*p.cfg.MemPerRequestMB) / p.cfg.MemPerRequestMB
	if fits < 1 {
		fits = 1
	}
	if fits < limit {
		return fits
	}
	return limit
}

// Close stops accepting work, fails everything still pending and waits for
// in-flight batches until ctx expires.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)

	p.requests.Range(func(id string, t *tracked) bool {
		t.mu.Lock()
		if t.state == StatePending {
			t.terminate(StateFailed, &Result{ID: id, Err: &ClosedError{}, CompletedAt: time.Now()})
		}
		t.mu.Unlock()
		return true
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(clampDuration(p.cfg.MaxWait/4, 5*time.Millisecond, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.kick:
		case <-ticker.C:
		}
		p.dispatchDue()
	}
}

// dispatchDue forms and launches every batch that is currently due.
func (p *Processor) dispatchDue() {
	for {
		target := p.DynamicBatchSize(p.freeMemMB(), int(p.outstanding.Load()))
		depth, oldest := p.q.snapshot(time.Now())
		if depth == 0 {
			return
		}
		if depth < target && oldest < p.cfg.MaxWait {
			return
		}

		batch := p.collect(target)
		queueDepth.Set(float64(p.q.len()))
		if len(batch) == 0 {
			return
		}

		p.outstanding.Add(int64(len(batch)))
		batchesTotal.Inc()
		batchSize.Observe(float64(len(batch)))
		p.log.Debug().Int("size", len(batch)).Int("target", target).Msg("dispatching batch")

		p.wg.Add(1)
		go p.runBatch(batch)
	}
}

// collect pops up to target dispatchable requests, skipping entries whose
// request was canceled or already swept.
func (p *Processor) collect(target int) []*tracked {
	ids := p.q.popN(target, func(id string) bool {
		t, ok := p.requests.Load(id)
		if !ok {
			return true
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.state != StatePending
	})
	batch := make([]*tracked, 0, len(ids))
	for _, id := range ids {
		if t, ok := p.requests.Load(id); ok {
			batch = append(batch, t)
		}
	}
	return batch
}

func (p *Processor) runBatch(batch []*tracked) {
	defer p.wg.Done()
	var g errgroup.Group
	for _, t := range batch {
		t := t
		g.Go(func() error {
			p.runOne(t)
			// Failures are terminal per member, never shared with
			// siblings.
			return nil
		})
	}
	_ = g.Wait()
	p.outstanding.Add(-int64(len(batch)))
}

func (p *Processor) runOne(t *tracked) {
	t.mu.Lock()
	if t.state != StatePending {
		t.mu.Unlock()
		return
	}
	t.state = StateDispatched
	req := t.req
	t.mu.Unlock()

	ctx := context.Background()
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	text, err := p.gen.Generate(ctx, req.Prompt, req.Config)

	t.mu.Lock()
	defer t.mu.Unlock()
	res := &Result{ID: req.ID, Text: text, Err: err, CompletedAt: time.Now()}
	if err != nil {
		t.terminate(StateFailed, res)
		return
	}
	t.terminate(StateCompleted, res)
}

// sweep evicts terminal results nobody fetched within the retention window.
func (p *Processor) sweep() {
	defer p.wg.Done()
	ticker := time.NewTicker(clampDuration(p.cfg.ResultTTL/4, 10*time.Millisecond, 30*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case now := <-ticker.C:
			p.requests.Range(func(id string, t *tracked) bool {
				t.mu.Lock()
				expired := t.result != nil && now.Sub(t.result.CompletedAt) > p.cfg.ResultTTL
				t.mu.Unlock()
				if expired {
					p.requests.Delete(id)
				}
				return true
			})
		}
	}
}

func (p *Processor) freeMemMB() int {
	if p.freeMem == nil {
		return 0
	}
	return p.freeMem()
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
