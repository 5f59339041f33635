package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferd/internal/backend"
)

type fakeGen struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (g *fakeGen) Generate(ctx context.Context, prompt string, gen backend.GenerationConfig) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, prompt)
	genErr := g.err
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if genErr != nil {
		return "", genErr
	}
	return "echo: " + prompt, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newTestProcessor(t *testing.T, cfg Config, gen Generator) *Processor {
	t.Helper()
	p := New(cfg, Deps{Generator: gen}, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

func waitForState(t *testing.T, p *Processor, id string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := p.Status(id); ok && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, ok := p.Status(id)
	t.Fatalf("request %s never reached %s (state %q, tracked %v)", id, want, got, ok)
}

func TestSubmitAndFetch(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 4, MaxWait: 10 * time.Millisecond, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("hello", backend.GenerationConfig{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res, err := p.GetResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, "echo: hello", res.Text)
	assert.NoError(t, res.Err)
	assert.False(t, res.CompletedAt.IsZero())

	// Fetch removes the result.
	_, err = p.GetResult(context.Background(), id, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsUnknownRequest(err))
}

func TestFullBatchDispatchesWithoutWaiting(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 2, MaxWait: time.Minute, ResultTTL: time.Minute}, gen)

	a, err := p.Submit("a", backend.GenerationConfig{}, 0)
	require.NoError(t, err)
	b, err := p.Submit("b", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	// The window is a minute; only the size trigger can finish these in 2s.
	_, err = p.GetResult(context.Background(), a, 2*time.Second)
	require.NoError(t, err)
	_, err = p.GetResult(context.Background(), b, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.callCount())
}

func TestLoneRequestWaitsFormationWindow(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 8, MaxWait: 30 * time.Millisecond, ResultTTL: time.Minute}, gen)

	start := time.Now()
	id, err := p.Submit("solo", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	res, err := p.GetResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	// An undersized batch holds until the window elapses.
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestCancelBeforeDispatch(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 8, MaxWait: time.Minute, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("doomed", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	assert.True(t, p.Cancel(id))
	assert.False(t, p.Cancel(id))

	res, err := p.GetResult(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.True(t, IsCanceled(res.Err))
	assert.Zero(t, gen.callCount())
}

func TestCancelAfterCompletionFails(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 1, MaxWait: 5 * time.Millisecond, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("done", backend.GenerationConfig{}, 0)
	require.NoError(t, err)
	waitForState(t, p, id, StateCompleted)

	assert.False(t, p.Cancel(id))
}

func TestQueueCapRejectsSubmissions(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 8, MaxWait: time.Minute, QueueCap: 2, ResultTTL: time.Minute}, gen)

	_, err := p.Submit("a", backend.GenerationConfig{}, 0)
	require.NoError(t, err)
	_, err = p.Submit("b", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	_, err = p.Submit("c", backend.GenerationConfig{}, 0)
	require.Error(t, err)
	assert.True(t, IsQueueFull(err))
	assert.Equal(t, 2, p.Depth())
}

func TestGeneratorErrorBecomesFailedResult(t *testing.T) {
	gen := &fakeGen{err: errors.New("no model loaded")}
	p := newTestProcessor(t, Config{MaxBatchSize: 4, MaxWait: 5 * time.Millisecond, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("orphan", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	res, err := p.GetResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Equal(t, "no model loaded", res.Err.Error())
	assert.Empty(t, res.Text)
}

func TestDeadlineFailsOneMemberNotSiblings(t *testing.T) {
	gen := &fakeGen{delay: 150 * time.Millisecond}
	p := newTestProcessor(t, Config{MaxBatchSize: 2, MaxWait: time.Minute, ResultTTL: time.Minute}, gen)

	tight, err := p.SubmitWithDeadline("tight", backend.GenerationConfig{}, 0, time.Now().Add(40*time.Millisecond))
	require.NoError(t, err)
	slack, err := p.Submit("slack", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	res, err := p.GetResult(context.Background(), tight, 2*time.Second)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))

	res, err = p.GetResult(context.Background(), slack, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "echo: slack", res.Text)
}

func TestDynamicBatchSize(t *testing.T) {
	p := &Processor{cfg: Config{MaxBatchSize: 8, MemPerRequestMB: 512}.withDefaults()}

	assert.Equal(t, 8, p.DynamicBatchSize(0, 0), "unknown memory leaves size alone")
	assert.Equal(t, 8, p.DynamicBatchSize(8192, 0))
	assert.Equal(t, 4, p.DynamicBatchSize(2048, 0))
	assert.Equal(t, 2, p.DynamicBatchSize(2048, 2), "in-flight work reserves its share")
	assert.Equal(t, 1, p.DynamicBatchSize(300, 0), "never below one")

	p = &Processor{cfg: Config{MaxBatchSize: 8}.withDefaults()}
	assert.Equal(t, 8, p.DynamicBatchSize(300, 5), "shrink disabled without a per-request footprint")
}

func TestCloseFailsPendingAndRejectsNew(t *testing.T) {
	gen := &fakeGen{}
	p := New(Config{MaxBatchSize: 8, MaxWait: time.Minute, ResultTTL: time.Minute}, Deps{Generator: gen}, zerolog.Nop())

	id, err := p.Submit("stranded", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	res, err := p.GetResult(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.True(t, IsClosed(res.Err))

	_, err = p.Submit("late", backend.GenerationConfig{}, 0)
	require.Error(t, err)
	assert.True(t, IsClosed(err))

	require.NoError(t, p.Close(ctx))
}

func TestGetResultWaitTimeout(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 8, MaxWait: time.Minute, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("slow", backend.GenerationConfig{}, 0)
	require.NoError(t, err)

	_, err = p.GetResult(context.Background(), id, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsWaitTimeout(err))

	// Still pending and cancellable after the wait gave up.
	assert.True(t, p.Cancel(id))
}

func TestGetResultUnknownID(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{ResultTTL: time.Minute}, gen)

	_, err := p.GetResult(context.Background(), "never-submitted", 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsUnknownRequest(err))
}

func TestSweeperEvictsUnfetchedResults(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 1, MaxWait: 5 * time.Millisecond, ResultTTL: 40 * time.Millisecond}, gen)

	id, err := p.Submit("forgotten", backend.GenerationConfig{}, 0)
	require.NoError(t, err)
	waitForState(t, p, id, StateCompleted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := p.Status(id); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("unfetched result never evicted")
}

func TestStatusLifecycle(t *testing.T) {
	gen := &fakeGen{}
	p := newTestProcessor(t, Config{MaxBatchSize: 8, MaxWait: time.Minute, ResultTTL: time.Minute}, gen)

	id, err := p.Submit("tracked", backend.GenerationConfig{}, 3)
	require.NoError(t, err)

	state, ok := p.Status(id)
	require.True(t, ok)
	assert.Equal(t, StatePending, state)

	require.True(t, p.Cancel(id))
	state, ok = p.Status(id)
	require.True(t, ok)
	assert.Equal(t, StateCanceled, state)
}
