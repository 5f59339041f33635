package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferd/internal/backend"
	"inferd/internal/events"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/optimizer"
	"inferd/internal/perfcache"
)

// scriptedBackend fails or succeeds on demand so tests can drive the
// fallback walk deterministically.
type scriptedBackend struct {
	name      string
	available bool

	mu        sync.Mutex
	loadErr   error
	unloadErr error
	genErr    error
	loads     int
	unloads   int
	// block stalls Load until closed; started is closed when Load enters.
	block   chan struct{}
	started chan struct{}
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) IsAvailable(context.Context) bool { return b.available }

func (b *scriptedBackend) Load(ctx context.Context, path string, cfg backend.Config) (*backend.LoadResult, error) {
	b.mu.Lock()
	b.loads++
	if b.started != nil {
		close(b.started)
		b.started = nil
	}
	block := b.block
	loadErr := b.loadErr
	b.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return &backend.LoadResult{Backend: b.name, HardwareUsed: "gpu", LoadTimeMS: 5, MemoryMB: 128}, nil
}

func (b *scriptedBackend) Generate(ctx context.Context, prompt string, gen backend.GenerationConfig) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.genErr != nil {
		return "", b.genErr
	}
	// Non-zero wall time so throughput comes out measurable.
	time.Sleep(time.Millisecond)
	return "ok: " + prompt, nil
}

func (b *scriptedBackend) Unload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unloads++
	return b.unloadErr
}

func (b *scriptedBackend) HardwareInfo(ctx context.Context) map[string]string {
	return map[string]string{"backend": b.name}
}

func (b *scriptedBackend) loadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

func (b *scriptedBackend) unloadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unloads
}

type harness struct {
	router   *Router
	reg      *backend.Registry
	cache    *perfcache.Cache
	pub      *events.Memory
	backends map[string]*scriptedBackend
}

// newHarness wires a router over scripted backends registered in the given
// order. Default score weights rank llamacpp > llamaserver > llamafile, so
// registering those names yields a known chain.
func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	log := zerolog.Nop()
	reg := backend.NewRegistry(log)
	backends := make(map[string]*scriptedBackend, len(names))
	for _, n := range names {
		b := &scriptedBackend{name: n, available: true}
		backends[n] = b
		require.NoError(t, reg.Register(b, backend.Capability{
			Formats:    []modelfile.Format{modelfile.FormatGGUF},
			GPUVendors: []string{"nvidia"},
			CPU:        true,
		}))
	}
	cache := perfcache.New(perfcache.Config{SaveDebounce: -1}, log)
	opt := optimizer.New(reg, cache, optimizer.DefaultWeights(), optimizer.DefaultTuning(), log)
	pub := events.NewMemory()
	r := NewRouter(Config{AttemptTimeout: 5 * time.Second, UnloadTimeout: time.Second}, Deps{
		Registry:  reg,
		Optimizer: opt,
		Cache:     cache,
		Events:    pub,
	}, log)
	r.hw = hardware.Info{
		GPUCount:       1,
		GPUs:           []hardware.GPUDevice{{Name: "RTX 4090", Vendor: "nvidia", VRAMMB: 24576, FreeVRAMMB: 20000}},
		TotalVRAMMB:    24576,
		FreeVRAMMB:     20000,
		CPUCores:       16,
		TotalRAMMB:     64000,
		AvailableRAMMB: 48000,
		DetectedAt:     time.Now(),
	}
	return &harness{router: r, reg: reg, cache: cache, pub: pub, backends: backends}
}

func writeModelFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := append([]byte("GGUF"), 3, 0, 0, 0)
	data = append(data, []byte("weights")...)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// requireOrder asserts the listed names appear in got in order, other
// entries in between are fine.
func requireOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	i := 0
	for _, n := range got {
		if i < len(want) && n == want[i] {
			i++
		}
	}
	require.Equal(t, len(want), i, "want %v in order, got %v", want, got)
}

func TestLoadModelPicksTopBackend(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer, backend.NameLlamaFile)
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	sess, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)
	assert.Equal(t, backend.NameLlamaCpp, sess.Backend)
	assert.Empty(t, sess.FallbacksUsed)
	assert.Equal(t, -1, sess.Config.GPULayers)
	assert.Equal(t, "tiny-7b-q4_k_m", sess.ModelName)
	assert.Greater(t, sess.Confidence, 0.0)

	cur, ok := h.router.Current()
	require.True(t, ok)
	assert.Same(t, sess, cur)

	perf, ok := h.cache.GetPerformance(sess.Fingerprint(), backend.NameLlamaCpp)
	require.True(t, ok)
	assert.Equal(t, 1.0, perf.SuccessRate())

	requireOrder(t, h.pub.Names(), events.LoadingStarted, events.BackendSelected, events.ModelLoaded)
}

func TestLoadModelWalksFallbackChain(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer, backend.NameLlamaFile)
	h.backends[backend.NameLlamaCpp].loadErr = errors.New("cuda error: out of memory")
	h.backends[backend.NameLlamaServer].loadErr = errors.New("exec: \"llama-server\": executable file not found in $PATH")
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	sess, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)
	assert.Equal(t, backend.NameLlamaFile, sess.Backend)
	assert.Equal(t, []string{backend.NameLlamaCpp, backend.NameLlamaServer}, sess.FallbacksUsed)

	// Failed attempts land in the cache so future scoring learns from them.
	perf, ok := h.cache.GetPerformance(sess.Fingerprint(), backend.NameLlamaCpp)
	require.True(t, ok)
	assert.Equal(t, 0.0, perf.SuccessRate())

	stats := h.router.Statistics()
	assert.Equal(t, int64(1), stats.LoadsTotal)
	assert.Equal(t, int64(2), stats.FallbacksTotal)

	requireOrder(t, h.pub.Names(),
		events.LoadingStarted, events.BackendSelected,
		events.LoadingFailed, events.Fallback,
		events.LoadingFailed, events.Fallback,
		events.ModelLoaded)
}

func TestLoadModelExhaustedCollectsAttempts(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer, backend.NameLlamaFile)
	h.backends[backend.NameLlamaCpp].loadErr = errors.New("cuda driver version is insufficient")
	h.backends[backend.NameLlamaServer].loadErr = errors.New("failed to allocate 4096 MB")
	h.backends[backend.NameLlamaFile].loadErr = errors.New("invalid value for --ctx-size")
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.Error(t, err)
	require.True(t, IsExhausted(err))

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Attempts, 3)
	assert.Equal(t, backend.KindHardware, ex.Attempts[0].Kind)
	assert.Equal(t, backend.KindMemory, ex.Attempts[1].Kind)
	assert.Equal(t, backend.KindConfiguration, ex.Attempts[2].Kind)
	assert.NotEmpty(t, ex.Hints)
	assert.Contains(t, err.Error(), "all 3 attempted backends failed")

	_, ok := h.router.Current()
	assert.False(t, ok)
}

func TestLoadModelNoBackendsAvailable(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	h.backends[backend.NameLlamaCpp].available = false
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.Error(t, err)
	require.True(t, IsExhausted(err))

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Empty(t, ex.Attempts)
	assert.Equal(t, "no backends available", err.Error())
	assert.NotEmpty(t, ex.Hints)
	assert.Zero(t, h.backends[backend.NameLlamaCpp].loadCount())
}

func TestLoadModelMissingPathKeepsSession(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	sess, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)

	_, err = h.router.LoadModel(context.Background(), filepath.Join(t.TempDir(), "nope.gguf"), optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	// A bad request must not tear down the working session.
	cur, ok := h.router.Current()
	require.True(t, ok)
	assert.Same(t, sess, cur)
	assert.Zero(t, h.backends[backend.NameLlamaCpp].unloadCount())
}

func TestLoadModelBusyRejected(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	b := h.backends[backend.NameLlamaCpp]
	b.block = make(chan struct{})
	b.started = make(chan struct{})
	started := b.started
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	}()
	<-started

	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.Error(t, err)
	assert.True(t, IsBusy(err))

	err = h.router.Unload(context.Background())
	require.Error(t, err)
	assert.True(t, IsBusy(err))

	close(b.block)
	<-done
}

func TestUnloadIdempotent(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	require.NoError(t, h.router.Unload(context.Background()))

	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")
	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)

	require.NoError(t, h.router.Unload(context.Background()))
	assert.Equal(t, 1, h.backends[backend.NameLlamaCpp].unloadCount())
	_, ok := h.router.Current()
	assert.False(t, ok)

	require.NoError(t, h.router.Unload(context.Background()))
	assert.Equal(t, 1, h.backends[backend.NameLlamaCpp].unloadCount())
}

func TestUnloadToleratesBackendError(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	h.backends[backend.NameLlamaCpp].unloadErr = errors.New("socket already closed")
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)

	require.NoError(t, h.router.Unload(context.Background()))
	_, ok := h.router.Current()
	assert.False(t, ok)
	requireOrder(t, h.pub.Names(), events.ModelLoaded, events.ModelUnloaded)
}

func TestSwitchBackendUnknown(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	_, err := h.router.SwitchBackend(context.Background(), "mlx", false)
	require.Error(t, err)
	assert.True(t, IsUnknownBackend(err))
}

func TestSwitchBackendPinsAndReloads(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer, backend.NameLlamaFile)
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	sess, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)
	require.Equal(t, backend.NameLlamaCpp, sess.Backend)

	sess, err = h.router.SwitchBackend(context.Background(), backend.NameLlamaFile, true)
	require.NoError(t, err)
	assert.Equal(t, backend.NameLlamaFile, sess.Backend)
	assert.Equal(t, backend.NameLlamaFile, h.router.Override())
	assert.Equal(t, 1, h.backends[backend.NameLlamaCpp].unloadCount())

	// The pin outlives the reload: a fresh load still goes to the pinned
	// backend even though it scores lowest.
	sess, err = h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)
	assert.Equal(t, backend.NameLlamaFile, sess.Backend)

	_, err = h.router.SwitchBackend(context.Background(), "auto", false)
	require.NoError(t, err)
	assert.Empty(t, h.router.Override())
	requireOrder(t, h.pub.Names(), events.ModelLoaded, events.BackendSwitched, events.ModelLoaded)
}

func TestSwitchBackendWithoutSessionJustPins(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer)
	sess, err := h.router.SwitchBackend(context.Background(), backend.NameLlamaServer, true)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, backend.NameLlamaServer, h.router.Override())
	assert.Zero(t, h.backends[backend.NameLlamaServer].loadCount())
}

func TestRecommendWithoutLoading(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp, backend.NameLlamaServer)
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	rec, prof, err := h.router.Recommend(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)
	require.True(t, rec.Viable())
	assert.Equal(t, backend.NameLlamaCpp, rec.Backend)
	assert.Equal(t, []string{backend.NameLlamaServer}, rec.Fallbacks)
	assert.NotEmpty(t, prof.Fingerprint)

	// Scoring alone never touches a backend or the session.
	assert.Zero(t, h.backends[backend.NameLlamaCpp].loadCount())
	_, ok := h.router.Current()
	assert.False(t, ok)

	_, _, err = h.router.Recommend(context.Background(), filepath.Join(t.TempDir(), "missing.gguf"), optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGenerateWithoutModel(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	_, err := h.router.Generate(context.Background(), "hello", backend.GenerationConfig{})
	require.Error(t, err)
	assert.True(t, IsNoModel(err))
}

func TestGenerateRecordsThroughput(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	sess, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)

	text, err := h.router.Generate(context.Background(), "hello", backend.GenerationConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ok: hello", text)

	perf, ok := h.cache.GetPerformance(sess.Fingerprint(), backend.NameLlamaCpp)
	require.True(t, ok)
	assert.Greater(t, perf.TokensPerSec, 0.0)
}

func TestGenerateWrapsBackendError(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	h.backends[backend.NameLlamaCpp].genErr = errors.New("connection reset by peer")
	path := writeModelFile(t, "tiny-7b-q4_k_m.gguf")

	_, err := h.router.LoadModel(context.Background(), path, optimizer.PreferenceAuto, optimizer.TargetBalanced)
	require.NoError(t, err)

	_, err = h.router.Generate(context.Background(), "hello", backend.GenerationConfig{})
	require.Error(t, err)
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.NameLlamaCpp, be.Backend)
}

func TestPromote(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, promote([]string{"a", "b", "c"}, ""))
	assert.Equal(t, []string{"a", "b", "c"}, promote([]string{"a", "b", "c"}, "a"))
	assert.Equal(t, []string{"b", "a", "c"}, promote([]string{"a", "b", "c"}, "b"))
	assert.Equal(t, []string{"c", "a", "b"}, promote([]string{"a", "b", "c"}, "c"))
	assert.Equal(t, []string{"x", "a", "b"}, promote([]string{"a", "b"}, "x"))
}

func TestStatisticsUptime(t *testing.T) {
	h := newHarness(t, backend.NameLlamaCpp)
	stats := h.router.Statistics()
	assert.Zero(t, stats.LoadsTotal)
	assert.Zero(t, stats.FallbacksTotal)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, int64(0))
	assert.NotNil(t, stats.Backends)
}
