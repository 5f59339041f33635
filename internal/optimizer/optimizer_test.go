package optimizer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferd/internal/backend"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/perfcache"
)

type stubBackend struct{ name string }

func (s stubBackend) Name() string                       { return s.name }
func (s stubBackend) IsAvailable(_ context.Context) bool { return true }
func (s stubBackend) Unload(_ context.Context) error     { return nil }

func (s stubBackend) Load(_ context.Context, _ string, cfg backend.Config) (*backend.LoadResult, error) {
	return &backend.LoadResult{Backend: s.name, HardwareUsed: cfg.HardwareUsed()}, nil
}

func (s stubBackend) Generate(_ context.Context, _ string, _ backend.GenerationConfig) (string, error) {
	return "", nil
}

func (s stubBackend) HardwareInfo(_ context.Context) map[string]string { return nil }

func newTestCache(t *testing.T) *perfcache.Cache {
	t.Helper()
	return perfcache.New(perfcache.Config{
		Path:         filepath.Join(t.TempDir(), "cache.json"),
		EMAAlpha:     0.3,
		SaveDebounce: -1,
	}, zerolog.Nop())
}

func newTestRegistry(t *testing.T, caps map[string]backend.Capability, order ...string) *backend.Registry {
	t.Helper()
	reg := backend.NewRegistry(zerolog.Nop())
	for _, name := range order {
		require.NoError(t, reg.Register(stubBackend{name: name}, caps[name]))
	}
	return reg
}

func nvidiaCaps() map[string]backend.Capability {
	c := backend.Capability{
		Formats:    []modelfile.Format{modelfile.FormatGGUF, modelfile.FormatGGML},
		GPUVendors: []string{hardware.VendorNVIDIA},
		CPU:        true,
	}
	return map[string]backend.Capability{
		backend.NameLlamaCpp:    c,
		backend.NameLlamaServer: c,
		backend.NameLlamaFile:   c,
	}
}

func nvidiaHW() hardware.Info {
	return hardware.Info{
		GPUCount:       1,
		GPUs:           []hardware.GPUDevice{{Vendor: hardware.VendorNVIDIA, VRAMMB: 24576, FreeVRAMMB: 20000}},
		TotalVRAMMB:    24576,
		FreeVRAMMB:     20000,
		CPUCores:       16,
		TotalRAMMB:     65536,
		AvailableRAMMB: 48000,
	}
}

func cpuHW() hardware.Info {
	return hardware.Info{CPUCores: 8, TotalRAMMB: 32000, AvailableRAMMB: 16000}
}

func testProfile() *modelfile.Profile {
	return &modelfile.Profile{
		Fingerprint: "fp-test",
		Name:        "llama-2-7b.Q4_K_M.gguf",
		Format:      modelfile.FormatGGUF,
		SizeMB:      4096,
		ParamsB:     7,
		Quant:       "Q4_K_M",
		Arch:        "llama",
		LayerCount:  32,
	}
}

func TestRecommendFallbacksCompleteAndOrdered(t *testing.T) {
	reg := newTestRegistry(t, nvidiaCaps(), backend.NameLlamaCpp, backend.NameLlamaServer, backend.NameLlamaFile)
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	rec := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	require.True(t, rec.Viable())
	assert.Equal(t, backend.NameLlamaCpp, rec.Backend)
	// Every other candidate, exactly once, best first.
	assert.Equal(t, []string{backend.NameLlamaServer, backend.NameLlamaFile}, rec.Fallbacks)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.LessOrEqual(t, rec.Confidence, 1.0)
	assert.NotEmpty(t, rec.Reasoning)

	// Small model on a big GPU offloads everything.
	assert.Equal(t, -1, rec.Config.GPULayers)
	assert.Equal(t, 4096, rec.Config.ContextSize)
	assert.Equal(t, 256, rec.Config.BatchSize)
	assert.Equal(t, 8, rec.Config.Threads)
}

func TestRecommendIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t, nvidiaCaps(), backend.NameLlamaCpp, backend.NameLlamaServer)
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	first := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	second := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, first.Backend, second.Backend)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Fallbacks, second.Fallbacks)
}

func TestRecommendCPUPreference(t *testing.T) {
	reg := newTestRegistry(t, nvidiaCaps(), backend.NameLlamaCpp, backend.NameLlamaServer)
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	rec := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceCPU, TargetBalanced)
	require.True(t, rec.Viable())
	assert.Equal(t, 0, rec.Config.GPULayers)
}

func TestRecommendNoCandidates(t *testing.T) {
	reg := newTestRegistry(t, nvidiaCaps())
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	rec := o.Recommend(testProfile(), nil, cpuHW(), PreferenceAuto, TargetBalanced)
	assert.False(t, rec.Viable())
	assert.Empty(t, rec.Backend)
	assert.Zero(t, rec.Confidence)
	assert.Empty(t, rec.Fallbacks)
	require.NotEmpty(t, rec.Reasoning)
	assert.Contains(t, rec.Reasoning[0], "no inference backends")
}

func TestRecommendPenalizesGPUMismatch(t *testing.T) {
	caps := nvidiaCaps()
	// llamaserver claims no nvidia support but can run on CPU.
	caps[backend.NameLlamaServer] = backend.Capability{
		Formats: []modelfile.Format{modelfile.FormatGGUF},
		CPU:     true,
	}
	reg := newTestRegistry(t, caps, backend.NameLlamaServer, backend.NameLlamaFile)
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	rec := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	// 0.85 * 0.70 < 0.75 * 1.0, so the gpu-capable backend wins despite the
	// lower base score.
	assert.Equal(t, backend.NameLlamaFile, rec.Backend)
	assert.Equal(t, []string{backend.NameLlamaServer}, rec.Fallbacks)
}

func TestRecommendLearnsFromHistory(t *testing.T) {
	cache := newTestCache(t)
	reg := newTestRegistry(t, nvidiaCaps(), backend.NameLlamaServer, backend.NameLlamaFile)
	o := New(reg, cache, DefaultWeights(), DefaultTuning(), zerolog.Nop())
	prof := testProfile()

	// Without history the higher base score wins.
	rec := o.Recommend(prof, reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, backend.NameLlamaServer, rec.Backend)

	// llamaserver keeps failing, llamafile runs fast and clean.
	for i := 0; i < 5; i++ {
		cache.RecordAttempt(prof.Fingerprint, backend.NameLlamaServer, perfcache.Sample{LoadAttempt: true, Success: false})
	}
	for i := 0; i < 10; i++ {
		cache.RecordAttempt(prof.Fingerprint, backend.NameLlamaFile, perfcache.Sample{LoadAttempt: true, Success: true, LoadTimeMS: 900})
	}
	cache.RecordThroughput(prof.Fingerprint, backend.NameLlamaFile, 120)

	rec = o.Recommend(prof, reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, backend.NameLlamaFile, rec.Backend)
	assert.Equal(t, []string{backend.NameLlamaServer}, rec.Fallbacks)
}

func TestRecommendTieBreaks(t *testing.T) {
	w := DefaultWeights()
	w.Base = map[string]float64{"alpha": 0.5, "beta": 0.5}
	w.Epsilon = 0.2

	caps := map[string]backend.Capability{
		"alpha": {CPU: true},
		"beta":  {CPU: true},
	}
	cache := newTestCache(t)
	reg := newTestRegistry(t, caps, "alpha", "beta")
	o := New(reg, cache, w, DefaultTuning(), zerolog.Nop())
	prof := testProfile()

	// Dead tie: registration order decides.
	rec := o.Recommend(prof, reg.Names(), cpuHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, "alpha", rec.Backend)

	// Still within epsilon, but beta is proven now.
	for i := 0; i < 5; i++ {
		cache.RecordAttempt(prof.Fingerprint, "beta", perfcache.Sample{LoadAttempt: true, Success: true})
	}
	rec = o.Recommend(prof, reg.Names(), cpuHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, "beta", rec.Backend)
}

func TestRecommendFormatMismatchRanksLast(t *testing.T) {
	caps := nvidiaCaps()
	caps[backend.NameLlamaCpp] = backend.Capability{
		Formats:    []modelfile.Format{modelfile.FormatSafetensors},
		GPUVendors: []string{hardware.VendorNVIDIA},
		CPU:        true,
	}
	reg := newTestRegistry(t, caps, backend.NameLlamaCpp, backend.NameLlamaServer)
	o := New(reg, newTestCache(t), DefaultWeights(), DefaultTuning(), zerolog.Nop())

	rec := o.Recommend(testProfile(), reg.Names(), nvidiaHW(), PreferenceAuto, TargetBalanced)
	assert.Equal(t, backend.NameLlamaServer, rec.Backend)
	// The mismatched backend is still in the chain, not dropped.
	assert.Equal(t, []string{backend.NameLlamaCpp}, rec.Fallbacks)
}

func TestParsePreference(t *testing.T) {
	assert.Equal(t, PreferenceGPU, ParsePreference("gpu"))
	assert.Equal(t, PreferenceCPU, ParsePreference(" CPU "))
	assert.Equal(t, PreferenceAuto, ParsePreference("auto"))
	assert.Equal(t, PreferenceAuto, ParsePreference(""))
	assert.Equal(t, PreferenceAuto, ParsePreference("turbo"))
}

func TestParseTarget(t *testing.T) {
	assert.Equal(t, TargetSpeed, ParseTarget("speed"))
	assert.Equal(t, TargetQuality, ParseTarget("Quality"))
	assert.Equal(t, TargetBalanced, ParseTarget(""))
	assert.Equal(t, TargetBalanced, ParseTarget("maximum"))
}
