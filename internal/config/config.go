package config

import (
	"fmt"
	"time"
)

// Config holds runtime parameters for the engine and its HTTP surface.
// Zero values mean "unspecified"; Load starts from Default so a config file
// only needs to mention the fields it overrides. Durations are plain
// millisecond integers so the same struct loads from YAML, JSON and TOML.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CachePath string `json:"cache_path" yaml:"cache_path" toml:"cache_path"`

	Log       Log       `json:"log" yaml:"log" toml:"log"`
	Detection Detection `json:"detection" yaml:"detection" toml:"detection"`
	Scoring   Scoring   `json:"scoring" yaml:"scoring" toml:"scoring"`
	Tuning    Tuning    `json:"tuning" yaml:"tuning" toml:"tuning"`
	Router    Router    `json:"router" yaml:"router" toml:"router"`
	Batch     Batch     `json:"batch" yaml:"batch" toml:"batch"`
	Backends  Backends  `json:"backends" yaml:"backends" toml:"backends"`
}

// Log configures console level and optional rotating file output.
type Log struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Dir        string `json:"dir" yaml:"dir" toml:"dir"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// Detection bounds hardware probes.
type Detection struct {
	ProbeTimeoutMS int `json:"probe_timeout_ms" yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`
}

// ProbeTimeout returns the per-probe bound as a duration.
func (d Detection) ProbeTimeout() time.Duration {
	return time.Duration(d.ProbeTimeoutMS) * time.Millisecond
}

// Scoring tunes backend selection. The weights are configuration on purpose:
// they are empirically tuned, not derived.
type Scoring struct {
	// BaseScores maps backend name to its static reliability score.
	BaseScores map[string]float64 `json:"base_scores" yaml:"base_scores" toml:"base_scores"`
	// UnknownBaseScore applies to backends absent from BaseScores. Low but
	// nonzero so an unknown backend is still tried when nothing else works.
	UnknownBaseScore float64 `json:"unknown_base_score" yaml:"unknown_base_score" toml:"unknown_base_score"`
	// GPUMismatchPenalty multiplies the score of a backend that cannot use
	// the GPU when the caller asked for GPU execution.
	GPUMismatchPenalty float64 `json:"gpu_mismatch_penalty" yaml:"gpu_mismatch_penalty" toml:"gpu_mismatch_penalty"`
	// CPUFallbackFactor multiplies GPU-capable backends when the caller
	// forces CPU execution.
	CPUFallbackFactor float64 `json:"cpu_fallback_factor" yaml:"cpu_fallback_factor" toml:"cpu_fallback_factor"`
	// FormatMismatchPenalty multiplies backends whose registered formats do
	// not include the model's; low so they rank last but are still tried.
	FormatMismatchPenalty float64 `json:"format_mismatch_penalty" yaml:"format_mismatch_penalty" toml:"format_mismatch_penalty"`

	// Model-size fit multipliers.
	FitAllVRAM  float64 `json:"fit_all_vram" yaml:"fit_all_vram" toml:"fit_all_vram"`
	FitPartial  float64 `json:"fit_partial" yaml:"fit_partial" toml:"fit_partial"`
	FitRAMOnly  float64 `json:"fit_ram_only" yaml:"fit_ram_only" toml:"fit_ram_only"`
	FitTooLarge float64 `json:"fit_too_large" yaml:"fit_too_large" toml:"fit_too_large"`

	// EmpiricalMaxTrust caps how much observed history can displace the
	// static score; TrustSaturation is the usage count at which that cap is
	// reached.
	EmpiricalMaxTrust float64 `json:"empirical_max_trust" yaml:"empirical_max_trust" toml:"empirical_max_trust"`
	TrustSaturation   uint64  `json:"trust_saturation" yaml:"trust_saturation" toml:"trust_saturation"`
	// ThroughputNorm is the tokens/s treated as a perfect speed signal.
	ThroughputNorm float64 `json:"throughput_norm" yaml:"throughput_norm" toml:"throughput_norm"`
	// Epsilon is the score gap under which two candidates count as tied.
	Epsilon float64 `json:"epsilon" yaml:"epsilon" toml:"epsilon"`
}

// Tuning controls GPU layer fitting and context/batch defaults.
type Tuning struct {
	// VRAMSafetyMargin is the usable fraction of detected VRAM.
	VRAMSafetyMargin float64 `json:"vram_safety_margin" yaml:"vram_safety_margin" toml:"vram_safety_margin"`
	// KVOverheadRatio estimates KV-cache and scratch memory as a fraction of
	// model size.
	KVOverheadRatio float64 `json:"kv_overhead_ratio" yaml:"kv_overhead_ratio" toml:"kv_overhead_ratio"`
	// EMAAlpha weights the newest performance sample in rolling averages.
	EMAAlpha float64 `json:"ema_alpha" yaml:"ema_alpha" toml:"ema_alpha"`
	// MaxThreads caps the worker thread count handed to backends.
	MaxThreads int `json:"max_threads" yaml:"max_threads" toml:"max_threads"`

	Targets map[string]Target `json:"targets" yaml:"targets" toml:"targets"`
}

// Target holds per-performance-target context/batch defaults.
type Target struct {
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	BatchSize   int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
}

// Router bounds load and unload attempts.
type Router struct {
	// AttemptTimeoutMS bounds one backend's load attempt before the fallback
	// chain advances.
	AttemptTimeoutMS int `json:"attempt_timeout_ms" yaml:"attempt_timeout_ms" toml:"attempt_timeout_ms"`
	UnloadTimeoutMS  int `json:"unload_timeout_ms" yaml:"unload_timeout_ms" toml:"unload_timeout_ms"`
}

// AttemptTimeout returns the per-attempt bound as a duration.
func (r Router) AttemptTimeout() time.Duration {
	return time.Duration(r.AttemptTimeoutMS) * time.Millisecond
}

// UnloadTimeout returns the unload bound as a duration.
func (r Router) UnloadTimeout() time.Duration {
	return time.Duration(r.UnloadTimeoutMS) * time.Millisecond
}

// Batch controls the generation scheduler.
type Batch struct {
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size" toml:"max_batch_size"`
	MaxWaitMS    int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	QueueCap     int `json:"queue_cap" yaml:"queue_cap" toml:"queue_cap"`
	// MemPerRequestMB is the memory footprint assumed per in-flight request
	// when shrinking batches under pressure.
	MemPerRequestMB  int `json:"mem_per_request_mb" yaml:"mem_per_request_mb" toml:"mem_per_request_mb"`
	RequestTimeoutMS int `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	ResultTTLMS      int `json:"result_ttl_ms" yaml:"result_ttl_ms" toml:"result_ttl_ms"`
}

// MaxWait returns the batch formation window as a duration.
func (b Batch) MaxWait() time.Duration {
	return time.Duration(b.MaxWaitMS) * time.Millisecond
}

// RequestTimeout returns the default per-request deadline as a duration.
func (b Batch) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutMS) * time.Millisecond
}

// ResultTTL returns the result retention window as a duration.
func (b Batch) ResultTTL() time.Duration {
	return time.Duration(b.ResultTTLMS) * time.Millisecond
}

// Backends selects and locates the concrete backends.
type Backends struct {
	// Order is the registration order; it doubles as the deterministic
	// tie-break of last resort during scoring.
	Order    []string `json:"order" yaml:"order" toml:"order"`
	Disabled []string `json:"disabled" yaml:"disabled" toml:"disabled"`
	// ServerBin is the llama-server executable used by the llamaserver
	// backend.
	ServerBin string `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	// LlamafileBin runs .llamafile models when the model file itself is not
	// executable.
	LlamafileBin string `json:"llamafile_bin" yaml:"llamafile_bin" toml:"llamafile_bin"`
	// ExtraArgs appends backend-specific command line arguments.
	ExtraArgs map[string][]string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
}

// Default returns the engine defaults. Load overlays a config file on top.
func Default() Config {
	return Config{
		Addr:      ":8090",
		ModelsDir: "models",
		CachePath: "performance_cache.json",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Detection: Detection{ProbeTimeoutMS: 5000},
		Scoring: Scoring{
			BaseScores: map[string]float64{
				"llamacpp":    0.90,
				"llamaserver": 0.85,
				"llamafile":   0.75,
			},
			UnknownBaseScore:      0.30,
			GPUMismatchPenalty:    0.30,
			CPUFallbackFactor:     0.70,
			FormatMismatchPenalty: 0.10,
			FitAllVRAM:            1.20,
			FitPartial:            1.00,
			FitRAMOnly:            0.70,
			FitTooLarge:           0.20,
			EmpiricalMaxTrust:     0.50,
			TrustSaturation:       10,
			ThroughputNorm:        60,
			Epsilon:               0.01,
		},
		Tuning: Tuning{
			VRAMSafetyMargin: 0.90,
			KVOverheadRatio:  0.15,
			EMAAlpha:         0.30,
			MaxThreads:       8,
			Targets: map[string]Target{
				"speed":    {ContextSize: 2048, BatchSize: 512},
				"balanced": {ContextSize: 4096, BatchSize: 256},
				"quality":  {ContextSize: 8192, BatchSize: 128},
			},
		},
		Router: Router{
			AttemptTimeoutMS: 120_000,
			UnloadTimeoutMS:  30_000,
		},
		Batch: Batch{
			MaxBatchSize:     8,
			MaxWaitMS:        200,
			QueueCap:         128,
			MemPerRequestMB:  512,
			RequestTimeoutMS: 120_000,
			ResultTTLMS:      300_000,
		},
		Backends: Backends{
			Order:     []string{"llamacpp", "llamaserver", "llamafile"},
			ServerBin: "llama-server",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Scoring.UnknownBaseScore <= 0 {
		return fmt.Errorf("scoring.unknown_base_score must be > 0")
	}
	for name, s := range c.Scoring.BaseScores {
		if s <= 0 {
			return fmt.Errorf("scoring.base_scores[%s] must be > 0", name)
		}
	}
	if c.Scoring.Epsilon < 0 {
		return fmt.Errorf("scoring.epsilon must be >= 0")
	}
	if p := c.Scoring.FormatMismatchPenalty; p <= 0 || p > 1 {
		return fmt.Errorf("scoring.format_mismatch_penalty must be in (0,1], got %v", p)
	}
	if m := c.Tuning.VRAMSafetyMargin; m <= 0 || m > 1 {
		return fmt.Errorf("tuning.vram_safety_margin must be in (0,1], got %v", m)
	}
	if r := c.Tuning.KVOverheadRatio; r < 0 || r >= 1 {
		return fmt.Errorf("tuning.kv_overhead_ratio must be in [0,1), got %v", r)
	}
	if a := c.Tuning.EMAAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("tuning.ema_alpha must be in (0,1], got %v", a)
	}
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch.max_batch_size must be >= 1")
	}
	if c.Batch.QueueCap < 1 {
		return fmt.Errorf("batch.queue_cap must be >= 1")
	}
	if c.Batch.MaxWaitMS <= 0 {
		return fmt.Errorf("batch.max_wait_ms must be > 0")
	}
	if c.Router.AttemptTimeoutMS <= 0 {
		return fmt.Errorf("router.attempt_timeout_ms must be > 0")
	}
	if len(c.Backends.Order) == 0 {
		return fmt.Errorf("backends.order must name at least one backend")
	}
	for name, t := range c.Tuning.Targets {
		if t.ContextSize < 1 || t.BatchSize < 1 {
			return fmt.Errorf("tuning.targets[%s] must have positive context_size and batch_size", name)
		}
	}
	return nil
}
