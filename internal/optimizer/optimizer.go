// Package optimizer ranks candidate backends for a model on the detected
// hardware and tunes the configuration the winner gets loaded with. Scores
// start from static per-backend reliability, are shaped by hardware and
// model-size fit, and are pulled toward observed history as usage grows.
package optimizer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/perfcache"
)

// Preference steers hardware selection for one load request.
type Preference string

const (
	PreferenceAuto Preference = "auto"
	PreferenceGPU  Preference = "gpu"
	PreferenceCPU  Preference = "cpu"
)

// ParsePreference maps a request string onto a Preference, defaulting to
// auto.
func ParsePreference(s string) Preference {
	switch Preference(strings.ToLower(strings.TrimSpace(s))) {
	case PreferenceGPU:
		return PreferenceGPU
	case PreferenceCPU:
		return PreferenceCPU
	default:
		return PreferenceAuto
	}
}

// Target picks the context/batch trade-off.
type Target string

const (
	TargetSpeed    Target = "speed"
	TargetBalanced Target = "balanced"
	TargetQuality  Target = "quality"
)

// ParseTarget maps a request string onto a Target, defaulting to balanced.
func ParseTarget(s string) Target {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetSpeed:
		return TargetSpeed
	case TargetQuality:
		return TargetQuality
	default:
		return TargetBalanced
	}
}

// Recommendation is the ranked outcome of one scoring pass. Transient;
// recomputed per load request and never persisted.
type Recommendation struct {
	// Backend is empty when no candidate was viable.
	Backend    string
	Config     backend.Config
	Confidence float64
	// Fallbacks holds every other candidate in descending score order.
	Fallbacks []string
	Reasoning []string
}

// Viable reports whether any backend could be recommended.
func (r *Recommendation) Viable() bool { return r.Backend != "" }

// Weights are the scoring tunables. The numbers are empirically tuned, not
// derived; they ship as configuration for exactly that reason.
type Weights struct {
	Base                  map[string]float64
	UnknownBase           float64
	GPUMismatchPenalty    float64
	CPUFallbackFactor     float64
	FormatMismatchPenalty float64

	FitAllVRAM  float64
	FitPartial  float64
	FitRAMOnly  float64
	FitTooLarge float64

	EmpiricalMaxTrust float64
	TrustSaturation   float64
	ThroughputNorm    float64
	Epsilon           float64
}

// DefaultWeights mirrors the shipped configuration defaults.
func DefaultWeights() Weights {
	return Weights{
		Base: map[string]float64{
			backend.NameLlamaCpp:    0.90,
			backend.NameLlamaServer: 0.85,
			backend.NameLlamaFile:   0.75,
		},
		UnknownBase:           0.30,
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
	}
}

// TargetProfile holds the context/batch defaults for one performance target.
type TargetProfile struct {
	ContextSize int
	BatchSize   int
}

// Tuning controls GPU layer fitting and context/batch selection.
type Tuning struct {
	VRAMSafetyMargin float64
	KVOverheadRatio  float64
	MaxThreads       int
	Targets          map[Target]TargetProfile
}

// DefaultTuning mirrors the shipped configuration defaults.
func DefaultTuning() Tuning {
	return Tuning{
		VRAMSafetyMargin: 0.90,
		KVOverheadRatio:  0.15,
		MaxThreads:       8,
		Targets: map[Target]TargetProfile{
			TargetSpeed:    {ContextSize: 2048, BatchSize: 512},
			TargetBalanced: {ContextSize: 4096, BatchSize: 256},
			TargetQuality:  {ContextSize: 8192, BatchSize: 128},
		},
	}
}

// Optimizer scores candidates against one registry and learns through one
// performance cache.
type Optimizer struct {
	reg     *backend.Registry
	cache   *perfcache.Cache
	weights Weights
	tuning  Tuning
	log     zerolog.Logger
}

func New(reg *backend.Registry, cache *perfcache.Cache, w Weights, t Tuning, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		reg:     reg,
		cache:   cache,
		weights: w,
		tuning:  t,
		log:     log.With().Str("component", "optimizer").Logger(),
	}
}

// Recommend ranks the available backends for the profiled model and returns
// the winner with a tuned config plus the rest as fallbacks in descending
// score order. With no candidates it returns a non-viable recommendation
// whose reasoning says what to install; it does not error.
func (o *Optimizer) Recommend(prof *modelfile.Profile, available []string, hw hardware.Info, pref Preference, target Target) *Recommendation {
	if len(available) == 0 {
		return &Recommendation{
			Reasoning: []string{
				"no inference backends are available on this host",
				"install llama-server, provide a llamafile, or rebuild with the llama tag",
			},
		}
	}

	fitMult, fitReason := o.fitMultiplier(prof, hw)
	cands := make([]candidate, 0, len(available))
	for _, name := range available {
		cands = append(cands, o.scoreCandidate(name, prof, hw, pref, fitMult))
	}
	o.rank(cands)

	best := cands[0]
	fallbacks := make([]string, 0, len(cands)-1)
	for _, c := range cands[1:] {
		fallbacks = append(fallbacks, c.name)
	}
	cfg := o.TuneConfig(best.name, prof, hw, pref, target)

	reasons := make([]string, 0, len(best.reasons)+3)
	reasons = append(reasons, fmt.Sprintf("model %s: %d MB %s, ~%d layers", prof.Name, prof.SizeMB, prof.Format, prof.LayerCount))
	reasons = append(reasons, fitReason)
	reasons = append(reasons, best.reasons...)
	reasons = append(reasons, layersReason(cfg, prof))

	rec := &Recommendation{
		Backend:    best.name,
		Config:     cfg,
		Confidence: clamp01(best.score),
		Fallbacks:  fallbacks,
		Reasoning:  reasons,
	}
	o.log.Debug().Str("backend", rec.Backend).Float64("confidence", rec.Confidence).
		Strs("fallbacks", rec.Fallbacks).Msg("recommendation computed")
	return rec
}

type candidate struct {
	name    string
	score   float64
	usage   uint64
	order   int
	reasons []string
}

func (o *Optimizer) scoreCandidate(name string, prof *modelfile.Profile, hw hardware.Info, pref Preference, fitMult float64) candidate {
	c := candidate{name: name, order: o.reg.Index(name)}

	base, known := o.weights.Base[name]
	if !known {
		base = o.weights.UnknownBase
	}
	c.reasons = append(c.reasons, fmt.Sprintf("%s: base score %.2f", name, base))

	capability, _ := o.reg.Capability(name)
	hwMult := 1.0
	wantGPU := pref != PreferenceCPU && hw.HasGPU()
	switch {
	case wantGPU && capability.SupportsVendor(hw.PrimaryVendor()):
		c.reasons = append(c.reasons, fmt.Sprintf("gpu acceleration available for %s", hw.PrimaryVendor()))
	case wantGPU && capability.CPU:
		hwMult = o.weights.CPUFallbackFactor
		c.reasons = append(c.reasons, fmt.Sprintf("no %s gpu support, would run on cpu", hw.PrimaryVendor()))
	case wantGPU:
		hwMult = o.weights.GPUMismatchPenalty
		c.reasons = append(c.reasons, fmt.Sprintf("no gpu support for vendor %s", hw.PrimaryVendor()))
	case capability.CPU:
		c.reasons = append(c.reasons, "cpu execution")
	default:
		hwMult = o.weights.GPUMismatchPenalty
		c.reasons = append(c.reasons, "backend cannot run cpu-only")
	}
	if !capability.SupportsFormat(prof.Format) {
		hwMult *= o.weights.FormatMismatchPenalty
		c.reasons = append(c.reasons, fmt.Sprintf("format %s not in declared support", prof.Format))
	}

	heuristic := base * hwMult * fitMult
	c.score = heuristic

	if o.cache != nil {
		if perf, ok := o.cache.GetPerformance(prof.Fingerprint, name); ok && perf.UsageCount > 0 {
			c.usage = perf.UsageCount
			trust := o.weights.EmpiricalMaxTrust * math.Min(1, float64(perf.UsageCount)/o.weights.TrustSaturation)
			emp := perf.SuccessRate()
			if perf.TokensPerSec > 0 {
				emp = 0.5*emp + 0.5*math.Min(1, perf.TokensPerSec/o.weights.ThroughputNorm)
			}
			c.score = (1-trust)*heuristic + trust*emp
			c.reasons = append(c.reasons, fmt.Sprintf("history: %d runs, %.0f%% load success, %.1f tok/s",
				perf.UsageCount, 100*perf.SuccessRate(), perf.TokensPerSec))
		}
	}
	return c
}

// fitMultiplier classifies how the model sits in this host's memory. The
// class is a property of model and host, so every candidate shares it; it
// shapes confidence and reasoning rather than relative ranking.
func (o *Optimizer) fitMultiplier(prof *modelfile.Profile, hw hardware.Info) (float64, string) {
	need := float64(prof.SizeMB) * (1 + o.tuning.KVOverheadRatio)
	margin := o.tuning.VRAMSafetyMargin
	switch {
	case hw.HasGPU() && need <= margin*float64(hw.FreeVRAMMB):
		return o.weights.FitAllVRAM, "model fits entirely in vram"
	case hw.HasGPU() && need <= margin*float64(hw.FreeVRAMMB+hw.AvailableRAMMB):
		return o.weights.FitPartial, "model fits with partial gpu offload"
	case need <= margin*float64(hw.AvailableRAMMB):
		return o.weights.FitRAMOnly, "model fits in system ram only"
	default:
		return o.weights.FitTooLarge, "model exceeds usable memory"
	}
}

// rank sorts candidates best-first: score beyond epsilon, then usage count,
// then registration order.
func (o *Optimizer) rank(cands []candidate) {
	eps := o.weights.Epsilon
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if diff := a.score - b.score; diff > eps || diff < -eps {
			return a.score > b.score
		}
		if a.usage != b.usage {
			return a.usage > b.usage
		}
		return a.order < b.order
	})
}

func layersReason(cfg backend.Config, prof *modelfile.Profile) string {
	switch {
	case cfg.GPULayers < 0:
		return fmt.Sprintf("offloading all %d layers to gpu", prof.LayerCount)
	case cfg.GPULayers == 0:
		return "running cpu-only (0 gpu layers)"
	default:
		return fmt.Sprintf("partial offload: %d of %d layers", cfg.GPULayers, prof.LayerCount)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
