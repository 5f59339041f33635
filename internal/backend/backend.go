// Package backend defines the capability contract every inference backend
// satisfies, the error taxonomy their failures are reclassified into, and the
// registry the optimizer selects from. Backends are black boxes: load,
// generate, unload, availability. What happens inside is their business.
package backend

import (
	"context"
	"fmt"
	"os"

	"inferd/internal/modelfile"
)

// Hardware tiers a load can end up on, derived from the GPU layer count.
const (
	HardwareGPU     = "gpu"
	HardwarePartial = "partial"
	HardwareCPU     = "cpu"
)

// Config is the effective configuration for one load. Immutable once handed
// to Load; changing it means unload and reload.
type Config struct {
	Backend string
	// GPULayers: -1 offloads all layers, 0 forces CPU, N offloads N layers.
	GPULayers   int
	ContextSize int
	BatchSize   int
	Threads     int
	CustomArgs  []string
}

// HardwareUsed maps the layer count to the tier it implies.
func (c Config) HardwareUsed() string {
	switch {
	case c.GPULayers < 0:
		return HardwareGPU
	case c.GPULayers == 0:
		return HardwareCPU
	default:
		return HardwarePartial
	}
}

// Validate rejects configurations no backend can honor.
func (c Config) Validate() error {
	if c.GPULayers < -1 {
		return &Error{Kind: KindConfiguration, Backend: c.Backend,
			Err: fmt.Errorf("gpu_layers must be >= -1, got %d", c.GPULayers)}
	}
	if c.ContextSize < 0 || c.BatchSize < 0 || c.Threads < 0 {
		return &Error{Kind: KindConfiguration, Backend: c.Backend,
			Err: fmt.Errorf("context_size, batch_size and threads must not be negative")}
	}
	return nil
}

// GenerationConfig carries sampling parameters for one generation call.
type GenerationConfig struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Seed          int64
	Stop          []string
}

// DefaultGenerationConfig returns the engine's sampling defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:     256,
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
	}
}

// withDefaults fills zero fields from the defaults.
func (g GenerationConfig) withDefaults() GenerationConfig {
	def := DefaultGenerationConfig()
	if g.MaxTokens <= 0 {
		g.MaxTokens = def.MaxTokens
	}
	if g.Temperature <= 0 {
		g.Temperature = def.Temperature
	}
	if g.TopP <= 0 {
		g.TopP = def.TopP
	}
	if g.TopK <= 0 {
		g.TopK = def.TopK
	}
	if g.RepeatPenalty <= 0 {
		g.RepeatPenalty = def.RepeatPenalty
	}
	return g
}

// LoadResult reports a successful load. Load returning a nil error is the
// success signal; failures come back as classified errors instead.
type LoadResult struct {
	Backend      string
	HardwareUsed string
	LoadTimeMS   int64
	MemoryMB     float64
}

// Backend is the capability interface every inference engine implements.
type Backend interface {
	Name() string
	// IsAvailable probes whether the backend can run on this host at all
	// (binary present, bindings compiled in). Cheap enough to call often.
	IsAvailable(ctx context.Context) bool
	// Load makes the model at path live under the given config. At most one
	// model is loaded per backend instance; loading again replaces it.
	Load(ctx context.Context, path string, cfg Config) (*LoadResult, error)
	// Generate produces a completion on the currently loaded model.
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
	// Unload releases the loaded model. Safe to call when nothing is loaded.
	Unload(ctx context.Context) error
	// HardwareInfo reports what the backend itself knows about its runtime,
	// distinct from the detector's probe.
	HardwareInfo(ctx context.Context) map[string]string
}

// Capability declares what a backend claims to support; the optimizer scores
// against it.
type Capability struct {
	Formats    []modelfile.Format
	GPUVendors []string
	CPU        bool
}

// SupportsFormat reports whether the capability covers the format. An empty
// format list means "any".
func (c Capability) SupportsFormat(f modelfile.Format) bool {
	if len(c.Formats) == 0 {
		return true
	}
	for _, have := range c.Formats {
		if have == f {
			return true
		}
	}
	// Unknown-format models are still worth trying.
	return f == modelfile.FormatUnknown
}

// SupportsVendor reports whether the backend has GPU acceleration for the
// vendor.
func (c Capability) SupportsVendor(vendor string) bool {
	for _, v := range c.GPUVendors {
		if v == vendor {
			return true
		}
	}
	return false
}

// fileSizeMB is the resident-memory estimate used when a backend cannot
// report real usage.
// TODO: sample RSS from /proc/<pid>/status for spawned backends instead.
func fileSizeMB(path string) float64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(st.Size()) / (1024 * 1024)
}
