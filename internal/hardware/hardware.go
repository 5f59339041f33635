// Package hardware probes the host machine: CPU cores, system RAM, GPU
// count/vendor/VRAM. Detection is a pure query with bounded probes; it
// degrades to a CPU-only snapshot instead of failing.
package hardware

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// GPU vendors reported by detection.
const (
	VendorNVIDIA  = "nvidia"
	VendorAMD     = "amd"
	VendorIntel   = "intel"
	VendorApple   = "apple"
	VendorUnknown = "unknown"
)

// GPUDevice describes one detected GPU.
type GPUDevice struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	Vendor            string `json:"vendor"`
	VRAMMB            int    `json:"vram_mb"`
	FreeVRAMMB        int    `json:"free_vram_mb"`
	DriverVersion     string `json:"driver_version,omitempty"`
	ComputeCapability string `json:"compute_capability,omitempty"`
}

// Info is an immutable snapshot of the host hardware. Re-detection replaces
// the snapshot wholesale; nothing mutates an Info after Detect returns it.
type Info struct {
	GPUCount       int         `json:"gpu_count"`
	GPUs           []GPUDevice `json:"gpus,omitempty"`
	TotalVRAMMB    int         `json:"total_vram_mb"`
	FreeVRAMMB     int         `json:"free_vram_mb"`
	CPUCores       int         `json:"cpu_cores"`
	TotalRAMMB     int         `json:"total_ram_mb"`
	AvailableRAMMB int         `json:"available_ram_mb"`
	// RecommendedBackend is a hint derived from the detected vendor; the
	// optimizer makes the actual decision.
	RecommendedBackend string    `json:"recommended_backend"`
	DetectedAt         time.Time `json:"detected_at"`
}

// HasGPU reports whether any GPU with usable VRAM was found.
func (i Info) HasGPU() bool {
	return i.GPUCount > 0 && i.TotalVRAMMB > 0
}

// PrimaryVendor returns the vendor of the first detected GPU, or empty.
func (i Info) PrimaryVendor() string {
	if len(i.GPUs) == 0 {
		return ""
	}
	return i.GPUs[0].Vendor
}

type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// Config bounds the detector's probes.
type Config struct {
	// ProbeTimeout caps each external probe (nvidia-smi, rocm-smi, lspci,
	// sysctl). Defaults to 5s.
	ProbeTimeout time.Duration
}

// Detector produces Info snapshots. Safe for concurrent use.
type Detector struct {
	timeout time.Duration
	log     zerolog.Logger

	// Seams for tests.
	run      runFunc
	readFile func(string) ([]byte, error)
	goos     string
	numCPU   func() int
}

// New returns a Detector with the given probe bounds.
func New(cfg Config, log zerolog.Logger) *Detector {
	t := cfg.ProbeTimeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return &Detector{
		timeout:  t,
		log:      log,
		run:      runCommand,
		readFile: os.ReadFile,
		goos:     runtime.GOOS,
		numCPU:   runtime.NumCPU,
	}
}

// Detect probes the host and returns a snapshot. It never returns an error:
// a failed GPU probe yields GPUCount=0 and a warning log, a failed RAM probe
// yields zero totals. Detection is idempotent and side-effect-free.
func (d *Detector) Detect(ctx context.Context) Info {
	info := Info{
		CPUCores:   d.numCPU(),
		DetectedAt: time.Now(),
	}
	info.TotalRAMMB, info.AvailableRAMMB = d.detectRAM(ctx)
	info.GPUs = d.detectGPUs(ctx, info.TotalRAMMB)
	info.GPUCount = len(info.GPUs)
	for _, g := range info.GPUs {
		info.TotalVRAMMB += g.VRAMMB
		info.FreeVRAMMB += g.FreeVRAMMB
	}
	info.RecommendedBackend = recommendBackend(info)
	d.log.Debug().
		Int("gpus", info.GPUCount).
		Int("total_vram_mb", info.TotalVRAMMB).
		Int("cpu_cores", info.CPUCores).
		Int("total_ram_mb", info.TotalRAMMB).
		Str("hint", info.RecommendedBackend).
		Msg("hardware detected")
	return info
}

// AvailableRAMMB reads currently available system memory without running
// the GPU probes. Cheap enough to call per batch formation.
func (d *Detector) AvailableRAMMB(ctx context.Context) int {
	_, available := d.detectRAM(ctx)
	return available
}

// probeCtx bounds one external probe.
func (d *Detector) probeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

func recommendBackend(info Info) string {
	for _, g := range info.GPUs {
		switch g.Vendor {
		case VendorNVIDIA, VendorAMD, VendorApple:
			return "llamacpp"
		}
	}
	// CPU-only hosts get the portable single-binary backend as the hint.
	return "llamafile"
}
