package optimizer

import (
	"inferd/internal/backend"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/perfcache"
)

// OptimizeGPULayers computes how many layers fit in vramMB under the safety
// margin: -1 when the whole model fits, 0 when nothing usable does, else the
// layer count. The result is memoized per (model, backend, vram) so repeat
// loads skip the arithmetic.
func (o *Optimizer) OptimizeGPULayers(prof *modelfile.Profile, backendName string, vramMB int) int {
	if vramMB <= 0 {
		return 0
	}
	key := perfcache.LayersKey(prof.Fingerprint, backendName, vramMB)
	if o.cache != nil {
		if v, ok := o.cache.GetGPULayers(key); ok {
			return v
		}
	}
	n := o.computeGPULayers(prof, vramMB)
	if o.cache != nil {
		o.cache.PutGPULayers(key, n)
	}
	return n
}

func (o *Optimizer) computeGPULayers(prof *modelfile.Profile, vramMB int) int {
	size := float64(prof.SizeMB)
	// Weights plus the KV/scratch overhead must fit inside the margin.
	budget := o.tuning.VRAMSafetyMargin*float64(vramMB) - o.tuning.KVOverheadRatio*size
	if budget <= 0 {
		return 0
	}
	if size <= budget {
		return -1
	}
	layers := prof.LayerCount
	if layers <= 0 {
		layers = 32
	}
	perLayer := size / float64(layers)
	n := int(budget / perLayer)
	switch {
	case n <= 0:
		return 0
	case n >= layers:
		return -1
	default:
		return n
	}
}

// TuneConfig builds the load configuration for one backend: GPU layers from
// the fit computation (or 0 when CPU was asked for), context and batch from
// the performance target, both shrunk while the KV window would not fit the
// remaining memory.
func (o *Optimizer) TuneConfig(name string, prof *modelfile.Profile, hw hardware.Info, pref Preference, target Target) backend.Config {
	tp, ok := o.tuning.Targets[target]
	if !ok {
		if tp, ok = o.tuning.Targets[TargetBalanced]; !ok {
			tp = TargetProfile{ContextSize: 4096, BatchSize: 256}
		}
	}
	cfg := backend.Config{
		Backend:     name,
		ContextSize: tp.ContextSize,
		BatchSize:   tp.BatchSize,
		Threads:     o.threads(hw),
	}
	if pref == PreferenceCPU || !hw.HasGPU() {
		cfg.GPULayers = 0
	} else {
		cfg.GPULayers = o.OptimizeGPULayers(prof, name, hw.FreeVRAMMB)
	}

	margin := o.tuning.VRAMSafetyMargin
	budget := margin * float64(hw.AvailableRAMMB)
	if cfg.GPULayers != 0 {
		budget += margin * float64(hw.FreeVRAMMB)
	}
	headroom := budget - float64(prof.SizeMB)
	// KVOverheadRatio prices the default 4096-token window; scale from there.
	kvAtDefault := o.tuning.KVOverheadRatio * float64(prof.SizeMB)
	if kvAtDefault > 0 {
		for cfg.ContextSize > 512 && float64(cfg.ContextSize)/4096.0*kvAtDefault > headroom {
			cfg.ContextSize /= 2
			if cfg.BatchSize > 64 {
				cfg.BatchSize /= 2
			}
		}
	}
	return cfg
}

func (o *Optimizer) threads(hw hardware.Info) int {
	t := hw.CPUCores
	if o.tuning.MaxThreads > 0 && t > o.tuning.MaxThreads {
		t = o.tuning.MaxThreads
	}
	if t < 1 {
		t = 1
	}
	return t
}
