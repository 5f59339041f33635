package backend

import (
	"github.com/rs/zerolog"

	"inferd/internal/hardware"
	"inferd/internal/modelfile"
)

// Canonical backend names. Registration order elsewhere refers to these.
const (
	NameLlamaCpp    = "llamacpp"
	NameLlamaServer = "llamaserver"
	NameLlamaFile   = "llamafile"
)

// Options selects which concrete backends get built and how.
type Options struct {
	// Order lists backends to register, first to last. Empty means all
	// known backends in the default order.
	Order        []string
	ServerBin    string
	LlamafileBin string
	// ExtraArgs are appended to every spawn of the named backend.
	ExtraArgs map[string][]string
}

// BuildRegistry constructs the concrete backends and registers them in the
// requested order. Unknown names are skipped with a warning so a stale
// config does not take the engine down.
func BuildRegistry(opts Options, log zerolog.Logger) *Registry {
	reg := NewRegistry(log)
	order := opts.Order
	if len(order) == 0 {
		order = []string{NameLlamaCpp, NameLlamaServer, NameLlamaFile}
	}
	if !llamaBuilt {
		log.Debug().Msg("llama.cpp bindings not compiled in; llamacpp registers as unavailable")
	}
	for _, name := range order {
		switch name {
		case NameLlamaCpp:
			register(reg, log, NewLlamaCpp(log), Capability{
				Formats:    []modelfile.Format{modelfile.FormatGGUF, modelfile.FormatGGML},
				GPUVendors: []string{hardware.VendorNVIDIA, hardware.VendorAMD, hardware.VendorApple},
				CPU:        true,
			})
		case NameLlamaServer:
			register(reg, log, NewLlamaServer(opts.ServerBin, opts.ExtraArgs[NameLlamaServer], log), Capability{
				Formats:    []modelfile.Format{modelfile.FormatGGUF, modelfile.FormatGGML},
				GPUVendors: []string{hardware.VendorNVIDIA, hardware.VendorAMD, hardware.VendorApple},
				CPU:        true,
			})
		case NameLlamaFile:
			register(reg, log, NewLlamaFile(opts.LlamafileBin, opts.ExtraArgs[NameLlamaFile], log), Capability{
				Formats:    []modelfile.Format{modelfile.FormatGGUF, modelfile.FormatLlamafile},
				GPUVendors: []string{hardware.VendorNVIDIA, hardware.VendorApple},
				CPU:        true,
			})
		default:
			log.Warn().Str("backend", name).Msg("unknown backend in order, skipping")
		}
	}
	return reg
}

func register(reg *Registry, log zerolog.Logger, b Backend, capability Capability) {
	if err := reg.Register(b, capability); err != nil {
		log.Warn().Err(err).Str("backend", b.Name()).Msg("backend registration skipped")
	}
}
