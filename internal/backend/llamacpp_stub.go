//go:build !llama

package backend

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

// LlamaCpp stub for builds without the llama tag. Stays registered so
// status listings show why the in-process backend is unusable.
type LlamaCpp struct {
	log zerolog.Logger
}

func NewLlamaCpp(log zerolog.Logger) *LlamaCpp {
	return &LlamaCpp{log: log.With().Str("backend", NameLlamaCpp).Logger()}
}

func (l *LlamaCpp) Name() string { return NameLlamaCpp }

func (l *LlamaCpp) IsAvailable(ctx context.Context) bool { return false }

func (l *LlamaCpp) Load(ctx context.Context, path string, cfg Config) (*LoadResult, error) {
	return nil, errLlamaNotBuilt()
}

func (l *LlamaCpp) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	return "", errLlamaNotBuilt()
}

func (l *LlamaCpp) Unload(ctx context.Context) error { return nil }

func (l *LlamaCpp) HardwareInfo(ctx context.Context) map[string]string {
	return map[string]string{"backend": NameLlamaCpp, "mode": "stub"}
}

func errLlamaNotBuilt() *Error {
	return &Error{
		Kind:    KindAvailability,
		Backend: NameLlamaCpp,
		Err:     errors.New("llama.cpp bindings not built (missing 'llama' build tag)"),
	}
}
