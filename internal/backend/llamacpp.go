//go:build llama

package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// LlamaCpp runs models in-process through the llama.cpp bindings. Compiled
// only under the llama tag; the default build gets the stub instead.
type LlamaCpp struct {
	log zerolog.Logger

	mu    sync.Mutex
	model *llama.LLama
	path  string
	cfg   Config
}

func NewLlamaCpp(log zerolog.Logger) *LlamaCpp {
	return &LlamaCpp{log: log.With().Str("backend", NameLlamaCpp).Logger()}
}

func (l *LlamaCpp) Name() string { return NameLlamaCpp }

func (l *LlamaCpp) IsAvailable(ctx context.Context) bool { return true }

func (l *LlamaCpp) Load(ctx context.Context, path string, cfg Config) (*LoadResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Kind: KindConfiguration, Backend: NameLlamaCpp, Err: fmt.Errorf("model file: %w", err)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}

	mo := []llama.ModelOption{
		llama.SetGPULayers(gpuLayersArg(cfg.GPULayers)),
	}
	if cfg.ContextSize > 0 {
		mo = append(mo, llama.SetContext(cfg.ContextSize))
	}
	if cfg.BatchSize > 0 {
		mo = append(mo, llama.SetNBatch(cfg.BatchSize))
	}

	start := time.Now()
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, WrapError(NameLlamaCpp, err)
	}
	l.model, l.path, l.cfg = m, path, cfg

	l.log.Info().Str("model", path).Int("gpu_layers", cfg.GPULayers).Msg("llama.cpp model loaded")
	return &LoadResult{
		Backend:      NameLlamaCpp,
		HardwareUsed: cfg.HardwareUsed(),
		LoadTimeMS:   time.Since(start).Milliseconds(),
		MemoryMB:     fileSizeMB(path),
	}, nil
}

// Generate holds the backend lock for the whole prediction: the bindings
// share one context and are not safe for concurrent calls.
func (l *LlamaCpp) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return "", &Error{Kind: KindConfiguration, Backend: NameLlamaCpp, Err: errors.New("no model loaded")}
	}
	gen = gen.withDefaults()

	l.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	po := []llama.PredictOption{
		llama.SetTokens(gen.MaxTokens),
		llama.SetTemperature(float32(gen.Temperature)),
		llama.SetTopP(float32(gen.TopP)),
		llama.SetTopK(gen.TopK),
		llama.SetPenalty(float32(gen.RepeatPenalty)),
	}
	if l.cfg.Threads > 0 {
		po = append(po, llama.SetThreads(l.cfg.Threads))
	}
	if gen.Seed != 0 {
		po = append(po, llama.SetSeed(int(gen.Seed)))
	}
	if len(gen.Stop) > 0 {
		po = append(po, llama.SetStopWords(gen.Stop...))
	}

	text, err := l.model.Predict(prompt, po...)
	if ctx.Err() != nil {
		return text, WrapError(NameLlamaCpp, ctx.Err())
	}
	if err != nil {
		return "", WrapError(NameLlamaCpp, err)
	}
	return text, nil
}

func (l *LlamaCpp) Unload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
		l.path = ""
		l.log.Info().Msg("llama.cpp model freed")
	}
	return nil
}

func (l *LlamaCpp) HardwareInfo(ctx context.Context) map[string]string {
	info := map[string]string{
		"backend": NameLlamaCpp,
		"mode":    "cgo",
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		info["model"] = l.path
		info["gpu_layers"] = fmt.Sprintf("%d", l.cfg.GPULayers)
	}
	return info
}
