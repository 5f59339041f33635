package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LlamaServer drives an external llama-server binary over its OpenAI
// compatible HTTP API. Each load spawns a fresh process on a free local
// port; unload terminates it.
type LlamaServer struct {
	bin       string
	host      string
	extraArgs []string
	client    *http.Client
	log       zerolog.Logger

	mu   sync.Mutex
	proc *serverProc
	path string
	cfg  Config
}

func NewLlamaServer(bin string, extraArgs []string, log zerolog.Logger) *LlamaServer {
	if bin == "" {
		bin = "llama-server"
	}
	return &LlamaServer{
		bin:       bin,
		host:      "127.0.0.1",
		extraArgs: extraArgs,
		client:    newHTTPClient(),
		log:       log.With().Str("backend", NameLlamaServer).Logger(),
	}
}

func (l *LlamaServer) Name() string { return NameLlamaServer }

func (l *LlamaServer) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(l.bin)
	return err == nil
}

func (l *LlamaServer) Load(ctx context.Context, path string, cfg Config) (*LoadResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Kind: KindConfiguration, Backend: NameLlamaServer, Err: fmt.Errorf("model file: %w", err)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc != nil {
		l.proc.stop(stopGrace)
		l.proc = nil
	}

	port, err := pickFreePort(l.host)
	if err != nil {
		return nil, &Error{Kind: KindAvailability, Backend: NameLlamaServer, Err: fmt.Errorf("pick port: %w", err)}
	}
	baseURL := "http://" + net.JoinHostPort(l.host, strconv.Itoa(port))
	args := l.buildArgs(path, port, cfg)

	start := time.Now()
	proc, err := spawnServer(ctx, l.log, l.client, l.bin, args, baseURL, "/v1/models")
	if err != nil {
		return nil, WrapError(NameLlamaServer, err)
	}
	l.proc, l.path, l.cfg = proc, path, cfg

	l.log.Info().Str("model", path).Int("pid", proc.pid()).
		Int("gpu_layers", cfg.GPULayers).Msg("llama-server up")
	return &LoadResult{
		Backend:      NameLlamaServer,
		HardwareUsed: cfg.HardwareUsed(),
		LoadTimeMS:   time.Since(start).Milliseconds(),
		MemoryMB:     fileSizeMB(path),
	}, nil
}

func (l *LlamaServer) buildArgs(path string, port int, cfg Config) []string {
	args := []string{
		"-m", path,
		"--host", l.host,
		"--port", strconv.Itoa(port),
		"-ngl", strconv.Itoa(gpuLayersArg(cfg.GPULayers)),
	}
	if cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.ContextSize))
	}
	if cfg.BatchSize > 0 {
		args = append(args, "-b", strconv.Itoa(cfg.BatchSize))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	args = append(args, l.extraArgs...)
	args = append(args, cfg.CustomArgs...)
	return args
}

func (l *LlamaServer) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	if proc == nil {
		return "", &Error{Kind: KindConfiguration, Backend: NameLlamaServer, Err: errors.New("no model loaded")}
	}
	text, err := completions(ctx, l.client, proc.baseURL, prompt, gen)
	if err != nil {
		return "", WrapError(NameLlamaServer, err)
	}
	return text, nil
}

func (l *LlamaServer) Unload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc == nil {
		return nil
	}
	l.log.Info().Int("pid", l.proc.pid()).Str("model", l.path).Msg("stopping llama-server")
	l.proc.stop(stopGrace)
	l.proc = nil
	l.path = ""
	return nil
}

func (l *LlamaServer) HardwareInfo(ctx context.Context) map[string]string {
	info := map[string]string{
		"backend": NameLlamaServer,
		"mode":    "subprocess",
		"binary":  l.bin,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc != nil {
		info["url"] = l.proc.baseURL
		info["pid"] = strconv.Itoa(l.proc.pid())
		info["gpu_layers"] = strconv.Itoa(l.cfg.GPULayers)
	}
	return info
}

// gpuLayersArg translates the -1 "all layers" sentinel for binaries whose
// flag wants a concrete count.
func gpuLayersArg(n int) int {
	if n < 0 {
		return 999
	}
	return n
}
