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

// LlamaFile runs llamafile bundles: self-contained executables that embed
// both the runtime and the weights. With no launcher configured the model
// file itself is executed; with one, the launcher gets the model via -m.
type LlamaFile struct {
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

func NewLlamaFile(bin string, extraArgs []string, log zerolog.Logger) *LlamaFile {
	return &LlamaFile{
		bin:       bin,
		host:      "127.0.0.1",
		extraArgs: extraArgs,
		client:    newHTTPClient(),
		log:       log.With().Str("backend", NameLlamaFile).Logger(),
	}
}

func (l *LlamaFile) Name() string { return NameLlamaFile }

// IsAvailable checks the launcher when one is configured. In direct-exec
// mode there is nothing to probe until a model is chosen, so the backend
// reports available and Load classifies the real outcome.
func (l *LlamaFile) IsAvailable(ctx context.Context) bool {
	if l.bin == "" {
		return true
	}
	_, err := exec.LookPath(l.bin)
	return err == nil
}

func (l *LlamaFile) Load(ctx context.Context, path string, cfg Config) (*LoadResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bin := l.bin
	var args []string
	if bin == "" {
		if err := checkExecutable(path); err != nil {
			return nil, &Error{Kind: KindConfiguration, Backend: NameLlamaFile, Err: err}
		}
		bin = path
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, &Error{Kind: KindConfiguration, Backend: NameLlamaFile, Err: fmt.Errorf("model file: %w", err)}
		}
		args = append(args, "-m", path)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc != nil {
		l.proc.stop(stopGrace)
		l.proc = nil
	}

	port, err := pickFreePort(l.host)
	if err != nil {
		return nil, &Error{Kind: KindAvailability, Backend: NameLlamaFile, Err: fmt.Errorf("pick port: %w", err)}
	}
	baseURL := "http://" + net.JoinHostPort(l.host, strconv.Itoa(port))
	args = append(args,
		"--server", "--nobrowser",
		"--host", l.host,
		"--port", strconv.Itoa(port),
		"-ngl", strconv.Itoa(gpuLayersArg(cfg.GPULayers)),
	)
	if cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.ContextSize))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	args = append(args, l.extraArgs...)
	args = append(args, cfg.CustomArgs...)

	start := time.Now()
	proc, err := spawnServer(ctx, l.log, l.client, bin, args, baseURL, "/health")
	if err != nil {
		return nil, WrapError(NameLlamaFile, err)
	}
	l.proc, l.path, l.cfg = proc, path, cfg

	l.log.Info().Str("model", path).Int("pid", proc.pid()).
		Int("gpu_layers", cfg.GPULayers).Msg("llamafile up")
	return &LoadResult{
		Backend:      NameLlamaFile,
		HardwareUsed: cfg.HardwareUsed(),
		LoadTimeMS:   time.Since(start).Milliseconds(),
		MemoryMB:     fileSizeMB(path),
	}, nil
}

func (l *LlamaFile) Generate(ctx context.Context, prompt string, gen GenerationConfig) (string, error) {
	l.mu.Lock()
	proc := l.proc
	l.mu.Unlock()
	if proc == nil {
		return "", &Error{Kind: KindConfiguration, Backend: NameLlamaFile, Err: errors.New("no model loaded")}
	}
	text, err := completions(ctx, l.client, proc.baseURL, prompt, gen)
	if err != nil {
		return "", WrapError(NameLlamaFile, err)
	}
	return text, nil
}

func (l *LlamaFile) Unload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc == nil {
		return nil
	}
	l.log.Info().Int("pid", l.proc.pid()).Str("model", l.path).Msg("stopping llamafile")
	l.proc.stop(stopGrace)
	l.proc = nil
	l.path = ""
	return nil
}

func (l *LlamaFile) HardwareInfo(ctx context.Context) map[string]string {
	info := map[string]string{
		"backend": NameLlamaFile,
		"mode":    "subprocess",
	}
	if l.bin != "" {
		info["binary"] = l.bin
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

func checkExecutable(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if st.Mode()&0o111 == 0 {
		return fmt.Errorf("model file %s is not executable; chmod +x it or configure a llamafile launcher", path)
	}
	return nil
}
