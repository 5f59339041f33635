package backend

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultReadyWait  = 30 * time.Second
	readyPollInterval = 100 * time.Millisecond
	stopGrace         = 2 * time.Second
)

// serverProc is one spawned inference server. cmd.Wait runs exactly once, in
// the watcher goroutine; everyone else observes exit through waitCh.
type serverProc struct {
	cmd      *exec.Cmd
	baseURL  string
	waitCh   chan error
	stderr   *tailBuffer
	stopOnce sync.Once
}

func (p *serverProc) pid() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// stop terminates the process: SIGTERM, then SIGKILL after grace.
func (p *serverProc) stop(grace time.Duration) {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.stopOnce.Do(func() {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.waitCh:
		case <-time.After(grace):
			_ = p.cmd.Process.Kill()
			<-p.waitCh
		}
	})
}

// spawnServer starts bin with args and polls baseURL+readyPath until the
// server answers, the process dies, or the context deadline passes. The
// caller owns the returned process and must stop it.
func spawnServer(ctx context.Context, log zerolog.Logger, client *http.Client, bin string, args []string, baseURL, readyPath string) (*serverProc, error) {
	cmd := exec.Command(bin, args...)
	tail := newTailBuffer(8 * 1024)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindAvailability, Err: fmt.Errorf("start %s: %w", bin, err)}
	}
	p := &serverProc{cmd: cmd, baseURL: baseURL, waitCh: make(chan error, 1), stderr: tail}
	go func() { p.waitCh <- cmd.Wait() }()

	log.Debug().Str("bin", bin).Int("pid", p.pid()).Str("url", baseURL).Msg("server spawned, waiting for ready")

	deadline := time.Now().Add(defaultReadyWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		select {
		case waitErr := <-p.waitCh:
			out := tail.Tail()
			err := fmt.Errorf("%s exited before becoming ready: %v (output: %s)", bin, waitErr, out)
			return nil, &Error{Kind: classifyOutput(out), Err: err}
		case <-ctx.Done():
			p.stop(stopGrace)
			return nil, &Error{Kind: KindTimeout, Err: fmt.Errorf("%s startup canceled: %w", bin, ctx.Err())}
		default:
		}
		if time.Now().After(deadline) {
			p.stop(stopGrace)
			return nil, &Error{Kind: KindTimeout, Err: fmt.Errorf("%s not ready in time (output: %s)", bin, tail.Tail())}
		}
		if httpOK(ctx, client, baseURL+readyPath) {
			log.Debug().Str("bin", bin).Int("pid", p.pid()).Msg("server ready")
			return p, nil
		}
		time.Sleep(readyPollInterval)
	}
}

// classifyOutput reads the process output for a failure kind; an empty or
// unrecognized crash log counts as a hardware fault since the binary was
// present and started.
func classifyOutput(out string) Kind {
	if out == "" {
		return KindHardware
	}
	return Classify(fmt.Errorf("%s", out))
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func httpOK(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// newHTTPClient builds the client used against spawned servers. No global
// timeout; deadlines come from request contexts so long generations are not
// cut off by the transport.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:    8,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// tailBuffer keeps the last max bytes written. Safe for concurrent writes;
// exec pipes write from their own goroutines.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
