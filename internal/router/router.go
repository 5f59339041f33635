// Package router owns the model lifecycle: it resolves a load request into
// a ranked backend chain, walks the chain until one backend answers, and
// holds the resulting session. At most one session is live at a time and at
// most one load runs at a time; concurrent loads are rejected, not queued.
package router

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/events"
	"inferd/internal/hardware"
	"inferd/internal/modelfile"
	"inferd/internal/optimizer"
	"inferd/internal/perfcache"
)

const (
	defaultAttemptTimeout = 2 * time.Minute
	defaultUnloadTimeout  = 15 * time.Second
)

// Config bounds the router's long-running operations.
type Config struct {
	// AttemptTimeout caps a single backend load attempt. A backend that
	// cannot come up within it is classified as a timeout and the walk
	// moves on.
	AttemptTimeout time.Duration
	// UnloadTimeout caps teardown of the previous session.
	UnloadTimeout time.Duration
}

// Deps are the router's collaborators. Registry, Optimizer and Cache are
// required; the rest default to working zero-cost implementations.
type Deps struct {
	Registry  *backend.Registry
	Optimizer *optimizer.Optimizer
	Cache     *perfcache.Cache
	Detector  *hardware.Detector
	Format    modelfile.Detector
	Events    events.Publisher
}

// Router is the fallback controller.
type Router struct {
	cfg    Config
	reg    *backend.Registry
	opt    *optimizer.Optimizer
	cache  *perfcache.Cache
	det    *hardware.Detector
	format modelfile.Detector
	pub    events.Publisher
	log    zerolog.Logger

	mu       sync.Mutex
	loading  bool
	session  *Session
	override string
	hw       hardware.Info

	startedAt      time.Time
	loadsTotal     atomic.Int64
	fallbacksTotal atomic.Int64
}

// NewRouter wires a Router. Zero config fields get defaults.
func NewRouter(cfg Config, deps Deps, log zerolog.Logger) *Router {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.UnloadTimeout <= 0 {
		cfg.UnloadTimeout = defaultUnloadTimeout
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Format == nil {
		deps.Format = modelfile.SniffDetector{}
	}
	return &Router{
		cfg:       cfg,
		reg:       deps.Registry,
		opt:       deps.Optimizer,
		cache:     deps.Cache,
		det:       deps.Detector,
		format:    deps.Format,
		pub:       deps.Events,
		log:       log.With().Str("component", "router").Logger(),
		startedAt: time.Now(),
	}
}

// LoadModel loads the model at path through the best backend the optimizer
// can find, falling back down the recommendation chain on failure. The
// previous session, if any, is torn down before the first attempt so the
// host never carries two copies of model weights.
func (r *Router) LoadModel(ctx context.Context, path string, pref optimizer.Preference, target optimizer.Target) (*Session, error) {
	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		return nil, &BusyError{Op: "load"}
	}
	r.loading = true
	prev := r.session
	r.session = nil
	override := r.override
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
	}()

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		if prev != nil {
			r.restoreSession(prev)
		}
		return nil, &NotFoundError{Path: path}
	}

	prof, err := modelfile.Analyze(path, r.format)
	if err != nil {
		if prev != nil {
			r.restoreSession(prev)
		}
		return nil, fmt.Errorf("analyze model: %w", err)
	}
	r.cache.PutModelProfile(*prof)

	r.pub.Publish(events.New(events.LoadingStarted, "", prof.Name, map[string]any{
		"path":    path,
		"size_mb": prof.SizeMB,
		"format":  string(prof.Format),
	}))

	// The old session goes before the new attempt starts; teardown faults
	// are logged, never fatal.
	if prev != nil {
		r.unloadSession(ctx, prev)
	}

	hw := r.hardwareInfo(ctx)
	available := r.reg.Available(ctx)

	rec := r.opt.Recommend(prof, available, hw, pref, target)
	if !rec.Viable() {
		return nil, &ExhaustedError{Hints: rec.Reasoning}
	}

	r.pub.Publish(events.New(events.BackendSelected, rec.Backend, prof.Name, map[string]any{
		"confidence": rec.Confidence,
		"fallbacks":  rec.Fallbacks,
	}))

	chain := promote(append([]string{rec.Backend}, rec.Fallbacks...), override)

	var attempts []Attempt
	var failed []string
	for i, name := range chain {
		be, ok := r.reg.Get(name)
		if !ok {
			attempts = append(attempts, Attempt{Backend: name, Kind: backend.KindAvailability, Reason: "not registered"})
			continue
		}

		cfg := rec.Config
		if name != rec.Backend {
			cfg = r.opt.TuneConfig(name, prof, hw, pref, target)
		}

		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		res, err := be.Load(actx, path, cfg)
		cancel()

		if err != nil {
			kind := backend.KindOf(err)
			r.cache.RecordAttempt(prof.Fingerprint, name, perfcache.Sample{LoadAttempt: true})
			r.reg.MarkFailed(name, err)
			attempts = append(attempts, Attempt{Backend: name, Kind: kind, Reason: err.Error()})
			failed = append(failed, name)
			loadAttemptsTotal.WithLabelValues(name, "failure").Inc()
			r.log.Warn().Err(err).
				Str("backend", name).
				Str("kind", string(kind)).
				Msg("backend load failed")
			r.pub.Publish(events.New(events.LoadingFailed, name, prof.Name, map[string]any{
				"kind":  string(kind),
				"error": err.Error(),
			}))
			if i+1 < len(chain) {
				fallbacksCounter.Inc()
				r.fallbacksTotal.Add(1)
				r.pub.Publish(events.New(events.Fallback, name, prof.Name, map[string]any{
					"next": chain[i+1],
				}))
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}

		loadMS := res.LoadTimeMS
		if loadMS <= 0 {
			loadMS = time.Since(start).Milliseconds()
		}
		r.cache.RecordAttempt(prof.Fingerprint, name, perfcache.Sample{
			LoadAttempt: true,
			Success:     true,
			LoadTimeMS:  float64(loadMS),
			MemoryMB:    res.MemoryMB,
		})
		loadAttemptsTotal.WithLabelValues(name, "success").Inc()
		loadDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		sess := &Session{
			Backend:       name,
			ModelPath:     path,
			ModelName:     prof.Name,
			Profile:       prof,
			Config:        cfg,
			HardwareUsed:  res.HardwareUsed,
			LoadTimeMS:    loadMS,
			MemoryMB:      res.MemoryMB,
			Confidence:    rec.Confidence,
			FallbacksUsed: failed,
			Pref:          pref,
			Target:        target,
			LoadedAt:      time.Now(),
			handle:        be,
		}
		r.mu.Lock()
		r.session = sess
		r.mu.Unlock()
		sessionActive.Set(1)
		r.loadsTotal.Add(1)
		r.log.Info().
			Str("backend", name).
			Str("model", prof.Name).
			Str("hardware", res.HardwareUsed).
			Int64("load_ms", loadMS).
			Strs("fell_back_past", failed).
			Msg("model loaded")
		r.pub.Publish(events.New(events.ModelLoaded, name, prof.Name, map[string]any{
			"hardware":   res.HardwareUsed,
			"load_ms":    loadMS,
			"gpu_layers": cfg.GPULayers,
			"fallbacks":  failed,
		}))
		return sess, nil
	}

	return nil, &ExhaustedError{Attempts: attempts, Hints: hintsForAttempts(attempts)}
}

// Recommend scores the model at path against the registered backends without
// loading anything. The profile is cached so a follow-up load skips the
// analysis.
func (r *Router) Recommend(ctx context.Context, path string, pref optimizer.Preference, target optimizer.Target) (*optimizer.Recommendation, *modelfile.Profile, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, nil, &NotFoundError{Path: path}
	}
	prof, err := modelfile.Analyze(path, r.format)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze model: %w", err)
	}
	r.cache.PutModelProfile(*prof)

	hw := r.hardwareInfo(ctx)
	available := r.reg.Available(ctx)
	return r.opt.Recommend(prof, available, hw, pref, target), prof, nil
}

// Generate runs one completion against the live session and feeds observed
// throughput back into the performance cache.
func (r *Router) Generate(ctx context.Context, prompt string, gen backend.GenerationConfig) (string, error) {
	s, ok := r.Current()
	if !ok {
		return "", &NoModelError{}
	}
	start := time.Now()
	text, err := s.Generate(ctx, prompt, gen)
	if err != nil {
		return "", backend.WrapError(s.Backend, err)
	}
	if sec := time.Since(start).Seconds(); sec > 0 && len(text) > 0 {
		// Rough token estimate; good enough to trend throughput.
		tps := float64(len(text)) / 4 / sec
		r.cache.RecordThroughput(s.Fingerprint(), s.Backend, tps)
	}
	return text, nil
}

// Unload tears down the live session. Unloading with nothing loaded is a
// no-op; teardown faults are logged and swallowed so the router always ends
// up empty.
func (r *Router) Unload(ctx context.Context) error {
	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		return &BusyError{Op: "unload"}
	}
	s := r.session
	r.session = nil
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	r.unloadSession(ctx, s)
	return nil
}

// SwitchBackend pins future loads to the named backend. The pin survives
// until replaced or cleared with name "auto". With reload set and a session
// live, the current model is reloaded through the new pin immediately.
func (r *Router) SwitchBackend(ctx context.Context, name string, reload bool) (*Session, error) {
	if name == "auto" {
		name = ""
	} else if _, ok := r.reg.Get(name); !ok {
		return nil, &UnknownBackendError{Name: name}
	}

	r.mu.Lock()
	r.override = name
	cur := r.session
	r.mu.Unlock()

	model := ""
	if cur != nil {
		model = cur.ModelName
	}
	r.pub.Publish(events.New(events.BackendSwitched, name, model, map[string]any{
		"reload": reload,
	}))
	r.log.Info().Str("backend", name).Bool("reload", reload).Msg("backend override set")

	if !reload || cur == nil {
		return cur, nil
	}
	return r.LoadModel(ctx, cur.ModelPath, cur.Pref, cur.Target)
}

// Current returns the live session, if any.
func (r *Router) Current() (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, false
	}
	return r.session, true
}

// Override returns the pinned backend name, empty when selection is
// automatic.
func (r *Router) Override() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override
}

// Loading reports whether a load currently holds the critical section.
func (r *Router) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Hardware returns the host profile, detecting it on first use.
func (r *Router) Hardware(ctx context.Context) hardware.Info {
	return r.hardwareInfo(ctx)
}

// RefreshHardware forces a fresh probe of the host.
func (r *Router) RefreshHardware(ctx context.Context) hardware.Info {
	hw := r.det.Detect(ctx)
	r.mu.Lock()
	r.hw = hw
	r.mu.Unlock()
	return hw
}

// Statistics summarizes router activity plus per-backend aggregates from
// the performance cache.
type Statistics struct {
	LoadsTotal     int64                             `json:"loads_total"`
	FallbacksTotal int64                             `json:"fallbacks_total"`
	UptimeSeconds  int64                             `json:"uptime_seconds"`
	Backends       map[string]perfcache.BackendStats `json:"backends"`
}

// Statistics reports counters since construction.
func (r *Router) Statistics() Statistics {
	return Statistics{
		LoadsTotal:     r.loadsTotal.Load(),
		FallbacksTotal: r.fallbacksTotal.Load(),
		UptimeSeconds:  int64(time.Since(r.startedAt).Seconds()),
		Backends:       r.cache.Stats(),
	}
}

// Close unloads whatever is live. The cache is owned by the caller and is
// not flushed here.
func (r *Router) Close(ctx context.Context) error {
	return r.Unload(ctx)
}

func (r *Router) hardwareInfo(ctx context.Context) hardware.Info {
	r.mu.Lock()
	hw := r.hw
	r.mu.Unlock()
	if !hw.DetectedAt.IsZero() {
		return hw
	}
	return r.RefreshHardware(ctx)
}

func (r *Router) unloadSession(ctx context.Context, s *Session) {
	uctx, cancel := context.WithTimeout(ctx, r.cfg.UnloadTimeout)
	defer cancel()
	if err := s.handle.Unload(uctx); err != nil {
		r.log.Warn().Err(err).Str("backend", s.Backend).Msg("unload failed, dropping session anyway")
	}
	sessionActive.Set(0)
	r.pub.Publish(events.New(events.ModelUnloaded, s.Backend, s.ModelName, nil))
}

func (r *Router) restoreSession(s *Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

// promote moves name to the front of the chain; a pinned backend absent
// from the chain is prepended so it is still tried first.
func promote(chain []string, name string) []string {
	if name == "" {
		return chain
	}
	for i, n := range chain {
		if n == name {
			copy(chain[1:i+1], chain[:i])
			chain[0] = name
			return chain
		}
	}
	return append([]string{name}, chain...)
}
