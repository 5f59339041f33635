package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/batch"
	"inferd/internal/config"
	"inferd/internal/events"
	"inferd/internal/hardware"
	"inferd/internal/optimizer"
	"inferd/internal/perfcache"
	"inferd/internal/router"
)

// eventBuffer is the per-subscriber channel depth for /events streams.
const eventBuffer = 64

// core is the selection pipeline shared by the daemon and the one-shot
// commands: registry, detection, learned cache, scoring and the router on
// top of them.
type core struct {
	Registry  *backend.Registry
	Detector  *hardware.Detector
	Cache     *perfcache.Cache
	Optimizer *optimizer.Optimizer
	Router    *router.Router
}

// buildCore wires the pipeline from configuration. cacheDebounce lets the
// one-shot commands disable the background save and flush explicitly.
func buildCore(cfg config.Config, pub events.Publisher, cacheDebounce time.Duration, log zerolog.Logger) *core {
	reg := backend.BuildRegistry(backend.Options{
		Order:        enabledBackends(cfg.Backends),
		ServerBin:    cfg.Backends.ServerBin,
		LlamafileBin: cfg.Backends.LlamafileBin,
		ExtraArgs:    cfg.Backends.ExtraArgs,
	}, log)
	det := hardware.New(hardware.Config{ProbeTimeout: cfg.Detection.ProbeTimeout()}, log)
	cache := perfcache.New(perfcache.Config{
		Path:         cfg.CachePath,
		EMAAlpha:     cfg.Tuning.EMAAlpha,
		SaveDebounce: cacheDebounce,
	}, log)
	opt := optimizer.New(reg, cache, weightsFromConfig(cfg.Scoring), tuningFromConfig(cfg.Tuning), log)
	rt := router.NewRouter(router.Config{
		AttemptTimeout: cfg.Router.AttemptTimeout(),
		UnloadTimeout:  cfg.Router.UnloadTimeout(),
	}, router.Deps{
		Registry:  reg,
		Optimizer: opt,
		Cache:     cache,
		Detector:  det,
		Events:    pub,
	}, log)
	return &core{Registry: reg, Detector: det, Cache: cache, Optimizer: opt, Router: rt}
}

// Close drops any live session and flushes the cache.
func (c *core) Close(ctx context.Context, log zerolog.Logger) {
	if err := c.Router.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("router shutdown")
	}
	if err := c.Cache.Close(); err != nil {
		log.Warn().Err(err).Msg("cache flush")
	}
}

// engine is the full daemon: the core pipeline plus the event fanout and
// the batching scheduler.
type engine struct {
	*core
	Fanout *events.Fanout
	Batch  *batch.Processor
}

func buildEngine(cfg config.Config, log zerolog.Logger) *engine {
	fanout := events.NewFanout(eventBuffer)
	c := buildCore(cfg, events.NewLogged(log, fanout), 0, log)
	proc := batch.New(batch.Config{
		MaxBatchSize:    cfg.Batch.MaxBatchSize,
		MaxWait:         cfg.Batch.MaxWait(),
		QueueCap:        cfg.Batch.QueueCap,
		MemPerRequestMB: cfg.Batch.MemPerRequestMB,
		RequestTimeout:  cfg.Batch.RequestTimeout(),
		ResultTTL:       cfg.Batch.ResultTTL(),
	}, batch.Deps{
		Generator: c.Router,
		FreeMemMB: func() int { return c.Detector.AvailableRAMMB(context.Background()) },
	}, log)
	return &engine{core: c, Fanout: fanout, Batch: proc}
}

// Close tears the daemon down in dependency order: stop accepting work,
// then the core.
func (e *engine) Close(ctx context.Context, log zerolog.Logger) {
	if err := e.Batch.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("batch shutdown")
	}
	e.core.Close(ctx, log)
}

// enabledBackends returns the configured registration order minus the
// disabled entries.
func enabledBackends(b config.Backends) []string {
	disabled := make(map[string]bool, len(b.Disabled))
	for _, name := range b.Disabled {
		disabled[name] = true
	}
	out := make([]string, 0, len(b.Order))
	for _, name := range b.Order {
		if !disabled[name] {
			out = append(out, name)
		}
	}
	return out
}

func weightsFromConfig(s config.Scoring) optimizer.Weights {
	return optimizer.Weights{
		Base:                  s.BaseScores,
		UnknownBase:           s.UnknownBaseScore,
		GPUMismatchPenalty:    s.GPUMismatchPenalty,
		CPUFallbackFactor:     s.CPUFallbackFactor,
		FormatMismatchPenalty: s.FormatMismatchPenalty,
		FitAllVRAM:            s.FitAllVRAM,
		FitPartial:            s.FitPartial,
		FitRAMOnly:            s.FitRAMOnly,
		FitTooLarge:           s.FitTooLarge,
		EmpiricalMaxTrust:     s.EmpiricalMaxTrust,
		TrustSaturation:       float64(s.TrustSaturation),
		ThroughputNorm:        s.ThroughputNorm,
		Epsilon:               s.Epsilon,
	}
}

func tuningFromConfig(t config.Tuning) optimizer.Tuning {
	targets := make(map[optimizer.Target]optimizer.TargetProfile, len(t.Targets))
	for name, p := range t.Targets {
		targets[optimizer.Target(name)] = optimizer.TargetProfile{
			ContextSize: p.ContextSize,
			BatchSize:   p.BatchSize,
		}
	}
	return optimizer.Tuning{
		VRAMSafetyMargin: t.VRAMSafetyMargin,
		KVOverheadRatio:  t.KVOverheadRatio,
		MaxThreads:       t.MaxThreads,
		Targets:          targets,
	}
}
