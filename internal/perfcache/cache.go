// Package perfcache is the persistent performance history: per (model
// fingerprint, backend) load/generation statistics, analyzed model profiles
// and memoized GPU layer counts. It is the only mutable state shared between
// the optimizer, the router and the batch processor; a single lock serializes
// every entry so concurrent load and generation updates never lose writes.
package perfcache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/modelfile"
)

// SchemaVersion tags the on-disk document. Any other version on disk is
// discarded as a cache miss.
const SchemaVersion = 1

// Sample is one observation fed into the rolling statistics. Zero-valued
// metrics are "not measured" and leave the corresponding average untouched.
type Sample struct {
	LoadTimeMS   float64
	MemoryMB     float64
	TokensPerSec float64
	Success      bool
	// LoadAttempt marks samples from the load path; only those count toward
	// the success rate. Generation samples still bump the usage count.
	LoadAttempt bool
}

// Performance aggregates what the engine has seen for one (model, backend)
// pair. Averages are exponential moving averages weighing recent samples
// more.
type Performance struct {
	LoadTimeMS   float64 `json:"load_time_ms"`
	MemoryMB     float64 `json:"memory_mb"`
	TokensPerSec float64 `json:"tokens_per_sec"`
	Attempts     uint64  `json:"attempts"`
	Successes    uint64  `json:"successes"`
	UsageCount   uint64  `json:"usage_count"`
	LastUsedUnix int64   `json:"last_used_unix"`
}

// SuccessRate returns successes/attempts in [0,1], 0 when nothing was tried.
func (p Performance) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// BackendStats aggregates Performance entries across models for one backend.
type BackendStats struct {
	Attempts      uint64  `json:"attempts"`
	Successes     uint64  `json:"successes"`
	UsageCount    uint64  `json:"usage_count"`
	AvgLoadTimeMS float64 `json:"avg_load_time_ms"`
	ModelsSeen    int     `json:"models_seen"`
}

// SuccessRate returns successes/attempts in [0,1], 0 when nothing was tried.
func (s BackendStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// document is the on-disk shape: a single human-inspectable JSON file.
type document struct {
	Version     int                               `json:"version"`
	Profiles    map[string]modelfile.Profile      `json:"profiles"`
	Performance map[string]map[string]Performance `json:"performance"`
	GPULayers   map[string]int                    `json:"gpu_layers"`
}

func newDocument() document {
	return document{
		Version:     SchemaVersion,
		Profiles:    make(map[string]modelfile.Profile),
		Performance: make(map[string]map[string]Performance),
		GPULayers:   make(map[string]int),
	}
}

// Config tunes the cache.
type Config struct {
	// Path of the JSON document; empty disables persistence.
	Path string
	// EMAAlpha is the weight of the newest sample, (0,1]. Defaults to 0.3.
	EMAAlpha float64
	// SaveDebounce batches disk writes after mutations. Defaults to 1s;
	// negative disables the background save (Flush still writes).
	SaveDebounce time.Duration
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	doc       document
	dirty     bool
	saveTimer *time.Timer

	path     string
	alpha    float64
	debounce time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// New creates the cache and loads any existing document from cfg.Path.
// A missing, corrupt or incompatible file starts an empty cache with a
// warning; it never fails startup.
func New(cfg Config, log zerolog.Logger) *Cache {
	alpha := cfg.EMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	debounce := cfg.SaveDebounce
	if debounce == 0 {
		debounce = time.Second
	}
	c := &Cache{
		doc:      newDocument(),
		path:     cfg.Path,
		alpha:    alpha,
		debounce: debounce,
		log:      log,
		now:      time.Now,
	}
	c.load()
	return c
}

// GetModelProfile returns the cached profile for a fingerprint.
func (c *Cache) GetModelProfile(fingerprint string) (modelfile.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.doc.Profiles[fingerprint]
	recordLookup("profile", ok)
	return p, ok
}

// PutModelProfile stores a profile keyed by its fingerprint.
func (c *Cache) PutModelProfile(p modelfile.Profile) {
	if p.Fingerprint == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Profiles[p.Fingerprint] = p
	c.markDirtyLocked()
}

// GetPerformance returns the statistics for one (fingerprint, backend) pair.
func (c *Cache) GetPerformance(fingerprint, backend string) (Performance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.doc.Performance[fingerprint][backend]
	recordLookup("performance", ok)
	return p, ok
}

// RecordAttempt folds a sample into the pair's statistics.
func (c *Cache) RecordAttempt(fingerprint, backend string, s Sample) {
	if fingerprint == "" || backend == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	perBackend := c.doc.Performance[fingerprint]
	if perBackend == nil {
		perBackend = make(map[string]Performance)
		c.doc.Performance[fingerprint] = perBackend
	}
	p := perBackend[backend]
	if s.LoadAttempt {
		p.Attempts++
		if s.Success {
			p.Successes++
		}
	}
	p.UsageCount++
	if s.LoadTimeMS > 0 {
		p.LoadTimeMS = ema(p.LoadTimeMS, s.LoadTimeMS, c.alpha)
	}
	if s.MemoryMB > 0 {
		p.MemoryMB = ema(p.MemoryMB, s.MemoryMB, c.alpha)
	}
	if s.TokensPerSec > 0 {
		p.TokensPerSec = ema(p.TokensPerSec, s.TokensPerSec, c.alpha)
	}
	p.LastUsedUnix = c.now().Unix()
	perBackend[backend] = p
	c.markDirtyLocked()
}

// RecordThroughput feeds a generation-path throughput observation.
func (c *Cache) RecordThroughput(fingerprint, backend string, tokensPerSec float64) {
	c.RecordAttempt(fingerprint, backend, Sample{TokensPerSec: tokensPerSec, Success: true})
}

// LayersKey builds the memoization key for a GPU layer computation.
func LayersKey(fingerprint, backend string, vramMB int) string {
	return fmt.Sprintf("%s|%s|%d", fingerprint, backend, vramMB)
}

// GetGPULayers returns a memoized layer count.
func (c *Cache) GetGPULayers(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.doc.GPULayers[key]
	recordLookup("gpu_layers", ok)
	return n, ok
}

// PutGPULayers memoizes a layer count.
func (c *Cache) PutGPULayers(key string, layers int) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.GPULayers[key] = layers
	c.markDirtyLocked()
}

// Clear invalidates cache entries. Both selectors empty wipes everything; a
// fingerprint alone drops that model; a backend alone drops that backend
// across models; both drop the single pair.
func (c *Cache) Clear(fingerprint, backend string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case fingerprint == "" && backend == "":
		c.doc = newDocument()
	case backend == "":
		delete(c.doc.Profiles, fingerprint)
		delete(c.doc.Performance, fingerprint)
		c.dropLayersLocked(fingerprint, "")
	case fingerprint == "":
		for fp, perBackend := range c.doc.Performance {
			delete(perBackend, backend)
			if len(perBackend) == 0 {
				delete(c.doc.Performance, fp)
			}
		}
		c.dropLayersLocked("", backend)
	default:
		if perBackend, ok := c.doc.Performance[fingerprint]; ok {
			delete(perBackend, backend)
			if len(perBackend) == 0 {
				delete(c.doc.Performance, fingerprint)
			}
		}
		c.dropLayersLocked(fingerprint, backend)
	}
	c.markDirtyLocked()
}

func (c *Cache) dropLayersLocked(fingerprint, backend string) {
	for key := range c.doc.GPULayers {
		fp, be := splitLayersKey(key)
		if (fingerprint == "" || fp == fingerprint) && (backend == "" || be == backend) {
			delete(c.doc.GPULayers, key)
		}
	}
}

func splitLayersKey(key string) (fingerprint, backend string) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) < 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

// Stats aggregates per-backend statistics across all models.
func (c *Cache) Stats() map[string]BackendStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]BackendStats)
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, perBackend := range c.doc.Performance {
		for backend, p := range perBackend {
			s := out[backend]
			s.Attempts += p.Attempts
			s.Successes += p.Successes
			s.UsageCount += p.UsageCount
			s.ModelsSeen++
			out[backend] = s
			if p.LoadTimeMS > 0 {
				sums[backend] += p.LoadTimeMS
				counts[backend]++
			}
		}
	}
	for backend, n := range counts {
		s := out[backend]
		s.AvgLoadTimeMS = sums[backend] / float64(n)
		out[backend] = s
	}
	return out
}

// Counts reports the number of cached profiles and performance pairs.
func (c *Cache) Counts() (profiles, pairs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, perBackend := range c.doc.Performance {
		pairs += len(perBackend)
	}
	return len(c.doc.Profiles), pairs
}

func ema(old, sample, alpha float64) float64 {
	if old == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*old
}
