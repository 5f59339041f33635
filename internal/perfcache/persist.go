package perfcache

import (
	"encoding/json"
	"os"
	"time"

	"inferd/internal/common/fsutil"
)

// load reads the document at c.path. Fail-open: a missing file is a fresh
// cache, a corrupt or version-mismatched one is discarded with a warning.
func (c *Cache) load() {
	if c.path == "" {
		return
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("path", c.path).Msg("performance cache unreadable, starting empty")
		}
		return
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("performance cache corrupt, starting empty")
		return
	}
	if doc.Version != SchemaVersion {
		c.log.Warn().
			Int("found", doc.Version).
			Int("want", SchemaVersion).
			Str("path", c.path).
			Msg("performance cache schema mismatch, starting empty")
		return
	}
	if doc.Profiles == nil {
		doc.Profiles = newDocument().Profiles
	}
	if doc.Performance == nil {
		doc.Performance = newDocument().Performance
	}
	if doc.GPULayers == nil {
		doc.GPULayers = newDocument().GPULayers
	}
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
}

// Save writes the document to disk. Safe to call at any time; a nil path
// makes it a no-op.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	b, err := json.MarshalIndent(c.doc, "", "  ")
	c.dirty = false
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(c.path); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o644)
}

// Flush cancels any pending debounced save and writes immediately if there
// are unsaved mutations.
func (c *Cache) Flush() error {
	c.mu.Lock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	dirty := c.dirty
	c.mu.Unlock()
	if !dirty {
		return nil
	}
	return c.Save()
}

// Close flushes pending writes. The cache stays usable afterwards.
func (c *Cache) Close() error { return c.Flush() }

// markDirtyLocked schedules a debounced background save. Callers hold c.mu.
func (c *Cache) markDirtyLocked() {
	c.dirty = true
	if c.debounce < 0 || c.path == "" || c.saveTimer != nil {
		return
	}
	c.saveTimer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		c.saveTimer = nil
		c.mu.Unlock()
		if err := c.Save(); err != nil {
			c.log.Warn().Err(err).Str("path", c.path).Msg("performance cache save failed")
		}
	})
}
