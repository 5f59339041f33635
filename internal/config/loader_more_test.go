package config

import (
	"strings"
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "models_dir": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nmodels_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero unknown base", func(c *Config) { c.Scoring.UnknownBaseScore = 0 }, "unknown_base_score"},
		{"negative base score", func(c *Config) { c.Scoring.BaseScores["llamacpp"] = -1 }, "base_scores"},
		{"margin above one", func(c *Config) { c.Tuning.VRAMSafetyMargin = 1.5 }, "vram_safety_margin"},
		{"alpha zero", func(c *Config) { c.Tuning.EMAAlpha = 0 }, "ema_alpha"},
		{"batch size zero", func(c *Config) { c.Batch.MaxBatchSize = 0 }, "max_batch_size"},
		{"queue cap zero", func(c *Config) { c.Batch.QueueCap = 0 }, "queue_cap"},
		{"no backends", func(c *Config) { c.Backends.Order = nil }, "backends.order"},
		{"bad target", func(c *Config) { c.Tuning.Targets["speed"] = Target{} }, "targets"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
