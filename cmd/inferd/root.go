package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"inferd/internal/config"
)

// rootOptions carries the persistent flag values shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Hardware-aware inference daemon for local GGUF/GGML models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags with environment variable defaults
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("INFERD_CONFIG"),
		"Config file (.yaml|.json|.toml); built-in defaults when empty (defaults INFERD_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", os.Getenv("INFERD_LOG_LEVEL"),
		"Override log level: debug|info|warn|error (defaults INFERD_LOG_LEVEL or config)")

	root.AddCommand(newServeCmd(opts), newDetectCmd(opts), newRecommendCmd(opts), newCacheCmd(opts))
	return root
}

// loadConfig resolves the effective configuration: the file named by
// --config overlaid on the defaults, then flag overrides, then validation.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the process logger: console on stderr, plus a rotating
// JSON file under log.dir when set. The returned cleanup closes the file.
func newLogger(cfg config.Log) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("log.level %q: %w", cfg.Level, err)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	cleanup := func() {}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "inferd.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, rotator)
		cleanup = func() { _ = rotator.Close() }
	}

	log := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return log, cleanup, nil
}
