package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/httpapi"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, modelsDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inference daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if modelsDir != "" {
				cfg.ModelsDir = modelsDir
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", os.Getenv("INFERD_ADDR"),
		"HTTP listen address, e.g. :8090; overrides config (defaults INFERD_ADDR)")
	cmd.Flags().StringVar(&modelsDir, "models-dir", "",
		"Directory scanned for model files; overrides config")
	return cmd
}

func serve(cfg config.Config) error {
	log, cleanup, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := buildEngine(cfg, log)
	api := httpapi.New(httpapi.Config{}, httpapi.Deps{
		Router:    eng.Router,
		Batch:     eng.Batch,
		Registry:  eng.Registry,
		Events:    eng.Fanout,
		ModelsDir: cfg.ModelsDir,
	}, log)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Routes(),
		// Request contexts cancel on the first signal, which is what ends
		// long-lived /events streams so Shutdown can complete.
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		eng.Close(context.Background(), log)
		return err
	case <-ctx.Done():
		// Restore default signal behavior; a second signal kills.
		stop()
	}
	log.Info().Msg("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	eng.Close(shCtx, log)
	log.Info().Msg("stopped")
	return nil
}
