package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"inferd/internal/perfcache"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the performance cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("cache requires a subcommand: stats|clear")
		},
	}
	cacheCmd.AddCommand(newCacheStatsCmd(opts), newCacheClearCmd(opts))
	return cacheCmd
}

func newCacheStatsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize learned performance history per backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, cleanup, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer cleanup()

			cache := perfcache.New(perfcache.Config{
				Path:         cfg.CachePath,
				EMAAlpha:     cfg.Tuning.EMAAlpha,
				SaveDebounce: -1,
			}, log)
			profiles, pairs := cache.Counts()
			stats := cache.Stats()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Path     string                            `json:"path"`
					Profiles int                               `json:"profiles"`
					Pairs    int                               `json:"pairs"`
					Backends map[string]perfcache.BackendStats `json:"backends"`
				}{cfg.CachePath, profiles, pairs, stats})
			}

			fmt.Fprintf(out, "cache:    %s\n", cfg.CachePath)
			fmt.Fprintf(out, "profiles: %d, backend/model pairs: %d\n", profiles, pairs)
			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s := stats[name]
				fmt.Fprintf(out, "  %-12s attempts=%d successes=%d success_rate=%.2f avg_load_ms=%.0f models=%d\n",
					name, s.Attempts, s.Successes, s.SuccessRate(), s.AvgLoadTimeMS, s.ModelsSeen)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print statistics as JSON")
	return cmd
}

func newCacheClearCmd(opts *rootOptions) *cobra.Command {
	var fingerprint, backendName string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop learned history, optionally scoped to a model or backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log, cleanup, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer cleanup()

			cache := perfcache.New(perfcache.Config{
				Path:         cfg.CachePath,
				EMAAlpha:     cfg.Tuning.EMAAlpha,
				SaveDebounce: -1,
			}, log)
			cache.Clear(fingerprint, backendName)
			if err := cache.Flush(); err != nil {
				return err
			}
			if fingerprint == "" && backendName == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "performance cache cleared")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "matching cache entries cleared")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "Limit to one model fingerprint")
	cmd.Flags().StringVar(&backendName, "backend", "", "Limit to one backend")
	return cmd
}
