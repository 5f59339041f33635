package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"inferd/internal/optimizer"
	"inferd/pkg/types"
)

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var pref, target string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "recommend <model-path>",
		Short: "Score backends for a model and print the pick without loading it",
		Args:  cobra.ExactArgs(1),
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

			c := buildCore(cfg, nil, -1, log)
			defer c.Close(cmd.Context(), log)

			rec, prof, err := c.Router.Recommend(cmd.Context(), args[0],
				optimizer.ParsePreference(pref), optimizer.ParseTarget(target))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(types.RecommendationResponse{
					Backend: rec.Backend,
					Settings: types.BackendSettings{
						Backend:     rec.Config.Backend,
						GPULayers:   rec.Config.GPULayers,
						ContextSize: rec.Config.ContextSize,
						BatchSize:   rec.Config.BatchSize,
						Threads:     rec.Config.Threads,
					},
					Confidence: rec.Confidence,
					Fallbacks:  rec.Fallbacks,
					Reasoning:  rec.Reasoning,
				})
			}

			fmt.Fprintf(out, "model:      %s (%s, %d MB", prof.Name, prof.Format, prof.SizeMB)
			if prof.Quant != "" {
				fmt.Fprintf(out, ", %s", prof.Quant)
			}
			fmt.Fprintln(out, ")")

			if !rec.Viable() {
				for _, r := range rec.Reasoning {
					fmt.Fprintf(out, "  %s\n", r)
				}
				return fmt.Errorf("no backend available for %s", args[0])
			}

			fmt.Fprintf(out, "backend:    %s (confidence %.2f)\n", rec.Backend, rec.Confidence)
			fmt.Fprintf(out, "settings:   gpu_layers=%d context=%d batch=%d threads=%d\n",
				rec.Config.GPULayers, rec.Config.ContextSize, rec.Config.BatchSize, rec.Config.Threads)
			if len(rec.Fallbacks) > 0 {
				fmt.Fprintf(out, "fallbacks:  %s\n", strings.Join(rec.Fallbacks, ", "))
			}
			fmt.Fprintln(out, "reasoning:")
			for _, r := range rec.Reasoning {
				fmt.Fprintf(out, "  %s\n", r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pref, "preference", "auto", "Execution preference: auto|gpu|cpu")
	cmd.Flags().StringVar(&target, "target", "balanced", "Performance target: speed|balanced|quality")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the recommendation as JSON")
	return cmd
}
