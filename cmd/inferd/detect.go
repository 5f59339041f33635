package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"inferd/internal/hardware"
)

func newDetectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Probe host hardware and print the profile as JSON",
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

			det := hardware.New(hardware.Config{ProbeTimeout: cfg.Detection.ProbeTimeout()}, log)
			info := det.Detect(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
