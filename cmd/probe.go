package cmd

import (
	"qtsettings/internal/config"
	"qtsettings/internal/dot"
	"qtsettings/internal/store"

	"github.com/spf13/cobra"
)

// NewProbeCmd creates the probe command
func NewProbeCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe HOSTNAME",
		Short: "Check that a hostname answers DNS-over-TLS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			setupQuiet(cfg)

			if err := store.ValidateHostname(args[0]); err != nil {
				return err
			}
			return probeHost(cmd.Context(), newProber(cfg), args[0])
		},
	}
}

func newProber(cfg *config.Config) *dot.Prober {
	return &dot.Prober{Query: cfg.Probe.Query, Timeout: cfg.Probe.Timeout}
}
