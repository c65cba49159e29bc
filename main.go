package main

import (
	"fmt"
	"os"

	"qtsettings/cmd"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	opts := &cmd.Options{}

	var rootCmd = &cobra.Command{
		Use:   "qtsettings",
		Short: "Quick Settings tiles for Private DNS and USB debugging",
		Long: `qtsettings drives two Android Quick Settings tiles: one cycles Private DNS
through Off, Auto and the selected DNS-over-TLS providers, the other toggles
USB debugging. Either can revert itself after a delay, and Private DNS can
follow VPN and Wi-Fi/mobile changes.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default is ./qtsettings.yaml)")

	rootCmd.AddCommand(
		cmd.NewRunCmd(opts, version),
		cmd.NewTapCmd(opts),
		cmd.NewStatusCmd(opts),
		cmd.NewHostsCmd(opts),
		cmd.NewPrefsCmd(opts),
		cmd.NewGrantCmd(opts),
		cmd.NewExecCmd(opts),
		cmd.NewProbeCmd(opts),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qtsettings v%s\n", version)
		},
	}
}
