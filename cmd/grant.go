package cmd

import (
	"fmt"
	"os"
	"strings"

	"qtsettings/internal/privilege"

	"github.com/spf13/cobra"
)

// NewGrantCmd creates the grant command
func NewGrantCmd(opts *Options) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant WRITE_SECURE_SETTINGS to the tile package",
		Long: `Run "pm grant" through the configured backend (adb shell or su) so the
tile package may change Private DNS and USB debugging.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			setupQuiet(cfg)
			if pkg == "" {
				pkg = cfg.Settings.PackageName
			}

			executor := &privilege.Executor{Runner: newRunner(cfg.Settings), Method: cfg.Settings.Backend}
			if err := executor.Grant(cmd.Context(), pkg); err != nil {
				return err
			}
			fmt.Printf("✅ Granted WRITE_SECURE_SETTINGS to %s\n", pkg)
			return nil
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "package to grant (default settings.packageName)")
	return cmd
}

// NewExecCmd creates the exec command
func NewExecCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec COMMAND...",
		Short: "Run a command through the elevated backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			setupQuiet(cfg)

			executor := &privilege.Executor{Runner: newRunner(cfg.Settings), Method: cfg.Settings.Backend}
			res, err := executor.Execute(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, res.Stdout)
			fmt.Fprint(os.Stderr, res.Stderr)
			if res.Code != 0 {
				return fmt.Errorf("exited %d", res.Code)
			}
			return nil
		},
	}
}
