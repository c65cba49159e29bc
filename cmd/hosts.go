package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"qtsettings/internal/store"
	"qtsettings/internal/utils"

	"github.com/spf13/cobra"
)

// NewHostsCmd creates the hosts command group
func NewHostsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage Private DNS providers",
		Long:  `List, add, edit, remove and select the DNS-over-TLS providers the DNS tile cycles through.`,
	}
	cmd.AddCommand(
		newHostsListCmd(opts),
		newHostsAddCmd(opts),
		newHostsEditCmd(opts),
		newHostsRemoveCmd(opts),
		newHostsSelectCmd(opts, true),
		newHostsSelectCmd(opts, false),
		newHostsExportCmd(opts),
		newHostsImportCmd(opts),
	)
	return cmd
}

func newHostsListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers in cycle order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			hosts, err := ctrl.Hosts(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOSTNAME\tSELECTED\tBUILTIN")
			for _, h := range hosts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", h.ID, h.Name, h.Hostname, h.Selected, h.Builtin)
			}
			return w.Flush()
		},
	}
}

func newHostsAddCmd(opts *Options) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "add NAME HOSTNAME",
		Short: "Add a custom provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			rec, err := ctrl.AddHost(cmd.Context(), args[0], args[1], verify)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Added %s (%s) as %s\n", rec.Name, rec.Hostname, rec.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "probe the hostname over DNS-over-TLS before adding it")
	return cmd
}

func newHostsEditCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "edit ID NAME HOSTNAME",
		Short: "Edit a custom provider",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			rec, err := ctrl.EditHost(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Updated %s: %s (%s)\n", rec.ID, rec.Name, rec.Hostname)
			return nil
		},
	}
}

func newHostsRemoveCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a custom provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			if err := ctrl.RemoveHost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("✅ Removed %s\n", args[0])
			return nil
		},
	}
}

func newHostsSelectCmd(opts *Options, selected bool) *cobra.Command {
	use, short := "select ID", "Include a provider in the DNS cycle"
	if !selected {
		use, short = "deselect ID", "Leave a provider out of the DNS cycle"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()
			return ctrl.SelectHost(cmd.Context(), args[0], selected)
		},
	}
}

func newHostsExportCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the provider list as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			hosts, err := ctrl.Hosts(cmd.Context())
			if err != nil {
				return err
			}
			data, err := store.EncodeHosts(hosts)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = fmt.Println(string(data))
				return err
			}
			return os.WriteFile(args[0], append(data, '\n'), 0o600)
		},
	}
}

func newHostsImportCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the provider list with an exported one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := utils.ReadAllLimited(f, utils.MaxHostListSize)
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}

			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			hosts, err := ctrl.ImportHosts(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Printf("✅ Imported %d providers\n", len(hosts))
			return nil
		},
	}
}
