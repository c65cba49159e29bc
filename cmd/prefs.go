package cmd

import (
	"fmt"
	"sort"

	"qtsettings/internal/store"

	"github.com/spf13/cobra"
)

// NewPrefsCmd creates the prefs command group
func NewPrefsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and change tile preferences",
	}
	cmd.AddCommand(newPrefsGetCmd(opts), newPrefsSetCmd(opts))
	return cmd
}

func newPrefsGetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print one preference or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			values, err := ctrl.Prefs(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				v, ok := values[args[0]]
				if !ok {
					return fmt.Errorf("%w: %s", store.ErrUnknownKey, args[0])
				}
				fmt.Println(v)
				return nil
			}

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, values[k])
			}
			return nil
		},
	}
}

func newPrefsSetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := openControlFor(cmd, opts)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			if err := ctrl.SetPref(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("✅ %s=%s\n", args[0], args[1])
			return nil
		},
	}
}
