package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/tile"

	"github.com/spf13/cobra"
)

// NewTapCmd creates the tap command
func NewTapCmd(opts *Options) *cobra.Command {
	var noWait, direct bool

	cmd := &cobra.Command{
		Use:   "tap dns|usb",
		Short: "Tap a tile once",
		Long: `Advance the Private DNS or USB debugging tile to its next enabled state.
The tap goes through a running agent when one answers; otherwise it runs in
this process and, if an auto-revert was armed, waits for it to fire.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(settings.TileDNS), string(settings.TileUSB)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := settings.ParseTile(args[0])
			if !ok {
				return fmt.Errorf("unknown tile %q", args[0])
			}
			return runTap(cmd.Context(), opts, kind, direct, noWait)
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return without waiting for an armed auto-revert")
	cmd.Flags().BoolVar(&direct, "direct", false, "write settings from this process even if an agent is running")
	return cmd
}

func printResult(res tile.Result) {
	switch res.Outcome {
	case tile.Changed:
		fmt.Printf("✅ %s: %s → %s\n", res.Presentation.Tile, res.From, res.To)
	case tile.Unchanged:
		fmt.Printf("ℹ️  %s: already %s\n", res.Presentation.Tile, res.To)
	default:
		fmt.Printf("❌ %s: %s\n", res.Presentation.Tile, res.Outcome)
	}
	if res.Presentation.Subtitle != "" {
		fmt.Printf("   %s\n", res.Presentation.Subtitle)
	}
}

func runTap(ctx context.Context, opts *Options, kind settings.Tile, direct, noWait bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	setupQuiet(cfg)

	if !direct && cfg.Agent.APIAddr != "" {
		c := newClient(cfg.Agent.APIAddr)
		if c.alive(ctx) {
			var resp struct {
				tile.Result
				Error string `json:"error"`
			}
			err := c.do(ctx, "POST", "/api/tiles/"+string(kind)+"/tap", nil, &resp)
			var apiErr *apiError
			if err != nil && !errors.As(err, &apiErr) {
				return err
			}
			printResult(resp.Result)
			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			return err
		}
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Resume(ctx)

	var res tile.Result
	switch kind {
	case settings.TileDNS:
		res = app.DNS.Tap(ctx)
	case settings.TileUSB:
		res = app.USB.Tap(ctx)
	}
	printResult(res)
	if res.Err != nil {
		return res.Err
	}
	if !res.RevertArmed || noWait {
		return nil
	}

	switch kind {
	case settings.TileDNS:
		waitForRevert(ctx, app.DNS.Timer())
	case settings.TileUSB:
		waitForRevert(ctx, app.USB.Timer())
	}
	return nil
}

// waitForRevert drives t until it goes idle or the user interrupts. An
// interrupted revert stays persisted for the next agent or tap to resume.
func waitForRevert[T any](ctx context.Context, t *revert.Timer[T]) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go t.Run(ctx, time.Second)

	last := -1
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := t.Status()
		if st.Phase == revert.Idle {
			fmt.Println("✅ Auto-revert finished")
			return
		}
		if s := st.RemainingSeconds(); s != last {
			last = s
			fmt.Printf("   reverting in %ds\n", s)
		}
		select {
		case <-ctx.Done():
			fmt.Println("⚠️  Stopped waiting; the revert stays pending")
			return
		case <-ticker.C:
		}
	}
}
