package cmd

import (
	"context"
	"fmt"
	"sort"

	"qtsettings/internal/api"
	"qtsettings/internal/config"
	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/tile"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tile and agent status",
		Long:  `Display both tiles, pending auto-reverts, privilege and detector state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts)
		},
	}
}

func runStatus(ctx context.Context, opts *Options) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	setupQuiet(cfg)

	fmt.Println("🔍 Quick Settings Status")
	fmt.Println("========================")

	var st api.Status
	agent := false
	if cfg.Agent.APIAddr != "" {
		c := newClient(cfg.Agent.APIAddr)
		if c.alive(ctx) {
			if err := c.do(ctx, "GET", "/api/status", nil, &st); err != nil {
				return err
			}
			agent = true
		}
	}
	if !agent {
		if st, err = localStatus(ctx, cfg); err != nil {
			return err
		}
	}

	if agent {
		fmt.Printf("✅ Agent %s running on %s\n", st.Version, cfg.Agent.APIAddr)
	} else {
		fmt.Println("⚠️  Agent not running (status read directly)")
	}
	if st.Privileged {
		fmt.Println("✅ WRITE_SECURE_SETTINGS granted")
	} else {
		fmt.Println("❌ WRITE_SECURE_SETTINGS not granted (run 'qtsettings grant')")
	}
	if st.DevMode {
		fmt.Println("✅ Developer options enabled")
	} else {
		fmt.Println("⚠️  Developer options disabled")
	}

	for _, kind := range []settings.Tile{settings.TileDNS, settings.TileUSB} {
		p := st.Tiles[kind]
		fmt.Printf("\n📱 %s tile: %s [%s]\n", kind, p.Label, p.State)
		if p.Subtitle != "" {
			fmt.Printf("   %s\n", p.Subtitle)
		}
		if r, ok := st.Reverts[kind]; ok && r.Phase == revert.Armed.String() {
			fmt.Printf("   ⏱  reverting to %s in %ds\n", r.Target, r.RemainingSeconds)
		}
	}

	if len(st.Detectors) > 0 {
		fmt.Println("\n📡 Background detectors:")
		names := make([]string, 0, len(st.Detectors))
		for name := range st.Detectors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			mark := "stopped"
			if st.Detectors[name] {
				mark = "running"
			}
			fmt.Printf("   %s: %s\n", name, mark)
		}
	}
	return nil
}

func localStatus(ctx context.Context, cfg *config.Config) (api.Status, error) {
	app, err := NewApp(cfg)
	if err != nil {
		return api.Status{}, err
	}
	defer app.Close()
	app.Resume(ctx)

	hosts := app.Prefs.Hosts(ctx)
	st := api.Status{
		Privileged: app.Port.IsPrivilegeGranted(ctx),
		DevMode:    app.Port.IsDeveloperModeOn(ctx),
		Tiles: map[settings.Tile]tile.Presentation{
			settings.TileDNS: app.DNS.Render(ctx),
			settings.TileUSB: app.USB.Render(ctx),
		},
		Reverts: map[settings.Tile]api.RevertStatus{},
	}
	if ds := app.DNS.Timer().Status(); ds.Phase == revert.Armed {
		st.Reverts[settings.TileDNS] = api.RevertStatus{
			Phase:            ds.Phase.String(),
			Target:           tile.DNSName(ds.Captured, hosts),
			RemainingSeconds: ds.RemainingSeconds(),
		}
	}
	if us := app.USB.Timer().Status(); us.Phase == revert.Armed {
		st.Reverts[settings.TileUSB] = api.RevertStatus{
			Phase:            us.Phase.String(),
			Target:           tile.USBName(us.Captured),
			RemainingSeconds: us.RemainingSeconds(),
		}
	}
	return st, nil
}
