// Package cmd implements the qtsettings command line: the agent service and
// one-shot commands for tapping tiles, inspecting state and editing
// preferences.
package cmd

import (
	"context"
	"fmt"
	"time"

	"qtsettings/internal/api"
	"qtsettings/internal/config"
	"qtsettings/internal/detect"
	"qtsettings/internal/dot"
	"qtsettings/internal/notify"
	"qtsettings/internal/privilege"
	"qtsettings/internal/settings"
	"qtsettings/internal/shell"
	"qtsettings/internal/store"
	"qtsettings/internal/store/sqlite"
	"qtsettings/internal/tile"

	"github.com/sirupsen/logrus"
)

// Options are shared by every subcommand.
type Options struct {
	ConfigFile string
}

func (o *Options) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// App is the wired component graph for one process.
type App struct {
	Config   *config.Config
	Runner   shell.Runner
	Port     settings.Port
	Locks    *settings.Locks
	Store    *sqlite.Store
	Prefs    *store.Prefs
	Hub      *api.Hub
	Notifier notify.Notifier
	VPN      *detect.VPN
	Network  *detect.Network
	DNS      *tile.DNS
	USB      *tile.USB
	Executor *privilege.Executor
	Prober   *dot.Prober
}

// newRunner wraps the exec runner for the configured backend.
func newRunner(cfg config.SettingsConfig) shell.Runner {
	base := &shell.ExecRunner{}
	switch cfg.Backend {
	case config.BackendADB:
		prefix := []string{"adb"}
		if cfg.ADBSerial != "" {
			prefix = append(prefix, "-s", cfg.ADBSerial)
		}
		return &shell.Wrapped{Runner: base, Prefix: append(prefix, "shell")}
	case config.BackendSU:
		return &shell.Wrapped{Runner: base, Prefix: []string{"su", "-c"}, Quote: true}
	}
	return base
}

func newProbe(cfg *config.Config, runner shell.Runner) detect.Probe {
	if cfg.Detect.Source == config.SourceShell {
		return &detect.ShellProbe{Runner: runner}
	}
	if cfg.Settings.Backend == config.BackendADB {
		logrus.Warn("Interface detection reads this host's interfaces, not the device's; set detect.source to shell")
	}
	return &detect.InterfaceProbe{}
}

// NewApp opens the store and wires every component.
func NewApp(cfg *config.Config) (*App, error) {
	st, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &App{
		Config: cfg,
		Runner: newRunner(cfg.Settings),
		Locks:  &settings.Locks{},
		Store:  st,
		Prefs:  store.NewPrefs(st),
		Hub:    api.NewHub(),
	}
	a.Port = settings.NewShellPort(a.Runner, cfg.Settings.PackageName)

	notifiers := notify.Multi{notify.Log{}, a.Hub}
	if cfg.Agent.AndroidNotices {
		notifiers = append(notifiers, &notify.Android{Runner: a.Runner, Title: "Quick Settings"})
	}
	a.Notifier = notifiers

	probe := newProbe(cfg, a.Runner)
	a.VPN = detect.NewVPN(detect.VPNConfig{
		Port:     a.Port,
		Lock:     &a.Locks.DNS,
		Store:    st,
		Probe:    probe,
		Notifier: a.Notifier,
		Grace:    cfg.Detect.DisconnectGrace,
	})
	a.Network = detect.NewNetwork(detect.NetworkConfig{
		Port:     a.Port,
		Lock:     &a.Locks.DNS,
		Prefs:    a.Prefs,
		Probe:    probe,
		Notifier: a.Notifier,
	})

	a.DNS = tile.NewDNS(tile.DNSConfig{
		Port:            a.Port,
		Lock:            &a.Locks.DNS,
		Prefs:           a.Prefs,
		Notifier:        a.Notifier,
		VPN:             a.VPN,
		Network:         a.Network,
		VPNInterval:     cfg.Detect.VPNInterval,
		NetworkInterval: cfg.Detect.NetworkInterval,
		WatchInterval:   cfg.Settings.PollInterval,
	})
	a.USB = tile.NewUSB(tile.USBConfig{
		Port:          a.Port,
		Lock:          &a.Locks.USB,
		Prefs:         a.Prefs,
		Notifier:      a.Notifier,
		WatchInterval: cfg.Settings.PollInterval,
	})

	a.Executor = &privilege.Executor{Runner: a.Runner, Method: cfg.Settings.Backend}
	a.Prober = newProber(cfg)
	return a, nil
}

// Resume re-arms reverts persisted by an earlier process.
func (a *App) Resume(ctx context.Context) {
	if ok, err := a.DNS.Timer().Resume(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to resume DNS auto-revert")
	} else if ok {
		logrus.Info("Resumed pending DNS auto-revert")
	}
	if ok, err := a.USB.Timer().Resume(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to resume USB auto-revert")
	} else if ok {
		logrus.Info("Resumed pending USB auto-revert")
	}
}

// RunTimers drives both revert timers until ctx is done.
func (a *App) RunTimers(ctx context.Context) {
	go a.DNS.Timer().Run(ctx, time.Second)
	a.USB.Timer().Run(ctx, time.Second)
}

func (a *App) Close() error {
	return a.Store.Close()
}
