package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"qtsettings/internal/api"
	"qtsettings/internal/audit"
	"qtsettings/internal/config"
	"qtsettings/internal/detect"
	"qtsettings/internal/logging"
	"qtsettings/internal/security"
	"qtsettings/internal/settings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command
func NewRunCmd(opts *Options, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the tile agent",
		Long: `Start the agent: revert timers, background detectors and the local
control API that tile front ends tap and render through.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts, version)
		},
	}
}

func runAgent(opts *Options, version string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	logs, err := logging.Setup(cfg.Agent.LogLevel, cfg.Agent.EnablePII)
	if err != nil {
		return err
	}
	security.NewHardening().Apply()
	config.WarnInsecure(cfg)
	logrus.WithFields(logrus.Fields(config.SanitizeConfigForLogging(cfg))).Info("Configuration loaded")

	if cfg.Audit.Dir != "" {
		if err := audit.Initialize(cfg.Audit.Dir); err != nil {
			logrus.WithError(err).Warn("Failed to initialize audit logging")
		}
	}
	defer audit.Close()

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !app.Port.IsPrivilegeGranted(ctx) {
		logrus.WithField("package", cfg.Settings.PackageName).Warnf("%s not granted, taps will be refused", settings.WriteSecureSettings)
	}

	var wg sync.WaitGroup

	app.Resume(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.RunTimers(ctx)
	}()

	host := detect.NewHost(ctx, app.Prefs, app.VPN, app.Network, cfg.Detect.BackgroundInterval)
	host.Apply(ctx)

	// A connected websocket client is a visible tile.
	app.Hub.OnActive = func(active bool) {
		if active {
			app.DNS.StartListening(ctx, app.Hub.BroadcastTile)
			app.USB.StartListening(ctx, app.Hub.BroadcastTile)
			return
		}
		app.DNS.StopListening()
		app.USB.StopListening()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Hub.Run(ctx)
	}()

	var server *api.Server
	if cfg.Agent.APIAddr != "" {
		server = api.NewServer(api.Deps{
			DNS:       app.DNS,
			USB:       app.USB,
			Prefs:     app.Prefs,
			Port:      app.Port,
			Detectors: host,
			Prober:    app.Prober,
			Logs:      logs,
			Hub:       app.Hub,
			Version:   version,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(cfg.Agent.APIAddr); err != nil {
				logrus.WithError(err).Error("API server failed")
			}
		}()
		logrus.WithField("addr", cfg.Agent.APIAddr).Info("Control API listening")
	}

	audit.Log(audit.EventServiceStart, "info", "Agent started", map[string]interface{}{
		"version": version,
		"backend": cfg.Settings.Backend,
	})
	logrus.Info("qtsettings agent is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Error stopping API server")
		}
	}
	app.DNS.StopListening()
	app.USB.StopListening()
	host.StopAll()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logrus.Warn("Timeout waiting for goroutines to stop")
	}

	audit.Log(audit.EventServiceStop, "info", "Agent stopped", nil)
	logrus.Info("qtsettings agent stopped")
	return nil
}

// setupQuiet configures logging for one-shot commands. Direct writes are
// audited to the same trail as the agent's.
func setupQuiet(cfg *config.Config) {
	level := cfg.Agent.LogLevel
	if level == "info" {
		level = "warn"
	}
	if _, err := logging.Setup(level, cfg.Agent.EnablePII); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
	}
	if cfg.Audit.Dir != "" {
		if err := audit.Initialize(cfg.Audit.Dir); err != nil {
			logrus.WithError(err).Warn("Failed to initialize audit logging")
		}
	}
}
