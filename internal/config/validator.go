package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// WarnInsecure logs configuration that exposes more than it should.
func WarnInsecure(cfg *Config) {
	warnings := []string{}

	if host, _, err := net.SplitHostPort(cfg.Agent.APIAddr); err == nil && cfg.Agent.APIAddr != "" {
		if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
			warnings = append(warnings, "control API listens beyond loopback and has no authentication")
		}
	}

	if cfg.Agent.LogLevel == "debug" && cfg.Agent.EnablePII {
		warnings = append(warnings, "PII logging is enabled - resolver hostnames and addresses will be logged")
	}

	for _, warning := range warnings {
		logrus.Warn(fmt.Sprintf("SECURITY: %s", warning))
	}
}

// SanitizeConfigForLogging returns a sanitized version of the config for logging
func SanitizeConfigForLogging(cfg *Config) map[string]interface{} {
	sanitized := make(map[string]interface{})

	agent := make(map[string]interface{})
	agent["log_level"] = cfg.Agent.LogLevel
	agent["api_addr"] = cfg.Agent.APIAddr
	agent["pii"] = cfg.Agent.EnablePII
	sanitized["agent"] = agent

	settings := make(map[string]interface{})
	settings["backend"] = cfg.Settings.Backend
	settings["package_name"] = cfg.Settings.PackageName
	settings["poll_interval"] = cfg.Settings.PollInterval
	if cfg.Settings.ADBSerial != "" {
		// Device serials identify hardware.
		settings["adb_serial"] = "[CONFIGURED]"
	}
	sanitized["settings"] = settings

	detect := make(map[string]interface{})
	detect["source"] = cfg.Detect.Source
	detect["vpn_interval"] = cfg.Detect.VPNInterval
	detect["network_interval"] = cfg.Detect.NetworkInterval
	detect["background_interval"] = cfg.Detect.BackgroundInterval
	detect["disconnect_grace"] = cfg.Detect.DisconnectGrace
	sanitized["detect"] = detect

	sanitized["store_path"] = cfg.Store.Path
	if cfg.Audit.Dir != "" {
		sanitized["audit_dir"] = cfg.Audit.Dir
	}

	return sanitized
}

// ValidateConfig performs basic configuration validation
func ValidateConfig(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.Agent.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.Agent.LogLevel)
	}

	if cfg.Agent.APIAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Agent.APIAddr); err != nil {
			return fmt.Errorf("invalid api address %q: %w", cfg.Agent.APIAddr, err)
		}
	}

	switch cfg.Settings.Backend {
	case BackendLocal, BackendADB, BackendSU:
	default:
		return fmt.Errorf("unknown settings backend %q (want local, adb or su)", cfg.Settings.Backend)
	}
	if cfg.Settings.ADBSerial != "" && cfg.Settings.Backend != BackendADB {
		return fmt.Errorf("adbSerial is only valid with the adb backend")
	}
	if strings.ContainsAny(cfg.Settings.PackageName, " \t;|&") {
		return fmt.Errorf("invalid package name %q", cfg.Settings.PackageName)
	}

	switch cfg.Detect.Source {
	case SourceInterfaces, SourceShell:
	default:
		return fmt.Errorf("unknown detect source %q (want interfaces or shell)", cfg.Detect.Source)
	}

	intervals := map[string]time.Duration{
		"settings.pollInterval":     cfg.Settings.PollInterval,
		"detect.vpnInterval":        cfg.Detect.VPNInterval,
		"detect.networkInterval":    cfg.Detect.NetworkInterval,
		"detect.backgroundInterval": cfg.Detect.BackgroundInterval,
		"probe.timeout":             cfg.Probe.Timeout,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.Detect.DisconnectGrace < 0 {
		return fmt.Errorf("detect.disconnectGrace must not be negative")
	}

	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	return nil
}
