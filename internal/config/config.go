// Package config defines the agent configuration and its loading logic.
// Values come from defaults, then an optional YAML file, then QTSETTINGS_*
// environment variables. User preferences are not configuration; they live in
// the preference store.
package config

import (
	"fmt"
	"os"
	"time"

	"qtsettings/internal/utils"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "QTSETTINGS_"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"./qtsettings.yaml", "/data/local/tmp/qtsettings/config.yaml"}

type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Settings SettingsConfig `yaml:"settings"`
	Store    StoreConfig    `yaml:"store"`
	Detect   DetectConfig   `yaml:"detect"`
	Probe    ProbeConfig    `yaml:"probe"`
	Audit    AuditConfig    `yaml:"audit"`
}

type AgentConfig struct {
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	// APIAddr is the control API listen address; empty disables the API.
	APIAddr   string `yaml:"apiAddr" env:"API_ADDR"`
	EnablePII bool   `yaml:"enablePII" env:"ENABLE_PII"`
	// AndroidNotices posts notices through `cmd notification` as well.
	AndroidNotices bool `yaml:"androidNotices" env:"ANDROID_NOTICES"`
}

// SettingsConfig selects how the secure settings are reached.
type SettingsConfig struct {
	// Backend is local, adb or su.
	Backend      string        `yaml:"backend" env:"BACKEND"`
	ADBSerial    string        `yaml:"adbSerial" env:"ADB_SERIAL"`
	PackageName  string        `yaml:"packageName" env:"PACKAGE_NAME"`
	PollInterval time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"STORE_PATH"`
}

type DetectConfig struct {
	VPNInterval        time.Duration `yaml:"vpnInterval" env:"DETECT_VPN_INTERVAL"`
	NetworkInterval    time.Duration `yaml:"networkInterval" env:"DETECT_NETWORK_INTERVAL"`
	BackgroundInterval time.Duration `yaml:"backgroundInterval" env:"DETECT_BACKGROUND_INTERVAL"`
	DisconnectGrace    time.Duration `yaml:"disconnectGrace" env:"DETECT_DISCONNECT_GRACE"`
	// Source is "interfaces" (net.Interfaces) or "shell" (ip addr through the backend).
	Source string `yaml:"source" env:"DETECT_SOURCE"`
}

type ProbeConfig struct {
	Query   string        `yaml:"query" env:"PROBE_QUERY"`
	Timeout time.Duration `yaml:"timeout" env:"PROBE_TIMEOUT"`
}

type AuditConfig struct {
	Dir string `yaml:"dir" env:"AUDIT_DIR"`
}

const (
	BackendLocal = "local"
	BackendADB   = "adb"
	BackendSU    = "su"

	SourceInterfaces = "interfaces"
	SourceShell      = "shell"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			LogLevel: "info",
			APIAddr:  "127.0.0.1:5380",
		},
		Settings: SettingsConfig{
			Backend:      BackendLocal,
			PollInterval: time.Second,
		},
		Store: StoreConfig{
			Path: "qtsettings.db",
		},
		Detect: DetectConfig{
			VPNInterval:        2 * time.Second,
			NetworkInterval:    2 * time.Second,
			BackgroundInterval: 3 * time.Second,
			DisconnectGrace:    time.Second,
			Source:             SourceInterfaces,
		},
		Probe: ProbeConfig{
			Query:   "dns.google.",
			Timeout: 5 * time.Second,
		},
	}
}

// LoadConfig loads configuration from a YAML file and the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	// If no path specified, try default locations
	if path == "" {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	data, err := utils.ReadAllLimited(f, utils.MaxConfigFileSize)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := utils.CheckYAML(data, utils.MaxConfigFileSize); err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
