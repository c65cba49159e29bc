package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qtsettings/internal/shell"

	"github.com/sirupsen/logrus"
)

const WriteSecureSettings = "android.permission.WRITE_SECURE_SETTINGS"

// ShellPort talks to the settings provider through the "settings" binary.
// The runner decides where that binary runs (locally, over adb, under su).
type ShellPort struct {
	runner shell.Runner
	// packageName, when set, is checked for the WRITE_SECURE_SETTINGS grant.
	// When empty the runner identity (shell or root) is assumed privileged
	// if "id -u" says so.
	packageName string
}

var _ Port = (*ShellPort)(nil)

// NewShellPort creates a port over the given runner.
func NewShellPort(runner shell.Runner, packageName string) *ShellPort {
	return &ShellPort{runner: runner, packageName: packageName}
}

func (p *ShellPort) ReadRaw(ctx context.Context, key string) (string, error) {
	res, err := p.runner.Run(ctx, "settings", "get", "global", key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	v := strings.TrimSpace(res.Stdout)
	if v == "null" {
		return "", nil
	}
	return v, nil
}

func (p *ShellPort) ReadDNS(ctx context.Context) (DnsState, error) {
	raw, err := p.ReadRaw(ctx, KeyPrivateDNSMode)
	if err != nil {
		return Off(), err
	}
	mode, known := ParseMode(raw)
	if !known && raw != "" {
		logrus.WithField("raw_mode", raw).Warn("Unknown private DNS mode, treating as off")
	}
	if mode != ModeHostname {
		return DnsState{Mode: mode}, nil
	}
	host, err := p.ReadRaw(ctx, KeyPrivateDNSSpecifier)
	if err != nil {
		return On(""), err
	}
	return On(host), nil
}

func (p *ShellPort) WriteDNS(ctx context.Context, s DnsState) error {
	if s.IsBlankOn() {
		return writeFailed(KeyPrivateDNSSpecifier, ErrBlankHostname)
	}
	if s.Mode == ModeHostname {
		if err := p.put(ctx, KeyPrivateDNSSpecifier, s.Hostname); err != nil {
			return err
		}
	}
	return p.put(ctx, KeyPrivateDNSMode, string(s.Mode))
}

func (p *ShellPort) ReadUSB(ctx context.Context) (UsbState, error) {
	raw, err := p.ReadRaw(ctx, KeyADBEnabled)
	if err != nil {
		return UsbDisabled, err
	}
	return UsbState(raw == "1"), nil
}

func (p *ShellPort) WriteUSB(ctx context.Context, u UsbState) error {
	return p.put(ctx, KeyADBEnabled, u.raw())
}

func (p *ShellPort) IsDeveloperModeOn(ctx context.Context) bool {
	raw, err := p.ReadRaw(ctx, KeyDevelopmentSettings)
	if err != nil {
		logrus.WithError(err).Debug("Failed to read developer options state")
		return false
	}
	return raw == "1"
}

func (p *ShellPort) IsPrivilegeGranted(ctx context.Context) bool {
	if p.packageName == "" {
		res, err := p.runner.Run(ctx, "id", "-u")
		if err != nil {
			logrus.WithError(err).Debug("Failed to read runner identity")
			return false
		}
		// root and the adb shell user both hold WRITE_SECURE_SETTINGS.
		uid := strings.TrimSpace(res.Stdout)
		return uid == "0" || uid == "2000"
	}

	res, err := p.runner.Run(ctx, "dumpsys", "package", p.packageName)
	if err != nil {
		logrus.WithError(err).WithField("package", p.packageName).Debug("Failed to query package permissions")
		return false
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, WriteSecureSettings+":") {
			return strings.Contains(line, "granted=true")
		}
	}
	return false
}

func (p *ShellPort) put(ctx context.Context, key, value string) error {
	res, err := p.runner.Run(ctx, "settings", "put", "global", key, value)
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) && isPermissionText(exitErr.Result.Stderr+exitErr.Result.Stdout) {
			return permissionDenied(key, err)
		}
		return writeFailed(key, err)
	}
	// "settings put" exits 0 on some builds even when the provider throws.
	if isPermissionText(res.Stderr) {
		return permissionDenied(key, fmt.Errorf("%s", res.Stderr))
	}
	return nil
}
