// Package privilege runs elevated commands (adb shell or su) and grants the
// secure-settings permission to the tile package.
package privilege

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qtsettings/internal/audit"
	"qtsettings/internal/settings"
	"qtsettings/internal/shell"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrNoPackage    = errors.New("package name is required")
)

// ExitResult is what callers learn from an elevated command.
type ExitResult struct {
	Code   int
	Stdout string
	Stderr string
}

// Executor runs commands with elevated rights. Its Runner is expected to be a
// shell.Wrapped carrying the adb or su prefix.
type Executor struct {
	Runner shell.Runner
	Method string
}

// Execute runs command and reports its exit code. An error is returned only
// when the command could not be started; a non-zero exit is a result.
func (e *Executor) Execute(ctx context.Context, command string) (ExitResult, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ExitResult{Code: -1}, ErrEmptyCommand
	}

	res, err := e.Runner.Run(ctx, fields[0], fields[1:]...)
	out := ExitResult{Code: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}

	var exitErr *shell.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return ExitResult{Code: -1, Stderr: err.Error()}, fmt.Errorf("executing %q: %w", command, err)
	}
	logrus.WithFields(logrus.Fields{
		"method": e.Method,
		"code":   out.Code,
	}).Debugf("Executed %s", fields[0])
	return out, nil
}

// Grant gives pkg WRITE_SECURE_SETTINGS through pm.
func (e *Executor) Grant(ctx context.Context, pkg string) error {
	if strings.TrimSpace(pkg) == "" {
		return ErrNoPackage
	}
	res, err := e.Execute(ctx, "pm grant "+pkg+" "+settings.WriteSecureSettings)
	if err != nil {
		return err
	}
	if res.Code != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		audit.Log(audit.EventPrivilegeGranted, "error", "Failed to grant "+settings.WriteSecureSettings, map[string]interface{}{
			"package": pkg,
			"method":  e.Method,
			"code":    res.Code,
			"stderr":  msg,
		})
		return fmt.Errorf("pm grant exited %d: %s", res.Code, msg)
	}

	logrus.WithFields(logrus.Fields{"package": pkg, "method": e.Method}).Info("Granted WRITE_SECURE_SETTINGS")
	audit.Log(audit.EventPrivilegeGranted, "info", "Granted "+settings.WriteSecureSettings, map[string]interface{}{
		"package": pkg,
		"method":  e.Method,
	})
	return nil
}
