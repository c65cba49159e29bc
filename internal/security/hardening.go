//go:build linux || darwin

// Package security applies process hardening for the long-running agent. The
// agent holds the preference store, audit trail and an elevated shell, so
// files it creates stay private and its memory never lands in a core file.
package security

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

// SensitiveEnv are cleared once configuration has been read, so commands
// run through the backend do not inherit them.
var SensitiveEnv = []string{
	"QTSETTINGS_ADB_SERIAL",
}

// Hardening applies process limits for the agent.
type Hardening struct {
	Umask    int
	MaxFiles uint64
}

func NewHardening() *Hardening {
	return &Hardening{
		Umask:    0o077,
		MaxFiles: 1024,
	}
}

// Apply sets every measure it can; failures are logged, never fatal.
func (h *Hardening) Apply() {
	if err := h.setResourceLimits(); err != nil {
		logrus.WithError(err).Warn("Failed to set resource limits")
	}
	if err := disableCoreDumps(); err != nil {
		logrus.WithError(err).Warn("Failed to disable core dumps")
	}
	clearSensitiveEnv()
	old := syscall.Umask(h.Umask)
	logrus.Debugf("Changed umask from %04o to %04o", old, h.Umask)
}

// setResourceLimits lowers the descriptor limit. A hard limit below MaxFiles
// is left alone.
func (h *Hardening) setResourceLimits() error {
	var cur syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &cur); err != nil {
		return fmt.Errorf("failed to read file descriptor limit: %w", err)
	}
	if cur.Max < h.MaxFiles {
		return nil
	}
	limit := syscall.Rlimit{Cur: h.MaxFiles, Max: cur.Max}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return fmt.Errorf("failed to set file descriptor limit: %w", err)
	}
	return nil
}

func disableCoreDumps() error {
	limit := syscall.Rlimit{Cur: 0, Max: 0}
	return syscall.Setrlimit(syscall.RLIMIT_CORE, &limit)
}

func clearSensitiveEnv() {
	for _, v := range SensitiveEnv {
		os.Unsetenv(v)
	}
}
