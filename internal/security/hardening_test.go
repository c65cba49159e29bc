//go:build linux || darwin

package security

import (
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyHardening(t *testing.T) {
	old := syscall.Umask(0o022)
	defer syscall.Umask(old)
	t.Setenv("QTSETTINGS_ADB_SERIAL", "emulator-5554")

	NewHardening().Apply()

	_, set := os.LookupEnv("QTSETTINGS_ADB_SERIAL")
	assert.False(t, set)

	var core syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_CORE, &core))
	assert.Zero(t, core.Cur)

	path := filepath.Join(t.TempDir(), "store.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o666))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestResourceLimitKeepsLowerHardLimit(t *testing.T) {
	var cur syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_NOFILE, &cur))
	if cur.Max == math.MaxUint64 {
		t.Skip("hard descriptor limit is unlimited")
	}

	h := &Hardening{MaxFiles: cur.Max + 1}
	require.NoError(t, h.setResourceLimits())

	var after syscall.Rlimit
	require.NoError(t, syscall.Getrlimit(syscall.RLIMIT_NOFILE, &after))
	assert.Equal(t, cur, after)
}
