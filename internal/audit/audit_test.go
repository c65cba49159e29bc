package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type str string

func (s str) String() string { return string(s) }

func TestAuditWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	path := GetLogPath()
	require.NotEmpty(t, path)

	LogSettingChange(EventDNSChanged, "tap", str("off"), str("auto"))
	LogRevert(EventRevertArmed, "dns", str("off"), map[string]interface{}{"delay": "5s"})
	LogWriteFailure("vpn", errors.New("permission denied"))
	require.NoError(t, Close())
	assert.Empty(t, GetLogPath())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []EventType
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		types = append(types, ev.Type)
		if ev.Type == EventDNSChanged {
			assert.Equal(t, "tap", ev.Details["source"])
			assert.Equal(t, "auto", ev.Details["to"])
		}
	}
	assert.Equal(t, []EventType{
		EventServiceStart, EventDNSChanged, EventRevertArmed, EventWriteFailed, EventServiceStop,
	}, types)
}

func TestAuditWithoutInitializeFallsBackToLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Log(EventUSBChanged, "info", "no file", nil)
	})
	assert.NoError(t, Close())
}
