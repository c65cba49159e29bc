package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"qtsettings/internal/api"
	"qtsettings/internal/config"
	"qtsettings/internal/settings"
	"qtsettings/internal/shell"
	"qtsettings/internal/store"
	"qtsettings/internal/tile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunner(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.SettingsConfig
		prefix []string
		quote  bool
	}{
		{"adb with serial", config.SettingsConfig{Backend: config.BackendADB, ADBSerial: "emulator-5554"}, []string{"adb", "-s", "emulator-5554", "shell"}, false},
		{"adb without serial", config.SettingsConfig{Backend: config.BackendADB}, []string{"adb", "shell"}, false},
		{"su", config.SettingsConfig{Backend: config.BackendSU}, []string{"su", "-c"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := newRunner(tt.cfg).(*shell.Wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.prefix, w.Prefix)
			assert.Equal(t, tt.quote, w.Quote)
		})
	}

	_, ok := newRunner(config.SettingsConfig{Backend: config.BackendLocal}).(*shell.ExecRunner)
	assert.True(t, ok)
}

// startAgent serves the control API over an in-memory device.
func startAgent(t *testing.T) (*client, *settings.MemoryPort) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	port := settings.NewMemoryPort()
	locks := &settings.Locks{}
	prefs := store.NewPrefs(store.NewMemory())
	hub := api.NewHub()
	go hub.Run(ctx)

	srv := api.NewServer(api.Deps{
		DNS:   tile.NewDNS(tile.DNSConfig{Port: port, Lock: &locks.DNS, Prefs: prefs, Notifier: hub}),
		USB:   tile.NewUSB(tile.USBConfig{Port: port, Lock: &locks.USB, Prefs: prefs, Notifier: hub}),
		Prefs: prefs,
		Port:  port,
		Hub:   hub,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return newClient(strings.TrimPrefix(ts.URL, "http://")), port
}

func TestClientAlive(t *testing.T) {
	c, _ := startAgent(t)
	assert.True(t, c.alive(context.Background()))

	var nilClient *client
	assert.False(t, nilClient.alive(context.Background()))

	ts := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(ts.URL, "http://")
	ts.Close()
	assert.False(t, newClient(addr).alive(context.Background()))
}

func TestClientTapThroughAgent(t *testing.T) {
	c, port := startAgent(t)
	ctx := context.Background()

	var res tile.Result
	require.NoError(t, c.do(ctx, http.MethodPost, "/api/tiles/dns/tap", nil, &res))
	assert.Equal(t, tile.Changed, res.Outcome)
	assert.Equal(t, "Auto", res.To)

	state, err := port.ReadDNS(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Auto().Equal(state))

	port.SetPrivileged(false)
	err = c.do(ctx, http.MethodPost, "/api/tiles/dns/tap", nil, &res)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, tile.Denied, res.Outcome)
}

// exerciseControl runs the same host and preference edits against either
// implementation.
func exerciseControl(t *testing.T, ctrl control) {
	t.Helper()
	ctx := context.Background()

	hosts, err := ctrl.Hosts(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 3)

	rec, err := ctrl.AddHost(ctx, "Example", "dot.example.com", false)
	require.NoError(t, err)
	assert.Equal(t, "dot.example.com", rec.Hostname)
	assert.True(t, rec.Selected)

	_, err = ctrl.AddHost(ctx, "Bad", "not a host", false)
	assert.Error(t, err)

	rec, err = ctrl.EditHost(ctx, rec.ID, "Renamed", "dot2.example.com")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", rec.Name)

	require.NoError(t, ctrl.SelectHost(ctx, rec.ID, false))
	hosts, err = ctrl.Hosts(ctx)
	require.NoError(t, err)
	found, ok := store.FindByHostname(hosts, "dot2.example.com")
	require.True(t, ok)
	assert.False(t, found.Selected)

	assert.Error(t, ctrl.RemoveHost(ctx, "quad9_default"))
	require.NoError(t, ctrl.RemoveHost(ctx, rec.ID))

	imported, err := ctrl.ImportHosts(ctx, []byte(`[{"id":"mullvad","name":"Mullvad","hostname":"dns.mullvad.net","selected":true}]`))
	require.NoError(t, err)
	assert.Len(t, imported, 4)
	_, err = ctrl.ImportHosts(ctx, []byte(`[{"name":"","hostname":"dns.example.com"}]`))
	assert.Error(t, err)

	require.NoError(t, ctrl.SetPref(ctx, store.KeyDNSAutoRevertDelay, "12"))
	values, err := ctrl.Prefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12", values[store.KeyDNSAutoRevertDelay])

	assert.Error(t, ctrl.SetPref(ctx, "nope", "1"))
	assert.Error(t, ctrl.SetPref(ctx, store.KeyDNSAutoRevertDelay, "-1"))
}

func TestRemoteControl(t *testing.T) {
	c, _ := startAgent(t)
	exerciseControl(t, &remoteControl{c: c})
}

func TestLocalControl(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "qtsettings.db")

	app, err := NewApp(cfg)
	require.NoError(t, err)
	ctrl := &localControl{app: app}
	defer ctrl.Close()

	exerciseControl(t, ctrl)
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"code":404,"message":"unknown key"}`, "unknown key"},
		{`{"outcome":"permission_denied","error":"permission denied"}`, "permission denied"},
		{`not json`, "agent returned 500"},
	}

	for _, tt := range tests {
		err := &apiError{Status: 500, Body: []byte(tt.body)}
		assert.Equal(t, tt.want, err.Error())
	}
}
