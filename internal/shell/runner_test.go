package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRunner_Run(t *testing.T) {
	tests := []struct {
		name      string
		responses map[string]MockResponse
		cmd       string
		args      []string
		want      string
		wantCode  int
		wantErr   bool
	}{
		{
			name:      "known command returns predefined output",
			responses: map[string]MockResponse{"settings get global adb_enabled": {Stdout: "1"}},
			cmd:       "settings",
			args:      []string{"get", "global", "adb_enabled"},
			want:      "1",
		},
		{
			name:      "non-zero exit becomes ExitError",
			responses: map[string]MockResponse{"pm grant x": {Stderr: "boom", ExitCode: 255}},
			cmd:       "pm",
			args:      []string{"grant", "x"},
			wantCode:  255,
			wantErr:   true,
		},
		{
			name:      "unknown command returns error",
			responses: map[string]MockResponse{},
			cmd:       "unknown",
			wantCode:  -1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRunner{Responses: tt.responses}
			res, err := mock.Run(context.Background(), tt.cmd, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, res.Stdout)
			assert.Equal(t, tt.wantCode, res.ExitCode)
		})
	}
}

func TestMockRunner_ExitErrorCarriesStderr(t *testing.T) {
	mock := &MockRunner{Responses: map[string]MockResponse{
		"pm grant pkg": {Stderr: "java.lang.SecurityException: denied", ExitCode: 1},
	}}
	_, err := mock.Run(context.Background(), "pm", "grant", "pkg")

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Contains(t, exitErr.Error(), "SecurityException")
	assert.Equal(t, 1, exitErr.Result.ExitCode)
}

func TestWrapped_Run(t *testing.T) {
	t.Run("adb prefix passes args through", func(t *testing.T) {
		mock := &MockRunner{Responses: map[string]MockResponse{
			"adb -s emu shell settings get global adb_enabled": {Stdout: "0"},
		}}
		w := &Wrapped{Runner: mock, Prefix: []string{"adb", "-s", "emu", "shell"}}
		res, err := w.Run(context.Background(), "settings", "get", "global", "adb_enabled")
		require.NoError(t, err)
		assert.Equal(t, "0", res.Stdout)
	})

	t.Run("su quotes the command", func(t *testing.T) {
		mock := &MockRunner{Handler: func(name string, args ...string) (MockResponse, bool) {
			if name == "su" && len(args) == 2 && args[0] == "-c" && args[1] == "settings put global adb_enabled 1" {
				return MockResponse{}, true
			}
			return MockResponse{}, false
		}}
		w := &Wrapped{Runner: mock, Prefix: []string{"su", "-c"}, Quote: true}
		_, err := w.Run(context.Background(), "settings", "put", "global", "adb_enabled", "1")
		require.NoError(t, err)
	})

	t.Run("su keeps notification text as single words", func(t *testing.T) {
		mock := &MockRunner{Handler: func(string, ...string) (MockResponse, bool) { return MockResponse{}, true }}
		w := &Wrapped{Runner: mock, Prefix: []string{"su", "-c"}, Quote: true}
		_, err := w.Run(context.Background(), "cmd", "notification", "post", "-S", "bigtext",
			"-t", "Quick Settings", "qtsettings", "Reverting DNS to My DNS; reboot in 5s")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"su -c cmd notification post -S bigtext -t 'Quick Settings' qtsettings 'Reverting DNS to My DNS; reboot in 5s'",
		}, mock.CallLog())
	})

	t.Run("adb quotes each argument", func(t *testing.T) {
		var got []string
		mock := &MockRunner{Handler: func(name string, args ...string) (MockResponse, bool) {
			got = append([]string{name}, args...)
			return MockResponse{}, true
		}}
		w := &Wrapped{Runner: mock, Prefix: []string{"adb", "-s", "emu", "shell"}}
		_, err := w.Run(context.Background(), "cmd", "notification", "post", "-t", "USB debugging", "tag", "it's off")
		require.NoError(t, err)
		assert.Equal(t, []string{"adb", "-s", "emu", "shell", "cmd", "notification", "post", "-t", "'USB debugging'", "tag", `'it'\''s off'`}, got)
	})

	t.Run("no prefix runs directly", func(t *testing.T) {
		mock := &MockRunner{Responses: map[string]MockResponse{"id -u": {Stdout: "0"}}}
		w := &Wrapped{Runner: mock}
		res, err := w.Run(context.Background(), "id", "-u")
		require.NoError(t, err)
		assert.Equal(t, "0", res.Stdout)
		assert.Equal(t, []string{"id -u"}, mock.CallLog())
	})
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"adb_enabled", "adb_enabled"},
		{"dns.adguard.com", "dns.adguard.com"},
		{"", "''"},
		{"Quick Settings", "'Quick Settings'"},
		{"a;reboot", "'a;reboot'"},
		{"$(id)", "'$(id)'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Quote(tt.in))
		})
	}
}
