package notify

import (
	"context"
	"testing"

	"qtsettings/internal/settings"
	"qtsettings/internal/shell"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiAndRecorder(t *testing.T) {
	ctx := context.Background()
	a, b := &Recorder{}, &Recorder{}
	var seen []string
	m := Multi{a, nil, b, Func(func(_ context.Context, n Notice) { seen = append(seen, n.Message) })}

	m.Notify(ctx, New(settings.TileDNS, Info, "Reverted to Off"))

	assert.Equal(t, []string{"Reverted to Off"}, a.Messages())
	assert.Equal(t, []string{"Reverted to Off"}, b.Messages())
	assert.Equal(t, []string{"Reverted to Off"}, seen)

	a.Reset()
	assert.Empty(t, a.Notices())
}

func TestAndroidPostsNotification(t *testing.T) {
	mock := &shell.MockRunner{Handler: func(name string, args ...string) (shell.MockResponse, bool) {
		return shell.MockResponse{}, name == "cmd"
	}}
	n := &Android{Runner: mock}
	n.Notify(context.Background(), New(settings.TileUSB, Warning, "Developer options are off"))

	calls := mock.CallLog()
	require.Len(t, calls, 1)
	assert.Equal(t, "cmd notification post -S bigtext -t Quick Settings qtsettings_usb Developer options are off", calls[0])
}
