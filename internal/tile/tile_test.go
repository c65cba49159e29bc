package tile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qtsettings/internal/notify"
	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type fixture struct {
	port  *settings.MemoryPort
	locks *settings.Locks
	prefs *store.Prefs
	rec   *notify.Recorder
	clock *fakeClock
	dns   *DNS
	usb   *USB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		port:  settings.NewMemoryPort(),
		locks: &settings.Locks{},
		prefs: store.NewPrefs(store.NewMemory()),
		rec:   &notify.Recorder{},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.dns = NewDNS(DNSConfig{
		Port:          f.port,
		Lock:          &f.locks.DNS,
		Prefs:         f.prefs,
		Notifier:      f.rec,
		WatchInterval: 10 * time.Millisecond,
		Now:           f.clock.Now,
	})
	f.usb = NewUSB(USBConfig{
		Port:          f.port,
		Lock:          &f.locks.USB,
		Prefs:         f.prefs,
		Notifier:      f.rec,
		WatchInterval: 10 * time.Millisecond,
		Now:           f.clock.Now,
	})
	return f
}

func (f *fixture) set(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, f.prefs.SetValue(context.Background(), key, value))
}

func (f *fixture) readDNS(t *testing.T) settings.DnsState {
	t.Helper()
	s, err := f.port.ReadDNS(context.Background())
	require.NoError(t, err)
	return s
}

func TestDNSTapCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	want := []struct {
		state settings.DnsState
		label string
	}{
		{settings.Auto(), "Auto"},
		{settings.On("dns.adguard.com"), "AdGuard DNS"},
		{settings.On("one.one.one.one"), "Cloudflare (..."},
		{settings.On("dns.quad9.net"), "Quad9 Security"},
		{settings.Off(), "Off"},
	}
	for _, w := range want {
		res := f.dns.Tap(ctx)
		require.Equal(t, Changed, res.Outcome)
		assert.True(t, w.state.Equal(f.readDNS(t)), "want %s got %s", w.state, f.readDNS(t))
		assert.Equal(t, w.label, res.Presentation.Label)
		assert.False(t, res.RevertArmed)
	}
	assert.Empty(t, f.rec.Messages())
}

func TestDNSTapArmsAndReverts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyDNSAutoRevert, "true")
	f.set(t, store.KeyDNSAutoRevertDelay, "5")

	res := f.dns.Tap(ctx)
	require.Equal(t, Changed, res.Outcome)
	assert.True(t, res.RevertArmed)
	assert.Equal(t, "Auto", res.Presentation.Label)
	assert.Equal(t, "Reverting to Off in 5s", res.Presentation.Subtitle)
	assert.Contains(t, f.rec.Messages(), "Reverting DNS to Off in 5s")

	f.dns.Timer().Tick(ctx, f.clock.Advance(3*time.Second))
	assert.Equal(t, "Reverting to Off in 2s", f.dns.Render(ctx).Subtitle)
	assert.True(t, settings.Auto().Equal(f.readDNS(t)))

	f.dns.Timer().Tick(ctx, f.clock.Advance(2*time.Second))
	assert.True(t, settings.Off().Equal(f.readDNS(t)))
	assert.Equal(t, revert.Idle, f.dns.Timer().Status().Phase)
	assert.Contains(t, f.rec.Messages(), "Reverted to Off")

	p := f.dns.Render(ctx)
	assert.Equal(t, "Off", p.Label)
	assert.Empty(t, p.Subtitle)
}

func TestDNSSecondTapRecapturesCurrentState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyDNSAutoRevert, "true")
	f.set(t, store.KeyDNSAutoRevertDelay, "10")

	f.dns.Tap(ctx)
	f.clock.Advance(4 * time.Second)
	res := f.dns.Tap(ctx)
	require.True(t, res.RevertArmed)
	assert.Contains(t, f.rec.Messages(), "Auto-revert cancelled: tile tapped again")

	pending, ok := f.dns.Timer().Pending()
	require.True(t, ok)
	assert.True(t, settings.Auto().Equal(pending.Captured))
	assert.Equal(t, f.clock.Now().Add(10*time.Second), pending.Deadline)

	f.dns.Timer().Tick(ctx, f.clock.Advance(10*time.Second))
	assert.True(t, settings.Auto().Equal(f.readDNS(t)))
}

func TestDNSRevertNotArmed(t *testing.T) {
	tests := []struct {
		name  string
		prefs map[string]string
	}{
		{"disabled", map[string]string{store.KeyDNSAutoRevert: "false", store.KeyDNSAutoRevertDelay: "5"}},
		{"zero delay", map[string]string{store.KeyDNSAutoRevert: "true", store.KeyDNSAutoRevertDelay: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for k, v := range tt.prefs {
				f.set(t, k, v)
			}
			res := f.dns.Tap(context.Background())
			assert.Equal(t, Changed, res.Outcome)
			assert.False(t, res.RevertArmed)
			assert.Equal(t, revert.Idle, f.dns.Timer().Status().Phase)
		})
	}
}

func TestDNSTapWithoutPrivilege(t *testing.T) {
	f := newFixture(t)
	f.port.SetPrivileged(false)

	res := f.dns.Tap(context.Background())
	assert.Equal(t, Denied, res.Outcome)
	assert.ErrorIs(t, res.Err, settings.ErrPermissionDenied)
	assert.Empty(t, f.port.Writes())
	require.Len(t, f.rec.Notices(), 1)
	assert.Equal(t, notify.Warning, f.rec.Notices()[0].Level)
	assert.Contains(t, f.rec.Notices()[0].Message, "WRITE_SECURE_SETTINGS")
}

func TestDNSTapNoCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyDNSToggleOff, "false")
	f.set(t, store.KeyDNSToggleAuto, "false")
	for _, h := range f.prefs.Hosts(ctx) {
		require.NoError(t, f.prefs.SetHostSelected(ctx, h.ID, false))
	}

	res := f.dns.Tap(ctx)
	assert.Equal(t, NoCandidates, res.Outcome)
	assert.Empty(t, f.port.Writes())
	assert.Contains(t, f.rec.Messages(), "No DNS states are enabled for cycling")
}

func TestDNSTapWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.set(t, store.KeyDNSAutoRevert, "true")
	f.port.FailWrites(settings.KeyPrivateDNSMode, errors.New("provider rejected write"))

	res := f.dns.Tap(context.Background())
	assert.Equal(t, Failed, res.Outcome)
	assert.False(t, res.RevertArmed)
	assert.True(t, settings.Off().Equal(f.readDNS(t)))
	assert.Contains(t, f.rec.Messages(), "Failed to change Private DNS")
}

func TestDNSTapSingleCandidateIsUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyDNSToggleAuto, "false")
	for _, h := range f.prefs.Hosts(ctx) {
		require.NoError(t, f.prefs.SetHostSelected(ctx, h.ID, false))
	}

	res := f.dns.Tap(ctx)
	assert.Equal(t, Unchanged, res.Outcome)
	assert.Empty(t, f.port.Writes())
}

func TestDNSRenderSelfHeals(t *testing.T) {
	tests := []struct {
		name       string
		privileged bool
		toggleOff  string
		wantState  settings.DnsState
		wantLabel  string
	}{
		{"falls back to off", true, "true", settings.Off(), "Off"},
		{"falls back to auto", true, "false", settings.Auto(), "Auto"},
		{"no privilege", false, "true", settings.On(""), "Private DNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.set(t, store.KeyDNSToggleOff, tt.toggleOff)
			f.port.SetDNS(settings.On(""))
			f.port.SetPrivileged(tt.privileged)

			p := f.dns.Render(context.Background())
			assert.Equal(t, tt.wantLabel, p.Label)
			assert.Equal(t, tt.wantState.Mode, f.readDNS(t).Mode)
			assert.Empty(t, f.rec.Notices())
		})
	}
}

func TestDNSRenderUnknownHostname(t *testing.T) {
	f := newFixture(t)
	f.port.SetDNS(settings.On("resolver.example.internal"))

	p := f.dns.Render(context.Background())
	assert.Equal(t, "resolver.exa...", p.Label)
	assert.Equal(t, Active, p.State)
	assert.Equal(t, "ic_dns_on", p.Icon)
}

func TestDNSRenderUnrecognizedMode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLabel string
	}{
		{name: "vendor value", raw: "strict", wantLabel: "Unknown"},
		{name: "unset", raw: "", wantLabel: "Off"},
		{name: "off", raw: "off", wantLabel: "Off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.port.Set(settings.KeyPrivateDNSMode, tt.raw)

			p := f.dns.Render(context.Background())
			assert.Equal(t, tt.wantLabel, p.Label)
			assert.Equal(t, Inactive, p.State)
		})
	}
}

func TestDNSListeningRendersExternalChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)

	var mu sync.Mutex
	var last Presentation
	f.dns.StartListening(ctx, func(p Presentation) {
		mu.Lock()
		last = p
		mu.Unlock()
	})
	assert.True(t, f.dns.Listening())

	f.port.SetDNS(settings.On("dns.quad9.net"))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Label == "Quad9 Security"
	}, time.Second, 10*time.Millisecond)

	f.dns.StopListening()
	assert.False(t, f.dns.Listening())
}

func TestStopListeningKeepsPendingRevert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyDNSAutoRevert, "true")

	f.dns.StartListening(ctx, func(Presentation) {})
	f.dns.Tap(ctx)
	f.dns.StopListening()

	assert.Equal(t, revert.Armed, f.dns.Timer().Status().Phase)
	f.dns.Timer().Tick(ctx, f.clock.Advance(5*time.Second))
	assert.True(t, settings.Off().Equal(f.readDNS(t)))
}

func TestUSBTap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.usb.Tap(ctx)
	require.Equal(t, Changed, res.Outcome)
	assert.Equal(t, "USB Debug On", res.Presentation.Label)
	assert.Equal(t, Active, res.Presentation.State)

	res = f.usb.Tap(ctx)
	require.Equal(t, Changed, res.Outcome)
	assert.Equal(t, "USB Debug Off", res.Presentation.Label)
	assert.Equal(t, Inactive, res.Presentation.State)
}

func TestUSBTapDeveloperOptionsOff(t *testing.T) {
	f := newFixture(t)
	f.port.SetDeveloperMode(false)

	res := f.usb.Tap(context.Background())
	assert.Equal(t, DevModeOff, res.Outcome)
	assert.Equal(t, Unavailable, res.Presentation.State)
	assert.Equal(t, "Dev Options Off", res.Presentation.Label)
	assert.Empty(t, f.port.Writes())
}

func TestUSBRevertDroppedWhenDeveloperOptionsOff(t *testing.T) {
	ctx := context.Background()

	t.Run("render cancels", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, store.KeyUSBAutoRevert, "true")
		require.True(t, f.usb.Tap(ctx).RevertArmed)

		f.port.SetDeveloperMode(false)
		f.usb.Render(ctx)
		assert.Equal(t, revert.Idle, f.usb.Timer().Status().Phase)
		assert.Contains(t, f.rec.Messages(), "Auto-revert cancelled: developer options disabled")
	})

	t.Run("expiry skips", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, store.KeyUSBAutoRevert, "true")
		require.True(t, f.usb.Tap(ctx).RevertArmed)

		f.port.SetDeveloperMode(false)
		f.usb.Timer().Tick(ctx, f.clock.Advance(5*time.Second))
		state, err := f.port.ReadUSB(ctx)
		require.NoError(t, err)
		assert.Equal(t, settings.UsbEnabled, state)
		assert.Equal(t, revert.Idle, f.usb.Timer().Status().Phase)
	})
}

func TestUSBTapRevertFires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, store.KeyUSBAutoRevert, "true")
	f.set(t, store.KeyUSBAutoRevertDelay, "30")

	res := f.usb.Tap(ctx)
	require.True(t, res.RevertArmed)
	assert.Equal(t, "Reverting to USB Debug Off in 30s", res.Presentation.Subtitle)

	f.usb.Timer().Tick(ctx, f.clock.Advance(30*time.Second))
	state, err := f.port.ReadUSB(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.UsbDisabled, state)
	assert.Contains(t, f.rec.Messages(), "Reverted to USB Debug Off")
}
