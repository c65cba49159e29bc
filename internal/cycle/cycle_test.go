package cycle

import (
	"errors"
	"testing"

	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eqInt(a, b int) bool { return a == b }

func TestAdvanceRingClosure(t *testing.T) {
	lists := [][]int{{1}, {1, 2}, {4, 8, 15, 16, 23, 42}}
	for _, l := range lists {
		for _, start := range l {
			s := start
			for range l {
				var err error
				s, err = Advance(s, l, eqInt)
				require.NoError(t, err)
			}
			assert.Equal(t, start, s, "list %v start %d", l, start)
		}
	}
}

func TestAdvanceUnknownStateGoesToFirst(t *testing.T) {
	next, err := Advance(99, []int{3, 5, 7}, eqInt)
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestAdvanceEmpty(t *testing.T) {
	_, err := Advance(1, nil, eqInt)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestDNSCandidates(t *testing.T) {
	hosts := []store.HostRecord{
		{ID: "a", Hostname: "dns.adguard.com", Selected: true},
		{ID: "b", Hostname: "one.one.one.one", Selected: false},
		{ID: "c", Hostname: "DNS.adguard.com", Selected: true},
		{ID: "d", Hostname: "dns.quad9.net", Selected: true},
	}

	got := DNSCandidates(true, false, hosts)
	assert.Equal(t, []settings.DnsState{
		settings.Off(),
		settings.On("dns.adguard.com"),
		settings.On("dns.quad9.net"),
	}, got)

	assert.Empty(t, DNSCandidates(false, false, nil))
}

func TestUSBCandidates(t *testing.T) {
	assert.Equal(t, []settings.UsbState{settings.UsbEnabled, settings.UsbDisabled}, USBCandidates(true, true))
	assert.Equal(t, []settings.UsbState{settings.UsbDisabled}, USBCandidates(false, true))
	assert.Empty(t, USBCandidates(false, false))
}

func TestNextDNS(t *testing.T) {
	quad9 := []store.HostRecord{{ID: "q", Hostname: "dns.quad9.net", Selected: true}}
	blank := []store.HostRecord{{ID: "x", Name: "Broken", Hostname: "", Selected: true}}

	tests := []struct {
		name        string
		current     settings.DnsState
		off, auto   bool
		hosts       []store.HostRecord
		want        settings.DnsState
		substituted bool
		wantErr     error
	}{
		{
			name:    "auto advances to hostname",
			current: settings.Auto(),
			off:     true, auto: true, hosts: quad9,
			want: settings.On("dns.quad9.net"),
		},
		{
			name:    "hostname wraps to off",
			current: settings.On("dns.quad9.net"),
			off:     true, auto: true, hosts: quad9,
			want: settings.Off(),
		},
		{
			name:    "foreign hostname restarts the ring",
			current: settings.On("x"),
			off:     true, auto: true,
			want: settings.Off(),
		},
		{
			name:    "blank hostname falls back to off",
			current: settings.Auto(),
			off:     true, auto: true, hosts: blank,
			want: settings.Off(), substituted: true,
		},
		{
			name:    "blank hostname falls back to auto when off is disabled",
			current: settings.Off(),
			off:     false, auto: true, hosts: blank,
			want: settings.Auto(), substituted: true,
		},
		{
			name:    "blank hostname with no fallback",
			current: settings.Off(),
			hosts:   blank,
			wantErr: ErrBlankHostname,
		},
		{
			name:    "nothing enabled",
			current: settings.Off(),
			wantErr: ErrNoCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NextDNS(tt.current, tt.off, tt.auto, tt.hosts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d.Next.Equal(tt.want), "got %s want %s", d.Next, tt.want)
			assert.Equal(t, tt.substituted, d.Substituted)
		})
	}
}

func TestNextDNSBlankWithoutFallbackIsNoCandidates(t *testing.T) {
	_, err := NextDNS(settings.Off(), false, false, []store.HostRecord{{Hostname: " ", Selected: true}})
	assert.True(t, errors.Is(err, ErrNoCandidates))
	assert.True(t, errors.Is(err, ErrBlankHostname))
}

func TestNextUSB(t *testing.T) {
	next, err := NextUSB(settings.UsbDisabled, true, true)
	require.NoError(t, err)
	assert.Equal(t, settings.UsbEnabled, next)

	next, err = NextUSB(settings.UsbEnabled, true, false)
	require.NoError(t, err)
	assert.Equal(t, settings.UsbEnabled, next)

	_, err = NextUSB(settings.UsbEnabled, false, false)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestFallback(t *testing.T) {
	s, ok := Fallback(true, true)
	assert.True(t, ok)
	assert.True(t, s.Equal(settings.Off()))
	_, ok = Fallback(false, false)
	assert.False(t, ok)
}
