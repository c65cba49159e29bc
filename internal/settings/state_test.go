package settings

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDnsStateEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b DnsState
		want bool
	}{
		{"off equals off", Off(), Off(), true},
		{"off ignores stale hostname", DnsState{Mode: ModeOff, Hostname: "x"}, Off(), true},
		{"auto differs from off", Auto(), Off(), false},
		{"on compares hostname", On("dns.quad9.net"), On("dns.quad9.net"), true},
		{"on with different hostname", On("dns.quad9.net"), On("one.one.one.one"), false},
		{"on vs auto", On("x"), Auto(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, ok := ParseMode("opportunistic")
	assert.True(t, ok)
	assert.Equal(t, ModeAuto, mode)

	mode, ok = ParseMode("")
	assert.False(t, ok)
	assert.Equal(t, ModeOff, mode)

	mode, ok = ParseMode("bogus")
	assert.False(t, ok)
	assert.Equal(t, ModeOff, mode)
}

func TestIsBlankOn(t *testing.T) {
	assert.True(t, On("").IsBlankOn())
	assert.True(t, On("   ").IsBlankOn())
	assert.False(t, On("dns.adguard.com").IsBlankOn())
	assert.False(t, Off().IsBlankOn())
}

func TestWriteErrorIs(t *testing.T) {
	denied := permissionDenied(KeyADBEnabled, fmt.Errorf("nope"))
	assert.True(t, errors.Is(denied, ErrPermissionDenied))
	assert.False(t, errors.Is(denied, ErrWriteFailed))

	other := writeFailed(KeyADBEnabled, fmt.Errorf("disk"))
	assert.True(t, errors.Is(other, ErrWriteFailed))
	assert.False(t, errors.Is(other, ErrPermissionDenied))

	wrapped := fmt.Errorf("tap: %w", denied)
	assert.True(t, errors.Is(wrapped, ErrPermissionDenied))
}
