package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortHosts(t *testing.T) {
	hosts := []HostRecord{
		{ID: "c2", Name: "Zeta"},
		{ID: "b2", Name: "Quad9", Builtin: true},
		{ID: "c1", Name: "Alpha"},
		{ID: "b1", Name: "AdGuard", Builtin: true},
	}
	SortHosts(hosts)

	var ids []string
	for _, h := range hosts {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"b1", "b2", "c1", "c2"}, ids)
}

func TestSyncBuiltins(t *testing.T) {
	t.Run("empty list yields defaults", func(t *testing.T) {
		got := SyncBuiltins(nil)
		assert.Equal(t, Builtins(), got)
		for _, h := range got {
			assert.True(t, h.Selected)
		}
	})

	t.Run("builtin fields are restored and selection kept", func(t *testing.T) {
		stored := []HostRecord{
			{ID: "quad9_default", Name: "Tampered", Hostname: "evil.example", Builtin: true, Selected: false},
			{ID: "custom-1", Name: "NextDNS", Hostname: "abc123.dns.nextdns.io", Selected: true},
		}
		got := SyncBuiltins(stored)

		assert.Len(t, got, 4)
		quad9, ok := FindByHostname(got, "dns.quad9.net")
		assert.True(t, ok)
		assert.Equal(t, "Quad9 Security", quad9.Name)
		assert.False(t, quad9.Selected)
		assert.Equal(t, "custom-1", got[3].ID)
	})

	t.Run("custom record impersonating a builtin id is dropped", func(t *testing.T) {
		stored := []HostRecord{{ID: "adguard_default", Name: "Mine", Hostname: "mine.example"}}
		got := SyncBuiltins(stored)
		assert.Len(t, got, 3)
		_, ok := FindByHostname(got, "mine.example")
		assert.False(t, ok)
	})
}

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr bool
	}{
		{"simple", "dns.quad9.net", false},
		{"trailing dot", "one.one.one.one.", false},
		{"profile id", "abc123.dns.nextdns.io", false},
		{"blank", "  ", true},
		{"space inside", "dns quad9.net", true},
		{"leading hyphen", "-dns.example", true},
		{"empty label", "dns..example", true},
		{"too long", strings.Repeat("a.", 127) + "com", true},
		{"url not hostname", "https://dns.example/dns-query", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostname(tt.host)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidHost))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeHosts(t *testing.T) {
	ids := 0
	newID := func() string {
		ids++
		return "generated"
	}

	t.Run("round trip keeps selections and customs", func(t *testing.T) {
		hosts := Builtins()
		hosts[0].Selected = false
		hosts = append(hosts, HostRecord{ID: "custom-1", Name: "Mullvad", Hostname: "dns.mullvad.net", Selected: true})

		data, err := EncodeHosts(hosts)
		assert.NoError(t, err)
		got, err := DecodeHosts(data, newID)
		assert.NoError(t, err)
		assert.Len(t, got, 4)
		assert.False(t, got[0].Selected)
		assert.Equal(t, "custom-1", got[3].ID)
	})

	t.Run("missing id is generated", func(t *testing.T) {
		got, err := DecodeHosts([]byte(`[{"name":"Mullvad","hostname":"dns.mullvad.net","selected":true}]`), newID)
		assert.NoError(t, err)
		rec, ok := FindByHostname(got, "dns.mullvad.net")
		assert.True(t, ok)
		assert.Equal(t, "generated", rec.ID)
	})

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"id":`},
		{"bad hostname", `[{"id":"x","name":"X","hostname":"bad host"}]`},
		{"no name", `[{"id":"x","hostname":"dns.example.com"}]`},
		{"duplicate id", `[{"id":"x","name":"A","hostname":"a.example.com"},{"id":"x","name":"B","hostname":"b.example.com"}]`},
		{"too large", "[" + strings.Repeat(" ", 256*1024) + "]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHosts([]byte(tt.data), newID)
			assert.True(t, errors.Is(err, ErrInvalidHost), "got %v", err)
		})
	}
}
