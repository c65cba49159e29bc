package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"qtsettings/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStoreKV(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	_, ok, err := s.Get(ctx, store.KeyDNSToggleOff)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, store.KeyDNSToggleOff, "false"))
	require.NoError(t, s.Set(ctx, store.KeyDNSToggleOff, "true"))
	v, ok, err := s.Get(ctx, store.KeyDNSToggleOff)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	require.NoError(t, s.Set(ctx, store.KeyVPNPreviousMode, "hostname"))
	require.NoError(t, s.Remove(ctx, store.KeyDNSToggleOff, store.KeyVPNPreviousMode))
	_, ok, _ = s.Get(ctx, store.KeyVPNPreviousMode)
	assert.False(t, ok)
}

func TestStoreHosts(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	hosts, err := s.LoadHosts(ctx)
	require.NoError(t, err)
	assert.Nil(t, hosts)

	want := append(store.Builtins(), store.HostRecord{
		ID: "c1", Name: "Mine", Hostname: "mine.example", Selected: false,
	})
	require.NoError(t, s.SaveHosts(ctx, want))
	require.NoError(t, s.Close())

	// Reopen to check the list survives a restart.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.SaveHosts(ctx, nil))
	got, err = s.LoadHosts(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStoreDuplicateHostID(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	dup := []store.HostRecord{{ID: "x", Name: "a", Hostname: "a.example"}, {ID: "x", Name: "b", Hostname: "b.example"}}
	assert.ErrorIs(t, s.SaveHosts(ctx, dup), store.ErrInvalidHost)
}

func TestStoreWithPrefs(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	p := store.NewPrefs(s)
	rec, err := p.AddCustomHost(ctx, "Mullvad", "dns.mullvad.net")
	require.NoError(t, err)
	require.NoError(t, p.SetHostSelected(ctx, "adguard_default", false))

	hosts := p.Hosts(ctx)
	require.Len(t, hosts, 4)
	assert.Equal(t, rec.ID, hosts[3].ID)
	assert.False(t, hosts[0].Selected)
}
