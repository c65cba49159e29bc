package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"qtsettings/internal/settings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DetectionMode selects where a condition detector runs.
type DetectionMode string

const (
	TileOnly   DetectionMode = "tile_only"
	Background DetectionMode = "background"
)

// ParseDetectionMode accepts the stored values and a few spellings used on
// the command line.
func ParseDetectionMode(raw string) (DetectionMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tile_only", "tile-only", "tile":
		return TileOnly, true
	case "background", "bg":
		return Background, true
	}
	return TileOnly, false
}

// Detection is the configuration of one condition detector.
type Detection struct {
	Enabled bool          `json:"enabled"`
	Mode    DetectionMode `json:"mode"`
}

// Revert is the auto-revert configuration of one tile.
type Revert struct {
	Enabled bool          `json:"enabled"`
	Delay   time.Duration `json:"delay"`
}

// Armable reports whether a successful tap should schedule a revert.
func (r Revert) Armable() bool { return r.Enabled && r.Delay > 0 }

// Prefs gives typed access to the preferences in a Store. Read failures are
// logged and the default is returned so a broken store never blocks a tile.
type Prefs struct {
	store Store
	// hostsMu serializes read-modify-write of the host list.
	hostsMu sync.Mutex
}

// NewPrefs wraps a Store.
func NewPrefs(s Store) *Prefs {
	return &Prefs{store: s}
}

// Store returns the underlying store.
func (p *Prefs) Store() Store { return p.store }

func (p *Prefs) raw(ctx context.Context, key string) (string, bool) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to read preference, using default")
		return "", false
	}
	return v, ok
}

// Bool reads a boolean preference.
func (p *Prefs) Bool(ctx context.Context, key string, def bool) bool {
	v, ok := p.raw(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int reads an integer preference.
func (p *Prefs) Int(ctx context.Context, key string, def int) int {
	v, ok := p.raw(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// String reads a string preference.
func (p *Prefs) String(ctx context.Context, key, def string) string {
	v, ok := p.raw(ctx, key)
	if !ok {
		return def
	}
	return v
}

func (p *Prefs) SetBool(ctx context.Context, key string, v bool) error {
	return p.store.Set(ctx, key, strconv.FormatBool(v))
}

func (p *Prefs) SetInt(ctx context.Context, key string, v int) error {
	return p.store.Set(ctx, key, strconv.Itoa(v))
}

func (p *Prefs) SetString(ctx context.Context, key, v string) error {
	return p.store.Set(ctx, key, v)
}

// DNSToggles returns whether Off and Auto take part in the DNS cycle.
func (p *Prefs) DNSToggles(ctx context.Context) (offEnabled, autoEnabled bool) {
	return p.Bool(ctx, KeyDNSToggleOff, true), p.Bool(ctx, KeyDNSToggleAuto, true)
}

// USBToggles returns whether enabled and disabled take part in the USB cycle.
func (p *Prefs) USBToggles(ctx context.Context) (onEnabled, offEnabled bool) {
	return p.Bool(ctx, KeyUSBToggleEnable, true), p.Bool(ctx, KeyUSBToggleDisable, true)
}

func (p *Prefs) DNSRevert(ctx context.Context) Revert {
	return Revert{
		Enabled: p.Bool(ctx, KeyDNSAutoRevert, false),
		Delay:   time.Duration(p.Int(ctx, KeyDNSAutoRevertDelay, 5)) * time.Second,
	}
}

func (p *Prefs) USBRevert(ctx context.Context) Revert {
	return Revert{
		Enabled: p.Bool(ctx, KeyUSBAutoRevert, false),
		Delay:   time.Duration(p.Int(ctx, KeyUSBAutoRevertDelay, 5)) * time.Second,
	}
}

func (p *Prefs) VPNDetection(ctx context.Context) Detection {
	mode, _ := ParseDetectionMode(p.String(ctx, KeyVPNDetectionMode, string(TileOnly)))
	return Detection{Enabled: p.Bool(ctx, KeyVPNDetection, false), Mode: mode}
}

func (p *Prefs) NetworkDetection(ctx context.Context) Detection {
	mode, _ := ParseDetectionMode(p.String(ctx, KeyNetworkDetectionMode, string(TileOnly)))
	return Detection{Enabled: p.Bool(ctx, KeyNetworkDetection, false), Mode: mode}
}

// DNSTargetFor returns the configured DNS state for a network type ("wifi"
// or "mobile"). ok is false for any other type.
func (p *Prefs) DNSTargetFor(ctx context.Context, networkType string) (settings.DnsState, bool) {
	var modeKey, hostKey, def string
	switch networkType {
	case "wifi":
		modeKey, hostKey, def = KeyDNSStateOnWifi, KeyDNSHostnameOnWifi, string(settings.ModeOff)
	case "mobile":
		modeKey, hostKey, def = KeyDNSStateOnMobile, KeyDNSHostnameOnMobile, string(settings.ModeAuto)
	default:
		return settings.Off(), false
	}
	mode, _ := ParseModeOr(p.String(ctx, modeKey, def), settings.Mode(def))
	if mode == settings.ModeHostname {
		return settings.On(p.String(ctx, hostKey, "")), true
	}
	return settings.DnsState{Mode: mode}, true
}

// ParseModeOr parses a DNS mode, returning def when raw is not a known mode.
func ParseModeOr(raw string, def settings.Mode) (settings.Mode, bool) {
	if m, ok := settings.ParseMode(raw); ok {
		return m, true
	}
	return def, false
}

// SetValue validates and stores a user-editable preference given as text.
func (p *Prefs) SetValue(ctx context.Context, key, raw string) error {
	def, ok := Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	value, err := normalize(def, raw)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, key, value)
}

func normalize(def Definition, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch def.Kind {
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, def.Key)
		}
		return strconv.FormatBool(b), nil
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return "", fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidValue, def.Key)
		}
		return strconv.Itoa(n), nil
	case KindDetection:
		m, ok := ParseDetectionMode(raw)
		if !ok {
			return "", fmt.Errorf("%w: %s must be tile_only or background", ErrInvalidValue, def.Key)
		}
		return string(m), nil
	case KindDNSMode:
		m, ok := settings.ParseMode(raw)
		if !ok {
			return "", fmt.Errorf("%w: %s must be off, opportunistic or hostname", ErrInvalidValue, def.Key)
		}
		return string(m), nil
	}
	return raw, nil
}

// Values returns every user-editable preference, defaults filled in.
func (p *Prefs) Values(ctx context.Context) map[string]string {
	out := make(map[string]string, len(Definitions))
	for _, d := range Definitions {
		out[d.Key] = p.String(ctx, d.Key, d.Default)
	}
	return out
}

// Hosts returns the host list with builtins re-synced, in display order.
func (p *Prefs) Hosts(ctx context.Context) []HostRecord {
	stored, err := p.store.LoadHosts(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load DNS host list, using builtins")
		return Builtins()
	}
	return SyncBuiltins(stored)
}

// SelectedHosts returns the records taking part in the DNS cycle, in order.
func (p *Prefs) SelectedHosts(ctx context.Context) []HostRecord {
	var out []HostRecord
	for _, h := range p.Hosts(ctx) {
		if h.Selected {
			out = append(out, h)
		}
	}
	return out
}

// AddCustomHost adds a user-owned record, selected for cycling.
func (p *Prefs) AddCustomHost(ctx context.Context, name, hostname string) (HostRecord, error) {
	name, hostname = strings.TrimSpace(name), strings.TrimSpace(hostname)
	if name == "" {
		return HostRecord{}, fmt.Errorf("%w: name is empty", ErrInvalidHost)
	}
	if err := ValidateHostname(hostname); err != nil {
		return HostRecord{}, err
	}

	rec := HostRecord{
		ID:       uuid.NewString(),
		Name:     name,
		Hostname: hostname,
		Selected: true,
	}
	err := p.mutateHosts(ctx, func(hosts []HostRecord) ([]HostRecord, error) {
		return append(hosts, rec), nil
	})
	if err != nil {
		return HostRecord{}, err
	}
	return rec, nil
}

// EditCustomHost renames or repoints a user-owned record.
func (p *Prefs) EditCustomHost(ctx context.Context, id, name, hostname string) (HostRecord, error) {
	name, hostname = strings.TrimSpace(name), strings.TrimSpace(hostname)
	if name == "" {
		return HostRecord{}, fmt.Errorf("%w: name is empty", ErrInvalidHost)
	}
	if err := ValidateHostname(hostname); err != nil {
		return HostRecord{}, err
	}

	var updated HostRecord
	err := p.mutateHosts(ctx, func(hosts []HostRecord) ([]HostRecord, error) {
		i, err := indexOf(hosts, id)
		if err != nil {
			return nil, err
		}
		if hosts[i].Builtin {
			return nil, ErrBuiltinImmutable
		}
		hosts[i].Name = name
		hosts[i].Hostname = hostname
		updated = hosts[i]
		return hosts, nil
	})
	return updated, err
}

// DeleteCustomHost removes a user-owned record.
func (p *Prefs) DeleteCustomHost(ctx context.Context, id string) error {
	return p.mutateHosts(ctx, func(hosts []HostRecord) ([]HostRecord, error) {
		i, err := indexOf(hosts, id)
		if err != nil {
			return nil, err
		}
		if hosts[i].Builtin {
			return nil, ErrBuiltinImmutable
		}
		return append(hosts[:i], hosts[i+1:]...), nil
	})
}

// SetHostSelected toggles whether a record takes part in the DNS cycle. This
// is the only change allowed on builtins.
func (p *Prefs) SetHostSelected(ctx context.Context, id string, selected bool) error {
	return p.mutateHosts(ctx, func(hosts []HostRecord) ([]HostRecord, error) {
		i, err := indexOf(hosts, id)
		if err != nil {
			return nil, err
		}
		hosts[i].Selected = selected
		return hosts, nil
	})
}

// ExportHosts returns the host list in its JSON exchange format.
func (p *Prefs) ExportHosts(ctx context.Context) ([]byte, error) {
	return EncodeHosts(p.Hosts(ctx))
}

// ImportHosts replaces the custom records and builtin selections with an
// exported list.
func (p *Prefs) ImportHosts(ctx context.Context, data []byte) ([]HostRecord, error) {
	imported, err := DecodeHosts(data, uuid.NewString)
	if err != nil {
		return nil, err
	}
	err = p.mutateHosts(ctx, func([]HostRecord) ([]HostRecord, error) {
		return imported, nil
	})
	if err != nil {
		return nil, err
	}
	return imported, nil
}

func (p *Prefs) mutateHosts(ctx context.Context, fn func([]HostRecord) ([]HostRecord, error)) error {
	p.hostsMu.Lock()
	defer p.hostsMu.Unlock()

	stored, err := p.store.LoadHosts(ctx)
	if err != nil {
		return fmt.Errorf("loading host list: %w", err)
	}
	hosts, err := fn(SyncBuiltins(stored))
	if err != nil {
		return err
	}
	SortHosts(hosts)
	if err := p.store.SaveHosts(ctx, hosts); err != nil {
		return fmt.Errorf("saving host list: %w", err)
	}
	return nil
}

func indexOf(hosts []HostRecord, id string) (int, error) {
	for i, h := range hosts {
		if h.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("host %q: %w", id, ErrNotFound)
}
