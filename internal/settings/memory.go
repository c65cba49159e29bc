package settings

import (
	"context"
	"fmt"
	"sync"
)

// MemoryPort is an in-memory Port. It keeps mode and specifier separately, as
// the real provider does, so a blank specifier in hostname mode can be staged.
type MemoryPort struct {
	mu         sync.Mutex
	values     map[string]string
	privileged bool
	failWrites map[string]error
	writes     []string
}

var _ Port = (*MemoryPort)(nil)

// NewMemoryPort returns a privileged port with DNS off, USB debugging off and
// developer options on.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{
		values: map[string]string{
			KeyPrivateDNSMode:      string(ModeOff),
			KeyADBEnabled:          "0",
			KeyDevelopmentSettings: "1",
		},
		privileged: true,
		failWrites: make(map[string]error),
	}
}

// Set stores a raw value without any checks.
func (m *MemoryPort) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// SetDNS stages a DNS state, including invalid ones.
func (m *MemoryPort) SetDNS(s DnsState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[KeyPrivateDNSMode] = string(s.Mode)
	if s.Mode == ModeHostname {
		m.values[KeyPrivateDNSSpecifier] = s.Hostname
	}
}

func (m *MemoryPort) SetPrivileged(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.privileged = granted
}

func (m *MemoryPort) SetDeveloperMode(on bool) {
	v := "0"
	if on {
		v = "1"
	}
	m.Set(KeyDevelopmentSettings, v)
}

// FailWrites makes every write to key fail with err until cleared with nil.
func (m *MemoryPort) FailWrites(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failWrites, key)
		return
	}
	m.failWrites[key] = err
}

// Writes returns "key=value" for every successful write, in order.
func (m *MemoryPort) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func (m *MemoryPort) ReadRaw(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryPort) ReadDNS(ctx context.Context) (DnsState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, _ := ParseMode(m.values[KeyPrivateDNSMode])
	if mode != ModeHostname {
		return DnsState{Mode: mode}, nil
	}
	return On(m.values[KeyPrivateDNSSpecifier]), nil
}

func (m *MemoryPort) WriteDNS(ctx context.Context, s DnsState) error {
	if s.IsBlankOn() {
		return writeFailed(KeyPrivateDNSSpecifier, ErrBlankHostname)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Mode == ModeHostname {
		if err := m.putLocked(KeyPrivateDNSSpecifier, s.Hostname); err != nil {
			return err
		}
	}
	return m.putLocked(KeyPrivateDNSMode, string(s.Mode))
}

func (m *MemoryPort) ReadUSB(ctx context.Context) (UsbState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return UsbState(m.values[KeyADBEnabled] == "1"), nil
}

func (m *MemoryPort) WriteUSB(ctx context.Context, u UsbState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(KeyADBEnabled, u.raw())
}

func (m *MemoryPort) IsPrivilegeGranted(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.privileged
}

func (m *MemoryPort) IsDeveloperModeOn(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[KeyDevelopmentSettings] == "1"
}

func (m *MemoryPort) putLocked(key, value string) error {
	if !m.privileged {
		return permissionDenied(key, fmt.Errorf("%s not granted", WriteSecureSettings))
	}
	if err, ok := m.failWrites[key]; ok {
		return writeFailed(key, err)
	}
	m.values[key] = value
	m.writes = append(m.writes, key+"="+value)
	return nil
}
