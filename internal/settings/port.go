package settings

import (
	"context"
	"sync"
)

// Port is the settings access capability the tiles and detectors need.
// Reads are always permitted; writes require the secure-settings privilege
// and fail fast with ErrPermissionDenied when it is missing.
type Port interface {
	ReadDNS(ctx context.Context) (DnsState, error)
	WriteDNS(ctx context.Context, s DnsState) error
	ReadUSB(ctx context.Context) (UsbState, error)
	WriteUSB(ctx context.Context, u UsbState) error
	IsPrivilegeGranted(ctx context.Context) bool
	IsDeveloperModeOn(ctx context.Context) bool
	// ReadRaw returns the raw value of a global setting, "" when unset.
	ReadRaw(ctx context.Context, key string) (string, error)
}

// Locks serializes read-then-write sequences per setting. DNS and USB are
// independent; every component writing a setting must hold its lock.
type Locks struct {
	DNS sync.Mutex
	USB sync.Mutex
}
