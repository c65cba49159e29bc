// Package settings reads and writes the Android global settings that back the
// Private DNS and USB debugging tiles.
package settings

import (
	"strings"
)

// Global setting keys.
const (
	KeyPrivateDNSMode      = "private_dns_mode"
	KeyPrivateDNSSpecifier = "private_dns_specifier"
	KeyADBEnabled          = "adb_enabled"
	KeyDevelopmentSettings = "development_settings_enabled"
)

// Mode is the raw value of private_dns_mode.
type Mode string

const (
	ModeOff      Mode = "off"
	ModeAuto     Mode = "opportunistic"
	ModeHostname Mode = "hostname"
)

// ParseMode maps a raw setting value to a Mode. Android treats a missing or
// unknown value as off.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.TrimSpace(raw)) {
	case ModeOff:
		return ModeOff, true
	case ModeAuto:
		return ModeAuto, true
	case ModeHostname:
		return ModeHostname, true
	}
	return ModeOff, false
}

// DnsState is Off, Auto or On(hostname).
type DnsState struct {
	Mode     Mode   `json:"mode"`
	Hostname string `json:"hostname,omitempty"`
}

func Off() DnsState  { return DnsState{Mode: ModeOff} }
func Auto() DnsState { return DnsState{Mode: ModeAuto} }

func On(hostname string) DnsState {
	return DnsState{Mode: ModeHostname, Hostname: hostname}
}

// Equal compares mode, and hostname only when the mode is hostname.
func (s DnsState) Equal(o DnsState) bool {
	if s.Mode != o.Mode {
		return false
	}
	if s.Mode == ModeHostname {
		return s.Hostname == o.Hostname
	}
	return true
}

// IsBlankOn reports the invalid "hostname mode without a hostname" state.
func (s DnsState) IsBlankOn() bool {
	return s.Mode == ModeHostname && strings.TrimSpace(s.Hostname) == ""
}

func (s DnsState) String() string {
	switch s.Mode {
	case ModeOff:
		return "off"
	case ModeAuto:
		return "auto"
	case ModeHostname:
		if s.Hostname == "" {
			return "on"
		}
		return "on(" + s.Hostname + ")"
	}
	return string(s.Mode)
}

// UsbState is the adb_enabled flag.
type UsbState bool

const (
	UsbEnabled  UsbState = true
	UsbDisabled UsbState = false
)

func (u UsbState) String() string {
	if u {
		return "enabled"
	}
	return "disabled"
}

func (u UsbState) raw() string {
	if u {
		return "1"
	}
	return "0"
}

// Tile identifies one of the two toggles.
type Tile string

const (
	TileDNS Tile = "dns"
	TileUSB Tile = "usb"
)

// ParseTile accepts "dns" or "usb".
func ParseTile(s string) (Tile, bool) {
	switch Tile(strings.ToLower(strings.TrimSpace(s))) {
	case TileDNS:
		return TileDNS, true
	case TileUSB:
		return TileUSB, true
	}
	return "", false
}
