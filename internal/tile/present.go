// Package tile backs the two Quick Settings tiles: it maps settings and timer
// state to what the tile shows, and turns a tap into the next setting.
package tile

import (
	"fmt"
	"strings"

	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"
)

// State mirrors the tile states of the Quick Settings API.
type State string

const (
	Active      State = "active"
	Inactive    State = "inactive"
	Unavailable State = "unavailable"
)

// Presentation is everything a tile front end needs to draw.
type Presentation struct {
	Tile     settings.Tile `json:"tile"`
	Label    string        `json:"label"`
	Subtitle string        `json:"subtitle,omitempty"`
	Icon     string        `json:"icon"`
	State    State         `json:"state"`
}

const maxLabel = 15

// truncate shortens long labels the way the tile always has.
func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxLabel {
		return string(r[:12]) + "..."
	}
	return s
}

// DNSName is the user-facing name of a DNS state: Off, Auto, the host
// record's name, or the raw hostname when no record matches.
func DNSName(s settings.DnsState, hosts []store.HostRecord) string {
	switch s.Mode {
	case settings.ModeOff:
		return "Off"
	case settings.ModeAuto:
		return "Auto"
	}
	host := strings.TrimSpace(s.Hostname)
	if host == "" {
		return "Private DNS"
	}
	for _, h := range hosts {
		if h.Hostname == host {
			return h.Name
		}
	}
	return host
}

// USBName is the user-facing name of a USB debugging state.
func USBName(u settings.UsbState) string {
	if u {
		return "USB Debug On"
	}
	return "USB Debug Off"
}

func countdown(name string, seconds int) string {
	return fmt.Sprintf("Reverting to %s in %ds", name, seconds)
}

// DNSView is the input of RenderDNS.
type DNSView struct {
	State      settings.DnsState
	Revert     revert.Status[settings.DnsState]
	Privileged bool
	Hosts      []store.HostRecord
	// Unknown is set when the raw mode is not one Android defines; State
	// then holds the Off it was read as.
	Unknown bool
}

// RenderDNS is a pure mapping; self-healing happens in DNS.Render.
func RenderDNS(v DNSView) Presentation {
	p := Presentation{Tile: settings.TileDNS}
	switch {
	case v.Unknown:
		p.Label, p.Icon, p.State = "Unknown", "ic_dns_off", Inactive
	case v.State.Mode == settings.ModeOff:
		p.Label, p.Icon, p.State = "Off", "ic_dns_off", Inactive
	case v.State.Mode == settings.ModeAuto:
		p.Label, p.Icon, p.State = "Auto", "ic_dns_auto", Active
	default:
		p.Label, p.Icon, p.State = truncate(DNSName(v.State, v.Hosts)), "ic_dns_on", Active
	}
	if v.Revert.Phase == revert.Armed {
		p.Subtitle = countdown(DNSName(v.Revert.Captured, v.Hosts), v.Revert.RemainingSeconds())
	}
	return p
}

// USBView is the input of RenderUSB.
type USBView struct {
	State         settings.UsbState
	Revert        revert.Status[settings.UsbState]
	DeveloperMode bool
}

func RenderUSB(v USBView) Presentation {
	p := Presentation{Tile: settings.TileUSB}
	switch {
	case !v.DeveloperMode:
		p.Label, p.Icon, p.State = "Dev Options Off", "ic_usb_off", Unavailable
		return p
	case v.State == settings.UsbEnabled:
		p.Label, p.Icon, p.State = USBName(v.State), "ic_usb_on", Active
	default:
		p.Label, p.Icon, p.State = USBName(v.State), "ic_usb_off", Inactive
	}
	if v.Revert.Phase == revert.Armed {
		p.Subtitle = countdown(USBName(v.Revert.Captured), v.Revert.RemainingSeconds())
	}
	return p
}
