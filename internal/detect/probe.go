// Package detect watches VPN presence and the network transport and adjusts
// Private DNS when they change.
package detect

import (
	"context"
	"net"
	"strings"
	"sync"

	"qtsettings/internal/shell"

	"github.com/sirupsen/logrus"
)

// NetworkType is the active transport.
type NetworkType string

const (
	Wifi   NetworkType = "wifi"
	Mobile NetworkType = "mobile"
	None   NetworkType = "none"
)

// ParseNetworkType maps a stored value back to a NetworkType.
func ParseNetworkType(s string) (NetworkType, bool) {
	switch NetworkType(s) {
	case Wifi, Mobile, None:
		return NetworkType(s), true
	}
	return None, false
}

// Probe samples the external conditions.
type Probe interface {
	VPNActive(ctx context.Context) bool
	NetworkType(ctx context.Context) NetworkType
}

var (
	vpnPrefixes    = []string{"tun", "ppp", "wg", "ipsec", "utun", "tap"}
	wifiPrefixes   = []string{"wlan", "swlan", "wifi"}
	mobilePrefixes = []string{"rmnet", "ccmni", "pdp", "seth", "v4-rmnet", "wwan"}
)

func hasPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// classify reduces the names of interfaces that are up and carry an address
// to VPN presence and transport. Wi-Fi wins when both radios are up, as it
// does for Android's default network.
func classify(names []string) (vpn bool, nt NetworkType) {
	nt = None
	for _, name := range names {
		name = strings.ToLower(name)
		switch {
		case hasPrefix(name, vpnPrefixes):
			vpn = true
		case hasPrefix(name, wifiPrefixes):
			nt = Wifi
		case hasPrefix(name, mobilePrefixes):
			if nt == None {
				nt = Mobile
			}
		}
	}
	return vpn, nt
}

// InterfaceProbe reads the local interface table. It is the probe to use when
// qtsettings runs on the device itself.
type InterfaceProbe struct {
	// Interfaces lists candidate interfaces; net.Interfaces when nil.
	Interfaces func() ([]net.Interface, error)
	// HasAddress reports whether an interface carries a unicast address.
	HasAddress func(net.Interface) bool
}

func (p *InterfaceProbe) activeNames() []string {
	list := p.Interfaces
	if list == nil {
		list = net.Interfaces
	}
	hasAddr := p.HasAddress
	if hasAddr == nil {
		hasAddr = func(iface net.Interface) bool {
			addrs, err := iface.Addrs()
			return err == nil && len(addrs) > 0
		}
	}

	ifaces, err := list()
	if err != nil {
		logrus.WithError(err).Debug("Failed to list network interfaces")
		return nil
	}
	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if !hasAddr(iface) {
			continue
		}
		names = append(names, iface.Name)
	}
	return names
}

func (p *InterfaceProbe) VPNActive(ctx context.Context) bool {
	vpn, _ := classify(p.activeNames())
	return vpn
}

func (p *InterfaceProbe) NetworkType(ctx context.Context) NetworkType {
	_, nt := classify(p.activeNames())
	return nt
}

// ShellProbe reads "ip -o addr show up" through a runner, for adb and su
// backends where the interesting interfaces are on the device.
type ShellProbe struct {
	Runner shell.Runner
}

func (p *ShellProbe) activeNames(ctx context.Context) []string {
	res, err := p.Runner.Run(ctx, "ip", "-o", "addr", "show", "up")
	if err != nil {
		logrus.WithError(err).Debug("Failed to list device interfaces")
		return nil
	}
	return parseIPAddr(res.Stdout)
}

// parseIPAddr extracts interface names from "ip -o addr" output, e.g.
// "23: wlan0    inet 192.168.1.20/24 brd ...".
func parseIPAddr(out string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if i := strings.Index(name, "@"); i >= 0 {
			name = name[:i]
		}
		if name == "lo" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (p *ShellProbe) VPNActive(ctx context.Context) bool {
	vpn, _ := classify(p.activeNames(ctx))
	return vpn
}

func (p *ShellProbe) NetworkType(ctx context.Context) NetworkType {
	_, nt := classify(p.activeNames(ctx))
	return nt
}

// FakeProbe is a settable Probe for tests.
type FakeProbe struct {
	mu      sync.Mutex
	vpn     bool
	network NetworkType
	// OnVPN, when set, is called on every VPNActive sample with the sample
	// count, and its result replaces the stored value.
	OnVPN func(n int) bool
	calls int
}

func NewFakeProbe(vpn bool, nt NetworkType) *FakeProbe {
	return &FakeProbe{vpn: vpn, network: nt}
}

func (f *FakeProbe) SetVPN(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vpn = active
}

func (f *FakeProbe) SetNetwork(nt NetworkType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.network = nt
}

func (f *FakeProbe) VPNActive(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.OnVPN != nil {
		f.vpn = f.OnVPN(f.calls)
	}
	return f.vpn
}

func (f *FakeProbe) NetworkType(ctx context.Context) NetworkType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.network
}
