package detect

import (
	"context"
	"fmt"
	"sync"

	"qtsettings/internal/audit"
	"qtsettings/internal/notify"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

// Network applies the configured DNS state for Wi-Fi or mobile data when the
// transport changes. It never acts while a VPN is up.
type Network struct {
	port     settings.Port
	lock     sync.Locker
	prefs    *store.Prefs
	probe    Probe
	notifier notify.Notifier
	owner    Owner
}

var _ Detector = (*Network)(nil)

// NetworkConfig holds the network detector dependencies.
type NetworkConfig struct {
	Port     settings.Port
	Lock     sync.Locker
	Prefs    *store.Prefs
	Probe    Probe
	Notifier notify.Notifier
}

func NewNetwork(cfg NetworkConfig) *Network {
	n := cfg.Notifier
	if n == nil {
		n = notify.Log{}
	}
	return &Network{
		port:     cfg.Port,
		lock:     cfg.Lock,
		prefs:    cfg.Prefs,
		probe:    cfg.Probe,
		notifier: n,
	}
}

func (d *Network) Name() string  { return "network" }
func (d *Network) Owner() *Owner { return &d.owner }

// LastType returns the persisted last observed type.
func (d *Network) LastType(ctx context.Context) (NetworkType, bool) {
	raw := d.prefs.String(ctx, store.KeyLastNetworkType, "")
	return ParseNetworkType(raw)
}

func (d *Network) saveType(ctx context.Context, nt NetworkType) {
	if err := d.prefs.SetString(ctx, store.KeyLastNetworkType, string(nt)); err != nil {
		logrus.WithError(err).Warn("Failed to persist network type")
	}
}

// Reconcile applies the target when the transport changed while no watcher
// was running. On first run there is nothing to compare with and nothing is
// applied.
func (d *Network) Reconcile(ctx context.Context) error {
	current := d.probe.NetworkType(ctx)
	last, known := d.LastType(ctx)
	d.saveType(ctx, current)
	if !known || last == current {
		return nil
	}
	logrus.WithFields(logrus.Fields{"from": last, "to": current}).Info("Network type changed while not monitoring")
	return d.Apply(ctx, current)
}

// Poll applies the target on a change since the last persisted sample.
func (d *Network) Poll(ctx context.Context) error {
	current := d.probe.NetworkType(ctx)
	last, known := d.LastType(ctx)
	if known && last == current {
		return nil
	}
	d.saveType(ctx, current)
	logrus.WithFields(logrus.Fields{"from": last, "to": current}).Info("Network type changed")
	return d.Apply(ctx, current)
}

// Apply writes the configured DNS state for nt. None leaves DNS untouched.
func (d *Network) Apply(ctx context.Context, nt NetworkType) error {
	target, ok := d.prefs.DNSTargetFor(ctx, string(nt))
	if !ok {
		logrus.WithField("network", nt).Debug("No active network, DNS unchanged")
		return nil
	}
	if target.IsBlankOn() {
		logrus.WithField("network", nt).Warn("Hostname target without a hostname, using Auto")
		target = settings.Auto()
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.probe.VPNActive(ctx) {
		logrus.WithField("network", nt).Debug("VPN active, skipping network DNS change")
		return nil
	}

	current, err := d.port.ReadDNS(ctx)
	if err != nil {
		return fmt.Errorf("reading DNS state: %w", err)
	}
	if current.Equal(target) {
		return nil
	}
	if err := d.port.WriteDNS(ctx, target); err != nil {
		audit.LogWriteFailure("network", err)
		return fmt.Errorf("applying DNS for %s: %w", nt, err)
	}

	logrus.WithFields(logrus.Fields{"network": nt, "dns": target.String()}).Info("Applied network DNS")
	audit.LogSettingChange(audit.EventNetworkApplied, "network", current, target)
	d.notifier.Notify(ctx, notify.New(settings.TileDNS, notify.Info,
		fmt.Sprintf("On %s: Private DNS set to %s", nt, target)))
	return nil
}
