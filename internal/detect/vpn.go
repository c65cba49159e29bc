package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qtsettings/internal/audit"
	"qtsettings/internal/notify"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

// Snapshot is the DNS state captured just before a VPN forced it off.
type Snapshot struct {
	State      settings.DnsState
	CapturedAt time.Time
}

// VPN turns Private DNS off while a VPN is up and restores it afterwards.
type VPN struct {
	port     settings.Port
	lock     sync.Locker
	store    store.Store
	probe    Probe
	notifier notify.Notifier
	grace    time.Duration
	sleep    func(ctx context.Context, d time.Duration) bool
	now      func() time.Time
	owner    Owner

	mu   sync.Mutex
	last *bool
}

var _ Detector = (*VPN)(nil)

// VPNConfig holds the VPN detector dependencies.
type VPNConfig struct {
	Port     settings.Port
	Lock     sync.Locker
	Store    store.Store
	Probe    Probe
	Notifier notify.Notifier
	// Grace is how long a disconnect must last before DNS is restored.
	Grace time.Duration
}

func NewVPN(cfg VPNConfig) *VPN {
	n := cfg.Notifier
	if n == nil {
		n = notify.Log{}
	}
	return &VPN{
		port:     cfg.Port,
		lock:     cfg.Lock,
		store:    cfg.Store,
		probe:    cfg.Probe,
		notifier: n,
		grace:    cfg.Grace,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (v *VPN) Name() string  { return "vpn" }
func (v *VPN) Owner() *Owner { return &v.owner }

// Active samples the probe.
func (v *VPN) Active(ctx context.Context) bool { return v.probe.VPNActive(ctx) }

// Reconcile brings DNS in line with the current VPN state, honoring a
// snapshot left by an earlier run in either context.
func (v *VPN) Reconcile(ctx context.Context) error {
	active := v.probe.VPNActive(ctx)
	v.setLast(active)
	if active {
		return v.OnConnected(ctx)
	}
	return v.OnDisconnected(ctx)
}

// Poll handles a transition since the last sample. A disconnect is confirmed
// after the grace period so a VPN reconnecting does not flap DNS.
func (v *VPN) Poll(ctx context.Context) error {
	active := v.probe.VPNActive(ctx)
	last := v.getLast()
	v.setLast(active)

	switch {
	case last == nil:
		return v.Reconcile(ctx)
	case active && !*last:
		return v.OnConnected(ctx)
	case !active && *last:
		if !v.sleep(ctx, v.grace) {
			return ctx.Err()
		}
		if v.probe.VPNActive(ctx) {
			logrus.Debug("VPN came back within grace period")
			v.setLast(true)
			return nil
		}
		return v.OnDisconnected(ctx)
	}
	return nil
}

// OnConnected captures the current DNS state and forces Off. An existing
// snapshot is never replaced, since it may still be waiting to be restored.
func (v *VPN) OnConnected(ctx context.Context) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.probe.VPNActive(ctx) {
		return nil
	}

	current, err := v.port.ReadDNS(ctx)
	if err != nil {
		return fmt.Errorf("reading DNS state: %w", err)
	}
	if current.Mode == settings.ModeOff {
		logrus.Debug("VPN active and Private DNS already off")
		return nil
	}

	// A snapshot saved by the other context (or a previous run) still holds
	// the pre-VPN state; capturing again would overwrite it.
	existing, err := v.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		snap := Snapshot{State: current, CapturedAt: v.now()}
		if err := v.saveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("saving VPN snapshot: %w", err)
		}
	} else {
		logrus.WithField("snapshot", existing.State.String()).Debug("Keeping existing VPN snapshot")
	}

	if err := v.port.WriteDNS(ctx, settings.Off()); err != nil {
		// Nothing was suppressed, so there is nothing to restore later.
		if existing == nil {
			if cerr := v.clearSnapshot(ctx); cerr != nil {
				logrus.WithError(cerr).Warn("Failed to clear VPN snapshot")
			}
		}
		audit.LogWriteFailure("vpn", err)
		v.notifier.Notify(ctx, notify.New(settings.TileDNS, notify.Error, "VPN detected but Private DNS could not be turned off"))
		return fmt.Errorf("turning Private DNS off: %w", err)
	}

	logrus.WithField("captured", current.String()).Info("VPN connected, Private DNS turned off")
	audit.LogSettingChange(audit.EventVPNSuppressed, "vpn", current, settings.Off())
	v.notifier.Notify(ctx, notify.New(settings.TileDNS, notify.Info, "VPN connected: Private DNS turned off"))
	return nil
}

// OnDisconnected restores the snapshot, if any. A failed restore keeps the
// snapshot so the next reconcile can try again.
func (v *VPN) OnDisconnected(ctx context.Context) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.probe.VPNActive(ctx) {
		return nil
	}
	return v.restoreLocked(ctx)
}

func (v *VPN) restoreLocked(ctx context.Context) error {
	snap, err := v.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	target := snap.State
	if target.IsBlankOn() {
		target = settings.Auto()
	}
	if err := v.port.WriteDNS(ctx, target); err != nil {
		audit.LogWriteFailure("vpn", err)
		return fmt.Errorf("restoring Private DNS: %w", err)
	}
	if err := v.clearSnapshot(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to clear VPN snapshot")
	}

	logrus.WithField("restored", target.String()).Info("VPN disconnected, Private DNS restored")
	audit.LogSettingChange(audit.EventVPNRestored, "vpn", settings.Off(), target)
	v.notifier.Notify(ctx, notify.New(settings.TileDNS, notify.Info, "VPN disconnected: Private DNS restored to "+target.String()))
	return nil
}

// Disable drops the snapshot when detection is switched off, restoring it
// first if no VPN is up.
func (v *VPN) Disable(ctx context.Context) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	v.resetLast()
	if !v.probe.VPNActive(ctx) {
		if err := v.restoreLocked(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to restore DNS while disabling VPN detection")
		}
	}
	return v.clearSnapshot(ctx)
}

// LoadSnapshot returns the persisted snapshot, nil when there is none.
func (v *VPN) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	raw, ok, err := v.store.Get(ctx, store.KeyVPNPreviousMode)
	if err != nil {
		return nil, fmt.Errorf("reading VPN snapshot: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	mode, known := settings.ParseMode(raw)
	if !known {
		logrus.WithField("raw_mode", raw).Warn("Discarding VPN snapshot with unknown mode")
		return nil, v.clearSnapshot(ctx)
	}

	snap := &Snapshot{State: settings.DnsState{Mode: mode}}
	if mode == settings.ModeHostname {
		host, _, err := v.store.Get(ctx, store.KeyVPNPreviousHostname)
		if err != nil {
			return nil, fmt.Errorf("reading VPN snapshot hostname: %w", err)
		}
		snap.State.Hostname = host
	}
	if at, ok, _ := v.store.Get(ctx, store.KeyVPNPreviousAt); ok {
		snap.CapturedAt, _ = time.Parse(time.RFC3339, at)
	}
	return snap, nil
}

func (v *VPN) saveSnapshot(ctx context.Context, s Snapshot) error {
	if err := v.store.Set(ctx, store.KeyVPNPreviousHostname, s.State.Hostname); err != nil {
		return err
	}
	if err := v.store.Set(ctx, store.KeyVPNPreviousAt, s.CapturedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	// The mode key marks the snapshot as present, so it goes last.
	return v.store.Set(ctx, store.KeyVPNPreviousMode, string(s.State.Mode))
}

func (v *VPN) clearSnapshot(ctx context.Context) error {
	return v.store.Remove(ctx, store.KeyVPNPreviousMode, store.KeyVPNPreviousHostname, store.KeyVPNPreviousAt)
}

func (v *VPN) getLast() *bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

func (v *VPN) resetLast() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = nil
}

func (v *VPN) setLast(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = &active
}
