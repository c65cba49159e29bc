package tile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qtsettings/internal/audit"
	"qtsettings/internal/cycle"
	"qtsettings/internal/detect"
	"qtsettings/internal/notify"
	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

const permissionHint = "Permission not granted. Run: adb shell pm grant <package> android.permission.WRITE_SECURE_SETTINGS"

// DNSConfig wires the Private DNS tile.
type DNSConfig struct {
	Port     settings.Port
	Lock     *sync.Mutex
	Prefs    *store.Prefs
	Notifier notify.Notifier
	// Tile-only detectors, run while the tile is listening.
	VPN             *detect.VPN
	Network         *detect.Network
	VPNInterval     time.Duration
	NetworkInterval time.Duration
	WatchInterval   time.Duration
	Now             func() time.Time
}

// DNS is the Private DNS tile controller.
type DNS struct {
	cfg    DNSConfig
	timer  *revert.Timer[settings.DnsState]
	listen listener
}

func NewDNS(cfg DNSConfig) *DNS {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	if cfg.VPNInterval <= 0 {
		cfg.VPNInterval = 2 * time.Second
	}
	if cfg.NetworkInterval <= 0 {
		cfg.NetworkInterval = 2 * time.Second
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Second
	}
	d := &DNS{cfg: cfg}
	d.timer = revert.New(revert.Config[settings.DnsState]{
		Tile:  settings.TileDNS,
		Lock:  cfg.Lock,
		Apply: d.restore,
		Describe: func(s settings.DnsState) string {
			return DNSName(s, cfg.Prefs.Hosts(context.Background()))
		},
		Persist:  revert.StorePersistence[settings.DnsState]{Store: cfg.Prefs.Store(), Key: store.KeyDNSPendingRevert},
		Notifier: cfg.Notifier,
		Now:      cfg.Now,
	})
	return d
}

// Timer exposes the revert timer so the process can drive and resume it.
func (d *DNS) Timer() *revert.Timer[settings.DnsState] { return d.timer }

func (d *DNS) restore(ctx context.Context, s settings.DnsState) error {
	current, _ := d.cfg.Port.ReadDNS(ctx)
	if err := d.cfg.Port.WriteDNS(ctx, s); err != nil {
		return err
	}
	audit.LogSettingChange(audit.EventDNSChanged, "revert", current, s)
	return nil
}

func (d *DNS) notify(ctx context.Context, level notify.Level, msg string) {
	d.cfg.Notifier.Notify(ctx, notify.New(settings.TileDNS, level, msg))
}

// Tap advances Private DNS to the next enabled state.
func (d *DNS) Tap(ctx context.Context) Result {
	d.timer.Cancel(ctx, "tile tapped again")

	if !d.cfg.Port.IsPrivilegeGranted(ctx) {
		logrus.Warn("WRITE_SECURE_SETTINGS permission not granted")
		d.notify(ctx, notify.Warning, permissionHint)
		return Result{Outcome: Denied, Presentation: d.Render(ctx), Err: settings.ErrPermissionDenied}
	}

	res := d.tapLocked(ctx)
	res.Presentation = d.Render(ctx)
	return res
}

func (d *DNS) tapLocked(ctx context.Context) Result {
	d.cfg.Lock.Lock()
	defer d.cfg.Lock.Unlock()

	current, err := d.cfg.Port.ReadDNS(ctx)
	if err != nil {
		d.notify(ctx, notify.Error, "Could not read Private DNS state")
		return Result{Outcome: Failed, Err: err}
	}

	hosts := d.cfg.Prefs.Hosts(ctx)
	off, auto := d.cfg.Prefs.DNSToggles(ctx)
	decision, err := cycle.NextDNS(current, off, auto, hosts)
	if err != nil {
		logrus.WithError(err).Warn("No DNS state to cycle to")
		d.notify(ctx, notify.Warning, "No DNS states are enabled for cycling")
		return Result{Outcome: NoCandidates, From: DNSName(current, hosts), Err: err}
	}
	next := decision.Next
	if decision.Substituted {
		logrus.WithField("fallback", next.String()).Warn("Selected host has no hostname, using fallback")
	}

	res := Result{From: DNSName(current, hosts), To: DNSName(next, hosts)}
	if next.Equal(current) {
		res.Outcome = Unchanged
		return res
	}

	if err := d.cfg.Port.WriteDNS(ctx, next); err != nil {
		logrus.WithError(err).Error("Failed to set Private DNS")
		audit.LogWriteFailure("tap", err)
		d.notify(ctx, notify.Error, "Failed to change Private DNS")
		res.Outcome, res.Err = outcomeFor(err), err
		return res
	}
	res.Outcome = Changed
	audit.LogSettingChange(audit.EventDNSChanged, "tap", current, next)
	logrus.WithFields(logrus.Fields{"from": current.String(), "to": next.String()}).Info("Private DNS changed")

	cfg := d.cfg.Prefs.DNSRevert(ctx)
	if !cfg.Armable() {
		return res
	}
	captured := current
	if captured.IsBlankOn() {
		fb, ok := cycle.Fallback(off, auto)
		if !ok {
			logrus.Warn("Previous DNS state has no hostname, not arming revert")
			return res
		}
		captured = fb
	}
	if err := d.timer.Arm(ctx, captured, cfg.Delay); err != nil {
		logrus.WithError(err).Warn("Failed to arm auto-revert")
		return res
	}
	res.RevertArmed = true
	d.notify(ctx, notify.Info, fmt.Sprintf("Reverting DNS to %s in %ds", DNSName(captured, hosts), int(cfg.Delay/time.Second)))
	return res
}

// Render reads the live state and maps it to a Presentation. Hostname mode
// without a hostname is repaired once, silently, when the privilege allows.
func (d *DNS) Render(ctx context.Context) Presentation {
	state, err := d.cfg.Port.ReadDNS(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read Private DNS state")
		return Presentation{Tile: settings.TileDNS, Label: "Unknown", Icon: "ic_dns_off", State: Inactive}
	}
	privileged := d.cfg.Port.IsPrivilegeGranted(ctx)
	if state.IsBlankOn() && privileged {
		if healed, ok := d.heal(ctx); ok {
			state = healed
		}
	}
	return RenderDNS(DNSView{
		State:      state,
		Revert:     d.timer.Status(),
		Privileged: privileged,
		Hosts:      d.cfg.Prefs.Hosts(ctx),
		Unknown:    d.unknownMode(ctx),
	})
}

// unknownMode reports a raw mode value that ReadDNS had to map to Off.
func (d *DNS) unknownMode(ctx context.Context) bool {
	raw, err := d.cfg.Port.ReadRaw(ctx, settings.KeyPrivateDNSMode)
	if err != nil || raw == "" {
		return false
	}
	_, known := settings.ParseMode(raw)
	return !known
}

// heal replaces a blank hostname state with the cycle fallback. It writes at
// most once and returns the state read back afterwards.
func (d *DNS) heal(ctx context.Context) (settings.DnsState, bool) {
	d.cfg.Lock.Lock()
	defer d.cfg.Lock.Unlock()

	current, err := d.cfg.Port.ReadDNS(ctx)
	if err != nil || !current.IsBlankOn() {
		return current, err == nil
	}
	fb, ok := cycle.Fallback(d.cfg.Prefs.DNSToggles(ctx))
	if !ok {
		logrus.Warn("Private DNS in hostname mode without hostname and no fallback enabled")
		return current, false
	}
	if err := d.cfg.Port.WriteDNS(ctx, fb); err != nil {
		logrus.WithError(err).Warn("Failed to repair Private DNS without hostname")
		return current, false
	}
	logrus.WithField("fallback", fb.String()).Info("Repaired Private DNS without hostname")
	audit.LogSettingChange(audit.EventSelfHealed, "self-heal", current, fb)

	after, err := d.cfg.Port.ReadDNS(ctx)
	if err != nil {
		return fb, true
	}
	return after, true
}

// Cancel drops a pending revert on user request.
func (d *DNS) Cancel(ctx context.Context) bool {
	return d.timer.Cancel(ctx, "cancelled by user")
}

// StartListening runs the tile-only detectors and re-renders on external
// setting changes and countdown ticks until StopListening.
func (d *DNS) StartListening(ctx context.Context, onRender func(Presentation)) {
	renders := newPump()
	fns := []func(context.Context){
		func(ctx context.Context) {
			renders.run(ctx, func(ctx context.Context) { onRender(d.Render(ctx)) })
		},
		func(ctx context.Context) {
			for range settings.Watch(ctx, d.cfg.Port, d.cfg.WatchInterval, settings.KeyPrivateDNSMode, settings.KeyPrivateDNSSpecifier) {
				renders.kick()
			}
		},
	}
	if d.cfg.VPN != nil {
		gate := detect.PrefsGate(d.cfg.Prefs.VPNDetection, store.TileOnly)
		fns = append(fns, func(ctx context.Context) {
			detect.Loop(ctx, d.cfg.VPN, store.TileOnly, d.cfg.VPNInterval, gate)
		})
	}
	if d.cfg.Network != nil {
		gate := detect.PrefsGate(d.cfg.Prefs.NetworkDetection, store.TileOnly)
		fns = append(fns, func(ctx context.Context) {
			detect.Loop(ctx, d.cfg.Network, store.TileOnly, d.cfg.NetworkInterval, gate)
		})
	}
	if !d.listen.start(ctx, fns...) {
		return
	}
	d.listen.onStop(d.timer.OnTick(func(revert.Status[settings.DnsState]) { renders.kick() }))
	renders.kick()
}

// StopListening stops tile-only work. A pending revert keeps running.
func (d *DNS) StopListening() { d.listen.stop() }

// Listening reports whether the tile is currently listening.
func (d *DNS) Listening() bool { return d.listen.listening() }
