package tile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qtsettings/internal/audit"
	"qtsettings/internal/cycle"
	"qtsettings/internal/notify"
	"qtsettings/internal/revert"
	"qtsettings/internal/settings"
	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

const devOptionsOff = "developer options disabled"

// USBConfig wires the USB debugging tile.
type USBConfig struct {
	Port          settings.Port
	Lock          *sync.Mutex
	Prefs         *store.Prefs
	Notifier      notify.Notifier
	WatchInterval time.Duration
	Now           func() time.Time
}

// USB is the USB debugging tile controller.
type USB struct {
	cfg    USBConfig
	timer  *revert.Timer[settings.UsbState]
	listen listener
}

func NewUSB(cfg USBConfig) *USB {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Second
	}
	u := &USB{cfg: cfg}
	u.timer = revert.New(revert.Config[settings.UsbState]{
		Tile:  settings.TileUSB,
		Lock:  cfg.Lock,
		Apply: u.restore,
		Skip: func(ctx context.Context) string {
			if !cfg.Port.IsDeveloperModeOn(ctx) {
				return devOptionsOff
			}
			return ""
		},
		Describe: USBName,
		Persist:  revert.StorePersistence[settings.UsbState]{Store: cfg.Prefs.Store(), Key: store.KeyUSBPendingRevert},
		Notifier: cfg.Notifier,
		Now:      cfg.Now,
	})
	return u
}

func (u *USB) Timer() *revert.Timer[settings.UsbState] { return u.timer }

func (u *USB) restore(ctx context.Context, s settings.UsbState) error {
	current, _ := u.cfg.Port.ReadUSB(ctx)
	if err := u.cfg.Port.WriteUSB(ctx, s); err != nil {
		return err
	}
	audit.LogSettingChange(audit.EventUSBChanged, "revert", current, s)
	return nil
}

func (u *USB) notify(ctx context.Context, level notify.Level, msg string) {
	u.cfg.Notifier.Notify(ctx, notify.New(settings.TileUSB, level, msg))
}

// Tap toggles USB debugging between the enabled states.
func (u *USB) Tap(ctx context.Context) Result {
	u.timer.Cancel(ctx, "tile tapped again")

	if !u.cfg.Port.IsDeveloperModeOn(ctx) {
		u.notify(ctx, notify.Warning, "Enable Developer Options first")
		return Result{Outcome: DevModeOff, Presentation: u.Render(ctx)}
	}
	if !u.cfg.Port.IsPrivilegeGranted(ctx) {
		logrus.Warn("WRITE_SECURE_SETTINGS permission not granted")
		u.notify(ctx, notify.Warning, permissionHint)
		return Result{Outcome: Denied, Presentation: u.Render(ctx), Err: settings.ErrPermissionDenied}
	}

	res := u.tapLocked(ctx)
	res.Presentation = u.Render(ctx)
	return res
}

func (u *USB) tapLocked(ctx context.Context) Result {
	u.cfg.Lock.Lock()
	defer u.cfg.Lock.Unlock()

	current, err := u.cfg.Port.ReadUSB(ctx)
	if err != nil {
		u.notify(ctx, notify.Error, "Could not read USB debugging state")
		return Result{Outcome: Failed, Err: err}
	}
	on, off := u.cfg.Prefs.USBToggles(ctx)
	next, err := cycle.NextUSB(current, on, off)
	if err != nil {
		u.notify(ctx, notify.Warning, "No USB states are enabled for cycling")
		return Result{Outcome: NoCandidates, From: USBName(current), Err: err}
	}

	res := Result{From: USBName(current), To: USBName(next)}
	if next == current {
		res.Outcome = Unchanged
		return res
	}
	if err := u.cfg.Port.WriteUSB(ctx, next); err != nil {
		logrus.WithError(err).Error("Failed to set USB debugging")
		audit.LogWriteFailure("tap", err)
		u.notify(ctx, notify.Error, "Failed to change USB debugging")
		res.Outcome, res.Err = outcomeFor(err), err
		return res
	}
	res.Outcome = Changed
	audit.LogSettingChange(audit.EventUSBChanged, "tap", current, next)
	logrus.WithFields(logrus.Fields{"from": current.String(), "to": next.String()}).Info("USB debugging changed")

	cfg := u.cfg.Prefs.USBRevert(ctx)
	if !cfg.Armable() {
		return res
	}
	if err := u.timer.Arm(ctx, current, cfg.Delay); err != nil {
		logrus.WithError(err).Warn("Failed to arm auto-revert")
		return res
	}
	res.RevertArmed = true
	u.notify(ctx, notify.Info, fmt.Sprintf("Reverting USB debugging to %s in %ds", USBName(current), int(cfg.Delay/time.Second)))
	return res
}

// Render maps the live state to a Presentation. With developer options off
// the tile is unavailable and any pending revert is dropped.
func (u *USB) Render(ctx context.Context) Presentation {
	dev := u.cfg.Port.IsDeveloperModeOn(ctx)
	if !dev {
		u.timer.Cancel(ctx, devOptionsOff)
	}
	state, err := u.cfg.Port.ReadUSB(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read USB debugging state")
	}
	return RenderUSB(USBView{State: state, Revert: u.timer.Status(), DeveloperMode: dev})
}

func (u *USB) Cancel(ctx context.Context) bool {
	return u.timer.Cancel(ctx, "cancelled by user")
}

// StartListening re-renders on setting changes and countdown ticks.
func (u *USB) StartListening(ctx context.Context, onRender func(Presentation)) {
	renders := newPump()
	render := func(ctx context.Context) {
		renders.run(ctx, func(ctx context.Context) { onRender(u.Render(ctx)) })
	}
	watch := func(ctx context.Context) {
		for range settings.Watch(ctx, u.cfg.Port, u.cfg.WatchInterval, settings.KeyADBEnabled, settings.KeyDevelopmentSettings) {
			renders.kick()
		}
	}
	if !u.listen.start(ctx, render, watch) {
		return
	}
	u.listen.onStop(u.timer.OnTick(func(revert.Status[settings.UsbState]) { renders.kick() }))
	renders.kick()
}

func (u *USB) StopListening() { u.listen.stop() }

func (u *USB) Listening() bool { return u.listen.listening() }
