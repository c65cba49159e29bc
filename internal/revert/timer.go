// Package revert restores a captured setting after a delay.
//
// A Timer is a state value (Idle, Armed or Firing) advanced by Tick. Nothing
// inside it sleeps; Run drives it from a ticker owned by the process, so an
// armed revert fires whether or not any tile is listening.
package revert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qtsettings/internal/audit"
	"qtsettings/internal/notify"
	"qtsettings/internal/settings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrInvalidDelay = errors.New("revert delay must be positive")

// Phase of a Timer.
type Phase int

const (
	Idle Phase = iota
	Armed
	Firing
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	}
	return "idle"
}

// Pending is a scheduled restore of Captured at Deadline.
type Pending[T any] struct {
	ID       string    `json:"id"`
	Captured T         `json:"captured"`
	ArmedAt  time.Time `json:"armed_at"`
	Deadline time.Time `json:"deadline"`
}

// Status is a snapshot of a Timer for presentation.
type Status[T any] struct {
	Phase     Phase
	Captured  T
	Remaining time.Duration
}

// RemainingSeconds rounds up, so a countdown never shows 0 while armed.
func (s Status[T]) RemainingSeconds() int {
	if s.Remaining <= 0 {
		return 0
	}
	return int((s.Remaining + time.Second - 1) / time.Second)
}

// Config wires a Timer to the setting it restores.
type Config[T any] struct {
	Tile settings.Tile
	// Lock is the per-setting lock every read-then-write must hold.
	Lock sync.Locker
	// Apply writes the captured state back.
	Apply func(ctx context.Context, v T) error
	// Skip is consulted at expiry; a non-empty reason drops the restore.
	Skip     func(ctx context.Context) string
	Describe func(v T) string
	Persist  Persistence[T]
	Notifier notify.Notifier
	Now      func() time.Time
}

// Timer holds at most one pending revert for one tile.
type Timer[T any] struct {
	cfg Config[T]

	// persistMu orders writes to Persist; mu is never held across them.
	persistMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	pending   *Pending[T]
	observers map[int]func(Status[T])
	nextObs   int
}

// New creates an idle timer.
func New[T any](cfg Config[T]) *Timer[T] {
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	if cfg.Persist == nil {
		cfg.Persist = nopPersistence[T]{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Describe == nil {
		cfg.Describe = func(v T) string { return fmt.Sprint(v) }
	}
	return &Timer[T]{cfg: cfg, observers: make(map[int]func(Status[T]))}
}

// Arm schedules a restore of captured after delay, replacing any pending one.
// Call it only after the write it undoes has succeeded.
func (t *Timer[T]) Arm(ctx context.Context, captured T, delay time.Duration) error {
	if delay <= 0 {
		return ErrInvalidDelay
	}
	now := t.cfg.Now()
	p := Pending[T]{
		ID:       uuid.NewString(),
		Captured: captured,
		ArmedAt:  now,
		Deadline: now.Add(delay),
	}

	t.mu.Lock()
	replaced := t.pending != nil
	t.phase = Armed
	t.pending = &p
	t.mu.Unlock()

	t.syncPersisted(ctx)

	logrus.WithFields(logrus.Fields{
		"tile":     t.cfg.Tile,
		"captured": t.cfg.Describe(captured),
		"delay":    delay,
		"replaced": replaced,
	}).Info("Auto-revert armed")
	audit.LogRevert(audit.EventRevertArmed, string(t.cfg.Tile), stringer(t.cfg.Describe(captured)), map[string]interface{}{
		"delay": delay.String(),
	})

	t.publish(Status[T]{Phase: Armed, Captured: captured, Remaining: delay})
	return nil
}

// Cancel drops the pending revert. With a non-empty reason the user is told.
// It reports whether anything was pending; cancelling an idle timer is a
// silent no-op.
func (t *Timer[T]) Cancel(ctx context.Context, reason string) bool {
	t.mu.Lock()
	p := t.pending
	if p == nil {
		t.mu.Unlock()
		return false
	}
	t.phase = Idle
	t.pending = nil
	t.mu.Unlock()

	t.syncPersisted(ctx)

	logrus.WithFields(logrus.Fields{
		"tile":   t.cfg.Tile,
		"reason": reason,
	}).Info("Auto-revert cancelled")
	audit.LogRevert(audit.EventRevertCancelled, string(t.cfg.Tile), stringer(t.cfg.Describe(p.Captured)), map[string]interface{}{
		"reason": reason,
	})

	if reason != "" {
		t.cfg.Notifier.Notify(ctx, notify.New(t.cfg.Tile, notify.Info, "Auto-revert cancelled: "+reason))
	}
	t.publish(Status[T]{Phase: Idle})
	return true
}

// Tick advances the timer to now: observers get the remaining time while
// armed, and the restore runs once the deadline has passed.
func (t *Timer[T]) Tick(ctx context.Context, now time.Time) {
	t.mu.Lock()
	if t.phase != Armed || t.pending == nil {
		t.mu.Unlock()
		return
	}
	p := *t.pending
	remaining := p.Deadline.Sub(now)
	if remaining > 0 {
		t.mu.Unlock()
		t.publish(Status[T]{Phase: Armed, Captured: p.Captured, Remaining: remaining})
		return
	}
	t.phase = Firing
	t.mu.Unlock()

	t.fire(ctx, p)
}

func (t *Timer[T]) fire(ctx context.Context, p Pending[T]) {
	fired, skipped, err := t.restore(ctx, p)
	if !fired {
		return
	}
	desc := t.cfg.Describe(p.Captured)
	log := logrus.WithFields(logrus.Fields{"tile": t.cfg.Tile, "captured": desc})

	switch {
	case skipped != "":
		log.WithField("reason", skipped).Info("Auto-revert skipped")
		audit.LogRevert(audit.EventRevertCancelled, string(t.cfg.Tile), stringer(desc), map[string]interface{}{"reason": skipped})
	case err != nil:
		log.WithError(err).Error("Auto-revert failed")
		audit.LogWriteFailure("revert", err)
		t.cfg.Notifier.Notify(ctx, notify.New(t.cfg.Tile, notify.Error, "Failed to revert to "+desc))
	default:
		log.Info("Auto-revert fired")
		audit.LogRevert(audit.EventRevertFired, string(t.cfg.Tile), stringer(desc), nil)
		t.cfg.Notifier.Notify(ctx, notify.New(t.cfg.Tile, notify.Info, "Reverted to "+desc))
	}
	t.publish(Status[T]{Phase: Idle})
}

// restore runs under the setting lock. fired is false when a tap cancelled
// or re-armed while we waited for the lock.
func (t *Timer[T]) restore(ctx context.Context, p Pending[T]) (fired bool, skipped string, err error) {
	t.cfg.Lock.Lock()
	defer t.cfg.Lock.Unlock()

	t.mu.Lock()
	if t.phase != Firing || t.pending == nil || t.pending.ID != p.ID {
		t.mu.Unlock()
		return false, "", nil
	}
	t.mu.Unlock()

	if t.cfg.Skip != nil {
		skipped = t.cfg.Skip(ctx)
	}
	if skipped == "" {
		err = t.cfg.Apply(ctx, p.Captured)
	}

	// The record is cleared even when the write failed, so a revoked
	// privilege cannot leave a timer that fires forever.
	t.mu.Lock()
	if t.pending != nil && t.pending.ID == p.ID {
		t.phase = Idle
		t.pending = nil
	}
	t.mu.Unlock()
	t.syncPersisted(ctx)
	return true, skipped, err
}

// syncPersisted writes whatever is pending right now, or clears the record
// when nothing is. A cancel racing a re-arm therefore never erases the newer
// record: whichever sync runs last sees the newer pending revert.
func (t *Timer[T]) syncPersisted(ctx context.Context) {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.mu.Lock()
	var cur *Pending[T]
	if t.pending != nil {
		p := *t.pending
		cur = &p
	}
	t.mu.Unlock()

	if cur == nil {
		if err := t.cfg.Persist.Clear(ctx); err != nil {
			logrus.WithError(err).WithField("tile", t.cfg.Tile).Warn("Failed to clear persisted revert")
		}
		return
	}
	if err := t.cfg.Persist.Save(ctx, *cur); err != nil {
		logrus.WithError(err).WithField("tile", t.cfg.Tile).Warn("Failed to persist pending revert")
	}
}

// Run ticks the timer until ctx is done.
func (t *Timer[T]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx, t.cfg.Now())
		}
	}
}

// Resume re-arms a revert persisted by a previous process. A deadline that
// already passed fires on the next Tick.
func (t *Timer[T]) Resume(ctx context.Context) (bool, error) {
	p, err := t.cfg.Persist.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading pending revert: %w", err)
	}
	if p == nil {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return false, nil
	}
	t.phase = Armed
	t.pending = p

	logrus.WithFields(logrus.Fields{
		"tile":     t.cfg.Tile,
		"captured": t.cfg.Describe(p.Captured),
		"deadline": p.Deadline,
	}).Info("Resumed pending auto-revert")
	return true, nil
}

// Status returns the current state.
func (t *Timer[T]) Status() Status[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return Status[T]{Phase: t.phase}
	}
	return Status[T]{
		Phase:     t.phase,
		Captured:  t.pending.Captured,
		Remaining: t.pending.Deadline.Sub(t.cfg.Now()),
	}
}

// Pending returns a copy of the pending revert, if any.
func (t *Timer[T]) Pending() (Pending[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return Pending[T]{}, false
	}
	return *t.pending, true
}

// OnTick registers an observer of status changes and countdown ticks. The
// returned function removes it; removing an observer never affects the
// pending revert.
func (t *Timer[T]) OnTick(fn func(Status[T])) func() {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *Timer[T]) publish(s Status[T]) {
	t.mu.Lock()
	fns := make([]func(Status[T]), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

type stringer string

func (s stringer) String() string { return string(s) }
