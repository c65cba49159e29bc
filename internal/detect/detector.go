package detect

import (
	"context"
	"sync"
	"time"

	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

// Detector is one condition watcher. Reconcile is the startup entry point: it
// reads the persisted state left by any earlier run (in either context) and
// applies what was missed. Poll is one steady-state iteration.
type Detector interface {
	Name() string
	Reconcile(ctx context.Context) error
	Poll(ctx context.Context) error
	// Owner arbitrates which execution context may run the detector.
	Owner() *Owner
}

// Owner makes sure a detector runs in at most one execution context at a time.
type Owner struct {
	mu     sync.Mutex
	holder store.DetectionMode
}

// Acquire claims the detector for mode. It returns false when another context
// holds it, and first=true when this call took it from free.
func (o *Owner) Acquire(mode store.DetectionMode) (ok, first bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.holder {
	case "":
		o.holder = mode
		return true, true
	case mode:
		return true, false
	}
	return false, false
}

// Release frees the detector if mode holds it.
func (o *Owner) Release(mode store.DetectionMode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holder == mode {
		o.holder = ""
	}
}

// Holder returns the context currently running the detector, "" if none.
func (o *Owner) Holder() store.DetectionMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.holder
}

// Gate reports whether the detector should run in this context right now.
type Gate func(ctx context.Context) bool

// Step runs one loop iteration for mode and reports whether the detector ran.
func Step(ctx context.Context, d Detector, mode store.DetectionMode, gate Gate) bool {
	log := logrus.WithFields(logrus.Fields{"detector": d.Name(), "context": mode})
	if gate != nil && !gate(ctx) {
		if d.Owner().Holder() == mode {
			log.Info("Detector stopped")
		}
		d.Owner().Release(mode)
		return false
	}

	ok, first := d.Owner().Acquire(mode)
	if !ok {
		log.WithField("holder", d.Owner().Holder()).Debug("Detector owned by another context")
		return false
	}

	var err error
	if first {
		log.Info("Detector started, reconciling")
		err = d.Reconcile(ctx)
	} else {
		err = d.Poll(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("Detector iteration failed")
	}
	return true
}

// Loop runs d in the given context until ctx is done. The gate is evaluated
// on every iteration so a preference change takes effect within one interval;
// the detector is released when the loop exits.
func Loop(ctx context.Context, d Detector, mode store.DetectionMode, interval time.Duration, gate Gate) {
	defer d.Owner().Release(mode)

	Step(ctx, d, mode, gate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Step(ctx, d, mode, gate)
		}
	}
}

// PrefsGate runs a detector while it is enabled and configured for mode.
func PrefsGate(read func(ctx context.Context) store.Detection, mode store.DetectionMode) Gate {
	return func(ctx context.Context) bool {
		d := read(ctx)
		return d.Enabled && d.Mode == mode
	}
}
