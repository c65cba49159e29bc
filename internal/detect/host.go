package detect

import (
	"context"
	"sync"
	"time"

	"qtsettings/internal/store"

	"github.com/sirupsen/logrus"
)

// Host runs detectors in the background context, independent of any tile
// being visible. It outlives the requests that start and stop watchers.
type Host struct {
	base     context.Context
	interval time.Duration
	prefs    *store.Prefs
	vpn      *VPN
	network  *Network

	mu      sync.Mutex
	running map[string]*watcher
}

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHost creates a host whose watchers stop when base is done.
func NewHost(base context.Context, prefs *store.Prefs, vpn *VPN, network *Network, interval time.Duration) *Host {
	return &Host{
		base:     base,
		interval: interval,
		prefs:    prefs,
		vpn:      vpn,
		network:  network,
		running:  make(map[string]*watcher),
	}
}

// Start launches d in the background context unless it is already running.
func (h *Host) Start(d Detector, gate Gate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.running[d.Name()]; ok {
		select {
		case <-w.done:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(h.base)
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	h.running[d.Name()] = w
	go func() {
		defer close(w.done)
		Loop(ctx, d, store.Background, h.interval, gate)
	}()
	logrus.WithField("detector", d.Name()).Info("Background watcher started")
}

// Stop cancels the watcher for name and waits for it to exit.
func (h *Host) Stop(name string) {
	h.mu.Lock()
	w, ok := h.running[name]
	delete(h.running, name)
	h.mu.Unlock()
	if !ok {
		return
	}
	w.cancel()
	<-w.done
	logrus.WithField("detector", name).Info("Background watcher stopped")
}

// Alive reports whether a watcher for name is running.
func (h *Host) Alive(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.running[name]
	if !ok {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Apply starts or stops the background watchers to match the preferences.
// It is called at startup and after every detection preference change.
func (h *Host) Apply(ctx context.Context) {
	vpnPrefs := h.prefs.VPNDetection(ctx)
	if h.vpn != nil {
		if vpnPrefs.Enabled && vpnPrefs.Mode == store.Background {
			h.Start(h.vpn, PrefsGate(h.prefs.VPNDetection, store.Background))
		} else {
			h.Stop(h.vpn.Name())
		}
		if !vpnPrefs.Enabled {
			if err := h.vpn.Disable(ctx); err != nil {
				logrus.WithError(err).Warn("Failed to clear VPN snapshot")
			}
		}
	}

	netPrefs := h.prefs.NetworkDetection(ctx)
	if h.network != nil {
		if netPrefs.Enabled && netPrefs.Mode == store.Background {
			h.Start(h.network, PrefsGate(h.prefs.NetworkDetection, store.Background))
		} else {
			h.Stop(h.network.Name())
		}
	}
}

// StopAll stops every watcher.
func (h *Host) StopAll() {
	h.mu.Lock()
	names := make([]string, 0, len(h.running))
	for name := range h.running {
		names = append(names, name)
	}
	h.mu.Unlock()
	for _, name := range names {
		h.Stop(name)
	}
}
