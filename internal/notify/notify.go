// Package notify delivers transient user-visible notices (the toast
// equivalent) from tiles, timers and detectors.
package notify

import (
	"context"
	"sync"
	"time"

	"qtsettings/internal/settings"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notice is a single non-blocking message for the user.
type Notice struct {
	Tile    settings.Tile `json:"tile"`
	Level   Level         `json:"level"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

// Notifier delivers notices. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice)

func (f Func) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// Log writes notices to the logger.
type Log struct{}

func (Log) Notify(ctx context.Context, n Notice) {
	entry := logrus.WithFields(logrus.Fields{
		"tile":  n.Tile,
		"level": n.Level,
	})
	switch n.Level {
	case Error:
		entry.Error(n.Message)
	case Warning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// Recorder keeps every notice. For tests and the status command.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(ctx context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Messages returns only the message texts.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Message
	}
	return out
}

// Reset drops recorded notices.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

// New builds a notice stamped with the current time.
func New(tile settings.Tile, level Level, message string) Notice {
	return Notice{Tile: tile, Level: level, Message: message, At: time.Now()}
}
