package tile

import (
	"context"
	"sync"
)

// listener owns the goroutines a tile runs while it is visible.
type listener struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  []func()
}

// start runs each fn in its own goroutine under a context that stop cancels.
// Starting an already started listener is a no-op.
func (l *listener) start(parent context.Context, fns ...func(ctx context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	for _, fn := range fns {
		l.wg.Add(1)
		go func(fn func(context.Context)) {
			defer l.wg.Done()
			fn(ctx)
		}(fn)
	}
	return true
}

func (l *listener) onStop(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsub = append(l.unsub, fn)
}

func (l *listener) stop() {
	l.mu.Lock()
	cancel := l.cancel
	unsub := l.unsub
	l.cancel = nil
	l.unsub = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	for _, fn := range unsub {
		fn()
	}
	cancel()
	l.wg.Wait()
}

func (l *listener) listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// pump coalesces render requests onto a single goroutine, so observers
// never render on the caller's stack.
type pump chan struct{}

func newPump() pump { return make(pump, 1) }

func (p pump) kick() {
	select {
	case p <- struct{}{}:
	default:
	}
}

func (p pump) run(ctx context.Context, render func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p:
			render(ctx)
		}
	}
}
