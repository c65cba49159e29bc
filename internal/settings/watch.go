package settings

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RawReader is the part of Port that Watch needs.
type RawReader interface {
	ReadRaw(ctx context.Context, key string) (string, error)
}

// Change is one observed value of a watched key.
type Change struct {
	Key   string
	Value string
}

// Watch polls keys at the given interval and emits the initial values and
// every subsequent change. The channel is closed when ctx is done.
func Watch(ctx context.Context, r RawReader, interval time.Duration, keys ...string) <-chan Change {
	out := make(chan Change, len(keys))
	go func() {
		defer close(out)

		last := make(map[string]string, len(keys))
		seen := make(map[string]bool, len(keys))

		sample := func() bool {
			for _, key := range keys {
				v, err := r.ReadRaw(ctx, key)
				if err != nil {
					logrus.WithError(err).WithField("key", key).Debug("Setting watch read failed")
					continue
				}
				if seen[key] && last[key] == v {
					continue
				}
				seen[key] = true
				last[key] = v
				select {
				case out <- Change{Key: key, Value: v}:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		if !sample() {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !sample() {
					return
				}
			}
		}
	}()
	return out
}
