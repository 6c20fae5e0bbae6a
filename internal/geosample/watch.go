package geosample

import (
	"context"
	"errors"
	"sync"
)

// Watcher is a continuous sampling session. It retains the single
// best-accuracy fix seen, discarding worse ones, and auto-stops once the
// 5-meter target is reached. The provider subscription is released on every
// exit path: target reached, caller stop, or context teardown.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	best    Fix
	hasBest bool
	err     error
}

// Watch starts continuous sampling. onUpdate, when non-nil, is called each
// time the best fix improves; it runs on the watch goroutine.
func (s *Sampler) Watch(ctx context.Context, onUpdate func(Fix)) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer cancel()
		defer close(w.done)

		for {
			if ctx.Err() != nil {
				return
			}

			fix, err := s.Acquire(ctx, Config{HighAccuracy: true, Timeout: WatchUpdateTimeout})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// A timed-out update is not fatal; keep sampling and
				// remember the last failure for callers with no fix yet.
				if errors.Is(err, ErrTimeout) {
					continue
				}
				w.mu.Lock()
				w.err = err
				w.mu.Unlock()
				if errors.Is(err, ErrPermissionDenied) {
					return
				}
				continue
			}

			w.mu.Lock()
			improved := !w.hasBest || fix.Accuracy < w.best.Accuracy
			if improved {
				w.best = fix
				w.hasBest = true
				w.err = nil
			}
			reached := w.hasBest && w.best.Accuracy <= WatchTarget
			w.mu.Unlock()

			if improved && onUpdate != nil {
				onUpdate(fix)
			}
			if reached {
				return
			}
		}
	}()

	return w
}

// Stop cancels the watch and releases the sensor subscription. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.cancel()
}

// Done is closed when sampling has stopped, for any reason.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Best returns the best-accuracy fix seen so far.
func (w *Watcher) Best() (Fix, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.best, w.hasBest
}

// Err returns the last sensor failure observed before any usable fix.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
