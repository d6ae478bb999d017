package ratelimit

import (
	"context"
	"time"
)

// Window is a fixed-window limiter: at most Max calls to Wait return
// immediately within one window; the next call blocks until the window has
// elapsed and then starts a new window. A Window is not safe for concurrent
// use; rorsync issues one request at a time.
type Window struct {
	max    int
	window time.Duration
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error

	start time.Time
	count int
}

// Option configures a Window.
type Option func(*Window)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

// WithSleeper overrides how the limiter blocks.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(w *Window) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// NewWindow creates a limiter allowing limit calls per window. A non-positive
// limit or window returns nil, which Wait treats as unlimited.
func NewWindow(limit int, window time.Duration, opts ...Option) *Window {
	if limit <= 0 || window <= 0 {
		return nil
	}
	w := &Window{
		max:    limit,
		window: window,
		now:    time.Now,
		sleep:  SleepWithContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait reserves one request slot, blocking while the current window's quota
// is exhausted. It returns how long it slept.
func (w *Window) Wait(ctx context.Context) (time.Duration, error) {
	if w == nil {
		return 0, nil
	}
	now := w.now()
	if w.start.IsZero() || now.Sub(w.start) >= w.window {
		w.start = now
		w.count = 0
	}

	var waited time.Duration
	if w.count >= w.max {
		if remaining := w.window - now.Sub(w.start); remaining > 0 {
			if err := w.sleep(ctx, remaining); err != nil {
				return 0, err
			}
			waited = remaining
		}
		w.start = w.now()
		w.count = 0
	}
	w.count++
	return waited, nil
}

// Remaining returns the number of requests left in the current window.
func (w *Window) Remaining() int {
	if w == nil {
		return -1
	}
	if w.start.IsZero() || w.now().Sub(w.start) >= w.window {
		return w.max
	}
	return w.max - w.count
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
