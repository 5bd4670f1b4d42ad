// internal/wait/wait.go
package wait

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultRequestInterval = 500 * time.Millisecond
	DefaultIdleInterval    = 100 * time.Millisecond
)

// ErrTimeout is returned when a condition did not hold before the timeout.
var ErrTimeout = errors.New("wait timed out")

// Condition is checked repeatedly by Poll.
type Condition func(ctx context.Context) (bool, error)

// Options tune a wait. Zero values select the defaults of each wait.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Settle is an extra pause after the condition first holds.
	Settle time.Duration
	// SkipOnZero makes AfterAction return without waiting when the action
	// produced a zero value.
	SkipOnZero bool
}

func (o Options) withDefaults(interval time.Duration) Options {
	if o.Interval <= 0 {
		o.Interval = interval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Poll evaluates cond every interval until it returns true or an error, the
// timeout elapses, or ctx is done. The first evaluation happens immediately.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Wait also fails early when the next token lies past the
			// deadline, so the condition gets one last look at the deadline.
			return lastCheck(ctx, waitCtx, interval, timeout, cond)
		}

		ok, err := cond(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil {
				return fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return err
		}
		if ok {
			return nil
		}
	}
}

func lastCheck(ctx, waitCtx context.Context, interval, timeout time.Duration, cond Condition) error {
	select {
	case <-waitCtx.Done():
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	checkCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	ok, err := cond(checkCtx)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		return err
	case ok && err == nil:
		return nil
	}
	return fmt.Errorf("%w after %s", ErrTimeout, timeout)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestLog answers whether a matching request started after a point in time.
type RequestLog interface {
	HasRequestSince(pattern string, since int64) (bool, error)
}

// ClockedRequestLog is a RequestLog that also reports its own clock, so that
// start times and record timestamps come from the same source.
type ClockedRequestLog interface {
	RequestLog
	Now() int64
}

// ActivityCounter reports the number of requests still in flight.
type ActivityCounter interface {
	Active() int64
}

// ForRequest blocks until log holds a request matching pattern that started
// after since.
func ForRequest(ctx context.Context, log RequestLog, pattern string, since int64, opts Options) error {
	opts = opts.withDefaults(DefaultRequestInterval)
	err := Poll(ctx, opts.Interval, opts.Timeout, func(context.Context) (bool, error) {
		return log.HasRequestSince(pattern, since)
	})
	if err != nil {
		return fmt.Errorf("waiting for request %q: %w", pattern, err)
	}
	return settle(ctx, opts.Settle)
}

// ForIdle blocks until no request is in flight.
func ForIdle(ctx context.Context, counter ActivityCounter, opts Options) error {
	opts = opts.withDefaults(DefaultIdleInterval)
	err := Poll(ctx, opts.Interval, opts.Timeout, func(context.Context) (bool, error) {
		return counter.Active() == 0, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for idle: %w", err)
	}
	return settle(ctx, opts.Settle)
}

// Action is a page interaction expected to trigger a request.
type Action func(ctx context.Context) (interface{}, error)

// AfterAction notes the current time, runs action, then waits for a request
// matching pattern that started afterwards. The action's result is returned
// either way. With SkipOnZero, a zero result (nil, false, "", 0) skips the wait.
func AfterAction(ctx context.Context, log ClockedRequestLog, pattern string, opts Options, action Action) (interface{}, error) {
	start := log.Now()
	result, err := action(ctx)
	if err != nil {
		return result, err
	}
	if opts.SkipOnZero && isZero(result) {
		return result, nil
	}
	return result, ForRequest(ctx, log, pattern, start, opts)
}

func isZero(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsZero()
	default:
		return false
	}
}
