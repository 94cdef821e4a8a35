// Package timer provides time-based effects.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

// Timeout fires once, after d, by completing with value. Since it completes,
// a stepper that keeps asking for the same Timeout gets a fresh timer each
// time the previous one fired.
func Timeout[V any](d time.Duration, value V) effects.Effect[V] {
	return effects.Effect[V]{
		Name: "timer.Timeout",
		Fn:   timeout[V],
		Args: []any{d, value},
	}
}

func timeout[V any](_ context.Context, d effects.Dispatcher[V], args ...any) (effects.CancelFunc, error) {
	after, value, err := unpack[V](args)
	if err != nil {
		return nil, err
	}
	t := time.AfterFunc(after, func() {
		d.Done(value)
	})
	return func() { t.Stop() }, nil
}

// Ticker dispatches value every interval until cancelled.
func Ticker[V any](interval time.Duration, value V) effects.Effect[V] {
	return effects.Effect[V]{
		Name: "timer.Ticker",
		Fn:   ticker[V],
		Args: []any{interval, value},
	}
}

func ticker[V any](ctx context.Context, d effects.Dispatcher[V], args ...any) (effects.CancelFunc, error) {
	interval, value, err := unpack[V](args)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: non-positive interval %v", effects.ErrBadArgs, interval)
	}

	t := time.NewTicker(interval)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer t.Stop()
		for {
			select {
			case <-t.C:
				d.Dispatch(value)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
		wg.Wait()
	}, nil
}

func unpack[V any](args []any) (time.Duration, V, error) {
	var zero V
	d, err := effects.Arg[time.Duration](args, 0)
	if err != nil {
		return 0, zero, err
	}
	v, err := effects.Arg[V](args, 1)
	if err != nil {
		return 0, zero, err
	}
	return d, v, nil
}
