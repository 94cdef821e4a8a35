// Package source turns channels and background functions into effects.
package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

// FromChannel forwards every item received from ch, converted by format.
// The effect is identified by ch: asking for FromChannel on the same channel
// again keeps the running subscription, whatever format is passed.
//
// When ch is closed the subscription ends silently. Cancelling it waits
// until the forwarding goroutine exited.
func FromChannel[T, V any](ch <-chan T, format func(T) V) effects.Effect[V] {
	return effects.Effect[V]{
		Key: channelKey(ch),
		Fn:  subscribe(ch, format, nil),
	}
}

// FromChannelUntilClosed is FromChannel, completing with closed once ch is
// closed.
func FromChannelUntilClosed[T, V any](ch <-chan T, format func(T) V, closed V) effects.Effect[V] {
	return effects.Effect[V]{
		Key: channelKey(ch) + "/until-closed",
		Fn:  subscribe(ch, format, &closed),
	}
}

func channelKey[T any](ch <-chan T) effects.Key {
	return effects.Key(fmt.Sprintf("source.FromChannel/%p", ch))
}

func subscribe[T, V any](ch <-chan T, format func(T) V, closed *V) effects.EffectFunc[V] {
	return func(ctx context.Context, d effects.Dispatcher[V], _ ...any) (effects.CancelFunc, error) {
		logger := effects.LoggerFrom(ctx).With(zap.String("source", string(channelKey(ch))))
		sv := spawn(ctx, logger, func(ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						logger.Debug("channel closed")
						if closed != nil {
							d.Done(*closed)
						}
						return
					}
					d.Dispatch(format(item))
				}
			}
		})
		return sv.stopAndWait, nil
	}
}

// Task runs fn on its own goroutine and completes with its result. Cancelling
// the task cancels fn's context and does not wait for fn to return; a result
// produced after cancellation is discarded.
//
// key identifies the task. Domain failures should be part of V.
func Task[V any](key effects.Key, fn func(ctx context.Context) V) effects.Effect[V] {
	return TaskWithRelease(key, fn, nil)
}

// TaskWithRelease is Task for results that own resources. release is called
// with every result discarded because the task was cancelled.
func TaskWithRelease[V any](key effects.Key, fn func(ctx context.Context) V, release func(V)) effects.Effect[V] {
	return effects.Effect[V]{
		Key: "source.Task/" + key,
		Fn: func(ctx context.Context, d effects.Dispatcher[V], _ ...any) (effects.CancelFunc, error) {
			logger := effects.LoggerFrom(ctx).With(zap.String("task", string(key)))
			sv := spawn(ctx, logger, func(ctx context.Context) {
				result := fn(ctx)
				if ctx.Err() != nil {
					logger.Debug("discarding result of cancelled task")
					if release != nil {
						release(result)
					}
					return
				}
				d.Done(result)
			})
			return sv.stop, nil
		},
	}
}
