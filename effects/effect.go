package effects

import (
	"context"
	"fmt"
)

// Dispatcher feeds values from a running effect back into the loop that
// started it. Calls never block; they are queued and handled one at a time
// by the loop goroutine.
//
// Calls made after the effect has been cancelled, superseded, or after the
// loop terminated are dropped.
type Dispatcher[V any] interface {
	// Dispatch sends a value to the stepper.
	Dispatch(value V)
	// Done sends a value and marks the effect as completed, so the next pass
	// restarts it instead of keeping it, even if it is still desired.
	Done(value V)
}

// CancelFunc tears a running effect down. The loop calls it at most once.
type CancelFunc func()

// EffectFunc starts an effect and returns its teardown.
//
// ctx lives as long as the loop that started the effect. The dispatcher may be
// used before EffectFunc returns; such values are buffered until the effect
// is registered.
type EffectFunc[V any] func(ctx context.Context, d Dispatcher[V], args ...any) (CancelFunc, error)

// Effect describes one desired effect: the function to start and the
// arguments to start it with. It is an inert value; steppers build a fresh
// list of effects on every step.
//
// The zero Effect means "no effect" and is skipped by the loop.
type Effect[V any] struct {
	// Name stands in for Fn when deriving the default key. Defaults to the
	// runtime symbol name of Fn.
	Name string
	Fn   EffectFunc[V]
	Args []any
	// Key, when set, is the identity of the effect and overrides the
	// structural default.
	Key Key
}

// Of describes an effect started as fn(ctx, dispatcher, args...).
func Of[V any](fn EffectFunc[V], args ...any) Effect[V] {
	return Effect[V]{Fn: fn, Args: args}
}

// Keyed describes an effect with an explicit identity.
func Keyed[V any](key Key, fn EffectFunc[V], args ...any) Effect[V] {
	return Effect[V]{Fn: fn, Args: args, Key: key}
}

// None is the "no effect requested at this slot" sentinel.
func None[V any]() Effect[V] {
	return Effect[V]{}
}

// When returns eff if cond holds and None otherwise.
func When[V any](cond bool, eff Effect[V]) Effect[V] {
	if cond {
		return eff
	}
	return None[V]()
}

// IsZero reports whether e requests no effect.
func (e Effect[V]) IsZero() bool {
	return e.Fn == nil
}

// WithKey returns a copy of e identified by key.
func (e Effect[V]) WithKey(key Key) Effect[V] {
	e.Key = key
	return e
}

// Named returns a copy of e whose default key uses name instead of the
// function symbol.
func (e Effect[V]) Named(name string) Effect[V] {
	e.Name = name
	return e
}

func (e Effect[V]) start(ctx context.Context, d Dispatcher[V]) (CancelFunc, error) {
	cancel, err := e.Fn(ctx, d, e.Args...)
	if err != nil {
		return nil, err
	}
	if cancel == nil {
		cancel = func() {}
	}
	return cancel, nil
}

// Arg returns args[i] as a T. Effect functions use it to unpack the
// arguments they were described with.
func Arg[T any](args []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args) {
		return zero, fmt.Errorf("%w: missing argument %d of %d", ErrBadArgs, i, len(args))
	}
	if args[i] == nil {
		return zero, nil
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: argument %d: unexpected type: %T", ErrBadArgs, i, args[i])
	}
	return v, nil
}
