// Package machine builds steppers from an explicit state value and pure
// transition functions.
package machine

import (
	"context"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

// InitFunc produces the initial state and the first effects.
type InitFunc[S, V any] func(ctx context.Context) (S, effects.Step[V], error)

// UpdateFunc produces the next state and effects from the current state and
// a dispatched value. It should not mutate state in place.
type UpdateFunc[S, V any] func(ctx context.Context, state S, value V) (S, effects.Step[V], error)

// Machine is a Stepper holding a state of type S. It is not safe for
// concurrent use; a loop only calls it from the goroutine running Run.
type Machine[S, V any] struct {
	state  S
	init   InitFunc[S, V]
	update UpdateFunc[S, V]
}

var _ effects.Stepper[any] = (*Machine[struct{}, any])(nil)

func New[S, V any](init InitFunc[S, V], update UpdateFunc[S, V]) *Machine[S, V] {
	return &Machine[S, V]{init: init, update: update}
}

// From starts the machine in state without an InitFunc; the first effects
// come from calling initial on that state.
func From[S, V any](state S, initial func(S) effects.Step[V], update UpdateFunc[S, V]) *Machine[S, V] {
	return New(
		func(context.Context) (S, effects.Step[V], error) {
			return state, initial(state), nil
		},
		update,
	)
}

func (m *Machine[S, V]) Init(ctx context.Context) (effects.Step[V], error) {
	state, step, err := m.init(ctx)
	if err != nil {
		return step, err
	}
	m.state = state
	return step, nil
}

// Step applies update. On error the state is left unchanged.
func (m *Machine[S, V]) Step(ctx context.Context, value V) (effects.Step[V], error) {
	state, step, err := m.update(ctx, m.state, value)
	if err != nil {
		return step, err
	}
	m.state = state
	return step, nil
}

// State returns the current state. Read it only while no loop is running the
// machine, e.g. after Run returned.
func (m *Machine[S, V]) State() S {
	return m.state
}
