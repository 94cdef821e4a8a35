package effects

import "context"

// Step is what a stepper answers with: the effects that should be running
// now, or the request to terminate the loop.
type Step[V any] struct {
	Effects    []Effect[V]
	Terminated bool
}

// Continue keeps the loop running with the given effects.
func Continue[V any](effs ...Effect[V]) Step[V] {
	return Step[V]{Effects: effs}
}

// Terminate ends the loop; every running effect is cancelled.
func Terminate[V any]() Step[V] {
	return Step[V]{Terminated: true}
}

// Stepper is the state machine driving a loop. It is owned by the caller;
// the loop only calls its methods, always from the goroutine running Run.
type Stepper[V any] interface {
	// Init produces the first list of effects, before any value exists.
	Init(ctx context.Context) (Step[V], error)
	// Step consumes a value dispatched by a running effect.
	Step(ctx context.Context, value V) (Step[V], error)
}

// StepperFuncs adapts a pair of functions to Stepper.
type StepperFuncs[V any] struct {
	InitFn func(ctx context.Context) (Step[V], error)
	StepFn func(ctx context.Context, value V) (Step[V], error)
}

var _ Stepper[any] = StepperFuncs[any]{}

func (s StepperFuncs[V]) Init(ctx context.Context) (Step[V], error) {
	if s.InitFn == nil {
		return Step[V]{}, nil
	}
	return s.InitFn(ctx)
}

func (s StepperFuncs[V]) Step(ctx context.Context, value V) (Step[V], error) {
	if s.StepFn == nil {
		return Step[V]{}, nil
	}
	return s.StepFn(ctx, value)
}
