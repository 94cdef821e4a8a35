package effects_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

const waitTimeout = time.Second

// harness records what effects and steppers do, in the order they do it.
// Entries look like "start A", "stop A", "step x".
type harness struct {
	mu     sync.Mutex
	calls  []string
	disp   map[string]effects.Dispatcher[string]
	passes chan uint64
}

func newHarness() *harness {
	return &harness{
		disp:   map[string]effects.Dispatcher[string]{},
		passes: make(chan uint64, 256),
	}
}

func (h *harness) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *harness) log() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

func (h *harness) count(call string) int {
	n := 0
	for _, c := range h.log() {
		if c == call {
			n++
		}
	}
	return n
}

// effect describes a fake keyed by name. It records its start and stop and
// leaves its dispatcher with the harness.
func (h *harness) effect(name string) effects.Effect[string] {
	return effects.Keyed(effects.Key(name), h.fake, name)
}

func (h *harness) fake(_ context.Context, d effects.Dispatcher[string], args ...any) (effects.CancelFunc, error) {
	name, err := effects.Arg[string](args, 0)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.calls = append(h.calls, "start "+name)
	h.disp[name] = d
	h.mu.Unlock()
	return func() { h.record("stop " + name) }, nil
}

func (h *harness) dispatcher(t *testing.T, name string) effects.Dispatcher[string] {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.disp[name]
	require.True(t, ok, "effect %s was never started", name)
	return d
}

// stepper answers init, then looks every value up in on. Unknown values
// fail the step.
func (h *harness) stepper(init effects.Step[string], on map[string]effects.Step[string]) effects.Stepper[string] {
	return effects.StepperFuncs[string]{
		InitFn: func(context.Context) (effects.Step[string], error) {
			return init, nil
		},
		StepFn: func(_ context.Context, v string) (effects.Step[string], error) {
			h.record("step " + v)
			step, ok := on[v]
			if !ok {
				return effects.Step[string]{}, fmt.Errorf("unexpected value %q", v)
			}
			return step, nil
		},
	}
}

func (h *harness) observer() effects.Observer {
	return effects.ObserverFunc(func(e effects.Event) {
		if e.Kind == effects.EventPassEnd {
			h.passes <- e.Pass
		}
	})
}

// run starts the loop on its own goroutine.
func (h *harness) run(ctx context.Context, s effects.Stepper[string], opts ...effects.Option[string]) <-chan error {
	opts = append(opts, effects.WithObserver[string](h.observer()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- effects.Run(ctx, s, opts...)
	}()
	return errCh
}

// waitPasses blocks until n more passes have been reconciled.
func (h *harness) waitPasses(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.passes:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for pass %d of %d", i+1, n)
		}
	}
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the loop to return")
		return nil
	}
}
