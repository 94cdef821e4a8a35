package effects_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

func TestRun_NilStepper(t *testing.T) {
	err := effects.Run[string](context.Background(), nil)
	require.ErrorIs(t, err, effects.ErrNilStepper)
}

func TestRun_TerminateOnInit(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(effects.Terminate[string](), nil))

	require.NoError(t, waitErr(t, errCh))
	assert.Empty(t, h.log())
}

func TestRun_KeepsEqualEffect(t *testing.T) {
	h := newHarness()
	both := effects.Continue(h.effect("timer"), h.effect("trigger"))
	errCh := h.run(context.Background(), h.stepper(both, map[string]effects.Step[string]{
		"poke": both,
		"quit": effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	h.dispatcher(t, "trigger").Dispatch("poke")
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start timer", "start trigger", "step poke"}, h.log())

	h.dispatcher(t, "trigger").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, 1, h.count("start timer"))
	assert.Equal(t, 1, h.count("stop timer"))
}

func TestRun_StopsRemovedEffectAfterStarts(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A")), map[string]effects.Step[string]{
		"x":    effects.Continue(h.effect("B")),
		"quit": effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start A", "step x", "start B", "stop A"}, h.log())

	h.dispatcher(t, "B").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, 1, h.count("stop A"))
	assert.Equal(t, 1, h.count("stop B"))
}

func TestRun_RestartsCompletedEffect(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A")), map[string]effects.Step[string]{
		"finished": effects.Continue(h.effect("A")),
		"quit":     effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	first := h.dispatcher(t, "A")
	first.Done("finished")
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start A", "step finished", "start A", "stop A"}, h.log())

	second := h.dispatcher(t, "A")
	second.Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, 2, h.count("start A"))
	assert.Equal(t, 2, h.count("stop A"))
}

func TestRun_DropsStaleDispatch(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A")), map[string]effects.Step[string]{
		"x":    effects.Continue(h.effect("B")),
		"quit": effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	a := h.dispatcher(t, "A")
	a.Dispatch("x")
	h.waitPasses(t, 1)

	// A was cancelled by the previous pass; these must not reach the stepper.
	a.Dispatch("late")
	a.Done("late")
	h.dispatcher(t, "B").Dispatch("quit")

	require.NoError(t, waitErr(t, errCh))
	assert.Zero(t, h.count("step late"))
	assert.Equal(t, []string{"start A", "step x", "start B", "stop A", "step quit", "stop B"}, h.log())
}

func TestRun_TerminateCancelsEverything(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A"), h.effect("B")), map[string]effects.Step[string]{
		"quit": effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	b := h.dispatcher(t, "B")
	h.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))

	assert.Equal(t, 1, h.count("stop A"))
	assert.Equal(t, 1, h.count("stop B"))

	before := h.log()
	assert.NotPanics(t, func() {
		b.Dispatch("after")
		b.Done("after")
	})
	assert.Equal(t, before, h.log())
}

func TestRun_DuplicateKeysKeepFirstMatch(t *testing.T) {
	h := newHarness()
	rec := &dispatcherLog{}
	dup := func(tag string) effects.Effect[string] {
		return effects.Keyed("dup", rec.fake(h), tag)
	}

	errCh := h.run(context.Background(), h.stepper(
		effects.Continue(dup("first"), dup("second"), h.effect("trigger")),
		map[string]effects.Step[string]{
			"once":  effects.Continue(dup("any"), h.effect("trigger")),
			"twice": effects.Continue(dup("any"), dup("any"), h.effect("trigger")),
			"quit":  effects.Terminate[string](),
		},
	))
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start first", "start second", "start trigger"}, h.log())

	h.dispatcher(t, "trigger").Dispatch("once")
	h.waitPasses(t, 1)
	// The first running instance is kept, the second is stopped.
	assert.Equal(t, []string{"start first", "start second", "start trigger", "step once", "stop second"}, h.log())

	h.dispatcher(t, "trigger").Dispatch("twice")
	h.waitPasses(t, 1)
	assert.Equal(t, "start any", h.log()[len(h.log())-1])

	rec.get("first").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, 1, h.count("stop first"))
	assert.Equal(t, 1, h.count("stop any"))
}

// dispatcherLog keeps the dispatcher of every fake by its tag.
type dispatcherLog struct {
	h    *harness
	disp map[string]effects.Dispatcher[string]
}

func (l *dispatcherLog) fake(h *harness) effects.EffectFunc[string] {
	l.h = h
	return func(_ context.Context, d effects.Dispatcher[string], args ...any) (effects.CancelFunc, error) {
		tag, err := effects.Arg[string](args, 0)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		if l.disp == nil {
			l.disp = map[string]effects.Dispatcher[string]{}
		}
		l.disp[tag] = d
		h.calls = append(h.calls, "start "+tag)
		h.mu.Unlock()
		return func() { h.record("stop " + tag) }, nil
	}
}

func (l *dispatcherLog) get(tag string) effects.Dispatcher[string] {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	return l.disp[tag]
}

func TestRun_BuffersSynchronousDispatch(t *testing.T) {
	h := newHarness()
	eager := effects.Keyed("eager", func(_ context.Context, d effects.Dispatcher[string], _ ...any) (effects.CancelFunc, error) {
		h.record("start eager")
		d.Dispatch("early")
		h.record("started eager")
		return nil, nil
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(eager), map[string]effects.Step[string]{
		"early": effects.Terminate[string](),
	}))

	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, []string{"start eager", "started eager", "step early"}, h.log())
}

func TestRun_DispatchFromCancelIsStale(t *testing.T) {
	h := newHarness()
	noisy := effects.Keyed("noisy", func(_ context.Context, d effects.Dispatcher[string], _ ...any) (effects.CancelFunc, error) {
		h.record("start noisy")
		return func() {
			h.record("stop noisy")
			d.Dispatch("from-cancel")
		}, nil
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(noisy, h.effect("A")), map[string]effects.Step[string]{
		"x":           effects.Continue(h.effect("A")),
		"from-cancel": effects.Continue(h.effect("A")),
		"quit":        effects.Terminate[string](),
	}))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	h.waitPasses(t, 1)
	h.dispatcher(t, "A").Dispatch("quit")

	require.NoError(t, waitErr(t, errCh))
	assert.Zero(t, h.count("step from-cancel"))
	assert.Equal(t, 1, h.count("stop noisy"))
}

func TestRun_SkipsZeroEffects(t *testing.T) {
	h := newHarness()
	errCh := h.run(context.Background(), h.stepper(
		effects.Continue(effects.None[string](), h.effect("A"), effects.When(false, h.effect("B"))),
		map[string]effects.Step[string]{"quit": effects.Terminate[string]()},
	))
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start A"}, h.log())

	h.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
}

func TestRun_StepError(t *testing.T) {
	h := newHarness()
	boom := errors.New("boom")
	s := effects.StepperFuncs[string]{
		InitFn: func(context.Context) (effects.Step[string], error) {
			return effects.Continue(h.effect("A"), h.effect("B")), nil
		},
		StepFn: func(context.Context, string) (effects.Step[string], error) {
			return effects.Step[string]{}, boom
		},
	}
	errCh := h.run(context.Background(), s)
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, effects.ErrStep)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, h.count("stop A"))
	assert.Equal(t, 1, h.count("stop B"))
}

func TestRun_StepPanic(t *testing.T) {
	h := newHarness()
	s := effects.StepperFuncs[string]{
		InitFn: func(context.Context) (effects.Step[string], error) {
			return effects.Continue(h.effect("A")), nil
		},
		StepFn: func(context.Context, string) (effects.Step[string], error) {
			panic("stepper exploded")
		},
	}
	errCh := h.run(context.Background(), s)
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, effects.ErrStep)
	require.ErrorIs(t, err, effects.ErrPanic)
	assert.Contains(t, err.Error(), "stepper exploded")
	assert.Equal(t, 1, h.count("stop A"))
}

func TestRun_InitError(t *testing.T) {
	boom := errors.New("no init")
	s := effects.StepperFuncs[string]{
		InitFn: func(context.Context) (effects.Step[string], error) {
			return effects.Step[string]{}, boom
		},
	}
	err := effects.Run[string](context.Background(), s)
	require.ErrorIs(t, err, effects.ErrStep)
	require.ErrorIs(t, err, boom)
}

func TestRun_StartErrorTearsDownStarted(t *testing.T) {
	h := newHarness()
	boom := errors.New("cannot start")
	failing := effects.Keyed("failing", func(context.Context, effects.Dispatcher[string], ...any) (effects.CancelFunc, error) {
		return nil, boom
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A"), failing, h.effect("B")), nil))
	err := waitErr(t, errCh)

	require.ErrorIs(t, err, effects.ErrStart)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, []string{"start A", "stop A"}, h.log())
}

func TestRun_StartErrorStopsPreviousInstances(t *testing.T) {
	h := newHarness()
	boom := errors.New("cannot start")
	failing := effects.Keyed("failing", func(context.Context, effects.Dispatcher[string], ...any) (effects.CancelFunc, error) {
		return nil, boom
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A"), h.effect("B")), map[string]effects.Step[string]{
		"x": effects.Continue(h.effect("B"), failing),
	}))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, effects.ErrStart)
	// B was kept, A was still waiting to be stopped: both go exactly once.
	assert.Equal(t, 1, h.count("stop A"))
	assert.Equal(t, 1, h.count("stop B"))
}

func TestRun_StartPanic(t *testing.T) {
	h := newHarness()
	failing := effects.Keyed("failing", func(context.Context, effects.Dispatcher[string], ...any) (effects.CancelFunc, error) {
		panic("start exploded")
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(failing), nil))
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, effects.ErrStart)
	require.ErrorIs(t, err, effects.ErrPanic)
}

func TestRun_CancelPanicIsFatal(t *testing.T) {
	h := newHarness()
	fragile := effects.Keyed("fragile", func(context.Context, effects.Dispatcher[string], ...any) (effects.CancelFunc, error) {
		return func() { panic("cancel exploded") }, nil
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(fragile, h.effect("A")), map[string]effects.Step[string]{
		"x": effects.Continue(h.effect("A")),
	}))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, effects.ErrCancel)
	require.ErrorIs(t, err, effects.ErrPanic)
	assert.Equal(t, 1, h.count("stop A"))
}

func TestRun_ContextCancelTearsDown(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := h.run(ctx, h.stepper(effects.Continue(h.effect("A"), h.effect("B")), nil))
	h.waitPasses(t, 1)

	cancel()
	err := waitErr(t, errCh)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"start A", "start B", "stop A", "stop B"}, h.log())
}

func TestRun_EqualFuncOverridesKeys(t *testing.T) {
	h := newHarness()
	sameName := func(a, b effects.Effect[string]) bool {
		return len(a.Args) > 0 && len(b.Args) > 0 && a.Args[0] == b.Args[0]
	}

	errCh := h.run(context.Background(), h.stepper(
		effects.Continue(h.effect("A").WithKey("A#1")),
		map[string]effects.Step[string]{
			"x":    effects.Continue(h.effect("A").WithKey("A#2")),
			"quit": effects.Terminate[string](),
		},
	), effects.WithEqualFunc(sameName))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	h.waitPasses(t, 1)
	assert.Equal(t, []string{"start A", "step x"}, h.log())

	h.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
}

func TestRun_KeyFuncOverridesDefault(t *testing.T) {
	h := newHarness()
	byFunction := func(effects.Effect[string]) effects.Key { return "fake" }

	errCh := h.run(context.Background(), h.stepper(effects.Continue(h.effect("A")), map[string]effects.Step[string]{
		"x":    effects.Continue(h.effect("B")),
		"quit": effects.Terminate[string](),
	}), effects.WithKeyFunc(byFunction))
	h.waitPasses(t, 1)

	h.dispatcher(t, "A").Dispatch("x")
	h.waitPasses(t, 1)
	// B has the same key as the running A, so A is kept.
	assert.Equal(t, []string{"start A", "step x"}, h.log())

	h.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, 1, h.count("stop A"))
}

func TestRun_EffectsSeeLoopLogger(t *testing.T) {
	h := newHarness()
	logger := zap.NewExample()
	got := make(chan *zap.Logger, 1)
	peek := effects.Keyed("peek", func(ctx context.Context, _ effects.Dispatcher[string], _ ...any) (effects.CancelFunc, error) {
		got <- effects.LoggerFrom(ctx)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := h.run(ctx, h.stepper(effects.Continue(peek), nil), effects.WithLogger[string](logger))
	h.waitPasses(t, 1)
	cancel()
	require.ErrorIs(t, waitErr(t, errCh), context.Canceled)

	assert.Same(t, logger, <-got)
}

func TestRun_LogsQueuedDispatches(t *testing.T) {
	h := newHarness()
	core, logs := observer.New(zap.DebugLevel)
	eager := effects.Keyed("eager", func(_ context.Context, d effects.Dispatcher[string], _ ...any) (effects.CancelFunc, error) {
		d.Dispatch("early")
		return nil, nil
	})

	errCh := h.run(context.Background(), h.stepper(effects.Continue(eager), map[string]effects.Step[string]{
		"early": effects.Terminate[string](),
	}), effects.WithLogger[string](zap.New(core)))
	require.NoError(t, waitErr(t, errCh))

	passes := logs.FilterMessage("pass reconciled").All()
	require.NotEmpty(t, passes)
	assert.Equal(t, int64(1), passes[0].ContextMap()["queued"])
}

func TestRun_IndependentLoops(t *testing.T) {
	h1, h2 := newHarness(), newHarness()
	on := map[string]effects.Step[string]{"quit": effects.Terminate[string]()}
	errCh1 := h1.run(context.Background(), h1.stepper(effects.Continue(h1.effect("A")), on))
	errCh2 := h2.run(context.Background(), h2.stepper(effects.Continue(h2.effect("A")), on))
	h1.waitPasses(t, 1)
	h2.waitPasses(t, 1)

	h1.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh1))
	assert.Equal(t, 1, h1.count("stop A"))
	assert.Zero(t, h2.count("stop A"))

	h2.dispatcher(t, "A").Dispatch("quit")
	require.NoError(t, waitErr(t, errCh2))
}
