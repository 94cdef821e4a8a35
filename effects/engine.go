package effects

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects/internal/mailbox"
)

// Run drives stepper until it terminates.
//
// The first list of effects comes from Init; afterwards every value an
// effect dispatches is handed to Step and the returned list is reconciled
// against the running effects: equal effects keep running untouched, new ones
// are started, the rest are cancelled. When Step reports termination every
// running effect is cancelled and Run returns nil.
//
// Everything happens on the calling goroutine, one pass at a time. Dispatches
// that arrive during a pass wait for it to finish; dispatches from effects
// that are no longer running are dropped.
//
// A failing stepper, effect function or cancel function ends the loop: the
// running effects are torn down and the error is returned. Cancelling ctx
// tears down the same way and returns ctx.Err().
func Run[V any](ctx context.Context, stepper Stepper[V], opts ...Option[V]) error {
	if stepper == nil {
		return ErrNilStepper
	}

	cfg := newConfig(opts)
	ctx, cancel := context.WithCancel(context.WithValue(ctx, loggerKey{}, cfg.logger))
	defer cancel()

	l := &loop[V]{
		ctx:     ctx,
		cfg:     cfg,
		logger:  cfg.logger,
		stepper: stepper,
		box:     mailbox.New[message[V]](),
		reg:     &registry[V]{},
	}
	defer l.box.Close()

	return l.run()
}

type message[V any] struct {
	from  *runningEffect[V]
	value V
	done  bool
}

// dispatcher binds a dispatch to the instance it was handed to.
type dispatcher[V any] struct {
	inst *runningEffect[V]
	box  *mailbox.Mailbox[message[V]]
}

func (d dispatcher[V]) Dispatch(value V) {
	d.box.Push(message[V]{from: d.inst, value: value})
}

func (d dispatcher[V]) Done(value V) {
	d.box.Push(message[V]{from: d.inst, value: value, done: true})
}

type loop[V any] struct {
	ctx     context.Context
	cfg     config[V]
	logger  *zap.Logger
	stepper Stepper[V]
	box     *mailbox.Mailbox[message[V]]
	reg     *registry[V]
	pass    uint64
}

func (l *loop[V]) run() error {
	l.beginPass()
	step, err := l.init()
	for {
		if err != nil {
			return l.fail(err)
		}
		if step.Terminated {
			return l.terminate()
		}

		var stats passStats
		stats, err = l.reconcile(step.Effects)
		l.endPass(stats)
		if err != nil {
			return l.fail(err)
		}

		step, err = l.next()
	}
}

func (l *loop[V]) init() (step Step[V], err error) {
	err = guard(ErrStep, "init", func() (err error) {
		step, err = l.stepper.Init(l.ctx)
		return err
	})
	return step, err
}

// next waits for the next live dispatch and feeds it to the stepper.
func (l *loop[V]) next() (Step[V], error) {
	for {
		msg, err := l.box.Pop(l.ctx)
		if err != nil {
			return Step[V]{}, err
		}
		if !msg.from.live {
			l.logger.Debug("dropping stale dispatch",
				zap.String("key", string(msg.from.key)),
				zap.Stringer("instance", msg.from.id),
			)
			l.emit(EventStale, msg.from.key, msg.from.id)
			continue
		}

		l.beginPass()
		if msg.done {
			msg.from.done = true
			l.emit(EventDone, msg.from.key, msg.from.id)
		}
		var step Step[V]
		err = guard(ErrStep, "step", func() (err error) {
			step, err = l.stepper.Step(l.ctx, msg.value)
			return err
		})
		return step, err
	}
}

func (l *loop[V]) terminate() error {
	n := l.reg.len()
	l.emit(EventTerminate, "", uuid.Nil)
	err := l.teardown()
	l.endPass(passStats{stops: n})
	dropped := l.box.Close()
	l.logger.Info("loop terminated",
		zap.Uint64("pass", l.pass),
		zap.Int("cancelled", n),
		zap.Int("dropped_dispatches", dropped),
	)
	return err
}

// fail tears down whatever is still running after a fatal error.
func (l *loop[V]) fail(cause error) error {
	err := l.teardown()
	l.box.Close()
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		l.logger.Info("loop stopped by context", zap.Uint64("pass", l.pass), zap.Error(cause))
	} else {
		l.logger.Error("loop failed", zap.Uint64("pass", l.pass), zap.Error(cause))
	}
	return multierr.Append(cause, err)
}

// teardown stops every registered instance, each exactly once, in registry
// order.
func (l *loop[V]) teardown() error {
	entries := l.reg.drain()
	for _, entry := range entries {
		l.emit(EventStop, entry.key, entry.id)
	}
	return stopAll(entries)
}

func (l *loop[V]) beginPass() {
	l.pass++
	l.emit(EventPassBegin, "", uuid.Nil)
}

func (l *loop[V]) endPass(stats passStats) {
	l.logger.Debug("pass reconciled",
		zap.Uint64("pass", l.pass),
		zap.Int("kept", stats.keeps),
		zap.Int("started", stats.starts),
		zap.Int("stopped", stats.stops),
		zap.Int("running", l.reg.len()),
		zap.Int("queued", l.box.Len()),
	)
	l.emit(EventPassEnd, "", uuid.Nil)
}

func (l *loop[V]) emit(kind EventKind, key Key, instance uuid.UUID) {
	l.cfg.observer.Observe(Event{
		Kind:     kind,
		Pass:     l.pass,
		Key:      key,
		Instance: instance,
		At:       time.Now(),
	})
}
