package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

// New builds the logger used by the command line tools: production JSON
// logging, or a development console logger at debug level when verbose.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// WithLog wraps eff so that its lifecycle is logged: start, every value it
// sends, completion and cancellation.
//
// The wrapped effect keeps the name and arguments of eff, and the identity
// DefaultKey gives eff prefixed with "log:", so key functions and equality
// predicates see it the way they see eff. Wrapping does not make a kept effect
// restart.
func WithLog[V any](logger *zap.Logger, eff effects.Effect[V]) effects.Effect[V] {
	if eff.IsZero() {
		return eff
	}
	key := effects.DefaultKey(eff)
	inner := eff
	return effects.Effect[V]{
		Name: inner.Name,
		Args: inner.Args,
		Key:  "log:" + key,
		Fn: func(ctx context.Context, d effects.Dispatcher[V], args ...any) (effects.CancelFunc, error) {
			l := logger.With(zap.String("effect", string(key)))
			l.Info("started")

			cancel, err := inner.Fn(ctx, loggedDispatcher[V]{next: d, logger: l}, args...)
			if err != nil {
				l.Warn("failed to start", zap.Error(err))
				return nil, err
			}
			return func() {
				if cancel != nil {
					cancel()
				}
				l.Info("cancelled")
			}, nil
		},
	}
}

type loggedDispatcher[V any] struct {
	next   effects.Dispatcher[V]
	logger *zap.Logger
}

func (d loggedDispatcher[V]) Dispatch(value V) {
	d.logger.Debug("sent", zap.Any("value", value))
	d.next.Dispatch(value)
}

func (d loggedDispatcher[V]) Done(value V) {
	d.logger.Debug("done", zap.Any("value", value))
	d.next.Done(value)
}

// Stepper wraps every effect requested by s with WithLog.
func Stepper[V any](logger *zap.Logger, s effects.Stepper[V]) effects.Stepper[V] {
	return loggedStepper[V]{next: s, logger: logger}
}

type loggedStepper[V any] struct {
	next   effects.Stepper[V]
	logger *zap.Logger
}

func (s loggedStepper[V]) Init(ctx context.Context) (effects.Step[V], error) {
	step, err := s.next.Init(ctx)
	return s.wrap(step), err
}

func (s loggedStepper[V]) Step(ctx context.Context, value V) (effects.Step[V], error) {
	step, err := s.next.Step(ctx, value)
	return s.wrap(step), err
}

func (s loggedStepper[V]) wrap(step effects.Step[V]) effects.Step[V] {
	if step.Terminated || len(step.Effects) == 0 {
		return step
	}
	wrapped := make([]effects.Effect[V], len(step.Effects))
	for i, eff := range step.Effects {
		wrapped[i] = WithLog(s.logger, eff)
	}
	step.Effects = wrapped
	return step
}
