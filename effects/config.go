package effects

import (
	"context"

	"go.uber.org/zap"
)

// Option configures Run.
type Option[V any] func(*config[V])

type config[V any] struct {
	logger   *zap.Logger
	keyOf    KeyFunc[V]
	equal    EqualFunc[V]
	observer Observer
}

func newConfig[V any](opts []Option[V]) config[V] {
	cfg := config[V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.keyOf == nil {
		cfg.keyOf = DefaultKey[V]
	}
	if cfg.observer == nil {
		cfg.observer = nopObserver{}
	}
	return cfg
}

// WithLogger makes the loop log its passes. The default logger discards
// everything.
func WithLogger[V any](logger *zap.Logger) Option[V] {
	return func(c *config[V]) {
		c.logger = logger
	}
}

// WithKeyFunc replaces DefaultKey.
func WithKeyFunc[V any](keyOf KeyFunc[V]) Option[V] {
	return func(c *config[V]) {
		c.keyOf = keyOf
	}
}

// WithEqualFunc matches running effects with a predicate instead of by key.
// Keys are still derived for logging and observers.
func WithEqualFunc[V any](equal EqualFunc[V]) Option[V] {
	return func(c *config[V]) {
		c.equal = equal
	}
}

func WithObserver[V any](observer Observer) Option[V] {
	return func(c *config[V]) {
		c.observer = observer
	}
}

type loggerKey struct{}

// LoggerFrom returns the logger of the loop that owns ctx. Effect functions
// use it with the context they were started with.
func LoggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
