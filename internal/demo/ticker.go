package demo

import (
	"context"

	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects"
	"github.com/on-the-ground/effect_ive_loop/effects/machine"
	"github.com/on-the-ground/effect_ive_loop/effects/timer"
)

// Tick is dispatched by the ticker effect.
type Tick struct{}

// NewTicker counts ticks and terminates after cfg.Count of them. The state is
// the number of ticks seen. A zero count terminates right away.
func NewTicker(cfg TickerConfig, logger *zap.Logger) *machine.Machine[int, Tick] {
	ticking := func() effects.Step[Tick] {
		return effects.Continue(timer.Ticker(cfg.Interval, Tick{}))
	}
	return machine.From(
		0,
		func(int) effects.Step[Tick] {
			if cfg.Count == 0 {
				return effects.Terminate[Tick]()
			}
			return ticking()
		},
		func(_ context.Context, n int, _ Tick) (int, effects.Step[Tick], error) {
			n++
			logger.Info("tick", zap.Int("n", n), zap.Int("of", cfg.Count))
			if n >= cfg.Count {
				return n, effects.Terminate[Tick](), nil
			}
			return n, ticking(), nil
		},
	)
}
