package effects

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type passStats struct {
	keeps, starts, stops int
}

// reconcile brings the registry in line with desired.
//
// Effects are kept or started in list order, then whatever is left of the
// previous registry is stopped. On a start failure the registry holds
// everything still running, started or not yet stopped, so the caller can
// tear it all down.
func (l *loop[V]) reconcile(desired []Effect[V]) (passStats, error) {
	var stats passStats
	remaining := l.reg.snapshot()
	next := make([]*runningEffect[V], 0, len(desired))

	for _, eff := range desired {
		if eff.IsZero() {
			continue
		}
		key := l.cfg.keyOf(eff)

		var kept *runningEffect[V]
		kept, remaining = takeMatch(remaining, eff, key, l.cfg.equal)
		if kept != nil {
			next = append(next, kept)
			stats.keeps++
			l.emit(EventKeep, kept.key, kept.id)
			continue
		}

		started, err := l.start(eff, key)
		if err != nil {
			l.reg.replace(append(next, remaining...))
			return stats, err
		}
		next = append(next, started)
		stats.starts++
	}

	l.reg.replace(next)
	for _, stale := range remaining {
		l.logger.Debug("stopping effect",
			zap.String("key", string(stale.key)),
			zap.Stringer("instance", stale.id),
			zap.Bool("done", stale.done),
		)
		l.emit(EventStop, stale.key, stale.id)
		stats.stops++
	}
	return stats, stopAll(remaining)
}

// start invokes the effect function for a new instance. The instance is live
// before the function runs so dispatches it issues synchronously are queued
// against it and handled after the pass.
func (l *loop[V]) start(eff Effect[V], key Key) (*runningEffect[V], error) {
	inst := &runningEffect[V]{
		id:     uuid.New(),
		key:    key,
		effect: eff,
		live:   true,
	}
	l.logger.Debug("starting effect",
		zap.String("key", string(key)),
		zap.Stringer("instance", inst.id),
	)

	err := guard(ErrStart, string(key), func() error {
		cancel, err := eff.start(l.ctx, dispatcher[V]{inst: inst, box: l.box})
		inst.cancel = cancel
		return err
	})
	if err != nil {
		inst.live = false
		return nil, err
	}
	l.emit(EventStart, key, inst.id)
	return inst, nil
}
