package source

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// supervisor owns the goroutine behind one running effect.
//
//   - The goroutine gets its own cancellable context, derived from the loop's.
//   - A panic in the goroutine is logged, not propagated.
//   - stop cancels the context; wait blocks until the goroutine returned.
type supervisor struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *zap.Logger
}

func spawn(parent context.Context, logger *zap.Logger, fn func(ctx context.Context)) *supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &supervisor{cancel: cancel, logger: logger}

	ready := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in effect routine", zap.Any("error", r))
			}
		}()
		close(ready)
		fn(ctx)
	}()
	<-ready

	return s
}

func (s *supervisor) stop() {
	s.cancel()
}

func (s *supervisor) wait() {
	s.wg.Wait()
}

// stopAndWait is the teardown of effects whose goroutine always honours its
// context.
func (s *supervisor) stopAndWait() {
	s.stop()
	s.wait()
}
