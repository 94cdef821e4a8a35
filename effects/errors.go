package effects

import (
	"errors"
	"fmt"
)

var (
	ErrNilStepper = errors.New("nil stepper")

	// ErrStep wraps failures of Stepper.Init and Stepper.Step.
	ErrStep = errors.New("stepper failed")
	// ErrStart wraps failures of an EffectFunc.
	ErrStart = errors.New("effect start failed")
	// ErrCancel wraps panics raised by a CancelFunc.
	ErrCancel = errors.New("effect cancel failed")
	// ErrPanic marks an error recovered from a panic.
	ErrPanic = errors.New("panic recovered")
	// ErrBadArgs is returned by Arg.
	ErrBadArgs = errors.New("bad effect arguments")
)

// guard runs fn, turning a returned error or a panic into an error wrapping
// sentinel. subject names what was running, e.g. the effect key.
func guard(sentinel error, subject string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %w: %v", sentinel, subject, ErrPanic, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %w", sentinel, subject, err)
	}
	return nil
}
