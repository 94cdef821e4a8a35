// Package effects runs a reconciliation loop over long-lived side effects.
//
// A Stepper decides, for every value it receives, which effects should be
// running: timers, channel subscriptions, dials, background tasks. The loop
// compares that list with what is already running and only changes the
// difference, much like keyed list reconciliation in UI frameworks, but for
// subscriptions with explicit lifecycles.
//
// # Effects
//
// An Effect is an inert description: a function and its arguments. Starting
// it calls the function with a Dispatcher and gets a CancelFunc back. The
// effect reports values through the Dispatcher, and Done when it has
// completed on its own.
//
// # Identity
//
// Two effects are the same when their keys are equal. DefaultKey uses the
// explicit Effect.Key when set, otherwise the function name and a structural
// hash of the arguments. Prefer explicit keys; the structural default is
// convenient but cannot tell apart two closures of the same literal that
// capture different state.
//
// # Reconciliation
//
// On every pass, in list order, an effect equal to a running instance that
// has not completed keeps that instance untouched; any other effect starts a
// new instance. Running instances that were not claimed are cancelled after
// all starts. A completed instance is never kept, so an effect that is still
// desired after it completed is started again.
//
// A list naming the same key twice starts or keeps one instance per entry;
// duplicates are not merged.
//
// # Dispatch
//
// Dispatches never block and are handled one at a time on the goroutine
// running Run, after the current pass finishes. A dispatch from an instance
// that is no longer running is dropped without calling the stepper.
//
// Example:
//
//	type msg struct{ tick int }
//
//	stepper := effects.StepperFuncs[msg]{
//	    InitFn: func(ctx context.Context) (effects.Step[msg], error) {
//	        return effects.Continue(timer.Ticker(time.Second, msg{})), nil
//	    },
//	    StepFn: func(ctx context.Context, m msg) (effects.Step[msg], error) {
//	        return effects.Terminate[msg](), nil
//	    },
//	}
//	err := effects.Run(ctx, stepper)
package effects
