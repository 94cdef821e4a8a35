package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_loop/effects"
	"github.com/on-the-ground/effect_ive_loop/effects/log"
	"github.com/on-the-ground/effect_ive_loop/effects/trace"
	"github.com/on-the-ground/effect_ive_loop/internal/demo"
)

func loadConfig(opts *RootOptions) (demo.Config, error) {
	cfg, err := demo.LoadConfig(opts.Config)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func newLogger(opts *RootOptions) (*zap.Logger, error) {
	logger, err := log.New(opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	return logger, nil
}

// runLoop runs stepper until it terminates or the process is interrupted.
// An interrupt is a clean exit. With --verbose every effect is wrapped to log
// its lifecycle; with --trace the loop events are written out at the end,
// also when the loop failed.
func runLoop[V any](cmd *cobra.Command, opts *RootOptions, logger *zap.Logger, stepper effects.Stepper[V]) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []effects.Option[V]{effects.WithLogger[V](logger)}

	var rec *trace.Recorder
	if opts.Trace != "" {
		var err error
		rec, err = trace.NewRecorder()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create trace recorder", err)
		}
		runOpts = append(runOpts, effects.WithObserver[V](rec))
	}

	if opts.Verbose {
		stepper = log.Stepper(logger, stepper)
	}

	runErr := effects.Run(ctx, stepper, runOpts...)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("interrupted")
		runErr = nil
	}

	if rec != nil {
		if err := writeTrace(opts.Trace, rec); err != nil {
			runErr = multierr.Append(runErr, err)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "loop failed", runErr)
	}
	return nil
}

func writeTrace(path string, rec *trace.Recorder) error {
	if err := rec.Err(); err != nil {
		return fmt.Errorf("trace is incomplete: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := rec.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
