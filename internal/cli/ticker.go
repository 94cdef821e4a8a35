package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/on-the-ground/effect_ive_loop/internal/demo"
)

// TickerOptions holds flags for the ticker command.
type TickerOptions struct {
	*RootOptions
	Interval time.Duration
	Count    int
}

func NewTickerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TickerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ticker",
		Short: "Count ticks of a periodic timer",
		Long: `Run a single ticker effect and stop after a number of ticks.

The ticker stays the same effect on every step, so it is started once
and kept running until the loop terminates.

Examples:
  effectloop ticker
  effectloop ticker --interval 200ms --count 10 --trace ticker.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTicker(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between ticks (overrides config)")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "ticks to wait for (overrides config)")

	return cmd
}

func runTicker(opts *TickerOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Ticker.Interval = opts.Interval
	}
	if cmd.Flags().Changed("count") {
		cfg.Ticker.Count = opts.Count
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	logger, err := newLogger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m := demo.NewTicker(cfg.Ticker, logger)
	if err := runLoop[demo.Tick](cmd, opts.RootOptions, logger, m); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ticks: %d\n", m.State())
	return nil
}
