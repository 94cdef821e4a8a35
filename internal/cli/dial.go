package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/on-the-ground/effect_ive_loop/internal/demo"
)

// DialOptions holds flags for the dial command.
type DialOptions struct {
	*RootOptions
	Addr        string
	MaxAttempts int
	MaxLines    int
	Once        bool
}

func NewDialCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dial [addr]",
		Short: "Connect to a TCP server and print the lines it sends",
		Long: `Dial a TCP address, retrying with a growing pause between attempts,
and log every line received. When the server closes the connection the
command dials again, unless --once is set.

Examples:
  effectloop dial localhost:1234
  effectloop dial --max-attempts 3 --once localhost:1234`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Addr = args[0]
			}
			return runDial(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "give up after this many failed dials in a row (0 = never)")
	cmd.Flags().IntVar(&opts.MaxLines, "max-lines", 0, "stop after this many lines (0 = no limit)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "stop when the first connection closes")

	return cmd
}

func runDial(opts *DialOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Dial.Addr = opts.Addr
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.Dial.MaxAttempts = opts.MaxAttempts
	}
	if cmd.Flags().Changed("max-lines") {
		cfg.Dial.MaxLines = opts.MaxLines
	}
	if cmd.Flags().Changed("once") {
		cfg.Dial.Once = opts.Once
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	logger, err := newLogger(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m := demo.NewDial(cfg.Dial, logger)
	if err := runLoop[demo.DialMsg](cmd, opts.RootOptions, logger, m); err != nil {
		return err
	}

	state := m.State()
	fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d, lines: %d\n", state.Session, state.Lines)
	if state.GaveUp {
		return WrapExitError(ExitFailure, fmt.Sprintf("gave up on %s", cfg.Dial.Addr), state.LastErr)
	}
	return nil
}
