package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Config  string
	Trace   string
	Verbose bool
}

// NewRootCommand creates the root command of effectloop.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "effectloop",
		Short: "Run demo effect loops",
		Long: `Run small programs built on the effect reconciliation loop.

Every command runs one stepper until it terminates or the process is
interrupted. Settings come from defaults, then --config, then flags.`,
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Trace, "trace", "", "write the loop trace as YAML to this file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewTickerCommand(opts))
	cmd.AddCommand(NewDialCommand(opts))

	return cmd
}
