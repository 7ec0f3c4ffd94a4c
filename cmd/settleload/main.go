// Command settleload generates settlement scenarios and replays them
// against a settlement service.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"settleload/internal/logging"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

var Version = "dev"

var errThresholdFailed = errors.New("threshold check failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errThresholdFailed):
		return ExitThresholdFailed
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "settleload",
		Short:         "Synthetic load for the settlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			logging.Setup(level, format)
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "log format: console, json")

	root.AddCommand(generateCmd())
	root.AddCommand(printCmd())
	root.AddCommand(replayCmd())
	return root
}
