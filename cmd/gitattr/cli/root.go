// Package cli assembles the gitattr command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/settings"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/telemetry"
	"github.com/spf13/cobra"
)

// SilentError marks an error that has already been printed to the user, so
// the root command's error handler does not print it a second time.
type SilentError struct{ Err error }

func (e SilentError) Error() string { return e.Err.Error() }
func (e SilentError) Unwrap() error { return e.Err }

var releaseTag = "dev" // overridden at build time via -ldflags

// NewRootCmd builds the gitattr command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gitattr",
		Short:         "Git-native AI authorship attribution",
		Long:          "gitattr attributes every line of every commit to a human author or a specific AI agent, by observing checkpoints emitted during normal git workflow.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			telemetry.Close()
		},
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		toplevel, err := paths.Toplevel(".")
		if err == nil {
			if s, err := settings.Load(toplevel); err == nil {
				telemetry.Init(s.Telemetry != nil && *s.Telemetry)
			}
		}
		return nil
	}

	root.AddCommand(
		newInstallCmd(),
		newUninstallCmd(),
		newStatusCmd(),
		newDoctorCmd(),
		newExplainCmd(),
		newLogCmd(),
		newIngestCmd(),
		newHooksCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gitattr version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), releaseTag)
			return nil
		},
	}
}

func exitWithSilentError(err error) error {
	fmt.Fprintln(os.Stderr, "gitattr:", err)
	return SilentError{Err: err}
}
