package cli

import (
	"fmt"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/reconcile"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <commit>",
		Short: "Render the authorship note attached to a commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			n, err := reconcile.ReadNote(gitDir, args[0])
			if err != nil {
				return exitWithSilentError(err)
			}
			if n == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no authorship note for %s\n", args[0])
				return nil
			}
			data, err := note.Marshal(n)
			if err != nil {
				return exitWithSilentError(err)
			}
			outputWithPager(cmd.OutOrStdout(), string(data)+"\n")
			return nil
		},
	}
}
