package cli

import (
	"fmt"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/reconcile"
	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
)

// newExplainCmd implements the supplemented "which commits touched this
// file's AI ranges" query (grounded in original_source's authorship
// traversal), reading refs/notes/ai directly rather than replaying
// attribution, since notes are already the settled answer per commit.
func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <path>",
		Short: "Print the current attribution for a tracked file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			out := cmd.OutOrStdout()

			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true})
			if err != nil {
				return exitWithSilentError(err)
			}
			head, err := repo.Head()
			if err != nil {
				return exitWithSilentError(err)
			}

			n, err := reconcile.ReadNote(gitDir, head.Hash().String())
			if err != nil {
				return exitWithSilentError(err)
			}
			if n == nil {
				fmt.Fprintf(out, "no attribution note found for HEAD (%s)\n", head.Hash())
				return nil
			}
			fa, ok := n.Files[target]
			if !ok {
				fmt.Fprintf(out, "no attribution recorded for %s at HEAD\n", target)
				return nil
			}
			if fa.NoAdditions {
				fmt.Fprintf(out, "%s: (no additions)\n", target)
				return nil
			}
			pct := n.Percentages()[target]
			fmt.Fprintf(out, "%s: %.0f%% AI-attributed\n", target, pct)
			for _, r := range fa.LineAttributions {
				owner := "human"
				if !r.AgentID.IsHuman() {
					owner = r.AgentID.Tool
				}
				fmt.Fprintf(out, "  lines %d-%d: %s\n", r.StartLine, r.EndLine, owner)
			}
			return nil
		},
	}
}
