package cli

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/settings"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether gitattr is installed and enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			toplevel, err := paths.Toplevel(".")
			if err != nil {
				return exitWithSilentError(err)
			}

			installed := isHooksPathManaged(gitDir)
			fmt.Fprintf(out, "hooks installed: %v\n", installed)

			s, err := settings.Load(toplevel)
			if err != nil {
				return exitWithSilentError(err)
			}
			fmt.Fprintf(out, "enabled: %v\n", s.Enabled)
			fmt.Fprintf(out, "log level: %s\n", s.LogLevel)
			fmt.Fprintf(out, "hook deadline: %dms\n", s.HookDeadlineMS)

			return nil
		},
	}
}

func isHooksPathManaged(gitDir string) bool {
	current, _ := currentHooksPath(gitDir)
	return current == paths.HooksPath(gitDir)
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common gitattr configuration problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ok := true

			gitDir, err := paths.GitDir(".")
			if err != nil {
				fmt.Fprintf(out, "[FAIL] not inside a git repository: %v\n", err)
				return exitWithSilentError(err)
			}
			fmt.Fprintf(out, "[ OK ] git dir resolved: %s\n", gitDir)

			if isHooksPathManaged(gitDir) {
				fmt.Fprintln(out, "[ OK ] core.hooksPath points at the managed hook fleet")
			} else {
				fmt.Fprintln(out, "[WARN] core.hooksPath is not managed by gitattr; run `gitattr install`")
				ok = false
			}

			if err := checkGitVersion(); err != nil {
				fmt.Fprintf(out, "[WARN] %v\n", err)
				ok = false
			} else {
				fmt.Fprintln(out, "[ OK ] git binary found")
			}

			aiDir := paths.AIRoot(gitDir)
			if _, err := filepath.Abs(aiDir); err == nil {
				fmt.Fprintf(out, "[ OK ] storage root: %s\n", aiDir)
			}

			if !ok {
				return exitWithSilentError(fmt.Errorf("one or more checks failed"))
			}
			return nil
		},
	}
}

func checkGitVersion() error {
	out, err := exec.Command("git", "--version").Output()
	if err != nil {
		return fmt.Errorf("git binary not found: %w", err)
	}
	if !strings.Contains(string(out), "git version") {
		return fmt.Errorf("unexpected `git --version` output")
	}
	return nil
}
