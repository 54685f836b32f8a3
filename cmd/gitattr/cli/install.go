package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/dispatch"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/jsonutil"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// managedHookNames is the full fleet named in spec §6, minus the
// passthrough-only entries which still get a chaining script but no
// internal dispatch call.
var managedHookNames = []dispatch.HookName{
	dispatch.HookPreCommit,
	dispatch.HookPostCommit,
	dispatch.HookPrepareCommitMsg,
	dispatch.HookCommitMsg,
	dispatch.HookPreRebase,
	dispatch.HookPostRewrite,
	dispatch.HookPostCheckout,
	dispatch.HookPostMerge,
	dispatch.HookReferenceTransaction,
	dispatch.HookPostIndexChange,
	dispatch.HookApplypatchMsg,
	dispatch.HookPreApplypatch,
	dispatch.HookPostApplypatch,
	dispatch.HookPreAutoGC,
	dispatch.HookPreMergeCommit,
}

const hookScriptTemplate = `#!/bin/sh
# Installed by gitattr. Do not edit; re-run "gitattr install" instead.
%s
exec gitattr hooks dispatch %s "$@"
`

// newInstallCmd writes the managed hook fleet into <gitdir>/ai/hooks/ and
// points core.hooksPath at it. Unlike writing directly into .git/hooks,
// this preserves whatever hooksPath (or plain .git/hooks scripts) the user
// already had: they are detected and chained into each generated script
// instead of being overwritten, so multiple tools can share hooksPath.
func newInstallCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the managed hook fleet via core.hooksPath",
		RunE: func(cmd *cobra.Command, args []string) error {
			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			previous, err := currentHooksPath(gitDir)
			if err != nil {
				return exitWithSilentError(err)
			}

			managedDir := paths.HooksPath(gitDir)
			if err := paths.EnsureDir(managedDir); err != nil {
				return exitWithSilentError(err)
			}

			for _, hook := range managedHookNames {
				if err := writeHookScript(managedDir, previous, hook); err != nil {
					return exitWithSilentError(err)
				}
			}

			if err := setHooksPath(managedDir); err != nil {
				return exitWithSilentError(err)
			}

			if interactive {
				toplevel, err := paths.Toplevel(".")
				if err != nil {
					return exitWithSilentError(err)
				}
				if err := runInstallWizard(toplevel); err != nil {
					return exitWithSilentError(err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Installed gitattr hooks into %s\n", managedDir)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for allow-listed repos and transcript policy")
	return cmd
}

// runInstallWizard prompts for the two settings that most affect what leaves
// the repo: which remotes gitattr is allowed to run in, and which agent
// tools get their raw prompt transcripts embedded (redacted) in notes versus
// only a hash+length pointer.
func runInstallWizard(toplevel string) error {
	var allowRepos string
	var inlineChoice string

	form := newAccessibleForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Allow-listed remote URLs (comma-separated, blank = allow all)").
				Value(&allowRepos),
			huh.NewSelect[string]().
				Title("Embed agent-v1 transcripts inline (redacted) instead of a pointer?").
				Options(
					huh.NewOption("Yes, embed inline", "inline"),
					huh.NewOption("No, pointer only", "pointer"),
				).
				Value(&inlineChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("install wizard cancelled: %w", err)
	}

	base, _ := paths.SettingsPaths(toplevel)
	m := map[string]any{}
	if data, err := os.ReadFile(base); err == nil {
		_ = json.Unmarshal(data, &m)
	}
	if allowRepos != "" {
		var repos []string
		for _, r := range strings.Split(allowRepos, ",") {
			if r = strings.TrimSpace(r); r != "" {
				repos = append(repos, r)
			}
		}
		m["allow_repos"] = repos
	}
	if inlineChoice == "inline" {
		m["transcript_inline_agents"] = []string{"agent-v1"}
	}

	if err := paths.EnsureDir(filepath.Dir(base)); err != nil {
		return err
	}
	data, err := jsonutil.MarshalIndentWithNewline(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(base, data, 0o644)
}

// newAccessibleForm builds a huh.Form that falls back to plain
// question-and-answer prompting when stdout isn't an interactive terminal,
// so install still works over a piped or CI shell.
func newAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		form = form.WithAccessible(true)
	}
	return form
}

func writeHookScript(managedDir, previousHooksPath string, hook dispatch.HookName) error {
	chain := ""
	if previousHooksPath != "" {
		prevScript := filepath.Join(previousHooksPath, string(hook))
		if info, err := os.Stat(prevScript); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			chain = fmt.Sprintf(`"%s" "$@" || true`, prevScript)
		}
	}
	content := fmt.Sprintf(hookScriptTemplate, chain, hook)
	target := filepath.Join(managedDir, string(hook))
	if err := os.WriteFile(target, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing hook %s: %w", hook, err)
	}
	return nil
}

func currentHooksPath(gitDir string) (string, error) {
	cmd := exec.Command("git", "config", "--get", "core.hooksPath")
	cmd.Dir = filepath.Dir(gitDir)
	out, err := cmd.Output()
	if err != nil {
		// git config --get exits 1 when the key is unset; that's not a
		// failure worth reporting.
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func setHooksPath(dir string) error {
	cmd := exec.Command("git", "config", "core.hooksPath", dir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("setting core.hooksPath: %w", err)
	}
	return nil
}

// newUninstallCmd restores whatever hooksPath was configured before
// install ran, or unsets core.hooksPath entirely if none was.
func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the managed hook fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			current, _ := currentHooksPath(gitDir)
			if current == paths.HooksPath(gitDir) {
				unsetCmd := exec.Command("git", "config", "--unset", "core.hooksPath")
				_ = unsetCmd.Run()
			}
			_ = os.RemoveAll(paths.HooksPath(gitDir))
			fmt.Fprintln(cmd.OutOrStdout(), "Removed gitattr hooks")
			return nil
		},
	}
}
