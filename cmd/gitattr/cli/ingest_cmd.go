package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/ingest"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/recorder"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
)

// newIngestCmd reads a single checkpoint event from stdin (either the
// canonical schema or the agent-v1 preset envelope) and records it. A
// malformed event is rejected with a non-zero exit from this subcommand
// only; it never interrupts a git hook (spec §7's ErrMalformedCheckpoint).
func newIngestCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a checkpoint event from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return exitWithSilentError(err)
			}

			toplevel, err := paths.Toplevel(".")
			if err != nil {
				return exitWithSilentError(err)
			}
			gitDir, err := paths.GitDir(".")
			if err != nil {
				return exitWithSilentError(err)
			}

			var event ingest.Event
			var agent agentid.Identity
			switch preset {
			case "agent-v1":
				event, agent, err = ingest.ParseAgentV1(raw)
			default:
				event, err = ingest.ParseEvent(raw)
				if err == nil && event.AgentIDOverride != nil {
					agent = *event.AgentIDOverride
				}
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "gitattr ingest:", err)
				return SilentError{Err: err}
			}

			baseSHA, err := resolveHead(toplevel)
			if err != nil {
				return exitWithSilentError(err)
			}

			store := storage.New(gitDir)
			ignoreMatcher, err := recorder.LoadIgnoreMatcher(paths.IgnoreFilePath(toplevel))
			if err != nil {
				return exitWithSilentError(err)
			}
			rec := recorder.New(store, ignoreMatcher)

			contents := map[string][]byte{}
			for _, p := range event.EditedFilepaths {
				data, readErr := os.ReadFile(p)
				if readErr != nil {
					contents[p] = nil
					continue
				}
				contents[p] = data
			}

			switch event.HookEventName {
			case ingest.HookSessionCreated:
				snapshots, err := trackedFileSnapshots(toplevel, baseSHA, ignoreMatcher)
				if err != nil {
					return exitWithSilentError(err)
				}
				if err := store.WriteInitial(baseSHA, snapshots); err != nil {
					return exitWithSilentError(err)
				}
			case ingest.HookPreToolUse:
				if err := rec.RecordPreToolUse(event.ToolUseID, contents); err != nil {
					return exitWithSilentError(err)
				}
			default:
				_, err := rec.RecordPostToolUse(recorder.PostToolUseInput{
					ToolUseID: event.ToolUseID,
					BaseSHA:   baseSHA,
					Agent:     agent,
					PromptID:  agent.PromptID,
					WallClock: ingest.WallClockNow(),
					Contents:  contents,
				})
				if err != nil {
					return exitWithSilentError(err)
				}
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "checkpoint preset to parse (e.g. agent-v1); default is the canonical schema")
	return cmd
}

// trackedFileSnapshots walks HEAD's tree at session start and snapshots
// every path git tracks, minus anything .gitattrignore excludes. This is
// the seed for Virtual Attribution step 1: without it, replay has no
// pre-existing content to attribute to the human author of a file the
// agent later edits.
func trackedFileSnapshots(toplevel, baseSHA string, ignore *recorder.IgnoreMatcher) ([]checkpoint.FileSnapshot, error) {
	repo, err := git.PlainOpenWithOptions(toplevel, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	commit, err := repo.CommitObject(plumbing.NewHash(baseSHA))
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", baseSHA, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("resolving tree for commit %s: %w", baseSHA, err)
	}

	var snapshots []checkpoint.FileSnapshot
	err = tree.Files().ForEach(func(f *object.File) error {
		if ignore.Match(f.Name) {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		snapshots = append(snapshots, checkpoint.NewFileSnapshot(f.Name, []byte(content)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
