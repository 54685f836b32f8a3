package cli

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/dispatch"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/logging"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/reconcile"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/rewrite"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/settings"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Internal: git hook entry points",
	}
	cmd.AddCommand(newHooksDispatchCmd())
	return cmd
}

// newHooksDispatchCmd is the Hook Dispatch Shim's entry point: every script
// installed under the managed hooksPath execs `gitattr hooks dispatch
// <hook-name> "$@"`, piping git's own stdin through unchanged.
func newHooksDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "dispatch <hook-name>",
		Short:              "Internal: dispatch one git hook invocation",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			hook := dispatch.HookName(args[0])
			hookArgs := args[1:]

			gitDir, err := paths.GitDir(".")
			if err != nil {
				// Cannot resolve the repository at all: exit 0 silently
				// rather than block git.
				return nil
			}
			logging.Init(gitDir)
			defer logging.Close()

			toplevel, _ := paths.Toplevel(".")
			s, _ := settings.Load(toplevel)
			deadline := time.Duration(s.HookDeadlineMS) * time.Millisecond
			if deadline <= 0 {
				deadline = time.Duration(settings.DefaultHookDeadlineMS) * time.Millisecond
			}

			ctx, cancel := context.WithTimeout(context.Background(), deadline)
			defer cancel()
			ctx = logging.WithHook(ctx, string(hook))

			if dispatch.IsPassthroughOnly(hook) {
				return nil
			}

			done := make(chan error, 1)
			go func() {
				done <- runHook(ctx, hook, hookArgs, gitDir, toplevel)
			}()

			select {
			case err := <-done:
				if err != nil {
					logging.Warn(ctx, "hook handler returned an error", "error", err.Error())
				}
				return nil
			case <-ctx.Done():
				logging.Warn(ctx, logging.FormatDeadlineExceeded(string(hook), deadline))
				return nil
			}
		},
	}
}

func runHook(ctx context.Context, hook dispatch.HookName, args []string, gitDir, toplevel string) error {
	switch hook {
	case dispatch.HookReferenceTransaction:
		return handleReferenceTransaction(ctx, gitDir, toplevel)
	case dispatch.HookPostIndexChange:
		// ShouldSkipPostIndexChange is the entire prefilter for this hook:
		// there's no work to do beyond confirming a session is pending, so
		// both outcomes return nil and only the log line differs.
		if dispatch.ShouldSkipPostIndexChange(gitDir) {
			return nil
		}
		logging.Debug(ctx, "post-index-change: pending session confirmed, no further action")
		return nil
	case dispatch.HookPostCommit:
		return handlePostCommit(ctx, gitDir, toplevel)
	case dispatch.HookPostRewrite:
		return handlePostRewrite(ctx, gitDir, toplevel, args)
	case dispatch.HookPostCheckout:
		return handlePostCheckout(ctx, gitDir, args)
	case dispatch.HookPreCommit:
		return handlePreCommit(ctx, gitDir, toplevel)
	case dispatch.HookPrepareCommitMsg, dispatch.HookCommitMsg,
		dispatch.HookPreRebase, dispatch.HookPostMerge, dispatch.HookPreMergeCommit:
		// No internal work required for these in the core engine; they
		// exist in the managed fleet so a future extension has somewhere
		// to hook without a re-install.
		return nil
	default:
		return nil
	}
}

// handleReferenceTransaction watches for a HEAD move that git tagged as a
// reset (GIT_REFLOG_ACTION starting with "reset"). When the old HEAD is no
// longer an ancestor of the new one, the working log recorded against it
// can never be reconciled into a commit, so it's discarded outright per
// SPEC_FULL §4.6's reset row.
func handleReferenceTransaction(ctx context.Context, gitDir, toplevel string) error {
	scanner := bufio.NewScanner(os.Stdin)
	var refs []string
	var headOld, headNew string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		refs = append(refs, fields[2])
		if fields[2] == "HEAD" {
			headOld, headNew = fields[0], fields[1]
		}
	}
	if dispatch.ShouldSkipReferenceTransaction(refs) {
		return nil
	}
	logging.Debug(ctx, "reference-transaction touched relevant refs", "refs", strings.Join(refs, ","))

	if headOld == "" || headNew == "" || headOld == headNew {
		return nil
	}
	if !strings.HasPrefix(os.Getenv("GIT_REFLOG_ACTION"), "reset") {
		return nil
	}

	reachable, err := isAncestor(toplevel, headOld, headNew)
	if err != nil {
		logging.Warn(ctx, "resolving reset ancestry failed", "error", err.Error())
		return nil
	}

	tracker := rewrite.New(gitDir)
	ev := tracker.HandleReset(reachable)
	logging.Debug(ctx, "post-reset", "kind", string(ev.Kind), "invalidated", ev.Invalidated)

	if ev.Invalidated {
		if err := storage.New(gitDir).Discard(headOld); err != nil {
			logging.Warn(ctx, "discarding abandoned working log failed", "error", err.Error())
		}
	}
	return nil
}

// handlePreCommit captures a rewrite.Context describing the state git is
// about to commit on top of: the HEAD it's amending or extending, the
// reflog action git will record for this operation, and a fingerprint of
// the staged tree. handlePostCommit consumes it to tell a genuine amend
// (whose correct attribution comes from replaying the amended commit's own
// working log, not this one's) apart from an ordinary commit.
func handlePreCommit(ctx context.Context, gitDir, toplevel string) error {
	head, _ := resolveHead(toplevel) // empty on a root commit; not an error
	rwCtx := rewrite.Context{
		CapturedAt:   time.Now().Unix(),
		BaseHEAD:     head,
		ReflogAction: os.Getenv("GIT_REFLOG_ACTION"),
		StagedTree:   stagedTreeFingerprint(gitDir),
	}
	if err := rewrite.WriteContext(gitDir, rwCtx); err != nil {
		logging.Warn(ctx, "capturing rewrite context failed", "error", err.Error())
	}
	return nil
}

// stagedTreeFingerprint hashes the raw index file as a cheap stand-in for
// the tree git is about to write, good enough to tell "nothing changed
// between capture and consumption" from "it did" without shelling out to
// compute an actual tree object.
func stagedTreeFingerprint(gitDir string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, "index"))
	if err != nil {
		return ""
	}
	return checkpoint.HashContent(data)
}

func handlePostCommit(ctx context.Context, gitDir, toplevel string) error {
	commitSHA, err := resolveHead(toplevel)
	if err != nil {
		return err
	}
	modified, deleted, err := diffPathsAgainstParent(toplevel, commitSHA)
	if err != nil {
		return err
	}

	tree, err := newCommitTree(toplevel, commitSHA)
	if err != nil {
		return err
	}

	rwCtx, ok, err := rewrite.ReadContext(gitDir, time.Now().Unix())
	if err != nil {
		logging.Warn(ctx, "reading rewrite context failed", "error", err.Error())
	}
	if ok && strings.Contains(rwCtx.ReflogAction, "amend") {
		// This commit is a `git commit --amend`: the working log that
		// belongs to its content lives under the old HEAD (rwCtx.BaseHEAD),
		// not under this commit's parent, so an ordinary Reconcile here
		// would find no working log and mark everything human. Leave the
		// note to handlePostRewrite's amend branch, which re-derives it by
		// replaying rwCtx.BaseHEAD's archived working log.
		logging.Debug(ctx, "post-commit: amend detected, deferring to post-rewrite", "context_id", rwCtx.ID, "old_head", rwCtx.BaseHEAD)
		return nil
	}

	store := storage.New(gitDir)
	rc := reconcile.New(store, reconcile.DefaultPolicy{})

	parents, author := commitParentsAndAuthor(toplevel, commitSHA)
	info := reconcile.CommitInfo{
		CommitSHA:     commitSHA,
		ParentSHAs:    parents,
		Author:        author,
		ModifiedPaths: modified,
		DeletedPaths:  deleted,
	}

	start := time.Now()
	_, err = rc.Reconcile(info, tree, gitDir)
	logging.LogDuration(ctx, "post-commit reconciliation", start)
	return err
}

// handlePostRewrite drives the Rewrite Tracker off post-rewrite's old→new
// SHA pairs. An "amend" pair carries its note forward unchanged. A
// "rebase" pair with exactly one old SHA per new SHA is a plain rebase or
// cherry-pick; anything with more than one old SHA mapping to the same new
// SHA is a squash, per SPEC_FULL §4.6's "several old SHAs collapse into one
// new SHA" signal.
func handlePostRewrite(ctx context.Context, gitDir, toplevel string, args []string) error {
	if len(args) == 0 {
		return nil
	}
	kind := args[0] // "amend" or "rebase"
	tracker := rewrite.New(gitDir)

	byNewSHA := map[string][]string{}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		oldSHA, newSHA := fields[0], fields[1]
		if kind == "amend" {
			if err := carryAmendedNote(gitDir, toplevel, oldSHA, newSHA, tracker); err != nil {
				logging.Warn(ctx, "amend note carry-forward failed", "error", err.Error())
			}
			continue
		}
		byNewSHA[newSHA] = append(byNewSHA[newSHA], oldSHA)
	}
	if kind != "rebase" {
		return nil
	}

	for newSHA, oldSHAs := range byNewSHA {
		if len(oldSHAs) == 1 {
			oldSHA := oldSHAs[0]
			n, err := rewrite.ReadNote(gitDir, oldSHA)
			if err != nil {
				logging.Warn(ctx, "reading pre-rebase note failed", "error", err.Error())
				continue
			}
			if n == nil {
				continue
			}
			resolved := reprojectFileAttributions(toplevel, newSHA, n)
			mapping := map[string]string{oldSHA: newSHA}
			byNote := map[string]*note.AuthorshipNote{oldSHA: resolved}
			if err := tracker.HandleRebase(mapping, byNote); err != nil {
				logging.Warn(ctx, "rebase note carry-forward failed", "error", err.Error())
			}
			continue
		}

		squashed, err := reconcileSquashTarget(gitDir, toplevel, newSHA)
		if err != nil {
			logging.Warn(ctx, "squash target reconciliation failed", "error", err.Error())
			continue
		}
		if err := tracker.HandleSquash(oldSHAs, squashed); err != nil {
			logging.Warn(ctx, "squash note carry-forward failed", "error", err.Error())
		}
	}
	return nil
}

// carryAmendedNote re-derives the AuthorshipNote for an amend by replaying
// oldSHA's archived working log against newSHA's (amended) tree, so that
// bytes the amend introduced are attributed to human instead of inheriting
// the pre-amend note verbatim. ReconcileAmend does the replay and writes the
// result itself when an archive exists. When nothing was ever archived for
// oldSHA (no working log at commit time), it falls back to the same
// hash-diff reprojection used for a plain rebase.
func carryAmendedNote(gitDir, toplevel, oldSHA, newSHA string, tracker *rewrite.Tracker) error {
	modified, deleted, err := diffPathsAgainstParent(toplevel, newSHA)
	if err != nil {
		return err
	}
	tree, err := newCommitTree(toplevel, newSHA)
	if err != nil {
		return err
	}
	store := storage.New(gitDir)
	rc := reconcile.New(store, reconcile.DefaultPolicy{})
	parents, author := commitParentsAndAuthor(toplevel, newSHA)
	info := reconcile.CommitInfo{
		CommitSHA:     newSHA,
		ParentSHAs:    parents,
		Author:        author,
		ModifiedPaths: modified,
		DeletedPaths:  deleted,
	}

	resolved, err := rc.ReconcileAmend(info, tree, gitDir, oldSHA)
	if err != nil {
		return err
	}
	if resolved != nil {
		return nil // ReconcileAmend already wrote the note and re-archived.
	}

	n, err := rewrite.ReadNote(gitDir, oldSHA)
	if err != nil || n == nil {
		return err
	}
	reprojected := reprojectFileAttributions(toplevel, newSHA, n)
	return tracker.HandleAmend(oldSHA, newSHA, reprojected)
}

// reprojectFileAttributions re-checks each of n's file attributions against
// newSHA's tree. A file whose content is unchanged (the common case when
// rebasing onto an unchanged base) keeps its ranges verbatim. A file whose
// content changed under conflict resolution has no checkpoint covering the
// new bytes, so it falls back to a single human range, same as a commit
// with no working log.
func reprojectFileAttributions(toplevel, newSHA string, n *note.AuthorshipNote) *note.AuthorshipNote {
	tree, err := newCommitTree(toplevel, newSHA)
	if err != nil {
		return n
	}
	out := *n
	out.Files = make(map[string]note.FileAttribution, len(n.Files))
	for path, fa := range n.Files {
		content, exists, err := tree.Content(path)
		if err != nil || !exists {
			continue
		}
		if checkpoint.HashContent(content) == fa.ContentHash {
			out.Files[path] = fa
			continue
		}
		out.Files[path] = reconcile.HumanOnlyAttribution(content)
	}
	return &out
}

// reconcileSquashTarget builds a fresh AuthorshipNote for a squashed
// commit the same way post-commit does for an ordinary commit: every
// modified path defaults to all-human, since the squashed commit has no
// working log of its own. HandleSquash then unions in whatever the source
// commits' own notes attributed.
func reconcileSquashTarget(gitDir, toplevel, commitSHA string) (*note.AuthorshipNote, error) {
	modified, deleted, err := diffPathsAgainstParent(toplevel, commitSHA)
	if err != nil {
		return nil, err
	}
	tree, err := newCommitTree(toplevel, commitSHA)
	if err != nil {
		return nil, err
	}
	store := storage.New(gitDir)
	rc := reconcile.New(store, reconcile.DefaultPolicy{})
	parents, author := commitParentsAndAuthor(toplevel, commitSHA)
	info := reconcile.CommitInfo{
		CommitSHA:     commitSHA,
		ParentSHAs:    parents,
		Author:        author,
		ModifiedPaths: modified,
		DeletedPaths:  deleted,
	}
	return rc.Reconcile(info, tree, gitDir)
}

func handlePostCheckout(ctx context.Context, gitDir string, args []string) error {
	if len(args) < 2 {
		return nil
	}
	newHead := args[1]
	tracker := rewrite.New(gitDir)
	ev := tracker.HandleCheckout(newHead)
	logging.Debug(ctx, "post-checkout", "new_head", ev.NewSHA)
	return nil
}

func commitParentsAndAuthor(toplevel, commitSHA string) ([]string, string) {
	repo, err := git.PlainOpenWithOptions(toplevel, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, ""
	}
	commit, err := repo.CommitObject(plumbing.NewHash(commitSHA))
	if err != nil {
		return nil, ""
	}
	var parents []string
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}
	return parents, commit.Author.Name
}
