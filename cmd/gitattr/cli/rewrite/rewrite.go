// Package rewrite is the Rewrite Tracker: a state machine driven by
// ref-transaction and reflog-action signals that follows an AuthorshipNote
// across amends, rebases, cherry-picks, squashes, and resets. Grounded in
// original_source's RewriteLogEvent enum, reimplemented as a Go sum type
// driven off git's own signals instead of a persisted rewrite log.
package rewrite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/errs"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/reconcile"
	"github.com/google/uuid"
)

// Kind names the rewrite operation detected, mirroring spec §4.6's table.
type Kind string

const (
	KindAmend    Kind = "amend"
	KindRebase   Kind = "rebase"
	KindSquash   Kind = "squash"
	KindReset    Kind = "reset"
	KindCheckout Kind = "checkout"
)

// Event is one detected rewrite, carrying the old→new SHA mapping (or, for
// squash, the several old SHAs collapsing into one new SHA).
type Event struct {
	Kind        Kind
	OldSHAs     []string
	NewSHA      string
	Invalidated bool
}

// Context is the per-rewrite state captured at pre-commit/pre-rewrite time
// and consumed at post-commit/post-rewrite time: the base HEAD, the reflog
// action git reported, and the staged tree hash. It is deleted after
// consumption; a context older than MaxContextAge is discarded as stale.
type Context struct {
	ID           string `json:"id"`
	CapturedAt   int64  `json:"captured_at"`
	BaseHEAD     string `json:"base_head"`
	ReflogAction string `json:"reflog_action"`
	StagedTree   string `json:"staged_tree"`
}

// MaxContextAge bounds how old a persisted Context may be before it is
// treated as stale and discarded rather than consumed.
const MaxContextAge = 10 * time.Minute

// WriteContext persists ctx to the per-rewrite state file, stamping it with
// a fresh ID if the caller left one unset.
func WriteContext(gitDir string, ctx Context) error {
	if ctx.ID == "" {
		ctx.ID = uuid.NewString()
	}
	target := paths.StatePath(gitDir, paths.HookContextFile)
	if err := paths.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("marshaling rewrite context: %w", err)
	}
	return os.WriteFile(target, data, 0o644)
}

// ReadContext loads and deletes the per-rewrite state file. It returns
// errs.ErrStaleRewriteContext if the context is older than MaxContextAge,
// and a plain not-found condition (ok=false) if none exists.
func ReadContext(gitDir string, now int64) (ctx Context, ok bool, err error) {
	target := paths.StatePath(gitDir, paths.HookContextFile)
	data, readErr := os.ReadFile(target)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Context{}, false, nil
		}
		return Context{}, false, readErr
	}
	defer os.Remove(target)

	if unmarshalErr := json.Unmarshal(data, &ctx); unmarshalErr != nil {
		return Context{}, false, fmt.Errorf("parsing rewrite context: %w", unmarshalErr)
	}
	age := time.Duration(now-ctx.CapturedAt) * time.Second
	if age > MaxContextAge {
		return Context{}, false, errs.ErrStaleRewriteContext
	}
	return ctx, true, nil
}

// Tracker applies rewrite events to refs/notes/ai via the Note Writer.
type Tracker struct {
	gitDir string
}

// New returns a Tracker rooted at gitDir.
func New(gitDir string) *Tracker {
	return &Tracker{gitDir: gitDir}
}

// HandleAmend moves resolved to newSHA and appends oldSHA to its
// rewrite_chain, per the "amend" row of spec §4.6's table. resolved must
// already be re-projected against newSHA's tree (via ReconcileAmend or an
// equivalent replay) — HandleAmend itself only carries provenance and
// writes; it does not move a note verbatim, since an amend can change
// content the old note's ranges no longer describe.
func (t *Tracker) HandleAmend(oldSHA, newSHA string, resolved *note.AuthorshipNote) error {
	if resolved == nil {
		return nil
	}
	resolved.CommitSHA = newSHA
	resolved.Provenance.RewriteChain = append(resolved.Provenance.RewriteChain, oldSHA)
	return reconcile.WriteNote(t.gitDir, resolved)
}

// HandleRebase recomputes byte positions for each old→new mapping against
// the new tree. Content may differ due to conflict resolution; any bytes
// introduced by that resolution which no checkpoint covers are attributed
// to human by the caller's attribution.Replay pass before this is invoked
// with the resulting note — HandleRebase itself only carries provenance
// and re-associates the note with its new identity.
func (t *Tracker) HandleRebase(mappings map[string]string, resolved map[string]*note.AuthorshipNote) error {
	for oldSHA, newSHA := range mappings {
		n, ok := resolved[oldSHA]
		if !ok || n == nil {
			continue
		}
		n.CommitSHA = newSHA
		n.Provenance.RewriteChain = append(n.Provenance.RewriteChain, oldSHA)
		if err := reconcile.WriteNote(t.gitDir, n); err != nil {
			return err
		}
	}
	return nil
}

// HandleSquash unions the source commits' notes and re-projects ranges onto
// the squashed tree. A source commit with no note contributes an all-human
// range covering its net diff (spec §9's decided answer to the open
// question about pre-attribution history).
func (t *Tracker) HandleSquash(sourceSHAs []string, squashed *note.AuthorshipNote) error {
	squashed.Provenance.SourceCommits = sourceSHAs
	for _, src := range sourceSHAs {
		if n, err := ReadNote(t.gitDir, src); err == nil && n != nil {
			for path, fa := range n.Files {
				if _, exists := squashed.Files[path]; !exists {
					squashed.Files[path] = fa
				}
			}
			for id, rec := range n.Prompts {
				squashed.Prompts[id] = rec
			}
		}
		// No note for src: its net contribution is already captured by
		// virtual attribution's default human ranges when the caller built
		// `squashed`, so there's nothing further to merge here.
	}
	squashed.PrunePrompts()
	return reconcile.WriteNote(t.gitDir, squashed)
}

// HandleReset performs no note movement; it only signals to the caller
// whether the Working Log for the abandoned base should be invalidated.
// When baseStillReachable is false, the old HEAD fell off the branch
// entirely (a hard reset past it, not a soft one that keeps it reachable
// via another ref), so its Working Log can never be reconciled into a
// commit and Event.Invalidated tells the caller to discard it.
func (t *Tracker) HandleReset(baseStillReachable bool) Event {
	return Event{Kind: KindReset, Invalidated: !baseStillReachable}
}

// HandleCheckout signals a Working Log switch to newHead; the caller
// re-derives the active base SHA from this event.
func (t *Tracker) HandleCheckout(newHead string) Event {
	return Event{Kind: KindCheckout, NewSHA: newHead}
}

// ReadNote reads the AuthorshipNote for commitSHA from refs/notes/ai, if
// one exists. A missing note returns (nil, nil), not an error.
func ReadNote(gitDir, commitSHA string) (*note.AuthorshipNote, error) {
	return reconcile.ReadNote(gitDir, commitSHA)
}
