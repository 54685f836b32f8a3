// Package reconcile is the Reconciler / Note Writer: at post-commit time it
// converts a Working Log into an immutable AuthorshipNote and attaches it to
// the new commit SHA under refs/notes/ai, using compare-and-swap semantics
// so concurrent writers converge instead of clobbering each other.
package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/attribution"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/errs"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/redact"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/worklog"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// MaxCASRetries bounds the compare-and-swap retry loop on refs/notes/ai.
const MaxCASRetries = 3

// TranscriptPolicy decides, per agent, whether a prompt's transcript is
// embedded inline (redacted) or replaced with a hash+length pointer. The
// decision (spec §9 open question) is: agents this engine cannot later
// refetch from get inline embedding; anything with a refetch path gets a
// pointer. The agent-v1 preset has no refetch mechanism, so it defaults to
// inline.
type TranscriptPolicy interface {
	CanRefetch(agent agentid.Identity) bool
}

// DefaultPolicy always reports false (no refetch path), matching the
// decision recorded for the agent-v1 preset, the only preset in scope here.
type DefaultPolicy struct{}

func (DefaultPolicy) CanRefetch(agentid.Identity) bool { return false }

// Reconciler wires storage, virtual attribution and note writing together.
type Reconciler struct {
	store  *storage.Store
	policy TranscriptPolicy
}

// New returns a Reconciler backed by store. policy may be nil, in which
// case DefaultPolicy is used.
func New(store *storage.Store, policy TranscriptPolicy) *Reconciler {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Reconciler{store: store, policy: policy}
}

// CommitInfo is the input the post-commit hook gathers about the new commit.
type CommitInfo struct {
	CommitSHA      string
	ParentSHAs     []string
	Author         string
	ModifiedPaths  []string
	DeletedPaths   []string
}

// Reconcile builds and writes the AuthorshipNote for info, per spec §4.5.
// It never returns an error that should block the commit: callers log and
// continue on any non-nil error, consistent with the advisory policy.
func (rc *Reconciler) Reconcile(info CommitInfo, target attribution.TargetTree, gitDir string) (*note.AuthorshipNote, error) {
	baseSHA := ""
	if len(info.ParentSHAs) > 0 {
		baseSHA = info.ParentSHAs[0]
	}

	n := note.New(info.CommitSHA, info.Author, info.ParentSHAs)

	if baseSHA == "" || !rc.store.HasWorkingLog(baseSHA) {
		// No working log for the base: everything is human, per spec step 1.
		for _, p := range info.ModifiedPaths {
			content, exists, err := target.Content(p)
			if err != nil || !exists {
				continue
			}
			n.Files[p] = HumanOnlyAttribution(content)
		}
		markDeleted(n, info.DeletedPaths)
		return n, rc.finish(n, baseSHA, gitDir)
	}

	wl, err := worklog.Load(rc.store, baseSHA, true)
	if err != nil {
		return nil, err
	}

	if err := rc.fillFromReplay(n, wl, target, info); err != nil {
		return nil, err
	}
	if err := rc.finish(n, baseSHA, gitDir); err != nil {
		return nil, err
	}
	return n, nil
}

// ReconcileAmend re-derives the AuthorshipNote for an amended commit by
// replaying the working log archived for oldSHA against info's (amended)
// tree, rather than moving oldSHA's note verbatim: content the amend left
// untouched keeps its checkpoint-derived attribution, and any bytes the
// amend introduced fall out of Replay's step-3 residual-length
// reconciliation as human, since no checkpoint covers them. Grounded on
// original_source's rewrite_authorship_after_commit_amend, which likewise
// re-applies the working log instead of carrying the old note forward.
// Returns (nil, nil) if oldSHA was never archived (nothing to replay).
func (rc *Reconciler) ReconcileAmend(info CommitInfo, target attribution.TargetTree, gitDir, oldSHA string) (*note.AuthorshipNote, error) {
	wl, err := worklog.LoadArchived(rc.store, oldSHA, true)
	if err != nil {
		if errors.Is(err, errs.ErrArchiveNotFound) {
			return nil, nil
		}
		return nil, err
	}

	n := note.New(info.CommitSHA, info.Author, info.ParentSHAs)
	if err := rc.fillFromReplay(n, wl, target, info); err != nil {
		return nil, err
	}
	n.Provenance.RewriteChain = append(n.Provenance.RewriteChain, oldSHA)
	if err := WriteNote(gitDir, n); err != nil {
		return nil, err
	}
	_ = rc.store.ReArchive(oldSHA, info.CommitSHA)
	return n, nil
}

// fillFromReplay runs Virtual Attribution over info.ModifiedPaths using wl
// and target, and populates n.Files, n.Prompts and n.Provenance from the
// result. Shared by Reconcile's live-working-log path and ReconcileAmend's
// archived-working-log path.
func (rc *Reconciler) fillFromReplay(n *note.AuthorshipNote, wl *worklog.WorkingLog, target attribution.TargetTree, info CommitInfo) error {
	results, err := attribution.Replay(wl, target, info.ModifiedPaths)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Content == nil {
			continue
		}
		n.Files[r.Path] = note.FileAttribution{
			LineAttributions: r.Line,
			ByteAttributions: r.Byte,
			ContentHash:      checkpoint.HashContent(r.Content),
		}
	}
	markDeleted(n, info.DeletedPaths)

	rc.collectPrompts(n, wl)
	n.PrunePrompts()
	n.Provenance.SourceCommits = []string{info.CommitSHA}
	return nil
}

func (rc *Reconciler) finish(n *note.AuthorshipNote, baseSHA, gitDir string) error {
	if err := WriteNote(gitDir, n); err != nil {
		return err
	}
	if baseSHA != "" {
		_ = rc.store.Archive(baseSHA, n.CommitSHA)
	}
	return nil
}

// HumanOnlyAttribution builds a FileAttribution covering all of content as a
// single human range, used both for commits with no working log and for
// carrying a rebased file's attribution forward when its content changed
// under conflict resolution and no checkpoint covers the new bytes.
func HumanOnlyAttribution(content []byte) note.FileAttribution {
	if len(content) == 0 {
		return note.FileAttribution{NoAdditions: true, ContentHash: checkpoint.HashContent(content)}
	}
	byteRange := checkpoint.AttributionRange{StartByte: 0, EndByte: len(content), AgentID: agentid.Human}
	return note.FileAttribution{
		ByteAttributions: []checkpoint.AttributionRange{byteRange},
		LineAttributions: checkpoint.LinesFromBytes(content, []checkpoint.AttributionRange{byteRange}),
		ContentHash:      checkpoint.HashContent(content),
	}
}

func markDeleted(n *note.AuthorshipNote, deleted []string) {
	for _, p := range deleted {
		n.Files[p] = note.FileAttribution{NoAdditions: true}
	}
}

// collectPrompts populates n.Prompts from wl's checkpoints, applying the
// transcript embedding policy and redacting secrets from anything embedded.
func (rc *Reconciler) collectPrompts(n *note.AuthorshipNote, wl *worklog.WorkingLog) {
	for _, cp := range wl.Checkpoints() {
		if cp.PromptID == "" {
			continue
		}
		rec, exists := n.Prompts[cp.PromptID]
		if !exists {
			rec = agentid.PromptRecord{
				AgentID:     cp.AgentID,
				FirstSeenTS: cp.WallClock,
			}
		}
		if cp.Transcript != "" {
			if rc.policy.CanRefetch(cp.AgentID) {
				rec.TranscriptHash = checkpoint.HashContent([]byte(cp.Transcript))
				rec.TranscriptLen = len(cp.Transcript)
			} else {
				rec.Transcript = redact.String(cp.Transcript)
			}
		}
		n.Prompts[cp.PromptID] = rec
	}
}

// WriteNote serializes n and writes it under refs/notes/ai for n.CommitSHA,
// using compare-and-swap: fetch the current ref OID, build a new notes tree
// on top of it, and update the ref with the old OID as the expected value.
// On collision it re-reads and retries up to MaxCASRetries times.
func WriteNote(gitDir string, n *note.AuthorshipNote) error {
	fs := osfs.New(gitDir)
	sto := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())

	payload, err := note.Marshal(n)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		oldRef, oldTree, err := currentNotesState(sto)
		if err != nil {
			return err
		}

		blobHash, err := writeBlob(sto, payload)
		if err != nil {
			return err
		}

		newTree, err := buildNotesTree(sto, oldTree, n.CommitSHA, blobHash)
		if err != nil {
			return err
		}

		commit := &object.Commit{
			Author:       object.Signature{Name: "gitattr", When: time.Now()},
			Committer:    object.Signature{Name: "gitattr", When: time.Now()},
			Message:      fmt.Sprintf("Notes for %s", n.CommitSHA),
			TreeHash:     newTree,
		}
		if oldRef != nil && oldRef.Hash() != plumbing.ZeroHash {
			commit.ParentHashes = []plumbing.Hash{oldRef.Hash()}
		}
		commitHash, err := writeCommit(sto, commit)
		if err != nil {
			return err
		}

		newRef := plumbing.NewHashReference(plumbing.ReferenceName(paths.NotesRef), commitHash)
		var expectedOld *plumbing.Reference
		if oldRef != nil {
			expectedOld = oldRef
		} else {
			expectedOld = plumbing.NewHashReference(plumbing.ReferenceName(paths.NotesRef), plumbing.ZeroHash)
		}

		if err := sto.CheckAndSetReference(newRef, expectedOld); err != nil {
			continue // CAS conflict: retry
		}
		return nil
	}
	return errs.ErrNoteCASConflict
}
