// Package worklog is the Working Log: an in-memory, immutable-within-a-read
// view over the unreconciled checkpoints for one base commit. It is rebuilt
// from storage.Store on demand and never held across processes.
package worklog

import (
	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
)

// WorkingLog is the ordered stream of checkpoints belonging to one base
// commit session, plus the initial-attribution snapshot taken at session
// start. Cloning a WorkingLog across concurrent tasks shares the underlying
// slices (copy-on-write); Clone never deep-copies.
type WorkingLog struct {
	BaseCommitSHA      string
	checkpoints        []checkpoint.Checkpoint
	initialAttribution []checkpoint.FileSnapshot
}

// Load builds a WorkingLog by streaming storage.Store for baseSHA. It
// returns errs.ErrMissingBaseLog (unwrapped from storage) if none exists.
func Load(store *storage.Store, baseSHA string, includeTranscripts bool) (*WorkingLog, error) {
	wl := &WorkingLog{BaseCommitSHA: baseSHA}

	err := store.ReadCheckpoints(baseSHA, storage.ReadOptions{IncludeTranscripts: includeTranscripts}, func(cp checkpoint.Checkpoint) error {
		wl.checkpoints = append(wl.checkpoints, cp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = store.ReadInitial(baseSHA, func(snap checkpoint.FileSnapshot) error {
		wl.initialAttribution = append(wl.initialAttribution, snap)
		return nil
	})

	return wl, nil
}

// LoadArchived builds a WorkingLog from an archived working log (one
// storage.Store.Archive already moved out of working_logs/), keyed by the
// commit SHA it was archived under rather than a base SHA. This is how a
// rewrite handler re-derives attribution against an amended or rebased
// tree instead of carrying a note forward verbatim: it replays the same
// checkpoints the original commit was reconciled from, against the new
// content. Returns errs.ErrArchiveNotFound if nothing was ever archived
// under commitSHA.
func LoadArchived(store *storage.Store, commitSHA string, includeTranscripts bool) (*WorkingLog, error) {
	wl := &WorkingLog{BaseCommitSHA: commitSHA}

	err := store.ReadArchived(commitSHA, func(cp checkpoint.Checkpoint) error {
		if !includeTranscripts {
			cp.Transcript = ""
		}
		wl.checkpoints = append(wl.checkpoints, cp)
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = store.ReadArchivedInitial(commitSHA, func(snap checkpoint.FileSnapshot) error {
		wl.initialAttribution = append(wl.initialAttribution, snap)
		return nil
	})

	return wl, nil
}

// Clone returns a shallow copy sharing the underlying checkpoint and
// initial-attribution slices. Safe to hand to concurrent per-file tasks
// since neither slice is ever mutated in place after Load.
func (wl *WorkingLog) Clone() *WorkingLog {
	return &WorkingLog{
		BaseCommitSHA:      wl.BaseCommitSHA,
		checkpoints:        wl.checkpoints,
		initialAttribution: wl.initialAttribution,
	}
}

// Checkpoints returns the full ordered checkpoint list. Callers must treat
// it as read-only.
func (wl *WorkingLog) Checkpoints() []checkpoint.Checkpoint {
	return wl.checkpoints
}

// EntriesFor returns every WorkingLogEntry touching path, across all
// checkpoints, in checkpoint (append) order.
func (wl *WorkingLog) EntriesFor(path string) []checkpoint.WorkingLogEntry {
	var out []checkpoint.WorkingLogEntry
	for _, cp := range wl.checkpoints {
		for _, e := range cp.Entries {
			if e.Path == path {
				out = append(out, e)
			}
		}
	}
	return out
}

// TouchedPaths returns the set of every path touched by any entry, in first-
// seen order.
func (wl *WorkingLog) TouchedPaths() []string {
	seen := map[string]bool{}
	var out []string
	for _, cp := range wl.checkpoints {
		for _, e := range cp.Entries {
			if !seen[e.Path] {
				seen[e.Path] = true
				out = append(out, e.Path)
			}
		}
	}
	return out
}

// LatestSnapshot returns the content_hash of the last post_snapshot recorded
// for path, and whether any entry touched it at all.
func (wl *WorkingLog) LatestSnapshot(path string) (checkpoint.FileSnapshot, bool) {
	entries := wl.EntriesFor(path)
	if len(entries) == 0 {
		return checkpoint.FileSnapshot{}, false
	}
	return entries[len(entries)-1].PostSnapshot, true
}

// InitialSnapshot returns the recorded initial snapshot for path, if any.
func (wl *WorkingLog) InitialSnapshot(path string) (checkpoint.FileSnapshot, bool) {
	for _, snap := range wl.initialAttribution {
		if snap.Path == path {
			return snap, true
		}
	}
	return checkpoint.FileSnapshot{}, false
}

// AgentActiveAt looks up the agent identity that owns promptID, by scanning
// checkpoints for the first one carrying that prompt.
func (wl *WorkingLog) AgentActiveAt(promptID string) (agentid.Identity, bool) {
	for _, cp := range wl.checkpoints {
		if cp.PromptID == promptID {
			return cp.AgentID, true
		}
	}
	return agentid.Identity{}, false
}

// IsEmpty reports whether the log has no checkpoints at all.
func (wl *WorkingLog) IsEmpty() bool {
	return len(wl.checkpoints) == 0
}
