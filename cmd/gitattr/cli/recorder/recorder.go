// Package recorder is the Checkpoint Recorder: it consumes PreToolUse and
// PostToolUse events, diffs the affected files against their last known
// state, stamps regions with an agent identity, and appends the result to
// the Working Log via storage.Store.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
)

// Recorder turns raw tool-event content into Checkpoints and appends them
// through a storage.Store.
type Recorder struct {
	store  *storage.Store
	ignore *IgnoreMatcher
}

// New returns a Recorder writing through store. ignore may be nil, in which
// case nothing is excluded.
func New(store *storage.Store, ignore *IgnoreMatcher) *Recorder {
	return &Recorder{store: store, ignore: ignore}
}

// pendingPreState is the transient per-tool-call record written at
// PreToolUse time and consumed at PostToolUse time. It lives under
// <gitdir>/ai/state/pending/<tool_use_id>.json and is deleted once consumed;
// it is never part of the append-only checkpoint log itself.
type pendingPreState struct {
	Files map[string]pendingFile `json:"files"`
}

type pendingFile struct {
	Content string `json:"content"`
	Missing bool   `json:"missing"`
}

func (r *Recorder) pendingPath(toolUseID string) string {
	return filepath.Join(paths.StatePath(r.store.GitDir(), "pending"), toolUseID+".json")
}

// RecordPreToolUse snapshots the current content of each target path before
// a tool runs, keyed by toolUseID so the matching PostToolUse call can diff
// against it. A path whose content could not be read (deleted, permission
// denied) is recorded as Missing so rule 4 (treat all new content as
// AI-authored) applies at Post time.
func (r *Recorder) RecordPreToolUse(toolUseID string, contents map[string][]byte) error {
	state := pendingPreState{Files: map[string]pendingFile{}}
	for path, content := range contents {
		if content == nil {
			state.Files[path] = pendingFile{Missing: true}
			continue
		}
		state.Files[path] = pendingFile{Content: string(content)}
	}
	target := r.pendingPath(toolUseID)
	if err := paths.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling pending pre-state: %w", err)
	}
	return os.WriteFile(target, data, 0o644)
}

func (r *Recorder) loadPending(toolUseID string) (pendingPreState, bool) {
	target := r.pendingPath(toolUseID)
	data, err := os.ReadFile(target)
	if err != nil {
		return pendingPreState{}, false
	}
	var state pendingPreState
	if err := json.Unmarshal(data, &state); err != nil {
		return pendingPreState{}, false
	}
	return state, true
}

func (r *Recorder) clearPending(toolUseID string) {
	_ = os.Remove(r.pendingPath(toolUseID))
}

// PostToolUseInput is one PostToolUse event ready for recording.
type PostToolUseInput struct {
	ToolUseID string
	BaseSHA   string
	Agent     agentid.Identity
	PromptID  string
	WallClock int64
	// Contents maps every path the tool touched to its content after the
	// call. A nil value means the path was deleted.
	Contents map[string][]byte
}

// RecordPostToolUse diffs each path in in.Contents against the pre-snapshot
// captured by the matching RecordPreToolUse call (if any), builds a
// Checkpoint, and appends it through storage.Store. Checkpoints touching
// zero bytes are dropped per spec, as are exact-duplicate appends
// (write-amplification dedupe). Returns the checkpoint actually appended,
// or nil if nothing was written.
func (r *Recorder) RecordPostToolUse(in PostToolUseInput) (*checkpoint.Checkpoint, error) {
	pending, hadPending := r.loadPending(in.ToolUseID)
	defer r.clearPending(in.ToolUseID)

	entries := make([]checkpoint.WorkingLogEntry, 0, len(in.Contents))
	for path, postContent := range in.Contents {
		if r.ignore.Match(path) {
			continue
		}

		var preSnap *checkpoint.FileSnapshot
		lostPreState := true
		preContent := ""
		if hadPending {
			if pf, ok := pending.Files[path]; ok && !pf.Missing {
				preContent = pf.Content
				lostPreState = false
				snap := checkpoint.NewFileSnapshot(path, []byte(preContent))
				preSnap = &snap
			}
		}

		deleted := postContent == nil
		postBytes := postContent
		if deleted {
			postBytes = []byte{}
		}
		postSnap := checkpoint.NewFileSnapshot(path, postBytes)

		var regions []checkpoint.AttributionRange
		var ops []checkpoint.DiffOp
		if lostPreState {
			// Rule 4: whole content treated as AI-authored, prior range map lost.
			if len(postBytes) > 0 {
				regions = []checkpoint.AttributionRange{{StartByte: 0, EndByte: len(postBytes), AgentID: in.Agent}}
			}
		} else {
			regions, ops = diffByteRegions(preContent, string(postBytes), in.Agent)
		}

		if len(regions) == 0 && !lostPreState {
			// No bytes changed for this path; drop the per-file entry.
			continue
		}

		entries = append(entries, checkpoint.WorkingLogEntry{
			Path:              path,
			PreSnapshot:       preSnap,
			PostSnapshot:      postSnap,
			ByteDiffRegions:   regions,
			AttributedRegions: regions,
			DiffOps:           ops,
			PromptID:          in.PromptID,
			WallClock:         in.WallClock,
			LostPreState:      lostPreState,
		})
	}

	entries = coalesceEntriesByPathAndPrompt(entries)

	cp := checkpoint.Checkpoint{
		BaseCommitSHA: in.BaseSHA,
		WallClock:     in.WallClock,
		AgentID:       in.Agent,
		PromptID:      in.PromptID,
		Entries:       entries,
	}
	id, err := checkpoint.NewID()
	if err != nil {
		return nil, err
	}
	cp.CheckpointID = id

	if !cp.TouchesBytes() {
		return nil, nil
	}

	if dup, err := r.store.LastAppendedIdentical(in.BaseSHA, cp); err == nil && dup {
		return nil, nil
	}

	if err := r.store.AppendCheckpoint(in.BaseSHA, cp, false); err != nil {
		return nil, fmt.Errorf("appending checkpoint: %w", err)
	}
	return &cp, nil
}

// coalesceEntriesByPathAndPrompt merges entries that share (Path, PromptID)
// into one, unioning attributed_regions under last-writer-wins (rule 2),
// per spec's "multiple events for the same file within a single prompt_id."
func coalesceEntriesByPathAndPrompt(entries []checkpoint.WorkingLogEntry) []checkpoint.WorkingLogEntry {
	type key struct{ path, prompt string }
	order := []key{}
	byKey := map[key]*checkpoint.WorkingLogEntry{}
	for _, e := range entries {
		k := key{e.Path, e.PromptID}
		if existing, ok := byKey[k]; ok {
			existing.PostSnapshot = e.PostSnapshot
			existing.ByteDiffRegions = append(existing.ByteDiffRegions, e.ByteDiffRegions...)
			existing.AttributedRegions = checkpoint.CoalesceRanges(append(existing.AttributedRegions, e.AttributedRegions...))
			// DiffOps are sequential transforms (this entry's diff was taken
			// against the content the prior entry left behind), so later ops
			// simply extend the sequence rather than needing to be merged by
			// position like the region summaries above.
			existing.DiffOps = append(existing.DiffOps, e.DiffOps...)
			existing.WallClock = e.WallClock
			if e.LostPreState {
				existing.LostPreState = true
			}
			continue
		}
		ec := e
		order = append(order, k)
		byKey[k] = &ec
	}
	out := make([]checkpoint.WorkingLogEntry, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}
