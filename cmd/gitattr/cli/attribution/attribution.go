// Package attribution is Virtual Attribution: given a Working Log and a
// target tree, it produces a coverage-complete, non-overlapping byte
// AttributionRange list per path by replaying checkpoints against the
// accumulated range map and reconciling any drift against the target tree.
package attribution

import (
	"runtime"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/worklog"
	"golang.org/x/sync/errgroup"
)

// TargetTree is the minimal read surface Virtual Attribution needs from a
// worktree, index, or commit tree: the content of a path, if it exists.
type TargetTree interface {
	// Content returns the current bytes at path, and whether the path
	// exists in the tree at all.
	Content(path string) ([]byte, bool, error)
}

// FileResult is the outcome of replaying one path.
type FileResult struct {
	Path      string
	Content   []byte
	Byte      []checkpoint.AttributionRange
	Line      []checkpoint.LineAttributionRange
}

// Replay computes attribution for every path named in paths, using wl's
// checkpoints and target's content as ground truth. Per-file replay runs
// under an errgroup bounded to NumCPU, per the concurrency model; wl's
// checkpoint slice is shared by reference across goroutines and never
// cloned deeply.
func Replay(wl *worklog.WorkingLog, target TargetTree, paths []string) ([]FileResult, error) {
	results := make([]FileResult, len(paths))

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			r, err := replayOne(wl, target, path)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// replayOne implements the four-step algorithm from spec §4.4 for a single
// path.
func replayOne(wl *worklog.WorkingLog, target TargetTree, path string) (FileResult, error) {
	// Step 1: start from the initial snapshot (everything human at base).
	initSnap, hasInit := wl.InitialSnapshot(path)
	var ranges []checkpoint.AttributionRange
	if hasInit && initSnap.BytesLen > 0 {
		ranges = []checkpoint.AttributionRange{{StartByte: 0, EndByte: initSnap.BytesLen, AgentID: agentid.Human}}
	}
	trackedHash := initSnap.ContentHash

	// Step 2: replay WorkingLogEntries for path in checkpoint order.
	for _, entry := range wl.EntriesFor(path) {
		if entry.PreSnapshot != nil && trackedHash != "" && entry.PreSnapshot.ContentHash != trackedHash {
			// Hash mismatch: the file was edited outside any tool between
			// the last checkpoint and this one. The exact edit shape is
			// unrecoverable from a hash alone, so the delta between the
			// tracked length and the entry's declared pre-length is
			// synthesized as a single human reconciliation range.
			ranges = reconcileHuman(ranges, rangesLen(ranges), entry.PreSnapshot.BytesLen)
		}
		ranges = applyStructuralEdit(ranges, entry)
		trackedHash = entry.PostSnapshot.ContentHash
	}

	// Step 3: diff accumulated state against the target tree; any residual
	// delta is late human edit.
	targetContent, exists, err := target.Content(path)
	if err != nil {
		return FileResult{}, err
	}
	if !exists {
		return FileResult{Path: path}, nil
	}

	totalTracked := rangesLen(ranges)
	if totalTracked != len(targetContent) {
		ranges = reconcileToLength(ranges, totalTracked, len(targetContent))
	}

	// Step 4: coalesce, derive line ranges.
	ranges = checkpoint.CoalesceRanges(ranges)
	if err := checkpoint.ValidatePartition(ranges, len(targetContent)); err != nil {
		// Advisory engine: never fail the caller. Fall back to a single
		// all-human range covering the whole file rather than emit an
		// inconsistent partition.
		ranges = fallbackAllHuman(len(targetContent))
	}
	lines := checkpoint.LinesFromBytes(targetContent, ranges)

	return FileResult{Path: path, Content: targetContent, Byte: ranges, Line: lines}, nil
}

func fallbackAllHuman(length int) []checkpoint.AttributionRange {
	if length == 0 {
		return nil
	}
	return []checkpoint.AttributionRange{{StartByte: 0, EndByte: length, AgentID: agentid.Human}}
}

func rangesLen(ranges []checkpoint.AttributionRange) int {
	total := 0
	for _, r := range ranges {
		if r.EndByte > total {
			total = r.EndByte
		}
	}
	return total
}

// applyStructuralEdit applies one entry's diff to the accumulated range
// map. When the entry carries a DiffOps sequence (equal/insert/delete in
// original order), it's walked with a single cursor so deletions collapse
// existing ranges structurally instead of only being caught by the
// trailing length reconciliation (spec §4.4 step 2). Entries with no
// DiffOps (built without a diff pass, e.g. rule-4 whole-file
// reattribution) fall back to applying AttributedRegions as pure
// insertions, same as before.
func applyStructuralEdit(ranges []checkpoint.AttributionRange, entry checkpoint.WorkingLogEntry) []checkpoint.AttributionRange {
	if len(entry.DiffOps) > 0 {
		return applyDiffOps(ranges, entry.DiffOps)
	}
	for _, region := range entry.AttributedRegions {
		ranges = insertRange(ranges, region)
	}
	return ranges
}

// applyDiffOps walks ops in sequence with a cursor into ranges: an "equal"
// op advances the cursor, a "delete" op collapses that span out of ranges
// and shifts everything after it left, and an "insert" op splices a new
// range in at the cursor via insertRange.
func applyDiffOps(ranges []checkpoint.AttributionRange, ops []checkpoint.DiffOp) []checkpoint.AttributionRange {
	cursor := 0
	for _, op := range ops {
		switch op.Kind {
		case checkpoint.DiffOpEqual:
			cursor += op.Len
		case checkpoint.DiffOpDelete:
			ranges = deleteSpan(ranges, cursor, cursor+op.Len)
		case checkpoint.DiffOpInsert:
			ranges = insertRange(ranges, checkpoint.AttributionRange{
				StartByte: cursor,
				EndByte:   cursor + op.Len,
				AgentID:   op.AgentID,
			})
			cursor += op.Len
		}
	}
	return ranges
}

// deleteSpan removes [start,end) from ranges, truncating any range that
// only partially overlaps it, and shifts everything after end left by
// (end-start) to close the gap.
func deleteSpan(ranges []checkpoint.AttributionRange, start, end int) []checkpoint.AttributionRange {
	shift := end - start
	if shift <= 0 {
		return ranges
	}
	var out []checkpoint.AttributionRange
	for _, r := range ranges {
		switch {
		case r.EndByte <= start:
			out = append(out, r)
		case r.StartByte >= end:
			out = append(out, checkpoint.AttributionRange{StartByte: r.StartByte - shift, EndByte: r.EndByte - shift, AgentID: r.AgentID})
		default:
			if r.StartByte < start {
				out = append(out, checkpoint.AttributionRange{StartByte: r.StartByte, EndByte: start, AgentID: r.AgentID})
			}
			if r.EndByte > end {
				out = append(out, checkpoint.AttributionRange{StartByte: start, EndByte: r.EndByte - shift, AgentID: r.AgentID})
			}
		}
	}
	return checkpoint.CoalesceRanges(out)
}

// insertRange splices region into ranges: any existing range content at or
// after region.StartByte is shifted right by region.Len(), then region is
// inserted at its position. This models "insertions push later bytes
// right" from spec §4.4 step 2.
func insertRange(ranges []checkpoint.AttributionRange, region checkpoint.AttributionRange) []checkpoint.AttributionRange {
	shift := region.Len()
	var out []checkpoint.AttributionRange
	inserted := false
	for _, r := range ranges {
		switch {
		case r.EndByte <= region.StartByte:
			out = append(out, r)
		case r.StartByte >= region.StartByte:
			if !inserted {
				out = append(out, region)
				inserted = true
			}
			out = append(out, checkpoint.AttributionRange{
				StartByte: r.StartByte + shift,
				EndByte:   r.EndByte + shift,
				AgentID:   r.AgentID,
			})
		default:
			// region falls inside r: split r.
			out = append(out, checkpoint.AttributionRange{StartByte: r.StartByte, EndByte: region.StartByte, AgentID: r.AgentID})
			if !inserted {
				out = append(out, region)
				inserted = true
			}
			out = append(out, checkpoint.AttributionRange{
				StartByte: region.StartByte + shift,
				EndByte:   r.EndByte + shift,
				AgentID:   r.AgentID,
			})
		}
	}
	if !inserted {
		out = append(out, region)
	}
	return checkpoint.CoalesceRanges(out)
}

// reconcileHuman attributes the growth between oldLen and newLen to human,
// used when a hash mismatch is detected between checkpoints.
func reconcileHuman(ranges []checkpoint.AttributionRange, oldLen, newLen int) []checkpoint.AttributionRange {
	if newLen <= oldLen {
		return ranges
	}
	return append(ranges, checkpoint.AttributionRange{StartByte: oldLen, EndByte: newLen, AgentID: agentid.Human})
}

// reconcileToLength attributes any residual growth between the replay's
// tracked length and the target tree's actual length to human (late edits
// between the last checkpoint and commit), or truncates ranges that now
// overrun a shorter target (late human deletions).
func reconcileToLength(ranges []checkpoint.AttributionRange, trackedLen, targetLen int) []checkpoint.AttributionRange {
	if targetLen > trackedLen {
		return append(ranges, checkpoint.AttributionRange{StartByte: trackedLen, EndByte: targetLen, AgentID: agentid.Human})
	}
	// targetLen < trackedLen: truncate ranges to fit, dropping/clamping any
	// range that extends past the new end.
	var out []checkpoint.AttributionRange
	for _, r := range ranges {
		if r.StartByte >= targetLen {
			continue
		}
		if r.EndByte > targetLen {
			r.EndByte = targetLen
		}
		out = append(out, r)
	}
	return out
}
