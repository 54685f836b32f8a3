// Package checkpoint defines the data model that flows from a tool event
// through the working log to the authorship note: file snapshots, byte and
// line attribution ranges, working-log entries, and the checkpoint envelope
// itself.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
)

// FileSnapshot captures a file's content identity at a checkpoint boundary.
type FileSnapshot struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	BytesLen    int    `json:"bytes_len"`
	LineCount   int    `json:"line_count"`
}

// HashContent returns the content_hash used throughout the engine: the hex
// SHA-256 of the raw bytes. This is deliberately not git's blob hash (which
// requires the "blob <len>\0" header and isn't meaningful for content that
// was never staged) so a snapshot can be computed from worktree bytes alone.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NewFileSnapshot builds a FileSnapshot from raw content.
func NewFileSnapshot(path string, content []byte) FileSnapshot {
	return FileSnapshot{
		Path:        path,
		ContentHash: HashContent(content),
		BytesLen:    len(content),
		LineCount:   strings.Count(string(content), "\n"),
	}
}

// AttributionRange is a half-open, byte-aligned interval of a file
// attributed to a single identity. Within a file's range list these must be
// non-overlapping, sorted by StartByte, contain no zero-length range, and
// have no two adjacent ranges sharing the same AgentID.
type AttributionRange struct {
	StartByte int             `json:"start_byte"`
	EndByte   int             `json:"end_byte"`
	AgentID   agentid.Identity `json:"agent_id"`
}

// Len returns the byte length of the range.
func (r AttributionRange) Len() int { return r.EndByte - r.StartByte }

// LineAttributionRange is the line-level projection of AttributionRange.
// EndLine is inclusive, matching spec-level "line X through line Y" framing.
type LineAttributionRange struct {
	StartLine int             `json:"start_line"`
	EndLine   int             `json:"end_line"`
	AgentID   agentid.Identity `json:"agent_id"`
}

// CoalesceRanges merges adjacent ranges sharing the same agent identity and
// drops zero-length ranges. Input must already be sorted by StartByte; the
// result is sorted, non-overlapping, and has no adjacent same-agent pair.
func CoalesceRanges(ranges []AttributionRange) []AttributionRange {
	filtered := make([]AttributionRange, 0, len(ranges))
	for _, r := range ranges {
		if r.EndByte > r.StartByte {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].StartByte < filtered[j].StartByte })
	if len(filtered) == 0 {
		return filtered
	}
	out := []AttributionRange{filtered[0]}
	for _, r := range filtered[1:] {
		last := &out[len(out)-1]
		if last.EndByte == r.StartByte && last.AgentID.Equal(r.AgentID) {
			last.EndByte = r.EndByte
			continue
		}
		out = append(out, r)
	}
	return out
}

// ValidatePartition checks that ranges exactly partition [0, length): sorted,
// contiguous, no gaps, no overlaps, no empty ranges.
func ValidatePartition(ranges []AttributionRange, length int) error {
	if length == 0 {
		if len(ranges) != 0 {
			return fmt.Errorf("expected no ranges for empty file, got %d", len(ranges))
		}
		return nil
	}
	if len(ranges) == 0 {
		return fmt.Errorf("no ranges for file of length %d", length)
	}
	if ranges[0].StartByte != 0 {
		return fmt.Errorf("first range starts at %d, want 0", ranges[0].StartByte)
	}
	for i, r := range ranges {
		if r.EndByte <= r.StartByte {
			return fmt.Errorf("range %d is empty or inverted: [%d,%d)", i, r.StartByte, r.EndByte)
		}
		if i > 0 && ranges[i-1].EndByte != r.StartByte {
			return fmt.Errorf("gap or overlap between range %d [%d,%d) and range %d [%d,%d)",
				i-1, ranges[i-1].StartByte, ranges[i-1].EndByte, i, r.StartByte, r.EndByte)
		}
	}
	if last := ranges[len(ranges)-1]; last.EndByte != length {
		return fmt.Errorf("last range ends at %d, want %d", last.EndByte, length)
	}
	return nil
}

// LinesFromBytes projects a coalesced byte range list onto line boundaries.
// A line is attributed to whichever agent wrote the majority of its
// non-whitespace bytes; ties break toward human.
func LinesFromBytes(content []byte, ranges []AttributionRange) []LineAttributionRange {
	if len(content) == 0 {
		return nil
	}
	lineStarts := []int{0}
	for i, b := range content {
		if b == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	lineEnds := make([]int, len(lineStarts))
	for i := range lineStarts {
		if i+1 < len(lineStarts) {
			lineEnds[i] = lineStarts[i+1]
		} else {
			lineEnds[i] = len(content)
		}
	}

	lineOwners := make([]agentid.Identity, len(lineStarts))
	for li := range lineStarts {
		lineOwners[li] = majorityOwner(content, lineStarts[li], lineEnds[li], ranges)
	}

	var out []LineAttributionRange
	for li, owner := range lineOwners {
		lineNo := li + 1
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.EndLine == lineNo-1 && last.AgentID.Equal(owner) {
				last.EndLine = lineNo
				continue
			}
		}
		out = append(out, LineAttributionRange{StartLine: lineNo, EndLine: lineNo, AgentID: owner})
	}
	return out
}

func majorityOwner(content []byte, lineStart, lineEnd int, ranges []AttributionRange) agentid.Identity {
	counts := map[string]int{}
	byKey := map[string]agentid.Identity{}
	for _, r := range ranges {
		start := max(r.StartByte, lineStart)
		end := min(r.EndByte, lineEnd)
		if start >= end {
			continue
		}
		nonWS := 0
		for i := start; i < end; i++ {
			b := content[i]
			if b != ' ' && b != '\t' && b != '\r' && b != '\n' {
				nonWS++
			}
		}
		if nonWS == 0 {
			continue
		}
		key := r.AgentID.Key()
		counts[key] += nonWS
		byKey[key] = r.AgentID
	}
	if len(counts) == 0 {
		return agentid.Human
	}
	bestKey := ""
	bestCount := -1
	for key, c := range counts {
		if c > bestCount || (c == bestCount && key == agentid.Human.Key()) {
			bestCount = c
			bestKey = key
		}
	}
	return byKey[bestKey]
}

// DiffOpKind names one op in a DiffOp sequence.
type DiffOpKind string

const (
	DiffOpEqual  DiffOpKind = "equal"
	DiffOpInsert DiffOpKind = "insert"
	DiffOpDelete DiffOpKind = "delete"
)

// DiffOp is one op of a pre→post byte diff, kept in original sequence order.
// Unlike AttributedRegions (insert spans only, in final post-content
// coordinates), a DiffOp sequence lets a replayer walk pre- and post-content
// with a single cursor and collapse deletions structurally instead of only
// reconciling the net length at the end.
type DiffOp struct {
	Kind    DiffOpKind       `json:"kind"`
	Len     int              `json:"len"`
	AgentID agentid.Identity `json:"agent_id,omitempty"`
}

// WorkingLogEntry represents one file-level effect of one tool call.
type WorkingLogEntry struct {
	Path             string             `json:"path"`
	PreSnapshot      *FileSnapshot      `json:"pre_snapshot,omitempty"`
	PostSnapshot     FileSnapshot       `json:"post_snapshot"`
	ByteDiffRegions  []AttributionRange `json:"byte_diff_regions"`
	AttributedRegions []AttributionRange `json:"attributed_regions"`
	// DiffOps is the ordered equal/insert/delete sequence the diff producer
	// derived the AttributedRegions summary from. Optional: entries built
	// without a diff pass (e.g. rule-4 whole-file reattribution when the
	// pre-state was lost) carry AttributedRegions only, and replay falls
	// back to insertion-only structural application for those.
	DiffOps          []DiffOp           `json:"diff_ops,omitempty"`
	PromptID         string             `json:"prompt_id"`
	WallClock        int64              `json:"wall_clock"`
	// LostPreState is set when the pre-snapshot could not be read (file
	// deleted, permission denied); rule 4 of the attribution policy applies.
	LostPreState bool `json:"lost_pre_state,omitempty"`
}

// Checkpoint is one immutable record of a tool event's effect on one or more
// files, stored one-per-line in a working log's checkpoints.jsonl.
type Checkpoint struct {
	CheckpointID  ID                `json:"checkpoint_id"`
	BaseCommitSHA string            `json:"base_commit_sha"`
	WallClock     int64             `json:"wall_clock"`
	AgentID       agentid.Identity  `json:"agent_id"`
	PromptID      string            `json:"prompt_id"`
	Entries       []WorkingLogEntry `json:"entries"`
	// Transcript is optional per-tool raw conversation text. It is skipped
	// at the parser level by streaming readers that don't request it, since
	// attribution computation never needs it.
	Transcript string `json:"transcript,omitempty"`
}

// TouchesBytes reports whether any entry has a non-empty diff, per the rule
// that checkpoints touching zero bytes are dropped by the recorder before
// they ever reach storage.
func (c Checkpoint) TouchesBytes() bool {
	for _, e := range c.Entries {
		if len(e.ByteDiffRegions) > 0 {
			return true
		}
	}
	return false
}
