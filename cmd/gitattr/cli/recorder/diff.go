package recorder

import (
	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffByteRegions computes, in post-content byte coordinates, the ranges
// that are new relative to pre, attributed to agent. This generalizes the
// teacher's line-mode diffLines to byte granularity, since AttributionRange
// is byte-addressed rather than line-addressed.
//
// Every DIFF_INSERT segment becomes an attributed region (rule 1: inserted
// bytes belong to the current agent). A DIFF_DELETE immediately followed by
// a DIFF_INSERT is a replace; the inserted half still wins under the same
// rule (rule 2: the agent performing a modification wins), so no special
// casing is needed beyond walking insertions.
//
// It also returns the same diff as an ordered checkpoint.DiffOp sequence,
// which lets virtual attribution collapse deletions structurally (spec rule
// 3) instead of only reconciling the net length change at commit time.
func diffByteRegions(pre, post string, agent agentid.Identity) ([]checkpoint.AttributionRange, []checkpoint.DiffOp) {
	if pre == post {
		return nil, nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(pre, post, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var regions []checkpoint.AttributionRange
	var ops []checkpoint.DiffOp
	postPos := 0
	for _, d := range diffs {
		n := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			postPos += n
			ops = append(ops, checkpoint.DiffOp{Kind: checkpoint.DiffOpEqual, Len: n})
		case diffmatchpatch.DiffInsert:
			regions = append(regions, checkpoint.AttributionRange{
				StartByte: postPos,
				EndByte:   postPos + n,
				AgentID:   agent,
			})
			postPos += n
			ops = append(ops, checkpoint.DiffOp{Kind: checkpoint.DiffOpInsert, Len: n, AgentID: agent})
		case diffmatchpatch.DiffDelete:
			// Deletions don't advance postPos; they aren't an attribution,
			// but they collapse existing ranges when replayed structurally.
			ops = append(ops, checkpoint.DiffOp{Kind: checkpoint.DiffOpDelete, Len: n})
		}
	}
	return checkpoint.CoalesceRanges(regions), ops
}
