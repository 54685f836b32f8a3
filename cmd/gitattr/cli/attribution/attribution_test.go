package attribution

import (
	"testing"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/worklog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTree map[string][]byte

func (f fakeTree) Content(path string) ([]byte, bool, error) {
	c, ok := f[path]
	return c, ok, nil
}

var claude = agentid.Identity{Tool: "claude_code", SessionID: "s1", PromptID: "p1"}

func loadLog(t *testing.T, base string, initial []checkpoint.FileSnapshot, cps []checkpoint.Checkpoint) *worklog.WorkingLog {
	t.Helper()
	s := storage.New(t.TempDir())
	require.NoError(t, s.WriteInitial(base, initial))
	for _, cp := range cps {
		require.NoError(t, s.AppendCheckpoint(base, cp, false))
	}
	wl, err := worklog.Load(s, base, false)
	require.NoError(t, err)
	return wl
}

func TestReplayPureAICommit(t *testing.T) {
	const base = "base1"
	wl := loadLog(t, base,
		[]checkpoint.FileSnapshot{checkpoint.NewFileSnapshot("new.rs", []byte(""))},
		[]checkpoint.Checkpoint{{
			CheckpointID:  "aaaaaaaaaaaa",
			BaseCommitSHA: base,
			AgentID:       claude,
			PromptID:      "p1",
			Entries: []checkpoint.WorkingLogEntry{{
				Path:              "new.rs",
				PostSnapshot:      checkpoint.NewFileSnapshot("new.rs", []byte("fn main() {}")),
				AttributedRegions: []checkpoint.AttributionRange{{StartByte: 0, EndByte: 12, AgentID: claude}},
				LostPreState:      true,
			}},
		}},
	)

	tree := fakeTree{"new.rs": []byte("fn main() {}")}
	results, err := Replay(wl, tree, []string{"new.rs"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Byte, 1)
	assert.True(t, results[0].Byte[0].AgentID.Equal(claude))
	assert.Equal(t, 0, results[0].Byte[0].StartByte)
	assert.Equal(t, 12, results[0].Byte[0].EndByte)
}

func TestReplayMixedHumanAndAI(t *testing.T) {
	const base = "base1"
	initialContent := []byte("human line\n")
	wl := loadLog(t, base,
		[]checkpoint.FileSnapshot{checkpoint.NewFileSnapshot("f.rs", initialContent)},
		[]checkpoint.Checkpoint{{
			CheckpointID:  "aaaaaaaaaaaa",
			BaseCommitSHA: base,
			AgentID:       claude,
			PromptID:      "p1",
			Entries: []checkpoint.WorkingLogEntry{{
				Path: "f.rs",
				PreSnapshot: func() *checkpoint.FileSnapshot {
					s := checkpoint.NewFileSnapshot("f.rs", initialContent)
					return &s
				}(),
				PostSnapshot:      checkpoint.NewFileSnapshot("f.rs", []byte("human line\nai line\n")),
				AttributedRegions: []checkpoint.AttributionRange{{StartByte: 11, EndByte: 19, AgentID: claude}},
			}},
		}},
	)

	final := []byte("human line\nai line\n")
	results, err := Replay(wl, fakeTree{"f.rs": final}, []string{"f.rs"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, checkpoint.ValidatePartition(results[0].Byte, len(final)))
	require.Len(t, results[0].Byte, 2)
	assert.True(t, results[0].Byte[0].AgentID.IsHuman())
	assert.True(t, results[0].Byte[1].AgentID.Equal(claude))
}

func TestReplayDeleteOnlyCommitYieldsNoResult(t *testing.T) {
	const base = "base1"
	wl := loadLog(t, base,
		[]checkpoint.FileSnapshot{checkpoint.NewFileSnapshot("gone.rs", []byte("old content"))},
		nil,
	)

	results, err := Replay(wl, fakeTree{}, []string{"gone.rs"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Byte)
	assert.Nil(t, results[0].Content)
}

// TestReplayCollapsesDeletedAIRangeAcrossCheckpoints exercises DiffOps-based
// structural replay across two checkpoints: the first replaces a human span
// with an AI one (a delete+insert pair), the second is a pure human delete
// that removes exactly the AI span the first checkpoint introduced. An
// insertion-only replay (ignoring DiffOps) never removes the AI range from
// its internal range map — only the trailing length reconciliation trims
// it, and only when it happens to sit at the very end — so a delete that
// lands earlier than the tracked length leaves the AI range attributed to
// content it no longer touches. Structural delete collapse gets this right
// regardless of where the delete falls.
func TestReplayCollapsesDeletedAIRangeAcrossCheckpoints(t *testing.T) {
	const base = "base1"
	const path = "f.rs"
	initial := []byte("AAAABBBBCCCC")

	cp1 := checkpoint.Checkpoint{
		CheckpointID:  "aaaaaaaaaaaa",
		BaseCommitSHA: base,
		AgentID:       claude,
		PromptID:      "p1",
		Entries: []checkpoint.WorkingLogEntry{{
			Path: path,
			PreSnapshot: func() *checkpoint.FileSnapshot {
				s := checkpoint.NewFileSnapshot(path, initial)
				return &s
			}(),
			PostSnapshot: checkpoint.NewFileSnapshot(path, []byte("AAAAXXCCCC")),
			DiffOps: []checkpoint.DiffOp{
				{Kind: checkpoint.DiffOpEqual, Len: 4},
				{Kind: checkpoint.DiffOpDelete, Len: 4},
				{Kind: checkpoint.DiffOpInsert, Len: 2, AgentID: claude},
				{Kind: checkpoint.DiffOpEqual, Len: 4},
			},
			AttributedRegions: []checkpoint.AttributionRange{{StartByte: 4, EndByte: 6, AgentID: claude}},
			PromptID:          "p1",
		}},
	}
	cp2 := checkpoint.Checkpoint{
		CheckpointID:  "bbbbbbbbbbbb",
		BaseCommitSHA: base,
		AgentID:       agentid.Human,
		PromptID:      "p2",
		Entries: []checkpoint.WorkingLogEntry{{
			Path: path,
			PreSnapshot: func() *checkpoint.FileSnapshot {
				s := checkpoint.NewFileSnapshot(path, []byte("AAAAXXCCCC"))
				return &s
			}(),
			PostSnapshot: checkpoint.NewFileSnapshot(path, []byte("AAAACCCC")),
			DiffOps: []checkpoint.DiffOp{
				{Kind: checkpoint.DiffOpEqual, Len: 4},
				{Kind: checkpoint.DiffOpDelete, Len: 2},
				{Kind: checkpoint.DiffOpEqual, Len: 4},
			},
			PromptID: "p2",
		}},
	}

	wl := loadLog(t, base, []checkpoint.FileSnapshot{checkpoint.NewFileSnapshot(path, initial)}, []checkpoint.Checkpoint{cp1, cp2})

	final := []byte("AAAACCCC")
	results, err := Replay(wl, fakeTree{path: final}, []string{path})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, checkpoint.ValidatePartition(results[0].Byte, len(final)))
	require.Len(t, results[0].Byte, 1)
	assert.True(t, results[0].Byte[0].AgentID.IsHuman())
	assert.Equal(t, 0, results[0].Byte[0].StartByte)
	assert.Equal(t, len(final), results[0].Byte[0].EndByte)
}

func TestReplayLateHumanEditReconciledToTargetLength(t *testing.T) {
	const base = "base1"
	wl := loadLog(t, base,
		[]checkpoint.FileSnapshot{checkpoint.NewFileSnapshot("f.rs", []byte(""))},
		[]checkpoint.Checkpoint{{
			CheckpointID:  "aaaaaaaaaaaa",
			BaseCommitSHA: base,
			AgentID:       claude,
			PromptID:      "p1",
			Entries: []checkpoint.WorkingLogEntry{{
				Path:              "f.rs",
				PostSnapshot:      checkpoint.NewFileSnapshot("f.rs", []byte("ai wrote this")),
				AttributedRegions: []checkpoint.AttributionRange{{StartByte: 0, EndByte: 13, AgentID: claude}},
				LostPreState:      true,
			}},
		}},
	)

	// Target has extra bytes appended after the last checkpoint, outside any tool.
	final := []byte("ai wrote this + human appended")
	results, err := Replay(wl, fakeTree{"f.rs": final}, []string{"f.rs"})
	require.NoError(t, err)
	require.NoError(t, checkpoint.ValidatePartition(results[0].Byte, len(final)))
	last := results[0].Byte[len(results[0].Byte)-1]
	assert.True(t, last.AgentID.IsHuman())
	assert.Equal(t, len(final), last.EndByte)
}
