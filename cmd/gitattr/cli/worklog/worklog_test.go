package worklog

import (
	"testing"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/errs"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	s := storage.New(t.TempDir())
	const base = "abc123"
	require.NoError(t, s.WriteInitial(base, []checkpoint.FileSnapshot{
		checkpoint.NewFileSnapshot("a.rs", []byte("")),
	}))
	ai := agentid.Identity{Tool: "mock_ai", SessionID: "s1", PromptID: "p1"}
	cp := checkpoint.Checkpoint{
		CheckpointID:  "aaaaaaaaaaaa",
		BaseCommitSHA: base,
		AgentID:       ai,
		PromptID:      "p1",
		Entries: []checkpoint.WorkingLogEntry{
			{Path: "a.rs", PostSnapshot: checkpoint.NewFileSnapshot("a.rs", []byte("A\nB\nC\n")),
				ByteDiffRegions: []checkpoint.AttributionRange{{StartByte: 0, EndByte: 6, AgentID: ai}}},
		},
	}
	require.NoError(t, s.AppendCheckpoint(base, cp, false))
	return s, base
}

func TestLoadAndBasicQueries(t *testing.T) {
	s, base := setupStore(t)
	wl, err := Load(s, base, false)
	require.NoError(t, err)
	assert.False(t, wl.IsEmpty())
	assert.Equal(t, []string{"a.rs"}, wl.TouchedPaths())

	entries := wl.EntriesFor("a.rs")
	require.Len(t, entries, 1)

	snap, ok := wl.LatestSnapshot("a.rs")
	require.True(t, ok)
	assert.Equal(t, 6, snap.BytesLen)

	initial, ok := wl.InitialSnapshot("a.rs")
	require.True(t, ok)
	assert.Equal(t, 0, initial.BytesLen)

	agent, ok := wl.AgentActiveAt("p1")
	require.True(t, ok)
	assert.Equal(t, "mock_ai", agent.Tool)
}

func TestLoadMissingBaseReturnsError(t *testing.T) {
	s := storage.New(t.TempDir())
	_, err := Load(s, "nonexistent", false)
	assert.ErrorIs(t, err, errs.ErrMissingBaseLog)
}

func TestCloneSharesUnderlyingSlices(t *testing.T) {
	s, base := setupStore(t)
	wl, err := Load(s, base, false)
	require.NoError(t, err)
	clone := wl.Clone()
	assert.Equal(t, wl.TouchedPaths(), clone.TouchedPaths())
	assert.Equal(t, wl.BaseCommitSHA, clone.BaseCommitSHA)
}
