package storage

import (
	"os"
	"testing"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/errs"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckpoint(id, baseSHA string) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		CheckpointID:  checkpoint.ID(id),
		BaseCommitSHA: baseSHA,
		AgentID:       agentid.Identity{Tool: "mock_ai"},
		PromptID:      "p1",
		Entries: []checkpoint.WorkingLogEntry{
			{Path: "a.rs", ByteDiffRegions: []checkpoint.AttributionRange{{StartByte: 0, EndByte: 3}}},
		},
	}
}

func TestAppendAndReadCheckpointsRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	const base = "abc123"

	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("aaaaaaaaaaaa", base), false))
	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("bbbbbbbbbbbb", base), false))

	var got []checkpoint.ID
	err := s.ReadCheckpoints(base, ReadOptions{}, func(cp checkpoint.Checkpoint) error {
		got = append(got, cp.CheckpointID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []checkpoint.ID{"aaaaaaaaaaaa", "bbbbbbbbbbbb"}, got)
}

func TestReadCheckpointsMissingBaseLog(t *testing.T) {
	s := New(t.TempDir())
	err := s.ReadCheckpoints("missing", ReadOptions{}, func(checkpoint.Checkpoint) error { return nil })
	assert.ErrorIs(t, err, errs.ErrMissingBaseLog)
}

func TestReadCheckpointsSkipsCorruptLines(t *testing.T) {
	gitDir := t.TempDir()
	s := New(gitDir)
	const base = "abc123"
	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("aaaaaaaaaaaa", base), false))

	target := paths.CheckpointsPath(gitDir, base)
	f, err := os.OpenFile(target, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("bbbbbbbbbbbb", base), false))

	var corrupt []string
	var good []checkpoint.ID
	err = s.ReadCheckpoints(base, ReadOptions{OnCorruptLine: func(_ int, raw string, _ error) {
		corrupt = append(corrupt, raw)
	}}, func(cp checkpoint.Checkpoint) error {
		good = append(good, cp.CheckpointID)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, corrupt, 1)
	assert.Equal(t, []checkpoint.ID{"aaaaaaaaaaaa", "bbbbbbbbbbbb"}, good)
}

func TestReadCheckpointsStripsTranscriptsByDefault(t *testing.T) {
	s := New(t.TempDir())
	const base = "abc123"
	cp := newCheckpoint("aaaaaaaaaaaa", base)
	cp.Transcript = "sensitive prompt text"
	require.NoError(t, s.AppendCheckpoint(base, cp, false))

	var seen checkpoint.Checkpoint
	require.NoError(t, s.ReadCheckpoints(base, ReadOptions{}, func(c checkpoint.Checkpoint) error {
		seen = c
		return nil
	}))
	assert.Empty(t, seen.Transcript)

	var withTranscript checkpoint.Checkpoint
	require.NoError(t, s.ReadCheckpoints(base, ReadOptions{IncludeTranscripts: true}, func(c checkpoint.Checkpoint) error {
		withTranscript = c
		return nil
	}))
	assert.Equal(t, "sensitive prompt text", withTranscript.Transcript)
}

func TestWriteAndReadInitial(t *testing.T) {
	s := New(t.TempDir())
	const base = "abc123"
	snaps := []checkpoint.FileSnapshot{
		checkpoint.NewFileSnapshot("a.rs", []byte("hello")),
		checkpoint.NewFileSnapshot("b.rs", []byte("world")),
	}
	require.NoError(t, s.WriteInitial(base, snaps))
	assert.True(t, s.HasWorkingLog(base))

	var got []string
	require.NoError(t, s.ReadInitial(base, func(snap checkpoint.FileSnapshot) error {
		got = append(got, snap.Path)
		return nil
	}))
	assert.Equal(t, []string{"a.rs", "b.rs"}, got)
}

func TestLastAppendedIdenticalDedupe(t *testing.T) {
	s := New(t.TempDir())
	const base = "abc123"
	cp := newCheckpoint("aaaaaaaaaaaa", base)
	require.NoError(t, s.AppendCheckpoint(base, cp, false))

	same, err := s.LastAppendedIdentical(base, cp)
	require.NoError(t, err)
	assert.True(t, same)

	other := newCheckpoint("bbbbbbbbbbbb", base)
	diff, err := s.LastAppendedIdentical(base, other)
	require.NoError(t, err)
	assert.False(t, diff)
}

func TestArchiveMovesWorkingLog(t *testing.T) {
	s := New(t.TempDir())
	const base, commit = "abc123", "def456"
	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("aaaaaaaaaaaa", base), false))

	require.NoError(t, s.Archive(base, commit))
	assert.False(t, s.HasWorkingLog(base))

	var got []checkpoint.ID
	require.NoError(t, s.ReadArchived(commit, func(cp checkpoint.Checkpoint) error {
		got = append(got, cp.CheckpointID)
		return nil
	}))
	assert.Equal(t, []checkpoint.ID{"aaaaaaaaaaaa"}, got)
}

func TestArchiveMissingBaseLog(t *testing.T) {
	s := New(t.TempDir())
	assert.ErrorIs(t, s.Archive("nope", "commit"), errs.ErrMissingBaseLog)
}

func TestDiscardRemovesWorkingLog(t *testing.T) {
	s := New(t.TempDir())
	const base = "abc123"
	require.NoError(t, s.AppendCheckpoint(base, newCheckpoint("aaaaaaaaaaaa", base), false))
	require.True(t, s.HasWorkingLog(base))

	require.NoError(t, s.Discard(base))
	assert.False(t, s.HasWorkingLog(base))
}

func TestDiscardMissingBaseLogIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.Discard("never-existed"))
}
