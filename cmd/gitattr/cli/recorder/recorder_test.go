package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var claude = agentid.Identity{Tool: "claude_code", SessionID: "s1", PromptID: "p1"}

func TestDiffByteRegionsPureInsert(t *testing.T) {
	regions, ops := diffByteRegions("", "hello world", claude)
	require.Len(t, regions, 1)
	assert.Equal(t, 0, regions[0].StartByte)
	assert.Equal(t, 11, regions[0].EndByte)
	require.Len(t, ops, 1)
	assert.Equal(t, checkpoint.DiffOpInsert, ops[0].Kind)
	assert.Equal(t, 11, ops[0].Len)
}

func TestDiffByteRegionsNoChange(t *testing.T) {
	regions, ops := diffByteRegions("same", "same", claude)
	assert.Nil(t, regions)
	assert.Nil(t, ops)
}

func TestDiffByteRegionsAppendOnly(t *testing.T) {
	regions, _ := diffByteRegions("line one\n", "line one\nline two\n", claude)
	require.Len(t, regions, 1)
	assert.Equal(t, "line two\n", "line one\nline two\n"[regions[0].StartByte:regions[0].EndByte])
}

func TestDiffByteRegionsDeleteEmitsDeleteOp(t *testing.T) {
	_, ops := diffByteRegions("hello world", "hello", claude)
	require.NotEmpty(t, ops)
	var sawDelete bool
	for _, op := range ops {
		if op.Kind == checkpoint.DiffOpDelete {
			sawDelete = true
			assert.Equal(t, 6, op.Len)
		}
	}
	assert.True(t, sawDelete)
}

func TestIgnoreMatcherMissingFileIgnoresNothing(t *testing.T) {
	m, err := LoadIgnoreMatcher(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, m.Match("secrets.env"))
}

func TestIgnoreMatcherMatchesPatterns(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, ".gitattrignore")
	require.NoError(t, os.WriteFile(ignorePath, []byte("# comment\n*.lock\nvendor/\n"), 0o644))

	m, err := LoadIgnoreMatcher(ignorePath)
	require.NoError(t, err)
	assert.True(t, m.Match("go.lock"))
	assert.True(t, m.Match("vendor/pkg/file.go"))
	assert.False(t, m.Match("main.go"))
}

func TestNilIgnoreMatcherIgnoresNothing(t *testing.T) {
	var m *IgnoreMatcher
	assert.False(t, m.Match("anything"))
}

func newRecorder(t *testing.T) (*Recorder, *storage.Store) {
	t.Helper()
	s := storage.New(t.TempDir())
	return New(s, nil), s
}

func TestRecordPostToolUseLostPreStateAttributesWholeFile(t *testing.T) {
	r, s := newRecorder(t)
	cp, err := r.RecordPostToolUse(PostToolUseInput{
		ToolUseID: "tu1",
		BaseSHA:   "base1",
		Agent:     claude,
		PromptID:  "p1",
		Contents:  map[string][]byte{"new.rs": []byte("fn main() {}")},
	})
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Len(t, cp.Entries, 1)
	assert.True(t, cp.Entries[0].LostPreState)
	require.Len(t, cp.Entries[0].ByteDiffRegions, 1)
	assert.Equal(t, 0, cp.Entries[0].ByteDiffRegions[0].StartByte)
	assert.Equal(t, len("fn main() {}"), cp.Entries[0].ByteDiffRegions[0].EndByte)

	var count int
	require.NoError(t, s.ReadCheckpoints("base1", storage.ReadOptions{}, func(got checkpoint.Checkpoint) error {
		count++
		assert.Equal(t, cp.CheckpointID, got.CheckpointID)
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestRecordPreThenPostDiffsAgainstSnapshot(t *testing.T) {
	r, _ := newRecorder(t)
	require.NoError(t, r.RecordPreToolUse("tu2", map[string][]byte{"a.rs": []byte("line one\n")}))

	cp, err := r.RecordPostToolUse(PostToolUseInput{
		ToolUseID: "tu2",
		BaseSHA:   "base1",
		Agent:     claude,
		PromptID:  "p1",
		Contents:  map[string][]byte{"a.rs": []byte("line one\nline two\n")},
	})
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Len(t, cp.Entries, 1)
	assert.False(t, cp.Entries[0].LostPreState)
	require.NotNil(t, cp.Entries[0].PreSnapshot)
}

func TestRecordPostToolUseNoChangeDropsEntry(t *testing.T) {
	r, _ := newRecorder(t)
	require.NoError(t, r.RecordPreToolUse("tu3", map[string][]byte{"a.rs": []byte("same\n")}))

	cp, err := r.RecordPostToolUse(PostToolUseInput{
		ToolUseID: "tu3",
		BaseSHA:   "base1",
		Agent:     claude,
		PromptID:  "p1",
		Contents:  map[string][]byte{"a.rs": []byte("same\n")},
	})
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRecordPostToolUseIgnoredPathSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitattrignore"), []byte("*.lock\n"), 0o644))
	ignore, err := LoadIgnoreMatcher(filepath.Join(dir, ".gitattrignore"))
	require.NoError(t, err)

	s := storage.New(t.TempDir())
	r := New(s, ignore)

	cp, err := r.RecordPostToolUse(PostToolUseInput{
		ToolUseID: "tu4",
		BaseSHA:   "base1",
		Agent:     claude,
		PromptID:  "p1",
		Contents:  map[string][]byte{"go.lock": []byte("locked content")},
	})
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestRecordPostToolUseDedupesIdenticalAppend(t *testing.T) {
	r, _ := newRecorder(t)
	in := PostToolUseInput{
		ToolUseID: "tu5",
		BaseSHA:   "base1",
		Agent:     claude,
		PromptID:  "p1",
		Contents:  map[string][]byte{"a.rs": []byte("hello")},
	}
	first, err := r.RecordPostToolUse(in)
	require.NoError(t, err)
	require.NotNil(t, first)

	in.ToolUseID = "tu6"
	second, err := r.RecordPostToolUse(in)
	require.NoError(t, err)
	assert.Nil(t, second)
}
