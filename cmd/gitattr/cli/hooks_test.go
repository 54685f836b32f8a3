package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebaseFileAttributionsKeepsUnchangedFileVerbatim(t *testing.T) {
	_, dir, hash := initRepoWithCommitSimple(t, map[string]string{"a.txt": "hello"})
	fa := note.FileAttribution{ContentHash: checkpoint.HashContent([]byte("hello"))}
	n := note.New("old-sha", "Ada", nil)
	n.Files["a.txt"] = fa

	out := reprojectFileAttributions(dir, hash.String(), n)
	assert.Equal(t, fa, out.Files["a.txt"])
}

func TestRebaseFileAttributionsFallsBackToHumanOnConflictResolution(t *testing.T) {
	_, dir, hash := initRepoWithCommitSimple(t, map[string]string{"a.txt": "resolved by hand"})
	n := note.New("old-sha", "Ada", nil)
	n.Files["a.txt"] = note.FileAttribution{ContentHash: checkpoint.HashContent([]byte("original ai content"))}

	out := reprojectFileAttributions(dir, hash.String(), n)
	got := out.Files["a.txt"]
	require.Len(t, got.ByteAttributions, 1)
	assert.Equal(t, 0, got.ByteAttributions[0].StartByte)
	assert.Equal(t, len("resolved by hand"), got.ByteAttributions[0].EndByte)
}

func TestRebaseFileAttributionsDropsDeletedFile(t *testing.T) {
	_, dir, hash := initRepoWithCommitSimple(t, map[string]string{"a.txt": "hello"})
	n := note.New("old-sha", "Ada", nil)
	n.Files["gone.txt"] = note.FileAttribution{ContentHash: "whatever"}

	out := reprojectFileAttributions(dir, hash.String(), n)
	assert.NotContains(t, out.Files, "gone.txt")
}

func TestReconcileSquashTargetDefaultsModifiedPathsToHuman(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	sig := &object.Signature{Name: "Ada", Email: "ada@example.com", When: time.Now()}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644))
	_, err = wt.Add("a.txt")
	require.NoError(t, err)
	_, err = wt.Commit("first", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2 squashed"), 0o644))
	_, err = wt.Add("a.txt")
	require.NoError(t, err)
	second, err := wt.Commit("second (squashed)", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	gitDir := filepath.Join(dir, ".git")
	n, err := reconcileSquashTarget(gitDir, dir, second.String())
	require.NoError(t, err)
	require.Contains(t, n.Files, "a.txt")
	assert.Equal(t, checkpoint.HashContent([]byte("v2 squashed")), n.Files["a.txt"].ContentHash)
}
