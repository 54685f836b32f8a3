package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// worktreeTree implements attribution.TargetTree by reading files directly
// off disk, relative to a worktree root.
type worktreeTree struct {
	root string
}

func newWorktreeTree(root string) *worktreeTree {
	return &worktreeTree{root: root}
}

func (t *worktreeTree) Content(path string) ([]byte, bool, error) {
	full := filepath.Join(t.root, path)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// commitTree implements attribution.TargetTree by reading blobs out of a
// specific commit's tree via go-git.
type commitTree struct {
	tree *object.Tree
}

func newCommitTree(repoPath, commitSHA string) (*commitTree, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	commit, err := repo.CommitObject(plumbing.NewHash(commitSHA))
	if err != nil {
		return nil, fmt.Errorf("resolving commit %s: %w", commitSHA, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("resolving tree for commit %s: %w", commitSHA, err)
	}
	return &commitTree{tree: tree}, nil
}

func (t *commitTree) Content(path string) ([]byte, bool, error) {
	f, err := t.tree.File(path)
	if err != nil {
		return nil, false, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, false, err
	}
	return []byte(content), true, nil
}
