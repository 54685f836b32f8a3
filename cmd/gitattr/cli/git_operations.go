package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// resolveHead returns the current HEAD commit SHA for the repository at
// toplevel.
func resolveHead(toplevel string) (string, error) {
	repo, err := git.PlainOpenWithOptions(toplevel, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// diffPathsAgainstParent returns the paths modified and the paths deleted
// by commitSHA relative to its first parent (or, for a root commit,
// every path in its tree, all counted as modified).
func diffPathsAgainstParent(toplevel, commitSHA string) (modified, deleted []string, err error) {
	repo, err := git.PlainOpenWithOptions(toplevel, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, nil, fmt.Errorf("opening repository: %w", err)
	}
	commit, err := repo.CommitObject(plumbing.NewHash(commitSHA))
	if err != nil {
		return nil, nil, fmt.Errorf("resolving commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving tree: %w", err)
	}

	parentCommit, perr := commit.Parents().Next()
	if perr != nil {
		return allPaths(tree), nil, nil
	}
	parentTree, err := parentCommit.Tree()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving parent tree: %w", err)
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, nil, fmt.Errorf("diffing trees: %w", err)
	}
	for _, c := range changes {
		action, actionErr := c.Action()
		if actionErr != nil {
			continue
		}
		if action == merkletrie.Delete {
			deleted = append(deleted, c.From.Name)
			continue
		}
		name := c.To.Name
		if name == "" {
			name = c.From.Name
		}
		modified = append(modified, name)
	}
	return modified, deleted, nil
}

// isAncestor reports whether oldSHA is an ancestor of (or equal to) newSHA,
// i.e. whether newSHA's history still contains oldSHA. A reset that moves
// HEAD backward makes this false, since oldSHA becomes a descendant of the
// new HEAD instead.
func isAncestor(toplevel, oldSHA, newSHA string) (bool, error) {
	if oldSHA == newSHA {
		return true, nil
	}
	repo, err := git.PlainOpenWithOptions(toplevel, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false, fmt.Errorf("opening repository: %w", err)
	}
	oldCommit, err := repo.CommitObject(plumbing.NewHash(oldSHA))
	if err != nil {
		return false, fmt.Errorf("resolving old HEAD %s: %w", oldSHA, err)
	}
	newCommit, err := repo.CommitObject(plumbing.NewHash(newSHA))
	if err != nil {
		return false, fmt.Errorf("resolving new HEAD %s: %w", newSHA, err)
	}
	return oldCommit.IsAncestor(newCommit)
}

func allPaths(tree *object.Tree) []string {
	var paths []string
	_ = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	return paths
}
