package reconcile

import (
	"fmt"
	"io"
	"sort"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/note"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// ReadNote reads the AuthorshipNote for commitSHA from refs/notes/ai, if
// one has been written. A missing ref or a missing entry for commitSHA
// both return (nil, nil) rather than an error.
func ReadNote(gitDir, commitSHA string) (*note.AuthorshipNote, error) {
	fs := osfs.New(gitDir)
	sto := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())

	_, tree, err := currentNotesState(sto)
	if err != nil || tree == nil {
		return nil, err
	}
	entry, err := tree.File(commitSHA)
	if err != nil {
		return nil, nil
	}
	r, err := entry.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening note blob: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading note blob: %w", err)
	}
	return note.Unmarshal(data)
}

// currentNotesState reads the current refs/notes/ai reference and, if it
// exists, the tree of the commit it points at. A missing ref is not an
// error: it means this is the first note ever written.
func currentNotesState(sto storer.Storer) (*plumbing.Reference, *object.Tree, error) {
	ref, err := sto.Reference(plumbing.ReferenceName(paths.NotesRef))
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading notes ref: %w", err)
	}
	commit, err := object.GetCommit(sto, ref.Hash())
	if err != nil {
		return ref, nil, fmt.Errorf("reading notes commit: %w", err)
	}
	tree, err := object.GetTree(sto, commit.TreeHash)
	if err != nil {
		return ref, nil, fmt.Errorf("reading notes tree: %w", err)
	}
	return ref, tree, nil
}

// writeBlob stores payload as a blob object and returns its hash.
func writeBlob(sto storer.EncodedObjectStorer, payload []byte) (plumbing.Hash, error) {
	obj := sto.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return sto.SetEncodedObject(obj)
}

// buildNotesTree returns a new tree hash equal to oldTree with entry
// commitSHA replaced (or added) to point at blobHash. Notes are stored
// flat, keyed by the target commit's full hex SHA, which is how git notes
// behaves until the number of entries crosses git's fanout threshold; a
// flat layout is sufficient for the scale this engine targets.
func buildNotesTree(sto storer.EncodedObjectStorer, oldTree *object.Tree, commitSHA string, blobHash plumbing.Hash) (plumbing.Hash, error) {
	entries := map[string]object.TreeEntry{}
	if oldTree != nil {
		for _, e := range oldTree.Entries {
			entries[e.Name] = e
		}
	}
	entries[commitSHA] = object.TreeEntry{Name: commitSHA, Mode: filemode.Regular, Hash: blobHash}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := &object.Tree{}
	for _, name := range names {
		tree.Entries = append(tree.Entries, entries[name])
	}

	obj := sto.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return sto.SetEncodedObject(obj)
}

// writeCommit stores commit and returns its hash.
func writeCommit(sto storer.EncodedObjectStorer, commit *object.Commit) (plumbing.Hash, error) {
	obj := sto.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return sto.SetEncodedObject(obj)
}
