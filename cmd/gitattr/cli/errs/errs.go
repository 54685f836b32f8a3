// Package errs holds the sentinel error values shared across storage,
// reconcile, rewrite and dispatch. The attribution engine is advisory: it
// must never block a commit or a rewrite, so callers generally log these and
// continue rather than propagate them to a non-zero exit.
package errs

import "errors"

var (
	// ErrStorageCorruption marks a malformed JSONL line. The reader skips it
	// and continues; the resulting note is best-effort.
	ErrStorageCorruption = errors.New("storage: corrupt line")

	// ErrMissingBaseLog means a commit arrived with no working log for its
	// first-parent base SHA. The reconciler responds with a human-only note.
	ErrMissingBaseLog = errors.New("storage: no working log for base commit")

	// ErrHashMismatch is raised during virtual attribution replay when a
	// checkpoint's recorded pre_snapshot hash no longer matches the
	// accumulated content, meaning the file was edited outside any tool.
	ErrHashMismatch = errors.New("attribution: pre-snapshot hash mismatch")

	// ErrNoteCASConflict means the compare-and-swap on refs/notes/ai lost a
	// race. Callers retry up to 3 times before giving up.
	ErrNoteCASConflict = errors.New("reconcile: notes ref compare-and-swap conflict")

	// ErrHookDeadline is returned when a hook invocation exceeds its
	// deadline. Handlers must exit 0 with a WARN, never block git.
	ErrHookDeadline = errors.New("dispatch: hook deadline exceeded")

	// ErrMalformedCheckpoint is returned by the ingest subcommand for a
	// checkpoint event that cannot be normalized to the canonical schema.
	// Unlike the other sentinels, this one IS surfaced as a non-zero exit,
	// but only from `gitattr ingest`, never from a git hook.
	ErrMalformedCheckpoint = errors.New("ingest: malformed checkpoint")

	// ErrAllowlistDenied means the current repository is not in the
	// configured allow list (or is in the deny list). Hooks exit 0 silently.
	ErrAllowlistDenied = errors.New("dispatch: repository denied by allow/deny list")

	// ErrArchiveNotFound is returned when a caller asks for an archived
	// working log that does not exist.
	ErrArchiveNotFound = errors.New("storage: archive not found")

	// ErrStaleRewriteContext marks a rewrite context file older than the
	// bounded age the tracker will honor; it is discarded rather than used.
	ErrStaleRewriteContext = errors.New("rewrite: stale context discarded")
)

// Recoverable reports whether err is one of the sentinels the engine treats
// as advisory (log and continue) rather than fatal.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrStorageCorruption),
		errors.Is(err, ErrMissingBaseLog),
		errors.Is(err, ErrHashMismatch),
		errors.Is(err, ErrNoteCASConflict),
		errors.Is(err, ErrHookDeadline),
		errors.Is(err, ErrAllowlistDenied),
		errors.Is(err, ErrStaleRewriteContext):
		return true
	default:
		return false
	}
}
