// Package dispatch is the Hook Dispatch Shim: the minimal per-invocation
// entry point every installed git hook runs through. It decides whether an
// invocation is relevant at all and, if so, forwards to the Rewrite
// Tracker; otherwise it exits fast without touching configuration or the
// network.
package dispatch

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
)

// HookName identifies one of the hooks in the managed hooksPath fleet.
type HookName string

const (
	HookPreCommit           HookName = "pre-commit"
	HookPostCommit          HookName = "post-commit"
	HookPrepareCommitMsg    HookName = "prepare-commit-msg"
	HookCommitMsg           HookName = "commit-msg"
	HookPreRebase           HookName = "pre-rebase"
	HookPostRewrite         HookName = "post-rewrite"
	HookPostCheckout        HookName = "post-checkout"
	HookPostMerge           HookName = "post-merge"
	HookReferenceTransaction HookName = "reference-transaction"
	HookPostIndexChange     HookName = "post-index-change"
	HookApplypatchMsg       HookName = "applypatch-msg"
	HookPreApplypatch       HookName = "pre-applypatch"
	HookPostApplypatch      HookName = "post-applypatch"
	HookPreAutoGC           HookName = "pre-auto-gc"
	HookPreMergeCommit      HookName = "pre-merge-commit"
)

// passthroughOnly are hooks that only need to chain any pre-existing user
// hook script; internal dispatch is skipped entirely for these.
var passthroughOnly = map[HookName]bool{
	HookApplypatchMsg: true,
	HookPreApplypatch: true,
	HookPreAutoGC:     true,
}

// relevantRefs is the set of refs a reference-transaction invocation cares
// about; anything else exits immediately (spec §4.7 step 3).
var relevantRefPrefixes = []string{"HEAD", "refs/heads/", "refs/notes/ai"}

// cacheEntry is the per-process cache keyed by PID+PPID, carrying HEAD,
// reflog action and toplevel resolved once per git operation rather than
// once per hook. One OS process handles exactly one hook invocation, so
// package-level memory (not a file) is sufficient; there is no cross-
// process IPC here.
type cacheEntry struct {
	Head         string
	ReflogAction string
	Toplevel     string
	GitDir       string
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*cacheEntry{}
)

func processKey() string {
	return strconv.Itoa(os.Getpid()) + ":" + strconv.Itoa(os.Getppid())
}

// Cache returns the per-process cache, resolving it lazily on first use
// within this process via resolve.
func Cache(resolve func() (*cacheEntry, error)) (*cacheEntry, error) {
	key := processKey()
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if e, ok := cache[key]; ok {
		return e, nil
	}
	e, err := resolve()
	if err != nil {
		return nil, err
	}
	cache[key] = e
	return e, nil
}

// ClearCache drops the per-process cache. Test-only.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[string]*cacheEntry{}
}

// ShouldSkipReferenceTransaction reports whether a reference-transaction
// invocation touches none of {HEAD, refs/heads/*, refs/notes/ai} and can
// exit 0 immediately, per the ≤10ms no-op budget in spec §4.7/§5.
func ShouldSkipReferenceTransaction(refNames []string) bool {
	for _, ref := range refNames {
		for _, prefix := range relevantRefPrefixes {
			if strings.HasPrefix(ref, prefix) {
				return false
			}
		}
	}
	return true
}

// ShouldSkipPostIndexChange reports whether there is no pending checkpoint
// session for gitDir, letting a no-op invocation exit within its ≤8ms
// budget.
func ShouldSkipPostIndexChange(gitDir string) bool {
	pending := paths.StatePath(gitDir, "pending")
	entries, err := os.ReadDir(pending)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

// IsPassthroughOnly reports whether hook should skip internal dispatch
// entirely and just chain any pre-existing user hook.
func IsPassthroughOnly(hook HookName) bool {
	return passthroughOnly[hook]
}

// AllowlistConfig is the minimal repo allow/deny surface the shim consults
// before resolving remotes. Both lists empty means "skip the remote-URL
// fetch entirely" per spec §4.7 step 4.
type AllowlistConfig struct {
	Allow []string
	Deny  []string
}

// Empty reports whether both lists are empty.
func (c AllowlistConfig) Empty() bool {
	return len(c.Allow) == 0 && len(c.Deny) == 0
}

// Permits reports whether remoteURL is allowed under c. Called only when
// c is non-empty, since an empty config always permits without a remote
// lookup.
func (c AllowlistConfig) Permits(remoteURL string) bool {
	for _, d := range c.Deny {
		if remoteURL == d {
			return false
		}
	}
	if len(c.Allow) == 0 {
		return true
	}
	for _, a := range c.Allow {
		if remoteURL == a {
			return true
		}
	}
	return false
}
