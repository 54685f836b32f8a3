// Package paths resolves repository locations and the on-disk layout under
// <gitdir>/ai/, the single directory the whole engine writes into.
package paths

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// AIDir is the top-level directory Repo Storage owns, relative to the
	// git directory (not the worktree, so it survives worktree switches and
	// is never accidentally tracked or gitignored by the project itself).
	AIDir = "ai"

	WorkingLogsDir  = "working_logs"
	ArchiveDir      = "archive"
	StateDir        = "state"
	HooksDir        = "hooks"
	LogsDir         = "logs"
	CheckpointsFile = "checkpoints.jsonl"
	InitialFile     = "initial.jsonl"
	HookContextFile = "hook_context.json"
	HookCacheFile   = "hook_cache.json"

	NotesRef = "refs/notes/ai"

	SettingsFileName      = "settings.json"
	SettingsLocalFileName = "settings.local.json"
	SettingsDirName       = ".gitattr"
	IgnoreFileName        = ".gitattrignore"
)

var (
	gitDirCache   = map[string]string{}
	gitDirCacheMu sync.Mutex
)

// GitDir resolves the .git directory for the repository containing dir,
// preferring GIT_DIR from the environment (set by git itself when invoking
// a hook) and falling back to `git rev-parse --git-dir`.
func GitDir(dir string) (string, error) {
	if envDir := os.Getenv("GIT_DIR"); envDir != "" {
		abs, err := filepath.Abs(envDir)
		if err != nil {
			return "", fmt.Errorf("resolving GIT_DIR: %w", err)
		}
		return abs, nil
	}

	gitDirCacheMu.Lock()
	if cached, ok := gitDirCache[dir]; ok {
		gitDirCacheMu.Unlock()
		return cached, nil
	}
	gitDirCacheMu.Unlock()

	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse --git-dir: %w", err)
	}
	rel := strings.TrimSpace(string(out))
	abs := rel
	if !filepath.IsAbs(rel) {
		abs = filepath.Join(dir, rel)
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("absolutizing git dir: %w", err)
	}

	gitDirCacheMu.Lock()
	gitDirCache[dir] = abs
	gitDirCacheMu.Unlock()
	return abs, nil
}

// ClearCache drops the memoized git-dir lookups. Test-only.
func ClearCache() {
	gitDirCacheMu.Lock()
	defer gitDirCacheMu.Unlock()
	gitDirCache = map[string]string{}
}

// Toplevel resolves the worktree root, preferring GIT_WORK_TREE.
func Toplevel(dir string) (string, error) {
	if wt := os.Getenv("GIT_WORK_TREE"); wt != "" {
		return filepath.Abs(wt)
	}
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse --show-toplevel: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// AIRoot returns <gitdir>/ai.
func AIRoot(gitDir string) string {
	return filepath.Join(gitDir, AIDir)
}

// WorkingLogDir returns <gitdir>/ai/working_logs/<baseSHA>.
func WorkingLogDir(gitDir, baseSHA string) string {
	return filepath.Join(AIRoot(gitDir), WorkingLogsDir, baseSHA)
}

// CheckpointsPath returns the append-only checkpoints JSONL path for baseSHA.
func CheckpointsPath(gitDir, baseSHA string) string {
	return filepath.Join(WorkingLogDir(gitDir, baseSHA), CheckpointsFile)
}

// InitialPath returns the initial-attribution snapshot path for baseSHA.
func InitialPath(gitDir, baseSHA string) string {
	return filepath.Join(WorkingLogDir(gitDir, baseSHA), InitialFile)
}

// ArchivePath returns <gitdir>/ai/archive/<commitSHA>.
func ArchivePath(gitDir, commitSHA string) string {
	return filepath.Join(AIRoot(gitDir), ArchiveDir, commitSHA)
}

// StatePath returns <gitdir>/ai/state/<name>.
func StatePath(gitDir, name string) string {
	return filepath.Join(AIRoot(gitDir), StateDir, name)
}

// HooksPath returns the managed hooksPath directory, <gitdir>/ai/hooks.
func HooksPath(gitDir string) string {
	return filepath.Join(AIRoot(gitDir), HooksDir)
}

// LogPath returns the per-process log file path, <gitdir>/ai/logs/<pid>.log.
func LogPath(gitDir string, pid int) string {
	return filepath.Join(AIRoot(gitDir), LogsDir, fmt.Sprintf("%d.log", pid))
}

// SettingsPaths returns the base and local settings file paths, rooted at
// the worktree top level (mirrors .gitattr/settings.json + .local.json).
func SettingsPaths(toplevel string) (base, local string) {
	dir := filepath.Join(toplevel, SettingsDirName)
	return filepath.Join(dir, SettingsFileName), filepath.Join(dir, SettingsLocalFileName)
}

// IgnoreFilePath returns the .gitattrignore path at the worktree root.
func IgnoreFilePath(toplevel string) string {
	return filepath.Join(toplevel, IgnoreFileName)
}

// EnsureDir creates dir (and parents) if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}
