// Package settings loads .gitattr/settings.json plus a
// .gitattr/settings.local.json overlay, mirroring the base+local layering
// convention this tool family uses for its CLI settings.
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
)

const DefaultHookDeadlineMS = 30000

// Settings is the merged view of base + local configuration.
type Settings struct {
	Enabled          bool     `json:"enabled"`
	LogLevel         string   `json:"log_level,omitempty"`
	HookDeadlineMS   int      `json:"hook_deadline_ms,omitempty"`
	AllowRepos       []string `json:"allow_repos,omitempty"`
	DenyRepos        []string `json:"deny_repos,omitempty"`
	Telemetry        *bool    `json:"telemetry,omitempty"`
	// TranscriptInlineAgents lists agent tool names whose transcripts are
	// embedded inline (redacted) rather than pointer-only, overriding the
	// default no-refetch-path policy for a specific integration.
	TranscriptInlineAgents []string `json:"transcript_inline_agents,omitempty"`
}

func applyDefaults(s *Settings) {
	if s.HookDeadlineMS == 0 {
		s.HookDeadlineMS = DefaultHookDeadlineMS
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

// Load reads .gitattr/settings.json and merges .gitattr/settings.local.json
// on top of it, rooted at toplevel (the worktree root). A missing file at
// either layer is not an error.
func Load(toplevel string) (Settings, error) {
	base, local := paths.SettingsPaths(toplevel)

	var merged map[string]any
	if m, err := loadFromFile(base); err != nil {
		return Settings{}, err
	} else {
		merged = m
	}

	if l, err := loadFromFile(local); err != nil {
		return Settings{}, err
	} else {
		merged = mergeJSON(merged, l)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("re-marshaling merged settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decoding merged settings: %w", err)
	}
	applyDefaults(&s)
	return s, nil
}

func loadFromFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeJSON overlays override's top-level keys onto base, replacing rather
// than deep-merging any key present in override (matching the teacher's
// settings-merge convention: local settings replace, they don't splice).
func mergeJSON(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// IsTranscriptInline reports whether toolName is configured for inline
// transcript embedding, overriding reconcile.DefaultPolicy's refetch check.
func (s Settings) IsTranscriptInline(toolName string) bool {
	for _, t := range s.TranscriptInlineAgents {
		if t == toolName {
			return true
		}
	}
	return false
}
