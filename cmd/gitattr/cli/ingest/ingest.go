// Package ingest normalizes external checkpoint events into the canonical
// schema the Checkpoint Recorder consumes. Agent-specific parsers are out
// of scope (spec's explicit non-goal); this package owns only the
// canonical envelope and the single in-scope preset, agent-v1.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/errs"
)

// Event is the canonical checkpoint schema delivered on stdin, per spec §6.
type Event struct {
	HookEventName    string            `json:"hook_event_name"`
	ToolName         string            `json:"tool_name"`
	ToolUseID        string            `json:"tool_use_id"`
	ToolInput        json.RawMessage   `json:"tool_input"`
	Cwd              string            `json:"cwd"`
	EditedFilepaths  []string          `json:"edited_filepaths,omitempty"`
	AgentIDOverride  *agentid.Identity `json:"agent_id,omitempty"`
	TelemetryPayload json.RawMessage   `json:"telemetry_payload,omitempty"`
}

const (
	HookPreToolUse    = "PreToolUse"
	HookPostToolUse   = "PostToolUse"
	HookSessionCreated = "session.created"
)

// ParseEvent decodes raw stdin bytes into the canonical Event schema.
// Returns errs.ErrMalformedCheckpoint (never a git-hook-facing error; only
// the ingest subcommand surfaces this as a non-zero exit) on failure.
func ParseEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errs.ErrMalformedCheckpoint, err)
	}
	if e.HookEventName == "" {
		return Event{}, fmt.Errorf("%w: missing hook_event_name", errs.ErrMalformedCheckpoint)
	}
	return e, nil
}

// AgentV1Envelope is the generic preset accepted for tools that don't have
// their own richer integration: `{ type: "ai_agent", repo_working_dir,
// edited_filepaths, transcript, agent_name, model, conversation_id }`.
type AgentV1Envelope struct {
	Type            string   `json:"type"`
	RepoWorkingDir  string   `json:"repo_working_dir"`
	EditedFilepaths []string `json:"edited_filepaths"`
	Transcript      string   `json:"transcript,omitempty"`
	AgentName       string   `json:"agent_name"`
	Model           string   `json:"model,omitempty"`
	ConversationID  string   `json:"conversation_id"`
}

// ParseAgentV1 decodes an agent-v1 preset envelope and normalizes it into
// an Event plus the derived agent identity.
func ParseAgentV1(raw []byte) (Event, agentid.Identity, error) {
	var env AgentV1Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, agentid.Identity{}, fmt.Errorf("%w: %v", errs.ErrMalformedCheckpoint, err)
	}
	if env.Type != "ai_agent" {
		return Event{}, agentid.Identity{}, fmt.Errorf("%w: unexpected type %q", errs.ErrMalformedCheckpoint, env.Type)
	}
	if env.AgentName == "" {
		return Event{}, agentid.Identity{}, fmt.Errorf("%w: missing agent_name", errs.ErrMalformedCheckpoint)
	}

	id := agentid.Identity{
		Tool:      env.AgentName,
		Model:     env.Model,
		SessionID: env.ConversationID,
		PromptID:  agentid.NewPromptID(env.ConversationID, env.Transcript),
	}

	event := Event{
		HookEventName:   HookPostToolUse,
		ToolName:        env.AgentName,
		Cwd:             env.RepoWorkingDir,
		EditedFilepaths: env.EditedFilepaths,
		AgentIDOverride: &id,
	}
	return event, id, nil
}

// WallClockNow returns the current time as a Unix timestamp, the format
// Checkpoint.WallClock is stored in.
func WallClockNow() int64 {
	return time.Now().Unix()
}
