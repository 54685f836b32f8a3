// Package agentid defines the identity of whoever produced a byte range:
// a specific AI agent invocation, or the human sentinel.
package agentid

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Identity names the tool, model and session that produced an edit, plus
// the prompt turn it belongs to. Two events share a PromptID iff they were
// produced by the same user prompt.
type Identity struct {
	Tool      string `json:"tool"`
	Model     string `json:"model,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	PromptID  string `json:"prompt_id,omitempty"`
}

// Human is the distinguished sentinel identity representing a person typing
// directly, as opposed to an agent tool call.
var Human = Identity{Tool: "human"}

// IsHuman reports whether id is the human sentinel.
func (id Identity) IsHuman() bool {
	return id.Tool == "" || id.Tool == Human.Tool
}

// Key returns a stable string suitable for use as a map key or for
// equality comparisons; two zero-value Identities and two Human values all
// collapse to the same key.
func (id Identity) Key() string {
	if id.IsHuman() {
		return "human"
	}
	return strings.Join([]string{id.Tool, id.Model, id.SessionID, id.PromptID}, "\x1f")
}

// Equal reports whether id and other refer to the same identity.
func (id Identity) Equal(other Identity) bool {
	return id.Key() == other.Key()
}

// PromptRecord maps a prompt_id to the agent identity that owns it, the
// time it was first observed, and an optional embedded transcript.
type PromptRecord struct {
	AgentID     Identity `json:"agent_id"`
	FirstSeenTS int64    `json:"first_seen_ts"`
	// Transcript is present only when the reconciler's embedding policy
	// decides this agent cannot be refetched later (see package reconcile).
	Transcript string `json:"transcript,omitempty"`
	// TranscriptHash and TranscriptLen are populated instead of Transcript
	// when the policy chooses pointer-only embedding.
	TranscriptHash string `json:"transcript_hash,omitempty"`
	TranscriptLen  int    `json:"transcript_len,omitempty"`
}

// NewPromptID derives a stable hash for a user-visible prompt string, used
// as the prompt_id so identical prompt text (e.g. a retried turn) can be
// recognized as the same turn if a caller chooses to hash it that way.
// Callers that already have a stable ID from the agent's own session
// bookkeeping should prefer that value directly instead of calling this.
func NewPromptID(sessionID, promptText string) string {
	h := sha256.Sum256([]byte(sessionID + "\x1f" + promptText))
	return hex.EncodeToString(h[:])[:16]
}

// MarshalJSON is defined explicitly so a zero-value Identity's omitempty
// tags behave the same across encoders, and so Human always serializes to
// the same canonical shape.
func (id Identity) MarshalJSON() ([]byte, error) {
	type alias Identity
	a := alias(id)
	if a.Tool == "" {
		a.Tool = Human.Tool
	}
	return json.Marshal(a)
}
