// Package note owns the AuthorshipNote data model, its human-readable
// attestation block, and JSON marshal/unmarshal. This is the value written
// as a git note under refs/notes/ai.
package note

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
)

// SchemaVersion identifies the wire shape of AuthorshipNote.
const SchemaVersion = "authorship/3.0.0"

// FileAttribution is one path's attribution record within a note.
type FileAttribution struct {
	LineAttributions []checkpoint.LineAttributionRange `json:"line_attributions"`
	ByteAttributions []checkpoint.AttributionRange      `json:"byte_attributions"`
	ContentHash      string                             `json:"content_hash"`
	// NoAdditions marks a delete-only file entry, per spec's
	// "(no additions)" marker for delete-only commits.
	NoAdditions bool `json:"no_additions,omitempty"`
}

// Provenance records the commits a note's attribution was derived from and
// the rewrite chain it has been carried through.
type Provenance struct {
	SourceCommits []string `json:"source_commits,omitempty"`
	RewriteChain  []string `json:"rewrite_chain,omitempty"`
}

// AuthorshipNote is the immutable per-commit record produced by
// reconciliation.
type AuthorshipNote struct {
	SchemaVersion string                              `json:"schema_version"`
	CommitSHA     string                              `json:"commit_sha"`
	ParentSHAs    []string                            `json:"parent_shas"`
	Author        string                              `json:"author"`
	Files         map[string]FileAttribution         `json:"files"`
	Prompts       map[string]agentid.PromptRecord    `json:"prompts"`
	Provenance    Provenance                          `json:"provenance"`
}

// New builds an empty note for a commit.
func New(commitSHA, author string, parents []string) *AuthorshipNote {
	return &AuthorshipNote{
		SchemaVersion: SchemaVersion,
		CommitSHA:     commitSHA,
		ParentSHAs:    parents,
		Author:        author,
		Files:         map[string]FileAttribution{},
		Prompts:       map[string]agentid.PromptRecord{},
	}
}

// PrunePrompts drops any PromptRecord not referenced by at least one
// surviving byte or line attribution, per spec §4.5 step 3.
func (n *AuthorshipNote) PrunePrompts() {
	referenced := map[string]bool{}
	for _, fa := range n.Files {
		for _, r := range fa.ByteAttributions {
			if r.AgentID.PromptID != "" {
				referenced[r.AgentID.PromptID] = true
			}
		}
	}
	for id := range n.Prompts {
		if !referenced[id] {
			delete(n.Prompts, id)
		}
	}
}

// Percentages returns, per path, the fraction of bytes attributed to any
// non-human agent. This is deliberately exposed as a pure function so an
// out-of-scope decoration UI (spec's explicit non-goal) could compute
// "100% ai"-style summaries without duplicating the walk.
func (n *AuthorshipNote) Percentages() map[string]float64 {
	out := make(map[string]float64, len(n.Files))
	for path, fa := range n.Files {
		total := 0
		agentBytes := 0
		for _, r := range fa.ByteAttributions {
			l := r.Len()
			total += l
			if !r.AgentID.IsHuman() {
				agentBytes += l
			}
		}
		if total == 0 {
			out[path] = 0
			continue
		}
		out[path] = float64(agentBytes) / float64(total) * 100
	}
	return out
}

// Marshal renders the note as the git-notes blob value: a human-readable
// attestation block followed by the JSON payload, matching spec §6's "UTF-8
// text: human-readable attestation block ... followed by a JSON object."
func Marshal(n *AuthorshipNote) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(attestationBlock(n))
	buf.WriteString("\n---\n")

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("encoding authorship note: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a git-notes blob value written by Marshal, skipping the
// leading attestation block and decoding the trailing JSON payload.
func Unmarshal(data []byte) (*AuthorshipNote, error) {
	idx := bytes.Index(data, []byte("\n---\n"))
	jsonPart := data
	if idx >= 0 {
		jsonPart = data[idx+len("\n---\n"):]
	}
	var n AuthorshipNote
	if err := json.Unmarshal(bytes.TrimSpace(jsonPart), &n); err != nil {
		return nil, fmt.Errorf("decoding authorship note: %w", err)
	}
	return &n, nil
}

// attestationBlock renders the compact key:value per-file summary table
// that precedes the JSON payload, in the vein of the trailer-style
// key:value convention used elsewhere in this tool family, so `git notes
// show` output is legible without extra tooling.
func attestationBlock(n *AuthorshipNote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Authorship: %s\n", n.SchemaVersion)
	fmt.Fprintf(&b, "Commit: %s\n", n.CommitSHA)

	paths := make([]string, 0, len(n.Files))
	for p := range n.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	pct := n.Percentages()
	for _, p := range paths {
		fa := n.Files[p]
		if fa.NoAdditions {
			fmt.Fprintf(&b, "File: %s (no additions)\n", p)
			continue
		}
		fmt.Fprintf(&b, "File: %s ai=%.0f%% ranges=%d\n", p, pct[p], len(fa.ByteAttributions))
	}
	return b.String()
}
