package note

import (
	"testing"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/agentid"
	"github.com/gitattr/gitattr/cmd/gitattr/cli/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var claude = agentid.Identity{Tool: "claude_code", SessionID: "s1", PromptID: "p1"}

func sampleNote() *AuthorshipNote {
	n := New("deadbeef", "Ada Lovelace", []string{"parent1"})
	n.Files["a.rs"] = FileAttribution{
		ContentHash: "hash1",
		ByteAttributions: []checkpoint.AttributionRange{
			{StartByte: 0, EndByte: 5, AgentID: agentid.Human},
			{StartByte: 5, EndByte: 10, AgentID: claude},
		},
	}
	n.Files["b.rs"] = FileAttribution{NoAdditions: true, ContentHash: "hash2"}
	n.Prompts["p1"] = agentid.PromptRecord{AgentID: claude, FirstSeenTS: 100}
	n.Prompts["p2"] = agentid.PromptRecord{AgentID: claude, FirstSeenTS: 200}
	return n
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	n := sampleNote()
	data, err := Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Authorship: "+SchemaVersion)
	assert.Contains(t, string(data), "\n---\n")

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, n.CommitSHA, got.CommitSHA)
	assert.Equal(t, n.Author, got.Author)
	assert.Equal(t, n.ParentSHAs, got.ParentSHAs)
	require.Contains(t, got.Files, "a.rs")
	assert.Equal(t, n.Files["a.rs"].ContentHash, got.Files["a.rs"].ContentHash)
	assert.True(t, got.Files["b.rs"].NoAdditions)
}

func TestUnmarshalWithoutAttestationBlock(t *testing.T) {
	n := New("sha1", "someone", nil)
	raw := []byte(`{"schema_version":"authorship/3.0.0","commit_sha":"sha1","author":"someone","files":{},"prompts":{}}`)
	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, n.CommitSHA, got.CommitSHA)
}

func TestPrunePromptsDropsUnreferenced(t *testing.T) {
	n := sampleNote()
	require.Len(t, n.Prompts, 2)
	n.PrunePrompts()
	assert.Contains(t, n.Prompts, "p1")
	assert.NotContains(t, n.Prompts, "p2")
}

func TestPercentagesComputesAgentShare(t *testing.T) {
	n := sampleNote()
	pct := n.Percentages()
	assert.InDelta(t, 50.0, pct["a.rs"], 0.001)
	assert.Equal(t, 0.0, pct["b.rs"])
}

func TestPercentagesEmptyFileIsZero(t *testing.T) {
	n := New("sha", "x", nil)
	n.Files["empty.rs"] = FileAttribution{}
	pct := n.Percentages()
	assert.Equal(t, 0.0, pct["empty.rs"])
}

func TestAttestationBlockListsFilesSorted(t *testing.T) {
	n := sampleNote()
	data, err := Marshal(n)
	require.NoError(t, err)
	body := string(data)
	aIdx := indexOf(body, "File: a.rs")
	bIdx := indexOf(body, "File: b.rs (no additions)")
	require.GreaterOrEqual(t, aIdx, 0)
	require.GreaterOrEqual(t, bIdx, 0)
	assert.Less(t, aIdx, bIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
