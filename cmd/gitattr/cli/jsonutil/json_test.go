package jsonutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIndentWithNewlineEndsWithNewline(t *testing.T) {
	data, err := MarshalIndentWithNewline(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
	assert.Contains(t, string(data), "\"a\": 1")
}

func TestMarshalCompactNoTrailingNewline(t *testing.T) {
	data, err := MarshalCompact(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(string(data), "\n"))
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestMarshalIndentWithNewlineDoesNotEscapeHTML(t *testing.T) {
	data, err := MarshalIndentWithNewline(map[string]string{"url": "https://a.com/x&y"}, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), "&y")
	assert.NotContains(t, string(data), "\\u0026")
}
