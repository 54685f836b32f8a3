package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDMatchesPattern(t *testing.T) {
	id, err := NewID()
	require.NoError(t, err)
	assert.NoError(t, id.Validate())
	assert.False(t, id.IsEmpty())
	assert.Len(t, string(id), 12)
}

func TestIDValidateRejectsGarbage(t *testing.T) {
	assert.Error(t, ID("not-hex").Validate())
	assert.Error(t, EmptyID.Validate())
	assert.True(t, EmptyID.IsEmpty())
}

func TestIDPathShards(t *testing.T) {
	assert.Equal(t, "ab/cdef01234567", ID("abcdef01234567").Path())
	assert.Equal(t, "a", ID("a").Path())
}
