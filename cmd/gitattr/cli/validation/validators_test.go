package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBaseSHA(t *testing.T) {
	assert.NoError(t, ValidateBaseSHA("abc1234"))
	assert.NoError(t, ValidateBaseSHA("0123456789abcdef0123456789abcdef01234567"[:40]))
	assert.Error(t, ValidateBaseSHA(""))
	assert.Error(t, ValidateBaseSHA("short"))
	assert.Error(t, ValidateBaseSHA("nothexnothexn"))
	assert.Error(t, ValidateBaseSHA("../../etc/passwd"))
}

func TestValidatePromptID(t *testing.T) {
	assert.NoError(t, ValidatePromptID("abc123_-XYZ"))
	assert.Error(t, ValidatePromptID(""))
	assert.Error(t, ValidatePromptID("../escape"))
	assert.Error(t, ValidatePromptID("has/slash"))
}

func TestValidateCheckpointID(t *testing.T) {
	assert.NoError(t, ValidateCheckpointID("aaaaaaaaaaaa"))
	assert.Error(t, ValidateCheckpointID(""))
	assert.Error(t, ValidateCheckpointID("../etc"))
}

func TestValidateAgentTool(t *testing.T) {
	assert.NoError(t, ValidateAgentTool("claude_code"))
	assert.Error(t, ValidateAgentTool(""))
}
