// Package validation holds small guard functions for identifiers that end
// up embedded in filesystem paths, so a malformed value can never escape
// its intended directory.
package validation

import (
	"fmt"
	"regexp"
)

var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateBaseSHA rejects anything that isn't a plausible hex commit SHA,
// since base SHAs are used directly as directory names under working_logs/.
func ValidateBaseSHA(sha string) error {
	if sha == "" {
		return fmt.Errorf("base sha is empty")
	}
	if len(sha) < 7 || len(sha) > 40 {
		return fmt.Errorf("base sha %q has invalid length", sha)
	}
	for _, r := range sha {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return fmt.Errorf("base sha %q is not hex", sha)
		}
	}
	return nil
}

// ValidatePromptID rejects prompt IDs containing path separators.
func ValidatePromptID(id string) error {
	if id == "" {
		return fmt.Errorf("prompt id is empty")
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("prompt id %q contains unsafe characters", id)
	}
	return nil
}

// ValidateCheckpointID rejects checkpoint IDs containing path separators.
func ValidateCheckpointID(id string) error {
	if id == "" {
		return fmt.Errorf("checkpoint id is empty")
	}
	if !pathSafeRegex.MatchString(id) {
		return fmt.Errorf("checkpoint id %q contains unsafe characters", id)
	}
	return nil
}

// ValidateAgentTool rejects an empty tool name; anything else is accepted
// since tool names come from external, evolving agent integrations.
func ValidateAgentTool(tool string) error {
	if tool == "" {
		return fmt.Errorf("agent tool is empty")
	}
	return nil
}
