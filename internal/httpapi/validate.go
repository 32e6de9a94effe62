package httpapi

import (
	"github.com/google/uuid"

	apperrors "github.com/loominal/weft/internal/common/errors"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

func validAgentType(t v1.AgentType) bool {
	switch t {
	case "", v1.AgentCopilotCLI, v1.AgentClaudeCode:
		return true
	default:
		return false
	}
}

// validatePriority enforces the [1,10] integer range, defaulting 0 to
// "unset" (the coordinator stamps its own default of 5).
func validatePriority(p int) error {
	if p == 0 {
		return nil
	}
	if p < 1 || p > 10 {
		return apperrors.BadRequest("priority must be an integer in [1,10]")
	}
	return nil
}

func validateBoundary(boundary string) error {
	if boundary == "" {
		return apperrors.BadRequest("boundary must be a non-empty string")
	}
	return nil
}

// ensureTaskID generates a fresh id when the caller omitted one.
func ensureTaskID(taskID string) string {
	if taskID != "" {
		return taskID
	}
	return uuid.NewString()
}
