package mechanism

import (
	"context"
	"runtime"
	"testing"

	"github.com/loominal/weft/internal/target"
	v1 "github.com/loominal/weft/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSpinUpSuccess(t *testing.T) {
	cmd := "true"
	if runtime.GOOS == "windows" {
		t.Skip("local mechanism test assumes a POSIX shell")
	}

	l := Local{Command: cmd}
	result, err := l.SpinUp(context.Background(), target.SpinUpRequest{AgentType: v1.AgentClaudeCode})
	require.NoError(t, err)
	assert.Equal(t, v1.SpinUpSuccess, result.Outcome)
	require.NotNil(t, result.Agent)
	assert.Equal(t, v1.AgentClaudeCode, result.Agent.AgentType)
}

func TestLocalSpinUpFailureOnMissingCommand(t *testing.T) {
	l := Local{Command: "/no/such/weft-test-binary"}
	result, err := l.SpinUp(context.Background(), target.SpinUpRequest{})
	require.NoError(t, err)
	assert.Equal(t, v1.SpinUpFailure, result.Outcome)
	assert.NotEmpty(t, result.Error)
}

func TestLocalSatisfiesMechanismInterface(t *testing.T) {
	var _ target.Mechanism = Local{}
}
