// Package mechanism provides concrete Mechanism implementations for the
// Target Registry's pluggable spin-up interface.
package mechanism

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"

	"github.com/loominal/weft/internal/target"
	v1 "github.com/loominal/weft/pkg/api/v1"
)

// Local spins up a local OS process. It requires no external service and
// is the default mechanism for targets declared with mechanism:"local".
type Local struct {
	// Command is the executable to run for every spin-up; Args are
	// appended as-is. Tests typically point this at something like
	// "true" or "sleep".
	Command string
	Args    []string
}

func (Local) Name() string { return "local" }

func (l Local) SpinUp(ctx context.Context, req target.SpinUpRequest) (target.SpinUpResult, error) {
	cmd := exec.CommandContext(ctx, l.Command, l.Args...)
	if err := cmd.Start(); err != nil {
		return target.SpinUpResult{Outcome: v1.SpinUpFailure, Error: err.Error()}, nil
	}

	guid := uuid.New().String()
	go func() { _ = cmd.Wait() }()

	return target.SpinUpResult{
		Outcome: v1.SpinUpSuccess,
		Agent: &v1.AgentSummary{
			GUID:      guid,
			Handle:    fmt.Sprintf("local-%s", guid[:8]),
			AgentType: req.AgentType,
		},
	}, nil
}
