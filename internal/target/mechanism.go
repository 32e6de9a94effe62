// Package target implements the Target Registry (C8): a declarative,
// by-id map (with a secondary by-name index) of spin-up targets, plus
// the pluggable mechanism interface spec.md describes but deliberately
// leaves external to the core.
package target

import (
	"context"

	v1 "github.com/loominal/weft/pkg/api/v1"
)

// SpinUpRequest carries what a Mechanism needs to attempt a spin-up.
type SpinUpRequest struct {
	TargetID     string
	TargetName   string
	AgentType    v1.AgentType
	Capabilities []string
	Boundaries   []string
	WorkItemID   *string
}

// SpinUpResult is what a Mechanism reports back to the registry via
// RecordSpinUpOutcome.
type SpinUpResult struct {
	Outcome v1.SpinUpOutcome
	Agent   *v1.AgentSummary
	Error   string
}

// Mechanism is the pluggable spawn strategy a Target names. spec.md
// treats this boundary as an external collaborator; concrete
// implementations (local, docker) live under ./mechanism.
type Mechanism interface {
	Name() string
	SpinUp(ctx context.Context, req SpinUpRequest) (SpinUpResult, error)
}
