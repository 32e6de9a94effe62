// Package batch implements batch operation semantics (C10): resolve a
// selection (explicit ids or a filter), apply a per-item operation, and
// report a partial-failure result map. Per-item failures never abort
// the batch.
package batch

import (
	"time"

	apperrors "github.com/loominal/weft/internal/common/errors"
)

// Selection is exactly one of Ids or (a non-nil) Filter, validated by
// ResolveSelection.
type Selection struct {
	IDs    []string
	Filter map[string]string
}

// ResolveSelection enforces that exactly one of ids/filter is present.
// When a filter is given, resolve is called to run the corresponding
// list query and produce the candidate id set.
func ResolveSelection(ids []string, filter map[string]string, resolve func(map[string]string) []string) ([]string, error) {
	hasIDs := len(ids) > 0
	hasFilter := len(filter) > 0

	if !hasIDs && !hasFilter {
		return nil, apperrors.BadRequest("either filter or ids must be provided")
	}
	if hasIDs && hasFilter {
		return nil, apperrors.BadRequest("provide either filter or ids, not both")
	}
	if hasFilter {
		return resolve(filter), nil
	}
	return ids, nil
}

// Result is the generic partial-failure report shape every batch
// endpoint returns, augmented with operation-specific fields by the
// caller.
type Result struct {
	Success        []string          `json:"success"`
	Failed         []string          `json:"failed"`
	Count          int               `json:"count"`
	Errors         map[string]string `json:"errors"`
	TotalProcessed int               `json:"totalProcessed"`
	SuccessRate    float64           `json:"successRate"`
	CompletedAt    time.Time         `json:"completedAt"`
}

// Apply runs op against every id in ids, recording success/failure per
// item without ever aborting the batch.
func Apply(ids []string, op func(id string) error) Result {
	result := Result{Errors: make(map[string]string)}

	for _, id := range ids {
		if err := op(id); err != nil {
			result.Failed = append(result.Failed, id)
			result.Errors[id] = err.Error()
			continue
		}
		result.Success = append(result.Success, id)
	}

	result.Count = len(result.Success)
	result.TotalProcessed = len(ids)
	result.CompletedAt = time.Now().UTC()
	if result.TotalProcessed > 0 {
		result.SuccessRate = 100 * float64(result.Count) / float64(result.TotalProcessed)
	}
	return result
}
