package subscription

import (
	"github.com/loominal/weft/internal/events"
)

// Matches implements the topic-specific filter predicates of spec.md
// §4.3. No filter (nil/empty) matches everything on the topic.
func Matches(topic string, filter Filter, e *events.Event) bool {
	if len(filter) == 0 {
		return true
	}
	switch topic {
	case TopicWork:
		return matchesWork(filter, e)
	case TopicAgents:
		return matchesAgents(filter, e)
	case TopicTargets:
		return matchesTargets(filter, e)
	default:
		return true
	}
}

func matchesWork(filter Filter, e *events.Event) bool {
	if want, ok := filter["status"]; ok {
		if workStatusBucket(e.Type) != want {
			return false
		}
	}
	for _, field := range []string{"capability", "boundary", "taskId", "assignedTo"} {
		if want, ok := filter[field]; ok {
			if stringField(e, field) != want {
				return false
			}
		}
	}
	return true
}

// workStatusBucket maps a work event kind to the status bucket the
// "status" predicate matches against.
func workStatusBucket(kind events.Kind) string {
	switch kind {
	case events.KindWorkSubmitted:
		return "pending"
	case events.KindWorkAssigned:
		return "assigned"
	case events.KindWorkStarted, events.KindWorkProgress:
		return "in-progress"
	case events.KindWorkCompleted:
		return "completed"
	case events.KindWorkFailed:
		return "failed"
	case events.KindWorkCancelled:
		return "cancelled"
	default:
		return ""
	}
}

func matchesAgents(filter Filter, e *events.Event) bool {
	if want, ok := filter["agentType"]; ok {
		if stringField(e, "agentType") != want {
			return false
		}
	}
	if want, ok := filter["status"]; ok {
		if agentEffectiveStatus(e) != want {
			return false
		}
	}
	if want, ok := filter["guid"]; ok {
		if stringField(e, "guid") != want {
			return false
		}
	}
	if want, ok := filter["capability"]; ok {
		if !setContains(e, "capabilities", want) {
			return false
		}
	}
	if want, ok := filter["boundary"]; ok {
		if !setContains(e, "boundaries", want) {
			return false
		}
	}
	return true
}

func agentEffectiveStatus(e *events.Event) string {
	switch e.Type {
	case events.KindAgentRegistered:
		return stringField(e, "status")
	case events.KindAgentUpdated:
		return stringField(e, "newStatus")
	case events.KindAgentShutdown:
		return "offline"
	default:
		return ""
	}
}

func matchesTargets(filter Filter, e *events.Event) bool {
	for _, field := range []string{"agentType", "mechanism", "targetId"} {
		if want, ok := filter[field]; ok {
			if stringField(e, field) != want {
				return false
			}
		}
	}
	if want, ok := filter["status"]; ok {
		if targetEffectiveStatus(e) != want {
			return false
		}
	}
	if want, ok := filter["capability"]; ok {
		if !setContains(e, "capabilities", want) {
			return false
		}
	}
	if want, ok := filter["boundary"]; ok {
		if !setContains(e, "boundaries", want) {
			return false
		}
	}
	return true
}

func targetEffectiveStatus(e *events.Event) string {
	switch e.Type {
	case events.KindTargetRegistered:
		return "available"
	case events.KindTargetDisabled:
		return "disabled"
	case events.KindTargetUpdated:
		return stringField(e, "newStatus")
	default:
		return ""
	}
}

func stringField(e *events.Event, key string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

func setContains(e *events.Event, key, want string) bool {
	if e.Data == nil {
		return false
	}
	switch set := e.Data[key].(type) {
	case []string:
		for _, v := range set {
			if v == want {
				return true
			}
		}
	case map[string]struct{}:
		_, ok := set[want]
		return ok
	}
	return false
}
