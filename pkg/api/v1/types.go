// Package v1 holds the wire types shared between the core and the
// external HTTP/WebSocket surface.
package v1

import "time"

// WorkStatus is the closed set of work item lifecycle states.
type WorkStatus string

const (
	WorkPending    WorkStatus = "pending"
	WorkAssigned   WorkStatus = "assigned"
	WorkInProgress WorkStatus = "in-progress"
	WorkCompleted  WorkStatus = "completed"
	WorkFailed     WorkStatus = "failed"
	WorkCancelled  WorkStatus = "cancelled"
)

func (s WorkStatus) Terminal() bool {
	switch s {
	case WorkCompleted, WorkFailed, WorkCancelled:
		return true
	default:
		return false
	}
}

// AgentType is the closed set of agent kinds.
type AgentType string

const (
	AgentCopilotCLI AgentType = "copilot-cli"
	AgentClaudeCode AgentType = "claude-code"
)

// AgentStatus is the closed set of agent states.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// TargetStatus is the closed set of target states.
type TargetStatus string

const (
	TargetAvailable TargetStatus = "available"
	TargetInUse     TargetStatus = "in-use"
	TargetDisabled  TargetStatus = "disabled"
)

// TargetHealth is the closed set of target health states.
type TargetHealth string

const (
	HealthUnknown   TargetHealth = "unknown"
	HealthHealthy   TargetHealth = "healthy"
	HealthUnhealthy TargetHealth = "unhealthy"
)

// SpinUpOutcome is the closed set of spin-up results.
type SpinUpOutcome string

const (
	SpinUpSuccess SpinUpOutcome = "success"
	SpinUpFailure SpinUpOutcome = "failure"
)

// AgentSummary is the minimal agent view joined onto work events.
type AgentSummary struct {
	GUID      string    `json:"guid"`
	Handle    string    `json:"handle,omitempty"`
	AgentType AgentType `json:"agentType"`
	Hostname  string    `json:"hostname,omitempty"`
}

// WorkResult is the immutable result payload stored on completion.
type WorkResult struct {
	Summary     string    `json:"summary,omitempty"`
	Output      any       `json:"output,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// WorkError is the immutable error payload stored on failure.
type WorkError struct {
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// WorkItem is the core unit of routable work.
type WorkItem struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"taskId"`
	Description     string         `json:"description"`
	Capability      string         `json:"capability"`
	Boundary        string         `json:"boundary"`
	Priority        int            `json:"priority"`
	Deadline        *time.Time     `json:"deadline,omitempty"`
	ContextData     map[string]any `json:"contextData,omitempty"`
	Status          WorkStatus     `json:"status"`
	OfferedAt       time.Time      `json:"offeredAt"`
	AssignedAt      *time.Time     `json:"assignedAt,omitempty"`
	AssignedTo      *string        `json:"assignedTo,omitempty"`
	AssignedToAgent *AgentSummary  `json:"assignedToAgent,omitempty"`
	Attempts        int            `json:"attempts"`
	Progress        int            `json:"progress"`
	Result          *WorkResult    `json:"result,omitempty"`
	Error           *WorkError     `json:"error,omitempty"`
}

// Agent is a registered worker process.
type Agent struct {
	GUID             string      `json:"guid"`
	Handle           string      `json:"handle,omitempty"`
	AgentType        AgentType   `json:"agentType"`
	Hostname         string      `json:"hostname,omitempty"`
	Capabilities     []string    `json:"capabilities"`
	Boundaries       []string    `json:"boundaries"`
	Status           AgentStatus `json:"status"`
	CurrentTaskCount int         `json:"currentTaskCount"`
	RegisteredAt     time.Time   `json:"registeredAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// LastSpinUp records the outcome of the most recent spin-up attempt.
type LastSpinUp struct {
	Time       time.Time     `json:"time"`
	Outcome    SpinUpOutcome `json:"outcome"`
	Agent      *AgentSummary `json:"agent,omitempty"`
	WorkItemID *string       `json:"workItemId,omitempty"`
	Error      *string       `json:"error,omitempty"`
}

// Target is a declarative handle to an agent spin-up mechanism.
type Target struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	AgentType    AgentType     `json:"agentType"`
	Capabilities []string      `json:"capabilities"`
	Boundaries   []string      `json:"boundaries"`
	Mechanism    string        `json:"mechanism"`
	Status       TargetStatus  `json:"status"`
	Health       TargetHealth  `json:"health"`
	LastSpinUp   *LastSpinUp   `json:"lastSpinUp,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// AgentStats summarizes the agent registry for the stats snapshot.
type AgentStats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"byType"`
	ByStatus map[string]int `json:"byStatus"`
}

// WorkStats summarizes the work coordinator for the stats snapshot.
type WorkStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// TargetStats summarizes the target registry for the stats snapshot.
type TargetStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"inUse"`
	Disabled  int `json:"disabled"`
}

// WebSocketStats summarizes the hub for the stats snapshot.
type WebSocketStats struct {
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// StatsSnapshot is the fixed shape pushed to "stats" subscribers and
// served by GET /api/stats.
type StatsSnapshot struct {
	Agents    AgentStats     `json:"agents"`
	Work      WorkStats      `json:"work"`
	Targets   TargetStats    `json:"targets"`
	WebSocket WebSocketStats `json:"websocket"`
}
