package agent

import (
	"encoding/json"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// State is the observer view of one agent.
type State struct {
	Role       blackboard.Role `json:"role"`
	Status     Status          `json:"status"`
	Context    Context         `json:"context"`
	MemorySize int             `json:"memory_size"`
	Processed  int             `json:"processed"`
	LastError  string          `json:"last_error,omitempty"`
}

// Context is the role-specific part of an agent's state. The set of
// implementations is closed.
type Context interface {
	contextKind() string
}

// DirectorContext describes the project the Director is driving.
type DirectorContext struct {
	ProjectID      string                   `json:"project_id,omitempty"`
	Stage          blackboard.Stage         `json:"stage,omitempty"`
	Health         blackboard.ProjectHealth `json:"health,omitempty"`
	AwaitingTaskID string                   `json:"awaiting_task_id,omitempty"`
	AwaitingRole   blackboard.Role          `json:"awaiting_role,omitempty"`
	CompletedTasks int                      `json:"completed_tasks"`
	StaleDiscarded int                      `json:"stale_discarded"`
}

// GeneratorContext describes a generation agent's learning state.
type GeneratorContext struct {
	TaskType       blackboard.TaskType `json:"task_type"`
	Weights        map[string]float64  `json:"weights"`
	Preferred      []string            `json:"preferred"`
	LastStrategy   string              `json:"last_strategy,omitempty"`
	TasksCompleted int                 `json:"tasks_completed"`
	Fallbacks      int                 `json:"fallbacks"`
	FeedbackCount  int                 `json:"feedback_count"`
}

func (DirectorContext) contextKind() string  { return "director" }
func (GeneratorContext) contextKind() string { return "generator" }

// MarshalJSON tags the context with its kind so consumers can decode it.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	out := struct {
		plain
		ContextKind string `json:"context_kind,omitempty"`
	}{plain: plain(s)}
	if s.Context != nil {
		out.ContextKind = s.Context.contextKind()
	}
	return json.Marshal(out)
}
