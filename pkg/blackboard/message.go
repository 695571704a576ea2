package blackboard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType is the first-level tag of a message. Agents dispatch on it
// before looking at the action.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeUpdate   MessageType = "update"
	MessageTypeFeedback MessageType = "feedback"
)

// Validate checks if the MessageType is a valid enum value.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeUpdate, MessageTypeFeedback:
		return nil
	default:
		return fmt.Errorf("unknown message type: %q", mt)
	}
}

// Action is the second-level tag: the typed payload of a message.
// The set of actions is closed; handlers switch on the concrete type.
type Action interface {
	ActionName() string
	isAction()
}

const (
	ActionCreateProject        = "create_project"
	ActionAssignTask           = "assign_task"
	ActionTaskCompleted        = "task_completed"
	ActionTaskFailed           = "task_failed"
	ActionProvideFeedback      = "provide_feedback"
	ActionFeedbackAcknowledged = "feedback_acknowledged"
	ActionStageChanged         = "stage_changed"
)

// CreateProject asks the Director to start a new project.
// ProjectID may be empty; the Director assigns one.
type CreateProject struct {
	ProjectID string `json:"project_id,omitempty"`
	Brief     Brief  `json:"brief"`
}

// AssignTask hands a stage's task to a generation agent.
type AssignTask struct {
	ProjectID string `json:"project_id"`
	Task      Task   `json:"task"`
	Brief     Brief  `json:"brief"`
}

// TaskCompleted reports a finished task back to the Director.
type TaskCompleted struct {
	ProjectID string     `json:"project_id"`
	TaskID    string     `json:"task_id"`
	TaskType  TaskType   `json:"task_type"`
	Result    TaskResult `json:"result"`
}

// TaskFailed reports that an agent could not produce any result.
type TaskFailed struct {
	ProjectID string   `json:"project_id"`
	TaskID    string   `json:"task_id"`
	TaskType  TaskType `json:"task_type"`
	Reason    string   `json:"reason"`
}

// FeedbackEntry rates the strategy one agent used. Rating is on a 0-10 scale.
type FeedbackEntry struct {
	Role     Role    `json:"role"`
	Strategy string  `json:"strategy"`
	Rating   float64 `json:"rating"`
}

// ProvideFeedback carries ratings for one or more agents. Each agent only
// applies the entries addressed to its own role.
type ProvideFeedback struct {
	ProjectID string          `json:"project_id,omitempty"`
	Entries   []FeedbackEntry `json:"entries"`
}

// FeedbackAcknowledged is an agent's reply after applying feedback.
type FeedbackAcknowledged struct {
	Role      Role     `json:"role"`
	Strategy  string   `json:"strategy"`
	NewWeight float64  `json:"new_weight"`
	Preferred []string `json:"preferred"`
}

// StageChanged is an update broadcast describing a project transition.
type StageChanged struct {
	ProjectID string        `json:"project_id"`
	From      Stage         `json:"from"`
	To        Stage         `json:"to"`
	Health    ProjectHealth `json:"health"`
}

func (CreateProject) ActionName() string        { return ActionCreateProject }
func (AssignTask) ActionName() string           { return ActionAssignTask }
func (TaskCompleted) ActionName() string        { return ActionTaskCompleted }
func (TaskFailed) ActionName() string           { return ActionTaskFailed }
func (ProvideFeedback) ActionName() string      { return ActionProvideFeedback }
func (FeedbackAcknowledged) ActionName() string { return ActionFeedbackAcknowledged }
func (StageChanged) ActionName() string         { return ActionStageChanged }

func (CreateProject) isAction()        {}
func (AssignTask) isAction()           {}
func (TaskCompleted) isAction()        {}
func (TaskFailed) isAction()           {}
func (ProvideFeedback) isAction()      {}
func (FeedbackAcknowledged) isAction() {}
func (StageChanged) isAction()         {}

// Message is the immutable unit of inter-agent communication. Fields are
// only reachable through accessors; recipients may keep the value in their
// own log but cannot alter the instance other recipients see.
type Message struct {
	id        string
	from      Role
	to        Role
	kind      MessageType
	action    Action
	timestamp time.Time
}

// NewMessage builds a message. An empty `to` makes it a broadcast.
func NewMessage(from, to Role, kind MessageType, action Action) Message {
	return Message{
		id:        uuid.New().String(),
		from:      from,
		to:        to,
		kind:      kind,
		action:    action,
		timestamp: time.Now(),
	}
}

// NewRequest builds a point-to-point request.
func NewRequest(from, to Role, action Action) Message {
	return NewMessage(from, to, MessageTypeRequest, action)
}

// NewBroadcast builds a message delivered to every registered agent.
func NewBroadcast(from Role, kind MessageType, action Action) Message {
	return NewMessage(from, "", kind, action)
}

// NewCreateProjectMessage builds the broadcast that starts a project.
func NewCreateProjectMessage(brief Brief) Message {
	return NewBroadcast(RoleExternal, MessageTypeRequest, CreateProject{
		ProjectID: uuid.New().String(),
		Brief:     brief,
	})
}

// Reply builds a message from `from` back to the sender of m.
func (m Message) Reply(from Role, kind MessageType, action Action) Message {
	return NewMessage(from, m.from, kind, action)
}

func (m Message) ID() string           { return m.id }
func (m Message) From() Role           { return m.from }
func (m Message) To() Role             { return m.to }
func (m Message) Type() MessageType    { return m.kind }
func (m Message) Action() Action       { return m.action }
func (m Message) Timestamp() time.Time { return m.timestamp }
func (m Message) IsBroadcast() bool    { return m.to == "" }

// Validate checks that the message can be routed.
func (m Message) Validate() error {
	if m.id == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if err := m.kind.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	if m.action == nil {
		return fmt.Errorf("message %s has no action", m.id)
	}
	return nil
}

// String is used in log lines.
func (m Message) String() string {
	to := string(m.to)
	if to == "" {
		to = "*"
	}
	action := "<nil>"
	if m.action != nil {
		action = m.action.ActionName()
	}
	return fmt.Sprintf("%s %s→%s %s/%s", shortID(m.id), m.from, to, m.kind, action)
}

// MessageEvent is the wire form of a message on the message events channel.
type MessageEvent struct {
	ID          string          `json:"id"`
	From        Role            `json:"from"`
	To          Role            `json:"to,omitempty"`
	Type        MessageType     `json:"type"`
	Action      string          `json:"action"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMs int64           `json:"timestamp_ms"`
}

// Event converts the message to its wire form.
func (m Message) Event() (*MessageEvent, error) {
	if m.action == nil {
		return nil, fmt.Errorf("message %s has no action", m.id)
	}
	payload, err := json.Marshal(m.action)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.action.ActionName(), err)
	}
	return &MessageEvent{
		ID:          m.id,
		From:        m.from,
		To:          m.to,
		Type:        m.kind,
		Action:      m.action.ActionName(),
		Payload:     payload,
		TimestampMs: m.timestamp.UnixMilli(),
	}, nil
}

// MarshalJSON encodes the message in its event form.
func (m Message) MarshalJSON() ([]byte, error) {
	ev, err := m.Event()
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
