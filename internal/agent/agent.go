// Package agent provides the state model shared by every Atelier agent: the
// status lifecycle, the bounded memory log and the scoped dispatch that
// guarantees an agent is never left in the working state.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// DefaultMemoryLimit is the number of messages an agent keeps in its log.
const DefaultMemoryLimit = 100

// Status is the externally visible lifecycle state of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusWaiting Status = "waiting"
	StatusError   Status = "error"
)

// Agent is implemented by the Director and every generation agent.
type Agent interface {
	Role() blackboard.Role

	// Initialize prepares role-specific resources. Must be idempotent.
	Initialize(ctx context.Context) error

	// Process handles one message. A nil reply means "no reply".
	Process(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error)

	// State returns a point-in-time snapshot for observers.
	State() State

	// MarkError records a failure raised while processing and parks the
	// agent in the error status until Reset.
	MarkError(err error)

	// Reset clears the error status.
	Reset()
}

// Handler receives messages after Base has recorded them, one method per
// message type.
type Handler interface {
	HandleRequest(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error)
	HandleResponse(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error)
	HandleUpdate(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error)
	HandleFeedback(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error)
}

// Base holds the state every agent shares. Embed it and call Dispatch from
// Process.
type Base struct {
	role        blackboard.Role
	memoryLimit int

	mu        sync.Mutex
	status    Status
	awaiting  bool
	memory    []blackboard.Message
	processed int
	lastErr   string
}

// NewBase creates the shared state for an agent. A non-positive memoryLimit
// selects DefaultMemoryLimit.
func NewBase(role blackboard.Role, memoryLimit int) *Base {
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}
	return &Base{
		role:        role,
		memoryLimit: memoryLimit,
		status:      StatusIdle,
	}
}

// Role returns the agent's bus address.
func (b *Base) Role() blackboard.Role {
	return b.role
}

// Dispatch records msg, marks the agent working and routes the message to
// the handler for its type. The working status is released on every exit
// path, panics included.
func (b *Base) Dispatch(ctx context.Context, msg blackboard.Message, h Handler) (*blackboard.Message, error) {
	b.begin(msg)
	defer b.release()

	switch msg.Type() {
	case blackboard.MessageTypeRequest:
		return h.HandleRequest(ctx, msg)
	case blackboard.MessageTypeResponse:
		return h.HandleResponse(ctx, msg)
	case blackboard.MessageTypeUpdate:
		return h.HandleUpdate(ctx, msg)
	case blackboard.MessageTypeFeedback:
		return h.HandleFeedback(ctx, msg)
	default:
		return nil, nil
	}
}

func (b *Base) begin(msg blackboard.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.memory = append(b.memory, msg)
	if over := len(b.memory) - b.memoryLimit; over > 0 {
		// Drop the oldest entries; copy so the backing array doesn't grow forever
		b.memory = append([]blackboard.Message(nil), b.memory[over:]...)
	}
	b.processed++
	b.status = StatusWorking
}

func (b *Base) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != StatusWorking {
		return
	}
	if b.awaiting {
		b.status = StatusWaiting
	} else {
		b.status = StatusIdle
	}
}

// SetAwaiting controls whether the agent rests in the waiting status
// (outstanding work elsewhere) or idle between messages.
func (b *Base) SetAwaiting(awaiting bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.awaiting = awaiting
	switch {
	case b.status == StatusIdle && awaiting:
		b.status = StatusWaiting
	case b.status == StatusWaiting && !awaiting:
		b.status = StatusIdle
	}
}

// MarkError implements Agent.
func (b *Base) MarkError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status = StatusError
	if err != nil {
		b.lastErr = err.Error()
	}
}

// Reset implements Agent.
func (b *Base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != StatusError {
		return
	}
	b.lastErr = ""
	if b.awaiting {
		b.status = StatusWaiting
	} else {
		b.status = StatusIdle
	}
}

// Status returns the current status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Memory returns a copy of the message log, oldest first.
func (b *Base) Memory() []blackboard.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]blackboard.Message(nil), b.memory...)
}

// Snapshot builds a State around the role-specific context.
func (b *Base) Snapshot(c Context) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return State{
		Role:       b.role,
		Status:     b.status,
		Context:    c,
		MemorySize: len(b.memory),
		Processed:  b.processed,
		LastError:  b.lastErr,
	}
}

// UnexpectedActionError is returned by handlers that receive an action they
// do not understand for the given message type.
type UnexpectedActionError struct {
	Role   blackboard.Role
	Type   blackboard.MessageType
	Action string
}

func (e *UnexpectedActionError) Error() string {
	return fmt.Sprintf("%s cannot handle %s/%s", e.Role, e.Type, e.Action)
}
