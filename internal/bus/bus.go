// Package bus routes messages between the agents of one project set.
//
// Send is synchronous: it returns only after every reply triggered by the
// message, and every reply to those replies, has been routed. Agent errors
// and panics are contained at the bus boundary; the agent is marked as
// errored and routing continues with the remaining recipients.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/atelier/internal/agent"
	"github.com/dyluth/atelier/pkg/blackboard"
)

// DefaultMaxDepth bounds reply chains. The longest legitimate chain is the
// full pipeline (create, four assign/complete pairs, feedback) so this is
// generous.
const DefaultMaxDepth = 32

var (
	// ErrDuplicateRole is returned when a role is registered twice.
	ErrDuplicateRole = errors.New("role already registered")

	// ErrInvalidMessage is returned by Send for messages failing validation.
	ErrInvalidMessage = errors.New("invalid message")
)

// MessageObserver sees every message the bus routes, in routing order.
// Observers are called with the bus lock held and must not call Send.
type MessageObserver interface {
	ObserveMessage(ctx context.Context, msg blackboard.Message)
}

// ObserverFunc adapts a function to MessageObserver.
type ObserverFunc func(ctx context.Context, msg blackboard.Message)

func (f ObserverFunc) ObserveMessage(ctx context.Context, msg blackboard.Message) {
	f(ctx, msg)
}

// Stats counts routing outcomes since the bus was created.
type Stats struct {
	Routed        int `json:"routed"`
	Delivered     int `json:"delivered"`
	Dropped       int `json:"dropped"`
	Failures      int `json:"failures"`
	DepthExceeded int `json:"depth_exceeded"`
}

// Bus is an in-process message router keyed by agent role.
type Bus struct {
	maxDepth  int
	observers []MessageObserver

	// sendMu serializes Send so a reaction chain is never interleaved with
	// another.
	sendMu sync.Mutex

	mu     sync.RWMutex
	agents map[blackboard.Role]agent.Agent
	order  []blackboard.Role
	stats  Stats
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(b *Bus) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// WithObserver adds a MessageObserver.
func WithObserver(o MessageObserver) Option {
	return func(b *Bus) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		maxDepth: DefaultMaxDepth,
		agents:   make(map[blackboard.Role]agent.Agent),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register initializes a and adds it to the bus. Roles are unique.
func (b *Bus) Register(ctx context.Context, a agent.Agent) error {
	role := a.Role()
	if err := role.Validate(); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	b.mu.RLock()
	_, exists := b.agents[role]
	b.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, role)
	}

	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", role, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[role]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, role)
	}
	b.agents[role] = a
	b.order = append(b.order, role)

	log.Printf("[Bus] Registered %s", role)
	return nil
}

// Roles returns the registered roles in registration order.
func (b *Bus) Roles() []blackboard.Role {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]blackboard.Role(nil), b.order...)
}

// Agent returns the agent registered for role.
func (b *Bus) Agent(role blackboard.Role) (agent.Agent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.agents[role]
	return a, ok
}

// Send routes msg and every reply it triggers. It returns an error only for
// messages that cannot be routed at all; agent failures are contained.
func (b *Bus) Send(ctx context.Context, msg blackboard.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.route(ctx, msg, 0)
	return nil
}

func (b *Bus) route(ctx context.Context, msg blackboard.Message, depth int) {
	if depth > b.maxDepth {
		log.Printf("[Bus] Dropping %s: reply chain exceeded depth %d", msg, b.maxDepth)
		b.count(func(s *Stats) { s.DepthExceeded++; s.Dropped++ })
		return
	}

	b.count(func(s *Stats) { s.Routed++ })
	for _, o := range b.observers {
		o.ObserveMessage(ctx, msg)
	}

	recipients, dropped := b.recipients(msg)
	if dropped {
		b.count(func(s *Stats) { s.Dropped++ })
	}
	for _, recipient := range recipients {
		reply, err := b.deliver(ctx, recipient, msg)
		if err != nil {
			b.fail(recipient, msg, err)
			if failed, ok := taskFailedFor(recipient.Role(), msg, err); ok {
				b.route(ctx, failed, depth+1)
			}
			continue
		}
		if reply != nil {
			b.route(ctx, *reply, depth+1)
		}
	}
}

// recipients resolves the delivery list. Broadcasts reach every registered
// agent, the sender included; agents in error status receive nothing until
// reset. dropped reports a
// point-to-point message with nowhere to go.
func (b *Bus) recipients(msg blackboard.Message) (out []agent.Agent, dropped bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !msg.IsBroadcast() {
		a, ok := b.agents[msg.To()]
		if !ok {
			log.Printf("[Bus] Dropping %s: no agent registered for %s", msg, msg.To())
			return nil, true
		}
		if a.State().Status == agent.StatusError {
			log.Printf("[Bus] Dropping %s: %s is in error status", msg, msg.To())
			return nil, true
		}
		return []agent.Agent{a}, false
	}

	for _, role := range b.order {
		a := b.agents[role]
		if a.State().Status == agent.StatusError {
			log.Printf("[Bus] Skipping %s for broadcast %s: agent in error status", role, msg.ID())
			continue
		}
		out = append(out, a)
	}
	return out, false
}

// deliver calls Process, converting a panic into an error.
func (b *Bus) deliver(ctx context.Context, a agent.Agent, msg blackboard.Message) (reply *blackboard.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = nil
			err = fmt.Errorf("panic while processing %s: %v", msg.ID(), r)
		}
	}()

	b.count(func(s *Stats) { s.Delivered++ })
	reply, err = a.Process(ctx, msg)
	if err == nil && reply != nil {
		if verr := reply.Validate(); verr != nil {
			return nil, fmt.Errorf("invalid reply: %w", verr)
		}
	}
	return reply, err
}

func (b *Bus) fail(a agent.Agent, msg blackboard.Message, err error) {
	log.Printf("[Bus] %s failed processing %s: %v", a.Role(), msg, err)
	a.MarkError(err)
	b.count(func(s *Stats) { s.Failures++ })
}

// taskFailedFor answers a failed point-to-point task assignment on the
// agent's behalf so the requester can tell failure from silence.
func taskFailedFor(role blackboard.Role, msg blackboard.Message, err error) (blackboard.Message, bool) {
	if msg.IsBroadcast() {
		return blackboard.Message{}, false
	}
	assign, ok := msg.Action().(blackboard.AssignTask)
	if !ok {
		return blackboard.Message{}, false
	}
	return msg.Reply(role, blackboard.MessageTypeResponse, blackboard.TaskFailed{
		ProjectID: assign.ProjectID,
		TaskID:    assign.Task.ID,
		TaskType:  assign.Task.Type,
		Reason:    err.Error(),
	}), true
}

func (b *Bus) count(f func(*Stats)) {
	b.mu.Lock()
	f(&b.stats)
	b.mu.Unlock()
}

// Stats returns the routing counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// SystemState snapshots every registered agent.
func (b *Bus) SystemState() map[blackboard.Role]agent.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[blackboard.Role]agent.State, len(b.agents))
	for role, a := range b.agents {
		out[role] = a.State()
	}
	return out
}

// ResetAgent clears an agent's error status so it receives messages again.
func (b *Bus) ResetAgent(role blackboard.Role) error {
	a, ok := b.Agent(role)
	if !ok {
		return fmt.Errorf("no agent registered for %s", role)
	}
	a.Reset()
	log.Printf("[Bus] Reset %s", role)
	return nil
}
