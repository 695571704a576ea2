// Package generation implements the Ideator, Stylist, Refiner and Critic.
// All four share one Agent type; what differs is the Specialist that
// declares the strategy set, builds the completion request and parses the
// reply.
package generation

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/atelier/internal/agent"
	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
)

// Specialist supplies the role-specific behaviour of a generation agent.
type Specialist interface {
	Role() blackboard.Role
	TaskType() blackboard.TaskType
	Strategies() []strategy.Strategy

	// Prompt builds the completion request for the chosen strategy.
	// input is the previous stage's result, nil for ideation.
	Prompt(strategyName string, brief blackboard.Brief, input *blackboard.TaskResult) llm.Request

	// Parse extracts the stage records from the completion text.
	Parse(content string) (blackboard.TaskResult, error)

	// Fallback returns the placeholder records used when generation fails.
	Fallback(brief blackboard.Brief, input *blackboard.TaskResult) blackboard.TaskResult
}

// Finisher is implemented by specialists with a post-processing step that
// runs on every result, real or fallback.
type Finisher interface {
	Finish(ctx context.Context, result *blackboard.TaskResult, brief blackboard.Brief)
}

// WeightStore persists strategy weights between runs.
type WeightStore interface {
	LoadWeights(ctx context.Context, role blackboard.Role) (map[string]float64, error)
	SaveWeights(ctx context.Context, role blackboard.Role, weights map[string]float64) error
}

// Options configures a generation agent.
type Options struct {
	MemoryLimit int

	// Table is shared between agents of the same role when projects run
	// concurrently. A nil table is created from the specialist's strategies.
	// A shared table is seeded by its owner; Initialize leaves it alone.
	Table *strategy.Table

	// InitialWeights override the strategy defaults at Initialize.
	InitialWeights map[string]float64

	// Store, when set, is written after feedback and, for an unshared
	// table, read at Initialize.
	Store WeightStore
}

// Agent is a generation agent driven by a Specialist.
type Agent struct {
	*agent.Base

	spec      Specialist
	table     *strategy.Table
	completer llm.Completer
	opts      Options

	initOnce sync.Once
	initErr  error

	mu           sync.Mutex
	lastStrategy string
	tasks        int
	fallbacks    int
	feedbacks    int
}

// New creates a generation agent. A nil completer behaves like llm.Disabled.
func New(spec Specialist, completer llm.Completer, opts Options) *Agent {
	if completer == nil {
		completer = llm.Disabled{}
	}
	table := opts.Table
	if table == nil {
		table = strategy.MustNewTable(spec.Strategies(), strategy.DefaultTopK)
	}
	return &Agent{
		Base:      agent.NewBase(spec.Role(), opts.MemoryLimit),
		spec:      spec,
		table:     table,
		completer: completer,
		opts:      opts,
	}
}

// Table exposes the agent's weight table.
func (a *Agent) Table() *strategy.Table {
	return a.table
}

// Initialize loads persisted weights, then configured overrides. Runs once.
func (a *Agent) Initialize(ctx context.Context) error {
	a.initOnce.Do(func() {
		if a.opts.Table != nil {
			return
		}
		if a.opts.Store != nil {
			weights, err := a.opts.Store.LoadWeights(ctx, a.Role())
			if err != nil {
				a.initErr = fmt.Errorf("failed to load %s weights: %w", a.Role(), err)
				return
			}
			if n := a.table.Load(weights); n > 0 {
				log.Printf("[%s] Loaded %d persisted strategy weights", a.label(), n)
			}
		}
		if len(a.opts.InitialWeights) > 0 {
			a.table.Load(a.opts.InitialWeights)
		}
	})
	return a.initErr
}

// Process implements agent.Agent.
func (a *Agent) Process(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	return a.Dispatch(ctx, msg, a)
}

// State implements agent.Agent.
func (a *Agent) State() agent.State {
	a.mu.Lock()
	c := agent.GeneratorContext{
		TaskType:       a.spec.TaskType(),
		Weights:        a.table.Weights(),
		Preferred:      a.table.Preferred(),
		LastStrategy:   a.lastStrategy,
		TasksCompleted: a.tasks,
		Fallbacks:      a.fallbacks,
		FeedbackCount:  a.feedbacks,
	}
	a.mu.Unlock()
	return a.Snapshot(c)
}

// SelectStrategy picks the strategy for a brief. Pure with respect to the
// agent's state.
func (a *Agent) SelectStrategy(brief blackboard.Brief) string {
	return a.table.Select(brief)
}

// HandleRequest runs an assigned task. Requests for other roles and other
// actions (such as the create_project broadcast) get no reply.
func (a *Agent) HandleRequest(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	assign, ok := msg.Action().(blackboard.AssignTask)
	if !ok || assign.Task.AssignedRole != a.Role() {
		return nil, nil
	}
	if assign.Task.Type != a.spec.TaskType() {
		return nil, fmt.Errorf("%s received a %s task", a.Role(), assign.Task.Type)
	}

	if err := ctx.Err(); err != nil {
		log.Printf("[%s] Task %s canceled before generation: %v", a.label(), shortID(assign.Task.ID), err)
		return nil, nil
	}

	chosen := a.SelectStrategy(assign.Brief)
	log.Printf("[%s] Task %s for project %s using strategy %q", a.label(), shortID(assign.Task.ID), shortID(assign.ProjectID), chosen)

	result := a.Generate(ctx, assign.Brief, assign.Task.Input, chosen)

	if err := ctx.Err(); err != nil {
		log.Printf("[%s] Task %s canceled during generation: %v", a.label(), shortID(assign.Task.ID), err)
		return nil, nil
	}

	a.mu.Lock()
	a.lastStrategy = chosen
	a.tasks++
	if result.IsFallback {
		a.fallbacks++
	}
	a.mu.Unlock()

	reply := msg.Reply(a.Role(), blackboard.MessageTypeResponse, blackboard.TaskCompleted{
		ProjectID: assign.ProjectID,
		TaskID:    assign.Task.ID,
		TaskType:  assign.Task.Type,
		Result:    result,
	})
	return &reply, nil
}

// Generate asks the completion service for records using the given strategy.
// Any provider or parse failure yields the specialist's fallback records,
// marked IsFallback.
func (a *Agent) Generate(ctx context.Context, brief blackboard.Brief, input *blackboard.TaskResult, strategyName string) blackboard.TaskResult {
	req := a.spec.Prompt(strategyName, brief, input)

	var result blackboard.TaskResult
	resp, err := a.completer.Complete(ctx, req)
	if err == nil {
		result, err = a.spec.Parse(resp.Content)
	}
	if err != nil {
		log.Printf("[%s] Generation failed, using fallback: %v", a.label(), err)
		result = a.spec.Fallback(brief, input)
		result.IsFallback = true
	}
	result.Strategy = strategyName

	if f, ok := a.spec.(Finisher); ok {
		f.Finish(ctx, &result, brief)
	}
	return result
}

// HandleFeedback applies the ratings addressed to this agent and
// acknowledges the last one applied.
func (a *Agent) HandleFeedback(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	feedback, ok := msg.Action().(blackboard.ProvideFeedback)
	if !ok {
		return nil, nil
	}

	var ack *blackboard.FeedbackAcknowledged
	for _, entry := range feedback.Entries {
		if entry.Role != a.Role() {
			continue
		}
		w, err := a.ApplyFeedback(entry.Strategy, entry.Rating)
		if err != nil {
			log.Printf("[%s] Ignoring feedback: %v", a.label(), err)
			continue
		}
		ack = &blackboard.FeedbackAcknowledged{
			Role:      a.Role(),
			Strategy:  entry.Strategy,
			NewWeight: w,
			Preferred: a.table.Preferred(),
		}
	}
	if ack == nil {
		return nil, nil
	}

	a.persist(ctx)

	reply := msg.Reply(a.Role(), blackboard.MessageTypeResponse, *ack)
	return &reply, nil
}

// ApplyFeedback folds one rating into the weight table.
func (a *Agent) ApplyFeedback(strategyName string, rating float64) (float64, error) {
	w, err := a.table.ApplyFeedback(strategyName, rating)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.feedbacks++
	a.mu.Unlock()
	log.Printf("[%s] Strategy %q rated %.1f, weight now %.3f", a.label(), strategyName, rating, w)
	return w, nil
}

func (a *Agent) persist(ctx context.Context) {
	if a.opts.Store == nil {
		return
	}
	if err := a.opts.Store.SaveWeights(ctx, a.Role(), a.table.Weights()); err != nil {
		log.Printf("[%s] Failed to persist weights: %v", a.label(), err)
	}
}

// HandleResponse implements agent.Handler. Generation agents never wait on
// replies.
func (a *Agent) HandleResponse(context.Context, blackboard.Message) (*blackboard.Message, error) {
	return nil, nil
}

// HandleUpdate implements agent.Handler.
func (a *Agent) HandleUpdate(context.Context, blackboard.Message) (*blackboard.Message, error) {
	return nil, nil
}

func (a *Agent) label() string {
	return roleLabel(a.Role())
}

func roleLabel(r blackboard.Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StrategyNames lists the strategies declared for a generation role, nil
// for any other role.
func StrategyNames(role blackboard.Role) []string {
	defs := strategiesFor(role)
	if defs == nil {
		return nil
	}
	names := make([]string, len(defs))
	for i, s := range defs {
		names[i] = s.Name
	}
	return names
}

// NewTableFor builds a fresh weight table for a generation role.
func NewTableFor(role blackboard.Role) (*strategy.Table, error) {
	defs := strategiesFor(role)
	if defs == nil {
		return nil, fmt.Errorf("%s has no strategies", role)
	}
	return strategy.NewTable(defs, strategy.DefaultTopK)
}

func strategiesFor(role blackboard.Role) []strategy.Strategy {
	switch role {
	case blackboard.RoleIdeator:
		return ideatorStrategies
	case blackboard.RoleStylist:
		return stylistStrategies
	case blackboard.RoleRefiner:
		return refinerStrategies
	case blackboard.RoleCritic:
		return criticStrategies
	default:
		return nil
	}
}
