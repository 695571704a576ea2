// Package studio assembles complete agent systems and runs briefs through
// them.
//
// A Studio owns the external services, the optional blackboard and one
// strategy table per generation role. Every project gets a fresh bus,
// Director and set of generation agents, but the tables are shared so that
// feedback from one project shapes strategy selection in the next.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/dyluth/atelier/internal/bus"
	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/director"
	"github.com/dyluth/atelier/internal/generation"
	"github.com/dyluth/atelier/internal/imagegen"
	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// GenerationRoles lists the roles whose strategies learn from feedback, in
// registration order.
var GenerationRoles = []blackboard.Role{
	blackboard.RoleIdeator,
	blackboard.RoleStylist,
	blackboard.RoleRefiner,
	blackboard.RoleCritic,
}

// ErrNotCreated is returned by Run when the Director refused the brief.
var ErrNotCreated = errors.New("project was not created")

// Options wires a Studio. Config is required; nil services run disabled and
// a nil Board runs without persistence.
type Options struct {
	Config    *config.AtelierConfig
	Completer llm.Completer
	Images    imagegen.Synthesizer
	Board     *blackboard.Client
}

// Studio runs briefs through freshly assembled agent systems.
type Studio struct {
	cfg       *config.AtelierConfig
	completer llm.Completer
	images    imagegen.Synthesizer
	board     *blackboard.Client
	tables    map[blackboard.Role]*strategy.Table

	mu      sync.Mutex
	systems map[string]*System
}

// System is one bus with the Director and every generation agent registered.
type System struct {
	Bus      *bus.Bus
	Director *director.Director
}

// New creates a Studio and seeds the shared strategy tables: persisted
// weights first, then configured overrides.
func New(ctx context.Context, opts Options) (*Studio, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	s := &Studio{
		cfg:       opts.Config,
		completer: opts.Completer,
		images:    opts.Images,
		board:     opts.Board,
		tables:    make(map[blackboard.Role]*strategy.Table, len(GenerationRoles)),
		systems:   make(map[string]*System),
	}
	if s.completer == nil {
		s.completer = llm.Disabled{}
	}
	if s.images == nil {
		s.images = imagegen.Disabled{}
	}

	for _, role := range GenerationRoles {
		table, err := generation.NewTableFor(role)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s strategy table: %w", role, err)
		}
		if s.board != nil {
			weights, err := s.board.LoadWeights(ctx, role)
			if err != nil {
				return nil, err
			}
			if n := table.Load(weights); n > 0 {
				log.Printf("[Studio] Loaded %d persisted weights for %s", n, role)
			}
		}
		table.Load(s.cfg.WeightsFor(role))
		s.tables[role] = table
	}
	return s, nil
}

// Open builds the configured services and blackboard connection, then
// creates a Studio around them. Close releases the blackboard.
func Open(ctx context.Context, cfg *config.AtelierConfig) (*Studio, error) {
	completer, err := llm.New(cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	images, err := imagegen.New(cfg.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to create image client: %w", err)
	}

	board, err := OpenBoard(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, Options{Config: cfg, Completer: completer, Images: images, Board: board})
	if err != nil {
		if board != nil {
			board.Close()
		}
		return nil, err
	}
	return s, nil
}

// OpenBoard connects to the configured blackboard. Returns (nil, nil) when
// no Redis URL is configured.
func OpenBoard(ctx context.Context, cfg *config.AtelierConfig) (*blackboard.Client, error) {
	url := cfg.RedisURL()
	if url == "" {
		return nil, nil
	}
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	board, err := blackboard.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create blackboard client: %w", err)
	}
	if err := board.Ping(ctx); err != nil {
		board.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", redisOpts.Addr, err)
	}
	return board, nil
}

// Close releases the blackboard connection, if any.
func (s *Studio) Close() error {
	if s.board == nil {
		return nil
	}
	return s.board.Close()
}

// Board returns the blackboard client, nil when persistence is off.
func (s *Studio) Board() *blackboard.Client {
	return s.board
}

// NewSystem assembles a bus with the Director and all four generation
// agents sharing the Studio's strategy tables.
func (s *Studio) NewSystem(ctx context.Context) (*System, error) {
	busOpts := []bus.Option{bus.WithMaxDepth(*s.cfg.Bus.MaxDepth)}
	var rec director.Recorder
	if s.board != nil {
		busOpts = append(busOpts, bus.WithObserver(boardObserver{board: s.board}))
		rec = boardRecorder{board: s.board}
	}
	b := bus.New(busOpts...)

	memory := *s.cfg.Bus.MemoryLimit
	d := director.New(director.Options{
		MemoryLimit:  memory,
		AutoFeedback: *s.cfg.Director.AutoFeedback,
		Recorder:     rec,
		InstanceName: s.cfg.Instance,
	})

	if err := b.Register(ctx, d); err != nil {
		return nil, err
	}
	for _, a := range []*generation.Agent{
		generation.NewIdeator(s.completer, s.agentOptions(blackboard.RoleIdeator, memory)),
		generation.NewStylist(s.completer, s.agentOptions(blackboard.RoleStylist, memory)),
		generation.NewRefiner(s.completer, s.images, s.agentOptions(blackboard.RoleRefiner, memory)),
		generation.NewCritic(s.completer, s.agentOptions(blackboard.RoleCritic, memory)),
	} {
		if err := b.Register(ctx, a); err != nil {
			return nil, err
		}
	}
	return &System{Bus: b, Director: d}, nil
}

func (s *Studio) agentOptions(role blackboard.Role, memory int) generation.Options {
	opts := generation.Options{
		MemoryLimit: memory,
		Table:       s.tables[role],
	}
	// Store must stay a nil interface when persistence is off
	if s.board != nil {
		opts.Store = s.board
	}
	return opts
}

// Run drives one brief to a terminal state and returns the final project.
// A stalled or canceled project is returned without error; the caller
// inspects Health.
func (s *Studio) Run(ctx context.Context, brief blackboard.Brief) (*blackboard.Project, error) {
	sys, err := s.NewSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble agents: %w", err)
	}

	msg := blackboard.NewCreateProjectMessage(brief)
	id := msg.Action().(blackboard.CreateProject).ProjectID
	s.track(id, sys)
	defer s.untrack(id)

	if err := sys.Bus.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send create_project: %w", err)
	}
	sys.Director.DetectStall(ctx)

	project := sys.Director.Project()
	if project == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotCreated, brief.Title)
	}
	return project, nil
}

// RunBatch runs briefs concurrently, bounded by batch.parallelism. Results
// are in brief order; a brief that could not start leaves a nil entry and
// the first such error is returned after every brief has finished.
func (s *Studio) RunBatch(ctx context.Context, briefs []blackboard.Brief) ([]*blackboard.Project, error) {
	results := make([]*blackboard.Project, len(briefs))

	var g errgroup.Group
	g.SetLimit(s.cfg.Batch.Parallelism)
	for i, brief := range briefs {
		i, brief := i, brief
		g.Go(func() error {
			project, err := s.Run(ctx, brief)
			if err != nil {
				return fmt.Errorf("brief %d (%q): %w", i+1, brief.Title, err)
			}
			results[i] = project
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// ApplyFeedback rates a strategy outside of a project run and persists the
// updated table.
func (s *Studio) ApplyFeedback(ctx context.Context, role blackboard.Role, strategyName string, rating float64) (float64, error) {
	table, ok := s.tables[role]
	if !ok {
		return 0, fmt.Errorf("role %q has no strategies", role)
	}
	w, err := table.ApplyFeedback(strategyName, rating)
	if err != nil {
		return 0, err
	}
	if s.board != nil {
		if err := s.board.SaveWeights(ctx, role, table.Weights()); err != nil {
			return w, err
		}
	}
	return w, nil
}

// Weights returns a copy of the learned weights and preferred strategies
// for role.
func (s *Studio) Weights(role blackboard.Role) (map[string]float64, []string, error) {
	table, ok := s.tables[role]
	if !ok {
		return nil, nil, fmt.Errorf("role %q has no strategies (valid: %s)", role, roleList())
	}
	return table.Weights(), table.Preferred(), nil
}

// ResetWeights restores role's declared weights and persists them.
func (s *Studio) ResetWeights(ctx context.Context, role blackboard.Role) error {
	table, ok := s.tables[role]
	if !ok {
		return fmt.Errorf("role %q has no strategies (valid: %s)", role, roleList())
	}
	table.Reset()
	if s.board != nil {
		return s.board.SaveWeights(ctx, role, table.Weights())
	}
	return nil
}

func (s *Studio) track(id string, sys *System) {
	s.mu.Lock()
	s.systems[id] = sys
	s.mu.Unlock()
}

func (s *Studio) untrack(id string) {
	s.mu.Lock()
	delete(s.systems, id)
	s.mu.Unlock()
}

// active returns the systems currently running, keyed by project ID.
func (s *Studio) active() map[string]*System {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*System, len(s.systems))
	for id, sys := range s.systems {
		out[id] = sys
	}
	return out
}

func roleList() string {
	names := make([]string, len(GenerationRoles))
	for i, r := range GenerationRoles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// IsGenerationRole reports whether role has a strategy table.
func IsGenerationRole(role blackboard.Role) bool {
	return slices.Contains(GenerationRoles, role)
}
