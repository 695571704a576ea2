package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dyluth/atelier/internal/agent"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted is a test agent whose replies are decided by a function.
type scripted struct {
	*agent.Base
	initCalls int
	initErr   error
	respond   func(msg blackboard.Message) (*blackboard.Message, error)

	mu   sync.Mutex
	seen []blackboard.Message
}

func newScripted(role blackboard.Role, respond func(blackboard.Message) (*blackboard.Message, error)) *scripted {
	return &scripted{Base: agent.NewBase(role, 0), respond: respond}
}

func (s *scripted) Initialize(context.Context) error {
	s.initCalls++
	return s.initErr
}

func (s *scripted) Process(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	return s.Dispatch(ctx, msg, s)
}

func (s *scripted) State() agent.State {
	return s.Snapshot(agent.GeneratorContext{})
}

func (s *scripted) handle(msg blackboard.Message) (*blackboard.Message, error) {
	s.mu.Lock()
	s.seen = append(s.seen, msg)
	s.mu.Unlock()
	if s.respond == nil {
		return nil, nil
	}
	return s.respond(msg)
}

func (s *scripted) HandleRequest(_ context.Context, m blackboard.Message) (*blackboard.Message, error) {
	return s.handle(m)
}
func (s *scripted) HandleResponse(_ context.Context, m blackboard.Message) (*blackboard.Message, error) {
	return s.handle(m)
}
func (s *scripted) HandleUpdate(_ context.Context, m blackboard.Message) (*blackboard.Message, error) {
	return s.handle(m)
}
func (s *scripted) HandleFeedback(_ context.Context, m blackboard.Message) (*blackboard.Message, error) {
	return s.handle(m)
}

func (s *scripted) received() []blackboard.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blackboard.Message(nil), s.seen...)
}

func update() blackboard.Message {
	return blackboard.NewBroadcast(blackboard.RoleExternal, blackboard.MessageTypeUpdate, blackboard.StageChanged{})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	b := New()

	ideator := newScripted(blackboard.RoleIdeator, nil)
	require.NoError(t, b.Register(ctx, ideator))
	assert.Equal(t, 1, ideator.initCalls)

	t.Run("duplicate role", func(t *testing.T) {
		err := b.Register(ctx, newScripted(blackboard.RoleIdeator, nil))
		assert.True(t, errors.Is(err, ErrDuplicateRole))
		got, _ := b.Agent(blackboard.RoleIdeator)
		assert.Same(t, ideator, got)
	})

	t.Run("unknown role", func(t *testing.T) {
		assert.Error(t, b.Register(ctx, newScripted("janitor", nil)))
	})

	t.Run("initialize failure", func(t *testing.T) {
		s := newScripted(blackboard.RoleCritic, nil)
		s.initErr = errors.New("no weights")
		assert.Error(t, b.Register(ctx, s))
		_, ok := b.Agent(blackboard.RoleCritic)
		assert.False(t, ok)
	})

	assert.Equal(t, []blackboard.Role{blackboard.RoleIdeator}, b.Roles())
}

func TestSend_PointToPoint(t *testing.T) {
	ctx := context.Background()
	b := New()
	ideator := newScripted(blackboard.RoleIdeator, nil)
	stylist := newScripted(blackboard.RoleStylist, nil)
	require.NoError(t, b.Register(ctx, ideator))
	require.NoError(t, b.Register(ctx, stylist))

	msg := blackboard.NewMessage(blackboard.RoleExternal, blackboard.RoleStylist, blackboard.MessageTypeUpdate, blackboard.StageChanged{})
	require.NoError(t, b.Send(ctx, msg))

	assert.Empty(t, ideator.received())
	require.Len(t, stylist.received(), 1)
	assert.Equal(t, msg.ID(), stylist.received()[0].ID())
}

func TestSend_BroadcastReachesEveryAgentInOrder(t *testing.T) {
	ctx := context.Background()
	b := New()

	var mu sync.Mutex
	var order []blackboard.Role
	track := func(role blackboard.Role) func(blackboard.Message) (*blackboard.Message, error) {
		return func(blackboard.Message) (*blackboard.Message, error) {
			mu.Lock()
			order = append(order, role)
			mu.Unlock()
			return nil, nil
		}
	}

	roles := []blackboard.Role{blackboard.RoleDirector, blackboard.RoleCritic, blackboard.RoleIdeator}
	for _, r := range roles {
		require.NoError(t, b.Register(ctx, newScripted(r, track(r))))
	}

	require.NoError(t, b.Send(ctx, blackboard.NewBroadcast(blackboard.RoleCritic, blackboard.MessageTypeUpdate, blackboard.StageChanged{})))
	assert.Equal(t, roles, order)
}

func TestSend_RoutesRepliesRecursively(t *testing.T) {
	ctx := context.Background()
	b := New()

	director := newScripted(blackboard.RoleDirector, func(m blackboard.Message) (*blackboard.Message, error) {
		if _, ok := m.Action().(blackboard.CreateProject); ok {
			out := blackboard.NewRequest(blackboard.RoleDirector, blackboard.RoleIdeator, blackboard.AssignTask{})
			return &out, nil
		}
		return nil, nil
	})
	ideator := newScripted(blackboard.RoleIdeator, func(m blackboard.Message) (*blackboard.Message, error) {
		if _, ok := m.Action().(blackboard.AssignTask); ok {
			out := m.Reply(blackboard.RoleIdeator, blackboard.MessageTypeResponse, blackboard.TaskCompleted{})
			return &out, nil
		}
		return nil, nil
	})
	require.NoError(t, b.Register(ctx, director))
	require.NoError(t, b.Register(ctx, ideator))

	require.NoError(t, b.Send(ctx, blackboard.NewCreateProjectMessage(blackboard.Brief{Title: "t"})))

	// The chain has settled by the time Send returns
	got := director.received()
	require.Len(t, got, 2)
	assert.IsType(t, blackboard.CreateProject{}, got[0].Action())
	assert.IsType(t, blackboard.TaskCompleted{}, got[1].Action())

	// The director's reply chain runs to completion before the broadcast
	// reaches the next agent in registration order
	gotIdeator := ideator.received()
	require.Len(t, gotIdeator, 2)
	assert.IsType(t, blackboard.AssignTask{}, gotIdeator[0].Action())
	assert.IsType(t, blackboard.CreateProject{}, gotIdeator[1].Action())

	assert.Equal(t, 3, b.Stats().Routed)
}

func TestSend_ContainsFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		respond func(blackboard.Message) (*blackboard.Message, error)
	}{
		{"error", func(blackboard.Message) (*blackboard.Message, error) { return nil, errors.New("boom") }},
		{"panic", func(blackboard.Message) (*blackboard.Message, error) { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			bad := newScripted(blackboard.RoleIdeator, tt.respond)
			good := newScripted(blackboard.RoleCritic, nil)
			require.NoError(t, b.Register(ctx, bad))
			require.NoError(t, b.Register(ctx, good))

			require.NoError(t, b.Send(ctx, update()))

			assert.Len(t, good.received(), 1, "routing continues past the failing agent")
			state := b.SystemState()[blackboard.RoleIdeator]
			assert.Equal(t, agent.StatusError, state.Status)
			assert.Contains(t, state.LastError, "boom")
			assert.Equal(t, 1, b.Stats().Failures)

			// Errored agents are skipped until reset
			require.NoError(t, b.Send(ctx, update()))
			assert.Len(t, bad.received(), 1)
			assert.Len(t, good.received(), 2)

			require.NoError(t, b.ResetAgent(blackboard.RoleIdeator))
			assert.Equal(t, agent.StatusIdle, b.SystemState()[blackboard.RoleIdeator].Status)
		})
	}
}

func TestSend_SynthesizesTaskFailed(t *testing.T) {
	ctx := context.Background()
	b := New()

	director := newScripted(blackboard.RoleDirector, nil)
	ideator := newScripted(blackboard.RoleIdeator, func(blackboard.Message) (*blackboard.Message, error) {
		return nil, errors.New("model melted")
	})
	require.NoError(t, b.Register(ctx, director))
	require.NoError(t, b.Register(ctx, ideator))

	task := blackboard.NewTask(blackboard.StagePlanning, nil)
	assign := blackboard.NewRequest(blackboard.RoleDirector, blackboard.RoleIdeator, blackboard.AssignTask{
		ProjectID: "p1",
		Task:      task,
	})
	require.NoError(t, b.Send(ctx, assign))

	got := director.received()
	require.Len(t, got, 1)
	assert.Equal(t, blackboard.MessageTypeResponse, got[0].Type())
	assert.Equal(t, blackboard.RoleIdeator, got[0].From())
	failed, ok := got[0].Action().(blackboard.TaskFailed)
	require.True(t, ok)
	assert.Equal(t, task.ID, failed.TaskID)
	assert.Equal(t, "p1", failed.ProjectID)
	assert.Contains(t, failed.Reason, "model melted")
}

func TestSend_DropsUnknownRecipient(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Register(ctx, newScripted(blackboard.RoleIdeator, nil)))

	msg := blackboard.NewMessage(blackboard.RoleExternal, blackboard.RoleCritic, blackboard.MessageTypeUpdate, blackboard.StageChanged{})
	require.NoError(t, b.Send(ctx, msg))
	assert.Equal(t, 1, b.Stats().Dropped)
}

func TestSend_RejectsInvalidMessage(t *testing.T) {
	b := New()
	err := b.Send(context.Background(), blackboard.Message{})
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestSend_MaxDepth(t *testing.T) {
	ctx := context.Background()
	b := New(WithMaxDepth(3))

	// Two agents that answer each other forever
	ping := func(from, to blackboard.Role) func(blackboard.Message) (*blackboard.Message, error) {
		return func(blackboard.Message) (*blackboard.Message, error) {
			out := blackboard.NewMessage(from, to, blackboard.MessageTypeUpdate, blackboard.StageChanged{})
			return &out, nil
		}
	}
	a := newScripted(blackboard.RoleIdeator, ping(blackboard.RoleIdeator, blackboard.RoleCritic))
	c := newScripted(blackboard.RoleCritic, ping(blackboard.RoleCritic, blackboard.RoleIdeator))
	require.NoError(t, b.Register(ctx, a))
	require.NoError(t, b.Register(ctx, c))

	msg := blackboard.NewMessage(blackboard.RoleExternal, blackboard.RoleIdeator, blackboard.MessageTypeUpdate, blackboard.StageChanged{})
	require.NoError(t, b.Send(ctx, msg))

	stats := b.Stats()
	assert.Equal(t, 4, stats.Routed)
	assert.Equal(t, 1, stats.DepthExceeded)
}

func TestSend_Observer(t *testing.T) {
	ctx := context.Background()
	var seen []string
	b := New(WithObserver(ObserverFunc(func(_ context.Context, m blackboard.Message) {
		seen = append(seen, m.Action().ActionName())
	})))

	ideator := newScripted(blackboard.RoleIdeator, func(m blackboard.Message) (*blackboard.Message, error) {
		out := m.Reply(blackboard.RoleIdeator, blackboard.MessageTypeResponse, blackboard.FeedbackAcknowledged{})
		return &out, nil
	})
	require.NoError(t, b.Register(ctx, ideator))

	msg := blackboard.NewRequest(blackboard.RoleExternal, blackboard.RoleIdeator, blackboard.ProvideFeedback{})
	require.NoError(t, b.Send(ctx, msg))

	assert.Equal(t, []string{blackboard.ActionProvideFeedback, blackboard.ActionFeedbackAcknowledged}, seen)
}

func TestSend_ConcurrentSendersAreSerialized(t *testing.T) {
	ctx := context.Background()
	b := New()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	slow := newScripted(blackboard.RoleIdeator, func(blackboard.Message) (*blackboard.Message, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, b.Register(ctx, slow))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Send(ctx, update()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, slow.received(), 20)
	assert.Equal(t, agent.StatusIdle, b.SystemState()[blackboard.RoleIdeator].Status)
}
