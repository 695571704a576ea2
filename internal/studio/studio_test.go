package studio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/imagegen"
	"github.com/dyluth/atelier/internal/llm"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evolvingDiffusion = blackboard.Brief{
	Title:       "Evolving Diffusion",
	Description: "An exploration of diffusion-based generative art that dynamically evolves its style, inspired by systems that gather and cluster visual elements to create distinct and evolving artistic expressions",
	Requirements: []string{
		"Incorporate elements of diffusion-based generative techniques",
		"Suggest a visual style that appears to evolve and adapt",
		"Balance abstract and recognizable forms",
		"Create a sense of emergent complexity from simple elements",
	},
}

const (
	ideasReply    = "```json\n" + `[{"title":"Drift","description":"Particles cluster into shifting forms","elements":["particles","gradients"],"styles":["generative"],"emotionalImpact":"wonder"}]` + "\n```"
	stylesReply   = `{"styles":[{"name":"Noise Bloom","description":"Soft diffusion fields","visualCharacteristics":["grain"],"colorPalette":["#0b132b","#5bc0be"],"texture":"grainy","composition":"centered"}]}`
	artworkReply  = `{"title":"Drift","description":"Clusters emerging from noise","prompt":"clusters of particles emerging from noise, diffusion art","visualElements":["particles"]}`
	critiqueReply = `{"strengths":["cohesive palette"],"areasForImprovement":["focal point"],"scores":{"composition":10,"color":10,"concept":10,"originality":10,"emotionalImpact":10},"overallScore":10}`
)

// scripted answers each agent with a canned reply chosen by its system prompt.
func scripted() llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		system := req.Messages[0].Content
		switch {
		case strings.Contains(system, "Ideator"):
			return &llm.Response{Content: ideasReply}, nil
		case strings.Contains(system, "Stylist"):
			return &llm.Response{Content: stylesReply}, nil
		case strings.Contains(system, "Refiner"):
			return &llm.Response{Content: artworkReply}, nil
		case strings.Contains(system, "Critic"):
			return &llm.Response{Content: critiqueReply}, nil
		}
		return nil, errors.New("unexpected prompt")
	})
}

func newStudio(t *testing.T, opts Options) *Studio {
	t.Helper()
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newBoard(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	board, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { board.Close() })
	return board, mr
}

func TestRun_EvolvingDiffusion(t *testing.T) {
	images := imagegen.SynthesizerFunc(func(context.Context, imagegen.Request) (string, error) {
		return "https://images.test/drift.png", nil
	})
	s := newStudio(t, Options{Completer: scripted(), Images: images})

	project, err := s.Run(context.Background(), evolvingDiffusion)
	require.NoError(t, err)

	assert.Equal(t, blackboard.StageCompleted, project.Stage)
	assert.Equal(t, blackboard.ProjectStatusCompleted, project.Status)
	assert.Equal(t, blackboard.HealthHealthy, project.Health)
	require.Len(t, project.CompletedTasks, 4)

	ideation, ok := project.TaskByType(blackboard.TaskTypeIdeation)
	require.True(t, ok)
	assert.Equal(t, "conceptual", ideation.Result.Strategy)
	assert.False(t, ideation.Result.IsFallback)
	assert.Equal(t, "Drift", ideation.Result.Ideas[0].Title)

	styling, ok := project.TaskByType(blackboard.TaskTypeStyling)
	require.True(t, ok)
	assert.Equal(t, "abstract", styling.Result.Strategy)
	assert.Equal(t, ideation.Result, styling.Input, "styling consumes the ideation result")

	refinement, ok := project.TaskByType(blackboard.TaskTypeRefinement)
	require.True(t, ok)
	assert.Equal(t, "https://images.test/drift.png", refinement.Result.Artwork.ImageURL)

	critique, ok := project.TaskByType(blackboard.TaskTypeCritique)
	require.True(t, ok)
	assert.Equal(t, 10.0, critique.Result.Critique.OverallScore)

	// A perfect score nudges every selected strategy upwards
	weights, _, err := s.Weights(blackboard.RoleIdeator)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, weights["conceptual"], 1e-9)
	weights, _, err = s.Weights(blackboard.RoleStylist)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, weights["abstract"], 1e-9)
}

func TestRun_FailingCompletionUsesFallbacks(t *testing.T) {
	failing := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("service unavailable")
	})
	s := newStudio(t, Options{Completer: failing})

	project, err := s.Run(context.Background(), blackboard.Brief{Title: "Quiet"})
	require.NoError(t, err)

	assert.Equal(t, blackboard.StageCompleted, project.Stage)
	require.Len(t, project.CompletedTasks, 4)
	for _, task := range project.CompletedTasks {
		assert.True(t, task.Result.IsFallback, "task %s", task.Type)
	}
	ideation, _ := project.TaskByType(blackboard.TaskTypeIdeation)
	assert.Equal(t, "Fallback Idea", ideation.Result.Ideas[0].Title)

	// A fallback critique is not a rating
	weights, _, err := s.Weights(blackboard.RoleIdeator)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, weights["conceptual"], 1e-12)
}

func TestRun_RejectedBrief(t *testing.T) {
	s := newStudio(t, Options{})

	project, err := s.Run(context.Background(), blackboard.Brief{Title: "  "})
	assert.ErrorIs(t, err, ErrNotCreated)
	assert.Nil(t, project)
}

func TestRun_CanceledContext(t *testing.T) {
	s := newStudio(t, Options{Completer: scripted()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	project, err := s.Run(ctx, evolvingDiffusion)
	require.NoError(t, err)
	assert.Equal(t, blackboard.HealthCanceled, project.Health)
	assert.NotEqual(t, blackboard.StageCompleted, project.Stage)
}

func TestRun_PanickingAgentStalls(t *testing.T) {
	var calls atomic.Int32
	completer := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.Messages[0].Content, "Stylist") {
			panic("stylist exploded")
		}
		calls.Add(1)
		return scripted().Complete(ctx, req)
	})
	s := newStudio(t, Options{Completer: completer})

	project, err := s.Run(context.Background(), evolvingDiffusion)
	require.NoError(t, err)
	assert.Equal(t, blackboard.HealthStalled, project.Health)
	assert.Equal(t, blackboard.StageStyling, project.Stage)
	assert.Len(t, project.CompletedTasks, 1)
	assert.NotEmpty(t, project.FailureReason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_PersistsToBoard(t *testing.T) {
	ctx := context.Background()
	board, _ := newBoard(t)
	s := newStudio(t, Options{Completer: scripted(), Board: board})

	sub, err := board.SubscribeMessageEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	project, err := s.Run(ctx, evolvingDiffusion)
	require.NoError(t, err)

	stored, err := board.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.StageCompleted, stored.Stage)
	assert.Len(t, stored.CompletedTasks, 4)

	weights, err := board.LoadWeights(ctx, blackboard.RoleIdeator)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, weights["conceptual"], 1e-9)

	event := <-sub.Events()
	assert.Equal(t, blackboard.ActionCreateProject, event.Action)
}

func TestNew_SeedsTablesOnce(t *testing.T) {
	ctx := context.Background()
	board, _ := newBoard(t)
	require.NoError(t, board.SaveWeights(ctx, blackboard.RoleIdeator, map[string]float64{"narrative": 0.99, "visual": 0.1}))

	cfg := config.Default()
	cfg.Agents = map[string]config.AgentConfig{"ideator": {Weights: map[string]float64{"visual": 0.3}}}
	s := newStudio(t, Options{Config: cfg, Board: board})

	weights, preferred, err := s.Weights(blackboard.RoleIdeator)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, weights["narrative"], 1e-12)
	assert.InDelta(t, 0.3, weights["visual"], 1e-12, "config overrides persisted weights")
	assert.Equal(t, "narrative", preferred[0])

	// Assembling a system must not reapply the seed
	_, err = s.ApplyFeedback(ctx, blackboard.RoleIdeator, "visual", 10)
	require.NoError(t, err)
	_, err = s.NewSystem(ctx)
	require.NoError(t, err)
	weights, _, _ = s.Weights(blackboard.RoleIdeator)
	assert.InDelta(t, 0.37, weights["visual"], 1e-9)
}

func TestNew_BoardUnavailable(t *testing.T) {
	board, mr := newBoard(t)
	mr.Close()

	_, err := New(context.Background(), Options{Config: config.Default(), Board: board})
	assert.Error(t, err)
}

func TestApplyFeedback(t *testing.T) {
	ctx := context.Background()
	board, _ := newBoard(t)
	s := newStudio(t, Options{Board: board})

	w, err := s.ApplyFeedback(ctx, blackboard.RoleCritic, "formal", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, w, 1e-9)

	stored, err := board.LoadWeights(ctx, blackboard.RoleCritic)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, stored["formal"], 1e-9)

	_, err = s.ApplyFeedback(ctx, blackboard.RoleDirector, "formal", 5)
	assert.Error(t, err)
	_, err = s.ApplyFeedback(ctx, blackboard.RoleCritic, "formal", 12)
	assert.Error(t, err)

	require.NoError(t, s.ResetWeights(ctx, blackboard.RoleCritic))
	weights, _, _ := s.Weights(blackboard.RoleCritic)
	assert.InDelta(t, 0.8, weights["formal"], 1e-12)
}

func TestRunBatch(t *testing.T) {
	cfg := config.Default()
	cfg.Batch.Parallelism = 2
	s := newStudio(t, Options{Config: cfg, Completer: scripted()})

	briefs := []blackboard.Brief{
		evolvingDiffusion,
		{Title: ""},
		{Title: "Harbour at Dusk", Description: "A narrative scene of boats returning home"},
	}
	projects, err := s.RunBatch(context.Background(), briefs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brief 2")
	require.Len(t, projects, 3)
	assert.Equal(t, "Evolving Diffusion", projects[0].Title)
	assert.Nil(t, projects[1])
	assert.Equal(t, blackboard.StageCompleted, projects[2].Stage)
}

func TestObserver_Health(t *testing.T) {
	t.Run("no board", func(t *testing.T) {
		srv := httptest.NewServer(NewObserverServer(newStudio(t, Options{})).Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "disabled", body.Redis)
	})

	t.Run("board down", func(t *testing.T) {
		board, mr := newBoard(t)
		s := newStudio(t, Options{Board: board})
		mr.Close()

		w := httptest.NewRecorder()
		NewObserverServer(s).healthCheckHandler(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		var body HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "disconnected", body.Redis)
		assert.NotEmpty(t, body.Error)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewObserverServer(newStudio(t, Options{})).healthCheckHandler(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestObserver_State(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.Messages[0].Content, "Stylist") {
			close(entered)
			<-release
		}
		return scripted().Complete(ctx, req)
	})
	s := newStudio(t, Options{Completer: blocking})
	srv := httptest.NewServer(NewObserverServer(s).Handler())
	defer srv.Close()

	done := make(chan *blackboard.Project)
	go func() {
		p, _ := s.Run(ctx, evolvingDiffusion)
		done <- p
	}()
	<-entered

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	var state struct {
		Instance string `json:"instance"`
		Systems  []struct {
			ProjectID string                     `json:"project_id"`
			Agents    map[string]json.RawMessage `json:"agents"`
		} `json:"systems"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()

	close(release)
	project := <-done

	assert.Equal(t, config.DefaultInstance, state.Instance)
	require.Len(t, state.Systems, 1)
	assert.Equal(t, project.ID, state.Systems[0].ProjectID)
	assert.Len(t, state.Systems[0].Agents, 5)
	assert.Contains(t, string(state.Systems[0].Agents["stylist"]), `"working"`)

	assert.Empty(t, s.Snapshot().Systems, "finished runs are no longer tracked")
}
