package blackboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newTestProject(createdAtMs int64) *Project {
	return &Project{
		ID:             uuid.New().String(),
		Title:          "Evolving Diffusion",
		Description:    "diffusion-based generative art",
		Requirements:   []string{"abstract", "emergent"},
		Stage:          StagePlanning,
		CompletedTasks: []Task{},
		Status:         ProjectStatusInProgress,
		Health:         HealthHealthy,
		CreatedAtMs:    createdAtMs,
		UpdatedAtMs:    createdAtMs,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestSaveAndGetProject(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("round trips an in-progress project", func(t *testing.T) {
		p := newTestProject(1000)
		require.NoError(t, client.SaveProject(ctx, p))

		assert.True(t, mr.Exists(ProjectKey("test-instance", p.ID)))

		got, err := client.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("round trips completed tasks", func(t *testing.T) {
		p := newTestProject(2000)
		task := NewTask(StagePlanning, nil)
		task.Result = &TaskResult{
			Ideas:    []Idea{{Title: "Drift", Description: "noise", Elements: []string{"grain"}, Styles: []string{"minimal"}, EmotionalImpact: "calm"}},
			Strategy: "conceptual",
		}
		task.CompletedAtMs = 2500
		p.CompletedTasks = append(p.CompletedTasks, task)
		p.Stage = StageStyling
		require.NoError(t, client.SaveProject(ctx, p))

		got, err := client.GetProject(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, got.CompletedTasks, 1)
		assert.Equal(t, "conceptual", got.CompletedTasks[0].Result.Strategy)
		assert.Equal(t, "Drift", got.CompletedTasks[0].Result.Ideas[0].Title)
		assert.Equal(t, StageStyling, got.Stage)
	})

	t.Run("rejects invalid project", func(t *testing.T) {
		p := newTestProject(3000)
		p.ID = "not-a-uuid"
		err := client.SaveProject(ctx, p)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid project")
	})

	t.Run("missing project is not found", func(t *testing.T) {
		_, err := client.GetProject(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})
}

func TestGetProject_CachesCompletedProjects(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	p := newTestProject(1000)
	p.Stage = StageCompleted
	p.Status = ProjectStatusCompleted
	require.NoError(t, client.SaveProject(ctx, p))

	// Served from memory even after the hash disappears
	mr.Del(ProjectKey("test-instance", p.ID))
	got, err := client.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	// Callers cannot poison the cache
	got.Title = "mutated"
	again, err := client.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Evolving Diffusion", again.Title)

	require.NoError(t, client.DeleteProject(ctx, p.ID))
	_, err = client.GetProject(ctx, p.ID)
	assert.True(t, IsNotFound(err))
}

func TestListAndCountProjects(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	newer := newTestProject(3000)
	older := newTestProject(1000)
	middle := newTestProject(2000)
	for _, p := range []*Project{newer, older, middle} {
		require.NoError(t, client.SaveProject(ctx, p))
	}

	projects, err := client.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, older.ID, projects[0].ID)
	assert.Equal(t, middle.ID, projects[1].ID)
	assert.Equal(t, newer.ID, projects[2].ID)

	n, err := client.CountProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	t.Run("skips index entries without a hash", func(t *testing.T) {
		mr.Del(ProjectKey("test-instance", middle.ID))
		projects, err := client.ListProjects(ctx)
		require.NoError(t, err)
		assert.Len(t, projects, 2)
	})
}

func TestScanProjects(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	a := newTestProject(1000)
	a.ID = "abc12345-0000-4000-8000-000000000001"
	b := newTestProject(2000)
	b.ID = "abc99999-0000-4000-8000-000000000002"
	c := newTestProject(3000)
	c.ID = "def00000-0000-4000-8000-000000000003"
	for _, p := range []*Project{a, b, c} {
		require.NoError(t, client.SaveProject(ctx, p))
	}

	ids, err := client.ScanProjects(ctx, "abc")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	ids, err = client.ScanProjects(ctx, "abc1")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)

	ids, err = client.ScanProjects(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWeights(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("empty when never saved", func(t *testing.T) {
		weights, err := client.LoadWeights(ctx, RoleIdeator)
		require.NoError(t, err)
		assert.Empty(t, weights)
	})

	t.Run("round trips with full precision", func(t *testing.T) {
		in := map[string]float64{"conceptual": 0.82, "visual": 0.9000000001}
		require.NoError(t, client.SaveWeights(ctx, RoleIdeator, in))

		out, err := client.LoadWeights(ctx, RoleIdeator)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("roles are isolated", func(t *testing.T) {
		out, err := client.LoadWeights(ctx, RoleCritic)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestSubscribeMessageEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.SubscribeMessageEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	msg := NewCreateProjectMessage(Brief{Title: "Evolving Diffusion", Requirements: []string{}})
	require.NoError(t, client.PublishMessage(ctx, msg))

	select {
	case ev := <-sub.Events():
		require.NotNil(t, ev)
		assert.Equal(t, msg.ID(), ev.ID)
		assert.Equal(t, RoleExternal, ev.From)
		assert.Equal(t, ActionCreateProject, ev.Action)

		var payload CreateProject
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		assert.Equal(t, "Evolving Diffusion", payload.Brief.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
	}

	t.Run("close is idempotent", func(t *testing.T) {
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}
