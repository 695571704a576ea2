package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t *testing.T, msg blackboard.Message) *blackboard.MessageEvent {
	t.Helper()
	ev, err := msg.Event()
	require.NoError(t, err)
	return ev
}

func TestFormatEvent(t *testing.T) {
	projectID := "550e8400-e29b-41d4-a716-446655440000"

	tests := []struct {
		name     string
		msg      blackboard.Message
		expected string
	}{
		{
			name:     "create_project",
			msg:      blackboard.NewCreateProjectMessage(blackboard.Brief{Title: "Evolving Diffusion"}),
			expected: `🎨 Project Requested: "Evolving Diffusion" (external → *)`,
		},
		{
			name: "assign_task",
			msg: blackboard.NewRequest(blackboard.RoleDirector, blackboard.RoleStylist, blackboard.AssignTask{
				ProjectID: projectID,
				Task:      blackboard.Task{Type: blackboard.TaskTypeStyling},
			}),
			expected: "📋 Task Assigned: styling to=stylist, project=550e8400",
		},
		{
			name: "task_completed fallback",
			msg: blackboard.NewMessage(blackboard.RoleIdeator, blackboard.RoleDirector, blackboard.MessageTypeResponse, blackboard.TaskCompleted{
				ProjectID: projectID,
				TaskType:  blackboard.TaskTypeIdeation,
				Result:    blackboard.TaskResult{Strategy: "conceptual", IsFallback: true},
			}),
			expected: "✅ Task Completed: ideation by=ideator, strategy=conceptual (fallback)",
		},
		{
			name: "task_failed",
			msg: blackboard.NewMessage(blackboard.RoleRefiner, blackboard.RoleDirector, blackboard.MessageTypeResponse, blackboard.TaskFailed{
				ProjectID: projectID,
				TaskType:  blackboard.TaskTypeRefinement,
				Reason:    "panic",
			}),
			expected: "❌ Task Failed: refinement by=refiner: panic",
		},
		{
			name: "provide_feedback",
			msg: blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeFeedback, blackboard.ProvideFeedback{
				Entries: []blackboard.FeedbackEntry{{Role: blackboard.RoleIdeator, Strategy: "visual", Rating: 8}},
			}),
			expected: "⭐ Feedback: ideator/visual=8.0",
		},
		{
			name: "feedback_acknowledged",
			msg: blackboard.NewMessage(blackboard.RoleIdeator, blackboard.RoleDirector, blackboard.MessageTypeResponse, blackboard.FeedbackAcknowledged{
				Role: blackboard.RoleIdeator, Strategy: "visual", NewWeight: 0.89, Preferred: []string{"visual", "conceptual"},
			}),
			expected: "📈 Weights Updated: ideator/visual=0.890, preferred=[visual conceptual]",
		},
		{
			name: "project created",
			msg: blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, blackboard.StageChanged{
				ProjectID: projectID, To: blackboard.StagePlanning, Health: blackboard.HealthHealthy,
			}),
			expected: "🔄 Project Created: 550e8400 at planning",
		},
		{
			name: "stage changed",
			msg: blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, blackboard.StageChanged{
				ProjectID: projectID, From: blackboard.StagePlanning, To: blackboard.StageStyling, Health: blackboard.HealthHealthy,
			}),
			expected: "🔄 Stage Changed: 550e8400 planning → styling",
		},
		{
			name: "stalled",
			msg: blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, blackboard.StageChanged{
				ProjectID: projectID, From: blackboard.StageStyling, To: blackboard.StageStyling, Health: blackboard.HealthStalled,
			}),
			expected: "⚠️  Project stalled: 550e8400 at styling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatEvent(event(t, tt.msg)))
		})
	}
}

func TestFormatEvent_UnknownAction(t *testing.T) {
	ev := &blackboard.MessageEvent{From: "director", Type: blackboard.MessageTypeUpdate, Action: "heartbeat", Payload: json.RawMessage(`{}`)}
	assert.Equal(t, "✉️  update heartbeat (director → *)", FormatEvent(ev))
}

func TestProjectFinished(t *testing.T) {
	changed := func(to blackboard.Stage, health blackboard.ProjectHealth) *blackboard.MessageEvent {
		return event(t, blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, blackboard.StageChanged{To: to, Health: health}))
	}
	assert.True(t, ProjectFinished(changed(blackboard.StageCompleted, blackboard.HealthHealthy)))
	assert.True(t, ProjectFinished(changed(blackboard.StageStyling, blackboard.HealthCanceled)))
	assert.False(t, ProjectFinished(changed(blackboard.StageCritique, blackboard.HealthHealthy)))
	assert.False(t, ProjectFinished(event(t, blackboard.NewCreateProjectMessage(blackboard.Brief{Title: "x"}))))
}

func TestStreamMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	board, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer board.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mine := uuid.New().String()
	other := uuid.New().String()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- StreamMessages(ctx, board, Options{
			Format:    OutputFormatJSON,
			ProjectID: mine[:8],
			Until:     ProjectFinished,
		}, &buf)
	}()

	channel := blackboard.MessageEventsChannel("test-instance")
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	publish := func(projectID string, to blackboard.Stage) {
		msg := blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, blackboard.StageChanged{
			ProjectID: projectID, To: to, Health: blackboard.HealthHealthy,
		})
		require.NoError(t, board.PublishMessage(ctx, msg))
	}
	publish(other, blackboard.StageCompleted)
	publish(mine, blackboard.StagePlanning)
	publish(mine, blackboard.StageCompleted)

	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var ev blackboard.MessageEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.Equal(t, blackboard.ActionStageChanged, ev.Action)
		assert.Contains(t, string(ev.Payload), mine)
	}
}
