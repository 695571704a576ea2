// Package director implements the project state machine.
//
// The Director owns one project at a time and walks it through
// planning → styling → refinement → critique → completed. Only a completion
// for the task it is currently waiting on advances the stage; anything else
// is discarded. A failed or silent agent leaves the project stalled at its
// current stage.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/atelier/internal/agent"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/google/uuid"
)

// Recorder receives every project transition.
type Recorder interface {
	RecordTransition(ctx context.Context, project *blackboard.Project, change blackboard.StageChanged) error
}

// Options configures the Director.
type Options struct {
	MemoryLimit int

	// AutoFeedback broadcasts the critique's overall score to every
	// generation agent once a project completes.
	AutoFeedback bool

	Recorder     Recorder
	InstanceName string
}

// Director drives a single project through the pipeline.
type Director struct {
	*agent.Base
	opts Options

	mu             sync.Mutex
	project        *blackboard.Project
	awaiting       *blackboard.Task
	staleDiscarded int
}

// New creates a Director.
func New(opts Options) *Director {
	return &Director{
		Base: agent.NewBase(blackboard.RoleDirector, opts.MemoryLimit),
		opts: opts,
	}
}

// Initialize implements agent.Agent. The Director has nothing to prepare.
func (d *Director) Initialize(context.Context) error {
	return nil
}

// Process implements agent.Agent.
func (d *Director) Process(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	return d.Dispatch(ctx, msg, d)
}

// State implements agent.Agent.
func (d *Director) State() agent.State {
	d.mu.Lock()
	c := agent.DirectorContext{StaleDiscarded: d.staleDiscarded}
	if d.project != nil {
		c.ProjectID = d.project.ID
		c.Stage = d.project.Stage
		c.Health = d.project.Health
		c.CompletedTasks = len(d.project.CompletedTasks)
	}
	if d.awaiting != nil {
		c.AwaitingTaskID = d.awaiting.ID
		c.AwaitingRole = d.awaiting.AssignedRole
	}
	d.mu.Unlock()
	return d.Snapshot(c)
}

// Project returns a copy of the current project, or nil before the first
// create_project request.
func (d *Director) Project() *blackboard.Project {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.project.Clone()
}

// HandleRequest accepts create_project. Other requests are not addressed to
// the Director and are ignored.
func (d *Director) HandleRequest(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	create, ok := msg.Action().(blackboard.CreateProject)
	if !ok {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.project != nil && d.project.Status == blackboard.ProjectStatusInProgress && d.project.Health == blackboard.HealthHealthy {
		log.Printf("[Director] Rejecting create_project for %q: project %s still in progress", create.Brief.Title, shortID(d.project.ID))
		return nil, nil
	}
	if strings.TrimSpace(create.Brief.Title) == "" {
		log.Printf("[Director] Rejecting create_project: brief has no title")
		return nil, nil
	}

	id := create.ProjectID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}
	now := time.Now().UnixMilli()
	d.project = &blackboard.Project{
		ID:             id,
		Title:          create.Brief.Title,
		Description:    create.Brief.Description,
		Requirements:   append([]string{}, create.Brief.Requirements...),
		Stage:          blackboard.StagePlanning,
		CompletedTasks: []blackboard.Task{},
		Status:         blackboard.ProjectStatusInProgress,
		Health:         blackboard.HealthHealthy,
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
	}
	d.awaiting = nil
	d.staleDiscarded = 0

	log.Printf("[Director] Created project %s %q", shortID(id), create.Brief.Title)
	d.logEvent("project_created", map[string]interface{}{
		"project_id":   id,
		"title":        create.Brief.Title,
		"requirements": len(create.Brief.Requirements),
	})
	d.record(ctx, "")

	if d.cancelIfDone(ctx) {
		return nil, nil
	}
	return d.assignLocked(nil), nil
}

// HandleResponse consumes task_completed and task_failed for the awaited
// task. Everything else is discarded.
func (d *Director) HandleResponse(ctx context.Context, msg blackboard.Message) (*blackboard.Message, error) {
	switch action := msg.Action().(type) {
	case blackboard.TaskCompleted:
		return d.complete(ctx, action)
	case blackboard.TaskFailed:
		d.failed(ctx, action)
		return nil, nil
	default:
		return nil, nil
	}
}

// HandleUpdate implements agent.Handler.
func (d *Director) HandleUpdate(context.Context, blackboard.Message) (*blackboard.Message, error) {
	return nil, nil
}

// HandleFeedback implements agent.Handler. Feedback is for generation
// agents.
func (d *Director) HandleFeedback(context.Context, blackboard.Message) (*blackboard.Message, error) {
	return nil, nil
}

func (d *Director) complete(ctx context.Context, done blackboard.TaskCompleted) (*blackboard.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reason := d.staleLocked(done.ProjectID, done.TaskID, done.TaskType); reason != "" {
		d.staleDiscarded++
		log.Printf("[Director] Discarding completion of task %s: %s", shortID(done.TaskID), reason)
		d.logEvent("completion_discarded", map[string]interface{}{
			"project_id": done.ProjectID,
			"task_id":    done.TaskID,
			"reason":     reason,
		})
		return nil, nil
	}

	if d.cancelIfDone(ctx) {
		return nil, nil
	}

	result := done.Result
	task := *d.awaiting
	task.Result = &result
	task.CompletedAtMs = time.Now().UnixMilli()

	from := d.project.Stage
	d.project.CompletedTasks = append(d.project.CompletedTasks, task)
	d.project.Stage = from.Next()
	d.awaiting = nil

	log.Printf("[Director] Project %s: %s → %s (strategy %q, fallback=%t)",
		shortID(d.project.ID), from, d.project.Stage, result.Strategy, result.IsFallback)

	if d.project.Stage == blackboard.StageCompleted {
		d.project.Status = blackboard.ProjectStatusCompleted
		d.SetAwaiting(false)
		d.record(ctx, from)
		log.Printf("[Director] Project %s completed", shortID(d.project.ID))
		return d.feedbackLocked(), nil
	}

	d.record(ctx, from)
	return d.assignLocked(&result), nil
}

func (d *Director) failed(ctx context.Context, f blackboard.TaskFailed) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reason := d.staleLocked(f.ProjectID, f.TaskID, f.TaskType); reason != "" {
		d.staleDiscarded++
		log.Printf("[Director] Discarding failure of task %s: %s", shortID(f.TaskID), reason)
		return
	}
	d.stallLocked(ctx, fmt.Sprintf("%s failed: %s", f.TaskType, f.Reason))
}

// staleLocked explains why a task report does not match the awaited task.
// An empty string means it matches.
func (d *Director) staleLocked(projectID, taskID string, taskType blackboard.TaskType) string {
	switch {
	case d.project == nil:
		return "no project"
	case projectID != d.project.ID:
		return fmt.Sprintf("belongs to project %s", shortID(projectID))
	case d.awaiting == nil:
		return fmt.Sprintf("not awaiting any task at stage %s", d.project.Stage)
	case taskID != d.awaiting.ID:
		return fmt.Sprintf("awaiting task %s", shortID(d.awaiting.ID))
	case taskType != d.awaiting.Type:
		return fmt.Sprintf("type %s does not match awaited %s", taskType, d.awaiting.Type)
	default:
		return ""
	}
}

// assignLocked opens the task for the current stage and returns the
// request that hands it to the owning agent.
func (d *Director) assignLocked(input *blackboard.TaskResult) *blackboard.Message {
	task := blackboard.NewTask(d.project.Stage, input)
	d.awaiting = &task
	d.SetAwaiting(true)

	d.logEvent("task_assigned", map[string]interface{}{
		"project_id": d.project.ID,
		"task_id":    task.ID,
		"task_type":  task.Type,
		"role":       task.AssignedRole,
	})

	msg := blackboard.NewRequest(blackboard.RoleDirector, task.AssignedRole, blackboard.AssignTask{
		ProjectID: d.project.ID,
		Task:      task,
		Brief:     d.project.Brief(),
	})
	return &msg
}

// feedbackLocked builds the automatic feedback broadcast. Every stage that
// produced a real result is rated with the critique's overall score. A
// fallback critique rates nothing.
func (d *Director) feedbackLocked() *blackboard.Message {
	if !d.opts.AutoFeedback {
		return nil
	}
	critique, ok := d.project.TaskByType(blackboard.TaskTypeCritique)
	if !ok || critique.Result == nil || critique.Result.Critique == nil || critique.Result.IsFallback {
		return nil
	}
	rating := critique.Result.Critique.OverallScore

	var entries []blackboard.FeedbackEntry
	for _, task := range d.project.CompletedTasks {
		if task.Result == nil || task.Result.IsFallback || task.Result.Strategy == "" {
			continue
		}
		entries = append(entries, blackboard.FeedbackEntry{
			Role:     task.AssignedRole,
			Strategy: task.Result.Strategy,
			Rating:   rating,
		})
	}
	if len(entries) == 0 {
		return nil
	}

	d.logEvent("feedback_broadcast", map[string]interface{}{
		"project_id": d.project.ID,
		"rating":     rating,
		"entries":    len(entries),
	})
	msg := blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeFeedback, blackboard.ProvideFeedback{
		ProjectID: d.project.ID,
		Entries:   entries,
	})
	return &msg
}

// DetectStall runs after a routing pass has settled. A project still
// waiting on a task at that point got no reply; it is marked canceled if
// ctx is done, stalled otherwise. Reports whether the project changed.
func (d *Director) DetectStall(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.project == nil || d.awaiting == nil || !d.activeLocked() {
		return false
	}
	if d.cancelIfDone(ctx) {
		return true
	}
	d.stallLocked(ctx, fmt.Sprintf("no reply from %s for %s task", d.awaiting.AssignedRole, d.awaiting.Type))
	return true
}

// MarkStalled stops the project at its current stage.
func (d *Director) MarkStalled(ctx context.Context, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.project == nil || !d.activeLocked() {
		return
	}
	d.stallLocked(ctx, reason)
}

func (d *Director) activeLocked() bool {
	return d.project.Status == blackboard.ProjectStatusInProgress && d.project.Health == blackboard.HealthHealthy
}

func (d *Director) stallLocked(ctx context.Context, reason string) {
	d.project.Health = blackboard.HealthStalled
	d.project.FailureReason = reason
	d.awaiting = nil
	d.SetAwaiting(false)

	log.Printf("[Director] Project %s stalled at %s: %s", shortID(d.project.ID), d.project.Stage, reason)
	d.record(ctx, d.project.Stage)
}

// cancelIfDone marks the project canceled when ctx is done.
func (d *Director) cancelIfDone(ctx context.Context) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	d.project.Health = blackboard.HealthCanceled
	d.project.FailureReason = err.Error()
	d.awaiting = nil
	d.SetAwaiting(false)

	log.Printf("[Director] Project %s canceled at %s", shortID(d.project.ID), d.project.Stage)
	// The run context is gone; recording uses a fresh one.
	d.record(context.Background(), d.project.Stage)
	return true
}

// record stamps the project and hands the transition to the recorder.
// from is "" for project creation.
func (d *Director) record(ctx context.Context, from blackboard.Stage) {
	d.project.UpdatedAtMs = time.Now().UnixMilli()
	change := blackboard.StageChanged{
		ProjectID: d.project.ID,
		From:      from,
		To:        d.project.Stage,
		Health:    d.project.Health,
	}

	d.logEvent("stage_changed", map[string]interface{}{
		"project_id": change.ProjectID,
		"from":       change.From,
		"to":         change.To,
		"health":     change.Health,
	})

	if d.opts.Recorder == nil {
		return
	}
	if err := d.opts.Recorder.RecordTransition(ctx, d.project.Clone(), change); err != nil {
		log.Printf("[Director] Failed to record transition for %s: %v", shortID(d.project.ID), err)
	}
}

// logEvent logs a structured event in JSON format.
func (d *Director) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "director"
	data["event_type"] = eventType
	data["instance"] = d.opts.InstanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Director] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
