package blackboard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies an agent on the bus. Roles are unique per bus.
type Role string

const (
	RoleDirector Role = "director"
	RoleIdeator  Role = "ideator"
	RoleStylist  Role = "stylist"
	RoleRefiner  Role = "refiner"
	RoleCritic   Role = "critic"

	// RoleExternal is the sender role for messages injected from outside the
	// agent set (CLI, tests, batch runner). It is never registered.
	RoleExternal Role = "external"
)

// Validate checks if the Role is one of the known agent roles.
func (r Role) Validate() error {
	switch r {
	case RoleDirector, RoleIdeator, RoleStylist, RoleRefiner, RoleCritic:
		return nil
	default:
		return fmt.Errorf("unknown role: %q", r)
	}
}

// Stage is one phase of the fixed project pipeline.
type Stage string

const (
	StagePlanning   Stage = "planning"
	StageStyling    Stage = "styling"
	StageRefinement Stage = "refinement"
	StageCritique   Stage = "critique"
	StageCompleted  Stage = "completed"
)

// stageOrder is the only legal progression. Stages never regress.
var stageOrder = []Stage{StagePlanning, StageStyling, StageRefinement, StageCritique, StageCompleted}

// Next returns the stage that follows s. The completed stage is terminal and
// returns itself.
func (s Stage) Next() Stage {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return StageCompleted
}

// Index returns the position of s in the pipeline, or -1 for unknown stages.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// TaskType returns the task type that a stage creates. The completed stage
// creates no task and returns "".
func (s Stage) TaskType() TaskType {
	switch s {
	case StagePlanning:
		return TaskTypeIdeation
	case StageStyling:
		return TaskTypeStyling
	case StageRefinement:
		return TaskTypeRefinement
	case StageCritique:
		return TaskTypeCritique
	default:
		return ""
	}
}

// Validate checks if the Stage is a valid enum value.
func (s Stage) Validate() error {
	if s.Index() < 0 {
		return fmt.Errorf("unknown stage: %q", s)
	}
	return nil
}

// TaskType is the kind of work a stage hands to a generation agent.
type TaskType string

const (
	TaskTypeIdeation   TaskType = "ideation"
	TaskTypeStyling    TaskType = "styling"
	TaskTypeRefinement TaskType = "refinement"
	TaskTypeCritique   TaskType = "critique"
)

// AssignedRole returns the agent responsible for the task type.
func (t TaskType) AssignedRole() Role {
	switch t {
	case TaskTypeIdeation:
		return RoleIdeator
	case TaskTypeStyling:
		return RoleStylist
	case TaskTypeRefinement:
		return RoleRefiner
	case TaskTypeCritique:
		return RoleCritic
	default:
		return ""
	}
}

// ProjectStatus is the coarse lifecycle of a project.
type ProjectStatus string

const (
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

// ProjectHealth reports whether a project can still make progress.
// A stalled or canceled project keeps its stage; it never fabricates a
// completion.
type ProjectHealth string

const (
	HealthHealthy  ProjectHealth = "healthy"
	HealthStalled  ProjectHealth = "stalled"
	HealthCanceled ProjectHealth = "canceled"
)

// Brief is the creative input shared by every stage.
type Brief struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
}

// Project is owned and mutated exclusively by the Director.
type Project struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Requirements   []string      `json:"requirements"`
	Stage          Stage         `json:"stage"`
	CompletedTasks []Task        `json:"completed_tasks"`
	Status         ProjectStatus `json:"status"`
	Health         ProjectHealth `json:"health"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	CreatedAtMs    int64         `json:"created_at_ms"`
	UpdatedAtMs    int64         `json:"updated_at_ms"`
}

// Brief returns a copy of the project's creative input.
func (p *Project) Brief() Brief {
	return Brief{
		Title:        p.Title,
		Description:  p.Description,
		Requirements: append([]string(nil), p.Requirements...),
	}
}

// TaskByType returns the completed task of the given type, if any.
func (p *Project) TaskByType(t TaskType) (Task, bool) {
	for _, task := range p.CompletedTasks {
		if task.Type == t {
			return task, true
		}
	}
	return Task{}, false
}

// Clone returns a deep-enough copy for handing to observers and storage.
// Task results are shared; they are never mutated after completion.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Requirements = append([]string(nil), p.Requirements...)
	cp.CompletedTasks = append([]Task(nil), p.CompletedTasks...)
	return &cp
}

// Validate checks if the Project has valid field values.
func (p *Project) Validate() error {
	if !isValidUUID(p.ID) {
		return fmt.Errorf("invalid project ID: not a valid UUID")
	}

	if p.Title == "" {
		return fmt.Errorf("project title cannot be empty")
	}

	if err := p.Stage.Validate(); err != nil {
		return fmt.Errorf("invalid stage: %w", err)
	}

	for i, task := range p.CompletedTasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("invalid completed task at index %d: %w", i, err)
		}
	}

	return nil
}

// Task is created by the Director when a stage begins and is appended to
// Project.CompletedTasks once the owning agent reports completion.
type Task struct {
	ID            string      `json:"id"`
	Type          TaskType    `json:"type"`
	AssignedRole  Role        `json:"assigned_role"`
	Input         *TaskResult `json:"input,omitempty"` // previous stage's result; nil for ideation
	Result        *TaskResult `json:"result,omitempty"`
	CreatedAtMs   int64       `json:"created_at_ms"`
	CompletedAtMs int64       `json:"completed_at_ms,omitempty"`
}

// NewTask creates an open task for a stage.
func NewTask(stage Stage, input *TaskResult) Task {
	taskType := stage.TaskType()
	return Task{
		ID:           uuid.New().String(),
		Type:         taskType,
		AssignedRole: taskType.AssignedRole(),
		Input:        input,
		CreatedAtMs:  time.Now().UnixMilli(),
	}
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}
	if t.Type.AssignedRole() == "" {
		return fmt.Errorf("unknown task type: %q", t.Type)
	}
	if t.AssignedRole != t.Type.AssignedRole() {
		return fmt.Errorf("task type %s must be assigned to %s, got %s", t.Type, t.Type.AssignedRole(), t.AssignedRole)
	}
	return nil
}

// TaskResult carries the output of exactly one generation stage.
// Only the field matching the task type is populated.
type TaskResult struct {
	Ideas    []Idea    `json:"ideas,omitempty"`
	Styles   []Style   `json:"styles,omitempty"`
	Artwork  *Artwork  `json:"artwork,omitempty"`
	Critique *Critique `json:"critique,omitempty"`

	Strategy   string `json:"strategy"`    // strategy the producing agent selected
	IsFallback bool   `json:"is_fallback"` // true when the completion service failed
}

// Idea is a single ideation record.
type Idea struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Elements        []string `json:"elements"`
	Styles          []string `json:"styles"`
	EmotionalImpact string   `json:"emotionalImpact"`
	Theme           string   `json:"theme,omitempty"`
}

// Style is a single styling record.
type Style struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	VisualCharacteristics []string `json:"visualCharacteristics"`
	ColorPalette          []string `json:"colorPalette"`
	Texture               string   `json:"texture"`
	Composition           string   `json:"composition"`
}

// Artwork is the refined artwork record produced by the Refiner.
type Artwork struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Prompt          string          `json:"prompt"`
	NegativePrompt  string          `json:"negativePrompt,omitempty"`
	ImageURL        string          `json:"imageUrl,omitempty"`
	VisualElements  []string        `json:"visualElements"`
	Composition     Composition     `json:"composition"`
	ColorUsage      ColorUsage      `json:"colorUsage"`
	Texture         Texture         `json:"texture"`
	EmotionalImpact EmotionalImpact `json:"emotionalImpact"`
}

type Composition struct {
	Structure   string   `json:"structure"`
	FocalPoints []string `json:"focalPoints"`
	Flow        string   `json:"flow"`
	Balance     string   `json:"balance"`
}

type ColorUsage struct {
	Palette     []string `json:"palette"`
	Dominant    string   `json:"dominant"`
	Accents     []string `json:"accents"`
	Transitions string   `json:"transitions"`
}

type Texture struct {
	Type      string `json:"type"`
	Details   string `json:"details"`
	Materials string `json:"materials"`
}

type EmotionalImpact struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Notes     string `json:"notes"`
}

// Critique is the Critic's evaluation. Scores are on a 0-10 scale.
type Critique struct {
	Strengths           []string           `json:"strengths"`
	AreasForImprovement []string           `json:"areasForImprovement"`
	Scores              map[string]float64 `json:"scores"`
	OverallScore        float64            `json:"overallScore"`
	Recommendations     []string           `json:"recommendations"`
	AnalysisNotes       string             `json:"analysisNotes"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
