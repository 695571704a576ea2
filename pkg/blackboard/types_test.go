package blackboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Next(t *testing.T) {
	tests := []struct {
		from Stage
		want Stage
	}{
		{StagePlanning, StageStyling},
		{StageStyling, StageRefinement},
		{StageRefinement, StageCritique},
		{StageCritique, StageCompleted},
		{StageCompleted, StageCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.Next())
			if tt.from != StageCompleted {
				assert.Greater(t, tt.want.Index(), tt.from.Index())
			}
		})
	}
}

func TestStage_TaskTypeAndRole(t *testing.T) {
	assert.Equal(t, TaskTypeIdeation, StagePlanning.TaskType())
	assert.Equal(t, TaskTypeStyling, StageStyling.TaskType())
	assert.Equal(t, TaskTypeRefinement, StageRefinement.TaskType())
	assert.Equal(t, TaskTypeCritique, StageCritique.TaskType())
	assert.Equal(t, TaskType(""), StageCompleted.TaskType())

	assert.Equal(t, RoleIdeator, TaskTypeIdeation.AssignedRole())
	assert.Equal(t, RoleStylist, TaskTypeStyling.AssignedRole())
	assert.Equal(t, RoleRefiner, TaskTypeRefinement.AssignedRole())
	assert.Equal(t, RoleCritic, TaskTypeCritique.AssignedRole())
}

func TestStage_Validate(t *testing.T) {
	assert.NoError(t, StageCritique.Validate())
	assert.Error(t, Stage("review").Validate())
	assert.Equal(t, -1, Stage("review").Index())
}

func TestRole_Validate(t *testing.T) {
	for _, r := range []Role{RoleDirector, RoleIdeator, RoleStylist, RoleRefiner, RoleCritic} {
		assert.NoError(t, r.Validate())
	}
	assert.Error(t, RoleExternal.Validate())
	assert.Error(t, Role("curator").Validate())
}

func TestNewTask(t *testing.T) {
	input := &TaskResult{Strategy: "visual"}
	task := NewTask(StageRefinement, input)

	assert.Equal(t, TaskTypeRefinement, task.Type)
	assert.Equal(t, RoleRefiner, task.AssignedRole)
	assert.Same(t, input, task.Input)
	assert.Nil(t, task.Result)
	assert.NotZero(t, task.CreatedAtMs)
	assert.NoError(t, task.Validate())
}

func TestTask_Validate(t *testing.T) {
	t.Run("rejects mismatched role", func(t *testing.T) {
		task := NewTask(StagePlanning, nil)
		task.AssignedRole = RoleCritic
		err := task.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be assigned to ideator")
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		task := Task{ID: uuid.New().String(), Type: "sculpting"}
		assert.Error(t, task.Validate())
	})

	t.Run("rejects bad id", func(t *testing.T) {
		task := NewTask(StagePlanning, nil)
		task.ID = "x"
		assert.Error(t, task.Validate())
	})
}

func TestProject_Validate(t *testing.T) {
	valid := func() *Project {
		return &Project{
			ID:     uuid.New().String(),
			Title:  "Evolving Diffusion",
			Stage:  StagePlanning,
			Status: ProjectStatusInProgress,
			Health: HealthHealthy,
		}
	}

	assert.NoError(t, valid().Validate())

	p := valid()
	p.Title = ""
	assert.Error(t, p.Validate())

	p = valid()
	p.Stage = "drafting"
	assert.Error(t, p.Validate())

	p = valid()
	bad := NewTask(StagePlanning, nil)
	bad.AssignedRole = RoleStylist
	p.CompletedTasks = []Task{bad}
	err := p.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "index 0")
}

func TestProject_CloneAndLookup(t *testing.T) {
	task := NewTask(StagePlanning, nil)
	task.Result = &TaskResult{Strategy: "conceptual"}
	p := &Project{
		ID:             uuid.New().String(),
		Title:          "t",
		Requirements:   []string{"a"},
		CompletedTasks: []Task{task},
	}

	cp := p.Clone()
	cp.Requirements[0] = "b"
	cp.CompletedTasks = append(cp.CompletedTasks, NewTask(StageStyling, nil))
	assert.Equal(t, "a", p.Requirements[0])
	assert.Len(t, p.CompletedTasks, 1)

	got, ok := p.TaskByType(TaskTypeIdeation)
	require.True(t, ok)
	assert.Equal(t, "conceptual", got.Result.Strategy)
	_, ok = p.TaskByType(TaskTypeCritique)
	assert.False(t, ok)

	brief := p.Brief()
	brief.Requirements[0] = "z"
	assert.Equal(t, "a", p.Requirements[0])

	var nilProject *Project
	assert.Nil(t, nilProject.Clone())
}
