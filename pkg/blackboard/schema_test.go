package blackboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPatterns(t *testing.T) {
	assert.Equal(t, "atelier:prod:project:abc", ProjectKey("prod", "abc"))
	assert.Equal(t, "atelier:prod:project:ab*", ProjectKeyPattern("prod", "ab"))
	assert.Equal(t, "atelier:prod:project:*", ProjectKeyPattern("prod", ""))
	assert.Equal(t, "atelier:prod:projects", ProjectIndexKey("prod"))
	assert.Equal(t, "atelier:prod:weights:ideator", WeightsKey("prod", RoleIdeator))
	assert.Equal(t, "atelier:prod:message_events", MessageEventsChannel("prod"))
	assert.Equal(t, "atelier:prod:project_events", ProjectEventsChannel("prod"))
}

func TestProjectHash_RoundTrip(t *testing.T) {
	p := newTestProject(1234)
	p.Requirements = nil
	p.CompletedTasks = nil
	p.FailureReason = "critic: timed out"
	p.Health = HealthStalled

	hash, err := ProjectToHash(p)
	require.NoError(t, err)
	assert.Equal(t, "[]", hash["completed_tasks"])

	// Redis returns every field as a string
	strHash := make(map[string]string, len(hash))
	for k, v := range hash {
		switch val := v.(type) {
		case string:
			strHash[k] = val
		case int64:
			strHash[k] = strconv.FormatInt(val, 10)
		}
	}

	got, err := HashToProject(strHash)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, []Task{}, got.CompletedTasks)
	assert.Equal(t, HealthStalled, got.Health)
	assert.Equal(t, "critic: timed out", got.FailureReason)
	assert.Equal(t, int64(1234), got.CreatedAtMs)
}

func TestHashToProject_Errors(t *testing.T) {
	_, err := HashToProject(map[string]string{"requirements": "{"})
	assert.Error(t, err)

	_, err = HashToProject(map[string]string{"completed_tasks": "nope"})
	assert.Error(t, err)

	_, err = HashToProject(map[string]string{"created_at_ms": "yesterday"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "created_at_ms")
}

func TestHashToWeights_Errors(t *testing.T) {
	_, err := HashToWeights(map[string]string{"visual": "heavy"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "visual")
}
