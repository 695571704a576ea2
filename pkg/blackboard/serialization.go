package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Scalar fields get their
// own hash field so they can be read with HGET; nested structures such as the
// completed task list are JSON-encoded into a single field.

// ProjectToHash converts a Project struct to a Redis hash format.
// Array fields (requirements, completed_tasks) are JSON-encoded.
func ProjectToHash(p *Project) (map[string]interface{}, error) {
	requirementsJSON, err := json.Marshal(p.Requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requirements: %w", err)
	}

	tasks := p.CompletedTasks
	if tasks == nil {
		tasks = []Task{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completed_tasks: %w", err)
	}

	hash := map[string]interface{}{
		"id":              p.ID,
		"title":           p.Title,
		"description":     p.Description,
		"requirements":    string(requirementsJSON),
		"stage":           string(p.Stage),
		"completed_tasks": string(tasksJSON),
		"status":          string(p.Status),
		"health":          string(p.Health),
		"failure_reason":  p.FailureReason,
		"created_at_ms":   p.CreatedAtMs,
		"updated_at_ms":   p.UpdatedAtMs,
	}

	return hash, nil
}

// HashToProject converts a Redis hash to a Project struct.
func HashToProject(hash map[string]string) (*Project, error) {
	var requirements []string
	if raw := hash["requirements"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &requirements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal requirements: %w", err)
		}
	}
	if requirements == nil {
		requirements = []string{}
	}

	var tasks []Task
	if raw := hash["completed_tasks"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed_tasks: %w", err)
		}
	}
	if tasks == nil {
		tasks = []Task{}
	}

	createdAtMs, err := parseMillis(hash["created_at_ms"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}
	updatedAtMs, err := parseMillis(hash["updated_at_ms"])
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at_ms field: %w", err)
	}

	return &Project{
		ID:             hash["id"],
		Title:          hash["title"],
		Description:    hash["description"],
		Requirements:   requirements,
		Stage:          Stage(hash["stage"]),
		CompletedTasks: tasks,
		Status:         ProjectStatus(hash["status"]),
		Health:         ProjectHealth(hash["health"]),
		FailureReason:  hash["failure_reason"],
		CreatedAtMs:    createdAtMs,
		UpdatedAtMs:    updatedAtMs,
	}, nil
}

// WeightsToHash converts a strategy weight table to a Redis hash format.
// Weights are stored with full float precision.
func WeightsToHash(weights map[string]float64) map[string]interface{} {
	hash := make(map[string]interface{}, len(weights))
	for strategy, w := range weights {
		hash[strategy] = strconv.FormatFloat(w, 'g', -1, 64)
	}
	return hash
}

// HashToWeights converts a Redis hash back to a strategy weight table.
func HashToWeights(hash map[string]string) (map[string]float64, error) {
	weights := make(map[string]float64, len(hash))
	for strategy, raw := range hash {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for strategy %q: %w", strategy, err)
		}
		weights[strategy] = w
	}
	return weights, nil
}

func parseMillis(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
