// Package watch streams bus traffic published on the blackboard.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault is one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes each event as a JSON line
	OutputFormatJSON OutputFormat = "json"
)

// Options narrows a stream.
type Options struct {
	Format    OutputFormat
	ProjectID string // full ID or prefix; empty streams everything
	Until     func(ev *blackboard.MessageEvent) bool
}

// StreamMessages writes message events to w until ctx is done, the
// subscription closes or opts.Until returns true.
func StreamMessages(ctx context.Context, board *blackboard.Client, opts Options, w io.Writer) error {
	sub, err := board.SubscribeMessageEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if opts.ProjectID != "" && !strings.HasPrefix(projectOf(ev), opts.ProjectID) {
				continue
			}
			if err := writeEvent(w, opts.Format, ev); err != nil {
				return err
			}
			if opts.Until != nil && opts.Until(ev) {
				return nil
			}
		}
	}
}

// ProjectFinished reports whether ev ends a project: completed, stalled
// or canceled.
func ProjectFinished(ev *blackboard.MessageEvent) bool {
	if ev.Action != blackboard.ActionStageChanged {
		return false
	}
	var change blackboard.StageChanged
	if err := json.Unmarshal(ev.Payload, &change); err != nil {
		return false
	}
	return change.To == blackboard.StageCompleted || change.Health != blackboard.HealthHealthy
}

func writeEvent(w io.Writer, format OutputFormat, ev *blackboard.MessageEvent) error {
	switch format {
	case OutputFormatJSON:
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	default:
		ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05")
		_, err := fmt.Fprintf(w, "[%s] %s\n", ts, FormatEvent(ev))
		return err
	}
}

// projectOf extracts the project ID carried by an event payload.
func projectOf(ev *blackboard.MessageEvent) string {
	var p struct {
		ProjectID string `json:"project_id"`
	}
	_ = json.Unmarshal(ev.Payload, &p)
	return p.ProjectID
}

// FormatEvent renders one event as a human-readable line.
func FormatEvent(ev *blackboard.MessageEvent) string {
	route := fmt.Sprintf("%s → %s", ev.From, target(ev.To))

	switch ev.Action {
	case blackboard.ActionCreateProject:
		var a blackboard.CreateProject
		if json.Unmarshal(ev.Payload, &a) == nil {
			return fmt.Sprintf("🎨 Project Requested: %q (%s)", a.Brief.Title, route)
		}
	case blackboard.ActionAssignTask:
		var a blackboard.AssignTask
		if json.Unmarshal(ev.Payload, &a) == nil {
			return fmt.Sprintf("📋 Task Assigned: %s to=%s, project=%s", a.Task.Type, ev.To, short(a.ProjectID))
		}
	case blackboard.ActionTaskCompleted:
		var a blackboard.TaskCompleted
		if json.Unmarshal(ev.Payload, &a) == nil {
			line := fmt.Sprintf("✅ Task Completed: %s by=%s, strategy=%s", a.TaskType, ev.From, a.Result.Strategy)
			if a.Result.IsFallback {
				line += " (fallback)"
			}
			return line
		}
	case blackboard.ActionTaskFailed:
		var a blackboard.TaskFailed
		if json.Unmarshal(ev.Payload, &a) == nil {
			return fmt.Sprintf("❌ Task Failed: %s by=%s: %s", a.TaskType, ev.From, a.Reason)
		}
	case blackboard.ActionProvideFeedback:
		var a blackboard.ProvideFeedback
		if json.Unmarshal(ev.Payload, &a) == nil {
			parts := make([]string, len(a.Entries))
			for i, e := range a.Entries {
				parts[i] = fmt.Sprintf("%s/%s=%.1f", e.Role, e.Strategy, e.Rating)
			}
			return fmt.Sprintf("⭐ Feedback: %s", strings.Join(parts, ", "))
		}
	case blackboard.ActionFeedbackAcknowledged:
		var a blackboard.FeedbackAcknowledged
		if json.Unmarshal(ev.Payload, &a) == nil {
			return fmt.Sprintf("📈 Weights Updated: %s/%s=%.3f, preferred=[%s]", a.Role, a.Strategy, a.NewWeight, strings.Join(a.Preferred, " "))
		}
	case blackboard.ActionStageChanged:
		var a blackboard.StageChanged
		if json.Unmarshal(ev.Payload, &a) == nil {
			if a.Health != blackboard.HealthHealthy {
				return fmt.Sprintf("⚠️  Project %s: %s at %s", a.Health, short(a.ProjectID), a.To)
			}
			if a.From == "" {
				return fmt.Sprintf("🔄 Project Created: %s at %s", short(a.ProjectID), a.To)
			}
			return fmt.Sprintf("🔄 Stage Changed: %s %s → %s", short(a.ProjectID), a.From, a.To)
		}
	}
	return fmt.Sprintf("✉️  %s %s (%s)", ev.Type, ev.Action, route)
}

func target(r blackboard.Role) string {
	if r == "" {
		return "*"
	}
	return string(r)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
