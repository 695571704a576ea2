package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// FormatTable writes one row per project: ID, STAGE, HEALTH, AGE, TITLE.
// Returns the number of rows written.
func FormatTable(w io.Writer, projects []*blackboard.Project, instanceName string) int {
	if len(projects) == 0 {
		fmt.Fprintf(w, "No projects found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Projects for instance '%s':\n\n", instanceName)
	fmt.Fprintf(w, "%-10s %-11s %-9s %-8s %s\n", "ID", "STAGE", "HEALTH", "AGE", "TITLE")
	fmt.Fprintf(w, "%-10s %-11s %-9s %-8s %s\n",
		"----------", "-----------", "---------", "--------", "----------------------------------------")

	for _, p := range projects {
		fmt.Fprintf(w, "%-10s %-11s %-9s %-8s %s\n",
			formatID(p.ID),
			p.Stage,
			p.Health,
			formatAge(p.CreatedAtMs, time.Now()),
			truncate(p.Title, 40),
		)
	}

	noun := "project"
	if len(projects) != 1 {
		noun = "projects"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(projects), noun)
	return len(projects)
}

// FormatJSONL writes each project as one compact JSON line.
func FormatJSONL(w io.Writer, projects []*blackboard.Project) error {
	for _, p := range projects {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal project to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes p as indented JSON.
func FormatSingleJSON(w io.Writer, p *blackboard.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatSummary writes a readable account of a project: the brief, then
// the outcome of each completed stage.
func FormatSummary(w io.Writer, p *blackboard.Project) {
	fmt.Fprintf(w, "Project %s: %s\n", formatID(p.ID), p.Title)
	fmt.Fprintf(w, "  Stage:  %s (%s)\n", p.Stage, p.Health)
	if p.FailureReason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", p.FailureReason)
	}
	if p.Description != "" {
		fmt.Fprintf(w, "  Brief:  %s\n", truncate(p.Description, 100))
	}
	for _, req := range p.Requirements {
		fmt.Fprintf(w, "          - %s\n", req)
	}

	for _, task := range p.CompletedTasks {
		fmt.Fprintln(w)
		summarizeTask(w, task)
	}
}

func summarizeTask(w io.Writer, task blackboard.Task) {
	r := task.Result
	if r == nil {
		fmt.Fprintf(w, "%s by %s: no result\n", task.Type, task.AssignedRole)
		return
	}

	header := fmt.Sprintf("%s by %s, strategy %s", task.Type, task.AssignedRole, orDash(r.Strategy))
	if r.IsFallback {
		header += " [fallback]"
	}
	fmt.Fprintln(w, header)

	switch {
	case len(r.Ideas) > 0:
		for _, idea := range r.Ideas {
			fmt.Fprintf(w, "  • %s: %s\n", idea.Title, truncate(idea.Description, 80))
		}
	case len(r.Styles) > 0:
		for _, style := range r.Styles {
			fmt.Fprintf(w, "  • %s %s\n", style.Name, strings.Join(style.ColorPalette, " "))
		}
	case r.Artwork != nil:
		fmt.Fprintf(w, "  • %s\n", r.Artwork.Title)
		fmt.Fprintf(w, "    prompt: %s\n", truncate(r.Artwork.Prompt, 100))
		if r.Artwork.ImageURL != "" {
			fmt.Fprintf(w, "    image:  %s\n", r.Artwork.ImageURL)
		}
	case r.Critique != nil:
		fmt.Fprintf(w, "  overall %.1f/10\n", r.Critique.OverallScore)
		names := make([]string, 0, len(r.Critique.Scores))
		for name := range r.Critique.Scores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-16s %.1f\n", name, r.Critique.Scores[name])
		}
		for _, s := range r.Critique.Strengths {
			fmt.Fprintf(w, "  + %s\n", s)
		}
		for _, s := range r.Critique.AreasForImprovement {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders a creation time relative to now: "42s ago", "3h ago".
func formatAge(createdAtMs int64, now time.Time) string {
	if createdAtMs == 0 {
		return "-"
	}
	diff := now.Sub(time.UnixMilli(createdAtMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// truncate keeps the first line of s, cut to max runes.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max-3]) + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
