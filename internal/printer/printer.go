// Package printer writes colored CLI output.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/fatih/color"
)

func init() {
	// Users can disable with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Output destinations, replaced in tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Success prints a green message with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Stdout, msg)
}

// Info prints an uncolored message.
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Warning prints a yellow message with a warning prefix.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Stdout, msg)
}

// Step prints a progress line.
func Step(format string, a ...any) {
	cyan.Fprintf(Stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a titled error with explanation and suggestions to Stderr
// and returns an error carrying only the title, for cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, printed in key order.
func ErrorWithContext(title string, explanation string, details map[string]string, suggestions []string) error {
	red.Fprintf(Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Stderr, "%s\n", explanation)
	}

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(Stderr)
		for _, k := range keys {
			fmt.Fprintf(Stderr, "  %s: %s\n", k, details[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Stderr, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

// Outcome prints a one-line verdict for a finished project, colored by
// health.
func Outcome(p *blackboard.Project) {
	switch {
	case p.Health == blackboard.HealthHealthy && p.Stage == blackboard.StageCompleted:
		Success("Project %s completed\n", shortID(p.ID))
	case p.Health == blackboard.HealthCanceled:
		Warning("Project %s canceled at %s\n", shortID(p.ID), p.Stage)
	case p.Health == blackboard.HealthStalled:
		red.Fprintf(Stdout, "✗ Project %s stalled at %s: %s\n", shortID(p.ID), p.Stage, p.FailureReason)
	default:
		Info("Project %s at %s (%s)\n", shortID(p.ID), p.Stage, p.Health)
	}
}

// Weights prints a role's strategy table, highest weight first, marking the
// preferred strategies.
func Weights(role blackboard.Role, weights map[string]float64, preferred []string) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if weights[names[i]] != weights[names[j]] {
			return weights[names[i]] > weights[names[j]]
		}
		return names[i] < names[j]
	})

	bold.Fprintf(Stdout, "%s\n", role)
	for _, name := range names {
		marker := " "
		for _, p := range preferred {
			if p == name {
				marker = "*"
				break
			}
		}
		fmt.Fprintf(Stdout, "  %s %-14s %.3f\n", marker, name, weights[name])
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
