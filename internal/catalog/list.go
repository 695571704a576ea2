// Package catalog lists, resolves and renders projects stored on the
// blackboard.
package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// OutputFormat specifies how a project listing is rendered.
type OutputFormat string

const (
	// OutputFormatDefault is a table with one row per project
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL writes complete projects as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	}
	return "", fmt.Errorf("unknown output format: %s (expected default or jsonl)", s)
}

// ListProjects writes every stored project matching filter to w, oldest
// first.
func ListProjects(ctx context.Context, board *blackboard.Client, format OutputFormat, filter *Filter, w io.Writer) error {
	all, err := board.ListProjects(ctx)
	if err != nil {
		return err
	}

	projects := make([]*blackboard.Project, 0, len(all))
	for _, p := range all {
		if filter.Matches(p) {
			projects = append(projects, p)
		}
	}

	switch format {
	case OutputFormatDefault:
		FormatTable(w, projects, board.InstanceName())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, projects); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}

// GetProject resolves idOrPrefix and returns the stored project.
func GetProject(ctx context.Context, board *blackboard.Client, idOrPrefix string) (*blackboard.Project, error) {
	id, err := ResolveProjectID(ctx, board, idOrPrefix)
	if err != nil {
		return nil, err
	}
	p, err := board.GetProject(ctx, id)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return nil, &NotFoundError{ShortID: idOrPrefix}
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return p, nil
}
