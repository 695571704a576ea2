package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/atelier/internal/catalog"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	projectsOutput string
	projectsSince  string
	projectsUntil  string
	projectsTitle  string
	projectsStage  string
	projectsHealth string
	showJSON       bool
)

var projectsCmd = &cobra.Command{
	Use:   "projects [PROJECT_ID]",
	Short: "Inspect stored projects",
	Long: `Inspect projects persisted on the blackboard.

List Mode (no PROJECT_ID):
  Displays projects matching filters as a table or JSONL stream.

Show Mode (with PROJECT_ID):
  Displays one project's brief and stage results. Short IDs of at least
  6 characters are accepted.

Filters (list mode only):
  --since, --until  Creation time bounds (duration like 2h or RFC3339)
  --title           Title glob, case-insensitive ("evolving*")
  --stage           planning, styling, refinement, critique or completed
  --health          healthy, stalled or canceled

Examples:
  atelier projects --since=24h --health=stalled
  atelier projects 550e84
  atelier projects --output=jsonl | jq -r '.title'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProjects,
}

func init() {
	projectsCmd.Flags().StringVarP(&projectsOutput, "output", "o", "default", "Output format (default or jsonl)")
	projectsCmd.Flags().StringVar(&projectsSince, "since", "", "Only projects created after this time")
	projectsCmd.Flags().StringVar(&projectsUntil, "until", "", "Only projects created before this time")
	projectsCmd.Flags().StringVar(&projectsTitle, "title", "", "Title glob pattern")
	projectsCmd.Flags().StringVar(&projectsStage, "stage", "", "Stage filter")
	projectsCmd.Flags().StringVar(&projectsHealth, "health", "", "Health filter")
	projectsCmd.Flags().BoolVar(&showJSON, "json", false, "Show mode: print the project as JSON")
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	board, _, err := openBoard(ctx)
	if err != nil {
		return err
	}
	defer board.Close()

	if len(args) == 1 {
		return showProject(ctx, cmd, board, args[0])
	}

	format, err := catalog.ParseFormat(projectsOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}
	filter, err := projectsFilter(time.Now())
	if err != nil {
		return printer.Error("invalid filter", err.Error(), nil)
	}
	return catalog.ListProjects(ctx, board, format, filter, cmd.OutOrStdout())
}

func projectsFilter(now time.Time) (*catalog.Filter, error) {
	since, until, err := catalog.ParseRange(projectsSince, projectsUntil, now)
	if err != nil {
		return nil, err
	}
	filter := &catalog.Filter{
		SinceMs:   since,
		UntilMs:   until,
		TitleGlob: projectsTitle,
		Stage:     blackboard.Stage(strings.ToLower(projectsStage)),
		Health:    blackboard.ProjectHealth(strings.ToLower(projectsHealth)),
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

func showProject(ctx context.Context, cmd *cobra.Command, board *blackboard.Client, id string) error {
	project, err := catalog.GetProject(ctx, board, id)
	if err != nil {
		var amb *catalog.AmbiguousError
		switch {
		case errors.As(err, &amb):
			return printer.Error(
				fmt.Sprintf("ambiguous short ID '%s'", id),
				fmt.Sprintf("Matches %d projects:\n  %s", len(amb.Matches), strings.Join(amb.Candidates(), "\n  ")),
				[]string{"Use a longer prefix to identify the project"},
			)
		case catalog.IsNotFound(err):
			return printer.Error(
				fmt.Sprintf("project '%s' not found", id),
				fmt.Sprintf("No project on instance '%s' matches that ID.", board.InstanceName()),
				[]string{"List projects:\n  atelier projects"},
			)
		}
		return err
	}

	if showJSON {
		return catalog.FormatSingleJSON(cmd.OutOrStdout(), project)
	}
	catalog.FormatSummary(cmd.OutOrStdout(), project)
	return nil
}
