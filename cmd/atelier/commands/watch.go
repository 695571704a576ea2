package commands

import (
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchProject      string
	watchUntilDone    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream agent messages in real time",
	Long: `Stream every message routed between agents, as published on the
blackboard by running studios.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Follow all activity
  atelier watch

  # Follow one project until it completes, stalls or is canceled
  atelier watch --project 550e84 --until-done

  # Export events
  atelier watch --output=json > events.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVarP(&watchProject, "project", "p", "", "Only events for this project ID or prefix")
	watchCmd.Flags().BoolVar(&watchUntilDone, "until-done", false, "Exit once a watched project finishes")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts := watch.Options{ProjectID: watchProject}
	switch watchOutputFormat {
	case "default":
		opts.Format = watch.OutputFormatDefault
	case "json":
		opts.Format = watch.OutputFormatJSON
	default:
		return printer.Error("invalid output format", "Unknown format: "+watchOutputFormat, []string{"Valid formats: default, json"})
	}
	if watchUntilDone {
		opts.Until = watch.ProjectFinished
	}

	ctx, cancel := signalContext()
	defer cancel()

	board, _, err := openBoard(ctx)
	if err != nil {
		return err
	}
	defer board.Close()

	return watch.StreamMessages(ctx, board, opts, cmd.OutOrStdout())
}
