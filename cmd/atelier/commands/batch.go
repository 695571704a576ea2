package commands

import (
	"fmt"

	"github.com/dyluth/atelier/internal/catalog"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	batchParallelism int
	batchObserve     bool
	batchOutput      string
)

var batchCmd = &cobra.Command{
	Use:   "batch BRIEFS_FILE",
	Short: "Run several briefs concurrently",
	Long: `Run every brief in a YAML file, each through its own set of agents.

The file holds a list of briefs, or a mapping with a 'briefs' list.
Projects share the studio's strategy weights, so feedback from one project
influences strategy selection in the next.

Examples:
  atelier batch briefs.yml
  atelier batch briefs.yml --parallel 8 --output jsonl > results.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchParallelism, "parallel", "p", 0, "Concurrent projects (default: batch.parallelism)")
	batchCmd.Flags().BoolVar(&batchObserve, "observe", false, "Serve /healthz and /state while the batch runs")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "default", "Output format (default or jsonl)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	format, err := catalog.ParseFormat(batchOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	briefs, err := loadBriefs(args[0])
	if err != nil {
		return printer.ErrorWithContext("invalid briefs file", err.Error(), map[string]string{"File": args[0]}, nil)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if batchParallelism < 0 {
		return printer.Error("invalid --parallel", fmt.Sprintf("--parallel must be >= 1, got %d", batchParallelism), nil)
	}

	s, cfg, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if batchParallelism > 0 {
		cfg.Batch.Parallelism = batchParallelism
	}

	stop := startObserver(s, cfg, batchObserve)
	defer stop()

	if format == catalog.OutputFormatDefault {
		printer.Step("Running %d briefs, %d at a time\n", len(briefs), cfg.Batch.Parallelism)
	}
	projects, runErr := s.RunBatch(ctx, briefs)

	switch format {
	case catalog.OutputFormatJSONL:
		var done []*blackboard.Project
		for _, p := range projects {
			if p != nil {
				done = append(done, p)
			}
		}
		if err := catalog.FormatJSONL(cmd.OutOrStdout(), done); err != nil {
			return err
		}
	default:
		for i, p := range projects {
			if p == nil {
				printer.Warning("Brief %d (%q) was not started\n", i+1, briefs[i].Title)
				continue
			}
			printer.Outcome(p)
		}
	}

	if runErr != nil {
		return printer.Error("some briefs failed", runErr.Error(), nil)
	}
	return nil
}
