package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/atelier/internal/catalog"
	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/studio"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	createTitle        string
	createDescription  string
	createRequirements []string
	createBriefFile    string
	createJSON         bool
	createObserve      bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Run one brief through the studio",
	Long: `Run a creative brief through ideation, styling, refinement and critique.

The brief comes from flags or from a YAML file with title, description and
requirements. Without completion credentials every stage uses its fallback
output, so the pipeline still completes.

Examples:
  atelier create --title "Evolving Diffusion" \
    --description "Diffusion-based generative art that evolves its style" \
    --requirement "Balance abstract and recognizable forms"

  atelier create --brief brief.yml --json | jq .completed_tasks`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createTitle, "title", "t", "", "Brief title")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Brief description")
	createCmd.Flags().StringArrayVarP(&createRequirements, "requirement", "r", nil, "Brief requirement (repeatable)")
	createCmd.Flags().StringVarP(&createBriefFile, "brief", "b", "", "YAML file holding the brief")
	createCmd.Flags().BoolVar(&createJSON, "json", false, "Print the final project as JSON")
	createCmd.Flags().BoolVar(&createObserve, "observe", false, "Serve /healthz and /state while the project runs")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	brief, err := createBrief()
	if err != nil {
		return printer.Error("invalid brief", err.Error(), []string{
			"Pass --title (and optionally --description, --requirement)",
			"Pass --brief with a YAML file",
		})
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, cfg, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stop := startObserver(s, cfg, createObserve)
	defer stop()

	if !createJSON {
		printer.Step("Running %q\n", brief.Title)
	}
	project, err := s.Run(ctx, brief)
	if err != nil {
		return printer.Error("project was not started", err.Error(), nil)
	}

	if createJSON {
		return catalog.FormatSingleJSON(cmd.OutOrStdout(), project)
	}
	catalog.FormatSummary(cmd.OutOrStdout(), project)
	fmt.Fprintln(cmd.OutOrStdout())
	printer.Outcome(project)
	return nil
}

func createBrief() (blackboard.Brief, error) {
	if createBriefFile != "" {
		if createTitle != "" {
			return blackboard.Brief{}, fmt.Errorf("--brief and --title are mutually exclusive")
		}
		briefs, err := loadBriefs(createBriefFile)
		if err != nil {
			return blackboard.Brief{}, err
		}
		if len(briefs) != 1 {
			return blackboard.Brief{}, fmt.Errorf("%s holds %d briefs; use 'atelier batch' for more than one", createBriefFile, len(briefs))
		}
		return briefs[0], nil
	}
	if createTitle == "" {
		return blackboard.Brief{}, fmt.Errorf("a brief needs a title")
	}
	return briefFile{
		Title:        createTitle,
		Description:  createDescription,
		Requirements: createRequirements,
	}.brief(), nil
}

// startObserver serves the observer endpoints when enabled by flag or
// config. The returned func shuts it down.
func startObserver(s *studio.Studio, cfg *config.AtelierConfig, flag bool) func() {
	if !flag && !cfg.Observer.Enabled {
		return func() {}
	}
	obs := studio.NewObserverServer(s)
	if err := obs.Start(cfg.Observer.Addr); err != nil {
		printer.Warning("Observer not started: %v\n", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(ctx)
	}
}
