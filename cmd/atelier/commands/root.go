package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/atelier/internal/config"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/studio"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	instanceName string
)

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Atelier - multi-agent art creation studio",
	Long: `Atelier runs creative briefs through a pipeline of cooperating agents.

A Director walks each project through planning, styling, refinement and
critique. The Ideator, Stylist, Refiner and Critic each pick a strategy for
the brief, and learn from the critique which strategies work.

Configuration is read from atelier.yml when present. API keys come from
OPENAI_API_KEY, ANTHROPIC_API_KEY and REPLICATE_API_KEY; REDIS_URL enables
the persistent blackboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to atelier.yml")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", "", "Instance name (overrides config and ATELIER_INSTANCE_NAME)")
}

// loadConfig reads the configuration, falling back to defaults when the
// file is missing.
func loadConfig() (*config.AtelierConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Fix the file or remove it to run with defaults"},
		)
	}
	if instanceName != "" {
		cfg.Instance = instanceName
	}
	return cfg, nil
}

// openStudio loads configuration and builds a Studio around it.
func openStudio(ctx context.Context) (*studio.Studio, *config.AtelierConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := studio.Open(ctx, cfg)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"failed to start studio",
			err.Error(),
			map[string]string{"Instance": cfg.Instance},
			nil,
		)
	}
	return s, cfg, nil
}

// openBoard connects to the blackboard for commands that only read or
// write persisted state.
func openBoard(ctx context.Context) (*blackboard.Client, *config.AtelierConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	board, err := studio.OpenBoard(ctx, cfg)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"Redis connection failed",
			err.Error(),
			map[string]string{"Instance": cfg.Instance},
			[]string{"Check that Redis is running and redis.url (or REDIS_URL) is correct"},
		)
	}
	if board == nil {
		return nil, nil, errNoBoard()
	}
	return board, cfg, nil
}

func errNoBoard() error {
	return printer.Error(
		"no blackboard configured",
		"This command needs persisted state, but no Redis URL is configured.",
		[]string{
			"Set redis.url in atelier.yml",
			"Export REDIS_URL=redis://localhost:6379",
		},
	)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
