package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dyluth/atelier/internal/generation"
	"github.com/dyluth/atelier/internal/printer"
	"github.com/dyluth/atelier/internal/strategy"
	"github.com/dyluth/atelier/internal/studio"
	"github.com/dyluth/atelier/pkg/blackboard"
	"github.com/spf13/cobra"
)

var weightsReset bool

var feedbackCmd = &cobra.Command{
	Use:   "feedback ROLE STRATEGY RATING",
	Short: "Rate a strategy by hand",
	Long: `Fold a 0-10 rating into an agent's strategy weight and persist it.

The weight moves a tenth of the way towards rating/10, the same update the
Director applies with the critique score.

Examples:
  atelier feedback stylist surreal 9
  atelier feedback ideator technical 2`,
	Args: cobra.ExactArgs(3),
	RunE: runFeedback,
}

var weightsCmd = &cobra.Command{
	Use:   "weights [ROLE]",
	Short: "Show learned strategy weights",
	Long: `Show each generation agent's strategy weights. Preferred strategies are
marked with '*'.

Examples:
  atelier weights
  atelier weights critic --reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWeights,
}

func init() {
	weightsCmd.Flags().BoolVar(&weightsReset, "reset", false, "Restore the declared default weights")
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(weightsCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	role := blackboard.Role(args[0])
	if !studio.IsGenerationRole(role) {
		return printer.Error(fmt.Sprintf("unknown role '%s'", args[0]), "Only generation agents have strategies.", []string{"Roles: ideator, stylist, refiner, critic"})
	}
	rating, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return printer.Error("invalid rating", fmt.Sprintf("%q is not a number", args[2]), []string{fmt.Sprintf("Ratings run from 0 to %v", strategy.MaxRating)})
	}

	ctx := context.Background()
	s, err := persistedStudio(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := s.ApplyFeedback(ctx, role, args[1], rating)
	if err != nil {
		return printer.Error("feedback rejected", err.Error(), []string{
			fmt.Sprintf("Strategies for %s: %v", role, generation.StrategyNames(role)),
		})
	}
	printer.Success("%s/%s weight now %.3f\n", role, args[1], w)
	return nil
}

func runWeights(cmd *cobra.Command, args []string) error {
	roles := studio.GenerationRoles
	if len(args) == 1 {
		role := blackboard.Role(args[0])
		if !studio.IsGenerationRole(role) {
			return printer.Error(fmt.Sprintf("unknown role '%s'", args[0]), "Only generation agents have strategies.", []string{"Roles: ideator, stylist, refiner, critic"})
		}
		roles = []blackboard.Role{role}
	}

	ctx := context.Background()
	s, err := persistedStudio(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	for i, role := range roles {
		if weightsReset {
			if err := s.ResetWeights(ctx, role); err != nil {
				return err
			}
		}
		weights, preferred, err := s.Weights(role)
		if err != nil {
			return err
		}
		if i > 0 {
			printer.Info("\n")
		}
		printer.Weights(role, weights, preferred)
	}
	return nil
}

// persistedStudio opens a Studio that must have a blackboard behind it.
func persistedStudio(ctx context.Context) (*studio.Studio, error) {
	s, _, err := openStudio(ctx)
	if err != nil {
		return nil, err
	}
	if s.Board() == nil {
		s.Close()
		return nil, errNoBoard()
	}
	return s, nil
}
