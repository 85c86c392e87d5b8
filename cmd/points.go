package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/model"
)

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Show or set the insight point balance",
	Long: `Insight requests spend points from a balance shared by every page.
The balance is kept in the store and starts at insight_points from config.`,
}

var pointsShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Show the remaining insight points",
	Example: `  kpiboard points show`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoints(cmd, "points show", nil)
	},
}

var pointsSetCmd = &cobra.Command{
	Use:     "set <n>",
	Short:   "Set the insight point balance",
	Example: `  kpiboard points set 10`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid point balance %q: expected a non-negative integer", args[0])
		}
		return runPoints(cmd, "points set", &n)
	},
}

func runPoints(cmd *cobra.Command, command string, set *int) error {
	start := time.Now()
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()
	if err := deps.OpenStore(); err != nil {
		return err
	}
	if set != nil {
		if err := deps.Quota.Set(*set); err != nil {
			return err
		}
	}
	report := model.PointsReport{Points: deps.Quota.Points(), Available: deps.Quota.Available()}
	return emit(cmd.OutOrStdout(), deps, buildResult(model.KindPoints, command, report, 1, start))
}

func init() {
	rootCmd.AddCommand(pointsCmd)
	pointsCmd.AddCommand(pointsShowCmd)
	pointsCmd.AddCommand(pointsSetCmd)
}
