package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
)

var insightFilter filterFlags

var insightCmd = &cobra.Command{
	Use:   "insight <page> <chart title>",
	Short: "Generate an AI insight for one chart",
	Long: `Ask the backend for a generated insight on one chart of a page.

Each successful insight spends one point from the shared balance; see
'kpiboard points'. Requests are refused once the balance reaches zero.
Markup in the returned text is stripped.`,
	Example: `  kpiboard insight financial Revenue Trend
  kpiboard insight risk "Fraud by Channel" --filter weekly`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		sel, err := insightFilter.selection()
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		c, err := openPage(cmd.Context(), deps, args[0], sel)
		if err != nil {
			return err
		}
		defer c.Close()

		cv, err := requireChart(c, chartTitle(args[1:]))
		if err != nil {
			return err
		}
		next, err := c.RequestInsight(cv.Title)
		if err != nil {
			return err
		}
		controller.Settle(c, next)

		cv, _ = c.Chart(cv.Title)
		if cv.Insight.Err != nil {
			return cv.Insight.Err
		}
		report := model.InsightReport{
			Page:    c.Page().Name,
			Chart:   cv.Title,
			Insight: cv.Insight.Text,
			Points:  c.Quota().Points(),
		}
		return emit(cmd.OutOrStdout(), deps,
			buildResult(model.KindInsight, "insight", report, 1, start))
	},
}

func init() {
	rootCmd.AddCommand(insightCmd)
	addFilterFlags(insightCmd, &insightFilter)
}
