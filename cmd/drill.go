package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/client"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
)

var (
	drillPage  string
	drillQuery client.DrillQuery
	drillLevel int
)

var drillCmd = &cobra.Command{
	Use:   "drill <chartKey>",
	Short: "Fetch a drill-down chart",
	Long: `Fetch a drill-down breakdown of a drillable chart. The chart key and the
next dimension come from the chart's chart_key and next_chart fields in
'page show --format json'. Level 2 needs the value picked at level 1.

The page's persisted filter is sent with the request.`,
	Example: `  kpiboard drill revenue_by_region --dimension region
  kpiboard drill revenue_by_region --level 2 --dimension city --dimension1 region --parent West`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		q := drillQuery
		q.ChartKey = args[0]
		switch drillLevel {
		case 1:
			q.Level = client.DrillLevel1
		case 2:
			q.Level = client.DrillLevel2
		default:
			return errors.New("--level must be 1 or 2")
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		c, err := deps.Controller(cmd.Context(), drillPage)
		if err != nil {
			return err
		}
		defer c.Close()
		controller.Settle(c, c.Drill(q))

		v := c.View()
		for _, cv := range v.Charts {
			if cv.Drill {
				return emit(cmd.OutOrStdout(), deps, buildResult(model.KindChart, "drill", cv, 1, start))
			}
		}
		if v.Notice != "" {
			return errors.New(strings.TrimSpace(v.Notice))
		}
		return errors.New("drill: no chart returned")
	},
}

func init() {
	rootCmd.AddCommand(drillCmd)
	f := drillCmd.Flags()
	f.StringVar(&drillPage, "page", "dashboard", "page whose filter the drill uses")
	f.IntVar(&drillLevel, "level", 1, "drill level: 1|2")
	f.StringVar(&drillQuery.Dimension, "dimension", "", "dimension to break down by (required)")
	f.StringVar(&drillQuery.Dimension1, "dimension1", "", "level-1 dimension, for level 2")
	f.StringVar(&drillQuery.ParentValue, "parent", "", "value picked at level 1, for level 2")
	f.StringVar(&drillQuery.BaseValue, "base", "", "base value of the drilled point")
	_ = drillCmd.MarkFlagRequired("dimension")
}
