package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/client"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

// generatedPage presents /generate_kpis as an unfiltered page.
var generatedPage = controller.Page{
	Name:     "kpis",
	Title:    "Generated KPIs",
	Endpoint: "generate_kpis",
}

// kpisBackend serves the generated KPI set in place of a page endpoint.
type kpisBackend struct {
	*client.Client
}

func (b kpisBackend) FetchDashboard(ctx context.Context, _ string, _ filter.Selection) (*model.Dashboard, error) {
	return b.GenerateKPIs(ctx)
}

var kpisCmd = &cobra.Command{
	Use:   "kpis",
	Short: "Show the KPI set from the legacy /generate_kpis endpoint",
	Long: `Fetch the unfiltered KPI set the backend generates from its current data
and show it like a page. The result is not cached.`,
	Example: `  kpiboard kpis
  kpiboard kpis --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		c, err := controller.New(cmd.Context(), controller.Options{
			Page:    generatedPage,
			Backend: kpisBackend{deps.Client},
			Store:   store.NewMemory(),
		})
		if err != nil {
			return err
		}
		defer c.Close()
		controller.Settle(c, c.Init())

		v := c.View()
		if err := loadError(v, true); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), deps,
			buildResult(model.KindPage, "kpis", v, len(v.Metrics)+len(v.Charts), start))
	},
}

func init() {
	rootCmd.AddCommand(kpisCmd)
}
