package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/app"
	"github.com/derickschaefer/kpiboard/internal/chart"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
)

// ─── chart ────────────────────────────────────────────────────────────────────

var (
	chartFilter       filterFlags
	chartType         string
	chartExport       string
	chartExportWidth  int
	chartExportHeight int
)

var chartCmd = &cobra.Command{
	Use:   "chart <page> <chart title>",
	Short: "Draw one chart of a page in the terminal or export it as an image",
	Long: `Draw one chart of a page in the terminal.

--type shows the chart as another visual type; list charts cannot be
switched to a plot and plots cannot be switched to a list. --export writes
an SVG or PNG image instead, chosen by the file extension. Horizontal bars
are exported as vertical bars.

Width auto-detects from $COLUMNS (falls back to 80).`,
	Example: `  kpiboard chart financial Revenue Trend
  kpiboard chart financial Revenue Trend --type bar
  kpiboard chart risk "Fraud by Channel" --export fraud.svg
  kpiboard chart dashboard Revenue Share --export share.png --width 800 --height 600`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		c, cv, err := openChart(cmd, deps, args, chartFilter, chartType)
		if err != nil {
			return err
		}
		defer c.Close()

		if chartExport == "" {
			return emit(cmd.OutOrStdout(), deps, buildResult(model.KindChart, "chart", cv, 1, start))
		}

		if cv.Chart == nil {
			return fmt.Errorf("%s: %s", cv.Title, cv.Error)
		}
		format, err := chart.FormatFromPath(chartExport)
		if err != nil {
			return err
		}
		f, err := os.Create(chartExport)
		if err != nil {
			return fmt.Errorf("creating %s: %w", chartExport, err)
		}
		err = chart.Export(f, cv.Chart, cv.Type, format, chart.ExportOptions{
			Width:  chartExportWidth,
			Height: chartExportHeight,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(chartExport)
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%s, %s)\n", chartExport, cv.Title, cv.Type)
		}
		return nil
	},
}

// ─── options ──────────────────────────────────────────────────────────────────

var (
	optionsFilter filterFlags
	optionsType   string
)

var optionsCmd = &cobra.Command{
	Use:   "options <page> <chart title>",
	Short: "Print the renderer option built for one chart",
	Long: `Print the option object a chart renderer receives for one chart: axes,
series, colors and tooltips. List charts print their items instead.`,
	Example: `  kpiboard options financial Revenue Trend
  kpiboard options financial Revenue Trend --type area
  kpiboard options customers "Segment Mix" --type donut --format json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		c, cv, err := openChart(cmd, deps, args, optionsFilter, optionsType)
		if err != nil {
			return err
		}
		defer c.Close()
		return emit(cmd.OutOrStdout(), deps, buildResult(model.KindOptions, "options", cv, 1, start))
	},
}

// openChart settles the page named by args[0] and returns the chart titled
// by the rest of args, switched to visual when it is set.
func openChart(cmd *cobra.Command, deps *app.Deps, args []string, ff filterFlags, visual string) (*controller.Controller, controller.ChartView, error) {
	sel, err := ff.selection()
	if err != nil {
		return nil, controller.ChartView{}, err
	}
	c, err := openPage(cmd.Context(), deps, args[0], sel)
	if err != nil {
		return nil, controller.ChartView{}, err
	}
	cv, err := requireChart(c, chartTitle(args[1:]))
	if err == nil && visual != "" {
		cv, err = switchType(c, cv.Title, visual)
	}
	if err != nil {
		c.Close()
		return nil, controller.ChartView{}, err
	}
	return c, cv, nil
}

// switchType applies a visual type override and returns the rebuilt chart.
func switchType(c *controller.Controller, title, visual string) (controller.ChartView, error) {
	t, err := model.ParseChartType(visual)
	if err != nil {
		return controller.ChartView{}, err
	}
	if err := c.SetChartType(title, t); err != nil {
		return controller.ChartView{}, err
	}
	cv, _ := c.Chart(title)
	return cv, nil
}

// parseTypeOverride splits a "title=visual" flag value.
func parseTypeOverride(s string) (title, visual string, err error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 || i == len(s)-1 {
		return "", "", errors.New("expected --type \"<chart title>=<type>\"")
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
}

func init() {
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(optionsCmd)

	addFilterFlags(chartCmd, &chartFilter)
	chartCmd.Flags().StringVar(&chartType, "type", "", "show as: bar|horizontal|stacked|line|area|dualaxis|pie|donut|gauge")
	chartCmd.Flags().StringVar(&chartExport, "export", "", "write an image to this path (.svg or .png)")
	chartCmd.Flags().IntVar(&chartExportWidth, "width", 0, "exported image width in pixels (default: 1024)")
	chartCmd.Flags().IntVar(&chartExportHeight, "height", 0, "exported image height in pixels (default: 512)")

	addFilterFlags(optionsCmd, &optionsFilter)
	optionsCmd.Flags().StringVar(&optionsType, "type", "", "build as: bar|horizontal|stacked|line|area|dualaxis|pie|donut|gauge|list")
}
