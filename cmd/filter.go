package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/app"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Show and change a page's persisted filter",
	Long: `Commands for the per-page date filter.

The filter is stored under the page's name and restored the next time the
page is shown, in this CLI, the interactive view and the HTTP server alike.
The demographic page does not take a filter.`,
}

// ─── filter show ──────────────────────────────────────────────────────────────

var filterShowCmd = &cobra.Command{
	Use:     "show <page>",
	Short:   "Show the filter a page will be fetched with",
	Example: `  kpiboard filter show financial`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, args[0], "filter show", nil)
	},
}

// ─── filter set ───────────────────────────────────────────────────────────────

var filterSetFlags filterFlags

var filterSetCmd = &cobra.Command{
	Use:   "set <page> <preset>",
	Short: "Set and persist a page's filter",
	Long: `Set a page's filter preset. For a custom range pass --start and --end;
either may be set on its own and the other filled in later. A custom filter
with a missing date is saved but the page is not fetched until both are set.`,
	Example: `  kpiboard filter set risk weekly
  kpiboard filter set financial custom --start 2024-01-01 --end 2024-03-31
  kpiboard filter set financial custom --end 2024-06-30`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := filterSetFlags
		f.Preset = args[1]
		sel, err := f.selection()
		if err != nil {
			return err
		}
		return runFilter(cmd, args[0], "filter set", func(c *controller.Controller) error {
			return c.Apply(*sel)
		})
	},
}

// ─── filter reset ─────────────────────────────────────────────────────────────

var filterResetCmd = &cobra.Command{
	Use:     "reset <page>",
	Short:   "Return a page to the default filter (YTD)",
	Example: `  kpiboard filter reset operational`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, args[0], "filter reset", func(c *controller.Controller) error {
			_, err := c.ResetFilter()
			return err
		})
	},
}

// runFilter opens page without fetching, applies change and reports the
// resulting filter.
func runFilter(cmd *cobra.Command, page, command string, change func(*controller.Controller) error) error {
	start := time.Now()
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	c, err := deps.Controller(cmd.Context(), page)
	if err != nil {
		return err
	}
	defer c.Close()
	if change != nil {
		if err := change(c); err != nil {
			return err
		}
	}
	return emit(cmd.OutOrStdout(), deps,
		buildResult(model.KindFilter, command, filterReport(deps, c), 1, start))
}

func filterReport(deps *app.Deps, c *controller.Controller) model.FilterReport {
	sel := c.Selection()
	return model.FilterReport{
		Page:     c.Page().Name,
		Preset:   string(sel.Preset),
		Start:    sel.Start,
		End:      sel.End,
		Complete: sel.Complete(),
		Wire:     sel.Preset.Wire(filter.Casing(deps.Config.FilterCasing)),
	}
}

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.AddCommand(filterShowCmd)
	filterCmd.AddCommand(filterSetCmd)
	filterCmd.AddCommand(filterResetCmd)

	filterSetCmd.Flags().StringVar(&filterSetFlags.Start, "start", "", "custom range start (YYYY-MM-DD)")
	filterSetCmd.Flags().StringVar(&filterSetFlags.End, "end", "", "custom range end (YYYY-MM-DD)")
}
