package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/render"
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "List and show dashboard pages",
	Long: `Commands for listing dashboard pages and showing their metrics and charts.

Each page keeps its own filter. Passing --filter (with --start and --end for
a custom range) changes and persists that filter before fetching.`,
}

// ─── page list ────────────────────────────────────────────────────────────────

var pageListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List dashboard pages and their endpoints",
	Example: `  kpiboard page list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		pages := deps.Pages.All()
		return emit(cmd.OutOrStdout(), deps,
			buildResult(model.KindPages, "page list", pages, len(pages), start))
	},
}

// ─── page show ────────────────────────────────────────────────────────────────

var (
	pageShowFilter filterFlags
	pageShowAll    bool
	pageShowTypes  []string
)

var pageShowCmd = &cobra.Command{
	Use:   "show [page]",
	Short: "Fetch a page and show its metrics and charts",
	Long: `Fetch a page with its filter and show the metric cards and charts.

When the backend cannot be reached, the last cached response for the page
is shown with a warning. Use --no-cache to fail instead.`,
	Example: `  kpiboard page show financial
  kpiboard page show risk --filter weekly
  kpiboard page show operational --filter custom --start 2024-01-01 --end 2024-03-31
  kpiboard page show financial --type "Revenue Trend=bar"
  kpiboard page show --all --format jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		if pageShowAll == (len(args) == 1) {
			return errors.New("specify a page or --all")
		}
		if pageShowAll && len(pageShowTypes) > 0 {
			return errors.New("--type applies to a single page")
		}
		sel, err := pageShowFilter.selection()
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		if !pageShowAll {
			c, err := openPage(ctx, deps, args[0], sel)
			if err != nil {
				return err
			}
			defer c.Close()
			for _, o := range pageShowTypes {
				title, visual, err := parseTypeOverride(o)
				if err != nil {
					return err
				}
				cv, err := requireChart(c, title)
				if err != nil {
					return err
				}
				if _, err := switchType(c, cv.Title, visual); err != nil {
					return err
				}
			}
			v := c.View()
			result := buildResult(model.KindPage, "page show "+v.Page.Name, v, len(v.Metrics)+len(v.Charts), start)
			result.Stats.CacheHit = v.Stale
			result.Warnings = staleWarnings(v)
			return emit(cmd.OutOrStdout(), deps, result)
		}

		views, warnings := loadPages(ctx, deps, pageNames(deps), sel)
		for i, v := range views {
			if i > 0 && resolveFormat(deps.Config.Format) == render.FormatTable {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			result := buildResult(model.KindPage, "page show "+v.Page.Name, v, len(v.Metrics)+len(v.Charts), start)
			result.Stats.CacheHit = v.Stale
			if i == len(views)-1 {
				result.Warnings = warnings
			}
			if err := emit(cmd.OutOrStdout(), deps, result); err != nil {
				return err
			}
		}
		if len(views) == 0 {
			return fmt.Errorf("no page could be loaded:\n  %s", strings.Join(warnings, "\n  "))
		}
		return nil
	},
}

// ─── page watch ───────────────────────────────────────────────────────────────

var (
	pageWatchFilter   filterFlags
	pageWatchInterval time.Duration
)

var pageWatchCmd = &cobra.Command{
	Use:   "watch <page>",
	Short: "Show a page and refresh it on an interval",
	Long: `Show a page and refetch it every --interval until interrupted.

The interval defaults to refresh_interval from config. Each redraw shows the
latest response; a failed refresh keeps the previous data on screen.`,
	Example: `  kpiboard page watch dashboard
  kpiboard page watch risk --interval 30s --filter today`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := pageWatchFilter.selection()
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		interval := pageWatchInterval
		if interval <= 0 {
			interval = deps.Config.RefreshInterval
		}
		if interval <= 0 {
			return errors.New("refresh interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := deps.Controller(ctx, args[0])
		if err != nil {
			return err
		}
		if sel != nil {
			if err := c.Apply(*sel); err != nil {
				c.Close()
				return err
			}
		}

		format := resolveFormat(deps.Config.Format)
		w := cmd.OutOrStdout()
		loop := controller.NewLoop(c, func(v controller.View) {
			if v.Status == controller.StatusLoading && len(v.Metrics) == 0 && len(v.Charts) == 0 {
				return
			}
			if format == render.FormatTable {
				fmt.Fprint(w, "\033[H\033[2J")
			}
			result := buildResult(model.KindPage, "page watch "+v.Page.Name, v, len(v.Metrics)+len(v.Charts), time.Now())
			result.Warnings = staleWarnings(v)
			if err := render.Render(w, result, format); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			if format == render.FormatTable {
				fmt.Fprintf(w, "\nRefreshing every %s. Press Ctrl+C to stop.\n", interval)
			}
		})
		if err := loop.Run(ctx, c.Tick(interval)); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pageCmd)
	pageCmd.AddCommand(pageListCmd)
	pageCmd.AddCommand(pageShowCmd)
	pageCmd.AddCommand(pageWatchCmd)

	addFilterFlags(pageShowCmd, &pageShowFilter)
	pageShowCmd.Flags().BoolVar(&pageShowAll, "all", false, "show every page")
	pageShowCmd.Flags().StringArrayVar(&pageShowTypes, "type", nil, "show a chart as another type: \"<chart title>=<type>\" (repeatable)")

	addFilterFlags(pageWatchCmd, &pageWatchFilter)
	pageWatchCmd.Flags().DurationVar(&pageWatchInterval, "interval", 0, "refresh interval (default: refresh_interval from config)")
}

// addFilterFlags registers --filter, --start and --end on cmd.
func addFilterFlags(cmd *cobra.Command, f *filterFlags) {
	cmd.Flags().StringVar(&f.Preset, "filter", "", "filter: today|yesterday|daily|weekly|monthly|mtd|ytd|custom")
	cmd.Flags().StringVar(&f.Start, "start", "", "custom range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.End, "end", "", "custom range end (YYYY-MM-DD)")
}
