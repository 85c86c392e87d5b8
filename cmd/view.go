package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/tui"
)

var viewNoRefresh bool

var viewCmd = &cobra.Command{
	Use:   "view [page]",
	Short: "Open the interactive dashboard",
	Long: `Open a full-screen dashboard. Pages refresh every refresh_interval.

Keys:
  tab / shift+tab   next / previous page
  j / k             next / previous chart
  f                 cycle filter preset
  c                 enter a custom date range
  x                 reset the filter
  t                 cycle the selected chart's type
  i                 generate an insight for the selected chart
  r                 refresh
  q                 quit

Logs are written to kpiboard.log next to the database.`,
	Example: `  kpiboard view
  kpiboard view risk`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		logPath := deps.Config.LogPath()
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
		setupLogging(logFile)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		start := ""
		if len(args) == 1 {
			start = args[0]
			if _, err := deps.Pages.Lookup(start); err != nil {
				return err
			}
		}
		refresh := deps.Config.RefreshInterval
		if viewNoRefresh {
			refresh = 0
		}
		return tui.Run(ctx, tui.Options{
			Pages: deps.Pages.All(),
			Open: func(page string) (*controller.Controller, error) {
				return deps.Controller(ctx, page)
			},
			Start:   start,
			Refresh: refresh,
		})
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().BoolVar(&viewNoRefresh, "no-refresh", false, "disable periodic refresh")
}
