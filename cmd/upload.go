package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/app"
	"github.com/derickschaefer/kpiboard/internal/controller"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/watch"
)

var (
	uploadPage     string
	uploadWatch    bool
	uploadDebounce time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a data file and replace a page with the derived KPIs",
	Long: `Upload a CSV or Excel file to the backend. The KPIs it returns replace the
page's metrics and charts and are cached as the page's last response, so
'page show' keeps showing them until the next successful fetch.

With --watch the file is uploaded again every time it is saved.`,
	Example: `  kpiboard upload transactions.csv
  kpiboard upload q3.xlsx --page financial
  kpiboard upload transactions.csv --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		if !uploadWatch {
			return uploadOnce(cmd.Context(), cmd, deps, path)
		}

		w, err := watch.New(path, uploadDebounce)
		if err != nil {
			return err
		}
		defer w.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := uploadOnce(ctx, cmd, deps, path); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(os.Stderr, "Watching %s. Press Ctrl+C to stop.\n", w.Path())
		}
		err = w.Run(ctx, func(p string) {
			if err := uploadOnce(ctx, cmd, deps, p); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// uploadOnce sends path through the page controller and reports the result.
func uploadOnce(ctx context.Context, cmd *cobra.Command, deps *app.Deps, path string) error {
	start := time.Now()
	c, err := deps.Controller(ctx, uploadPage)
	if err != nil {
		return err
	}
	defer c.Close()

	name := filepath.Base(path)
	controller.Settle(c, c.Upload(name, func() (io.ReadCloser, error) {
		return os.Open(path)
	}))
	v := c.View()
	if v.Status != controller.StatusReady {
		return errors.New(v.Notice)
	}
	report := model.UploadReport{
		Page:    v.Page.Name,
		File:    name,
		Metrics: len(v.Metrics),
		Charts:  len(v.Charts),
		Ignored: v.Ignored,
	}
	return emit(cmd.OutOrStdout(), deps, buildResult(model.KindUpload, "upload", report, 1, start))
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadPage, "page", "dashboard", "page whose content the upload replaces")
	uploadCmd.Flags().BoolVar(&uploadWatch, "watch", false, "upload again whenever the file changes")
	uploadCmd.Flags().DurationVar(&uploadDebounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is uploaded")
}
