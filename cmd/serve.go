package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/kpiboard/internal/server"
)

var (
	serveListen    string
	serveRateLimit int
	serveTimeout   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pages, chart options and images over HTTP",
	Long: `Run an HTTP server that exposes the same page views as the CLI.

Routes:
  GET  /healthz
  GET  /api/points
  GET  /api/pages
  GET  /api/pages/{page}?filter=&start=&end=
  GET  /api/pages/{page}/charts/{title}?type=
  GET  /api/pages/{page}/charts/{title}/image?format=svg|png
  POST /api/pages/{page}/insights?chart=
  POST /api/pages/{page}/upload            (multipart field "file")

Filters given in the query are persisted like 'kpiboard filter set'.
Errors are returned as application/problem+json.`,
	Example: `  kpiboard serve
  kpiboard serve --listen 127.0.0.1:9000 --rate-limit 120`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}

		addr := serveListen
		if addr == "" {
			addr = deps.Config.ListenAddr
		}
		timeout := serveTimeout
		if timeout <= 0 {
			timeout = 2 * deps.Config.Timeout
		}

		srv := server.New(server.Options{
			Pages:     deps.Pages,
			Backend:   deps.Client,
			Store:     deps.KV,
			Quota:     deps.Quota,
			Logger:    slog.Default(),
			Timeout:   timeout,
			RateLimit: serveRateLimit,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !deps.Config.Quiet {
			fmt.Fprintf(os.Stderr, "Serving %s on %s (backend %s)\n", deps.Config.Store, addr, deps.Client.BaseURL())
		}
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: listen_addr from config)")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 60, "requests per minute per client IP (0 disables)")
	serveCmd.Flags().DurationVar(&serveTimeout, "request-timeout", 0, "per-request deadline (default: twice --timeout)")
}
