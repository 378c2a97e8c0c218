package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/config"
	"github.com/shopboost/shopboost/internal/server"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the ShopBoost HTTP server.

The server provides:
  - Editor API under /api
  - Tracking script at /sb.js and beacon endpoint at /b
  - Dashboard for page revenue and views
  - Health check endpoint

Example:
  shopboost serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(_ context.Context, s store.Store) error {
		gen, err := newGenerator(ctx)
		if errors.Is(err, errNoAPIKey) {
			logger.Warn("layout generation disabled", "reason", err)
		} else if err != nil {
			return fmt.Errorf("failed to create generator: %w", err)
		}

		products := newProductSource()
		sessions := session.NewManager(s, products, logger,
			session.WithAutosaveDelay(cfg.GetDuration(config.KeyAutosaveDelay)))

		opts := server.Options{
			Store:             s,
			Sessions:          sessions,
			Generator:         gen,
			Products:          products,
			Port:              cfg.GetInt(config.KeyServerPort),
			TokenFile:         cfg.GetString(config.KeyTokenFile),
			BeaconRate:        cfg.GetInt(config.KeyBeaconRate),
			ReconcileSchedule: cfg.GetString(config.KeyReconcileSchedule),
			Logger:            logger,
		}
		srv, err := server.New(opts)
		if err != nil {
			return err
		}

		printStartupInstructions(cmd, opts.Port, srv.Token())
		return srv.Run(ctx, false)
	})
}

func printStartupInstructions(cmd *cobra.Command, port int, token string) {
	out := cmd.OutOrStdout()
	serverURL := fmt.Sprintf("http://localhost:%d", port)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Server running at %s\n", serverURL)
	fmt.Fprintf(out, "Dashboard: %s/dashboard?token=%s\n", serverURL, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Add the tracking script to a published page:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "   %s\n", server.Snippet(serverURL, "PAGE_ID"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Mark checkout buttons with data-sb-sale and data-sb-amount.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  list             List all pages")
	fmt.Fprintln(out, "  stats [ids]      Compare page conversion")
	fmt.Fprintln(out, "  otp              Show dashboard URL")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
