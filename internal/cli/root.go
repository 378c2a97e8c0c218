package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/config"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shopboost",
	Short: "ShopBoost - AI landing pages for Shopify stores",
	Long: `ShopBoost builds landing pages for Shopify products from reusable
blocks, drafts layouts with Gemini and tracks views and revenue per page.

Settings come from flags, SHOPBOOST_* environment variables and an optional
config file (--config).

Running without a subcommand starts the server (same as 'shopboost serve').`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml, json or ini)")
	flags.String("db", "", "database path or connection string (default ./shopboost.db)")
	flags.String("driver", "", "store driver: sqlite, postgres, redis or memory (default sqlite)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().IntP("port", "p", 8080, "port to listen on")
}

// setup loads configuration and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if err := c.BindFlag(config.KeyDBDSN, flags.Lookup("db")); err != nil {
		return err
	}
	if err := c.BindFlag(config.KeyDBDriver, flags.Lookup("driver")); err != nil {
		return err
	}
	if f := flags.Lookup("port"); f != nil {
		if err := c.BindFlag(config.KeyServerPort, f); err != nil {
			return err
		}
	}
	if verbose {
		c.Set(config.KeyLogLevel, "debug")
	}

	cfg = c
	logger = c.Logger(os.Stderr)
	slog.SetDefault(logger)
	return nil
}
