package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopboost/shopboost/internal/config"
)

var otpCmd = &cobra.Command{
	Use:     "otp",
	Aliases: []string{"token"},
	Short:   "Show dashboard URL with access token",
	Long: `Show the dashboard URL with the current access token.

Use this when you've scrolled past the startup message. The token changes
every time the server starts.

Example:
  shopboost otp`,
	RunE: runOTP,
}

func init() {
	rootCmd.AddCommand(otpCmd)
}

func runOTP(cmd *cobra.Command, args []string) error {
	tokenFile := cfg.GetString(config.KeyTokenFile)

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running (token file not found)\nStart the server with: shopboost serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: shopboost serve")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: http://localhost:%d/dashboard?token=%s\n", cfg.GetInt(config.KeyServerPort), token)
	return nil
}
