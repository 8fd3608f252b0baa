package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moasq/datalink/internal/terminal"
)

// Version is set at build time.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "datalink",
	Short:   "Connect Notion, Airtable and HubSpot through the integrations backend",
	Long:    "datalink runs the connect-and-poll authorization flow against an integrations backend, keeps the resulting connections locally, and lists or loads the connected data.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if terminal.IsInteractive() {
			terminal.Banner(Version)
		}
		return listRun(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Ctrl+C cancels any flow in progress.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.datalink/config.yaml)")
	pf.StringVar(&flags.backend, "backend", "", "integrations backend base URL")
	pf.StringVar(&flags.user, "user", "", "user ID sent to the backend")
	pf.StringVar(&flags.org, "org", "", "organization ID sent to the backend")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(mcpCmd)
}
