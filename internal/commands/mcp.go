package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/moasq/datalink/internal/connect"
	"github.com/moasq/datalink/internal/mcpserver"
	"github.com/moasq/datalink/internal/service"
)

var mcpCmd = &cobra.Command{
	Use:    "mcp",
	Short:  "Run the MCP server over stdio",
	Long:   "Starts an MCP server over stdio exposing list_integrations, list_items and load_items for the configured account. Connecting is not available here; use `datalink connect`.",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// stdout carries the protocol, so alerts only go to the log.
		svc, err := service.NewService(cfg, service.ServiceOpts{
			Notifier: connect.NotifierFunc(func(msg string) {
				slog.Warn("alert", "message", msg)
			}),
			Logger: slog.Default(),
		})
		if err != nil {
			return err
		}
		return mcpserver.Run(cmd.Context(), svc, Version)
	},
}
