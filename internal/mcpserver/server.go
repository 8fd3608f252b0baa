// Package mcpserver exposes the local data connections to MCP clients over stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/moasq/datalink/internal/integrations"
)

// Source is what the tools read from.
type Source interface {
	Resolve(name string) (integrations.Provider, error)
	Statuses() []integrations.ConnectionStatus
	Items(ctx context.Context, p integrations.Provider) ([]integrations.Item, error)
	LoadText(ctx context.Context, p integrations.Provider) (string, error)
}

// NewServer builds the datalink MCP server backed by src.
func NewServer(src Source, version string) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "datalink",
			Version: version,
		},
		nil,
	)
	t := &tools{src: src}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_integrations",
		Description: "List the data providers (Notion, Airtable, HubSpot) and whether each is connected for the configured account, with the number of cached items.",
	}, t.listIntegrations)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_items",
		Description: "List the items (pages, bases, contacts) of a connected provider. Loads them from the backend if the connection has none cached yet.",
	}, t.listItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_items",
		Description: "Return the provider's raw load response as pretty-printed JSON. Read-only.",
	}, t.loadItems)

	return server
}

// Run starts the server over stdio.
// It blocks until the client disconnects or the context is cancelled.
func Run(ctx context.Context, src Source, version string) error {
	return NewServer(src, version).Run(ctx, &mcp.StdioTransport{})
}
