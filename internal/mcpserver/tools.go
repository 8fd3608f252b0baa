package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/moasq/datalink/internal/integrations"
)

type tools struct {
	src Source
}

// --- list_integrations ---

type listIntegrationsInput struct{}

type listIntegrationsOutput struct {
	Integrations []integrations.ConnectionStatus `json:"integrations"`
}

func (t *tools) listIntegrations(ctx context.Context, req *mcp.CallToolRequest, input listIntegrationsInput) (*mcp.CallToolResult, listIntegrationsOutput, error) {
	return nil, listIntegrationsOutput{Integrations: t.src.Statuses()}, nil
}

// --- list_items ---

type providerInput struct {
	Provider string `json:"provider" jsonschema:"Provider ID or name: notion, airtable or hubspot"`
}

type itemView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Label string `json:"label"`
}

type listItemsOutput struct {
	Provider string     `json:"provider"`
	Items    []itemView `json:"items"`
}

func (t *tools) listItems(ctx context.Context, req *mcp.CallToolRequest, input providerInput) (*mcp.CallToolResult, listItemsOutput, error) {
	p, err := t.resolve(input.Provider)
	if err != nil {
		return nil, listItemsOutput{}, err
	}
	items, err := t.src.Items(ctx, p)
	if err != nil {
		return nil, listItemsOutput{}, toolError(err)
	}
	out := listItemsOutput{Provider: string(p.ID), Items: make([]itemView, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, itemView{ID: it.Key(), Name: it.Name, Type: it.Type, Label: it.Label()})
	}
	return nil, out, nil
}

// --- load_items ---

type loadItemsOutput struct {
	Provider string `json:"provider"`
	Data     string `json:"data"`
}

func (t *tools) loadItems(ctx context.Context, req *mcp.CallToolRequest, input providerInput) (*mcp.CallToolResult, loadItemsOutput, error) {
	p, err := t.resolve(input.Provider)
	if err != nil {
		return nil, loadItemsOutput{}, err
	}
	text, err := t.src.LoadText(ctx, p)
	if err != nil {
		return nil, loadItemsOutput{}, toolError(err)
	}
	return nil, loadItemsOutput{Provider: string(p.ID), Data: text}, nil
}

func (t *tools) resolve(name string) (integrations.Provider, error) {
	if name == "" {
		return integrations.Provider{}, fmt.Errorf("provider is required")
	}
	return t.src.Resolve(name)
}

// toolError keeps the backend's message, which is what a user would have seen.
func toolError(err error) error {
	return errors.New(integrations.UserMessage(err, err.Error()))
}
