package integrations

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProviderID identifies a data-source provider. It is the key used in backend URLs.
type ProviderID string

const (
	ProviderNotion   ProviderID = "notion"
	ProviderAirtable ProviderID = "airtable"
	ProviderHubSpot  ProviderID = "hubspot"
)

// Credentials is the opaque value the backend issues after authorization.
// It is never inspected, only round-tripped to the load endpoint.
type Credentials json.RawMessage

// Present reports whether the backend actually returned something.
// Empty bodies, null and the empty string all count as absent.
func (c Credentials) Present() bool {
	trimmed := bytes.TrimSpace(c)
	switch string(trimmed) {
	case "", "null", `""`:
		return false
	}
	return true
}

// MarshalJSON emits the raw value, or null when absent.
func (c Credentials) MarshalJSON() ([]byte, error) {
	if !c.Present() {
		return []byte("null"), nil
	}
	return bytes.TrimSpace(c), nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (c *Credentials) UnmarshalJSON(data []byte) error {
	*c = append((*c)[:0], data...)
	return nil
}

// ItemID is an item identifier. Providers send either strings or numbers.
type ItemID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// Item is one entry returned by a provider's load endpoint.
type Item struct {
	ID   ItemID `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Label renders the item the way the item list shows it: "Doc (page)".
func (i Item) Label() string {
	if i.Type == "" {
		return i.Name
	}
	return i.Name + " (" + i.Type + ")"
}

// Key returns a stable key for the item, falling back to its name.
func (i Item) Key() string {
	if i.ID != "" {
		return string(i.ID)
	}
	return i.Name
}

// Params is the shared integration state a parent owns and widgets update.
// Items is only meaningful while Credentials is present; nil means "not loaded".
type Params struct {
	Credentials Credentials `json:"credentials,omitempty"`
	Type        string      `json:"type,omitempty"`
	Items       []Item      `json:"items,omitempty"`
}

// Connected reports whether credentials are present.
func (p Params) Connected() bool {
	return p.Credentials.Present()
}

// NeedsItems reports whether the reactive repair rule applies.
func (p Params) NeedsItems() bool {
	return p.Connected() && p.Items == nil
}

// clone deep-copies p so callers never share slices with the store.
func (p Params) clone() Params {
	cp := Params{Type: p.Type}
	if p.Credentials != nil {
		cp.Credentials = append(Credentials(nil), p.Credentials...)
	}
	if p.Items != nil {
		cp.Items = append(make([]Item, 0, len(p.Items)), p.Items...)
	}
	return cp
}

// ConnectionStatus summarizes the local state of a provider for an account.
type ConnectionStatus struct {
	Provider    ProviderID `json:"provider"`
	Name        string     `json:"name"`
	Account     string     `json:"account,omitempty"`
	Connected   bool       `json:"connected"`
	ItemCount   int        `json:"item_count"`
	ItemsLoaded bool       `json:"items_loaded"`
	ConnectedAt string     `json:"connected_at,omitempty"`
}

// AccountKey builds the per-account key for a (user, org) pair: "org:user".
func AccountKey(userID, orgID string) string {
	return orgID + ":" + userID
}
