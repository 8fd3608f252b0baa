package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/moasq/datalink/internal/integrations"
)

// RawLoader returns a provider's load response without decoding it.
type RawLoader interface {
	LoadRaw(ctx context.Context, p integrations.Provider, creds integrations.Credentials) (json.RawMessage, error)
}

// Viewer loads a provider's data once per request and keeps it as
// read-only, pretty-printed text.
type Viewer struct {
	loader   RawLoader
	notifier Notifier
	log      *slog.Logger

	mu   sync.Mutex
	text string
}

// NewViewer creates a viewer. A nil notifier discards alerts.
func NewViewer(loader RawLoader, notifier Notifier, log *slog.Logger) *Viewer {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Viewer{loader: loader, notifier: notifier, log: log}
}

// Load fetches data for p with creds and replaces the displayed text.
// A zero Provider means none is selected. Nothing is retried.
func (v *Viewer) Load(ctx context.Context, p integrations.Provider, creds integrations.Credentials) error {
	if p.ID == "" {
		return v.alert(&integrations.MissingPreconditionError{Missing: "provider"}, "")
	}
	if !creds.Present() {
		return v.alert(&integrations.MissingPreconditionError{Provider: p.ID, Missing: "credentials"}, "")
	}

	raw, err := v.loader.LoadRaw(ctx, p, creds)
	if err != nil {
		return v.alert(&integrations.ItemLoadError{Provider: p.ID, Err: err}, "Error loading data")
	}
	v.log.DebugContext(ctx, "loaded data", "provider", p.ID, "bytes", len(raw))

	v.mu.Lock()
	v.text = prettyJSON(raw)
	v.mu.Unlock()
	return nil
}

// Clear discards the displayed text. Backend and shared state are untouched.
func (v *Viewer) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.text = ""
}

// Text returns the displayed text, "" when nothing is loaded.
func (v *Viewer) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

func (v *Viewer) alert(err error, fallback string) error {
	v.log.Error("data load failed", "error", err)
	v.notifier.Alert(integrations.UserMessage(err, fallback))
	return err
}

// prettyJSON indents raw with two spaces; non-JSON is shown as-is.
func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
