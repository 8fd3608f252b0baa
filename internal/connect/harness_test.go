package connect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moasq/datalink/internal/backend"
	"github.com/moasq/datalink/internal/backend/backendtest"
	"github.com/moasq/datalink/internal/integrations"
)

// manualWindow is an authorization window the test closes by hand.
type manualWindow struct {
	closed atomic.Bool
}

func (w *manualWindow) Closed() bool { return w.closed.Load() }
func (w *manualWindow) Close()       { w.closed.Store(true) }

// recordingOpener hands out manualWindows and remembers what it opened.
type recordingOpener struct {
	mu      sync.Mutex
	urls    []string
	titles  []string
	windows []*manualWindow
	// closeAfter closes each window after the delay; 0 leaves it open.
	closeAfter time.Duration
	nilWindow  bool
}

func (o *recordingOpener) Open(_ context.Context, url, title string) (Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	o.titles = append(o.titles, title)
	if o.nilWindow {
		return nil, nil
	}
	win := &manualWindow{}
	o.windows = append(o.windows, win)
	if o.closeAfter > 0 {
		time.AfterFunc(o.closeAfter, win.Close)
	}
	return win, nil
}

func (o *recordingOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

// alertLog records alerts shown to the user.
type alertLog struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alertLog) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alertLog) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

type harness struct {
	srv    *backendtest.Server
	client *backend.Client
	opener *recordingOpener
	alerts *alertLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	return &harness{
		srv:    srv,
		client: backend.New(srv.URL, "u1", "acme"),
		opener: &recordingOpener{closeAfter: 30 * time.Millisecond},
		alerts: &alertLog{},
	}
}

func (h *harness) widget(t *testing.T, id integrations.ProviderID, store *integrations.Store) *Widget {
	t.Helper()
	p, ok := integrations.LookupProvider(id)
	if !ok {
		t.Fatalf("unknown provider %s", id)
	}
	w := NewWidget(p, h.client, store, h.opener, Options{
		PollInterval: 5 * time.Millisecond,
		Notifier:     h.alerts,
	})
	t.Cleanup(w.Close)
	return w
}

func waitIdle(t *testing.T, w *Widget) {
	t.Helper()
	select {
	case <-w.Idle():
	case <-time.After(5 * time.Second):
		t.Fatal("widget did not become idle")
	}
}
