// Package connect drives the connect-and-poll authorization flow for a data
// provider and renders what it loads.
package connect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moasq/datalink/internal/integrations"
	"github.com/moasq/datalink/internal/logging"
)

// State is where a Widget is in the connect flow.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingCredentials
	LoadingItems
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingCredentials:
		return "awaiting_credentials"
	case LoadingItems:
		return "loading_items"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Backend is the part of the integrations backend a Widget calls.
type Backend interface {
	Authorize(ctx context.Context, p integrations.Provider) (string, error)
	Credentials(ctx context.Context, p integrations.Provider) (integrations.Credentials, error)
	Load(ctx context.Context, p integrations.Provider, creds integrations.Credentials) ([]integrations.Item, error)
}

// Options tune a Widget. The zero value is usable.
type Options struct {
	PollInterval time.Duration
	// PollTimeout caps how long the window may stay open; 0 waits until ctx ends.
	PollTimeout   time.Duration
	Notifier      Notifier
	Logger        *slog.Logger
	OnStateChange func(State)
}

// loadFlight is one in-progress item load. Concurrent triggers for the same
// credentials join it.
type loadFlight struct {
	creds  integrations.Credentials
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Widget connects one provider. It owns the connect state machine and keeps
// the shared Store's items in sync with its credentials.
type Widget struct {
	provider integrations.Provider
	backend  Backend
	store    *integrations.Store
	opener   Opener
	opts     Options
	log      *slog.Logger

	ctx         context.Context // widget lifetime; cancelled by Close
	cancel      context.CancelFunc
	unsubscribe func()

	// syncMu orders store notifications; syncedRev is the newest one applied.
	syncMu    sync.Mutex
	syncedRev uint64

	mu           sync.Mutex
	state        State
	poller       *Poller
	flight       *loadFlight
	triggered    bool
	triggeredRev uint64
}

// NewWidget creates a widget bound to store. It starts Connected when the
// store already holds credentials and immediately applies the item repair rule.
func NewWidget(p integrations.Provider, b Backend, store *integrations.Store, opener Opener, opts Options) *Widget {
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(logging.WithLogFields(context.Background(), logging.LogFields{
		Provider:  string(p.ID),
		Component: "connect.widget",
	}))

	w := &Widget{
		provider: p,
		backend:  b,
		store:    store,
		opener:   opener,
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	params, rev := store.Snapshot()
	if params.Connected() {
		w.state = Connected
	}
	w.unsubscribe = store.Subscribe(w.sync)
	w.sync(params, rev)
	return w
}

// Provider returns the provider this widget connects.
func (w *Widget) Provider() integrations.Provider { return w.provider }

// State returns the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Enabled reports whether the connect action is available.
func (w *Widget) Enabled() bool {
	return w.State() == Disconnected
}

// Loading reports whether an item load is in flight.
func (w *Widget) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flight != nil
}

// ButtonLabel is the text of the connect button for the current state.
func (w *Widget) ButtonLabel() string {
	switch w.State() {
	case Connected, LoadingItems:
		return w.provider.Name + " Connected"
	case Connecting, AwaitingCredentials:
		return "Connecting…"
	default:
		return "Connect to " + w.provider.Name
	}
}

// Items returns the items currently in the store, or nil if none are loaded.
func (w *Widget) Items() []integrations.Item {
	params, _ := w.store.Snapshot()
	if !params.Connected() {
		return nil
	}
	return params.Items
}

// RenderItems writes one line per loaded item.
func (w *Widget) RenderItems(out io.Writer) error {
	for _, item := range w.Items() {
		if _, err := fmt.Fprintln(out, item.Label()); err != nil {
			return err
		}
	}
	return nil
}

// Connect runs the whole authorization round trip: authorize, open the window,
// wait for it to close, fetch credentials, then load items. It is a no-op
// unless the widget is Disconnected. Failures before credentials are stored put
// the widget back in Disconnected, are shown through the Notifier, and are
// returned. An item load failure is shown but not returned; the widget still
// ends Connected.
func (w *Widget) Connect(ctx context.Context) error {
	if !w.transitionFrom(Disconnected, Connecting) {
		w.log.DebugContext(w.ctx, "connect ignored", "state", w.State().String())
		return nil
	}

	ctx, cancel := context.WithCancel(logging.WithLogFields(ctx, logging.LogFields{
		Provider:  string(w.provider.ID),
		SessionID: uuid.NewString(),
		Component: "connect.widget",
	}))
	defer cancel()
	stopOnClose := context.AfterFunc(w.ctx, cancel)
	defer stopOnClose()

	authURL, err := w.backend.Authorize(ctx, w.provider)
	if err == nil && authURL == "" {
		err = integrations.ErrNoAuthURL
	}
	if err != nil {
		return w.fail(ctx, &integrations.AuthorizationRequestError{Provider: w.provider.ID, Err: err}, "Authorization failed")
	}

	win, err := w.opener.Open(ctx, authURL, w.provider.Name+" Authorization")
	if err != nil {
		return w.fail(ctx, &integrations.AuthorizationRequestError{
			Provider: w.provider.ID,
			Err:      fmt.Errorf("open authorization window: %w", err),
		}, "Authorization failed")
	}
	w.log.InfoContext(ctx, "authorization window opened")

	if err := w.awaitWindow(ctx, win); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return w.fail(ctx, &integrations.AuthorizationRequestError{
				Provider: w.provider.ID,
				Err:      errors.New("authorization window was not closed in time"),
			}, "Authorization failed")
		}
		w.transition(Disconnected)
		w.log.InfoContext(ctx, "connect abandoned", "reason", err)
		return fmt.Errorf("waiting for %s authorization: %w", w.provider.Name, err)
	}
	w.transition(AwaitingCredentials)

	creds, err := w.backend.Credentials(ctx, w.provider)
	if err == nil && !creds.Present() {
		err = integrations.ErrNoCredentials
	}
	if err != nil {
		return w.fail(ctx, &integrations.CredentialsFetchError{Provider: w.provider.ID, Err: err}, "Failed to get credentials")
	}
	w.log.InfoContext(ctx, "credentials received")

	// The store update notifies sync, which starts the load; ensureItems joins it.
	w.store.Update(func(p integrations.Params) integrations.Params {
		p.Credentials = creds
		p.Type = w.provider.Name
		p.Items = nil
		return p
	})
	done := w.ensureItems()

	select {
	case <-done:
	case <-ctx.Done():
	}
	w.transitionFrom(LoadingItems, Connected)
	w.transitionFrom(AwaitingCredentials, Connected)
	return nil
}

// awaitWindow holds a Poller until win closes or ctx ends.
func (w *Widget) awaitWindow(ctx context.Context, win Window) error {
	poller := NewPoller(w.opts.PollInterval)
	w.mu.Lock()
	w.poller = poller
	w.mu.Unlock()
	defer func() {
		poller.Stop()
		w.mu.Lock()
		if w.poller == poller {
			w.poller = nil
		}
		w.mu.Unlock()
	}()

	if w.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.PollTimeout)
		defer cancel()
	}
	return poller.Wait(ctx, func() bool {
		return win == nil || win.Closed()
	})
}

// Sync re-applies the repair rule against the store's current params. Calling
// it again with unchanged params never issues another load.
func (w *Widget) Sync() {
	w.sync(w.store.Snapshot())
}

// sync recomputes connected-ness from credentials and loads items when
// credentials are present but items are not. Notifications may arrive out of
// order; one older than the last applied revision is dropped.
func (w *Widget) sync(p integrations.Params, rev uint64) {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	if w.ctx.Err() != nil || rev < w.syncedRev {
		return
	}
	w.syncedRev = rev

	if p.Connected() {
		w.transitionFrom(Disconnected, Connected)
	} else if !w.transitionFrom(Connected, Disconnected) {
		w.transitionFrom(LoadingItems, Disconnected)
	}
	if p.NeedsItems() {
		w.ensureItems()
	}
}

// ensureItems starts a load for the store's current revision unless one is in
// flight for the same credentials or one was already started for this
// revision. A flight for replaced credentials is cancelled. The returned
// channel closes when no load for the current credentials is pending.
func (w *Widget) ensureItems() <-chan struct{} {
	w.mu.Lock()
	params, rev := w.store.Snapshot()
	if f := w.flight; f != nil {
		if !params.NeedsItems() || bytes.Equal(f.creds, params.Credentials) {
			w.mu.Unlock()
			return f.done
		}
		f.cancel()
		w.flight = nil
	}
	if !params.NeedsItems() || (w.triggered && w.triggeredRev >= rev) || w.ctx.Err() != nil {
		w.mu.Unlock()
		return closedChan
	}
	ctx, cancel := context.WithCancel(w.ctx)
	f := &loadFlight{creds: params.Credentials, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	w.flight = f
	w.triggered = true
	w.triggeredRev = rev
	w.mu.Unlock()

	w.transitionFrom(AwaitingCredentials, LoadingItems)
	go w.fetchItems(f)
	return f.done
}

// fetchItems loads items for the flight's credentials and writes them to the store.
func (w *Widget) fetchItems(f *loadFlight) {
	ctx, creds := f.ctx, f.creds
	defer func() {
		w.mu.Lock()
		current := w.flight == f
		if current {
			w.flight = nil
		}
		w.mu.Unlock()
		if current {
			w.transitionFrom(LoadingItems, Connected)
		}
		f.cancel()
		close(f.done)
	}()

	items, err := w.backend.Load(ctx, w.provider, creds)
	if err != nil {
		if ctx.Err() != nil {
			w.log.DebugContext(ctx, "item load cancelled")
			return
		}
		loadErr := &integrations.ItemLoadError{Provider: w.provider.ID, Err: err}
		w.log.ErrorContext(ctx, "item load failed", "error", loadErr)
		w.opts.Notifier.Alert(fmt.Sprintf("Error fetching %s items: %s", w.provider.Name, integrations.UserMessage(err, "unknown error")))
		return
	}
	if items == nil {
		items = []integrations.Item{}
	}
	w.log.InfoContext(ctx, "items loaded", "count", len(items))
	w.store.Update(func(p integrations.Params) integrations.Params {
		// The credentials may have been replaced or reset while loading.
		if bytes.Equal(p.Credentials, creds) {
			p.Items = items
		}
		return p
	})
}

// Idle returns a channel that closes once no item load is in flight.
func (w *Widget) Idle() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flight == nil {
		return closedChan
	}
	return w.flight.done
}

// Close unmounts the widget: it stops polling, cancels in-flight work and
// stops following the store.
func (w *Widget) Close() {
	w.cancel()
	w.unsubscribe()
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// fail returns the widget to Disconnected and surfaces err.
func (w *Widget) fail(ctx context.Context, err error, fallback string) error {
	w.transition(Disconnected)
	w.log.ErrorContext(ctx, "connect failed", "error", err)
	w.opts.Notifier.Alert(integrations.UserMessage(err, fallback))
	return err
}

func (w *Widget) transition(to State) {
	w.mu.Lock()
	from := w.state
	w.state = to
	w.mu.Unlock()
	w.notifyState(from, to)
}

// transitionFrom moves to `to` only if the widget is in `from`.
func (w *Widget) transitionFrom(from, to State) bool {
	w.mu.Lock()
	if w.state != from {
		w.mu.Unlock()
		return false
	}
	w.state = to
	w.mu.Unlock()
	w.notifyState(from, to)
	return true
}

func (w *Widget) notifyState(from, to State) {
	if from == to {
		return
	}
	w.log.DebugContext(w.ctx, "state change", "from", from.String(), "to", to.String())
	if w.opts.OnStateChange != nil {
		w.opts.OnStateChange(to)
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
