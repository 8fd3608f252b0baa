// Package service wires configuration, local connection storage, the backend
// client and connect widgets together for the CLI and the MCP server.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/moasq/datalink/internal/backend"
	"github.com/moasq/datalink/internal/config"
	"github.com/moasq/datalink/internal/connect"
	"github.com/moasq/datalink/internal/integrations"
	"github.com/moasq/datalink/internal/integrations/secrets"
	"github.com/moasq/datalink/internal/logging"
)

// Service coordinates connect flows for one account.
type Service struct {
	config   *config.Config
	registry *integrations.Registry
	conns    *integrations.ConnectionStore
	client   *backend.Client
	notifier connect.Notifier
	opener   connect.Opener
	log      *slog.Logger
}

// ServiceOpts holds optional dependencies. Zero fields get production defaults.
type ServiceOpts struct {
	Notifier   connect.Notifier
	Opener     connect.Opener
	HTTPClient *http.Client
	Secrets    secrets.SecretStore
	Logger     *slog.Logger
}

// NewService creates a service from a validated config.
func NewService(cfg *config.Config, opts ...ServiceOpts) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o ServiceOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Secrets == nil {
		o.Secrets = secrets.New(cfg.StateDir)
	}

	conns := integrations.NewConnectionStoreWithSecrets(cfg.StateDir, o.Secrets)
	if err := conns.Load(); err != nil {
		return nil, err
	}

	clientOpts := []backend.Option{backend.WithTimeout(cfg.HTTPTimeout)}
	if o.HTTPClient != nil {
		clientOpts = []backend.Option{backend.WithHTTPClient(o.HTTPClient)}
	}

	return &Service{
		config:   cfg,
		registry: integrations.DefaultRegistry(cfg.LoadEndpoints()),
		conns:    conns,
		client:   backend.New(cfg.BackendURL, cfg.UserID, cfg.OrgID, clientOpts...),
		notifier: o.Notifier,
		opener:   o.Opener,
		log:      o.Logger,
	}, nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config { return s.config }

// Providers returns every registered provider.
func (s *Service) Providers() []integrations.Provider { return s.registry.All() }

// Resolve finds a provider by ID or display name.
func (s *Service) Resolve(name string) (integrations.Provider, error) {
	return s.registry.Resolve(name)
}

// Statuses reports the local connection state of every provider.
func (s *Service) Statuses() []integrations.ConnectionStatus {
	return s.conns.Statuses(s.registry.All(), s.config.Account())
}

// Ping checks that the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(s.withFields(ctx))
}

// Session is a mounted widget whose store is persisted for the account.
type Session struct {
	Widget *connect.Widget
	Store  *integrations.Store
	close  func()
}

// Close unmounts the widget and stops persisting its store.
func (s *Session) Close() { s.close() }

// Open mounts a widget for p, seeded from the persisted connection. Every
// store update is saved back. Mounting applies the repair rule, so a stored
// connection without items starts loading right away.
func (s *Service) Open(p integrations.Provider, onState func(connect.State)) (*Session, error) {
	account := s.config.Account()
	conn, err := s.conns.Get(p.ID, account)
	if err != nil {
		return nil, err
	}
	store := integrations.NewStore(conn.Params())
	unpersist := store.Subscribe(s.conns.Persist(p.ID, account, func(err error) {
		s.log.Error("persist connection failed", "provider", p.ID, "error", err)
	}))

	w := connect.NewWidget(p, s.client, store, s.opener, connect.Options{
		PollInterval:  s.config.PollInterval,
		PollTimeout:   s.config.PollTimeout,
		Notifier:      s.notifier,
		Logger:        s.log,
		OnStateChange: onState,
	})
	return &Session{
		Widget: w,
		Store:  store,
		close: func() {
			w.Close()
			unpersist()
		},
	}, nil
}

// Connect runs the connect flow for p and returns the session so callers can
// render items. The session must be closed.
func (s *Service) Connect(ctx context.Context, p integrations.Provider, onState func(connect.State)) (*Session, error) {
	if s.opener == nil {
		return nil, fmt.Errorf("no authorization window opener configured")
	}
	sess, err := s.Open(p, onState)
	if err != nil {
		return nil, err
	}
	if err := sess.Widget.Connect(s.withFields(ctx)); err != nil {
		return sess, err
	}
	return sess, nil
}

// Items returns p's items, loading them first when the connection has none.
func (s *Service) Items(ctx context.Context, p integrations.Provider) ([]integrations.Item, error) {
	sess, err := s.Open(p, nil)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if sess.Widget.State() == connect.Disconnected {
		return nil, &integrations.MissingPreconditionError{Provider: p.ID, Missing: "credentials"}
	}
	select {
	case <-sess.Widget.Idle():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	items := sess.Widget.Items()
	if items == nil {
		return nil, &integrations.ItemLoadError{Provider: p.ID, Err: fmt.Errorf("items not loaded")}
	}
	return items, nil
}

// LoadText runs the viewer against p's stored credentials and returns the
// pretty-printed response.
func (s *Service) LoadText(ctx context.Context, p integrations.Provider) (string, error) {
	conn, err := s.conns.Get(p.ID, s.config.Account())
	if err != nil {
		return "", err
	}
	v := connect.NewViewer(s.client, s.notifier, s.log)
	if err := v.Load(s.withFields(ctx), p, conn.Params().Credentials); err != nil {
		return "", err
	}
	return v.Text(), nil
}

// Forget removes the local connection record for p. The backend is not told.
func (s *Service) Forget(p integrations.Provider) error {
	return s.conns.Remove(p.ID, s.config.Account())
}

// SyncResult is the outcome of repairing one provider.
type SyncResult struct {
	Provider  integrations.Provider
	ItemCount int
	Err       error
}

// Sync repairs every connected provider concurrently, loading items where
// credentials exist without them. Per-provider failures are reported in the
// results; the returned error is only set if ctx ends.
func (s *Service) Sync(ctx context.Context) ([]SyncResult, error) {
	var connected []integrations.Provider
	for _, st := range s.Statuses() {
		if !st.Connected {
			continue
		}
		if p, ok := s.registry.Get(st.Provider); ok {
			connected = append(connected, p)
		}
	}

	results := make([]SyncResult, len(connected))
	g, gctx := errgroup.WithContext(s.withFields(ctx))
	for i, p := range connected {
		g.Go(func() error {
			items, err := s.Items(gctx, p)
			results[i] = SyncResult{Provider: p, ItemCount: len(items), Err: err}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Provider.ID < results[j].Provider.ID })
	return results, nil
}

func (s *Service) withFields(ctx context.Context) context.Context {
	return logging.WithLogFields(ctx, logging.LogFields{
		UserID: s.config.UserID,
		OrgID:  s.config.OrgID,
	})
}
