// Package backend is the HTTP client for the integrations backend.
// It speaks the authorize, credentials and load endpoints for every provider.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moasq/datalink/internal/integrations"
	"github.com/moasq/datalink/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 30 * time.Second

// Client talks to the integrations backend on behalf of one (user, org) account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userID     string
	orgID      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New creates a client for baseURL acting as (userID, orgID).
func New(baseURL, userID, orgID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userID:     userID,
		orgID:      orgID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func providerPath(id integrations.ProviderID, endpoint string) string {
	return "/integrations/" + url.PathEscape(string(id)) + "/" + endpoint
}

// accountForm is the form body of the authorize and credentials endpoints.
func (c *Client) accountForm() url.Values {
	return url.Values{
		"user_id": {c.userID},
		"org_id":  {c.orgID},
	}
}

// Authorize asks the backend for the provider's authorization URL.
// The backend answers with either a bare URL or {"auth_url": ...}.
func (c *Client) Authorize(ctx context.Context, p integrations.Provider) (string, error) {
	sc := c.startSpan(ctx, "backend.authorize", p)
	defer sc.End()

	raw, err := c.postForm(sc.Context(), providerPath(p.ID, "authorize"), c.accountForm())
	if err != nil {
		sc.RecordError(err)
		return "", err
	}
	authURL := parseAuthURL(raw)
	slog.DebugContext(sc.Context(), "authorization url received", "empty", authURL == "")
	return authURL, nil
}

// parseAuthURL accepts a JSON string, an object with auth_url, or plain text.
func parseAuthURL(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		AuthURL string `json:"auth_url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.AuthURL)
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}

// Credentials fetches the credentials the backend stored after authorization.
// An empty answer is returned as absent Credentials, not as an error.
func (c *Client) Credentials(ctx context.Context, p integrations.Provider) (integrations.Credentials, error) {
	sc := c.startSpan(ctx, "backend.credentials", p)
	defer sc.End()

	raw, err := c.postForm(sc.Context(), providerPath(p.ID, "credentials"), c.accountForm())
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	return integrations.Credentials(bytes.TrimSpace(raw)), nil
}

// loadRequest is the JSON body of the load endpoint.
type loadRequest struct {
	UserID      string                   `json:"user_id"`
	OrgID       string                   `json:"org_id"`
	Credentials integrations.Credentials `json:"credentials"`
}

// LoadRaw calls the provider's load endpoint and returns the response untouched.
func (c *Client) LoadRaw(ctx context.Context, p integrations.Provider, creds integrations.Credentials) (json.RawMessage, error) {
	sc := c.startSpan(ctx, "backend.load", p)
	defer sc.End()

	endpoint := p.LoadEndpoint
	if endpoint == "" {
		endpoint = integrations.DefaultLoadEndpoint
	}
	raw, err := c.postJSON(sc.Context(), providerPath(p.ID, endpoint), loadRequest{
		UserID:      c.userID,
		OrgID:       c.orgID,
		Credentials: creds,
	})
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	return raw, nil
}

// Load calls the load endpoint and decodes the item list.
func (c *Client) Load(ctx context.Context, p integrations.Provider, creds integrations.Credentials) ([]integrations.Item, error) {
	raw, err := c.LoadRaw(ctx, p, creds)
	if err != nil {
		return nil, err
	}
	items := []integrations.Item{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse %s items: %w", p.ID, err)
	}
	return items, nil
}

// Ping checks that the backend is up.
func (c *Client) Ping(ctx context.Context) error {
	sc := logging.StartSpan(ctx, "backend.ping", trace.WithSpanKind(trace.SpanKindClient))
	defer sc.End()

	_, err := c.do(sc.Context(), http.MethodGet, "/ping", nil, "")
	if err != nil {
		sc.RecordError(err)
	}
	return err
}

func (c *Client) startSpan(ctx context.Context, name string, p integrations.Provider) *logging.SpanContext {
	return logging.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("datalink.provider", string(p.ID))),
	)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	slog.DebugContext(ctx, "backend call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(method, path, resp.StatusCode, respData)
	}
	return respData, nil
}
