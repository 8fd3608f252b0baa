package backend

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/moasq/datalink/internal/backend/backendtest"
	"github.com/moasq/datalink/internal/integrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var notion, _ = integrations.LookupProvider(integrations.ProviderNotion)

func newTestClient(t *testing.T) (*Client, *backendtest.Server) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "u1", "acme"), srv
}

func TestAuthorize_URLShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bare json string", `"https://x"`, "https://x"},
		{"auth_url object", `{"auth_url":"https://api.notion.com/v1/oauth/authorize?x=1"}`, "https://api.notion.com/v1/oauth/authorize?x=1"},
		{"plain text", `https://plain.example`, "https://plain.example"},
		{"empty object", `{}`, ""},
		{"empty body", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t)
			srv.Respond("notion", "authorize", http.StatusOK, tt.body)

			got, err := c.Authorize(context.Background(), notion)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			calls := srv.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, map[string]string{"user_id": "u1", "org_id": "acme"}, calls[0].Form)
		})
	}
}

func TestAuthorize_ErrorDetail(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Respond("notion", "authorize", http.StatusBadRequest, `{"detail":"bad org"}`)

	_, err := c.Authorize(context.Background(), notion)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "bad org", apiErr.UserDetail())
	assert.Equal(t, "bad org", integrations.UserMessage(&integrations.AuthorizationRequestError{Provider: notion.ID, Err: err}, "x"))
}

func TestExtractDetail(t *testing.T) {
	assert.Equal(t, "State does not match.", extractDetail([]byte(`{"detail":"State does not match."}`)))
	assert.Equal(t, "boom", extractDetail([]byte(`{"error":"boom"}`)))
	assert.Equal(t, `[{"loc":["body","org_id"],"msg":"field required"}]`,
		extractDetail([]byte(`{"detail": [ {"loc":["body","org_id"], "msg":"field required"} ]}`)))
	assert.Equal(t, "", extractDetail([]byte(`<html>502</html>`)))
	assert.Equal(t, "", extractDetail([]byte(`{"detail":null}`)))
}

func TestCredentials_OpaqueAndAbsent(t *testing.T) {
	c, srv := newTestClient(t)

	srv.Respond("notion", "credentials", http.StatusOK, `{"token":"abc"}`)
	creds, err := c.Credentials(context.Background(), notion)
	require.NoError(t, err)
	assert.True(t, creds.Present())
	assert.JSONEq(t, `{"token":"abc"}`, string(creds))

	srv.Respond("notion", "credentials", http.StatusOK, `null`)
	creds, err = c.Credentials(context.Background(), notion)
	require.NoError(t, err)
	assert.False(t, creds.Present())
}

func TestLoad_SendsJSONBodyAndDecodesItems(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Respond("notion", "load", http.StatusOK, `[{"id":1,"name":"Doc","type":"page"}]`)

	items, err := c.Load(context.Background(), notion, integrations.Credentials(`{"token":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, []integrations.Item{{ID: "1", Name: "Doc", Type: "page"}}, items)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `"u1"`, string(calls[0].JSON["user_id"]))
	assert.JSONEq(t, `"acme"`, string(calls[0].JSON["org_id"]))
	assert.JSONEq(t, `{"token":"abc"}`, string(calls[0].JSON["credentials"]))
}

func TestLoad_CustomEndpoint(t *testing.T) {
	c, srv := newTestClient(t)
	hubspot := integrations.Provider{ID: integrations.ProviderHubSpot, Name: "HubSpot", LoadEndpoint: "get_hubspot_items"}
	srv.Respond("hubspot", "get_hubspot_items", http.StatusOK, `[]`)

	items, err := c.Load(context.Background(), hubspot, integrations.Credentials(`"t"`))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, 1, srv.Count("hubspot", "get_hubspot_items"))
}

func TestLoad_BadPayload(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Respond("notion", "load", http.StatusOK, `{"not":"a list"}`)

	_, err := c.Load(context.Background(), notion, integrations.Credentials(`"t"`))
	assert.ErrorContains(t, err, "parse notion items")
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))

	dead := New("http://127.0.0.1:1", "u", "o")
	assert.Error(t, dead.Ping(context.Background()))
}

func TestCallsAreTraced(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	c, srv := newTestClient(t)
	srv.Respond("notion", "authorize", http.StatusInternalServerError, `{"error":"boom"}`)
	_, _ = c.Authorize(context.Background(), notion)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "backend.authorize", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
