// Package backendtest provides an in-process fake of the integrations backend.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Response is a canned answer for one endpoint.
type Response struct {
	Status int
	Body   string
}

// Call records one request the fake received.
type Call struct {
	Provider string
	Endpoint string
	Form     map[string]string
	JSON     map[string]json.RawMessage
}

// Server fakes /integrations/{provider}/{endpoint}. Unconfigured endpoints answer 404.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]Response // "provider/endpoint" → response
	calls     []Call
	hold      map[string]chan struct{}
}

// New starts a fake backend. Close it with Server.Close.
func New() *Server {
	s := &Server{
		responses: make(map[string]Response),
		hold:      make(map[string]chan struct{}),
	}
	r := chi.NewRouter()
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"msg":"pong"}`)
	})
	r.Post("/integrations/{provider}/{endpoint}", s.handle)
	s.Server = httptest.NewServer(r)
	return s
}

// Respond sets the answer for provider/endpoint.
func (s *Server) Respond(provider, endpoint string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[provider+"/"+endpoint] = Response{Status: status, Body: body}
}

// Hold blocks requests to provider/endpoint until the returned func is called.
func (s *Server) Hold(provider, endpoint string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold[provider+"/"+endpoint] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many requests hit provider/endpoint.
func (s *Server) Count(provider, endpoint string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Provider == provider && c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	endpoint := chi.URLParam(r, "endpoint")
	key := provider + "/" + endpoint

	call := Call{Provider: provider, Endpoint: endpoint}
	if r.Header.Get("Content-Type") == "application/json" {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &call.JSON)
	} else if err := r.ParseForm(); err == nil {
		call.Form = map[string]string{}
		for k := range r.PostForm {
			call.Form[k] = r.PostForm.Get(k)
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	resp, ok := s.responses[key]
	hold := s.hold[key]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"detail":"Not Found"}`)
		return
	}
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
