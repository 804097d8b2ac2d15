package paypal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const tokenRoute = "POST /v1/oauth2/token"

// recordedRequest is what the stub saw for one call
type recordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// stubPayPal is an httptest server standing in for the PayPal REST API.
// Routes are keyed "METHOD /path" and matched exactly.
type stubPayPal struct {
	server     *httptest.Server
	tokenCalls atomic.Int32

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recordedRequest
}

func newStubPayPal(t *testing.T) *stubPayPal {
	t.Helper()

	s := &stubPayPal{routes: make(map[string]http.HandlerFunc)}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)

	s.handleToken(`{"access_token":"tok1","token_type":"Bearer","expires_in":32400}`)
	return s
}

func (s *stubPayPal) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	fn := s.routes[key]
	s.mu.Unlock()

	if key == tokenRoute {
		s.tokenCalls.Add(1)
	}
	if fn == nil {
		http.NotFound(w, r)
		return
	}
	fn(w, r)
}

// handleToken replaces the token endpoint response
func (s *stubPayPal) handleToken(body string) {
	s.handle(tokenRoute, http.StatusOK, body)
}

// handle registers a canned JSON response for route
func (s *stubPayPal) handle(route string, status int, body string) {
	s.handleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (s *stubPayPal) handleFunc(route string, fn http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route] = fn
}

// requestsTo returns the recorded requests for path
func (s *stubPayPal) requestsTo(path string) []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []recordedRequest
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// gateway builds a sandbox gateway pointed at the stub
func (s *stubPayPal) gateway(t *testing.T, cfg Config, opts ...Option) *Gateway {
	t.Helper()
	if cfg.ClientID == "" && cfg.ClientSecret == "" {
		cfg.ClientID, cfg.ClientSecret = "A", "B"
	}
	g, err := New(cfg, append([]Option{WithBaseURL(s.server.URL)}, opts...)...)
	require.NoError(t, err)
	return g
}
