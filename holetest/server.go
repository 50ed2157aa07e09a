// Package holetest runs an in-process PKUHole server for tests. By default it
// behaves like the real service, backed by an in-memory Board; individual
// actions can be overridden with canned replies.
package holetest

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"pkuhole/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LoginAction keys canned replies for the login path, which has no action parameter.
const LoginAction = "login"

// Reply is a canned response. Status 0 means 200.
type Reply struct {
	Status int
	Body   string
}

// RecordedRequest is what the server saw of one request.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Host   string
	Body   []byte
}

// Form parses the body as a form, ignoring anything that does not parse.
func (r RecordedRequest) Form() url.Values {
	v, _ := url.ParseQuery(string(r.Body))
	return v
}

type Server struct {
	*httptest.Server
	Board  *Board
	logger *slog.Logger

	mu       sync.Mutex
	replies  map[string]Reply
	requests []RecordedRequest
}

// NewServer starts a server that is closed when tb finishes.
func NewServer(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		Board:   NewBoard(),
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		replies: make(map[string]Reply),
	}
	s.Server = httptest.NewServer(s.router())
	tb.Cleanup(s.Close)
	return s
}

func (s *Server) router() *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(NewStructuredLogger(s.logger))
	mux.Use(middleware.Recoverer)
	mux.Use(s.recordRequest)

	mux.Get(config.APIPath, s.handleAPI)
	mux.Post(config.APIPath, s.handleAPI)
	mux.Post(config.LoginPath, s.handleLogin)
	mux.Get(config.PicPath+"*", s.handleImage)

	return mux
}

// Handle makes the server answer action with reply instead of the board.
func (s *Server) Handle(action string, reply Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[action] = reply
}

// HandleJSON is Handle with a 200 status.
func (s *Server) HandleJSON(action, body string) {
	s.Handle(action, Reply{Body: body})
}

// Requests returns a copy of everything received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request. ok is false if there was none.
func (s *Server) LastRequest() (req RecordedRequest, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

func (s *Server) cannedReply(action string) (Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replies[action]
	return r, ok
}

func (s *Server) writeReply(w http.ResponseWriter, reply Reply) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, reply.Body); err != nil {
		s.logger.Error("Failed to write canned reply", "error", err)
	}
}
