// Package server exposes the cross-post triggers and the settings record
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
)

const (
	// ManualPostAction is the nonce action guarding the manual trigger.
	ManualPostAction = "crosspost_manual_post"

	cronPath        = "/cron"
	shutdownTimeout = 45 * time.Second
)

// Store is the persistence the handlers need.
type Store interface {
	crosspost.Store
	SaveConfig(ctx context.Context, cfg crosspost.Config) error
	UpsertPost(ctx context.Context, post crosspost.Post) error
}

// Options wires a Server.
type Options struct {
	Store      Store
	Dispatcher *crosspost.Dispatcher
	Auth       *Authenticator
	Nonces     *Nonces
	// PublicURL roots the advertised cron URL. Derived from the request when empty.
	PublicURL string
}

// Server holds the HTTP handlers.
type Server struct {
	store      Store
	dispatcher *crosspost.Dispatcher
	auth       *Authenticator
	nonces     *Nonces
	publicURL  string
	mux        *http.ServeMux
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		auth:       opts.Auth,
		nonces:     opts.Nonces,
		publicURL:  strings.TrimRight(opts.PublicURL, "/"),
		mux:        http.NewServeMux(),
	}
	if s.auth == nil {
		s.auth = NewAuthenticator(nil)
	}
	if s.nonces == nil {
		s.nonces = NewNonces("")
	}

	s.mux.HandleFunc("GET /admin/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /admin/settings", s.handleSaveSettings)
	s.mux.HandleFunc("POST /hooks/save-post", s.handleSavePost)
	s.mux.HandleFunc("GET /api/nonce", s.handleNonce)
	s.mux.HandleFunc("POST /api/manual-post", s.handleManualPost)
	s.mux.HandleFunc("GET /api/posts/{id}/crosspost", s.handlePostStatus)
	s.mux.HandleFunc("GET "+cronPath, s.handleCron)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	logutil.Debugf("%s %s status=%d duration=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logutil.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logutil.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutil.Errorf("write response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Data: message})
}
