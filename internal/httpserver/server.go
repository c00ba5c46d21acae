// Package httpserver wires the authenticated file-access handlers into an
// HTTP router.
package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"homefs/internal/auth"
	"homefs/internal/logger"
)

// Options configures a Server.
type Options struct {
	// Store holds the immutable user records shared by the gate and the
	// handlers.
	Store *auth.Store

	// Realm is the Basic auth realm for 401 challenges.
	Realm string

	// MaxBodySize caps request bodies, uploads included.
	MaxBodySize int64
}

// Server serves each user's home directory over HTTP.
type Server struct {
	store   *auth.Store
	realm   string
	maxBody int64

	dav *davState
}

// New creates a Server from the given options.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("httpserver: credential store is required")
	}
	if opts.Realm == "" {
		opts.Realm = "homefs"
	}
	if opts.MaxBodySize <= 0 {
		return nil, fmt.Errorf("httpserver: max body size must be positive")
	}
	return &Server{
		store:   opts.Store,
		realm:   opts.Realm,
		maxBody: opts.MaxBodySize,
		dav:     newDavState(),
	}, nil
}

// Handler builds the router. The authentication gate runs before routing;
// no handler executes for an unauthenticated request.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(methodOverride)
	r.Use(auth.Middleware(s.store, s.realm))

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Put("/move", s.handleMove)

	r.Handle("/dav", http.HandlerFunc(s.handleDav))
	r.Handle("/dav/*", http.HandlerFunc(s.handleDav))

	r.Get("/*", s.handleFetch)
	r.Post("/*", s.handleUpload)
	r.Delete("/*", s.handleDelete)

	return r
}

// methodOverride lets HTML forms, which can only issue GET and POST,
// trigger DELETE semantics via a hidden "_method" field.
func methodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost &&
			strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			if err := r.ParseForm(); err == nil &&
				strings.EqualFold(r.PostFormValue("_method"), http.MethodDelete) {
				r.Method = http.MethodDelete
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request with its id, status, and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
