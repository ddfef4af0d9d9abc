// Package server exposes the ingestion and delivery pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"molt-mart/internal/mart"
	"molt-mart/internal/metrics"
)

// Server is the marketplace HTTP front end. All state lives in the injected
// collaborators; handlers never keep cross-request data of their own.
type Server struct {
	svc     *mart.Service
	auth    Authenticator
	counter mart.Counter
	metrics metrics.Metrics
	logger  mart.Logger

	// RateLimitPerMin caps requests per client IP per minute. Zero disables
	// limiting.
	RateLimitPerMin int
}

// New creates a Server. metrics may be nil; a Noop is substituted.
func New(svc *mart.Service, auth Authenticator, counter mart.Counter, m metrics.Metrics, logger mart.Logger) *Server {
	if m == nil {
		m = metrics.Noop{}
	}
	if logger == nil {
		logger = mart.NewNopLogger()
	}
	return &Server{
		svc:     svc,
		auth:    auth,
		counter: counter,
		metrics: m,
		logger:  logger,
	}
}

// Handler builds the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/v1/artifacts", s.instrumented("/api/v1/artifacts", s.handleIngest))
	mux.HandleFunc("GET /api/v1/artifacts/{id}", s.instrumented("/api/v1/artifacts/{id}", s.handleGetArtifact))
	mux.HandleFunc("PUT /api/v1/artifacts/{id}/file", s.instrumented("/api/v1/artifacts/{id}/file", s.handleReplaceFile))
	mux.HandleFunc("GET /api/v1/artifacts/{id}/download", s.instrumented("/api/v1/artifacts/{id}/download", s.handleDownload))

	return s.rateLimitMiddleware(s.authMiddleware(mux))
}

// Run serves the API until ctx is cancelled, with the Prometheus endpoint on
// its own listener.
func (s *Server) Run(ctx context.Context, addr, metricsAddr string) error {
	if metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		go func() {
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      metricsMux,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			s.logger.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

type identityKey struct{}

// authMiddleware resolves credentials for every /api/ request. Health and
// metrics stay open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) *Identity {
	id, _ := r.Context().Value(identityKey{}).(*Identity)
	return id
}

// rateLimitMiddleware applies a fixed per-IP window via the counter service.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitPerMin <= 0 || s.counter == nil || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.counter.Allow(r.Context(), clientIP(r), s.RateLimitPerMin, time.Minute)
		if err != nil {
			// Counting backend outage should not take the API down.
			s.logger.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			s.metrics.IncRateLimited()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrumented wraps handlers to record request metrics.
func (s *Server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	}
}
