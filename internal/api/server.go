// Package api exposes the sweeper over HTTP for the tmpsweepd daemon:
// health, Prometheus metrics, a manual sweep trigger and run history.
package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/internal/api/ratelimit"
	"github.com/bit2swaz/tmpsweep/internal/history"
	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
	"github.com/bit2swaz/tmpsweep/pkg/observability"
)

// Runner starts a sweep.
type Runner interface {
	Run(ctx context.Context, req runner.Request) (sweeper.Summary, error)
}

// RunLister returns recorded runs, newest first.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

type Config struct {
	// WindowDays and Concurrency apply when the request does not override
	// them.
	WindowDays  int
	Concurrency int
	// AuthToken protects /v1 when set.
	AuthToken string
	Gatherer  prometheus.Gatherer
	Metrics   *observability.SweepMetrics
	Limiter   *ratelimit.Limiter
	Logger    *zap.Logger
}

// Server exposes HTTP handlers for sweep operations.
type Server struct {
	runner    Runner
	runs      RunLister
	cfg       Config
	tokenHash [sha256.Size]byte
	logger    *zap.Logger
	router    chi.Router
}

// NewServer constructs a new Server instance. runs may be nil when no
// history database is configured.
func NewServer(r Runner, runs RunLister, cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &Server{
		runner: r,
		runs:   runs,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.AuthToken != "" {
		srv.tokenHash = sha256.Sum256([]byte(cfg.AuthToken))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(srv.requestLogger)
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.MetricsMiddleware)
	}

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	router.Route("/v1", func(r chi.Router) {
		r.Use(srv.AuthMiddleware)
		r.Post("/sweep", srv.HandleSweep)
		r.Get("/runs", srv.HandleRuns)
	})

	srv.router = router
	return srv
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AuthMiddleware requires "Authorization: Bearer <token>" when a token is
// configured.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		hash := sha256.Sum256([]byte(token))
		if subtle.ConstantTimeCompare(hash[:], s.tokenHash[:]) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode json response", zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	hdr := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if hdr != "" {
		first, _, _ := strings.Cut(hdr, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatRetryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// StartLimiterJanitor forgets idle rate-limit clients every interval until
// ctx is done.
func (s *Server) StartLimiterJanitor(ctx context.Context, interval time.Duration) {
	if s.cfg.Limiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cfg.Limiter.Forget()
		}
	}
}
