// Package http exposes the reporting facade as a small JSON API consumed by
// the browser dashboard. Nothing here touches the database directly; every
// request goes through the facade.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"expensedash/internal/cache"
	"expensedash/internal/core"
	"expensedash/internal/log"
)

// Reporter is the facade surface the server depends on.
// *report.Service satisfies it.
type Reporter interface {
	ListExpenses(ctx context.Context, rawUserID string) ([]core.Expense, error)
	CategoryTotals(ctx context.Context, rawUserID string) ([]core.CategoryTotal, error)
	MonthlyTotals(ctx context.Context, rawUserID string) ([]core.MonthlyTotal, error)
	Overview(ctx context.Context, rawUserID string) (core.Overview, error)
}

// Options tunes the server; zero values fall back to the defaults below.
type Options struct {
	CORSAllowedOrigin string
	CacheTTL          time.Duration
	CacheMaxEntries   int
	RequestTimeout    time.Duration
	RateLimitPerMin   int
}

type Server struct {
	http.Server
	reporter   Reporter
	corsOrigin string
	timeout    time.Duration

	// Per-user response caches; the workload is read-only between seed
	// runs, so TTL expiry is the only invalidation needed.
	expensesCache   *cache.LRU[[]ExpenseRow]
	categoriesCache *cache.LRU[[]CategoryRow]
	monthsCache     *cache.LRU[[]MonthRow]
	overviewCache   *cache.LRU[OverviewResponse]
	cacheManager    *cache.Manager
	limiter         *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, reporter Reporter, opts Options) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheMaxEntries <= 0 {
		opts.CacheMaxEntries = 100
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 7 * time.Second
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 120
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		reporter:   reporter,
		corsOrigin: opts.CORSAllowedOrigin,
		timeout:    opts.RequestTimeout,

		expensesCache:   cache.NewLRU[[]ExpenseRow](opts.CacheMaxEntries, opts.CacheTTL),
		categoriesCache: cache.NewLRU[[]CategoryRow](opts.CacheMaxEntries, opts.CacheTTL),
		monthsCache:     cache.NewLRU[[]MonthRow](opts.CacheMaxEntries, opts.CacheTTL),
		overviewCache:   cache.NewLRU[OverviewResponse](opts.CacheMaxEntries, opts.CacheTTL),
		cacheManager:    cache.NewManager(),
		limiter:         newRateLimiter(opts.RateLimitPerMin),
	}

	s.cacheManager.Register(s.expensesCache)
	s.cacheManager.Register(s.categoriesCache)
	s.cacheManager.Register(s.monthsCache)
	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/api/expenses", s.withAPIMiddleware(s.handleListExpenses))
	mux.HandleFunc("/api/expenses/categories", s.withAPIMiddleware(s.handleCategoryTotals))
	mux.HandleFunc("/api/expenses/monthly", s.withAPIMiddleware(s.handleMonthlyTotals))
	mux.HandleFunc("/api/dashboard", s.withAPIMiddleware(s.handleOverview))

	return s
}

// Shutdown stops the cache sweeper and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withAPIMiddleware adds request logging, rate limiting, security headers,
// and CORS to the API handlers. All API routes are read-only GETs.
func (s *Server) withAPIMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldUserAgent, r.Header.Get("User-Agent"))

		if !s.limiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldComponent, log.ComponentHTTP,
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, X-Requested-With, Cache-Control")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
