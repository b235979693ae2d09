// Package http exposes the ledger and session stores as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"expenseflow/internal/ledger"
	applog "expenseflow/internal/log"
	"expenseflow/internal/session"
)

type Server struct {
	http.Server
	ledger      *ledger.Ledger
	sessions    *session.Store
	rateLimiter *rateLimiter

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// appMetrics tracks request counters for the metrics endpoint.
type appMetrics struct {
	startedAt        time.Time
	totalRequests    int64
	expensesCreated  int64
	expensesDeleted  int64
	rateLimitedHits  int64
	persistWarnings  int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. The logger is installed in every request context so
// handlers log through it.
func NewServer(addr string, l *ledger.Ledger, sessions *session.Store, lg *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.Middleware(lg)(mux),
		},
		ledger:      l,
		sessions:    sessions,
		rateLimiter: newRateLimiter(60),
	}
	s.appMetrics.startedAt = time.Now()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.handleCreateExpense))
	mux.HandleFunc("PATCH /api/expenses/{id}", s.withMiddleware(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.handleDeleteExpense))
	mux.HandleFunc("POST /api/expenses/{id}/not-duplicate", s.withMiddleware(s.handleMarkNotDuplicate))
	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))

	mux.HandleFunc("GET /api/analytics/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("GET /api/analytics/categories", s.withMiddleware(s.handleTopCategories))
	mux.HandleFunc("GET /api/analytics/monthly", s.withMiddleware(s.handleMonthlyTotals))

	mux.HandleFunc("POST /api/auth/signin", s.withMiddleware(s.handleSignIn))
	mux.HandleFunc("POST /api/auth/signup", s.withMiddleware(s.handleSignUp))
	mux.HandleFunc("POST /api/auth/signout", s.withMiddleware(s.handleSignOut))
	mux.HandleFunc("GET /api/auth/me", s.withMiddleware(s.handleCurrentUser))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds security headers, rate limiting, request tracing
// and logging to a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&s.appMetrics.totalRequests, 1)

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = applog.WithRequestID(ctx, requestID)
		r = r.WithContext(ctx)

		// Rate limit mutations only; reads stay cheap.
		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP) {
			atomic.AddInt64(&s.appMetrics.rateLimitedHits, 1)
			logger(ctx).WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		logger(ctx).InfoContext(ctx, "Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// extractClientIP returns the client address, honoring forwarding
// headers from local proxies only.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !parsed.IsLoopback() && !parsed.IsPrivate() {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	return directIP
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.startedAt).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ledger == nil {
		checks["ledger"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	if s.sessions == nil {
		checks["sessions"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["sessions"] = "ok"
	}

	respondJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application metrics in plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", atomic.LoadInt64(&s.appMetrics.totalRequests))

	fmt.Fprintf(w, "# HELP expenses_created_total Total number of expenses created\n")
	fmt.Fprintf(w, "# TYPE expenses_created_total counter\n")
	fmt.Fprintf(w, "expenses_created_total %d\n\n", atomic.LoadInt64(&s.appMetrics.expensesCreated))

	fmt.Fprintf(w, "# HELP expenses_deleted_total Total number of expenses deleted\n")
	fmt.Fprintf(w, "# TYPE expenses_deleted_total counter\n")
	fmt.Fprintf(w, "expenses_deleted_total %d\n\n", atomic.LoadInt64(&s.appMetrics.expensesDeleted))

	fmt.Fprintf(w, "# HELP rate_limited_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limited_total counter\n")
	fmt.Fprintf(w, "rate_limited_total %d\n\n", atomic.LoadInt64(&s.appMetrics.rateLimitedHits))

	fmt.Fprintf(w, "# HELP persist_warnings_total Mutations that succeeded in memory but failed to persist\n")
	fmt.Fprintf(w, "# TYPE persist_warnings_total counter\n")
	fmt.Fprintf(w, "persist_warnings_total %d\n", atomic.LoadInt64(&s.appMetrics.persistWarnings))
}
