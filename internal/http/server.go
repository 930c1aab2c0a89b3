// Package http exposes the billing backend as a JSON API: registration and
// login, account profile, document upload, consolidation, the monthly ledger,
// and checkout.
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

	"utilibill/internal/amqp"
	"utilibill/internal/auth"
	"utilibill/internal/core"
	"utilibill/internal/payment"
	"utilibill/internal/services"
)

// UserStore is the account side of the repository.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	GetUserByID(ctx context.Context, id int64) (*core.User, error)
	UpdateUserProfile(ctx context.Context, id int64, name, email, address, postcode string) error
}

// AggregateFinder resolves a checkout request to the aggregate being paid.
type AggregateFinder interface {
	GetAggregateByID(ctx context.Context, aggregateID int64) (*core.MonthlyAggregate, error)
}

// Ingestor runs the document pipeline for one upload.
type Ingestor interface {
	Ingest(ctx context.Context, userID int64, utilityType core.UtilityType, docPath string) (services.IngestReport, error)
}

// Consolidator recomputes and reads the monthly ledger.
type Consolidator interface {
	Consolidate(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error)
	MonthlyLedger(ctx context.Context, userID int64) ([]core.MonthlyAggregate, error)
}

// PaymentPublisher hands completed payments to the worker queue.
type PaymentPublisher interface {
	PublishPaymentCompleted(ctx context.Context, msg *amqp.PaymentCompletedMessage) error
}

type Server struct {
	http.Server

	users        UserStore
	aggregates   AggregateFinder
	ingestor     Ingestor
	consolidator Consolidator
	checkout     payment.CheckoutProvider
	publisher    PaymentPublisher
	tokens       *auth.TokenIssuer

	uploadDir      string
	maxUploadBytes int64

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Deps bundles the collaborators the server routes requests to.
type Deps struct {
	Users        UserStore
	Aggregates   AggregateFinder
	Ingestor     Ingestor
	Consolidator Consolidator
	Checkout     payment.CheckoutProvider
	Publisher    PaymentPublisher
	Tokens       *auth.TokenIssuer

	UploadDir      string
	MaxUploadBytes int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		users:          deps.Users,
		aggregates:     deps.Aggregates,
		ingestor:       deps.Ingestor,
		consolidator:   deps.Consolidator,
		checkout:       deps.Checkout,
		publisher:      deps.Publisher,
		tokens:         deps.Tokens,
		uploadDir:      deps.UploadDir,
		maxUploadBytes: deps.MaxUploadBytes,
		rateLimiter:    newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/register", s.withCommon(s.handleRegister))
	mux.HandleFunc("POST /api/login", s.withCommon(s.handleLogin))

	mux.HandleFunc("GET /api/account/{userId}", s.withCommon(s.withAuth(s.handleGetAccount)))
	mux.HandleFunc("PUT /api/account/{userId}", s.withCommon(s.withAuth(s.handleUpdateAccount)))

	mux.HandleFunc("POST /api/upload/{userId}", s.withCommon(s.withAuth(s.handleUpload)))
	mux.HandleFunc("POST /api/consolidate/{userId}", s.withCommon(s.withAuth(s.handleConsolidate)))
	mux.HandleFunc("GET /api/monthly/{userId}", s.withCommon(s.withAuth(s.handleMonthlyLedger)))

	mux.HandleFunc("POST /api/checkout/{userId}", s.withCommon(s.withAuth(s.handleCheckout)))
	// Called back by the payment provider, so no bearer token.
	mux.HandleFunc("POST /api/payments/completed", s.withCommon(s.handlePaymentCompleted))

	return s
}

// Shutdown stops the rate limiter's cleanup goroutine along with the
// listener.
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

// withCommon adds security headers, rate limiting, and request logging.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyUserID
)

// withAuth requires a valid bearer token and puts the authenticated user id
// on the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next(w, r.WithContext(ctx))
	}
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
