// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/twitch-sources/internal/adapters/http/ws"
	"golang.org/x/time/rate"
)

// Default webhook limiter shape.
const (
	defaultWebhookRate  = 200
	defaultWebhookBurst = 400
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	WebhookDependencies
	TestRunDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	webhookHandler *WebhookHandler
	testRunHandler *TestRunHandler
	authHandler    *AuthHandler
	sessions       *Sessions
	relay          *ws.Relay
	webhookLimiter *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithWebhookRate shapes inbound webhook deliveries.
func WithWebhookRate(r float64, burst int) Option {
	return func(s *Server) {
		if r > 0 && burst > 0 {
			s.webhookLimiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// NewServer creates a new API server with all handlers. relay may be nil,
// in which case no WebSocket routes are mounted.
func NewServer(deps Dependencies, statsProvider StatsProvider, sessions *Sessions, relay *ws.Relay, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		webhookHandler: NewWebhookHandler(deps),
		testRunHandler: NewTestRunHandler(deps),
		authHandler:    NewAuthHandler(sessions),
		sessions:       sessions,
		relay:          relay,
		webhookLimiter: rate.NewLimiter(defaultWebhookRate, defaultWebhookBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	webhook := MetricsMiddleware(RateLimitMiddleware(s.webhookHandler.HandleWebhook, s.webhookLimiter), "webhook")
	// without the bare path ServeMux answers 301, which upstream does not follow on POST
	mux.HandleFunc("/webhook", webhook)
	mux.HandleFunc("/webhook/", webhook)

	mux.HandleFunc("/api/test", MetricsMiddleware(s.session(s.testRunHandler.HandleTest), "test"))
	mux.HandleFunc("/api/login_check", MetricsMiddleware(s.session(s.authHandler.HandleLoginCheck), "login_check"))
	mux.HandleFunc("/api/generate_login_token", MetricsMiddleware(s.session(s.authHandler.HandleGenerateLoginToken), "generate_login_token"))

	if s.relay != nil {
		s.relay.Register(mux, func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
			return MetricsMiddleware(s.sessions.QuickLogin(h), endpoint)
		})
	}
}

// session admits callers with a session cookie, bearer token or login_token.
func (s *Server) session(next http.HandlerFunc) http.HandlerFunc {
	return s.sessions.QuickLogin(s.sessions.RequireSession(next))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
