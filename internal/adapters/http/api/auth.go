package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie names the cookie holding the session token.
const SessionCookie = "session"

const (
	kindSession = "session"
	kindLogin   = "login"

	loginTokenTTL = 365 * 24 * time.Hour
)

// Claims are the claims of session and login tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// Sessions issues and validates HS256 tokens identifying a user.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions builds a Sessions. ttl bounds browser session tokens.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a session token for userID.
func (s *Sessions) Issue(userID string) (string, error) {
	return s.sign(userID, kindSession, s.ttl)
}

// IssueLoginToken signs a long-lived token for browser sources that cannot
// carry a cookie across a login redirect.
func (s *Sessions) IssueLoginToken(userID string) (string, error) {
	return s.sign(userID, kindLogin, loginTokenTTL)
}

func (s *Sessions) sign(userID, kind string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrUnauthorized)
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Authenticate resolves the user of r from the session cookie or a bearer
// token. A user placed in the context by QuickLogin wins.
func (s *Sessions) Authenticate(r *http.Request) (string, error) {
	if id, ok := UserFromContext(r.Context()); ok {
		return id, nil
	}
	raw := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
	}
	claims, err := s.Parse(raw)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// SetCookie writes a fresh session cookie for userID.
func (s *Sessions) SetCookie(w http.ResponseWriter, userID string) error {
	token, err := s.Issue(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

type userKey struct{}

// WithUser stores the authenticated user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user id stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// QuickLogin turns a valid login_token query parameter into a session
// cookie and passes the user on to next. Invalid tokens are ignored.
func (s *Sessions) QuickLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("login_token")
		if raw == "" {
			next(w, r)
			return
		}
		claims, err := s.Parse(raw)
		if err != nil || claims.Kind != kindLogin {
			next(w, r)
			return
		}
		if err := s.SetCookie(w, claims.UserID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), claims.UserID)))
	}
}

// RequireSession rejects requests without a valid session with 403.
func (s *Sessions) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusForbidden, "access_denied", WrapKind("api.session", ErrForbidden, err))
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), id)))
	}
}

// AuthHandler serves the session helper endpoints.
type AuthHandler struct {
	sessions *Sessions
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(sessions *Sessions) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginCheckResponse struct {
	UserID string `json:"user_id"`
}

type loginTokenResponse struct {
	LoginToken string `json:"login_token"`
}

// HandleLoginCheck handles GET /api/login_check.
func (h *AuthHandler) HandleLoginCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, _ := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, loginCheckResponse{UserID: id})
}

// HandleGenerateLoginToken handles GET /api/generate_login_token.
func (h *AuthHandler) HandleGenerateLoginToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.generate_login_token"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "access_denied", NewKind(op, ErrForbidden))
		return
	}
	token, err := h.sessions.IssueLoginToken(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnauthorized) {
			status = http.StatusForbidden
		}
		writeError(w, status, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, loginTokenResponse{LoginToken: token})
}
