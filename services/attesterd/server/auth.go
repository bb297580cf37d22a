package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures HMAC signed bearer tokens.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type subjectContextKey struct{}

// SubjectFromContext returns the token subject of an authenticated request.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	sub, ok := ctx.Value(subjectContextKey{}).(string)
	return sub, ok && sub != ""
}

// Authenticator verifies bearer tokens before they reach handlers.
type Authenticator struct {
	cfg      AuthConfig
	secret   []byte
	logger   *slog.Logger
	rejected func(reason string)
}

// NewAuthenticator constructs an authenticator. A disabled config yields a
// pass-through middleware.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret := []byte(strings.TrimSpace(cfg.HMACSecret))
	if cfg.Enabled && len(secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: secret, logger: logger}, nil
}

// Middleware enforces authentication.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			a.reject(w, "missing_token", "missing bearer token")
			return
		}
		claims, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Debug("token validation failed", "error", err)
			a.reject(w, "invalid_token", "invalid token")
			return
		}
		sub, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), subjectContextKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, reason, message string) {
	if a.rejected != nil {
		a.rejected(reason)
	}
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{Kind: "unauthorized", Message: message}})
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
