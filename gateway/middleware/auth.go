package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Scopes granted to lending callers.
const (
	ScopeWrite = "lending:write"
	ScopeAdmin = "lending:admin"
)

// StaticToken is a fixed bearer token bound to an account.
type StaticToken struct {
	Token   string
	Subject string
	Scopes  []string
}

// AuthConfig configures bearer authentication. JWTs are HMAC signed and
// carry the caller address in sub.
type AuthConfig struct {
	Enabled       bool
	HMACSecret    string
	Issuer        string
	Audience      string
	ScopeClaim    string
	OptionalPaths []string
	ClockSkew     time.Duration
	StaticTokens  []StaticToken
}

type contextKey string

const (
	ContextKeySubject contextKey = "lending.subject"
	ContextKeyScopes  contextKey = "lending.scopes"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadSubject   = errors.New("subject is not an address")
)

// Principal is the authenticated caller.
type Principal struct {
	Subject common.Address
	Scopes  []string
}

// HasScope reports whether the principal was granted scope. Admin implies
// write.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || (s == ScopeAdmin && scope == ScopeWrite) {
			return true
		}
	}
	return false
}

// PrincipalFrom returns the caller attached by Authenticator.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	subject, ok := ctx.Value(ContextKeySubject).(common.Address)
	if !ok {
		return Principal{}, false
	}
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return Principal{Subject: subject, Scopes: scopes}, true
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, ContextKeySubject, p.Subject)
	return context.WithValue(ctx, ContextKeyScopes, p.Scopes)
}

// Authenticator resolves bearer tokens to principals.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

// NewAuthenticator applies defaults to cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Middleware rejects requests without a valid token. Requests on optional
// paths pass through when no token is sent. With auth disabled every
// request passes without a principal.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			raw := extractBearer(r.Header.Get("Authorization"))
			if raw == "" && a.isOptional(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := a.Authenticate(raw)
			if err != nil {
				a.logger.Warn("auth: rejected token", "error", err, "request_id", RequestIDFrom(r.Context()))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			for _, scope := range requiredScopes {
				if !principal.HasScope(scope) {
					http.Error(w, "insufficient scope", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Authenticate resolves raw to a principal, trying static tokens first.
func (a *Authenticator) Authenticate(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, errMissingToken
	}
	for _, st := range a.cfg.StaticTokens {
		if subtle.ConstantTimeCompare([]byte(st.Token), []byte(raw)) == 1 {
			return principalFor(st.Subject, st.Scopes)
		}
	}
	claims, err := a.parseToken(raw)
	if err != nil {
		return Principal{}, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return Principal{}, err
	}
	sub, _ := claims["sub"].(string)
	return principalFor(sub, extractScopes(claims, a.cfg.ScopeClaim))
}

func principalFor(subject string, scopes []string) (Principal, error) {
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return Principal{}, errBadSubject
	}
	return Principal{Subject: common.HexToAddress(subject), Scopes: scopes}, nil
}

func (a *Authenticator) isOptional(path string) bool {
	for _, prefix := range a.cfg.OptionalPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience == "" {
		return nil
	}
	switch val := claims["aud"].(type) {
	case string:
		if val == audience {
			return nil
		}
	case []interface{}:
		for _, entry := range val {
			if s, ok := entry.(string); ok && s == audience {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	switch v := claims[scopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
