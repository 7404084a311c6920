package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/transfa/kyc-service/internal/domain"
)

type contextKey string

const actorContextKey contextKey = "kycActor"

// AuthMiddlewareConfig controls how incoming requests are authenticated.
type AuthMiddlewareConfig struct {
	JWKSURL             string
	ExpectedAudience    string
	ExpectedIssuer      string
	AllowHeaderFallback bool
}

// ClerkAuthMiddleware validates Clerk JWTs and stores the caller as a domain.Actor in
// the request context. Requests without credentials pass through unauthenticated so
// the service layer can answer with 401 in its own guard order; an invalid token is
// rejected here.
func ClerkAuthMiddleware(cfg AuthMiddlewareConfig) func(http.Handler) http.Handler {
	verifier := newTokenVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader != "" {
				tokenString, ok := bearerToken(authHeader)
				if !ok {
					writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
					return
				}

				actor, err := verifier.verify(r.Context(), tokenString)
				if err != nil {
					log.Printf("level=warn component=auth msg=\"token rejected\" err=%v", err)
					writeError(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
				return
			}

			if cfg.AllowHeaderFallback {
				if userID := strings.TrimSpace(r.Header.Get("X-Clerk-User-Id")); userID != "" {
					actor := domain.Actor{UserID: userID, Role: domain.ParseRole(r.Header.Get("X-User-Role"))}
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated answers 401 when no actor is present.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFromContext(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, "Authorization required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 for anonymous callers and 403 when allowed rejects the actor.
// It runs before the handler reads the body or path.
func RequireRole(allowed func(domain.Actor) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if !actor.Authenticated() {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			if !allowed(actor) {
				writeError(w, http.StatusForbidden, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor stores the caller in ctx.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the caller, or the zero Actor for anonymous requests.
func ActorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorContextKey).(domain.Actor)
	return actor
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// tokenVerifier checks RS256 session tokens against the configured JWKS, issuer and
// audience.
type tokenVerifier struct {
	keys   *keySet
	parser *jwt.Parser
}

func newTokenVerifier(cfg AuthMiddlewareConfig) *tokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(cfg.ExpectedIssuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.ExpectedAudience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &tokenVerifier{keys: newKeySet(cfg.JWKSURL), parser: jwt.NewParser(opts...)}
}

func (v *tokenVerifier) verify(ctx context.Context, raw string) (domain.Actor, error) {
	var claims sessionClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("token has no kid")
		}
		return v.keys.key(ctx, kid)
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("verify token: %w", err)
	}
	return claims.actor()
}

// sessionClaims carries the role either at the top level or inside Clerk session
// metadata.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role           string       `json:"role"`
	Metadata       roleMetadata `json:"metadata"`
	PublicMetadata roleMetadata `json:"public_metadata"`
}

type roleMetadata struct {
	Role string `json:"role"`
}

func (c sessionClaims) actor() (domain.Actor, error) {
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	role := c.Role
	if strings.TrimSpace(role) == "" {
		role = c.Metadata.Role
	}
	if strings.TrimSpace(role) == "" {
		role = c.PublicMetadata.Role
	}
	return domain.Actor{UserID: subject, Role: domain.ParseRole(role)}, nil
}
