package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/identity"
)

// TokenVerifier resolves a bearer token to the identity provider's user.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (identity.User, error)
}

// ActorResolver loads the caller's profile as a policy actor.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID, email string) (domain.Actor, error)
}

type actorKey struct{}

func withActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFrom returns the authenticated actor; ok is false outside Authenticator.
func actorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

// Authenticator turns "Authorization: Bearer <token>" into a domain.Actor.
type Authenticator struct {
	tokens TokenVerifier
	actors ActorResolver
	logger *zap.Logger
}

func NewAuthenticator(tokens TokenVerifier, actors ActorResolver, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, actors: actors, logger: logger}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func (a *Authenticator) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: "Missing session"})
			return
		}
		user, err := a.tokens.VerifyToken(r.Context(), token)
		if err != nil {
			writeError(w, a.logger, "verify token", err)
			return
		}
		actor, err := a.actors.ResolveActor(r.Context(), user.ID, user.Email)
		if err != nil {
			writeError(w, a.logger, "resolve actor", err)
			return
		}
		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

// requireActor fetches the actor set by Authenticator. Handlers registered
// without it answer 401.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := actorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: "Missing session"})
	}
	return a, ok
}
