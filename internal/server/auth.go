package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"kool/internal/engine"
	"kool/internal/engine/auth"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// userIDFromContext returns the authenticated user or a 401.
func userIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// authenticate resolves the request credentials. API keys are accepted both
// in X-Api-Key and as a bearer token carrying the key prefix.
func authenticate(req *http.Request, e engine.Engine) (auth.Principal, error) {
	authz := strings.TrimSpace(req.Header.Get("Authorization"))
	apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))
	switch {
	case authz != "":
		token, ok := bearerToken(authz)
		if !ok {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		if strings.HasPrefix(token, auth.KeyPrefix) {
			return e.Auth.ResolveAPIKey(req.Context(), token)
		}
		p, err := e.Auth.ParseToken(token)
		if err != nil {
			return auth.Principal{}, err
		}
		// Token subjects are provisioned on first use.
		if _, _, err := e.EnsureUser(req.Context(), p.UserID, ""); err != nil {
			return auth.Principal{}, err
		}
		return p, nil
	case apiKey != "":
		return e.Auth.ResolveAPIKey(req.Context(), apiKey)
	default:
		return auth.Principal{}, auth.ErrUnauthenticated
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, auth.ErrUnauthenticated) ||
		errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrNoSecret)
}

func newAuthMiddleware(basePath string, cfg AuthConfig, e engine.Engine, log *slog.Logger) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	if cfg.DevLogin {
		open[path.Join(basePath, "auth/dev/login")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			principal, err := authenticate(req, e)
			if err != nil {
				if isCredentialError(err) {
					log.Debug("request rejected", "path", req.URL.Path, "error", err)
					code := "invalid_credentials"
					msg := "invalid credentials"
					if errors.Is(err, auth.ErrUnauthenticated) && req.Header.Get("Authorization") == "" && req.Header.Get("X-Api-Key") == "" {
						code, msg = "unauthorized", "authentication required"
					}
					respondStatusError(w, newAPIError(http.StatusUnauthorized, code, msg, nil))
					return
				}
				log.Error("authentication failed", "path", req.URL.Path, "error", err)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
