package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-access/internal/platform/httpx"
	"github.com/meridian-erp/meridian-access/internal/shared"
)

// ActorContext attaches the request origin to the context for audit
// recording. When a valid bearer token is present the actor carries the
// authenticated user id; otherwise only the request metadata.
func (s *Service) ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.Actor{
			URL:       r.URL.String(),
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		}
		if token := bearerToken(r); token != "" {
			if user, err := s.ResolveToken(r.Context(), token); err == nil {
				actor.UserID = user.ID
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAuth rejects requests whose context carries no authenticated actor.
// Must run after ActorContext.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.ActorFromContext(r.Context()).UserID == 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
