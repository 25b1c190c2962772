package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/shared"
)

// Protect rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func Protect(tokens *Tokens, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no token found")
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				logger.Warn("token verification failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token verification failed")
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{
				UserID:    claims.UserID,
				CompanyID: claims.CompanyID,
				Role:      claims.Role,
				Name:      claims.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
