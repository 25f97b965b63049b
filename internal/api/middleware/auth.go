package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/auth"
)

// adminKey is the context key for the authenticated admin username.
type adminKey struct{}

// AdminAuthConfig holds the admin authentication settings.
type AdminAuthConfig struct {
	Credentials auth.Credentials

	// Tokens validates bearer tokens. Bearer authentication is rejected when nil.
	Tokens *auth.JWTService
}

// AdminAuth creates middleware that accepts either HTTP basic credentials or
// a bearer admin token.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="supportdesk-admin"`)
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			var username string
			switch scheme, _, _ := strings.Cut(authHeader, " "); {
			case strings.EqualFold(scheme, "Basic"):
				user, pass, ok := r.BasicAuth()
				if !ok {
					writeUnauthorized(w, r, "invalid authorization header format")
					return
				}
				if err := cfg.Credentials.Verify(user, pass); err != nil {
					writeUnauthorized(w, r, "invalid credentials")
					return
				}
				username = user

			case strings.EqualFold(scheme, "Bearer"):
				const bearerPrefix = "Bearer "
				if len(authHeader) <= len(bearerPrefix) {
					writeUnauthorized(w, r, "missing bearer token")
					return
				}
				if cfg.Tokens == nil {
					writeUnauthorized(w, r, "bearer tokens are not accepted")
					return
				}

				claims, err := cfg.Tokens.ValidateAdminToken(authHeader[len(bearerPrefix):])
				if err != nil {
					switch {
					case errors.Is(err, auth.ErrAdminTokenExpired):
						writeUnauthorized(w, r, "admin token has expired")
					case errors.Is(err, auth.ErrInvalidAdminToken):
						writeUnauthorized(w, r, "invalid admin token")
					default:
						writeUnauthorized(w, r, "authentication failed")
					}
					return
				}
				username = claims.Username

			default:
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			ctx := context.WithValue(r.Context(), adminKey{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetAdmin retrieves the authenticated admin username from the context.
// Returns an empty string if not authenticated.
func GetAdmin(ctx context.Context) string {
	if name, ok := ctx.Value(adminKey{}).(string); ok {
		return name
	}
	return ""
}
