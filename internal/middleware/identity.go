package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faultmaven/evidence-service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// UserIDKey is the context key for the authenticated caller's ID.
const UserIDKey contextKey = "userID"

// CallerID returns the caller identity stored in ctx, or "".
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// RequireIdentity returns middleware that extracts the caller identity
// injected by the upstream API gateway and stores it in the request context.
//
// Two trust models, chosen by configuration:
//   - gatewaySecret empty: the deployment network is trusted and the gateway
//     forwards the pre-authenticated user in the X-User-ID header.
//   - gatewaySecret set: the gateway signs the identity as an HMAC JWT and
//     the caller ID is taken from the verified "sub" claim.
//
// This service performs no authentication of its own; case ownership and
// access control are enforced upstream.
func RequireIdentity(gatewaySecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := callerFromRequest(r, gatewaySecret)
			if !ok {
				if gatewaySecret != "" {
					response.Unauthorized(w, "invalid or missing gateway token")
				} else {
					response.Unauthorized(w, "X-User-ID header required")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFromRequest(r *http.Request, gatewaySecret string) (string, bool) {
	if gatewaySecret == "" {
		id := r.Header.Get("X-User-ID")
		return id, id != ""
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(gatewaySecret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}
