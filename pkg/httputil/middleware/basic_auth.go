package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/edgeflare/rowgate/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
}

// BasicAuthCreds creates a new instance of BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{
		Credentials: credentials,
	}
}

// ParseBasicAuthCreds parses "user:pass,user2:pass2". Entries without a colon are skipped.
func ParseBasicAuthCreds(s string) *BasicAuthConfig {
	creds := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		user, pass, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || user == "" {
			continue
		}
		creds[user] = pass
	}
	return BasicAuthCreds(creds)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
	httputil.WriteError(w, http.StatusUnauthorized, msg)
}

// VerifyBasicAuth is a middleware function for basic authentication.
// Preflight requests are let through unauthenticated.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header missing")
				return
			}

			encoded, found := strings.CutPrefix(authHeader, "Basic ")
			if !found {
				unauthorized(w, "Invalid authorization format")
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				unauthorized(w, "Invalid base64 encoding")
				return
			}

			username, password, ok := strings.Cut(string(decoded), ":")
			if !ok {
				unauthorized(w, "Invalid credentials format")
				return
			}

			validPassword, known := config.Credentials[username]
			if !known || subtle.ConstantTimeCompare([]byte(validPassword), []byte(password)) != 1 {
				unauthorized(w, "Invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
