package middleware

import (
	"crypto/sha256"
	"errors"
	"net/http"

	"github.com/gorilla/csrf"
)

const (
	CSRFCookieName = "_taskboard_csrf"
	CSRFFieldName  = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

type CSRFConfig struct {
	Enabled bool
	// Secret is stretched to the 32-byte key gorilla/csrf authenticates its
	// cookie with.
	Secret string
	// Secure marks the cookie Secure and enforces TLS referer checks. When
	// false, requests are treated as plain HTTP.
	Secure bool
	// ErrorHandler answers rejected requests. Nil keeps gorilla's 403.
	ErrorHandler http.Handler
}

// CSRF protects unsafe methods with a masked per-browser token, read from the
// CSRFFieldName form field or the CSRFHeaderName header.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	key := sha256.Sum256([]byte(cfg.Secret))
	opts := []csrf.Option{
		csrf.CookieName(CSRFCookieName),
		csrf.FieldName(CSRFFieldName),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Secure(cfg.Secure),
	}
	if cfg.ErrorHandler != nil {
		opts = append(opts, csrf.ErrorHandler(cfg.ErrorHandler))
	}
	protect := csrf.Protect(key[:], opts...)

	return func(next http.Handler) http.Handler {
		h := protect(next)
		if cfg.Secure {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// CSRFToken returns the token to embed in a form, or "" when protection is
// off.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

// CSRFFailure describes why a request was rejected, in the wording shown on
// forms. Only meaningful inside the configured ErrorHandler.
func CSRFFailure(r *http.Request) string {
	if errors.Is(csrf.FailureReason(r), csrf.ErrNoToken) {
		return "The CSRF token is missing."
	}
	return "The CSRF token is invalid."
}
