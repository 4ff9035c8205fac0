package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/muni-world/muni-fullstack/backend/src/config"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/utils"
)

const csrfCookieName = "_csrf_token"

// GetCSRFToken issues a fresh double-submit token. The raw token goes to the
// client in the body and X-CSRF-Token header; the cookie holds an HMAC of it
// keyed with CSRF_AUTH_KEY, so a forged cookie cannot vouch for itself.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateRandomToken()
	if err != nil {
		logger.L.Error("Failed to generate CSRF token", "error", err)
		utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    signCSRFToken(config.Cfg.CSRFAuthKey, token),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   false, // set behind TLS termination in production
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{
		"csrfToken": token,
	})
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func signCSRFToken(authKey []byte, token string) string {
	mac := hmac.New(sha256.New, authKey)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// CSRFMiddleware enforces the double-submit check on state-changing methods:
// the X-CSRF-Token header must HMAC to the cookie value. Safe methods and
// preflights pass through untouched.
func CSRFMiddleware(authKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken != "" && err == nil {
				expected := signCSRFToken(authKey, headerToken)
				if subtle.ConstantTimeCompare([]byte(expected), []byte(cookie.Value)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.L.Warn("CSRF validation failed",
				"method", r.Method,
				"path", r.URL.Path,
				"hasHeaderToken", headerToken != "",
				"hasCookie", err == nil,
			)
			utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
