package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/muni-world/muni-fullstack/backend/src/database"
	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/utils"
)

// Custom context key type to avoid collisions.
type contextKey string

const (
	userIDContextKey contextKey = "userID"
	claimsContextKey contextKey = "claims"
)

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

// AuthMiddleware requires a valid access token and a live session. The token's
// identity claims (including the tier attribute) are placed in the request
// context for handlers to resolve.
func (h *UserHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing or empty", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		_, err = model.GetSessionByToken(database.DB, tokenString)
		if err != nil {
			// Google sign-ins do not create a local session; only enforce the
			// session check for local accounts.
			userIDCheck, _ := strconv.ParseInt(claims.UserID, 10, 64)
			user, userErr := model.GetUserByID(database.DB, userIDCheck)
			if userErr != nil {
				logger.L.Warn("AuthMiddleware: User not found for token after session check failed", "userID", claims.UserID, "error", userErr)
				utils.SendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
				return
			}
			if user.AuthProvider == "local" {
				logger.L.Warn("AuthMiddleware: Session validation failed for local user's access token", "path", r.URL.Path, "error", err)
				utils.SendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}
		}

		userIDInt, err := strconv.ParseInt(claims.UserID, 10, 64)
		if err != nil {
			logger.L.Error("AuthMiddleware: Invalid user ID format in token", "userIDStr", claims.UserID, "error", err)
			utils.SendJSONError(w, "Invalid user ID in token", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userIDInt)
		ctx = context.WithValue(ctx, claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext retrieves the userID from the context.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// GetClaimsFromContext retrieves the validated identity claims, if any.
// Absent claims mean the request was not authenticated.
func GetClaimsFromContext(ctx context.Context) (*league.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*league.Claims)
	return claims, ok
}
