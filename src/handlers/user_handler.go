package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/muni-world/muni-fullstack/backend/src/config"
	"github.com/muni-world/muni-fullstack/backend/src/database"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/security"
	"github.com/muni-world/muni-fullstack/backend/src/services"
	"github.com/muni-world/muni-fullstack/backend/src/utils"
)

type UserHandler struct {
	authService  *security.AuthService
	emailService services.EmailService
}

func NewUserHandler(authService *security.AuthService, emailService services.EmailService) *UserHandler {
	return &UserHandler{
		authService:  authService,
		emailService: emailService,
	}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Username = strings.TrimSpace(credentials.Username)
	credentials.Email = strings.TrimSpace(strings.ToLower(credentials.Email))
	if credentials.Username == "" || credentials.Email == "" || credentials.Password == "" {
		utils.SendJSONError(w, "Username, email and password are required", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		logger.L.Error("Failed to hash password during registration", "error", err)
		utils.SendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username: credentials.Username,
		Email:    credentials.Email,
		Password: hashedPassword,
	}

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			utils.SendJSONError(w, "Username already exists", http.StatusConflict)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			utils.SendJSONError(w, "Email already registered", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	verificationToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		logger.L.Error("Failed to generate verification token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}
	expiresAt := time.Now().Add(config.Cfg.VerificationTokenExpiry)
	if err := model.SetUserVerificationToken(database.DB, int64(user.ID), verificationToken, expiresAt); err != nil {
		logger.L.Error("Failed to store verification token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to process registration", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, verificationToken); err != nil {
		// Registration still succeeded; the user can request another email.
		logger.L.Error("Failed to send verification email", "userID", user.ID, "error", err)
	}

	logger.L.Info("User registered", "userID", user.ID, "username", user.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User registered successfully. Please check your email to verify your account.",
	})
}

func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.SendJSONError(w, "Verification token is required", http.StatusBadRequest)
		return
	}

	user, err := model.VerifyUserEmailByToken(database.DB, token)
	if err != nil {
		logger.L.Warn("Email verification failed", "error", err)
		utils.SendJSONError(w, "Invalid or expired verification token", http.StatusBadRequest)
		return
	}

	logger.L.Info("Email verified", "userID", user.ID, "username", user.Username)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully. You can now log in.",
	})
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		logger.L.Debug("Login user lookup failed", "username", credentials.Username, "error", err)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Debug("Login password check failed", "username", credentials.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if user.AuthProvider == "local" && !user.IsEmailVerified {
		utils.SendJSONError(w, "Email not verified. Please check your inbox.", http.StatusForbidden)
		return
	}

	accessToken, refreshToken, err := h.issueSession(r, user)
	if err != nil {
		logger.L.Error("Failed to issue session on login", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User logged in", "userID", user.ID, "userType", user.UserType)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user": map[string]interface{}{
			"id":        user.ID,
			"username":  user.Username,
			"user_type": user.UserType,
		},
	})
}

// issueSession mints an access/refresh token pair and persists the session.
// The access token is stamped with the user's current stored tier, so a tier
// change is visible on the next issuance.
func (h *UserHandler) issueSession(r *http.Request, user *model.User) (string, string, error) {
	userIDStr := fmt.Sprintf("%d", user.ID)
	accessToken, err := h.authService.GenerateToken(userIDStr, user.UserType)
	if err != nil {
		return "", "", fmt.Errorf("generating access token: %w", err)
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("generating refresh token: %w", err)
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		return "", "", fmt.Errorf("creating session: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.RefreshToken == "" {
		utils.SendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	session, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token lookup failed", "error", err)
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	user, err := model.GetUserByID(database.DB, int64(session.UserID))
	if err != nil {
		logger.L.Error("User missing for live session", "userID", session.UserID, "error", err)
		utils.SendJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	// Rotate: the old session is retired before the new pair is issued.
	if err := model.DeleteSessionByToken(database.DB, session.Token); err != nil {
		logger.L.Warn("Failed to delete rotated session", "sessionID", session.ID, "error", err)
	}

	accessToken, refreshToken, err := h.issueSession(r, user)
	if err != nil {
		logger.L.Error("Failed to issue session on refresh", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to refresh token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Logout: failed to delete session", "error", err)
	}
	if userID, ok := GetUserIDFromContext(r.Context()); ok {
		logger.L.Info("User logged out", "userID", userID)
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateUserTier provisions a user's tier. It is an operator endpoint
// guarded by a static API key, not a user-facing one; tiers are assigned
// out-of-band (billing, sales) rather than self-served.
func (h *UserHandler) HandleUpdateUserTier(w http.ResponseWriter, r *http.Request) {
	adminKey := config.Cfg.AdminAPIKey
	if adminKey == "" {
		logger.L.Error("Tier provisioning requested but ADMIN_API_KEY is not configured")
		utils.SendJSONError(w, "Tier provisioning is not enabled", http.StatusForbidden)
		return
	}
	provided := r.Header.Get("X-Admin-API-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
		logger.L.Warn("Tier provisioning denied: bad admin key", "remoteAddr", r.RemoteAddr)
		utils.SendJSONError(w, "Forbidden", http.StatusForbidden)
		return
	}

	var requestBody struct {
		Email    string `json:"email"`
		UserType string `json:"user_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !model.ValidUserType(requestBody.UserType) {
		utils.SendJSONError(w, "user_type must be 'free' or 'subscriber'", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByEmail(database.DB, strings.TrimSpace(strings.ToLower(requestBody.Email)))
	if err != nil {
		utils.SendJSONError(w, "User not found", http.StatusNotFound)
		return
	}

	if user.UserType == requestBody.UserType {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "User is already at the requested tier",
		})
		return
	}

	if err := model.UpdateUserTier(database.DB, int64(user.ID), requestBody.UserType); err != nil {
		logger.L.Error("Failed to update user tier", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to update user tier", http.StatusInternalServerError)
		return
	}

	// Live tokens still carry the old tier claim; block their sessions so the
	// change takes effect on the next login or refresh.
	if err := model.BlockSessionsForUser(database.DB, int64(user.ID)); err != nil {
		logger.L.Error("Failed to block sessions after tier change", "userID", user.ID, "error", err)
	}

	if err := h.emailService.SendTierChangeEmail(user.Email, user.Username, requestBody.UserType); err != nil {
		logger.L.Error("Failed to send tier change email", "userID", user.ID, "error", err)
	}

	logger.L.Info("User tier updated", "userID", user.ID, "from", user.UserType, "to", requestBody.UserType)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User tier updated successfully",
	})
}
