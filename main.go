package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/muni-world/muni-fullstack/backend/src/config"
	"github.com/muni-world/muni-fullstack/backend/src/database"
	"github.com/muni-world/muni-fullstack/backend/src/handlers"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/muni-world/muni-fullstack/backend/src/security"
	"github.com/muni-world/muni-fullstack/backend/src/services"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// seedDealsIfEmpty loads the bundled deal dataset into an empty database.
// A populated deals table is left alone.
func seedDealsIfEmpty(seedPath string) {
	count, err := model.CountDeals(database.DB)
	if err != nil {
		logger.L.Error("Failed to count deals for seeding", "error", err)
		return
	}
	if count > 0 {
		logger.L.Info("Deals table already populated, skipping seed", "count", count)
		return
	}
	if seedPath == "" {
		logger.L.Warn("Deals table is empty and no seed path configured")
		return
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		logger.L.Error("Failed to read deals seed file", "path", seedPath, "error", err)
		return
	}
	var deals []models.DealRecord
	if err := json.Unmarshal(raw, &deals); err != nil {
		logger.L.Error("Failed to parse deals seed file", "path", seedPath, "error", err)
		return
	}
	if err := model.ReplaceAllDeals(database.DB, deals); err != nil {
		logger.L.Error("Failed to seed deals", "error", err)
		return
	}
	logger.L.Info("Seeded deals from file", "path", seedPath, "count", len(deals))
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Muni league backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	seedDealsIfEmpty(config.Cfg.DealsSeedPath)

	logger.L.Info("Initializing league cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	leagueService := services.NewLeagueService(database.DB, reportCache)

	userHandler := handlers.NewUserHandler(authService, emailService)
	leagueHandler := handlers.NewLeagueHandler(leagueService)
	handlers.InitializeGoogleOAuthConfig()

	if config.Cfg.EmmaEnrichmentEnabled {
		emmaService := services.NewEmmaService(database.DB, config.Cfg.EmmaBaseURL, config.Cfg.EmmaFetchTimeout, leagueService)
		go emmaService.EnrichMissingFees()
	} else {
		logger.L.Info("EMMA fee enrichment disabled")
	}

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public GET routes (no CSRF needed for these GETs)
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/verify-email", userHandler.VerifyEmailHandler)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	// Auth actions - POST routes need CSRF
	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.HandleFunc("POST /logout", userHandler.AuthMiddleware(userHandler.LogoutUserHandler))

	csrfProtection := handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)
	apiRouter.Handle("POST /api/auth/", http.StripPrefix("/api/auth", csrfProtection(authActionRouter)))

	// League table endpoints. The public one serves the guest view without
	// identity; the other two resolve the caller's tier from the token.
	apiRouter.HandleFunc("GET /api/league/public", leagueHandler.HandleGetPublicLeagueData)
	apiRouter.Handle("GET /api/league/authenticated", userHandler.AuthMiddleware(leagueHandler.HandleGetAuthenticatedLeagueData))
	apiRouter.Handle("GET /api/league/subscriber", userHandler.AuthMiddleware(leagueHandler.HandleGetSubscriberLeagueData))

	// Operator endpoint, guarded by the admin API key inside the handler.
	apiRouter.Handle("POST /api/admin/users/tier", csrfProtection(http.HandlerFunc(userHandler.HandleUpdateUserTier)))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Muni league backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
