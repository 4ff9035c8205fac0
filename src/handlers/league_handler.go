package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/muni-world/muni-fullstack/backend/src/services"
	"github.com/muni-world/muni-fullstack/backend/src/utils"
)

type LeagueHandler struct {
	leagueService services.LeagueService
}

func NewLeagueHandler(leagueService services.LeagueService) *LeagueHandler {
	return &LeagueHandler{
		leagueService: leagueService,
	}
}

// HandleGetPublicLeagueData serves the guest-tier league table. No identity is
// required; authenticated callers get the guest view here too. An upstream
// read failure degrades to an empty table, which is safe to show a guest.
func (h *LeagueHandler) HandleGetPublicLeagueData(w http.ResponseWriter, r *http.Request) {
	rows, err := h.leagueService.GetLeagueData(league.TierGuest)
	if err != nil {
		logger.L.Error("Public league data unavailable, degrading to empty table", "error", err)
		rows = []models.LeagueRow{}
	}
	writeLeagueSuccess(w, r, rows)
}

// HandleGetAuthenticatedLeagueData serves the league table for the caller's
// resolved tier. Requires identity; the AuthMiddleware rejects anonymous
// callers before this runs. An unrecognized tier claim resolves to guest
// rather than being promoted.
func (h *LeagueHandler) HandleGetAuthenticatedLeagueData(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		writeLeagueFailure(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	tier := league.ResolveTier(claims)

	rows, err := h.leagueService.GetLeagueData(tier)
	if err != nil {
		// Returning an empty table here would misrepresent the caller's paid
		// access level, so surface the failure instead.
		logger.L.Error("Authenticated league data unavailable", "tier", tier, "error", err)
		writeLeagueFailure(w, http.StatusInternalServerError, "Failed to fetch league data")
		return
	}
	writeLeagueSuccess(w, r, rows)
}

// HandleGetSubscriberLeagueData serves the full league table. Requires
// identity and the subscriber tier.
func (h *LeagueHandler) HandleGetSubscriberLeagueData(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		writeLeagueFailure(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	tier := league.ResolveTier(claims)
	if !tier.AtLeast(league.TierSubscriber) {
		logger.L.Debug("Subscriber league data denied", "userID", claims.UserID, "tier", tier)
		writeLeagueFailure(w, http.StatusForbidden, "Subscriber access required")
		return
	}

	rows, err := h.leagueService.GetLeagueData(league.TierSubscriber)
	if err != nil {
		logger.L.Error("Subscriber league data unavailable", "error", err)
		writeLeagueFailure(w, http.StatusInternalServerError, "Failed to fetch league data")
		return
	}
	writeLeagueSuccess(w, r, rows)
}

func writeLeagueSuccess(w http.ResponseWriter, r *http.Request, rows []models.LeagueRow) {
	response := models.LeagueResponse{Success: true, Data: rows}

	etag, err := utils.GenerateETag(response)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func writeLeagueFailure(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
