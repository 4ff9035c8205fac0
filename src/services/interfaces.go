package services

import (
	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/models"
)

// LeagueService produces the tier-filtered league table.
type LeagueService interface {
	// GetLeagueData reads the deal collection, aggregates it by lead-left
	// manager and filters it for the given tier. Results are cached per tier.
	GetLeagueData(tier league.Tier) ([]models.LeagueRow, error)
	// InvalidateCache clears the per-tier caches; called after the deal
	// collection changes (reseed, fee enrichment).
	InvalidateCache()
}

// EmailService defines the outbound mail surface.
type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendTierChangeEmail(toEmail, username, newTier string) error
}
