package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/patrickmn/go-cache"
)

// ErrDataUnavailable wraps upstream read failures. Handlers decide whether to
// degrade (guest) or surface an internal error (authenticated tiers).
var ErrDataUnavailable = errors.New("deal data unavailable")

const (
	ckLeagueRowsForTier = "league_rows_tier_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type leagueServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
}

func NewLeagueService(db *sql.DB, reportCache *cache.Cache) LeagueService {
	return &leagueServiceImpl{
		db:          db,
		reportCache: reportCache,
	}
}

func (s *leagueServiceImpl) GetLeagueData(tier league.Tier) ([]models.LeagueRow, error) {
	cacheKey := fmt.Sprintf(ckLeagueRowsForTier, tier)
	if cached, found := s.reportCache.Get(cacheKey); found {
		if rows, ok := cached.([]models.LeagueRow); ok {
			logger.L.Debug("League data served from cache", "tier", tier)
			return rows, nil
		}
	}

	startTime := time.Now()
	deals, err := model.GetAllDeals(s.db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	rows := league.ApplyVisibilityAll(league.Aggregate(deals), tier)
	s.reportCache.Set(cacheKey, rows, cache.DefaultExpiration)

	logger.L.Info("League data computed",
		"tier", tier,
		"deals", len(deals),
		"managers", len(rows),
		"duration", time.Since(startTime))
	return rows, nil
}

func (s *leagueServiceImpl) InvalidateCache() {
	for _, tier := range []league.Tier{league.TierGuest, league.TierFree, league.TierSubscriber} {
		s.reportCache.Delete(fmt.Sprintf(ckLeagueRowsForTier, tier))
	}
	logger.L.Debug("League caches invalidated")
}
