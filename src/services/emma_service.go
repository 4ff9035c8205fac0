// backend/src/services/emma_service.go
package services

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/utils"
	"golang.org/x/net/publicsuffix"
)

// EmmaService backfills unknown underwriter fees by fetching the official
// statement page linked from a deal's emma_os_url and extracting the
// underwriter's discount figure. Deals without a document URL are left alone.
type EmmaService struct {
	db         *sql.DB
	httpClient http.Client
	baseURL    string

	leagueService LeagueService
}

// Patterns seen on OS summary pages. The dollar figure follows the label,
// sometimes across markup.
var underwriterDiscountRe = regexp.MustCompile(`(?i)underwriter(?:'s)?\s+discount[^$]{0,200}\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)

func NewEmmaService(db *sql.DB, baseURL string, fetchTimeout time.Duration, leagueService LeagueService) *EmmaService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar for EMMA client", "error", err)
	}

	return &EmmaService{
		db: db,
		httpClient: http.Client{
			Jar:     jar,
			Timeout: fetchTimeout,
		},
		baseURL:       baseURL,
		leagueService: leagueService,
	}
}

// EnrichMissingFees scans the deal collection for deals with an unknown fee
// and a document URL, fetches each document and writes back what it finds.
// Failures are per-deal; one bad document never aborts the pass. The league
// cache is invalidated once at the end if anything changed.
func (s *EmmaService) EnrichMissingFees() {
	startTime := time.Now()
	candidates, err := model.GetDealsMissingFees(s.db)
	if err != nil {
		logger.L.Error("EMMA enrichment: could not list deals missing fees", "error", err)
		return
	}
	if len(candidates) == 0 {
		logger.L.Info("EMMA enrichment: no deals missing fees")
		return
	}
	logger.L.Info("EMMA enrichment: starting pass", "candidates", len(candidates))

	updated := 0
	for _, sd := range candidates {
		time.Sleep(250 * time.Millisecond) // Respectful delay

		total, err := s.fetchUnderwriterDiscount(sd.Record.EmmaOsURL)
		if err != nil {
			logger.L.Warn("EMMA enrichment: fetch failed", "id", sd.ID, "url", sd.Record.EmmaOsURL, "error", err)
			// Record the attempt; the fee stays unknown.
			if err := model.UpdateDealFee(s.db, sd.ID, nil, false); err != nil {
				logger.L.Error("EMMA enrichment: could not record failed scrape", "id", sd.ID, "error", err)
			}
			continue
		}

		rounded := utils.RoundFloat(total, 2)
		if err := model.UpdateDealFee(s.db, sd.ID, &rounded, true); err != nil {
			logger.L.Error("EMMA enrichment: could not store fee", "id", sd.ID, "error", err)
			continue
		}
		logger.L.Info("EMMA enrichment: fee recorded", "id", sd.ID, "total", rounded)
		updated++
	}

	if updated > 0 {
		s.leagueService.InvalidateCache()
	}
	logger.L.Info("EMMA enrichment: pass complete",
		"candidates", len(candidates),
		"updated", updated,
		"duration", time.Since(startTime))
}

// fetchUnderwriterDiscount downloads an official statement page and pulls the
// underwriter's discount out of it.
func (s *EmmaService) fetchUnderwriterDiscount(docURL string) (float64, error) {
	if !strings.HasPrefix(docURL, s.baseURL) {
		return 0, fmt.Errorf("document URL %q is outside the configured EMMA base %q", docURL, s.baseURL)
	}

	req, err := http.NewRequest("GET", docURL, nil)
	if err != nil {
		return 0, err
	}
	// A valid User-Agent is crucial.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch official statement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("official statement fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read official statement body: %w", err)
	}

	return ParseUnderwriterDiscount(string(body))
}

// ParseUnderwriterDiscount extracts the underwriter's discount dollar amount
// from official statement page text.
func ParseUnderwriterDiscount(body string) (float64, error) {
	matches := underwriterDiscountRe.FindStringSubmatch(body)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not find an underwriter discount figure. The page structure may have changed")
	}
	raw := strings.ReplaceAll(matches[1], ",", "")
	total, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse underwriter discount %q: %w", matches[1], err)
	}
	if total < 0 {
		return 0, fmt.Errorf("parsed a negative underwriter discount: %v", total)
	}
	return total, nil
}
