package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/muni-world/muni-fullstack/backend/src/league"
	"github.com/muni-world/muni-fullstack/backend/src/model"
	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnderwriterDiscount(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{
			name: "plain label",
			body: `<td>Underwriter's Discount</td><td>$125,000.50</td>`,
			want: 125000.50,
		},
		{
			name: "no apostrophe, upper case",
			body: `UNDERWRITER DISCOUNT ............ $50,000`,
			want: 50000,
		},
		{
			name: "figure across markup",
			body: `<span>Underwriter's discount</span><span class="amt">$ 39,375</span>`,
			want: 39375,
		},
		{
			name: "no thousands separators",
			body: `Underwriter's Discount: $2500.75`,
			want: 2500.75,
		},
		{
			name:    "label absent",
			body:    `<td>Total Par</td><td>$10,000,000</td>`,
			wantErr: true,
		},
		{
			name:    "label without a figure",
			body:    `Underwriter's Discount: not disclosed`,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnderwriterDiscount(tt.body)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubLeagueService struct {
	invalidations int
}

func (s *stubLeagueService) GetLeagueData(tier league.Tier) ([]models.LeagueRow, error) {
	return nil, nil
}

func (s *stubLeagueService) InvalidateCache() {
	s.invalidations++
}

func TestEnrichMissingFees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc-ok":
			w.Write([]byte(`<html><td>Underwriter's Discount</td><td>$12,345.67</td></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	db := newDealDB(t)
	insertDeal(t, db, models.DealRecord{
		SeriesNameObligor: "Port Authority of Riverton 2025B",
		TotalPar:          22_500_000,
		LeadManagers:      []string{"Goldman Sachs"},
		EmmaOsURL:         server.URL + "/doc-ok",
	})
	insertDeal(t, db, models.DealRecord{
		SeriesNameObligor: "Brockway Transit 2025",
		TotalPar:          6_400_000,
		LeadManagers:      []string{"Morgan Stanley"},
		EmmaOsURL:         server.URL + "/doc-missing",
	})
	insertDeal(t, db, models.DealRecord{
		SeriesNameObligor: "City of Springfield GO 2025A",
		TotalPar:          10_000_000,
		UnderwriterFee:    &models.UnderwriterFee{Total: feePtr(50_000), ScrapeSuccess: true},
		LeadManagers:      []string{"Goldman Sachs"},
		EmmaOsURL:         server.URL + "/doc-ok",
	})

	stub := &stubLeagueService{}
	svc := NewEmmaService(db, server.URL, 5*time.Second, stub)
	svc.EnrichMissingFees()

	deals, err := model.GetAllDeals(db)
	require.NoError(t, err)
	require.Len(t, deals, 3)

	byName := make(map[string]models.DealRecord)
	for _, d := range deals {
		byName[d.SeriesNameObligor] = d
	}

	enriched := byName["Port Authority of Riverton 2025B"]
	require.NotNil(t, enriched.UnderwriterFee)
	require.NotNil(t, enriched.UnderwriterFee.Total)
	assert.Equal(t, 12345.67, *enriched.UnderwriterFee.Total)
	assert.True(t, enriched.UnderwriterFee.ScrapeSuccess)

	failed := byName["Brockway Transit 2025"]
	require.NotNil(t, failed.UnderwriterFee)
	assert.Nil(t, failed.UnderwriterFee.Total)
	assert.False(t, failed.UnderwriterFee.ScrapeSuccess)

	untouched := byName["City of Springfield GO 2025A"]
	require.NotNil(t, untouched.UnderwriterFee)
	require.NotNil(t, untouched.UnderwriterFee.Total)
	assert.Equal(t, 50_000.0, *untouched.UnderwriterFee.Total)

	assert.Equal(t, 1, stub.invalidations)
}

func TestEnrichMissingFeesRejectsForeignURL(t *testing.T) {
	db := newDealDB(t)
	insertDeal(t, db, models.DealRecord{
		SeriesNameObligor: "Township of Ogdenville 2025",
		TotalPar:          1_200_000,
		LeadManagers:      []string{},
		EmmaOsURL:         "https://attacker.example/doc",
	})

	stub := &stubLeagueService{}
	svc := NewEmmaService(db, "https://emma.msrb.org", time.Second, stub)
	svc.EnrichMissingFees()

	// The foreign URL is never fetched; the attempt is still recorded.
	deals, err := model.GetAllDeals(db)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.NotNil(t, deals[0].UnderwriterFee)
	assert.Nil(t, deals[0].UnderwriterFee.Total)
	assert.Equal(t, 0, stub.invalidations)
}
