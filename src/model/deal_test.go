package model

import (
	"database/sql"
	"testing"

	"github.com/muni-world/muni-fullstack/backend/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDealTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
	CREATE TABLE deals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)
	return db
}

func knownFee(v float64) *models.UnderwriterFee {
	return &models.UnderwriterFee{Total: &v, ScrapeSuccess: true}
}

func TestReplaceAllDeals(t *testing.T) {
	db := newDealTestDB(t)

	first := []models.DealRecord{
		{SeriesNameObligor: "City of Springfield GO 2025A", TotalPar: 10_000_000, LeadManagers: []string{"Goldman Sachs"}},
	}
	require.NoError(t, ReplaceAllDeals(db, first))

	count, err := CountDeals(db)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	second := []models.DealRecord{
		{SeriesNameObligor: "County of Shelbyville Rev 2025", TotalPar: 5_000_000, LeadManagers: []string{"Morgan Stanley"}},
		{SeriesNameObligor: "Lakeside Water Utility 2025", TotalPar: 8_750_000, LeadManagers: []string{"RBC Capital Markets"}},
	}
	require.NoError(t, ReplaceAllDeals(db, second))

	deals, err := GetAllDeals(db)
	require.NoError(t, err)
	require.Len(t, deals, 2, "replace swaps the whole collection")
	assert.Equal(t, "County of Shelbyville Rev 2025", deals[0].SeriesNameObligor)
}

func TestGetDealsMissingFees(t *testing.T) {
	db := newDealTestDB(t)
	require.NoError(t, ReplaceAllDeals(db, []models.DealRecord{
		{SeriesNameObligor: "Has fee", TotalPar: 1, UnderwriterFee: knownFee(10), EmmaOsURL: "https://emma.msrb.org/P1"},
		{SeriesNameObligor: "Missing fee with URL", TotalPar: 2, EmmaOsURL: "https://emma.msrb.org/P2"},
		{SeriesNameObligor: "Missing fee without URL", TotalPar: 3},
	}))

	missing, err := GetDealsMissingFees(db)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "Missing fee with URL", missing[0].Record.SeriesNameObligor)
}

func TestUpdateDealFee(t *testing.T) {
	db := newDealTestDB(t)
	require.NoError(t, ReplaceAllDeals(db, []models.DealRecord{
		{SeriesNameObligor: "Pending", TotalPar: 100, EmmaOsURL: "https://emma.msrb.org/P9"},
	}))

	missing, err := GetDealsMissingFees(db)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	total := 4242.42
	require.NoError(t, UpdateDealFee(db, missing[0].ID, &total, true))

	deals, err := GetAllDeals(db)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	got, known := deals[0].FeeTotal()
	assert.True(t, known)
	assert.Equal(t, 4242.42, got)

	remaining, err := GetDealsMissingFees(db)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
