package model

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/muni-world/muni-fullstack/backend/src/logger"
	"github.com/muni-world/muni-fullstack/backend/src/models"
)

// The deals table is a small document store: one JSON payload per row,
// matching the wire shape the upstream pipeline writes. Rows are read in bulk
// per request; there is no per-field querying here.

// StoredDeal pairs a deal record with its row id, for callers that need to
// write back (fee enrichment).
type StoredDeal struct {
	ID     int64
	Record models.DealRecord
}

// GetAllDeals reads the whole deal collection. A row whose payload fails to
// decode is logged and skipped rather than failing the read: one malformed
// document must not take down the league table.
func GetAllDeals(db *sql.DB) ([]models.DealRecord, error) {
	rows, err := db.Query(`SELECT id, payload FROM deals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying deals: %w", err)
	}
	defer rows.Close()

	var deals []models.DealRecord
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning deal row: %w", err)
		}
		var deal models.DealRecord
		if err := json.Unmarshal([]byte(payload), &deal); err != nil {
			if logger.L != nil {
				logger.L.Warn("Skipping undecodable deal document", "id", id, "error", err)
			}
			continue
		}
		deal.Normalize()
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

// CountDeals returns the number of stored deal documents.
func CountDeals(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM deals`).Scan(&n)
	return n, err
}

// ReplaceAllDeals swaps the whole collection for the given records in a single
// transaction. Used by seeding; readers either see the old collection or the
// new one, never a partial mix.
func ReplaceAllDeals(db *sql.DB, deals []models.DealRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning deals transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM deals`); err != nil {
		return fmt.Errorf("error clearing deals: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO deals (payload) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("error preparing deal insert: %w", err)
	}
	defer stmt.Close()

	for i := range deals {
		deals[i].Normalize()
		payload, err := json.Marshal(deals[i])
		if err != nil {
			return fmt.Errorf("error encoding deal %q: %w", deals[i].SeriesNameObligor, err)
		}
		if _, err := stmt.Exec(string(payload)); err != nil {
			return fmt.Errorf("error inserting deal %q: %w", deals[i].SeriesNameObligor, err)
		}
	}

	return tx.Commit()
}

// GetDealsMissingFees returns the stored deals whose underwriter fee is
// unknown and that carry an EMMA document URL to fetch it from.
func GetDealsMissingFees(db *sql.DB) ([]StoredDeal, error) {
	rows, err := db.Query(`SELECT id, payload FROM deals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying deals: %w", err)
	}
	defer rows.Close()

	var out []StoredDeal
	for rows.Next() {
		var sd StoredDeal
		var payload string
		if err := rows.Scan(&sd.ID, &payload); err != nil {
			return nil, fmt.Errorf("scanning deal row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &sd.Record); err != nil {
			continue
		}
		sd.Record.Normalize()
		if _, known := sd.Record.FeeTotal(); known {
			continue
		}
		if sd.Record.EmmaOsURL == "" {
			continue
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

// UpdateDealFee writes a scraped underwriter fee back onto a stored deal.
// scrapeSuccess is recorded either way so the document keeps a trace of the
// attempt.
func UpdateDealFee(db *sql.DB, id int64, total *float64, scrapeSuccess bool) error {
	var payload string
	if err := db.QueryRow(`SELECT payload FROM deals WHERE id = ?`, id).Scan(&payload); err != nil {
		return fmt.Errorf("loading deal %d: %w", id, err)
	}
	var deal models.DealRecord
	if err := json.Unmarshal([]byte(payload), &deal); err != nil {
		return fmt.Errorf("decoding deal %d: %w", id, err)
	}
	deal.UnderwriterFee = &models.UnderwriterFee{Total: total, ScrapeSuccess: scrapeSuccess}

	updated, err := json.Marshal(deal)
	if err != nil {
		return fmt.Errorf("encoding deal %d: %w", id, err)
	}
	_, err = db.Exec(`UPDATE deals SET payload = ? WHERE id = ?`, string(updated), id)
	return err
}
