package models

import (
	"math"

	"github.com/muni-world/muni-fullstack/backend/src/security/validation"
)

// UnderwriterFee carries the fee paid to underwriters for an issuance.
// Total is nil when the fee is not yet known, which is distinct from zero.
// ScrapeSuccess records whether the EMMA official statement scrape found it.
type UnderwriterFee struct {
	Total         *float64 `json:"total"`
	ScrapeSuccess bool     `json:"scrape_success,omitempty"`
}

// DealRecord is the raw shape of a bond-deal document as read from storage.
// Field names match the wire format of the deals collection.
type DealRecord struct {
	Issuer               string          `json:"issuer,omitempty"`
	SeriesNameObligor    string          `json:"series_name_obligor"`
	TotalPar             float64         `json:"total_par"`
	UnderwriterFee       *UnderwriterFee `json:"underwriter_fee,omitempty"`
	LeadManagers         []string        `json:"lead_managers"`
	CoManagers           []string        `json:"co_managers,omitempty"`
	Counsels             []string        `json:"counsels,omitempty"`
	MunicipalAdvisors    []string        `json:"municipal_advisors,omitempty"`
	UnderwritersAdvisors []string        `json:"underwriters_advisors,omitempty"`
	OsType               string          `json:"os_type,omitempty"`
	Date                 string          `json:"date,omitempty"`
	State                string          `json:"state,omitempty"`
	Sector               string          `json:"sector,omitempty"`
	Method               string          `json:"method,omitempty"`
	EmmaOsURL            string          `json:"emma_os_url,omitempty"`
}

// Normalize fills defaults for missing fields so downstream aggregation never
// branches on field presence: missing slices become empty, a non-finite par
// becomes 0, and identifier strings are stripped of unprintable characters.
// Normalize is idempotent.
func (d *DealRecord) Normalize() {
	if math.IsNaN(d.TotalPar) || math.IsInf(d.TotalPar, 0) {
		d.TotalPar = 0
	}
	if d.LeadManagers == nil {
		d.LeadManagers = []string{}
	}
	if d.CoManagers == nil {
		d.CoManagers = []string{}
	}
	if d.Counsels == nil {
		d.Counsels = []string{}
	}
	if d.MunicipalAdvisors == nil {
		d.MunicipalAdvisors = []string{}
	}
	if d.UnderwritersAdvisors == nil {
		d.UnderwritersAdvisors = []string{}
	}

	d.Issuer = validation.StripUnprintable(d.Issuer)
	d.SeriesNameObligor = validation.StripUnprintable(d.SeriesNameObligor)
	for i, m := range d.LeadManagers {
		d.LeadManagers[i] = validation.StripUnprintable(m)
	}

	if d.UnderwriterFee != nil && d.UnderwriterFee.Total != nil {
		if math.IsNaN(*d.UnderwriterFee.Total) || math.IsInf(*d.UnderwriterFee.Total, 0) {
			d.UnderwriterFee.Total = nil
		}
	}
}

// FeeTotal returns the known underwriter fee for the deal.
// The second return is false when the fee is absent or null.
func (d *DealRecord) FeeTotal() (float64, bool) {
	if d.UnderwriterFee == nil || d.UnderwriterFee.Total == nil {
		return 0, false
	}
	return *d.UnderwriterFee.Total, true
}

// ManagerAggregate is the full (unfiltered) per-manager aggregate, one per
// distinct lead-left manager. It is constructed per request and never stored.
type ManagerAggregate struct {
	Rank            int
	LeadLeftManager string
	AggregatePar    float64
	// Mean underwriter fee over deals with a known fee; nil when no deal in
	// the group has a known fee.
	AvgUnderwriterFeeAmount *float64
	// AvgUnderwriterFeeAmount divided by the average par of the fee-bearing
	// deals only, times 100. The denominator deliberately excludes deals
	// without a known fee.
	AvgUnderwriterFeePercentage *float64
	Deals                       []DealRecord
}
