package models

// VisibilityMarker tells the client which tier unlocks a withheld field.
// A marker is only ever attached to fields that exist in the source data but
// are hidden for the caller's tier; a genuinely absent field carries none.
type VisibilityMarker string

const (
	NeedFree       VisibilityMarker = "need_free"
	NeedSubscriber VisibilityMarker = "need_subscriber"
)

// VisibilityInfo lists the withheld fields of a LeagueRow and the tier that
// unlocks each. Omitted entirely when nothing is withheld.
type VisibilityInfo struct {
	AvgUnderwriterFeeAmount     VisibilityMarker `json:"avgUnderwriterFeeAmount,omitempty"`
	AvgUnderwriterFeePercentage VisibilityMarker `json:"avgUnderwriterFeePercentage,omitempty"`
	FullDealList                VisibilityMarker `json:"fullDealList,omitempty"`
}

// DealView is the tier-filtered projection of a member deal.
// Free callers get the summary fields only; subscriber callers get everything.
type DealView struct {
	SeriesNameObligor string          `json:"series_name_obligor"`
	TotalPar          float64         `json:"total_par"`
	UnderwriterFee    *UnderwriterFee `json:"underwriter_fee,omitempty"`

	// Subscriber-only detail.
	Issuer               string   `json:"issuer,omitempty"`
	LeadManagers         []string `json:"lead_managers,omitempty"`
	CoManagers           []string `json:"co_managers,omitempty"`
	Counsels             []string `json:"counsels,omitempty"`
	MunicipalAdvisors    []string `json:"municipal_advisors,omitempty"`
	UnderwritersAdvisors []string `json:"underwriters_advisors,omitempty"`
	OsType               string   `json:"os_type,omitempty"`
	Date                 string   `json:"date,omitempty"`
	State                string   `json:"state,omitempty"`
	Sector               string   `json:"sector,omitempty"`
	Method               string   `json:"method,omitempty"`
	EmmaOsURL            string   `json:"emma_os_url,omitempty"`
}

// LeagueRow is the serialized per-manager row of the league table, after the
// visibility filter has been applied for the caller's tier.
type LeagueRow struct {
	Rank                        int             `json:"rank"`
	LeadLeftManager             string          `json:"leadLeftManager"`
	AggregatePar                float64         `json:"aggregatePar"`
	AvgUnderwriterFeeAmount     *float64        `json:"avgUnderwriterFeeAmount"`
	AvgUnderwriterFeePercentage *float64        `json:"avgUnderwriterFeePercentage"`
	Deals                       []DealView      `json:"deals,omitempty"`
	VisibilityInfo              *VisibilityInfo `json:"visibilityInfo,omitempty"`
}

// LeagueResponse is the success envelope returned by the league endpoints.
// Data is always present, [] when the table is empty.
type LeagueResponse struct {
	Success bool        `json:"success"`
	Data    []LeagueRow `json:"data"`
}
