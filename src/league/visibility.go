package league

import (
	"github.com/muni-world/muni-fullstack/backend/src/models"
)

// ApplyVisibility projects a full manager aggregate into the view permitted
// for the caller's tier. Visibility is additive: everything a guest sees a
// free user sees, and everything a free user sees a subscriber sees. Withheld
// fields are marked in visibilityInfo with the tier that unlocks them rather
// than silently dropped. Pure transform, no side effects.
func ApplyVisibility(agg models.ManagerAggregate, tier Tier) models.LeagueRow {
	row := models.LeagueRow{
		Rank:            agg.Rank,
		LeadLeftManager: agg.LeadLeftManager,
		AggregatePar:    agg.AggregatePar,
	}

	switch tier {
	case TierSubscriber:
		row.AvgUnderwriterFeeAmount = copyFloat(agg.AvgUnderwriterFeeAmount)
		row.AvgUnderwriterFeePercentage = copyFloat(agg.AvgUnderwriterFeePercentage)
		row.Deals = make([]models.DealView, 0, len(agg.Deals))
		for _, d := range agg.Deals {
			row.Deals = append(row.Deals, fullDealView(d))
		}
	case TierFree:
		row.AvgUnderwriterFeeAmount = copyFloat(agg.AvgUnderwriterFeeAmount)
		row.AvgUnderwriterFeePercentage = copyFloat(agg.AvgUnderwriterFeePercentage)
		row.Deals = make([]models.DealView, 0, len(agg.Deals))
		for _, d := range agg.Deals {
			row.Deals = append(row.Deals, summaryDealView(d))
		}
		row.VisibilityInfo = &models.VisibilityInfo{
			FullDealList: models.NeedSubscriber,
		}
	default: // guest
		row.VisibilityInfo = &models.VisibilityInfo{
			AvgUnderwriterFeeAmount:     models.NeedFree,
			AvgUnderwriterFeePercentage: models.NeedFree,
			FullDealList:                models.NeedSubscriber,
		}
	}
	return row
}

// ApplyVisibilityAll filters every aggregate for the given tier. The result is
// never nil so an empty league table serializes as [] rather than null.
func ApplyVisibilityAll(aggs []models.ManagerAggregate, tier Tier) []models.LeagueRow {
	rows := make([]models.LeagueRow, 0, len(aggs))
	for _, agg := range aggs {
		rows = append(rows, ApplyVisibility(agg, tier))
	}
	return rows
}

// summaryDealView keeps the fields a free (authenticated) caller may see:
// the series identifier, the par amount, and the fee total when known.
func summaryDealView(d models.DealRecord) models.DealView {
	view := models.DealView{
		SeriesNameObligor: d.SeriesNameObligor,
		TotalPar:          d.TotalPar,
	}
	if d.UnderwriterFee != nil {
		view.UnderwriterFee = &models.UnderwriterFee{Total: copyFloat(d.UnderwriterFee.Total)}
	}
	return view
}

func fullDealView(d models.DealRecord) models.DealView {
	view := models.DealView{
		SeriesNameObligor:    d.SeriesNameObligor,
		TotalPar:             d.TotalPar,
		Issuer:               d.Issuer,
		LeadManagers:         d.LeadManagers,
		CoManagers:           d.CoManagers,
		Counsels:             d.Counsels,
		MunicipalAdvisors:    d.MunicipalAdvisors,
		UnderwritersAdvisors: d.UnderwritersAdvisors,
		OsType:               d.OsType,
		Date:                 d.Date,
		State:                d.State,
		Sector:               d.Sector,
		Method:               d.Method,
		EmmaOsURL:            d.EmmaOsURL,
	}
	if d.UnderwriterFee != nil {
		view.UnderwriterFee = &models.UnderwriterFee{
			Total:         copyFloat(d.UnderwriterFee.Total),
			ScrapeSuccess: d.UnderwriterFee.ScrapeSuccess,
		}
	}
	return view
}

// copyFloat clones an optional float so views never alias aggregate state.
func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
