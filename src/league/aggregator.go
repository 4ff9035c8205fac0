package league

import (
	"sort"

	"github.com/muni-world/muni-fullstack/backend/src/models"
)

// UnknownManager is the grouping key for deals whose lead manager list is
// empty or whose first entry is blank.
const UnknownManager = "Unknown Manager"

// Aggregate groups deals by lead-left manager (the first entry of
// lead_managers), computes per-group par and fee statistics, sorts groups by
// descending aggregate par and assigns 1-based ranks. Grouping keys keep
// first-seen insertion order, and the sort is stable, so ties keep that order.
//
// All accumulation state is local to the call; Aggregate is safe to run
// concurrently over the same input and returns identical output every time.
func Aggregate(deals []models.DealRecord) []models.ManagerAggregate {
	groupIndex := make(map[string]int, len(deals))
	groups := make([]models.ManagerAggregate, 0, len(deals))

	for _, deal := range deals {
		key := UnknownManager
		if len(deal.LeadManagers) > 0 && deal.LeadManagers[0] != "" {
			key = deal.LeadManagers[0]
		}
		idx, ok := groupIndex[key]
		if !ok {
			idx = len(groups)
			groupIndex[key] = idx
			groups = append(groups, models.ManagerAggregate{LeadLeftManager: key})
		}
		groups[idx].Deals = append(groups[idx].Deals, deal)
	}

	for i := range groups {
		finalizeGroup(&groups[i])
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].AggregatePar > groups[j].AggregatePar
	})
	for i := range groups {
		groups[i].Rank = i + 1
	}
	return groups
}

func finalizeGroup(g *models.ManagerAggregate) {
	var aggregatePar, feeSum float64
	feeCount := 0
	for _, d := range g.Deals {
		aggregatePar += d.TotalPar
		if fee, known := d.FeeTotal(); known {
			feeSum += fee
			feeCount++
		}
	}
	g.AggregatePar = aggregatePar

	if feeCount > 0 {
		avgFee := feeSum / float64(feeCount)
		g.AvgUnderwriterFeeAmount = &avgFee

		// The denominator is the group's aggregate par spread over the
		// fee-bearing deals only, not over all member deals. This matches the
		// historical convention; see DESIGN.md before changing it.
		avgParPerFeeDeal := aggregatePar / float64(feeCount)
		if avgParPerFeeDeal != 0 {
			pct := (avgFee / avgParPerFeeDeal) * 100
			g.AvgUnderwriterFeePercentage = &pct
		}
	}

	sortDealsByFeeRatio(g.Deals)
}

// sortDealsByFeeRatio orders member deals by descending fee-to-par ratio for
// display. The ratio is undefined for deals with an unknown fee or zero par;
// those sort last, keeping their relative order.
func sortDealsByFeeRatio(deals []models.DealRecord) {
	ratio := func(d models.DealRecord) (float64, bool) {
		fee, known := d.FeeTotal()
		if !known || d.TotalPar <= 0 {
			return 0, false
		}
		return fee / d.TotalPar, true
	}
	sort.SliceStable(deals, func(i, j int) bool {
		ri, iok := ratio(deals[i])
		rj, jok := ratio(deals[j])
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ri > rj
	})
}
