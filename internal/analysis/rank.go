package analysis

import (
	"sort"

	"wind-hindcast/internal/model"
)

// GroupBySite splits a table into per-site rows, keeping row order.
func GroupBySite(rows []model.OutputRow) map[int32][]model.OutputRow {
	out := make(map[int32][]model.OutputRow)
	for _, r := range rows {
		out[r.SiteID] = append(out[r.SiteID], r)
	}
	return out
}

// Summarize computes one summary per site present in rows. Sites supply
// capacity and name; rows for unknown sites are summarized without them.
func Summarize(rows []model.OutputRow, sites []model.Site) []SiteSummary {
	byID := make(map[int32]model.Site, len(sites))
	for _, s := range sites {
		byID[s.ID] = s
	}
	grouped := GroupBySite(rows)
	out := make([]SiteSummary, 0, len(grouped))
	for id, siteRows := range grouped {
		site := byID[id]
		s := ComputeSummary(id, site.CapacityMW, siteRows)
		s.Name = site.Name
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}

// RankByCapacityFactor sorts descending by CapacityFactor, ties by site id.
func RankByCapacityFactor(summaries []SiteSummary) []SiteSummary {
	out := append([]SiteSummary(nil), summaries...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapacityFactor != out[j].CapacityFactor {
			return out[i].CapacityFactor > out[j].CapacityFactor
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out
}
