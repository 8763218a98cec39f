package analysis

import (
	"math"
	"sort"
	"time"

	"wind-hindcast/internal/model"
)

// SiteSummary is a per-site summary of a hindcast table.
// Hours counts every row for the site, including missing ones; the power
// statistics only use rows that carry a value.
type SiteSummary struct {
	SiteID     int32   `json:"site_id"`
	Name       string  `json:"name,omitempty"`
	CapacityMW float64 `json:"capacity_mw"`

	StartUTC time.Time `json:"start_utc"`
	EndUTC   time.Time `json:"end_utc"`

	Hours        int `json:"hours"`
	MissingHours int `json:"missing_hours"`

	MeanPowerMW float64 `json:"mean_power_mw"`
	MaxPowerMW  float64 `json:"max_power_mw"`
	P05PowerMW  float64 `json:"p05_power_mw"`
	P95PowerMW  float64 `json:"p95_power_mw"`
	MeanSpeed   float64 `json:"mean_speed_ms"`

	// EnergyMWh assumes one hour per row.
	EnergyMWh float64 `json:"energy_mwh"`
	// CapacityFactor is mean power over capacity, on available hours only.
	CapacityFactor float64 `json:"capacity_factor"`
}

// Coverage is the fraction of hours with a value.
func (s SiteSummary) Coverage() float64 {
	if s.Hours == 0 {
		return 0
	}
	return float64(s.Hours-s.MissingHours) / float64(s.Hours)
}

// ComputeSummary summarizes the rows of one site. capacityMW may be 0 when
// unknown, in which case CapacityFactor stays 0.
func ComputeSummary(siteID int32, capacityMW float64, rows []model.OutputRow) SiteSummary {
	s := SiteSummary{SiteID: siteID, CapacityMW: capacityMW}
	if len(rows) == 0 {
		return s
	}
	s.Hours = len(rows)
	s.StartUTC = rows[0].Timestamp
	s.EndUTC = rows[0].Timestamp

	sum, speedSum := 0.0, 0.0
	maxv := math.Inf(-1)
	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.Timestamp.Before(s.StartUTC) {
			s.StartUTC = r.Timestamp
		}
		if r.Timestamp.After(s.EndUTC) {
			s.EndUTC = r.Timestamp
		}
		if r.PowerMW == nil {
			s.MissingHours++
			continue
		}
		v := *r.PowerMW
		vals = append(vals, v)
		sum += v
		if v > maxv {
			maxv = v
		}
		if r.U != nil && r.V != nil {
			speedSum += math.Hypot(*r.U, *r.V)
		}
	}
	if len(vals) == 0 {
		return s
	}
	sort.Float64s(vals)
	n := float64(len(vals))
	s.MeanPowerMW = sum / n
	s.MaxPowerMW = maxv
	s.P05PowerMW = percentileSorted(vals, 0.05)
	s.P95PowerMW = percentileSorted(vals, 0.95)
	s.MeanSpeed = speedSum / n
	s.EnergyMWh = sum
	if capacityMW > 0 {
		s.CapacityFactor = s.MeanPowerMW / capacityMW
	}
	return s
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
