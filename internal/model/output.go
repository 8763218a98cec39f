package model

import "time"

// OutputRow is one (site, hour) row of the hindcast table.
// U, V and PowerMW are nil when the hour's snapshot could not be retrieved.
type OutputRow struct {
	Index     int       `json:"index"`
	SiteID    int32     `json:"site_id"`
	U         *float64  `json:"u"`
	V         *float64  `json:"v"`
	PowerMW   *float64  `json:"power_mw"`
	Timestamp time.Time `json:"ts"`
	TsID      int32     `json:"ts_id"`
}

func (r OutputRow) Missing() bool {
	return r.PowerMW == nil
}

// Float returns a pointer to a copy of x.
func Float(x float64) *float64 {
	return &x
}
