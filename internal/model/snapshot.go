package model

import (
	"fmt"
	"time"
)

// GridSnapshot is one hour of the wind grid. The four slices are co-indexed:
// Lon[i], Lat[i], U[i], V[i] all describe grid point i.
type GridSnapshot struct {
	Time time.Time
	Lon  []float64
	Lat  []float64
	U    []float64 // eastward, m/s
	V    []float64 // northward, m/s
}

func (g *GridSnapshot) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Lon)
}

// Validate checks that the snapshot is non-empty and co-indexed.
func (g *GridSnapshot) Validate() error {
	if g == nil {
		return fmt.Errorf("snapshot is nil")
	}
	n := len(g.Lon)
	if n == 0 {
		return fmt.Errorf("snapshot has no grid points")
	}
	if len(g.Lat) != n || len(g.U) != n || len(g.V) != n {
		return fmt.Errorf("snapshot arrays not co-indexed: lon=%d lat=%d u=%d v=%d",
			n, len(g.Lat), len(g.U), len(g.V))
	}
	return nil
}

// RequestKey identifies one hourly analysis file: a UTC calendar date plus
// the forecast-hour code.
type RequestKey struct {
	Date time.Time // midnight UTC
	Hour int       // 0..23
}

func NewRequestKey(t time.Time) RequestKey {
	t = t.UTC()
	return RequestKey{
		Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Hour: t.Hour(),
	}
}

// Code is the forecast-hour code, e.g. "0700".
func (k RequestKey) Code() string {
	return fmt.Sprintf("%02d00", k.Hour)
}

// Time is the valid time of the analysis.
func (k RequestKey) Time() time.Time {
	return k.Date.Add(time.Duration(k.Hour) * time.Hour)
}

// String is the analysis file stem, e.g. "rap_130_20160101_0700_000".
func (k RequestKey) String() string {
	return fmt.Sprintf("rap_130_%s_%s_000", k.Date.Format("20060102"), k.Code())
}

func (k RequestKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
