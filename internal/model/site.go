package model

import (
	"errors"
	"fmt"
	"math"
)

// Site is one wind farm. Units:
// - Lon/Lat: degrees, signed (east / north positive)
// - CapacityMW: rated capacity, MW
type Site struct {
	ID         int32   `json:"id"`
	Name       string  `json:"name,omitempty"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	CapacityMW float64 `json:"capacity_mw"`
}

func (s Site) Validate() error {
	if math.IsNaN(s.Lon) || s.Lon < -180 || s.Lon > 360 {
		return fmt.Errorf("site %d: lon must be in [-180, 360]", s.ID)
	}
	if math.IsNaN(s.Lat) || s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("site %d: lat must be in [-90, 90]", s.ID)
	}
	if !(s.CapacityMW > 0) {
		return fmt.Errorf("site %d: capacity_mw must be > 0", s.ID)
	}
	return nil
}

// ValidateSites checks every site and rejects duplicate ids.
func ValidateSites(sites []Site) error {
	if len(sites) == 0 {
		return errors.New("no sites")
	}
	seen := make(map[int32]bool, len(sites))
	for _, s := range sites {
		if seen[s.ID] {
			return fmt.Errorf("duplicate site id %d", s.ID)
		}
		seen[s.ID] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
