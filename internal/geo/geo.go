package geo

import (
	"fmt"
	"math"

	"wind-hindcast/internal/model"
)

// UnitVector is a point on the unit sphere.
type UnitVector struct {
	X, Y, Z float64
}

// ToUnitVector converts longitude/latitude in degrees to a unit vector.
func ToUnitVector(lonDeg, latDeg float64) UnitVector {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	cosLat := math.Cos(lat)
	return UnitVector{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

func (a UnitVector) Dot(b UnitVector) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// AngularDistance returns the great-circle angle between a and b in degrees.
// The dot product is clamped to [-1, 1] so rounding never leaves acos' domain.
func AngularDistance(a, b UnitVector) float64 {
	return angleFromCos(a.Dot(b))
}

func angleFromCos(c float64) float64 {
	if c >= 1 {
		c = 1
	}
	if c <= -1 {
		c = -1
	}
	return math.Acos(c) * 180.0 / math.Pi
}

// NearestMap assigns each site to a grid point index. It is built once per run
// and assumes the grid geometry does not change between snapshots.
type NearestMap struct {
	index    map[int32]int
	distance map[int32]float64
	gridSize int
}

// Index returns the grid index assigned to siteID.
func (m *NearestMap) Index(siteID int32) (int, bool) {
	if m == nil {
		return 0, false
	}
	i, ok := m.index[siteID]
	return i, ok
}

// Distance returns the angular distance in degrees from siteID to its grid point.
func (m *NearestMap) Distance(siteID int32) float64 {
	if m == nil {
		return math.NaN()
	}
	d, ok := m.distance[siteID]
	if !ok {
		return math.NaN()
	}
	return d
}

// GridSize is the number of grid points the map was built against.
func (m *NearestMap) GridSize() int {
	if m == nil {
		return 0
	}
	return m.gridSize
}

func (m *NearestMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.index)
}

// BuildNearestMap finds, for every site, the grid point with the smallest
// angular distance. Brute force over the whole grid; ties keep the first index.
func BuildNearestMap(sites []model.Site, lons, lats []float64) (*NearestMap, error) {
	if len(lons) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	if len(lons) != len(lats) {
		return nil, fmt.Errorf("grid lon/lat length mismatch: %d != %d", len(lons), len(lats))
	}

	grid := make([]UnitVector, len(lons))
	for k := range lons {
		grid[k] = ToUnitVector(lons[k], lats[k])
	}

	m := &NearestMap{
		index:    make(map[int32]int, len(sites)),
		distance: make(map[int32]float64, len(sites)),
		gridSize: len(grid),
	}
	for _, s := range sites {
		target := ToUnitVector(s.Lon, s.Lat)
		best := -1
		bestAngle := math.Inf(1)
		for k, g := range grid {
			a := AngularDistance(target, g)
			// NaN grid coordinates never win.
			if a < bestAngle {
				best = k
				bestAngle = a
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("site %d: no valid grid point", s.ID)
		}
		m.index[s.ID] = best
		m.distance[s.ID] = bestAngle
	}
	return m, nil
}
