package geo

import (
	"math"
	"testing"

	"wind-hindcast/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUnitVector_Axes(t *testing.T) {
	cases := []struct {
		name     string
		lon, lat float64
		want     UnitVector
	}{
		{"equator greenwich", 0, 0, UnitVector{1, 0, 0}},
		{"equator 90E", 90, 0, UnitVector{0, 1, 0}},
		{"north pole", 0, 90, UnitVector{0, 0, 1}},
		{"south pole", 45, -90, UnitVector{0, 0, -1}},
		{"equator 180", 180, 0, UnitVector{-1, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToUnitVector(tc.lon, tc.lat)
			assert.InDelta(t, tc.want.X, got.X, 1e-12)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-12)
			assert.InDelta(t, tc.want.Z, got.Z, 1e-12)
		})
	}
}

func TestToUnitVector_UnitLength(t *testing.T) {
	for _, p := range [][2]float64{{-105.2, 40.1}, {12.5, -33.3}, {179.9, 89.9}, {-122, 32}} {
		v := ToUnitVector(p[0], p[1])
		assert.InDelta(t, 1.0, math.Sqrt(v.Dot(v)), 1e-12)
	}
}

func TestAngularDistance_SelfIsZero(t *testing.T) {
	for _, p := range [][2]float64{{0, 0}, {-105.2, 40.1}, {33, -71}, {-179.5, 89.99}} {
		v := ToUnitVector(p[0], p[1])
		assert.InDelta(t, 0.0, AngularDistance(v, v), 1e-5)
		assert.False(t, math.IsNaN(AngularDistance(v, v)))
	}
}

func TestAngularDistance_Symmetric(t *testing.T) {
	a := ToUnitVector(-104.9, 41.2)
	b := ToUnitVector(-101.3, 35.7)
	assert.Equal(t, AngularDistance(a, b), AngularDistance(b, a))
}

func TestAngularDistance_KnownAngles(t *testing.T) {
	assert.InDelta(t, 90.0, AngularDistance(ToUnitVector(0, 0), ToUnitVector(90, 0)), 1e-9)
	assert.InDelta(t, 180.0, AngularDistance(ToUnitVector(0, 0), ToUnitVector(180, 0)), 1e-9)
	assert.InDelta(t, 90.0, AngularDistance(ToUnitVector(0, 0), ToUnitVector(0, 90)), 1e-9)
	assert.InDelta(t, 1.0, AngularDistance(ToUnitVector(-100, 40), ToUnitVector(-100, 41)), 1e-9)
}

func TestAngularDistance_ClampsOvershoot(t *testing.T) {
	over := UnitVector{X: 1.0000001}
	x := UnitVector{X: 1}
	assert.Equal(t, 0.0, AngularDistance(over, x))

	under := UnitVector{X: -1.0000001}
	assert.InDelta(t, 180.0, AngularDistance(under, x), 1e-12)

	assert.Equal(t, 0.0, angleFromCos(1.0000001))
	assert.False(t, math.IsNaN(angleFromCos(-1.0000001)))
}

func testGrid() (lons, lats []float64) {
	// 3x3 grid, row-major, 1 degree spacing.
	for _, lat := range []float64{40, 41, 42} {
		for _, lon := range []float64{-105, -104, -103} {
			lons = append(lons, lon)
			lats = append(lats, lat)
		}
	}
	return lons, lats
}

func TestBuildNearestMap_Assignments(t *testing.T) {
	lons, lats := testGrid()
	sites := []model.Site{
		{ID: 7, Lon: -104.9, Lat: 40.1, CapacityMW: 10},
		{ID: 3, Lon: -103.2, Lat: 41.8, CapacityMW: 10},
		{ID: 11, Lon: -104.1, Lat: 41.05, CapacityMW: 10},
	}
	m, err := BuildNearestMap(sites, lons, lats)
	require.NoError(t, err)

	idx, ok := m.Index(7)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	idx, _ = m.Index(3)
	assert.Equal(t, 8, idx)
	idx, _ = m.Index(11)
	assert.Equal(t, 4, idx)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 9, m.GridSize())
	assert.Less(t, m.Distance(7), 0.2)

	_, ok = m.Index(99)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(m.Distance(99)))
}

func TestBuildNearestMap_TieKeepsFirst(t *testing.T) {
	lons := []float64{-102, -100.5, -100.5}
	lats := []float64{40, 40, 40}
	sites := []model.Site{{ID: 1, Lon: -100, Lat: 40, CapacityMW: 1}}

	m, err := BuildNearestMap(sites, lons, lats)
	require.NoError(t, err)
	idx, _ := m.Index(1)
	assert.Equal(t, 1, idx)
}

func TestBuildNearestMap_Deterministic(t *testing.T) {
	lons, lats := testGrid()
	sites := []model.Site{
		{ID: 1, Lon: -104.5, Lat: 40.5, CapacityMW: 1},
		{ID: 2, Lon: -103.5, Lat: 41.5, CapacityMW: 1},
	}
	first, err := BuildNearestMap(sites, lons, lats)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := BuildNearestMap(sites, lons, lats)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildNearestMap_SkipsNaNGridPoints(t *testing.T) {
	lons := []float64{math.NaN(), -100.5}
	lats := []float64{math.NaN(), 40}
	sites := []model.Site{{ID: 1, Lon: -100, Lat: 40, CapacityMW: 1}}

	m, err := BuildNearestMap(sites, lons, lats)
	require.NoError(t, err)
	idx, _ := m.Index(1)
	assert.Equal(t, 1, idx)
}

func TestBuildNearestMap_Errors(t *testing.T) {
	sites := []model.Site{{ID: 1, Lon: -100, Lat: 40, CapacityMW: 1}}

	_, err := BuildNearestMap(sites, nil, nil)
	assert.Error(t, err)

	_, err = BuildNearestMap(sites, []float64{1, 2}, []float64{1})
	assert.Error(t, err)

	_, err = BuildNearestMap(sites, []float64{math.NaN()}, []float64{math.NaN()})
	assert.Error(t, err)
}
