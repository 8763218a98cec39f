package hindcast

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wind-hindcast/internal/model"
	"wind-hindcast/internal/powercurve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const turbine = "IEC class 2"

type fakeSource struct {
	snap  *model.GridSnapshot
	fail  map[int]bool // by call number, 0-based
	byKey map[string]*model.GridSnapshot
	calls []model.RequestKey
}

func (f *fakeSource) FetchSnapshot(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error) {
	n := len(f.calls)
	f.calls = append(f.calls, key)
	if f.fail[n] {
		return nil, errors.New("status 500")
	}
	if s, ok := f.byKey[key.String()]; ok {
		return s, nil
	}
	return f.snap, nil
}

func curves(t *testing.T) *powercurve.Table {
	t.Helper()
	tbl, err := powercurve.NewTable([]int{5, 6}, map[string][]float64{turbine: {0.1, 0.3}})
	require.NoError(t, err)
	return tbl
}

// grid of 4 points; points 1 and 3 carry a 5.5 m/s wind.
func grid() *model.GridSnapshot {
	return &model.GridSnapshot{
		Lon: []float64{-110, -105, -100, -95},
		Lat: []float64{40, 40, 40, 40},
		U:   []float64{0, 3.3, 0, 4.4},
		V:   []float64{0, 4.4, 0, 3.3},
	}
}

func sites() []model.Site {
	return []model.Site{
		{ID: 2, Lon: -104.8, Lat: 40.2, CapacityMW: 100},
		{ID: 1, Lon: -95.3, Lat: 39.9, CapacityMW: 50},
	}
}

func noPause(context.Context, time.Duration) error { return nil }

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildSchedule(t *testing.T) {
	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-02"))
	require.NoError(t, err)
	require.Len(t, slots, 48)

	assert.Equal(t, int32(1), slots[0].TsID)
	assert.Equal(t, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), slots[0].Time)
	assert.Equal(t, "rap_130_20160101_0000_000", slots[0].Key.String())

	last := slots[47]
	assert.Equal(t, int32(48), last.TsID)
	assert.Equal(t, time.Date(2016, 1, 2, 23, 0, 0, 0, time.UTC), last.Time)
	assert.Equal(t, "2300", last.Key.Code())

	for i := 1; i < len(slots); i++ {
		assert.Equal(t, time.Hour, slots[i].Time.Sub(slots[i-1].Time))
		assert.Equal(t, slots[i-1].TsID+1, slots[i].TsID)
	}
}

func TestBuildSchedule_SingleDayAndLeapYear(t *testing.T) {
	slots, err := BuildSchedule(day("2016-03-05"), day("2016-03-05"))
	require.NoError(t, err)
	assert.Len(t, slots, 24)

	slots, err = BuildSchedule(day("2016-02-28"), day("2016-03-01"))
	require.NoError(t, err)
	assert.Len(t, slots, 3*24)
}

func TestBuildSchedule_InvalidRange(t *testing.T) {
	_, err := BuildSchedule(day("2016-01-02"), day("2016-01-01"))
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2017-12-31 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 12, 31, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("12/31/2017")
	assert.Error(t, err)
}

func TestEngineRun_MidpointPower(t *testing.T) {
	src := &fakeSource{snap: grid()}
	e := New(src, curves(t), WithPauser(noPause))

	res, err := e.Run(context.Background(), Request{
		Sites:        sites(),
		Start:        day("2016-01-01"),
		End:          day("2016-01-01"),
		TurbineClass: turbine,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 48)
	assert.Empty(t, res.Missing)
	assert.Equal(t, 24, res.Hours)
	assert.Len(t, src.calls, 24)

	for _, r := range res.Rows {
		require.NotNil(t, r.PowerMW)
		switch r.SiteID {
		case 2:
			assert.InDelta(t, 20.0, *r.PowerMW, 1e-9)
			assert.InDelta(t, 3.3, *r.U, 1e-12)
			assert.InDelta(t, 4.4, *r.V, 1e-12)
		case 1:
			assert.InDelta(t, 10.0, *r.PowerMW, 1e-9)
			assert.InDelta(t, 4.4, *r.U, 1e-12)
		default:
			t.Fatalf("unexpected site %d", r.SiteID)
		}
	}
}

func TestEngineRun_SortedAndDense(t *testing.T) {
	src := &fakeSource{snap: grid(), fail: map[int]bool{5: true}}
	e := New(src, curves(t), WithPauser(noPause))

	res, err := e.Run(context.Background(), Request{
		Sites:        sites(),
		Start:        day("2016-01-01"),
		End:          day("2016-01-02"),
		TurbineClass: turbine,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2*48)

	seen := map[[2]int32]bool{}
	for i, r := range res.Rows {
		assert.Equal(t, i, r.Index)
		k := [2]int32{r.SiteID, r.TsID}
		assert.False(t, seen[k], "duplicate %v", k)
		seen[k] = true
		if i > 0 {
			p := res.Rows[i-1]
			ordered := p.TsID < r.TsID || (p.TsID == r.TsID && p.SiteID < r.SiteID)
			assert.True(t, ordered, "rows %d and %d out of order", i-1, i)
		}
	}
	assert.Equal(t, int32(1), res.Rows[0].SiteID)
	assert.Equal(t, int32(2), res.Rows[1].SiteID)
	assert.Equal(t, int32(48), res.Rows[len(res.Rows)-1].TsID)
}

func TestEngineRun_FailedHourIsNullFilled(t *testing.T) {
	src := &fakeSource{snap: grid(), fail: map[int]bool{1: true}}
	asm, err := NewAssembler(src, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)

	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots[:3]))

	rows := asm.Rows()
	require.Len(t, rows, 3*2)

	nulls := 0
	for _, r := range rows {
		if r.Missing() {
			nulls++
			assert.Equal(t, int32(2), r.TsID)
			assert.Nil(t, r.U)
			assert.Nil(t, r.V)
		} else {
			assert.NotEqual(t, int32(2), r.TsID)
		}
	}
	assert.Equal(t, 2, nulls)
	require.Len(t, asm.Missing(), 1)
	assert.Equal(t, slots[1].Key, asm.Missing()[0])
	assert.Equal(t, StateDone, asm.State())
}

func TestAssembler_MapBuiltOnceFromFirstSuccess(t *testing.T) {
	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)

	// Hour 3 reorders the grid. The map from hour 2 must still be used.
	shuffled := grid()
	shuffled.Lon = []float64{-105, -110, -95, -100}
	shuffled.U = []float64{1, 1, 1, 1}
	shuffled.V = []float64{0, 0, 0, 0}
	shuffled.U[1] = 7

	src := &fakeSource{
		snap:  grid(),
		fail:  map[int]bool{0: true},
		byKey: map[string]*model.GridSnapshot{slots[2].Key.String(): shuffled},
	}
	asm, err := NewAssembler(src, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, asm.State())
	assert.Nil(t, asm.NearestMap())

	require.NoError(t, asm.Run(context.Background(), slots[:3]))

	m := asm.NearestMap()
	require.NotNil(t, m)
	idx, _ := m.Index(2)
	assert.Equal(t, 1, idx)

	rows := asm.Rows()
	// hour 3, site 2 (first in input order) reads index 1 of the shuffled grid.
	require.NotNil(t, rows[4].U)
	assert.Equal(t, 7.0, *rows[4].U)
	assert.Len(t, asm.Missing(), 1)
}

func TestAssembler_GridSizeChangeIsMissing(t *testing.T) {
	small := grid()
	small.Lon, small.Lat, small.U, small.V = small.Lon[:2], small.Lat[:2], small.U[:2], small.V[:2]

	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)
	src := &fakeSource{snap: grid(), byKey: map[string]*model.GridSnapshot{slots[1].Key.String(): small}}

	asm, err := NewAssembler(src, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots[:2]))
	require.Len(t, asm.Missing(), 1)
	assert.Equal(t, slots[1].Key, asm.Missing()[0])
}

func TestAssembler_GridGrowthReusesMap(t *testing.T) {
	wide := grid()
	wide.Lon = append(wide.Lon, -104.9)
	wide.Lat = append(wide.Lat, 40.1)
	wide.U = append(wide.U, 30)
	wide.V = append(wide.V, 30)

	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)
	src := &fakeSource{snap: grid(), byKey: map[string]*model.GridSnapshot{slots[1].Key.String(): wide}}

	asm, err := NewAssembler(src, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots[:2]))
	assert.Empty(t, asm.Missing())

	// The map from hour 0 is kept, so the new closer point is ignored.
	rows := asm.Rows()
	require.Len(t, rows, 4)
	for _, r := range rows {
		require.False(t, r.Missing())
	}
	assert.Equal(t, *rows[0].U, *rows[2].U)
	assert.Equal(t, *rows[0].PowerMW, *rows[2].PowerMW)
}

func TestAssembler_MaskedValuesStayNull(t *testing.T) {
	g := grid()
	g.U[1] = math.NaN()

	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)
	asm, err := NewAssembler(&fakeSource{snap: g}, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots[:1]))

	rows := asm.Rows()
	assert.True(t, rows[0].Missing())
	assert.Nil(t, rows[0].U)
	assert.Nil(t, rows[0].V)
	assert.Nil(t, rows[0].PowerMW)
	assert.False(t, rows[1].Missing())
	assert.Empty(t, asm.Missing())
}

func TestAssembler_RateLimitCooldowns(t *testing.T) {
	cases := []struct {
		requests int
		want     int
	}{
		{999, 0},
		{1000, 0},
		{1001, 1},
		{2500, 2},
	}
	days, err := BuildSchedule(day("2016-01-01"), day("2016-04-30"))
	require.NoError(t, err)

	for _, tc := range cases {
		var pauses []time.Duration
		var pausedAt []int
		src := &fakeSource{snap: grid()}
		pause := func(ctx context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			pausedAt = append(pausedAt, len(src.calls))
			return nil
		}
		asm, err := NewAssembler(src, curves(t), turbine, sites()[:1], DefaultRateLimit, pause)
		require.NoError(t, err)
		require.NoError(t, asm.Run(context.Background(), days[:tc.requests]))

		assert.Equal(t, tc.want, asm.Cooldowns(), "requests=%d", tc.requests)
		assert.Len(t, pauses, tc.want)
		for i, d := range pauses {
			assert.Equal(t, 300*time.Second, d)
			assert.Equal(t, (i+1)*1000, pausedAt[i])
		}
		assert.Len(t, asm.Rows(), tc.requests)
	}
}

func TestAssembler_CooldownCountsFailures(t *testing.T) {
	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)

	fail := map[int]bool{}
	for i := 0; i < 24; i++ {
		fail[i] = i%2 == 0
	}
	pauses := 0
	asm, err := NewAssembler(&fakeSource{snap: grid(), fail: fail}, curves(t), turbine, sites(),
		RateLimit{Every: 5, Cooldown: time.Minute},
		func(context.Context, time.Duration) error { pauses++; return nil })
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots))
	assert.Equal(t, 4, pauses)
	assert.Len(t, asm.Missing(), 12)
}

func TestAssembler_CancelDuringCooldown(t *testing.T) {
	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{snap: grid()}
	pause := func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}
	asm, err := NewAssembler(src, curves(t), turbine, sites(), RateLimit{Every: 10, Cooldown: time.Hour}, pause)
	require.NoError(t, err)

	err = asm.Run(ctx, slots)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.calls, 10)
	assert.NotEqual(t, StateDone, asm.State())
}

func TestAssembler_SingleUse(t *testing.T) {
	slots, err := BuildSchedule(day("2016-01-01"), day("2016-01-01"))
	require.NoError(t, err)
	asm, err := NewAssembler(&fakeSource{snap: grid()}, curves(t), turbine, sites(), DefaultRateLimit, noPause)
	require.NoError(t, err)
	require.NoError(t, asm.Run(context.Background(), slots[:1]))
	assert.Error(t, asm.Run(context.Background(), slots[:1]))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestEngineRun_Preconditions(t *testing.T) {
	src := &fakeSource{snap: grid()}
	e := New(src, curves(t), WithPauser(noPause))
	ctx := context.Background()

	_, err := e.Run(ctx, Request{Start: day("2016-01-01"), End: day("2016-01-01"), TurbineClass: turbine})
	assert.ErrorIs(t, err, ErrEmptySiteSet)

	_, err = e.Run(ctx, Request{Sites: sites(), Start: day("2016-01-02"), End: day("2016-01-01"), TurbineClass: turbine})
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = e.Run(ctx, Request{Sites: sites(), Start: day("2016-01-01"), End: day("2016-01-01"), TurbineClass: "IEC class 9"})
	assert.ErrorIs(t, err, powercurve.ErrUnknownTurbineClass)

	dup := append(sites(), sites()[0])
	_, err = e.Run(ctx, Request{Sites: dup, Start: day("2016-01-01"), End: day("2016-01-01"), TurbineClass: turbine})
	assert.Error(t, err)

	assert.Empty(t, src.calls, "no request may be issued before preconditions pass")
}

func TestEngineRun_AllHoursFail(t *testing.T) {
	fail := map[int]bool{}
	for i := 0; i < 24; i++ {
		fail[i] = true
	}
	src := &fakeSource{snap: grid(), fail: fail}
	e := New(src, curves(t), WithPauser(noPause))

	res, err := e.Run(context.Background(), Request{
		Sites: sites(), Start: day("2016-01-01"), End: day("2016-01-01"), TurbineClass: turbine,
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 48)
	assert.Len(t, res.Missing, 24)
	for _, r := range res.Rows {
		assert.True(t, r.Missing())
	}
}

func TestTableCSV(t *testing.T) {
	ts := time.Date(2016, 1, 1, 5, 0, 0, 0, time.UTC)
	rows := []model.OutputRow{
		{Index: 0, SiteID: 1, U: model.Float(3.3), V: model.Float(-4.4), PowerMW: model.Float(10), Timestamp: ts, TsID: 6},
		{Index: 1, SiteID: 2, Timestamp: ts, TsID: 6},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, rows))
	assert.Equal(t,
		"site_id,u,v,power_mw,ts,ts_id\n"+
			"1,3.300000,-4.400000,10.000000,2016-01-01T05:00:00Z,6\n"+
			"2,,,,2016-01-01T05:00:00Z,6\n",
		buf.String())

	back, err := ReadTable(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, rows[0].SiteID, back[0].SiteID)
	assert.InDelta(t, -4.4, *back[0].V, 1e-9)
	assert.True(t, back[1].Missing())
	assert.Equal(t, ts, back[1].Timestamp)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "out.csv")
	require.NoError(t, WriteTableCSV(tablePath, []model.OutputRow{{SiteID: 1, TsID: 1, Timestamp: time.Unix(0, 0)}}))
	rows, err := LoadTableCSV(tablePath)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	missingPath := filepath.Join(dir, "missing.txt")
	keys := []model.RequestKey{{Date: day("2016-01-01"), Hour: 3}}
	require.NoError(t, WriteMissing(missingPath, keys))
	raw, err := os.ReadFile(missingPath)
	require.NoError(t, err)
	assert.Equal(t, "rap_130_20160101_0300_000\n", string(raw))
}
