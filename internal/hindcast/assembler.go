package hindcast

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"wind-hindcast/internal/geo"
	"wind-hindcast/internal/metrics"
	"wind-hindcast/internal/model"
	"wind-hindcast/internal/powercurve"
)

// GridSource returns one grid snapshot per request key.
type GridSource interface {
	FetchSnapshot(ctx context.Context, key model.RequestKey) (*model.GridSnapshot, error)
}

// RateLimit pauses for Cooldown after every Every scheduled requests.
type RateLimit struct {
	Every    int
	Cooldown time.Duration
}

var DefaultRateLimit = RateLimit{Every: 1000, Cooldown: 300 * time.Second}

// Pauser blocks for d or until ctx is done.
type Pauser func(ctx context.Context, d time.Duration) error

// SleepContext is the default Pauser.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("cooldown interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

type State int

const (
	StateIdle State = iota
	StateMapPending
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMapPending:
		return "map_pending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Assembler streams one snapshot per scheduled hour into a preallocated
// (hour x site) row arena. It is single-use and not safe for concurrent use.
type Assembler struct {
	source GridSource
	curves *powercurve.Table
	class  string
	sites  []model.Site
	limit  RateLimit
	pause  Pauser

	state   State
	nearest *geo.NearestMap // built from the first usable snapshot

	rows      []model.OutputRow
	missing   []model.RequestKey
	requests  int
	cooldowns int
}

// NewAssembler validates its inputs; the turbine class must exist in curves.
func NewAssembler(source GridSource, curves *powercurve.Table, class string, sites []model.Site, limit RateLimit, pause Pauser) (*Assembler, error) {
	if source == nil {
		return nil, fmt.Errorf("grid source is nil")
	}
	if curves == nil {
		return nil, fmt.Errorf("power curve table is nil")
	}
	if len(sites) == 0 {
		return nil, ErrEmptySiteSet
	}
	if !curves.HasClass(class) {
		return nil, fmt.Errorf("%w: %q", powercurve.ErrUnknownTurbineClass, class)
	}
	if limit.Every <= 0 {
		limit = DefaultRateLimit
	}
	if pause == nil {
		pause = SleepContext
	}
	return &Assembler{
		source: source,
		curves: curves,
		class:  class,
		sites:  sites,
		limit:  limit,
		pause:  pause,
	}, nil
}

func (a *Assembler) State() State { return a.state }

// NearestMap is nil until a snapshot has been retrieved.
func (a *Assembler) NearestMap() *geo.NearestMap { return a.nearest }

// Rows are in emission order: hour-major, site-minor.
func (a *Assembler) Rows() []model.OutputRow { return a.rows }

func (a *Assembler) Missing() []model.RequestKey { return a.missing }

func (a *Assembler) Requests() int { return a.requests }

func (a *Assembler) Cooldowns() int { return a.cooldowns }

// Run processes every slot in order. Fetch and decode failures mark the hour
// missing and never stop the run; only ctx cancellation does.
func (a *Assembler) Run(ctx context.Context, schedule []Slot) error {
	if a.state != StateIdle {
		return fmt.Errorf("assembler already used (state %s)", a.state)
	}
	nSites := len(a.sites)
	a.rows = make([]model.OutputRow, len(schedule)*nSites)
	a.state = StateMapPending

	for h, slot := range schedule {
		if h > 0 && h%a.limit.Every == 0 {
			if err := a.cooldown(ctx, h, len(schedule)); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		base := h * nSites
		for s, site := range a.sites {
			a.rows[base+s] = model.OutputRow{
				SiteID:    site.ID,
				Timestamp: slot.Time,
				TsID:      slot.TsID,
			}
		}

		a.requests++
		snap, err := a.source.FetchSnapshot(ctx, slot.Key)
		if err == nil {
			err = a.fill(a.rows[base:base+nSites], snap)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Printf("[Hindcast] Missing hour %s (ts_id=%d): %v", slot.Key, slot.TsID, err)
			a.missing = append(a.missing, slot.Key)
			metrics.IncMissingHour()
		}
		metrics.AddRows(nSites)
	}

	a.state = StateDone
	log.Printf("[Hindcast] Done: %d requests, %d missing, %d cooldowns", a.requests, len(a.missing), a.cooldowns)
	return nil
}

func (a *Assembler) cooldown(ctx context.Context, done, total int) error {
	a.cooldowns++
	metrics.IncCooldown()
	log.Printf("[Hindcast] %d/%d requests issued, cooling down for %v", done, total, a.limit.Cooldown)
	if err := a.pause(ctx, a.limit.Cooldown); err != nil {
		return err
	}
	log.Printf("[Hindcast] Cooldown finished, resuming")
	return nil
}

// fill writes U, V and power for one hour. Nothing is written on error.
// The nearest map is reused for every later snapshot without re-checking
// geometry; only an assignment past the end of the grid fails the hour.
// A site whose U or V is masked (NaN) keeps U, V and power null for that
// hour rather than reporting zero output.
func (a *Assembler) fill(rows []model.OutputRow, snap *model.GridSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("malformed snapshot: %w", err)
	}
	if a.nearest == nil {
		m, err := geo.BuildNearestMap(a.sites, snap.Lon, snap.Lat)
		if err != nil {
			return fmt.Errorf("failed to build nearest grid map: %w", err)
		}
		a.nearest = m
		a.state = StateStreaming
		log.Printf("[Hindcast] Nearest grid map built: %d sites against %d grid points", m.Len(), m.GridSize())
	}

	type value struct{ u, v, p float64 }
	vals := make([]value, len(a.sites))
	for s, site := range a.sites {
		idx, ok := a.nearest.Index(site.ID)
		if !ok {
			return fmt.Errorf("site %d has no grid assignment", site.ID)
		}
		if idx < 0 || idx >= snap.Len() {
			return fmt.Errorf("malformed snapshot: site %d mapped to grid point %d, snapshot has %d", site.ID, idx, snap.Len())
		}
		u, v := snap.U[idx], snap.V[idx]
		p, err := a.curves.SitePower(powercurve.WindSpeed(u, v), a.class, site.CapacityMW)
		if err != nil {
			return err
		}
		vals[s] = value{u, v, p}
	}

	for s := range rows {
		val := vals[s]
		if math.IsNaN(val.u) || math.IsNaN(val.v) {
			continue
		}
		rows[s].U = model.Float(val.u)
		rows[s].V = model.Float(val.v)
		rows[s].PowerMW = model.Float(val.p)
	}
	return nil
}
