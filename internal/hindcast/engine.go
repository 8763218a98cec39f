package hindcast

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"wind-hindcast/internal/model"
	"wind-hindcast/internal/powercurve"
)

type Engine struct {
	source    GridSource
	curves    *powercurve.Table
	rateLimit RateLimit
	pause     Pauser
}

type Option func(*Engine)

func WithRateLimit(l RateLimit) Option {
	return func(e *Engine) { e.rateLimit = l }
}

// WithPauser replaces the cooldown sleep, mainly for tests.
func WithPauser(p Pauser) Option {
	return func(e *Engine) { e.pause = p }
}

func New(source GridSource, curves *powercurve.Table, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		curves:    curves,
		rateLimit: DefaultRateLimit,
		pause:     SleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request describes one hindcast run. Start and End are calendar dates (UTC),
// both inclusive.
type Request struct {
	Sites        []model.Site
	Start        time.Time
	End          time.Time
	TurbineClass string
}

// Result is the finalized output table plus the request keys that failed.
type Result struct {
	Rows         []model.OutputRow
	Missing      []model.RequestKey
	Sites        []model.Site
	Start        time.Time
	End          time.Time
	TurbineClass string
	Hours        int
	Cooldowns    int
}

// Validate checks the fatal preconditions of a run.
func (r Request) Validate() error {
	if len(r.Sites) == 0 {
		return ErrEmptySiteSet
	}
	if err := model.ValidateSites(r.Sites); err != nil {
		return fmt.Errorf("invalid sites: %w", err)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if truncateDay(r.End).Before(truncateDay(r.Start)) {
		return fmt.Errorf("%w: %s < %s", ErrInvalidDateRange, r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	if r.TurbineClass == "" {
		return fmt.Errorf("turbine class is required")
	}
	return nil
}

// Run executes a hindcast: one request per hour, then a final sort by
// (ts_id, site_id). Per-hour source failures are reported in Result.Missing;
// an error is returned only for invalid requests or ctx cancellation.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if e.source == nil {
		return nil, fmt.Errorf("grid source is nil")
	}
	if e.curves == nil {
		return nil, fmt.Errorf("power curve table is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !e.curves.HasClass(req.TurbineClass) {
		return nil, fmt.Errorf("%w: %q", powercurve.ErrUnknownTurbineClass, req.TurbineClass)
	}

	schedule, err := BuildSchedule(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	asm, err := NewAssembler(e.source, e.curves, req.TurbineClass, req.Sites, e.rateLimit, e.pause)
	if err != nil {
		return nil, err
	}

	log.Printf("[Hindcast] Run: %d sites, %s..%s (%d hours), turbine=%q",
		len(req.Sites), req.Start.Format(DateLayout), req.End.Format(DateLayout), len(schedule), req.TurbineClass)

	if err := asm.Run(ctx, schedule); err != nil {
		return nil, fmt.Errorf("hindcast interrupted after %d of %d requests: %w", asm.Requests(), len(schedule), err)
	}

	rows := asm.Rows()
	Finalize(rows)

	return &Result{
		Rows:         rows,
		Missing:      asm.Missing(),
		Sites:        req.Sites,
		Start:        truncateDay(req.Start),
		End:          truncateDay(req.End),
		TurbineClass: req.TurbineClass,
		Hours:        len(schedule),
		Cooldowns:    asm.Cooldowns(),
	}, nil
}

// Finalize sorts rows by (TsID, SiteID) and renumbers Index from zero.
func Finalize(rows []model.OutputRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TsID != rows[j].TsID {
			return rows[i].TsID < rows[j].TsID
		}
		return rows[i].SiteID < rows[j].SiteID
	})
	for i := range rows {
		rows[i].Index = i
	}
}
