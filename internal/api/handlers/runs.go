package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"wind-hindcast/internal/analysis"
	"wind-hindcast/internal/api/models"
	"wind-hindcast/internal/hindcast"
	"wind-hindcast/internal/metrics"
	"wind-hindcast/internal/powercurve"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type run struct {
	id         string
	req        hindcast.Request
	status     string
	createdAt  time.Time
	finishedAt time.Time
	result     *hindcast.Result
	err        error
	done       chan struct{}
}

// RunHandler starts hindcast runs in the background and keeps them in memory
// for the life of the process. Runs execute one at a time.
type RunHandler struct {
	ctx    context.Context
	engine *hindcast.Engine
	curves *powercurve.Table

	slot chan struct{}

	mu   sync.RWMutex
	runs map[string]*run
}

// NewRunHandler creates a run handler. Cancelling ctx aborts queued and
// running hindcasts.
func NewRunHandler(ctx context.Context, engine *hindcast.Engine, curves *powercurve.Table) *RunHandler {
	return &RunHandler{
		ctx:    ctx,
		engine: engine,
		curves: curves,
		slot:   make(chan struct{}, 1),
		runs:   make(map[string]*run),
	}
}

// CreateRun handles POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	var body models.RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		badRequest(c, requestErrorCode(err), err.Error())
		return
	}

	r := &run{
		id:        uuid.New().String(),
		req:       req,
		status:    models.StatusQueued,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	h.runs[r.id] = r
	resp := h.response(r)
	h.mu.Unlock()

	log.Printf("RunHandler: queued run %s (%d sites, %s..%s, turbine=%q)",
		r.id, len(req.Sites), body.StartDate, body.EndDate, req.TurbineClass)
	go h.execute(r)

	c.JSON(http.StatusAccepted, resp)
}

func (h *RunHandler) toRequest(body models.RunRequest) (hindcast.Request, error) {
	start, err := hindcast.ParseDate(body.StartDate)
	if err != nil {
		return hindcast.Request{}, err
	}
	end, err := hindcast.ParseDate(body.EndDate)
	if err != nil {
		return hindcast.Request{}, err
	}
	req := hindcast.Request{
		Sites:        body.Sites,
		Start:        start,
		End:          end,
		TurbineClass: body.TurbineClass,
	}
	if err := req.Validate(); err != nil {
		return hindcast.Request{}, err
	}
	if !h.curves.HasClass(req.TurbineClass) {
		return hindcast.Request{}, powercurve.ErrUnknownTurbineClass
	}
	return req, nil
}

func requestErrorCode(err error) string {
	switch {
	case errors.Is(err, hindcast.ErrInvalidDateRange):
		return "INVALID_DATE_RANGE"
	case errors.Is(err, hindcast.ErrEmptySiteSet):
		return "EMPTY_SITE_SET"
	case errors.Is(err, powercurve.ErrUnknownTurbineClass):
		return "UNKNOWN_TURBINE_CLASS"
	default:
		return "INVALID_REQUEST"
	}
}

func (h *RunHandler) execute(r *run) {
	defer close(r.done)

	select {
	case h.slot <- struct{}{}:
	case <-h.ctx.Done():
		h.finish(r, nil, h.ctx.Err())
		return
	}
	defer func() { <-h.slot }()

	h.mu.Lock()
	r.status = models.StatusRunning
	h.mu.Unlock()
	log.Printf("RunHandler: run %s started", r.id)

	res, err := h.engine.Run(h.ctx, r.req)
	h.finish(r, res, err)
}

func (h *RunHandler) finish(r *run, res *hindcast.Result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.finishedAt = time.Now().UTC()
	if err != nil {
		r.status = models.StatusFailed
		r.err = err
		log.Printf("RunHandler: run %s failed: %v", r.id, err)
	} else {
		r.status = models.StatusCompleted
		r.result = res
		log.Printf("RunHandler: run %s completed: %d rows, %d missing hours", r.id, len(res.Rows), len(res.Missing))
	}
	metrics.IncRun(r.status)
}

// Wait blocks until the run has finished or ctx is done.
func (h *RunHandler) Wait(ctx context.Context, id string) error {
	h.mu.RLock()
	r, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		return errors.New("run not found")
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	h.mu.RLock()
	resp := h.response(r)
	h.mu.RUnlock()
	c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	h.mu.RLock()
	out := make([]models.RunResponse, 0, len(h.runs))
	for _, r := range h.runs {
		// Summaries can be large; fetch a single run for them.
		out = append(out, h.brief(r))
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	c.JSON(http.StatusOK, models.RunListResponse{Runs: out})
}

// GetTable handles GET /api/v1/runs/:id/table (?format=csv for CSV)
func (h *RunHandler) GetTable(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	h.mu.RLock()
	status, res := r.status, r.result
	h.mu.RUnlock()

	if status != models.StatusCompleted || res == nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "RUN_NOT_COMPLETED",
				Message: "run has not completed",
				Details: map[string]interface{}{"status": status},
			},
		})
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename=\"hindcast_"+r.id+".csv\"")
		c.Status(http.StatusOK)
		if err := hindcast.WriteTable(c.Writer, res.Rows); err != nil {
			log.Printf("RunHandler: failed to write CSV for run %s: %v", r.id, err)
		}
		return
	}
	c.JSON(http.StatusOK, models.TableResponse{ID: r.id, Rows: res.Rows})
}

func (h *RunHandler) lookup(c *gin.Context) (*run, bool) {
	id := c.Param("id")
	h.mu.RLock()
	r, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "no run with id " + id,
			},
		})
	}
	return r, ok
}

// brief is the list form of a run: counts only, no summary or missing keys.
// It and response must be called with h.mu held.
func (h *RunHandler) brief(r *run) models.RunResponse {
	resp := models.RunResponse{
		ID:           r.id,
		Status:       r.status,
		CreatedAt:    r.createdAt,
		StartDate:    r.req.Start.Format(hindcast.DateLayout),
		EndDate:      r.req.End.Format(hindcast.DateLayout),
		TurbineClass: r.req.TurbineClass,
		SiteCount:    len(r.req.Sites),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		resp.FinishedAt = &t
	}
	if r.err != nil {
		resp.Error = &models.ErrorDetail{Code: "RUN_FAILED", Message: r.err.Error()}
	}
	if res := r.result; res != nil {
		resp.Hours = res.Hours
		resp.Rows = len(res.Rows)
		resp.Cooldowns = res.Cooldowns
	}
	return resp
}

// response adds the missing keys and per-site summary to brief.
func (h *RunHandler) response(r *run) models.RunResponse {
	resp := h.brief(r)
	if res := r.result; res != nil {
		resp.Missing = res.Missing
		resp.Summary = analysis.Summarize(res.Rows, res.Sites)
	}
	return resp
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: msg,
		},
	})
}
