package models

import (
	"time"

	"wind-hindcast/internal/analysis"
	"wind-hindcast/internal/model"
)

// Run statuses
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunResponse describes one hindcast run
type RunResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	TurbineClass string `json:"turbine_class"`
	SiteCount    int    `json:"site_count"`

	// Set once the run has completed
	Hours     int                    `json:"hours,omitempty"`
	Rows      int                    `json:"rows,omitempty"`
	Cooldowns int                    `json:"cooldowns,omitempty"`
	Missing   []model.RequestKey     `json:"missing,omitempty"`
	Summary   []analysis.SiteSummary `json:"summary,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// RunListResponse lists runs, newest first
type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

// TableResponse is the output table of a completed run
type TableResponse struct {
	ID   string            `json:"id"`
	Rows []model.OutputRow `json:"rows"`
}

// TurbinesResponse lists the turbine classes of the loaded power curves
type TurbinesResponse struct {
	Classes []string `json:"classes"`
	Bins    []int    `json:"speed_bins"`
}

// PowerResponse is the normalized power of one turbine class at one speed
type PowerResponse struct {
	TurbineClass string  `json:"turbine_class"`
	SpeedMS      float64 `json:"speed_ms"`
	Power        float64 `json:"power"`
	CapacityMW   float64 `json:"capacity_mw,omitempty"`
	PowerMW      float64 `json:"power_mw,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
