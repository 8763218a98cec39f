package models

import "wind-hindcast/internal/model"

// RunRequest represents the request body for starting a hindcast run
type RunRequest struct {
	Sites        []model.Site `json:"sites"`
	StartDate    string       `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate      string       `json:"end_date" binding:"required"`   // YYYY-MM-DD, inclusive
	TurbineClass string       `json:"turbine_class" binding:"required"`
}
