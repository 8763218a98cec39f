package handlers

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"wind-hindcast/internal/api/models"
	"wind-hindcast/internal/powercurve"

	"github.com/gin-gonic/gin"
)

// TurbineHandler serves the loaded power curve table
type TurbineHandler struct {
	curves *powercurve.Table
}

func NewTurbineHandler(curves *powercurve.Table) *TurbineHandler {
	return &TurbineHandler{curves: curves}
}

// ListTurbines handles GET /api/v1/turbines
func (h *TurbineHandler) ListTurbines(c *gin.Context) {
	c.JSON(http.StatusOK, models.TurbinesResponse{
		Classes: h.curves.Classes(),
		Bins:    h.curves.Bins(),
	})
}

// PowerAt handles GET /api/v1/turbines/power?class=...&speed=5.5[&capacity_mw=100]
func (h *TurbineHandler) PowerAt(c *gin.Context) {
	class := c.Query("class")
	if class == "" {
		badRequest(c, "MISSING_PARAM", "class query parameter is required")
		return
	}
	speed, err := strconv.ParseFloat(c.Query("speed"), 64)
	if err != nil || math.IsNaN(speed) || math.IsInf(speed, 0) {
		badRequest(c, "INVALID_PARAM", "speed must be a finite number (m/s)")
		return
	}
	capacity := 0.0
	if raw := c.Query("capacity_mw"); raw != "" {
		capacity, err = strconv.ParseFloat(raw, 64)
		if err != nil || !(capacity >= 0) || math.IsInf(capacity, 0) {
			badRequest(c, "INVALID_PARAM", "capacity_mw must be a non-negative number")
			return
		}
	}

	p, err := h.curves.SpeedToPower(speed, class)
	if err != nil {
		log.Printf("TurbineHandler: %v", err)
		badRequest(c, "UNKNOWN_TURBINE_CLASS", err.Error())
		return
	}
	c.JSON(http.StatusOK, models.PowerResponse{
		TurbineClass: class,
		SpeedMS:      speed,
		Power:        p,
		CapacityMW:   capacity,
		PowerMW:      p * capacity,
	})
}
