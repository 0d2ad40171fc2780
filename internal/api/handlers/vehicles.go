package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/service"
)

// ListVehicles 获取所有已授权品牌的车辆
// GET /vehicles
func (h *Handler) ListVehicles(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := h.vehicleService.Vehicles(ctx)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			h.logger.Debug("Client went away while fetching vehicles")
			return
		}
		h.logger.Error("Error fetching vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while fetching vehicles."})
		return
	}

	switch result.Outcome {
	case service.OutcomeNotAuthorized:
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "No tokens found. Please authorize the application.",
			"login": h.loginLinks(),
		})
	case service.OutcomeNoVehicles:
		c.JSON(http.StatusNotFound, gin.H{"error": "No vehicles found for the authorized accounts."})
	default:
		resp := gin.H{
			"data":         result.Vehicles,
			"maps_api_key": h.opts.MapsAPIKey,
			"source":       "live",
		}
		if result.FromCache {
			resp["source"] = "cache"
			resp["cached_at"] = result.CachedAt
		}
		c.JSON(http.StatusOK, resp)
	}
}
