package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/papertrade-simulator/internal/middleware"
	"github.com/papertrade-simulator/internal/service"
	"github.com/papertrade-simulator/pkg/response"
)

// AnalyticsHandler handles performance analytics API requests
type AnalyticsHandler struct {
	tradingService *service.TradingService
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(tradingService *service.TradingService) *AnalyticsHandler {
	return &AnalyticsHandler{
		tradingService: tradingService,
	}
}

// GetReport returns the full performance report computed from the order log
// GET /api/v1/analytics/report
func (h *AnalyticsHandler) GetReport(c *gin.Context) {
	userID := middleware.GetUserID(c)

	report, err := h.tradingService.Report(userID)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, report)
}

// GetValueAtRisk returns the historical VaR estimate at the requested
// confidence level (default 0.95)
// GET /api/v1/analytics/var
func (h *AnalyticsHandler) GetValueAtRisk(c *gin.Context) {
	userID := middleware.GetUserID(c)

	confidence, err := strconv.ParseFloat(c.DefaultQuery("confidence", "0.95"), 64)
	if err != nil || confidence <= 0 || confidence >= 1 {
		response.BadRequest(c, "confidence must be in (0, 1)")
		return
	}

	valueAtRisk, err := h.tradingService.ValueAtRisk(c.Request.Context(), userID, confidence)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"confidence":    confidence,
		"value_at_risk": valueAtRisk,
	})
}

// RegisterRoutes registers analytics routes
func (h *AnalyticsHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	analyticsGroup := rg.Group("/analytics")
	analyticsGroup.Use(authMiddleware)
	{
		analyticsGroup.GET("/report", h.GetReport)
		analyticsGroup.GET("/var", h.GetValueAtRisk)
	}
}
