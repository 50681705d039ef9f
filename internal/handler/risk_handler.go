package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/papertrade-simulator/internal/middleware"
	"github.com/papertrade-simulator/internal/risk"
	"github.com/papertrade-simulator/internal/service"
	"github.com/papertrade-simulator/pkg/response"
)

// RiskHandler handles risk management API requests
type RiskHandler struct {
	tradingService *service.TradingService
	riskManager    *risk.Manager
}

// NewRiskHandler creates a new RiskHandler
func NewRiskHandler(tradingService *service.TradingService, riskManager *risk.Manager) *RiskHandler {
	return &RiskHandler{
		tradingService: tradingService,
		riskManager:    riskManager,
	}
}

// GetParameters returns the active risk parameters
// GET /api/v1/risk/parameters
func (h *RiskHandler) GetParameters(c *gin.Context) {
	response.Success(c, h.riskManager.Parameters())
}

// UpdateParameters replaces the active risk parameters
// PUT /api/v1/risk/parameters
func (h *RiskHandler) UpdateParameters(c *gin.Context) {
	var params risk.Parameters
	if err := c.ShouldBindJSON(&params); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.riskManager.SetParameters(params); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, h.riskManager.Parameters())
}

// Evaluate runs one monitoring cycle over the user's open positions and
// returns the advisory exit assessments
// POST /api/v1/risk/evaluate
func (h *RiskHandler) Evaluate(c *gin.Context) {
	userID := middleware.GetUserID(c)

	assessments, err := h.tradingService.EvaluateRisk(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"assessments": assessments,
	})
}

// RegisterRoutes registers risk routes
func (h *RiskHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	riskGroup := rg.Group("/risk")
	riskGroup.Use(authMiddleware)
	{
		riskGroup.GET("/parameters", h.GetParameters)
		riskGroup.PUT("/parameters", h.UpdateParameters)
		riskGroup.POST("/evaluate", h.Evaluate)
	}
}
