package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/papertrade-simulator/internal/backtest"
	"github.com/papertrade-simulator/pkg/response"
)

// BacktestHandler handles strategy backtest API requests
type BacktestHandler struct {
	engine *backtest.Engine
}

// NewBacktestHandler creates a new BacktestHandler
func NewBacktestHandler(engine *backtest.Engine) *BacktestHandler {
	return &BacktestHandler{
		engine: engine,
	}
}

// Run replays a historical series through a named strategy against an
// isolated simulated ledger and returns the disposable result
// POST /api/v1/backtest/run
func (h *BacktestHandler) Run(c *gin.Context) {
	var req struct {
		Strategy string             `json:"strategy" binding:"required"`
		Params   map[string]float64 `json:"params"`
		Series   []backtest.Tick    `json:"series" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	strategy, err := backtest.ByName(req.Strategy, req.Params)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.engine.Run(strategy, req.Series)
	if err != nil {
		if errors.Is(err, backtest.ErrNoSeries) || errors.Is(err, backtest.ErrNoStrategy) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// RegisterRoutes registers backtest routes
func (h *BacktestHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	backtestGroup := rg.Group("/backtest")
	backtestGroup.Use(authMiddleware)
	{
		backtestGroup.POST("/run", h.Run)
	}
}
