package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/papertrade-simulator/internal/batch"
	"github.com/papertrade-simulator/internal/middleware"
	"github.com/papertrade-simulator/internal/risk"
	"github.com/papertrade-simulator/internal/service"
	"github.com/papertrade-simulator/pkg/response"
)

// TradingHandler handles trading API requests
type TradingHandler struct {
	tradingService *service.TradingService
	batches        *batch.Registry
}

// NewTradingHandler creates a new TradingHandler
func NewTradingHandler(tradingService *service.TradingService, batches *batch.Registry) *TradingHandler {
	return &TradingHandler{
		tradingService: tradingService,
		batches:        batches,
	}
}

type orderRequest struct {
	Symbol   string   `json:"symbol" binding:"required"`
	Quantity float64  `json:"quantity" binding:"required,gt=0"`
	Price    *float64 `json:"price"`
}

// Buy executes a market or priced buy order
// POST /api/v1/trading/buy
func (h *TradingHandler) Buy(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	order, err := h.tradingService.ExecuteBuy(c.Request.Context(), userID, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		h.handleTradingError(c, err)
		return
	}

	response.Success(c, order)
}

// Sell executes a market or priced sell order
// POST /api/v1/trading/sell
func (h *TradingHandler) Sell(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	order, err := h.tradingService.ExecuteSell(c.Request.Context(), userID, req.Symbol, req.Quantity, req.Price)
	if err != nil {
		h.handleTradingError(c, err)
		return
	}

	response.Success(c, order)
}

// GetAccount returns the account with mark-to-market equity
// GET /api/v1/trading/account
func (h *TradingHandler) GetAccount(c *gin.Context) {
	userID := middleware.GetUserID(c)

	state, err := h.tradingService.GetAccountState(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, state)
}

// GetPositions returns all open positions marked at current prices
// GET /api/v1/trading/positions
func (h *TradingHandler) GetPositions(c *gin.Context) {
	userID := middleware.GetUserID(c)

	positions, err := h.tradingService.GetPositions(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, positions)
}

// GetOrders returns the paginated order history
// GET /api/v1/trading/orders
func (h *TradingHandler) GetOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	orders, total, err := h.tradingService.GetOrders(userID, page, pageSize)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.SuccessPaginated(c, orders, total, page, pageSize)
}

// SubmitBatch admits a list of orders into the user's batch queue.
// The whole submission is rejected if any single order is invalid.
// POST /api/v1/trading/batch
func (h *TradingHandler) SubmitBatch(c *gin.Context) {
	var req struct {
		Orders []batch.Request `json:"orders" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	proc := h.batches.For(middleware.GetUserID(c))
	if err := proc.Submit(req.Orders); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"admitted": len(req.Orders),
		"pending":  proc.Pending(),
	})
}

// ProcessBatch drains the queued orders through the execution engine
// POST /api/v1/trading/batch/process
func (h *TradingHandler) ProcessBatch(c *gin.Context) {
	proc := h.batches.For(middleware.GetUserID(c))

	result, err := proc.Process(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrAlreadyProcessing):
			response.Conflict(c, err.Error())
		case errors.Is(err, batch.ErrEmptyQueue):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err.Error())
		}
		return
	}

	response.Success(c, result)
}

// CancelBatch requests cooperative cancellation of an in-flight batch
// POST /api/v1/trading/batch/cancel
func (h *TradingHandler) CancelBatch(c *gin.Context) {
	h.batches.For(middleware.GetUserID(c)).Cancel()
	response.Success(c, gin.H{"message": "cancellation requested"})
}

// handleTradingError maps execution errors onto HTTP responses
func (h *TradingHandler) handleTradingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSymbol):
		response.Error(c, 400, -1121, err.Error())
	case errors.Is(err, service.ErrInvalidQuantity):
		response.Error(c, 400, -1013, err.Error())
	case errors.Is(err, service.ErrInvalidPrice):
		response.Error(c, 400, -1013, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.Error(c, 400, -2019, err.Error())
	case errors.Is(err, service.ErrInsufficientPosition):
		response.Error(c, 400, -2022, err.Error())
	case errors.Is(err, risk.ErrLimitExceeded):
		response.Error(c, 400, -2010, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

// RegisterRoutes registers trading routes
func (h *TradingHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	trading := rg.Group("/trading")
	trading.Use(authMiddleware)
	{
		// Mutating endpoints keep a full request audit trail.
		orderLog := middleware.OrderLoggerMiddleware()

		trading.POST("/buy", orderLog, h.Buy)
		trading.POST("/sell", orderLog, h.Sell)

		trading.GET("/account", h.GetAccount)
		trading.GET("/positions", h.GetPositions)
		trading.GET("/orders", h.GetOrders)

		trading.POST("/batch", orderLog, h.SubmitBatch)
		trading.POST("/batch/process", h.ProcessBatch)
		trading.POST("/batch/cancel", h.CancelBatch)
	}
}
