package worker

import (
	"context"
	"log"
	"time"

	"github.com/papertrade-simulator/internal/risk"
	"github.com/papertrade-simulator/internal/service"
)

// UserSource enumerates the users whose positions need monitoring.
type UserSource interface {
	GetActiveUserIDs() ([]uint, error)
}

// RiskMonitor periodically evaluates every open position against current
// prices and surfaces exit recommendations. Recommendations are advisory:
// the monitor logs them, it never executes the exit itself.
type RiskMonitor struct {
	tradingService *service.TradingService
	users          UserSource
	interval       time.Duration
	stopChan       chan struct{}
}

// NewRiskMonitor creates a new position monitoring worker
func NewRiskMonitor(tradingService *service.TradingService, users UserSource, interval time.Duration) *RiskMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RiskMonitor{
		tradingService: tradingService,
		users:          users,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the monitoring loop
func (w *RiskMonitor) Start() {
	log.Printf("[RiskMonitor] started with interval: %v", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkPositions()
		case <-w.stopChan:
			log.Println("[RiskMonitor] stopped")
			return
		}
	}
}

// Stop stops the monitoring loop
func (w *RiskMonitor) Stop() {
	close(w.stopChan)
}

func (w *RiskMonitor) checkPositions() {
	userIDs, err := w.users.GetActiveUserIDs()
	if err != nil {
		log.Printf("[RiskMonitor] failed to list active users: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	for _, userID := range userIDs {
		assessments, err := w.tradingService.EvaluateRisk(ctx, userID)
		if err != nil {
			log.Printf("[RiskMonitor] evaluation failed for user %d: %v", userID, err)
			continue
		}

		for _, a := range assessments {
			if a.Action != risk.ActionSell {
				continue
			}
			log.Printf("[RiskMonitor] user=%d %s: %s (sell fraction %.0f%%)",
				userID, a.Symbol, a.Reason, a.SellFraction*100)
		}
	}
}
