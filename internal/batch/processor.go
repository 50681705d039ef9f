// Package batch sequences lists of orders through the execution engine.
// Admission is all-or-nothing; execution isolates per-order failures so
// one rejection never aborts the rest of the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papertrade-simulator/internal/models"
)

var (
	// ErrInvalidBatch rejects the whole submission before any mutation.
	ErrInvalidBatch = errors.New("invalid batch")
	// ErrAlreadyProcessing rejects a Process call while another is in
	// flight for the same account.
	ErrAlreadyProcessing = errors.New("batch processing already in progress")
	// ErrEmptyQueue means Process was called with nothing admitted.
	ErrEmptyQueue = errors.New("batch queue is empty")
)

// defaultInterOrderDelay models sequential market interaction between
// consecutive executions.
const defaultInterOrderDelay = 50 * time.Millisecond

// Executor is the slice of the execution engine the processor drives.
type Executor interface {
	ExecuteBuy(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error)
	ExecuteSell(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error)
}

// Request is one order in a submission.
type Request struct {
	Symbol   string           `json:"symbol"`
	Side     models.OrderSide `json:"side"`
	Quantity float64          `json:"quantity"`
	Price    *float64         `json:"price,omitempty"`
}

// Detail reports the outcome of one order in a processed batch.
type Detail struct {
	Index    int              `json:"index"`
	Symbol   string           `json:"symbol"`
	Side     models.OrderSide `json:"side"`
	Quantity float64          `json:"quantity"`
	Status   string           `json:"status"` // filled, rejected, skipped
	OrderID  uint             `json:"order_id,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Result summarizes one Process run. Partial completion after a
// cancellation is a valid terminal state; skipped orders appear in
// Details.
type Result struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Details   []Detail `json:"details"`
}

// Processor owns one user's batch queue. Only one Process may run at a
// time per processor; a concurrent call is rejected, not queued.
type Processor struct {
	userID   uint
	executor Executor
	delay    time.Duration

	mu    sync.Mutex
	queue []Request

	processing atomic.Bool
	cancelled  atomic.Bool
}

// NewProcessor creates a processor for one user's account.
func NewProcessor(userID uint, executor Executor, delay time.Duration) *Processor {
	if delay <= 0 {
		delay = defaultInterOrderDelay
	}
	return &Processor{
		userID:   userID,
		executor: executor,
		delay:    delay,
	}
}

// Submit validates every order up front and appends them to the queue.
// If any single order is invalid the whole submission is rejected and
// nothing is admitted.
func (p *Processor) Submit(requests []Request) error {
	if len(requests) == 0 {
		return fmt.Errorf("%w: empty submission", ErrInvalidBatch)
	}

	for i, req := range requests {
		if strings.TrimSpace(req.Symbol) == "" {
			return fmt.Errorf("%w: order %d has an empty symbol", ErrInvalidBatch, i)
		}
		if !req.Side.Valid() {
			return fmt.Errorf("%w: order %d has unknown side %q", ErrInvalidBatch, i, req.Side)
		}
		if req.Quantity <= 0 {
			return fmt.Errorf("%w: order %d has non-positive quantity", ErrInvalidBatch, i)
		}
		if req.Price != nil && *req.Price <= 0 {
			return fmt.Errorf("%w: order %d has non-positive price", ErrInvalidBatch, i)
		}
	}

	p.mu.Lock()
	p.queue = append(p.queue, requests...)
	p.mu.Unlock()

	log.Printf("[Batch] user=%d admitted %d orders", p.userID, len(requests))
	return nil
}

// Pending returns the number of admitted, unprocessed orders.
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Cancel requests cooperative cancellation of an in-flight Process run.
// Already-executed orders are never rolled back.
func (p *Processor) Cancel() {
	p.cancelled.Store(true)
}

// Process drains the queue, executing orders one at a time. Each order's
// failure is caught independently; the cancellation flag and the context
// are checked between orders, never mid-execution.
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	if !p.processing.CompareAndSwap(false, true) {
		return nil, ErrAlreadyProcessing
	}
	defer p.processing.Store(false)
	p.cancelled.Store(false)

	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil, ErrEmptyQueue
	}

	result := &Result{Details: make([]Detail, 0, len(pending))}
	for i, req := range pending {
		if i > 0 && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-time.After(p.delay):
			}
		}

		// Checked after the delay so a cancellation arriving during it
		// still routes every remaining order into the skipped report.
		if ctx.Err() != nil || p.cancelled.Load() {
			for j := i; j < len(pending); j++ {
				result.Skipped++
				result.Details = append(result.Details, Detail{
					Index:    j,
					Symbol:   pending[j].Symbol,
					Side:     pending[j].Side,
					Quantity: pending[j].Quantity,
					Status:   "skipped",
					Error:    "batch cancelled",
				})
			}
			log.Printf("[Batch] user=%d cancelled after %d orders", p.userID, i)
			break
		}

		detail := Detail{Index: i, Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity}
		order, err := p.execute(ctx, req)
		result.Processed++
		if err != nil {
			detail.Status = "rejected"
			detail.Error = err.Error()
			result.Failed++
		} else {
			detail.Status = "filled"
			detail.OrderID = order.ID
			result.Succeeded++
		}
		result.Details = append(result.Details, detail)
	}

	log.Printf("[Batch] user=%d processed=%d succeeded=%d failed=%d skipped=%d",
		p.userID, result.Processed, result.Succeeded, result.Failed, result.Skipped)
	return result, nil
}

func (p *Processor) execute(ctx context.Context, req Request) (*models.Order, error) {
	if req.Side == models.OrderSideBuy {
		return p.executor.ExecuteBuy(ctx, p.userID, req.Symbol, req.Quantity, req.Price)
	}
	return p.executor.ExecuteSell(ctx, p.userID, req.Symbol, req.Quantity, req.Price)
}

// Registry hands out one Processor per user.
type Registry struct {
	executor Executor
	delay    time.Duration

	mu    sync.Mutex
	procs map[uint]*Processor
}

// NewRegistry creates a processor registry backed by the given executor.
func NewRegistry(executor Executor, delay time.Duration) *Registry {
	return &Registry{
		executor: executor,
		delay:    delay,
		procs:    make(map[uint]*Processor),
	}
}

// For returns the user's processor, creating it on first use.
func (r *Registry) For(userID uint) *Processor {
	r.mu.Lock()
	defer r.mu.Unlock()

	proc, ok := r.procs[userID]
	if !ok {
		proc = NewProcessor(userID, r.executor, r.delay)
		r.procs[userID] = proc
	}
	return proc
}
