package batch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/papertrade-simulator/internal/batch"
	"github.com/papertrade-simulator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("insufficient balance")

// fakeExecutor records executions and fails configured symbols.
type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	failFor  map[string]error
	nextID   uint
	onExec   func(symbol string)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failFor: make(map[string]error)}
}

func (f *fakeExecutor) exec(symbol string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onExec != nil {
		f.onExec(symbol)
	}
	if err, ok := f.failFor[symbol]; ok {
		return nil, err
	}
	f.nextID++
	f.executed = append(f.executed, symbol)
	return &models.Order{ID: f.nextID, Symbol: symbol}, nil
}

func (f *fakeExecutor) ExecuteBuy(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error) {
	return f.exec(symbol)
}

func (f *fakeExecutor) ExecuteSell(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error) {
	return f.exec(symbol)
}

func validOrder(symbol string, side models.OrderSide) batch.Request {
	return batch.Request{Symbol: symbol, Side: side, Quantity: 10}
}

func TestSubmitAllOrNothing(t *testing.T) {
	proc := batch.NewProcessor(1, newFakeExecutor(), time.Millisecond)

	err := proc.Submit([]batch.Request{
		validOrder("AAPL", models.OrderSideBuy),
		{Symbol: "MSFT", Side: "SIDEWAYS", Quantity: 10},
	})
	assert.ErrorIs(t, err, batch.ErrInvalidBatch)

	// The valid first order must not have been admitted either.
	assert.Zero(t, proc.Pending())
}

func TestSubmitRejectsEachInvalidShape(t *testing.T) {
	proc := batch.NewProcessor(1, newFakeExecutor(), time.Millisecond)
	bad := -5.0

	cases := []batch.Request{
		{Symbol: "", Side: models.OrderSideBuy, Quantity: 10},
		{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 0},
		{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, Price: &bad},
	}
	for _, c := range cases {
		assert.ErrorIs(t, proc.Submit([]batch.Request{c}), batch.ErrInvalidBatch)
	}
	assert.ErrorIs(t, proc.Submit(nil), batch.ErrInvalidBatch)
}

func TestProcessIsolatesFailures(t *testing.T) {
	executor := newFakeExecutor()
	executor.failFor["MSFT"] = errRejected
	proc := batch.NewProcessor(1, executor, time.Millisecond)

	require.NoError(t, proc.Submit([]batch.Request{
		validOrder("AAPL", models.OrderSideBuy),
		validOrder("MSFT", models.OrderSideBuy),
		validOrder("TSLA", models.OrderSideSell),
	}))

	result, err := proc.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Skipped)

	require.Len(t, result.Details, 3)
	assert.Equal(t, "filled", result.Details[0].Status)
	assert.Equal(t, "rejected", result.Details[1].Status)
	assert.Contains(t, result.Details[1].Error, "insufficient balance")
	assert.Equal(t, "filled", result.Details[2].Status)

	// Execution order matches submission order.
	assert.Equal(t, []string{"AAPL", "TSLA"}, executor.executed)
}

func TestProcessEmptyQueue(t *testing.T) {
	proc := batch.NewProcessor(1, newFakeExecutor(), time.Millisecond)
	_, err := proc.Process(context.Background())
	assert.ErrorIs(t, err, batch.ErrEmptyQueue)
}

func TestProcessRejectsConcurrentRun(t *testing.T) {
	executor := newFakeExecutor()
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	executor.onExec = func(string) {
		once.Do(func() { close(started) })
		<-release
	}

	proc := batch.NewProcessor(1, executor, time.Millisecond)
	require.NoError(t, proc.Submit([]batch.Request{validOrder("AAPL", models.OrderSideBuy)}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := proc.Process(context.Background())
		assert.NoError(t, err)
	}()

	<-started
	_, err := proc.Process(context.Background())
	assert.ErrorIs(t, err, batch.ErrAlreadyProcessing)

	close(release)
	<-done

	// Once the first run finishes the processor is available again.
	_, err = proc.Process(context.Background())
	assert.ErrorIs(t, err, batch.ErrEmptyQueue)
}

func TestCancelSkipsRemainingOrders(t *testing.T) {
	executor := newFakeExecutor()
	proc := batch.NewProcessor(1, executor, time.Millisecond)

	// Cancel from inside the first execution; everything after it must be
	// reported as skipped and the executed order must stay executed.
	executor.onExec = func(symbol string) {
		if symbol == "AAPL" {
			proc.Cancel()
		}
	}

	require.NoError(t, proc.Submit([]batch.Request{
		validOrder("AAPL", models.OrderSideBuy),
		validOrder("MSFT", models.OrderSideBuy),
		validOrder("TSLA", models.OrderSideBuy),
	}))

	result, err := proc.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, []string{"AAPL"}, executor.executed)

	require.Len(t, result.Details, 3)
	assert.Equal(t, "filled", result.Details[0].Status)
	assert.Equal(t, "skipped", result.Details[1].Status)
	assert.Equal(t, "skipped", result.Details[2].Status)
}

func TestProcessHonoursContextCancellation(t *testing.T) {
	executor := newFakeExecutor()
	proc := batch.NewProcessor(1, executor, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, proc.Submit([]batch.Request{
		validOrder("AAPL", models.OrderSideBuy),
		validOrder("MSFT", models.OrderSideBuy),
	}))

	result, err := proc.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
}

func TestContextCancelDuringDelayReportsEveryOrder(t *testing.T) {
	executor := newFakeExecutor()
	proc := batch.NewProcessor(1, executor, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancellation lands after the first execution, during the delay
	// before the second order.
	executor.onExec = func(symbol string) {
		if symbol == "AAPL" {
			cancel()
		}
	}

	require.NoError(t, proc.Submit([]batch.Request{
		validOrder("AAPL", models.OrderSideBuy),
		validOrder("MSFT", models.OrderSideBuy),
		validOrder("TSLA", models.OrderSideBuy),
	}))

	result, err := proc.Process(ctx)
	require.NoError(t, err)

	// Every admitted order must appear in the report exactly once.
	require.Len(t, result.Details, 3)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, "filled", result.Details[0].Status)
	assert.Equal(t, "skipped", result.Details[1].Status)
	assert.Equal(t, "skipped", result.Details[2].Status)
	assert.Equal(t, []string{"AAPL"}, executor.executed)
}

func TestRegistryReturnsOneProcessorPerUser(t *testing.T) {
	registry := batch.NewRegistry(newFakeExecutor(), time.Millisecond)

	a := registry.For(1)
	b := registry.For(1)
	c := registry.For(2)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
