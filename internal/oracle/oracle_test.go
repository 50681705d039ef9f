package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/papertrade-simulator/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeProvider) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("symbol not quoted")
	}
	return price, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func TestGetPriceServesFreshCacheAfterPrefetch(t *testing.T) {
	provider := &fakeProvider{prices: map[string]float64{"AAPL": 187.5}}
	o := oracle.New(provider, nil, time.Minute)

	o.Prefetch(context.Background(), []string{"AAPL"})

	price, source := o.GetPrice("AAPL")
	assert.InDelta(t, 187.5, price, 1e-9)
	assert.Equal(t, oracle.SourceLive, source)
	assert.Equal(t, 1, provider.calls)

	// The cached read performs no further fetches.
	o.GetPrice("AAPL")
	assert.Equal(t, 1, provider.calls)
}

func TestGetPriceFallsBackToStaticTable(t *testing.T) {
	o := oracle.New(nil, nil, time.Minute)

	// AAPL is in the static table; no provider, no prefetch.
	price, source := o.GetPrice("AAPL")
	assert.Equal(t, oracle.SourceStatic, source)

	static, ok := oracle.StaticPrice("AAPL")
	require.True(t, ok)
	assert.InDelta(t, static, price, 1e-9)
}

func TestGetPriceFallsBackToGlobalDefault(t *testing.T) {
	o := oracle.New(nil, nil, time.Minute)

	price, source := o.GetPrice("NO_SUCH_TICKER")
	assert.Equal(t, oracle.SourceDefault, source)
	assert.InDelta(t, oracle.DefaultPrice, price, 1e-9)
}

func TestPrefetchDegradesWithoutError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	o := oracle.New(provider, nil, time.Minute)

	// A failed live fetch caches the static fallback so later reads are
	// still deterministic, and a trade path never sees the failure.
	o.Prefetch(context.Background(), []string{"AAPL", "NO_SUCH_TICKER"})

	price, source := o.GetPrice("AAPL")
	assert.Equal(t, oracle.SourceStatic, source)
	static, _ := oracle.StaticPrice("AAPL")
	assert.InDelta(t, static, price, 1e-9)

	price, source = o.GetPrice("NO_SUCH_TICKER")
	assert.Equal(t, oracle.SourceDefault, source)
	assert.InDelta(t, oracle.DefaultPrice, price, 1e-9)
}

func TestCacheEntryExpires(t *testing.T) {
	provider := &fakeProvider{prices: map[string]float64{"AAPL": 200}}
	o := oracle.New(provider, nil, 10*time.Millisecond)

	o.Prefetch(context.Background(), []string{"AAPL"})
	_, source := o.GetPrice("AAPL")
	require.Equal(t, oracle.SourceLive, source)

	time.Sleep(25 * time.Millisecond)

	// The stale entry is ignored; the static table answers instead.
	_, source = o.GetPrice("AAPL")
	assert.Equal(t, oracle.SourceStatic, source)
}

func TestOnPriceUpdateWarmsCache(t *testing.T) {
	o := oracle.New(nil, nil, time.Minute)

	o.OnPriceUpdate("TSLA", 242.42)

	price, source := o.GetPrice("TSLA")
	assert.Equal(t, oracle.SourceLive, source)
	assert.InDelta(t, 242.42, price, 1e-9)
}

func TestSnapshotReturnsOnlyFreshEntries(t *testing.T) {
	o := oracle.New(nil, nil, 10*time.Millisecond)

	o.OnPriceUpdate("AAPL", 150)
	o.OnPriceUpdate("MSFT", 330)
	assert.Len(t, o.Snapshot(), 2)

	time.Sleep(25 * time.Millisecond)
	assert.Empty(t, o.Snapshot())
}
