package oracle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Source identifies which fallback tier served a price. Every tier switch
// is logged so failure-mode tests can assert which one was used.
type Source string

const (
	SourceLive    Source = "live"
	SourceStatic  Source = "static"
	SourceDefault Source = "default"
)

// DefaultPrice is the global fallback for wholly unknown symbols.
const DefaultPrice = 100.0

type entry struct {
	price     float64
	source    Source
	fetchedAt time.Time
}

// Oracle resolves symbols to current prices. GetPrice is cache-only and
// never blocks on I/O; Prefetch is the single operation allowed to reach
// the live quote source. The cache is process-wide and shared by all
// accounts.
type Oracle struct {
	provider QuoteProvider
	redis    *redis.Client
	ttl      time.Duration

	entries map[string]entry
	mu      sync.RWMutex
}

// New creates an Oracle. The redis client is optional; when present, cache
// upserts are mirrored so other processes can observe hot prices.
func New(provider QuoteProvider, rdb *redis.Client, ttl time.Duration) *Oracle {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Oracle{
		provider: provider,
		redis:    rdb,
		ttl:      ttl,
		entries:  make(map[string]entry),
	}
}

// GetPrice returns the current price for a symbol without performing any
// I/O. Tiers: fresh cache entry, then the static default table, then the
// global default. Callers that need a live quote must Prefetch first.
func (o *Oracle) GetPrice(symbol string) (float64, Source) {
	o.mu.RLock()
	e, ok := o.entries[symbol]
	o.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < o.ttl {
		return e.price, e.source
	}

	if price, ok := staticPrices[symbol]; ok {
		log.Printf("[Oracle] %s: no fresh quote, serving static table price %.2f", symbol, price)
		return price, SourceStatic
	}

	log.Printf("[Oracle] %s: unknown symbol, serving global default %.2f", symbol, DefaultPrice)
	return DefaultPrice, SourceDefault
}

// Prefetch populates the cache for the given symbols ahead of a trade.
// A failed live fetch degrades to the static table (then the global
// default); it never propagates an error to the trade path.
func (o *Oracle) Prefetch(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		price, err := o.fetchLive(ctx, symbol)
		if err == nil {
			o.upsert(symbol, price, SourceLive)
			continue
		}

		if fallback, ok := staticPrices[symbol]; ok {
			log.Printf("[Oracle] %s: live fetch failed (%v), falling back to static table", symbol, err)
			o.upsert(symbol, fallback, SourceStatic)
			continue
		}

		log.Printf("[Oracle] %s: live fetch failed (%v), falling back to global default", symbol, err)
		o.upsert(symbol, DefaultPrice, SourceDefault)
	}
}

func (o *Oracle) fetchLive(ctx context.Context, symbol string) (float64, error) {
	if o.provider == nil {
		return 0, ErrNoProvider
	}
	return o.provider.FetchPrice(ctx, symbol)
}

// OnPriceUpdate implements PriceSink so a streaming feed can push live
// quotes straight into the cache.
func (o *Oracle) OnPriceUpdate(symbol string, price float64) {
	o.upsert(symbol, price, SourceLive)
}

// upsert is last-writer-wins; staleness beyond the TTL is the correctness
// boundary, not write ordering.
func (o *Oracle) upsert(symbol string, price float64, source Source) {
	o.mu.Lock()
	o.entries[symbol] = entry{price: price, source: source, fetchedAt: time.Now()}
	o.mu.Unlock()

	if o.redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("price:%s", symbol)
	if err := o.redis.HSet(ctx, key, map[string]interface{}{
		"price":     price,
		"source":    string(source),
		"timestamp": time.Now().UnixMilli(),
	}).Err(); err != nil {
		log.Printf("[Oracle] redis mirror failed for %s: %v", symbol, err)
		return
	}
	o.redis.Expire(ctx, key, o.ttl)
	o.redis.Publish(ctx, "price_updates", fmt.Sprintf("%s:%.8f", symbol, price))
}

// Snapshot returns all fresh cached prices, mainly for the health endpoint.
func (o *Oracle) Snapshot() map[string]float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make(map[string]float64, len(o.entries))
	for symbol, e := range o.entries {
		if time.Since(e.fetchedAt) < o.ttl {
			result[symbol] = e.price
		}
	}
	return result
}
