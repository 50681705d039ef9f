package oracle

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval         = 30 * time.Second
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
)

// PriceSink receives streamed price updates. The Oracle implements it.
type PriceSink interface {
	OnPriceUpdate(symbol string, price float64)
}

// Feed is a websocket client that streams live ticker updates into a
// PriceSink. It keeps the oracle cache warm so the synchronous GetPrice
// path rarely falls back to the static table.
type Feed struct {
	url  string
	sink PriceSink

	conn        *websocket.Conn
	connMux     sync.RWMutex
	isConnected bool

	symbols    map[string]bool
	symbolsMux sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectAttempts int
}

// NewFeed creates a price feed for the given stream URL.
func NewFeed(url string, sink PriceSink) *Feed {
	return &Feed{
		url:     url,
		sink:    sink,
		symbols: make(map[string]bool),
	}
}

// IsConnected returns whether the websocket is connected.
func (f *Feed) IsConnected() bool {
	f.connMux.RLock()
	defer f.connMux.RUnlock()
	return f.isConnected
}

// Connect establishes the websocket connection and starts the read and
// ping loops.
func (f *Feed) Connect(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	if err := f.dial(); err != nil {
		return err
	}

	f.wg.Add(2)
	go f.messageLoop()
	go f.pingLoop()

	return nil
}

func (f *Feed) dial() error {
	f.connMux.Lock()
	defer f.connMux.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return err
	}

	f.conn = conn
	f.isConnected = true
	f.reconnectAttempts = 0
	return nil
}

// Subscribe asks the stream for updates on additional symbols.
func (f *Feed) Subscribe(symbols []string) error {
	f.symbolsMux.Lock()
	for _, s := range symbols {
		f.symbols[s] = true
	}
	f.symbolsMux.Unlock()

	return f.sendSubscribe(symbols)
}

func (f *Feed) sendSubscribe(symbols []string) error {
	f.connMux.Lock()
	defer f.connMux.Unlock()

	if f.conn == nil {
		return nil
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": symbols,
	}
	return f.conn.WriteJSON(msg)
}

// feedMessage is a single ticker update on the stream.
type feedMessage struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *Feed) messageLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		f.connMux.RLock()
		conn := f.conn
		f.connMux.RUnlock()

		if conn == nil {
			if !f.reconnect() {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[Feed] read error: %v", err)
			f.markDisconnected()
			if !f.reconnect() {
				return
			}
			continue
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		f.sink.OnPriceUpdate(msg.Symbol, price)
	}
}

func (f *Feed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.connMux.Lock()
			if f.conn != nil {
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Printf("[Feed] ping failed: %v", err)
				}
			}
			f.connMux.Unlock()
		}
	}
}

func (f *Feed) markDisconnected() {
	f.connMux.Lock()
	f.isConnected = false
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMux.Unlock()
}

// reconnect retries the connection with a fixed delay. Returns false once
// the attempt budget is exhausted or the feed is shutting down.
func (f *Feed) reconnect() bool {
	for f.reconnectAttempts < maxReconnectAttempts {
		select {
		case <-f.ctx.Done():
			return false
		case <-time.After(reconnectDelay):
		}

		f.reconnectAttempts++
		log.Printf("[Feed] reconnect attempt %d/%d", f.reconnectAttempts, maxReconnectAttempts)

		if err := f.dial(); err != nil {
			log.Printf("[Feed] reconnect failed: %v", err)
			continue
		}

		f.symbolsMux.RLock()
		symbols := make([]string, 0, len(f.symbols))
		for s := range f.symbols {
			symbols = append(symbols, s)
		}
		f.symbolsMux.RUnlock()

		if len(symbols) > 0 {
			if err := f.sendSubscribe(symbols); err != nil {
				log.Printf("[Feed] resubscribe failed: %v", err)
			}
		}
		return true
	}

	log.Printf("[Feed] giving up after %d reconnect attempts", maxReconnectAttempts)
	return false
}

// Close stops the feed and closes the connection.
func (f *Feed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.markDisconnected()
	f.wg.Wait()
	return nil
}
