package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
	"bond_arb/internal/event"
	"bond_arb/internal/infra"
)

const (
	maxConnectRetries = 10
	handshakeTimeout  = 10 * time.Second
	readTimeout       = 60 * time.Second
)

// bookMessage is the wire format of a live order book snapshot.
type bookMessage struct {
	Type     string      `json:"type"` // book
	Security string      `json:"security"`
	Time     int64       `json:"time"` // unix millis
	Bids     []wireLevel `json:"bids"`
	Offers   []wireLevel `json:"offers"`
}

type wireLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// WSWorker maintains a WebSocket subscription to a market data endpoint
// and forwards book snapshots into the engine inbox.
type WSWorker struct {
	url        string
	securities []string
	inbox      chan<- event.Event
	seq        *uint64
	conn       *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex
	connected  bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewWSWorker creates a market data worker for the given securities.
func NewWSWorker(url string, securities []string, inbox chan<- event.Event, seq *uint64) *WSWorker {
	return &WSWorker{
		url:        url,
		securities: securities,
		inbox:      inbox,
		seq:        seq,
	}
}

// Connect starts the connection loop in the background.
func (w *WSWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *WSWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("market data connection failed",
				slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxConnectRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("market data connected",
		slog.String("url", w.url), slog.Int("subs", len(w.securities)))
	return nil
}

func (w *WSWorker) subscribe() error {
	msg := map[string]interface{}{
		"action":     "subscribe",
		"type":       "book",
		"securities": w.securities,
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *WSWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			w.closeConnection()
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(ctx, msg)
	}
}

func (w *WSWorker) handleMessage(ctx context.Context, msg []byte) {
	var resp bookMessage
	if json.Unmarshal(msg, &resp) != nil || resp.Type != "book" {
		return
	}

	ev := event.AcquireBookUpdateEvent()
	ev.Seq = atomic.AddUint64(w.seq, 1)
	ev.Security = resp.Security
	ev.Time = time.UnixMilli(resp.Time)
	ev.Bids = toLevels(resp.Bids)
	ev.Offers = toLevels(resp.Offers)

	// Block instead of dropping: the engine halts on sequence gaps.
	select {
	case w.inbox <- ev:
	case <-ctx.Done():
		event.ReleaseBookUpdateEvent(ev)
	}
}

func toLevels(wire []wireLevel) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(wire))
	for _, l := range wire {
		levels = append(levels, domain.PriceLevel{Price: l.Price, Quantity: l.Quantity})
	}
	return levels
}

func (w *WSWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and closes the connection.
func (w *WSWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
