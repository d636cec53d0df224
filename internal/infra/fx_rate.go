package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// rateResponse represents the official ARS/USD quote payload.
type rateResponse struct {
	Currency string  `json:"moneda"`
	House    string  `json:"casa"`
	Buy      float64 `json:"compra"`
	Sell     float64 `json:"venta"`
	Updated  string  `json:"fechaActualizacion"`
}

// FXRateClient serves the end-of-day ARS/USD rate used for commission and
// PnL conversion. It starts from the configured rate and, when an API URL
// is set, refreshes it periodically in the background. GetRate is safe for
// concurrent use.
type FXRateClient struct {
	rate         decimal.Decimal
	mu           sync.RWMutex
	pollInterval time.Duration
	apiURL       string
	httpClient   *http.Client
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewFXRateClient creates a client seeded with the configured rate.
// An empty apiURL keeps the rate static for the whole run.
func NewFXRateClient(initial decimal.Decimal, apiURL string, pollIntervalSec int) *FXRateClient {
	if pollIntervalSec <= 0 {
		pollIntervalSec = 300
	}
	return &FXRateClient{
		rate:         initial,
		pollInterval: time.Duration(pollIntervalSec) * time.Second,
		apiURL:       apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetRate returns the current ARS per USD rate.
func (c *FXRateClient) GetRate() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// Start begins background polling when an API URL is configured.
func (c *FXRateClient) Start(ctx context.Context) error {
	if c.apiURL == "" {
		slog.Info("FX rate static for this run", slog.String("rate", c.GetRate().String()))
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)

	// Fetch once up front; a failure is not fatal, the seeded rate stands.
	if err := c.fetchRate(ctx); err != nil {
		slog.Warn("initial FX rate fetch failed", slog.Any("error", err))
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.fetchRate(ctx); err != nil {
					slog.Warn("FX rate fetch failed", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

// Stop terminates background polling.
func (c *FXRateClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *FXRateClient) fetchRate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}
	if parsed.Sell <= 0 {
		return fmt.Errorf("non-positive rate %f", parsed.Sell)
	}

	rate := decimal.NewFromFloat(parsed.Sell)
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()

	slog.Debug("FX rate updated", slog.String("rate", rate.String()))
	return nil
}
