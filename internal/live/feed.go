package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"

	"quantbt/internal/domain"
	"quantbt/internal/util"
)

// BarFeed delivers streaming bars to the monitor. Run blocks until the feed
// fails permanently or ctx is cancelled; deliver is called once per bar from
// the feed's own goroutine.
type BarFeed interface {
	Run(ctx context.Context, deliver func(domain.Bar)) error
}

// AlpacaFeed subscribes to minute bars on the Alpaca stocks websocket.
// Dropped connections are re-dialed with exponential backoff up to
// maxReconnects attempts before the feed gives up.
type AlpacaFeed struct {
	apiKey        string
	apiSecret     string
	baseURL       string
	feed          string
	symbols       []string
	maxReconnects int
	log           *slog.Logger
}

var _ BarFeed = (*AlpacaFeed)(nil)

// NewAlpacaFeed creates a feed for the given symbols. baseURL may be empty to
// use the SDK default endpoint; the IEX feed is used, which is available on
// free-tier credentials.
func NewAlpacaFeed(apiKey, apiSecret, baseURL string, symbols []string, maxReconnects int, log *slog.Logger) *AlpacaFeed {
	return &AlpacaFeed{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		baseURL:       baseURL,
		feed:          "iex",
		symbols:       symbols,
		maxReconnects: maxReconnects,
		log:           log,
	}
}

// Run streams bars until ctx is cancelled, reconnecting on transient
// failures. It returns the last session error once the reconnect budget is
// spent.
func (f *AlpacaFeed) Run(ctx context.Context, deliver func(domain.Bar)) error {
	err := util.Retry(ctx, f.maxReconnects, time.Second, func() error {
		sessionErr := f.session(ctx, deliver)
		if sessionErr != nil && ctx.Err() == nil {
			f.log.Warn("stream session ended, reconnecting", "err", sessionErr)
		}
		return sessionErr
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream gave up after %d attempts: %w", f.maxReconnects, err)
	}
	return err
}

// session dials the websocket, subscribes, and blocks until the connection
// terminates or ctx is cancelled.
func (f *AlpacaFeed) session(ctx context.Context, deliver func(domain.Bar)) error {
	opts := []stream.StockOption{
		stream.WithCredentials(f.apiKey, f.apiSecret),
	}
	if f.baseURL != "" {
		opts = append(opts, stream.WithBaseURL(f.baseURL))
	}

	client := stream.NewStocksClient(f.feed, opts...)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting stream: %w", err)
	}

	onBar := func(b stream.Bar) {
		deliver(domain.Bar{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	if err := client.SubscribeToBars(onBar, f.symbols...); err != nil {
		return fmt.Errorf("subscribing to bars: %w", err)
	}

	f.log.Info("bar stream connected", "symbols", f.symbols, "feed", f.feed)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Terminated():
		if err == nil {
			err = errors.New("stream terminated")
		}
		return err
	}
}
