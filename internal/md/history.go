package md

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
)

// Exchange is the market-hours zone used to decide which daily bars are complete.
var Exchange = mustLoadLocation("America/New_York")

// Client reads daily bars and last trades from the Alpaca data API.
type Client struct {
	client *marketdata.Client
	feed   marketdata.Feed
	log    zerolog.Logger
	now    func() time.Time
}

func New(apiKey, apiSecret, feed string, log zerolog.Logger) *Client {
	return &Client{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: parseFeed(feed),
		log:  log,
		now:  time.Now,
	}
}

// DailyCloses returns up to n closes of completed sessions, oldest first.
// Today's bar is excluded while the session is still trading.
func (c *Client) DailyCloses(ctx context.Context, symbol string, n int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := StartOfDay(c.now())
	start := end.AddDate(0, 0, -(2*n + 10))

	bars, err := c.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
		Feed:       c.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("get daily bars for %s: %w", symbol, err)
	}

	window := NewRingBuffer(n)
	for _, bar := range bars {
		if !bar.Timestamp.Before(end) {
			continue
		}
		window.Add(bar.Close)
	}
	closes := window.Values()
	c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Int("closes", len(closes)).Msg("daily closes fetched")
	return closes, nil
}

func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	trade, err := c.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		return 0, fmt.Errorf("get latest trade for %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("no usable trade for %s", symbol)
	}
	c.log.Debug().Str("symbol", symbol).Float64("price", trade.Price).Time("at", trade.Timestamp).Msg("latest trade fetched")
	return trade.Price, nil
}

// StartOfDay is midnight of t's calendar day on the exchange clock.
func StartOfDay(t time.Time) time.Time {
	local := t.In(Exchange)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Exchange)
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
