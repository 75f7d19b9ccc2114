package broker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderRequest sizes a buy either by whole shares (Qty) or by dollars
// (Notional). Exactly one of them is set.
type OrderRequest struct {
	Symbol        string
	Qty           int
	Notional      float64
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Status        string
}

type Position struct {
	Symbol   string
	Qty      float64
	AvgEntry float64
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

type Clock struct {
	Now       time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

type Client struct {
	client *alpaca.Client
	log    zerolog.Logger
}

func New(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{client: alpaca.NewClient(opts), log: log}
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Notional > 0 {
		notional := decimal.NewFromFloat(req.Notional).Round(2)
		orderReq.Notional = &notional
	} else {
		qty := decimal.NewFromInt(int64(req.Qty))
		orderReq.Qty = &qty
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		c.log.Error().Err(err).Str("side", string(req.Side)).Str("symbol", req.Symbol).Int("qty", req.Qty).Float64("notional", req.Notional).Msg("place order failed")
		return OrderRef{}, err
	}

	c.log.Info().Str("order_id", order.ID).Str("side", string(req.Side)).Str("symbol", req.Symbol).Int("qty", req.Qty).Float64("notional", req.Notional).Str("status", string(order.Status)).Msg("place order success")
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Status:        string(order.Status),
	}, nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]OrderRef, error) {
	orders, err := c.client.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		c.log.Error().Err(err).Msg("fetch open orders failed")
		return nil, err
	}
	c.log.Debug().Int("count", len(orders)).Msg("open orders fetched")
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, OrderRef{
			ID:            order.ID,
			ClientOrderID: order.ClientOrderID,
			Symbol:        order.Symbol,
			Status:        string(order.Status),
		})
	}
	return refs, nil
}

// Position reports a flat position when the broker has none for symbol.
func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Position{Symbol: symbol}, nil
		}
		c.log.Error().Err(err).Str("symbol", symbol).Msg("fetch position failed")
		return Position{}, err
	}
	qty, _ := pos.Qty.Float64()
	avgEntry, _ := pos.AvgEntryPrice.Float64()

	c.log.Debug().Str("symbol", symbol).Float64("qty", qty).Float64("avg_entry", avgEntry).Msg("position fetched")
	return Position{
		Symbol:   pos.Symbol,
		Qty:      qty,
		AvgEntry: avgEntry,
	}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch account failed")
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	c.log.Debug().Float64("equity", equity).Float64("buying_power", buyingPower).Msg("account fetched")
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

func (c *Client) Clock(ctx context.Context) (Clock, error) {
	clock, err := c.client.GetClock()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch clock failed")
		return Clock{}, err
	}
	return Clock{
		Now:       clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
