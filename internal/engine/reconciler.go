package engine

import (
	"context"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/state"
	"github.com/rs/zerolog"
)

func ReconcileLoop(ctx context.Context, brokerClient Broker, store *state.Store, symbols []string, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Reconcile(ctx, brokerClient, store, symbols, log)
		}
	}
}

// Reconcile replaces the tracked open orders with the broker's view and
// refreshes positions for symbols. Run it before the first cycle so orders
// filled while the bot was down no longer block buys.
func Reconcile(ctx context.Context, brokerClient Broker, store *state.Store, symbols []string, log zerolog.Logger) {
	orders, err := brokerClient.OpenOrders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile open orders failed")
	} else {
		openOrders := make(map[string]state.OpenOrder, len(orders))
		for _, order := range orders {
			openOrders[order.ClientOrderID] = state.OpenOrder{
				ClientOrderID: order.ClientOrderID,
				OrderID:       order.ID,
				Symbol:        order.Symbol,
				Status:        order.Status,
			}
		}
		store.SetOpenOrders(openOrders)
	}

	for _, symbol := range symbols {
		position, err := brokerClient.Position(ctx, symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("reconcile position failed")
			continue
		}
		store.UpdatePosition(symbol, state.Position{Qty: position.Qty, AvgEntry: position.AvgEntry})
	}

	account, err := brokerClient.Account(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile account failed")
	} else {
		log.Info().Float64("equity", account.Equity).Float64("buying_power", account.BuyingPower).Msg("account reconciled")
	}
}
