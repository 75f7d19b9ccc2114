package risk

import (
	"errors"
	"math"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/strategy"
	"github.com/rs/zerolog"
)

type Sizing string

const (
	SizingShares   Sizing = "shares"
	SizingNotional Sizing = "notional"
)

type RiskContext struct {
	Now              time.Time
	MarketOpen       bool
	OpenOrderCount   int
	LastBuyTime      time.Time
	Cooldown         time.Duration
	DCAAmount        float64
	Sizing           Sizing
	MaxNotional      float64
	BuyingPower      float64
	CheckBuyingPower bool
	KillSwitch       bool
}

// ApprovedOrder carries the size of an approved buy: Qty for share sizing,
// Notional for dollar sizing.
type ApprovedOrder struct {
	Decision strategy.Decision
	Qty      int
	Notional float64
	Reason   string
}

type Gate struct {
	Log zerolog.Logger
}

func (g Gate) Evaluate(decision strategy.Decision, ctx RiskContext) (ApprovedOrder, error) {
	if decision.Action != strategy.Buy {
		return ApprovedOrder{Decision: decision, Reason: "hold"}, nil
	}

	qty, notional := size(decision.Price, ctx)
	g.Log.Debug().Str("symbol", decision.Symbol).Float64("price", decision.Price).Int("qty", qty).Float64("notional", notional).Msg("risk evaluation")

	if ctx.KillSwitch {
		return g.reject(decision, "kill_switch_enabled")
	}
	if !ctx.MarketOpen {
		return g.reject(decision, "market_closed")
	}
	if ctx.OpenOrderCount > 0 {
		return g.reject(decision, "open_order_exists")
	}
	if !ctx.LastBuyTime.IsZero() && ctx.Now.Sub(ctx.LastBuyTime) < ctx.Cooldown {
		remaining := ctx.Cooldown - ctx.Now.Sub(ctx.LastBuyTime)
		g.Log.Info().Str("symbol", decision.Symbol).Dur("remaining", remaining).Msg("cooldown active")
		return g.reject(decision, "cooldown_active")
	}
	if notional <= 0 {
		return g.reject(decision, "insufficient_dca_amount")
	}
	if ctx.MaxNotional > 0 && notional > ctx.MaxNotional {
		return g.reject(decision, "max_notional_exceeded")
	}
	if ctx.CheckBuyingPower && notional > ctx.BuyingPower {
		return g.reject(decision, "insufficient_buying_power")
	}

	g.Log.Info().Str("symbol", decision.Symbol).Int("qty", qty).Float64("notional", notional).Msg("risk approved")
	return ApprovedOrder{Decision: decision, Qty: qty, Notional: notional, Reason: "approved"}, nil
}

func (g Gate) reject(decision strategy.Decision, reason string) (ApprovedOrder, error) {
	g.Log.Info().Str("symbol", decision.Symbol).Str("reason", reason).Msg("risk rejected")
	return ApprovedOrder{}, errors.New(reason)
}

// size returns whole shares and their cost for share sizing, or zero shares
// and the full amount for dollar sizing.
func size(price float64, ctx RiskContext) (int, float64) {
	if ctx.DCAAmount <= 0 || price <= 0 {
		return 0, 0
	}
	if ctx.Sizing == SizingNotional {
		return 0, ctx.DCAAmount
	}
	shares := int(math.Floor(ctx.DCAAmount / price))
	return shares, float64(shares) * price
}
