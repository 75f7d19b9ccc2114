package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/broker"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/config"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/metrics"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/risk"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/state"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/strategy"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/trace"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ResultHold             = "hold"
	ResultMarketPaused     = "market_paused"
	ResultMarketInvalid    = "market_invalid"
	ResultInsufficientData = "insufficient_data"
	ResultDataError        = "data_error"
	ResultRejected         = "rejected"
	ResultDryRun           = "dry_run"
	ResultOrderSubmitted   = "order_submitted"
	ResultOrderFailed      = "order_failed"
)

type MarketData interface {
	DailyCloses(ctx context.Context, symbol string, n int) ([]float64, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

type Regime interface {
	Current(ctx context.Context) (strategy.MarketState, error)
}

type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	OpenOrders(ctx context.Context) ([]broker.OrderRef, error)
	Position(ctx context.Context, symbol string) (broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
	Clock(ctx context.Context) (broker.Clock, error)
}

type SymbolResult struct {
	Decision strategy.Decision
	Result   string
	Err      error
	Order    *broker.OrderRef
}

type CycleResult struct {
	CycleID      string
	Started      time.Time
	Market       strategy.MarketState
	Paused       bool
	Symbols      []SymbolResult
	OrdersPlaced int
}

type Engine struct {
	cfg         config.Config
	strategy    strategy.Strategy
	gate        risk.Gate
	market      MarketData
	regime      Regime
	broker      Broker
	state       *state.Store
	decisions   *DecisionLogger
	log         zerolog.Logger
	runID       string
	orderSeqNum uint64
	now         func() time.Time
}

func New(cfg config.Config, strat strategy.Strategy, gate risk.Gate, market MarketData, regime Regime, brokerClient Broker, stateStore *state.Store, decisions *DecisionLogger, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		strategy:  strat,
		gate:      gate,
		market:    market,
		regime:    regime,
		broker:    brokerClient,
		state:     stateStore,
		decisions: decisions,
		log:       log,
		runID:     decisions.RunID(),
		now:       time.Now,
	}
}

// RunCycle is one DCA execution over the whole watchlist. The market regime
// is read once; when it cannot be read every symbol holds and the read error
// is returned alongside the per-symbol results.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.RunCycle")
	defer span.End()

	result := CycleResult{CycleID: uuid.NewString(), Started: e.now().UTC()}
	log := e.log.With().Str("cycle_id", result.CycleID).Logger()
	log.Info().Strs("symbols", e.cfg.Symbols).Str("mode", string(e.cfg.Mode)).Msg("dca cycle started")

	market, err := e.regime.Current(ctx)
	if err != nil {
		log.Error().Err(err).Msg("market state unavailable, holding all symbols")
		metrics.MarketPaused.Set(1)
		result.Paused = true
		for _, symbol := range e.cfg.Symbols {
			res := SymbolResult{
				Decision: strategy.Decision{Symbol: symbol, Action: strategy.Hold, Reason: strategy.ReasonMarketPaused},
				Result:   ResultMarketInvalid,
				Err:      err,
			}
			e.record(result.CycleID, res, risk.ApprovedOrder{})
			result.Symbols = append(result.Symbols, res)
		}
		e.finish(log, &result, "market_invalid")
		return result, err
	}

	result.Market = market
	metrics.SPYRSI.Set(market.SPYRSI)
	metrics.VIX.Set(market.VIX)
	span.SetAttributes(attribute.Float64("spy_rsi", market.SPYRSI), attribute.Float64("vix", market.VIX))

	if market.Paused(e.cfg.RSIThreshold, e.cfg.VIXThreshold) {
		metrics.MarketPaused.Set(1)
		result.Paused = true
		log.Warn().Float64("spy_rsi", market.SPYRSI).Float64("vix", market.VIX).Msg("market risk elevated, skipping all buys")
		for _, symbol := range e.cfg.Symbols {
			res := SymbolResult{
				Decision: strategy.Decision{Symbol: symbol, Action: strategy.Hold, Reason: strategy.ReasonMarketPaused, Market: market},
				Result:   ResultMarketPaused,
			}
			e.record(result.CycleID, res, risk.ApprovedOrder{})
			result.Symbols = append(result.Symbols, res)
		}
		e.finish(log, &result, "paused")
		return result, nil
	}
	metrics.MarketPaused.Set(0)

	marketOpen := e.marketOpen(ctx, log)
	var account *broker.Account
	for _, symbol := range e.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			e.finish(log, &result, "canceled")
			return result, err
		}
		res, approved := e.evaluateSymbol(ctx, log, symbol, market, marketOpen, &account)
		if res.Result == ResultOrderSubmitted {
			result.OrdersPlaced++
		}
		e.record(result.CycleID, res, approved)
		result.Symbols = append(result.Symbols, res)
	}

	e.finish(log, &result, "completed")
	return result, nil
}

func (e *Engine) evaluateSymbol(ctx context.Context, log zerolog.Logger, symbol string, market strategy.MarketState, marketOpen bool, account **broker.Account) (SymbolResult, risk.ApprovedOrder) {
	ctx, span := trace.StartSpan(ctx, "engine.evaluateSymbol")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	res := SymbolResult{Decision: strategy.Decision{Symbol: symbol, Action: strategy.Hold, Market: market}}

	closes, err := e.market.DailyCloses(ctx, symbol, e.cfg.SMAWindow)
	if err != nil {
		res.Result, res.Err = ResultDataError, err
		log.Error().Err(err).Str("symbol", symbol).Msg("daily closes unavailable")
		return res, risk.ApprovedOrder{}
	}
	price, err := e.market.LatestPrice(ctx, symbol)
	if err != nil {
		res.Result, res.Err = ResultDataError, err
		log.Error().Err(err).Str("symbol", symbol).Msg("latest price unavailable")
		return res, risk.ApprovedOrder{}
	}

	decision, err := e.strategy.Evaluate(strategy.Input{Symbol: symbol, Price: price, Closes: closes, Market: market})
	if err != nil {
		res.Decision.Price = price
		res.Err = err
		res.Result = ResultDataError
		if errors.Is(err, strategy.ErrInsufficientData) {
			res.Result = ResultInsufficientData
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("signal not computable")
		return res, risk.ApprovedOrder{}
	}
	res.Decision = decision
	span.SetAttributes(attribute.String("action", string(decision.Action)), attribute.String("reason", string(decision.Reason)))
	log.Info().Str("symbol", symbol).Float64("price", price).Float64("sma", decision.SMA).Str("action", string(decision.Action)).Str("reason", string(decision.Reason)).Msg("signal evaluated")

	if decision.Action != strategy.Buy {
		res.Result = ResultHold
		return res, risk.ApprovedOrder{}
	}

	riskCtx := risk.RiskContext{
		Now:            e.now().UTC(),
		MarketOpen:     marketOpen,
		OpenOrderCount: e.state.OpenOrderCount(symbol),
		LastBuyTime:    e.state.Holding(symbol).LastBuyTime,
		Cooldown:       e.cfg.Cooldown,
		DCAAmount:      e.cfg.DCAAmount,
		Sizing:         risk.Sizing(e.cfg.Sizing),
		MaxNotional:    e.cfg.MaxNotional,
		KillSwitch:     e.cfg.KillSwitch,
	}
	if e.cfg.Mode != config.ModeDryRun {
		if *account == nil {
			acct, err := e.broker.Account(ctx)
			if err != nil {
				res.Result, res.Err = ResultOrderFailed, fmt.Errorf("account: %w", err)
				return res, risk.ApprovedOrder{}
			}
			*account = &acct
		}
		riskCtx.CheckBuyingPower = true
		riskCtx.BuyingPower = (*account).BuyingPower
	}

	approved, err := e.gate.Evaluate(decision, riskCtx)
	if err != nil {
		res.Result, res.Err = ResultRejected, err
		return res, risk.ApprovedOrder{}
	}

	if e.cfg.Mode == config.ModeDryRun {
		res.Result = ResultDryRun
		log.Info().Str("symbol", symbol).Int("qty", approved.Qty).Float64("notional", approved.Notional).Msg("dry run buy")
		return res, approved
	}

	orderRef, err := e.broker.PlaceOrder(ctx, e.buildOrder(symbol, approved))
	if err != nil {
		res.Result, res.Err = ResultOrderFailed, err
		return res, approved
	}

	res.Result = ResultOrderSubmitted
	res.Order = &orderRef
	(*account).BuyingPower -= approved.Notional
	e.state.RecordBuy(symbol, e.now().UTC(), approved.Notional)
	e.state.AddOpenOrder(state.OpenOrder{
		ClientOrderID: orderRef.ClientOrderID,
		OrderID:       orderRef.ID,
		Symbol:        symbol,
		Status:        orderRef.Status,
	})
	log.Info().Str("symbol", symbol).Int("qty", approved.Qty).Float64("notional", approved.Notional).Str("order_id", orderRef.ID).Str("client_order_id", orderRef.ClientOrderID).Msg("order submitted")
	return res, approved
}

func (e *Engine) marketOpen(ctx context.Context, log zerolog.Logger) bool {
	clock, err := e.broker.Clock(ctx)
	if err != nil {
		log.Error().Err(err).Msg("market clock unavailable, treating market as closed")
		return false
	}
	return clock.IsOpen
}

func (e *Engine) record(cycleID string, res SymbolResult, approved risk.ApprovedOrder) {
	d := res.Decision
	entry := Decision{
		CycleID:   cycleID,
		Timestamp: e.now().UTC(),
		Symbol:    d.Symbol,
		Price:     d.Price,
		SMA:       d.SMA,
		SPYRSI:    d.Market.SPYRSI,
		VIX:       d.Market.VIX,
		Action:    d.Action,
		Reason:    d.Reason,
		Result:    res.Result,
		Qty:       approved.Qty,
		Notional:  approved.Notional,
	}
	if res.Err != nil {
		if res.Result == ResultRejected {
			entry.RejectReason = res.Err.Error()
		} else {
			entry.Error = res.Err.Error()
		}
	}
	if res.Order != nil {
		entry.OrderID = res.Order.ID
		entry.ClientOrderID = res.Order.ClientOrderID
	}
	e.decisions.Append(entry)

	metrics.EvaluationsTotal.WithLabelValues(d.Symbol, string(d.Action), string(d.Reason)).Inc()
	if d.Action == strategy.Buy {
		metrics.OrdersTotal.WithLabelValues(d.Symbol, res.Result).Inc()
	}
}

func (e *Engine) finish(log zerolog.Logger, result *CycleResult, outcome string) {
	e.state.SetLastCycleTime(e.now().UTC())
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	log.Info().Int("orders_placed", result.OrdersPlaced).Int("symbols", len(e.cfg.Symbols)).Str("outcome", outcome).Msg("dca cycle complete")
}

func (e *Engine) buildOrder(symbol string, approved risk.ApprovedOrder) broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:        symbol,
		Qty:           approved.Qty,
		Notional:      notionalFor(approved),
		Side:          alpaca.Buy,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: e.nextClientOrderID(),
	}
}

func notionalFor(approved risk.ApprovedOrder) float64 {
	if approved.Qty > 0 {
		return 0
	}
	return approved.Notional
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}
