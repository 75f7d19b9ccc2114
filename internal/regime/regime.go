// Package regime builds the market-wide risk snapshot checked before any
// symbol is bought: benchmark RSI and the VIX level.
package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/md"
	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/strategy"
	"github.com/rs/zerolog"
)

const (
	DefaultBenchmark = "SPY"
	DefaultRSIPeriod = 14
)

type CloseSource interface {
	DailyCloses(ctx context.Context, symbol string, n int) ([]float64, error)
}

type VIXSource interface {
	VIX(ctx context.Context) (float64, error)
}

type Provider struct {
	closes    CloseSource
	vix       VIXSource
	benchmark string
	rsiPeriod int
	log       zerolog.Logger
	now       func() time.Time
}

func NewProvider(closes CloseSource, vix VIXSource, benchmark string, rsiPeriod int, log zerolog.Logger) *Provider {
	if benchmark == "" {
		benchmark = DefaultBenchmark
	}
	if rsiPeriod <= 0 {
		rsiPeriod = DefaultRSIPeriod
	}
	return &Provider{
		closes:    closes,
		vix:       vix,
		benchmark: benchmark,
		rsiPeriod: rsiPeriod,
		log:       log,
		now:       time.Now,
	}
}

// Current fails with strategy.ErrInvalidMarketState when either gauge cannot
// be read; it never substitutes a neutral value.
func (p *Provider) Current(ctx context.Context) (strategy.MarketState, error) {
	closes, err := p.closes.DailyCloses(ctx, p.benchmark, p.rsiPeriod+1)
	if err != nil {
		return strategy.MarketState{}, fmt.Errorf("%w: %s closes: %w", strategy.ErrInvalidMarketState, p.benchmark, err)
	}
	rsi, err := md.RSI(closes, p.rsiPeriod)
	if err != nil {
		return strategy.MarketState{}, fmt.Errorf("%w: %s rsi from %d closes: %w", strategy.ErrInvalidMarketState, p.benchmark, len(closes), err)
	}

	vix, err := p.vix.VIX(ctx)
	if err != nil {
		return strategy.MarketState{}, fmt.Errorf("%w: vix: %w", strategy.ErrInvalidMarketState, err)
	}

	state := strategy.MarketState{SPYRSI: rsi, VIX: vix, AsOf: p.now().UTC()}
	if err := state.Validate(); err != nil {
		return strategy.MarketState{}, err
	}
	p.log.Info().Str("benchmark", p.benchmark).Float64("rsi", rsi).Float64("vix", vix).Msg("market state")
	return state, nil
}
