package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/md"
)

const (
	DefaultSMAPeriod    = 20
	DefaultRSIThreshold = 75
	DefaultVIXThreshold = 25
)

var ErrInvalidPrice = errors.New("invalid price")

// Momentum buys a symbol only while it trades strictly above its SMA and the
// market regime is calm. The zero value uses the default thresholds.
type Momentum struct {
	SMAPeriod    int
	RSIThreshold float64
	VIXThreshold float64
}

func NewMomentum(smaPeriod int, rsiThreshold, vixThreshold float64) Momentum {
	return Momentum{
		SMAPeriod:    smaPeriod,
		RSIThreshold: rsiThreshold,
		VIXThreshold: vixThreshold,
	}
}

func (m Momentum) Evaluate(in Input) (Decision, error) {
	period := m.period()
	sma, err := md.SMA(in.Closes, period)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %s has %d closes, need %d", ErrInsufficientData, in.Symbol, len(in.Closes), period)
	}
	return m.Decide(in.Symbol, in.Price, sma, in.Market)
}

// Decide applies the rule to a precomputed SMA.
func (m Momentum) Decide(symbol string, price, sma float64, market MarketState) (Decision, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return Decision{}, fmt.Errorf("%w: %s price %v", ErrInvalidPrice, symbol, price)
	}
	if math.IsNaN(sma) || math.IsInf(sma, 0) || sma <= 0 {
		return Decision{}, fmt.Errorf("%w: %s sma %v", ErrInsufficientData, symbol, sma)
	}
	if err := market.Validate(); err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Symbol: symbol,
		Action: Hold,
		Price:  price,
		SMA:    sma,
		Market: market,
	}
	switch {
	case market.Paused(m.rsiThreshold(), m.vixThreshold()):
		decision.Reason = ReasonMarketPaused
	case price <= sma:
		decision.Reason = ReasonMomentumFail
	default:
		decision.Action = Buy
		decision.Reason = ReasonEligible
	}
	return decision, nil
}

func (m Momentum) period() int {
	if m.SMAPeriod <= 0 {
		return DefaultSMAPeriod
	}
	return m.SMAPeriod
}

func (m Momentum) rsiThreshold() float64 {
	if m.RSIThreshold <= 0 {
		return DefaultRSIThreshold
	}
	return m.RSIThreshold
}

func (m Momentum) vixThreshold() float64 {
	if m.VIXThreshold <= 0 {
		return DefaultVIXThreshold
	}
	return m.VIXThreshold
}
