package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
)

type Reason string

const (
	ReasonEligible     Reason = "eligible"
	ReasonMomentumFail Reason = "momentum_fail"
	ReasonMarketPaused Reason = "market_paused"
)

var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrInvalidMarketState = errors.New("invalid market state")
)

// Universe is the default watchlist: high-growth names, no mega-caps.
var Universe = []string{"NVDA", "TSLA", "AMD", "QBTS", "RKLB"}

// MarketState is the regime snapshot shared by every symbol in a cycle.
type MarketState struct {
	SPYRSI float64   `json:"spy_rsi"`
	VIX    float64   `json:"vix"`
	AsOf   time.Time `json:"as_of"`
}

func (m MarketState) Validate() error {
	if math.IsNaN(m.SPYRSI) || math.IsInf(m.SPYRSI, 0) || m.SPYRSI < 0 || m.SPYRSI > 100 {
		return fmt.Errorf("%w: spy rsi %v", ErrInvalidMarketState, m.SPYRSI)
	}
	if math.IsNaN(m.VIX) || math.IsInf(m.VIX, 0) || m.VIX < 0 {
		return fmt.Errorf("%w: vix %v", ErrInvalidMarketState, m.VIX)
	}
	return nil
}

// Paused reports whether either gauge is strictly above its limit.
func (m MarketState) Paused(rsiLimit, vixLimit float64) bool {
	return m.SPYRSI > rsiLimit || m.VIX > vixLimit
}

type Input struct {
	Symbol string
	Price  float64
	Closes []float64
	Market MarketState
}

type Decision struct {
	Symbol string
	Action Action
	Reason Reason
	Price  float64
	SMA    float64
	Market MarketState
}

type Strategy interface {
	Evaluate(in Input) (Decision, error)
}
