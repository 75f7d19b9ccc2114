package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/chris-cpz/strategy-growth-momentum-dca/internal/strategy"
	"github.com/rs/zerolog"
)

// Decision is one NDJSON line: what the evaluator said about a symbol in a
// cycle and what the runner did with it.
type Decision struct {
	RunID         string          `json:"run_id"`
	CycleID       string          `json:"cycle_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Symbol        string          `json:"symbol"`
	Price         float64         `json:"price,omitempty"`
	SMA           float64         `json:"sma,omitempty"`
	SPYRSI        float64         `json:"spy_rsi,omitempty"`
	VIX           float64         `json:"vix,omitempty"`
	Action        strategy.Action `json:"action,omitempty"`
	Reason        strategy.Reason `json:"reason,omitempty"`
	Result        string          `json:"result"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	Error         string          `json:"error,omitempty"`
	Qty           int             `json:"qty,omitempty"`
	Notional      float64         `json:"notional,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	log    zerolog.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, log zerolog.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log,
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal decision")
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error().Err(err).Msg("failed to write decision")
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error().Err(err).Msg("failed to flush decision log")
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
