package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dca_evaluations_total", Help: "Signal evaluations by outcome"},
		[]string{"symbol", "action", "reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dca_orders_total", Help: "Buy attempts by result"},
		[]string{"symbol", "result"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dca_cycles_total", Help: "DCA cycles run"},
		[]string{"result"},
	)
	MarketPaused = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dca_market_paused", Help: "1 while the regime filter blocks buying"},
	)
	SPYRSI = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dca_spy_rsi", Help: "Benchmark RSI at the last cycle"},
	)
	VIX = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dca_vix", Help: "VIX level at the last cycle"},
	)
)

func init() {
	prometheus.MustRegister(EvaluationsTotal, OrdersTotal, CyclesTotal, MarketPaused, SPYRSI, VIX)
}

// Serve exposes /metrics on addr in the background. A failed bind is logged,
// not fatal.
func Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}
