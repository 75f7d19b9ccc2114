package metrics

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve("127.0.0.1:0", zerolog.Nop())
	defer srv.Close()

	EvaluationsTotal.WithLabelValues("NVDA", "BUY", "eligible").Inc()
	MarketPaused.Set(1)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{"dca_evaluations_total": false, "dca_market_paused": false}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeLogsBindFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	out := &syncBuffer{}
	srv := Serve(listener.Addr().String(), zerolog.New(out))
	defer srv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), "metrics server failed") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected bind failure to be logged, got %q", out.String())
}
