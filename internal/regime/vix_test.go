package regime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestScrapeSourceReadsSelector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div class="quote"><span class="last">1,018.42</span></div><span class="last">9</span></body></html>`)
	}))
	defer server.Close()

	source := ScrapeSource{URL: server.URL, Selector: "div.quote span.last", Timeout: time.Second}
	vix, err := source.VIX(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vix != 1018.42 {
		t.Fatalf("expected 1018.42, got %.2f", vix)
	}
}

func TestScrapeSourceMissingSelector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	}))
	defer server.Close()

	source := ScrapeSource{URL: server.URL, Selector: "span.last"}
	if _, err := source.VIX(context.Background()); err == nil {
		t.Fatalf("expected error when quote is missing")
	}
}

func TestScrapeSourceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := ScrapeSource{URL: server.URL, Selector: "span.last"}
	if _, err := source.VIX(context.Background()); err == nil {
		t.Fatalf("expected error for 503 response")
	}
}

func TestParseLevelRejectsText(t *testing.T) {
	if _, err := parseLevel("n/a"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestScrapeSourceStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	source := ScrapeSource{URL: server.URL, Selector: "span.last", Timeout: 10 * time.Second}
	started := time.Now()
	if _, err := source.VIX(ctx); err == nil {
		t.Fatalf("expected error after cancellation")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("scrape ignored cancellation for %s", elapsed)
	}
}
