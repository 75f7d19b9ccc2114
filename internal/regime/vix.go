package regime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var errNoQuote = errors.New("vix quote not found")

// ScrapeSource reads the VIX level from the first element matching Selector
// on a public quote page.
type ScrapeSource struct {
	URL      string
	Selector string
	Timeout  time.Duration
}

func (s ScrapeSource) VIX(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
		colly.UserAgent(defaultUserAgent),
		colly.StdlibContext(ctx),
	)
	if s.Timeout > 0 {
		c.SetRequestTimeout(s.Timeout)
	}

	var (
		text     string
		found    bool
		fetchErr error
	)
	c.OnHTML(s.Selector, func(e *colly.HTMLElement) {
		if found {
			return
		}
		text = strings.TrimSpace(e.Text)
		found = true
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(s.URL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr != nil {
		return 0, fmt.Errorf("scrape %s: %w", s.URL, fetchErr)
	}
	if !found {
		return 0, fmt.Errorf("scrape %s: %w", s.URL, errNoQuote)
	}
	return parseLevel(text)
}

type StaticSource float64

func (s StaticSource) VIX(context.Context) (float64, error) {
	return float64(s), nil
}

func parseLevel(text string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse vix %q: %w", text, err)
	}
	return value, nil
}
