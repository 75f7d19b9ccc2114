package md

import "errors"

var ErrNotEnoughData = errors.New("not enough data")

// SMA is the mean of the last n values.
func SMA(values []float64, n int) (float64, error) {
	if n <= 0 {
		return 0, errors.New("window must be positive")
	}
	if len(values) < n {
		return 0, ErrNotEnoughData
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), nil
}

// RSI averages the last period gains and losses without smoothing. A window
// with no losses reads 100.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return 0, ErrNotEnoughData
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100, nil
	}
	rs := gain / loss
	return 100 - 100/(1+rs), nil
}
