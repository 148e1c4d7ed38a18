// Package alert turns price observations into alert decisions.
package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

const (
	DefaultWindow     = 30 * 24 * time.Hour
	DefaultMinSamples = 2
)

// DefaultThreshold is the minimum drop ratio that raises an alert
var DefaultThreshold = decimal.RequireFromString("0.10")

// Baseline is the trailing mean of a product's observations
type Baseline struct {
	Mean    decimal.Decimal
	Samples int
}

// ComputeBaseline averages the observations observed within window up to and
// including asOf. Later observations are ignored so that re-evaluating an old
// sample gives the same result.
func ComputeBaseline(observations []tracking.PriceObservation, asOf time.Time, window time.Duration) Baseline {
	from := asOf.Add(-window)

	sum := decimal.Zero
	n := 0
	for _, obs := range observations {
		if obs.ObservedAt.Before(from) || obs.ObservedAt.After(asOf) {
			continue
		}
		sum = sum.Add(obs.Price)
		n++
	}

	if n == 0 {
		return Baseline{Mean: decimal.Zero}
	}
	return Baseline{
		Mean:    sum.Div(decimal.NewFromInt(int64(n))).Round(2),
		Samples: n,
	}
}
