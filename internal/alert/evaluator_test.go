package alert

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func obs(price string, at time.Time) tracking.PriceObservation {
	return tracking.PriceObservation{
		ProductID:  "p1",
		Price:      decimal.RequireFromString(price),
		Currency:   "USD",
		ObservedAt: at,
	}
}

func newEvaluator() *Evaluator {
	return NewEvaluator(DefaultConfig(), zerolog.Nop())
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		baseline  string
		samples   int
		current   string
		triggered bool
		ratio     string
		anomaly   tracking.Anomaly
	}{
		{"fifteen percent drop", "100.00", 5, "85.00", true, "0.1500", tracking.AnomalyNone},
		{"five percent drop", "100.00", 5, "95.00", false, "0.0500", tracking.AnomalyNone},
		{"exactly threshold", "100.00", 5, "90.00", false, "0.1000", tracking.AnomalyNone},
		{"price rise", "100.00", 5, "130.00", false, "-0.3000", tracking.AnomalyNone},
		{"rounded ratio", "30.00", 3, "19.99", true, "0.3337", tracking.AnomalyNone},
		{"zero baseline", "0", 3, "10.00", false, "0", tracking.AnomalyZeroOrNegativeBaseline},
		{"negative baseline", "-5.00", 3, "10.00", false, "0", tracking.AnomalyZeroOrNegativeBaseline},
		{"too few samples", "100.00", 1, "50.00", false, "0", tracking.AnomalyInsufficientSamples},
	}

	e := newEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(Baseline{Mean: decimal.RequireFromString(tt.baseline), Samples: tt.samples}, decimal.RequireFromString(tt.current))
			assert.Equal(t, tt.triggered, d.Triggered)
			assert.True(t, decimal.RequireFromString(tt.ratio).Equal(d.DropRatio), "ratio %s", d.DropRatio)
			assert.Equal(t, tt.anomaly, d.Anomaly)
			assert.Equal(t, tt.anomaly != tracking.AnomalyNone, d.Skipped)
		})
	}
}

func TestComputeBaseline(t *testing.T) {
	history := []tracking.PriceObservation{
		obs("500.00", t0.Add(-40*24*time.Hour)),
		obs("100.00", t0.Add(-10*24*time.Hour)),
		obs("110.00", t0.Add(-5*24*time.Hour)),
		obs("90.00", t0),
		obs("1.00", t0.Add(time.Hour)),
	}

	b := ComputeBaseline(history, t0, DefaultWindow)
	assert.Equal(t, 3, b.Samples)
	assert.Equal(t, "100.00", b.Mean.StringFixed(2))

	empty := ComputeBaseline(nil, t0, DefaultWindow)
	assert.Equal(t, 0, empty.Samples)
	assert.True(t, empty.Mean.IsZero())
}

func TestComputeBaseline_Rounds(t *testing.T) {
	history := []tracking.PriceObservation{
		obs("10.00", t0.Add(-2*time.Hour)),
		obs("10.00", t0.Add(-time.Hour)),
		obs("10.02", t0),
	}
	b := ComputeBaseline(history, t0, DefaultWindow)
	assert.Equal(t, "10.0100", b.Mean.StringFixed(4))
}

func TestEvaluate(t *testing.T) {
	product := tracking.TrackedProduct{ID: "p1", Name: "Kettle", URL: "https://shop.example.com/kettle"}
	current := obs("70.00", t0)
	history := []tracking.PriceObservation{
		obs("100.00", t0.Add(-72*time.Hour)),
		obs("100.00", t0.Add(-48*time.Hour)),
		obs("100.00", t0.Add(-24*time.Hour)),
		current,
	}

	d := newEvaluator().Evaluate(product, current, history)
	require.False(t, d.Skipped)
	assert.True(t, d.Triggered)
	assert.Equal(t, "92.50", d.BaselinePrice.StringFixed(2))
	assert.Equal(t, "0.2432", d.DropRatio.StringFixed(4))
	assert.Equal(t, "p1", d.ProductID)
	assert.Equal(t, "Kettle", d.ProductName)
	assert.Equal(t, "USD", d.Currency)
	assert.Equal(t, t0, d.ObservedAt)
	assert.Equal(t, "22.50", d.Savings().StringFixed(2))
}

func TestEvaluate_FirstObservationIsSkipped(t *testing.T) {
	current := obs("70.00", t0)
	d := newEvaluator().Evaluate(tracking.TrackedProduct{ID: "p1"}, current, []tracking.PriceObservation{current})
	assert.True(t, d.Skipped)
	assert.False(t, d.Triggered)
	assert.Equal(t, tracking.AnomalyInsufficientSamples, d.Anomaly)
	assert.True(t, d.Savings().IsZero())
}

func TestEvaluate_SkipLogLevels(t *testing.T) {
	var buf bytes.Buffer
	e := NewEvaluator(DefaultConfig(), zerolog.New(&buf))

	current := obs("0.00", t0)
	history := []tracking.PriceObservation{
		obs("0.00", t0.Add(-48*time.Hour)),
		obs("0.00", t0.Add(-24*time.Hour)),
		current,
	}
	d := e.Evaluate(tracking.TrackedProduct{ID: "p1"}, current, history)
	require.Equal(t, tracking.AnomalyZeroOrNegativeBaseline, d.Anomaly)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), string(tracking.AnomalyZeroOrNegativeBaseline))

	buf.Reset()
	first := obs("70.00", t0)
	d = e.Evaluate(tracking.TrackedProduct{ID: "p1"}, first, []tracking.PriceObservation{first})
	require.Equal(t, tracking.AnomalyInsufficientSamples, d.Anomaly)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestEvaluate_Deterministic(t *testing.T) {
	current := obs("80.00", t0)
	history := []tracking.PriceObservation{obs("100.00", t0.Add(-time.Hour)), current}
	e := newEvaluator()

	first := e.Evaluate(tracking.TrackedProduct{ID: "p1"}, current, history)
	second := e.Evaluate(tracking.TrackedProduct{ID: "p1"}, current, history)
	assert.Equal(t, first, second)
}

func TestNewEvaluator_Defaults(t *testing.T) {
	e := NewEvaluator(Config{}, zerolog.Nop())
	assert.Equal(t, DefaultWindow, e.Window())
	assert.True(t, DefaultThreshold.Equal(e.cfg.Threshold))
	assert.Equal(t, DefaultMinSamples, e.cfg.MinSamples)
}
