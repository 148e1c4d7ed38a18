package alert

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// Config holds the evaluator settings
type Config struct {
	Threshold  decimal.Decimal
	Window     time.Duration
	MinSamples int
}

// DefaultConfig returns the default evaluator settings
func DefaultConfig() Config {
	return Config{
		Threshold:  DefaultThreshold,
		Window:     DefaultWindow,
		MinSamples: DefaultMinSamples,
	}
}

// Evaluator compares observations against their baseline. It holds no state
// between calls.
type Evaluator struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator, filling unset fields from DefaultConfig
func NewEvaluator(cfg Config, logger zerolog.Logger) *Evaluator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Threshold.IsZero() {
		cfg.Threshold = def.Threshold
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// Window returns the trailing window baselines are computed over
func (e *Evaluator) Window() time.Duration {
	return e.cfg.Window
}

// Evaluate decides whether current is a material drop for product. history
// must contain current itself; it is counted towards the baseline.
func (e *Evaluator) Evaluate(product tracking.TrackedProduct, current tracking.PriceObservation, history []tracking.PriceObservation) tracking.AlertDecision {
	baseline := ComputeBaseline(history, current.ObservedAt, e.cfg.Window)

	decision := e.Decide(baseline, current.Price)
	decision.ProductID = product.ID
	decision.ProductName = product.Name
	decision.URL = product.URL
	decision.Currency = current.Currency
	decision.ObservedAt = current.ObservedAt

	if decision.Skipped {
		level := zerolog.DebugLevel
		if decision.Anomaly == tracking.AnomalyZeroOrNegativeBaseline {
			// a non-positive baseline means bad stored data, not a young product
			level = zerolog.WarnLevel
		}
		e.logger.WithLevel(level).
			Str("product_id", product.ID).
			Str("anomaly", string(decision.Anomaly)).
			Int("samples", decision.Samples).
			Str("baseline", decision.BaselinePrice.StringFixed(2)).
			Msg("evaluation skipped")
	}
	return decision
}

// Decide applies the drop rule to a precomputed baseline
func (e *Evaluator) Decide(baseline Baseline, current decimal.Decimal) tracking.AlertDecision {
	decision := tracking.AlertDecision{
		CurrentPrice:  current,
		BaselinePrice: baseline.Mean,
		DropRatio:     decimal.Zero,
		Samples:       baseline.Samples,
	}

	if baseline.Samples < e.cfg.MinSamples {
		decision.Skipped = true
		decision.Anomaly = tracking.AnomalyInsufficientSamples
		return decision
	}

	if !baseline.Mean.IsPositive() {
		decision.Skipped = true
		decision.Anomaly = tracking.AnomalyZeroOrNegativeBaseline
		return decision
	}

	decision.DropRatio = baseline.Mean.Sub(current).Div(baseline.Mean).Round(4)
	decision.Triggered = current.LessThan(baseline.Mean) && decision.DropRatio.GreaterThan(e.cfg.Threshold)
	return decision
}
