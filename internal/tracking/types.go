// Package tracking defines the records the price engine reads and writes and
// the contracts it consumes from its storage and notification collaborators.
package tracking

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrackedProduct is a product a user asked to watch
type TrackedProduct struct {
	ID           string           `json:"id" yaml:"id"`
	URL          string           `json:"url" yaml:"url"`
	Name         string           `json:"name,omitempty" yaml:"name,omitempty"`
	Recipient    string           `json:"recipient" yaml:"recipient"`
	LastChecked  time.Time        `json:"last_checked,omitempty" yaml:"lastChecked,omitempty"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty" yaml:"currentPrice,omitempty"`
	Currency     string           `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// NeverChecked reports whether the product has not been refreshed yet
func (p TrackedProduct) NeverChecked() bool {
	return p.LastChecked.IsZero()
}

// PriceObservation is one immutable price sample. Seq orders samples that
// share an ObservedAt.
type PriceObservation struct {
	ProductID  string          `json:"product_id"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	ObservedAt time.Time       `json:"observed_at"`
	Seq        int64           `json:"seq"`
}

// Anomaly explains why an evaluation was skipped
type Anomaly string

const (
	AnomalyNone                   Anomaly = ""
	AnomalyInsufficientSamples    Anomaly = "insufficient_samples"
	AnomalyZeroOrNegativeBaseline Anomaly = "zero_or_negative_baseline"
)

// AlertDecision is the outcome of comparing one observation with its baseline
type AlertDecision struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name,omitempty"`
	URL           string          `json:"url,omitempty"`
	Triggered     bool            `json:"triggered"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	BaselinePrice decimal.Decimal `json:"baseline_price"`
	DropRatio     decimal.Decimal `json:"drop_ratio"`
	Currency      string          `json:"currency,omitempty"`
	Samples       int             `json:"samples"`
	ObservedAt    time.Time       `json:"observed_at"`
	Skipped       bool            `json:"skipped,omitempty"`
	Anomaly       Anomaly         `json:"anomaly,omitempty"`
}

// Savings is the absolute difference between baseline and current price
func (d AlertDecision) Savings() decimal.Decimal {
	if d.Skipped {
		return decimal.Zero
	}
	return d.BaselinePrice.Sub(d.CurrentPrice)
}

// DedupKey identifies the observation a decision was made for
func (d AlertDecision) DedupKey() string {
	return d.ProductID + "@" + d.ObservedAt.UTC().Format(time.RFC3339Nano)
}
