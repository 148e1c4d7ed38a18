// Package extractor turns retailer pages into normalized product records
// using an ordered chain of pluggable strategies.
package extractor

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// Availability values follow the schema.org ItemAvailability names
const (
	AvailabilityUnknown    = ""
	AvailabilityInStock    = "InStock"
	AvailabilityOutOfStock = "OutOfStock"
	AvailabilityPreOrder   = "PreOrder"
)

// ProductInfo is the normalized result of extracting one page
type ProductInfo struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Availability string          `json:"availability,omitempty"`
	URL          string          `json:"url"`
	StrategyUsed string          `json:"strategy"`
}

// Strategy is a pluggable extraction algorithm for one class of page markup
type Strategy interface {
	Name() string
	Supports(url string) bool
	Extract(doc *goquery.Document) (*ProductInfo, error)
}

// Reason classifies an extraction failure
type Reason string

const (
	ReasonNoStructuredData   Reason = "no_structured_data"
	ReasonMalformedMarkup    Reason = "malformed_markup"
	ReasonNoMatchingSelector Reason = "no_matching_selector"
	ReasonParseFailure       Reason = "parse_failure"
	ReasonUnsupported        Reason = "unsupported"
)

// ExtractionError reports why a strategy (or the whole chain) produced no
// product
type ExtractionError struct {
	Reason   Reason
	Strategy string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Strategy, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func newError(strategy string, reason Reason, format string, args ...any) *ExtractionError {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &ExtractionError{Reason: reason, Strategy: strategy, Err: err}
}
