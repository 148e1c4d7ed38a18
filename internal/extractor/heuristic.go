package extractor

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/formatter"
	"github.com/marcosevegrand/dealpulse/internal/retailer"
)

// DefaultPricePatterns are tried in order to locate the price element
var DefaultPricePatterns = []string{
	`meta[property="product:price:amount"]`,
	`meta[property="og:price:amount"]`,
	`meta[itemprop="price"]`,
	`[itemprop="price"]`,
	`[data-testid*="price"]`,
	`.a-price .a-offscreen`,
	`.a-price-whole`,
	`.product-price`,
	`.price-current`,
	`.sale-price`,
	`[class*="price"]`,
	`[id*="price"]`,
}

// DefaultTitlePatterns are tried in order to locate the product name
var DefaultTitlePatterns = []string{
	`meta[property="og:title"]`,
	`[itemprop="name"]`,
	`h1.product-title`,
	`h1.product-name`,
	`[data-testid*="product-title"]`,
	`[class*="product-title"]`,
	`[class*="product-name"]`,
	`[id*="product-title"]`,
	`h1`,
	`meta[name="title"]`,
	`title`,
}

var currencyMetaPatterns = []string{
	`meta[property="product:price:currency"]`,
	`meta[property="og:price:currency"]`,
	`meta[itemprop="priceCurrency"]`,
}

// class/id tokens that mark an old or struck-through price
var wasPriceMarkers = map[string]bool{
	"was": true, "old": true, "strike": true, "strikethrough": true, "list": true,
	"compare": true, "rrp": true, "original": true, "regular": true,
}

// HeuristicStrategy locates price and title elements with ordered CSS
// selector patterns
type HeuristicStrategy struct {
	PricePatterns   []string
	TitlePatterns   []string
	DefaultCurrency string
	// MaxTitleLength filters out page-wide text blocks picked up by broad
	// patterns
	MaxTitleLength int
}

// NewHeuristicStrategy builds a strategy with the default patterns preceded
// by any extra patterns
func NewHeuristicStrategy(extraPrice, extraTitle []string, defaultCurrency string) *HeuristicStrategy {
	return &HeuristicStrategy{
		PricePatterns:   append(append([]string{}, extraPrice...), DefaultPricePatterns...),
		TitlePatterns:   append(append([]string{}, extraTitle...), DefaultTitlePatterns...),
		DefaultCurrency: defaultCurrency,
		MaxTitleLength:  300,
	}
}

func (s *HeuristicStrategy) Name() string {
	return "heuristic_markup"
}

func (s *HeuristicStrategy) Supports(url string) bool {
	return retailer.IsValidURL(url)
}

func (s *HeuristicStrategy) Extract(doc *goquery.Document) (*ProductInfo, error) {
	price, currency, priceErr := s.findPrice(doc)
	name := s.findTitle(doc)

	var missing []string
	if priceErr != nil {
		missing = append(missing, "price")
	}
	if name == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		err := newError(s.Name(), ReasonNoMatchingSelector, "no pattern matched %s", strings.Join(missing, " and "))
		if priceErr != nil && !errors.Is(priceErr, ErrNoPrice) {
			err.Err = errors.Join(err.Err, priceErr)
		}
		return nil, err
	}

	if c := s.findCurrency(doc); c != "" {
		currency = c
	}
	if currency == "" {
		currency = s.DefaultCurrency
	}

	return &ProductInfo{
		Name:         name,
		Price:        price,
		Currency:     currency,
		StrategyUsed: s.Name(),
	}, nil
}

func (s *HeuristicStrategy) findPrice(doc *goquery.Document) (decimal.Decimal, string, error) {
	patterns := s.PricePatterns
	if len(patterns) == 0 {
		patterns = DefaultPricePatterns
	}

	lastErr := ErrNoPrice
	for _, pattern := range patterns {
		var (
			price    decimal.Decimal
			currency string
			found    bool
		)
		doc.Find(pattern).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if isWasPrice(el) {
				return true
			}
			p, c, err := ParsePrice(elementValue(el))
			if err != nil {
				if errors.Is(err, ErrImplausiblePrice) {
					lastErr = err
				}
				return true
			}
			price, currency, found = p, c, true
			return false
		})
		if found {
			return price, currency, nil
		}
	}

	return decimal.Zero, "", lastErr
}

func (s *HeuristicStrategy) findTitle(doc *goquery.Document) string {
	patterns := s.TitlePatterns
	if len(patterns) == 0 {
		patterns = DefaultTitlePatterns
	}
	maxLen := s.MaxTitleLength
	if maxLen <= 0 {
		maxLen = 300
	}

	for _, pattern := range patterns {
		el := doc.Find(pattern).First()
		if el.Length() == 0 {
			continue
		}
		raw := strings.TrimSpace(elementValue(el))
		if len(raw) <= 3 || len(raw) > maxLen {
			continue
		}
		if name := formatter.CleanName(raw); name != "" {
			return name
		}
	}
	return ""
}

func (s *HeuristicStrategy) findCurrency(doc *goquery.Document) string {
	for _, pattern := range currencyMetaPatterns {
		if v, ok := doc.Find(pattern).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return ""
}

func elementValue(el *goquery.Selection) string {
	if goquery.NodeName(el) == "meta" {
		v, _ := el.Attr("content")
		return v
	}
	if v, ok := el.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return el.Text()
}

func isWasPrice(el *goquery.Selection) bool {
	name := goquery.NodeName(el)
	if name == "del" || name == "s" || name == "strike" {
		return true
	}
	if el.ParentsFiltered("del, s, strike").Length() > 0 {
		return true
	}

	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	tokens := strings.FieldsFunc(strings.ToLower(class+" "+id), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	for _, token := range tokens {
		if wasPriceMarkers[token] {
			return true
		}
	}
	return false
}
