package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/formatter"
	"github.com/marcosevegrand/dealpulse/internal/retailer"
)

// StructuredDataStrategy reads embedded schema.org Product metadata, JSON-LD
// first and microdata second
type StructuredDataStrategy struct {
	// Hosts restricts the strategy to matching retailers; empty means any
	// http(s) URL
	Hosts           []string
	DefaultCurrency string
}

func (s *StructuredDataStrategy) Name() string {
	return "structured_data"
}

func (s *StructuredDataStrategy) Supports(url string) bool {
	if !retailer.IsValidURL(url) {
		return false
	}
	return len(s.Hosts) == 0 || retailer.MatchesHost(url, s.Hosts)
}

func (s *StructuredDataStrategy) Extract(doc *goquery.Document) (*ProductInfo, error) {
	var (
		result     *ProductInfo
		sawProduct bool
		malformed  int
		lastErr    error
	)

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, block *goquery.Selection) bool {
		raw := strings.TrimSpace(block.Text())
		if raw == "" {
			return true
		}

		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var data any
		if err := dec.Decode(&data); err != nil {
			malformed++
			if !sawProduct {
				lastErr = fmt.Errorf("invalid JSON-LD block %d: %w", i, err)
			}
			return true
		}

		for _, product := range collectProducts(data) {
			sawProduct = true
			info, err := s.fromJSONLD(product)
			if err != nil {
				lastErr = err
				continue
			}
			result = info
			return false
		}
		return true
	})
	if result != nil {
		return result, nil
	}

	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).EachWithBreak(func(_ int, scope *goquery.Selection) bool {
		sawProduct = true
		info, err := s.fromMicrodata(scope)
		if err != nil {
			lastErr = err
			return true
		}
		result = info
		return false
	})
	if result != nil {
		return result, nil
	}

	switch {
	case sawProduct:
		return nil, &ExtractionError{Reason: ReasonParseFailure, Strategy: s.Name(), Err: lastErr}
	case malformed > 0:
		return nil, &ExtractionError{Reason: ReasonMalformedMarkup, Strategy: s.Name(), Err: lastErr}
	default:
		return nil, newError(s.Name(), ReasonNoStructuredData, "")
	}
}

func (s *StructuredDataStrategy) fromJSONLD(item map[string]any) (*ProductInfo, error) {
	name := formatter.CleanName(firstString(item, "name", "title"))
	if name == "" {
		return nil, errors.New("product block has no name")
	}

	for _, offer := range asObjects(item["offers"]) {
		price, currency, err := offerPrice(offer)
		if err != nil {
			continue
		}
		if currency == "" {
			currency = s.DefaultCurrency
		}
		return &ProductInfo{
			Name:         name,
			Price:        price,
			Currency:     currency,
			Availability: normalizeAvailability(firstString(offer, "availability")),
			StrategyUsed: s.Name(),
		}, nil
	}

	return nil, fmt.Errorf("product %q has no numeric offer price", name)
}

func offerPrice(offer map[string]any) (decimal.Decimal, string, error) {
	currency := strings.ToUpper(firstString(offer, "priceCurrency"))

	for _, key := range []string{"price", "lowPrice", "highPrice"} {
		if v, ok := offer[key]; ok {
			price, detected, err := jsonPrice(v)
			if err == nil {
				if currency == "" {
					currency = detected
				}
				return price, currency, nil
			}
		}
	}

	for _, ps := range asObjects(offer["priceSpecification"]) {
		if v, ok := ps["price"]; ok {
			price, detected, err := jsonPrice(v)
			if err != nil {
				continue
			}
			if currency == "" {
				currency = strings.ToUpper(firstString(ps, "priceCurrency"))
			}
			if currency == "" {
				currency = detected
			}
			return price, currency, nil
		}
	}

	return decimal.Zero, "", ErrNoPrice
}

func jsonPrice(v any) (decimal.Decimal, string, error) {
	switch t := v.(type) {
	case json.Number:
		return ParsePrice(t.String())
	case string:
		return ParsePrice(t)
	case []any:
		if len(t) > 0 {
			return jsonPrice(t[0])
		}
	}
	return decimal.Zero, "", ErrNoPrice
}

func (s *StructuredDataStrategy) fromMicrodata(scope *goquery.Selection) (*ProductInfo, error) {
	name := formatter.CleanName(ownProp(scope, "name"))
	if name == "" {
		return nil, errors.New("microdata product has no name")
	}

	var (
		price    decimal.Decimal
		currency string
		found    bool
	)
	for _, prop := range []string{"price", "lowPrice"} {
		scope.Find(`[itemprop="` + prop + `"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			p, c, err := ParsePrice(propValue(el))
			if err != nil {
				return true
			}
			price, currency, found = p, c, true
			return false
		})
		if found {
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("microdata product %q has no numeric price", name)
	}

	if code := strings.ToUpper(propValue(scope.Find(`[itemprop="priceCurrency"]`).First())); code != "" {
		currency = code
	}
	if currency == "" {
		currency = s.DefaultCurrency
	}

	return &ProductInfo{
		Name:         name,
		Price:        price,
		Currency:     currency,
		Availability: normalizeAvailability(propValue(scope.Find(`[itemprop="availability"]`).First())),
		StrategyUsed: s.Name(),
	}, nil
}

// collectProducts walks a decoded JSON-LD value and returns every object
// typed as a Product, including those nested in @graph or mainEntity
func collectProducts(v any) []map[string]any {
	var out []map[string]any

	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, collectProducts(item)...)
		}
	case map[string]any:
		if isProductType(t["@type"]) {
			out = append(out, t)
		}
		for _, key := range []string{"@graph", "mainEntity", "itemListElement", "item"} {
			if nested, ok := t[key]; ok {
				out = append(out, collectProducts(nested)...)
			}
		}
	}

	return out
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(t, "Product") && !strings.Contains(t, "ProductGroup")
	case []any:
		for _, item := range t {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

func asObjects(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch t := m[key].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case json.Number:
			return t.String()
		case []any:
			if len(t) > 0 {
				if s, ok := t[0].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		case map[string]any:
			// e.g. "availability": {"@id": "https://schema.org/InStock"}
			if s := firstString(t, "@id", "name"); s != "" {
				return s
			}
		}
	}
	return ""
}

// ownProp returns the value of the first itemprop element that belongs to
// scope itself rather than to a nested item such as a brand or offer
func ownProp(scope *goquery.Selection, prop string) string {
	var value string
	scope.Find(`[itemprop="` + prop + `"]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		owner := el.Parent().Closest("[itemscope]")
		if owner.Length() == 0 || owner.Get(0) != scope.Get(0) {
			return true
		}
		value = propValue(el)
		return value == ""
	})
	return value
}

func propValue(el *goquery.Selection) string {
	if el.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "href", "value"} {
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(el.Text())
}

func normalizeAvailability(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return AvailabilityUnknown
	}
	if i := strings.LastIndexAny(v, "/:"); i >= 0 {
		v = v[i+1:]
	}

	switch strings.ToLower(v) {
	case "instock", "in stock", "limitedavailability", "onlineonly", "instoreonly":
		return AvailabilityInStock
	case "outofstock", "out of stock", "soldout", "discontinued":
		return AvailabilityOutOfStock
	case "preorder", "presale", "backorder":
		return AvailabilityPreOrder
	}
	return v
}
