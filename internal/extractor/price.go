package extractor

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPrice          = errors.New("no numeric price found")
	ErrImplausiblePrice = errors.New("price is zero or negative")
)

// a grouped form with space/apostrophe thousands separators is tried before
// the plain digit run
var numberRe = regexp.MustCompile(`([-−]\s*)?(\d{1,3}(?:[ \x{00a0}\x{202f}'’]\d{3})+(?:[.,]\d+)?|\d[\d.,]*)`)

var currencyCodeRe = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|INR|CAD|AUD|CHF|SEK|NOK|DKK|PLN|ZAR|BRL|MXN)\b`)

var symbolCurrencies = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"C$", "CAD"},
	{"A$", "AUD"},
	{"R$", "BRL"},
	{"$", "USD"},
	{"£", "GBP"},
	{"€", "EUR"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

// ParsePrice finds the first plausible price in text and returns it rounded
// to two fractional digits, with the currency detected from a symbol or ISO
// code ("" if none). Zero and negative amounts are rejected.
func ParsePrice(text string) (decimal.Decimal, string, error) {
	currency := DetectCurrency(text)

	matches := numberRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return decimal.Zero, currency, ErrNoPrice
	}

	sawImplausible := false
	for _, m := range matches {
		if m[1] != "" {
			sawImplausible = true
			continue
		}
		value, ok := normalizeNumber(m[2])
		if !ok {
			continue
		}
		if !value.IsPositive() {
			sawImplausible = true
			continue
		}
		return value, currency, nil
	}

	if sawImplausible {
		return decimal.Zero, currency, ErrImplausiblePrice
	}
	return decimal.Zero, currency, ErrNoPrice
}

// NormalizePrice is ParsePrice without the currency
func NormalizePrice(text string) (decimal.Decimal, error) {
	v, _, err := ParsePrice(text)
	return v, err
}

// DetectCurrency returns the ISO code for the first currency symbol or code
// in text
func DetectCurrency(text string) string {
	if m := currencyCodeRe.FindString(text); m != "" {
		return m
	}
	for _, sc := range symbolCurrencies {
		if strings.Contains(text, sc.symbol) {
			return sc.code
		}
	}
	return ""
}

func normalizeNumber(token string) (decimal.Decimal, bool) {
	token = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'', '’':
			return -1
		}
		return r
	}, token)
	token = strings.TrimRight(token, ".,")
	if token == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep, thousandsSep := ".", ","
		if lastComma > lastDot {
			decimalSep, thousandsSep = ",", "."
		}
		if strings.Count(token, decimalSep) > 1 {
			return decimal.Zero, false
		}
		token = strings.ReplaceAll(token, thousandsSep, "")
		token = strings.Replace(token, decimalSep, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(token, sep) > 1 || isThousandsGroup(token, idx) {
			token = strings.ReplaceAll(token, sep, "")
		} else {
			token = strings.Replace(token, sep, ".", 1)
		}
	}

	value, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Zero, false
	}
	return value.Round(2), true
}

// isThousandsGroup reports whether the lone separator at idx is followed by
// exactly three digits and preceded by a non-zero group of at most three,
// as in "1,299" or "12.500".
func isThousandsGroup(token string, idx int) bool {
	before, after := token[:idx], token[idx+1:]
	if len(after) != 3 || len(before) == 0 || len(before) > 3 {
		return false
	}
	return strings.TrimLeft(before, "0") != ""
}
