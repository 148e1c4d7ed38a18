// Package formatter cleans scraped text and renders alert digests.
package formatter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/marcosevegrand/dealpulse/internal/retailer"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

const maxNameLength = 200

var (
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spacesRe = regexp.MustCompile(` +`)
)

var currencySymbols = map[string]string{
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
	"JPY": "¥",
	"INR": "₹",
}

// NormalizeWhitespace collapses every run of whitespace, newlines included,
// into a single space
func NormalizeWhitespace(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, text)

	return spacesRe.ReplaceAllString(text, " ")
}

// RemoveControlCharacters removes non-printable control characters
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 32 {
			return r
		}
		return -1
	}, text)
}

// TruncateText truncates text to a maximum length with ellipsis
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	truncated := text[:maxLen-3]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// ExtractTextContent extracts plain text from an HTML fragment
func ExtractTextContent(html string) string {
	text := tagRe.ReplaceAllString(html, "")

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&apos;", "'")

	return strings.TrimSpace(NormalizeWhitespace(text))
}

// CleanName cleans a product name taken from a page
func CleanName(name string) string {
	name = ExtractTextContent(name)
	name = RemoveControlCharacters(name)
	name = strings.TrimSpace(name)

	if len(name) > maxNameLength {
		name = TruncateText(name, maxNameLength)
	}

	return name
}

// FormatMoney renders an amount with its currency symbol, falling back to the
// ISO code for currencies without one
func FormatMoney(amount decimal.Decimal, currency string) string {
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sym + amount.StringFixed(2)
	}
	if currency == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}

// FormatPercent renders a ratio such as 0.15 as "15.0%"
func FormatPercent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// DigestSubject builds the subject line for an alert digest
func DigestSubject(count int) string {
	return fmt.Sprintf("Price Drops Alert - %d Product%s on Sale!", count, pluralS(count))
}

// DigestText renders triggered decisions as a plain text digest
func DigestText(decisions []tracking.AlertDecision) string {
	var b strings.Builder

	b.WriteString("Price Drop Alert!\n\n")
	fmt.Fprintf(&b, "We found %d product%s with significant price drops:\n\n", len(decisions), pluralS(len(decisions)))

	for i, d := range decisions {
		name := d.ProductName
		if name == "" {
			name = d.ProductID
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		if r := retailer.FromURL(d.URL); r != "" {
			fmt.Fprintf(&b, "   Retailer: %s\n", r)
		}
		fmt.Fprintf(&b, "   Now: %s (was %s)\n",
			FormatMoney(d.CurrentPrice, d.Currency), FormatMoney(d.BaselinePrice, d.Currency))
		fmt.Fprintf(&b, "   Save %s (%s off)\n",
			FormatMoney(d.Savings(), d.Currency), FormatPercent(d.DropRatio))
		if d.URL != "" {
			fmt.Fprintf(&b, "   Link: %s\n", d.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	b.WriteString("Prices are updated daily and may have changed since this alert was sent.\n")

	return b.String()
}

func pluralS(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
