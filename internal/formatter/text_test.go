package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Acme Widget Pro", CleanName("  <span>Acme</span>\n\t Widget   Pro "))
	assert.Equal(t, "Fish & Chips", CleanName("Fish &amp; Chips"))

	long := strings.Repeat("word ", 100)
	cleaned := CleanName(long)
	assert.LessOrEqual(t, len(cleaned), maxNameLength)
	assert.True(t, strings.HasSuffix(cleaned, "..."))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$85.00", FormatMoney(decimal.RequireFromString("85"), "usd"))
	assert.Equal(t, "€1299.50", FormatMoney(decimal.RequireFromString("1299.5"), "EUR"))
	assert.Equal(t, "12.00 CHF", FormatMoney(decimal.RequireFromString("12"), "CHF"))
	assert.Equal(t, "3.10", FormatMoney(decimal.RequireFromString("3.1"), ""))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "15.0%", FormatPercent(decimal.RequireFromString("0.15")))
}

func TestDigests(t *testing.T) {
	decisions := []tracking.AlertDecision{{
		ProductID:     "p1",
		ProductName:   `Gadget <b>"X"</b>`,
		URL:           "https://www.bestbuy.com/site/1",
		Triggered:     true,
		CurrentPrice:  decimal.RequireFromString("85.00"),
		BaselinePrice: decimal.RequireFromString("100.00"),
		DropRatio:     decimal.RequireFromString("0.15"),
		Currency:      "USD",
		ObservedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	text := DigestText(decisions)
	assert.Contains(t, text, "1 product with")
	assert.Contains(t, text, "Retailer: Bestbuy")
	assert.Contains(t, text, "Now: $85.00 (was $100.00)")
	assert.Contains(t, text, "Save $15.00 (15.0% off)")

	body := DigestHTML(decisions)
	assert.Contains(t, body, "Gadget &lt;b&gt;&#34;X&#34;&lt;/b&gt;")
	assert.NotContains(t, body, "<b>")
	assert.Contains(t, body, `href="https://www.bestbuy.com/site/1"`)

	assert.Equal(t, "Price Drops Alert - 1 Product on Sale!", DigestSubject(1))
	assert.Equal(t, "Price Drops Alert - 3 Products on Sale!", DigestSubject(3))
}
