package formatter

import (
	"fmt"
	"html"
	"strings"

	"github.com/marcosevegrand/dealpulse/internal/retailer"
	"github.com/marcosevegrand/dealpulse/internal/tracking"
)

// DigestHTML renders triggered decisions as an HTML mail body. All page-derived
// values are escaped.
func DigestHTML(decisions []tracking.AlertDecision) string {
	var b strings.Builder

	b.WriteString(`<html><body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">`)
	b.WriteString(`<div style="max-width: 600px; margin: 0 auto; padding: 20px;">`)
	b.WriteString(`<h1 style="color: #2c5aa0;">Price Drop Alert!</h1>`)
	fmt.Fprintf(&b, `<p>We found <strong>%d</strong> product%s with significant price drops:</p>`,
		len(decisions), pluralS(len(decisions)))

	for _, d := range decisions {
		name := d.ProductName
		if name == "" {
			name = d.ProductID
		}

		b.WriteString(`<div style="border: 1px solid #ddd; border-radius: 8px; padding: 15px; margin: 15px 0;">`)
		fmt.Fprintf(&b, `<h3 style="margin-top: 0; color: #2c5aa0;">%s</h3>`, html.EscapeString(name))
		if r := retailer.FromURL(d.URL); r != "" {
			fmt.Fprintf(&b, `<p><strong>Retailer:</strong> %s</p>`, html.EscapeString(r))
		}
		fmt.Fprintf(&b, `<p><span style="color: #e74c3c; font-weight: bold;">Now: %s</span> `+
			`<span style="color: #666; text-decoration: line-through;">Was: %s</span></p>`,
			html.EscapeString(FormatMoney(d.CurrentPrice, d.Currency)),
			html.EscapeString(FormatMoney(d.BaselinePrice, d.Currency)))
		fmt.Fprintf(&b, `<p style="color: #27ae60; font-weight: bold;">Save %s (%s off)</p>`,
			html.EscapeString(FormatMoney(d.Savings(), d.Currency)), FormatPercent(d.DropRatio))
		if d.URL != "" {
			fmt.Fprintf(&b, `<a href="%s">View Product</a>`, html.EscapeString(d.URL))
		}
		b.WriteString(`</div>`)
	}

	b.WriteString(`<p style="font-size: 12px; color: #666;">Prices are updated daily and may have changed since this alert was sent.</p>`)
	b.WriteString(`</div></body></html>`)

	return b.String()
}
