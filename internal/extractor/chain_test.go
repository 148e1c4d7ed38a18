package extractor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name     string
	supports func(string) bool
	info     *ProductInfo
	err      error
	calls    int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Supports(url string) bool {
	if s.supports == nil {
		return true
	}
	return s.supports(url)
}

func (s *stubStrategy) Extract(_ *goquery.Document) (*ProductInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	return &info, nil
}

func okStub(name, price string) *stubStrategy {
	return &stubStrategy{name: name, info: &ProductInfo{Name: name, Price: decimal.RequireFromString(price), Currency: "USD"}}
}

func failStub(name string, reason Reason) *stubStrategy {
	return &stubStrategy{name: name, err: &ExtractionError{Reason: reason, Strategy: name}}
}

func TestChain_PriorityOrder(t *testing.T) {
	c := NewChain(zerolog.Nop())
	late := okStub("late", "2.00")
	early := okStub("early", "1.00")
	c.Register(late, 20)
	c.Register(early, 10)

	info, err := c.Resolve("https://example.com/p", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "early", info.StrategyUsed)
	assert.Equal(t, "https://example.com/p", info.URL)
	assert.Equal(t, 0, late.calls)
}

func TestChain_TiesKeepRegistrationOrder(t *testing.T) {
	c := NewChain(zerolog.Nop())
	c.Register(okStub("first", "1.00"), 5)
	c.Register(okStub("second", "2.00"), 5)

	names := []string{}
	for _, s := range c.Strategies() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"first", "second"}, names)

	info, err := c.Resolve("https://example.com/p", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", info.StrategyUsed)
}

func TestChain_SkipsUnsupportedRegardlessOfOrder(t *testing.T) {
	onlyShop := func(url string) bool { return strings.Contains(url, "shop.example") }

	for _, order := range [][2]int{{1, 2}, {2, 1}} {
		c := NewChain(zerolog.Nop())
		a := okStub("a", "1.00")
		a.supports = onlyShop
		b := okStub("b", "2.00")
		b.supports = func(string) bool { return false }

		c.Register(b, order[0])
		c.Register(a, order[1])

		info, err := c.Resolve("https://shop.example.com/item", []byte("<html></html>"))
		require.NoError(t, err)
		assert.Equal(t, "a", info.StrategyUsed)
		assert.Equal(t, 0, b.calls, "unsupported strategy must not run")
	}
}

func TestChain_FallsBackAndNeverMerges(t *testing.T) {
	c := NewChain(zerolog.Nop())
	c.Register(failStub("broken", ReasonNoStructuredData), 0)
	partial := okStub("partial", "5.00")
	partial.info.Currency = ""
	c.Register(partial, 1)
	c.Register(okStub("complete", "6.00"), 2)

	info, err := c.Resolve("https://example.com/p", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "partial", info.StrategyUsed)
	assert.Equal(t, "", info.Currency)
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain(zerolog.Nop())
	c.Register(failStub("one", ReasonNoStructuredData), 0)
	c.Register(failStub("two", ReasonNoMatchingSelector), 1)

	_, err := c.Resolve("https://example.com/p", []byte("<html></html>"))
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "chain", ee.Strategy)
	assert.Equal(t, ReasonNoMatchingSelector, ee.Reason)
	assert.Contains(t, err.Error(), "one")
	assert.Contains(t, err.Error(), "two")
}

func TestChain_Unsupported(t *testing.T) {
	c := NewChain(zerolog.Nop())
	never := okStub("never", "1.00")
	never.supports = func(string) bool { return false }
	c.Register(never, 0)

	_, err := c.Resolve("https://example.com/p", []byte("<html></html>"))
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ReasonUnsupported, ee.Reason)
	assert.Equal(t, 0, never.calls)

	_, err = NewChain(zerolog.Nop()).Resolve("https://example.com/p", nil)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ReasonUnsupported, ee.Reason)
}

func TestChain_StructuredDataWinsOverHeuristic(t *testing.T) {
	c := NewChain(zerolog.Nop())
	c.Register(NewHeuristicStrategy(nil, nil, "USD"), 100)
	c.Register(&StructuredDataStrategy{DefaultCurrency: "USD"}, 10)

	info, err := c.Resolve("https://shop.example.com/blender", []byte(jsonLDPage))
	require.NoError(t, err)
	assert.Equal(t, "structured_data", info.StrategyUsed)
	assert.Equal(t, "1299.50", info.Price.StringFixed(2))

	info, err = c.Resolve("https://shop.example.com/gizmo", []byte(heuristicPage))
	require.NoError(t, err)
	assert.Equal(t, "heuristic_markup", info.StrategyUsed)
	assert.Equal(t, "89.99", info.Price.StringFixed(2))
}
