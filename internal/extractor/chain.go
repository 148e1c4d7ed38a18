package extractor

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const chainName = "chain"

type registration struct {
	strategy Strategy
	priority int
	seq      int
}

// Chain runs registered strategies in priority order until one succeeds.
// Lower priority values run first; equal priorities keep registration order.
type Chain struct {
	mu      sync.RWMutex
	entries []registration
	nextSeq int
	logger  zerolog.Logger
}

// NewChain creates an empty chain
func NewChain(logger zerolog.Logger) *Chain {
	return &Chain{logger: logger}
}

// Register adds a strategy at the given priority
func (c *Chain) Register(s Strategy, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, registration{strategy: s, priority: priority, seq: c.nextSeq})
	c.nextSeq++

	sort.SliceStable(c.entries, func(i, j int) bool {
		if c.entries[i].priority != c.entries[j].priority {
			return c.entries[i].priority < c.entries[j].priority
		}
		return c.entries[i].seq < c.entries[j].seq
	})
}

// Strategies returns the registered strategies in the order they are tried
func (c *Chain) Strategies() []Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Strategy, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.strategy
	}
	return out
}

// Resolve extracts a product from page using the first strategy that
// supports url and succeeds. It never merges results from several strategies.
func (c *Chain) Resolve(url string, page []byte) (*ProductInfo, error) {
	strategies := c.Strategies()

	var candidates []Strategy
	for _, s := range strategies {
		if s.Supports(url) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, newError(chainName, ReasonUnsupported, "no strategy supports %s", url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, newError(chainName, ReasonMalformedMarkup, "failed to parse HTML: %v", err)
	}

	var (
		failures []error
		last     Reason
	)
	for _, s := range candidates {
		info, err := s.Extract(doc)
		if err != nil {
			c.logger.Debug().Str("strategy", s.Name()).Str("url", url).Err(err).Msg("strategy failed")
			failures = append(failures, err)

			var ee *ExtractionError
			if errors.As(err, &ee) {
				last = ee.Reason
			} else {
				last = ReasonParseFailure
			}
			continue
		}

		info.URL = url
		if info.StrategyUsed == "" {
			info.StrategyUsed = s.Name()
		}
		return info, nil
	}

	return nil, &ExtractionError{Reason: last, Strategy: chainName, Err: errors.Join(failures...)}
}
