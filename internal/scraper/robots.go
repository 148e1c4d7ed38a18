package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	robotsTTL      = time.Hour
	robotsMaxBytes = 512 << 10
)

type robotsEntry struct {
	group   *robotstxt.Group
	fetched time.Time
}

type robotsCache struct {
	client    *http.Client
	userAgent string
	agent     string

	mu      sync.RWMutex
	entries map[string]*robotsEntry
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		agent:     agentToken(userAgent),
		entries:   make(map[string]*robotsEntry),
	}
}

// allowed reports whether target may be fetched, along with the host's
// Crawl-delay if one is declared.
func (c *robotsCache) allowed(ctx context.Context, target *url.URL) (bool, time.Duration, error) {
	origin := target.Scheme + "://" + target.Host
	group, err := c.get(ctx, origin)
	if err != nil {
		return true, 0, err
	}
	if group == nil {
		return true, 0, nil
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), group.CrawlDelay, nil
}

// get returns the rule group for our agent. A nil group with a nil error
// means robots.txt could not be read right now; that is allow-all and is not
// cached.
func (c *robotsCache) get(ctx context.Context, origin string) (*robotstxt.Group, error) {
	c.mu.RLock()
	entry, exists := c.entries[origin]
	c.mu.RUnlock()

	if exists && time.Since(entry.fetched) < robotsTTL {
		return entry.group, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	group := data.FindGroup(c.agent)

	c.mu.Lock()
	c.entries[origin] = &robotsEntry{group: group, fetched: time.Now()}
	c.mu.Unlock()

	return group, nil
}

// agentToken extracts "dealpulse" from "Mozilla/5.0 (compatible; DealPulse/1.0)"
func agentToken(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if i := strings.Index(ua, "compatible;"); i >= 0 {
		rest := strings.TrimSpace(ua[i+len("compatible;"):])
		if j := strings.IndexAny(rest, "/ );"); j > 0 {
			return rest[:j]
		}
		return rest
	}
	if j := strings.IndexAny(ua, "/ "); j > 0 {
		return ua[:j]
	}
	return ua
}
