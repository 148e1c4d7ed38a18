// Package scraper retrieves retailer pages over HTTP.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (compatible; DealPulse/1.0)"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 5 << 20
)

// Page is a retrieved document, decoded to UTF-8
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Latency     time.Duration
}

// Options configures a Requester
type Options struct {
	UserAgent        string
	MaxBodyBytes     int64
	Delay            time.Duration
	RespectRobotsTxt bool
	Logger           zerolog.Logger
}

// Requester fetches pages with a per-attempt timeout, a response size cap and
// a per-host politeness delay. It never retries.
type Requester struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	delay        time.Duration
	logger       zerolog.Logger

	mu          sync.Mutex
	lastRequest map[string]time.Time

	robots *robotsCache
}

// NewRequester creates a new HTTP requester
func NewRequester(opts Options) *Requester {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	r := &Requester{
		client:       client,
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
		delay:        opts.Delay,
		logger:       opts.Logger,
		lastRequest:  make(map[string]time.Time),
	}
	if opts.RespectRobotsTxt {
		r.robots = newRobotsCache(client, opts.UserAgent)
	}
	return r
}

// Fetch retrieves targetURL within timeout. Failures are returned as
// *FetchError.
func (r *Requester) Fetch(ctx context.Context, targetURL string, timeout time.Duration) (*Page, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		return nil, &FetchError{Reason: ReasonNetworkError, URL: targetURL, Err: fmt.Errorf("invalid URL: %v", err)}
	}

	delay := r.delay
	if r.robots != nil {
		robotsCtx, cancel := context.WithTimeout(ctx, timeout)
		allowed, crawlDelay, err := r.robots.allowed(robotsCtx, parsed)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("url", targetURL).Msg("failed to check robots.txt")
		} else if !allowed {
			return nil, &FetchError{Reason: ReasonDisallowed, URL: targetURL, Err: errors.New("disallowed by robots.txt")}
		}
		if crawlDelay > delay {
			delay = crawlDelay
		}
	}

	// queueing for the host slot is not part of the attempt timeout
	if err := r.waitForHost(ctx, parsed.Host, delay); err != nil {
		return nil, classify(targetURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNetworkError, URL: targetURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classify(targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &FetchError{Reason: ReasonHTTPError, Status: resp.StatusCode, URL: targetURL}
	}

	if resp.ContentLength > r.maxBodyBytes {
		return nil, &FetchError{Reason: ReasonTooLarge, URL: targetURL,
			Err: fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, r.maxBodyBytes)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes+1))
	if err != nil {
		return nil, classify(targetURL, fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(raw)) > r.maxBodyBytes {
		return nil, &FetchError{Reason: ReasonTooLarge, URL: targetURL,
			Err: fmt.Errorf("body exceeds %d bytes", r.maxBodyBytes)}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := decodeBody(raw, contentType)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", targetURL).Msg("charset decoding failed, using raw body")
		body = raw
	}

	return &Page{
		URL:         targetURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   time.Now(),
		Latency:     time.Since(start),
	}, nil
}

// waitForHost reserves the next request slot for host and sleeps until it.
// A cancelled wait gives the slot back when no later caller queued behind it.
func (r *Requester) waitForHost(ctx context.Context, host string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	r.mu.Lock()
	prev, seen := r.lastRequest[host]
	next := prev.Add(delay)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	r.lastRequest[host] = next
	r.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.mu.Lock()
		if r.lastRequest[host].Equal(next) {
			if seen {
				r.lastRequest[host] = prev
			} else {
				delete(r.lastRequest, host)
			}
		}
		r.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeBody(raw []byte, contentType string) ([]byte, error) {
	if strings.Contains(strings.ToLower(contentType), "utf-8") {
		return raw, nil
	}
	reader, err := charset.NewReader(strings.NewReader(string(raw)), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

func classify(targetURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Reason: ReasonTimeout, URL: targetURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Reason: ReasonTimeout, URL: targetURL, Err: err}
	}
	return &FetchError{Reason: ReasonNetworkError, URL: targetURL, Err: err}
}
