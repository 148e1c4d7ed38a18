package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequester(opts Options) *Requester {
	opts.Logger = zerolog.Nop()
	return NewRequester(opts)
}

func fetchErr(t *testing.T, err error) *FetchError {
	t.Helper()
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	return fe
}

func TestFetch_OK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><h1>ok</h1></html>"))
	}))
	defer srv.Close()

	page, err := newTestRequester(Options{}).Fetch(context.Background(), srv.URL+"/p/1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "<html><h1>ok</h1></html>", string(page.Body))
	assert.Equal(t, srv.URL+"/p/1", page.URL)
	assert.Equal(t, DefaultUserAgent, gotUA)
}

func TestFetch_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	page, err := newTestRequester(Options{}).Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", string(page.Body))
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestRequester(Options{}).Fetch(context.Background(), srv.URL, 50*time.Millisecond)
	fe := fetchErr(t, err)
	assert.Equal(t, ReasonTimeout, fe.Reason)
	assert.True(t, fe.Retryable())
}

func TestFetch_HTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		_, err := newTestRequester(Options{}).Fetch(context.Background(), srv.URL, time.Second)
		fe := fetchErr(t, err)
		assert.Equal(t, ReasonHTTPError, fe.Reason)
		assert.Equal(t, tt.status, fe.Status)
		assert.Equal(t, tt.retryable, fe.Retryable(), "status %d", tt.status)
		srv.Close()
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	_, err := newTestRequester(Options{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL, time.Second)
	fe := fetchErr(t, err)
	assert.Equal(t, ReasonTooLarge, fe.Reason)
	assert.False(t, fe.Retryable())
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newTestRequester(Options{}).Fetch(context.Background(), addr, time.Second)
	fe := fetchErr(t, err)
	assert.Equal(t, ReasonNetworkError, fe.Reason)
	assert.True(t, fe.Retryable())
}

func TestFetch_RespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nAllow: /private/open\n"))
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	req := newTestRequester(Options{RespectRobotsTxt: true})

	_, err := req.Fetch(context.Background(), srv.URL+"/private/item", time.Second)
	fe := fetchErr(t, err)
	assert.Equal(t, ReasonDisallowed, fe.Reason)
	assert.False(t, fe.Retryable())

	_, err = req.Fetch(context.Background(), srv.URL+"/private/open/item", time.Second)
	require.NoError(t, err)

	_, err = req.Fetch(context.Background(), srv.URL+"/public", time.Second)
	require.NoError(t, err)
}

func TestFetch_PolitenessDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req := newTestRequester(Options{Delay: 100 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := req.Fetch(context.Background(), srv.URL, time.Second)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestFetch_QueuedFetchesDoNotTimeOut(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// the third caller queues for ~300ms, longer than the attempt timeout
	req := newTestRequester(Options{Delay: 150 * time.Millisecond})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = req.Fetch(context.Background(), srv.URL, 200*time.Millisecond)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_CancelledWaitReleasesSlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req := newTestRequester(Options{Delay: 300 * time.Millisecond})
	_, err := req.Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	host := strings.TrimPrefix(srv.URL, "http://")
	req.mu.Lock()
	first := req.lastRequest[host]
	req.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = req.Fetch(ctx, srv.URL, time.Second)
	fe := fetchErr(t, err)
	assert.Equal(t, ReasonTimeout, fe.Reason)

	req.mu.Lock()
	after := req.lastRequest[host]
	req.mu.Unlock()
	assert.True(t, first.Equal(after), "cancelled caller kept its reserved slot")
}

func TestRobotsGroupForAgent(t *testing.T) {
	content := `# comment
User-agent: OtherBot
Disallow: /

User-agent: dealpulse
User-agent: AnotherBot
Disallow: /cart
Crawl-delay: 2.5
`
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	cache := newRobotsCache(srv.Client(), DefaultUserAgent)

	target, err := url.Parse(srv.URL + "/cart/add")
	require.NoError(t, err)
	ok, delay, err := cache.allowed(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2500*time.Millisecond, delay)

	target, err = url.Parse(srv.URL + "/product/1")
	require.NoError(t, err)
	ok, _, err = cache.allowed(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int32(1), hits.Load(), "robots.txt is cached per origin")
}

func TestRobotsServerErrorIsNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cache := newRobotsCache(srv.Client(), DefaultUserAgent)
	target, err := url.Parse(srv.URL + "/anything")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, _, err := cache.allowed(context.Background(), target)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestAgentToken(t *testing.T) {
	assert.Equal(t, "dealpulse", agentToken(DefaultUserAgent))
	assert.Equal(t, "curl", agentToken("curl/8.0"))
}
