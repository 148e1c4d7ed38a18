package scraper

import (
	"fmt"
	"net/http"
)

// FetchReason classifies a failed fetch attempt
type FetchReason string

const (
	ReasonTimeout      FetchReason = "timeout"
	ReasonHTTPError    FetchReason = "http_error"
	ReasonNetworkError FetchReason = "network_error"
	ReasonTooLarge     FetchReason = "too_large"
	ReasonDisallowed   FetchReason = "disallowed"
)

// FetchError reports why a page could not be retrieved. Status is set for
// ReasonHTTPError only.
type FetchError struct {
	Reason FetchReason
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Reason == ReasonHTTPError:
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Timeouts, network
// faults, rate limiting and server errors are transient; other statuses,
// oversized pages and robots.txt refusals are not.
func (e *FetchError) Retryable() bool {
	switch e.Reason {
	case ReasonTimeout, ReasonNetworkError:
		return true
	case ReasonHTTPError:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	default:
		return false
	}
}
