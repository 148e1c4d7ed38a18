// Package retailer provides URL helpers for retailer product pages.
package retailer

import (
	"net/url"
	"regexp"
	"strings"
)

var hostPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9][a-zA-Z0-9-]*(\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,}`)

// NormalizeURL ensures URL has proper format
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	return strings.TrimSuffix(raw, "/")
}

// IsValidURL checks if a string looks like a fetchable product URL
func IsValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	// localhost and IP hosts are valid fetch targets too (test servers, intranet shops)
	if u.Hostname() == "localhost" || isIP(u.Hostname()) {
		return true
	}
	return hostPattern.MatchString(raw)
}

// ExtractDomain extracts the lower-cased host (without port) from a URL
func ExtractDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// MatchesHost reports whether the URL's host is one of hosts or a subdomain
// of one. Entries may be partial labels such as "amazon." to match any TLD.
func MatchesHost(raw string, hosts []string) bool {
	host := ExtractDomain(raw)
	if host == "" {
		return false
	}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.HasSuffix(h, ".") {
			if strings.HasPrefix(host, h) || strings.Contains(host, "."+h) {
				return true
			}
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// FromURL derives a display label for the retailer behind a URL,
// e.g. "https://www.bestbuy.com/site/x" -> "Bestbuy".
func FromURL(raw string) string {
	host := ExtractDomain(raw)
	if host == "" {
		return ""
	}
	if isIP(host) || host == "localhost" {
		return host
	}

	labels := strings.Split(host, ".")
	for len(labels) > 2 && (labels[0] == "www" || labels[0] == "m" || labels[0] == "shop") {
		labels = labels[1:]
	}

	name := labels[0]
	// co.uk / com.au style second-level domains
	if len(labels) >= 3 && len(labels[len(labels)-1]) == 2 && (labels[len(labels)-2] == "co" || labels[len(labels)-2] == "com") {
		name = labels[len(labels)-3]
	} else if len(labels) >= 2 {
		name = labels[len(labels)-2]
	}

	if name == "" {
		return host
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func isIP(host string) bool {
	if host == "" {
		return false
	}
	for _, r := range host {
		if (r < '0' || r > '9') && r != '.' && r != ':' {
			return false
		}
	}
	return true
}
