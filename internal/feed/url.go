package feed

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidIDChars = regexp.MustCompile(`[^a-z0-9-]`)

// maxNormalizePasses bounds the fixed-point loop in Normalize.
const maxNormalizePasses = 8

// Normalize canonicalizes a feed URL for identity comparisons.
// It re-serializes the parsed URL, strips trailing slashes and lower-cases the
// result. Malformed input falls back to the lower-cased raw string so one bad
// URL never aborts a crawl. Trimming can expose parts a second parse drops
// (an empty "#" fragment), so passes repeat until the output is stable and
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	out := normalizeOnce(raw)
	for range maxNormalizePasses {
		next := normalizeOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func normalizeOnce(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.TrimSpace(strings.ToLower(strings.TrimRight(u.String(), "/")))
}

// DeriveID builds the stable feed identifier for a URL: the host with dots
// replaced by dashes followed by the non-empty path segments, joined with
// dashes. Anything outside [a-z0-9-] becomes a dash. Distinct URLs that
// sanitize to the same host and path collide; that is not detected.
func DeriveID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return sanitizeID(raw)
	}
	parts := []string{strings.ReplaceAll(u.Hostname(), ".", "-")}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return sanitizeID(strings.Join(parts, "-"))
}

func sanitizeID(raw string) string {
	return invalidIDChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "-")
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// SameFeed reports whether two URLs normalize to the same identity.
func SameFeed(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
