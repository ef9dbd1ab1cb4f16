package engine

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// NormalizeAddress canonicalizes a submitted URL so trivially different
// spellings of one address collide on the unique index. A missing scheme
// defaults to http; anything but http and https is rejected.
func NormalizeAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme == "" {
		raw = "http://" + raw
	}

	normalized, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveFragment)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return normalized, true
}
