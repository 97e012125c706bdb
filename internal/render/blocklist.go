package render

import (
	"net/url"
	"strings"
)

// defaultBlockedHosts are analytics/ad/tracking destinations aborted at the
// interception layer. Purely a bandwidth and memory policy: none of these
// contribute to the textual body of a page.
var defaultBlockedHosts = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"facebook.net",
	"connect.facebook.net",
	"taboola.com",
	"outbrain.com",
	"scorecardresearch.com",
	"chartbeat.com",
	"amazon-adsystem.com",
	"adsafeprotected.com",
	"criteo.com",
	"hotjar.com",
	"quantserve.com",
}

// blockedResourceTypes are sub-resource classes aborted wholesale. Documents,
// scripts and XHR/fetch traffic pass through so rendered content is intact.
var blockedResourceTypes = map[string]struct{}{
	"Image":      {},
	"Stylesheet": {},
	"Font":       {},
	"Media":      {},
	"WebSocket":  {},
	"Manifest":   {},
	"TextTrack":  {},
	"Prefetch":   {},
	"Ping":       {},
	"Other":      {},
}

// Blocklist decides which intercepted requests to abort. Hosts match exactly
// or by dot-suffix, so "doubleclick.net" also covers "ad.doubleclick.net".
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist builds the default policy plus any operator-supplied host
// patterns ("host", "*.host" and ".host" forms are accepted).
func NewBlocklist(extraHosts []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range append(append([]string{}, defaultBlockedHosts...), extraHosts...) {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		value = strings.TrimPrefix(value, "*.")
		value = strings.TrimPrefix(value, ".")
		b.exact[value] = struct{}{}
		b.addSuffix(value)
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// BlocksURL reports whether the request destination host is a known
// analytics/ad/tracking endpoint.
func (b *Blocklist) BlocksURL(rawURL string) bool {
	if b == nil {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// BlocksResourceType reports whether a sub-resource class is aborted outright.
func (b *Blocklist) BlocksResourceType(resourceType string) bool {
	_, ok := blockedResourceTypes[resourceType]
	return ok
}
