// Package normalizer implements the URL Normalizer (spec §4.1): computing
// canonical cache keys, alias keys, and Vary-aware key suffixes from a raw
// request URL. Every function here is pure — no I/O, no shared state — so
// the Request Handler can call it freely from any goroutine.
package normalizer

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// pathOnlyHosts is the fixed set of hostnames (ad-serving CDNs, public font
// CDNs) for which the canonical key drops the query string entirely.
var pathOnlyHosts = map[string]bool{
	"fonts.gstatic.com":      true,
	"fonts.googleapis.com":   true,
	"cdnjs.cloudflare.com":   true,
	"cdn.jsdelivr.net":       true,
	"ajax.googleapis.com":    true,
	"c.amazon-adsystem.com":  true,
	"securepubads.g.doubleclick.net": true,
}

// adAliasHosts is the fixed "ad-alias" set (spec §3, alias strategy 1).
var adAliasHosts = map[string]bool{
	"securepubads.g.doubleclick.net": true,
	"c.amazon-adsystem.com":          true,
	"pagead2.googlesyndication.com":  true,
}

// trackingParams is the fixed set of tracking query parameters dropped from
// every canonical key, regardless of origin.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
	"_ga": true, "_gl": true, "mc_cid": true, "mc_eid": true, "ref": true,
	"ref_": true, "twclid": true, "igshid": true, "ttclid": true,
	"dclid": true, "msclkid": true, "yclid": true,
}

// adCacheBusterParams is the additional set of parameters dropped only when
// the request's origin label is "ad" (spec §3).
var adCacheBusterParams = map[string]bool{
	"cb": true, "cachebuster": true, "cache_buster": true, "rnd": true,
	"rand": true, "random": true, "t": true, "ts": true, "timestamp": true,
	"_": true, "nc": true, "bust": true,
}

// largeDecimalValue matches a purely decimal integer of 10 or more digits,
// the additional ad-origin cache-buster heuristic from spec §3.
var largeDecimalValue = regexp.MustCompile(`^\d{10,}$`)

// versionParams is the fixed set of parameter names stripped when computing
// a static-asset alias (spec §3, alias strategy 2).
var versionParams = map[string]bool{
	"v": true, "ver": true, "version": true, "hash": true, "h": true,
	"rev": true, "build": true, "cb": true, "cachebuster": true,
	"cache_buster": true, "t": true, "ts": true, "timestamp": true,
	"_": true, "__": true, "rnd": true, "rand": true, "random": true,
	"nc": true, "chunk": true, "m": true,
}

// staticAssetExtension matches the known static-asset extensions eligible
// for cache-buster-stripped aliasing (spec §3).
var staticAssetExtension = regexp.MustCompile(`(?i)\.(js|css|woff2?|ttf|otf|eot|svg|png|jpe?g|gif|webp|avif|ico|wasm|mp4|webm|mp3|ogg)$`)

// Canonical computes the canonical cache key string for a URL (spec §4.1).
// origin is "ad" or "third-party" as derived by the classifier. On parse
// failure the raw URL string is returned unchanged.
func Canonical(rawURL, origin string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := normalizeHost(u.Hostname())

	if pathOnlyHosts[host] {
		return host + u.EscapedPath()
	}

	q := u.Query()
	isAd := origin == "ad"

	type pair = struct{ k, v string }
	pairs := make([]pair, 0, len(q))
	for k, vs := range q {
		lk := strings.ToLower(k)
		if trackingParams[lk] {
			continue
		}
		if isAd && adCacheBusterParams[lk] {
			continue
		}
		for _, v := range vs {
			if isAd && largeDecimalValue.MatchString(v) {
				continue
			}
			pairs = append(pairs, pair{k, v})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	if len(pairs) == 0 {
		return host + u.EscapedPath()
	}

	return host + u.EscapedPath() + "?" + encodeSorted(pairs)
}

// encodeSorted re-encodes already key/value-sorted pairs preserving their
// order (url.Values.Encode would re-sort by key only, collapsing our
// key-then-value tie-break — so we build the query string by hand).
func encodeSorted(pairs []struct{ k, v string }) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p.k)+"="+url.QueryEscape(p.v))
	}
	return strings.Join(parts, "&")
}

// Key returns the SHA-256 hex digest of a canonical string — the cache's
// internal index key (spec §3).
func Key(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Alias computes the optional alias key for a URL (spec §3, §4.1). Returns
// "" if no alias strategy applies or the URL fails to parse.
func Alias(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := normalizeHost(u.Hostname())

	if adAliasHosts[host] {
		return "alias|" + host + u.EscapedPath()
	}

	if !staticAssetExtension.MatchString(u.Path) {
		return ""
	}

	q := u.Query()
	removedAny := false
	type pair struct{ k, v string }
	survivors := make([]pair, 0, len(q))
	for k, vs := range q {
		if versionParams[strings.ToLower(k)] {
			removedAny = true
			continue
		}
		for _, v := range vs {
			survivors = append(survivors, pair{k, v})
		}
	}
	if !removedAny {
		return ""
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].k != survivors[j].k {
			return survivors[i].k < survivors[j].k
		}
		return survivors[i].v < survivors[j].v
	})

	base := "alias|" + host + u.EscapedPath()
	if len(survivors) == 0 {
		return base
	}
	parts := make([]string, 0, len(survivors))
	for _, p := range survivors {
		parts = append(parts, url.QueryEscape(p.k)+"="+url.QueryEscape(p.v))
	}
	return base + "?" + strings.Join(parts, "&")
}

// VarySuffix extends a canonical key with a digest of the request's Accept
// header when the stored response declared `Vary: Accept` (spec §4.1).
func VarySuffix(canonical, requestAccept, storedVary string) string {
	if !strings.Contains(strings.ToLower(storedVary), "accept") {
		return canonical
	}
	sum := md5.Sum([]byte(strings.TrimSpace(requestAccept)))
	return canonical + "|accept=" + hex.EncodeToString(sum[:])[:8]
}

// normalizeHost lowercases a hostname and, where it decodes as valid IDNA,
// folds it to its ASCII (punycode) form so visually-equivalent
// internationalized hostnames collapse onto the same canonical key.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

// DocKey computes the document-key SHA-256 hash described in spec §4.4.2:
// `SHA-256("doc:" + normalized_doc_url)` where normalized_doc_url is
// hostname+path with a narrow tracking-param filter and sorted survivors.
func DocKey(rawURL string) string {
	sum := sha256.Sum256([]byte("doc:" + DocCanonical(rawURL)))
	return hex.EncodeToString(sum[:])
}

// DocCanonical computes the normalized document URL used as the input to
// DocKey: hostname + path, with the same tracking-param filter as the
// asset canonical and sorted surviving parameters, but never any
// cache-buster or path-only-host special casing — documents always use
// their own query-bearing canonical form before hashing.
func DocCanonical(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := normalizeHost(u.Hostname())

	q := u.Query()
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(q))
	for k, vs := range q {
		if trackingParams[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	if len(pairs) == 0 {
		return host + u.EscapedPath()
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p.k)+"="+url.QueryEscape(p.v))
	}
	return host + u.EscapedPath() + "?" + strings.Join(parts, "&")
}
