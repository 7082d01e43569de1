// Package classifier implements the Traffic Classifier (spec §4.2): turning
// a configured set of glob-ish patterns into compiled regular expressions
// and using them, plus a curated ad-infrastructure substring list and a
// beacon-path heuristic, to tag every intercepted request as auction (A),
// beacon (B), or cacheable (C) traffic, with an accompanying origin label.
package classifier

import (
	"net/url"
	"regexp"
	"strings"
)

// Class is the three-valued traffic tag from spec §3.
type Class int

// Traffic classes.
const (
	ClassCacheable Class = iota // C
	ClassAuction                // A
	ClassBeacon                 // B
)

func (c Class) String() string {
	switch c {
	case ClassAuction:
		return "A"
	case ClassBeacon:
		return "B"
	default:
		return "C"
	}
}

// Origin is the traffic-origin label from spec §3.
type Origin string

// Origin labels.
const (
	OriginAd         Origin = "ad"
	OriginThirdParty Origin = "third-party"
)

// Result is the classifier's verdict for one request.
type Result struct {
	Class  Class
	Origin Origin
}

var metaCharEscaper = strings.NewReplacer(
	".", `\.`, "+", `\+`, "^", `\^`, "$", `\$`,
	"{", `\{`, "}", `\}`, "(", `\(`, ")", `\)`,
	"|", `\|`, "[", `\[`, "]", `\]`, `\`, `\\`,
)

// compilePattern converts one glob-ish pattern into a case-insensitive
// anchored regular expression: regex metacharacters other than `*` and `?`
// are escaped first, then `*` is turned into `.*`; `?` is left unescaped
// (spec §4.2).
func compilePattern(pattern string) (*regexp.Regexp, error) {
	escaped := metaCharEscaper.Replace(pattern)
	escaped = strings.ReplaceAll(escaped, "*", ".*")
	return regexp.Compile("(?i)^" + escaped + "$")
}

// beaconPathTokens are the path-segment tokens that, combined with a
// matching resource type, trigger the beacon heuristic (spec §4.2 step 5).
var beaconPathTokens = map[string]bool{
	"pixel": true, "beacon": true, "collect": true, "impression": true,
	"ping": true, "log": true, "fire": true,
}

var trPathPattern = regexp.MustCompile(`^/tr/?$`)

var beaconHeuristicResourceTypes = map[string]bool{
	"image": true, "ping": true, "other": true,
}

// Classifier holds the compiled class-A/class-B pattern sets and the
// curated ad-infrastructure substring list used to derive origin labels.
type Classifier struct {
	classA      []*regexp.Regexp
	classB      []*regexp.Regexp
	adInfraSubs []string
}

// New compiles the configured class-A and class-B pattern lists. A pattern
// that fails to compile is skipped rather than failing construction — a bad
// operator-supplied pattern should not take down traffic classification for
// every other pattern.
func New(classAPatterns, classBPatterns, adInfrastructureSubstrings []string) *Classifier {
	c := &Classifier{}
	for _, p := range classAPatterns {
		if re, err := compilePattern(p); err == nil {
			c.classA = append(c.classA, re)
		}
	}
	for _, p := range classBPatterns {
		if re, err := compilePattern(p); err == nil {
			c.classB = append(c.classB, re)
		}
	}
	c.adInfraSubs = make([]string, len(adInfrastructureSubstrings))
	for i, s := range adInfrastructureSubstrings {
		c.adInfraSubs[i] = strings.ToLower(s)
	}
	return c
}

// Classify returns the traffic class and origin label for a request (spec
// §4.2).
func (c *Classifier) Classify(rawURL, resourceType string) Result {
	lowerURL := strings.ToLower(rawURL)

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	origin := Origin(OriginThirdParty)
	for _, s := range c.adInfraSubs {
		if s == "" {
			continue
		}
		if strings.Contains(host, s) || strings.Contains(lowerURL, s) {
			origin = OriginAd
			break
		}
	}

	for _, re := range c.classA {
		if re.MatchString(rawURL) {
			return Result{Class: ClassAuction, Origin: origin}
		}
	}

	for _, re := range c.classB {
		if re.MatchString(rawURL) {
			return Result{Class: ClassBeacon, Origin: origin}
		}
	}

	if beaconHeuristicResourceTypes[resourceType] && matchesBeaconPath(rawURL) {
		return Result{Class: ClassBeacon, Origin: origin}
	}

	return Result{Class: ClassCacheable, Origin: origin}
}

// matchesBeaconPath implements the segment-delimited beacon path heuristic
// from spec §4.2 step 5: a path segment token match, or a `/tr` path.
func matchesBeaconPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if trPathPattern.MatchString(path) {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if beaconPathTokens[seg] {
			return true
		}
	}
	return false
}

// cacheableContentTypePrefixes/Substrings implement
// should_cache_by_content_type (spec §4.2).
var cacheableContentTypePrefixes = []string{"image/", "video/", "audio/", "font/"}
var cacheableContentTypeSubstrings = []string{"font", "css", "javascript", "wasm", "svg"}

// ShouldCacheByContentType returns true iff the media type (parameters
// stripped, lowercased) is one the handler should opportunistically store
// for fetch/xhr resource types (spec §4.2).
func ShouldCacheByContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(contentType)
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)

	for _, p := range cacheableContentTypePrefixes {
		if strings.HasPrefix(mediaType, p) {
			return true
		}
	}
	for _, s := range cacheableContentTypeSubstrings {
		if strings.Contains(mediaType, s) {
			return true
		}
	}
	if strings.Contains(mediaType, "xml") && !strings.Contains(mediaType, "html") {
		return true
	}
	return false
}
