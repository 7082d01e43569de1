package storage

import (
	"sort"
	"sync"

	"github.com/edgeproxy/edgeproxy/internal/util/metrics"
)

const topPrefixLen = 120

// classCounters tracks per-origin/per-resource-type hit/miss/revalidated
// counts and cumulative bytes, mirroring the shape of Trickster's
// metrics.ProxyRequestStatus label set but accumulated in-process for the
// periodic report. The Prometheus series in internal/util/metrics are
// updated separately by the Stats methods; they do not read this type.
type classCounters struct {
	Hits         int64
	Revalidated  int64
	Misses       int64
	DocHits      int64
	DocMisses    int64
	BodyBytes    int64
	WireBytes    int64
}

// Stats accumulates the engine's runtime statistics (spec §4.3
// "Statistics"): counters per origin, per resource-type, and a bounded map
// of top URL prefixes (120 chars) by cumulative bytes.
type Stats struct {
	mu sync.Mutex

	byOrigin       map[string]*classCounters
	byResourceType map[string]*classCounters
	topPrefixes    map[string]int64

	evictions    int64
	dedupHits    int64
	bodyBytes    int64
	stalRescues  int64
}

func newStats() *Stats {
	return &Stats{
		byOrigin:       make(map[string]*classCounters),
		byResourceType: make(map[string]*classCounters),
		topPrefixes:    make(map[string]int64),
	}
}

func (s *Stats) originCounters(origin string) *classCounters {
	c, ok := s.byOrigin[origin]
	if !ok {
		c = &classCounters{}
		s.byOrigin[origin] = c
	}
	return c
}

func (s *Stats) resourceTypeCounters(resourceType string) *classCounters {
	c, ok := s.byResourceType[resourceType]
	if !ok {
		c = &classCounters{}
		s.byResourceType[resourceType] = c
	}
	return c
}

func (s *Stats) trackPrefix(url string, bodyBytes int64) {
	prefix := url
	if len(prefix) > topPrefixLen {
		prefix = prefix[:topPrefixLen]
	}
	s.topPrefixes[prefix] += bodyBytes
}

// Hit records a fresh or alias-promoted fresh serve (spec §4.3
// Statistics).
func (s *Stats) Hit(url, resourceType, origin string, bodyBytes, wireBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.originCounters(origin)
	o.Hits++
	o.BodyBytes += bodyBytes
	o.WireBytes += wireBytes
	r := s.resourceTypeCounters(resourceType)
	r.Hits++
	r.BodyBytes += bodyBytes
	r.WireBytes += wireBytes
	s.trackPrefix(url, bodyBytes)

	metrics.RequestsTotal.WithLabelValues("hit", origin, resourceType).Inc()
	metrics.BodyBytesServed.WithLabelValues("hit").Add(float64(bodyBytes))
	metrics.WireBytesSaved.WithLabelValues(origin).Add(float64(wireBytes))
}

// Revalidated records a successful conditional-revalidation (304) serve.
func (s *Stats) Revalidated(url, resourceType, origin string, bodyBytes, wireBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.originCounters(origin)
	o.Revalidated++
	o.BodyBytes += bodyBytes
	o.WireBytes += wireBytes
	r := s.resourceTypeCounters(resourceType)
	r.Revalidated++
	r.BodyBytes += bodyBytes
	r.WireBytes += wireBytes
	s.trackPrefix(url, bodyBytes)

	metrics.RequestsTotal.WithLabelValues("revalidated", origin, resourceType).Inc()
	metrics.BodyBytesServed.WithLabelValues("revalidated").Add(float64(bodyBytes))
	metrics.WireBytesSaved.WithLabelValues(origin).Add(float64(wireBytes))
}

// Miss records a cold-miss fetch-and-store.
func (s *Stats) Miss(url, resourceType, origin string, bodyBytes, wireBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.originCounters(origin)
	o.Misses++
	o.WireBytes += wireBytes
	r := s.resourceTypeCounters(resourceType)
	r.Misses++
	r.WireBytes += wireBytes

	metrics.RequestsTotal.WithLabelValues("miss", origin, resourceType).Inc()
}

// DocHit records a document conditional-revalidation serve.
func (s *Stats) DocHit(url, resourceType, origin string, bodyBytes, wireBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.originCounters(origin)
	o.DocHits++
	o.BodyBytes += bodyBytes
	o.WireBytes += wireBytes
	s.trackPrefix(url, bodyBytes)

	metrics.RequestsTotal.WithLabelValues("doc_hit", origin, resourceType).Inc()
	metrics.BodyBytesServed.WithLabelValues("doc_hit").Add(float64(bodyBytes))
}

// DocMiss records a document cold-fetch-and-store.
func (s *Stats) DocMiss(url, resourceType, origin string, bodyBytes, wireBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.originCounters(origin)
	o.DocMisses++
	o.WireBytes += wireBytes

	metrics.RequestsTotal.WithLabelValues("doc_miss", origin, resourceType).Inc()
}

// StaleRescue records a last-resort stale-rescue serve (spec §4.4 step 10);
// the spec requires no other stat mutation on this path beyond a log line,
// which the handler emits itself.
func (s *Stats) StaleRescue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalRescues++
}

func (s *Stats) recordDedup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedupHits++
}

func (s *Stats) recordEviction(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions += int64(count)
	metrics.EvictionsTotal.Add(float64(count))
}

func (s *Stats) addBodyBytes(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodyBytes += delta
	metrics.CacheBodyBytes.Set(float64(s.bodyBytes))
}

func (s *Stats) setBodyBytes(total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodyBytes = total
	metrics.CacheBodyBytes.Set(float64(total))
}

// Snapshot is a point-in-time, report-ready copy of the engine statistics.
type Snapshot struct {
	BodyBytes      int64
	Evictions      int64
	DedupHits      int64
	StaleRescues   int64
	ByOrigin       map[string]classCounters
	ByResourceType map[string]classCounters
	TopPrefixes    []PrefixUsage
}

// PrefixUsage is one entry of the top-URL-prefix-by-bytes report table.
type PrefixUsage struct {
	Prefix string
	Bytes  int64
}

// Snapshot returns a copy of the current statistics, with top URL prefixes
// sorted descending by cumulative bytes, truncated to limit entries (0
// means unbounded).
func (s *Stats) Snapshot(limit int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		BodyBytes:      s.bodyBytes,
		Evictions:      s.evictions,
		DedupHits:      s.dedupHits,
		StaleRescues:   s.stalRescues,
		ByOrigin:       make(map[string]classCounters, len(s.byOrigin)),
		ByResourceType: make(map[string]classCounters, len(s.byResourceType)),
	}
	for k, v := range s.byOrigin {
		out.ByOrigin[k] = *v
	}
	for k, v := range s.byResourceType {
		out.ByResourceType[k] = *v
	}

	prefixes := make([]PrefixUsage, 0, len(s.topPrefixes))
	for prefix, bytes := range s.topPrefixes {
		prefixes = append(prefixes, PrefixUsage{Prefix: prefix, Bytes: bytes})
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if prefixes[i].Bytes != prefixes[j].Bytes {
			return prefixes[i].Bytes > prefixes[j].Bytes
		}
		return prefixes[i].Prefix < prefixes[j].Prefix
	})
	if limit > 0 && len(prefixes) > limit {
		prefixes = prefixes[:limit]
	}
	out.TopPrefixes = prefixes

	return out
}
