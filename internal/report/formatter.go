package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/storage"
)

// JSONFormatter renders a storage.Snapshot as indented JSON, the format
// served by the /edgeproxy/report admin endpoint.
type JSONFormatter struct{}

type jsonReport struct {
	GeneratedAt    time.Time                        `json:"generatedAt"`
	BodyBytes      int64                            `json:"bodyBytes"`
	Evictions      int64                            `json:"evictions"`
	DedupHits      int64                            `json:"dedupHits"`
	StaleRescues   int64                            `json:"staleRescues"`
	ByOrigin       map[string]classCountersJSON     `json:"byOrigin"`
	ByResourceType map[string]classCountersJSON     `json:"byResourceType"`
	TopPrefixes    []storage.PrefixUsage            `json:"topPrefixes"`
}

type classCountersJSON struct {
	Hits        int64 `json:"hits"`
	Revalidated int64 `json:"revalidated"`
	Misses      int64 `json:"misses"`
	DocHits     int64 `json:"docHits"`
	DocMisses   int64 `json:"docMisses"`
	BodyBytes   int64 `json:"bodyBytes"`
	WireBytes   int64 `json:"wireBytes"`
}

// Format implements Formatter.
func (JSONFormatter) Format(snapshot storage.Snapshot, generatedAt time.Time) ([]byte, error) {
	out := jsonReport{
		GeneratedAt:    generatedAt,
		BodyBytes:      snapshot.BodyBytes,
		Evictions:      snapshot.Evictions,
		DedupHits:      snapshot.DedupHits,
		StaleRescues:   snapshot.StaleRescues,
		ByOrigin:       make(map[string]classCountersJSON, len(snapshot.ByOrigin)),
		ByResourceType: make(map[string]classCountersJSON, len(snapshot.ByResourceType)),
		TopPrefixes:    snapshot.TopPrefixes,
	}
	for k, v := range snapshot.ByOrigin {
		out.ByOrigin[k] = classCountersJSON(v)
	}
	for k, v := range snapshot.ByResourceType {
		out.ByResourceType[k] = classCountersJSON(v)
	}
	return json.MarshalIndent(out, "", "  ")
}

// TextFormatter renders a storage.Snapshot as logfmt-style lines matching
// this system's own log-line style (internal/util/log), served by
// /edgeproxy/report when the client asks for ?format=text.
type TextFormatter struct{}

// Format implements Formatter.
func (TextFormatter) Format(snapshot storage.Snapshot, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ts=%s msg=\"edgeproxy report\" bodyBytes=%d evictions=%d dedupHits=%d staleRescues=%d\n",
		generatedAt.UTC().Format(time.RFC3339), snapshot.BodyBytes, snapshot.Evictions, snapshot.DedupHits, snapshot.StaleRescues)

	originCounters := make(map[string]classCountersJSON, len(snapshot.ByOrigin))
	for k, v := range snapshot.ByOrigin {
		originCounters[k] = classCountersJSON(v)
	}
	resourceTypeCounters := make(map[string]classCountersJSON, len(snapshot.ByResourceType))
	for k, v := range snapshot.ByResourceType {
		resourceTypeCounters[k] = classCountersJSON(v)
	}

	writeCounters(&buf, "origin", originCounters)
	writeCounters(&buf, "resourceType", resourceTypeCounters)

	for _, p := range snapshot.TopPrefixes {
		fmt.Fprintf(&buf, "prefix=%q bytes=%d\n", p.Prefix, p.Bytes)
	}

	return buf.Bytes(), nil
}

func writeCounters(buf *bytes.Buffer, label string, counters map[string]classCountersJSON) {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := counters[k]
		fmt.Fprintf(buf, "%s=%q hits=%d revalidated=%d misses=%d docHits=%d docMisses=%d bodyBytes=%d wireBytes=%d\n",
			label, k, c.Hits, c.Revalidated, c.Misses, c.DocHits, c.DocMisses, c.BodyBytes, c.WireBytes)
	}
}
