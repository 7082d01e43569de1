package handler

// strippedOnReplay is the fixed set of headers that must never survive a
// cache replay or a pass-through fulfill (spec §4.4.3): the automation
// layer hands the handler an already-decompressed body, so replaying these
// would either corrupt it or describe a payload that no longer exists.
var strippedOnReplay = map[string]bool{
	"content-encoding":  true,
	"content-length":    true,
	"transfer-encoding": true,
}

// replayHeaders builds the header set for a cached-body fulfill: stored
// headers minus the stripped set, plus the x-edgeproxy observability
// headers (spec §4.4.3).
func replayHeaders(hc *Context, stored map[string]string) map[string][]string {
	out := filteredStoredHeaders(stored)
	out["x-edgeproxy"] = []string{"HIT"}
	out["x-edgeproxy-engine"] = []string{hc.engineHeader()}
	return out
}

// replayDocHeaders is replayHeaders with the DOC-HIT marker (spec §4.4.3).
func replayDocHeaders(hc *Context, stored map[string]string) map[string][]string {
	out := filteredStoredHeaders(stored)
	out["x-edgeproxy"] = []string{"DOC-HIT"}
	out["x-edgeproxy-engine"] = []string{hc.engineHeader()}
	return out
}

func filteredStoredHeaders(stored map[string]string) map[string][]string {
	out := make(map[string][]string, len(stored)+2)
	for k, v := range stored {
		if strippedOnReplay[k] {
			continue
		}
		out[k] = []string{v}
	}
	return out
}

// stripEncoding drops content-encoding/content-length/transfer-encoding
// from a live origin response before it is replayed to the browser (spec
// §4.4.3).
func stripEncoding(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, vs := range headers {
		if strippedOnReplay[toLowerASCII(k)] {
			continue
		}
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
