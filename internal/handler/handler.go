// Package handler implements the Request Handler state machine (spec
// §4.4): bypass, fresh-hit, conditional revalidation, cold miss, and
// stale-rescue for cacheable assets, plus the always-revalidate
// sub-machine for documents. It is written as a pure function over the
// intercept capability interfaces and a Context value bundling the
// classifier, normalizer, storage engine, and logger — per spec §9's
// design note to avoid global state and thread a Context through instead.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/classifier"
	"github.com/edgeproxy/edgeproxy/internal/intercept"
	"github.com/edgeproxy/edgeproxy/internal/normalizer"
	"github.com/edgeproxy/edgeproxy/internal/storage"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
	"github.com/edgeproxy/edgeproxy/internal/util/metrics"
)

const viaHeaderValue = "1.1 CDN_EdgeProxy"

// cacheableResourceTypes is the cacheability screen from spec §4.4 step 3.
var cacheableResourceTypes = map[string]bool{
	"stylesheet": true, "script": true, "image": true, "font": true,
	"media": true, "fetch": true, "xhr": true,
}

// Context bundles the collaborators the handler needs, threaded through
// from main rather than reached for as package globals (spec §9).
type Context struct {
	Classifier *classifier.Classifier
	Engine     *storage.Engine
	Logger     *log.Logger

	EngineName    string
	EngineVersion string
}

func (c *Context) engineHeader() string {
	return fmt.Sprintf("%s/%s", c.EngineName, c.EngineVersion)
}

// Handle is entered once per intercepted request (spec §4.4). It invokes
// exactly one of route.Continue, route.Fulfill, or returns an error for
// the caller to propagate to the automation layer.
func Handle(ctx context.Context, hc *Context, req intercept.Request, route intercept.Route) error {
	start := time.Now()
	err := handle(ctx, hc, req, route)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.HandlerDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return err
}

func handle(ctx context.Context, hc *Context, req intercept.Request, route intercept.Route) error {
	if req.Method() != "GET" {
		return route.Continue(ctx)
	}

	resourceType := req.ResourceType()

	if resourceType == "document" {
		return handleDocument(ctx, hc, req, route)
	}

	if !cacheableResourceTypes[resourceType] {
		return route.Continue(ctx)
	}

	result := hc.Classifier.Classify(req.URL(), resourceType)
	if result.Class == classifier.ClassAuction || result.Class == classifier.ClassBeacon {
		return route.Continue(ctx)
	}
	origin := string(result.Origin)

	canonical := normalizer.Canonical(req.URL(), origin)
	cacheKey := normalizer.Key(canonical)
	aliasKey := normalizer.Alias(req.URL())

	meta := hc.Engine.PeekMetaAllowStale(cacheKey)
	metaKey := cacheKey
	usedAlias := false
	if meta == nil && aliasKey != "" {
		var resolvedKey string
		meta, resolvedKey = hc.Engine.PeekAlias(aliasKey)
		if meta != nil {
			usedAlias = true
			metaKey = resolvedKey
		}
	}

	// Fresh-hit branch (spec §4.4 step 7).
	if meta != nil && hc.Engine.IsFresh(meta) {
		if body, ok := hc.Engine.GetBlob(meta.BlobHash); ok {
			hc.Engine.Stats().Hit(req.URL(), resourceType, origin, int64(len(body)), int64(len(body)))
			return route.Fulfill(ctx, 200, replayHeaders(hc, meta.Headers), body)
		}
		meta = nil
	}

	// Conditional-revalidate branch (spec §4.4 step 8).
	if meta != nil && meta.HasValidators() {
		condHeaders := cloneHeaders(req.Headers())
		condHeaders["via"] = []string{viaHeaderValue}
		if meta.ETag != "" {
			condHeaders["if-none-match"] = []string{meta.ETag}
		}
		if meta.LastModified != "" {
			condHeaders["if-modified-since"] = []string{meta.LastModified}
		}

		resp, err := route.Fetch(ctx, condHeaders)
		if err != nil {
			if body, ok := hc.Engine.GetBlob(meta.BlobHash); ok {
				hc.Engine.Stats().Hit(req.URL(), resourceType, origin, int64(len(body)), int64(len(body)))
				return route.Fulfill(ctx, 200, replayHeaders(hc, meta.Headers), body)
			}
			// fall through to cold miss
		} else {
			switch {
			case resp.Status() == 304:
				body, ok := hc.Engine.GetBlob(meta.BlobHash)
				if ok {
					hc.Engine.RefreshTTL(metaKey)
					if usedAlias {
						if err := hc.Engine.Put(cacheKey, req.URL(), body, headersToMap(meta.Headers), resourceType, origin, aliasKey); err != nil {
							hc.Logger.Warn("alias promotion put failed", log.Pairs{"error": err.Error()})
						}
					}
					hc.Engine.Stats().Revalidated(req.URL(), resourceType, origin, int64(len(body)), int64(len(body)))
				}
				return route.Fulfill(ctx, 200, replayHeaders(hc, meta.Headers), body)
			default:
				body, berr := resp.Body()
				if berr != nil {
					body = nil
				}
				wireBytes := wireBytesFrom(resp.Headers(), len(body))
				if (resourceType == "fetch" || resourceType == "xhr") && !classifier.ShouldCacheByContentType(contentType(resp.Headers())) {
					hc.Engine.Stats().Miss(req.URL(), resourceType, origin, 0, wireBytes)
					return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
				}
				if err := hc.Engine.Put(cacheKey, req.URL(), body, resp.Headers(), resourceType, origin, aliasKey); err != nil {
					hc.Logger.Warn("cache put failed, serving uncached", log.Pairs{"error": err.Error()})
				}
				hc.Engine.Stats().Miss(req.URL(), resourceType, origin, int64(len(body)), wireBytes)
				return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
			}
		}
	}

	// Cold miss branch (spec §4.4 step 9).
	resp, err := route.Fetch(ctx, withVia(req.Headers()))
	if err != nil {
		// Last-resort stale-rescue (spec §4.4 step 10). Entries past
		// stale_ttl are absent to the validator-aware lookup above (spec §3
		// invariant 5), but are still rescuable here: meta from the earlier
		// lookup is reused when present, and the unconditional PeekMeta is
		// consulted only when that lookup found nothing.
		rescueMeta := meta
		if rescueMeta == nil {
			rescueMeta = hc.Engine.PeekMeta(cacheKey)
		}
		if rescueMeta != nil {
			if body, ok := hc.Engine.GetBlob(rescueMeta.BlobHash); ok {
				hc.Engine.Stats().StaleRescue()
				hc.Logger.Info("stale-rescue: serving cached copy after fetch failure", log.Pairs{"url": req.URL(), "error": err.Error()})
				return route.Fulfill(ctx, 200, replayHeaders(hc, rescueMeta.Headers), body)
			}
		}
		return err
	}

	body, berr := resp.Body()
	if berr != nil {
		body = nil
	}
	wireBytes := wireBytesFrom(resp.Headers(), len(body))

	if (resourceType == "fetch" || resourceType == "xhr") && !classifier.ShouldCacheByContentType(contentType(resp.Headers())) {
		hc.Engine.Stats().Miss(req.URL(), resourceType, origin, 0, wireBytes)
		return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
	}

	if resp.OK() && len(body) > 0 {
		if err := hc.Engine.Put(cacheKey, req.URL(), body, resp.Headers(), resourceType, origin, aliasKey); err != nil {
			hc.Logger.Warn("cache put failed, serving uncached", log.Pairs{"error": err.Error()})
		}
		hc.Engine.Stats().Miss(req.URL(), resourceType, origin, int64(len(body)), wireBytes)
		return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
	}

	hc.Engine.Stats().Miss(req.URL(), resourceType, origin, 0, wireBytes)
	return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
}

func withVia(headers map[string][]string) map[string][]string {
	out := cloneHeaders(headers)
	out["via"] = []string{viaHeaderValue}
	return out
}

func cloneHeaders(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func headersToMap(stored map[string]string) map[string][]string {
	out := make(map[string][]string, len(stored))
	for k, v := range stored {
		out[k] = []string{v}
	}
	return out
}

func contentType(headers map[string][]string) string {
	for k, vs := range headers {
		if equalFoldASCII(k, "content-type") && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func wireBytesFrom(headers map[string][]string, bodyLen int) int64 {
	for k, vs := range headers {
		if equalFoldASCII(k, "content-length") && len(vs) > 0 {
			var n int64
			if _, err := fmt.Sscanf(vs[0], "%d", &n); err == nil && n > 0 {
				return n
			}
		}
	}
	return int64(bodyLen)
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
