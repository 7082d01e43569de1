package handler

import (
	"context"

	"github.com/edgeproxy/edgeproxy/internal/intercept"
	"github.com/edgeproxy/edgeproxy/internal/normalizer"
)

// handleDocument implements the always-revalidate document sub-state
// machine (spec §4.4.2). Documents are never served from cache without a
// conditional round-trip to the origin.
func handleDocument(ctx context.Context, hc *Context, req intercept.Request, route intercept.Route) error {
	docKey := normalizer.DocKey(req.URL())
	meta := hc.Engine.PeekMeta(docKey)

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
				return route.Fulfill(ctx, 200, replayDocHeaders(hc, meta.Headers), body)
			}
			return route.Continue(ctx)
		}

		switch {
		case resp.Status() == 304:
			body, ok := hc.Engine.GetBlob(meta.BlobHash)
			if ok {
				hc.Engine.RefreshTTL(docKey)
				hc.Engine.Stats().DocHit(req.URL(), "document", "document", int64(len(body)), int64(len(body)))
			}
			return route.Fulfill(ctx, 200, replayDocHeaders(hc, meta.Headers), body)

		case resp.OK():
			body, berr := resp.Body()
			if berr != nil {
				body = nil
			}
			if hasValidatorHeaders(resp.Headers()) && len(body) > 0 {
				if err := hc.Engine.PutDocument(docKey, req.URL(), body, resp.Headers()); err != nil {
					hc.Logger.Warn("document cache put failed", nil)
				}
				wireBytes := wireBytesFrom(resp.Headers(), len(body))
				hc.Engine.Stats().DocMiss(req.URL(), "document", "document", int64(len(body)), wireBytes)
				return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
			}
			return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)

		default:
			body, berr := resp.Body()
			if berr != nil {
				body = nil
			}
			return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
		}
	}

	// No stored entry, or stored entry lacks validators: unconditional fetch.
	resp, err := route.Fetch(ctx, withVia(req.Headers()))
	if err != nil {
		return err
	}
	body, berr := resp.Body()
	if berr != nil {
		body = nil
	}
	if resp.OK() && len(body) > 0 && hasValidatorHeaders(resp.Headers()) {
		if err := hc.Engine.PutDocument(docKey, req.URL(), body, resp.Headers()); err != nil {
			hc.Logger.Warn("document cache put failed", nil)
		}
		wireBytes := wireBytesFrom(resp.Headers(), len(body))
		hc.Engine.Stats().DocMiss(req.URL(), "document", "document", int64(len(body)), wireBytes)
	}
	return route.Fulfill(ctx, resp.Status(), stripEncoding(resp.Headers()), body)
}

// hasValidatorHeaders reports whether a live response carries an ETag or
// Last-Modified header, the document-put gate from spec §4.4.2.
func hasValidatorHeaders(headers map[string][]string) bool {
	for k, vs := range headers {
		if len(vs) == 0 {
			continue
		}
		lk := toLowerASCII(k)
		if lk == "etag" || lk == "last-modified" {
			return true
		}
	}
	return false
}
