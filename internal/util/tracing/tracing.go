/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package tracing wires OpenTelemetry around the report httpd admin surface
// (the request handler and storage engine create no spans), selecting a
// stdout or Jaeger exporter per configuration, the way Trickster's
// internal/util/tracing selects a provider for proxied-origin spans.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/api/core"
	"go.opentelemetry.io/otel/api/distributedcontext"
	"go.opentelemetry.io/otel/api/global"
	"go.opentelemetry.io/otel/api/trace"
	"go.opentelemetry.io/otel/plugin/httptrace"
)

// ServiceName identifies this process to the configured trace exporter.
var ServiceName = "edgeproxy"

// Name returns the tracer name reported by spans, combining the configured
// engine name and version (spec §6 x-edgeproxy-engine pairing).
func Name(engineName, engineVersion string) string {
	return fmt.Sprintf("%s/%s", engineName, engineVersion)
}

// SpanFromContext starts a child span named spanName using the tracer,
// attributes, and parent span context already attached to ctx by
// PrepareRequest. The request handler does not call it; no span is started
// around storage lookups or outbound fetches.
func SpanFromContext(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracerName, ok := ctx.Value(tracerCtxKey).(string)
	if !ok {
		tracerName = ServiceName
	}
	tr := global.TraceProvider().Tracer(tracerName)

	var attrs []core.KeyValue
	if a, ok := ctx.Value(attrKey).([]core.KeyValue); ok {
		attrs = a
	}
	var spanCtx core.SpanContext
	if sc, ok := ctx.Value(spanCtxKey).(core.SpanContext); ok {
		spanCtx = sc
	}

	return tr.Start(
		ctx,
		spanName,
		trace.WithAttributes(attrs...),
		trace.ChildOf(spanCtx),
	)
}

// PrepareRequest extracts distributed-tracing context from an inbound
// report-httpd admin request and starts the root span for it (spec §6
// report HTTP surface).
func PrepareRequest(r *http.Request, tracerName string, spanName string) (*http.Request, trace.Span) {
	attrs, entries, spanCtx := httptrace.Extract(r.Context(), r)

	ctx := distributedcontext.WithMap(
		r.Context(),
		distributedcontext.NewMap(
			distributedcontext.MapUpdate{
				MultiKV: entries,
			},
		),
	)

	ctx = context.WithValue(ctx, attrKey, attrs)
	ctx = context.WithValue(ctx, spanCtxKey, spanCtx)
	ctx = context.WithValue(ctx, tracerCtxKey, tracerName)

	tr := global.TraceProvider().Tracer(tracerName)

	ctx, span := tr.Start(
		ctx,
		spanName,
		trace.WithAttributes(attrs...),
		trace.ChildOf(spanCtx),
	)

	return r.WithContext(ctx), span
}

type ctxSpanType struct{}
type ctxAttrType struct{}
type tracerCtxType struct{}

var (
	attrKey      = ctxAttrType{}
	spanCtxKey   = &ctxSpanType{}
	tracerCtxKey = &tracerCtxType{}
)
