package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/classifier"
	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/intercept"
	"github.com/edgeproxy/edgeproxy/internal/storage"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
)

type fakeRequest struct {
	method       string
	url          string
	resourceType string
	headers      map[string][]string
}

func (r *fakeRequest) Method() string              { return r.method }
func (r *fakeRequest) URL() string                 { return r.url }
func (r *fakeRequest) ResourceType() string        { return r.resourceType }
func (r *fakeRequest) Headers() map[string][]string { return r.headers }

type fakeResponse struct {
	status  int
	headers map[string][]string
	body    []byte
	bodyErr error
}

func (r *fakeResponse) Status() int                  { return r.status }
func (r *fakeResponse) OK() bool                     { return r.status >= 200 && r.status < 300 }
func (r *fakeResponse) Headers() map[string][]string { return r.headers }
func (r *fakeResponse) Body() ([]byte, error)        { return r.body, r.bodyErr }

type fakeRoute struct {
	continued   bool
	fulfilled   bool
	fulfillStat int
	fulfillHdr  map[string][]string
	fulfillBody []byte

	fetchResp *fakeResponse
	fetchErr  error
}

func (r *fakeRoute) Continue(ctx context.Context) error {
	r.continued = true
	return nil
}

func (r *fakeRoute) Fetch(ctx context.Context, headers map[string][]string) (intercept.Response, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.fetchResp, nil
}

func (r *fakeRoute) Fulfill(ctx context.Context, status int, headers map[string][]string, body []byte) error {
	r.fulfilled = true
	r.fulfillStat = status
	r.fulfillHdr = headers
	r.fulfillBody = body
	return nil
}

// newTestContext builds a Context over a real (temp-dir-backed) storage
// engine and classifier, with a generous body/stale TTL so fresh-hit tests
// are not timing-sensitive.
func newTestContext(t *testing.T) (*Context, *storage.Engine) {
	t.Helper()
	engine := newTestEngineWithTTL(t, time.Hour, time.Hour)
	cls := classifier.New(nil, nil, []string{"doubleclick.net"})
	return &Context{
		Classifier:    cls,
		Engine:        engine,
		Logger:        log.Nop(),
		EngineName:    "edgeproxy",
		EngineVersion: "test",
	}, engine
}

func newTestEngineWithTTL(t *testing.T, bodyTTL, staleTTL time.Duration) *storage.Engine {
	t.Helper()
	cfg := &config.StorageConfig{
		CacheDir:     t.TempDir(),
		MaxSizeBytes: 1 << 20,
		BodyTTL:      bodyTTL,
		StaleTTL:     staleTTL,
		Debounce:     time.Hour,
		IndexBackend: "filesystem",
	}
	engine, err := storage.New(cfg, log.Nop())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if err := engine.Init(); err != nil {
		t.Fatalf("engine.Init() error = %v", err)
	}
	return engine
}

func TestHandleNonGetMethodContinues(t *testing.T) {
	hc, _ := newTestContext(t)
	req := &fakeRequest{method: "POST", url: "https://example.com/submit", resourceType: "xhr"}
	route := &fakeRoute{}

	if err := Handle(context.Background(), hc, req, route); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !route.continued {
		t.Fatalf("expected non-GET request to Continue")
	}
}

func TestHandleNonCacheableResourceTypeContinues(t *testing.T) {
	hc, _ := newTestContext(t)
	req := &fakeRequest{method: "GET", url: "https://example.com/page", resourceType: "websocket"}
	route := &fakeRoute{}

	if err := Handle(context.Background(), hc, req, route); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !route.continued {
		t.Fatalf("expected non-cacheable resource type to Continue")
	}
}

func TestHandleAuctionClassBypassesCache(t *testing.T) {
	hc, _ := newTestContext(t)
	hc.Classifier = classifier.New([]string{"*/auction/*"}, nil, nil)
	req := &fakeRequest{method: "GET", url: "https://exchange.example.com/auction/bid", resourceType: "xhr"}
	route := &fakeRoute{}

	if err := Handle(context.Background(), hc, req, route); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !route.continued {
		t.Fatalf("expected auction-class traffic to Continue (bypass)")
	}
}

func TestHandleColdMissStoresAndServes(t *testing.T) {
	hc, engine := newTestContext(t)
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/app.js", resourceType: "script"}
	route := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}, "etag": {`"v1"`}},
			body:    []byte("console.log(1)"),
		},
	}

	if err := Handle(context.Background(), hc, req, route); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !route.fulfilled || route.fulfillStat != 200 {
		t.Fatalf("expected Fulfill(200), got fulfilled=%v status=%d", route.fulfilled, route.fulfillStat)
	}
	if string(route.fulfillBody) != "console.log(1)" {
		t.Fatalf("unexpected fulfilled body: %q", route.fulfillBody)
	}
	if engine.Stats().Snapshot(0).ByOrigin["third-party"].Misses != 1 {
		t.Fatalf("expected one miss recorded")
	}
}

func TestHandleFreshHitServesFromCacheWithObservabilityHeader(t *testing.T) {
	hc, _ := newTestContext(t)
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/app.js", resourceType: "script"}

	warmRoute := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}},
			body:    []byte("console.log(1)"),
		},
	}
	if err := Handle(context.Background(), hc, req, warmRoute); err != nil {
		t.Fatalf("warm Handle() error = %v", err)
	}

	hitRoute := &fakeRoute{}
	if err := Handle(context.Background(), hc, req, hitRoute); err != nil {
		t.Fatalf("hit Handle() error = %v", err)
	}
	if !hitRoute.fulfilled {
		t.Fatalf("expected second request to be served from cache")
	}
	if got := hitRoute.fulfillHdr["x-edgeproxy"]; len(got) != 1 || got[0] != "HIT" {
		t.Fatalf("x-edgeproxy header = %v, want [HIT]", got)
	}
	if string(hitRoute.fulfillBody) != "console.log(1)" {
		t.Fatalf("unexpected cached body: %q", hitRoute.fulfillBody)
	}
}

func TestHandleConditionalRevalidate304ReusesBody(t *testing.T) {
	// A near-zero body TTL means the entry is immediately stale-but-valid,
	// forcing the conditional-revalidate branch on the very next request.
	engine := newTestEngineWithTTL(t, time.Millisecond, time.Hour)
	hc := &Context{
		Classifier:    classifier.New(nil, nil, nil),
		Engine:        engine,
		Logger:        log.Nop(),
		EngineName:    "edgeproxy",
		EngineVersion: "test",
	}
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/app.js", resourceType: "script"}

	warmRoute := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}, "etag": {`"v1"`}},
			body:    []byte("console.log(1)"),
		},
	}
	if err := Handle(context.Background(), hc, req, warmRoute); err != nil {
		t.Fatalf("warm Handle() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	revalRoute := &fakeRoute{fetchResp: &fakeResponse{status: 304}}
	if err := Handle(context.Background(), hc, req, revalRoute); err != nil {
		t.Fatalf("revalidate Handle() error = %v", err)
	}
	if !revalRoute.fulfilled || revalRoute.fulfillStat != 200 {
		t.Fatalf("expected 304 revalidation to Fulfill(200) with the cached body, got fulfilled=%v status=%d", revalRoute.fulfilled, revalRoute.fulfillStat)
	}
	if string(revalRoute.fulfillBody) != "console.log(1)" {
		t.Fatalf("expected the previously stored body to be replayed, got %q", revalRoute.fulfillBody)
	}
	if engine.Stats().Snapshot(0).ByOrigin["third-party"].Revalidated != 1 {
		t.Fatalf("expected one revalidation recorded")
	}
}

func TestHandleConditionalRevalidate200ReplacesStoredBody(t *testing.T) {
	engine := newTestEngineWithTTL(t, time.Millisecond, time.Hour)
	hc := &Context{
		Classifier:    classifier.New(nil, nil, nil),
		Engine:        engine,
		Logger:        log.Nop(),
		EngineName:    "edgeproxy",
		EngineVersion: "test",
	}
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/app.js", resourceType: "script"}

	warmRoute := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}, "etag": {`"v1"`}},
			body:    []byte("old body"),
		},
	}
	if err := Handle(context.Background(), hc, req, warmRoute); err != nil {
		t.Fatalf("warm Handle() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	updateRoute := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}, "etag": {`"v2"`}},
			body:    []byte("new body"),
		},
	}
	if err := Handle(context.Background(), hc, req, updateRoute); err != nil {
		t.Fatalf("update Handle() error = %v", err)
	}
	if string(updateRoute.fulfillBody) != "new body" {
		t.Fatalf("expected updated origin body to be served, got %q", updateRoute.fulfillBody)
	}
}

func TestHandleFetchErrorWithNoStoredEntryPropagates(t *testing.T) {
	hc, _ := newTestContext(t)
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/other.js", resourceType: "script"}
	failRoute := &fakeRoute{fetchErr: errors.New("network unreachable")}

	err := Handle(context.Background(), hc, req, failRoute)
	if err == nil {
		t.Fatalf("expected cold-miss fetch error to propagate when nothing is cached")
	}
}

func TestHandleFetchErrorWithStoredEntryStaleRescues(t *testing.T) {
	// No validators means the fresh-hit path is the only way to have a
	// stored entry without an ETag/Last-Modified; once stale (past body
	// TTL but within stale TTL) with no validators, the handler falls
	// through cold-miss and, on fetch error, serves the last-resort
	// stale-rescue copy.
	engine := newTestEngineWithTTL(t, time.Millisecond, time.Hour)
	hc := &Context{
		Classifier:    classifier.New(nil, nil, nil),
		Engine:        engine,
		Logger:        log.Nop(),
		EngineName:    "edgeproxy",
		EngineVersion: "test",
	}
	req := &fakeRequest{method: "GET", url: "https://cdn.example.com/app.js", resourceType: "script"}

	warmRoute := &fakeRoute{
		fetchResp: &fakeResponse{
			status:  200,
			headers: map[string][]string{"content-type": {"application/javascript"}},
			body:    []byte("console.log(1)"),
		},
	}
	if err := Handle(context.Background(), hc, req, warmRoute); err != nil {
		t.Fatalf("warm Handle() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	failRoute := &fakeRoute{fetchErr: errors.New("network unreachable")}
	if err := Handle(context.Background(), hc, req, failRoute); err != nil {
		t.Fatalf("Handle() error = %v, want nil (stale-rescue should recover)", err)
	}
	if !failRoute.fulfilled {
		t.Fatalf("expected stale-rescue to Fulfill from the stale cached copy")
	}
	if string(failRoute.fulfillBody) != "console.log(1)" {
		t.Fatalf("expected stale body to be replayed, got %q", failRoute.fulfillBody)
	}
}
