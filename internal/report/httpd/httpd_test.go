package httpd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/report"
	"github.com/edgeproxy/edgeproxy/internal/storage"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
)

func newTestReportConfig() *config.ReportConfig {
	return &config.ReportConfig{
		PingPath:   "/edgeproxy/ping",
		ConfigPath: "/edgeproxy/config",
		ReportPath: "/edgeproxy/report",
		Interval:   time.Hour,
	}
}

func newTestReporter(t *testing.T) *report.Reporter {
	t.Helper()
	cfg := &config.StorageConfig{
		CacheDir:     t.TempDir(),
		MaxSizeBytes: 1 << 20,
		BodyTTL:      time.Hour,
		StaleTTL:     time.Hour,
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
	return report.New(engine, report.JSONFormatter{}, log.Nop(), time.Hour)
}

func TestPingHandlerReturnsPong(t *testing.T) {
	router := NewRouter(newTestReportConfig(), newTestReporter(t), log.Nop())

	req := httptest.NewRequest(http.MethodGet, "/edgeproxy/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Fatalf("body = %q, want pong", rec.Body.String())
	}
}

func TestConfigHandlerReturnsRedactedConfig(t *testing.T) {
	config.Config = config.NewConfig()
	config.Config.Storage.Redis.Password = "topsecret"

	router := NewRouter(newTestReportConfig(), newTestReporter(t), log.Nop())
	req := httptest.NewRequest(http.MethodGet, "/edgeproxy/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); len(got) == 0 {
		t.Fatalf("expected non-empty config dump")
	}
}

func TestReportHandlerReturns503BeforeReporterStarted(t *testing.T) {
	router := NewRouter(newTestReportConfig(), newTestReporter(t), log.Nop())
	req := httptest.NewRequest(http.MethodGet, "/edgeproxy/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before the reporter has produced anything", rec.Code)
	}
}

func TestReportHandlerReturnsLatestReportAfterStart(t *testing.T) {
	reporter := newTestReporter(t)
	reporter.Start()
	defer reporter.Stop()

	router := NewRouter(newTestReportConfig(), reporter, log.Nop())
	req := httptest.NewRequest(http.MethodGet, "/edgeproxy/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("content-type") != "application/json; charset=utf-8" {
		t.Fatalf("content-type = %q", rec.Header().Get("content-type"))
	}
	if rec.Header().Get("x-edgeproxy-report-generated-at") == "" {
		t.Fatalf("expected x-edgeproxy-report-generated-at header to be set")
	}
}

func TestReportHandlerReturnsTextFormatWhenRequested(t *testing.T) {
	reporter := newTestReporter(t)
	reporter.Start()
	defer reporter.Stop()

	router := NewRouter(newTestReportConfig(), reporter, log.Nop())
	req := httptest.NewRequest(http.MethodGet, "/edgeproxy/report?format=text", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("content-type") != "text/plain; charset=utf-8" {
		t.Fatalf("content-type = %q", rec.Header().Get("content-type"))
	}
	if !strings.Contains(rec.Body.String(), `msg="edgeproxy report"`) {
		t.Fatalf("body = %q, want the report header line", rec.Body.String())
	}
}
