// Package httpd exposes the periodic report, a liveness ping, and a
// redacted configuration dump over a small gorilla/mux-routed HTTP
// surface, mirroring the shape (named routes, gorilla/handlers access
// logging) of Trickster's own administrative HTTP listener.
package httpd

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/report"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
	"github.com/edgeproxy/edgeproxy/internal/util/middleware"
)

// NewRouter builds the report httpd's route table: ping, config, and
// report, each wrapped in the tracing middleware and combined access
// logging (spec §6 report HTTP surface, as elaborated in this module's
// expanded specification).
func NewRouter(cfg *config.ReportConfig, reporter *report.Reporter, logger *log.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Trace("edgeproxy-report"))

	router.HandleFunc(cfg.PingPath, pingHandler).Methods(http.MethodGet).Name("ping")
	router.HandleFunc(cfg.ConfigPath, configHandler).Methods(http.MethodGet).Name("config")
	router.HandleFunc(cfg.ReportPath, reportHandler(reporter)).Methods(http.MethodGet).Name("report")

	return handlers.CombinedLoggingHandler(accessLogWriter{logger}, router)
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func configHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(config.Config.String()))
}

// reportHandler serves the periodic report as JSON by default, or as
// logfmt-style text when the caller asks for ?format=text (SPEC_FULL.md
// §REPORT).
func reportHandler(reporter *report.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			data        []byte
			generatedAt time.Time
			err         error
			contentType string
		)
		if r.URL.Query().Get("format") == "text" {
			contentType = "text/plain; charset=utf-8"
			data, generatedAt, err = reporter.FormatWith(report.TextFormatter{})
		} else {
			contentType = "application/json; charset=utf-8"
			data, generatedAt = reporter.Latest()
		}

		w.Header().Set("content-type", contentType)
		w.Header().Set("x-edgeproxy-report-generated-at", generatedAt.UTC().Format(time.RFC3339))
		if err != nil || len(data) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// accessLogWriter adapts the structured *log.Logger to the io.Writer the
// gorilla/handlers combined logging format expects.
type accessLogWriter struct {
	logger *log.Logger
}

func (a accessLogWriter) Write(p []byte) (int, error) {
	a.logger.Info("access log", log.Pairs{"line": string(p)})
	return len(p), nil
}
