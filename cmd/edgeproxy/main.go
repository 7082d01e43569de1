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

// edgeproxy is the local CDN core: it owns the content-addressable storage
// engine and the request handler state machine, and exposes them to an
// out-of-module browser automation layer via the internal/intercept
// capability interfaces. main wires config, logging, metrics, tracing,
// storage, classification, and the periodic report together once, the way
// Trickster's main wires its own config/cache/routing singletons before
// serving traffic.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/edgeproxy/edgeproxy/internal/classifier"
	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/handler"
	"github.com/edgeproxy/edgeproxy/internal/report"
	"github.com/edgeproxy/edgeproxy/internal/report/httpd"
	"github.com/edgeproxy/edgeproxy/internal/storage"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
	"github.com/edgeproxy/edgeproxy/internal/util/metrics"
	"github.com/edgeproxy/edgeproxy/internal/util/tracing"
)

const applicationName = "edgeproxy"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(applicationName, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: fatal: %s\n", applicationName, err.Error())
		return 1
	}

	logger := log.New(log.ParseLevel(cfg.Logging.LogLevel), cfg.Logging.LogFile)
	for _, w := range config.LoaderWarnings {
		logger.Warn(w, log.Pairs{})
	}
	logger.Info("starting edgeproxy", log.Pairs{
		"cacheDir": cfg.Storage.CacheDir,
		"maxSize":  cfg.Storage.MaxSizeBytes,
	})

	flushTracer, err := tracing.SetTracer(
		tracing.TracerImplementations[cfg.Tracing.Implementation],
		cfg.Tracing.CollectorEndpoint,
	)
	if err != nil {
		logger.Error("failed to initialize tracer", log.Pairs{"error": err.Error()})
		return 1
	}
	defer flushTracer()

	engine, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to construct storage engine", log.Pairs{"error": err.Error()})
		return 1
	}
	if err := engine.Init(); err != nil {
		logger.Error("failed to initialize storage engine", log.Pairs{"error": err.Error()})
		return 1
	}

	cls := classifier.New(cfg.Classifier.ClassAPatterns, cfg.Classifier.ClassBPatterns, cfg.Classifier.AdInfrastructureSubstrings)

	hc := &handler.Context{
		Classifier:    cls,
		Engine:        engine,
		Logger:        logger,
		EngineName:    cfg.Main.EngineName,
		EngineVersion: cfg.Main.EngineVersion,
	}
	_ = hc // handed to the automation layer's per-request dispatch, out of this module's scope (spec §1)

	reporter := report.New(engine, report.JSONFormatter{}, logger, cfg.Report.Interval)
	reporter.Start()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.ListenAddress, cfg.Metrics.ListenPort),
		Handler: metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener exited", log.Pairs{"error": err.Error()})
		}
	}()

	reportServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Report.ListenAddress, cfg.Report.ListenPort),
		Handler: httpd.NewRouter(cfg.Report, reporter, logger),
	}
	go func() {
		if err := reportServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("report listener exited", log.Pairs{"error": err.Error()})
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	<-sigCh

	logger.Info("shutting down", log.Pairs{})
	reporter.Stop()
	if err := engine.Close(); err != nil {
		logger.Error("failed to flush storage engine on shutdown", log.Pairs{"error": err.Error()})
	}
	removeDisposableProfileDir(cfg.Browser.ProfileDirectory, logger)

	_ = reportServer.Close()
	_ = metricsServer.Close()

	return 0
}

// removeDisposableProfileDir deletes the browser automation layer's
// disposable profile directory on shutdown (spec §5), if one was
// configured; edgeproxy does not itself create or manage this directory's
// contents.
func removeDisposableProfileDir(dir string, logger *log.Logger) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove disposable browser profile directory", log.Pairs{"dir": dir, "error": err.Error()})
	}
}
