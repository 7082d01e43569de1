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

// Package config holds the running configuration for edgeproxy: the TOML
// file format, its defaults, and the merge-with-environment-and-flags
// loader. The shape follows Trickster's own config package — a top-level
// struct with named subsections, synthesized (derived, `toml:"-"`) fields
// computed once at load time, and a redacting String() for safe dumping.
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the process-wide running configuration, set once by Load and
// read thereafter. Request-path code should prefer the *EdgeProxyConfig
// threaded through the engine Context over this global where possible; it
// exists for the same reason Trickster's does: CLI flag handling, the
// /edgeproxy/config handler, and anything initialized before the Context
// exists need somewhere to look.
var Config *EdgeProxyConfig

// LoaderWarnings holds warnings generated during config load (before the
// logger is initialized) so they can be logged once logging is available.
var LoaderWarnings = make([]string, 0)

// EdgeProxyConfig is the root of the TOML configuration file.
type EdgeProxyConfig struct {
	Main       *MainConfig       `toml:"main"`
	Storage    *StorageConfig    `toml:"storage"`
	Classifier *ClassifierConfig `toml:"classifier"`
	Browser    *BrowserConfig    `toml:"browser"`
	Report     *ReportConfig     `toml:"report"`
	Logging    *LoggingConfig    `toml:"logging"`
	Metrics    *MetricsConfig    `toml:"metrics"`
	Tracing    *TracingConfig    `toml:"tracing"`

	// meta records which keys loadFile actually found in the config file, so
	// finalize can tell an explicitly-set zero value apart from one that was
	// never in the file at all.
	meta toml.MetaData
}

// MainConfig holds general process identity values.
type MainConfig struct {
	// InstanceID distinguishes multiple edgeproxy instances sharing a host.
	InstanceID int `toml:"instance_id"`
	// EngineName/EngineVersion are reported via the x-edgeproxy-engine
	// observability header (spec §6).
	EngineName    string `toml:"-"`
	EngineVersion string `toml:"-"`
}

// StorageConfig configures the content-addressable storage engine (spec §4.3).
type StorageConfig struct {
	// CacheDir is the root directory for blobs/ and the index snapshot files.
	CacheDir string `toml:"cache_dir"`
	// MaxSizeBytes is the on-disk body byte budget before eviction triggers.
	MaxSizeBytes int64 `toml:"max_size_bytes"`
	// BodyTTLMs is the freshness window in milliseconds.
	BodyTTLMs int64 `toml:"body_ttl_ms"`
	// DebounceMs is how long after the first dirty mark the scheduled flush runs.
	DebounceMs int64 `toml:"debounce_ms"`
	// Compression enables snappy compression of blob bytes at rest.
	Compression bool `toml:"compression"`
	// IndexBackend selects how the metadata/alias index is persisted:
	// "filesystem" (plain JSON, the spec-mandated default), "badger",
	// "bbolt", or "redis".
	IndexBackend string `toml:"index_backend"`

	Badger BadgerIndexConfig `toml:"badger"`
	BBolt  BBoltIndexConfig  `toml:"bbolt"`
	Redis  RedisIndexConfig  `toml:"redis"`

	// Synthesized
	BodyTTL  time.Duration `toml:"-"`
	StaleTTL time.Duration `toml:"-"`
	Debounce time.Duration `toml:"-"`
}

// BadgerIndexConfig configures the optional BadgerDB index backend.
type BadgerIndexConfig struct {
	Directory string `toml:"directory"`
}

// BBoltIndexConfig configures the optional BBolt index backend.
type BBoltIndexConfig struct {
	Filename string `toml:"filename"`
	Bucket   string `toml:"bucket"`
}

// RedisIndexConfig configures the optional Redis index backend.
type RedisIndexConfig struct {
	ClientType string `toml:"client_type"`
	Protocol   string `toml:"protocol"`
	Endpoint   string `toml:"endpoint"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
}

// ClassifierConfig configures the Traffic Classifier (spec §4.2). The
// pattern lists are deliberately left to the deploying operator — the
// source repo this spec was distilled from loaded them from a
// default.json not included in the snapshot (spec §9, Open Question).
type ClassifierConfig struct {
	// ClassAPatterns are glob-ish patterns classifying auction/decisioning traffic.
	ClassAPatterns []string `toml:"class_a_patterns"`
	// ClassBPatterns are glob-ish patterns classifying measurement/beacon traffic.
	ClassBPatterns []string `toml:"class_b_patterns"`
	// AdInfrastructureSubstrings is the curated hostname/URL substring set
	// used to derive the "ad" origin label.
	AdInfrastructureSubstrings []string `toml:"ad_infrastructure_substrings"`
}

// BrowserConfig is pass-through configuration for the automation layer
// that owns the instrumented browser; edgeproxy's core never inspects it.
type BrowserConfig struct {
	Channel          string `toml:"channel"`
	ProfileDirectory string `toml:"profile_directory"`
}

// ReportConfig configures the periodic report and its HTTP delivery.
type ReportConfig struct {
	IntervalSecs  int    `toml:"interval_secs"`
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	PingPath      string `toml:"ping_path"`
	ConfigPath    string `toml:"config_path"`
	ReportPath    string `toml:"report_path"`

	Interval time.Duration `toml:"-"`
}

// LoggingConfig is a collection of logging configurations.
type LoggingConfig struct {
	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`
}

// MetricsConfig is a collection of Prometheus metrics configurations.
type MetricsConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	Namespace     string `toml:"namespace"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Implementation    string `toml:"tracer_implementation"`
	CollectorEndpoint string `toml:"tracing_collector"`
}

// NewConfig returns an EdgeProxyConfig initialized with default values.
func NewConfig() *EdgeProxyConfig {
	return &EdgeProxyConfig{
		Main: &MainConfig{
			EngineName:    defaultEngineName,
			EngineVersion: defaultEngineVersion,
		},
		Storage: &StorageConfig{
			CacheDir:     defaultCacheDir,
			MaxSizeBytes: defaultMaxSizeBytes,
			BodyTTLMs:    defaultBodyTTLMs,
			DebounceMs:   defaultDebounceMs,
			Compression:  true,
			IndexBackend: defaultIndexBackend,
			Badger:       BadgerIndexConfig{Directory: defaultBadgerDirectory},
			BBolt:        BBoltIndexConfig{Filename: defaultBBoltFilename, Bucket: defaultBBoltBucket},
			Redis: RedisIndexConfig{
				ClientType: defaultRedisClientType,
				Protocol:   defaultRedisProtocol,
				Endpoint:   defaultRedisEndpoint,
				DB:         defaultRedisDB,
			},
		},
		Classifier: &ClassifierConfig{
			ClassAPatterns:             []string{},
			ClassBPatterns:             []string{},
			AdInfrastructureSubstrings: defaultAdInfrastructureSubstrings(),
		},
		Browser: &BrowserConfig{
			Channel: defaultBrowserChannel,
		},
		Report: &ReportConfig{
			IntervalSecs:  defaultReportIntervalSecs,
			ListenAddress: defaultReportListenAddr,
			ListenPort:    defaultReportListenPort,
			PingPath:      defaultPingHandlerPath,
			ConfigPath:    defaultConfigHandlerPath,
			ReportPath:    defaultReportHandlerPath,
		},
		Logging: &LoggingConfig{
			LogFile:  defaultLogFile,
			LogLevel: defaultLogLevel,
		},
		Metrics: &MetricsConfig{
			ListenPort: defaultMetricsListenPort,
			Namespace:  defaultMetricsNamespace,
		},
		Tracing: &TracingConfig{
			Implementation: defaultTracerImplementation,
		},
	}
}

// defaultAdInfrastructureSubstrings is the curated set of hostname/URL
// substrings used to derive the "ad" origin label (spec §3, §4.2). It ships
// with a conservative built-in list; operators may extend it via config.
func defaultAdInfrastructureSubstrings() []string {
	return []string{
		"doubleclick.net",
		"googlesyndication.com",
		"googleadservices.com",
		"adnxs.com",
		"adsrvr.org",
		"taboola.com",
		"outbrain.com",
		"criteo.com",
		"pubmatic.com",
		"rubiconproject.com",
		"openx.net",
		"casalemedia.com",
		"advertising.com",
		"adsafeprotected.com",
		"moatads.com",
		"scorecardresearch.com",
	}
}

// loadFile loads application configuration from a TOML-formatted file. A
// parse failure is non-fatal: the caller falls back to defaults and the
// failure is recorded as a loader warning (spec §7: config JSON/TOML parse
// failures are logged at warn and recovered silently). The decoder's
// toml.MetaData is kept on c.meta so finalize can tell a key the file set
// explicitly to zero apart from one it never mentioned at all.
func (c *EdgeProxyConfig) loadFile(path string) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		LoaderWarnings = append(LoaderWarnings, fmt.Sprintf("failed to parse config file %s: %s, starting from defaults", path, err.Error()))
		return nil
	}
	c.meta = md
	return nil
}

// finalize computes every synthesized field from the loaded values. Must be
// called once, after file/env/flag merging completes. Fields backed by a
// default (max_size_bytes, body_ttl_ms, debounce_ms, report.interval_secs)
// only fall back to that default when the file never defined the key at
// all — an explicit zero in the file is honored rather than silently
// overwritten.
func (c *EdgeProxyConfig) finalize() error {
	s := c.Storage
	if s.MaxSizeBytes <= 0 && !c.meta.IsDefined("storage", "max_size_bytes") {
		s.MaxSizeBytes = defaultMaxSizeBytes
	}
	if s.BodyTTLMs <= 0 && !c.meta.IsDefined("storage", "body_ttl_ms") {
		s.BodyTTLMs = defaultBodyTTLMs
	}
	if s.DebounceMs <= 0 && !c.meta.IsDefined("storage", "debounce_ms") {
		s.DebounceMs = defaultDebounceMs
	}
	s.BodyTTL = time.Duration(s.BodyTTLMs) * time.Millisecond
	staleTTL := 30 * s.BodyTTL
	if sevenDays := 7 * 24 * time.Hour; staleTTL < sevenDays {
		staleTTL = sevenDays
	}
	s.StaleTTL = staleTTL
	s.Debounce = time.Duration(s.DebounceMs) * time.Millisecond

	c.Report.Interval = time.Duration(c.Report.IntervalSecs) * time.Second
	if c.Report.Interval <= 0 && !c.meta.IsDefined("report", "interval_secs") {
		c.Report.Interval = defaultReportIntervalSecs * time.Second
	}

	if c.Main.EngineName == "" {
		c.Main.EngineName = defaultEngineName
	}
	if c.Main.EngineVersion == "" {
		c.Main.EngineVersion = defaultEngineVersion
	}

	return nil
}

// String renders the running configuration as TOML, redacting the Redis
// password the way Trickster's TricksterConfig.String redacts credentials.
func (c *EdgeProxyConfig) String() string {
	cp := *c
	storageCopy := *c.Storage
	if storageCopy.Redis.Password != "" {
		storageCopy.Redis.Password = "*****"
	}
	cp.Storage = &storageCopy

	var buf bytes.Buffer
	e := toml.NewEncoder(&buf)
	_ = e.Encode(&cp)
	return buf.String()
}
