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

package config

const (
	defaultLogFile  = ""
	defaultLogLevel = "info"

	defaultCacheDir     = "data/cdn-cache"
	defaultMaxSizeBytes = 2 * 1024 * 1024 * 1024 * 1024 // 2 TiB
	defaultBodyTTLMs    = 86400000                      // 24h
	defaultDebounceMs   = 2000

	defaultIndexBackend = "filesystem"

	defaultBadgerDirectory = "data/cdn-cache/badger"
	defaultBBoltFilename   = "data/cdn-cache/edgeproxy.db"
	defaultBBoltBucket     = "edgeproxy"

	defaultRedisClientType = "standard"
	defaultRedisProtocol   = "tcp"
	defaultRedisEndpoint   = "127.0.0.1:6379"
	defaultRedisDB         = 0

	defaultReportIntervalSecs = 60
	defaultReportListenPort   = 8483
	defaultReportListenAddr   = ""
	defaultPingHandlerPath    = "/edgeproxy/ping"
	defaultConfigHandlerPath  = "/edgeproxy/config"
	defaultReportHandlerPath  = "/edgeproxy/report"

	defaultMetricsListenPort = 8482
	defaultMetricsNamespace  = "edgeproxy"

	defaultTracerImplementation = "stdout"

	defaultEngineName    = "EdgeProxy"
	defaultEngineVersion = "1.0.0"

	defaultBrowserChannel = "chrome"
)
