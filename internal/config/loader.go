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

import (
	"flag"
	"os"
	"strconv"
)

// Load returns the Application Configuration, starting with a default
// config, then overriding with any provided config file, then environment
// variables, and finally command-line flags — the same three-tier merge
// order as Trickster's internal/config.Load.
func Load(applicationName string, arguments []string) (*EdgeProxyConfig, error) {
	LoaderWarnings = make([]string, 0)

	c := NewConfig()

	fs := flag.NewFlagSet(applicationName, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the edgeproxy TOML configuration file")
	cacheDir := fs.String("cache-dir", "", "override storage.cache_dir")
	logLevel := fs.String("log-level", "", "override logging.log_level")
	if err := fs.Parse(arguments); err != nil {
		return nil, err
	}

	if *configPath == "" {
		*configPath = os.Getenv("EDGEPROXY_CONFIG")
	}
	if err := c.loadFile(*configPath); err != nil {
		return nil, err
	}

	loadEnvVars(c)

	if *cacheDir != "" {
		c.Storage.CacheDir = *cacheDir
	}
	if *logLevel != "" {
		c.Logging.LogLevel = *logLevel
	}

	if err := c.finalize(); err != nil {
		return nil, err
	}

	Config = c
	return c, nil
}

// loadEnvVars overlays EDGEPROXY_-prefixed environment variables onto the
// already-file-loaded configuration, mirroring the file < env < flags
// precedence Trickster's loader establishes.
func loadEnvVars(c *EdgeProxyConfig) {
	if v := os.Getenv("EDGEPROXY_CACHE_DIR"); v != "" {
		c.Storage.CacheDir = v
	}
	if v := os.Getenv("EDGEPROXY_MAX_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Storage.MaxSizeBytes = n
		} else {
			LoaderWarnings = append(LoaderWarnings, "invalid EDGEPROXY_MAX_SIZE_BYTES value: "+v)
		}
	}
	if v := os.Getenv("EDGEPROXY_BODY_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Storage.BodyTTLMs = n
		} else {
			LoaderWarnings = append(LoaderWarnings, "invalid EDGEPROXY_BODY_TTL_MS value: "+v)
		}
	}
	if v := os.Getenv("EDGEPROXY_INDEX_BACKEND"); v != "" {
		c.Storage.IndexBackend = v
	}
	if v := os.Getenv("EDGEPROXY_LOG_LEVEL"); v != "" {
		c.Logging.LogLevel = v
	}
	if v := os.Getenv("EDGEPROXY_LOG_FILE"); v != "" {
		c.Logging.LogFile = v
	}
	if v := os.Getenv("EDGEPROXY_BROWSER_CHANNEL"); v != "" {
		c.Browser.Channel = v
	}
}
