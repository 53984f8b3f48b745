/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides configuration management for TopicMQ.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (TOPICMQ_* prefix, optionally from a .env file)
3. Configuration file (JSON, or YAML for .yaml/.yml)
4. Default values (lowest priority)

EXAMPLE CONFIGURATION FILE:
===========================

	bind_addr: ":5000"
	codecs: [JSON, XML]
	handshake_timeout_ms: 5000
	security:
	  tls_enabled: true
	  tls_cert_file: /etc/topicmq/server.crt
	  tls_key_file: /etc/topicmq/server.key
	ws:
	  enabled: true
	  addr: ":5080"

ENVIRONMENT VARIABLES:
======================
Every setting has a TOPICMQ_ variable, for example TOPICMQ_BIND_ADDR,
TOPICMQ_CODECS=JSON,XML, TOPICMQ_TLS_ENABLED, TOPICMQ_WS_ADDR and
TOPICMQ_METRICS_ENABLED.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"topicmq/internal/codec"
	"topicmq/internal/crypto"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TOPICMQ_"

// DefaultConfigPaths are searched when no config file is given.
var DefaultConfigPaths = []string{
	"/etc/topicmq/topicmq.yaml",
	"$HOME/.config/topicmq/topicmq.yaml",
	"./topicmq.yaml",
	"./topicmq.json",
}

// SecurityConfig holds TLS settings for the TCP listener.
type SecurityConfig struct {
	TLSEnabled    bool   `json:"tls_enabled" yaml:"tls_enabled" env:"TLS_ENABLED"`
	TLSCertFile   string `json:"tls_cert_file" yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile    string `json:"tls_key_file" yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	TLSCAFile     string `json:"tls_ca_file" yaml:"tls_ca_file" env:"TLS_CA_FILE"`
	TLSClientAuth string `json:"tls_client_auth" yaml:"tls_client_auth" env:"TLS_CLIENT_AUTH"` // none, request, require, verify
}

// WSConfig holds the WebSocket gateway settings.
type WSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Addr           string   `json:"addr" yaml:"addr" env:"ADDR"`
	Path           string   `json:"path" yaml:"path" env:"PATH"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"ADDR"`
}

// DiscoveryConfig holds configuration for mDNS service discovery.
type DiscoveryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Service string `json:"service" yaml:"service" env:"SERVICE"`
	Domain  string `json:"domain" yaml:"domain" env:"DOMAIN"`
}

// Config holds the configuration for TopicMQ.
type Config struct {
	// Network
	BindAddr string `json:"bind_addr" yaml:"bind_addr" env:"BIND_ADDR"`
	NodeID   string `json:"node_id" yaml:"node_id" env:"NODE_ID"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
	LogJSON  bool   `json:"log_json" yaml:"log_json" env:"LOG_JSON"`

	// Connections
	HandshakeTimeoutMs int `json:"handshake_timeout_ms" yaml:"handshake_timeout_ms" env:"HANDSHAKE_TIMEOUT_MS"`
	WriteTimeoutMs     int `json:"write_timeout_ms" yaml:"write_timeout_ms" env:"WRITE_TIMEOUT_MS"` // 0 = unbounded
	EventQueueSize     int `json:"event_queue_size" yaml:"event_queue_size" env:"EVENT_QUEUE_SIZE"`

	// Codecs offered during the handshake; empty means all built-ins.
	Codecs []string `json:"codecs" yaml:"codecs" env:"CODECS" envSeparator:","`

	Security  SecurityConfig  `json:"security" yaml:"security"`
	WS        WSConfig        `json:"ws" yaml:"ws" envPrefix:"WS_"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery" envPrefix:"DISCOVERY_"`

	// Metadata
	ConfigFile string `json:"-" yaml:"-"`
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		BindAddr:           ":5000",
		NodeID:             hostname,
		LogLevel:           "info",
		HandshakeTimeoutMs: 5000,
		EventQueueSize:     1024,
		Codecs:             codec.Default().Names(),
		WS: WSConfig{
			Addr: ":5080",
			Path: "/ws",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
		Discovery: DiscoveryConfig{
			Service: "_topicmq._tcp",
			Domain:  "local.",
		},
	}
}

// HandshakeTimeout returns the handshake bound, or zero for none.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the per-frame write bound, or zero for none.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// IsTLSEnabled returns true if TLS is properly configured and enabled.
func (c *Config) IsTLSEnabled() bool {
	return c.Security.TLSEnabled &&
		c.Security.TLSCertFile != "" &&
		c.Security.TLSKeyFile != ""
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = NewManager()

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Codecs = append([]string(nil), m.config.Codecs...)
	cfg.WS.AllowedOrigins = append([]string(nil), m.config.WS.AllowedOrigins...)
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// FindConfigFile returns the first existing default config path, or "".
func FindConfigFile() string {
	for _, p := range DefaultConfigPaths {
		p = os.ExpandEnv(p)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadDotEnv loads variables from .env files that exist. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadFromEnv applies TOPICMQ_* environment variables on top of the current config.
func (m *Manager) LoadFromEnv() error {
	cfg := m.Get()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	m.Set(cfg)
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	var errs []error

	if c.BindAddr == "" {
		errs = append(errs, fmt.Errorf("bind_addr is required"))
	}
	if c.HandshakeTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("handshake_timeout_ms must be non-negative"))
	}
	if c.WriteTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("write_timeout_ms must be non-negative"))
	}
	if c.EventQueueSize < 0 {
		errs = append(errs, fmt.Errorf("event_queue_size must be non-negative"))
	}
	if _, err := codec.Default().Subset(c.Codecs); err != nil {
		errs = append(errs, fmt.Errorf("codecs: %w", err))
	}

	if c.Security.TLSEnabled {
		if c.Security.TLSCertFile == "" {
			errs = append(errs, fmt.Errorf("tls_cert_file is required when TLS is enabled"))
		}
		if c.Security.TLSKeyFile == "" {
			errs = append(errs, fmt.Errorf("tls_key_file is required when TLS is enabled"))
		}
		if _, err := crypto.ParseClientAuth(c.Security.TLSClientAuth); err != nil {
			errs = append(errs, err)
		}
	}

	if c.WS.Enabled {
		if c.WS.Addr == "" {
			errs = append(errs, fmt.Errorf("ws.addr is required when the gateway is enabled"))
		}
		if !strings.HasPrefix(c.WS.Path, "/") {
			errs = append(errs, fmt.Errorf("ws.path must start with '/'"))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	if c.Discovery.Enabled {
		if !strings.HasPrefix(c.Discovery.Service, "_") || !strings.Contains(c.Discovery.Service, "._") {
			errs = append(errs, fmt.Errorf("discovery.service must look like _name._tcp, got %q", c.Discovery.Service))
		}
	}

	return errors.Join(errs...)
}
