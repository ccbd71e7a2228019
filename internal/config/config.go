// Package config provides configuration loading and validation for fedbroker.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/fedbroker/main.go)
//  2. Environment variables (FEDBROKER_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from FEDBROKER_CATEGORY_SETTING format,
// e.g., FEDBROKER_BROKER_LINK_MAX_DEFAULT maps to broker.link_max_default in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Environment variable binding
	// Uses FEDBROKER_ prefix: FEDBROKER_BROKER_LINK_MAX_DEFAULT -> broker.link_max_default
	v.SetEnvPrefix("FEDBROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Broker defaults (Link/Peer admission and timing, §6)
	v.SetDefault("broker.async_timeout", "30s")
	v.SetDefault("broker.request_timeout", "60s")
	v.SetDefault("broker.header_max_size", 65536)
	v.SetDefault("broker.link_min_default", 1)
	v.SetDefault("broker.link_max_default", 4)
	v.SetDefault("broker.tag_max_default", 1024)
	v.SetDefault("broker.tag_commit_max_default", 1)
	v.SetDefault("broker.error_clear_default", "30s")
	v.SetDefault("broker.enable_ipv6", true)
	v.SetDefault("broker.workers", "auto")

	// Per-request option defaults
	v.SetDefault("request.http_exceptions", false)
	v.SetDefault("request.content_length_maxalloc", 16<<20)
	v.SetDefault("request.contiguous_content", false)
	v.SetDefault("request.priority", 0)
	v.SetDefault("request.chunks_reserve", 0)
	v.SetDefault("request.truncate_content", false)

	// Resolver (upstream recursive DNS used for destination resolution)
	v.SetDefault("resolver.servers", []string{"8.8.8.8"})
	v.SetDefault("resolver.udp_timeout", "3s")
	v.SetDefault("resolver.tcp_timeout", "5s")
	v.SetDefault("resolver.max_retries", 3)

	// Static peer directory
	v.SetDefault("directory.directory", "directory")
	v.SetDefault("directory.files", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Destination policy (allow/deny) defaults
	v.SetDefault("policy.enabled", false)
	v.SetDefault("policy.log_denied", true)
	v.SetDefault("policy.log_allowed", false)
	v.SetDefault("policy.allow_destinations", []string{})
	v.SetDefault("policy.deny_destinations", []string{})
	v.SetDefault("policy.deny_lists", []DenyListConfig{})
	v.SetDefault("policy.refresh_interval", "24h")

	// Admin API rate limiting defaults
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.max_prefix_entries", 16384)
	v.SetDefault("rate_limit.global_qps", 1000.0)
	v.SetDefault("rate_limit.global_burst", 2000)
	v.SetDefault("rate_limit.prefix_qps", 200.0)
	v.SetDefault("rate_limit.prefix_burst", 400)
	v.SetDefault("rate_limit.ip_qps", 50.0)
	v.SetDefault("rate_limit.ip_burst", 100)

	// Admin API defaults
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8080)
	v.SetDefault("admin.api_key", "")

	// Cluster sync defaults
	v.SetDefault("cluster.mode", string(ClusterModeStandalone))
	v.SetDefault("cluster.sync_interval", "60s")
	v.SetDefault("cluster.sync_timeout", "10s")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadBrokerConfig(v, cfg)
	loadRequestConfig(v, cfg)
	loadResolverConfig(v, cfg)
	loadDirectoryConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadPolicyConfig(v, cfg)
	loadAdminConfig(v, cfg)
	loadRateLimitConfig(v, cfg)
	loadClusterConfig(v, cfg)

	// Normalize and validate
	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadBrokerConfig(v *viper.Viper, cfg *Config) {
	cfg.Broker.AsyncTimeout = v.GetString("broker.async_timeout")
	cfg.Broker.RequestTimeout = v.GetString("broker.request_timeout")
	cfg.Broker.HeaderMaxSize = v.GetInt("broker.header_max_size")
	cfg.Broker.LinkMinDefault = v.GetInt("broker.link_min_default")
	cfg.Broker.LinkMaxDefault = v.GetInt("broker.link_max_default")
	cfg.Broker.TagMaxDefault = v.GetInt("broker.tag_max_default")
	cfg.Broker.TagCommitMaxDefault = v.GetInt("broker.tag_commit_max_default")
	cfg.Broker.ErrorClearDefault = v.GetString("broker.error_clear_default")
	cfg.Broker.EnableIPv6 = v.GetBool("broker.enable_ipv6")
	cfg.Broker.WorkersRaw = v.GetString("broker.workers")
	cfg.Broker.Workers = parseWorkers(cfg.Broker.WorkersRaw)
}

func loadRequestConfig(v *viper.Viper, cfg *Config) {
	cfg.Request.HTTPExceptions = v.GetBool("request.http_exceptions")
	cfg.Request.ContentLengthMaxAlloc = v.GetInt("request.content_length_maxalloc")
	cfg.Request.ContiguousContent = v.GetBool("request.contiguous_content")
	cfg.Request.Priority = v.GetInt("request.priority")
	cfg.Request.ChunksReserve = v.GetInt("request.chunks_reserve")
	cfg.Request.TruncateContent = v.GetBool("request.truncate_content")
}

func loadResolverConfig(v *viper.Viper, cfg *Config) {
	cfg.Resolver.Servers = parseServerList(v.GetStringSlice("resolver.servers"))
	if len(cfg.Resolver.Servers) == 0 {
		// Handle comma-separated string from env
		if s := v.GetString("resolver.servers"); s != "" {
			cfg.Resolver.Servers = parseServerList(strings.Split(s, ","))
		}
	}
	cfg.Resolver.UDPTimeout = v.GetString("resolver.udp_timeout")
	cfg.Resolver.TCPTimeout = v.GetString("resolver.tcp_timeout")
	cfg.Resolver.MaxRetries = v.GetInt("resolver.max_retries")
}

func loadDirectoryConfig(v *viper.Viper, cfg *Config) {
	cfg.Directory.Directory = v.GetString("directory.directory")
	cfg.Directory.Files = v.GetStringSlice("directory.files")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadPolicyConfig(v *viper.Viper, cfg *Config) {
	cfg.Policy.Enabled = v.GetBool("policy.enabled")
	cfg.Policy.LogDenied = v.GetBool("policy.log_denied")
	cfg.Policy.LogAllowed = v.GetBool("policy.log_allowed")
	cfg.Policy.RefreshInterval = v.GetString("policy.refresh_interval")

	// Handle allow/deny (can be slice or comma-separated string)
	cfg.Policy.AllowDestinations = getStringSliceOrSplit(v, "policy.allow_destinations")
	cfg.Policy.DenyDestinations = getStringSliceOrSplit(v, "policy.deny_destinations")

	// Parse deny lists
	if err := v.UnmarshalKey("policy.deny_lists", &cfg.Policy.DenyLists); err != nil {
		// Ignore unmarshal errors for deny lists, use empty slice
		cfg.Policy.DenyLists = []DenyListConfig{}
	}

	// Handle single deny list URL from env
	if url := v.GetString("policy.deny_list_url"); url != "" {
		cfg.Policy.DenyLists = append(cfg.Policy.DenyLists, DenyListConfig{
			Name:   "env-deny-list",
			URL:    url,
			Format: "auto",
		})
	}
}

func loadAdminConfig(v *viper.Viper, cfg *Config) {
	cfg.Admin.Enabled = v.GetBool("admin.enabled")
	cfg.Admin.Host = v.GetString("admin.host")
	cfg.Admin.Port = v.GetInt("admin.port")
	cfg.Admin.APIKey = v.GetString("admin.api_key")
}

func loadRateLimitConfig(v *viper.Viper, cfg *Config) {
	cfg.RateLimit.CleanupSeconds = v.GetFloat64("rate_limit.cleanup_seconds")
	cfg.RateLimit.MaxIPEntries = v.GetInt("rate_limit.max_ip_entries")
	cfg.RateLimit.MaxPrefixEntries = v.GetInt("rate_limit.max_prefix_entries")
	cfg.RateLimit.GlobalQPS = v.GetFloat64("rate_limit.global_qps")
	cfg.RateLimit.GlobalBurst = v.GetInt("rate_limit.global_burst")
	cfg.RateLimit.PrefixQPS = v.GetFloat64("rate_limit.prefix_qps")
	cfg.RateLimit.PrefixBurst = v.GetInt("rate_limit.prefix_burst")
	cfg.RateLimit.IPQPS = v.GetFloat64("rate_limit.ip_qps")
	cfg.RateLimit.IPBurst = v.GetInt("rate_limit.ip_burst")
}

func loadClusterConfig(v *viper.Viper, cfg *Config) {
	cfg.Cluster.Mode = ClusterMode(v.GetString("cluster.mode"))
	cfg.Cluster.PrimaryURL = v.GetString("cluster.primary_url")
	cfg.Cluster.SharedSecret = v.GetString("cluster.shared_secret")
	cfg.Cluster.NodeID = v.GetString("cluster.node_id")
	cfg.Cluster.SyncInterval = v.GetString("cluster.sync_interval")
	cfg.Cluster.SyncTimeout = v.GetString("cluster.sync_timeout")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// parseServerList cleans up a list of resolver addresses.
func parseServerList(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Strip port if present (always use port 53)
		if h, _, ok := strings.Cut(s, ":"); ok {
			s = h
		}
		result = append(result, s)
	}
	return result
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		// Filter empty entries
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	// Try as comma-separated string
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	// Validate link cap
	if cfg.Broker.LinkMaxDefault <= 0 {
		cfg.Broker.LinkMaxDefault = 4
	}
	if cfg.Broker.LinkMaxDefault > LinkMaxAbsoluteCap {
		cfg.Broker.LinkMaxDefault = LinkMaxAbsoluteCap
	}
	if cfg.Broker.LinkMinDefault <= 0 {
		cfg.Broker.LinkMinDefault = 1
	}
	if cfg.Broker.LinkMinDefault > cfg.Broker.LinkMaxDefault {
		cfg.Broker.LinkMinDefault = cfg.Broker.LinkMaxDefault
	}
	if cfg.Broker.TagMaxDefault <= 0 {
		cfg.Broker.TagMaxDefault = 1024
	}
	if cfg.Broker.TagCommitMaxDefault <= 0 {
		cfg.Broker.TagCommitMaxDefault = 1
	}

	// Default resolver servers
	if len(cfg.Resolver.Servers) == 0 {
		cfg.Resolver.Servers = []string{"8.8.8.8"}
	}

	// Limit to 3 resolver servers (strict-order failover)
	if len(cfg.Resolver.Servers) > 3 {
		cfg.Resolver.Servers = cfg.Resolver.Servers[:3]
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize policy
	if cfg.Policy.RefreshInterval == "" {
		cfg.Policy.RefreshInterval = "24h"
	}

	// Normalize admin API
	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
	if cfg.Admin.Enabled {
		if cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535 {
			return errors.New("admin.port must be 1..65535")
		}
	}

	// Normalize cluster
	if cfg.Cluster.Mode == "" {
		cfg.Cluster.Mode = ClusterModeStandalone
	}

	return nil
}
