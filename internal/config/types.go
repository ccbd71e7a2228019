// Package config provides configuration loading for fedbroker using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the FEDBROKER_ prefix and underscore-separated keys:
//   - FEDBROKER_BROKER_LINK_MAX_DEFAULT -> broker.link_max_default
//   - FEDBROKER_RESOLVER_SERVERS -> resolver.servers (comma-separated)
//   - FEDBROKER_POLICY_ENABLED -> policy.enabled
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the dispatcher's scheduler concurrency is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// BrokerConfig contains the Link/Peer admission and timing settings shared by
// every destination (§6 of the federation broker design).
type BrokerConfig struct {
	AsyncTimeout       string `yaml:"async_timeout"        mapstructure:"async_timeout"        json:"async_timeout"`
	RequestTimeout     string `yaml:"request_timeout"      mapstructure:"request_timeout"      json:"request_timeout"`
	HeaderMaxSize      int    `yaml:"header_max_size"      mapstructure:"header_max_size"      json:"header_max_size"`
	LinkMinDefault     int    `yaml:"link_min_default"     mapstructure:"link_min_default"     json:"link_min_default"`
	LinkMaxDefault     int    `yaml:"link_max_default"     mapstructure:"link_max_default"     json:"link_max_default"`
	TagMaxDefault      int    `yaml:"tag_max_default"      mapstructure:"tag_max_default"      json:"tag_max_default"`
	TagCommitMaxDefault int   `yaml:"tag_commit_max_default" mapstructure:"tag_commit_max_default" json:"tag_commit_max_default"`
	ErrorClearDefault  string `yaml:"error_clear_default"  mapstructure:"error_clear_default"  json:"error_clear_default"`
	EnableIPv6         bool   `yaml:"enable_ipv6"          mapstructure:"enable_ipv6"          json:"enable_ipv6"`
	Workers            WorkerSetting `yaml:"-"           mapstructure:"-"`
	WorkersRaw         string        `yaml:"workers"     mapstructure:"workers"     json:"workers"`
}

// LinkMaxAbsoluteCap is the hard ceiling on BrokerConfig.LinkMaxDefault: no
// destination may ever be configured with more simultaneously open Links.
const LinkMaxAbsoluteCap = 16

// RequestDefaultsConfig holds per-request option defaults loaded from the
// configuration. Nothing in the dispatch path copies them into a Request's
// tag.RequestOptions; a Request carries only the options its caller sets.
type RequestDefaultsConfig struct {
	HTTPExceptions        bool `yaml:"http_exceptions"         mapstructure:"http_exceptions"         json:"http_exceptions"`
	ContentLengthMaxAlloc int  `yaml:"content_length_maxalloc" mapstructure:"content_length_maxalloc" json:"content_length_maxalloc"`
	ContiguousContent     bool `yaml:"contiguous_content"      mapstructure:"contiguous_content"      json:"contiguous_content"`
	Priority              int  `yaml:"priority"                mapstructure:"priority"                json:"priority"`
	ChunksReserve         int  `yaml:"chunks_reserve"          mapstructure:"chunks_reserve"          json:"chunks_reserve"`
	TruncateContent       bool `yaml:"truncate_content"        mapstructure:"truncate_content"        json:"truncate_content"`
}

// ResolverConfig contains the recursive DNS server settings used to resolve
// federation destinations (SRV -> AAAA/A).
type ResolverConfig struct {
	Servers    []string `yaml:"servers"     mapstructure:"servers"     json:"servers"`
	UDPTimeout string   `yaml:"udp_timeout" mapstructure:"udp_timeout" json:"udp_timeout"`
	TCPTimeout string   `yaml:"tcp_timeout" mapstructure:"tcp_timeout" json:"tcp_timeout"`
	MaxRetries int      `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
}

// DirectoryConfig contains the static peer directory: pinned destination ->
// address records that bypass SRV/A resolution entirely.
type DirectoryConfig struct {
	Directory string   `yaml:"directory" mapstructure:"directory" json:"directory"`
	Files     []string `yaml:"files"     mapstructure:"files"     json:"files,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// PolicyConfig controls the destination allow/deny ACL consulted by the
// dispatcher before a Peer lookup.
type PolicyConfig struct {
	Enabled           bool              `yaml:"enabled"             mapstructure:"enabled"             json:"enabled"`
	LogDenied         bool              `yaml:"log_denied"          mapstructure:"log_denied"          json:"log_denied"`
	LogAllowed        bool              `yaml:"log_allowed"         mapstructure:"log_allowed"         json:"log_allowed"`
	AllowDestinations []string          `yaml:"allow_destinations"  mapstructure:"allow_destinations"  json:"allow_destinations,omitempty"`
	DenyDestinations  []string          `yaml:"deny_destinations"   mapstructure:"deny_destinations"   json:"deny_destinations,omitempty"`
	DenyLists         []DenyListConfig  `yaml:"deny_lists"          mapstructure:"deny_lists"          json:"deny_lists,omitempty"`
	RefreshInterval   string            `yaml:"refresh_interval"    mapstructure:"refresh_interval"    json:"refresh_interval"`
}

// DenyListConfig defines a remote destination denylist source.
type DenyListConfig struct {
	Name   string `yaml:"name"   mapstructure:"name"   json:"name"`
	URL    string `yaml:"url"    mapstructure:"url"    json:"url"`
	Format string `yaml:"format" mapstructure:"format" json:"format"` // "auto", "adblock", "hosts", "domains"
}

// RateLimitConfig controls the admin API's rate limiting settings.
type RateLimitConfig struct {
	CleanupSeconds   float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"    json:"cleanup_seconds"`
	MaxIPEntries     int     `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"     json:"max_ip_entries"`
	MaxPrefixEntries int     `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries" json:"max_prefix_entries"`
	GlobalQPS        float64 `yaml:"global_qps"         mapstructure:"global_qps"         json:"global_qps"`
	GlobalBurst      int     `yaml:"global_burst"       mapstructure:"global_burst"       json:"global_burst"`
	PrefixQPS        float64 `yaml:"prefix_qps"         mapstructure:"prefix_qps"         json:"prefix_qps"`
	PrefixBurst      int     `yaml:"prefix_burst"       mapstructure:"prefix_burst"       json:"prefix_burst"`
	IPQPS            float64 `yaml:"ip_qps"             mapstructure:"ip_qps"             json:"ip_qps"`
	IPBurst          int     `yaml:"ip_burst"           mapstructure:"ip_burst"           json:"ip_burst"`
}

// AdminConfig contains the operator-facing admin/observability API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// ClusterMode selects how this broker instance participates in destination
// policy / resolver configuration synchronization.
type ClusterMode string

const (
	ClusterModeStandalone ClusterMode = "standalone"
	ClusterModePrimary    ClusterMode = "primary"
	ClusterModeSecondary  ClusterMode = "secondary"
)

// ClusterConfig controls primary/secondary sync of destination policy and
// resolver configuration across broker instances.
type ClusterConfig struct {
	Mode         ClusterMode `yaml:"mode"          mapstructure:"mode"          json:"mode"`
	PrimaryURL   string      `yaml:"primary_url"   mapstructure:"primary_url"   json:"primary_url,omitempty"`
	SharedSecret string      `yaml:"shared_secret" mapstructure:"shared_secret" json:"-"`
	NodeID       string      `yaml:"node_id"       mapstructure:"node_id"       json:"node_id"`
	SyncInterval string      `yaml:"sync_interval" mapstructure:"sync_interval" json:"sync_interval"`
	SyncTimeout  string      `yaml:"sync_timeout"  mapstructure:"sync_timeout"  json:"sync_timeout"`
}

// Config is the root configuration structure.
type Config struct {
	Broker    BrokerConfig          `yaml:"broker"    mapstructure:"broker"`
	Request   RequestDefaultsConfig `yaml:"request"   mapstructure:"request"`
	Resolver  ResolverConfig        `yaml:"resolver"  mapstructure:"resolver"`
	Directory DirectoryConfig       `yaml:"directory" mapstructure:"directory"`
	Logging   LoggingConfig         `yaml:"logging"   mapstructure:"logging"`
	Policy    PolicyConfig          `yaml:"policy"    mapstructure:"policy"`
	RateLimit RateLimitConfig       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Admin     AdminConfig           `yaml:"admin"     mapstructure:"admin"`
	Cluster   ClusterConfig         `yaml:"cluster"   mapstructure:"cluster"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("FEDBROKER_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (FEDBROKER_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
