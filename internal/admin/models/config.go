package models

import "github.com/matrix-construct/construct-sub003/internal/config"

// AdminConfigResponse is a redacted version of AdminConfig (no api_key exposed).
type AdminConfigResponse struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// BrokerConfigResponse wraps BrokerConfig with workers as string.
type BrokerConfigResponse struct {
	Workers    string `json:"workers"`
	EnableIPv6 bool   `json:"enable_ipv6"`
}

// ConfigResponse is the API response for GET /config.
type ConfigResponse struct {
	Broker    BrokerConfigResponse    `json:"broker"`
	Resolver  config.ResolverConfig   `json:"resolver"`
	Logging   config.LoggingConfig    `json:"logging"`
	Policy    config.PolicyConfig     `json:"policy"`
	RateLimit config.RateLimitConfig  `json:"rate_limit"`
	Admin     AdminConfigResponse     `json:"admin"`
	Cluster   ClusterConfigResponse   `json:"cluster"`
}
