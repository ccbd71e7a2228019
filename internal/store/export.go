package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/matrix-construct/construct-sub003/internal/config"
)

// ExportToConfig converts database configuration to a Config struct.
// This is used for compatibility with existing code that expects config.Config.
func (db *DB) ExportToConfig() (*config.Config, error) {
	cfg := &config.Config{}

	if err := db.exportBrokerConfig(cfg); err != nil {
		return nil, err
	}

	if err := db.exportResolverConfig(cfg); err != nil {
		return nil, err
	}

	if err := db.exportLoggingConfig(cfg); err != nil {
		return nil, err
	}

	if err := db.exportPolicyConfig(cfg); err != nil {
		return nil, err
	}

	if err := db.exportRateLimitConfig(cfg); err != nil {
		return nil, err
	}

	if err := db.exportAdminConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (db *DB) exportBrokerConfig(cfg *config.Config) error {
	cfg.Broker.WorkersRaw = db.GetConfigWithDefault(ConfigKeyBrokerWorkers, "auto")

	enableIPv6Str := db.GetConfigWithDefault(ConfigKeyBrokerEnableIPv6, "true")
	enableIPv6, err := strconv.ParseBool(enableIPv6Str)
	if err != nil {
		return fmt.Errorf("invalid broker.enable_ipv6: %w", err)
	}
	cfg.Broker.EnableIPv6 = enableIPv6

	return nil
}

func (db *DB) exportResolverConfig(cfg *config.Config) error {
	cfg.Resolver.UDPTimeout = db.GetConfigWithDefault(ConfigKeyResolverUDPTimeout, "3s")
	cfg.Resolver.TCPTimeout = db.GetConfigWithDefault(ConfigKeyResolverTCPTimeout, "5s")

	maxRetriesStr := db.GetConfigWithDefault(ConfigKeyResolverMaxRetries, "3")
	maxRetries, err := strconv.Atoi(maxRetriesStr)
	if err != nil {
		return fmt.Errorf("invalid resolver.max_retries: %w", err)
	}
	cfg.Resolver.MaxRetries = maxRetries

	servers, err := db.GetResolverServers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get resolver servers: %w", err)
	}

	cfg.Resolver.Servers = make([]string, len(servers))
	for i, server := range servers {
		cfg.Resolver.Servers[i] = server.ServerAddress
	}

	return nil
}

func (db *DB) exportLoggingConfig(cfg *config.Config) error {
	cfg.Logging.Level = db.GetConfigWithDefault(ConfigKeyLoggingLevel, "INFO")

	structuredStr := db.GetConfigWithDefault(ConfigKeyLoggingStructured, "false")
	cfg.Logging.Structured, _ = strconv.ParseBool(structuredStr)

	cfg.Logging.StructuredFormat = db.GetConfigWithDefault(ConfigKeyLoggingStructuredFormat, "json")

	includePIDStr := db.GetConfigWithDefault(ConfigKeyLoggingIncludePID, "false")
	cfg.Logging.IncludePID, _ = strconv.ParseBool(includePIDStr)

	// Extra fields not currently stored separately in DB
	cfg.Logging.ExtraFields = make(map[string]string)

	return nil
}

func (db *DB) exportPolicyConfig(cfg *config.Config) error {
	enabledStr := db.GetConfigWithDefault(ConfigKeyPolicyEnabled, "false")
	cfg.Policy.Enabled, _ = strconv.ParseBool(enabledStr)

	logDeniedStr := db.GetConfigWithDefault(ConfigKeyPolicyLogDenied, "true")
	cfg.Policy.LogDenied, _ = strconv.ParseBool(logDeniedStr)

	logAllowedStr := db.GetConfigWithDefault(ConfigKeyPolicyLogAllowed, "false")
	cfg.Policy.LogAllowed, _ = strconv.ParseBool(logAllowedStr)

	cfg.Policy.RefreshInterval = db.GetConfigWithDefault(ConfigKeyPolicyRefreshInterval, "24h")

	allow, err := db.GetAllowDestinations(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get allow list: %w", err)
	}
	cfg.Policy.AllowDestinations = allow

	deny, err := db.GetDenyDestinations(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get deny list: %w", err)
	}
	cfg.Policy.DenyDestinations = deny

	denyLists, err := db.GetDenyLists(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get deny lists: %w", err)
	}

	enabled := make([]config.DenyListConfig, 0, len(denyLists))
	for _, denyList := range denyLists {
		if !denyList.Enabled {
			continue
		}
		enabled = append(enabled, config.DenyListConfig{
			Name:   denyList.Name,
			URL:    denyList.URL,
			Format: denyList.Format,
		})
	}
	cfg.Policy.DenyLists = enabled

	return nil
}

func (db *DB) exportRateLimitConfig(cfg *config.Config) error {
	cleanupSecondsStr := db.GetConfigWithDefault(ConfigKeyRateLimitCleanupSeconds, "60.0")
	cleanupSeconds, err := strconv.ParseFloat(cleanupSecondsStr, 64)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.cleanup_seconds: %w", err)
	}
	cfg.RateLimit.CleanupSeconds = cleanupSeconds

	maxIPEntriesStr := db.GetConfigWithDefault(ConfigKeyRateLimitMaxIPEntries, "65536")
	maxIPEntries, err := strconv.Atoi(maxIPEntriesStr)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.max_ip_entries: %w", err)
	}
	cfg.RateLimit.MaxIPEntries = maxIPEntries

	maxPrefixEntriesStr := db.GetConfigWithDefault(ConfigKeyRateLimitMaxPrefixEntries, "16384")
	maxPrefixEntries, err := strconv.Atoi(maxPrefixEntriesStr)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.max_prefix_entries: %w", err)
	}
	cfg.RateLimit.MaxPrefixEntries = maxPrefixEntries

	globalQPSStr := db.GetConfigWithDefault(ConfigKeyRateLimitGlobalQPS, "1000.0")
	globalQPS, err := strconv.ParseFloat(globalQPSStr, 64)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.global_qps: %w", err)
	}
	cfg.RateLimit.GlobalQPS = globalQPS

	globalBurstStr := db.GetConfigWithDefault(ConfigKeyRateLimitGlobalBurst, "2000")
	globalBurst, err := strconv.Atoi(globalBurstStr)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.global_burst: %w", err)
	}
	cfg.RateLimit.GlobalBurst = globalBurst

	prefixQPSStr := db.GetConfigWithDefault(ConfigKeyRateLimitPrefixQPS, "200.0")
	prefixQPS, err := strconv.ParseFloat(prefixQPSStr, 64)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.prefix_qps: %w", err)
	}
	cfg.RateLimit.PrefixQPS = prefixQPS

	prefixBurstStr := db.GetConfigWithDefault(ConfigKeyRateLimitPrefixBurst, "400")
	prefixBurst, err := strconv.Atoi(prefixBurstStr)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.prefix_burst: %w", err)
	}
	cfg.RateLimit.PrefixBurst = prefixBurst

	ipQPSStr := db.GetConfigWithDefault(ConfigKeyRateLimitIPQPS, "50.0")
	ipQPS, err := strconv.ParseFloat(ipQPSStr, 64)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.ip_qps: %w", err)
	}
	cfg.RateLimit.IPQPS = ipQPS

	ipBurstStr := db.GetConfigWithDefault(ConfigKeyRateLimitIPBurst, "100")
	ipBurst, err := strconv.Atoi(ipBurstStr)
	if err != nil {
		return fmt.Errorf("invalid rate_limit.ip_burst: %w", err)
	}
	cfg.RateLimit.IPBurst = ipBurst

	return nil
}

func (db *DB) exportAdminConfig(cfg *config.Config) error {
	enabledStr := db.GetConfigWithDefault(ConfigKeyAdminEnabled, "true")
	cfg.Admin.Enabled, _ = strconv.ParseBool(enabledStr)

	cfg.Admin.Host = db.GetConfigWithDefault(ConfigKeyAdminHost, "127.0.0.1")

	portStr := db.GetConfigWithDefault(ConfigKeyAdminPort, "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid admin.port: %w", err)
	}
	cfg.Admin.Port = port

	cfg.Admin.APIKey = db.GetConfigWithDefault(ConfigKeyAdminAPIKey, "")

	return nil
}
