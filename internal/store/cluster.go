package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/matrix-construct/construct-sub003/internal/clustersync"
	"github.com/matrix-construct/construct-sub003/internal/config"
)

// ImportFromCluster imports destination policy data from a cluster export.
// This is used by secondary nodes to sync policy from the primary.
// It replaces the following configuration sections:
//   - Resolver servers
//   - Destination policy (allow list, deny list, deny-list sources, enabled state)
//
// It does NOT replace:
//   - Admin settings
//   - Cluster settings
//   - Rate limit settings (node-specific)
//   - Logging settings (node-specific)
func (db *DB) ImportFromCluster(data *clustersync.ExportData) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Import resolver servers
	if err := db.importResolverTx(tx, data.Resolver); err != nil {
		return fmt.Errorf("import resolver: %w", err)
	}

	// Import policy config
	if err := db.importPolicyTx(tx, data.Policy); err != nil {
		return fmt.Errorf("import policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (db *DB) importResolverTx(tx *sql.Tx, resolver config.ResolverConfig) error {
	// Clear existing resolver servers
	if _, err := tx.Exec("DELETE FROM resolver_servers"); err != nil {
		return fmt.Errorf("clear resolver servers: %w", err)
	}

	// Insert new resolver servers
	for i, server := range resolver.Servers {
		_, err := tx.Exec(`
			INSERT INTO resolver_servers (server_address, priority, enabled, updated_at)
			VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		`, server, i)
		if err != nil {
			return fmt.Errorf("insert resolver server %s: %w", server, err)
		}
	}

	// Update resolver config settings
	configs := map[string]string{
		ConfigKeyResolverUDPTimeout: resolver.UDPTimeout,
		ConfigKeyResolverTCPTimeout: resolver.TCPTimeout,
		ConfigKeyResolverMaxRetries: strconv.Itoa(resolver.MaxRetries),
	}
	return setConfigInTx(tx, configs)
}

func (db *DB) importPolicyTx(tx *sql.Tx, policy config.PolicyConfig) error {
	// Update policy config settings
	configs := map[string]string{
		ConfigKeyPolicyEnabled:         fmt.Sprintf("%t", policy.Enabled),
		ConfigKeyPolicyLogDenied:       fmt.Sprintf("%t", policy.LogDenied),
		ConfigKeyPolicyLogAllowed:      fmt.Sprintf("%t", policy.LogAllowed),
		ConfigKeyPolicyRefreshInterval: policy.RefreshInterval,
	}
	if err := setConfigInTx(tx, configs); err != nil {
		return err
	}

	// Clear and repopulate the allow list
	if _, err := tx.Exec("DELETE FROM policy_allow_destinations"); err != nil {
		return fmt.Errorf("clear allow list: %w", err)
	}
	for _, destination := range policy.AllowDestinations {
		if _, err := tx.Exec("INSERT INTO policy_allow_destinations (domain) VALUES (?)", destination); err != nil {
			return fmt.Errorf("insert allow destination %s: %w", destination, err)
		}
	}

	// Clear and repopulate the deny list
	if _, err := tx.Exec("DELETE FROM policy_deny_destinations"); err != nil {
		return fmt.Errorf("clear deny list: %w", err)
	}
	for _, destination := range policy.DenyDestinations {
		if _, err := tx.Exec("INSERT INTO policy_deny_destinations (domain) VALUES (?)", destination); err != nil {
			return fmt.Errorf("insert deny destination %s: %w", destination, err)
		}
	}

	// Clear and repopulate deny-list sources
	if _, err := tx.Exec("DELETE FROM policy_deny_lists"); err != nil {
		return fmt.Errorf("clear deny lists: %w", err)
	}
	for _, denyList := range policy.DenyLists {
		_, err := tx.Exec(`
			INSERT INTO policy_deny_lists (name, url, format, enabled, updated_at)
			VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		`, denyList.Name, denyList.URL, denyList.Format)
		if err != nil {
			return fmt.Errorf("insert deny list %s: %w", denyList.Name, err)
		}
	}

	return nil
}

// SetClusterConfig updates cluster configuration settings.
func (db *DB) SetClusterConfig(cfg *config.ClusterConfig) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	configs := map[string]string{
		ConfigKeyClusterMode:         string(cfg.Mode),
		ConfigKeyClusterNodeID:       cfg.NodeID,
		ConfigKeyClusterPrimaryURL:   cfg.PrimaryURL,
		ConfigKeyClusterSharedSecret: cfg.SharedSecret,
		ConfigKeyClusterSyncInterval: cfg.SyncInterval,
		ConfigKeyClusterSyncTimeout:  cfg.SyncTimeout,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setConfigInTx(tx, configs); err != nil {
		return fmt.Errorf("failed to update cluster config: %w", err)
	}

	return tx.Commit()
}

// SetResolverConfigTyped updates the typed resolver configuration.
func (db *DB) SetResolverConfigTyped(cfg *config.ResolverConfig) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	configs := map[string]string{
		ConfigKeyResolverUDPTimeout: cfg.UDPTimeout,
		ConfigKeyResolverTCPTimeout: cfg.TCPTimeout,
		ConfigKeyResolverMaxRetries: strconv.Itoa(cfg.MaxRetries),
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setConfigInTx(tx, configs); err != nil {
		return fmt.Errorf("failed to update resolver config: %w", err)
	}

	return tx.Commit()
}

// SetPolicyConfigTyped updates the typed destination policy configuration.
func (db *DB) SetPolicyConfigTyped(cfg *config.PolicyConfig) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	configs := map[string]string{
		ConfigKeyPolicyEnabled:         fmt.Sprintf("%t", cfg.Enabled),
		ConfigKeyPolicyLogDenied:       fmt.Sprintf("%t", cfg.LogDenied),
		ConfigKeyPolicyLogAllowed:      fmt.Sprintf("%t", cfg.LogAllowed),
		ConfigKeyPolicyRefreshInterval: cfg.RefreshInterval,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := setConfigInTx(tx, configs); err != nil {
		return fmt.Errorf("failed to update policy config: %w", err)
	}

	return tx.Commit()
}

// GetClusterConfig retrieves the cluster configuration.
func (db *DB) GetClusterConfig() (*config.ClusterConfig, error) {
	cfg := &config.ClusterConfig{
		Mode:         config.ClusterMode(db.GetConfigWithDefault(ConfigKeyClusterMode, string(config.ClusterModeStandalone))),
		NodeID:       db.GetConfigWithDefault(ConfigKeyClusterNodeID, ""),
		PrimaryURL:   db.GetConfigWithDefault(ConfigKeyClusterPrimaryURL, ""),
		SharedSecret: db.GetConfigWithDefault(ConfigKeyClusterSharedSecret, ""),
		SyncInterval: db.GetConfigWithDefault(ConfigKeyClusterSyncInterval, "30s"),
		SyncTimeout:  db.GetConfigWithDefault(ConfigKeyClusterSyncTimeout, "10s"),
	}

	return cfg, nil
}

// IncrementVersion manually increments the config version.
// This is useful after bulk imports.
func (db *DB) IncrementVersion() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"UPDATE config_version SET version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
	)
	if err != nil {
		return fmt.Errorf("failed to increment version: %w", err)
	}

	return nil
}

// SetVersion sets the config version to a specific value.
// This is used during cluster sync to match the primary's version.
func (db *DB) SetVersion(version int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"UPDATE config_version SET version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		version,
	)
	if err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}

	return nil
}

// boolToInt converts a bool to 0 or 1 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// intToBool converts 0/1 to bool.
func intToBool(i int) bool {
	return i != 0
}

// intToStr converts int to string.
func intToStr(i int) string {
	return strconv.Itoa(i)
}
