package store

import (
	"database/sql"
	"fmt"

	"github.com/matrix-construct/construct-sub003/internal/config"
)

// MigrateFromConfig populates the database from a YAML-based config.
// This is used for initial migration or importing config.
func (db *DB) MigrateFromConfig(cfg *config.Config) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := db.migrateBrokerConfig(tx, cfg); err != nil {
		return err
	}

	if err := db.migrateResolverConfig(tx, cfg); err != nil {
		return err
	}

	if err := db.migrateLoggingConfig(tx, cfg); err != nil {
		return err
	}

	if err := db.migratePolicyConfig(tx, cfg); err != nil {
		return err
	}

	if err := db.migrateRateLimitConfig(tx, cfg); err != nil {
		return err
	}

	if err := db.migrateAdminConfig(tx, cfg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

func (db *DB) migrateBrokerConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyBrokerWorkers:    cfg.Broker.Workers.String(),
		ConfigKeyBrokerEnableIPv6: fmt.Sprintf("%t", cfg.Broker.EnableIPv6),
	}

	return setConfigInTx(tx, configs)
}

func (db *DB) migrateResolverConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyResolverUDPTimeout: cfg.Resolver.UDPTimeout,
		ConfigKeyResolverTCPTimeout: cfg.Resolver.TCPTimeout,
		ConfigKeyResolverMaxRetries: fmt.Sprintf("%d", cfg.Resolver.MaxRetries),
	}

	if err := setConfigInTx(tx, configs); err != nil {
		return err
	}

	// Clear existing resolver servers
	if _, err := tx.Exec("DELETE FROM resolver_servers"); err != nil {
		return fmt.Errorf("failed to clear resolver servers: %w", err)
	}

	// Insert resolver servers
	stmt, err := tx.Prepare(`
		INSERT INTO resolver_servers (server_address, priority, enabled)
		VALUES (?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare resolver insert: %w", err)
	}
	defer stmt.Close()

	for i, server := range cfg.Resolver.Servers {
		if _, err := stmt.Exec(server, i); err != nil {
			return fmt.Errorf("failed to insert resolver server %s: %w", server, err)
		}
	}

	return nil
}

func (db *DB) migrateLoggingConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyLoggingLevel:            cfg.Logging.Level,
		ConfigKeyLoggingStructured:       fmt.Sprintf("%t", cfg.Logging.Structured),
		ConfigKeyLoggingStructuredFormat: cfg.Logging.StructuredFormat,
		ConfigKeyLoggingIncludePID:       fmt.Sprintf("%t", cfg.Logging.IncludePID),
	}

	// Extra fields are rarely used and are not mirrored into the DB.

	return setConfigInTx(tx, configs)
}

func (db *DB) migratePolicyConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyPolicyEnabled:         fmt.Sprintf("%t", cfg.Policy.Enabled),
		ConfigKeyPolicyLogDenied:       fmt.Sprintf("%t", cfg.Policy.LogDenied),
		ConfigKeyPolicyLogAllowed:      fmt.Sprintf("%t", cfg.Policy.LogAllowed),
		ConfigKeyPolicyRefreshInterval: cfg.Policy.RefreshInterval,
	}

	if err := setConfigInTx(tx, configs); err != nil {
		return err
	}

	// Clear existing policy data
	if _, err := tx.Exec("DELETE FROM policy_allow_destinations"); err != nil {
		return fmt.Errorf("failed to clear allow list: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM policy_deny_destinations"); err != nil {
		return fmt.Errorf("failed to clear deny list: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM policy_deny_lists"); err != nil {
		return fmt.Errorf("failed to clear deny lists: %w", err)
	}

	// Insert allow-listed destinations
	if len(cfg.Policy.AllowDestinations) > 0 {
		allowStmt, err := tx.Prepare("INSERT INTO policy_allow_destinations (domain) VALUES (?)")
		if err != nil {
			return fmt.Errorf("failed to prepare allow insert: %w", err)
		}
		defer allowStmt.Close()

		for _, destination := range cfg.Policy.AllowDestinations {
			if _, err := allowStmt.Exec(destination); err != nil {
				return fmt.Errorf("failed to insert allow destination %s: %w", destination, err)
			}
		}
	}

	// Insert deny-listed destinations
	if len(cfg.Policy.DenyDestinations) > 0 {
		denyStmt, err := tx.Prepare("INSERT INTO policy_deny_destinations (domain) VALUES (?)")
		if err != nil {
			return fmt.Errorf("failed to prepare deny insert: %w", err)
		}
		defer denyStmt.Close()

		for _, destination := range cfg.Policy.DenyDestinations {
			if _, err := denyStmt.Exec(destination); err != nil {
				return fmt.Errorf("failed to insert deny destination %s: %w", destination, err)
			}
		}
	}

	// Insert deny-list sources
	if len(cfg.Policy.DenyLists) > 0 {
		denyListStmt, err := tx.Prepare(`
			INSERT INTO policy_deny_lists (name, url, format, enabled)
			VALUES (?, ?, ?, 1)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare deny list insert: %w", err)
		}
		defer denyListStmt.Close()

		for _, denyList := range cfg.Policy.DenyLists {
			if _, err := denyListStmt.Exec(denyList.Name, denyList.URL, denyList.Format); err != nil {
				return fmt.Errorf("failed to insert deny list %s: %w", denyList.Name, err)
			}
		}
	}

	return nil
}

func (db *DB) migrateRateLimitConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyRateLimitCleanupSeconds:   fmt.Sprintf("%f", cfg.RateLimit.CleanupSeconds),
		ConfigKeyRateLimitMaxIPEntries:     fmt.Sprintf("%d", cfg.RateLimit.MaxIPEntries),
		ConfigKeyRateLimitMaxPrefixEntries: fmt.Sprintf("%d", cfg.RateLimit.MaxPrefixEntries),
		ConfigKeyRateLimitGlobalQPS:        fmt.Sprintf("%f", cfg.RateLimit.GlobalQPS),
		ConfigKeyRateLimitGlobalBurst:      fmt.Sprintf("%d", cfg.RateLimit.GlobalBurst),
		ConfigKeyRateLimitPrefixQPS:        fmt.Sprintf("%f", cfg.RateLimit.PrefixQPS),
		ConfigKeyRateLimitPrefixBurst:      fmt.Sprintf("%d", cfg.RateLimit.PrefixBurst),
		ConfigKeyRateLimitIPQPS:            fmt.Sprintf("%f", cfg.RateLimit.IPQPS),
		ConfigKeyRateLimitIPBurst:          fmt.Sprintf("%d", cfg.RateLimit.IPBurst),
	}

	return setConfigInTx(tx, configs)
}

func (db *DB) migrateAdminConfig(tx txExec, cfg *config.Config) error {
	configs := map[string]string{
		ConfigKeyAdminEnabled: fmt.Sprintf("%t", cfg.Admin.Enabled),
		ConfigKeyAdminHost:    cfg.Admin.Host,
		ConfigKeyAdminPort:    fmt.Sprintf("%d", cfg.Admin.Port),
		ConfigKeyAdminAPIKey:  cfg.Admin.APIKey,
	}

	return setConfigInTx(tx, configs)
}

// Helper types and functions

type txExec interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
}

func setConfigInTx(tx txExec, configs map[string]string) error {
	stmt, err := tx.Prepare(`
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare config insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range configs {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to set config %s: %w", key, err)
		}
	}

	return nil
}
