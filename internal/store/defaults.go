package store

import (
	"database/sql"
	"fmt"
)

// DefaultResolverServers are the default recursive DNS servers used to
// resolve federation destinations (SRV -> AAAA/A).
var DefaultResolverServers = []string{
	"9.9.9.9", // Quad9 (primary)
	"1.1.1.1", // Cloudflare (fallback)
	"8.8.8.8", // Google (fallback)
}

// InitDefaults populates the database with default configuration values.
// This is called on first database creation to ensure all config keys exist.
// It only inserts values if they don't already exist (won't overwrite).
func (db *DB) InitDefaults() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check if defaults have already been initialized
	var count int
	err = tx.QueryRow("SELECT COUNT(*) FROM config").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check config count: %w", err)
	}

	// If config table has entries, defaults have already been set
	if count > 0 {
		return nil
	}

	// Initialize all default configuration values
	if err := db.initBrokerDefaults(tx); err != nil {
		return err
	}

	if err := db.initResolverDefaults(tx); err != nil {
		return err
	}

	if err := db.initLoggingDefaults(tx); err != nil {
		return err
	}

	if err := db.initPolicyDefaults(tx); err != nil {
		return err
	}

	if err := db.initRateLimitDefaults(tx); err != nil {
		return err
	}

	if err := db.initAdminDefaults(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit defaults: %w", err)
	}

	return nil
}

func (db *DB) initBrokerDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyBrokerWorkers:    "auto",
		ConfigKeyBrokerEnableIPv6: "true",
	}

	return insertDefaults(tx, defaults)
}

func (db *DB) initResolverDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyResolverUDPTimeout: "3s",
		ConfigKeyResolverTCPTimeout: "5s",
		ConfigKeyResolverMaxRetries: "3",
	}

	if err := insertDefaults(tx, defaults); err != nil {
		return err
	}

	// Insert default resolver servers
	stmt, err := tx.Prepare(`
		INSERT INTO resolver_servers (server_address, priority, enabled)
		VALUES (?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare resolver insert: %w", err)
	}
	defer stmt.Close()

	for i, server := range DefaultResolverServers {
		if _, err := stmt.Exec(server, i); err != nil {
			return fmt.Errorf("failed to insert default resolver %s: %w", server, err)
		}
	}

	return nil
}

func (db *DB) initLoggingDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyLoggingLevel:            "INFO",
		ConfigKeyLoggingStructured:       "false",
		ConfigKeyLoggingStructuredFormat: "json",
		ConfigKeyLoggingIncludePID:       "false",
	}

	return insertDefaults(tx, defaults)
}

func (db *DB) initPolicyDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyPolicyEnabled:         "false",
		ConfigKeyPolicyLogDenied:       "true",
		ConfigKeyPolicyLogAllowed:      "false",
		ConfigKeyPolicyRefreshInterval: "24h",
	}

	return insertDefaults(tx, defaults)
}

func (db *DB) initRateLimitDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyRateLimitCleanupSeconds:   "60.0",
		ConfigKeyRateLimitMaxIPEntries:     "65536",
		ConfigKeyRateLimitMaxPrefixEntries: "16384",
		ConfigKeyRateLimitGlobalQPS:        "1000.0",
		ConfigKeyRateLimitGlobalBurst:      "2000",
		ConfigKeyRateLimitPrefixQPS:        "200.0",
		ConfigKeyRateLimitPrefixBurst:      "400",
		ConfigKeyRateLimitIPQPS:            "50.0",
		ConfigKeyRateLimitIPBurst:          "100",
	}

	return insertDefaults(tx, defaults)
}

func (db *DB) initAdminDefaults(tx *sql.Tx) error {
	defaults := map[string]string{
		ConfigKeyAdminEnabled: "true",
		ConfigKeyAdminHost:    "127.0.0.1",
		ConfigKeyAdminPort:    "8080",
		ConfigKeyAdminAPIKey:  "", // no API key by default; set one before exposing the admin API publicly
	}

	return insertDefaults(tx, defaults)
}

// insertDefaults inserts config values only if they don't exist.
func insertDefaults(tx *sql.Tx, defaults map[string]string) error {
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare config insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range defaults {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert default %s: %w", key, err)
		}
	}

	return nil
}

// IsInitialized checks if the database has been initialized with defaults.
func (db *DB) IsInitialized() (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM config").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check config count: %w", err)
	}

	return count > 0, nil
}
