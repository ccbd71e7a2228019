package store

import (
	"context"
	"fmt"
)

// DenyList represents a remote destination denylist source.
type DenyList struct {
	ID          int64
	Name        string
	URL         string
	Format      string
	Enabled     bool
	LastFetched *string
}

// AddAllowDestination adds a destination to the allow list.
func (db *DB) AddAllowDestination(ctx context.Context, destination string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := "INSERT OR IGNORE INTO policy_allow_destinations (domain) VALUES (?)"

	_, err := db.conn.ExecContext(ctx, query, destination)
	if err != nil {
		return fmt.Errorf("failed to add allow destination %s: %w", destination, err)
	}

	return nil
}

// GetAllowDestinations retrieves all allow-listed destinations.
func (db *DB) GetAllowDestinations(ctx context.Context) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT domain FROM policy_allow_destinations ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("failed to query allow list: %w", err)
	}
	defer rows.Close()

	var destinations []string
	for rows.Next() {
		var destination string
		if err := rows.Scan(&destination); err != nil {
			return nil, fmt.Errorf("failed to scan allow destination: %w", err)
		}
		destinations = append(destinations, destination)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allow list: %w", err)
	}

	return destinations, nil
}

// DeleteAllowDestination removes a destination from the allow list.
func (db *DB) DeleteAllowDestination(ctx context.Context, destination string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.ExecContext(ctx, "DELETE FROM policy_allow_destinations WHERE domain = ?", destination)
	if err != nil {
		return fmt.Errorf("failed to delete allow destination: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("allow destination not found: %s", destination)
	}

	return nil
}

// AddDenyDestination adds a destination to the deny list.
func (db *DB) AddDenyDestination(ctx context.Context, destination string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := "INSERT OR IGNORE INTO policy_deny_destinations (domain) VALUES (?)"

	_, err := db.conn.ExecContext(ctx, query, destination)
	if err != nil {
		return fmt.Errorf("failed to add deny destination %s: %w", destination, err)
	}

	return nil
}

// GetDenyDestinations retrieves all deny-listed destinations.
func (db *DB) GetDenyDestinations(ctx context.Context) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT domain FROM policy_deny_destinations ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("failed to query deny list: %w", err)
	}
	defer rows.Close()

	var destinations []string
	for rows.Next() {
		var destination string
		if err := rows.Scan(&destination); err != nil {
			return nil, fmt.Errorf("failed to scan deny destination: %w", err)
		}
		destinations = append(destinations, destination)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deny list: %w", err)
	}

	return destinations, nil
}

// DeleteDenyDestination removes a destination from the deny list.
func (db *DB) DeleteDenyDestination(ctx context.Context, destination string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.ExecContext(ctx, "DELETE FROM policy_deny_destinations WHERE domain = ?", destination)
	if err != nil {
		return fmt.Errorf("failed to delete deny destination: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("deny destination not found: %s", destination)
	}

	return nil
}

// AddDenyList adds a remote denylist source.
func (db *DB) AddDenyList(ctx context.Context, name, url, format string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO policy_deny_lists (name, url, format, enabled, updated_at)
		VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			format = excluded.format,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.conn.ExecContext(ctx, query, name, url, format)
	if err != nil {
		return fmt.Errorf("failed to add deny list %s: %w", name, err)
	}

	return nil
}

// GetDenyLists retrieves all denylist sources.
func (db *DB) GetDenyLists(ctx context.Context) ([]DenyList, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT id, name, url, format, enabled, last_fetched
		FROM policy_deny_lists
		ORDER BY name
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query deny lists: %w", err)
	}
	defer rows.Close()

	var lists []DenyList
	for rows.Next() {
		var l DenyList
		if err := rows.Scan(&l.ID, &l.Name, &l.URL, &l.Format, &l.Enabled, &l.LastFetched); err != nil {
			return nil, fmt.Errorf("failed to scan deny list: %w", err)
		}
		lists = append(lists, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deny lists: %w", err)
	}

	return lists, nil
}

// DeleteDenyList removes a denylist source.
func (db *DB) DeleteDenyList(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.conn.ExecContext(ctx, "DELETE FROM policy_deny_lists WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete deny list: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("deny list not found: %s", name)
	}

	return nil
}

// EnableDenyList enables/disables a denylist source.
func (db *DB) EnableDenyList(ctx context.Context, name string, enabled bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := "UPDATE policy_deny_lists SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?"

	result, err := db.conn.ExecContext(ctx, query, enabled, name)
	if err != nil {
		return fmt.Errorf("failed to update deny list: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("deny list not found: %s", name)
	}

	return nil
}

// UpdateDenyListFetchTime updates the last_fetched timestamp for a denylist.
func (db *DB) UpdateDenyListFetchTime(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := "UPDATE policy_deny_lists SET last_fetched = CURRENT_TIMESTAMP WHERE name = ?"

	result, err := db.conn.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to update deny list fetch time: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("deny list not found: %s", name)
	}

	return nil
}

// SetPolicyEnabled persists the destination policy engine's enabled state.
func (db *DB) SetPolicyEnabled(ctx context.Context, enabled bool) error {
	return db.SetConfig(ConfigKeyPolicyEnabled, fmt.Sprintf("%t", enabled))
}
