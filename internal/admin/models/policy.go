package models

// FilteringStatsResponse contains destination policy statistics.
type FilteringStatsResponse struct {
	Enabled        bool   `json:"enabled"`
	QueriesTotal   uint64 `json:"queries_total"`
	QueriesBlocked uint64 `json:"queries_blocked"`
	QueriesAllowed uint64 `json:"queries_allowed"`
	WhitelistSize  int    `json:"whitelist_size"`
	BlacklistSize  int    `json:"blacklist_size"`
}

// DomainListResponse contains a list of destinations (allow or deny).
type DomainListResponse struct {
	Domains []string `json:"domains"`
	Count   int      `json:"count"`
}

// DomainRequest is used to add destinations to a list.
type DomainRequest struct {
	Domains []string `json:"domains" binding:"required,min=1"`
}

// DomainDeleteRequest is used to remove destinations from a list.
type DomainDeleteRequest struct {
	Domains []string `json:"domains" binding:"required,min=1"`
}

// FilteringEnabledRequest toggles destination policy enforcement on/off.
type FilteringEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// DenyListEntry describes a configured remote deny-list source.
type DenyListEntry struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Format      string  `json:"format"`
	Enabled     bool    `json:"enabled"`
	LastFetched *string `json:"last_fetched,omitempty"`
}

// DenyListsResponse lists all configured remote deny-list sources.
type DenyListsResponse struct {
	DenyLists []DenyListEntry `json:"deny_lists"`
	Count     int             `json:"count"`
}
