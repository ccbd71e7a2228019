// Package handlers implements the REST API endpoint handlers for the broker's admin API.
//
// @title Federation Broker Management API
// @version 1.0
// @description REST API for managing federation broker configuration, directory entries, and policy.
//
// @contact.name Federation Broker Support
// @contact.url https://github.com/matrix-construct/construct-sub003
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/clustersync"
	"github.com/matrix-construct/construct-sub003/internal/config"
	"github.com/matrix-construct/construct-sub003/internal/directory"
	"github.com/matrix-construct/construct-sub003/internal/policy"
	"github.com/matrix-construct/construct-sub003/internal/store"
)

// DNSStatsSnapshot is a point-in-time snapshot of dispatcher statistics,
// supplied by the running broker via SetDNSStatsFunc.
type DNSStatsSnapshot struct {
	QueriesTotal int64
	QueriesUDP   int64
	QueriesTCP   int64
	ResponsesNX  int64
	ResponsesErr int64
	AvgLatencyMs float64
}

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after server starts)
	policyEngine  *policy.PolicyEngine
	zones         []*directory.Zone
	db            *store.DB
	clusterSyncer *clustersync.Syncer
	dnsStatsFn    func() DNSStatsSnapshot
	mu            sync.RWMutex
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetPolicyEngine sets the policy engine for runtime access.
func (h *Handler) SetPolicyEngine(pe *policy.PolicyEngine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policyEngine = pe
}

// GetPolicyEngine returns the currently registered policy engine, if any.
func (h *Handler) GetPolicyEngine() *policy.PolicyEngine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policyEngine
}

// SetZones sets the loaded zones for runtime access.
func (h *Handler) SetZones(zones []*directory.Zone) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zones = zones
}

// SetDB registers the config store for runtime access.
func (h *Handler) SetDB(db *store.DB) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.db = db
}

// SetClusterSyncer registers the cluster syncer for runtime access (secondary mode only).
func (h *Handler) SetClusterSyncer(s *clustersync.Syncer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clusterSyncer = s
}

// SetDNSStatsFunc registers a callback the Stats endpoint polls for dispatcher metrics.
func (h *Handler) SetDNSStatsFunc(fn func() DNSStatsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dnsStatsFn = fn
}

// GetDNSStatsFunc returns the registered stats callback, if any.
func (h *Handler) GetDNSStatsFunc() func() DNSStatsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dnsStatsFn
}

// formatRData converts zone record RData to a display string.
func formatRData(rdata any) string {
	if rdata == nil {
		return ""
	}
	return fmt.Sprintf("%v", rdata)
}

// formatRecordType converts a DNS record type to its name.
func formatRecordType(t uint16) string {
	switch t {
	case 1:
		return "A"
	case 2:
		return "NS"
	case 5:
		return "CNAME"
	case 6:
		return "SOA"
	case 12:
		return "PTR"
	case 15:
		return "MX"
	case 16:
		return "TXT"
	case 28:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}
