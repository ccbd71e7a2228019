package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/matrix-construct/construct-sub003/internal/admin"
	"github.com/matrix-construct/construct-sub003/internal/admin/handlers"
	"github.com/matrix-construct/construct-sub003/internal/clustersync"
	"github.com/matrix-construct/construct-sub003/internal/config"
	"github.com/matrix-construct/construct-sub003/internal/directory"
	"github.com/matrix-construct/construct-sub003/internal/dispatch"
	"github.com/matrix-construct/construct-sub003/internal/logging"
	"github.com/matrix-construct/construct-sub003/internal/policy"
	"github.com/matrix-construct/construct-sub003/internal/resolvers"
	"github.com/matrix-construct/construct-sub003/internal/store"
)

const (
	// DefaultDatabasePath is the default location for the broker's store.
	DefaultDatabasePath = "fedbroker.db"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	dbPath         string
	workers        int
	jsonLogs       bool
	debug          bool
	clusterMode    string
	clusterPrimary string
	clusterSecret  string
	clusterNodeID  string
}

// parseFlags parses command-line flags and returns the values.
func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.dbPath, "db", DefaultDatabasePath, "Path to SQLite database file")
	flag.IntVar(&f.workers, "workers", -1, "Clamp GOMAXPROCS (can only reduce; -1 means default/auto)")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&f.clusterMode, "cluster-mode", "", "Cluster mode: standalone, primary, or secondary")
	flag.StringVar(&f.clusterPrimary, "cluster-primary", "", "Primary node URL for secondary mode")
	flag.StringVar(&f.clusterSecret, "cluster-secret", "", "Shared secret for cluster authentication")
	flag.StringVar(&f.clusterNodeID, "cluster-node-id", "", "Unique node ID (auto-generated if empty)")
	flag.Parse()
	return f
}

// applyCLIOverrides applies command-line overrides to the config.
func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.workers >= 0 {
		cfg.Broker.Workers.Mode = config.WorkersFixed
		cfg.Broker.Workers.Value = f.workers
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if f.clusterMode != "" {
		cfg.Cluster.Mode = config.ClusterMode(f.clusterMode)
	}
	if f.clusterPrimary != "" {
		cfg.Cluster.PrimaryURL = f.clusterPrimary
	}
	if f.clusterSecret != "" {
		cfg.Cluster.SharedSecret = f.clusterSecret
	}
	if f.clusterNodeID != "" {
		cfg.Cluster.NodeID = f.clusterNodeID
	}
	if cfg.Cluster.NodeID == "" {
		cfg.Cluster.NodeID = uuid.New().String()[:8]
	}
}

func run() error {
	flags := parseFlags()

	db, err := store.Open(flags.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	cfg, err := db.ExportToConfig()
	if err != nil {
		return fmt.Errorf("failed to load config from database: %w", err)
	}

	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("federation broker starting",
		"database", flags.dbPath,
		"workers", cfg.Broker.Workers.String(),
		"link_max_default", cfg.Broker.LinkMaxDefault,
		"tag_max_default", cfg.Broker.TagMaxDefault,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	policyEngine := buildPolicyEngine(cfg, logger)
	wireResolver := buildWireResolver(cfg)
	destResolver := resolvers.NewDestinationResolver(wireResolver, resolvers.DefaultRetryPolicy)
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	disp := dispatch.New(cfg.Broker, policyEngine, destResolver, tlsConfig, cfg.RateLimit, logger)
	defer disp.Close()

	zones := loadDirectoryZones(cfg, logger)

	apiSrv := admin.New(cfg, logger)
	apiSrv.Handler().SetPolicyEngine(policyEngine)
	apiSrv.Handler().SetDB(db)
	apiSrv.Handler().SetZones(zones)
	apiSrv.Handler().SetDNSStatsFunc(func() handlers.DNSStatsSnapshot {
		snap := disp.Stats()
		return handlers.DNSStatsSnapshot{
			QueriesTotal: int64(snap.SubmitTotal),
			ResponsesErr: int64(snap.SubmitErrors + snap.Blocked + snap.RateLimited),
		}
	})

	logger.Info("web UI and API starting", "addr", apiSrv.Addr())

	go func() {
		serveErr := apiSrv.ListenAndServe()
		if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
			return
		}
		logger.Error("API server error", "err", serveErr)
		cancel()
	}()

	var syncer *clustersync.Syncer
	if cfg.Cluster.Mode == config.ClusterModeSecondary {
		syncer = startClusterSyncer(ctx, cfg, db, logger, apiSrv.Handler())
	} else if cfg.Cluster.Mode != "" && cfg.Cluster.Mode != config.ClusterModeStandalone {
		logger.Info("cluster mode", "mode", cfg.Cluster.Mode, "node_id", cfg.Cluster.NodeID)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if syncer != nil {
		syncer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = apiSrv.Shutdown(shutdownCtx)
	shutdownCancel()
	logger.Info("web UI and API stopped")

	return nil
}

// buildPolicyEngine constructs the shared destination-allow/deny policy engine
// from configuration, even when policy enforcement is disabled, so the admin
// API always has an engine to report stats against.
func buildPolicyEngine(cfg *config.Config, logger *slog.Logger) *policy.PolicyEngine {
	blocklists := make([]policy.BlocklistURL, 0, len(cfg.Policy.DenyLists))
	for _, dl := range cfg.Policy.DenyLists {
		blocklists = append(blocklists, policy.BlocklistURL{
			Name:   dl.Name,
			URL:    dl.URL,
			Format: parseListFormat(dl.Format),
		})
	}

	refresh, err := time.ParseDuration(cfg.Policy.RefreshInterval)
	if err != nil {
		refresh = 0
	}

	return policy.NewPolicyEngine(policy.PolicyEngineConfig{
		Logger:           logger,
		Enabled:          cfg.Policy.Enabled,
		BlockAction:      policy.ActionBlock,
		LogBlocked:       cfg.Policy.LogDenied,
		LogAllowed:       cfg.Policy.LogAllowed,
		WhitelistDomains: cfg.Policy.AllowDestinations,
		BlacklistDomains: cfg.Policy.DenyDestinations,
		BlocklistURLs:    blocklists,
		RefreshInterval:  refresh,
	})
}

// parseListFormat converts a deny-list's configured format string into a
// policy.ListFormat, defaulting to auto-detection for unrecognized values.
func parseListFormat(format string) policy.ListFormat {
	switch strings.ToLower(format) {
	case "domains":
		return policy.FormatDomains
	case "hosts":
		return policy.FormatHosts
	case "adblock":
		return policy.FormatAdblock
	default:
		return policy.FormatAuto
	}
}

// loadDirectoryZones loads the static peer directory's zone files, combining
// an auto-discovered directory with any explicitly listed files. Load
// failures are logged and skipped rather than treated as fatal, since the
// directory is an optional resolution bypass, not a required dependency.
func loadDirectoryZones(cfg *config.Config, logger *slog.Logger) []*directory.Zone {
	paths := append([]string(nil), cfg.Directory.Files...)

	if cfg.Directory.Directory != "" {
		discovered, err := directory.DiscoverZoneFiles(cfg.Directory.Directory)
		if err != nil {
			logger.Warn("directory zone discovery failed", "dir", cfg.Directory.Directory, "err", err)
		} else {
			paths = append(paths, discovered...)
		}
	}

	zones := make([]*directory.Zone, 0, len(paths))
	for _, p := range paths {
		z, err := directory.LoadFile(p)
		if err != nil {
			logger.Warn("failed to load zone file", "path", p, "err", err)
			continue
		}
		zones = append(zones, z)
	}

	if len(zones) > 0 {
		logger.Info("loaded static peer directory", "zones", len(zones))
	}
	return zones
}

// buildWireResolver constructs the low-level wire-format resolver used to
// discover federation destination addresses (SRV/AAAA/A).
func buildWireResolver(cfg *config.Config) resolvers.Resolver {
	udpTimeout, err := time.ParseDuration(cfg.Resolver.UDPTimeout)
	if err != nil {
		udpTimeout = 0
	}
	tcpTimeout, err := time.ParseDuration(cfg.Resolver.TCPTimeout)
	if err != nil {
		tcpTimeout = 0
	}

	return resolvers.NewForwardingResolver(
		cfg.Resolver.Servers,
		0,
		0,
		true,
		udpTimeout,
		tcpTimeout,
		cfg.Resolver.MaxRetries,
	)
}

// startClusterSyncer initializes and starts the cluster syncer for secondary mode.
func startClusterSyncer(
	ctx context.Context,
	cfg *config.Config,
	db *store.DB,
	logger *slog.Logger,
	h *handlers.Handler,
) *clustersync.Syncer {
	logger.InfoContext(ctx, "starting cluster syncer",
		"primary_url", cfg.Cluster.PrimaryURL,
		"node_id", cfg.Cluster.NodeID,
		"sync_interval", cfg.Cluster.SyncInterval,
	)

	importFunc := func(data *clustersync.ExportData) error {
		if err := db.ImportFromCluster(data); err != nil {
			return err
		}
		return db.SetVersion(data.Version)
	}

	reloadFunc := func() error {
		logger.DebugContext(ctx, "config imported, runtime reload pending")
		return nil
	}

	versionFunc := func() (int64, error) {
		return db.GetVersion()
	}

	syncer, err := clustersync.NewSyncer(&cfg.Cluster, logger, importFunc, reloadFunc, versionFunc)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create cluster syncer", "err", err)
		return nil
	}

	h.SetClusterSyncer(syncer)

	if err := syncer.Start(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to start cluster syncer", "err", err)
		return nil
	}

	return syncer
}
