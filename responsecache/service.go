package responsecache

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"encore.app/pkg/clock"
	"encore.app/pkg/compress"
	"encore.app/pkg/metrics"
	"encore.app/pkg/models"
	"encore.app/pkg/ratelimit"
	"encore.dev/storage/sqldb"
)

//encore:service
type Service struct {
	Manager  *Manager
	Registry *ClientRegistry
	Metrics  *metrics.Registry
}

// db follows the teacher's invalidation/service.go idiom: a package-level
// named database handle, resolved once by Encore at startup.
var db = sqldb.Named("responsecache_db")

// secrets holds Redis connection material for the shared rate-limit store.
// Encore's static analyzer wires this to the app's secret manager; values
// are never logged (spec §6 credential handling).
var secrets struct {
	RedisAddr     string
	RedisPassword string
}

func initService() (*Service, error) {
	registry := NewClientRegistry(defaultClients())

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     orDefault(secrets.RedisAddr, "localhost:6379"),
		Password: secrets.RedisPassword,
	})

	limiter := ratelimit.New(rdb, registry)
	compressor := compress.New(registry.CompressionEnabled, 0)
	repo := NewRepository(db, compressor, clock.Real())
	manager := NewManager(repo, limiter)

	return &Service{Manager: manager, Registry: registry, Metrics: metrics.NewRegistry()}, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// defaultClients seeds the registry used when no operator-supplied
// configuration has been wired in yet. Real client onboarding happens
// through ClientRegistry, constructed by whatever owns deployment
// configuration — this core does not parse config files (spec §1).
func defaultClients() map[string]ClientConfig {
	return map[string]ClientConfig{}
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize responsecache service: %v", err))
	}
}

// CurrentManager exposes this service's Manager to other services in the
// app, the same way invalidation and cache-manager expose their svc-backed
// API functions for cross-service calls.
func CurrentManager() (*Manager, error) {
	if svc == nil {
		return nil, fmt.Errorf("responsecache: service not initialized")
	}
	return svc.Manager, nil
}

// CurrentRegistry exposes this service's ClientRegistry, used by taskqueue
// to resolve per-client webhook secrets.
func CurrentRegistry() (*ClientRegistry, error) {
	if svc == nil {
		return nil, fmt.Errorf("responsecache: service not initialized")
	}
	return svc.Registry, nil
}

// CurrentMetrics exposes this service's metrics registry so a caller can
// wire BaseClient.Metrics to the per-client counters the Metrics endpoint
// below reports. No code in this module calls it; counters for a client
// whose BaseClient.Metrics is not wired to this registry stay at zero.
func CurrentMetrics() (*metrics.Registry, error) {
	if svc == nil {
		return nil, fmt.Errorf("responsecache: service not initialized")
	}
	return svc.Metrics, nil
}

// MetricsResponse is the Prometheus-style rendering of one client's gateway
// counters: cache effectiveness and rate-limit pressure for operators.
type MetricsResponse struct {
	Client  string             `json:"client"`
	Metrics map[string]float64 `json:"metrics"`
}

// GetMetrics reports the current cache/dispatch counters for one client.
//
//encore:api public method=GET path=/metrics/:client
func GetMetrics(ctx context.Context, client string) (*MetricsResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("responsecache: service not initialized")
	}
	snapshot := svc.Metrics.Snapshot(client)
	return &MetricsResponse{
		Client:  client,
		Metrics: models.SnapshotToPrometheusFormat(snapshot, "api_cache"),
	}, nil
}
