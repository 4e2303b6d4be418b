// Package app wires the ad-hoc session coordinator runtime: SQLite storage,
// NATS presence ingest and event publishing, and the gRPC health surface.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/gathering.space/internal/platform/discovery"
	"github.com/louisbranch/gathering.space/internal/platform/timeouts"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/coordinator"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
	adhocsqlite "github.com/louisbranch/gathering.space/internal/services/adhoc/storage/sqlite"
	adhocnats "github.com/louisbranch/gathering.space/internal/services/adhoc/transport/nats"
)

// RuntimeConfig controls adhoc service startup and dependencies.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	NATSURL       string
	SweepInterval time.Duration
}

const (
	defaultAdhocPort = 8092
	defaultAdhocDB   = "data/adhoc.db"
)

// HealthService is the named gRPC health check the runtime reports on, probed
// by the command's readiness check.
const HealthService = "adhoc.runtime"

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultAdhocPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultAdhocDB
	}
	cfg.NATSURL = discovery.OrDefaultNATSURL(cfg.NATSURL)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = domain.SweepInterval
	}
	return cfg
}

// Run starts the adhoc runtime and blocks until the context is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create adhoc storage dir: %w", err)
		}
	}

	store, err := adhocsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open adhoc sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close adhoc sqlite store: %v", closeErr)
		}
	}()

	natsConn, err := natsgo.Connect(cfg.NATSURL,
		natsgo.Name("gathering-space-adhoc"),
		natsgo.Timeout(timeouts.NATSConnect),
		natsgo.DrainTimeout(timeouts.NATSDrain),
	)
	if err != nil {
		return fmt.Errorf("connect nats at %s: %w", cfg.NATSURL, err)
	}
	defer func() {
		if drainErr := natsConn.Drain(); drainErr != nil {
			log.Printf("drain nats connection: %v", drainErr)
		}
	}()

	publisher, err := adhocnats.NewPublisher(natsConn)
	if err != nil {
		return fmt.Errorf("build event publisher: %w", err)
	}

	coord, err := coordinator.New(coordinator.Config{
		Stores: coordinator.Stores{
			Sessions:     store,
			Participants: store,
			Bindings:     store,
			Settings:     store,
		},
		Notifier: publisher,
	})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	defer coord.Close()

	// Rehydrate before subscribing so replayed presence lands on a registry
	// that already knows its live sessions.
	if err := coord.Recover(ctx); err != nil {
		return fmt.Errorf("recover live sessions: %w", err)
	}

	sweeper := coordinator.NewSweeper(coord, cfg.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	ingest, err := adhocnats.NewIngest(natsConn, coord, log.Printf)
	if err != nil {
		return fmt.Errorf("build presence ingest: %w", err)
	}
	if err := ingest.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe presence subjects: %w", err)
	}
	defer ingest.Unsubscribe()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on adhoc port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("adhoc server listening at %v", listener.Addr())
	<-ctx.Done()
	log.Printf("adhoc server shutting down")
	return nil
}
