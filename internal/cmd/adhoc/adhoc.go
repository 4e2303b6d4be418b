// Package adhoc parses adhoc command flags and launches the service runtime.
package adhoc

import (
	"context"
	"flag"
	"net"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/gathering.space/internal/platform/cmd"
	"github.com/louisbranch/gathering.space/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/gathering.space/internal/platform/grpc"
	"github.com/louisbranch/gathering.space/internal/platform/timeouts"
	adhocserver "github.com/louisbranch/gathering.space/internal/services/adhoc/app"
)

// Config holds adhoc command configuration.
type Config struct {
	Port          int           `env:"GATHERING_SPACE_ADHOC_PORT" envDefault:"8092"`
	DBPath        string        `env:"GATHERING_SPACE_ADHOC_DB_PATH" envDefault:"data/adhoc.db"`
	NATSURL       string        `env:"GATHERING_SPACE_ADHOC_NATS_URL"`
	SweepInterval time.Duration `env:"GATHERING_SPACE_ADHOC_SWEEP_INTERVAL" envDefault:"5m"`
	// Check runs a one-shot readiness probe against a running instance instead
	// of starting the runtime. Exit status is the probe result.
	Check bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.NATSURL = discovery.OrDefaultNATSURL(cfg.NATSURL)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The adhoc health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The adhoc SQLite database path")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "The NATS broker URL")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Session extension sweep interval")
	fs.BoolVar(&cfg.Check, "check", false, "Probe a running instance's health check and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CheckReady dials the local runtime's health endpoint and reports whether it
// serves. Used as the container health probe (`adhoc -check`).
func CheckReady(ctx context.Context, cfg Config) error {
	addr := net.JoinHostPort("localhost", strconv.Itoa(cfg.Port))
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, adhocserver.HealthService,
		timeouts.GRPCDial, nil, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Run starts the adhoc runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAdhoc, func(context.Context) error {
		return adhocserver.Run(ctx, adhocserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			NATSURL:       cfg.NATSURL,
			SweepInterval: cfg.SweepInterval,
		})
	})
}
