// Command kg-server starts the keygate gRPC server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/keygate/internal/clock"
	"github.com/and161185/keygate/internal/config"
	"github.com/and161185/keygate/internal/dispatch"
	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/metrics"
	"github.com/and161185/keygate/internal/migrate"
	"github.com/and161185/keygate/internal/repository"
	"github.com/and161185/keygate/internal/repository/memory"
	"github.com/and161185/keygate/internal/repository/postgres"
	grpcserver "github.com/and161185/keygate/internal/server/grpc"
	"github.com/and161185/keygate/internal/service"
	"github.com/and161185/keygate/internal/sweeper"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type stores struct {
	grants repository.GrantRepository
	keys   repository.KeyRepository
	admins repository.AdminRepository
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (stores, error) {
	if cfg.Store == config.BackendMemory {
		st := memory.New()
		return stores{grants: st, keys: st, admins: st, close: func() {}}, nil
	}
	if err := migrate.Up(ctx, cfg.DSN, log.Named("migrate")); err != nil {
		return stores{}, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		return stores{}, fmt.Errorf("connect: %w", err)
	}
	return stores{
		grants: postgres.NewGrantRepo(db),
		keys:   postgres.NewKeyRepo(db),
		admins: postgres.NewAdminRepo(db),
		close:  db.Close,
	}, nil
}

func openLimiter(cfg *config.Config, clk clock.Clock) (limiter.Limiter, func(), *limiter.Memory) {
	if cfg.Limiter == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return limiter.NewRedis(rdb, cfg.Limits, clk, ""), func() { _ = rdb.Close() }, nil
	}
	m := limiter.NewMemory(cfg.Limits, clk)
	return m, func() {}, m
}

// main parses configuration, opens storage, and serves the dispatcher over gRPC.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.String("limiter", cfg.Limiter),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clk := clock.Real()

	// Metrics
	m := metrics.Nop()
	if cfg.MetricsAddr != "" {
		mp, h, err := metrics.Prometheus()
		if err != nil {
			return err
		}
		defer func() { _ = mp.Shutdown(context.Background()) }()
		if m, err = metrics.New(metrics.Meter(mp)); err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		ms := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = ms.Shutdown(context.Background()) }()
	}

	// Repositories
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Services
	ent := service.NewEntitlementService(st.grants, st.keys, st.admins, clk, logger.Named("entitlements"), m,
		service.EntitlementOptions{KeyPrefix: cfg.KeyPrefix, RedeemWindow: cfg.RedeemWindow})
	adm := service.NewAdminService(st.admins, cfg.OwnerID, clk, logger.Named("admins"))
	if err := adm.EnsureOwner(ctx); err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}

	lim, closeLim, memLim := openLimiter(cfg, clk)
	defer closeLim()

	var cleaners []sweeper.Cleaner
	if memLim != nil {
		cleaners = append(cleaners, memLim)
	}
	sw, err := sweeper.New(ent, sweeper.Config{Spec: cfg.SweepSpec, Timezone: cfg.SweepTimezone}, logger.Named("sweeper"), cleaners...)
	if err != nil {
		return err
	}
	sw.Start()
	logger.Info("sweeper scheduled", zap.String("spec", cfg.SweepSpec), zap.Time("next_run", sw.Next()))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sw.Stop(sctx)
	}()

	d := dispatch.New(ent, adm, lim, dispatch.Unavailable{}, clk, logger.Named("dispatch"), m)

	// gRPC server with interceptors
	opts := grpcserver.ServerOptions([]byte(cfg.JWTKey), logger)
	if !cfg.Plaintext {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	grpcserver.Register(s, grpcserver.New(d))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Plaintext))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
