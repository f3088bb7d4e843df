package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/httpapi"
	"github.com/MrEthical07/authshield/internal/appconfig"
	"github.com/MrEthical07/authshield/internal/logging"
	"github.com/MrEthical07/authshield/metrics/export/prometheus"
	"github.com/MrEthical07/authshield/monitor"
	"github.com/MrEthical07/authshield/notify"
	"github.com/MrEthical07/authshield/store/memory"
	"github.com/MrEthical07/authshield/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; AUTHSHIELD_* env vars override it")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, flush, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authshield exited", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

type stores struct {
	users  authshield.UserStore
	events authshield.EventLog
	close  func()
}

func openStores(ctx context.Context, cfg appconfig.PostgresConfig, logger *zap.Logger) (*stores, error) {
	if cfg.DSN == "" {
		logger.Warn("postgres dsn not set, using in-memory stores")
		return &stores{users: memory.NewUsers(), events: memory.NewEvents(), close: func() {}}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("postgres schema applied")
	}
	return &stores{users: postgres.NewUsers(pool), events: postgres.NewEvents(pool), close: pool.Close}, nil
}

type notifier interface {
	authshield.Notifier
	monitor.AlertNotifier
}

func newNotifier(cfg *appconfig.Config, logger *zap.Logger) (notifier, error) {
	if !cfg.SMTP.Enabled {
		return notify.NewLogNotifier(logger, cfg.SMTP.LogTokens), nil
	}
	return notify.NewSMTPNotifier(cfg.SMTPConfig(), logger)
}

func run(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	st, err := openStores(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer st.close()

	mailer, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	engineCfg := cfg.Engine()
	if len(engineCfg.Session.SigningKey) == 0 {
		logger.Warn("auth.signing_key not set, sessions will not survive a restart")
	}
	engine, err := authshield.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(st.users).
		WithEventLog(st.events).
		WithNotifier(mailer).
		WithLogger(logger.Named("engine")).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	mon, err := monitor.New(st.events,
		monitor.WithConfig(cfg.MonitorConfig()),
		monitor.WithNotifier(mailer),
		monitor.WithLogger(logger.Named("monitor")),
	)
	if err != nil {
		return fmt.Errorf("build monitor: %w", err)
	}
	if cfg.Monitor.Enabled {
		if err := mon.Start(ctx, cfg.Monitor.Interval); err != nil {
			return err
		}
		logger.Info("security monitor started", zap.Duration("interval", cfg.Monitor.Interval))
	}
	defer mon.Stop()

	maintenanceDone := make(chan struct{})
	go runMaintenance(ctx, engine, cfg.Maintenance.Interval, logger, maintenanceDone)

	router := chi.NewRouter()
	router.Handle("/metrics", prometheus.NewExporter(engine).Handler())
	router.Mount("/", httpapi.NewRouter(engine,
		httpapi.WithMonitor(mon),
		httpapi.WithLogger(logger.Named("http")),
	))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	<-maintenanceDone
	logger.Info("authshield stopped")
	return nil
}

// runMaintenance runs the cleanup pass every interval until ctx is done. A
// zero interval disables it.
func runMaintenance(ctx context.Context, engine *authshield.Engine, interval time.Duration, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := engine.RunMaintenance(ctx)
			if err != nil {
				logger.Error("maintenance pass failed", zap.Error(err))
			}
			logger.Info("maintenance pass",
				zap.Int64("tokens_cleaned", report.TokensCleaned),
				zap.Int64("events_deleted", report.EventsDeleted),
				zap.Int("buckets_swept", report.BucketsSwept),
			)
		}
	}
}
