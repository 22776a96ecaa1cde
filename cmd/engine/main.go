package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"engine/internal/admin"
	"engine/internal/app"
	"engine/internal/audit"
	"engine/internal/idempotency"
	"engine/internal/ingress"
	"engine/internal/obs"
	"engine/internal/ops"
	"engine/internal/store"
	"engine/pkg/conn"
	"engine/pkg/uds"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("engine: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	envFile := flag.String("env", ".env", "Path to .env file (missing is ignored)")
	flag.Parse()

	if err := ops.LoadEnv(*envFile); err != nil {
		return err
	}
	cfg, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "balance-engine",
			ServerAddress:   cfg.PyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	deps := app.Deps{Backend: backend}
	if cfg.Redis.Addr != "" {
		client, err := conn.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()
		deps.Dedup = idempotency.NewRedis(client, cfg.DedupTTL)
	}
	if len(cfg.Audit.KafkaBrokers) != 0 {
		kafka := audit.NewKafkaPublisher(cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
		defer func() {
			_ = kafka.Close()
		}()
		deps.Publisher = kafka
	}

	engine, err := app.New(ctx, cfg, deps)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		obs.NewCollector(engine.Metrics),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return err
	}
	listener, err := uds.NewServer(cfg.SocketPath)
	if err != nil {
		return err
	}
	ingressServer, err := ingress.NewServer(listener, engine.Queue,
		ingress.WithMetrics(engine.Metrics),
		ingress.WithTraceGenerator(obs.NewTraceGenerator(0)),
	)
	if err != nil {
		return err
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()
	go engine.ReportStats(ctx, cfg.StatsInterval)
	go func() {
		if err := ingressServer.Serve(ctx); err != nil {
			logs.Errorf("ingress serve, err: %+v", err)
		}
	}()

	var httpServer *http.Server
	if cfg.AdminAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.NewServer(engine.Dispatcher, engine.Queue, engine.Metrics, registry).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("admin serve, err: %+v", err)
			}
		}()
	}

	logs.Infof("engine started, socket %s admin %q storage %s", cfg.SocketPath, cfg.AdminAddr, cfg.Storage.Driver)

	select {
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case err := <-engineDone:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	ingressServer.Close()
	engine.Stop()

	select {
	case err := <-engineDone:
		logs.Infof("engine stopped, last seq %d", engine.Dispatcher.Seq())
		return err
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}

func openBackend(ctx context.Context, cfg ops.Loaded) (store.Backend, func(), error) {
	switch cfg.Storage.Driver {
	case ops.StoragePostgres:
		pg, err := conn.NewPostgres(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			_ = pg.Close()
		}
		backend := store.NewGorm(pg.DB())
		if err := backend.Migrate(ctx); err != nil {
			closer()
			return nil, nil, err
		}
		if err := app.SeedAssets(ctx, backend, cfg.Assets); err != nil {
			closer()
			return nil, nil, err
		}
		return backend, closer, nil
	default:
		return store.NewMemory(cfg.Assets...), func() {}, nil
	}
}
