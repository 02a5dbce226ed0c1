package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asakaida/remotemodel/internal/connectors/memory"
	"github.com/asakaida/remotemodel/internal/connectors/redisstore"
	"github.com/asakaida/remotemodel/internal/connectors/remote"
	"github.com/asakaida/remotemodel/internal/connectors/sqlstore"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/handlers"
	"github.com/asakaida/remotemodel/internal/infrastructure/config"
	"github.com/asakaida/remotemodel/internal/infrastructure/database"
	"github.com/asakaida/remotemodel/internal/infrastructure/logger"
	"github.com/asakaida/remotemodel/internal/infrastructure/metrics"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/remoting"
	"github.com/asakaida/remotemodel/internal/services"
	"github.com/asakaida/remotemodel/pkg/cache/memorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const (
	defaultEnv      = "dev"
	shutdownTimeout = 30 * time.Second
	metricsInterval = 15 * time.Second
)

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	engine, err := newFilterEngine(&cfg.Cache)
	if err != nil {
		return err
	}

	connector, closer, err := openConnector(cfg, engine, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			zl.Warn("failed to close data source", zap.Error(err))
		}
	}()
	ds := model.NewDataSource(cfg.DataSource.Name, connector)
	zl.Info("data source ready",
		zap.String("name", ds.Name),
		zap.String("connector", connector.Name()),
	)

	svc, err := services.NewModelService(services.WithLogger(zl), services.WithFilterEngine(engine))
	if err != nil {
		return fmt.Errorf("failed to create model service: %w", err)
	}
	if cfg.Server.SchemaPath != "" {
		dsl, err := os.ReadFile(cfg.Server.SchemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
		models, err := svc.DefineSchema(string(dsl), ds)
		if err != nil {
			return fmt.Errorf("failed to define schema: %w", err)
		}
		zl.Info("schema loaded", zap.String("path", cfg.Server.SchemaPath), zap.Int("models", len(models)))
		if pending := svc.PendingRelations(); len(pending) > 0 {
			zl.Warn("relations waiting for undefined models", zap.Strings("relations", pending))
		}
	}

	// Metrics
	collector := metrics.NewCollector()
	if cfg.Cache.Enabled {
		collector.SetCache(engine.Programs())
	}
	registry := prometheus.NewRegistry()
	exporter := metrics.NewPrometheusExporter(collector, registry)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		logger.UnaryServerInterceptor(zl),
		metrics.UnaryServerInterceptor(collector, exporter),
	))
	remoting.RegisterModelServiceServer(grpcServer, handlers.NewModelHandler(svc))

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	zl.Info("gRPC server listening", zap.String("addr", addr))

	serverErrors := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           metricsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zl.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	updateCtx, stopUpdates := context.WithCancel(context.Background())
	defer stopUpdates()
	go func() {
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-updateCtx.Done():
				return
			case <-ticker.C:
				exporter.Update()
			}
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		grpcServer.Stop()
		return err
	case sig := <-sigChan:
		zl.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		zl.Info("server stopped gracefully")
	case <-shutdownCtx.Done():
		zl.Warn("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("failed to stop metrics server", zap.Error(err))
	}
	zl.Info("shutdown complete")
	return nil
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// newFilterEngine sizes the compiled where-clause cache from cfg
func newFilterEngine(cfg *config.CacheConfig) (*filter.Engine, error) {
	var opts []filter.Option
	if cfg.Enabled {
		programs := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.MaxMemoryBytes,
			EnableMetrics: cfg.Metrics,
		})
		opts = append(opts, filter.WithProgramCache(programs, cfg.TTL()))
	} else {
		// A one byte budget keeps only the most recently compiled program.
		opts = append(opts, filter.WithProgramCache(memorycache.New(&memorycache.Config{MaxSizeBytes: 1}), 0))
	}
	engine, err := filter.NewEngine(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter engine: %w", err)
	}
	return engine, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openConnector opens the connector selected by DATASOURCE
func openConnector(cfg *config.Config, engine *filter.Engine, zl *zap.Logger) (model.Connector, io.Closer, error) {
	switch cfg.DataSource.Kind {
	case config.DataSourceMemory:
		c, err := memory.New(memory.WithEngine(engine))
		if err != nil {
			return nil, nil, err
		}
		return c, nopCloser{}, nil

	case config.DataSourcePostgres, config.DataSourceSQLite:
		var (
			db  *database.DB
			err error
		)
		if cfg.DataSource.Kind == config.DataSourcePostgres {
			db, err = database.NewPostgres(&cfg.Database)
		} else {
			db, err = database.NewSQLite(&cfg.SQLite)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		c, err := sqlstore.New(db, sqlstore.WithEngine(engine))
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		zl.Info("connected to database", zap.String("dialect", string(db.Dialect)))
		return c, db, nil

	case config.DataSourceRedis:
		c, err := redisstore.Dial(&cfg.Redis, redisstore.WithEngine(engine))
		if err != nil {
			return nil, nil, err
		}
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
		return c, c, nil

	case config.DataSourceRemote:
		c, err := remote.Dial(cfg.Remote.Addr,
			remote.WithTimeout(cfg.Remote.Timeout),
			remote.WithLogger(zl.Named("remote")),
		)
		if err != nil {
			return nil, nil, err
		}
		zl.Info("forwarding to remote model service", zap.String("addr", cfg.Remote.Addr))
		return c, c, nil
	}
	return nil, nil, fmt.Errorf("unknown data source kind %q", cfg.DataSource.Kind)
}
