package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/asakaida/kizuna/internal/adapters/cached"
	"github.com/asakaida/kizuna/internal/adapters/memory"
	pgadapter "github.com/asakaida/kizuna/internal/adapters/postgres"
	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/handlers"
	linkcache "github.com/asakaida/kizuna/internal/infrastructure/cache"
	"github.com/asakaida/kizuna/internal/infrastructure/config"
	"github.com/asakaida/kizuna/internal/infrastructure/database"
	"github.com/asakaida/kizuna/internal/infrastructure/metrics"
	pgrepo "github.com/asakaida/kizuna/internal/repositories/postgres"
	"github.com/asakaida/kizuna/internal/services"
	"github.com/asakaida/kizuna/internal/services/parser"
	"github.com/asakaida/kizuna/internal/store"
	"github.com/asakaida/kizuna/pkg/cache/memorycache"
)

const defaultEnv = "dev"

// backend is the adapter the server fetches from and writes through
type backend interface {
	store.Adapter
	handlers.RecordWriter
}

func main() {
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()
	exporter := metrics.NewPrometheusExporter(collector, prometheus.DefaultRegisterer)
	rec := metrics.NewRecorder(collector, exporter)

	var (
		adapter       backend
		schema        *entities.Schema
		schemaService *services.SchemaService
		pg            *database.Postgres
	)

	switch cfg.Store.Adapter {
	case "postgres":
		pg, err = database.NewPostgres(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()

		log.Printf("Connected to database: %s@%s:%d/%s",
			cfg.Database.User,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database)

		schemaService = services.NewSchemaService(pgrepo.NewPostgresSchemaRepository(pg.DB))
		schema, err = schemaService.LoadFile(ctx, cfg.Store.TenantID, cfg.Store.SchemaPath)
		if err != nil {
			log.Fatalf("Failed to load schema: %v", err)
		}
		adapter = pgadapter.New(
			pgrepo.NewPostgresRecordRepository(pg.DB),
			pgrepo.NewPostgresRelationRepository(pg.DB),
			schema,
			cfg.Store.TenantID,
		)

	case "memory":
		data, err := os.ReadFile(cfg.Store.SchemaPath)
		if err != nil {
			log.Fatalf("Failed to read schema: %v", err)
		}
		schema, err = parser.ParseSchema(cfg.Store.TenantID, string(data))
		if err != nil {
			log.Fatalf("Failed to parse schema: %v", err)
		}
		mem := memory.New()
		if cfg.Store.FixturesPath != "" {
			if mem, err = memory.LoadFile(cfg.Store.FixturesPath); err != nil {
				log.Fatalf("Failed to load fixtures: %v", err)
			}
		}
		adapter = mem

	default:
		log.Fatalf("Unknown store adapter %q", cfg.Store.Adapter)
	}

	log.Printf("Serving schema version %q with %d entities", schema.Version, len(schema.Entities))

	var invalidator *linkcache.LinkInvalidator
	if cfg.Cache.Enabled {
		c, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxSizeBytes,
			DefaultTTL:    cfg.Cache.TTL(),
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			log.Fatalf("Failed to create link cache: %v", err)
		}
		defer c.Close()
		collector.SetCache(c)

		adapter = cached.New(adapter, c, cfg.Cache.TTL(), cached.WithMetrics(rec), cached.WithLogger(logger))

		if pg != nil {
			invalidator = linkcache.NewLinkInvalidator(c, pg.DSN, cfg.Store.TenantID, logger)
			if err := invalidator.Start(ctx); err != nil {
				log.Fatalf("Failed to start link invalidator: %v", err)
			}
			defer invalidator.Stop()
		}
		log.Printf("Link cache enabled (max %d bytes, ttl %s)", cfg.Cache.MaxSizeBytes, cfg.Cache.TTL())
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(rec)))
	handlers.RegisterFetchServer(grpcServer, handlers.NewFetchHandler(adapter, schema))
	handlers.RegisterDataServer(grpcServer, handlers.NewDataHandler(adapter, schema))
	if schemaService != nil {
		handlers.RegisterSchemaServer(grpcServer, handlers.NewSchemaHandler(schemaService, cfg.Store.TenantID))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	log.Printf("gRPC server listening on %s", listener.Addr())

	serverErrors := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	promHandler := promhttp.Handler()
	mux := http.NewServeMux()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exporter.Update()
		promHandler.ServeHTTP(w, r)
	}))
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Metrics server listening on %s", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Initiating graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			log.Println("Server stopped gracefully")
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing stop")
			grpcServer.Stop()
		}

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping metrics server: %v", err)
		}
		cancel()

		log.Println("Shutdown complete")
	}
}
