package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/retail-ledger/internal/adapter/handler"
	"github.com/rl1809/retail-ledger/internal/adapter/storage"
	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/service"
	"github.com/rl1809/retail-ledger/internal/port"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect redis: %v", err)
		}
		logger.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	var locker port.KeyLocker
	switch {
	case cfg.Lock.Backend == config.LockRedis && rdb != nil:
		locker = storage.NewRedisLocker(rdb, cfg.Lock.TTL, cfg.Lock.Wait, logger)
		logger.Info("using redis key locks")
	case cfg.Lock.Backend == config.LockRedis:
		logger.Fatal("LOCK_BACKEND=redis needs REDIS_ADDR")
	}

	// Initialize the ledger backend
	var (
		store port.Store
		db    *sql.DB
	)
	switch cfg.Backend {
	case config.BackendMySQL:
		var err error
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatalf("failed to connect mysql: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("failed to ping mysql: %v", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db, locker)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			logger.Fatalf("failed to migrate: %v", err)
		}
		store = mysqlAdapter
		logger.Info("connected to mysql")
	case config.BackendMemory:
		store = storage.NewMemoryAdapter(locker)
		logger.Warn("using in-memory ledger, data is lost on restart")
	default:
		logger.Fatalf("unknown LEDGER_BACKEND %q", cfg.Backend)
	}

	// Event pipeline
	var (
		sink      port.EventSink = service.NewLogSink(logger)
		snapshots port.StockSnapshot
	)
	if rdb != nil {
		feed := storage.NewRedisAdapter(rdb, cfg.Events.Channel)
		sink, snapshots = feed, feed
	}
	dispatcher := service.NewEventDispatcher(sink, cfg.Events.QueueSize, logger)
	dispatcher.Start(cfg.Events.Workers)

	// Initialize services
	services := handler.Services{
		Catalog:      service.NewCatalogService(store, logger, cfg.Ledger.EcomDefaultLocation),
		Stock:        service.NewStockService(store, dispatcher, logger),
		Sales:        service.NewSaleService(store, dispatcher, logger, cfg.Ledger.DefaultCurrency),
		Transfers:    service.NewTransferService(store, dispatcher, logger),
		Reservations: service.NewReservationService(store, dispatcher, logger, cfg.Ledger.EcomDefaultLocation),
		Snapshots:    snapshots,
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.ActorInterceptor(),
		handler.ErrorInterceptor(logger),
	))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}

	go func() {
		logger.Infof("gRPC server listening on %s", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Errorf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(services)
	mux := http.NewServeMux()
	httpHandler.Routes(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Infof("HTTP server listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"module": "main"}).Warn("http shutdown: " + err.Error())
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain pending events before closing connections
	dispatcher.Close()

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
