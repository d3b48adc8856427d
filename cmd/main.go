package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"notarypro/internal/auth"
	"notarypro/internal/config"
	"notarypro/internal/events"
	"notarypro/internal/handler"
	"notarypro/internal/logger"
	"notarypro/internal/ratelimit"
	"notarypro/internal/repository"
	"notarypro/internal/service"
	"notarypro/internal/stamp"
	"notarypro/internal/storage"
)

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, log *zap.Logger) (*sqlx.DB, error) {
	// The postgres system database always exists, so use it to create ours on first start.
	sysCfg := cfg
	sysCfg.Name = "postgres"
	if sysDB, err := sqlx.Connect("postgres", sysCfg.GetDSN()); err == nil {
		var exists bool
		err = sysDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
		if err == nil && !exists {
			log.Info("database does not exist, creating", zap.String("name", cfg.Name))
			if _, err := sysDB.Exec(fmt.Sprintf("CREATE DATABASE %q", cfg.Name)); err != nil {
				sysDB.Close()
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		}
		sysDB.Close()
	}

	var db *sqlx.DB
	var err error
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg config.DatabaseConfig, log *zap.Logger) error {
	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://"+cfg.MigrationsPath, cfg.MigrateURL())
		if err == nil {
			break
		}
		log.Warn("failed to create migrate instance", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warn("found dirty database state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	if cfg.Driver == "s3" {
		return storage.NewS3Backend(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
	}
	return storage.NewLocalBackend(cfg.Dir)
}

func newVerifyLimiter(cfg config.RedisConfig, trustedProxies []string, log *zap.Logger) (func(http.Handler) http.Handler, *redis.Client) {
	if cfg.Addr == "" {
		log.Info("redis not configured, verification rate limiting disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, limiter will fail open until it recovers", zap.Error(err))
	}

	limiter := ratelimit.New(ratelimit.NewRedisCounter(client), "verify", cfg.VerifyLimit, cfg.VerifyWindow, log)
	if err := limiter.TrustProxies(trustedProxies); err != nil {
		log.Fatal("invalid trusted proxies", zap.Error(err))
	}
	return limiter.Middleware, client
}

func main() {
	configPath := os.Getenv("NOTARY_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	appConfig, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(appConfig.Log.Level, appConfig.Log.JSON)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	db, err := connectWithRetry(appConfig.Database, 5, time.Second*5, lg)
	if err != nil {
		lg.Fatal("failed to connect to database after retries", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(appConfig.Database, lg); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}

	db.SetMaxOpenConns(appConfig.Database.MaxOpenConns)
	db.SetMaxIdleConns(appConfig.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		lg.Fatal("failed to ping database", zap.Error(err))
	}

	backend, err := newBackend(context.Background(), appConfig.Storage)
	if err != nil {
		lg.Fatal("failed to initialize storage", zap.String("driver", appConfig.Storage.Driver), zap.Error(err))
	}
	files := storage.NewAdapter(backend, appConfig.Storage.MaxUploadBytes, lg.Named("storage"))

	publisher, err := events.NewPublisher(appConfig.Events, lg.Named("events"))
	if err != nil {
		lg.Fatal("failed to initialize events", zap.String("driver", appConfig.Events.Driver), zap.Error(err))
	}
	defer publisher.Close()

	verifyLimiter, redisClient := newVerifyLimiter(appConfig.Redis, appConfig.Server.TrustedProxies, lg.Named("ratelimit"))
	if redisClient != nil {
		defer redisClient.Close()
	}

	documentRepo := repository.NewDocumentRepository(db)
	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	directory := auth.NewDirectory(userRepo, lg.Named("users"))
	stamper := stamp.New(files, appConfig.Server.BaseURL, lg.Named("stamp"))
	certificationService := service.NewCertificationService(
		documentRepo,
		templateRepo,
		files,
		stamper,
		directory,
		publisher,
		appConfig.Server.BaseURL,
		lg.Named("certification"),
	)

	documentHandler := handler.NewDocumentHandler(certificationService, appConfig.Storage.MaxUploadBytes, lg.Named("http"))
	router := handler.NewRouter(handler.RouterConfig{
		Documents:      documentHandler,
		Verifier:       auth.NewVerifier(appConfig.Auth.JWTSecret),
		Health:         handler.Health(db),
		VerifyLimiter:  verifyLimiter,
		RequestTimeout: appConfig.Server.RequestTimeout,
		Logger:         lg.Named("http"),
	})

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			lg.Fatal("failed to listen for gRPC", zap.Error(err))
		}
		lg.Info("starting gRPC server", zap.String("port", appConfig.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			lg.Fatal("failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		lg.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	<-quit
	lg.Info("shutting down servers")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		lg.Warn("HTTP server forced to shutdown", zap.Error(err))
	}

	grpcServer.GracefulStop()

	lg.Info("server exited properly")
}
