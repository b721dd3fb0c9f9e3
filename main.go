package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-match/internal/audit"
	"github.com/example/face-match/internal/auth"
	"github.com/example/face-match/internal/capture"
	"github.com/example/face-match/internal/config"
	"github.com/example/face-match/internal/handlers"
	"github.com/example/face-match/internal/locale"
	"github.com/example/face-match/internal/logging"
	"github.com/example/face-match/internal/matchclient"
	"github.com/example/face-match/internal/repository"
	"github.com/example/face-match/internal/session"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := locale.Default().Set(cfg.DefaultLocale); err != nil {
		logger.Warn("ignoring unsupported default locale",
			zap.String("locale", string(cfg.DefaultLocale)),
			zap.Stringer("fallback", locale.DefaultLocale))
	}

	client, err := matchclient.New(cfg.Match.URL,
		matchclient.WithPath(cfg.Match.Path),
		matchclient.WithTimeout(cfg.Match.Timeout),
		matchclient.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("invalid match service configuration", zap.Error(err))
	}

	var (
		observer    capture.Observer
		auditReader handlers.AuditReader
	)
	if cfg.Audit.Enabled {
		recorder := initAudit(cfg.Audit, logger)
		observer = recorder
		auditReader = recorder
	} else {
		logger.Info("submission audit disabled")
	}

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	registry := session.NewRegistry(client, observer, cfg.Session.TTL, logger)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		registry.Run(appCtx, cfg.Session.SweepInterval)
	}()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(cfg, registry, locale.Default(), auditReader, logger),
	}

	logger.Info("face match API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("match_service", cfg.Match.URL),
		zap.Stringer("locale", locale.Default().Current()))
	err = serveHTTPServer(server, cfg.ShutdownTimeout, logger)

	// In-flight requests have drained; abandon whatever sessions remain.
	stop()
	<-sweeperDone
	if err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, registry *session.Registry, locales *locale.Store, auditReader handlers.AuditReader, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	h := handlers.NewHandler(registry, locales, auditReader, cfg.Match.Timeout+5*time.Second, logger)
	handlers.RegisterRoutes(r, h, authMiddleware)
	return r
}

func initAudit(cfg config.AuditConfig, logger *zap.Logger) *audit.Recorder {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewSubmissionRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	return audit.NewRecorder(repo, audit.NewRedisCache(redisClient, "facematch:"), logger)
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
