package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"picshare/internal/config"
	"picshare/internal/database"
	"picshare/internal/domain"
	"picshare/internal/middleware"
	"picshare/internal/modules/auth"
	"picshare/internal/modules/notification"
	"picshare/internal/modules/post"
	"picshare/internal/modules/user"
	jwtsvc "picshare/internal/pkg/jwt"
	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"
	"picshare/internal/pkg/validator"
	"picshare/internal/queue"
	"picshare/internal/realtime"
	"picshare/internal/repository"
	"picshare/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	l := logger.New(logger.Config{
		Service: "picshare-api",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, l); err != nil {
		l.Error("api stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	if err := validator.RegisterGin(); err != nil {
		return fmt.Errorf("validator: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	postRepo := repository.NewPostRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	codec, err := jwtsvc.NewCodec(jwtsvc.Secrets{
		Access:  cfg.Auth.AccessSecret,
		Refresh: cfg.Auth.RefreshSecret,
		Reset:   cfg.Auth.ResetSecret,
	})
	if err != nil {
		return err
	}
	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost, 0)
	if err != nil {
		return err
	}

	var google auth.GoogleVerifier
	if cfg.Google.ClientID != "" {
		google = auth.NewGoogleIDTokenVerifier(cfg.Google.ClientID, cfg.Google.CertsURL)
	} else {
		l.Warn("GOOGLE_CLIENT_ID is empty, google sign-in disabled")
	}

	mailer, closeMailer, err := buildMailer(cfg)
	if err != nil {
		return err
	}
	defer closeMailer()

	authService := auth.NewService(userRepo, refreshRepo, codec, hasher, google, mailer, auth.Options{
		AccessTTL:          cfg.Auth.AccessTTL,
		RefreshTTL:         cfg.Auth.RefreshTTL,
		ResetTTL:           cfg.Auth.ResetTTL,
		RefreshTokenPepper: cfg.Auth.RefreshTokenPepper,
		FrontendURL:        cfg.FrontendURL,
	})
	authHandler := auth.NewHandler(authService, auth.CookieOptionsFrom(cfg.Auth))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := realtime.NewRegistry(realtime.Options{
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		WriteTimeout:      cfg.Realtime.WriteTimeout,
		Logger:            l,
		Metrics:           realtime.NewMetrics(reg),
	})
	dispatcher := notification.NewDispatcher(notificationRepo, registry)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(notificationService, registry, realtime.NewUpgrader(cfg.CORSAllowedOrigins))

	images, err := buildImageStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	postHandler := post.NewHandler(post.NewService(postRepo, images, dispatcher))
	userHandler := user.NewHandler(user.NewService(userRepo, images))

	primary, fallback, closeLimiter := rateLimiters(cfg)
	defer closeLimiter()
	if cfg.Redis.Addr == "" {
		l.Warn("REDIS_ADDR is empty, rate limiting runs in-process only")
	}
	limit := middleware.RateLimit(cfg.RateLimit.Prefix, cfg.RateLimit.Requests, primary, fallback)

	if config.IsProdLike(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(l), middleware.Recovery(), middleware.CORS(cfg.CORSAllowedOrigins, !config.IsProdLike(cfg.AppEnv)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics",
		middleware.InternalToken(cfg.Metrics.Token, cfg.Metrics.AllowedIPs),
		gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	authenticate := middleware.Authenticate(codec, userRepo)
	v1 := r.Group("/api/v1")
	{
		authHandler.RegisterRoutes(v1, authenticate, limit)
		notificationHandler.RegisterRoutes(v1, authenticate)
		postHandler.RegisterRoutes(v1, authenticate)
		userHandler.RegisterRoutes(v1, authenticate)

		v1.GET("/admin/realtime", authenticate, middleware.RequireRole(domain.RoleAdmin), func(c *gin.Context) {
			response.Success(c, http.StatusOK, gin.H{"connections": registry.Len()})
		})
	}

	go auth.NewSweeper(authService, cfg.Retention.SweepInterval, l).Run(ctx)
	go notification.NewJanitor(notificationService, cfg.Retention.NotificationMaxAge, cfg.Retention.SweepInterval, l).Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Streams never finish on their own; close them first so Shutdown can drain.
	if err := registry.Shutdown(shutdownCtx); err != nil {
		l.Warn("realtime shutdown", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	authService.WaitMail()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	l.Info("api stopped")
	return nil
}

func buildMailer(cfg *config.Config) (auth.Mailer, func(), error) {
	switch cfg.Mail.Transport {
	case "resend":
		return auth.NewResendMailer(cfg.Mail.ResendURL, cfg.Mail.ResendAPIKey, cfg.Mail.FromName, cfg.Mail.From), func() {}, nil
	case "queue":
		p := queue.NewPublisher(cfg.RabbitMQ.URL)
		return auth.NewQueueMailer(p, cfg.RabbitMQ.EmailQueue), func() { _ = p.Close() }, nil
	case "console":
		return auth.ConsoleMailer{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.Mail.Transport)
	}
}

func buildImageStore(ctx context.Context, cfg *config.Config, l *slog.Logger) (storage.ImageStore, error) {
	if cfg.S3.Bucket == "" {
		l.Warn("S3_BUCKET is empty, images are stored inline")
		return storage.InlineStore{}, nil
	}
	client, err := storage.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return storage.NewS3ImageStore(client, cfg.S3), nil
}

// rateLimiters picks the Redis bucket with an in-process fallback, or only
// the in-process limiter when no Redis address is configured.
func rateLimiters(cfg *config.Config) (primary, fallback middleware.Limiter, closeFn func()) {
	local := middleware.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if cfg.Redis.Addr == "" {
		return local, nil, func() {}
	}
	rdb := redis.NewClient(redisOptions(cfg.Redis))
	return middleware.NewRedisLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window), local, func() { _ = rdb.Close() }
}

func redisOptions(c config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
