package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"referr/internal/config"
	"referr/internal/handlers"
	"referr/internal/observability"
	"referr/internal/repositories/interfaces"
	mongorepo "referr/internal/repositories/mongodb"
	redisrepo "referr/internal/repositories/redis"
	"referr/internal/services"
	"referr/pkg/cache"
	"referr/pkg/database"
	"referr/pkg/logger"
	"referr/pkg/mail"
	"referr/pkg/websocket"
	"referr/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "referr",
		Short:        "Referral tracking service",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand(), newMigrateCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			return serve(cfg, log)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database indexes",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *database.Migrator) error {
				return m.Up(ctx)
			})
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "down [version]",
		Short: "Roll back to the given version (default: one step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *database.Migrator) error {
				target, err := downTarget(ctx, m, args)
				if err != nil {
					return err
				}
				return m.Down(ctx, target)
			})
		},
	})

	return migrate
}

func downTarget(ctx context.Context, m *database.Migrator, args []string) (int, error) {
	if len(args) == 1 {
		target, err := strconv.Atoi(args[0])
		if err != nil || target < 0 {
			return 0, fmt.Errorf("invalid target version %q", args[0])
		}
		return target, nil
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, nil
	}
	return current - 1, nil
}

func withMigrator(fn func(context.Context, *database.Migrator) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	db, err := connectMongo(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return fn(ctx, database.NewMigrator(db.Database, log))
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, log, nil
}

func connectMongo(cfg *config.Config) (*database.MongoDB, error) {
	return database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
}

func connectRedis(cfg *config.Config) (*cache.RedisCache, error) {
	return cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
}

func newMailSender(cfg *config.MailConfig, log *logger.Logger) mail.Sender {
	switch cfg.Provider {
	case config.MailProviderResend:
		return mail.NewResendSender(cfg.Resend.APIKey, cfg.From())
	case config.MailProviderSMTP:
		return mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.From())
	default:
		return mail.NewLogSender(log)
	}
}

func serve(cfg *config.Config, log *logger.Logger) error {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := connectMongo(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = database.NewMigrator(db.Database, log).Up(migrateCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	healthChecks := map[string]handlers.Pinger{"mongodb": db}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = connectRedis(cfg)
		if err != nil {
			// Redis only backs the read cache unless it also holds OTPs.
			if cfg.Security.OTPStore == config.OTPStoreRedis {
				return err
			}
			log.WithError(err).Warn("Redis unavailable, continuing without cache")
			redisCache = nil
		} else {
			defer redisCache.Close()
			healthChecks["redis"] = redisCache
		}
	} else if cfg.Security.OTPStore == config.OTPStoreRedis {
		return errors.New("OTP_STORE=redis requires REDIS_ENABLED=true")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Repositories
	var userCache interfaces.CacheService
	if redisCache != nil {
		userCache = redisCache
	}
	userRepo := mongorepo.NewUserRepository(db.Database, userCache, cfg.Redis.CacheTTL)
	statRepo := mongorepo.NewReferralStatRepository(db.Database)

	var otpRepo interfaces.OTPRepository
	if cfg.Security.OTPStore == config.OTPStoreRedis {
		otpRepo = redisrepo.NewOTPRepository(redisCache.Client())
	} else {
		otpRepo = mongorepo.NewOTPRepository(db.Database)
	}

	wsHandler := websocket.NewHandler(websocket.Options{
		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		PongTimeout:      cfg.WebSocket.PongTimeout,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		AllowedOrigins:   cfg.Security.CORSAllowedOrigins,
	}, log)
	defer wsHandler.Shutdown()

	// Services
	referralService := services.NewReferralService(userRepo, statRepo, wsHandler, services.ReferralSettings{
		RewardUnit:  cfg.Referral.RewardUnit,
		MaxPageSize: cfg.Referral.MaxPageSize,
	}, metrics, log)

	mailer := services.NewEmailService(newMailSender(cfg.Mail, log), services.EmailSettings{
		AppName:    cfg.App.Name,
		SiteURL:    cfg.Mail.SiteURL,
		SupportURL: cfg.Mail.SupportURL,
		PrivacyURL: cfg.Mail.PrivacyURL,
	}, log)

	authService := services.NewAuthService(
		userRepo,
		otpRepo,
		referralService,
		services.NewCodeGenerator(userRepo, cfg.Referral.CodeMaxAttempts),
		mailer,
		services.AuthSettings{
			JWTSecret:  cfg.Security.JWTSecret,
			SessionTTL: cfg.Security.SessionTTL,
			OTPExpiry:  cfg.Security.OTPExpiry,
		},
		metrics,
		log,
	)
	userService := services.NewUserService(userRepo, referralService, log)

	if cfg.Scheduler.Enabled {
		scheduler, err := services.NewScheduler(otpRepo, cfg.Scheduler.OTPSweepInterval, metrics, log)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				log.WithError(err).Warn("Scheduler shutdown failed")
			}
		}()
	}

	router, err := routes.NewRouter(&routes.Dependencies{
		AuthHandler: handlers.NewAuthHandler(authService, handlers.CookieSettings{
			Name:   cfg.Security.CookieName,
			MaxAge: cfg.Security.CookieMaxAge,
			Domain: cfg.Security.CookieDomain,
			Secure: cfg.Security.CookieSecure,
		}, log),
		ReferralHandler:  handlers.NewReferralHandler(referralService, log),
		UserHandler:      handlers.NewUserHandler(userService, log),
		HealthHandler:    handlers.NewHealthHandler(healthChecks),
		WebSocketHandler: wsHandler,
		Sessions:         authService,
		Users:            userService,
		CookieName:       cfg.Security.CookieName,
		AllowedOrigins:   cfg.Security.CORSAllowedOrigins,
		TrustedProxies:   cfg.Security.TrustedProxies,
		Metrics:          metrics,
		Gatherer:         registry,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.App.Port).WithField("environment", cfg.App.Environment).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down server")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
