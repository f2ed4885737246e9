// Package main runs the inkpress API server: user accounts, stories and
// chapters, reader engagement, and the scheduled chapter publisher.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	app "github.com/inkpress/inkpress/internal/app"
	"github.com/inkpress/inkpress/internal/app/httpapi"
	"github.com/inkpress/inkpress/internal/app/storage/postgres"
	"github.com/inkpress/inkpress/internal/config"
	"github.com/inkpress/inkpress/internal/database"
	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/ratelimit"
	"github.com/inkpress/inkpress/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "inkpress",
	})

	stores := app.Stores{}
	var db httpapi.Pinger
	if cfg.Database.DSN != "" {
		sqlDB, err := database.Open(cfg.Database)
		if err != nil {
			log.WithError(err).Error("connect to database")
			os.Exit(1)
		}
		defer sqlDB.Close()

		if err := database.Migrate(sqlDB); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}

		pg := postgres.New(sqlDB)
		stores = app.Stores{
			Users:    pg,
			Stories:  pg,
			Chapters: pg,
			Social:   pg,
			Progress: pg,
		}
		db = sqlDB
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	application, err := app.New(stores, app.Options{
		TokenSecret:        []byte(cfg.Auth.TokenSecret),
		SessionTTL:         time.Duration(cfg.Auth.SessionTTL),
		PublishSchedule:    cfg.Publish.Schedule,
		PublishBatchCap:    cfg.Publish.BatchCap,
		PublishPassTimeout: time.Duration(cfg.Publish.PassTimeout),
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, "inkpress:reg", cfg.Auth.RegistrationLimit, time.Duration(cfg.Auth.RegistrationWindow))
	} else {
		log.Warn("REDIS_ADDR not set; using per-process rate limiting")
		limiter = ratelimit.NewLocalLimiter(cfg.Auth.RegistrationLimit, time.Duration(cfg.Auth.RegistrationWindow))
	}

	handler := httpapi.NewHandler(application, httpapi.Deps{
		Auth:    middleware.NewAuthMiddleware(application.Users, log),
		Trigger: middleware.NewTriggerAuth(cfg.Publish.TriggerSecret, log),
		Registration: middleware.NewRateLimitMiddleware(limiter, cfg.Auth.RegistrationLimit,
			cfg.Auth.RegistrationWindow.String(), log),
		CORS: middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		DB:   db,
		Log:  log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start services")
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("service shutdown")
	}
	log.Info("shutdown complete")
}
