package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waterhub/config"
	"waterhub/internal/alarm"
	"waterhub/internal/api"
	"waterhub/internal/db"
	"waterhub/internal/hub"
	"waterhub/internal/notification"
	"waterhub/internal/router"
	"waterhub/internal/store"
	"waterhub/internal/sweeper"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	logger := log.New(os.Stdout, "waterhub ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	logger.Printf("configuration loaded for env %s", cfg.Server.Env)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured; push notifications are disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	sessionHub := hub.New(logger)
	cmdRouter := router.New(sessionHub, appStore, logger)

	notifier := notification.NewWorkerPool(cfg.Push.PoolSize, gormDB, webpushOptions, logger)
	notifier.Start(ctx)

	alarmEngine := alarm.New(appStore, cmdRouter, notifier, logger, cfg.Alarm.TickInterval)
	go alarmEngine.Run(ctx)

	staleSweeper := sweeper.New(sessionHub, cmdRouter, appStore, notifier, logger, cfg.Hub.SweepInterval, cfg.Hub.SessionStaleThreshold)
	go staleSweeper.Run(ctx)

	apiHandler := api.NewHandler(appStore, sessionHub, cmdRouter, notifier, webpushOptions, logger, fmt.Sprintf("waterhub-%d", os.Getpid()))
	engine := api.NewRouter(cfg, apiHandler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("server gracefully stopped")
}
