package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"response-service/internal/api"
	"response-service/internal/channels"
	"response-service/internal/config"
	"response-service/internal/db"
	"response-service/internal/dispatch"
	"response-service/internal/kafka"
	"response-service/internal/logging"
	"response-service/internal/orchestrator"
	"response-service/internal/ws"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}

	// Connect to DB
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		log.Fatal("DB connect failed:", err)
	}
	defer dbConn.Close()

	// Build channels; optional transports register only when configured
	hub := ws.NewHub(logger)
	chs := []channels.Channel{channels.NewInApp(dbConn, hub, logger)}
	if cfg.Telegram.BotToken != "" {
		chs = append(chs, channels.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.RatePerSecond, dbConn, logger))
	}
	if cfg.Email.SMTPServer != "" {
		chs = append(chs, channels.NewEmail(cfg, dbConn))
	}
	registry, err := channels.NewRegistry(chs...)
	if err != nil {
		logger.Errorf("Channel validation failed: %v", err)
		log.Fatal("Channel validation failed:", err)
	}
	logger.Infof("Registered channels: %v", registry.Names())

	// Dispatcher and orchestrator
	resolver := dispatch.NewResolver(dbConn, registry, logger)
	dispatcher := dispatch.New(resolver, dbConn, logger, cfg)
	orch := orchestrator.New(dbConn, dbConn, dispatcher, cfg, logger)

	// Worker pool
	svc := orchestrator.NewService(orch, cfg, logger)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Kafka consumer
	ctx, cancel := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(cfg, svc, logger)
	consumer.Start(ctx, &wg)

	// API server
	r := api.NewRouter(dbConn, orch, hub, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()
	consumer.Close()
	svc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Dispatcher shutdown incomplete: %v", err)
	}
	wg.Wait()
	logger.Info("Service stopped")
}
