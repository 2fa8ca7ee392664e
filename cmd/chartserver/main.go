package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chartengine/config"
	"chartengine/internal/app"
	"chartengine/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	configPath := flag.String("config", os.Getenv("CHARTSERVER_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[chartserver] config: %v", err)
	}
	slogger := logger.Init("chartserver", logger.ParseLevel(cfg.LogLevel))
	log.Printf("[chartserver] http=%s metrics=%s redis=%q sqlite=%q", cfg.HTTPAddr, cfg.MetricsAddr, cfg.RedisAddr, cfg.SQLitePath)

	svc, err := app.New(cfg, slogger)
	if err != nil {
		log.Fatalf("[chartserver] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[chartserver] fatal: %v", err)
	}
}
