package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/Cheese-TicTacToe-bot/internal/app"
	appcfg "github.com/park285/Cheese-TicTacToe-bot/internal/config"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

var envFile = flag.String("env", ".env", "optional dotenv file loaded before reading the environment")

func main() {
	flag.Parse()
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal("app_init_error", zap.Error(err))
	}

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.Start(cctx); err != nil {
		cancel()
		_ = a.Close(context.Background())
		logger.Fatal("app_start_error", zap.Error(err))
	}
	cancel()
	logger.Info("bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("archive", cfg.DatabaseURL != ""),
		zap.Bool("dry_run", cfg.DryRun),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("bot_stopping", zap.String("signal", sig.String()))

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := a.Close(sctx); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
}
