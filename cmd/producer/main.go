package main

import (
	"flag"
	"time"

	"go-leave-ledger/internal/app"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/messaging/kafka/producer"
	"go-leave-ledger/internal/shared/apperror"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	file := flag.String("file", "", "leave events to replay, .csv or JSON lines")
	linger := flag.Duration("linger", producer.DefaultLinger, "pause between published events")
	flag.Parse()

	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	apperror.Init()

	if *file == "" {
		logger.Fatal("--file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config failed", zap.Error(err))
	}

	start := time.Now()
	if err := app.RunProducer(cfg, *file, *linger); err != nil {
		logger.Fatal("run producer failed", zap.Error(err))
	}
	logger.Info("replay finished", zap.Duration("elapsed", time.Since(start)))
}
