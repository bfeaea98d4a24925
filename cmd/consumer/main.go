package main

import (
	"flag"

	"go-leave-ledger/internal/app"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/shared/apperror"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	groupID := flag.String("group-id", "", "kafka consumer group, overrides KAFKA_GROUP_ID")
	flag.Parse()

	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	apperror.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config failed", zap.Error(err))
	}
	if *groupID != "" {
		cfg.Kafka.GroupID = *groupID
	}

	if err := app.RunConsumer(cfg); err != nil {
		logger.Fatal("run consumer failed", zap.Error(err))
	}
}
