package main

import (
	"context"

	"go-leave-ledger/internal/app"
	"go-leave-ledger/internal/bootstrap"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/shared/apperror"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
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

	r := gin.Default()

	// build dependency + routes
	in, err := app.BuildApp(context.Background(), r, cfg)
	if err != nil {
		logger.Fatal("build app failed", zap.Error(err))
	}

	auditLogger := bootstrap.NewStdoutAuditLogger()
	err = bootstrap.StartHTTPServer(
		r,
		bootstrap.DefaultServerConfig(cfg.Port),
		auditLogger,
		func(context.Context) error { return in.Close() },
	)
	if err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
