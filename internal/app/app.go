package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/config"
	"go.uber.org/zap"
)

// BuildApp wires the command API onto router. The returned Infra must be
// closed on shutdown.
func BuildApp(ctx context.Context, router *gin.Engine, cfg config.Config) (*Infra, error) {
	logger := zap.L().Named("app")

	in, err := OpenInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	leaveService, err := newLeaveService(ctx, cfg, in)
	if err != nil {
		in.Close()
		return nil, err
	}

	if err := registerModules(router, cfg, in, leaveService); err != nil {
		in.Close()
		return nil, err
	}

	logger.Info("api modules registered")
	return in, nil
}
