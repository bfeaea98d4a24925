package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go-leave-ledger/internal/config"
	"go-leave-ledger/internal/leave"
	"go-leave-ledger/internal/middleware"
	"go-leave-ledger/internal/rbac"
	"go-leave-ledger/internal/rbac/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func registerModules(
	router *gin.Engine,
	cfg config.Config,
	in *Infra,
	leaveService leave.Service,
) error {
	logger := zap.L()

	// --- RBAC Core ---
	enforcer, err := infra.NewEnforcer(cfg.RBACModelPath)
	if err != nil {
		return err
	}
	rbacService := rbac.NewService(rbac.NewDefaultRepository(), enforcer)
	if err := rbacService.LoadPolicy(); err != nil {
		return err
	}

	// --- Handlers ---
	leaveHandler := leave.NewHandler(leaveService, rbacService)
	rbacHandler := rbac.NewHandler(rbacService)

	// --- Middleware ---
	router.Use(
		middleware.RequestID(),
		middleware.CallerRole(),
		middleware.ContextLogger(logger),
		middleware.RateLimitByIP(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- Routes ---
	var commandMiddleware []gin.HandlerFunc
	if cfg.IdempotencyEnabled && in.Redis != nil {
		commandMiddleware = append(commandMiddleware, middleware.Idempotency(in.Redis))
	}
	api := router.Group("/api/v1")
	leave.RegisterRoutes(api, leaveHandler, rbacService, commandMiddleware...)
	rbac.RegisterRoutes(api, rbacHandler)

	return nil
}
