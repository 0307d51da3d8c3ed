package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/auth"
	"github.com/dilwearus-ops/neochat-server/internal/config"
	"github.com/dilwearus-ops/neochat-server/internal/metrics"
	"github.com/dilwearus-ops/neochat-server/internal/mw"
	"github.com/dilwearus-ops/neochat-server/internal/service"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, st *store.Store, users *service.UserService, hub *ws.Hub) *gin.Engine {
	rooms := service.NewRoomService(st, hub)
	h := NewHandler(users, rooms, service.NewMessageService(st, rooms))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))

	r.GET("/healthz", healthz(st))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	// 控制单个 IP+路由的速率，websocket 端点不受影响。
	api.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg.JWTSecret, users))
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id/messages", h.ListMessages)

	r.GET("/ws", hub.Serve())
	return r
}

// healthz 同时检查数据库连接是否可用。
func healthz(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := st.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Warn().Err(err).Msg("healthz: database unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
