package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dilwearus-ops/neochat-server/internal/authz"
	"github.com/dilwearus-ops/neochat-server/internal/clock"
	"github.com/dilwearus-ops/neochat-server/internal/config"
	"github.com/dilwearus-ops/neochat-server/internal/db"
	"github.com/dilwearus-ops/neochat-server/internal/events"
	"github.com/dilwearus-ops/neochat-server/internal/invite"
	clog "github.com/dilwearus-ops/neochat-server/internal/log"
	"github.com/dilwearus-ops/neochat-server/internal/moderation"
	"github.com/dilwearus-ops/neochat-server/internal/presence"
	"github.com/dilwearus-ops/neochat-server/internal/scheduler"
	"github.com/dilwearus-ops/neochat-server/internal/server"
	"github.com/dilwearus-ops/neochat-server/internal/service"
	"github.com/dilwearus-ops/neochat-server/internal/store"
	"github.com/dilwearus-ops/neochat-server/internal/ws"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库和可选的 Redis/AMQP，然后启动 Gin 服务。
	envFile := pflag.String("env-file", ".env", "path to a .env file to load before reading the environment")
	port := pflag.String("port", "", "listen port (overrides APP_PORT)")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal().Err(err).Str("path", *envFile).Msg("load env file")
	}
	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	st := store.New(gdb)
	clk := clock.Real()

	var limiter moderation.Limiter
	if cfg.RedisAddr != "" {
		rdb, err := moderation.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connect")
		}
		defer rdb.Close()
		limiter = moderation.NewRedisWindow(rdb, clk, moderation.DefaultLimit, moderation.DefaultWindow)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis rate limiter")
	} else {
		sw := moderation.NewSlidingWindow(clk, moderation.DefaultLimit, moderation.DefaultWindow)
		go sw.RunSweeper(ctx, time.Minute)
		limiter = sw
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, events.DefaultQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect")
		}
		defer p.Close()
		publisher = p
		log.Info().Str("queue", events.DefaultQueue).Msg("publishing moderation events")
	}

	users := service.NewUserService(st, cfg.JWTSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLDays)*24*time.Hour)

	hub := ws.NewHub(ws.Deps{
		Store:    st,
		Auth:     users,
		Limiter:  limiter,
		Filter:   moderation.NewFilter(moderation.DefaultBlocklist...),
		Presence: presence.NewTracker(clk),
		Gate:     authz.NewGate(st),
		Invites:  invite.NewManager(st, clk, time.Duration(cfg.InviteTTLHours)*time.Hour),
		Events:   publisher,
		Clock:    clk,
	}, ws.Options{
		AuthTimeout:   time.Duration(cfg.AuthTimeoutSeconds) * time.Second,
		StoreTimeout:  time.Duration(cfg.StoreTimeoutSeconds) * time.Second,
		MaxFrameBytes: cfg.MaxFrameBytes,
	})

	dispatcher := scheduler.New(st, hub, clk, time.Duration(cfg.ScheduleIntervalSeconds)*time.Second)
	go dispatcher.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, st, users, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
