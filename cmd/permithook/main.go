package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/api"
	"github.com/0gfoundation/permit-hook/internal/audit"
	"github.com/0gfoundation/permit-hook/internal/auth"
	"github.com/0gfoundation/permit-hook/internal/config"
	"github.com/0gfoundation/permit-hook/internal/events"
	"github.com/0gfoundation/permit-hook/internal/hook"
	"github.com/0gfoundation/permit-hook/internal/ledger"
	"github.com/0gfoundation/permit-hook/internal/transfer"
)

const auditConsumerGroup = "permit_hook_audit"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Account store ─────────────────────────────────────────────────────────
	store := ledger.NewRedisStore(rdb, cfg.Ledger.MaxTxRetries, log)

	// ── Events (Redis streams) ────────────────────────────────────────────────
	var pub events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		wmLog := watermill.NewStdLogger(false, false)
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, wmLog)
		if err != nil {
			log.Fatal("event publisher init failed", zap.Error(err))
		}
		defer publisher.Close() //nolint:errcheck
		pub = events.NewWatermillPublisher(publisher, cfg.Events.Topic)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        rdb,
			ConsumerGroup: auditConsumerGroup,
		}, wmLog)
		if err != nil {
			log.Fatal("audit subscriber init failed", zap.Error(err))
		}
		defer subscriber.Close() //nolint:errcheck

		go func() {
			if err := audit.Run(ctx, subscriber, cfg.Events.Topic, rdb, log); err != nil {
				log.Error("audit consumer exited", zap.Error(err))
			}
		}()
	}

	// ── Hook program + token ledger ───────────────────────────────────────────
	prog := hook.New(cfg.Hook.Program(), store, log,
		hook.WithTokenProgram(cfg.Hook.TokenProgram()),
		hook.WithEvents(pub),
	)
	tokens := transfer.NewLedger(prog, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := newRouter(rdb, prog, tokens, time.Duration(cfg.Auth.MaxFutureWindowSec)*time.Second, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("program", prog.ID().String()),
			zap.String("token_program", prog.TokenProgram().String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

// newRouter mounts /healthz and the authenticated /api group.
func newRouter(rdb *redis.Client, prog *hook.Program, tokens *transfer.Ledger, authWindow time.Duration, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	group := r.Group("/api", auth.Middleware(rdb, authWindow))
	api.NewHandler(prog, tokens, rdb, log).Register(group)
	return r
}
