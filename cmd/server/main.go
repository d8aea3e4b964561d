package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"giftshop/internal/catalog"
	"giftshop/internal/checkout"
	"giftshop/internal/config"
	"giftshop/internal/draft"
	"giftshop/internal/endpoint"
	"giftshop/internal/middleware"
	"giftshop/internal/model"
	"giftshop/internal/queue"
	"giftshop/internal/router"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. SQLite：上游地址设置、结算历史
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(&model.Setting{}, &model.CheckoutRecord{}); err != nil {
		logrus.Fatalf("db migrate: %v", err)
	}

	// 2. Redis：草稿、目录缓存、结算锁/状态、限流、事件 outbox
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("redis ping: %v", err)
	}

	baseURL, err := endpoint.NewStore(ctx, db, cfg.DefaultBaseURL)
	if err != nil {
		logrus.Fatalf("endpoint store: %v", err)
	}

	drafts := draft.NewRedisStore(rdb, cfg.DraftTTL)
	cat := catalog.NewClient(nil, baseURL, catalog.NewRedisCache(rdb), cfg.CatalogCacheTTL)
	cat.SetRetries(cfg.CatalogGetRetries)

	opts := checkout.Options{MaxInFlight: cfg.MaxInFlight}

	// 3. 结算事件：Redis Stream → Relay → Kafka → Consumer → checkout_records
	if cfg.EventsEnabled {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db)
		defer consumer.Close()

		relay := queue.NewRelay(rdb, producer, cfg.CheckoutEventStream, cfg.CheckoutEventGroup, cfg.CheckoutEventConsumer)
		go relay.Run(ctx)
		go consumer.Run(ctx)

		opts.Events = queue.NewOutbox(rdb, cfg.CheckoutEventStream)
	}

	orch := checkout.NewOrchestrator(baseURL, drafts, opts)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger())
	router.Setup(r, router.Deps{
		DB:           db,
		Redis:        rdb,
		Endpoint:     baseURL,
		Catalog:      cat,
		Drafts:       drafts,
		Orchestrator: orch,
		Config:       cfg,
	})

	// 结算会逐行等待上游，不设 WriteTimeout
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.HTTPAddr).Info("giftshop starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("server forced to shutdown: %v", err)
	}
	logrus.Info("server exited")
}
