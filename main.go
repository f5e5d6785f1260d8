package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stuKim0221/smart-lotto/config"
	"github.com/stuKim0221/smart-lotto/database"
	"github.com/stuKim0221/smart-lotto/dhlottery"
	"github.com/stuKim0221/smart-lotto/logger"
	"github.com/stuKim0221/smart-lotto/pkg/business"
	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/processing"
	"github.com/stuKim0221/smart-lotto/services"
	"github.com/stuKim0221/smart-lotto/web"
)

func main() {
	// 加载配置
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	logger.Printf("Starting lotto draw sync service (%s)...", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := services.NewMetrics()

	// 开奖记录存储: Postgres when configured, memory otherwise
	var (
		store    ingestion.DrawStore
		recorder services.SyncRunRecorder
	)
	if cfg.UseDatabase() {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if cfg.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				logger.Fatalf("Failed to migrate database: %v", err)
			}
		}
		pg := services.NewPostgresDrawStore(db)
		store, recorder = pg, pg
		logger.Println("Database connected and migrated")
	} else {
		store = services.NewMemoryDrawStore()
		logger.Println("⚠️  DATABASE_URL not set, using in-memory draw store")
	}

	if cfg.SeedCSVPath != "" {
		seedFromCSV(ctx, cfg.SeedCSVPath, store)
	}

	presets, err := config.LoadFilterPresets(cfg.GeneratorPresetsFile)
	if err != nil {
		logger.Fatalf("Failed to load generator presets: %v", err)
	}

	// 远程数据源与抓取器
	client := dhlottery.NewClientWithConfig(dhlottery.Config{
		BaseURL:           cfg.DrawAPIBaseURL,
		Timeout:           cfg.DrawAPITimeout,
		RequestsPerSecond: cfg.DrawRequestsPerSec,
	})
	retry := ingestion.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.FetchMaxAttempts
	retry.Backoff = ingestion.ExponentialBackoff(cfg.FetchBaseBackoff, 16*cfg.FetchBaseBackoff)
	retry.AttemptTimeout = cfg.FetchAttemptTimeout

	fetcherOpts := []ingestion.Option{
		ingestion.WithRetryPolicy(retry),
		ingestion.WithLogger(common.NewLogger("fetcher")),
		ingestion.WithObserver(metrics),
	}
	if cfg.PrizeBreakdownSource {
		fetcherOpts = append(fetcherOpts, ingestion.WithPrizeSource(client))
	}
	fetcher := ingestion.NewFetcher(client, fetcherOpts...)

	validator := processing.NewDrawValidator("draw", common.NewLogger("validator"), nil)
	validator.AddRule(processing.CalendarRule())
	validator.AddRule(processing.SequenceRule(store))

	// 事件分发: in-process for websocket clients, AMQP when configured
	memBroker := services.NewInMemoryBroker()
	defer memBroker.Close()
	brokers := []services.MessageBroker{memBroker}
	if cfg.AMQPURL != "" {
		amqpBroker, err := services.NewAMQPBroker(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Errorf("AMQP unavailable, events stay in-process: %v", err)
		} else {
			defer amqpBroker.Close()
			brokers = append(brokers, amqpBroker)
			logger.Printf("AMQP publisher connected (exchange %s)", cfg.AMQPExchange)
		}
	}
	publisher := services.NewBrokerPublisher(brokers...)

	// 缓存
	statsCache := services.NewQueryCache(cfg.CacheTTL)
	defer statsCache.Close()
	var evalCache business.EvaluationCache = statsCache
	if cfg.RedisURL != "" {
		redisCache, err := services.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL, common.NewLogger("redis"))
		if err != nil {
			logger.Errorf("Redis unavailable, using local cache: %v", err)
		} else {
			defer redisCache.Close()
			evalCache = redisCache
		}
	}

	// 同步调度器
	schedOpts := []services.SchedulerOption{
		services.WithValidator(validator),
		services.WithPublisher(publisher),
		services.WithMetrics(metrics),
		services.WithSchedulerLogger(common.NewLogger("sync")),
	}
	if recorder != nil {
		schedOpts = append(schedOpts, services.WithRecorder(recorder))
	}
	scheduler := services.NewSyncScheduler(fetcher, store, services.SchedulerConfig{
		Schedule:          cfg.SyncSchedule,
		Location:          cfg.Location(),
		MaxRoundsPerCycle: cfg.SyncMaxRoundsPerCycle,
		RetryAfter:        cfg.SyncRetryAfter,
	}, schedOpts...)
	if err := scheduler.Start(ctx, cfg.SyncOnStart); err != nil {
		logger.Fatalf("Failed to start sync scheduler: %v", err)
	}
	logger.Printf("Sync scheduler started (%s, %s)", cfg.SyncSchedule, cfg.SyncTimezone)

	// 创建WebSocket Hub
	wsHub := web.NewHub()
	go wsHub.Run(ctx)
	if err := wsHub.Forward(ctx, memBroker, services.AllEventTopics()...); err != nil {
		logger.Fatalf("Failed to subscribe websocket hub: %v", err)
	}

	// 启动Web服务器
	server := web.NewServer(cfg, web.Deps{
		Draws:      store,
		Evaluation: business.NewEvaluationService(store, evalCache, common.NewLogger("evaluation")),
		Generation: business.NewGenerationService(store, business.NewGenerator(), common.NewLogger("generation")),
		Sync:       scheduler,
		Metrics:    metrics,
		StatsCache: statsCache,
		Presets:    presets,
	}, wsHub)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Web server error: %v", err)
		}
	}()

	logger.Printf("Web server started on port %s", cfg.Port)
	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down...")
	server.Stop()
	scheduler.Stop()
	cancel()
	logger.Println("Service stopped")
}

func seedFromCSV(ctx context.Context, path string, store ingestion.DrawStore) {
	f, err := os.Open(path)
	if err != nil {
		logger.Errorf("Failed to open seed file %s: %v", path, err)
		return
	}
	defer f.Close()

	report, err := services.ImportDrawsCSV(ctx, f, store, common.NewLogger("seed"))
	if err != nil {
		logger.Errorf("Seed import aborted: %v", err)
		return
	}
	logger.Printf("Seeded %d rows from %s: %d inserted, %d updated, %d unchanged, %d skipped",
		report.Rows, path, report.Inserted, report.Updated, report.Unchanged, len(report.Skipped))
}
