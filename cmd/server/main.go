package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topup-service/config"
	"topup-service/internal/api"
	"topup-service/internal/broker"
	"topup-service/internal/redisclient"
	"topup-service/internal/reseller"
	"topup-service/internal/service"
	"topup-service/internal/store"
	"topup-service/internal/telegram"
	"topup-service/internal/util"
	"topup-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting topup service")

	tp, err := util.InitTracer("topup-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTasks, util.Component("producer"))
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicTasks))

	taskPublisher := broker.NewTaskPublisher(producer)

	resellerClient := reseller.NewClient(
		cfg.Reseller.BaseURL,
		cfg.Reseller.PartnerID,
		cfg.Reseller.SecretKey,
		cfg.Reseller.Timeout(),
		util.Component("reseller"),
	)

	bot, err := telegram.NewBot(cfg.Telegram.BotToken, "", util.Component("telegram"))
	if err != nil {
		logger.Fatal("Failed to create Telegram bot", zap.Error(err))
	}
	notifier := telegram.NewNotifier(bot, util.Component("notifier"))
	topUpDesk := telegram.NewTopUpDesk(bot, cfg.Telegram.AdminChatID, util.Component("topup-desk"))

	fulfillmentService := service.NewFulfillmentService(
		db,
		resellerClient,
		notifier,
		redisClient,
		cfg.Business.TaskLockTTL(),
		cfg.Business.SubmissionMarkerTTL(),
		util.Component("fulfillment"),
	)
	refreshService := service.NewRefreshService(
		db,
		resellerClient,
		notifier,
		redisClient,
		cfg.Business.TaskLockTTL(),
		util.Component("refresh"),
	)
	refreshTrigger := service.NewRefreshTrigger(
		service.NewRefreshRateLimiter(cfg.Business.RefreshCooldown()),
		taskPublisher,
		db,
		util.Component("refresh-trigger"),
	)
	checkoutService := service.NewCheckoutService(db, taskPublisher, util.Component("checkout"))
	topUpService := service.NewTopUpService(db, util.Component("topup"))

	dispatcher := telegram.NewDispatcher(bot, refreshTrigger, topUpService, cfg.Telegram.AdminChatID, util.Component("dispatcher"))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	taskConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTasks, cfg.Kafka.ConsumerGroup, util.Component("consumer"))
	taskWorker := worker.NewTaskWorker(taskConsumer, fulfillmentService, refreshService, util.Component("worker"))
	go func() {
		if err := taskWorker.Start(workerCtx); err != nil {
			logger.Error("Task worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(
		checkoutService,
		db,
		dispatcher,
		refreshTrigger,
		topUpDesk,
		map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
		cfg.Telegram.WebhookSecret,
		util.Component("api"),
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := taskWorker.Stop(); err != nil {
		logger.Warn("Failed to close task consumer", zap.Error(err))
	}

	logger.Info("Server exited")
}
