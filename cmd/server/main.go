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

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/availability"
	"booking-service/internal/broker"
	"booking-service/internal/events"
	"booking-service/internal/idempotency"
	"booking-service/internal/provider"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/subscriber"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service")

	tp, err := util.InitTracer("booking-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	bus := events.NewBus()

	calendar := provider.NewNoopCalendar()
	payment := provider.NewSandboxPayment(cfg.Payment.CheckoutBaseURL)
	verifier := provider.NewWebhookVerifier(cfg.Payment.WebhookSecret, cfg.Payment.SignatureTolerance)

	guard := idempotency.NewGuard(redisClient, db, cfg.Business.RecordRetention)
	resolver := availability.NewResolver(db, calendar, cfg.Calendar.LookupTimeout)

	commissionService := service.NewCommissionService(db)
	bookingService := service.NewBookingService(db, resolver, guard, payment, bus)
	reconciler := service.NewWebhookReconciler(db, guard, verifier, commissionService, bus)

	subscriber.NewEmailSubscriber(provider.NewLogNotifier()).Register(bus)
	subscriber.NewCalendarSubscriber(calendar, db, cfg.Calendar.LookupTimeout).Register(bus)
	broker.NewRelay(producer).Register(bus)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	webhookConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicWebhooks, cfg.Kafka.WebhookGroup)
	webhookWorker := worker.NewWebhookWorker(webhookConsumer, reconciler)
	go func() {
		if err := webhookWorker.Start(workerCtx); err != nil {
			log.Printf("Webhook worker error: %v", err)
		}
	}()

	cleanupWorker := worker.NewCleanupWorker(db, cfg.Business.RecordRetention, cfg.Business.CleanupInterval)
	go func() {
		if err := cleanupWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Cleanup worker error: %v", err)
		}
	}()

	reminderWorker := worker.NewReminderWorker(db, bus, cfg.Business.ReminderLead, cfg.Business.ReminderInterval)
	go func() {
		if err := reminderWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Reminder worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(bookingService, commissionService, reconciler)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	webhookWorker.Stop()

	log.Println("Server exited")
}
