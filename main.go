package main

import (
	"log/slog"
	"net/http"
	"os"

	"fulfillment-service/carrier"
	"fulfillment-service/config"
	"fulfillment-service/consumers"
	"fulfillment-service/controllers"
	"fulfillment-service/database"
	"fulfillment-service/fulfillment"
	"fulfillment-service/gateway"
	"fulfillment-service/middlewares"
	"fulfillment-service/notify"
	"fulfillment-service/pricing"
	"fulfillment-service/rabbitmq"
	"fulfillment-service/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.LoadConfig()

	if err := database.InitDB(cfg); err != nil {
		slog.Error("database initialization failed", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB()

	if err := database.EnsureSchema(); err != nil {
		slog.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		slog.Error("rabbitmq initialization failed", "error", err)
		os.Exit(1)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		slog.Error("failed to setup rabbitmq queues", "error", err)
		os.Exit(1)
	}

	db := store.NewMySQL(database.DB)

	gatewayClient := gateway.NewClient(cfg)
	carrierClient := carrier.NewClient(cfg)

	pricingEngine := pricing.NewEngine(db, db)
	confirmer := fulfillment.NewService(db, rmq)
	orchestrator := fulfillment.NewOrchestrator(db, carrierClient, cfg)
	reconciler := fulfillment.NewReconciler(db, db)

	consumers.StartFulfillmentConsumers(rmq.Channel, cfg, orchestrator, notify.NewLogSender(db))

	checkoutCtl := controllers.NewCheckoutController(db, pricingEngine)
	paymentCtl := controllers.NewPaymentController(db, gatewayClient, confirmer, cfg.GatewayKeySecret)
	webhookCtl := controllers.NewWebhookController(db, db, confirmer, reconciler,
		cfg.GatewayWebhookSecret, cfg.CarrierWebhookSecret)

	r := gin.Default()
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST("/checkout", checkoutCtl.Checkout)
		api.GET("/orders/:id", checkoutCtl.GetOrder)
		api.POST("/payments", paymentCtl.CreateIntent)
		api.POST("/payments/verify", paymentCtl.VerifyPayment)
	}

	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/payment", webhookCtl.PaymentWebhook)
		webhooks.POST("/carrier", webhookCtl.CarrierWebhook)
	}

	port := ":8080"
	slog.Info("fulfillment service starting", "port", port)
	if err := r.Run(port); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
