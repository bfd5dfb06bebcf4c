package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-merch-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-merch-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-merch-checkout.git/internal/config"
	"github.com/ariefcatur/go-merch-checkout.git/internal/httpx"
	"github.com/ariefcatur/go-merch-checkout.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/payments"
	"github.com/ariefcatur/go-merch-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-merch-checkout.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.Init(cfg.ServiceName, cfg.LogFile)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: integration events + verified processor events
	prodCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	prodCreated.Start(ctx)
	prodPayments := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentEvents, 1024)
	prodPayments.Start(ctx)

	// Repos & services
	ledger := &inventory.Ledger{DB: db}
	orderRepo := &orders.Repo{DB: db, Ledger: ledger}
	catalogRepo := &catalog.Repo{DB: db}
	svc := &checkout.Service{
		Catalog:        catalogRepo,
		Orders:         orderRepo,
		Processor:      payments.NewClient(cfg.ProcessorURL, cfg.ProcessorAPIKey),
		Idem:           &checkout.RedisIdem{Client: rdb},
		ReservationTTL: cfg.ReservationTTL,
	}

	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Svc: svc, Producer: prodCreated, Service: cfg.ServiceName}).Register(router)
	(&httpx.OrderHandler{Store: orderRepo, Catalog: catalogRepo, Cache: &httpx.RedisViewCache{Client: rdb}}).Register(router)
	(&httpx.WebhookHandler{Events: prodPayments, Secret: []byte(cfg.WebhookSecret), Log: logging.New("webhook")}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prodCreated.Close()
	prodPayments.Close()
	cancel() // stop producer loops
	prodCreated.WaitClosed()
	prodPayments.WaitClosed()
}
