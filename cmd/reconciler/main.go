package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-merch-checkout.git/internal/config"
	"github.com/ariefcatur/go-merch-checkout.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-merch-checkout.git/internal/recon"
	"github.com/ariefcatur/go-merch-checkout.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Init(cfg.ServiceName+"-reconciler", cfg.LogFile)
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

	ledger := &inventory.Ledger{DB: db}
	orderRepo := &orders.Repo{DB: db, Ledger: ledger}
	cache := &recon.RedisInvalidator{Client: rdb}

	listener := &recon.Listener{
		Orders: orderRepo,
		Dedup:  &recon.RedisDedup{Client: rdb},
		Cache:  cache,
		Log:    logging.New("recon"),
	}

	sweeper := &recon.Sweeper{
		Ledger:   ledger,
		Orders:   orderRepo,
		Cache:    cache,
		Interval: cfg.SweepInterval,
		Log:      logging.New("sweeper"),
	}
	go sweeper.Run(ctx)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconGroup, orders.TopicPaymentEvents, cfg.ReconWorkers)
	go func() {
		log.Info("reconciler consumer started",
			"group", cfg.ReconGroup, "topic", orders.TopicPaymentEvents, "workers", cfg.ReconWorkers)
		if err := cons.Start(ctx, listener.HandleMessage); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down reconciler...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
