package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-canteen-orders.git/internal/config"
	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/payments"
	"github.com/ariefcatur/go-canteen-orders.git/internal/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentTimeout, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	wallets := &orders.WalletRepo{DB: db}
	sw := &payments.Sweeper{
		Orders:      repo,
		Products:    repo,
		Ledger:      wallets,
		Events:      prod,
		ServiceName: cfg.ServiceName + "-sweeper",
		Interval:    cfg.SweepInterval,
	}

	go func() {
		log.Printf("sweeper started: interval=%s", cfg.SweepInterval)
		sw.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down sweeper...")
	cancel()
	prod.WaitClosed()
}
