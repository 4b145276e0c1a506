package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-canteen-orders.git/internal/checkout"
	"github.com/ariefcatur/go-canteen-orders.git/internal/config"
	"github.com/ariefcatur/go-canteen-orders.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/payments"
	"github.com/ariefcatur/go-canteen-orders.git/internal/postgres"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicCashConfirmed, 1024)
	pConfirmed.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)

	// Repos & services
	repo := &orders.Repo{DB: db}
	wallets := &orders.WalletRepo{DB: db}
	engine := &orders.Engine{
		Products: repo,
		Orders:   repo,
		Wallets:  wallets,
		Parents:  repo,
		Ledger:   wallets,
		CashDue:  cfg.CashDue,
	}
	orch := &checkout.Orchestrator{Engine: engine, Wallets: wallets}
	paySvc := &payments.Service{
		Orders:          repo,
		Products:        repo,
		Wallets:         wallets,
		Ledger:          wallets,
		EventsConfirmed: pConfirmed,
		EventsCancelled: pCancelled,
		ServiceName:     cfg.ServiceName,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Engine:   engine,
		Orders:   repo,
		Products: repo,
		Producer: pCreated,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	ch := &httpx.CheckoutHandler{Orch: orch, Redis: rdb, Service: cfg.ServiceName}
	ph := &httpx.PaymentsHandler{Svc: paySvc, Redis: rdb}
	router.Group(func(pr chi.Router) {
		pr.Use(httpx.Auth(cfg.JWTSecret))
		oh.Register(pr)
		ch.Register(pr)
		ph.Register(pr)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	pCreated.WaitClosed()
	pConfirmed.WaitClosed()
	pCancelled.WaitClosed()
}
