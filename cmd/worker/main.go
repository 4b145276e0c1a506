package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-canteen-orders.git/internal/config"
	kafkax "github.com/ariefcatur/go-canteen-orders.git/internal/kafka"
	"github.com/ariefcatur/go-canteen-orders.git/internal/orders"
	"github.com/ariefcatur/go-canteen-orders.git/internal/redisx"
	"github.com/ariefcatur/go-canteen-orders.git/internal/statuscache"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &statuscache.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
	}

	group := getenv("WORKER_GROUP", "status-cache")
	workers := mustAtoi(os.Getenv("WORKER_CONCURRENCY"), "4")
	topics := []string{
		orders.TopicOrderCreated,
		orders.TopicCashConfirmed,
		orders.TopicPaymentTimeout,
		orders.TopicOrderCancelled,
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			log.Printf("status-cache consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.HandleEvent); err != nil {
				log.Printf("consumer %s exit: %v", topic, err)
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumers...")
	cancel()
	wg.Wait()
}
