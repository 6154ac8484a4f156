package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rizana/marketplace-orders/internal/config"
	"github.com/rizana/marketplace-orders/internal/httpx"
	"github.com/rizana/marketplace-orders/internal/market"
	"github.com/rizana/marketplace-orders/internal/payments"
	"github.com/rizana/marketplace-orders/internal/postgres"
	"github.com/rizana/marketplace-orders/internal/redisx"
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

	// Notification sink (one producer per topic)
	sink := market.NewKafkaSink(cfg.KafkaBrokers, 1024)
	sink.Start(ctx)

	// Payment gateway with transport-error retries
	gateway := &payments.Retry{
		Next: &payments.HTTPGateway{
			BaseURL: cfg.GatewayURL,
			Client:  &http.Client{Timeout: cfg.GatewayTimeout},
		},
	}

	store := &market.PGStore{DB: db}
	machine := &market.StateMachine{
		Items:    store,
		Orders:   store,
		Attempts: store,
		Gateway:  gateway,
		Sink:     sink,
		Service:  cfg.ServiceName,
	}
	gate := &market.ReviewGate{Orders: store, Reviews: store}

	router := httpx.NewRouter()
	mh := &httpx.MarketHandler{
		Items:   store,
		Orders:  store,
		Machine: machine,
		Gate:    gate,
		Cache:   rdb,
	}
	mh.Register(router)

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
	sink.Close() // close inboxes -> flush & close writers
	sink.WaitClosed()
}
