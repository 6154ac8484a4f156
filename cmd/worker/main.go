// The worker settles payments and enforces the pending-payment timeout:
// it consumes gateway callbacks from payment.callback and runs the
// sweeper that auto-cancels orders stuck in PENDING_PAYMENT.
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
	kafkax "github.com/rizana/marketplace-orders/internal/kafka"
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
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	sink := market.NewKafkaSink(cfg.KafkaBrokers, 1024)
	sink.Start(ctx)

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
		Service:  cfg.ServiceName + "-worker",
	}

	svc := &payments.CallbackService{Machine: machine, Redis: rdb}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.CallbackGroup, market.TopicPaymentCallback, cfg.CallbackWorkers)
	go func() {
		log.Printf("callback consumer started: group=%s topic=%s workers=%d",
			cfg.CallbackGroup, market.TopicPaymentCallback, cfg.CallbackWorkers)
		if err := cons.Start(ctx, svc.HandleCallback); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// pending-payment sweeper
	go func() {
		t := time.NewTicker(cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := machine.CancelExpired(ctx, cfg.PendingTimeout)
				if err != nil {
					log.Printf("sweep: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("sweep: cancelled %d expired orders", n)
				}
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	sink.WaitClosed()
}
