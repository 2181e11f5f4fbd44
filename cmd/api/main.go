package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChainMartCheckout/internal/cart"
	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/config"
	"ChainMartCheckout/internal/db"
	internalhttp "ChainMartCheckout/internal/http"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/services"
	"ChainMartCheckout/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	rpc, err := chain.NewMultiRPCClient(cfg.Chain.RPCEndpoints, cfg.Worker.RPCFailoverThreshold)
	if err != nil {
		log.Fatalf("chain client failed: %v", err)
	}
	deriver := chain.AddressDeriver{XPub: cfg.Wallet.XPub, Prefix: cfg.Chain.Bech32Prefix}

	executor := &saga.Executor{
		Ledger:           st,
		Chain:            rpc,
		TokenContractID:  cfg.Chain.TokenContractID,
		MarketContractID: cfg.Chain.MarketContractID,
		GasLimit:         cfg.Chain.GasLimit,
		StepTimeout:      time.Duration(cfg.Checkout.StepTimeoutSeconds) * time.Second,
	}
	coordinator := &saga.Coordinator{
		Ledger:         st,
		Executor:       executor,
		Reconciler:     cart.Reconciler{Store: st},
		Deriver:        deriver,
		MaxStepRetries: cfg.Checkout.MaxStepRetries,
		BackoffBase:    time.Duration(cfg.Checkout.BackoffBaseMillis) * time.Millisecond,
	}
	checkout := &services.CheckoutService{Store: st, Coordinator: coordinator}

	h := internalhttp.NewHandler(checkout)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
