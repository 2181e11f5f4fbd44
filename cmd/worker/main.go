package main

import (
	"context"
	"log"
	"time"

	"ChainMartCheckout/internal/cart"
	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/config"
	"ChainMartCheckout/internal/db"
	"ChainMartCheckout/internal/saga"
	"ChainMartCheckout/internal/store"
	"ChainMartCheckout/internal/worker"
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

	wsEndpoints := cfg.Chain.WSEndpoints
	if len(wsEndpoints) == 0 {
		for _, ep := range cfg.Chain.RPCEndpoints {
			if ws := chain.DefaultWSEndpoint(ep); ws != "" {
				wsEndpoints = append(wsEndpoints, ws)
			}
		}
	}

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
		Deriver:        chain.AddressDeriver{XPub: cfg.Wallet.XPub, Prefix: cfg.Chain.Bech32Prefix},
		MaxStepRetries: cfg.Checkout.MaxStepRetries,
		BackoffBase:    time.Duration(cfg.Checkout.BackoffBaseMillis) * time.Millisecond,
	}

	w := &worker.Worker{
		Store:               st,
		Coordinator:         coordinator,
		Interval:            time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		WSEndpoints:         wsEndpoints,
		WSFailoverThreshold: cfg.Worker.WSFailoverThreshold,
	}

	log.Printf("worker started (rpc=%s)", rpc.BaseURL())
	w.Run(ctx)
}
