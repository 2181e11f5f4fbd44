package worker

import (
	"context"
	"log"
	"time"

	"ChainMartCheckout/internal/chain"
	"ChainMartCheckout/internal/settlements"
)

// RunWS watches committed transactions and resolves pending/unknown
// settlement attempts by idempotency token as soon as their tx lands,
// instead of waiting for the next reconciliation poll. Endpoints rotate
// after repeated connection failures.
func (w *Worker) RunWS(ctx context.Context) {
	if len(w.WSEndpoints) == 0 {
		log.Printf("ws disabled: no ws endpoints configured")
		return
	}

	idx := 0
	fails := 0
	threshold := w.WSFailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		endpoint := w.WSEndpoints[idx]
		client := chain.NewWSClient(endpoint)
		if err := client.Connect(ctx); err != nil {
			log.Printf("ws connect failed (%s): %v", endpoint, err)
			fails++
			if fails >= threshold {
				idx = (idx + 1) % len(w.WSEndpoints)
				fails = 0
			}
			time.Sleep(3 * time.Second)
			continue
		}
		log.Printf("ws connected %s", endpoint)
		fails = 0

		if err := client.Subscribe(ctx, "tm.event='Tx'"); err != nil {
			log.Printf("ws subscribe failed: %v", err)
			client.Close()
			time.Sleep(3 * time.Second)
			continue
		}

		for {
			msg, err := client.Read(ctx)
			if err != nil {
				log.Printf("ws read failed: %v", err)
				client.Close()
				break
			}

			tx, ok, err := chain.ParseWSTx(msg)
			if err != nil {
				log.Printf("ws parse failed: %v", err)
				continue
			}
			if !ok || tx.Hash == "" {
				continue
			}

			for _, s := range settlements.ExtractSettlements(tx.Events) {
				resolved, err := settlements.ApplySettlement(ctx, w.Store, tx, s)
				if err != nil {
					log.Printf("ws resolve token=%s failed: %v", s.Token, err)
					continue
				}
				if resolved > 0 {
					log.Printf("ws resolved %d attempt(s) token=%s tx=%s code=%d", resolved, s.Token, tx.Hash, tx.Code)
				}
			}
		}

		time.Sleep(2 * time.Second)
	}
}
