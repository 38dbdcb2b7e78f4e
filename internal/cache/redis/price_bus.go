package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/predictfi/predict-go/internal/domain"
)

// PriceBus implements domain.PriceBus over Redis Pub/Sub. Ticks are
// ephemeral: a subscriber that connects late simply misses earlier updates
// and catches up from the price cache.
type PriceBus struct {
	rdb *redis.Client
}

// NewPriceBus creates a PriceBus backed by the given Client.
func NewPriceBus(c *Client) *PriceBus {
	return &PriceBus{rdb: c.Underlying()}
}

func priceChannel(chainID uint64) string {
	return "prices:" + strconv.FormatUint(chainID, 10)
}

// PublishPrices sends one price update to the chain's channel.
func (pb *PriceBus) PublishPrices(ctx context.Context, update domain.PriceUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("redis: marshal price update: %w", err)
	}
	if err := pb.rdb.Publish(ctx, priceChannel(update.ChainID), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish prices chain %d: %w", update.ChainID, err)
	}
	return nil
}

// SubscribePrices returns a channel of live price updates for one chain. The
// subscription is closed when the context is cancelled; the returned channel
// is closed at that point as well. Updates that fail to decode are dropped.
func (pb *PriceBus) SubscribePrices(ctx context.Context, chainID uint64) (<-chan domain.PriceUpdate, error) {
	pubsub := pb.rdb.Subscribe(ctx, priceChannel(chainID))

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe prices chain %d: %w", chainID, err)
	}

	out := make(chan domain.PriceUpdate, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var update domain.PriceUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.PriceBus = (*PriceBus)(nil)
