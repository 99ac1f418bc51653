package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const Channel = "clockpoint:notifications"

// Publisher sends events to every API instance.
type Publisher struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewPublisher(rdb redis.UniversalClient, timeout time.Duration) *Publisher {
	return &Publisher{rdb: rdb, timeout: timeout}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.rdb.Publish(ctx, Channel, data).Err()
}

// Bridge feeds events published on Channel into the local hub until ctx
// is done.
func Bridge(ctx context.Context, rdb redis.UniversalClient, hub *Hub, log zerolog.Logger) error {
	sub := rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("drop malformed notification")
				continue
			}
			hub.Dispatch(ev)
		}
	}
}
