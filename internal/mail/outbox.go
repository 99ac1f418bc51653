package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaskType tags outbox entries so the worker can route them.
const TaskType = "mail"

// Outbox appends mail requests to a Redis stream consumed by the worker.
type Outbox struct {
	rdb     redis.UniversalClient
	stream  string
	timeout time.Duration
}

func NewOutbox(rdb redis.UniversalClient, stream string, timeout time.Duration) *Outbox {
	return &Outbox{rdb: rdb, stream: stream, timeout: timeout}
}

// Enqueue survives cancellation of ctx: a request that has been accepted
// still gets its mail.
func (o *Outbox) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	err = o.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"type":    TaskType,
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s mail: %w", msg.Template, err)
	}
	return nil
}
