package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type handlerFunc func(ctx context.Context, msg redis.XMessage) error

func (f handlerFunc) Handle(ctx context.Context, msg redis.XMessage) error { return f(ctx, msg) }

func TestReadOnceAcksHandledMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	var seen []string
	c := NewConsumer(rdb, "mail:outbox", "mail-workers", "w1", time.Minute, zerolog.Nop(),
		handlerFunc(func(_ context.Context, msg redis.XMessage) error {
			seen = append(seen, msg.Values["n"].(string))
			if msg.Values["n"] == "2" {
				return errors.New("boom")
			}
			return nil
		}))
	c.block = 10 * time.Millisecond

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup must be idempotent: %v", err)
	}

	for _, n := range []string{"1", "2", "3"} {
		if err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: "mail:outbox", Values: map[string]interface{}{"n": n}}).Err(); err != nil {
			t.Fatalf("XAdd: %v", err)
		}
	}

	acked, err := c.ReadOnce(ctx)
	if err != nil {
		t.Fatalf("ReadOnce: %v", err)
	}
	if acked != 2 {
		t.Fatalf("expected 2 acked messages, got %d", acked)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 handled messages, got %v", seen)
	}

	pending, err := rdb.XPending(ctx, "mail:outbox", "mail-workers").Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("failed message must stay pending, got %d", pending.Count)
	}
}
