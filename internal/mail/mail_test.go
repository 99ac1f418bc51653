package mail

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/config"
)

func TestOutboxEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	outbox := NewOutbox(rdb, "mail:outbox", 500*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg := Message{Template: TemplateInvite, To: []string{"bob@x"}, Data: map[string]string{"group": "ops"}}
	if err := outbox.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue with cancelled context: %v", err)
	}

	entries, err := rdb.XRange(context.Background(), "mail:outbox", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Values["type"] != TaskType {
		t.Fatalf("unexpected type %v", entries[0].Values["type"])
	}
	var got Message
	if err := json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Template != TemplateInvite || got.To[0] != "bob@x" || got.Data["group"] != "ops" {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestRender(t *testing.T) {
	subject, body, err := Render(Message{
		Template: TemplateInvite,
		Data: map[string]string{
			"app":     "Clockpoint",
			"inviter": "alice",
			"group":   "<ops>",
			"link":    "http://localhost:3000/invite?invite_token=abc",
			"expires": "168h0m0s",
		},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "alice invited you to <ops> on Clockpoint" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "&lt;ops&gt;") {
		t.Fatalf("group name must be escaped in body: %s", body)
	}
	if !strings.Contains(body, "invite_token=abc") {
		t.Fatalf("body misses link: %s", body)
	}

	if _, _, err := Render(Message{Template: "nope"}); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

type flakySender struct {
	failures int
	calls    int
}

func (f *flakySender) Send(ctx context.Context, to []string, subject, html string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("421 service not available")
	}
	return nil
}

func newTestDeliverer(sender Sender) *Deliverer {
	d := NewDeliverer(sender, config.SMTPConfig{Timeout: time.Second, Retries: 3}, zerolog.Nop())
	d.backoff = time.Millisecond
	return d
}

func TestDelivererRetries(t *testing.T) {
	msg := Message{Template: TemplateActivate, To: []string{"alice@x"}, Data: map[string]string{"link": "l"}}

	ok := &flakySender{failures: 2}
	if err := newTestDeliverer(ok).Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ok.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ok.calls)
	}

	broken := &flakySender{failures: 10}
	if err := newTestDeliverer(broken).Deliver(context.Background(), msg); err == nil {
		t.Fatalf("expected failure after retries")
	}
	if broken.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", broken.calls)
	}
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, to []string, subject, html string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDelivererAttemptTimeout(t *testing.T) {
	d := NewDeliverer(blockingSender{}, config.SMTPConfig{Timeout: 10 * time.Millisecond, Retries: 1}, zerolog.Nop())
	err := d.Deliver(context.Background(), Message{Template: TemplateReset, To: []string{"a@x"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
