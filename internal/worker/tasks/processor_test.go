package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/mail"
)

type recordingDeliverer struct {
	got []mail.Message
	err error
}

func (r *recordingDeliverer) Deliver(ctx context.Context, msg mail.Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestHandleMail(t *testing.T) {
	d := &recordingDeliverer{}
	p := NewProcessor(d, zerolog.Nop())

	err := p.Handle(context.Background(), redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"type":    mail.TaskType,
			"payload": `{"template":"activate","to":["alice@x"],"data":{"link":"l"}}`,
		},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(d.got) != 1 || d.got[0].Template != mail.TemplateActivate || d.got[0].To[0] != "alice@x" {
		t.Fatalf("unexpected deliveries %+v", d.got)
	}
}

func TestHandleSwallowsDeliveryFailures(t *testing.T) {
	p := NewProcessor(&recordingDeliverer{err: errors.New("smtp down")}, zerolog.Nop())
	msg := redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"type":    mail.TaskType,
		"payload": `{"template":"reset","to":["a@x"]}`,
	}}
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("delivery failure must be logged only, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Handle(ctx, msg); err == nil {
		t.Fatalf("failure during shutdown must leave the entry pending")
	}
}

func TestHandleUnknownAndMalformed(t *testing.T) {
	d := &recordingDeliverer{}
	p := NewProcessor(d, zerolog.Nop())
	for _, values := range []map[string]interface{}{
		{"type": "thumbnail"},
		{"type": mail.TaskType, "payload": "{not json"},
		{"type": mail.TaskType},
	} {
		if err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: values}); err != nil {
			t.Fatalf("Handle(%v): %v", values, err)
		}
	}
	if len(d.got) != 0 {
		t.Fatalf("nothing should have been delivered, got %+v", d.got)
	}
}
