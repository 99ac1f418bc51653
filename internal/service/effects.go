package service

import (
	"context"

	"github.com/rs/zerolog"

	"clockpoint/internal/mail"
	"clockpoint/internal/notify"
)

type Mailer interface {
	Enqueue(ctx context.Context, msg mail.Message) error
}

type Notifier interface {
	Publish(ctx context.Context, ev notify.Event) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

// Effects dispatches the side effects that follow a committed operation.
// Any of the sinks may be nil. Failures are logged and never returned: the
// caller's operation has already succeeded.
type Effects struct {
	Mailer   Mailer
	Notifier Notifier
	Events   EventPublisher
	Log      zerolog.Logger
}

func (e Effects) mail(ctx context.Context, msg mail.Message) {
	if e.Mailer == nil {
		return
	}
	if err := e.Mailer.Enqueue(context.WithoutCancel(ctx), msg); err != nil {
		e.Log.Error().Err(err).Str("template", msg.Template).Strs("to", msg.To).Msg("enqueue mail failed")
	}
}

func (e Effects) notify(ctx context.Context, eventType string, userIDs []string, payload any) {
	if e.Notifier == nil || len(userIDs) == 0 {
		return
	}
	ev, err := notify.NewEvent(eventType, userIDs, payload)
	if err != nil {
		e.Log.Error().Err(err).Str("event", eventType).Msg("encode notification failed")
		return
	}
	if err := e.Notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.Log.Warn().Err(err).Str("event", eventType).Msg("publish notification failed")
	}
}

func (e Effects) emit(ctx context.Context, routingKey string, data any) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(context.WithoutCancel(ctx), routingKey, data); err != nil {
		e.Log.Warn().Err(err).Str("routing_key", routingKey).Msg("publish domain event failed")
	}
}
