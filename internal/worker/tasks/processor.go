package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/mail"
)

type MailDeliverer interface {
	Deliver(ctx context.Context, msg mail.Message) error
}

// Processor routes outbox entries by their type field.
type Processor struct {
	mail   MailDeliverer
	logger zerolog.Logger
}

func NewProcessor(deliverer MailDeliverer, logger zerolog.Logger) *Processor {
	return &Processor{
		mail:   deliverer,
		logger: logger,
	}
}

// Handle never returns delivery failures: those have already been retried
// and are only logged, so the entry is acknowledged. Undecodable entries are
// dropped the same way.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType, _ := msg.Values["type"].(string)
	switch taskType {
	case mail.TaskType:
		return p.handleMail(ctx, msg)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleMail(ctx context.Context, msg redis.XMessage) error {
	var m mail.Message
	if err := decodePayload(msg.Values, &m); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("drop undecodable mail task")
		return nil
	}

	if err := p.mail.Deliver(ctx, m); err != nil {
		if ctx.Err() != nil {
			// shutting down: leave pending for another worker
			return err
		}
		p.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("template", m.Template).
			Strs("to", m.To).
			Msg("mail delivery failed")
		return nil
	}
	p.logger.Info().Str("message_id", msg.ID).Str("template", m.Template).Msg("mail delivered")
	return nil
}

func decodePayload(values map[string]interface{}, out interface{}) error {
	raw, ok := values["payload"].(string)
	if !ok {
		return fmt.Errorf("payload missing")
	}
	return json.Unmarshal([]byte(raw), out)
}
