package worker

// notificacao_worker.go
// Consumes customer notification jobs from QueueNotificacao, waits the
// jittered delay carried by the job, then delivers via SMTP.

import (
	"context"
	"encoding/json"
	"time"

	"casalar/internal/infra"
	"casalar/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const notificacaoMaxTentativas = 3

type NotificacaoWorker struct {
	mailer *infra.Mailer
	rdb    *redis.Client
}

func NewNotificacaoWorker(mailer *infra.Mailer, rdb *redis.Client) *NotificacaoWorker {
	return &NotificacaoWorker{mailer: mailer, rdb: rdb}
}

// Process delivers one notification. Delivery failures retry with backoff;
// after the budget runs out the job goes to the DLQ. Nothing here ever
// reaches back into the financial flow that enqueued the message.
func (w *NotificacaoWorker) Process(ctx context.Context, raw json.RawMessage) {
	var n service.Notificacao
	if err := json.Unmarshal(raw, &n); err != nil {
		log.Error().Err(err).Msg("notificacao_worker: invalid payload")
		return
	}
	if n.Destinatario == "" {
		log.Warn().Msg("notificacao_worker: empty destinatario, skipping")
		return
	}

	if n.AtrasoSegundos > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(n.AtrasoSegundos) * time.Second):
		}
	}

	err := withRetry(ctx, notificacaoMaxTentativas, func(attempt int) error {
		if err := w.mailer.Enviar(n.Destinatario, n.Assunto, n.Corpo); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("to", n.Destinatario).
				Msg("notificacao_worker: delivery attempt failed")
			return err
		}
		return nil
	})
	if err != nil {
		SendToDLQ(ctx, w.rdb, QueueNotificacao, "notificacao", raw,
			"smtp delivery failed: "+err.Error(), notificacaoMaxTentativas)
		return
	}
	log.Info().Str("to", n.Destinatario).Msg("notificacao_worker: delivered")
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
