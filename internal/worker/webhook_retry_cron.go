package worker

// webhook_retry_cron.go
// Background goroutine re-delivering webhook events stuck in estado
// "recebido" whose proxima_tentativa is in the past. The circuit breaker
// keeps the cron from hammering a downed gateway.

import (
	"context"
	"fmt"
	"time"

	"casalar/internal/infra"
	"casalar/internal/model"
	"casalar/internal/repository"
	"casalar/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	webhookTickInterval = 30 * time.Second
	webhookBatchSize    = 20
	QueueWebhook        = "jobs:webhook" // DLQ bucket only; delivery is DB-scheduled
)

// WebhookProcessor owns the event processing shared by the HTTP handler
// (first attempt) and the retry cron (redeliveries): resolve the cobranca by
// the provider payment id, re-fetch the authoritative payment state from the
// gateway, and route it through settlement.
type WebhookProcessor struct {
	webhookRepo   repository.WebhookRepository
	cobrancaRepo  repository.CobrancaRepository
	gateway       infra.Gateway
	liquidacao    service.LiquidacaoService
	rdb           *redis.Client
	maxTentativas int
	backoffBase   time.Duration
}

func NewWebhookProcessor(
	webhookRepo repository.WebhookRepository,
	cobrancaRepo repository.CobrancaRepository,
	gateway infra.Gateway,
	liquidacao service.LiquidacaoService,
	rdb *redis.Client,
	maxTentativas int,
	backoffBase time.Duration,
) *WebhookProcessor {
	return &WebhookProcessor{
		webhookRepo:   webhookRepo,
		cobrancaRepo:  cobrancaRepo,
		gateway:       gateway,
		liquidacao:    liquidacao,
		rdb:           rdb,
		maxTentativas: maxTentativas,
		backoffBase:   backoffBase,
	}
}

// Processar handles one delivery attempt and persists the outcome on the
// event row. The webhook body itself is never trusted for money movement:
// the payment state is always re-read from the gateway.
func (p *WebhookProcessor) Processar(ctx context.Context, evento *model.WebhookEvento) error {
	err := p.entregar(ctx, evento)
	agora := time.Now()

	if err == nil {
		evento.Status = "processado"
		evento.ProcessadoEm = &agora
		evento.ProximaTentativa = nil
		evento.UltimoErro = nil
		return p.webhookRepo.Update(ctx, evento)
	}

	evento.Tentativas++
	msg := err.Error()
	evento.UltimoErro = &msg

	if evento.Tentativas >= p.maxTentativas {
		evento.Status = "falho"
		evento.ProximaTentativa = nil
		log.Error().Err(err).
			Str("evento_id", evento.ID.String()).
			Str("gateway_pagamento_id", evento.GatewayPagamentoID).
			Int("tentativas", evento.Tentativas).
			Msg("webhook: esgotadas as tentativas de entrega")
		SendToDLQ(ctx, p.rdb, QueueWebhook, "webhook", []byte(evento.PayloadRaw),
			fmt.Sprintf("max retries (%d) exceeded: %s", p.maxTentativas, msg),
			evento.Tentativas)
	} else {
		proxima := agora.Add(p.backoff(evento.Tentativas))
		evento.ProximaTentativa = &proxima
		log.Warn().Err(err).
			Str("evento_id", evento.ID.String()).
			Int("tentativas", evento.Tentativas).
			Time("proxima_tentativa", proxima).
			Msg("webhook: entrega falhou, reagendada")
	}

	if uerr := p.webhookRepo.Update(ctx, evento); uerr != nil {
		return uerr
	}
	return err
}

func (p *WebhookProcessor) entregar(ctx context.Context, evento *model.WebhookEvento) error {
	cobranca, err := p.cobrancaRepo.FindByGatewayID(ctx, evento.GatewayPagamentoID)
	if err != nil {
		return fmt.Errorf("cobrança do pagamento %s não encontrada", evento.GatewayPagamentoID)
	}

	resposta, err := p.gateway.ConsultarPagamento(ctx, evento.GatewayPagamentoID)
	if err != nil {
		return fmt.Errorf("consulta ao gateway: %w", err)
	}

	return p.liquidacao.Confirmar(ctx, cobranca.ID, resposta)
}

// backoff: base × 2^(n-1) — 1x, 2x, 4x …
func (p *WebhookProcessor) backoff(tentativa int) time.Duration {
	return p.backoffBase * time.Duration(1<<uint(tentativa-1))
}

// StartWebhookRetryCron ticks every 30s, picking up events due for
// redelivery. Respects the context for graceful shutdown.
func StartWebhookRetryCron(ctx context.Context, p *WebhookProcessor, cb *infra.CircuitBreaker) {
	go func() {
		ticker := time.NewTicker(webhookTickInterval)
		defer ticker.Stop()

		log.Info().Msg("webhook_retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("webhook_retry_cron: shutting down")
				return
			case <-ticker.C:
				processarRetries(ctx, p, cb)
			}
		}
	}()
}

func processarRetries(ctx context.Context, p *WebhookProcessor, cb *infra.CircuitBreaker) {
	// Gateway already known to be down: wait for the breaker to half-open.
	if cb.State() == infra.CBOpen {
		log.Debug().Msg("webhook_retry_cron: circuit breaker is open, skipping tick")
		return
	}

	eventos, err := p.webhookRepo.ListPendentesRetry(ctx, time.Now(), webhookBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("webhook_retry_cron: failed to query pending events")
		return
	}
	if len(eventos) == 0 {
		return
	}

	log.Info().Int("count", len(eventos)).Msg("webhook_retry_cron: redelivering events")

	for i := range eventos {
		if cb.State() == infra.CBOpen {
			log.Debug().Msg("webhook_retry_cron: circuit breaker opened mid-batch, stopping")
			return
		}
		_ = p.Processar(ctx, &eventos[i])
	}
}
