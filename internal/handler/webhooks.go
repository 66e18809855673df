package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"casalar/internal/apierror"
	"casalar/internal/dto"
	"casalar/internal/model"
	"casalar/internal/repository"
	"casalar/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type WebhooksHandler struct {
	webhookRepo repository.WebhookRepository
	processor   *worker.WebhookProcessor
	secret      string
}

func NewWebhooksHandler(webhookRepo repository.WebhookRepository, processor *worker.WebhookProcessor, secret string) *WebhooksHandler {
	return &WebhooksHandler{webhookRepo: webhookRepo, processor: processor, secret: secret}
}

// Receber ingests one gateway notification. The event is always persisted
// before any processing; a processing failure answers 200 anyway and the
// retry cron redelivers. Answering non-2xx would make the gateway replay an
// event we already stored.
// POST /v1/webhooks/gateway
func (h *WebhooksHandler) Receber(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("corpo ilegível"))
		return
	}

	var req dto.WebhookGatewayRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Data.ID == "" {
		c.JSON(http.StatusBadRequest, apierror.New("payload de webhook inválido"))
		return
	}

	xSignature := c.GetHeader("X-Signature")
	assinada := xSignature != ""
	valida := false
	switch {
	case h.secret == "":
		log.Warn().Msg("webhook: WEBHOOK_SECRET ausente, aceitando entrega sem verificação")
	case !assinada:
		// Insecure fallback: tolerated so a misconfigured gateway does not
		// silently drop money events, but every occurrence is logged.
		log.Warn().Str("gateway_pagamento_id", req.Data.ID).
			Msg("webhook: entrega sem assinatura aceita em modo inseguro")
	default:
		valida = assinaturaValida(h.secret, xSignature, c.GetHeader("X-Request-ID"), req.Data.ID)
		if !valida {
			log.Error().Str("gateway_pagamento_id", req.Data.ID).
				Msg("webhook: assinatura inválida, entrega rejeitada")
			c.JSON(http.StatusUnauthorized, apierror.New("assinatura inválida"))
			return
		}
	}

	evento := &model.WebhookEvento{
		EventType:          firstNonEmpty(req.Action, req.Type),
		GatewayPagamentoID: req.Data.ID,
		PayloadRaw:         string(body),
		AssinaturaValida:   valida,
		Status:             "recebido",
	}
	if err := h.webhookRepo.Create(c.Request.Context(), evento); err != nil {
		log.Error().Err(err).Msg("webhook: falha ao persistir evento")
		c.JSON(http.StatusInternalServerError, apierror.New("Erro interno do servidor"))
		return
	}

	// First attempt inline; the retry cron owns every attempt after this one.
	if err := h.processor.Processar(c.Request.Context(), evento); err != nil {
		log.Warn().Err(err).Str("evento_id", evento.ID.String()).
			Msg("webhook: processamento adiado para redelivery")
	}

	c.JSON(http.StatusOK, gin.H{"recebido": true})
}

// assinaturaValida checks the gateway's HMAC-SHA256 signature. The header
// carries "ts=...,v1=..."; the signed manifest is
// "id:{data.id};request-id:{x-request-id};ts:{ts};".
func assinaturaValida(secret, xSignature, xRequestID, dataID string) bool {
	var ts, v1 string
	for _, parte := range strings.Split(xSignature, ",") {
		kv := strings.SplitN(strings.TrimSpace(parte), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifesto := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, xRequestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifesto))
	esperada := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(esperada), []byte(v1))
}

func firstNonEmpty(valores ...string) string {
	for _, v := range valores {
		if v != "" {
			return v
		}
	}
	return ""
}
