package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casalar/internal/infra"
	"casalar/internal/model"
	"casalar/internal/relogio"
	"casalar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// AlvoCobranca identifies what a cobranca collects for: exactly one of
// PedidoID or FaturaID.
type AlvoCobranca struct {
	PedidoID *uuid.UUID
	FaturaID *uuid.UUID
}

func (a AlvoCobranca) valida() error {
	if (a.PedidoID == nil) == (a.FaturaID == nil) {
		return errors.New("a cobrança deve referenciar um pedido ou uma fatura, nunca ambos")
	}
	return nil
}

type CobrancaService interface {
	// CriarPix creates (or reuses) a PIX charge for the target. An existing
	// pending, non-expired PIX cobranca for the same target is returned
	// instead of creating a duplicate QR.
	CriarPix(ctx context.Context, alvo AlvoCobranca) (*model.Cobranca, error)
	// CriarCartao charges a tokenized card. metodo: cartao_credito | cartao_debito.
	CriarCartao(ctx context.Context, alvo AlvoCobranca, token, metodo string) (*model.Cobranca, error)
	// Retentar re-submits a cobranca stuck in "erro" while attempts remain.
	Retentar(ctx context.Context, cobrancaID uuid.UUID) (*model.Cobranca, error)
	// ConsultarStatus polls the gateway for a non-terminal cobranca; an
	// approved answer is routed through settlement, never applied locally.
	ConsultarStatus(ctx context.Context, cobrancaID uuid.UUID) (*model.Cobranca, error)
	// Cancelar is local-only for PIX (the provider has no PIX cancel);
	// card charges are cancelled on the provider first.
	Cancelar(ctx context.Context, cobrancaID uuid.UUID) error
}

type cobrancaService struct {
	cobrancaRepo repository.CobrancaRepository
	pedidoRepo   repository.PedidoRepository
	faturaRepo   repository.FaturaRepository
	gateway      infra.Gateway
	liquidacao   LiquidacaoService
	relogio      relogio.Relogio
	pixExpiracao time.Duration
}

func NewCobrancaService(
	cobrancaRepo repository.CobrancaRepository,
	pedidoRepo repository.PedidoRepository,
	faturaRepo repository.FaturaRepository,
	gateway infra.Gateway,
	liquidacao LiquidacaoService,
	rel relogio.Relogio,
	pixExpiracao time.Duration,
) CobrancaService {
	return &cobrancaService{
		cobrancaRepo: cobrancaRepo,
		pedidoRepo:   pedidoRepo,
		faturaRepo:   faturaRepo,
		gateway:      gateway,
		liquidacao:   liquidacao,
		relogio:      rel,
		pixExpiracao: pixExpiracao,
	}
}

// ── Criação ──────────────────────────────────────────────────────────────────

func (s *cobrancaService) CriarPix(ctx context.Context, alvo AlvoCobranca) (*model.Cobranca, error) {
	if err := alvo.valida(); err != nil {
		return nil, err
	}
	agora := s.relogio.Agora()

	// Reuse an open QR instead of stacking duplicates for the same target.
	if existente, err := s.cobrancaRepo.FindPixPendente(ctx, alvo.PedidoID, alvo.FaturaID, agora); err == nil && existente != nil {
		return existente, nil
	}

	valor, descricao, err := s.resolverAlvo(ctx, alvo)
	if err != nil {
		return nil, err
	}

	expira := agora.Add(s.pixExpiracao)
	cobranca := &model.Cobranca{
		PedidoID:          alvo.PedidoID,
		FaturaID:          alvo.FaturaID,
		Metodo:            "pix",
		Status:            "criada",
		Valor:             valor,
		ChaveIdempotencia: uuid.NewString(),
		ExpiraEm:          &expira,
	}
	if err := s.cobrancaRepo.Create(ctx, cobranca); err != nil {
		return nil, err
	}

	s.marcarAguardando(ctx, alvo)

	req := infra.GatewayRequisicao{
		Valor:             valor,
		Descricao:         descricao,
		Metodo:            "pix",
		ReferenciaExterna: cobranca.ChaveIdempotencia,
		ExpiraEm:          &expira,
	}
	return s.submeter(ctx, cobranca, req)
}

func (s *cobrancaService) CriarCartao(ctx context.Context, alvo AlvoCobranca, token, metodo string) (*model.Cobranca, error) {
	if err := alvo.valida(); err != nil {
		return nil, err
	}
	if metodo != "cartao_credito" && metodo != "cartao_debito" {
		return nil, fmt.Errorf("método de cartão inválido: %s", metodo)
	}

	valor, descricao, err := s.resolverAlvo(ctx, alvo)
	if err != nil {
		return nil, err
	}

	cobranca := &model.Cobranca{
		PedidoID:          alvo.PedidoID,
		FaturaID:          alvo.FaturaID,
		Metodo:            metodo,
		Status:            "criada",
		Valor:             valor,
		ChaveIdempotencia: uuid.NewString(),
	}
	if err := s.cobrancaRepo.Create(ctx, cobranca); err != nil {
		return nil, err
	}

	s.marcarAguardando(ctx, alvo)

	gatewayMetodo := "credit_card"
	if metodo == "cartao_debito" {
		gatewayMetodo = "debit_card"
	}
	req := infra.GatewayRequisicao{
		Valor:             valor,
		Descricao:         descricao,
		Metodo:            gatewayMetodo,
		TokenCartao:       token,
		ReferenciaExterna: cobranca.ChaveIdempotencia,
	}
	return s.submeter(ctx, cobranca, req)
}

func (s *cobrancaService) Retentar(ctx context.Context, cobrancaID uuid.UUID) (*model.Cobranca, error) {
	cobranca, err := s.cobrancaRepo.FindByID(ctx, cobrancaID)
	if err != nil {
		return nil, fmt.Errorf("cobrança %s não encontrada", cobrancaID)
	}
	if cobranca.Status != "erro" {
		return nil, fmt.Errorf("apenas cobranças em erro podem ser retentadas (status atual: %s)", cobranca.Status)
	}
	if cobranca.Tentativas >= cobranca.MaxTentativas {
		return nil, ErrCobrancaFinal
	}

	valor, descricao, err := s.resolverAlvo(ctx, AlvoCobranca{PedidoID: cobranca.PedidoID, FaturaID: cobranca.FaturaID})
	if err != nil {
		return nil, err
	}

	// A fresh idempotency key: this is a new logical attempt, not a network
	// retry of the previous one.
	cobranca.ChaveIdempotencia = uuid.NewString()

	gatewayMetodo := map[string]string{
		"pix": "pix", "cartao_credito": "credit_card", "cartao_debito": "debit_card",
	}[cobranca.Metodo]
	req := infra.GatewayRequisicao{
		Valor:             valor,
		Descricao:         descricao,
		Metodo:            gatewayMetodo,
		ReferenciaExterna: cobranca.ChaveIdempotencia,
		ExpiraEm:          cobranca.ExpiraEm,
	}
	return s.submeter(ctx, cobranca, req)
}

// submeter performs the single gateway call of a creation attempt and applies
// the resulting transition. The raw request and response are persisted
// verbatim before any state interpretation.
func (s *cobrancaService) submeter(ctx context.Context, cobranca *model.Cobranca, req infra.GatewayRequisicao) (*model.Cobranca, error) {
	if reqJSON, err := json.Marshal(req); err == nil {
		raw := string(reqJSON)
		cobranca.RequisicaoRaw = &raw
	}
	cobranca.Tentativas++

	resp, err := s.gateway.CriarPagamento(ctx, req)
	if err != nil {
		return s.aplicarFalhaGateway(ctx, cobranca, err)
	}

	raw := string(resp.Raw)
	cobranca.RespostaRaw = &raw
	cobranca.GatewayID = &resp.ID
	cobranca.PixCopiaECola = strPtrOuNil(resp.Pix.CopiaECola)
	cobranca.PixQRCode = strPtrOuNil(resp.Pix.QRCode)

	if resp.Aprovada() {
		// Synchronous immediate approval — settled through the same choke
		// point as webhooks and polls.
		cobranca.Status = "processando"
		if err := s.cobrancaRepo.Update(ctx, cobranca); err != nil {
			return nil, err
		}
		if err := s.liquidacao.Confirmar(ctx, cobranca.ID, resp); err != nil {
			return nil, err
		}
		return s.cobrancaRepo.FindByID(ctx, cobranca.ID)
	}

	cobranca.Status = mapearStatusGateway(resp.Status)
	detalhe := resp.StatusDetalhe
	cobranca.StatusDetalhe = &detalhe
	if err := s.cobrancaRepo.Update(ctx, cobranca); err != nil {
		return nil, err
	}
	return cobranca, nil
}

func (s *cobrancaService) aplicarFalhaGateway(ctx context.Context, cobranca *model.Cobranca, err error) (*model.Cobranca, error) {
	var recusa *infra.RecusaGateway
	if errors.As(err, &recusa) {
		cobranca.Status = "recusada"
		detalhe := recusa.Detalhe
		cobranca.StatusDetalhe = &detalhe
		if uerr := s.cobrancaRepo.Update(ctx, cobranca); uerr != nil {
			return nil, uerr
		}
		log.Warn().Str("cobranca_id", cobranca.ID.String()).Int("codigo", recusa.Codigo).
			Msg("cobranca: pagamento recusado pelo gateway")
		return cobranca, nil
	}

	// Transient failure — retryable while the attempt budget lasts.
	cobranca.Status = "erro"
	detalhe := "gateway indisponível"
	cobranca.StatusDetalhe = &detalhe
	if uerr := s.cobrancaRepo.Update(ctx, cobranca); uerr != nil {
		return nil, uerr
	}
	log.Error().Err(err).Str("cobranca_id", cobranca.ID.String()).
		Int("tentativas", cobranca.Tentativas).
		Msg("cobranca: falha transitória do gateway")
	return cobranca, nil
}

// ── Consulta / cancelamento ──────────────────────────────────────────────────

func (s *cobrancaService) ConsultarStatus(ctx context.Context, cobrancaID uuid.UUID) (*model.Cobranca, error) {
	cobranca, err := s.cobrancaRepo.FindByID(ctx, cobrancaID)
	if err != nil {
		return nil, fmt.Errorf("cobrança %s não encontrada", cobrancaID)
	}
	if cobranca.Terminal() || cobranca.GatewayID == nil {
		return cobranca, nil
	}

	resp, err := s.gateway.ConsultarPagamento(ctx, *cobranca.GatewayID)
	if err != nil {
		// A failed poll is not a state transition; the caller polls again.
		log.Warn().Err(err).Str("cobranca_id", cobrancaID.String()).
			Msg("cobranca: consulta ao gateway falhou")
		return cobranca, nil
	}

	// Every gateway answer is applied through settlement, which re-checks
	// the status under the row lock. A webhook and a poll landing at the
	// same time serialize there instead of overwriting each other.
	if err := s.liquidacao.Confirmar(ctx, cobranca.ID, resp); err != nil {
		return nil, err
	}
	return s.cobrancaRepo.FindByID(ctx, cobranca.ID)
}

func (s *cobrancaService) Cancelar(ctx context.Context, cobrancaID uuid.UUID) error {
	cobranca, err := s.cobrancaRepo.FindByID(ctx, cobrancaID)
	if err != nil {
		return fmt.Errorf("cobrança %s não encontrada", cobrancaID)
	}
	switch cobranca.Status {
	case "cancelada":
		return ErrCobrancaCancelada
	case "aprovada":
		return ErrCobrancaFinal
	}

	// PIX has no remote cancel — the QR simply expires on the provider side.
	if cobranca.Metodo != "pix" && cobranca.GatewayID != nil {
		if err := s.gateway.CancelarPagamento(ctx, *cobranca.GatewayID); err != nil {
			return fmt.Errorf("cancelamento no gateway falhou: %w", err)
		}
	}

	cobranca.Status = "cancelada"
	return s.cobrancaRepo.Update(ctx, cobranca)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *cobrancaService) resolverAlvo(ctx context.Context, alvo AlvoCobranca) (decimal.Decimal, string, error) {
	if alvo.PedidoID != nil {
		pedido, err := s.pedidoRepo.FindByID(ctx, *alvo.PedidoID)
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("pedido %s não encontrado", *alvo.PedidoID)
		}
		if pedido.PagoEm != nil {
			return decimal.Zero, "", ErrPedidoJaPago
		}
		if pedido.Status == "cancelado" {
			return decimal.Zero, "", errors.New("pedido cancelado não pode ser cobrado")
		}
		return pedido.Total, fmt.Sprintf("Pedido %s", pedido.ID), nil
	}

	fatura, err := s.faturaRepo.FindByID(ctx, *alvo.FaturaID)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("fatura %s não encontrada", *alvo.FaturaID)
	}
	if fatura.Status == "cancelada" {
		return decimal.Zero, "", errors.New("fatura cancelada não pode ser cobrada")
	}
	if fatura.EstaPaga() {
		return decimal.Zero, "", ErrFaturaJaPaga
	}
	// Partial payments: charge whatever is still open.
	restante := fatura.ValorTotal.Sub(fatura.ValorPago)
	return restante, fmt.Sprintf("Fatura %s", fatura.Numero), nil
}

func (s *cobrancaService) marcarAguardando(ctx context.Context, alvo AlvoCobranca) {
	if alvo.PedidoID == nil {
		return
	}
	pedido, err := s.pedidoRepo.FindByID(ctx, *alvo.PedidoID)
	if err != nil {
		return
	}
	pedido.AguardandoPagamento = true
	if err := s.pedidoRepo.UpdateTx(ctx, s.pedidoRepo.DB(), pedido); err != nil {
		log.Warn().Err(err).Str("pedido_id", pedido.ID.String()).
			Msg("cobranca: falha ao marcar pedido como aguardando pagamento")
	}
}

func mapearStatusGateway(status string) string {
	switch status {
	case "approved":
		return "aprovada"
	case "pending":
		return "pendente"
	case "in_process", "in_mediation":
		return "processando"
	case "rejected":
		return "recusada"
	case "cancelled":
		return "cancelada"
	default:
		return "pendente"
	}
}

func strPtrOuNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
