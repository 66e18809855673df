package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"casalar/internal/infra"
	"casalar/internal/model"
	"casalar/internal/relogio"
	"casalar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LiquidacaoService is the single entry point for applying an approved
// gateway answer, whatever its origin: webhook, status poll or a synchronous
// approval at creation time. Every path funnels through Confirmar, so the
// idempotency guarantees live in exactly one place.
type LiquidacaoService interface {
	Confirmar(ctx context.Context, cobrancaID uuid.UUID, resposta *infra.GatewayResposta) error
}

type liquidacaoService struct {
	cobrancaRepo  repository.CobrancaRepository
	pagamentoRepo repository.PagamentoRepository
	pedidoRepo    repository.PedidoRepository
	faturaRepo    repository.FaturaRepository
	credito       CreditoService
	notificador   Notificador
	relogio       relogio.Relogio
}

func NewLiquidacaoService(
	cobrancaRepo repository.CobrancaRepository,
	pagamentoRepo repository.PagamentoRepository,
	pedidoRepo repository.PedidoRepository,
	faturaRepo repository.FaturaRepository,
	credito CreditoService,
	notificador Notificador,
	rel relogio.Relogio,
) LiquidacaoService {
	return &liquidacaoService{
		cobrancaRepo:  cobrancaRepo,
		pagamentoRepo: pagamentoRepo,
		pedidoRepo:    pedidoRepo,
		faturaRepo:    faturaRepo,
		credito:       credito,
		notificador:   notificador,
		relogio:       rel,
	}
}

// Confirmar settles a cobranca against a gateway answer. Safe to call any
// number of times with the same transaction id: the unique index on
// pagamentos.gateway_id plus the in-transaction lookup make replays no-ops.
//
// A non-approved answer only records the provider status and returns nil —
// callers do not treat a rejection as an error of this method.
func (s *liquidacaoService) Confirmar(ctx context.Context, cobrancaID uuid.UUID, resposta *infra.GatewayResposta) error {
	var faturaConsumoPaga *uuid.UUID
	var filhoIDRestauracao *uuid.UUID
	var pedidoLiquidado *uuid.UUID

	err := runTx(ctx, s.cobrancaRepo.DB(), func(tx *gorm.DB) error {
		cobranca, err := s.cobrancaRepo.LockByIDTx(ctx, tx, cobrancaID)
		if err != nil {
			return fmt.Errorf("cobrança %s não encontrada", cobrancaID)
		}

		// aprovada é terminal: uma resposta atrasada ou reenviada do gateway
		// nunca regride uma cobrança já liquidada.
		if cobranca.Status == "aprovada" {
			log.Info().Str("cobranca_id", cobrancaID.String()).Str("gateway_status", resposta.Status).
				Msg("liquidacao: cobrança já aprovada, ignorando resposta")
			return nil
		}

		if !resposta.Aprovada() {
			cobranca.Status = mapearStatusGateway(resposta.Status)
			detalhe := resposta.StatusDetalhe
			cobranca.StatusDetalhe = &detalhe
			if cobranca.GatewayID == nil {
				cobranca.GatewayID = &resposta.ID
			}
			return s.cobrancaRepo.UpdateTx(ctx, tx, cobranca)
		}

		// Replay short-circuit: the payment row for this transaction id
		// already exists, nothing left to apply.
		if _, err := s.pagamentoRepo.FindByGatewayIDTx(ctx, tx, resposta.ID); err == nil {
			log.Info().Str("cobranca_id", cobrancaID.String()).Str("gateway_id", resposta.ID).
				Msg("liquidacao: confirmação repetida, ignorando")
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		agora := s.relogio.Agora()
		cobranca.Status = "aprovada"
		detalhe := resposta.StatusDetalhe
		cobranca.StatusDetalhe = &detalhe
		cobranca.GatewayID = &resposta.ID
		cobranca.ValorPago = resposta.ValorTransacao
		cobranca.AprovadaEm = &agora
		if len(resposta.Raw) > 0 {
			raw := string(resposta.Raw)
			cobranca.RespostaRaw = &raw
		}
		if err := s.cobrancaRepo.UpdateTx(ctx, tx, cobranca); err != nil {
			return err
		}

		pagamento := &model.Pagamento{
			CobrancaID:   cobranca.ID,
			PedidoID:     cobranca.PedidoID,
			FaturaID:     cobranca.FaturaID,
			GatewayID:    resposta.ID,
			Metodo:       cobranca.Metodo,
			Valor:        resposta.ValorTransacao,
			ConfirmadoEm: agora,
		}
		if err := s.pagamentoRepo.CreateTx(ctx, tx, pagamento); err != nil {
			return err
		}

		switch {
		case cobranca.PedidoID != nil:
			pedidoLiquidado = cobranca.PedidoID
			return s.liquidarPedido(ctx, tx, *cobranca.PedidoID, agora)
		case cobranca.FaturaID != nil:
			quitada, filhoID, err := s.liquidarFatura(ctx, tx, *cobranca.FaturaID, pagamento, agora)
			if err != nil {
				return err
			}
			if quitada {
				faturaConsumoPaga = cobranca.FaturaID
				filhoIDRestauracao = &filhoID
			}
			return nil
		default:
			return fmt.Errorf("cobrança %s sem pedido nem fatura", cobranca.ID)
		}
	})
	if err != nil {
		return err
	}

	// Credit restoration runs after the settlement commits, in its own
	// transaction: a restoration failure must never unwind a confirmed
	// payment. It is surfaced loudly and fixed by hand.
	if faturaConsumoPaga != nil {
		if err := s.credito.Restaurar(ctx, *faturaConsumoPaga); err != nil {
			log.Error().Err(err).
				Str("fatura_id", faturaConsumoPaga.String()).
				Str("filho_id", filhoIDRestauracao.String()).
				Msg("liquidacao: CRITICO: fatura quitada mas restauração de crédito falhou")
		}
	}

	if pedidoLiquidado != nil {
		s.notificarPedido(ctx, *pedidoLiquidado)
	}
	return nil
}

// ── Pedido ───────────────────────────────────────────────────────────────────

func (s *liquidacaoService) liquidarPedido(ctx context.Context, tx *gorm.DB, pedidoID uuid.UUID, agora time.Time) error {
	pedido, err := s.pedidoRepo.LockByIDTx(ctx, tx, pedidoID)
	if err != nil {
		return err
	}
	if pedido.PagoEm != nil {
		return nil
	}

	// PDV sales hand the goods over at the counter; app orders go to pickup.
	if pedido.Origem == "pdv" {
		pedido.Status = "entregue"
	} else {
		pedido.Status = "pronto_para_retirada"
	}
	pedido.PagoEm = &agora
	pedido.AguardandoPagamento = false
	return s.pedidoRepo.UpdateTx(ctx, tx, pedido)
}

func (s *liquidacaoService) notificarPedido(ctx context.Context, pedidoID uuid.UUID) {
	pedido, err := s.pedidoRepo.FindByID(ctx, pedidoID)
	if err != nil || pedido.Filho == nil || pedido.Filho.Email == nil || *pedido.Filho.Email == "" {
		return
	}
	s.notificar(ctx, Notificacao{
		Destinatario:   *pedido.Filho.Email,
		Assunto:        "Pagamento confirmado",
		Corpo:          fmt.Sprintf("O pagamento do pedido %s foi confirmado.", pedido.ID),
		AtrasoSegundos: 15 + rand.Intn(45),
	})
}

// ── Fatura ───────────────────────────────────────────────────────────────────

// liquidarFatura applies a confirmed payment to the invoice balance.
// ValorPago is recomputed from the pagamentos table rather than incremented,
// so it stays correct even if a previous update was lost.
func (s *liquidacaoService) liquidarFatura(ctx context.Context, tx *gorm.DB, faturaID uuid.UUID, pagamento *model.Pagamento, agora time.Time) (quitada bool, filhoID uuid.UUID, err error) {
	fatura, err := s.faturaRepo.LockByIDTx(ctx, tx, faturaID)
	if err != nil {
		return false, uuid.Nil, err
	}

	anteriores, err := s.pagamentoRepo.SumConfirmadosPorFaturaTx(ctx, tx, fatura.ID, pagamento.ID)
	if err != nil {
		return false, uuid.Nil, err
	}
	fatura.ValorPago = anteriores.Add(pagamento.Valor)

	if fatura.EstaPaga() {
		fatura.Status = "paga"
	} else {
		fatura.Status = "parcial"
	}
	if err := s.faturaRepo.UpdateTx(ctx, tx, fatura); err != nil {
		return false, uuid.Nil, err
	}

	log.Info().Str("fatura", fatura.Numero).Str("status", fatura.Status).
		Str("valor_pago", fatura.ValorPago.StringFixed(2)).
		Msg("liquidacao: pagamento aplicado à fatura")

	quitada = fatura.Status == "paga" && fatura.Tipo == "consumo"
	return quitada, fatura.FilhoID, nil
}

func (s *liquidacaoService) notificar(ctx context.Context, n Notificacao) {
	if s.notificador == nil {
		return
	}
	if err := s.notificador.Enviar(ctx, n); err != nil {
		log.Warn().Err(err).Str("destinatario", n.Destinatario).
			Msg("liquidacao: falha ao enfileirar notificação")
	}
}
