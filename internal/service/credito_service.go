package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"casalar/internal/model"
	"casalar/internal/relogio"
	"casalar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreditoService interface {
	// Consumir debits the filho's revolving limit for a pedido and marks it
	// settled, all inside one transaction under the filho row lock.
	Consumir(ctx context.Context, pedidoID uuid.UUID) error
	// Restaurar zeroes consumed credit once a consumo invoice is fully paid.
	// Safe to call speculatively: no-ops (with a log line) otherwise.
	Restaurar(ctx context.Context, faturaID uuid.UUID) error
	Extrato(ctx context.Context, filhoID uuid.UUID) ([]model.TransacaoCredito, error)
}

type creditoService struct {
	filhoRepo     repository.FilhoRepository
	pedidoRepo    repository.PedidoRepository
	faturaRepo    repository.FaturaRepository
	transacaoRepo repository.TransacaoRepository
	notificador   Notificador
	relogio       relogio.Relogio
}

func NewCreditoService(
	filhoRepo repository.FilhoRepository,
	pedidoRepo repository.PedidoRepository,
	faturaRepo repository.FaturaRepository,
	transacaoRepo repository.TransacaoRepository,
	notificador Notificador,
	rel relogio.Relogio,
) CreditoService {
	return &creditoService{
		filhoRepo:     filhoRepo,
		pedidoRepo:    pedidoRepo,
		faturaRepo:    faturaRepo,
		transacaoRepo: transacaoRepo,
		notificador:   notificador,
		relogio:       rel,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Consumir ──────────────────────────────────────────────────────────────────
// Validation happens under the filho row lock so two concurrent orders cannot
// both pass the available-credit check.

func (s *creditoService) Consumir(ctx context.Context, pedidoID uuid.UUID) error {
	pedido, err := s.pedidoRepo.FindByID(ctx, pedidoID)
	if err != nil {
		return fmt.Errorf("pedido %s não encontrado", pedidoID)
	}
	if pedido.FilhoID == nil {
		return errors.New("pedido sem conta vinculada não pode consumir crédito")
	}
	if pedido.PagoEm != nil {
		return ErrPedidoJaPago
	}

	var filho *model.Filho
	txErr := runTx(ctx, s.filhoRepo.DB(), func(tx *gorm.DB) error {
		var err error
		filho, err = s.filhoRepo.LockByIDTx(ctx, tx, *pedido.FilhoID)
		if err != nil {
			return fmt.Errorf("conta %s não encontrada", *pedido.FilhoID)
		}

		// Re-read the pedido under its own lock: the snapshot above is
		// pre-transaction, and a concurrent Consumir for the same pedido
		// may have debited it while we waited on the filho lock.
		pedido, err = s.pedidoRepo.LockByIDTx(ctx, tx, pedidoID)
		if err != nil {
			return fmt.Errorf("pedido %s não encontrado", pedidoID)
		}
		if pedido.PagoEm != nil {
			return ErrPedidoJaPago
		}

		if filho.Status != "ativo" {
			return ErrFilhoInativo
		}
		if filho.BloqueadoPorDivida {
			motivo := ""
			if filho.MotivoBloqueio != nil {
				motivo = *filho.MotivoBloqueio
			}
			return &ErrFilhoBloqueado{Motivo: motivo}
		}

		disponivel := filho.CreditoDisponivel()
		if pedido.Total.GreaterThan(disponivel) {
			return &ErrCreditoInsuficiente{
				Necessario: pedido.Total,
				Disponivel: disponivel,
				Faltante:   pedido.Total.Sub(disponivel),
			}
		}

		saldoAnterior := filho.CreditoUtilizado
		filho.CreditoUtilizado = filho.CreditoUtilizado.Add(pedido.Total)
		if err := s.filhoRepo.UpdateTx(ctx, tx, filho); err != nil {
			return err
		}

		agora := s.relogio.Agora()
		pedido.Status = "pago"
		pedido.MetodoPagamento = "credito_interno"
		pedido.PagoEm = &agora
		if err := s.pedidoRepo.UpdateTx(ctx, tx, pedido); err != nil {
			return err
		}

		pedidoRef := pedido.ID
		return s.transacaoRepo.CreateTx(ctx, tx, &model.TransacaoCredito{
			FilhoID:        filho.ID,
			Tipo:           "consumo",
			Valor:          pedido.Total,
			SaldoAnterior:  saldoAnterior,
			SaldoPosterior: filho.CreditoUtilizado,
			Descricao:      fmt.Sprintf("Consumo pedido %s", pedido.ID),
			PedidoID:       &pedidoRef,
		})
	})
	if txErr != nil {
		return txErr
	}

	// Best-effort notification — failure must never roll back the debit.
	s.notificarConsumo(ctx, filho, pedido)
	return nil
}

func (s *creditoService) notificarConsumo(ctx context.Context, filho *model.Filho, pedido *model.Pedido) {
	if s.notificador == nil || filho.Email == nil || *filho.Email == "" {
		return
	}
	n := Notificacao{
		Destinatario:   *filho.Email,
		Assunto:        "Compra registrada na sua conta",
		Corpo:          fmt.Sprintf("Sua compra de R$ %s foi registrada no crédito da casa.", pedido.Total.StringFixed(2)),
		AtrasoSegundos: 30 + rand.Intn(90),
	}
	if err := s.notificador.Enviar(ctx, n); err != nil {
		log.Warn().Err(err).Str("filho_id", filho.ID.String()).Msg("credito: falha ao enfileirar notificação de consumo")
	}
}

// ── Restaurar ─────────────────────────────────────────────────────────────────

func (s *creditoService) Restaurar(ctx context.Context, faturaID uuid.UUID) error {
	fatura, err := s.faturaRepo.FindByID(ctx, faturaID)
	if err != nil {
		return fmt.Errorf("fatura %s não encontrada", faturaID)
	}

	if fatura.Tipo != "consumo" {
		log.Info().Str("fatura", fatura.Numero).Str("tipo", fatura.Tipo).
			Msg("credito: restauração ignorada — fatura não é de consumo")
		return nil
	}
	if !fatura.EstaPaga() {
		log.Info().Str("fatura", fatura.Numero).
			Str("valor_pago", fatura.ValorPago.StringFixed(2)).
			Str("valor_total", fatura.ValorTotal.StringFixed(2)).
			Msg("credito: restauração ignorada — fatura não está quitada")
		return nil
	}

	return runTx(ctx, s.filhoRepo.DB(), func(tx *gorm.DB) error {
		filho, err := s.filhoRepo.LockByIDTx(ctx, tx, fatura.FilhoID)
		if err != nil {
			return fmt.Errorf("conta %s não encontrada", fatura.FilhoID)
		}

		saldoAnterior := filho.CreditoUtilizado
		if saldoAnterior.IsZero() && !filho.BloqueadoPorDivida {
			// already restored — calling again is a no-op
			return nil
		}

		filho.CreditoUtilizado = decimal.Zero
		filho.BloqueadoPorDivida = false
		filho.MotivoBloqueio = nil
		if err := s.filhoRepo.UpdateTx(ctx, tx, filho); err != nil {
			return err
		}

		faturaRef := fatura.ID
		return s.transacaoRepo.CreateTx(ctx, tx, &model.TransacaoCredito{
			FilhoID:        filho.ID,
			Tipo:           "restauracao",
			Valor:          saldoAnterior,
			SaldoAnterior:  saldoAnterior,
			SaldoPosterior: decimal.Zero,
			Descricao:      fmt.Sprintf("Restauração pela quitação da fatura %s", fatura.Numero),
			FaturaID:       &faturaRef,
		})
	})
}

func (s *creditoService) Extrato(ctx context.Context, filhoID uuid.UUID) ([]model.TransacaoCredito, error) {
	return s.transacaoRepo.ListByFilho(ctx, filhoID)
}
