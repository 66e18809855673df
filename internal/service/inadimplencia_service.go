package service

import (
	"context"
	"fmt"
	"time"

	"casalar/internal/relogio"
	"casalar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InadimplenciaService runs the daily delinquency sweep: late fees and
// interest on overdue invoices, then account blocking/unblocking by the
// overdue-invoice threshold.
type InadimplenciaService interface {
	// AplicarEncargos marks overdue invoices "vencida", applies the one-time
	// late fee and recomputes daily interest. Returns how many invoices
	// were touched.
	AplicarEncargos(ctx context.Context) (int, error)
	// AtualizarBloqueios blocks filhos at or above the overdue threshold and
	// unblocks those back at zero. Run after AplicarEncargos.
	AtualizarBloqueios(ctx context.Context) error
}

type inadimplenciaService struct {
	faturaRepo repository.FaturaRepository
	filhoRepo  repository.FilhoRepository
	relogio    relogio.Relogio

	multaPct    decimal.Decimal // one-time, % of subtotal
	jurosDiaPct decimal.Decimal // per overdue day, % of subtotal
	limite      int             // overdue invoices that trigger a block
}

func NewInadimplenciaService(
	faturaRepo repository.FaturaRepository,
	filhoRepo repository.FilhoRepository,
	rel relogio.Relogio,
	multaPct, jurosDiaPct float64,
	limite int,
) InadimplenciaService {
	return &inadimplenciaService{
		faturaRepo:  faturaRepo,
		filhoRepo:   filhoRepo,
		relogio:     rel,
		multaPct:    decimal.NewFromFloat(multaPct),
		jurosDiaPct: decimal.NewFromFloat(jurosDiaPct),
		limite:      limite,
	}
}

// ── Encargos ─────────────────────────────────────────────────────────────────

func (s *inadimplenciaService) AplicarEncargos(ctx context.Context) (int, error) {
	hoje := truncarDia(s.relogio.Agora())
	vencidas, err := s.faturaRepo.ListVencidasEmAberto(ctx, hoje)
	if err != nil {
		return 0, fmt.Errorf("listar faturas vencidas: %w", err)
	}

	var aplicadas int
	for i := range vencidas {
		if err := s.aplicarEncargosFatura(ctx, vencidas[i].ID, hoje); err != nil {
			log.Error().Err(err).Str("fatura_id", vencidas[i].ID.String()).
				Msg("inadimplencia: falha ao aplicar encargos")
			continue
		}
		aplicadas++
	}
	if aplicadas > 0 {
		log.Info().Int("faturas", aplicadas).Msg("inadimplencia: encargos aplicados")
	}
	return aplicadas, nil
}

// aplicarEncargosFatura recomputes charges under a row lock so a concurrent
// settlement can never interleave with the balance update.
//
// multa  = multaPct%    × subtotal, applied once
// juros  = jurosDiaPct% × subtotal × dias de atraso, recomputed daily
// total  = max(0, subtotal − desconto + multa + juros)
func (s *inadimplenciaService) aplicarEncargosFatura(ctx context.Context, faturaID uuid.UUID, hoje time.Time) error {
	return runTx(ctx, s.faturaRepo.DB(), func(tx *gorm.DB) error {
		fatura, err := s.faturaRepo.LockByIDTx(ctx, tx, faturaID)
		if err != nil {
			return err
		}
		// Settled in the meantime — nothing to charge.
		if fatura.Status == "paga" || fatura.Status == "cancelada" {
			return nil
		}

		dias := diasDeAtraso(fatura.Vencimento, hoje)
		if dias <= 0 {
			return nil
		}

		cem := decimal.NewFromInt(100)
		if !fatura.MultaAplicada {
			fatura.Multa = fatura.Subtotal.Mul(s.multaPct).Div(cem).Round(2)
			fatura.MultaAplicada = true
		}
		fatura.Juros = fatura.Subtotal.Mul(s.jurosDiaPct).Div(cem).
			Mul(decimal.NewFromInt(int64(dias))).Round(2)

		total := fatura.Subtotal.Sub(fatura.Desconto).Add(fatura.Multa).Add(fatura.Juros)
		if total.IsNegative() {
			total = decimal.Zero
		}
		fatura.ValorTotal = total
		fatura.Status = "vencida"

		return s.faturaRepo.UpdateTx(ctx, tx, fatura)
	})
}

// ── Bloqueios ────────────────────────────────────────────────────────────────

func (s *inadimplenciaService) AtualizarBloqueios(ctx context.Context) error {
	vencidasPorFilho, err := s.faturaRepo.ContarVencidasPorFilho(ctx)
	if err != nil {
		return fmt.Errorf("contar faturas vencidas: %w", err)
	}

	for filhoID, total := range vencidasPorFilho {
		if total < int64(s.limite) {
			continue
		}
		motivo := fmt.Sprintf("%d faturas vencidas em aberto", total)
		if err := s.filhoRepo.AtualizarBloqueio(ctx, filhoID, true, &motivo); err != nil {
			log.Error().Err(err).Str("filho_id", filhoID.String()).
				Msg("inadimplencia: falha ao bloquear filho")
			continue
		}
		log.Warn().Str("filho_id", filhoID.String()).Int64("vencidas", total).
			Msg("inadimplencia: filho bloqueado por dívida")
	}

	// Unblock anyone whose overdue count dropped to zero.
	bloqueados, err := s.filhoRepo.ListBloqueadosPorDivida(ctx)
	if err != nil {
		return fmt.Errorf("listar filhos bloqueados: %w", err)
	}
	for i := range bloqueados {
		if vencidasPorFilho[bloqueados[i].ID] > 0 {
			continue
		}
		if err := s.filhoRepo.AtualizarBloqueio(ctx, bloqueados[i].ID, false, nil); err != nil {
			log.Error().Err(err).Str("filho_id", bloqueados[i].ID.String()).
				Msg("inadimplencia: falha ao desbloquear filho")
			continue
		}
		log.Info().Str("filho_id", bloqueados[i].ID.String()).
			Msg("inadimplencia: filho desbloqueado")
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func truncarDia(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func diasDeAtraso(vencimento, hoje time.Time) int {
	return int(hoje.Sub(truncarDia(vencimento)).Hours() / 24)
}
