package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"casalar/internal/calendario"
	"casalar/internal/model"
	"casalar/internal/relogio"
	"casalar/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// numeroMaxTentativas bounds the retry-on-unique-violation loop of the
// invoice number generator.
const numeroMaxTentativas = 3

type FaturamentoService interface {
	// GerarFaturasConsumo aggregates unbilled, settled orders into one consumo
	// invoice per filho for the period that closed before the current month.
	// Idempotent per filho+competencia: re-runs create nothing new.
	GerarFaturasConsumo(ctx context.Context) (int, error)
	// GerarFaturaAssinatura creates a flat recurring invoice for one filho.
	GerarFaturaAssinatura(ctx context.Context, filhoID uuid.UUID, valor decimal.Decimal) (*model.Fatura, error)
}

type faturamentoService struct {
	pedidoRepo  repository.PedidoRepository
	faturaRepo  repository.FaturaRepository
	filhoRepo   repository.FilhoRepository
	notificador Notificador
	relogio     relogio.Relogio
	prefixo     string
	diasUteis   int
}

func NewFaturamentoService(
	pedidoRepo repository.PedidoRepository,
	faturaRepo repository.FaturaRepository,
	filhoRepo repository.FilhoRepository,
	notificador Notificador,
	rel relogio.Relogio,
	prefixo string,
	diasUteisVencimento int,
) FaturamentoService {
	return &faturamentoService{
		pedidoRepo:  pedidoRepo,
		faturaRepo:  faturaRepo,
		filhoRepo:   filhoRepo,
		notificador: notificador,
		relogio:     rel,
		prefixo:     prefixo,
		diasUteis:   diasUteisVencimento,
	}
}

// cutoffCompetencia returns the aggregation cutoff — one second before the
// start of the current month — and the billed period in YYYYMM. Whatever day
// of the month the sweep runs, every order of the closed period qualifies.
func cutoffCompetencia(agora time.Time) (time.Time, string) {
	inicioMes := time.Date(agora.Year(), agora.Month(), 1, 0, 0, 0, 0, agora.Location())
	cutoff := inicioMes.Add(-time.Second)
	return cutoff, cutoff.Format("200601")
}

// ── GerarFaturasConsumo ───────────────────────────────────────────────────────
//  1. Select candidate orders outside any transaction (cheap snapshot)
//  2. Per filho: one transaction re-selecting the same orders FOR UPDATE,
//     skipping when the period is already billed
//  3. Notifications go out only after the transaction commits

func (s *faturamentoService) GerarFaturasConsumo(ctx context.Context) (int, error) {
	agora := s.relogio.Agora()
	cutoff, competencia := cutoffCompetencia(agora)

	candidatos, err := s.pedidoRepo.ListNaoFaturados(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("faturamento: listando pedidos: %w", err)
	}
	if len(candidatos) == 0 {
		return 0, nil
	}

	porFilho := make(map[uuid.UUID][]model.Pedido)
	for _, p := range candidatos {
		porFilho[*p.FilhoID] = append(porFilho[*p.FilhoID], p)
	}

	geradas := 0
	for filhoID := range porFilho {
		fatura, err := s.gerarFaturaFilho(ctx, filhoID, cutoff, competencia)
		if err != nil {
			log.Error().Err(err).Str("filho_id", filhoID.String()).
				Str("competencia", competencia).
				Msg("faturamento: falha ao gerar fatura do período")
			continue
		}
		if fatura == nil {
			continue // período já faturado
		}
		geradas++
		s.notificarFatura(ctx, filhoID, fatura)
	}
	return geradas, nil
}

func (s *faturamentoService) gerarFaturaFilho(ctx context.Context, filhoID uuid.UUID, cutoff time.Time, competencia string) (*model.Fatura, error) {
	filho, err := s.filhoRepo.FindByID(ctx, filhoID)
	if err != nil {
		return nil, fmt.Errorf("conta %s não encontrada", filhoID)
	}

	var fatura *model.Fatura
	txErr := runTx(ctx, s.faturaRepo.DB(), func(tx *gorm.DB) error {
		// Idempotency guard: one consumo invoice per filho+competencia.
		existe, err := s.faturaRepo.ExisteConsumoTx(ctx, tx, filhoID, competencia)
		if err != nil {
			return err
		}
		if existe {
			return nil
		}

		// Re-select the orders FOR UPDATE — a settlement racing this sweep
		// either commits before (and is included) or waits for our lock.
		pedidos, err := s.pedidoRepo.LockNaoFaturadosTx(ctx, tx, filhoID, cutoff)
		if err != nil {
			return err
		}
		if len(pedidos) == 0 {
			return nil
		}

		subtotal := decimal.Zero
		var itens []model.FaturaItem
		ids := make([]uuid.UUID, 0, len(pedidos))
		for _, p := range pedidos {
			subtotal = subtotal.Add(p.Total)
			ids = append(ids, p.ID)
			for _, item := range p.Itens {
				itens = append(itens, model.FaturaItem{
					PedidoID:      p.ID,
					ProdutoID:     item.ProdutoID,
					Descricao:     item.Descricao,
					Quantidade:    item.Quantidade,
					PrecoUnitario: item.PrecoUnitario,
					Subtotal:      item.Subtotal,
				})
			}
		}

		prefixo := fmt.Sprintf("%s-%d-%s-", s.prefixo, filho.Sequencial, competencia)
		nova := model.Fatura{
			FilhoID:     filhoID,
			Tipo:        "consumo",
			Competencia: competencia,
			Subtotal:    subtotal,
			ValorTotal:  subtotal,
			Status:      "pendente",
			Vencimento:  calendario.AdicionarDiasUteis(cutoff, s.diasUteis),
			Itens:       itens,
		}
		if err := s.criarComNumero(ctx, tx, &nova, prefixo); err != nil {
			return err
		}

		if err := s.pedidoRepo.MarcarFaturadosTx(ctx, tx, ids, nova.ID); err != nil {
			return err
		}
		fatura = &nova
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return fatura, nil
}

// criarComNumero assigns the next sequence suffix for the prefix and inserts.
// A concurrent writer racing to the same number trips the unique index on
// numero; the insert is then retried with a freshly derived sequence.
func (s *faturamentoService) criarComNumero(ctx context.Context, tx *gorm.DB, f *model.Fatura, prefixo string) error {
	var lastErr error
	for tentativa := 0; tentativa < numeroMaxTentativas; tentativa++ {
		seq, err := s.faturaRepo.MaiorSequencia(ctx, tx, prefixo)
		if err != nil {
			return err
		}
		f.Numero = fmt.Sprintf("%s%03d", prefixo, seq+1)
		err = s.faturaRepo.CreateTx(ctx, tx, f)
		if err == nil {
			return nil
		}
		if !ehViolacaoUnicidade(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("faturamento: esgotadas as tentativas de numeração %q: %w", prefixo, lastErr)
}

func ehViolacaoUnicidade(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}

// ── GerarFaturaAssinatura ─────────────────────────────────────────────────────
// Flat recurring fee; no order aggregation. Shares the business-day due-date
// policy with consumo invoices.

func (s *faturamentoService) GerarFaturaAssinatura(ctx context.Context, filhoID uuid.UUID, valor decimal.Decimal) (*model.Fatura, error) {
	agora := s.relogio.Agora()
	cutoff, competencia := cutoffCompetencia(agora)

	if _, err := s.filhoRepo.FindByID(ctx, filhoID); err != nil {
		return nil, fmt.Errorf("conta %s não encontrada", filhoID)
	}

	fatura := &model.Fatura{
		FilhoID:     filhoID,
		Tipo:        "assinatura",
		Competencia: competencia,
		Subtotal:    valor,
		ValorTotal:  valor,
		Status:      "pendente",
		Vencimento:  calendario.AdicionarDiasUteis(cutoff, s.diasUteis),
	}

	prefixo := fmt.Sprintf("%s-ASSIN-%s-", s.prefixo, competencia)
	txErr := runTx(ctx, s.faturaRepo.DB(), func(tx *gorm.DB) error {
		return s.criarComNumero(ctx, tx, fatura, prefixo)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.notificarFatura(ctx, filhoID, fatura)
	return fatura, nil
}

func (s *faturamentoService) notificarFatura(ctx context.Context, filhoID uuid.UUID, fatura *model.Fatura) {
	if s.notificador == nil {
		return
	}
	filho, err := s.filhoRepo.FindByID(ctx, filhoID)
	if err != nil || filho.Email == nil || *filho.Email == "" {
		return
	}
	n := Notificacao{
		Destinatario: *filho.Email,
		Assunto:      fmt.Sprintf("Fatura %s disponível", fatura.Numero),
		Corpo: fmt.Sprintf("Sua fatura %s no valor de R$ %s vence em %s.",
			fatura.Numero, fatura.ValorTotal.StringFixed(2), fatura.Vencimento.Format("02/01/2006")),
		AtrasoSegundos: 60 + rand.Intn(240),
	}
	if err := s.notificador.Enviar(ctx, n); err != nil {
		log.Warn().Err(err).Str("fatura", fatura.Numero).
			Msg("faturamento: falha ao enfileirar notificação de fatura")
	}
}
