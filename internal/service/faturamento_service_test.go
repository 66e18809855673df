package service

import (
	"context"
	"testing"
	"time"

	"casalar/internal/calendario"
	"casalar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pedidoFaturavel(filhoID uuid.UUID, total float64, criadoEm time.Time) *model.Pedido {
	return &model.Pedido{
		ID:        uuid.New(),
		FilhoID:   &filhoID,
		Origem:    "app",
		Status:    "pago",
		Total:     decimal.NewFromFloat(total),
		CreatedAt: criadoEm,
	}
}

func TestGerarFaturasConsumoAgregaPorFilho(t *testing.T) {
	// Clock fixed at 2025-09-15: the billed period is August 2025.
	agosto := time.Date(2025, 8, 10, 14, 0, 0, 0, time.UTC)
	setembro := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)

	filhoA := filhoTeste(500, 0)
	filhoB := filhoTeste(500, 0)
	filhoB.Sequencial = 34

	pA1 := pedidoFaturavel(filhoA.ID, 30, agosto)
	pA1.Itens = []model.PedidoItem{{
		ID: uuid.New(), PedidoID: pA1.ID, ProdutoID: uuid.New(),
		Descricao: "Sabonete", Quantidade: 2,
		PrecoUnitario: decimal.NewFromInt(15), Subtotal: decimal.NewFromInt(30),
	}}
	pA2 := pedidoFaturavel(filhoA.ID, 20, agosto.Add(48*time.Hour))
	pB1 := pedidoFaturavel(filhoB.ID, 15, agosto)
	foraDoPeriodo := pedidoFaturavel(filhoA.ID, 99, setembro)
	naoLiquidado := pedidoFaturavel(filhoB.ID, 50, agosto)
	naoLiquidado.Status = "pendente"

	filhos := newMemFilhoRepo(filhoA, filhoB)
	pedidos := newMemPedidoRepo(pA1, pA2, pB1, foraDoPeriodo, naoLiquidado)
	faturas := newMemFaturaRepo()
	notificador := &stubNotificador{}
	svc := NewFaturamentoService(pedidos, faturas, filhos, notificador, relogioTeste, "FAT", 5)

	geradas, err := svc.GerarFaturasConsumo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, geradas)

	deA, _ := faturas.ListByFilho(context.Background(), filhoA.ID)
	require.Len(t, deA, 1)
	assert.Equal(t, "FAT-12-202508-001", deA[0].Numero)
	assert.Equal(t, "202508", deA[0].Competencia)
	assert.True(t, deA[0].Subtotal.Equal(decimal.NewFromInt(50)))
	assert.True(t, deA[0].ValorTotal.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "pendente", deA[0].Status)

	cutoff := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, calendario.AdicionarDiasUteis(cutoff, 5), deA[0].Vencimento)

	deB, _ := faturas.ListByFilho(context.Background(), filhoB.ID)
	require.Len(t, deB, 1)
	assert.Equal(t, "FAT-34-202508-001", deB[0].Numero)
	assert.True(t, deB[0].Subtotal.Equal(decimal.NewFromInt(15)))

	// Billed orders are marked; out-of-period and unsettled ones stay open.
	faturado, _ := pedidos.FindByID(context.Background(), pA1.ID)
	assert.True(t, faturado.Faturado)
	require.NotNil(t, faturado.FaturaID)
	assert.Equal(t, deA[0].ID, *faturado.FaturaID)

	intocado, _ := pedidos.FindByID(context.Background(), foraDoPeriodo.ID)
	assert.False(t, intocado.Faturado)
	aberto, _ := pedidos.FindByID(context.Background(), naoLiquidado.ID)
	assert.False(t, aberto.Faturado)

	assert.Len(t, notificador.enviadas, 2)
}

func TestGerarFaturasConsumoEhIdempotentePorCompetencia(t *testing.T) {
	filho := filhoTeste(500, 0)
	pedido := pedidoFaturavel(filho.ID, 40, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC))

	filhos := newMemFilhoRepo(filho)
	pedidos := newMemPedidoRepo(pedido)
	faturas := newMemFaturaRepo()
	svc := NewFaturamentoService(pedidos, faturas, filhos, &stubNotificador{}, relogioTeste, "FAT", 5)

	primeira, err := svc.GerarFaturasConsumo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, primeira)

	segunda, err := svc.GerarFaturasConsumo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, segunda)

	tudo, _ := faturas.ListByFilho(context.Background(), filho.ID)
	assert.Len(t, tudo, 1)
}

func TestGerarFaturasConsumoSemCandidatos(t *testing.T) {
	svc := NewFaturamentoService(newMemPedidoRepo(), newMemFaturaRepo(), newMemFilhoRepo(), &stubNotificador{}, relogioTeste, "FAT", 5)

	geradas, err := svc.GerarFaturasConsumo(context.Background())
	require.NoError(t, err)
	assert.Zero(t, geradas)
}

func TestGerarFaturaAssinaturaNumeraSequencialmente(t *testing.T) {
	filho := filhoTeste(500, 0)
	outro := filhoTeste(500, 0)

	faturas := newMemFaturaRepo()
	svc := NewFaturamentoService(newMemPedidoRepo(), faturas, newMemFilhoRepo(filho, outro), &stubNotificador{}, relogioTeste, "FAT", 5)

	primeira, err := svc.GerarFaturaAssinatura(context.Background(), filho.ID, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.Equal(t, "FAT-ASSIN-202508-001", primeira.Numero)
	assert.Equal(t, "assinatura", primeira.Tipo)
	assert.True(t, primeira.ValorTotal.Equal(decimal.NewFromInt(150)))

	segunda, err := svc.GerarFaturaAssinatura(context.Background(), outro.ID, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.Equal(t, "FAT-ASSIN-202508-002", segunda.Numero)
}

func TestCutoffCompetenciaViradaDeAno(t *testing.T) {
	cutoff, competencia := cutoffCompetencia(time.Date(2026, 1, 3, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "202512", competencia)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), cutoff)
}
