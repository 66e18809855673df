package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"casalar/internal/infra"
	"casalar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repositories for unit tests. All Tx methods receive the nil *gorm.DB
// that runTx hands out when no database is attached.

// ── filhos ───────────────────────────────────────────────────────────────────

type memFilhoRepo struct {
	filhos map[uuid.UUID]*model.Filho
}

func newMemFilhoRepo(filhos ...*model.Filho) *memFilhoRepo {
	r := &memFilhoRepo{filhos: map[uuid.UUID]*model.Filho{}}
	for _, f := range filhos {
		r.filhos[f.ID] = f
	}
	return r
}

func (r *memFilhoRepo) DB() *gorm.DB { return nil }

func (r *memFilhoRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Filho, error) {
	f, ok := r.filhos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *memFilhoRepo) LockByIDTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Filho, error) {
	return r.FindByID(ctx, id)
}

func (r *memFilhoRepo) UpdateTx(_ context.Context, _ *gorm.DB, f *model.Filho) error {
	cp := *f
	r.filhos[f.ID] = &cp
	return nil
}

func (r *memFilhoRepo) ListBloqueadosPorDivida(_ context.Context) ([]model.Filho, error) {
	var out []model.Filho
	for _, f := range r.filhos {
		if f.BloqueadoPorDivida {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *memFilhoRepo) AtualizarBloqueio(_ context.Context, id uuid.UUID, bloqueado bool, motivo *string) error {
	f, ok := r.filhos[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.BloqueadoPorDivida = bloqueado
	f.MotivoBloqueio = motivo
	return nil
}

// ── pedidos ──────────────────────────────────────────────────────────────────

type memPedidoRepo struct {
	pedidos map[uuid.UUID]*model.Pedido
}

func newMemPedidoRepo(pedidos ...*model.Pedido) *memPedidoRepo {
	r := &memPedidoRepo{pedidos: map[uuid.UUID]*model.Pedido{}}
	for _, p := range pedidos {
		r.pedidos[p.ID] = p
	}
	return r
}

func (r *memPedidoRepo) DB() *gorm.DB { return nil }

func (r *memPedidoRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Pedido, error) {
	p, ok := r.pedidos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPedidoRepo) LockByIDTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Pedido, error) {
	return r.FindByID(ctx, id)
}

func (r *memPedidoRepo) UpdateTx(_ context.Context, _ *gorm.DB, p *model.Pedido) error {
	cp := *p
	r.pedidos[p.ID] = &cp
	return nil
}

func (r *memPedidoRepo) naoFaturados(cutoff time.Time) []model.Pedido {
	var out []model.Pedido
	for _, p := range r.pedidos {
		if p.Faturado || p.FilhoID == nil {
			continue
		}
		if p.Status != "pago" && p.Status != "concluido" {
			continue
		}
		if p.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, *p)
	}
	return out
}

func (r *memPedidoRepo) ListNaoFaturados(_ context.Context, cutoff time.Time) ([]model.Pedido, error) {
	return r.naoFaturados(cutoff), nil
}

func (r *memPedidoRepo) LockNaoFaturadosTx(_ context.Context, _ *gorm.DB, filhoID uuid.UUID, cutoff time.Time) ([]model.Pedido, error) {
	var out []model.Pedido
	for _, p := range r.naoFaturados(cutoff) {
		if *p.FilhoID == filhoID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPedidoRepo) MarcarFaturadosTx(_ context.Context, _ *gorm.DB, ids []uuid.UUID, faturaID uuid.UUID) error {
	for _, id := range ids {
		if p, ok := r.pedidos[id]; ok {
			p.Faturado = true
			p.FaturaID = &faturaID
		}
	}
	return nil
}

// ── faturas ──────────────────────────────────────────────────────────────────

type memFaturaRepo struct {
	faturas map[uuid.UUID]*model.Fatura
}

func newMemFaturaRepo(faturas ...*model.Fatura) *memFaturaRepo {
	r := &memFaturaRepo{faturas: map[uuid.UUID]*model.Fatura{}}
	for _, f := range faturas {
		r.faturas[f.ID] = f
	}
	return r
}

func (r *memFaturaRepo) DB() *gorm.DB { return nil }

func (r *memFaturaRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Fatura, error) {
	f, ok := r.faturas[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *memFaturaRepo) LockByIDTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Fatura, error) {
	return r.FindByID(ctx, id)
}

func (r *memFaturaRepo) ExisteConsumoTx(_ context.Context, _ *gorm.DB, filhoID uuid.UUID, competencia string) (bool, error) {
	for _, f := range r.faturas {
		if f.FilhoID == filhoID && f.Competencia == competencia && f.Tipo == "consumo" && f.Status != "cancelada" {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFaturaRepo) CreateTx(_ context.Context, _ *gorm.DB, f *model.Fatura) error {
	for _, existente := range r.faturas {
		if existente.Numero == f.Numero {
			return gorm.ErrDuplicatedKey
		}
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	cp := *f
	r.faturas[f.ID] = &cp
	return nil
}

func (r *memFaturaRepo) Update(_ context.Context, f *model.Fatura) error {
	cp := *f
	r.faturas[f.ID] = &cp
	return nil
}

func (r *memFaturaRepo) UpdateTx(ctx context.Context, _ *gorm.DB, f *model.Fatura) error {
	return r.Update(ctx, f)
}

func (r *memFaturaRepo) MaiorSequencia(_ context.Context, _ *gorm.DB, prefixo string) (int, error) {
	max := 0
	for _, f := range r.faturas {
		if !strings.HasPrefix(f.Numero, prefixo) {
			continue
		}
		partes := strings.Split(f.Numero, "-")
		n, err := strconv.Atoi(partes[len(partes)-1])
		if err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func (r *memFaturaRepo) ListVencidasEmAberto(_ context.Context, hoje time.Time) ([]model.Fatura, error) {
	var out []model.Fatura
	for _, f := range r.faturas {
		if f.Vencimento.Before(hoje) && f.Status != "paga" && f.Status != "cancelada" {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *memFaturaRepo) ContarVencidasPorFilho(_ context.Context) (map[uuid.UUID]int64, error) {
	out := map[uuid.UUID]int64{}
	for _, f := range r.faturas {
		if f.Status == "vencida" {
			out[f.FilhoID]++
		}
	}
	return out, nil
}

func (r *memFaturaRepo) ListByFilho(_ context.Context, filhoID uuid.UUID) ([]model.Fatura, error) {
	var out []model.Fatura
	for _, f := range r.faturas {
		if f.FilhoID == filhoID {
			out = append(out, *f)
		}
	}
	return out, nil
}

// ── cobrancas ────────────────────────────────────────────────────────────────

type memCobrancaRepo struct {
	cobrancas map[uuid.UUID]*model.Cobranca
}

func newMemCobrancaRepo(cobrancas ...*model.Cobranca) *memCobrancaRepo {
	r := &memCobrancaRepo{cobrancas: map[uuid.UUID]*model.Cobranca{}}
	for _, c := range cobrancas {
		r.cobrancas[c.ID] = c
	}
	return r
}

func (r *memCobrancaRepo) DB() *gorm.DB { return nil }

func (r *memCobrancaRepo) Create(_ context.Context, c *model.Cobranca) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.MaxTentativas == 0 {
		c.MaxTentativas = 3
	}
	cp := *c
	r.cobrancas[c.ID] = &cp
	return nil
}

func (r *memCobrancaRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Cobranca, error) {
	c, ok := r.cobrancas[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCobrancaRepo) FindByGatewayID(_ context.Context, gatewayID string) (*model.Cobranca, error) {
	for _, c := range r.cobrancas {
		if c.GatewayID != nil && *c.GatewayID == gatewayID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCobrancaRepo) LockByIDTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Cobranca, error) {
	return r.FindByID(ctx, id)
}

func (r *memCobrancaRepo) Update(_ context.Context, c *model.Cobranca) error {
	cp := *c
	r.cobrancas[c.ID] = &cp
	return nil
}

func (r *memCobrancaRepo) UpdateTx(ctx context.Context, _ *gorm.DB, c *model.Cobranca) error {
	return r.Update(ctx, c)
}

func (r *memCobrancaRepo) FindPixPendente(_ context.Context, pedidoID, faturaID *uuid.UUID, agora time.Time) (*model.Cobranca, error) {
	for _, c := range r.cobrancas {
		if c.Metodo != "pix" || (c.Status != "criada" && c.Status != "pendente") {
			continue
		}
		if c.Expirada(agora) {
			continue
		}
		if pedidoID != nil && c.PedidoID != nil && *c.PedidoID == *pedidoID {
			cp := *c
			return &cp, nil
		}
		if faturaID != nil && c.FaturaID != nil && *c.FaturaID == *faturaID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── pagamentos ───────────────────────────────────────────────────────────────

type memPagamentoRepo struct {
	pagamentos map[uuid.UUID]*model.Pagamento
}

func newMemPagamentoRepo() *memPagamentoRepo {
	return &memPagamentoRepo{pagamentos: map[uuid.UUID]*model.Pagamento{}}
}

func (r *memPagamentoRepo) CreateTx(_ context.Context, _ *gorm.DB, p *model.Pagamento) error {
	for _, existente := range r.pagamentos {
		if existente.GatewayID == p.GatewayID {
			return gorm.ErrDuplicatedKey
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.pagamentos[p.ID] = &cp
	return nil
}

func (r *memPagamentoRepo) FindByGatewayIDTx(_ context.Context, _ *gorm.DB, gatewayID string) (*model.Pagamento, error) {
	for _, p := range r.pagamentos {
		if p.GatewayID == gatewayID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPagamentoRepo) SumConfirmadosPorFaturaTx(_ context.Context, _ *gorm.DB, faturaID uuid.UUID, exceto uuid.UUID) (decimal.Decimal, error) {
	soma := decimal.Zero
	for _, p := range r.pagamentos {
		if p.FaturaID != nil && *p.FaturaID == faturaID && p.ID != exceto {
			soma = soma.Add(p.Valor)
		}
	}
	return soma, nil
}

func (r *memPagamentoRepo) ListByFatura(_ context.Context, faturaID uuid.UUID) ([]model.Pagamento, error) {
	var out []model.Pagamento
	for _, p := range r.pagamentos {
		if p.FaturaID != nil && *p.FaturaID == faturaID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ── transacoes ───────────────────────────────────────────────────────────────

type memTransacaoRepo struct {
	transacoes []model.TransacaoCredito
}

func (r *memTransacaoRepo) CreateTx(_ context.Context, _ *gorm.DB, t *model.TransacaoCredito) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.transacoes = append(r.transacoes, *t)
	return nil
}

func (r *memTransacaoRepo) ListByFilho(_ context.Context, filhoID uuid.UUID) ([]model.TransacaoCredito, error) {
	var out []model.TransacaoCredito
	for _, t := range r.transacoes {
		if t.FilhoID == filhoID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ── notificador / gateway ────────────────────────────────────────────────────

type stubNotificador struct {
	enviadas []Notificacao
	falhar   bool
}

func (n *stubNotificador) Enviar(_ context.Context, msg Notificacao) error {
	if n.falhar {
		return context.DeadlineExceeded
	}
	n.enviadas = append(n.enviadas, msg)
	return nil
}

// stubGateway replays scripted answers. respostas are consumed in order by
// CriarPagamento; consultas answers ConsultarPagamento by gateway id.
type stubGateway struct {
	respostas []*infra.GatewayResposta
	erros     []error
	consultas map[string]*infra.GatewayResposta
	criadas   []infra.GatewayRequisicao
	cancelado []string
}

func (g *stubGateway) CriarPagamento(_ context.Context, req infra.GatewayRequisicao) (*infra.GatewayResposta, error) {
	g.criadas = append(g.criadas, req)
	idx := len(g.criadas) - 1
	if idx < len(g.erros) && g.erros[idx] != nil {
		return nil, g.erros[idx]
	}
	if idx < len(g.respostas) {
		return g.respostas[idx], nil
	}
	return &infra.GatewayResposta{ID: uuid.NewString(), Status: "pending"}, nil
}

func (g *stubGateway) ConsultarPagamento(_ context.Context, gatewayID string) (*infra.GatewayResposta, error) {
	if r, ok := g.consultas[gatewayID]; ok {
		return r, nil
	}
	return nil, infra.ErrGatewayIndisponivel
}

func (g *stubGateway) CancelarPagamento(_ context.Context, gatewayID string) error {
	g.cancelado = append(g.cancelado, gatewayID)
	return nil
}
