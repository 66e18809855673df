//go:build integration

package router

// End-to-end tests against real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v
//
// Covered flows:
//   consumo de crédito no balcão (débito, extrato, guardas)
//   faturamento mensal de consumo (agregação + idempotência)
//   ingestão de webhook (assinatura HMAC)

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casalar/internal/config"
	"casalar/internal/infra"
	"casalar/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, headers map[string]string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// ── Test Suite Setup ─────────────────────────────────────────────────────────

const e2eWebhookSecret = "e2e-webhook-secret"

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("casalar_test"),
		tcPostgres.WithUsername("casalar"),
		tcPostgres.WithPassword("casalar"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                8000,
		Env:                 "test",
		WorkerPoolSize:      1,
		DatabaseURL:         pgURL,
		RedisURL:            rdURL,
		GatewayURL:          "http://localhost:9999", // unreachable on purpose
		WebhookSecret:       e2eWebhookSecret,
		WebhookMaxRetries:   3,
		WebhookBackoffSecs:  60,
		FaturaPrefixo:       "FAT",
		DiasUteisVencimento: 5,
		MultaPct:            2.0,
		JurosDiaPct:         0.033,
		LimiteInadimplencia: 3,
		PixExpiracaoMin:     30,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)

	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	cb := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	r := New(cfg, db, rdb, cb)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, db: db}
}

func seedFilho(t *testing.T, db *gorm.DB, sequencial int, limite float64) *model.Filho {
	t.Helper()
	email := fmt.Sprintf("responsavel%d@casalar.org", sequencial)
	filho := &model.Filho{
		Nome:          fmt.Sprintf("Filho E2E %d", sequencial),
		Sequencial:    sequencial,
		Email:         &email,
		CreditoLimite: decimal.NewFromFloat(limite),
		Status:        "ativo",
	}
	require.NoError(t, db.Create(filho).Error)
	return filho
}

func seedPedido(t *testing.T, db *gorm.DB, filhoID uuid.UUID, total float64, status, metodo string, criadoEm time.Time) *model.Pedido {
	t.Helper()
	pedido := &model.Pedido{
		FilhoID:         &filhoID,
		Origem:          "app",
		Total:           decimal.NewFromFloat(total),
		Status:          status,
		MetodoPagamento: metodo,
		CreatedAt:       criadoEm,
	}
	require.NoError(t, db.Create(pedido).Error)
	item := &model.PedidoItem{
		PedidoID:      pedido.ID,
		ProdutoID:     uuid.New(),
		Descricao:     "Lanche da tarde",
		Quantidade:    1,
		PrecoUnitario: decimal.NewFromFloat(total),
		Subtotal:      decimal.NewFromFloat(total),
	}
	require.NoError(t, db.Create(item).Error)
	return pedido
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2E_ConsumoDeCredito(t *testing.T) {
	env := setupTestEnv(t)

	filho := seedFilho(t, env.db, 101, 500)
	pedido := seedPedido(t, env.db, filho.ID, 80, "pendente", "credito_interno", time.Now())

	// Débito no balcão
	resp := do(t, env.server, "POST", "/v1/credito/consumir",
		jsonBody(t, map[string]string{"pedido_id": pedido.ID.String()}), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Extrato reflete o débito
	extResp := do(t, env.server, "GET", "/v1/filhos/"+filho.ID.String()+"/credito", nil, nil)
	require.Equal(t, http.StatusOK, extResp.StatusCode)
	var extrato struct {
		Saldo struct {
			Utilizado  string `json:"utilizado"`
			Disponivel string `json:"disponivel"`
		} `json:"saldo"`
		Transacoes []struct {
			Tipo  string `json:"tipo"`
			Valor string `json:"valor"`
		} `json:"transacoes"`
	}
	decodeJSON(t, extResp, &extrato)
	assert.Equal(t, "80", extrato.Saldo.Utilizado)
	assert.Equal(t, "420", extrato.Saldo.Disponivel)
	require.Len(t, extrato.Transacoes, 1)
	assert.Equal(t, "consumo", extrato.Transacoes[0].Tipo)

	// Repetir o débito do mesmo pedido é rejeitado
	resp = do(t, env.server, "POST", "/v1/credito/consumir",
		jsonBody(t, map[string]string{"pedido_id": pedido.ID.String()}), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Pedido acima do disponível é rejeitado com o detalhe do saldo
	grande := seedPedido(t, env.db, filho.ID, 1000, "pendente", "credito_interno", time.Now())
	resp = do(t, env.server, "POST", "/v1/credito/consumir",
		jsonBody(t, map[string]string{"pedido_id": grande.ID.String()}), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestE2E_FaturamentoMensalDeConsumo(t *testing.T) {
	env := setupTestEnv(t)

	filho := seedFilho(t, env.db, 202, 500)
	mesPassado := time.Now().AddDate(0, -1, 0)
	seedPedido(t, env.db, filho.ID, 45.50, "pago", "credito_interno", mesPassado)
	seedPedido(t, env.db, filho.ID, 30, "pago", "credito_interno", mesPassado)
	// Pedido do mês corrente fica fora da competência fechada
	seedPedido(t, env.db, filho.ID, 99, "pago", "credito_interno", time.Now())

	resp := do(t, env.server, "POST", "/v1/faturas/gerar-consumo", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gerado struct {
		FaturasGeradas int `json:"faturas_geradas"`
	}
	decodeJSON(t, resp, &gerado)
	assert.Equal(t, 1, gerado.FaturasGeradas)

	listResp := do(t, env.server, "GET", "/v1/filhos/"+filho.ID.String()+"/faturas", nil, nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var lista struct {
		Data []struct {
			Numero     string `json:"numero"`
			Tipo       string `json:"tipo"`
			Status     string `json:"status"`
			ValorTotal string `json:"valor_total"`
		} `json:"data"`
	}
	decodeJSON(t, listResp, &lista)
	require.Len(t, lista.Data, 1)
	fatura := lista.Data[0]
	assert.Equal(t, fmt.Sprintf("FAT-202-%s-001", mesPassado.Format("200601")), fatura.Numero)
	assert.Equal(t, "consumo", fatura.Tipo)
	assert.Equal(t, "aberta", fatura.Status)
	assert.Equal(t, "75.5", fatura.ValorTotal)

	// Segunda varredura não duplica a fatura
	resp = do(t, env.server, "POST", "/v1/faturas/gerar-consumo", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &gerado)
	assert.Equal(t, 0, gerado.FaturasGeradas)
}

func TestE2E_WebhookAssinatura(t *testing.T) {
	env := setupTestEnv(t)

	corpo := `{"action":"payment.updated","type":"payment","data":{"id":"gw-e2e-1"}}`

	// Assinatura forjada é rejeitada
	resp := do(t, env.server, "POST", "/v1/webhooks/gateway",
		bytes.NewBufferString(corpo), map[string]string{
			"X-Signature":  "ts=1756700000,v1=deadbeef",
			"X-Request-ID": "req-e2e",
		})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Assinatura legítima é aceita mesmo sem cobrança correspondente:
	// o evento fica persistido para redelivery
	manifesto := "id:gw-e2e-1;request-id:req-e2e;ts:1756700000;"
	mac := hmac.New(sha256.New, []byte(e2eWebhookSecret))
	mac.Write([]byte(manifesto))
	assinatura := "ts=1756700000,v1=" + hex.EncodeToString(mac.Sum(nil))

	resp = do(t, env.server, "POST", "/v1/webhooks/gateway",
		bytes.NewBufferString(corpo), map[string]string{
			"X-Signature":  assinatura,
			"X-Request-ID": "req-e2e",
		})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var eventos int64
	require.NoError(t, env.db.Model(&model.WebhookEvento{}).
		Where("gateway_pagamento_id = ?", "gw-e2e-1").Count(&eventos).Error)
	assert.Equal(t, int64(1), eventos)
}
