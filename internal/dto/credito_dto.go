package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumirCreditoRequest debits a settled-at-counter order against the
// filho's revolving limit.
type ConsumirCreditoRequest struct {
	PedidoID string `json:"pedido_id" validate:"required,uuid"`
}

type SaldoCreditoResponse struct {
	FilhoID            string          `json:"filho_id"`
	Limite             decimal.Decimal `json:"limite"`
	Utilizado          decimal.Decimal `json:"utilizado"`
	Disponivel         decimal.Decimal `json:"disponivel"`
	BloqueadoPorDivida bool            `json:"bloqueado_por_divida"`
	MotivoBloqueio     *string         `json:"motivo_bloqueio,omitempty"`
}

type TransacaoCreditoResponse struct {
	Tipo           string          `json:"tipo"`
	Valor          decimal.Decimal `json:"valor"`
	SaldoAnterior  decimal.Decimal `json:"saldo_anterior"`
	SaldoPosterior decimal.Decimal `json:"saldo_posterior"`
	Descricao      string          `json:"descricao"`
	CriadaEm       time.Time       `json:"criada_em"`
}

type ExtratoCreditoResponse struct {
	Saldo      SaldoCreditoResponse       `json:"saldo"`
	Transacoes []TransacaoCreditoResponse `json:"transacoes"`
}
