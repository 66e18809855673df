package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// GerarAssinaturaRequest creates the flat recurring invoice for one filho.
type GerarAssinaturaRequest struct {
	FilhoID string          `json:"filho_id" validate:"required,uuid"`
	Valor   decimal.Decimal `json:"valor"    validate:"required,gt=0"`
}

type FaturaItemResponse struct {
	Descricao     string          `json:"descricao"`
	Quantidade    int             `json:"quantidade"`
	PrecoUnitario decimal.Decimal `json:"preco_unitario"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type PagamentoResponse struct {
	ID           string          `json:"id"`
	Metodo       string          `json:"metodo"`
	Valor        decimal.Decimal `json:"valor"`
	ConfirmadoEm time.Time       `json:"confirmado_em"`
}

type FaturaResponse struct {
	ID          string               `json:"id"`
	Numero      string               `json:"numero"`
	Tipo        string               `json:"tipo"`
	Competencia string               `json:"competencia"`
	Status      string               `json:"status"`
	Subtotal    decimal.Decimal      `json:"subtotal"`
	Desconto    decimal.Decimal      `json:"desconto"`
	Multa       decimal.Decimal      `json:"multa"`
	Juros       decimal.Decimal      `json:"juros"`
	ValorTotal  decimal.Decimal      `json:"valor_total"`
	ValorPago   decimal.Decimal      `json:"valor_pago"`
	Vencimento  time.Time            `json:"vencimento"`
	Itens       []FaturaItemResponse `json:"itens,omitempty"`
	Pagamentos  []PagamentoResponse  `json:"pagamentos,omitempty"`
}

type FaturaListResponse struct {
	Data []FaturaResponse `json:"data"`
}
