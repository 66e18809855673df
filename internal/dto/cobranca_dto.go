package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CriarCobrancaRequest creates a gateway charge for exactly one target:
// pedido_id or fatura_id.
type CriarCobrancaRequest struct {
	PedidoID *string `json:"pedido_id" validate:"omitempty,uuid"`
	FaturaID *string `json:"fatura_id" validate:"omitempty,uuid"`
	Metodo   string  `json:"metodo"    validate:"required,oneof=pix cartao_credito cartao_debito"`
	// TokenCartao is the tokenized card reference; required for card methods.
	TokenCartao *string `json:"token_cartao" validate:"omitempty,min=8"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CobrancaResponse struct {
	ID            string          `json:"id"`
	Metodo        string          `json:"metodo"`
	Status        string          `json:"status"`
	StatusDetalhe *string         `json:"status_detalhe,omitempty"`
	Valor         decimal.Decimal `json:"valor"`
	Tentativas    int             `json:"tentativas"`
	PixQRCode     *string         `json:"pix_qr_code,omitempty"`
	PixCopiaECola *string         `json:"pix_copia_e_cola,omitempty"`
	ExpiraEm      *time.Time      `json:"expira_em,omitempty"`
	CriadaEm      time.Time       `json:"criada_em"`
}
