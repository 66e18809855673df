package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cobranca is one attempt to collect money through the external gateway,
// linked to exactly one Pedido XOR one Fatura.
// Metodo: "pix" | "cartao_credito" | "cartao_debito"
// Status: "criada" | "pendente" | "processando" | "aprovada" | "recusada" |
// "cancelada" | "erro"
//
// "erro" is retryable while Tentativas < MaxTentativas; the remaining
// terminal states are final.
type Cobranca struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	PedidoID *uuid.UUID `gorm:"type:uuid;index"`
	FaturaID *uuid.UUID `gorm:"type:uuid;index"`
	Metodo   string     `gorm:"type:varchar(20);not null"`
	Status   string     `gorm:"type:varchar(15);not null;default:'criada'"`
	// StatusDetalhe carries the gateway's status_detail verbatim.
	StatusDetalhe *string
	Valor         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ValorPago     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// GatewayID is the provider's payment id, set after the create call.
	GatewayID *string `gorm:"index"`
	// ChaveIdempotencia is sent as X-Idempotency-Key so network retries of the
	// same creation attempt cannot produce duplicate gateway charges.
	ChaveIdempotencia string `gorm:"uniqueIndex;not null"`
	Tentativas        int    `gorm:"not null;default:0"`
	MaxTentativas     int    `gorm:"not null;default:3"`
	// ExpiraEm: PIX QR codes expire; expired pending cobrancas are not reused.
	ExpiraEm *time.Time
	// PIX payment data returned by the gateway.
	PixCopiaECola *string
	PixQRCode     *string
	// Raw request/response are persisted verbatim for audit and reconciliation.
	RequisicaoRaw *string `gorm:"type:jsonb"`
	RespostaRaw   *string `gorm:"type:jsonb"`
	AprovadaEm    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Pedido *Pedido `gorm:"foreignKey:PedidoID"`
	Fatura *Fatura `gorm:"foreignKey:FaturaID"`
}

// TableName overrides GORM's default pluralization.
func (Cobranca) TableName() string { return "cobrancas" }

// Terminal reports whether the cobranca can no longer transition
// ("erro" stays retryable until the attempt budget runs out).
func (c *Cobranca) Terminal() bool {
	switch c.Status {
	case "aprovada", "recusada", "cancelada":
		return true
	case "erro":
		return c.Tentativas >= c.MaxTentativas
	}
	return false
}

// Expirada reports whether a PIX QR has passed its expiry.
func (c *Cobranca) Expirada(agora time.Time) bool {
	return c.ExpiraEm != nil && agora.After(*c.ExpiraEm)
}
