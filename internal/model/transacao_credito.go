package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransacaoCredito is an append-only journal entry for every credit movement
// on a Filho. Entries are NEVER modified or deleted — corrections create new
// entries. SaldoAnterior/SaldoPosterior are computed under the Filho row lock.
// Tipo: "consumo" | "restauracao" | "ajuste"
type TransacaoCredito struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FilhoID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	Tipo           string          `gorm:"type:varchar(15);not null"`
	Valor          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SaldoAnterior  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SaldoPosterior decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Descricao      string          `gorm:"not null"`
	// PedidoID / FaturaID link the movement to its origin for reconciliation.
	PedidoID  *uuid.UUID `gorm:"type:uuid"`
	FaturaID  *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
}

// TableName overrides GORM's default pluralization.
func (TransacaoCredito) TableName() string { return "transacoes_credito" }
