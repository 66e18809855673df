package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pagamento is the durable record of money actually received — created
// exactly once per confirmed gateway transaction id. The unique index on
// GatewayID is the hard idempotency guard behind webhook replays.
type Pagamento struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CobrancaID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	PedidoID     *uuid.UUID      `gorm:"type:uuid;index"`
	FaturaID     *uuid.UUID      `gorm:"type:uuid;index"`
	GatewayID    string          `gorm:"uniqueIndex;not null"`
	Metodo       string          `gorm:"type:varchar(20);not null"`
	Valor        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ConfirmadoEm time.Time       `gorm:"not null"`
	CreatedAt    time.Time
}
