package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Filho is the holder of a revolving internal credit line.
// Status: "ativo" | "inativo" | "bloqueado"
type Filho struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nome string    `gorm:"not null"`
	// Sequencial feeds the invoice number prefix (FAT-{Sequencial}-{YYYYMM}-{seq})
	Sequencial       int `gorm:"uniqueIndex;not null"`
	Email            *string
	CreditoLimite    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreditoUtilizado decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	// BloqueadoPorDivida is toggled by the delinquency sweep, never manually.
	BloqueadoPorDivida bool `gorm:"not null;default:false"`
	MotivoBloqueio     *string
	Status             string `gorm:"type:varchar(20);not null;default:'ativo'"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreditoDisponivel returns limite - utilizado.
func (f *Filho) CreditoDisponivel() decimal.Decimal {
	return f.CreditoLimite.Sub(f.CreditoUtilizado)
}
