package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fatura is a billing document for one Filho and one competencia (period).
// Tipo: "consumo" (aggregated from orders) | "assinatura" (flat recurring fee)
// Status: "rascunho" | "pendente" | "parcial" | "paga" | "vencida" | "cancelada"
//
// Invariants: ValorPago only ever grows; Status becomes "paga" only when
// ValorPago >= ValorTotal - 0.01.
type Fatura struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FilhoID uuid.UUID `gorm:"type:uuid;index;not null"`
	Tipo    string    `gorm:"type:varchar(15);not null;default:'consumo'"`
	// Numero: FAT-{filhoSeq}-{YYYYMM}-{seq} for consumo,
	// FAT-ASSIN-{YYYYMM}-{seq} for assinatura.
	Numero string `gorm:"uniqueIndex;not null"`
	// Competencia is the billing period in YYYYMM.
	Competencia string          `gorm:"type:varchar(6);index;not null"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Desconto    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Multa       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Juros       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ValorTotal  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ValorPago   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Status      string          `gorm:"type:varchar(15);not null;default:'pendente'"`
	Vencimento  time.Time       `gorm:"not null;index"`
	// MultaAplicada guards the one-time late fee of the daily sweep.
	MultaAplicada bool `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Filho *Filho       `gorm:"foreignKey:FilhoID"`
	Itens []FaturaItem `gorm:"foreignKey:FaturaID"`
}

// EstaPaga reports whether the invoice is settled within the 0.01 epsilon.
func (f *Fatura) EstaPaga() bool {
	return f.ValorPago.GreaterThanOrEqual(f.ValorTotal.Sub(decimal.NewFromFloat(0.01)))
}

// FaturaItem is a line-item snapshot copied from a PedidoItem at aggregation
// time. Immutable once created.
type FaturaItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	FaturaID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	PedidoID      uuid.UUID       `gorm:"type:uuid;not null"`
	ProdutoID     uuid.UUID       `gorm:"type:uuid;not null"`
	Descricao     string          `gorm:"not null"`
	Quantidade    int             `gorm:"not null"`
	PrecoUnitario decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt     time.Time
}

// TableName overrides GORM's default pluralization (fatura_items → fatura_itens).
func (FaturaItem) TableName() string { return "fatura_itens" }
